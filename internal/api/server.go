// Package api exposes the layout engine over HTTP.
//
// The server keeps one controller per board and commits geometry through a
// pluggable store backend. Adding or deleting a block rewrites the stored
// block list; geometry edits flow through the controller's debounced
// coordinator like any embedded host.
//
// # Routes
//
//	GET    /api/boards/{board}/layout
//	POST   /api/boards/{board}/blocks
//	DELETE /api/boards/{board}/blocks/{id}
//	POST   /api/boards/{board}/blocks/{id}/interaction
//	POST   /api/boards/{board}/refresh
//	GET    /api/boards/{board}/status
//
// A `breakpoint` query parameter selects the tier on every route; it
// defaults to the controller's default tier.
package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"github.com/blockboard/blockboard/pkg/board"
	"github.com/blockboard/blockboard/pkg/errors"
	"github.com/blockboard/blockboard/pkg/geometry"
	"github.com/blockboard/blockboard/pkg/session"
	"github.com/blockboard/blockboard/pkg/store"
)

// commitTimeout bounds every store commit. The coordinator never times
// commits out itself, and an unresolved commit keeps external refreshes
// locked out for the life of the process.
const commitTimeout = 10 * time.Second

// Config tunes the controllers the server creates.
type Config struct {
	Window    time.Duration // debounce window; 0 means the coordinator default
	Tolerance int           // reconciliation tolerance in grid units
}

// Server owns the per-board controllers and routes requests to them.
type Server struct {
	store  store.Store
	logger *log.Logger
	cfg    Config

	mu     sync.Mutex
	boards map[string]*boardEntry
}

// boardEntry pairs a controller with the set of tiers already hydrated
// from the store. mu serializes whole requests against the board: the
// controller carries one active breakpoint, so SetBreakpoint and the
// operation that follows must not interleave across requests.
type boardEntry struct {
	mu     sync.Mutex
	ctrl   *board.Controller
	loaded map[string]bool
}

// NewServer creates a server over the given store.
func NewServer(s store.Store, logger *log.Logger, cfg Config) *Server {
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = board.DefaultTolerance
	}
	return &Server{
		store:  s,
		logger: logger,
		cfg:    cfg,
		boards: make(map[string]*boardEntry),
	}
}

// Handler builds the chi router for the server.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Route("/api/boards/{board}", func(r chi.Router) {
		r.Get("/layout", s.handleLayout)
		r.Get("/status", s.handleStatus)
		r.Post("/blocks", s.handleAddBlock)
		r.Delete("/blocks/{id}", s.handleDeleteBlock)
		r.Post("/blocks/{id}/interaction", s.handleInteraction)
		r.Post("/refresh", s.handleRefresh)
	})
	return r
}

// Close stops every controller and waits for in-flight commits.
func (s *Server) Close() {
	s.mu.Lock()
	entries := make([]*boardEntry, 0, len(s.boards))
	for _, e := range s.boards {
		entries = append(entries, e)
	}
	s.mu.Unlock()
	for _, e := range entries {
		e.ctrl.Stop()
	}
}

// controller returns the board's controller positioned on the requested
// breakpoint, hydrating the tier from the store on first touch. The
// returned release func holds the board lock until the handler is done
// with the controller; requests for other breakpoints of the same board
// wait rather than re-point the controller mid-operation.
func (s *Server) controller(ctx context.Context, boardID, breakpoint string) (*board.Controller, func(), error) {
	if breakpoint == "" {
		breakpoint = board.DefaultBreakpoint
	}

	s.mu.Lock()
	e, ok := s.boards[boardID]
	if !ok {
		opts := []board.Option{
			board.WithTolerance(s.cfg.Tolerance),
		}
		if s.cfg.Window > 0 {
			opts = append(opts, board.WithWindow(s.cfg.Window))
		}
		if s.logger != nil {
			opts = append(opts, board.WithLogger(s.logger.With("board", boardID)))
		}
		commit := store.WithTimeout(store.Commit(s.store, boardID), commitTimeout)
		e = &boardEntry{
			ctrl:   board.New(commit, opts...),
			loaded: make(map[string]bool),
		}
		s.boards[boardID] = e
	}
	s.mu.Unlock()

	e.mu.Lock()
	if !e.loaded[breakpoint] {
		if err := s.hydrate(ctx, e, boardID, breakpoint); err != nil {
			e.mu.Unlock()
			return nil, nil, err
		}
		e.loaded[breakpoint] = true
	}
	e.ctrl.SetBreakpoint(breakpoint)
	return e.ctrl, e.mu.Unlock, nil
}

// hydrate loads the tier's stored blocks into the controller. Caller holds
// the board lock.
func (s *Server) hydrate(ctx context.Context, e *boardEntry, boardID, breakpoint string) error {
	blocks, err := s.store.LoadBlocks(ctx, boardID, breakpoint)
	switch {
	case stderrors.Is(err, store.ErrNotFound):
		// Fresh board/tier; the empty layout stands.
		return nil
	case err != nil:
		return errors.Wrap(errors.ErrCodeStoreUnavailable, err, "load board %q", boardID)
	default:
		e.ctrl.Load(breakpoint, blocks)
		return nil
	}
}

// replaceStored writes the controller's current layout back as the stored
// block list. Used after add/delete, which change membership rather than
// geometry.
func (s *Server) replaceStored(ctx context.Context, ctrl *board.Controller, boardID string) error {
	blocks := ctrl.Layout().Blocks()
	if err := s.store.ReplaceBlocks(ctx, boardID, ctrl.Breakpoint(), blocks); err != nil {
		return errors.Wrap(errors.ErrCodeStoreUnavailable, err, "replace blocks on board %q", boardID)
	}
	return nil
}

// == Handlers ==

type layoutResponse struct {
	Board      string           `json:"board"`
	Breakpoint string           `json:"breakpoint"`
	Blocks     []geometry.Block `json:"blocks"`
}

func (s *Server) handleLayout(w http.ResponseWriter, r *http.Request) {
	boardID := chi.URLParam(r, "board")
	ctrl, release, err := s.controller(r.Context(), boardID, r.URL.Query().Get("breakpoint"))
	if err != nil {
		writeError(w, err)
		return
	}
	defer release()
	writeJSON(w, http.StatusOK, layoutResponse{
		Board:      boardID,
		Breakpoint: ctrl.Breakpoint(),
		Blocks:     ctrl.Layout().Blocks(),
	})
}

type statusResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctrl, release, err := s.controller(r.Context(), chi.URLParam(r, "board"), r.URL.Query().Get("breakpoint"))
	if err != nil {
		writeError(w, err)
		return
	}
	defer release()
	status, saveErr := ctrl.SaveStatus()
	resp := statusResponse{Status: status.String()}
	if saveErr != nil {
		resp.Error = saveErr.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

type addBlockRequest struct {
	Content string        `json:"content"`
	Size    geometry.Size `json:"size"`
	MinSize geometry.Size `json:"min_size"`
}

func (s *Server) handleAddBlock(w http.ResponseWriter, r *http.Request) {
	boardID := chi.URLParam(r, "board")
	var req addBlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.Wrap(errors.ErrCodeInvalidInput, err, "decode block body"))
		return
	}
	ctrl, release, err := s.controller(r.Context(), boardID, r.URL.Query().Get("breakpoint"))
	if err != nil {
		writeError(w, err)
		return
	}
	defer release()
	b := ctrl.AddBlock(req.Content, req.Size, req.MinSize)
	if err := s.replaceStored(r.Context(), ctrl, boardID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *Server) handleDeleteBlock(w http.ResponseWriter, r *http.Request) {
	boardID := chi.URLParam(r, "board")
	ctrl, release, err := s.controller(r.Context(), boardID, r.URL.Query().Get("breakpoint"))
	if err != nil {
		writeError(w, err)
		return
	}
	defer release()
	if err := ctrl.DeleteBlock(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	if err := s.replaceStored(r.Context(), ctrl, boardID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type interactionRequest struct {
	Action string         `json:"action"` // start, move, end, cancel
	Kind   string         `json:"kind"`   // drag or resize, for start
	Rect   *geometry.Rect `json:"rect"`   // candidate, for move
}

type interactionResponse struct {
	Phase  string           `json:"phase"`
	Blocks []geometry.Block `json:"blocks"`
}

func (s *Server) handleInteraction(w http.ResponseWriter, r *http.Request) {
	boardID := chi.URLParam(r, "board")
	blockID := chi.URLParam(r, "id")
	var req interactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.Wrap(errors.ErrCodeInvalidInput, err, "decode interaction body"))
		return
	}
	ctrl, release, err := s.controller(r.Context(), boardID, r.URL.Query().Get("breakpoint"))
	if err != nil {
		writeError(w, err)
		return
	}
	defer release()

	switch req.Action {
	case "start":
		kind := session.KindDrag
		switch req.Kind {
		case "", "drag":
		case "resize":
			kind = session.KindResize
		default:
			writeError(w, errors.New(errors.ErrCodeInvalidInput, "unknown interaction kind %q", req.Kind))
			return
		}
		if !ctrl.BeginInteraction(kind, blockID) {
			writeError(w, errors.New(errors.ErrCodeBlockNotFound, "cannot start interaction on block %q", blockID))
			return
		}
	case "move":
		if req.Rect == nil {
			writeError(w, errors.New(errors.ErrCodeInvalidInput, "move requires a rect"))
			return
		}
		ctrl.MoveInteraction(blockID, *req.Rect)
	case "end":
		ctrl.EndInteraction()
	case "cancel":
		ctrl.CancelInteraction()
	default:
		writeError(w, errors.New(errors.ErrCodeInvalidInput, "unknown interaction action %q", req.Action))
		return
	}

	writeJSON(w, http.StatusOK, interactionResponse{
		Phase:  ctrl.Phase().String(),
		Blocks: ctrl.Layout().Blocks(),
	})
}

type refreshRequest struct {
	Blocks []geometry.Block `json:"blocks"`
}

type refreshResponse struct {
	Decision string           `json:"decision"`
	Adopted  bool             `json:"adopted"`
	Blocks   []geometry.Block `json:"blocks"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	boardID := chi.URLParam(r, "board")
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.Wrap(errors.ErrCodeInvalidInput, err, "decode refresh body"))
		return
	}
	ctrl, release, err := s.controller(r.Context(), boardID, r.URL.Query().Get("breakpoint"))
	if err != nil {
		writeError(w, err)
		return
	}
	defer release()
	decision := ctrl.ReceiveExternal(req.Blocks)
	writeJSON(w, http.StatusOK, refreshResponse{
		Decision: decision.String(),
		Adopted:  decision.Adopted(),
		Blocks:   ctrl.Layout().Blocks(),
	})
}

// == Encoding ==

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusFor maps engine error codes to HTTP status codes.
func statusFor(code errors.Code) int {
	switch code {
	case errors.ErrCodeInvalidGeometry, errors.ErrCodeInvalidBreakpoint, errors.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case errors.ErrCodeBoardNotFound, errors.ErrCodeBlockNotFound:
		return http.StatusNotFound
	case errors.ErrCodeStaleWrite:
		return http.StatusConflict
	case errors.ErrCodeCommitFailed, errors.ErrCodeStoreUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := errors.GetCode(err)
	if code == "" {
		code = errors.ErrCodeInternal
	}
	writeJSON(w, statusFor(code), errorResponse{
		Code:    string(code),
		Message: errors.UserMessage(err),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
