package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/blockboard/blockboard/pkg/geometry"
	"github.com/blockboard/blockboard/pkg/store"
)

const testWindow = 25 * time.Millisecond

func newTestServer(t *testing.T) (*Server, *httptest.Server, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	srv := NewServer(mem, nil, Config{Window: testWindow})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return srv, ts, mem
}

func doJSON(t *testing.T, method, url string, body any, out any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp
}

// waitIdle polls the status endpoint until the board reports idle.
func waitIdle(t *testing.T, base, boardID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var st statusResponse
		doJSON(t, http.MethodGet, base+"/api/boards/"+boardID+"/status", nil, &st)
		if st.Status == "idle" {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("board %s never settled", boardID)
}

func addBlock(t *testing.T, base, boardID string, w, h int) geometry.Block {
	t.Helper()
	var b geometry.Block
	resp := doJSON(t, http.MethodPost, base+"/api/boards/"+boardID+"/blocks",
		addBlockRequest{Content: "widget", Size: geometry.Size{W: w, H: h}}, &b)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add block: status %d", resp.StatusCode)
	}
	return b
}

func TestAddAndGetLayout(t *testing.T) {
	_, ts, mem := newTestServer(t)

	a := addBlock(t, ts.URL, "b1", 3, 2)
	b := addBlock(t, ts.URL, "b1", 3, 2)
	if b.Rect.Y != a.Rect.Bottom() {
		t.Errorf("second block at y=%d, want %d", b.Rect.Y, a.Rect.Bottom())
	}

	var layout layoutResponse
	resp := doJSON(t, http.MethodGet, ts.URL+"/api/boards/b1/layout", nil, &layout)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get layout: status %d", resp.StatusCode)
	}
	if len(layout.Blocks) != 2 {
		t.Fatalf("layout has %d blocks, want 2", len(layout.Blocks))
	}

	// Adds rewrite the stored block list immediately.
	stored, err := mem.LoadBlocks(context.Background(), "b1", "default")
	if err != nil {
		t.Fatalf("load stored blocks: %v", err)
	}
	if len(stored) != 2 {
		t.Errorf("store has %d blocks, want 2", len(stored))
	}
}

func TestInteractionFlowPersists(t *testing.T) {
	_, ts, mem := newTestServer(t)

	a := addBlock(t, ts.URL, "b2", 3, 2)
	b := addBlock(t, ts.URL, "b2", 3, 2)
	iurl := func(id string) string {
		return ts.URL + "/api/boards/b2/blocks/" + id + "/interaction"
	}

	var ir interactionResponse
	doJSON(t, http.MethodPost, iurl(b.ID), interactionRequest{Action: "start", Kind: "drag"}, &ir)
	if ir.Phase != "dragging" {
		t.Fatalf("phase after start = %q, want dragging", ir.Phase)
	}

	// Drop b onto a; a should be pushed below during reflow.
	target := geometry.Rect{X: 0, Y: 0, W: b.Rect.W, H: b.Rect.H}
	doJSON(t, http.MethodPost, iurl(b.ID), interactionRequest{Action: "move", Rect: &target}, &ir)
	doJSON(t, http.MethodPost, iurl(b.ID), interactionRequest{Action: "end"}, &ir)
	if ir.Phase != "idle" {
		t.Fatalf("phase after end = %q, want idle", ir.Phase)
	}

	waitIdle(t, ts.URL, "b2")

	stored, err := mem.LoadBlocks(context.Background(), "b2", "default")
	if err != nil {
		t.Fatalf("load stored blocks: %v", err)
	}
	rects := make(map[string]geometry.Rect, len(stored))
	for _, blk := range stored {
		rects[blk.ID] = blk.Rect
	}
	if rects[b.ID].Y != 0 {
		t.Errorf("moved block stored at y=%d, want 0", rects[b.ID].Y)
	}
	if rects[a.ID].Y != rects[b.ID].Bottom() {
		t.Errorf("displaced block stored at y=%d, want %d", rects[a.ID].Y, rects[b.ID].Bottom())
	}
}

func TestDeleteBlock(t *testing.T) {
	_, ts, _ := newTestServer(t)

	b := addBlock(t, ts.URL, "b3", 2, 2)
	resp := doJSON(t, http.MethodDelete, ts.URL+"/api/boards/b3/blocks/"+b.ID, nil, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: status %d", resp.StatusCode)
	}

	var layout layoutResponse
	doJSON(t, http.MethodGet, ts.URL+"/api/boards/b3/layout", nil, &layout)
	if len(layout.Blocks) != 0 {
		t.Errorf("layout has %d blocks after delete, want 0", len(layout.Blocks))
	}

	var apiErr errorResponse
	resp = doJSON(t, http.MethodDelete, ts.URL+"/api/boards/b3/blocks/nope", nil, &apiErr)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("delete unknown: status %d, want 404", resp.StatusCode)
	}
	if apiErr.Code != "BLOCK_NOT_FOUND" {
		t.Errorf("delete unknown: code %q", apiErr.Code)
	}
}

func TestRefreshRejectedMidDrag(t *testing.T) {
	_, ts, _ := newTestServer(t)

	b := addBlock(t, ts.URL, "b4", 2, 2)
	waitIdle(t, ts.URL, "b4")

	doJSON(t, http.MethodPost, ts.URL+"/api/boards/b4/blocks/"+b.ID+"/interaction",
		interactionRequest{Action: "start", Kind: "drag"}, nil)

	external := []geometry.Block{{ID: b.ID, Rect: geometry.Rect{X: 5, Y: 5, W: 2, H: 2}}}
	var rr refreshResponse
	doJSON(t, http.MethodPost, ts.URL+"/api/boards/b4/refresh", refreshRequest{Blocks: external}, &rr)
	if rr.Adopted {
		t.Fatalf("refresh adopted mid drag (decision %q)", rr.Decision)
	}

	doJSON(t, http.MethodPost, ts.URL+"/api/boards/b4/blocks/"+b.ID+"/interaction",
		interactionRequest{Action: "cancel"}, nil)
	waitIdle(t, ts.URL, "b4")

	doJSON(t, http.MethodPost, ts.URL+"/api/boards/b4/refresh", refreshRequest{Blocks: external}, &rr)
	if rr.Decision != "replace" {
		t.Fatalf("refresh while idle: decision %q, want replace", rr.Decision)
	}
	if len(rr.Blocks) != 1 || rr.Blocks[0].Rect.X != 5 {
		t.Errorf("adopted layout not reflected: %+v", rr.Blocks)
	}
}

func TestBreakpointQueryParam(t *testing.T) {
	_, ts, mem := newTestServer(t)

	addBlock(t, ts.URL, "b5", 2, 2)
	var mobile layoutResponse
	doJSON(t, http.MethodGet, ts.URL+"/api/boards/b5/layout?breakpoint=mobile", nil, &mobile)
	if mobile.Breakpoint != "mobile" {
		t.Fatalf("breakpoint = %q, want mobile", mobile.Breakpoint)
	}
	if len(mobile.Blocks) != 0 {
		t.Errorf("mobile tier has %d blocks, want 0", len(mobile.Blocks))
	}

	// A tier written out of band is hydrated on first touch.
	seed := []geometry.Block{{ID: "m1", Rect: geometry.Rect{X: 0, Y: 0, W: 1, H: 1}}}
	if err := mem.ReplaceBlocks(context.Background(), "b6", "tablet", seed); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	var tablet layoutResponse
	doJSON(t, http.MethodGet, ts.URL+"/api/boards/b6/layout?breakpoint=tablet", nil, &tablet)
	if len(tablet.Blocks) != 1 || tablet.Blocks[0].ID != "m1" {
		t.Errorf("tablet tier not hydrated: %+v", tablet.Blocks)
	}
}

func TestConcurrentBreakpointRequests(t *testing.T) {
	_, ts, mem := newTestServer(t)

	// Hammer two tiers of one board in parallel. Every add must land on the
	// tier its request named, both in the live layout and in the store.
	const perTier = 8
	tiers := []string{"desktop", "mobile"}

	post := func(tier string) error {
		body, err := json.Marshal(addBlockRequest{Content: tier, Size: geometry.Size{W: 2, H: 2}})
		if err != nil {
			return err
		}
		resp, err := http.Post(ts.URL+"/api/boards/cc/blocks?breakpoint="+tier,
			"application/json", bytes.NewReader(body))
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			return fmt.Errorf("tier %s: status %d", tier, resp.StatusCode)
		}
		return nil
	}

	var wg sync.WaitGroup
	errc := make(chan error, perTier*len(tiers))
	for _, tier := range tiers {
		for i := 0; i < perTier; i++ {
			wg.Add(1)
			go func(tier string) {
				defer wg.Done()
				errc <- post(tier)
			}(tier)
		}
	}
	wg.Wait()
	close(errc)
	for err := range errc {
		if err != nil {
			t.Fatalf("add block: %v", err)
		}
	}

	for _, tier := range tiers {
		var layout layoutResponse
		doJSON(t, http.MethodGet, ts.URL+"/api/boards/cc/layout?breakpoint="+tier, nil, &layout)
		if len(layout.Blocks) != perTier {
			t.Errorf("tier %s layout has %d blocks, want %d", tier, len(layout.Blocks), perTier)
		}
		for _, b := range layout.Blocks {
			if b.Content != tier {
				t.Errorf("tier %s layout holds block %q from tier %q", tier, b.ID, b.Content)
			}
		}

		stored, err := mem.LoadBlocks(context.Background(), "cc", tier)
		if err != nil {
			t.Fatalf("load tier %s: %v", tier, err)
		}
		if len(stored) != perTier {
			t.Errorf("tier %s store has %d blocks, want %d", tier, len(stored), perTier)
		}
		for _, b := range stored {
			if b.Content != tier {
				t.Errorf("tier %s store holds block %q from tier %q", tier, b.ID, b.Content)
			}
		}
	}
}

func TestInvalidInteraction(t *testing.T) {
	_, ts, _ := newTestServer(t)
	b := addBlock(t, ts.URL, "b7", 2, 2)

	cases := []struct {
		name string
		req  interactionRequest
	}{
		{"unknown action", interactionRequest{Action: "wiggle"}},
		{"unknown kind", interactionRequest{Action: "start", Kind: "teleport"}},
		{"move without rect", interactionRequest{Action: "move"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var apiErr errorResponse
			resp := doJSON(t, http.MethodPost,
				fmt.Sprintf("%s/api/boards/b7/blocks/%s/interaction", ts.URL, b.ID), tc.req, &apiErr)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status %d, want 400", resp.StatusCode)
			}
			if apiErr.Code != "INVALID_INPUT" {
				t.Errorf("code %q, want INVALID_INPUT", apiErr.Code)
			}
		})
	}
}
