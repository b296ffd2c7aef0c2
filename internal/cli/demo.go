package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/blockboard/blockboard/pkg/board"
	"github.com/blockboard/blockboard/pkg/geometry"
	"github.com/blockboard/blockboard/pkg/persist"
	"github.com/blockboard/blockboard/pkg/session"
	"github.com/blockboard/blockboard/pkg/store"
)

// =============================================================================
// Color Palette
// =============================================================================

var (
	colorCyan   = lipgloss.Color("36")  // selected block
	colorYellow = lipgloss.Color("220") // grabbed block, pending saves
	colorRed    = lipgloss.Color("167") // errors
	colorGreen  = lipgloss.Color("35")  // idle/saved
	colorWhite  = lipgloss.Color("255") // block bodies
	colorDim    = lipgloss.Color("240") // empty cells, help text
)

var (
	styleSelected = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	styleGrabbed  = lipgloss.NewStyle().Bold(true).Foreground(colorYellow)
	styleBlock    = lipgloss.NewStyle().Foreground(colorWhite)
	styleEmpty    = lipgloss.NewStyle().Foreground(colorDim)
	styleHelp     = lipgloss.NewStyle().Foreground(colorDim)
	styleErr      = lipgloss.NewStyle().Foreground(colorRed)
	stylePending  = lipgloss.NewStyle().Foreground(colorYellow)
	styleSaved    = lipgloss.NewStyle().Foreground(colorGreen)
)

// newDemoCmd creates the "demo" command: an interactive board in the
// terminal, backed by an in-memory store so the full edit/reflow/save loop
// can be watched live.
func newDemoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Drive a board interactively in the terminal",
		Long: `Demo runs a board in the terminal. Select a block, grab it, and move it
around; overlapping blocks are pushed down and the edit is debounced into a
batched save. Toggle the flaky store to watch a failed commit surface as an
error status and get retried by an explicit flush.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			m := newDemoModel()
			defer m.ctrl.Stop()
			_, err := tea.NewProgram(m, tea.WithContext(cmd.Context())).Run()
			return err
		},
	}
}

// =============================================================================
// Model
// =============================================================================

const (
	demoBoardID = "demo"
	demoCols    = 12
)

type demoModel struct {
	ctrl  *board.Controller
	mem   *store.Memory
	flaky bool

	selected string // block ID under the cursor
	grabbed  bool
	kind     session.Kind
	added    int

	status  persist.Status
	saveErr error
}

// tickMsg drives the status poll.
type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func newDemoModel() *demoModel {
	mem := store.NewMemory()
	ctrl := board.New(
		store.WithTimeout(store.Commit(mem, demoBoardID), 5*time.Second),
		board.WithWindow(500*time.Millisecond),
	)

	m := &demoModel{ctrl: ctrl, mem: mem}
	for i := 0; i < 3; i++ {
		m.addBlock()
	}
	if blocks := m.orderedBlocks(); len(blocks) > 0 {
		m.selected = blocks[0].ID
	}
	return m
}

func (m *demoModel) addBlock() {
	m.added++
	m.ctrl.AddBlock(fmt.Sprintf("block %d", m.added),
		geometry.Size{W: 3, H: 2}, geometry.Size{W: 1, H: 1})
	m.syncStore()
}

// syncStore rewrites the full block set into the store. Debounced saves
// patch geometry onto existing records, so membership changes have to be
// written eagerly or every later save misses.
func (m *demoModel) syncStore() {
	_ = m.mem.ReplaceBlocks(context.Background(), demoBoardID,
		board.DefaultBreakpoint, m.ctrl.Layout().Blocks())
}

// orderedBlocks returns the current layout sorted top-to-bottom,
// left-to-right, so cursor movement matches what is on screen.
func (m *demoModel) orderedBlocks() []geometry.Block {
	blocks := m.ctrl.Layout().Blocks()
	sort.Slice(blocks, func(i, j int) bool {
		if blocks[i].Rect.Y != blocks[j].Rect.Y {
			return blocks[i].Rect.Y < blocks[j].Rect.Y
		}
		if blocks[i].Rect.X != blocks[j].Rect.X {
			return blocks[i].Rect.X < blocks[j].Rect.X
		}
		return blocks[i].ID < blocks[j].ID
	})
	return blocks
}

func (m *demoModel) Init() tea.Cmd {
	return tick()
}

// =============================================================================
// Update
// =============================================================================

func (m *demoModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.status, m.saveErr = m.ctrl.SaveStatus()
		return m, tick()

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit

		case "tab":
			m.cycle(1)
		case "shift+tab":
			m.cycle(-1)

		case "enter", " ":
			m.toggleGrab(session.KindDrag)
		case "r":
			m.toggleGrab(session.KindResize)
		case "esc":
			if m.grabbed {
				m.ctrl.CancelInteraction()
				m.grabbed = false
			}

		case "up", "k":
			m.nudge(0, -1)
		case "down", "j":
			m.nudge(0, 1)
		case "left", "h":
			m.nudge(-1, 0)
		case "right", "l":
			m.nudge(1, 0)

		case "a":
			if !m.grabbed {
				m.addBlock()
			}
		case "d":
			if !m.grabbed && m.selected != "" {
				_ = m.ctrl.DeleteBlock(m.selected)
				m.syncStore()
				m.selected = ""
				if blocks := m.orderedBlocks(); len(blocks) > 0 {
					m.selected = blocks[0].ID
				}
			}

		case "f":
			m.flaky = !m.flaky
			if m.flaky {
				m.mem.FailWith(store.ErrUnavailable)
			} else {
				m.mem.FailWith(nil)
			}
		case "s":
			m.ctrl.Flush()
		}
	}
	return m, nil
}

// cycle moves the selection by delta through the on-screen ordering.
// Selection is locked while a block is grabbed.
func (m *demoModel) cycle(delta int) {
	if m.grabbed {
		return
	}
	blocks := m.orderedBlocks()
	if len(blocks) == 0 {
		return
	}
	idx := 0
	for i, b := range blocks {
		if b.ID == m.selected {
			idx = i
			break
		}
	}
	idx = (idx + delta + len(blocks)) % len(blocks)
	m.selected = blocks[idx].ID
}

func (m *demoModel) toggleGrab(kind session.Kind) {
	if m.grabbed {
		m.ctrl.EndInteraction()
		m.grabbed = false
		return
	}
	if m.selected == "" {
		return
	}
	if m.ctrl.BeginInteraction(kind, m.selected) {
		m.grabbed = true
		m.kind = kind
	}
}

// nudge moves or resizes the grabbed block by one grid unit.
func (m *demoModel) nudge(dx, dy int) {
	if !m.grabbed || m.selected == "" {
		return
	}
	b, ok := m.ctrl.Layout().Get(m.selected)
	if !ok {
		return
	}
	r := b.Rect
	if m.kind == session.KindResize {
		r.W += dx
		r.H += dy
	} else {
		r.X += dx
		r.Y += dy
	}
	m.ctrl.MoveInteraction(m.selected, r)
}

// =============================================================================
// View
// =============================================================================

func (m *demoModel) View() string {
	blocks := m.orderedBlocks()

	rows := m.ctrl.Layout().MaxBottom() + 2
	if rows < 8 {
		rows = 8
	}

	// Paint block indices into a cell grid, later blocks on top.
	grid := make([][]int, rows)
	for y := range grid {
		grid[y] = make([]int, demoCols)
		for x := range grid[y] {
			grid[y][x] = -1
		}
	}
	for i, b := range blocks {
		for y := b.Rect.Y; y < b.Rect.Bottom() && y < rows; y++ {
			for x := b.Rect.X; x < b.Rect.Right() && x < demoCols; x++ {
				grid[y][x] = i
			}
		}
	}

	var sb strings.Builder
	sb.WriteString(styleHelp.Render("blockboard demo") + "\n\n")
	for y := 0; y < rows; y++ {
		for x := 0; x < demoCols; x++ {
			idx := grid[y][x]
			if idx < 0 {
				sb.WriteString(styleEmpty.Render(" ."))
				continue
			}
			cell := fmt.Sprintf(" %c", 'A'+idx%26)
			switch {
			case blocks[idx].ID == m.selected && m.grabbed:
				sb.WriteString(styleGrabbed.Render(cell))
			case blocks[idx].ID == m.selected:
				sb.WriteString(styleSelected.Render(cell))
			default:
				sb.WriteString(styleBlock.Render(cell))
			}
		}
		sb.WriteString("\n")
	}

	sb.WriteString("\n" + m.statusLine() + "\n")
	sb.WriteString(styleHelp.Render("tab select · enter grab/drop · r resize · arrows move · esc cancel\n" +
		"a add · d delete · f flaky store · s flush · q quit"))
	return sb.String()
}

func (m *demoModel) statusLine() string {
	var parts []string
	switch m.status {
	case persist.StatusError:
		msg := "save failed"
		if m.saveErr != nil {
			msg = "save failed: " + m.saveErr.Error()
		}
		parts = append(parts, styleErr.Render(msg+" (press s to retry)"))
	case persist.StatusPending, persist.StatusSaving:
		parts = append(parts, stylePending.Render("saving "+m.status.String()))
	default:
		parts = append(parts, styleSaved.Render("saved"))
	}
	if m.flaky {
		parts = append(parts, styleErr.Render("[flaky store ON]"))
	}
	if m.grabbed {
		verb := "dragging"
		if m.kind == session.KindResize {
			verb = "resizing"
		}
		parts = append(parts, styleGrabbed.Render(verb))
	}
	return strings.Join(parts, "  ")
}
