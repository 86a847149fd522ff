package monitor

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/azula9713/yae-their-share/internal/db"
	"github.com/azula9713/yae-their-share/internal/models"
	"github.com/azula9713/yae-their-share/internal/syncengine"
	"github.com/azula9713/yae-their-share/internal/syncstatus"
)

// MinWidth is the minimum terminal width for proper display
const MinWidth = 40

// MinHeight is the minimum terminal height for proper display
const MinHeight = 12

// Model is the main Bubble Tea model for the sync monitor TUI
type Model struct {
	src         Source
	ctx         context.Context
	statusCh    chan syncstatus.Status
	unsubscribe func()

	// Window dimensions
	Width  int
	Height int

	// Panel data
	Status  syncstatus.Status
	Splits  []models.Envelope
	Stuck   []models.OperationEntry
	History []db.SyncHistoryEntry

	// UI state
	ActivePanel Panel
	Cursor      map[Panel]int
	ShowHelp    bool
	Filtering   bool
	FilterInput textinput.Model
	Syncing     bool
	LastResult  *syncengine.Result
	LastRefresh time.Time
	Err         error
	MaxRetries  int

	keys    keyMap
	help    help.Model
	spinner spinner.Model

	// Configuration
	RefreshInterval time.Duration
	Version         string
}

// NewModel creates a monitor over src. It subscribes to status changes
// immediately; call Close once the program has exited.
func NewModel(ctx context.Context, src Source, interval time.Duration, version string) Model {
	if interval <= 0 {
		interval = 2 * time.Second
	}

	ti := textinput.New()
	ti.Placeholder = "name, id or participant"
	ti.Prompt = "/ "
	ti.CharLimit = 64

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = stateStyles[syncstatus.StateSyncing]

	ch := make(chan syncstatus.Status, 1)
	unsub := src.Subscribe(func(st syncstatus.Status) {
		// Keep only the newest snapshot when the UI falls behind.
		select {
		case ch <- st:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- st:
			default:
			}
		}
	})

	return Model{
		src:             src,
		ctx:             ctx,
		statusCh:        ch,
		unsubscribe:     unsub,
		Status:          src.Status(),
		Cursor:          make(map[Panel]int),
		FilterInput:     ti,
		MaxRetries:      syncengine.DefaultMaxRetries,
		keys:            defaultKeyMap(),
		help:            help.New(),
		spinner:         sp,
		RefreshInterval: interval,
		Version:         version,
	}
}

// Close stops the status subscription.
func (m Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.fetchData(),
		m.scheduleTick(),
		m.waitForStatus(),
		m.spinner.Tick,
	)
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.Filtering {
			return m.handleFilterKey(msg)
		}
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case TickMsg:
		return m, tea.Batch(m.fetchData(), m.scheduleTick())

	case StatusMsg:
		prev := m.Status
		m.Status = syncstatus.Status(msg)
		cmds := []tea.Cmd{m.waitForStatus()}
		// A finished cycle changes the data underneath us.
		if prev.IsSyncing && !m.Status.IsSyncing {
			cmds = append(cmds, m.fetchData())
		}
		return m, tea.Batch(cmds...)

	case RefreshDataMsg:
		m.Splits = msg.Splits
		m.Stuck = msg.Stuck
		m.History = msg.History
		m.Err = msg.Err
		m.LastRefresh = msg.Timestamp
		m.clampCursors()
		return m, nil

	case SyncDoneMsg:
		m.Syncing = false
		m.LastResult = msg.Result
		if msg.Err != nil {
			m.Err = msg.Err
		}
		return m, m.fetchData()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// handleKey processes key input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.ShowHelp = !m.ShowHelp
		m.help.ShowAll = m.ShowHelp
		return m, nil

	case key.Matches(msg, m.keys.NextPanel):
		m.ActivePanel = (m.ActivePanel + 1) % panelCount
		return m, nil

	case key.Matches(msg, m.keys.PrevPanel):
		m.ActivePanel = (m.ActivePanel + panelCount - 1) % panelCount
		return m, nil

	case key.Matches(msg, m.keys.Down):
		if m.Cursor[m.ActivePanel] < m.rowCount(m.ActivePanel)-1 {
			m.Cursor[m.ActivePanel]++
		}
		return m, nil

	case key.Matches(msg, m.keys.Up):
		if m.Cursor[m.ActivePanel] > 0 {
			m.Cursor[m.ActivePanel]--
		}
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		return m, m.fetchData()

	case key.Matches(msg, m.keys.Sync):
		if m.Syncing {
			return m, nil
		}
		m.Syncing = true
		return m, m.runSync()

	case key.Matches(msg, m.keys.Filter):
		m.Filtering = true
		m.ActivePanel = PanelSplits
		cmd := m.FilterInput.Focus()
		return m, cmd

	case key.Matches(msg, m.keys.ClearFilter):
		m.FilterInput.SetValue("")
		m.clampCursors()
		return m, nil
	}

	return m, nil
}

// handleFilterKey routes keys to the filter input until enter or esc.
func (m Model) handleFilterKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		m.Filtering = false
		m.FilterInput.Blur()
		return m, nil
	case tea.KeyEsc:
		m.Filtering = false
		m.FilterInput.Blur()
		m.FilterInput.SetValue("")
		m.clampCursors()
		return m, nil
	case tea.KeyCtrlC:
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.FilterInput, cmd = m.FilterInput.Update(msg)
	m.Cursor[PanelSplits] = 0
	return m, cmd
}

// VisibleSplits returns the splits that match the current filter.
func (m Model) VisibleSplits() []models.Envelope {
	filter := m.FilterInput.Value()
	if filter == "" {
		return m.Splits
	}
	var out []models.Envelope
	for _, env := range m.Splits {
		if matchesFilter(env, filter) {
			out = append(out, env)
		}
	}
	return out
}

func (m Model) rowCount(p Panel) int {
	switch p {
	case PanelActivity:
		return len(m.Stuck) + len(m.History)
	default:
		return len(m.VisibleSplits())
	}
}

func (m Model) clampCursors() {
	for p := Panel(0); p < panelCount; p++ {
		n := m.rowCount(p)
		switch {
		case n == 0:
			m.Cursor[p] = 0
		case m.Cursor[p] >= n:
			m.Cursor[p] = n - 1
		}
	}
}

// View implements tea.Model
func (m Model) View() string {
	return m.renderView()
}

// scheduleTick returns a command that sends a TickMsg after the refresh interval
func (m Model) scheduleTick() tea.Cmd {
	return tea.Tick(m.RefreshInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// fetchData returns a command that fetches all data and sends a RefreshDataMsg
func (m Model) fetchData() tea.Cmd {
	return func() tea.Msg {
		return FetchData(m.ctx, m.src)
	}
}

// waitForStatus blocks until the engine publishes a new status.
func (m Model) waitForStatus() tea.Cmd {
	ch := m.statusCh
	ctx := m.ctx
	return func() tea.Msg {
		select {
		case st := <-ch:
			return StatusMsg(st)
		case <-ctx.Done():
			return nil
		}
	}
}

func (m Model) runSync() tea.Cmd {
	return func() tea.Msg {
		res, err := m.src.ForceSync(m.ctx)
		return SyncDoneMsg{Result: res, Err: err}
	}
}
