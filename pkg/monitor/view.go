package monitor

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/azula9713/yae-their-share/internal/db"
	"github.com/azula9713/yae-their-share/internal/models"
)

// renderView renders the complete TUI view
func (m Model) renderView() string {
	if m.Width == 0 || m.Height == 0 {
		return "Loading..."
	}

	// Handle small terminal sizes gracefully
	if m.Width < MinWidth || m.Height < MinHeight {
		return m.renderCompact()
	}

	header := m.renderHeader()
	footer := m.renderFooter()

	available := m.Height - lipgloss.Height(header) - lipgloss.Height(footer)
	splitsHeight := available * 3 / 5
	activityHeight := available - splitsHeight

	panels := lipgloss.JoinVertical(lipgloss.Left,
		m.renderSplitsPanel(splitsHeight),
		m.renderActivityPanel(activityHeight),
	)

	return lipgloss.JoinVertical(lipgloss.Left, header, panels, footer)
}

// renderCompact renders a minimal view for small terminals
func (m Model) renderCompact() string {
	var s strings.Builder
	s.WriteString("splitsync monitor (resize for full view)\n\n")
	s.WriteString(fmt.Sprintf("State: %s  %s\n", formatState(m.Status.State), m.connectivity()))
	s.WriteString(fmt.Sprintf("Splits: %d | Pending: %d | Stuck: %d\n",
		len(m.Splits), m.Status.PendingOperations, m.Status.StuckOperations))
	s.WriteString("\nq:quit s:sync ?:help")
	return s.String()
}

func (m Model) connectivity() string {
	if m.Status.IsOnline {
		return syncedBadge.Render("online")
	}
	return warningTextStyle.Render("offline")
}

// renderHeader renders the status bar and, when present, the status error.
func (m Model) renderHeader() string {
	parts := []string{titleStyle.Render("splitsync monitor")}
	if m.Version != "" {
		parts = append(parts, subtleStyle.Render(m.Version))
	}

	state := formatState(m.Status.State)
	if m.Status.IsSyncing || m.Syncing {
		state = m.spinner.View() + " " + state
	}
	parts = append(parts, state, m.connectivity())

	pending := fmt.Sprintf("pending %d", m.Status.PendingOperations)
	if m.Status.StuckOperations > 0 {
		pending += errorTextStyle.Render(fmt.Sprintf(" (%d stuck)", m.Status.StuckOperations))
	}
	parts = append(parts, pending)

	last := "never"
	if m.Status.LastSyncTime != nil {
		last = timeAgo(*m.Status.LastSyncTime)
	}
	parts = append(parts, subtleStyle.Render("last sync "+last))

	lines := []string{truncate(strings.Join(parts, "  "), m.Width)}
	if m.Status.Error != "" {
		lines = append(lines, truncate(errorTextStyle.Render("sync error: "+m.Status.Error), m.Width))
	}
	if m.Err != nil {
		lines = append(lines, truncate(errorTextStyle.Render("monitor: "+m.Err.Error()), m.Width))
	}
	return strings.Join(lines, "\n")
}

// renderSplitsPanel renders the cached splits with their sync badges
func (m Model) renderSplitsPanel(height int) string {
	var content strings.Builder

	if m.Filtering || m.FilterInput.Value() != "" {
		content.WriteString(m.FilterInput.View())
		content.WriteString("\n")
	}

	splits := m.VisibleSplits()
	if len(splits) == 0 {
		content.WriteString(subtleStyle.Render("No splits"))
		return m.wrapPanel(fmt.Sprintf("SPLITS (%d)", len(splits)), content.String(), height, PanelSplits)
	}

	rows := make([]string, len(splits))
	for i := range splits {
		rows[i] = formatSplitRow(&splits[i])
	}
	content.WriteString(m.renderRows(rows, PanelSplits, height-3))
	return m.wrapPanel(fmt.Sprintf("SPLITS (%d)", len(splits)), content.String(), height, PanelSplits)
}

// renderActivityPanel renders stuck operations followed by recent sync cycles
func (m Model) renderActivityPanel(height int) string {
	rows := make([]string, 0, len(m.Stuck)+len(m.History))
	for _, e := range m.Stuck {
		rows = append(rows, m.formatStuckRow(e))
	}
	for _, h := range m.History {
		rows = append(rows, formatHistoryRow(h))
	}
	if len(rows) == 0 {
		return m.wrapPanel("ACTIVITY", subtleStyle.Render("No sync activity yet"), height, PanelActivity)
	}
	return m.wrapPanel("ACTIVITY", m.renderRows(rows, PanelActivity, height-3), height, PanelActivity)
}

// renderRows windows rows around the panel cursor and highlights it.
func (m Model) renderRows(rows []string, panel Panel, visible int) string {
	if visible < 1 {
		visible = 1
	}
	cursor := m.Cursor[panel]
	start := 0
	if cursor >= visible {
		start = cursor - visible + 1
	}
	end := start + visible
	if end > len(rows) {
		end = len(rows)
	}

	var b strings.Builder
	for i := start; i < end; i++ {
		line := rows[i]
		if m.ActivePanel == panel && i == cursor {
			line = selectedRowStyle.Render("> " + line)
		} else {
			line = "  " + line
		}
		b.WriteString(line)
		if i < end-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (m Model) renderFooter() string {
	var line string
	if m.LastResult != nil {
		r := m.LastResult
		line = subtleStyle.Render(fmt.Sprintf("last manual sync: pushed %d, pulled %d, conflicts %d in %s",
			r.Pushed, r.Pulled, r.Conflicts, r.Duration.Round(time.Millisecond)))
		line += "\n"
	}
	return line + m.help.View(m.keys)
}

// wrapPanel wraps content in a bordered panel
func (m Model) wrapPanel(title, content string, height int, panel Panel) string {
	style := panelStyle
	if m.ActivePanel == panel {
		style = activePanelStyle
	}

	titleStr := panelTitleStyle.Render(title)
	contentWidth := m.Width - 4 // Account for border and padding

	lines := strings.Split(content, "\n")
	contentHeight := height - 3 // Title + border
	if contentHeight < 1 {
		contentHeight = 1
	}
	for len(lines) < contentHeight {
		lines = append(lines, "")
	}
	if len(lines) > contentHeight {
		lines = lines[:contentHeight]
	}
	for i, line := range lines {
		lines[i] = truncate(line, contentWidth)
	}

	inner := lipgloss.JoinVertical(lipgloss.Left, titleStr, strings.Join(lines, "\n"))
	return style.Width(m.Width - 2).Render(inner)
}

func formatSplitRow(env *models.Envelope) string {
	badge := syncedBadge.Render("synced")
	switch {
	case env.HasConflict():
		badge = conflictBadge.Render("conflict")
	case env.PendingSync:
		badge = pendingBadge.Render("pending")
	}
	return fmt.Sprintf("%-8s %s  %s  %s  %s",
		badge,
		titleStyle.Render(env.Name),
		amountStyle.Render(fmt.Sprintf("%.2f", env.Total())),
		subtleStyle.Render(fmt.Sprintf("%dp", len(env.Participants))),
		subtleStyle.Render(env.SplitID))
}

func (m Model) formatStuckRow(e models.OperationEntry) string {
	kind := "?"
	if e.Op != nil {
		kind = string(e.Op.Kind())
	}
	reason := fmt.Sprintf("retries %d/%d", e.RetryCount, m.MaxRetries)
	if e.FailureKind == models.FailureAuthorization {
		reason = "not authorized"
	}
	return fmt.Sprintf("%s %s %s  %s  %s",
		errorTextStyle.Render("stuck"),
		kind, e.EntityID(), warningTextStyle.Render(reason), subtleStyle.Render(e.LastError))
}

func formatHistoryRow(h db.SyncHistoryEntry) string {
	outcome := syncedBadge.Render("ok   ")
	if h.Error != "" {
		outcome = errorTextStyle.Render("error")
	}
	line := fmt.Sprintf("%s %s  ↑%d ↓%d", timestampStyle.Render(h.StartedAt.Local().Format("15:04:05")),
		outcome, h.Pushed, h.Pulled)
	if h.PushFailed > 0 {
		line += warningTextStyle.Render(fmt.Sprintf(" ✗%d", h.PushFailed))
	}
	if h.Conflicts > 0 {
		line += conflictBadge.Render(fmt.Sprintf(" ⚡%d", h.Conflicts))
	}
	line += subtleStyle.Render("  " + h.Duration.Round(time.Millisecond).String())
	if h.Error != "" {
		line += "  " + errorTextStyle.Render(h.Error)
	}
	return line
}

// truncate shortens s to width cells, keeping ANSI styling intact.
func truncate(s string, width int) string {
	if width <= 0 || lipgloss.Width(s) <= width {
		return s
	}
	return ansi.Truncate(s, width, "…")
}

func timeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return t.Local().Format("2006-01-02 15:04")
	}
}
