// Package output provides styled terminal output helpers (success, error,
// warning, split and sync status formatting) using lipgloss.
package output

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	json "github.com/goccy/go-json"

	"github.com/azula9713/yae-their-share/internal/models"
	"github.com/azula9713/yae-their-share/internal/syncstatus"
)

var (
	// Styles
	titleStyle   = lipgloss.NewStyle().Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	amountStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	stateStyles  = map[syncstatus.State]lipgloss.Style{
		syncstatus.StateIdle:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		syncstatus.StateSyncing: lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
		syncstatus.StateError:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

// Success prints a success message
func Success(format string, args ...interface{}) {
	fmt.Println(successStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error message
func Error(format string, args ...interface{}) {
	fmt.Println(errorStyle.Render("ERROR: " + fmt.Sprintf(format, args...)))
}

// Warning prints a warning message
func Warning(format string, args ...interface{}) {
	fmt.Println(warningStyle.Render("Warning: " + fmt.Sprintf(format, args...)))
}

// Info prints an info message
func Info(format string, args ...interface{}) {
	fmt.Println(fmt.Sprintf(format, args...))
}

// JSON outputs data as JSON
func JSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// Error codes for structured JSON output
const (
	ErrCodeNotFound      = "not_found"
	ErrCodeInvalidInput  = "invalid_input"
	ErrCodeConflict      = "conflict"
	ErrCodeDatabaseError = "database_error"
	ErrCodeNotLoggedIn   = "not_logged_in"
	ErrCodeOffline       = "offline"
)

// JSONError outputs an error as JSON
func JSONError(code, message string) {
	data, _ := json.Marshal(map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
	fmt.Println(string(data))
}

// FormatAmount formats a money amount with two decimals.
func FormatAmount(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

// SyncBadge returns the local sync marker of a split: "[conflict]",
// "[pending]" or "" when the split matches the last synced copy.
func SyncBadge(env *models.Envelope) string {
	switch {
	case env.HasConflict():
		return errorStyle.Render("[conflict]")
	case env.PendingSync:
		return warningStyle.Render("[pending]")
	default:
		return ""
	}
}

// FormatSplitShort formats a split in one line
func FormatSplitShort(env *models.Envelope) string {
	parts := []string{
		titleStyle.Render(env.SplitID),
		env.Name,
		amountStyle.Render(FormatAmount(env.Total())),
		subtleStyle.Render(fmt.Sprintf("%dp/%de", len(env.Participants), len(env.Expenses))),
	}
	if env.IsPrivate {
		parts = append(parts, subtleStyle.Render("private"))
	}
	if badge := SyncBadge(env); badge != "" {
		parts = append(parts, badge)
	}
	return strings.Join(parts, "  ")
}

// FormatSplitDeleted formats a deleted split showing [deleted] instead of the sync badge
func FormatSplitDeleted(env *models.Envelope) string {
	parts := []string{
		titleStyle.Render(env.SplitID),
		env.Name,
		amountStyle.Render(FormatAmount(env.Total())),
		errorStyle.Render("[deleted]"),
	}
	if env.DeletedAt != nil {
		parts = append(parts, subtleStyle.Render(FormatTimeAgo(*env.DeletedAt)))
	}
	if env.PendingSync {
		parts = append(parts, warningStyle.Render("[pending]"))
	}
	return strings.Join(parts, "  ")
}

// FormatSplitLong formats a split with participants, expenses, balances and
// sync bookkeeping.
func FormatSplitLong(env *models.Envelope) string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render(fmt.Sprintf("%s: %s", env.SplitID, env.Name)))
	sb.WriteString("\n")
	if env.Date != nil {
		sb.WriteString(fmt.Sprintf("Date: %s\n", env.Date.Format("2006-01-02")))
	}
	sb.WriteString(fmt.Sprintf("Owner: %s", env.CreatedBy))
	if env.IsPrivate {
		sb.WriteString(" | Private")
	}
	sb.WriteString(fmt.Sprintf(" | Total: %s\n", amountStyle.Render(FormatAmount(env.Total()))))

	if len(env.Participants) > 0 {
		sb.WriteString(SectionHeader("participants"))
		for _, p := range env.Participants {
			sb.WriteString(fmt.Sprintf("  %s %s\n", p.Name, subtleStyle.Render("("+p.ParticipantID+")")))
		}
	}

	if len(env.Expenses) > 0 {
		sb.WriteString(SectionHeader("expenses"))
		for _, e := range env.Expenses {
			payer := e.PaidBy
			if p := env.Participant(e.PaidBy); p != nil {
				payer = p.Name
			}
			desc := e.Description
			if desc == "" {
				desc = e.ExpenseID
			}
			sb.WriteString(fmt.Sprintf("  %s  %s paid by %s, split %d ways\n",
				amountStyle.Render(FormatAmount(e.Amount)), desc, payer, len(e.SplitBetween)))
		}

		sb.WriteString(SectionHeader("balances"))
		for _, line := range BalanceLines(env.Split) {
			sb.WriteString("  " + line + "\n")
		}
	}

	sb.WriteString(SectionHeader("sync"))
	badge := SyncBadge(env)
	if badge == "" {
		badge = successStyle.Render("[synced]")
	}
	sb.WriteString(fmt.Sprintf("  %s version %d", badge, env.SyncVersion))
	if env.LastSyncedAt != nil {
		sb.WriteString(fmt.Sprintf(", last synced %s", FormatTimeAgo(*env.LastSyncedAt)))
	}
	sb.WriteString("\n")
	if env.ConflictData != nil {
		sb.WriteString(fmt.Sprintf("  remote version: %q updated %s\n",
			env.ConflictData.Name, FormatTimeAgo(env.ConflictData.UpdatedAt)))
	}

	return sb.String()
}

// Balances returns each participant's net position: paid minus owed share.
// Positive means the participant is owed money.
func Balances(s models.Split) map[string]float64 {
	out := make(map[string]float64, len(s.Participants))
	for _, p := range s.Participants {
		out[p.ParticipantID] = 0
	}
	for _, e := range s.Expenses {
		if len(e.SplitBetween) == 0 {
			continue
		}
		out[e.PaidBy] += e.Amount
		share := e.Amount / float64(len(e.SplitBetween))
		for _, id := range e.SplitBetween {
			out[id] -= share
		}
	}
	return out
}

// BalanceLines renders Balances sorted by participant name.
func BalanceLines(s models.Split) []string {
	balances := Balances(s)
	ids := make([]string, 0, len(balances))
	for id := range balances {
		ids = append(ids, id)
	}
	name := func(id string) string {
		if p := s.Participant(id); p != nil {
			return p.Name
		}
		return id
	}
	sort.Slice(ids, func(i, j int) bool { return name(ids[i]) < name(ids[j]) })

	lines := make([]string, 0, len(ids))
	for _, id := range ids {
		b := balances[id]
		switch {
		case b > 0.005:
			lines = append(lines, fmt.Sprintf("%s is owed %s", name(id), FormatAmount(b)))
		case b < -0.005:
			lines = append(lines, fmt.Sprintf("%s owes %s", name(id), FormatAmount(-b)))
		default:
			lines = append(lines, fmt.Sprintf("%s is settled", name(id)))
		}
	}
	return lines
}

// FormatState formats an engine state with color
func FormatState(s syncstatus.State) string {
	style, ok := stateStyles[s]
	if !ok {
		return string(s)
	}
	return style.Render(fmt.Sprintf("[%s]", s))
}

// FormatSyncStatus renders a status snapshot as a few lines.
func FormatSyncStatus(st syncstatus.Status) string {
	var sb strings.Builder
	conn := successStyle.Render("online")
	if !st.IsOnline {
		conn = warningStyle.Render("offline")
	}
	sb.WriteString(fmt.Sprintf("State: %s  %s\n", FormatState(st.State), conn))
	last := "never"
	if st.LastSyncTime != nil {
		last = FormatTimeAgo(*st.LastSyncTime)
	}
	sb.WriteString(fmt.Sprintf("Last sync: %s\n", last))
	sb.WriteString(fmt.Sprintf("Pending operations: %d", st.PendingOperations))
	if st.StuckOperations > 0 {
		sb.WriteString(errorStyle.Render(fmt.Sprintf(" (%d stuck)", st.StuckOperations)))
	}
	sb.WriteString("\n")
	if st.Error != "" {
		sb.WriteString(errorStyle.Render("Error: "+st.Error) + "\n")
	}
	return sb.String()
}

// FormatOperation formats one operation log entry.
func FormatOperation(e models.OperationEntry, maxRetries int) string {
	kind := "?"
	if e.Op != nil {
		kind = string(e.Op.Kind())
	}
	parts := []string{
		subtleStyle.Render(fmt.Sprintf("#%d", e.ID)),
		kind,
		e.EntityID(),
		subtleStyle.Render(FormatTimeAgo(e.Timestamp)),
	}
	if e.RetryCount > 0 {
		parts = append(parts, fmt.Sprintf("retries=%d", e.RetryCount))
	}
	if e.Parked(maxRetries) {
		parts = append(parts, errorStyle.Render("[stuck]"))
	}
	if e.LastError != "" {
		parts = append(parts, warningStyle.Render(e.LastError))
	}
	return strings.Join(parts, "  ")
}

// FormatTimeAgo formats a time as a human-readable "ago" string
func FormatTimeAgo(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1m ago"
		}
		return fmt.Sprintf("%dm ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1h ago"
		}
		return fmt.Sprintf("%dh ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1d ago"
		}
		return fmt.Sprintf("%dd ago", days)
	default:
		return t.Format("2006-01-02")
	}
}

// SectionHeader returns a formatted section header for CLI output
// e.g., "\nEXPENSES:\n"
func SectionHeader(title string) string {
	return fmt.Sprintf("\n%s:\n", strings.ToUpper(title))
}

// IndentString indents each line in a string by the specified number of spaces
func IndentString(s string, spaces int) string {
	if s == "" {
		return ""
	}
	indent := strings.Repeat(" ", spaces)
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = indent + line
	}
	return strings.Join(lines, "\n")
}
