package monitor

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/azula9713/yae-their-share/internal/syncstatus"
)

var (
	// Base colors
	primaryColor = lipgloss.Color("212")
	mutedColor   = lipgloss.Color("241")
	successColor = lipgloss.Color("42")
	warningColor = lipgloss.Color("214")
	errorColor   = lipgloss.Color("196")
	infoColor    = lipgloss.Color("45")

	// Panel styles
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	activePanelStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(primaryColor).
				Padding(0, 1)

	panelTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Background(lipgloss.Color("237")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1)

	// Text styles
	titleStyle       = lipgloss.NewStyle().Bold(true)
	subtleStyle      = lipgloss.NewStyle().Foreground(mutedColor)
	timestampStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	selectedRowStyle = lipgloss.NewStyle().Background(lipgloss.Color("237"))
	amountStyle      = lipgloss.NewStyle().Foreground(primaryColor)
	errorTextStyle   = lipgloss.NewStyle().Foreground(errorColor)
	warningTextStyle = lipgloss.NewStyle().Foreground(warningColor)

	stateStyles = map[syncstatus.State]lipgloss.Style{
		syncstatus.StateIdle:    lipgloss.NewStyle().Foreground(successColor),
		syncstatus.StateSyncing: lipgloss.NewStyle().Foreground(infoColor),
		syncstatus.StateError:   lipgloss.NewStyle().Foreground(errorColor).Bold(true),
	}

	// Sync badges
	pendingBadge  = lipgloss.NewStyle().Foreground(warningColor)
	conflictBadge = lipgloss.NewStyle().Foreground(errorColor)
	syncedBadge   = lipgloss.NewStyle().Foreground(successColor)
)

// formatState renders an engine state with color
func formatState(s syncstatus.State) string {
	style, ok := stateStyles[s]
	if !ok {
		return string(s)
	}
	return style.Render(string(s))
}
