package output

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"

	"github.com/azula9713/yae-their-share/internal/models"
)

const (
	defaultMarkdownWidth = 80
	minMarkdownWidth     = 20
)

// TerminalWidth returns the current terminal width or a fallback when unavailable.
func TerminalWidth(fallback int) int {
	if fallback <= 0 {
		fallback = defaultMarkdownWidth
	}

	if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 {
		return width
	}

	if cols := os.Getenv("COLUMNS"); cols != "" {
		if parsed, err := strconv.Atoi(cols); err == nil && parsed > 0 {
			return parsed
		}
	}

	return fallback
}

// RenderMarkdown renders markdown using Glamour with terminal-aware wrapping.
func RenderMarkdown(text string) (string, error) {
	return RenderMarkdownWithWidth(text, TerminalWidth(defaultMarkdownWidth))
}

// RenderMarkdownWithWidth renders markdown using Glamour with explicit wrapping.
func RenderMarkdownWithWidth(text string, width int) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	if width < minMarkdownWidth {
		width = minMarkdownWidth
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", err
	}

	rendered, err := renderer.Render(text)
	if err != nil {
		return "", err
	}

	return strings.TrimRight(rendered, "\n"), nil
}

// SplitMarkdown renders a split as a markdown document with an expense table
// and the balance summary.
func SplitMarkdown(s models.Split) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", s.Name)
	if s.Date != nil {
		fmt.Fprintf(&sb, "_%s_\n\n", s.Date.Format("Monday, 2 January 2006"))
	}
	if len(s.Expenses) == 0 {
		sb.WriteString("No expenses yet.\n")
		return sb.String()
	}

	sb.WriteString("| Expense | Paid by | Amount | Shared by |\n")
	sb.WriteString("|---|---|---:|---|\n")
	name := func(id string) string {
		if p := s.Participant(id); p != nil {
			return p.Name
		}
		return id
	}
	for _, e := range s.Expenses {
		desc := e.Description
		if desc == "" {
			desc = e.ExpenseID
		}
		shared := make([]string, len(e.SplitBetween))
		for i, id := range e.SplitBetween {
			shared[i] = name(id)
		}
		fmt.Fprintf(&sb, "| %s | %s | %s | %s |\n", escapeCell(desc), escapeCell(name(e.PaidBy)),
			FormatAmount(e.Amount), escapeCell(strings.Join(shared, ", ")))
	}
	fmt.Fprintf(&sb, "\n**Total:** %s\n\n## Balances\n\n", FormatAmount(s.Total()))
	for _, line := range BalanceLines(s) {
		fmt.Fprintf(&sb, "- %s\n", line)
	}
	return sb.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
