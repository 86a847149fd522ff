package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/azula9713/yae-their-share/internal/dateparse"
	"github.com/azula9713/yae-their-share/internal/input"
	"github.com/azula9713/yae-their-share/internal/models"
)

// buildParticipants turns names into participants. A name already present
// in existing keeps its id; others get fresh ids. Duplicate names are
// rejected since expenses refer to participants by name.
func buildParticipants(names []string, existing []models.Participant) ([]models.Participant, error) {
	seen := make(map[string]bool, len(names))
	out := make([]models.Participant, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("participant name is empty")
		}
		key := strings.ToLower(name)
		if seen[key] {
			return nil, fmt.Errorf("participant %q listed twice", name)
		}
		seen[key] = true
		id, err := participantID(existing, name)
		if err != nil {
			id = newShortID()
		}
		out = append(out, models.Participant{ParticipantID: id, Name: name})
	}
	return out, nil
}

// parseExpense parses AMOUNT:PAYER[:DESCRIPTION[:NAME,NAME...]]. Names are
// matched case-insensitively against participants. Without an explicit
// list the expense is shared by everyone.
func parseExpense(spec string, participants []models.Participant) (models.Expense, error) {
	parts := strings.SplitN(spec, ":", 4)
	if len(parts) < 2 {
		return models.Expense{}, fmt.Errorf("expense %q: want AMOUNT:PAYER[:DESCRIPTION[:NAMES]]", spec)
	}
	amount, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return models.Expense{}, fmt.Errorf("expense %q: invalid amount: %w", spec, err)
	}
	payer, err := participantID(participants, parts[1])
	if err != nil {
		return models.Expense{}, fmt.Errorf("expense %q: %w", spec, err)
	}

	e := models.Expense{ExpenseID: newShortID(), Amount: amount, PaidBy: payer}
	if len(parts) > 2 {
		e.Description = strings.TrimSpace(parts[2])
	}
	if len(parts) > 3 && strings.TrimSpace(parts[3]) != "" {
		for _, name := range strings.Split(parts[3], ",") {
			id, err := participantID(participants, name)
			if err != nil {
				return models.Expense{}, fmt.Errorf("expense %q: %w", spec, err)
			}
			e.SplitBetween = append(e.SplitBetween, id)
		}
	} else {
		for _, p := range participants {
			e.SplitBetween = append(e.SplitBetween, p.ParticipantID)
		}
	}
	return e, nil
}

func parseExpenses(specs []string, participants []models.Participant) ([]models.Expense, error) {
	out := make([]models.Expense, 0, len(specs))
	for _, spec := range specs {
		e, err := parseExpense(spec, participants)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func participantID(participants []models.Participant, name string) (string, error) {
	name = strings.TrimSpace(name)
	for _, p := range participants {
		if strings.EqualFold(p.Name, name) || p.ParticipantID == name {
			return p.ParticipantID, nil
		}
	}
	return "", fmt.Errorf("unknown participant %q", name)
}

func parseDate(s string) (*time.Time, error) {
	t, err := dateparse.Parse(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// flagLines returns the values of a repeatable flag with "-" and @file
// entries expanded, one value per line.
func flagLines(cmd *cobra.Command, name string, stdinUsed bool) ([]string, bool, error) {
	values, _ := cmd.Flags().GetStringArray(name)
	lines, used, err := input.ExpandFlagValues(values, cmd.InOrStdin(), stdinUsed)
	if err != nil {
		return nil, used, fmt.Errorf("--%s: %w", name, err)
	}
	return lines, used, nil
}

// readSplitFile decodes a split from a JSON file, or stdin for "-".
func readSplitFile(path string) (models.Split, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return models.Split{}, err
		}
		defer f.Close()
		r = f
	}
	var s models.Split
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return models.Split{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return s, nil
}

func newShortID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}
