package models

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidSplit wraps every validation failure returned by ValidateSplit.
var ErrInvalidSplit = errors.New("invalid split")

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validator returns the shared validator instance.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidateSplit checks field constraints and that every expense references
// participants of the same split.
func ValidateSplit(s *Split) error {
	var problems []string

	if err := Validator().Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %v", ErrInvalidSplit, err)
		}
		for _, fe := range verrs {
			problems = append(problems, describeFieldError(fe))
		}
	}

	seen := make(map[string]bool, len(s.Participants))
	for _, p := range s.Participants {
		if seen[p.ParticipantID] {
			problems = append(problems, fmt.Sprintf("duplicate participant %s", p.ParticipantID))
		}
		seen[p.ParticipantID] = true
	}
	for _, e := range s.Expenses {
		if e.PaidBy != "" && !seen[e.PaidBy] {
			problems = append(problems, fmt.Sprintf("expense %s: payer %s is not a participant", e.ExpenseID, e.PaidBy))
		}
		for _, ref := range e.SplitBetween {
			if ref != "" && !seen[ref] {
				problems = append(problems, fmt.Sprintf("expense %s: %s is not a participant", e.ExpenseID, ref))
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidSplit, strings.Join(problems, "; "))
	}
	return nil
}

func describeFieldError(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s needs at least %s entries", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s long", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be >= %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}
