package models

import (
	"time"

	json "github.com/goccy/go-json"
)

// Participant is a member of a split
type Participant struct {
	ParticipantID string `json:"participantId" validate:"required"`
	Name          string `json:"name" validate:"required,max=100"`
}

// Expense is a single cost shared by some participants of a split
type Expense struct {
	ExpenseID    string   `json:"expenseId" validate:"required"`
	Amount       float64  `json:"amount" validate:"gte=0"`
	Description  string   `json:"description" validate:"max=500"`
	PaidBy       string   `json:"paidBy" validate:"required"`
	SplitBetween []string `json:"splitBetween" validate:"required,min=1,dive,required"`
}

// Split is the shared-expense aggregate and the unit of synchronization.
// CreatedBy is the owning user.
type Split struct {
	SplitID      string        `json:"splitId" validate:"required,max=64"`
	Name         string        `json:"name" validate:"required,max=200"`
	Date         *time.Time    `json:"date,omitempty"`
	Participants []Participant `json:"participants" validate:"dive"`
	Expenses     []Expense     `json:"expenses" validate:"dive"`
	IsPrivate    bool          `json:"isPrivate"`
	CreatedBy    string        `json:"createdBy" validate:"required"`
	UpdatedBy    string        `json:"updatedBy,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
	IsDeleted    bool          `json:"isDeleted"`
	DeletedAt    *time.Time    `json:"deletedAt,omitempty"`
}

// OwnerID returns the user that owns the split.
func (s Split) OwnerID() string {
	return s.CreatedBy
}

// Total returns the sum of all expense amounts.
func (s Split) Total() float64 {
	var total float64
	for _, e := range s.Expenses {
		total += e.Amount
	}
	return total
}

// Participant returns the participant with the given id, or nil.
func (s Split) Participant(id string) *Participant {
	for i := range s.Participants {
		if s.Participants[i].ParticipantID == id {
			return &s.Participants[i]
		}
	}
	return nil
}

// UTC returns a copy of the split with every timestamp normalized to UTC.
func (s Split) UTC() Split {
	out := s
	out.CreatedAt = s.CreatedAt.UTC()
	out.UpdatedAt = s.UpdatedAt.UTC()
	out.Date = utcPtr(s.Date)
	out.DeletedAt = utcPtr(s.DeletedAt)
	return out
}

// ContentEqual reports whether two splits carry the same content, ignoring
// time zone representation.
func (s Split) ContentEqual(o Split) bool {
	a, err := json.Marshal(s.canonical())
	if err != nil {
		return false
	}
	b, err := json.Marshal(o.canonical())
	if err != nil {
		return false
	}
	return string(a) == string(b)
}

func (s Split) canonical() Split {
	out := s.UTC()
	if out.Participants == nil {
		out.Participants = []Participant{}
	}
	if out.Expenses == nil {
		out.Expenses = []Expense{}
	}
	return out
}

// Clone returns a deep copy of the split.
func (s Split) Clone() Split {
	out := s
	out.Date = copyTime(s.Date)
	out.DeletedAt = copyTime(s.DeletedAt)
	if s.Participants != nil {
		out.Participants = append([]Participant(nil), s.Participants...)
	}
	if s.Expenses != nil {
		out.Expenses = make([]Expense, len(s.Expenses))
		for i, e := range s.Expenses {
			e.SplitBetween = append([]string(nil), e.SplitBetween...)
			out.Expenses[i] = e
		}
	}
	return out
}

// Envelope wraps a split with local sync bookkeeping
type Envelope struct {
	Split
	PendingSync     bool       `json:"pendingSync"`
	LocallyModified bool       `json:"locallyModified"`
	LastSyncedAt    *time.Time `json:"lastSyncedAt,omitempty"`
	SyncVersion     int64      `json:"syncVersion"`
	ConflictData    *Split     `json:"conflictData,omitempty"`
}

// HasConflict reports whether a remote snapshot is awaiting manual resolution.
func (e Envelope) HasConflict() bool {
	return e.ConflictData != nil
}

// SplitPatch holds a partial update to a split. Nil fields are left as-is.
type SplitPatch struct {
	Name         *string
	Date         *time.Time
	ClearDate    bool
	Participants *[]Participant
	Expenses     *[]Expense
	IsPrivate    *bool
	UpdatedBy    string
}

// Apply merges the patch into s.
func (p SplitPatch) Apply(s *Split) {
	if p.Name != nil {
		s.Name = *p.Name
	}
	if p.ClearDate {
		s.Date = nil
	} else if p.Date != nil {
		d := *p.Date
		s.Date = &d
	}
	if p.Participants != nil {
		s.Participants = append([]Participant(nil), (*p.Participants)...)
	}
	if p.Expenses != nil {
		s.Expenses = append([]Expense(nil), (*p.Expenses)...)
	}
	if p.IsPrivate != nil {
		s.IsPrivate = *p.IsPrivate
	}
	if p.UpdatedBy != "" {
		s.UpdatedBy = p.UpdatedBy
	}
}

// IsEmpty reports whether the patch changes nothing.
func (p SplitPatch) IsEmpty() bool {
	return p.Name == nil && p.Date == nil && !p.ClearDate && p.Participants == nil &&
		p.Expenses == nil && p.IsPrivate == nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
