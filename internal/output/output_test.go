package output

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/azula9713/yae-their-share/internal/models"
	"github.com/azula9713/yae-their-share/internal/syncstatus"
)

func testEnvelope() *models.Envelope {
	now := time.Now()
	return &models.Envelope{
		Split: models.Split{
			SplitID: "s1",
			Name:    "Dinner",
			Participants: []models.Participant{
				{ParticipantID: "p1", Name: "Ana"},
				{ParticipantID: "p2", Name: "Ben"},
				{ParticipantID: "p3", Name: "Cy"},
			},
			Expenses: []models.Expense{
				{ExpenseID: "e1", Amount: 30, Description: "pizza", PaidBy: "p1", SplitBetween: []string{"p1", "p2", "p3"}},
				{ExpenseID: "e2", Amount: 10, PaidBy: "p2", SplitBetween: []string{"p1", "p2"}},
			},
			CreatedBy: "u1",
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}

func TestFormatTimeAgo(t *testing.T) {
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{0, "just now"},
		{59 * time.Second, "just now"},
		{60 * time.Second, "1m ago"},
		{30 * time.Minute, "30m ago"},
		{60 * time.Minute, "1h ago"},
		{23 * time.Hour, "23h ago"},
		{24 * time.Hour, "1d ago"},
		{6 * 24 * time.Hour, "6d ago"},
	}
	for _, tc := range tests {
		got := FormatTimeAgo(time.Now().Add(-tc.ago))
		if got != tc.want {
			t.Errorf("FormatTimeAgo(-%v) = %q, want %q", tc.ago, got, tc.want)
		}
	}

	tm := time.Now().Add(-8 * 24 * time.Hour)
	if got := FormatTimeAgo(tm); got != tm.Format("2006-01-02") {
		t.Errorf("FormatTimeAgo(-8d) = %q, want date", got)
	}
}

func TestBalances(t *testing.T) {
	env := testEnvelope()
	b := Balances(env.Split)

	want := map[string]float64{
		"p1": 30 - 10 - 5,
		"p2": 10 - 10 - 5,
		"p3": -10,
	}
	for id, w := range want {
		if math.Abs(b[id]-w) > 1e-9 {
			t.Errorf("balance %s: got %v, want %v", id, b[id], w)
		}
	}

	var sum float64
	for _, v := range b {
		sum += v
	}
	if math.Abs(sum) > 1e-9 {
		t.Errorf("balances should sum to zero, got %v", sum)
	}
}

func TestBalanceLines(t *testing.T) {
	lines := BalanceLines(testEnvelope().Split)
	want := []string{"Ana is owed 15.00", "Ben owes 5.00", "Cy owes 10.00"}
	if len(lines) != len(want) {
		t.Fatalf("lines: got %d, want %d: %v", len(lines), len(want), lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d: got %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestFormatSplitShort(t *testing.T) {
	env := testEnvelope()
	got := FormatSplitShort(env)
	for _, want := range []string{"s1", "Dinner", "40.00", "3p/2e"} {
		if !strings.Contains(got, want) {
			t.Errorf("FormatSplitShort missing %q: %s", want, got)
		}
	}
	if strings.Contains(got, "[pending]") {
		t.Errorf("synced split should have no badge: %s", got)
	}

	env.PendingSync = true
	if got := FormatSplitShort(env); !strings.Contains(got, "[pending]") {
		t.Errorf("pending split should show badge: %s", got)
	}

	env.ConflictData = &models.Split{Name: "Remote dinner"}
	if got := FormatSplitShort(env); !strings.Contains(got, "[conflict]") {
		t.Errorf("conflicted split should show conflict badge: %s", got)
	}
}

func TestFormatSplitDeleted(t *testing.T) {
	env := testEnvelope()
	deleted := time.Now()
	env.IsDeleted = true
	env.DeletedAt = &deleted

	got := FormatSplitDeleted(env)
	if !strings.Contains(got, "[deleted]") || !strings.Contains(got, "just now") {
		t.Errorf("FormatSplitDeleted: %s", got)
	}
}

func TestFormatSplitLong(t *testing.T) {
	env := testEnvelope()
	env.SyncVersion = 3
	remoteAt := time.Now().Add(-2 * time.Hour)
	env.ConflictData = &models.Split{Name: "Remote dinner", UpdatedAt: remoteAt}

	got := FormatSplitLong(env)
	for _, want := range []string{
		"s1: Dinner",
		"Owner: u1",
		"PARTICIPANTS:",
		"pizza paid by Ana, split 3 ways",
		"e2 paid by Ben, split 2 ways",
		"BALANCES:",
		"Cy owes 10.00",
		"version 3",
		`remote version: "Remote dinner" updated 2h ago`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("FormatSplitLong missing %q:\n%s", want, got)
		}
	}
}

func TestFormatSyncStatus(t *testing.T) {
	last := time.Now().Add(-5 * time.Minute)
	got := FormatSyncStatus(syncstatus.Status{
		State:             syncstatus.StateError,
		IsOnline:          false,
		LastSyncTime:      &last,
		PendingOperations: 4,
		StuckOperations:   1,
		Error:             "push failed",
	})
	for _, want := range []string{"[error]", "offline", "5m ago", "Pending operations: 4", "(1 stuck)", "Error: push failed"} {
		if !strings.Contains(got, want) {
			t.Errorf("FormatSyncStatus missing %q:\n%s", want, got)
		}
	}

	got = FormatSyncStatus(syncstatus.Status{State: syncstatus.StateIdle, IsOnline: true})
	if !strings.Contains(got, "Last sync: never") || strings.Contains(got, "stuck") {
		t.Errorf("idle status:\n%s", got)
	}
}

func TestFormatOperation(t *testing.T) {
	e := models.OperationEntry{
		ID:          7,
		Op:          models.DeleteOp{SplitID: "s9"},
		Timestamp:   time.Now(),
		RetryCount:  4,
		LastError:   "connection refused",
		FailureKind: models.FailureTransport,
	}
	got := FormatOperation(e, 3)
	for _, want := range []string{"#7", "delete", "s9", "retries=4", "[stuck]", "connection refused"} {
		if !strings.Contains(got, want) {
			t.Errorf("FormatOperation missing %q: %s", want, got)
		}
	}
	if got := FormatOperation(e, 10); strings.Contains(got, "[stuck]") {
		t.Errorf("entry under the retry limit should not be stuck: %s", got)
	}
}

func TestSectionHeader(t *testing.T) {
	if got := SectionHeader("expenses"); got != "\nEXPENSES:\n" {
		t.Errorf("SectionHeader = %q", got)
	}
}

func TestIndentString(t *testing.T) {
	if got := IndentString("a\nb", 2); got != "  a\n  b" {
		t.Errorf("IndentString = %q", got)
	}
	if got := IndentString("", 2); got != "" {
		t.Errorf("IndentString empty = %q", got)
	}
}
