package monitor

import (
	"context"
	"strings"
	"time"

	"github.com/azula9713/yae-their-share/internal/db"
	"github.com/azula9713/yae-their-share/internal/models"
	"github.com/azula9713/yae-their-share/internal/syncengine"
	"github.com/azula9713/yae-their-share/internal/syncstatus"
)

// Panel represents which panel is active
type Panel int

const (
	PanelSplits Panel = iota
	PanelActivity
	panelCount
)

func (p Panel) String() string {
	switch p {
	case PanelActivity:
		return "activity"
	default:
		return "splits"
	}
}

// Source is what the monitor observes. *syncengine.Engine satisfies it.
type Source interface {
	Status() syncstatus.Status
	Subscribe(fn func(syncstatus.Status)) func()
	Splits(ctx context.Context) ([]models.Envelope, error)
	StuckOperations(ctx context.Context) ([]models.OperationEntry, error)
	History(ctx context.Context, n int) ([]db.SyncHistoryEntry, error)
	ForceSync(ctx context.Context) (*syncengine.Result, error)
}

var _ Source = (*syncengine.Engine)(nil)

// TickMsg triggers a data refresh
type TickMsg time.Time

// StatusMsg carries a status snapshot published by the engine.
type StatusMsg syncstatus.Status

// RefreshDataMsg carries refreshed data
type RefreshDataMsg struct {
	Splits    []models.Envelope
	Stuck     []models.OperationEntry
	History   []db.SyncHistoryEntry
	Err       error
	Timestamp time.Time
}

// SyncDoneMsg reports the end of a sync started from the monitor.
type SyncDoneMsg struct {
	Result *syncengine.Result
	Err    error
}

// matchesFilter reports whether a split matches a case-insensitive filter on
// its id, name or participant names.
func matchesFilter(env models.Envelope, filter string) bool {
	filter = strings.ToLower(strings.TrimSpace(filter))
	if filter == "" {
		return true
	}
	if strings.Contains(strings.ToLower(env.SplitID), filter) ||
		strings.Contains(strings.ToLower(env.Name), filter) {
		return true
	}
	for _, p := range env.Participants {
		if strings.Contains(strings.ToLower(p.Name), filter) {
			return true
		}
	}
	return false
}
