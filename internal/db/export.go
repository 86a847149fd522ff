package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/azula9713/yae-their-share/internal/models"
)

// ExportVersion is the format version written by Export.
const ExportVersion = 1

// ErrExportVersion is returned when importing a dump of an unknown version.
var ErrExportVersion = errors.New("unsupported export version")

// Dump is a JSON backup of the local cache.
type Dump struct {
	Version    int                     `json:"version"`
	ExportedAt time.Time               `json:"exportedAt"`
	Splits     []models.Envelope       `json:"splits"`
	Operations []models.OperationEntry `json:"operations"`
}

// Export returns every split, deleted ones included, and every incomplete
// operation.
func (s *Store) Export(ctx context.Context) (*Dump, error) {
	d := &Dump{Version: ExportVersion, ExportedAt: s.clock()}
	err := s.view(ctx, func(tx *Tx) error {
		var err error
		if d.Splits, err = tx.listWhere("1 = 1 ORDER BY id ASC"); err != nil {
			return err
		}
		d.Operations, err = tx.operationsWhere("completed = 0 ORDER BY timestamp ASC, id ASC")
		return err
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Import restores a dump. Splits are upserted as stored; incomplete
// operations are re-enqueued with a fresh retry count, keeping their order.
// Returns the number of splits and operations written.
func (s *Store) Import(ctx context.Context, d *Dump) (splits, ops int, err error) {
	if d.Version != ExportVersion {
		return 0, 0, fmt.Errorf("import version %d: %w", d.Version, ErrExportVersion)
	}
	err = s.Mutate(ctx, func(tx *Tx) error {
		for i := range d.Splits {
			if err := tx.Put(&d.Splits[i]); err != nil {
				return err
			}
			splits++
		}
		for _, e := range d.Operations {
			if e.Op == nil {
				continue
			}
			if _, err := tx.Enqueue(e.Op, e.OwnerID); err != nil {
				return err
			}
			ops++
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return splits, ops, nil
}
