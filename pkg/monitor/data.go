package monitor

import (
	"context"
	"errors"
	"time"
)

// historyRows is how many sync cycles the activity panel shows.
const historyRows = 50

// FetchData retrieves all data needed for the monitor display. The first
// error is reported but does not hide the data that did load.
func FetchData(ctx context.Context, src Source) RefreshDataMsg {
	msg := RefreshDataMsg{Timestamp: time.Now()}

	var errs []error
	splits, err := src.Splits(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	msg.Splits = splits

	stuck, err := src.StuckOperations(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	msg.Stuck = stuck

	history, err := src.History(ctx, historyRows)
	if err != nil {
		errs = append(errs, err)
	}
	msg.History = history

	msg.Err = errors.Join(errs...)
	return msg
}
