package scan

import (
	"context"
	"time"

	"github.com/go-errors/errors"
	"github.com/google/uuid"

	"github.com/strrl/clusterlog/pkg/store"
)

// Persist stores res as a new run and returns the run ID.
func Persist(ctx context.Context, s store.Store, res *Result, root string, startedAt time.Time) (string, error) {
	run := store.Run{
		ID:            uuid.NewString(),
		StartedAt:     startedAt,
		Root:          root,
		FilesSelected: res.FilesSelected,
		FilesFailed:   res.FilesFailed,
		Matches:       res.Matches,
		Unparsed:      res.Unparsed,
	}
	if err := s.InsertRun(ctx, run); err != nil {
		return "", errors.Errorf("save run: %w", err)
	}

	evs := res.Aggregator.Events()
	rows := make([]store.Event, 0, len(evs))
	for _, ev := range evs {
		rows = append(rows, store.Event{
			RunID:      run.ID,
			Time:       ev.Time,
			Host:       ev.Host,
			Pattern:    ev.Pattern.Source,
			Path:       ev.Path,
			LineNumber: ev.LineNumber,
			Message:    ev.Message,
		})
	}
	if err := s.InsertEvents(ctx, rows); err != nil {
		return "", errors.Errorf("save events: %w", err)
	}
	return run.ID, nil
}
