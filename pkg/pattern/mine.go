package pattern

import (
	"context"
	"log/slog"

	"github.com/go-errors/errors"

	"github.com/strrl/clusterlog/pkg/store"
)

// MineRun mines templates from the messages of a stored run, saves them
// and assigns every event to its template.
func MineRun(ctx context.Context, s store.Store, runID string) ([]Template, error) {
	events, err := s.QueryEvents(ctx, store.QueryOpts{RunID: runID})
	if err != nil {
		return nil, errors.Errorf("load events: %w", err)
	}

	miner, err := NewMiner()
	if err != nil {
		return nil, err
	}
	assignments := make([]store.EventTemplate, 0, len(events))
	for _, e := range events {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id, err := miner.Add(e.Message)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, store.EventTemplate{EventID: e.ID, TemplateID: id.String()})
	}

	templates := miner.Templates()
	rows := make([]store.Template, 0, len(templates))
	for _, t := range templates {
		rows = append(rows, store.Template{RunID: runID, TemplateID: t.ID.String(), Pattern: t.Pattern})
	}
	if err := s.ReplaceTemplates(ctx, runID, rows); err != nil {
		return nil, errors.Errorf("save templates: %w", err)
	}
	if err := s.AssignTemplates(ctx, assignments); err != nil {
		return nil, errors.Errorf("assign templates: %w", err)
	}
	slog.Info("mined templates", "run", runID, "events", len(events), "templates", len(templates))
	return templates, nil
}
