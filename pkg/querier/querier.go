package querier

import (
	"context"

	"github.com/go-errors/errors"

	"github.com/strrl/clusterlog/pkg/store"
)

// Querier provides a high-level interface over stored runs. An empty run
// ID always means the latest run.
type Querier struct {
	store store.Store
}

// NewQuerier creates a new Querier backed by the given store.
func NewQuerier(s store.Store) *Querier {
	return &Querier{store: s}
}

// ResolveRun returns runID, or the latest run's ID when runID is empty.
func (q *Querier) ResolveRun(ctx context.Context, runID string) (string, error) {
	if runID != "" {
		return runID, nil
	}
	run, err := q.store.LatestRun(ctx)
	if err != nil {
		return "", errors.Errorf("resolve latest run: %w", err)
	}
	return run.ID, nil
}

// Runs returns stored runs, newest first.
func (q *Querier) Runs(ctx context.Context) ([]store.Run, error) {
	return q.store.Runs(ctx)
}

// Search returns events matching opts within the resolved run.
func (q *Querier) Search(ctx context.Context, opts store.QueryOpts) ([]store.Event, error) {
	runID, err := q.ResolveRun(ctx, opts.RunID)
	if err != nil {
		return nil, err
	}
	opts.RunID = runID
	return q.store.QueryEvents(ctx, opts)
}

// ByTemplate returns the events of a run assigned to templateID.
func (q *Querier) ByTemplate(ctx context.Context, runID, templateID string) ([]store.Event, error) {
	return q.Search(ctx, store.QueryOpts{RunID: runID, TemplateID: templateID})
}

// Buckets returns the per-hour counts of a run.
func (q *Querier) Buckets(ctx context.Context, runID string) ([]store.BucketCount, error) {
	runID, err := q.ResolveRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	return q.store.BucketCounts(ctx, runID)
}

// Summary returns a run's templates with their occurrence counts.
func (q *Querier) Summary(ctx context.Context, runID string) ([]store.TemplateSummary, error) {
	runID, err := q.ResolveRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	return q.store.TemplateSummaries(ctx, runID)
}
