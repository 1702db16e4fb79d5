package store

import (
	"context"
	"time"
)

// Run is one stored analysis of a log directory.
type Run struct {
	ID            string
	StartedAt     time.Time
	Root          string
	FilesSelected int
	FilesFailed   int
	Matches       int
	Unparsed      int
}

// Event is one stored matched log line.
type Event struct {
	ID         int64
	RunID      string
	Time       time.Time
	Host       string
	Pattern    string
	Path       string
	LineNumber int
	Message    string
	TemplateID string
}

// Template is a message template mined from a run's events, with optional
// semantic labels.
type Template struct {
	RunID       string
	TemplateID  string
	Pattern     string
	SemanticID  string
	Description string
}

// TemplateSummary holds a template and how many events it covers.
type TemplateSummary struct {
	Template
	Count int
}

// BucketCount is an aggregated count for one (host, pattern, date-hour).
type BucketCount struct {
	Host    string
	Pattern string
	Hour    string
	Count   int
}

// QueryOpts specifies filters for querying events. Zero values match all.
type QueryOpts struct {
	RunID      string
	Host       string
	Pattern    string
	TemplateID string
	From       time.Time
	To         time.Time
	Limit      int
}

// EventTemplate assigns a template to a stored event.
type EventTemplate struct {
	EventID    int64
	TemplateID string
}

// Store persists runs, their events and mined templates.
type Store interface {
	// Init creates tables if they don't exist.
	Init(ctx context.Context) error
	// InsertRun stores a run record.
	InsertRun(ctx context.Context, run Run) error
	// InsertEvents stores events in batches.
	InsertEvents(ctx context.Context, events []Event) error
	// Runs returns all runs, newest first.
	Runs(ctx context.Context) ([]Run, error)
	// LatestRun returns the newest run, or ErrNoRuns.
	LatestRun(ctx context.Context) (Run, error)
	// QueryEvents returns events matching opts ordered by time.
	QueryEvents(ctx context.Context, opts QueryOpts) ([]Event, error)
	// BucketCounts returns per-hour counts for a run.
	BucketCounts(ctx context.Context, runID string) ([]BucketCount, error)
	// ReplaceTemplates swaps a run's templates for the given set.
	ReplaceTemplates(ctx context.Context, runID string, templates []Template) error
	// AssignTemplates sets the template of each given event.
	AssignTemplates(ctx context.Context, assignments []EventTemplate) error
	// TemplateSummaries returns a run's templates with event counts.
	TemplateSummaries(ctx context.Context, runID string) ([]TemplateSummary, error)
	// UpdateTemplateLabels updates only semantic_id and description.
	UpdateTemplateLabels(ctx context.Context, labels []Template) error
	// Close releases resources.
	Close() error
}
