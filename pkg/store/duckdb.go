package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/go-errors/errors"

	"github.com/strrl/clusterlog/pkg/timestamp"
)

// ErrNoRuns is returned by LatestRun on an empty store.
var ErrNoRuns = errors.New("no runs stored")

// insertBatchSize bounds how many events go into one transaction.
const insertBatchSize = 500

// DuckDBStore implements Store using DuckDB.
type DuckDBStore struct {
	db *sql.DB
}

var _ Store = (*DuckDBStore)(nil)

// NewDuckDBStore creates a new DuckDB-backed store.
// Pass dsn="" for in-memory, or a file path for persistent storage.
func NewDuckDBStore(dsn string) (*DuckDBStore, error) {
	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, errors.Errorf("open duckdb: %w", err)
	}
	return &DuckDBStore{db: db}, nil
}

// Init creates the runs, events and templates tables if they do not exist.
func (s *DuckDBStore) Init(ctx context.Context) error {
	stmts := []struct {
		name  string
		query string
	}{
		{"create runs table", `
			CREATE TABLE IF NOT EXISTS runs (
				id VARCHAR PRIMARY KEY,
				started_at TIMESTAMP,
				root VARCHAR,
				files_selected INTEGER,
				files_failed INTEGER,
				matches INTEGER,
				unparsed INTEGER
			)`},
		{"create events sequence", `CREATE SEQUENCE IF NOT EXISTS events_id_seq START 1`},
		{"create events table", `
			CREATE TABLE IF NOT EXISTS events (
				id BIGINT DEFAULT nextval('events_id_seq'),
				run_id VARCHAR,
				ts TIMESTAMP,
				date_hour VARCHAR,
				host VARCHAR,
				pattern VARCHAR,
				path VARCHAR,
				line_number INTEGER,
				message VARCHAR,
				template_id VARCHAR DEFAULT ''
			)`},
		{"create templates table", `
			CREATE TABLE IF NOT EXISTS templates (
				run_id VARCHAR,
				template_id VARCHAR,
				pattern VARCHAR,
				semantic_id VARCHAR,
				description VARCHAR,
				PRIMARY KEY (run_id, template_id)
			)`},
	}
	for _, st := range stmts {
		if _, err := s.db.ExecContext(ctx, st.query); err != nil {
			return errors.Errorf("%s: %w", st.name, err)
		}
	}
	return nil
}

// InsertRun stores a run record.
func (s *DuckDBStore) InsertRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, root, files_selected, files_failed, matches, unparsed)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UTC(), run.Root, run.FilesSelected, run.FilesFailed, run.Matches, run.Unparsed,
	)
	if err != nil {
		return errors.Errorf("insert run: %w", err)
	}
	return nil
}

// InsertEvents stores events, committing every insertBatchSize rows.
func (s *DuckDBStore) InsertEvents(ctx context.Context, events []Event) error {
	for start := 0; start < len(events); start += insertBatchSize {
		end := min(start+insertBatchSize, len(events))
		if err := s.insertEventBatch(ctx, events[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *DuckDBStore) insertEventBatch(ctx context.Context, events []Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO events (run_id, ts, date_hour, host, pattern, path, line_number, message, template_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return errors.Errorf("prepare: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, e := range events {
		// date_hour is kept as text so it stays on the event's own wall
		// clock; ts is normalized to UTC.
		_, err = stmt.ExecContext(ctx,
			e.RunID, e.Time.UTC(), e.Time.Format(timestamp.DateHourLayout),
			e.Host, e.Pattern, e.Path, e.LineNumber, e.Message, e.TemplateID,
		)
		if err != nil {
			return errors.Errorf("exec: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Errorf("commit: %w", err)
	}
	return nil
}

// Runs returns all runs, newest first.
func (s *DuckDBStore) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, root, files_selected, files_failed, matches, unparsed
		 FROM runs ORDER BY started_at DESC, id`,
	)
	if err != nil {
		return nil, errors.Errorf("query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.Root, &r.FilesSelected, &r.FilesFailed, &r.Matches, &r.Unparsed); err != nil {
			return nil, errors.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Errorf("rows err: %w", err)
	}
	return runs, nil
}

// LatestRun returns the most recently started run.
func (s *DuckDBStore) LatestRun(ctx context.Context) (Run, error) {
	runs, err := s.Runs(ctx)
	if err != nil {
		return Run{}, err
	}
	if len(runs) == 0 {
		return Run{}, ErrNoRuns
	}
	return runs[0], nil
}

// QueryEvents returns events matching the given options, ordered by time.
func (s *DuckDBStore) QueryEvents(ctx context.Context, opts QueryOpts) ([]Event, error) {
	var conditions []string
	var args []any

	if opts.RunID != "" {
		conditions = append(conditions, "run_id = ?")
		args = append(args, opts.RunID)
	}
	if opts.Host != "" {
		conditions = append(conditions, "host = ?")
		args = append(args, strings.ToLower(opts.Host))
	}
	if opts.Pattern != "" {
		conditions = append(conditions, "pattern = ?")
		args = append(args, opts.Pattern)
	}
	if opts.TemplateID != "" {
		conditions = append(conditions, "template_id = ?")
		args = append(args, opts.TemplateID)
	}
	if !opts.From.IsZero() {
		conditions = append(conditions, "ts >= ?")
		args = append(args, opts.From.UTC())
	}
	if !opts.To.IsZero() {
		conditions = append(conditions, "ts <= ?")
		args = append(args, opts.To.UTC())
	}

	query := "SELECT id, run_id, ts, host, pattern, path, line_number, message, template_id FROM events"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY ts, id"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Errorf("query events: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanEvents(rows)
}

// BucketCounts returns per (host, pattern, date-hour) counts for a run.
func (s *DuckDBStore) BucketCounts(ctx context.Context, runID string) ([]BucketCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT host, pattern, date_hour, COUNT(*)
		 FROM events WHERE run_id = ?
		 GROUP BY host, pattern, date_hour
		 ORDER BY host, pattern, date_hour`,
		runID,
	)
	if err != nil {
		return nil, errors.Errorf("bucket counts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var counts []BucketCount
	for rows.Next() {
		var b BucketCount
		if err := rows.Scan(&b.Host, &b.Pattern, &b.Hour, &b.Count); err != nil {
			return nil, errors.Errorf("scan bucket: %w", err)
		}
		counts = append(counts, b)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Errorf("rows err: %w", err)
	}
	return counts, nil
}

// ReplaceTemplates deletes the templates of runID and stores the given
// ones in their place. Templates are stored under runID whatever their
// RunID field says.
func (s *DuckDBStore) ReplaceTemplates(ctx context.Context, runID string, templates []Template) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM templates WHERE run_id = ?`, runID); err != nil {
		return errors.Errorf("delete templates: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO templates (run_id, template_id, pattern, semantic_id, description)
		 VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return errors.Errorf("prepare: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, t := range templates {
		if _, err := stmt.ExecContext(ctx, runID, t.TemplateID, t.Pattern, t.SemanticID, t.Description); err != nil {
			return errors.Errorf("exec: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Errorf("commit: %w", err)
	}
	return nil
}

// AssignTemplates sets template_id on the given events.
func (s *DuckDBStore) AssignTemplates(ctx context.Context, assignments []EventTemplate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `UPDATE events SET template_id = ? WHERE id = ?`)
	if err != nil {
		return errors.Errorf("prepare: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, a := range assignments {
		if _, err := stmt.ExecContext(ctx, a.TemplateID, a.EventID); err != nil {
			return errors.Errorf("exec: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Errorf("commit: %w", err)
	}
	return nil
}

// TemplateSummaries returns a run's templates with the number of events
// assigned to each, most frequent first.
func (s *DuckDBStore) TemplateSummaries(ctx context.Context, runID string) ([]TemplateSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.run_id, t.template_id, t.pattern,
		        COALESCE(t.semantic_id, ''), COALESCE(t.description, ''),
		        COUNT(e.id) AS cnt
		 FROM templates t
		 LEFT JOIN events e ON e.run_id = t.run_id AND e.template_id = t.template_id
		 WHERE t.run_id = ?
		 GROUP BY t.run_id, t.template_id, t.pattern, t.semantic_id, t.description
		 ORDER BY cnt DESC, t.template_id`,
		runID,
	)
	if err != nil {
		return nil, errors.Errorf("template summaries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var summaries []TemplateSummary
	for rows.Next() {
		var ts TemplateSummary
		if err := rows.Scan(&ts.RunID, &ts.TemplateID, &ts.Pattern, &ts.SemanticID, &ts.Description, &ts.Count); err != nil {
			return nil, errors.Errorf("scan summary: %w", err)
		}
		summaries = append(summaries, ts)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Errorf("rows err: %w", err)
	}
	return summaries, nil
}

// UpdateTemplateLabels updates only semantic_id and description.
func (s *DuckDBStore) UpdateTemplateLabels(ctx context.Context, labels []Template) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`UPDATE templates SET semantic_id = ?, description = ? WHERE run_id = ? AND template_id = ?`,
	)
	if err != nil {
		return errors.Errorf("prepare: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, l := range labels {
		if _, err := stmt.ExecContext(ctx, l.SemanticID, l.Description, l.RunID, l.TemplateID); err != nil {
			return errors.Errorf("exec: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Errorf("commit: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *DuckDBStore) Close() error {
	return s.db.Close()
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var e Event
		var ts time.Time
		if err := rows.Scan(&e.ID, &e.RunID, &ts, &e.Host, &e.Pattern, &e.Path, &e.LineNumber, &e.Message, &e.TemplateID); err != nil {
			return nil, errors.Errorf("scan event: %w", err)
		}
		e.Time = ts
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Errorf("rows err: %w", err)
	}
	return events, nil
}
