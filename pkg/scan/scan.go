package scan

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/go-errors/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/strrl/clusterlog/pkg/aggregator"
	"github.com/strrl/clusterlog/pkg/ingestor"
	"github.com/strrl/clusterlog/pkg/selector"
	"github.com/strrl/clusterlog/pkg/signature"
	"github.com/strrl/clusterlog/pkg/timestamp"
	"github.com/strrl/clusterlog/pkg/tracing"
)

// Options configures a scan. Selector, Reader and Normalizer default to
// their package constructors using Now; Output defaults to io.Discard.
type Options struct {
	Root       string
	Patterns   []*signature.Pattern
	Now        time.Time
	Selector   *selector.Selector
	Reader     *ingestor.Reader
	Normalizer *timestamp.Normalizer
	// Output receives a header per file followed by every matched line.
	Output io.Writer
}

// Result is the outcome of one scan.
type Result struct {
	Aggregator    *aggregator.Aggregator
	Candidates    []selector.Candidate
	FilesSelected int
	FilesSkipped  int
	FilesFailed   int
	Lines         int
	Matches       int
	Unparsed      int
}

// Run selects files under opts.Root, reads each one, and aggregates lines
// matching opts.Patterns. Only configuration problems are returned as
// errors; unreadable files are logged and counted.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if len(opts.Patterns) == 0 {
		return nil, errors.Errorf("scan %s: %w", opts.Root, signature.ErrNoPatterns)
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	if opts.Selector == nil {
		opts.Selector = selector.New(opts.Now)
	}
	if opts.Reader == nil {
		opts.Reader = ingestor.NewReader()
	}
	if opts.Normalizer == nil {
		opts.Normalizer = timestamp.NewNormalizer(opts.Now, opts.Selector.Retention)
	}
	if opts.Output == nil {
		opts.Output = io.Discard
	}

	ctx, span := tracing.Tracer().Start(ctx, "scan.Run")
	defer span.End()
	span.SetAttributes(attribute.String("scan.root", opts.Root))

	candidates, err := opts.Selector.Select(opts.Root)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, errors.Errorf("select files: %w", err)
	}

	res := &Result{
		Aggregator: aggregator.New(),
		Candidates: candidates,
	}
	for _, c := range candidates {
		if !c.Selected {
			res.FilesSkipped++
			slog.Debug("skipping file", "path", c.Path, "reason", c.Reason)
			continue
		}
		res.FilesSelected++
		if err := ctx.Err(); err != nil {
			return nil, errors.Errorf("scan canceled: %w", err)
		}
		if err := scanFile(ctx, c.Path, opts, res); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, errors.Errorf("scan canceled: %w", ctxErr)
			}
			res.FilesFailed++
			slog.Warn("failed to read file", "path", c.Path, "err", err)
		}
	}
	res.Unparsed = res.Aggregator.Unparsed()

	span.SetAttributes(
		attribute.Int("scan.files_selected", res.FilesSelected),
		attribute.Int("scan.files_failed", res.FilesFailed),
		attribute.Int("scan.matches", res.Matches),
		attribute.Int("scan.buckets", res.Aggregator.BucketCount()),
	)
	return res, nil
}

func scanFile(ctx context.Context, path string, opts Options, res *Result) (err error) {
	ctx, span := tracing.Tracer().Start(ctx, "scan.File")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	span.SetAttributes(attribute.String("file.path", path))

	f, err := opts.Reader.Open(path)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.String("file.encoding", string(f.Encoding)))
	slog.Info("start parsing", "path", path, "encoding", f.Encoding)

	if _, err := fmt.Fprintf(opts.Output, "======= %s =======\n", path); err != nil {
		return errors.Errorf("write output: %w", err)
	}

	lines, matches := 0, 0
	for line, lerr := range f.Lines(ctx) {
		if lerr != nil {
			err = lerr
			break
		}
		lines++
		p := signature.Match(opts.Patterns, line.Content)
		if p == nil {
			continue
		}
		matches++
		if _, werr := fmt.Fprintln(opts.Output, strings.TrimSpace(line.Content)); werr != nil {
			err = errors.Errorf("write output: %w", werr)
			break
		}
		ev, nerr := opts.Normalizer.Normalize(line.Content)
		if errors.Is(nerr, timestamp.ErrNoTimestamp) {
			res.Aggregator.MarkUnparsed()
			continue
		}
		if nerr != nil {
			continue
		}
		res.Aggregator.Add(aggregator.Event{
			Time:       ev.Time,
			Host:       ev.Host,
			Pattern:    p,
			Path:       path,
			LineNumber: line.LineNumber,
			Message:    ev.Message,
		})
	}
	res.Lines += lines
	res.Matches += matches
	span.SetAttributes(attribute.Int("file.lines", lines), attribute.Int("file.matches", matches))

	if _, werr := fmt.Fprintln(opts.Output); werr != nil && err == nil {
		err = errors.Errorf("write output: %w", werr)
	}
	return err
}
