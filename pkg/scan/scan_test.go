package scan

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/strrl/clusterlog/pkg/selector"
	"github.com/strrl/clusterlog/pkg/signature"
	"github.com/strrl/clusterlog/pkg/timestamp"
)

var testNow = time.Date(2025, time.January, 10, 12, 0, 0, 0, time.UTC)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func writeGzip(t *testing.T, path, content string) {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(content)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	writeFile(t, path, buf.String())
}

func setupLogs(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "messages"), strings.Join([]string{
		"Jan 07 00:19:21 node1 something error happened",
		"Jan 07 00:20:00 node1 all good",
		"Feb 16 03:20:34.165 node2 pacemaker failed",
		"no header error line",
		"Jan 07 01:00:00 node1 error then failed",
	}, "\n")+"\n")
	writeFile(t, filepath.Join(dir, "ha-log.1"), "Jan 08 10:00:00 node3 plain error\n")
	writeGzip(t, filepath.Join(dir, "ha-log.1.gz"), "Jan 08 10:00:00 node3 resource failed\n")
	writeGzip(t, filepath.Join(dir, "corosync.log.gz"), "2025-01-09T08:00:00.123+00:00 NODE1 link failed\n")
	writeFile(t, filepath.Join(dir, "unrelated.txt"), "Jan 07 00:19:21 node9 error\n")
	return dir
}

func testOptions(t *testing.T, root string, out *bytes.Buffer) Options {
	t.Helper()
	var patterns []*signature.Pattern
	for _, raw := range []string{"error", "failed"} {
		p, err := signature.Compile(raw)
		if err != nil {
			t.Fatalf("Compile: %v", err)
		}
		patterns = append(patterns, p)
	}
	n := timestamp.NewNormalizer(testNow, selector.DefaultRetention)
	n.Location = time.UTC
	return Options{
		Root:       root,
		Patterns:   patterns,
		Now:        testNow,
		Normalizer: n,
		Output:     out,
	}
}

func TestRun(t *testing.T) {
	dir := setupLogs(t)
	var out bytes.Buffer
	opts := testOptions(t, dir, &out)

	res, err := Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.FilesSelected != 3 || res.FilesSkipped != 2 || res.FilesFailed != 0 {
		t.Errorf("files selected/skipped/failed = %d/%d/%d, want 3/2/0",
			res.FilesSelected, res.FilesSkipped, res.FilesFailed)
	}
	if res.Lines != 7 || res.Matches != 6 || res.Unparsed != 1 {
		t.Errorf("lines/matches/unparsed = %d/%d/%d, want 7/6/1", res.Lines, res.Matches, res.Unparsed)
	}

	agg := res.Aggregator
	if got := agg.Hosts(); !slices.Equal(got, []string{"node1", "node3"}) {
		t.Errorf("Hosts = %v", got)
	}
	errPat, failPat := opts.Patterns[0], opts.Patterns[1]

	t.Run("scenario line", func(t *testing.T) {
		path := filepath.Join(dir, "messages")
		if got := agg.Count("node1", errPat.Source, "2025-01-07 00", path); got != 1 {
			t.Errorf("Count = %d, want 1", got)
		}
	})

	t.Run("first pattern wins", func(t *testing.T) {
		if got := agg.Total("node1", errPat.Source); got != 2 {
			t.Errorf("error total = %d, want 2", got)
		}
		if got := agg.Hours("node1", failPat.Source); !slices.Equal(got, []string{"2025-01-09 08"}) {
			t.Errorf("failed hours = %v", got)
		}
	})

	t.Run("out of window line has no bucket", func(t *testing.T) {
		for _, h := range agg.Hosts() {
			if h == "node2" {
				t.Fatal("node2 line is outside the retention window")
			}
		}
	})

	t.Run("compressed variant read instead of plain", func(t *testing.T) {
		gz := filepath.Join(dir, "ha-log.1.gz")
		if got := agg.Count("node3", failPat.Source, "2025-01-08 10", gz); got != 1 {
			t.Errorf("gz count = %d, want 1", got)
		}
		if got := agg.Total("node3", errPat.Source); got != 0 {
			t.Errorf("plain ha-log.1 was read: error total = %d", got)
		}
		if strings.Contains(out.String(), "plain error") {
			t.Error("plain ha-log.1 content reached the output")
		}
	})

	t.Run("output stream", func(t *testing.T) {
		s := out.String()
		for _, want := range []string{
			"======= " + filepath.Join(dir, "messages") + " =======\n",
			"======= " + filepath.Join(dir, "ha-log.1.gz") + " =======\n",
			"no header error line\n",
			"Feb 16 03:20:34.165 node2 pacemaker failed\n",
		} {
			if !strings.Contains(s, want) {
				t.Errorf("output missing %q", want)
			}
		}
		if strings.Contains(s, "all good") || strings.Contains(s, "node9") {
			t.Errorf("output has unmatched or unselected lines:\n%s", s)
		}
	})

	t.Run("events keep line numbers", func(t *testing.T) {
		evs := agg.HostEvents("node1")
		if len(evs) != 3 {
			t.Fatalf("node1 events = %d, want 3", len(evs))
		}
		if evs[0].LineNumber != 1 || evs[0].Message != "something error happened" {
			t.Errorf("first event = %+v", evs[0])
		}
	})
}

func TestRunIdempotent(t *testing.T) {
	dir := setupLogs(t)

	first, err := Run(context.Background(), testOptions(t, dir, &bytes.Buffer{}))
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "corosync.log")); err != nil {
		t.Fatalf("expected materialized corosync.log: %v", err)
	}
	second, err := Run(context.Background(), testOptions(t, dir, &bytes.Buffer{}))
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}

	if first.Matches != second.Matches || first.FilesSelected != second.FilesSelected {
		t.Errorf("runs differ: %+v vs %+v", first, second)
	}
	a, b := first.Aggregator, second.Aggregator
	if !slices.Equal(a.Hosts(), b.Hosts()) {
		t.Fatalf("hosts differ: %v vs %v", a.Hosts(), b.Hosts())
	}
	for _, h := range a.Hosts() {
		for _, p := range a.Patterns(h) {
			if a.Total(h, p.Source) != b.Total(h, p.Source) {
				t.Errorf("%s %s: %d vs %d", h, p.Source, a.Total(h, p.Source), b.Total(h, p.Source))
			}
		}
	}
}

func TestRunFailedFileContinues(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "corosync.log.gz"), "not gzip at all")
	writeFile(t, filepath.Join(dir, "messages"), "Jan 07 00:19:21 node1 something error happened\n")

	res, err := Run(context.Background(), testOptions(t, dir, &bytes.Buffer{}))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.FilesFailed != 1 || res.FilesSelected != 2 {
		t.Errorf("failed/selected = %d/%d, want 1/2", res.FilesFailed, res.FilesSelected)
	}
	if res.Aggregator.Total("node1", errorPattern(t).Source) != 1 {
		t.Error("messages should still be aggregated")
	}
}

func TestRunOverlongLine(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "messages"), strings.Join([]string{
		"Jan 07 00:19:21 node1 first error",
		strings.Repeat("x", 2*1024*1024),
		"Jan 07 00:19:22 node1 later error",
	}, "\n")+"\n")

	res, err := Run(context.Background(), testOptions(t, dir, &bytes.Buffer{}))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.FilesFailed != 0 || res.Lines != 3 || res.Matches != 2 {
		t.Errorf("failed/lines/matches = %d/%d/%d, want 0/3/2", res.FilesFailed, res.Lines, res.Matches)
	}
	if got := res.Aggregator.Total("node1", errorPattern(t).Source); got != 2 {
		t.Errorf("total = %d, want 2", got)
	}
}

func errorPattern(t *testing.T) *signature.Pattern {
	t.Helper()
	p, err := signature.Compile("error")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return p
}

func TestRunConfigErrors(t *testing.T) {
	t.Run("no patterns", func(t *testing.T) {
		_, err := Run(context.Background(), Options{Root: t.TempDir()})
		if !errors.Is(err, signature.ErrNoPatterns) {
			t.Errorf("err = %v, want ErrNoPatterns", err)
		}
	})

	t.Run("missing directory", func(t *testing.T) {
		opts := testOptions(t, filepath.Join(t.TempDir(), "nope"), &bytes.Buffer{})
		if _, err := Run(context.Background(), opts); err == nil {
			t.Error("expected error for missing directory")
		}
	})
}

func TestRunCanceled(t *testing.T) {
	dir := setupLogs(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, testOptions(t, dir, &bytes.Buffer{}))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
