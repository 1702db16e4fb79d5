package scan

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/strrl/clusterlog/pkg/store"
)

func TestPersist(t *testing.T) {
	ctx := context.Background()
	dir := setupLogs(t)
	opts := testOptions(t, dir, &bytes.Buffer{})

	res, err := Run(ctx, opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	s, err := store.NewDuckDBStore("")
	if err != nil {
		t.Fatalf("NewDuckDBStore: %v", err)
	}
	if err := s.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	runID, err := Persist(ctx, s, res, dir, testNow)
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if _, err := uuid.Parse(runID); err != nil {
		t.Errorf("run ID %q is not a UUID: %v", runID, err)
	}

	run, err := s.LatestRun(ctx)
	if err != nil {
		t.Fatalf("LatestRun: %v", err)
	}
	if run.ID != runID || run.Matches != res.Matches || run.Unparsed != 1 || run.Root != dir {
		t.Errorf("stored run = %+v", run)
	}

	events, err := s.QueryEvents(ctx, store.QueryOpts{RunID: runID})
	if err != nil {
		t.Fatalf("QueryEvents: %v", err)
	}
	if len(events) != len(res.Aggregator.Events()) {
		t.Fatalf("stored %d events, want %d", len(events), len(res.Aggregator.Events()))
	}

	buckets, err := s.BucketCounts(ctx, runID)
	if err != nil {
		t.Fatalf("BucketCounts: %v", err)
	}
	if len(buckets) != res.Aggregator.BucketCount() {
		t.Errorf("stored %d buckets, aggregator has %d", len(buckets), res.Aggregator.BucketCount())
	}
}
