package pattern

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/strrl/clusterlog/pkg/store"
)

var clusterMessages = []string{
	"pacemaker-controld[2231]: error: Result of start operation for vip on node1: failed",
	"pacemaker-controld[2231]: error: Result of start operation for db on node1: failed",
	"pacemaker-controld[2231]: error: Result of start operation for web on node2: failed",
	"corosync[1001]: [TOTEM ] Token has not been received in 3000 ms",
	"corosync[1001]: [TOTEM ] Token has not been received in 4500 ms",
}

func TestMinerAddAndTemplates(t *testing.T) {
	m, err := NewMiner()
	if err != nil {
		t.Fatalf("NewMiner: %v", err)
	}

	ids := make([]uuid.UUID, 0, len(clusterMessages))
	for _, msg := range clusterMessages {
		id, err := m.Add(msg)
		if err != nil {
			t.Fatalf("Add: %v", err)
		}
		if id == uuid.Nil {
			t.Fatal("expected non-nil template ID")
		}
		ids = append(ids, id)
	}

	if ids[0] != ids[1] || ids[1] != ids[2] {
		t.Errorf("start failures should share a template: %v", ids[:3])
	}
	if ids[3] != ids[4] {
		t.Errorf("token timeouts should share a template: %v", ids[3:])
	}
	if ids[0] == ids[3] {
		t.Error("unrelated messages should not share a template")
	}

	templates := m.Templates()
	if len(templates) != 2 {
		t.Fatalf("expected 2 templates, got %d: %+v", len(templates), templates)
	}
	if templates[0].ID != ids[0] || templates[0].Count != 3 {
		t.Errorf("most frequent template first, got %+v", templates[0])
	}
	total := 0
	for _, tmpl := range templates {
		total += tmpl.Count
	}
	if total != len(clusterMessages) {
		t.Errorf("expected total count %d, got %d", len(clusterMessages), total)
	}
}

func TestMinerEmpty(t *testing.T) {
	m, err := NewMiner()
	if err != nil {
		t.Fatalf("NewMiner: %v", err)
	}
	if got := m.Templates(); len(got) != 0 {
		t.Errorf("expected 0 templates before any input, got %d", len(got))
	}
}


func TestMineRun(t *testing.T) {
	ctx := context.Background()
	s, err := store.NewDuckDBStore("")
	if err != nil {
		t.Fatalf("NewDuckDBStore: %v", err)
	}
	if err := s.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	ts := time.Date(2025, 1, 7, 0, 0, 0, 0, time.UTC)
	var events []store.Event
	for i, msg := range clusterMessages {
		events = append(events, store.Event{
			RunID: "r1", Time: ts.Add(time.Duration(i) * time.Minute),
			Host: "node1", Pattern: `\berror\b`, Message: msg,
		})
	}
	if err := s.InsertEvents(ctx, events); err != nil {
		t.Fatalf("InsertEvents: %v", err)
	}

	templates, err := MineRun(ctx, s, "r1")
	if err != nil {
		t.Fatalf("MineRun: %v", err)
	}
	if len(templates) != 2 {
		t.Fatalf("expected 2 templates, got %d", len(templates))
	}

	summaries, err := s.TemplateSummaries(ctx, "r1")
	if err != nil {
		t.Fatalf("TemplateSummaries: %v", err)
	}
	if len(summaries) != 2 || summaries[0].Count != 3 || summaries[1].Count != 2 {
		t.Errorf("unexpected summaries: %+v", summaries)
	}
	if summaries[0].TemplateID != templates[0].ID.String() {
		t.Errorf("summary %s does not match mined %s", summaries[0].TemplateID, templates[0].ID)
	}

	// Mining again replaces the run's templates instead of piling up.
	if _, err := MineRun(ctx, s, "r1"); err != nil {
		t.Fatalf("second MineRun: %v", err)
	}
	summaries, err = s.TemplateSummaries(ctx, "r1")
	if err != nil {
		t.Fatalf("TemplateSummaries: %v", err)
	}
	if len(summaries) != 2 {
		t.Errorf("expected 2 templates after re-mining, got %d", len(summaries))
	}
}
