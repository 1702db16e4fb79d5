package workspace_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/strrl/clusterlog/pkg/aggregator"
	"github.com/strrl/clusterlog/pkg/analyzer/workspace"
	"github.com/strrl/clusterlog/pkg/signature"
)

func buildAggregator(t *testing.T) *aggregator.Aggregator {
	t.Helper()
	p, err := signature.Compile("failed")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	ts := time.Date(2025, time.January, 7, 0, 19, 21, 0, time.UTC)
	agg := aggregator.New()
	messages := []struct{ host, msg string }{
		{"node1", "Result of start operation for vip on node1 failed"},
		{"node1", "Result of start operation for db on node1 failed"},
		{"node2", "Result of start operation for web on node2 failed"},
		{"node2", "fencing of node1 failed"},
	}
	for i, m := range messages {
		agg.Add(aggregator.Event{
			Time: ts.Add(time.Duration(i) * time.Minute), Host: m.host, Pattern: p,
			Path: "/logs/messages", LineNumber: i + 1, Message: m.msg,
		})
	}
	agg.MarkUnparsed()
	return agg
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func TestBuildAll(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ws")
	matches := []byte("======= /logs/messages =======\nJan 07 00:19:21 node1 Result of start operation for vip on node1 failed\n\n")
	generated := time.Date(2025, time.January, 10, 9, 0, 0, 0, time.UTC)

	b := workspace.NewBuilder(dir, buildAggregator(t), matches, generated)
	if err := b.BuildAll(); err != nil {
		t.Fatalf("BuildAll: %v", err)
	}

	report := readFile(t, filepath.Join(dir, workspace.ReportFile))
	if !strings.Contains(report, "Error Statistics for Hostname: node1") ||
		!strings.Contains(report, `Pattern: "failed" - 2 occurrences`) {
		t.Errorf("report.txt missing statistics:\n%s", report)
	}

	if got := readFile(t, filepath.Join(dir, workspace.MatchesFile)); got != string(matches) {
		t.Errorf("matches.log = %q", got)
	}

	host := readFile(t, filepath.Join(dir, workspace.HostsDir, "node2_01-10-090000_sort.txt"))
	if !strings.HasPrefix(host, "======= Hostname: node2 =======\n") || !strings.Contains(host, "fencing of node1 failed") {
		t.Errorf("host file:\n%s", host)
	}

	templates := readFile(t, filepath.Join(dir, workspace.TemplatesFile))
	if !strings.Contains(templates, "# Error Message Templates") {
		t.Error("templates.txt missing header")
	}
	if !strings.Contains(templates, "[3 occurrences]") {
		t.Errorf("templates.txt should group the start failures:\n%s", templates)
	}
	if !strings.Contains(templates, "Hosts: node1, node2") {
		t.Errorf("templates.txt missing hosts:\n%s", templates)
	}

	agents := readFile(t, filepath.Join(dir, workspace.AgentsFile))
	if !strings.Contains(agents, "4 matched events from node1, node2, plus 1 matched lines") {
		t.Errorf("AGENTS.md summary:\n%s", agents)
	}
}

func TestBuildAll_NoEvents(t *testing.T) {
	dir := t.TempDir()
	b := workspace.NewBuilder(dir, aggregator.New(), nil, time.Now())
	if err := b.BuildAll(); err != nil {
		t.Fatalf("BuildAll: %v", err)
	}

	templates := readFile(t, filepath.Join(dir, workspace.TemplatesFile))
	if !strings.Contains(templates, "No matched events with a usable timestamp.") {
		t.Errorf("expected empty notice, got:\n%s", templates)
	}
	entries, err := os.ReadDir(filepath.Join(dir, workspace.HostsDir))
	if err != nil {
		t.Fatalf("read hosts dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no host files, got %d", len(entries))
	}
}
