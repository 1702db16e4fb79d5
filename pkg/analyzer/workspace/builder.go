package workspace

import (
	"bytes"
	"embed"
	"os"
	"path/filepath"
	"text/template"
	"time"

	"github.com/go-errors/errors"

	"github.com/strrl/clusterlog/pkg/aggregator"
	"github.com/strrl/clusterlog/pkg/pattern"
	"github.com/strrl/clusterlog/pkg/report"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(
	template.New("").Funcs(template.FuncMap{
		"add": func(a, b int) int { return a + b },
	}).ParseFS(templateFS, "templates/*.tmpl"),
)

// Workspace file names.
const (
	ReportFile    = "report.txt"
	MatchesFile   = "matches.log"
	TemplatesFile = "templates.txt"
	AgentsFile    = "AGENTS.md"
	HostsDir      = "hosts"
)

const samplesPerTemplate = 3

// templateStats holds per-template statistics for rendering.
type templateStats struct {
	ID      string
	Pattern string
	Count   int
	Hosts   []string
	Samples []string
}

// templatesData is the data passed to templates.txt.tmpl.
type templatesData struct {
	Stats []*templateStats
}

// agentsData is the data passed to AGENTS.md.tmpl.
type agentsData struct {
	Hosts    []string
	Matches  int
	Unparsed int
}

// Builder prepares and writes workspace files for one scan.
type Builder struct {
	dir         string
	agg         *aggregator.Aggregator
	matches     []byte
	generatedAt time.Time
}

// NewBuilder creates a Builder for the aggregated scan agg. matches is the
// raw match stream the scan wrote.
func NewBuilder(dir string, agg *aggregator.Aggregator, matches []byte, generatedAt time.Time) *Builder {
	return &Builder{
		dir:         dir,
		agg:         agg,
		matches:     matches,
		generatedAt: generatedAt,
	}
}

// BuildAll writes all workspace files in order.
func (b *Builder) BuildAll() error {
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return errors.Errorf("create workspace: %w", err)
	}
	if err := b.WriteReport(); err != nil {
		return err
	}
	if err := b.WriteMatches(); err != nil {
		return err
	}
	if err := b.WriteHosts(); err != nil {
		return err
	}
	if err := b.WriteTemplates(); err != nil {
		return err
	}
	return b.WriteAgentsMD()
}

// WriteReport writes the statistics report to report.txt.
func (b *Builder) WriteReport() error {
	var buf bytes.Buffer
	if err := report.Render(&buf, b.agg, b.generatedAt); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(b.dir, ReportFile), buf.Bytes(), 0o644)
}

// WriteMatches writes the raw match stream to matches.log.
func (b *Builder) WriteMatches() error {
	return os.WriteFile(filepath.Join(b.dir, MatchesFile), b.matches, 0o644)
}

// WriteHosts writes one time-sorted event file per host under hosts/.
func (b *Builder) WriteHosts() error {
	dir := filepath.Join(b.dir, HostsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Errorf("create hosts dir: %w", err)
	}
	_, err := report.WriteHostFiles(dir, report.Stamp(b.generatedAt), b.agg)
	return err
}

// WriteTemplates mines message templates from the matched events and
// writes them with counts, hosts and samples to templates.txt.
func (b *Builder) WriteTemplates() error {
	miner, err := pattern.NewMiner()
	if err != nil {
		return err
	}

	statsMap := make(map[string]*templateStats)
	hostSeen := make(map[string]map[string]bool)
	for _, ev := range b.agg.Events() {
		id, err := miner.Add(ev.Message)
		if err != nil {
			return err
		}
		key := id.String()
		s, ok := statsMap[key]
		if !ok {
			s = &templateStats{ID: key}
			statsMap[key] = s
			hostSeen[key] = make(map[string]bool)
		}
		if !hostSeen[key][ev.Host] {
			hostSeen[key][ev.Host] = true
			s.Hosts = append(s.Hosts, ev.Host)
		}
		if len(s.Samples) < samplesPerTemplate {
			s.Samples = append(s.Samples, ev.Time.Format("2006-01-02 15:04:05")+" "+ev.Host+" "+ev.Message)
		}
	}

	var statsList []*templateStats
	for _, t := range miner.Templates() {
		s, ok := statsMap[t.ID.String()]
		if !ok {
			continue
		}
		s.Pattern = t.Pattern
		s.Count = t.Count
		statsList = append(statsList, s)
	}

	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "templates.txt.tmpl", templatesData{Stats: statsList}); err != nil {
		return errors.Errorf("render templates template: %w", err)
	}
	return os.WriteFile(filepath.Join(b.dir, TemplatesFile), buf.Bytes(), 0o644)
}

// WriteAgentsMD writes the agent guide describing the workspace.
func (b *Builder) WriteAgentsMD() error {
	data := agentsData{
		Hosts:    b.agg.Hosts(),
		Matches:  len(b.agg.Events()),
		Unparsed: b.agg.Unparsed(),
	}
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "AGENTS.md.tmpl", data); err != nil {
		return errors.Errorf("render AGENTS.md template: %w", err)
	}
	return os.WriteFile(filepath.Join(b.dir, AgentsFile), buf.Bytes(), 0o644)
}
