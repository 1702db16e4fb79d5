package report

import (
	"bytes"
	"embed"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/go-errors/errors"
	"gopkg.in/yaml.v3"

	"github.com/strrl/clusterlog/pkg/aggregator"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

// Separator divides report sections.
var Separator = strings.Repeat("=", 80)

const (
	generatedLayout = "2006-01-02 15:04:05 MST-0700"
	eventLayout     = "2006-01-02 15:04:05"
)

type hourView struct {
	Date  string
	Hour  string
	Count int
}

type fileView struct {
	Path  string
	Hours []hourView
}

type patternView struct {
	Display string
	Total   int
	Files   []fileView
}

type hostView struct {
	Name     string
	Patterns []patternView
}

// reportData is the data passed to report.txt.tmpl.
type reportData struct {
	GeneratedAt string
	Separator   string
	Hosts       []hostView
}

func buildReport(agg *aggregator.Aggregator, generatedAt time.Time) reportData {
	data := reportData{
		GeneratedAt: generatedAt.Format(generatedLayout),
		Separator:   Separator,
	}
	for _, host := range agg.Hosts() {
		hv := hostView{Name: host}
		for _, p := range agg.Patterns(host) {
			pv := patternView{Display: p.Display(), Total: agg.Total(host, p.Source)}
			hours := agg.Hours(host, p.Source)
			for _, file := range agg.Files(host, p.Source) {
				fv := fileView{Path: file}
				for _, h := range hours {
					n := agg.Count(host, p.Source, h, file)
					if n == 0 {
						continue
					}
					date, hour, _ := strings.Cut(h, " ")
					fv.Hours = append(fv.Hours, hourView{Date: date, Hour: hour, Count: n})
				}
				pv.Files = append(pv.Files, fv)
			}
			hv.Patterns = append(hv.Patterns, pv)
		}
		data.Hosts = append(data.Hosts, hv)
	}
	return data
}

// Render writes the statistics report for agg to w.
func Render(w io.Writer, agg *aggregator.Aggregator, generatedAt time.Time) error {
	if err := templates.ExecuteTemplate(w, "report.txt.tmpl", buildReport(agg, generatedAt)); err != nil {
		return errors.Errorf("render report template: %w", err)
	}
	return nil
}

// FileName returns the report file name for a run started at t.
func FileName(t time.Time) string {
	return "clusterlogparser_" + Stamp(t) + ".txt"
}

// Stamp is the run stamp shared by the report and per-host files.
func Stamp(t time.Time) string {
	return t.Format("01-02-150405")
}

type hostLine struct {
	Stamp   string
	Message string
}

// hostData is the data passed to host.txt.tmpl.
type hostData struct {
	Host  string
	Lines []hostLine
}

// hostNameReplacer keeps a hostname taken from a log line inside the
// output directory.
var hostNameReplacer = strings.NewReplacer("/", "_", "\\", "_", "..", "_")

// HostFileName returns the per-host sorted event file name. Path
// separators and ".." in host are replaced with "_".
func HostFileName(host, stamp string) string {
	return hostNameReplacer.Replace(host) + "_" + stamp + "_sort.txt"
}

// WriteHostFiles writes one time-sorted event file per host into dir and
// returns the paths written.
func WriteHostFiles(dir, stamp string, agg *aggregator.Aggregator) ([]string, error) {
	var written []string
	for _, host := range agg.Hosts() {
		data := hostData{Host: host}
		for _, ev := range agg.HostEvents(host) {
			data.Lines = append(data.Lines, hostLine{
				Stamp:   ev.Time.Format(eventLayout),
				Message: ev.Message,
			})
		}
		var buf bytes.Buffer
		if err := templates.ExecuteTemplate(&buf, "host.txt.tmpl", data); err != nil {
			return written, errors.Errorf("render host template: %w", err)
		}
		path := filepath.Join(dir, HostFileName(host, stamp))
		if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
			return written, errors.Errorf("write %s: %w", path, err)
		}
		written = append(written, path)
	}
	return written, nil
}

type yamlHour struct {
	Hour  string         `yaml:"hour"`
	Total int            `yaml:"total"`
	Files map[string]int `yaml:"files"`
}

type yamlPattern struct {
	Pattern string     `yaml:"pattern"`
	Source  string     `yaml:"source"`
	Total   int        `yaml:"total"`
	Hours   []yamlHour `yaml:"hours"`
}

type yamlHost struct {
	Host     string        `yaml:"host"`
	Patterns []yamlPattern `yaml:"patterns"`
}

type yamlReport struct {
	GeneratedAt string     `yaml:"generated_at"`
	Unparsed    int        `yaml:"unparsed"`
	Hosts       []yamlHost `yaml:"hosts"`
}

// ExportYAML writes the bucket tree of agg as YAML.
func ExportYAML(w io.Writer, agg *aggregator.Aggregator, generatedAt time.Time) error {
	doc := yamlReport{
		GeneratedAt: generatedAt.Format(time.RFC3339),
		Unparsed:    agg.Unparsed(),
	}
	for _, host := range agg.Hosts() {
		yh := yamlHost{Host: host}
		for _, p := range agg.Patterns(host) {
			yp := yamlPattern{Pattern: p.Display(), Source: p.Source, Total: agg.Total(host, p.Source)}
			for _, h := range agg.Hours(host, p.Source) {
				b := agg.Bucket(host, p.Source, h)
				yp.Hours = append(yp.Hours, yamlHour{Hour: h, Total: b.Total, Files: b.Files})
			}
			yh.Patterns = append(yh.Patterns, yp)
		}
		doc.Hosts = append(doc.Hosts, yh)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return errors.Errorf("encode yaml report: %w", err)
	}
	if err := enc.Close(); err != nil {
		return errors.Errorf("close yaml encoder: %w", err)
	}
	return nil
}
