package selector

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-errors/errors"
)

// DefaultKeywords identify the cluster log families worth scanning.
var DefaultKeywords = []string{"messages", "journal", "analysis", "crm_mon", "ha-log", "corosync", "pacemaker"}

// DefaultRetention is how far back filename dates and log lines are kept.
const DefaultRetention = 60 * 24 * time.Hour

// ErrNotDirectory is returned when the scan root is missing or not a directory.
var ErrNotDirectory = errors.New("not a directory")

// compressedExts are the container formats the reader can open.
var compressedExts = []string{".gz", ".xz"}

// archiveExts name files that are never read line by line.
var archiveExts = []string{".tar", ".zip", ".bz2", ".7z"}

// Reason explains why a candidate was not selected.
type Reason string

const (
	ReasonNone       Reason = ""
	ReasonNoKeyword  Reason = "no-keyword"
	ReasonArchive    Reason = "archive"
	ReasonExpired    Reason = "expired"
	ReasonSuperseded Reason = "superseded"
)

// Candidate is one file seen during the walk and the decision taken on it.
type Candidate struct {
	Path     string
	Logical  string
	Selected bool
	Reason   Reason
}

// Selector decides which files under a root are read.
type Selector struct {
	Keywords  []string
	Retention time.Duration
	Now       time.Time
}

// New returns a Selector with default keywords and retention, anchored at now.
func New(now time.Time) *Selector {
	return &Selector{
		Keywords:  DefaultKeywords,
		Retention: DefaultRetention,
		Now:       now,
	}
}

// LogicalName strips a recognized compression suffix from path.
func LogicalName(path string) string {
	for _, ext := range compressedExts {
		if strings.HasSuffix(path, ext) {
			return strings.TrimSuffix(path, ext)
		}
	}
	return path
}

// IsCompressed reports whether path carries a recognized compression suffix.
func IsCompressed(path string) bool {
	return LogicalName(path) != path
}

// Select walks root and returns every regular file it saw, in walk order,
// with the selection decision applied.
func (s *Selector) Select(root string) ([]Candidate, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.Errorf("%s: %w", root, ErrNotDirectory)
	}
	if !info.IsDir() {
		return nil, errors.Errorf("%s: %w", root, ErrNotDirectory)
	}

	var candidates []Candidate
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are skipped rather than aborting the walk.
			if d != nil && d.IsDir() && path != root {
				return filepath.SkipDir
			}
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		candidates = append(candidates, s.classify(path))
		return nil
	})
	if err != nil {
		return nil, errors.Errorf("walk %s: %w", root, err)
	}

	resolveDuplicates(candidates)
	return candidates, nil
}

func (s *Selector) classify(path string) Candidate {
	c := Candidate{Path: path, Logical: LogicalName(path)}
	name := filepath.Base(path)

	if !s.hasKeyword(name) {
		c.Reason = ReasonNoKeyword
		return c
	}
	for _, ext := range archiveExts {
		if strings.HasSuffix(name, ext) {
			c.Reason = ReasonArchive
			return c
		}
	}
	if s.expired(name) {
		c.Reason = ReasonExpired
		return c
	}
	c.Selected = true
	return c
}

func (s *Selector) hasKeyword(name string) bool {
	for _, kw := range s.Keywords {
		if strings.Contains(name, kw) {
			return true
		}
	}
	return false
}

// expired reports whether the filename carries a date older than the
// retention cutoff. Names without a date are never expired, and a zero
// retention keeps everything.
func (s *Selector) expired(name string) bool {
	if s.Retention <= 0 {
		return false
	}
	date, ok := FilenameDate(name)
	if !ok {
		return false
	}
	cutoff := s.Now.Add(-s.Retention)
	cutoffDay := time.Date(cutoff.Year(), cutoff.Month(), cutoff.Day(), 0, 0, 0, 0, time.UTC)
	return date.Before(cutoffDay)
}

// resolveDuplicates keeps one physical file per logical name. A compressed
// copy wins over the plain one; among compressed copies the first in walk
// order wins.
func resolveDuplicates(candidates []Candidate) {
	winner := make(map[string]int)
	for i, c := range candidates {
		if !c.Selected {
			continue
		}
		prev, seen := winner[c.Logical]
		if !seen {
			winner[c.Logical] = i
			continue
		}
		if IsCompressed(c.Path) && !IsCompressed(candidates[prev].Path) {
			winner[c.Logical] = i
		}
	}
	for i := range candidates {
		c := &candidates[i]
		if c.Selected && winner[c.Logical] != i {
			c.Selected = false
			c.Reason = ReasonSuperseded
		}
	}
}
