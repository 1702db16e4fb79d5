package signature

import (
	"bufio"
	"os"
	"regexp"
	"strings"

	"github.com/go-errors/errors"
)

// DefaultFile is the pattern file looked up when none is configured.
const DefaultFile = "err_pattern.txt"

// ErrNoPatterns is returned when a pattern file holds no usable lines.
var ErrNoPatterns = errors.New("pattern file contains no patterns")

// Pattern is a compiled failure signature.
type Pattern struct {
	// Source is the expression as compiled, minus the case-insensitivity
	// flag. It is the aggregation key for every match of this pattern.
	Source string
	re     *regexp.Regexp
}

// Compile turns one raw pattern line into a Pattern. Lines anchored with a
// leading ^ or a trailing $ are kept verbatim; anything else is wrapped in
// word boundaries so "fail" does not match inside "failover".
func Compile(raw string) (*Pattern, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("empty pattern")
	}
	source := raw
	if !strings.HasPrefix(raw, "^") && !strings.HasSuffix(raw, "$") {
		source = `\b` + raw + `\b`
	}
	re, err := regexp.Compile("(?i)" + source)
	if err != nil {
		return nil, errors.Errorf("compile pattern %q: %w", raw, err)
	}
	return &Pattern{Source: source, re: re}, nil
}

// MatchString reports whether line contains a match of the pattern.
func (p *Pattern) MatchString(line string) bool {
	return p.re.MatchString(line)
}

// Display returns the source with word-boundary markers stripped.
func (p *Pattern) Display() string {
	return strings.ReplaceAll(p.Source, `\b`, "")
}

func (p *Pattern) String() string {
	return p.Source
}

// Load reads a pattern file, one expression per line, blank lines ignored.
// Patterns keep file order, which is also their match precedence.
func Load(path string) ([]*Pattern, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Errorf("open pattern file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var patterns []*Pattern
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		p, err := Compile(line)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Errorf("read pattern file: %w", err)
	}
	if len(patterns) == 0 {
		return nil, errors.Errorf("%s: %w", path, ErrNoPatterns)
	}
	return patterns, nil
}

// Match returns the first pattern matching line, or nil. Later patterns are
// not evaluated once one matches.
func Match(patterns []*Pattern, line string) *Pattern {
	for _, p := range patterns {
		if p.MatchString(line) {
			return p
		}
	}
	return nil
}
