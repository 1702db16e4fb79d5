package timestamp

import (
	"regexp"
	"strings"
	"time"

	"github.com/go-errors/errors"
)

var (
	// ErrNoTimestamp marks a line whose header no format understands.
	ErrNoTimestamp = errors.New("no recognizable timestamp header")
	// ErrOutOfWindow marks an event older than the retention window.
	ErrOutOfWindow = errors.New("event outside retention window")
)

// DateHourLayout formats the hourly bucket key.
const DateHourLayout = "2006-01-02 15"

// Event is a log line whose header was understood.
type Event struct {
	Time    time.Time
	Host    string
	Message string
	Format  string
}

// DateHour returns the bucket key for the event's hour, on the event's own
// wall clock.
func (e Event) DateHour() string {
	return e.Time.Format(DateHourLayout)
}

// Format is one line-header layout. Header must capture the timestamp token
// in group 1 and the hostname in group 2; Parse turns the token into a time.
type Format struct {
	Name   string
	Header *regexp.Regexp
	Parse  func(token string, now time.Time, loc *time.Location) (time.Time, error)
}

// DefaultFormats is the header table, tried in order. New layouts are added
// here rather than as branches in Normalize.
var DefaultFormats = []Format{
	{
		// Feb 16 03:20:34.165 node2 ...   Jan  7 00:19:21 [1234] node1 ...
		Name:   "syslog",
		Header: regexp.MustCompile(`^([A-Za-z]{3} {1,2}\d{1,2} \d{2}:\d{2}:\d{2}(?:\.\d+)?)(?: \[\d+\])? (\S+)`),
		Parse:  parseSyslog,
	},
	{
		// 2025-03-07T01:45:59.817699+00:00 node3 ...
		Name:   "iso8601",
		Header: regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:?\d{2})) (\S+)`),
		Parse:  parseISO8601,
	},
}

// InferYear picks the year for a syslog timestamp, which carries none. A
// month later than the current one can only come from last year.
func InferYear(month, currentMonth time.Month, currentYear int) int {
	if month > currentMonth {
		return currentYear - 1
	}
	return currentYear
}

func parseSyslog(token string, now time.Time, loc *time.Location) (time.Time, error) {
	fields := strings.Fields(token)
	if len(fields) != 3 {
		return time.Time{}, errors.Errorf("malformed syslog timestamp %q", token)
	}
	month := strings.ToUpper(fields[0][:1]) + strings.ToLower(fields[0][1:])
	normalized := month + " " + fields[1] + " " + fields[2]

	t, err := time.ParseInLocation("Jan 2 15:04:05", normalized, loc)
	if err != nil {
		return time.Time{}, errors.Errorf("parse syslog timestamp %q: %w", token, err)
	}
	nowLocal := now.In(loc)
	year := InferYear(t.Month(), nowLocal.Month(), nowLocal.Year())
	out := time.Date(year, t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
	if out.Day() != t.Day() {
		return time.Time{}, errors.Errorf("syslog timestamp %q does not exist in %d", token, year)
	}
	return out, nil
}

var isoLayouts = []string{
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999Z0700",
}

func parseISO8601(token string, _ time.Time, _ *time.Location) (time.Time, error) {
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, token); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Errorf("parse iso8601 timestamp %q", token)
}

// Normalizer extracts (time, host) from log lines and applies the
// line-level retention window.
type Normalizer struct {
	Formats   []Format
	Now       time.Time
	Retention time.Duration
	Location  *time.Location
}

// NewNormalizer returns a Normalizer using DefaultFormats and local time.
func NewNormalizer(now time.Time, retention time.Duration) *Normalizer {
	return &Normalizer{
		Formats:   DefaultFormats,
		Now:       now,
		Retention: retention,
		Location:  time.Local,
	}
}

// Cutoff is the oldest instant an event may carry.
func (n *Normalizer) Cutoff() time.Time {
	return n.Now.Add(-n.Retention)
}

// Parse extracts the event from line without the retention check. The
// first format whose header matches decides; if its timestamp does not
// parse, no other format is tried.
func (n *Normalizer) Parse(line string) (Event, bool) {
	loc := n.Location
	if loc == nil {
		loc = time.Local
	}
	for _, f := range n.Formats {
		m := f.Header.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		t, err := f.Parse(m[1], n.Now, loc)
		if err != nil {
			return Event{}, false
		}
		return Event{
			Time:    t,
			Host:    strings.ToLower(m[2]),
			Message: strings.TrimSpace(line[len(m[0]):]),
			Format:  f.Name,
		}, true
	}
	return Event{}, false
}

// Normalize is Parse followed by the retention check. It returns
// ErrNoTimestamp for a line without a usable header and ErrOutOfWindow for
// an event older than now minus the retention window.
func (n *Normalizer) Normalize(line string) (Event, error) {
	ev, ok := n.Parse(line)
	if !ok {
		return Event{}, ErrNoTimestamp
	}
	if !n.InWindow(ev.Time) {
		return Event{}, ErrOutOfWindow
	}
	return ev, nil
}

// InWindow reports whether t is inside the retention window. A zero
// retention keeps everything.
func (n *Normalizer) InWindow(t time.Time) bool {
	return n.Retention <= 0 || !t.Before(n.Cutoff())
}
