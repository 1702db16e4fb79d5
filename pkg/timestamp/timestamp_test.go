package timestamp

import (
	"errors"
	"testing"
	"time"
)

var testNow = time.Date(2025, time.January, 10, 12, 0, 0, 0, time.UTC)

func newTestNormalizer(retention time.Duration) *Normalizer {
	n := NewNormalizer(testNow, retention)
	n.Location = time.UTC
	return n
}

func TestInferYear(t *testing.T) {
	tests := []struct {
		month, current time.Month
		year, want     int
	}{
		{time.January, time.January, 2025, 2025},
		{time.February, time.January, 2025, 2024},
		{time.December, time.January, 2025, 2024},
		{time.March, time.June, 2025, 2025},
		{time.June, time.June, 2025, 2025},
	}
	for _, tt := range tests {
		if got := InferYear(tt.month, tt.current, tt.year); got != tt.want {
			t.Errorf("InferYear(%v, %v, %d) = %d, want %d", tt.month, tt.current, tt.year, got, tt.want)
		}
	}
}

func TestNormalizeSyslog(t *testing.T) {
	n := newTestNormalizer(0)

	ev, err := n.Normalize("Jan 07 00:19:21 node1 something error happened")
	if err != nil {
		t.Fatalf("expected event, got %v", err)
	}
	if ev.Host != "node1" {
		t.Errorf("host = %q, want node1", ev.Host)
	}
	if got := ev.DateHour(); got != "2025-01-07 00" {
		t.Errorf("date-hour = %q, want 2025-01-07 00", got)
	}
	if ev.Message != "something error happened" {
		t.Errorf("message = %q", ev.Message)
	}
	if ev.Format != "syslog" {
		t.Errorf("format = %q", ev.Format)
	}
}

func TestNormalizeSyslogPreviousYear(t *testing.T) {
	n := newTestNormalizer(0)

	ev, err := n.Normalize("Feb 16 03:20:34.165 node2 pacemaker-controld: error: lost")
	if err != nil {
		t.Fatalf("expected event, got %v", err)
	}
	if ev.Time.Year() != 2024 {
		t.Errorf("year = %d, want 2024", ev.Time.Year())
	}
	if got := ev.DateHour(); got != "2024-02-16 03" {
		t.Errorf("date-hour = %q", got)
	}
	if ev.Time.Nanosecond() != 165000000 {
		t.Errorf("nanoseconds = %d", ev.Time.Nanosecond())
	}
}

func TestNormalizeSyslogVariants(t *testing.T) {
	n := newTestNormalizer(0)

	t.Run("space padded day", func(t *testing.T) {
		ev, err := n.Normalize("Jan  7 00:19:21 node1 msg")
		if err != nil || ev.DateHour() != "2025-01-07 00" {
			t.Fatalf("got %+v, %v", ev, err)
		}
	})

	t.Run("pid before host", func(t *testing.T) {
		ev, err := n.Normalize("Jan 07 05:00:00 [4242] Node3 corosync failed")
		if err != nil {
			t.Fatalf("expected event, got %v", err)
		}
		if ev.Host != "node3" {
			t.Errorf("host = %q, want node3", ev.Host)
		}
		if ev.Message != "corosync failed" {
			t.Errorf("message = %q", ev.Message)
		}
	})

	t.Run("invalid day", func(t *testing.T) {
		if _, err := n.Normalize("Jan 32 00:00:00 node1 msg"); !errors.Is(err, ErrNoTimestamp) {
			t.Fatalf("expected ErrNoTimestamp, got %v", err)
		}
	})
}

func TestNormalizeISO8601(t *testing.T) {
	n := newTestNormalizer(0)

	tests := []struct {
		name     string
		line     string
		dateHour string
		host     string
	}{
		{"utc offset", "2025-01-07T01:45:59.817699+00:00 node3 failed", "2025-01-07 01", "node3"},
		{"zulu", "2025-01-07T23:00:00Z NODE4 failed", "2025-01-07 23", "node4"},
		{"positive offset keeps wall clock", "2025-01-08T02:10:00+0900 node5 failed", "2025-01-08 02", "node5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := n.Normalize(tt.line)
			if err != nil {
				t.Fatalf("expected event, got %v", err)
			}
			if ev.DateHour() != tt.dateHour {
				t.Errorf("date-hour = %q, want %q", ev.DateHour(), tt.dateHour)
			}
			if ev.Host != tt.host {
				t.Errorf("host = %q, want %q", ev.Host, tt.host)
			}
			if ev.Format != "iso8601" {
				t.Errorf("format = %q", ev.Format)
			}
		})
	}
}

func TestNormalizeUnrecognized(t *testing.T) {
	n := newTestNormalizer(0)
	for _, line := range []string{
		"",
		"plain text error",
		"07/01/2025 00:19:21 node1 error",
		"2025-01-07 00:19:21 node1 error",
	} {
		if ev, err := n.Normalize(line); !errors.Is(err, ErrNoTimestamp) {
			t.Errorf("Normalize(%q) = %+v, %v, want ErrNoTimestamp", line, ev, err)
		}
	}
}

func TestNormalizeRetention(t *testing.T) {
	n := newTestNormalizer(60 * 24 * time.Hour)

	if _, err := n.Normalize("Jan 07 00:19:21 node1 recent error"); err != nil {
		t.Errorf("recent line should be kept, got %v", err)
	}
	// 2024-02-16 is well outside the 60 day window.
	if _, err := n.Normalize("Feb 16 03:20:34 node2 old error"); !errors.Is(err, ErrOutOfWindow) {
		t.Errorf("old line should be dropped with ErrOutOfWindow, got %v", err)
	}
	if _, ok := n.Parse("Feb 16 03:20:34 node2 old error"); !ok {
		t.Error("Parse should ignore retention")
	}
	if !n.Cutoff().Equal(testNow.Add(-60 * 24 * time.Hour)) {
		t.Errorf("cutoff = %v", n.Cutoff())
	}
}

func TestNormalizeFirstMatchingFormatDecides(t *testing.T) {
	n := newTestNormalizer(0)
	n.Formats = []Format{
		{
			Name:   "broken",
			Header: DefaultFormats[0].Header,
			Parse: func(string, time.Time, *time.Location) (time.Time, error) {
				return time.Time{}, errTest
			},
		},
		DefaultFormats[0],
	}
	if _, err := n.Normalize("Jan 07 00:19:21 node1 msg"); err == nil {
		t.Fatal("a failed timestamp parse must not fall through to later formats")
	}
}

type testError string

func (e testError) Error() string { return string(e) }

const errTest = testError("boom")
