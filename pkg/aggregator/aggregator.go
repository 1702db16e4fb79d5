// Package aggregator counts matched events per host, pattern and hour.
package aggregator

import (
	"slices"
	"sort"
	"time"

	"github.com/strrl/clusterlog/pkg/signature"
	"github.com/strrl/clusterlog/pkg/timestamp"
)

// Event is one matched, normalized line.
type Event struct {
	Time       time.Time
	Host       string
	Pattern    *signature.Pattern
	Path       string
	LineNumber int
	Message    string
}

// DateHour returns the event's bucket key.
func (e Event) DateHour() string {
	return e.Time.Format(timestamp.DateHourLayout)
}

// Bucket holds the count for one (host, pattern, date-hour) key.
type Bucket struct {
	Host    string
	Pattern string
	Hour    string
	Total   int
	Files   map[string]int
}

type patternStats struct {
	pattern *signature.Pattern
	total   int
	buckets map[string]*Bucket
}

type hostStats struct {
	patterns map[string]*patternStats
	order    []string
}

// Aggregator accumulates buckets for a single run. The zero value is not
// usable; call New.
type Aggregator struct {
	hosts    map[string]*hostStats
	order    []string
	events   []Event
	unparsed int
}

func New() *Aggregator {
	return &Aggregator{hosts: make(map[string]*hostStats)}
}

// Record counts one occurrence of pattern on host at t, read from path.
func (a *Aggregator) Record(host string, pattern *signature.Pattern, t time.Time, path string) {
	hs, ok := a.hosts[host]
	if !ok {
		hs = &hostStats{patterns: make(map[string]*patternStats)}
		a.hosts[host] = hs
		a.order = append(a.order, host)
	}
	key := pattern.Source
	ps, ok := hs.patterns[key]
	if !ok {
		ps = &patternStats{pattern: pattern, buckets: make(map[string]*Bucket)}
		hs.patterns[key] = ps
		hs.order = append(hs.order, key)
	}
	hour := t.Format(timestamp.DateHourLayout)
	b, ok := ps.buckets[hour]
	if !ok {
		b = &Bucket{Host: host, Pattern: key, Hour: hour, Files: make(map[string]int)}
		ps.buckets[hour] = b
	}
	b.Total++
	b.Files[path]++
	ps.total++
}

// Add records ev and keeps it for the per-event views.
func (a *Aggregator) Add(ev Event) {
	a.Record(ev.Host, ev.Pattern, ev.Time, ev.Path)
	a.events = append(a.events, ev)
}

// MarkUnparsed counts a matched line whose timestamp could not be
// normalized.
func (a *Aggregator) MarkUnparsed() {
	a.unparsed++
}

// Unparsed returns the number of matched lines without a usable timestamp.
func (a *Aggregator) Unparsed() int {
	return a.unparsed
}

// Hosts returns hostnames in first-seen order.
func (a *Aggregator) Hosts() []string {
	return slices.Clone(a.order)
}

// Patterns returns the patterns seen on host in first-seen order.
func (a *Aggregator) Patterns(host string) []*signature.Pattern {
	hs, ok := a.hosts[host]
	if !ok {
		return nil
	}
	out := make([]*signature.Pattern, 0, len(hs.order))
	for _, key := range hs.order {
		out = append(out, hs.patterns[key].pattern)
	}
	return out
}

func (a *Aggregator) stats(host, pattern string) *patternStats {
	hs, ok := a.hosts[host]
	if !ok {
		return nil
	}
	return hs.patterns[pattern]
}

// Total returns the occurrences of pattern (by source) on host.
func (a *Aggregator) Total(host, pattern string) int {
	ps := a.stats(host, pattern)
	if ps == nil {
		return 0
	}
	return ps.total
}

// Hours returns the non-empty date-hours for (host, pattern), ascending.
func (a *Aggregator) Hours(host, pattern string) []string {
	ps := a.stats(host, pattern)
	if ps == nil {
		return nil
	}
	hours := make([]string, 0, len(ps.buckets))
	for h := range ps.buckets {
		hours = append(hours, h)
	}
	sort.Strings(hours)
	return hours
}

// Files returns the source files contributing to (host, pattern), in order
// of first appearance when walking hours ascending. Files first seen in the
// same hour are sorted by name, not by recording order.
func (a *Aggregator) Files(host, pattern string) []string {
	ps := a.stats(host, pattern)
	if ps == nil {
		return nil
	}
	var files []string
	seen := make(map[string]bool)
	for _, h := range a.Hours(host, pattern) {
		b := ps.buckets[h]
		names := make([]string, 0, len(b.Files))
		for f := range b.Files {
			if !seen[f] {
				names = append(names, f)
			}
		}
		sort.Strings(names)
		for _, f := range names {
			seen[f] = true
			files = append(files, f)
		}
	}
	return files
}

// Count returns the occurrences in one bucket from one file.
func (a *Aggregator) Count(host, pattern, hour, file string) int {
	b := a.Bucket(host, pattern, hour)
	if b == nil {
		return 0
	}
	return b.Files[file]
}

// Bucket returns the bucket for the key, or nil when nothing was recorded.
func (a *Aggregator) Bucket(host, pattern, hour string) *Bucket {
	ps := a.stats(host, pattern)
	if ps == nil {
		return nil
	}
	return ps.buckets[hour]
}

// BucketCount returns how many buckets exist.
func (a *Aggregator) BucketCount() int {
	n := 0
	for _, hs := range a.hosts {
		for _, ps := range hs.patterns {
			n += len(ps.buckets)
		}
	}
	return n
}

// Events returns every recorded event in recording order.
func (a *Aggregator) Events() []Event {
	return slices.Clone(a.events)
}

// HostEvents returns the events of host sorted by time. Events with equal
// times keep recording order.
func (a *Aggregator) HostEvents(host string) []Event {
	var out []Event
	for _, ev := range a.events {
		if ev.Host == host {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Time.Before(out[j].Time)
	})
	return out
}
