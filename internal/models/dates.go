package models

import "time"

// DateGranularity controls how bar timestamps are compared for de-duplication.
type DateGranularity string

const (
	// GranularityDay compares calendar dates only; time of day is discarded.
	GranularityDay DateGranularity = "day"
	// GranularityTimestamp compares full timestamps, for intraday series.
	GranularityTimestamp DateGranularity = "timestamp"
)

// Valid reports whether g is a known granularity.
func (g DateGranularity) Valid() bool {
	return g == GranularityDay || g == GranularityTimestamp
}

// Key returns the comparison key of t under g. Day keys use the calendar
// date in t's own location; timestamp keys compare instants.
func (g DateGranularity) Key(t time.Time) string {
	if g == GranularityTimestamp {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return t.Format("2006-01-02")
}

// DateSet is a set of bar dates keyed by granularity. The zero value is an
// empty day-granularity set and is safe to query.
type DateSet struct {
	granularity DateGranularity
	keys        map[string]struct{}
}

// NewDateSet creates a set holding dates compared at granularity g.
func NewDateSet(g DateGranularity, dates ...time.Time) DateSet {
	if !g.Valid() {
		g = GranularityDay
	}
	s := DateSet{granularity: g, keys: make(map[string]struct{}, len(dates))}
	for _, d := range dates {
		s.Add(d)
	}
	return s
}

// Granularity returns the comparison granularity of the set.
func (s DateSet) Granularity() DateGranularity {
	if s.granularity == "" {
		return GranularityDay
	}
	return s.granularity
}

// Add inserts t. Add on a zero DateSet is a no-op.
func (s DateSet) Add(t time.Time) {
	if s.keys == nil {
		return
	}
	s.keys[s.Granularity().Key(t)] = struct{}{}
}

// Contains reports whether t is in the set.
func (s DateSet) Contains(t time.Time) bool {
	if len(s.keys) == 0 {
		return false
	}
	_, ok := s.keys[s.Granularity().Key(t)]
	return ok
}

// Len returns the number of distinct keys.
func (s DateSet) Len() int {
	return len(s.keys)
}
