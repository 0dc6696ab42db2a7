package schedule

import (
	"regexp"
	"strings"
	"time"
)

// Record represents one scheduled departure
type Record struct {
	Time        string   `json:"time"`
	Buses       []string `json:"buses"`
	Route       string   `json:"route"`
	Description string   `json:"description"`
	Keywords    string   `json:"keywords"` // Search index, derived from the fields above
}

// routeDelimiter splits a route into stops: an arrow or a dash surrounded by spaces
var routeDelimiter = regexp.MustCompile(`→| - `)

// NewRecord creates a Record with duplicate buses removed and the search index populated
func NewRecord(timeLabel string, buses []string, route, description string) *Record {
	r := &Record{
		Time:        timeLabel,
		Buses:       UniqueBuses(buses),
		Route:       route,
		Description: description,
	}
	r.Keywords = SearchIndex(r.Time, r.Buses, r.Route, r.Description)
	return r
}

// SearchIndex builds the lowercase text used for substring filtering
func SearchIndex(timeLabel string, buses []string, route, description string) string {
	return strings.ToLower(timeLabel + " " + strings.Join(buses, " ") + " " + route + " " + description)
}

// Normalize re-derives the search index and deduplicates buses.
// Records read from files go through here so a stale keywords field is never trusted.
func (r *Record) Normalize() {
	r.Buses = UniqueBuses(r.Buses)
	r.Keywords = SearchIndex(r.Time, r.Buses, r.Route, r.Description)
}

// Stops splits the route into its trimmed, non-empty stops in travel order
func (r *Record) Stops() []string {
	parts := routeDelimiter.Split(r.Route, -1)
	stops := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			stops = append(stops, p)
		}
	}
	return stops
}

// FirstBus returns the first bus number, or "" if the record has none
func (r *Record) FirstBus() string {
	if len(r.Buses) == 0 {
		return ""
	}
	return r.Buses[0]
}

// UniqueBuses removes duplicates keeping first-seen order. Never returns nil.
func UniqueBuses(buses []string) []string {
	seen := make(map[string]bool, len(buses))
	unique := make([]string, 0, len(buses))
	for _, b := range buses {
		if b == "" || seen[b] {
			continue
		}
		seen[b] = true
		unique = append(unique, b)
	}
	return unique
}

// Snapshot is one generation of the schedule
type Snapshot struct {
	CapturedAt time.Time `json:"generatedAt"`
	ForDate    string    `json:"forDate"` // DD.MM, empty when the source had no date
	Records    []*Record `json:"items"`
}

// NewSnapshot creates a snapshot captured at the given time
func NewSnapshot(capturedAt time.Time, forDate string, records []*Record) *Snapshot {
	if records == nil {
		records = make([]*Record, 0)
	}
	return &Snapshot{
		CapturedAt: capturedAt,
		ForDate:    forDate,
		Records:    records,
	}
}

// IsEmpty reports whether the snapshot is missing or has no records.
// An empty snapshot counts as a failed acquisition.
func (s *Snapshot) IsEmpty() bool {
	return s == nil || len(s.Records) == 0
}

// Clone returns a deep copy of the snapshot
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	records := make([]*Record, len(s.Records))
	for i, r := range s.Records {
		rc := *r
		rc.Buses = append([]string(nil), r.Buses...)
		records[i] = &rc
	}
	return NewSnapshot(s.CapturedAt, s.ForDate, records)
}

// Generation selects one of the two cached snapshots
type Generation string

const (
	Current  Generation = "current"
	Previous Generation = "previous"
)

// ParseGeneration converts a user-supplied name into a Generation
func ParseGeneration(name string) (Generation, bool) {
	switch Generation(strings.ToLower(strings.TrimSpace(name))) {
	case Current:
		return Current, true
	case Previous:
		return Previous, true
	}
	return "", false
}

// State holds the current and previous generations
type State struct {
	Current  *Snapshot `json:"current,omitempty"`
	Previous *Snapshot `json:"previous,omitempty"`
}

// Get returns the snapshot for a generation, or nil
func (s State) Get(gen Generation) *Snapshot {
	switch gen {
	case Current:
		return s.Current
	case Previous:
		return s.Previous
	}
	return nil
}

// Promote installs candidate as the current generation.
// The old current moves into previous only when the declared date changed and
// previous does not already hold that date. Returns the new state and whether
// archival happened.
func Promote(state State, candidate *Snapshot) (State, bool) {
	next := State{Current: candidate, Previous: state.Previous}

	cur := state.Current
	if cur == nil || cur.ForDate == "" || candidate.ForDate == "" {
		return next, false
	}
	if candidate.ForDate == cur.ForDate {
		return next, false
	}
	if state.Previous != nil && state.Previous.ForDate == cur.ForDate {
		return next, false
	}

	next.Previous = cur
	return next, true
}
