// Package filter narrows a schedule down to the departures a rider cares about.
//
// A filter combines up to four criteria, all of which must hold:
//   - From: some stop of the route contains this text
//   - To: some stop contains this text, and comes after the From stop when both are set
//   - Query: the record's search index contains this text
//   - Window: the departure time falls within a time-of-day range
//
// Text matching is case-insensitive substring matching.
//
// Example usage:
//
//	f := filter.NewFilter()
//	f.From = "гараж"
//	f.To = "цех"
//	matching := f.Apply(snapshot.Records)
package filter

import (
	"fmt"
	"strings"

	"github.com/pfrederiksen/shuttle-schedule/internal/schedule"
)

// Filter represents schedule filtering criteria
type Filter struct {
	From  string `json:"from,omitempty"`
	To    string `json:"to,omitempty"`
	Query string `json:"query,omitempty"`

	// Window restricts departure times; nil means any time
	Window *TimeWindow `json:"window,omitempty"`
}

// NewFilter creates an empty filter that matches every record
func NewFilter() *Filter {
	return &Filter{}
}

// IsEmpty checks if the filter has any active criteria
func (f *Filter) IsEmpty() bool {
	return strings.TrimSpace(f.From) == "" &&
		strings.TrimSpace(f.To) == "" &&
		strings.TrimSpace(f.Query) == "" &&
		f.Window == nil
}

// Matches checks if a record matches all active filter criteria.
// An empty filter matches all records.
//
// Matching logic:
//   - Query: lowercased search index must contain the query
//   - From: index of the first stop containing From; no such stop fails
//   - To: index of the first stop containing To; no such stop fails, and with
//     From set the To stop must come strictly later
//   - Window: departure time within the window (inclusive); unparseable times fail
func (f *Filter) Matches(r *schedule.Record) bool {
	if f.IsEmpty() {
		return true
	}

	query := normalize(f.Query)
	if query != "" {
		index := r.Keywords
		if index == "" {
			index = schedule.SearchIndex(r.Time, r.Buses, r.Route, r.Description)
		}
		if !strings.Contains(index, query) {
			return false
		}
	}

	from := normalize(f.From)
	to := normalize(f.To)
	if from != "" || to != "" {
		stops := r.Stops()

		fromIndex := stopIndex(stops, from)
		if from != "" && fromIndex == -1 {
			return false
		}

		if to != "" {
			toIndex := stopIndex(stops, to)
			if toIndex == -1 {
				return false
			}
			if from != "" && toIndex <= fromIndex {
				return false
			}
		}
	}

	if f.Window != nil && !f.Window.Contains(r.Time) {
		return false
	}

	return true
}

// Apply returns the records that match the filter.
// An empty filter returns the original slice unchanged.
func (f *Filter) Apply(records []*schedule.Record) []*schedule.Record {
	if f.IsEmpty() {
		return records
	}

	filtered := make([]*schedule.Record, 0, len(records))
	for _, r := range records {
		if f.Matches(r) {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// String returns a human-readable description of the active criteria.
// Format: "From: гараж | To: цех | Query: 101 | Between: 07:00-09:30"
func (f *Filter) String() string {
	if f.IsEmpty() {
		return "No active filters"
	}

	var parts []string
	if s := strings.TrimSpace(f.From); s != "" {
		parts = append(parts, fmt.Sprintf("From: %s", s))
	}
	if s := strings.TrimSpace(f.To); s != "" {
		parts = append(parts, fmt.Sprintf("To: %s", s))
	}
	if s := strings.TrimSpace(f.Query); s != "" {
		parts = append(parts, fmt.Sprintf("Query: %s", s))
	}
	if f.Window != nil {
		parts = append(parts, fmt.Sprintf("Between: %s", f.Window))
	}
	return strings.Join(parts, " | ")
}

// Clone creates a deep copy of the filter
func (f *Filter) Clone() *Filter {
	clone := &Filter{
		From:  f.From,
		To:    f.To,
		Query: f.Query,
	}
	if f.Window != nil {
		w := *f.Window
		clone.Window = &w
	}
	return clone
}

// stopIndex returns the index of the first stop containing needle, or -1
func stopIndex(stops []string, needle string) int {
	if needle == "" {
		return -1
	}
	for i, stop := range stops {
		if strings.Contains(strings.ToLower(stop), needle) {
			return i
		}
	}
	return -1
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
