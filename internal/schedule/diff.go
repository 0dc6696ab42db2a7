package schedule

import (
	"sort"
	"strconv"
	"strings"
)

// Change kinds reported by Diff for a departure present in both snapshots
const (
	ChangeBuses       = "buses"
	ChangeDescription = "description"
)

// RecordChange describes one field that differs for the same departure
type RecordChange struct {
	Record   *Record `json:"record"`
	Field    string  `json:"field"`
	OldValue string  `json:"old_value"`
	NewValue string  `json:"new_value"`
}

// DiffResult contains the results of comparing two snapshots of the same day
type DiffResult struct {
	Added   []*Record
	Removed []*Record
	Changes []*RecordChange
}

// IsEmpty reports whether the snapshots hold the same departures
func (d *DiffResult) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changes) == 0
}

// departureKey identifies a departure across fetches: its time and route
func departureKey(r *Record) string {
	return strings.TrimSpace(r.Time) + "|" + strings.ToLower(strings.TrimSpace(r.Route))
}

// Diff compares the departures of current against previous.
// Departures sharing a key are paired in order of appearance.
func Diff(previous, current *Snapshot) *DiffResult {
	result := &DiffResult{
		Added:   make([]*Record, 0),
		Removed: make([]*Record, 0),
		Changes: make([]*RecordChange, 0),
	}

	pending := make(map[string][]*Record)
	if previous != nil {
		for _, r := range previous.Records {
			key := departureKey(r)
			pending[key] = append(pending[key], r)
		}
	}

	if current != nil {
		for _, r := range current.Records {
			key := departureKey(r)
			old := pending[key]
			if len(old) == 0 {
				result.Added = append(result.Added, r)
				continue
			}
			pending[key] = old[1:]
			result.Changes = append(result.Changes, DetectChanges(old[0], r)...)
		}
	}

	for _, left := range pending {
		result.Removed = append(result.Removed, left...)
	}

	sortByTime(result.Added)
	sortByTime(result.Removed)
	return result
}

// DetectChanges compares two records of the same departure
func DetectChanges(previous, current *Record) []*RecordChange {
	var changes []*RecordChange

	oldBuses := strings.Join(previous.Buses, ", ")
	newBuses := strings.Join(current.Buses, ", ")
	if oldBuses != newBuses {
		changes = append(changes, &RecordChange{
			Record:   current,
			Field:    ChangeBuses,
			OldValue: oldBuses,
			NewValue: newBuses,
		})
	}

	if previous.Description != current.Description {
		changes = append(changes, &RecordChange{
			Record:   current,
			Field:    ChangeDescription,
			OldValue: previous.Description,
			NewValue: current.Description,
		})
	}

	return changes
}

func sortByTime(records []*Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Time != records[j].Time {
			return clockMinutes(records[i].Time) < clockMinutes(records[j].Time)
		}
		return records[i].Route < records[j].Route
	})
}

// clockMinutes reads an H:MM label as minutes since midnight; unreadable labels sort last
func clockMinutes(label string) int {
	h, m, ok := strings.Cut(strings.TrimSpace(label), ":")
	hours, herr := strconv.Atoi(h)
	minutes, merr := strconv.Atoi(m)
	if !ok || herr != nil || merr != nil {
		return 24 * 60
	}
	return hours*60 + minutes
}
