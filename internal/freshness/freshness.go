package freshness

import (
	"time"

	"github.com/pfrederiksen/shuttle-schedule/internal/schedule"
)

// DefaultMaxAge is how long a capture stays usable regardless of its declared date
const DefaultMaxAge = 15 * time.Hour

// Evaluator applies the staleness rules with a configurable age threshold
type Evaluator struct {
	MaxAge time.Duration
}

// New creates an Evaluator. A non-positive maxAge selects DefaultMaxAge.
func New(maxAge time.Duration) Evaluator {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return Evaluator{MaxAge: maxAge}
}

// IsStale checks a capture against the default threshold
func IsStale(capturedAt time.Time, forDate string, now time.Time) bool {
	return New(DefaultMaxAge).IsStale(capturedAt, forDate, now)
}

// IsStale reports whether a capture taken at capturedAt and declaring forDate
// should no longer be trusted at now. forDate is resolved in now's location.
func (e Evaluator) IsStale(capturedAt time.Time, forDate string, now time.Time) bool {
	if capturedAt.IsZero() {
		return true
	}
	if now.Sub(capturedAt) > e.MaxAge {
		return true
	}
	if forDate == "" {
		return false
	}
	return !acceptableDate(forDate, now)
}

// SnapshotIsStale applies IsStale to a snapshot. A nil snapshot is stale.
func (e Evaluator) SnapshotIsStale(s *schedule.Snapshot, now time.Time) bool {
	if s == nil {
		return true
	}
	return e.IsStale(s.CapturedAt, s.ForDate, now)
}

// acceptableDate reports whether label names today or tomorrow.
// The label has no year: it is tried in the current year, then the next one;
// "01.01" published on December 31 counts as tomorrow.
func acceptableDate(label string, now time.Time) bool {
	today := schedule.StartOfDay(now)
	tomorrow := today.AddDate(0, 0, 1)

	for _, year := range []int{now.Year(), now.Year() + 1} {
		d := schedule.ParseForDate(label, year, now.Location())
		if d.IsZero() {
			return false
		}
		if d.Equal(today) || d.Equal(tomorrow) {
			return true
		}
	}
	return false
}
