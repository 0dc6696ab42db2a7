package freshness

import (
	"testing"
	"time"

	"github.com/pfrederiksen/shuttle-schedule/internal/schedule"
)

func TestIsStale(t *testing.T) {
	now := time.Date(2026, time.May, 12, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		capturedAt time.Time
		forDate    string
		want       bool
	}{
		{"missing capture time", time.Time{}, "12.05", true},
		{"20 hours old without date", now.Add(-20 * time.Hour), "", true},
		{"just over threshold", now.Add(-15*time.Hour - time.Second), "12.05", true},
		{"exactly at threshold", now.Add(-15 * time.Hour), "", false},
		{"recent without date", now.Add(-time.Hour), "", false},
		{"recent for today", now.Add(-time.Hour), "12.05", false},
		{"recent for tomorrow", now.Add(-time.Hour), "13.05", false},
		{"recent for yesterday", now.Add(-time.Hour), "11.05", true},
		{"recent for day after tomorrow", now.Add(-time.Hour), "14.05", true},
		{"single digit label", now.Add(-time.Hour), "12.5", false},
		{"impossible date", now.Add(-time.Hour), "31.02", true},
		{"garbage date", now.Add(-time.Hour), "12.05.2026", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsStale(tt.capturedAt, tt.forDate, now); got != tt.want {
				t.Errorf("IsStale() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsStale_YearBoundary(t *testing.T) {
	now := time.Date(2026, time.December, 31, 19, 0, 0, 0, time.UTC)
	captured := now.Add(-time.Hour)

	if IsStale(captured, "01.01", now) {
		t.Error("01.01 on December 31 should count as tomorrow")
	}
	if !IsStale(captured, "02.01", now) {
		t.Error("02.01 on December 31 should be stale")
	}
	if IsStale(captured, "31.12", now) {
		t.Error("31.12 on December 31 should count as today")
	}
}

func TestIsStale_Monotonic(t *testing.T) {
	start := time.Date(2026, time.May, 12, 6, 0, 0, 0, time.UTC)
	captured := start.Add(-30 * time.Minute)

	for _, d := range []string{"", "12.05", "13.05"} {
		for offset := time.Duration(0); offset < 10*time.Hour; offset += time.Hour {
			now := start.Add(offset)
			if IsStale(captured, d, now) {
				continue
			}
			if !IsStale(captured, d, now.Add(16*time.Hour)) {
				t.Errorf("forDate %q: fresh at %v but not stale 16h later", d, now)
			}
		}
	}
}

func TestEvaluator_CustomMaxAge(t *testing.T) {
	now := time.Date(2026, time.May, 12, 10, 0, 0, 0, time.UTC)
	e := New(2 * time.Hour)

	if e.IsStale(now.Add(-time.Hour), "", now) {
		t.Error("1h old capture should be fresh with 2h threshold")
	}
	if !e.IsStale(now.Add(-3*time.Hour), "", now) {
		t.Error("3h old capture should be stale with 2h threshold")
	}

	if New(0).MaxAge != DefaultMaxAge {
		t.Errorf("New(0).MaxAge = %v, want %v", New(0).MaxAge, DefaultMaxAge)
	}
}

func TestEvaluator_SnapshotIsStale(t *testing.T) {
	now := time.Date(2026, time.May, 12, 10, 0, 0, 0, time.UTC)
	e := New(DefaultMaxAge)

	if !e.SnapshotIsStale(nil, now) {
		t.Error("nil snapshot should be stale")
	}

	s := schedule.NewSnapshot(now.Add(-time.Hour), "12.05", nil)
	if e.SnapshotIsStale(s, now) {
		t.Error("fresh snapshot reported stale")
	}
}
