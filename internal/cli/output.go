package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pfrederiksen/shuttle-schedule/internal/cache"
	"github.com/pfrederiksen/shuttle-schedule/internal/calendar"
	"github.com/pfrederiksen/shuttle-schedule/internal/schedule"
)

// OutputFormat specifies the output format
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
	FormatICS  OutputFormat = "ics"
)

// ErrNothingToExport is returned for a calendar export without readable departures
var ErrNothingToExport = errors.New("no departures to export")

// ParseFormat validates a user-supplied format name
func ParseFormat(name string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(name))); f {
	case FormatText, FormatJSON, FormatICS:
		return f, nil
	}
	return "", fmt.Errorf("invalid format: %s (must be 'text', 'json' or 'ics')", name)
}

// OutputResult contains data to be output
type OutputResult struct {
	ForDate    string              `json:"for_date"`
	Generation schedule.Generation `json:"generation"`
	Source     cache.Source        `json:"source,omitempty"`
	Stale      bool                `json:"stale"`
	CapturedAt time.Time           `json:"captured_at"`
	Filter     string              `json:"filter,omitempty"`
	Warning    string              `json:"warning,omitempty"`
	Count      int                 `json:"count"`
	Records    []*schedule.Record  `json:"items"`

	// Now is the render time; the header falls back to its date
	Now time.Time `json:"-"`
}

// WriteOutput writes the result in the specified format
func WriteOutput(w io.Writer, result *OutputResult, format OutputFormat, verbose bool) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, result)
	case FormatText:
		return writeText(w, result, verbose)
	case FormatICS:
		return writeICS(w, result)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

// writeJSON outputs results as JSON
func writeJSON(w io.Writer, result *OutputResult) error {
	return writeJSONValue(w, result)
}

func writeJSONValue(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// writeICS exports the departures as an iCalendar file for the schedule's day
func writeICS(w io.Writer, result *OutputResult) error {
	now := result.renderTime()
	day := calendar.ServiceDate(result.ForDate, now)

	ics := calendar.GenerateBulkICS(result.Records, day, calendar.Options{
		Name:     "Shuttle schedule " + schedule.FormatForDate(day),
		Location: now.Location(),
		Now:      now,
	})
	if ics == "" {
		return ErrNothingToExport
	}
	_, err := io.WriteString(w, ics)
	return err
}

// writeText outputs results as human-readable departure cards
func writeText(w io.Writer, result *OutputResult, verbose bool) error {
	now := result.renderTime()

	fmt.Fprintf(w, "Shuttle schedule for %s", result.headerDate())
	if result.Generation == schedule.Previous {
		fmt.Fprint(w, " (previous day)")
	}
	fmt.Fprintln(w)

	if line := updatedLine(result, now); line != "" {
		fmt.Fprintln(w, line)
	}
	if result.Stale {
		fmt.Fprintln(w, "Warning: this schedule may be out of date.")
	}
	if result.Warning != "" {
		fmt.Fprintf(w, "Warning: %s\n", result.Warning)
	}
	if result.Filter != "" {
		fmt.Fprintf(w, "Filter: %s\n", result.Filter)
	}

	if len(result.Records) == 0 {
		fmt.Fprintln(w, "\nNo departures found.")
		return nil
	}

	for _, r := range result.Records {
		fmt.Fprintln(w)
		writeCard(w, r, verbose)
	}

	fmt.Fprintf(w, "\nTotal: %d departures\n", len(result.Records))
	return nil
}

func writeCard(w io.Writer, r *schedule.Record, verbose bool) {
	header := r.Time
	for _, bus := range r.Buses {
		header += "  № " + bus
	}
	fmt.Fprintln(w, header)

	stops := r.Stops()
	if len(stops) == 0 {
		if r.Route != "" {
			fmt.Fprintf(w, "  %s\n", r.Route)
		}
	}
	for i, stop := range stops {
		label := "Stop"
		switch {
		case i == 0:
			label = "Departure"
		case i == len(stops)-1:
			label = "Arrival"
		}
		fmt.Fprintf(w, "  %-10s %s\n", label+":", stop)
	}

	if r.Description != "" {
		fmt.Fprintf(w, "  Note: %s\n", r.Description)
	}
	if verbose {
		fmt.Fprintf(w, "  Index: %s\n", r.Keywords)
	}
}

// updatedLine describes where the data came from and when
func updatedLine(result *OutputResult, now time.Time) string {
	stamp := func(t time.Time) string {
		return t.In(now.Location()).Format("02.01 15:04")
	}

	switch result.Source {
	case cache.SourceLive:
		return "Updated just now: " + now.Format("15:04")
	case cache.SourceCache:
		if result.CapturedAt.IsZero() {
			return "Showing cached data"
		}
		return "Showing cached data from " + stamp(result.CapturedAt)
	}
	if result.CapturedAt.IsZero() {
		return ""
	}
	return "Updated: " + stamp(result.CapturedAt)
}

func (r *OutputResult) headerDate() string {
	if r.ForDate != "" {
		return r.ForDate
	}
	return schedule.FormatForDate(r.renderTime())
}

func (r *OutputResult) renderTime() time.Time {
	if r.Now.IsZero() {
		return time.Now()
	}
	return r.Now
}
