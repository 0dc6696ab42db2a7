package calendar

import (
	"fmt"
	"strings"
	"time"

	"github.com/pfrederiksen/shuttle-schedule/internal/schedule"
)

// DefaultDuration is the length given to each departure entry
const DefaultDuration = 15 * time.Minute

// Options controls calendar generation
type Options struct {
	Name     string         // X-WR-CALNAME; omitted when empty
	Location *time.Location // zone the departure times are in; defaults to time.Local
	Duration time.Duration  // length of each entry; defaults to DefaultDuration
	Now      time.Time      // DTSTAMP and fallback service date; defaults to time.Now
}

func (o Options) withDefaults() Options {
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.Duration <= 0 {
		o.Duration = DefaultDuration
	}
	if o.Now.IsZero() {
		o.Now = time.Now()
	}
	return o
}

// ServiceDate resolves the day a snapshot describes. The declared DD.MM date is
// placed in the year that keeps it nearest to now; without one, today is used.
func ServiceDate(forDate string, now time.Time) time.Time {
	today := schedule.StartOfDay(now)
	if forDate == "" {
		return today
	}

	d := schedule.ParseForDate(forDate, now.Year(), now.Location())
	if d.IsZero() {
		return today
	}
	// A January date published in late December belongs to next year
	if today.Sub(d) > 180*24*time.Hour {
		d = schedule.ParseForDate(forDate, now.Year()+1, now.Location())
	}
	return d
}

// GenerateICS generates an iCalendar (.ics) file for one departure on day.
// Returns an empty string when the departure time cannot be read.
func GenerateICS(r *schedule.Record, day time.Time, opts Options) string {
	return GenerateBulkICS([]*schedule.Record{r}, day, opts)
}

// GenerateBulkICS generates a calendar with one entry per departure on day.
// Records whose time cannot be read are skipped; with no entries left the
// result is an empty string.
func GenerateBulkICS(records []*schedule.Record, day time.Time, opts Options) string {
	opts = opts.withDefaults()

	var events strings.Builder
	count := 0
	for i, r := range records {
		if writeEvent(&events, r, day, i, opts) {
			count++
		}
	}
	if count == 0 {
		return ""
	}

	var ics strings.Builder
	ics.WriteString("BEGIN:VCALENDAR\r\n")
	ics.WriteString("VERSION:2.0\r\n")
	ics.WriteString("PRODID:-//Shuttle Schedule//shuttle-schedule//EN\r\n")
	ics.WriteString("CALSCALE:GREGORIAN\r\n")
	ics.WriteString("METHOD:PUBLISH\r\n")
	if opts.Name != "" {
		ics.WriteString(fmt.Sprintf("X-WR-CALNAME:%s\r\n", escapeICS(opts.Name)))
	}
	ics.WriteString(events.String())
	ics.WriteString("END:VCALENDAR\r\n")

	return ics.String()
}

// writeEvent appends one VEVENT and reports whether it was written
func writeEvent(ics *strings.Builder, r *schedule.Record, day time.Time, index int, opts Options) bool {
	clock, err := time.Parse("15:04", strings.TrimSpace(r.Time))
	if err != nil {
		return false
	}

	start := time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), 0, 0, opts.Location)
	end := start.Add(opts.Duration)

	ics.WriteString("BEGIN:VEVENT\r\n")

	// UID is stable across exports of the same schedule
	ics.WriteString(fmt.Sprintf("UID:%s-%s-%d@shuttle-schedule\r\n",
		start.Format("20060102"), start.Format("1504"), index))
	ics.WriteString(fmt.Sprintf("DTSTAMP:%s\r\n", formatICSTime(opts.Now)))
	ics.WriteString(fmt.Sprintf("DTSTART:%s\r\n", formatICSTime(start)))
	ics.WriteString(fmt.Sprintf("DTEND:%s\r\n", formatICSTime(end)))
	ics.WriteString(fmt.Sprintf("SUMMARY:%s\r\n", escapeICS(summary(r))))

	var desc []string
	if len(r.Buses) > 0 {
		desc = append(desc, "Buses: "+strings.Join(r.Buses, ", "))
	}
	if stops := r.Stops(); len(stops) > 1 {
		desc = append(desc, "Stops: "+strings.Join(stops, " → "))
	}
	if r.Description != "" {
		desc = append(desc, r.Description)
	}
	if len(desc) > 0 {
		ics.WriteString(fmt.Sprintf("DESCRIPTION:%s\r\n", escapeICS(strings.Join(desc, "\n"))))
	}

	// LOCATION - departure stop
	if stops := r.Stops(); len(stops) > 0 {
		ics.WriteString(fmt.Sprintf("LOCATION:%s\r\n", escapeICS(stops[0])))
	}

	ics.WriteString("STATUS:CONFIRMED\r\n")
	ics.WriteString("SEQUENCE:0\r\n")
	ics.WriteString("TRANSP:TRANSPARENT\r\n")
	ics.WriteString("END:VEVENT\r\n")
	return true
}

func summary(r *schedule.Record) string {
	route := r.Route
	if route == "" {
		route = "Shuttle"
	}
	if len(r.Buses) == 0 {
		return route
	}
	return fmt.Sprintf("%s (%s)", route, strings.Join(r.Buses, ", "))
}

// formatICSTime formats a time.Time as an iCalendar datetime string
func formatICSTime(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}

// escapeICS escapes special characters for iCalendar format
func escapeICS(s string) string {
	// RFC 5545 text escaping
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, ",", "\\,")
	s = strings.ReplaceAll(s, ";", "\\;")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}
