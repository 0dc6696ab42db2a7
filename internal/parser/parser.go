package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/pfrederiksen/shuttle-schedule/internal/schedule"
)

// DefaultTimeHeader is the header cell text of the time column on the upstream page
const DefaultTimeHeader = "Время"

// ErrNoRecords is reported when a payload parses cleanly but yields no schedule rows
var ErrNoRecords = errors.New("parsed 0 rows")

var (
	// busPattern matches standalone 1-3 digit numbers
	busPattern = regexp.MustCompile(`\b\d{1,3}\b`)

	// clockPattern matches a time cell starting with H:MM or HH:MM
	clockPattern = regexp.MustCompile(`^\d{1,2}:\d{2}`)

	// lineTimePattern matches a plain-text line starting with H:MM or HH:MM
	lineTimePattern = regexp.MustCompile(`^(\d{1,2}:\d{2})\s+(.+)$`)

	parenGroup = regexp.MustCompile(`\(([^)]*)\)`)
	nonDigits  = regexp.MustCompile(`\D`)
	tokenSplit = regexp.MustCompile(`[\s,]+`)
	spaceRun   = regexp.MustCompile(`\s+`)
)

// Options configures a Parser
type Options struct {
	// TimeHeader is skipped when it appears as a time cell (case-insensitive)
	TimeHeader string
	// Permissive also collects bus numbers from the route and description cells
	Permissive bool
}

// Parser turns raw page payloads into snapshots. It holds no per-parse state.
type Parser struct {
	timeHeader string
	permissive bool
	now        func() time.Time
}

// New creates a Parser
func New(opts Options) *Parser {
	header := strings.TrimSpace(opts.TimeHeader)
	if header == "" {
		header = DefaultTimeHeader
	}
	return &Parser{
		timeHeader: header,
		permissive: opts.Permissive,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// DetectStructured reports whether payload contains an HTML table
func DetectStructured(payload string) bool {
	return strings.Contains(strings.ToLower(payload), "<table")
}

// ParseAuto parses payload in whichever mode its content shape calls for
func (p *Parser) ParseAuto(payload string) (*schedule.Snapshot, error) {
	return p.Parse(payload, DetectStructured(payload))
}

// Parse converts payload into a snapshot. A payload without qualifying rows yields
// an empty snapshot, not an error; callers decide whether that counts as a failure.
func (p *Parser) Parse(payload string, structured bool) (*schedule.Snapshot, error) {
	if structured {
		return p.parseTable(payload)
	}
	return p.parseText(payload), nil
}

// parseTable reads the rows of the schedule table: the first table with a row
// timed H:MM, or else the first table with any rows. Layout tables before it
// are skipped.
func (p *Parser) parseTable(payload string) (*schedule.Snapshot, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}

	forDate := schedule.ExtractForDate(doc.Find("body").Text())
	var fallback []*schedule.Record
	var records []*schedule.Record

	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		rows, timed := p.tableRows(table)
		if timed {
			records = rows
			return false
		}
		if fallback == nil && len(rows) > 0 {
			fallback = rows
		}
		return true
	})

	if records == nil {
		records = fallback
	}
	if records == nil {
		records = make([]*schedule.Record, 0)
	}
	return schedule.NewSnapshot(p.now(), forDate, records), nil
}

// tableRows converts the rows owned by table, skipping its header row.
// timed reports whether any row starts with an H:MM time.
func (p *Parser) tableRows(table *goquery.Selection) (records []*schedule.Record, timed bool) {
	own := table.Find("tr").FilterFunction(func(_ int, row *goquery.Selection) bool {
		return row.Closest("table").IsSelection(table)
	})

	own.Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			return // header
		}

		cells := row.ChildrenFiltered("td")
		if cells.Length() < 2 {
			return
		}

		timeLabel := cellText(cells, 0)
		if timeLabel == "" || strings.EqualFold(timeLabel, p.timeHeader) {
			return
		}
		route := cellText(cells, 1)

		var descParts []string
		for j := 3; j < cells.Length(); j++ {
			if text := cellText(cells, j); text != "" {
				descParts = append(descParts, text)
			}
		}
		description := strings.Join(descParts, "; ")

		busSources := []string{cellText(cells, 2)}
		if p.permissive {
			busSources = append(busSources, route, description)
		}

		if clockPattern.MatchString(timeLabel) {
			timed = true
		}
		records = append(records, schedule.NewRecord(timeLabel, extractBuses(busSources...), route, description))
	})

	return records, timed
}

// parseText reads "HH:MM remainder" lines from a text extraction of the page
func (p *Parser) parseText(payload string) *schedule.Snapshot {
	records := make([]*schedule.Record, 0)

	for _, line := range strings.Split(payload, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		m := lineTimePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		timeLabel, rest := m[1], m[2]

		var buses []string
		if group := parenGroup.FindStringSubmatchIndex(rest); group != nil {
			buses = parenBuses(rest[group[2]:group[3]])
			rest = rest[:group[0]] + " " + rest[group[1]:]
			rest = strings.TrimSpace(spaceRun.ReplaceAllString(rest, " "))
		} else {
			buses = extractBuses(rest)
		}

		route, description := splitDash(rest)
		if route == "" {
			continue
		}

		records = append(records, schedule.NewRecord(timeLabel, buses, route, description))
	}

	return schedule.NewSnapshot(p.now(), schedule.ExtractForDate(payload), records)
}

// extractBuses collects 1-3 digit numbers from texts in order, parentheses ignored
func extractBuses(texts ...string) []string {
	var buses []string
	for _, text := range texts {
		text = strings.NewReplacer("(", " ", ")", " ").Replace(text)
		buses = append(buses, busPattern.FindAllString(text, -1)...)
	}
	return schedule.UniqueBuses(buses)
}

// parenBuses reads a parenthesized bus list such as "101, №204 305"
func parenBuses(group string) []string {
	var buses []string
	for _, tok := range tokenSplit.Split(group, -1) {
		if digits := nonDigits.ReplaceAllString(tok, ""); digits != "" {
			buses = append(buses, digits)
		}
	}
	return schedule.UniqueBuses(buses)
}

// splitDash splits on the first en or em dash into route and description
func splitDash(s string) (string, string) {
	idx := strings.IndexAny(s, "–—")
	if idx < 0 {
		return strings.TrimSpace(s), ""
	}
	_, size := utf8.DecodeRuneInString(s[idx:])
	return strings.TrimSpace(s[:idx]), strings.TrimSpace(s[idx+size:])
}

func cellText(cells *goquery.Selection, i int) string {
	if i >= cells.Length() {
		return ""
	}
	return strings.TrimSpace(cells.Eq(i).Text())
}
