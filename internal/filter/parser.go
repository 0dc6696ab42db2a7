package filter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	clockPattern = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?$`)
	rangePattern = regexp.MustCompile(`^(\S+)\s*-\s*(\S+)$`)
	routePattern = regexp.MustCompile(`\s*(?:→|->|>)\s*`)
)

// TimeWindow is an inclusive range of departure times, in minutes after midnight
type TimeWindow struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Contains reports whether a departure time label such as "8:05" is inside the window
func (w *TimeWindow) Contains(label string) bool {
	m, err := parseClock(label)
	if err != nil {
		return false
	}
	return m >= w.Start && m <= w.End
}

func (w *TimeWindow) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d", w.Start/60, w.Start%60, w.End/60, w.End%60)
}

// ParseTimeWindow parses a time-of-day range.
//
// Supported formats:
//   - "07:00-09:30" - Explicit range
//   - "7-9" - Whole hours; the end hour includes its last minute (09:59)
//   - "8" - A single hour (08:00-08:59)
//
// The start must not be after the end; windows never wrap past midnight.
func ParseTimeWindow(input string) (*TimeWindow, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, fmt.Errorf("time window cannot be empty")
	}

	// Format 1: single hour
	if matches := clockPattern.FindStringSubmatch(input); matches != nil && matches[2] == "" {
		h, err := parseHour(matches[1])
		if err != nil {
			return nil, err
		}
		return &TimeWindow{Start: h * 60, End: h*60 + 59}, nil
	}

	// Format 2: range of clock times or whole hours
	matches := rangePattern.FindStringSubmatch(input)
	if matches == nil {
		return nil, fmt.Errorf("invalid time window format. Use '07:00-09:30', '7-9', or '8'")
	}

	start, err := parseClock(matches[1])
	if err != nil {
		return nil, err
	}
	end, err := parseClock(matches[2])
	if err != nil {
		return nil, err
	}
	if !strings.Contains(matches[2], ":") {
		end += 59
	}

	if start > end {
		return nil, fmt.Errorf("start time must be before end time")
	}
	return &TimeWindow{Start: start, End: end}, nil
}

// ParseRoute splits a route query like "Гараж → Цех 3" or "Гараж > Цех" into
// its from and to parts. A query without an arrow only sets from.
func ParseRoute(input string) (from, to string, err error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", "", fmt.Errorf("route cannot be empty")
	}

	parts := routePattern.Split(input, -1)
	switch len(parts) {
	case 1:
		return parts[0], "", nil
	case 2:
		from, to = strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		if from == "" && to == "" {
			return "", "", fmt.Errorf("route needs at least one stop")
		}
		return from, to, nil
	}
	return "", "", fmt.Errorf("route must name at most two stops, got %d", len(parts))
}

// parseClock converts "H", "HH", "H:MM" or "HH:MM" into minutes after midnight
func parseClock(label string) (int, error) {
	matches := clockPattern.FindStringSubmatch(strings.TrimSpace(label))
	if matches == nil {
		return 0, fmt.Errorf("invalid time: %q", label)
	}

	h, err := parseHour(matches[1])
	if err != nil {
		return 0, err
	}

	m := 0
	if matches[2] != "" {
		m, _ = strconv.Atoi(matches[2])
		if m > 59 {
			return 0, fmt.Errorf("invalid minute: %s", matches[2])
		}
	}
	return h*60 + m, nil
}

func parseHour(s string) (int, error) {
	h, err := strconv.Atoi(s)
	if err != nil || h > 23 {
		return 0, fmt.Errorf("invalid hour: %s", s)
	}
	return h, nil
}
