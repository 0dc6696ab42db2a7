package schedule

import (
	"regexp"
	"strconv"
	"time"
)

var (
	// forDatePattern matches "D.M", "DD.MM" and "DD.MM.YYYY"
	forDatePattern = regexp.MustCompile(`\d{1,2}\.\d{1,2}(?:\.\d{4})?`)
	yearSuffix     = regexp.MustCompile(`\.\d{4}$`)
	labelPattern   = regexp.MustCompile(`^(\d{1,2})\.(\d{1,2})$`)
)

// ExtractForDate finds the first date token in text and returns it without its year.
// Returns "" if text contains no date.
func ExtractForDate(text string) string {
	match := forDatePattern.FindString(text)
	if match == "" {
		return ""
	}
	return yearSuffix.ReplaceAllString(match, "")
}

// ParseForDate resolves a "DD.MM" label to midnight of that day in the given year and location.
// Returns the zero time if the label is malformed or names a day that does not exist.
func ParseForDate(label string, year int, loc *time.Location) time.Time {
	m := labelPattern.FindStringSubmatch(label)
	if m == nil {
		return time.Time{}
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	if month < 1 || month > 12 || day < 1 {
		return time.Time{}
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
	// time.Date normalizes 31.02 into March; reject it instead
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}
	}
	return t
}

// FormatForDate renders a time as a "DD.MM" label
func FormatForDate(t time.Time) string {
	return t.Format("02.01")
}

// StartOfDay truncates t to local midnight
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
