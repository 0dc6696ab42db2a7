package cli

import (
	"sort"
	"strconv"

	"github.com/pfrederiksen/shuttle-schedule/internal/schedule"
)

// SortOrder represents the available sorting options
type SortOrder string

const (
	SortByTime SortOrder = "time"
	SortByBus  SortOrder = "bus"
)

// noBus ranks records without a readable first bus number after all others
const noBus = 9999

// sortRecords sorts records in place. Records that compare equal keep their order.
func sortRecords(records []*schedule.Record, order SortOrder) {
	switch order {
	case SortByTime:
		sort.SliceStable(records, func(i, j int) bool {
			return naturalLess(records[i].Time, records[j].Time)
		})
	case SortByBus:
		sort.SliceStable(records, func(i, j int) bool {
			return busRank(records[i]) < busRank(records[j])
		})
	}
}

// busRank returns the leading number of the first bus, or noBus
func busRank(r *schedule.Record) int {
	digits := leadingDigits(r.FirstBus())
	if digits == "" {
		return noBus
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n == 0 {
		return noBus
	}
	return n
}

// naturalLess compares strings treating digit runs as numbers, so "8:05" < "10:00"
func naturalLess(a, b string) bool {
	ra, rb := []rune(a), []rune(b)
	i, j := 0, 0

	for i < len(ra) && j < len(rb) {
		if isDigit(ra[i]) && isDigit(rb[j]) {
			si := i
			for i < len(ra) && isDigit(ra[i]) {
				i++
			}
			sj := j
			for j < len(rb) && isDigit(rb[j]) {
				j++
			}
			na, _ := strconv.Atoi(string(ra[si:i]))
			nb, _ := strconv.Atoi(string(rb[sj:j]))
			if na != nb {
				return na < nb
			}
			continue
		}

		if ra[i] != rb[j] {
			return ra[i] < rb[j]
		}
		i++
		j++
	}

	return len(ra)-i < len(rb)-j
}

func leadingDigits(s string) string {
	for i, r := range s {
		if !isDigit(r) {
			return s[:i]
		}
	}
	return s
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
