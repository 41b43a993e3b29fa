package domain

import (
	"sort"
	"time"
)

// EntryDays returns the sorted, distinct days of month on which entries were
// written, using the calendar of loc.
func EntryDays(entries []Entry, loc *time.Location, year int, month time.Month) []int {
	seen := make(map[int]struct{})
	for _, e := range entries {
		lt := e.CreatedAt.In(loc)
		if lt.Year() != year || lt.Month() != month {
			continue
		}
		seen[lt.Day()] = struct{}{}
	}
	days := make([]int, 0, len(seen))
	for d := range seen {
		days = append(days, d)
	}
	sort.Ints(days)
	return days
}

// MonthRange returns the UTC bounds [start, end) of a month in loc.
func MonthRange(loc *time.Location, year int, month time.Month) (time.Time, time.Time) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	return start.UTC(), start.AddDate(0, 1, 0).UTC()
}
