package core

import "time"

// Period is a half-open time window [Start, End).
type Period struct {
	Start time.Time
	End   time.Time
}

// MonthOf returns the calendar month containing t, evaluated in loc.
func MonthOf(t time.Time, loc *time.Location) Period {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
	return Period{Start: start, End: start.AddDate(0, 1, 0)}
}
