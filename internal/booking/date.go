package booking

import (
	"fmt"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// NormalizeDate turns a request date into a civil date at midnight UTC.
// Plain dates are taken as-is. Timestamps with a zone are first moved into loc,
// zone-less timestamps are read in loc, so the calendar day is the one a
// resident in loc would see.
func NormalizeDate(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if loc == nil {
		loc = time.UTC
	}

	if t, err := time.Parse(DateLayout, raw); err == nil {
		return t, nil
	}

	for _, layout := range timestampLayouts {
		t, err := time.ParseInLocation(layout, raw, loc)
		if err == nil {
			return CivilDate(t.In(loc)), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD or RFC3339", raw)
}

// CivilDate strips the time of day from t, keeping its calendar date.
func CivilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DayBounds returns the first and last instant of date's calendar day.
func DayBounds(date time.Time) (startOfDay, endOfDay time.Time) {
	startOfDay = CivilDate(date)
	endOfDay = startOfDay.AddDate(0, 0, 1).Add(-time.Nanosecond)
	return startOfDay, endOfDay
}
