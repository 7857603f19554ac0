package booking

import (
	"fmt"
	"strings"
	"time"

	"github.com/seyone-projects/reda-backend/internal/models"
)

// Clock is a wall-clock time of day in minutes since midnight.
// Values past 24:00 are allowed as arithmetic results and wrap when printed.
type Clock int

const minutesPerDay = 24 * 60

// ParseClock reads "H:MM" or "HH:MM" (24h).
func ParseClock(s string) (Clock, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(mm) != 2 || hh == "" || len(hh) > 2 {
		return 0, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	h, ok := parseDigits(hh)
	if !ok || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, ok := parseDigits(mm)
	if !ok || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return Clock(h*60 + m), nil
}

// parseDigits accepts ASCII digits only, so signs and spaces are rejected.
func parseDigits(s string) (int, bool) {
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, s != ""
}

// MustClock is ParseClock for literals. It panics on malformed input.
func MustClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

// String formats c as zero-padded "HH:MM".
func (c Clock) String() string {
	m := int(c) % minutesPerDay
	if m < 0 {
		m += minutesPerDay
	}
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// Add shifts c by d, truncated to whole minutes.
func (c Clock) Add(d time.Duration) Clock {
	return c + Clock(d/time.Minute)
}

// TimeRange is a day-agnostic interval of wall-clock time.
type TimeRange struct {
	Start Clock
	End   Clock
}

// ParseRange parses a start/end pair. End must be strictly after start.
func ParseRange(start, end string) (TimeRange, error) {
	s, err := ParseClock(start)
	if err != nil {
		return TimeRange{}, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return TimeRange{}, err
	}
	if e <= s {
		return TimeRange{}, fmt.Errorf("end time %s must be after start time %s", e, s)
	}
	return TimeRange{Start: s, End: e}, nil
}

// Contains reports whether c lies in [Start, End], both ends inclusive.
func (r TimeRange) Contains(c Clock) bool {
	return c >= r.Start && c <= r.End
}

// Overlaps is the half-open interval test: r.Start < o.End && o.Start < r.End.
// Touching ranges (one ends exactly where the other starts) do not overlap.
func (r TimeRange) Overlaps(o TimeRange) bool {
	return r.Start < o.End && o.Start < r.End
}

func (r TimeRange) String() string {
	return r.Start.String() + "-" + r.End.String()
}

const (
	morningStart   Clock = 6 * 60
	morningEnd     Clock = 12 * 60
	afternoonStart Clock = 12 * 60
	afternoonEnd   Clock = 18 * 60
)

// MorningRange is [06:00, 12:00].
func MorningRange() TimeRange { return TimeRange{Start: morningStart, End: morningEnd} }

// AfternoonRange is [12:00, 18:00].
func AfternoonRange() TimeRange { return TimeRange{Start: afternoonStart, End: afternoonEnd} }

// RangeForSlot maps a half-day slot to the time it occupies.
func RangeForSlot(slot models.TimeSlot) (TimeRange, bool) {
	switch slot {
	case models.SlotMorning:
		return MorningRange(), true
	case models.SlotAfternoon:
		return AfternoonRange(), true
	default:
		return TimeRange{}, false
	}
}
