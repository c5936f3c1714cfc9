// Package calendar holds the wall-clock and day-boundary helpers the slot engine and the
// scheduling service share. Wall-clock values are zero-padded 24h "HH:mm" strings, so
// lexicographic comparison matches chronological order.
package calendar

import (
	"fmt"
	"strings"
	"time"
)

const (
	MinutesPerDay = 24 * 60
	DateLayout    = "2006-01-02"
	ClockLayout   = "15:04"
)

// Clock is a time of day in minutes since midnight.
type Clock int

func ParseClock(hhmm string) (Clock, error) {
	s := strings.TrimSpace(hhmm)
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("calendar: invalid time of day %q", hhmm)
	}
	for _, i := range []int{0, 1, 3, 4} {
		if s[i] < '0' || s[i] > '9' {
			return 0, fmt.Errorf("calendar: invalid time of day %q", hhmm)
		}
	}
	h := int(s[0]-'0')*10 + int(s[1]-'0')
	m := int(s[3]-'0')*10 + int(s[4]-'0')
	if h > 23 || m > 59 {
		return 0, fmt.Errorf("calendar: invalid time of day %q", hhmm)
	}
	return Clock(h*60 + m), nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// AddMinutes shifts an HH:mm value by n minutes, wrapping around midnight.
func AddMinutes(hhmm string, n int) (string, error) {
	c, err := ParseClock(hhmm)
	if err != nil {
		return "", err
	}
	total := (int(c) + n) % MinutesPerDay
	if total < 0 {
		total += MinutesPerDay
	}
	return Clock(total).String(), nil
}

// CompareTimeOfDay returns -1, 0 or 1. Inputs are expected to be well-formed HH:mm.
func CompareTimeOfDay(a, b string) int {
	return strings.Compare(a, b)
}

// DayBounds returns [start, end) of the calendar day of date (its Y/M/D) in loc. On DST
// transition days the span is 23 or 25 hours.
func DayBounds(date time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := date.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	end := time.Date(y, m, d+1, 0, 0, 0, 0, loc)
	return start, end
}

// At is the instant at which wall clock c occurs on day's calendar date in loc.
func At(day time.Time, c Clock, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, int(c)/60, int(c)%60, 0, 0, loc)
}

func ClockOf(t time.Time, loc *time.Location) Clock {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return Clock(local.Hour()*60 + local.Minute())
}

func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("calendar: invalid date %q", s)
	}
	return t, nil
}
