package availability

import (
	"errors"
	"testing"
	"time"

	"github.com/elizahq/eliza/services/scheduling-service/internal/apperr"
	"github.com/elizahq/eliza/services/scheduling-service/internal/calendar"
	"github.com/elizahq/eliza/services/scheduling-service/internal/model"
)

func clock(t *testing.T, s string) calendar.Clock {
	t.Helper()
	c, err := calendar.ParseClock(s)
	if err != nil {
		t.Fatalf("parse %s: %v", s, err)
	}
	return c
}

func TestWithinPattern(t *testing.T) {
	p := model.WorkingPattern{StartTime: "08:00", EndTime: "18:00", BreakStart: "12:00", BreakEnd: "13:00", IsActive: true}
	cases := map[string]bool{
		"07:59": false,
		"08:00": true,
		"11:59": true,
		"12:00": false,
		"12:59": false,
		"13:00": true,
		"17:59": true,
		"18:00": false,
	}
	for in, want := range cases {
		if got := WithinPattern(p, clock(t, in)); got != want {
			t.Fatalf("%s: expected %v, got %v", in, want, got)
		}
	}
	p.IsActive = false
	if WithinPattern(p, clock(t, "09:00")) {
		t.Fatalf("inactive pattern must contain nothing")
	}
}

func TestCheckPatternRejectsMalformed(t *testing.T) {
	cases := []model.WorkingPattern{
		{StartTime: "9:00", EndTime: "17:00"},
		{StartTime: "09:00", EndTime: "09:00"},
		{StartTime: "09:00", EndTime: "17:00", BreakStart: "12:00"},
		{StartTime: "09:00", EndTime: "17:00", BreakStart: "13:00", BreakEnd: "12:00"},
		{StartTime: "09:00", EndTime: "17:00", BreakStart: "08:00", BreakEnd: "10:00"},
		{StartTime: "09:00", EndTime: "17:00", BreakStart: "16:00", BreakEnd: "17:30"},
	}
	for i, p := range cases {
		_, _, _, _, err := CheckPattern(p)
		var cfgErr *apperr.ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("case %d: expected ConfigurationError, got %v", i, err)
		}
	}
	if _, _, _, _, err := CheckPattern(model.WorkingPattern{StartTime: "09:00", EndTime: "17:00", BreakStart: "09:00", BreakEnd: "17:00"}); err != nil {
		t.Fatalf("break spanning the full window should be accepted: %v", err)
	}
}

func week() []model.WorkingPattern {
	out := make([]model.WorkingPattern, 0, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		out = append(out, model.WorkingPattern{Weekday: d, StartTime: "09:00", EndTime: "17:00", IsActive: d != time.Sunday})
	}
	return out
}

func TestValidateWeek(t *testing.T) {
	if err := ValidateWeek(week()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	short := week()[:6]
	dup := week()
	dup[6].Weekday = time.Monday
	bad := week()
	bad[2].EndTime = "08:00"

	for name, patterns := range map[string][]model.WorkingPattern{"short": short, "duplicate": dup, "malformed": bad} {
		err := ValidateWeek(patterns)
		var validErr *apperr.ValidationError
		if !errors.As(err, &validErr) {
			t.Fatalf("%s: expected ValidationError, got %v", name, err)
		}
	}
}

func utcWindow(t *testing.T, day time.Time, start, end string) Window {
	t.Helper()
	return Window{Day: day, Loc: time.UTC, Start: clock(t, start), End: clock(t, end)}
}

func TestSlotsStepIntervalOverlap(t *testing.T) {
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC)
	w := utcWindow(t, day, "09:00", "10:00")
	busy := []Interval{{Start: day.Add(9*time.Hour + 15*time.Minute), End: day.Add(9*time.Hour + 45*time.Minute)}}

	slots := Slots(w, 15*time.Minute, busy, day)
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(slots))
	}
	if !slots[0].Equal(day.Add(9 * time.Hour)) {
		t.Fatalf("expected first slot 09:00, got %s", slots[0].Format(time.RFC3339))
	}
	if !slots[1].Equal(day.Add(9*time.Hour + 45*time.Minute)) {
		t.Fatalf("expected second slot 09:45, got %s", slots[1].Format(time.RFC3339))
	}
}

func TestSlotsLastSlotMayRunPastWindow(t *testing.T) {
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC)
	slots := Slots(utcWindow(t, day, "09:00", "09:45"), 30*time.Minute, nil, day)
	if len(slots) != 2 {
		t.Fatalf("expected slots at 09:00 and 09:30, got %v", slots)
	}
}

func TestSlotsBreakUsesWallClock(t *testing.T) {
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC)
	w := utcWindow(t, day, "11:00", "14:00")
	w.HasBreak, w.BreakStart, w.BreakEnd = true, clock(t, "12:00"), clock(t, "13:00")

	slots := Slots(w, time.Hour, nil, day)
	if len(slots) != 2 || slots[0].Hour() != 11 || slots[1].Hour() != 13 {
		t.Fatalf("expected 11:00 and 13:00, got %v", slots)
	}
}

func TestSlotsSubMinuteStepStillAdvances(t *testing.T) {
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC)
	slots := Slots(utcWindow(t, day, "09:00", "09:03"), 30*time.Second, nil, day)
	if len(slots) != 3 {
		t.Fatalf("expected one slot per minute, got %v", slots)
	}
}
