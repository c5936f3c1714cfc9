package availability

import (
	"time"

	"github.com/elizahq/eliza/services/scheduling-service/internal/calendar"
	"github.com/elizahq/eliza/services/scheduling-service/internal/model"
)

const MinStep = 5 * time.Minute

// Interval is a busy [Start, End) span.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Window is a working pattern anchored to one calendar day in the organization's zone.
type Window struct {
	Day        time.Time
	Loc        *time.Location
	Start      calendar.Clock
	End        calendar.Clock
	BreakStart calendar.Clock
	BreakEnd   calendar.Clock
	HasBreak   bool
}

// ResolveWindow anchors p's wall-clock times to day in loc.
func ResolveWindow(p model.WorkingPattern, day time.Time, loc *time.Location) (Window, error) {
	start, end, breakStart, breakEnd, err := CheckPattern(p)
	if err != nil {
		return Window{}, err
	}
	if loc == nil {
		loc = time.UTC
	}
	return Window{
		Day:        day,
		Loc:        loc,
		Start:      start,
		End:        end,
		BreakStart: breakStart,
		BreakEnd:   breakEnd,
		HasBreak:   p.HasBreak(),
	}, nil
}

// Slots steps wall-clock times from w.Start while they are before w.End. A slot is dropped
// when its start is inside the break, when [t, t+step) overlaps a busy interval, or when t is
// before now. Wall times skipped by a DST jump are not offered, and a wall time repeated by a
// fall-back is offered once, so the result is strictly ascending in local time.
func Slots(w Window, step time.Duration, busy []Interval, now time.Time) []time.Time {
	if step <= 0 {
		step = MinStep
	}
	stepMinutes := max(calendar.Clock(step/time.Minute), 1)
	slots := []time.Time{}
	last := calendar.Clock(-1)
	for c := w.Start; c < w.End; c += stepMinutes {
		if w.HasBreak && c >= w.BreakStart && c < w.BreakEnd {
			continue
		}
		t := calendar.At(w.Day, c, w.Loc)
		local := calendar.ClockOf(t, w.Loc)
		if local != c || local <= last {
			continue
		}
		last = local
		if t.Before(now) {
			continue
		}
		if overlapsAny(t, t.Add(step), busy) {
			continue
		}
		slots = append(slots, t)
	}
	return slots
}

func overlapsAny(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		// Half-open intervals: [start,end) overlaps [b.Start,b.End) iff start < b.End && b.Start < end.
		if start.Before(b.End) && b.Start.Before(end) {
			return true
		}
	}
	return false
}
