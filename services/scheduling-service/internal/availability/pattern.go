package availability

import (
	"errors"
	"fmt"
	"time"

	"github.com/elizahq/eliza/services/scheduling-service/internal/apperr"
	"github.com/elizahq/eliza/services/scheduling-service/internal/calendar"
	"github.com/elizahq/eliza/services/scheduling-service/internal/model"
)

// CheckPattern parses and validates a working pattern's clock fields.
func CheckPattern(p model.WorkingPattern) (start, end, breakStart, breakEnd calendar.Clock, err error) {
	start, err = calendar.ParseClock(p.StartTime)
	if err != nil {
		return 0, 0, 0, 0, &apperr.ConfigurationError{Reason: fmt.Sprintf("start_time %q is not HH:mm", p.StartTime)}
	}
	end, err = calendar.ParseClock(p.EndTime)
	if err != nil {
		return 0, 0, 0, 0, &apperr.ConfigurationError{Reason: fmt.Sprintf("end_time %q is not HH:mm", p.EndTime)}
	}
	if start >= end {
		return 0, 0, 0, 0, &apperr.ConfigurationError{Reason: fmt.Sprintf("start_time %s must be before end_time %s", p.StartTime, p.EndTime)}
	}
	if (p.BreakStart == "") != (p.BreakEnd == "") {
		return 0, 0, 0, 0, &apperr.ConfigurationError{Reason: "break_start and break_end must be set together"}
	}
	if !p.HasBreak() {
		return start, end, 0, 0, nil
	}
	breakStart, err = calendar.ParseClock(p.BreakStart)
	if err != nil {
		return 0, 0, 0, 0, &apperr.ConfigurationError{Reason: fmt.Sprintf("break_start %q is not HH:mm", p.BreakStart)}
	}
	breakEnd, err = calendar.ParseClock(p.BreakEnd)
	if err != nil {
		return 0, 0, 0, 0, &apperr.ConfigurationError{Reason: fmt.Sprintf("break_end %q is not HH:mm", p.BreakEnd)}
	}
	if breakStart >= breakEnd {
		return 0, 0, 0, 0, &apperr.ConfigurationError{Reason: "break_start must be before break_end"}
	}
	if breakStart < start || breakEnd > end {
		return 0, 0, 0, 0, &apperr.ConfigurationError{Reason: "break must fall within the working window"}
	}
	return start, end, breakStart, breakEnd, nil
}

// WithinPattern reports whether a booking starting at wall clock c is inside p's working
// window and outside its break. Inactive or malformed patterns contain nothing.
func WithinPattern(p model.WorkingPattern, c calendar.Clock) bool {
	if !p.IsActive {
		return false
	}
	start, end, breakStart, breakEnd, err := CheckPattern(p)
	if err != nil {
		return false
	}
	if c < start || c >= end {
		return false
	}
	if p.HasBreak() && c >= breakStart && c < breakEnd {
		return false
	}
	return true
}

// ValidateWeek checks a bulk upsert: one pattern per weekday, all seven present, each well-formed.
// Inactive days still need parseable clocks so they can be re-enabled as-is.
func ValidateWeek(patterns []model.WorkingPattern) error {
	if len(patterns) != 7 {
		return apperr.Invalid("patterns", fmt.Sprintf("expected 7 weekdays, got %d", len(patterns)))
	}
	seen := make(map[time.Weekday]bool, 7)
	for _, p := range patterns {
		if p.Weekday < time.Sunday || p.Weekday > time.Saturday {
			return apperr.Invalid("day_of_week", fmt.Sprintf("%d is out of range 0..6", int(p.Weekday)))
		}
		if seen[p.Weekday] {
			return apperr.Invalid("day_of_week", fmt.Sprintf("duplicate weekday %s", p.Weekday))
		}
		seen[p.Weekday] = true
		if _, _, _, _, err := CheckPattern(p); err != nil {
			var cfgErr *apperr.ConfigurationError
			if errors.As(err, &cfgErr) {
				return apperr.Invalid(p.Weekday.String(), cfgErr.Reason)
			}
			return err
		}
	}
	return nil
}
