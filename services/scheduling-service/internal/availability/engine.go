package availability

import (
	"context"
	"log/slog"
	"time"

	"github.com/elizahq/eliza/services/scheduling-service/internal/apperr"
	"github.com/elizahq/eliza/services/scheduling-service/internal/calendar"
	"github.com/elizahq/eliza/services/scheduling-service/internal/metrics"
	"github.com/elizahq/eliza/services/scheduling-service/internal/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// PatternReader returns (pattern, false, nil) when no pattern exists for the weekday.
type PatternReader interface {
	GetWorkingPattern(ctx context.Context, orgID, professionalID string, weekday time.Weekday) (model.WorkingPattern, bool, error)
}

// AppointmentReader returns appointments whose [start, end) overlaps [start, end), skipping
// the excluded statuses.
type AppointmentReader interface {
	GetAppointmentsInRange(ctx context.Context, orgID, professionalID string, start, end time.Time, exclude []model.Status) ([]model.Appointment, error)
}

// SettingsReader returns defaults for organizations without a settings row.
type SettingsReader interface {
	GetOrganizationSettings(ctx context.Context, orgID string) (model.OrganizationSettings, error)
}

type Engine struct {
	patterns     PatternReader
	appointments AppointmentReader
	settings     SettingsReader
	logger       *slog.Logger
	metrics      *metrics.Metrics
	now          func() time.Time
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func NewEngine(patterns PatternReader, appointments AppointmentReader, settings SettingsReader, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		patterns:     patterns,
		appointments: appointments,
		settings:     settings,
		logger:       logger,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ComputeAvailableSlots returns the bookable HH:mm slot starts for professionalID on date's
// calendar day in the organization's timezone. A closed day is an empty list, not an error;
// datastore failures come back as *apperr.RepositoryError.
func (e *Engine) ComputeAvailableSlots(ctx context.Context, orgID, professionalID string, date time.Time) ([]string, error) {
	ctx, span := otel.Tracer("availability").Start(ctx, "availability.compute_slots")
	defer span.End()
	span.SetAttributes(
		attribute.String("organization.id", orgID),
		attribute.String("professional.id", professionalID),
		attribute.String("date", date.Format(calendar.DateLayout)),
	)

	slots, outcome, err := e.compute(ctx, orgID, professionalID, date)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "compute slots failed")
	}
	span.SetAttributes(attribute.Int("slots", len(slots)), attribute.String("outcome", outcome))
	e.metrics.ObserveSlotQuery(outcome, len(slots))
	return slots, err
}

func (e *Engine) compute(ctx context.Context, orgID, professionalID string, date time.Time) ([]string, string, error) {
	settings, err := e.settings.GetOrganizationSettings(ctx, orgID)
	if err != nil {
		return nil, "error", apperr.Repository("get organization settings", err)
	}
	loc := settings.Location()
	y, m, d := date.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, loc)

	pattern, ok, err := e.patterns.GetWorkingPattern(ctx, orgID, professionalID, day.Weekday())
	if err != nil {
		return nil, "error", apperr.Repository("get working pattern", err)
	}
	if !ok || !pattern.IsActive {
		return []string{}, "closed", nil
	}

	window, err := ResolveWindow(pattern, day, loc)
	if err != nil {
		e.logger.Warn("malformed working pattern treated as closed",
			"organization_id", orgID,
			"professional_id", professionalID,
			"weekday", day.Weekday().String(),
			"err", err,
		)
		return []string{}, "misconfigured", nil
	}

	dayStart, dayEnd := calendar.DayBounds(day, loc)
	appts, err := e.appointments.GetAppointmentsInRange(ctx, orgID, professionalID, dayStart, dayEnd, []model.Status{model.StatusCanceled})
	if err != nil {
		return nil, "error", apperr.Repository("get appointments in range", err)
	}
	busy := make([]Interval, 0, len(appts))
	for _, a := range appts {
		if a.Status == model.StatusCanceled {
			continue
		}
		busy = append(busy, Interval{Start: a.StartTime, End: a.EndTime})
	}

	step := settings.AppointmentDuration
	if step <= 0 {
		e.logger.Warn("non-positive appointment duration, using minimum step",
			"organization_id", orgID,
			"configured", step.String(),
			"step", MinStep.String(),
		)
		step = MinStep
	}

	starts := Slots(window, step, busy, e.now())
	out := make([]string, 0, len(starts))
	for _, t := range starts {
		out = append(out, calendar.ClockOf(t, loc).String())
	}
	return out, "ok", nil
}
