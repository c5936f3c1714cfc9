package scheduling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/elizahq/eliza/services/scheduling-service/internal/apperr"
	"github.com/elizahq/eliza/services/scheduling-service/internal/availability"
	"github.com/elizahq/eliza/services/scheduling-service/internal/calendar"
	"github.com/elizahq/eliza/services/scheduling-service/internal/metrics"
	"github.com/elizahq/eliza/services/scheduling-service/internal/model"
	"github.com/elizahq/eliza/services/scheduling-service/internal/outbox"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const DefaultServiceDuration = 30 * time.Minute

var ErrOutsideBusinessHours = &apperr.ValidationError{Field: "start_time", Reason: "outside the professional's working hours"}

type Warning string

const WarningOutsideBusinessHours Warning = "outside_business_hours"

type Result struct {
	Appointment model.Appointment
	Warnings    []Warning
}

type CreateInput struct {
	OrganizationID string
	ProfessionalID string
	CustomerID     string
	ServiceID      string
	StartTime      time.Time
	Channel        model.Channel
}

type RescheduleInput struct {
	OrganizationID    string
	AppointmentID     string
	NewStartTime      time.Time
	NewProfessionalID string
	Channel           model.Channel
}

type Service struct {
	store    Store
	patterns availability.PatternReader
	settings availability.SettingsReader
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
	newID    func() string
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

func NewService(store Store, patterns availability.PatternReader, settings availability.SettingsReader, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		patterns: patterns,
		settings: settings,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateAppointment books [start, start+service duration) for the professional. The overlap
// check and the insert run under the professional's lock in one transaction, together with the
// "created" outbox event.
func (s *Service) CreateAppointment(ctx context.Context, in CreateInput) (res Result, err error) {
	ctx, span := s.start(ctx, "create", in.OrganizationID)
	defer func() { s.finish(span, "create", err) }()
	span.SetAttributes(attribute.String("professional.id", in.ProfessionalID))

	in.OrganizationID = strings.TrimSpace(in.OrganizationID)
	in.ProfessionalID = strings.TrimSpace(in.ProfessionalID)
	in.CustomerID = strings.TrimSpace(in.CustomerID)
	in.ServiceID = strings.TrimSpace(in.ServiceID)
	switch {
	case in.OrganizationID == "":
		return Result{}, apperr.Invalid("organization_id", "required")
	case in.ProfessionalID == "":
		return Result{}, apperr.Invalid("professional_id", "required")
	case in.CustomerID == "":
		return Result{}, apperr.Invalid("customer_id", "required")
	case in.StartTime.IsZero():
		return Result{}, apperr.Invalid("start_time", "required")
	}
	now := s.now()
	if !in.StartTime.After(now) {
		return Result{}, apperr.Invalid("start_time", "must be in the future")
	}

	warnings, err := s.checkBusinessHours(ctx, in.OrganizationID, in.ProfessionalID, in.StartTime, in.Channel)
	if err != nil {
		return Result{}, err
	}

	var appt model.Appointment
	err = s.store.WithTx(ctx, func(tx Tx) error {
		if err := tx.LockProfessional(ctx, in.OrganizationID, in.ProfessionalID); err != nil {
			return apperr.Repository("lock professional", err)
		}
		duration, err := s.serviceDuration(ctx, tx, in.OrganizationID, in.ServiceID)
		if err != nil {
			return err
		}
		start := in.StartTime.UTC()
		end := start.Add(duration)
		if err := s.ensureFree(ctx, tx, in.OrganizationID, in.ProfessionalID, start, end, ""); err != nil {
			return err
		}

		appt = model.Appointment{
			ID:             s.newID(),
			OrganizationID: in.OrganizationID,
			ProfessionalID: in.ProfessionalID,
			CustomerID:     in.CustomerID,
			ServiceID:      in.ServiceID,
			StartTime:      start,
			EndTime:        end,
			Status:         in.Channel.InitialStatus(),
			PaymentStatus:  "pending",
			CreatedAt:      now.UTC(),
			UpdatedAt:      now.UTC(),
		}
		if err := tx.InsertAppointment(ctx, appt); err != nil {
			return apperr.Repository("insert appointment", err)
		}
		return s.enqueue(ctx, tx, outbox.EventAppointmentCreated, appt, nil, now)
	})
	if err != nil {
		return Result{}, err
	}

	s.logger.Info("appointment created",
		"organization_id", appt.OrganizationID,
		"appointment_id", appt.ID,
		"professional_id", appt.ProfessionalID,
		"start_time", appt.StartTime.Format(time.RFC3339),
		"status", string(appt.Status),
		"warnings", len(warnings),
	)
	return Result{Appointment: appt, Warnings: warnings}, nil
}

// RescheduleAppointment moves an appointment to a new start and optionally a new professional,
// re-running the overlap check against everything but the appointment itself.
func (s *Service) RescheduleAppointment(ctx context.Context, in RescheduleInput) (res Result, err error) {
	ctx, span := s.start(ctx, "reschedule", in.OrganizationID)
	defer func() { s.finish(span, "reschedule", err) }()
	span.SetAttributes(attribute.String("appointment.id", in.AppointmentID))

	in.OrganizationID = strings.TrimSpace(in.OrganizationID)
	in.AppointmentID = strings.TrimSpace(in.AppointmentID)
	in.NewProfessionalID = strings.TrimSpace(in.NewProfessionalID)
	switch {
	case in.OrganizationID == "":
		return Result{}, apperr.Invalid("organization_id", "required")
	case in.AppointmentID == "":
		return Result{}, apperr.Invalid("appointment_id", "required")
	case in.NewStartTime.IsZero():
		return Result{}, apperr.Invalid("start_time", "required")
	}
	now := s.now()
	if !in.NewStartTime.After(now) {
		return Result{}, apperr.Invalid("start_time", "must be in the future")
	}

	var (
		appt     model.Appointment
		warnings []Warning
		changed  bool
	)
	err = s.store.WithTx(ctx, func(tx Tx) error {
		current, err := tx.GetAppointmentForUpdate(ctx, in.OrganizationID, in.AppointmentID)
		if err != nil {
			return apperr.Repository("get appointment", err)
		}
		if current.Status.Terminal() {
			return apperr.Invalid("appointment_id", fmt.Sprintf("a %s appointment cannot be rescheduled", current.Status))
		}
		target := current.ProfessionalID
		if in.NewProfessionalID != "" {
			target = in.NewProfessionalID
		}

		warnings, err = s.checkBusinessHours(ctx, in.OrganizationID, target, in.NewStartTime, in.Channel)
		if err != nil {
			return err
		}

		// Sorted so two reschedules between the same pair cannot deadlock.
		locks := []string{current.ProfessionalID}
		if target != current.ProfessionalID {
			locks = append(locks, target)
			sort.Strings(locks)
		}
		for _, professionalID := range locks {
			if err := tx.LockProfessional(ctx, in.OrganizationID, professionalID); err != nil {
				return apperr.Repository("lock professional", err)
			}
		}

		duration, err := s.serviceDuration(ctx, tx, in.OrganizationID, current.ServiceID)
		if err != nil {
			return err
		}
		start := in.NewStartTime.UTC()
		end := start.Add(duration)
		if start.Equal(current.StartTime) && end.Equal(current.EndTime) && target == current.ProfessionalID {
			appt = current
			return nil
		}
		if err := s.ensureFree(ctx, tx, in.OrganizationID, target, start, end, current.ID); err != nil {
			return err
		}

		appt = current
		appt.ProfessionalID = target
		appt.StartTime = start
		appt.EndTime = end
		appt.UpdatedAt = now.UTC()
		if err := tx.UpdateAppointment(ctx, appt); err != nil {
			return apperr.Repository("update appointment", err)
		}
		changed = true
		return s.enqueue(ctx, tx, outbox.EventAppointmentRescheduled, appt, &current, now)
	})
	if err != nil {
		return Result{}, err
	}

	if changed {
		s.logger.Info("appointment rescheduled",
			"organization_id", appt.OrganizationID,
			"appointment_id", appt.ID,
			"professional_id", appt.ProfessionalID,
			"start_time", appt.StartTime.Format(time.RFC3339),
		)
	}
	return Result{Appointment: appt, Warnings: warnings}, nil
}

// CancelAppointment is idempotent: an already canceled appointment is returned unchanged.
func (s *Service) CancelAppointment(ctx context.Context, orgID, appointmentID string) (appt model.Appointment, err error) {
	ctx, span := s.start(ctx, "cancel", orgID)
	defer func() { s.finish(span, "cancel", err) }()
	span.SetAttributes(attribute.String("appointment.id", appointmentID))

	return s.changeStatus(ctx, orgID, appointmentID, model.StatusCanceled, false)
}

// UpdateAppointmentStatus applies a legal state-machine move. Setting the current status again
// is a no-op.
func (s *Service) UpdateAppointmentStatus(ctx context.Context, orgID, appointmentID string, status model.Status) (appt model.Appointment, err error) {
	ctx, span := s.start(ctx, "update_status", orgID)
	defer func() { s.finish(span, "update_status", err) }()
	span.SetAttributes(attribute.String("appointment.id", appointmentID), attribute.String("status.to", string(status)))

	return s.changeStatus(ctx, orgID, appointmentID, status, false)
}

// OverrideAppointmentStatus lets staff force any status. Backward moves are logged at warn
// level; reviving a canceled appointment re-runs the overlap check.
func (s *Service) OverrideAppointmentStatus(ctx context.Context, orgID, appointmentID string, status model.Status) (appt model.Appointment, err error) {
	ctx, span := s.start(ctx, "override_status", orgID)
	defer func() { s.finish(span, "override_status", err) }()
	span.SetAttributes(attribute.String("appointment.id", appointmentID), attribute.String("status.to", string(status)))

	return s.changeStatus(ctx, orgID, appointmentID, status, true)
}

func (s *Service) changeStatus(ctx context.Context, orgID, appointmentID string, to model.Status, override bool) (model.Appointment, error) {
	orgID = strings.TrimSpace(orgID)
	appointmentID = strings.TrimSpace(appointmentID)
	switch {
	case orgID == "":
		return model.Appointment{}, apperr.Invalid("organization_id", "required")
	case appointmentID == "":
		return model.Appointment{}, apperr.Invalid("appointment_id", "required")
	case !to.Valid():
		return model.Appointment{}, apperr.Invalid("status", fmt.Sprintf("unknown status %q", to))
	}
	now := s.now()

	var (
		appt model.Appointment
		from model.Status
	)
	err := s.store.WithTx(ctx, func(tx Tx) error {
		current, err := tx.GetAppointmentForUpdate(ctx, orgID, appointmentID)
		if err != nil {
			return apperr.Repository("get appointment", err)
		}
		from = current.Status
		if from == to {
			appt = current
			return nil
		}
		if !override && !CanTransition(from, to) {
			return &apperr.InvalidTransitionError{From: from, To: to}
		}

		appt = current
		appt.Status = to
		appt.UpdatedAt = now.UTC()
		switch {
		case to == model.StatusCanceled:
			canceledAt := now.UTC()
			appt.CanceledAt = &canceledAt
		case from == model.StatusCanceled:
			if err := tx.LockProfessional(ctx, orgID, current.ProfessionalID); err != nil {
				return apperr.Repository("lock professional", err)
			}
			if err := s.ensureFree(ctx, tx, orgID, current.ProfessionalID, current.StartTime, current.EndTime, current.ID); err != nil {
				return err
			}
			appt.CanceledAt = nil
		}
		if err := tx.UpdateAppointment(ctx, appt); err != nil {
			return apperr.Repository("update appointment", err)
		}

		switch to {
		case model.StatusCanceled:
			return s.enqueue(ctx, tx, outbox.EventAppointmentCanceled, appt, nil, now)
		case model.StatusConfirmed:
			return s.enqueue(ctx, tx, outbox.EventAppointmentConfirmed, appt, nil, now)
		}
		return nil
	})
	if err != nil {
		return model.Appointment{}, err
	}

	if from != to {
		if override && IsBackward(from, to) {
			s.logger.Warn("backward status transition forced",
				"organization_id", orgID,
				"appointment_id", appointmentID,
				"from", string(from),
				"to", string(to),
			)
		} else {
			s.logger.Info("appointment status changed",
				"organization_id", orgID,
				"appointment_id", appointmentID,
				"from", string(from),
				"to", string(to),
			)
		}
	}
	return appt, nil
}

// checkBusinessHours is a hard rule for public bookings and a warning for staff.
func (s *Service) checkBusinessHours(ctx context.Context, orgID, professionalID string, start time.Time, channel model.Channel) ([]Warning, error) {
	settings, err := s.settings.GetOrganizationSettings(ctx, orgID)
	if err != nil {
		return nil, apperr.Repository("get organization settings", err)
	}
	loc := settings.Location()
	local := start.In(loc)
	pattern, ok, err := s.patterns.GetWorkingPattern(ctx, orgID, professionalID, local.Weekday())
	if err != nil {
		return nil, apperr.Repository("get working pattern", err)
	}
	if ok && availability.WithinPattern(pattern, calendar.ClockOf(start, loc)) {
		return nil, nil
	}
	if channel == model.ChannelPublic {
		return nil, ErrOutsideBusinessHours
	}
	return []Warning{WarningOutsideBusinessHours}, nil
}

func (s *Service) serviceDuration(ctx context.Context, tx Tx, orgID, serviceID string) (time.Duration, error) {
	if serviceID == "" {
		return DefaultServiceDuration, nil
	}
	d, ok, err := tx.ServiceDuration(ctx, orgID, serviceID)
	if err != nil {
		return 0, apperr.Repository("get service duration", err)
	}
	if !ok || d <= 0 {
		return DefaultServiceDuration, nil
	}
	return d, nil
}

func (s *Service) ensureFree(ctx context.Context, tx Tx, orgID, professionalID string, start, end time.Time, excludeID string) error {
	overlapping, err := tx.FindOverlapping(ctx, orgID, professionalID, start, end, excludeID)
	if err != nil {
		return apperr.Repository("find overlapping appointments", err)
	}
	if len(overlapping) > 0 {
		return &apperr.SlotConflictError{
			ProfessionalID: professionalID,
			Start:          start,
			End:            end,
			ConflictingID:  overlapping[0].ID,
		}
	}
	return nil
}

func (s *Service) enqueue(ctx context.Context, tx Tx, eventType string, appt model.Appointment, previous *model.Appointment, at time.Time) error {
	evt, err := outbox.NewAppointmentEvent(eventType, appt, previous, at)
	if err != nil {
		return fmt.Errorf("build %s event: %w", eventType, err)
	}
	if err := tx.EnqueueEvent(ctx, evt); err != nil {
		return apperr.Repository("enqueue "+eventType, err)
	}
	return nil
}

func (s *Service) start(ctx context.Context, op, orgID string) (context.Context, trace.Span) {
	ctx, span := otel.Tracer("scheduling").Start(ctx, "scheduling."+op)
	span.SetAttributes(attribute.String("organization.id", orgID))
	return ctx, span
}

func (s *Service) finish(span trace.Span, op string, err error) {
	outcome := Outcome(err)
	if err != nil {
		span.RecordError(err)
		if outcome == "error" {
			span.SetStatus(codes.Error, op+" failed")
		}
	}
	span.SetAttributes(attribute.String("outcome", outcome))
	span.End()
	s.metrics.ObserveOperation(op, outcome)
}

// Outcome classifies err for metrics and logs.
func Outcome(err error) string {
	var (
		conflictErr *apperr.SlotConflictError
		transErr    *apperr.InvalidTransitionError
		validErr    *apperr.ValidationError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &conflictErr):
		return "conflict"
	case errors.As(err, &transErr):
		return "invalid_transition"
	case errors.As(err, &validErr):
		return "invalid"
	case errors.Is(err, apperr.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
