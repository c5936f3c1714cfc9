package scheduling

import (
	"context"
	"time"

	"github.com/elizahq/eliza/services/scheduling-service/internal/model"
	"github.com/elizahq/eliza/services/scheduling-service/internal/outbox"
)

// Store runs fn in one transaction: fn's error rolls everything back, including enqueued events.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

type Tx interface {
	// LockProfessional serializes check-and-write for one professional until the tx ends.
	LockProfessional(ctx context.Context, orgID, professionalID string) error
	// GetAppointmentForUpdate wraps apperr.ErrNotFound for unknown ids.
	GetAppointmentForUpdate(ctx context.Context, orgID, appointmentID string) (model.Appointment, error)
	// FindOverlapping returns non-canceled appointments intersecting [start, end), ignoring excludeID.
	FindOverlapping(ctx context.Context, orgID, professionalID string, start, end time.Time, excludeID string) ([]model.Appointment, error)
	// InsertAppointment returns *apperr.SlotConflictError when the store rejects an overlap.
	InsertAppointment(ctx context.Context, appt model.Appointment) error
	UpdateAppointment(ctx context.Context, appt model.Appointment) error
	// ServiceDuration reports false when the service has no duration configured.
	ServiceDuration(ctx context.Context, orgID, serviceID string) (time.Duration, bool, error)
	EnqueueEvent(ctx context.Context, evt outbox.Event) error
}
