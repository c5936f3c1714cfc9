// Package memstore keeps appointments, working patterns and the outbox in process memory. One
// mutex covers each transaction, which serializes every check-and-write the way the Postgres
// advisory lock does per professional.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/elizahq/eliza/services/scheduling-service/internal/apperr"
	"github.com/elizahq/eliza/services/scheduling-service/internal/model"
	"github.com/elizahq/eliza/services/scheduling-service/internal/outbox"
	"github.com/elizahq/eliza/services/scheduling-service/internal/scheduling"
)

type patternKey struct {
	orgID          string
	professionalID string
	weekday        time.Weekday
}

type refKey struct {
	orgID string
	id    string
}

type outboxEntry struct {
	rec          outbox.Record
	published    bool
	deadLettered bool
	inFlight     bool
	nextAttempt  time.Time
	lastError    string
}

type Store struct {
	// txMu guards appointments and the outbox.
	txMu         sync.Mutex
	appointments map[string]model.Appointment
	events       []*outboxEntry
	nextEventID  int64

	// mu guards reference data, which transactions may read while txMu is held.
	mu       sync.RWMutex
	patterns map[patternKey]model.WorkingPattern
	settings map[string]model.OrganizationSettings
	services map[refKey]time.Duration
	contacts map[refKey]model.Contact

	maxAttempts int
	backoff     time.Duration
	now         func() time.Time
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithOutboxPolicy(maxAttempts int, backoff time.Duration) Option {
	return func(s *Store) {
		s.maxAttempts = maxAttempts
		s.backoff = backoff
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		appointments: map[string]model.Appointment{},
		patterns:     map[patternKey]model.WorkingPattern{},
		settings:     map[string]model.OrganizationSettings{},
		services:     map[refKey]time.Duration{},
		contacts:     map[refKey]model.Contact{},
		maxAttempts:  outbox.DefaultMaxAttempts,
		backoff:      outbox.DefaultBackoff,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithTx runs fn against a copy of the appointment set and swaps it in only on success.
func (s *Store) WithTx(ctx context.Context, fn func(tx scheduling.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := &memTx{store: s, appointments: make(map[string]model.Appointment, len(s.appointments))}
	for id, a := range s.appointments {
		tx.appointments[id] = a
	}
	if err := fn(tx); err != nil {
		return err
	}

	s.appointments = tx.appointments
	for _, evt := range tx.events {
		s.nextEventID++
		s.events = append(s.events, &outboxEntry{
			rec: outbox.Record{
				ID:             s.nextEventID,
				EventID:        fmt.Sprintf("evt-%d", s.nextEventID),
				AggregateType:  evt.AggregateType,
				AggregateID:    evt.AggregateID,
				EventType:      evt.EventType,
				OrganizationID: evt.OrganizationID,
				Payload:        evt.Payload,
				CreatedAt:      s.now().UTC(),
			},
		})
	}
	return nil
}

type memTx struct {
	store        *Store
	appointments map[string]model.Appointment
	events       []outbox.Event
}

func (tx *memTx) LockProfessional(context.Context, string, string) error {
	return nil
}

func (tx *memTx) GetAppointmentForUpdate(_ context.Context, orgID, appointmentID string) (model.Appointment, error) {
	a, ok := tx.appointments[appointmentID]
	if !ok || a.OrganizationID != orgID {
		return model.Appointment{}, fmt.Errorf("appointment %s: %w", appointmentID, apperr.ErrNotFound)
	}
	return a, nil
}

func (tx *memTx) FindOverlapping(_ context.Context, orgID, professionalID string, start, end time.Time, excludeID string) ([]model.Appointment, error) {
	return overlapping(tx.appointments, orgID, professionalID, start, end, excludeID), nil
}

func (tx *memTx) InsertAppointment(_ context.Context, appt model.Appointment) error {
	if _, exists := tx.appointments[appt.ID]; exists {
		return fmt.Errorf("appointment %s already exists", appt.ID)
	}
	if err := tx.checkExclusion(appt); err != nil {
		return err
	}
	tx.appointments[appt.ID] = appt
	return nil
}

func (tx *memTx) UpdateAppointment(_ context.Context, appt model.Appointment) error {
	current, ok := tx.appointments[appt.ID]
	if !ok || current.OrganizationID != appt.OrganizationID {
		return fmt.Errorf("appointment %s: %w", appt.ID, apperr.ErrNotFound)
	}
	if err := tx.checkExclusion(appt); err != nil {
		return err
	}
	tx.appointments[appt.ID] = appt
	return nil
}

// checkExclusion mirrors the Postgres exclusion constraint.
func (tx *memTx) checkExclusion(appt model.Appointment) error {
	if appt.Status == model.StatusCanceled {
		return nil
	}
	if hits := overlapping(tx.appointments, appt.OrganizationID, appt.ProfessionalID, appt.StartTime, appt.EndTime, appt.ID); len(hits) > 0 {
		return &apperr.SlotConflictError{
			ProfessionalID: appt.ProfessionalID,
			Start:          appt.StartTime,
			End:            appt.EndTime,
			ConflictingID:  hits[0].ID,
		}
	}
	return nil
}

func (tx *memTx) ServiceDuration(_ context.Context, orgID, serviceID string) (time.Duration, bool, error) {
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	d, ok := tx.store.services[refKey{orgID: orgID, id: serviceID}]
	return d, ok, nil
}

func (tx *memTx) EnqueueEvent(_ context.Context, evt outbox.Event) error {
	tx.events = append(tx.events, evt)
	return nil
}

func overlapping(appts map[string]model.Appointment, orgID, professionalID string, start, end time.Time, excludeID string) []model.Appointment {
	var out []model.Appointment
	for _, a := range appts {
		if a.OrganizationID != orgID || a.ProfessionalID != professionalID || a.ID == excludeID {
			continue
		}
		if a.Status == model.StatusCanceled {
			continue
		}
		if a.Overlaps(start, end) {
			out = append(out, a)
		}
	}
	sortByStart(out)
	return out
}

func sortByStart(appts []model.Appointment) {
	sort.Slice(appts, func(i, j int) bool {
		if appts[i].StartTime.Equal(appts[j].StartTime) {
			return appts[i].ID < appts[j].ID
		}
		return appts[i].StartTime.Before(appts[j].StartTime)
	})
}
