package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/elizahq/eliza/libs/db"
	"github.com/elizahq/eliza/services/scheduling-service/internal/apperr"
	"github.com/elizahq/eliza/services/scheduling-service/internal/model"
	"github.com/elizahq/eliza/services/scheduling-service/internal/outbox"
	"github.com/elizahq/eliza/services/scheduling-service/internal/scheduling"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const appointmentColumns = `id::text, organization_id, professional_id, customer_id, COALESCE(service_id, ''),
	start_time, end_time, status, payment_status, COALESCE(payment_method, ''), canceled_at, created_at, updated_at`

// Store is the Postgres implementation of scheduling.Store and of the availability readers.
type Store struct {
	db     db.TxBeginner
	outbox *outbox.Repository
}

func NewStore(conn db.TxBeginner, outboxRepo *outbox.Repository) *Store {
	return &Store{db: conn, outbox: outboxRepo}
}

func (s *Store) WithTx(ctx context.Context, fn func(tx scheduling.Tx) error) error {
	return db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx, outbox: s.outbox})
	})
}

type pgTx struct {
	tx     pgx.Tx
	outbox *outbox.Repository
}

// LockProfessional takes a transaction-scoped advisory lock keyed by organization and
// professional.
func (t *pgTx) LockProfessional(ctx context.Context, orgID, professionalID string) error {
	_, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, orgID+":"+professionalID)
	return err
}

func (t *pgTx) GetAppointmentForUpdate(ctx context.Context, orgID, appointmentID string) (model.Appointment, error) {
	if !validID(appointmentID) {
		return model.Appointment{}, notFound(appointmentID)
	}
	row := t.tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1::uuid AND organization_id = $2
		FOR UPDATE
	`, appointmentID, orgID)
	appt, err := scanAppointment(row)
	if IsNotFound(err) {
		return model.Appointment{}, notFound(appointmentID)
	}
	return appt, err
}

func (t *pgTx) FindOverlapping(ctx context.Context, orgID, professionalID string, start, end time.Time, excludeID string) ([]model.Appointment, error) {
	var exclude any
	if validID(excludeID) {
		exclude = excludeID
	}
	rows, err := t.tx.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE organization_id = $1
			AND professional_id = $2
			AND status <> 'canceled'
			AND start_time < $4
			AND end_time > $3
			AND ($5::uuid IS NULL OR id <> $5::uuid)
		ORDER BY start_time ASC
	`, orgID, professionalID, start, end, exclude)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (t *pgTx) InsertAppointment(ctx context.Context, appt model.Appointment) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO appointments
			(id, organization_id, professional_id, customer_id, service_id, start_time, end_time, status,
			 payment_status, payment_method, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, NULLIF($10, ''), $11, $12)
	`, appt.ID, appt.OrganizationID, appt.ProfessionalID, appt.CustomerID, appt.ServiceID,
		appt.StartTime, appt.EndTime, string(appt.Status), appt.PaymentStatus, appt.PaymentMethod,
		appt.CreatedAt, appt.UpdatedAt)
	return conflictError(err, appt)
}

func (t *pgTx) UpdateAppointment(ctx context.Context, appt model.Appointment) error {
	if !validID(appt.ID) {
		return notFound(appt.ID)
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE appointments
		SET professional_id = $3,
			start_time = $4,
			end_time = $5,
			status = $6,
			canceled_at = $7,
			updated_at = $8
		WHERE id = $1::uuid AND organization_id = $2
	`, appt.ID, appt.OrganizationID, appt.ProfessionalID, appt.StartTime, appt.EndTime, string(appt.Status),
		appt.CanceledAt, appt.UpdatedAt)
	if err != nil {
		return conflictError(err, appt)
	}
	if tag.RowsAffected() == 0 {
		return notFound(appt.ID)
	}
	return nil
}

func (t *pgTx) ServiceDuration(ctx context.Context, orgID, serviceID string) (time.Duration, bool, error) {
	var minutes int
	err := t.tx.QueryRow(ctx, `
		SELECT duration_minutes
		FROM services
		WHERE id = $1 AND organization_id = $2
	`, serviceID, orgID).Scan(&minutes)
	if IsNotFound(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return time.Duration(minutes) * time.Minute, true, nil
}

func (t *pgTx) EnqueueEvent(ctx context.Context, evt outbox.Event) error {
	return t.outbox.Insert(ctx, t.tx, evt)
}

func (s *Store) GetAppointment(ctx context.Context, orgID, appointmentID string) (model.Appointment, error) {
	if !validID(appointmentID) {
		return model.Appointment{}, notFound(appointmentID)
	}
	row := s.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1::uuid AND organization_id = $2
	`, appointmentID, orgID)
	appt, err := scanAppointment(row)
	if IsNotFound(err) {
		return model.Appointment{}, notFound(appointmentID)
	}
	return appt, err
}

func (s *Store) GetAppointmentsInRange(ctx context.Context, orgID, professionalID string, start, end time.Time, exclude []model.Status) ([]model.Appointment, error) {
	excluded := make([]string, 0, len(exclude))
	for _, st := range exclude {
		excluded = append(excluded, string(st))
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE organization_id = $1
			AND professional_id = $2
			AND start_time < $4
			AND end_time > $3
			AND NOT (status = ANY($5))
		ORDER BY start_time ASC
	`, orgID, professionalID, start, end, excluded)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var appt model.Appointment
	var canceledAt *time.Time
	err := row.Scan(
		&appt.ID,
		&appt.OrganizationID,
		&appt.ProfessionalID,
		&appt.CustomerID,
		&appt.ServiceID,
		&appt.StartTime,
		&appt.EndTime,
		&appt.Status,
		&appt.PaymentStatus,
		&appt.PaymentMethod,
		&canceledAt,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.CanceledAt = canceledAt
	appt.StartTime = appt.StartTime.UTC()
	appt.EndTime = appt.EndTime.UTC()
	return appt, nil
}

func collectAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()
	appts := []model.Appointment{}
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

// validID reports whether id can match the uuid primary key. Anything else cannot exist.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func notFound(appointmentID string) error {
	return fmt.Errorf("appointment %s: %w", appointmentID, apperr.ErrNotFound)
}

func conflictError(err error, appt model.Appointment) error {
	if err == nil {
		return nil
	}
	if IsConflict(err) {
		return &apperr.SlotConflictError{
			ProfessionalID: appt.ProfessionalID,
			Start:          appt.StartTime,
			End:            appt.EndTime,
		}
	}
	return err
}

// IsConflict reports an exclusion-constraint violation (overlapping live appointments).
func IsConflict(err error) bool {
	return db.SQLState(err) == "23P01"
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
