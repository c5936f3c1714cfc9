package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/elizahq/eliza/services/scheduling-service/internal/apperr"
	"github.com/elizahq/eliza/services/scheduling-service/internal/model"
	"github.com/elizahq/eliza/services/scheduling-service/internal/outbox"
	"github.com/elizahq/eliza/services/scheduling-service/internal/scheduling"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
)

var apptColumns = []string{"id", "organization_id", "professional_id", "customer_id", "service_id",
	"start_time", "end_time", "status", "payment_status", "payment_method", "canceled_at", "created_at", "updated_at"}

const (
	apptID  = "5b0c6f0e-1f1a-4c55-9a57-3b6f0f4d9a11"
	otherID = "9d3e2a71-64c2-4f0b-8f7e-2c1b5a6d7e80"
)

func exclusionViolation() error {
	return &pgconn.PgError{Code: "23P01", Message: "conflicting key value violates exclusion constraint \"appointments_no_overlap\""}
}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func TestWithTxInsertsAppointmentAndEvent(t *testing.T) {
	mock := newMock(t)
	store := NewStore(mock, outbox.NewRepository(mock, outbox.RepositoryConfig{}))

	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)
	appt := model.Appointment{
		ID:             apptID,
		OrganizationID: "org-1",
		ProfessionalID: "pro-1",
		CustomerID:     "cus-1",
		StartTime:      start,
		EndTime:        end,
		Status:         model.StatusScheduled,
		PaymentStatus:  "pending",
		CreatedAt:      start,
		UpdatedAt:      start,
	}

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").
		WithArgs("org-1:pro-1").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery("FROM appointments").
		WithArgs("org-1", "pro-1", start, end, nil).
		WillReturnRows(pgxmock.NewRows(apptColumns))
	mock.ExpectExec("INSERT INTO appointments").
		WithArgs(apptID, "org-1", "pro-1", "cus-1", "", start, end, "scheduled", "pending", "", start, start).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO outbox_events").
		WithArgs(pgxmock.AnyArg(), "appointment", "a1", outbox.EventAppointmentCreated, "org-1", []byte(`{}`), "", "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := store.WithTx(context.Background(), func(tx scheduling.Tx) error {
		if err := tx.LockProfessional(context.Background(), "org-1", "pro-1"); err != nil {
			return err
		}
		existing, err := tx.FindOverlapping(context.Background(), "org-1", "pro-1", start, end, "")
		if err != nil {
			return err
		}
		if len(existing) != 0 {
			t.Fatalf("expected no overlaps, got %d", len(existing))
		}
		if err := tx.InsertAppointment(context.Background(), appt); err != nil {
			return err
		}
		return tx.EnqueueEvent(context.Background(), outbox.Event{
			AggregateType:  "appointment",
			AggregateID:    "a1",
			EventType:      outbox.EventAppointmentCreated,
			OrganizationID: "org-1",
			Payload:        []byte(`{}`),
		})
	})
	if err != nil {
		t.Fatalf("with tx: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestInsertMapsExclusionViolationToConflict(t *testing.T) {
	mock := newMock(t)
	store := NewStore(mock, outbox.NewRepository(mock, outbox.RepositoryConfig{}))

	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	appt := model.Appointment{ID: apptID, OrganizationID: "org-1", ProfessionalID: "pro-1", CustomerID: "cus-1",
		StartTime: start, EndTime: start.Add(time.Hour), Status: model.StatusScheduled, CreatedAt: start, UpdatedAt: start}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO appointments").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(exclusionViolation())
	mock.ExpectRollback()

	err := store.WithTx(context.Background(), func(tx scheduling.Tx) error {
		return tx.InsertAppointment(context.Background(), appt)
	})
	var conflict *apperr.SlotConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected slot conflict, got %v", err)
	}
	if conflict.ProfessionalID != "pro-1" || !conflict.Start.Equal(start) || !conflict.End.Equal(start.Add(time.Hour)) {
		t.Fatalf("unexpected conflict %+v", conflict)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateMapsExclusionViolationToConflict(t *testing.T) {
	mock := newMock(t)
	store := NewStore(mock, outbox.NewRepository(mock, outbox.RepositoryConfig{}))

	start := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	appt := model.Appointment{ID: apptID, OrganizationID: "org-1", ProfessionalID: "pro-2",
		StartTime: start, EndTime: start.Add(30 * time.Minute), Status: model.StatusScheduled, UpdatedAt: start}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE appointments").
		WithArgs(apptID, "org-1", "pro-2", start, start.Add(30*time.Minute), "scheduled", pgxmock.AnyArg(), start).
		WillReturnError(exclusionViolation())
	mock.ExpectRollback()

	err := store.WithTx(context.Background(), func(tx scheduling.Tx) error {
		return tx.UpdateAppointment(context.Background(), appt)
	})
	var conflict *apperr.SlotConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected slot conflict, got %v", err)
	}
	if conflict.ProfessionalID != "pro-2" || !conflict.Start.Equal(start) {
		t.Fatalf("unexpected conflict %+v", conflict)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestFindOverlappingExcludesMovedAppointment(t *testing.T) {
	mock := newMock(t)
	store := NewStore(mock, outbox.NewRepository(mock, outbox.RepositoryConfig{}))

	start := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)

	mock.ExpectBegin()
	mock.ExpectQuery("id <> \\$5::uuid").
		WithArgs("org-1", "pro-1", start, end, apptID).
		WillReturnRows(pgxmock.NewRows(apptColumns).
			AddRow(otherID, "org-1", "pro-1", "cus-2", "", start, end, "scheduled", "pending", "", nil, start, start))
	mock.ExpectCommit()

	err := store.WithTx(context.Background(), func(tx scheduling.Tx) error {
		found, err := tx.FindOverlapping(context.Background(), "org-1", "pro-1", start, end, apptID)
		if err != nil {
			return err
		}
		if len(found) != 1 || found[0].ID != otherID {
			t.Fatalf("unexpected overlaps %+v", found)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("with tx: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetAppointmentForUpdateNotFound(t *testing.T) {
	mock := newMock(t)
	store := NewStore(mock, outbox.NewRepository(mock, outbox.RepositoryConfig{}))

	mock.ExpectBegin()
	mock.ExpectQuery("WHERE id = \\$1::uuid AND organization_id = \\$2").
		WithArgs(apptID, "org-1").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	err := store.WithTx(context.Background(), func(tx scheduling.Tx) error {
		_, err := tx.GetAppointmentForUpdate(context.Background(), "org-1", apptID)
		return err
	})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMalformedIDIsNotFoundWithoutQuery(t *testing.T) {
	mock := newMock(t)
	store := NewStore(mock, outbox.NewRepository(mock, outbox.RepositoryConfig{}))

	if _, err := store.GetAppointment(context.Background(), "org-1", "not-a-uuid"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("get: expected not found, got %v", err)
	}

	mock.ExpectBegin()
	mock.ExpectRollback()
	err := store.WithTx(context.Background(), func(tx scheduling.Tx) error {
		if _, err := tx.GetAppointmentForUpdate(context.Background(), "org-1", "missing"); !errors.Is(err, apperr.ErrNotFound) {
			t.Fatalf("for update: expected not found, got %v", err)
		}
		return tx.UpdateAppointment(context.Background(), model.Appointment{ID: "a1", OrganizationID: "org-1"})
	})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("update: expected not found, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateAppointmentNoRows(t *testing.T) {
	mock := newMock(t)
	store := NewStore(mock, outbox.NewRepository(mock, outbox.RepositoryConfig{}))

	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	appt := model.Appointment{ID: apptID, OrganizationID: "org-1", ProfessionalID: "pro-1",
		StartTime: start, EndTime: start.Add(time.Hour), Status: model.StatusCanceled, CanceledAt: &start, UpdatedAt: start}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE appointments").
		WithArgs(apptID, "org-1", "pro-1", start, start.Add(time.Hour), "canceled", &start, start).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := store.WithTx(context.Background(), func(tx scheduling.Tx) error {
		return tx.UpdateAppointment(context.Background(), appt)
	})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestServiceDurationMissing(t *testing.T) {
	mock := newMock(t)
	store := NewStore(mock, outbox.NewRepository(mock, outbox.RepositoryConfig{}))

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT duration_minutes").
		WithArgs("svc-1", "org-1").
		WillReturnRows(pgxmock.NewRows([]string{"duration_minutes"}).AddRow(45))
	mock.ExpectQuery("SELECT duration_minutes").
		WithArgs("svc-2", "org-1").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectCommit()

	err := store.WithTx(context.Background(), func(tx scheduling.Tx) error {
		d, ok, err := tx.ServiceDuration(context.Background(), "org-1", "svc-1")
		if err != nil || !ok || d != 45*time.Minute {
			t.Fatalf("svc-1: d=%v ok=%v err=%v", d, ok, err)
		}
		d, ok, err = tx.ServiceDuration(context.Background(), "org-1", "svc-2")
		if err != nil || ok || d != 0 {
			t.Fatalf("svc-2: d=%v ok=%v err=%v", d, ok, err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("with tx: %v", err)
	}
}

func TestGetAppointmentsInRangeExcludesStatuses(t *testing.T) {
	mock := newMock(t)
	store := NewStore(mock, outbox.NewRepository(mock, outbox.RepositoryConfig{}))

	from := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)
	start := from.Add(9 * time.Hour)

	mock.ExpectQuery("NOT \\(status = ANY\\(\\$5\\)\\)").
		WithArgs("org-1", "pro-1", from, to, []string{"canceled"}).
		WillReturnRows(pgxmock.NewRows(apptColumns).
			AddRow("a1", "org-1", "pro-1", "cus-1", "", start, start.Add(time.Hour), "confirmed", "pending", "", nil, from, from))

	appts, err := store.GetAppointmentsInRange(context.Background(), "org-1", "pro-1", from, to, []model.Status{model.StatusCanceled})
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(appts) != 1 || appts[0].ID != "a1" || appts[0].Status != model.StatusConfirmed {
		t.Fatalf("unexpected appointments %+v", appts)
	}
	if appts[0].CanceledAt != nil {
		t.Fatalf("expected nil canceled_at")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetOrganizationSettingsDefaults(t *testing.T) {
	mock := newMock(t)
	store := NewStore(mock, outbox.NewRepository(mock, outbox.RepositoryConfig{}))

	mock.ExpectQuery("FROM organization_settings").
		WithArgs("org-1").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("FROM organization_settings").
		WithArgs("org-2").
		WillReturnRows(pgxmock.NewRows([]string{"name", "timezone", "appointment_duration_minutes"}).
			AddRow("Barbearia", "America/Sao_Paulo", 45))

	settings, err := store.GetOrganizationSettings(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if settings.Timezone != "UTC" || settings.AppointmentDuration != model.DefaultAppointmentDuration {
		t.Fatalf("expected defaults, got %+v", settings)
	}

	settings, err = store.GetOrganizationSettings(context.Background(), "org-2")
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if settings.Timezone != "America/Sao_Paulo" || settings.AppointmentDuration != 45*time.Minute {
		t.Fatalf("unexpected settings %+v", settings)
	}
}

func TestWorkingPatternLookupAndUpsert(t *testing.T) {
	mock := newMock(t)
	store := NewStore(mock, outbox.NewRepository(mock, outbox.RepositoryConfig{}))
	cols := []string{"organization_id", "professional_id", "day_of_week", "start_time", "end_time", "break_start", "break_end", "is_active"}

	mock.ExpectQuery("FROM working_patterns").
		WithArgs("org-1", "pro-1", 1).
		WillReturnRows(pgxmock.NewRows(cols).AddRow("org-1", "pro-1", 1, "08:00", "12:00", "10:00", "10:30", true))
	mock.ExpectQuery("FROM working_patterns").
		WithArgs("org-1", "pro-1", 0).
		WillReturnError(pgx.ErrNoRows)

	p, ok, err := store.GetWorkingPattern(context.Background(), "org-1", "pro-1", time.Monday)
	if err != nil || !ok {
		t.Fatalf("monday: ok=%v err=%v", ok, err)
	}
	if p.Weekday != time.Monday || !p.HasBreak() || p.BreakStart != "10:00" {
		t.Fatalf("unexpected pattern %+v", p)
	}
	if _, ok, err := store.GetWorkingPattern(context.Background(), "org-1", "pro-1", time.Sunday); err != nil || ok {
		t.Fatalf("sunday: ok=%v err=%v", ok, err)
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO working_patterns").
		WithArgs("org-1", "pro-1", 1, "09:00", "17:00", "", "", true).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO working_patterns").
		WithArgs("org-1", "pro-1", 2, "09:00", "17:00", "", "", false).
		WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	err = store.UpsertWeek(context.Background(), "org-1", "pro-1", []model.WorkingPattern{
		{Weekday: time.Monday, StartTime: "09:00", EndTime: "17:00", IsActive: true},
		{Weekday: time.Tuesday, StartTime: "09:00", EndTime: "17:00"},
	})
	if err == nil {
		t.Fatalf("expected upsert error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetContactNotFound(t *testing.T) {
	mock := newMock(t)
	store := NewStore(mock, outbox.NewRepository(mock, outbox.RepositoryConfig{}))

	mock.ExpectQuery("FROM customers").
		WithArgs("cus-9", "org-1").
		WillReturnError(pgx.ErrNoRows)

	_, err := store.GetContact(context.Background(), "org-1", "cus-9")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
