package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/elizahq/eliza/services/scheduling-service/internal/apperr"
	"github.com/elizahq/eliza/services/scheduling-service/internal/model"
	"github.com/elizahq/eliza/services/scheduling-service/internal/outbox"
	"github.com/elizahq/eliza/services/scheduling-service/internal/scheduling"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func appt(id string, start time.Time, status model.Status) model.Appointment {
	return model.Appointment{
		ID:             id,
		OrganizationID: "org-1",
		ProfessionalID: "pro-1",
		CustomerID:     "cus-1",
		StartTime:      start,
		EndTime:        start.Add(30 * time.Minute),
		Status:         status,
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx scheduling.Tx) error {
		require.NoError(t, tx.InsertAppointment(ctx, appt("a1", base, model.StatusScheduled)))
		require.NoError(t, tx.EnqueueEvent(ctx, outbox.Event{EventType: outbox.EventAppointmentCreated}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.GetAppointment(ctx, "org-1", "a1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Empty(t, s.Events())
}

func TestInsertEnforcesExclusion(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.WithTx(ctx, func(tx scheduling.Tx) error {
		return tx.InsertAppointment(ctx, appt("a1", base, model.StatusScheduled))
	}))

	err := s.WithTx(ctx, func(tx scheduling.Tx) error {
		return tx.InsertAppointment(ctx, appt("a2", base.Add(15*time.Minute), model.StatusPending))
	})
	var conflict *apperr.SlotConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "a1", conflict.ConflictingID)

	// Back-to-back and canceled rows do not collide.
	require.NoError(t, s.WithTx(ctx, func(tx scheduling.Tx) error {
		if err := tx.InsertAppointment(ctx, appt("a3", base.Add(30*time.Minute), model.StatusScheduled)); err != nil {
			return err
		}
		return tx.InsertAppointment(ctx, appt("a4", base, model.StatusCanceled))
	}))
}

func TestGetAppointmentsInRangeIsTenantScoped(t *testing.T) {
	s := New()
	ctx := context.Background()
	other := appt("b1", base, model.StatusScheduled)
	other.OrganizationID = "org-2"

	require.NoError(t, s.WithTx(ctx, func(tx scheduling.Tx) error {
		if err := tx.InsertAppointment(ctx, appt("a1", base, model.StatusScheduled)); err != nil {
			return err
		}
		if err := tx.InsertAppointment(ctx, appt("a2", base.Add(time.Hour), model.StatusCanceled)); err != nil {
			return err
		}
		return tx.InsertAppointment(ctx, other)
	}))

	got, err := s.GetAppointmentsInRange(ctx, "org-1", "pro-1", base.Add(-time.Hour), base.Add(2*time.Hour), []model.Status{model.StatusCanceled})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a1", got[0].ID)

	_, err = s.GetAppointment(ctx, "org-2", "a1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestProcessBatchRetriesThenDeadLetters(t *testing.T) {
	now := base
	s := New(WithClock(func() time.Time { return now }), WithOutboxPolicy(2, time.Minute))
	ctx := context.Background()
	require.NoError(t, s.WithTx(ctx, func(tx scheduling.Tx) error {
		return tx.EnqueueEvent(ctx, outbox.Event{AggregateID: "a1", EventType: outbox.EventAppointmentCreated})
	}))

	failing := func(context.Context, outbox.Record) error { return errors.New("down") }

	stats, err := s.ProcessBatch(ctx, 10, failing)
	require.NoError(t, err)
	assert.Equal(t, outbox.Stats{Failed: 1}, stats)

	// Backoff keeps the event out of the next immediate batch.
	stats, err = s.ProcessBatch(ctx, 10, failing)
	require.NoError(t, err)
	assert.Equal(t, outbox.Stats{}, stats)

	now = now.Add(2 * time.Minute)
	stats, err = s.ProcessBatch(ctx, 10, failing)
	require.NoError(t, err)
	assert.Equal(t, outbox.Stats{Failed: 1, DeadLettered: 1}, stats)
	assert.Equal(t, 0, s.PendingEvents())
}

func TestProcessBatchDeliverMayReadStore(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.PutContact("org-1", model.Contact{CustomerID: "cus-1", Phone: "+5511999990000"})
	require.NoError(t, s.WithTx(ctx, func(tx scheduling.Tx) error {
		return tx.EnqueueEvent(ctx, outbox.Event{AggregateID: "a1", EventType: outbox.EventAppointmentCreated})
	}))

	stats, err := s.ProcessBatch(ctx, 10, func(ctx context.Context, rec outbox.Record) error {
		if _, err := s.GetContact(ctx, "org-1", "cus-1"); err != nil {
			return err
		}
		_, err := s.GetAppointmentsInRange(ctx, "org-1", "pro-1", base, base.Add(time.Hour), nil)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Published)
	assert.Equal(t, 0, s.PendingEvents())
}

func TestPatternsAndSettingsDefaults(t *testing.T) {
	s := New()
	ctx := context.Background()

	settings, err := s.GetOrganizationSettings(ctx, "org-9")
	require.NoError(t, err)
	assert.Equal(t, model.DefaultAppointmentDuration, settings.AppointmentDuration)
	assert.Equal(t, "UTC", settings.Timezone)

	require.NoError(t, s.UpsertWeek(ctx, "org-1", "pro-1", []model.WorkingPattern{
		{Weekday: time.Tuesday, StartTime: "09:00", EndTime: "17:00", IsActive: true},
		{Weekday: time.Monday, StartTime: "08:00", EndTime: "12:00", IsActive: true},
	}))
	week, err := s.ListWeek(ctx, "org-1", "pro-1")
	require.NoError(t, err)
	require.Len(t, week, 2)
	assert.Equal(t, time.Monday, week[0].Weekday)
	assert.Equal(t, "pro-1", week[0].ProfessionalID)

	_, ok, err := s.GetWorkingPattern(ctx, "org-1", "pro-1", time.Sunday)
	require.NoError(t, err)
	assert.False(t, ok)
}
