package scheduling_test

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/elizahq/eliza/services/scheduling-service/internal/apperr"
	"github.com/elizahq/eliza/services/scheduling-service/internal/model"
	"github.com/elizahq/eliza/services/scheduling-service/internal/scheduling"
)

// Random create/reschedule/cancel/status sequences must never leave two live appointments of
// one professional overlapping.
func TestRandomOperationsKeepAppointmentsDisjoint(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		f := newFixture(t)
		for serviceID, d := range map[string]time.Duration{"s15": 15 * time.Minute, "s45": 45 * time.Minute, "s60": time.Hour} {
			f.store.PutService(org, serviceID, d)
		}
		rng := rand.New(rand.NewSource(seed))
		ctx := context.Background()
		professionals := []string{pro, "pro-2"}
		services := []string{"", "s15", "s45", "s60"}
		var ids []string

		randomStart := func() time.Time {
			return day.Add(7*time.Hour + time.Duration(rng.Intn(24))*15*time.Minute)
		}

		for step := 0; step < 60; step++ {
			var err error
			switch op := rng.Intn(4); {
			case op == 0 || len(ids) == 0:
				var res scheduling.Result
				res, err = f.svc.CreateAppointment(ctx, scheduling.CreateInput{
					OrganizationID: org,
					ProfessionalID: professionals[rng.Intn(len(professionals))],
					CustomerID:     "cus-1",
					ServiceID:      services[rng.Intn(len(services))],
					StartTime:      randomStart(),
				})
				if err == nil {
					ids = append(ids, res.Appointment.ID)
				}
			case op == 1:
				in := scheduling.RescheduleInput{
					OrganizationID: org,
					AppointmentID:  ids[rng.Intn(len(ids))],
					NewStartTime:   randomStart(),
				}
				if rng.Intn(2) == 0 {
					in.NewProfessionalID = professionals[rng.Intn(len(professionals))]
				}
				_, err = f.svc.RescheduleAppointment(ctx, in)
			case op == 2:
				_, err = f.svc.CancelAppointment(ctx, org, ids[rng.Intn(len(ids))])
			default:
				status := model.AllStatuses[rng.Intn(len(model.AllStatuses))]
				if rng.Intn(3) == 0 {
					_, err = f.svc.OverrideAppointmentStatus(ctx, org, ids[rng.Intn(len(ids))], status)
				} else {
					_, err = f.svc.UpdateAppointmentStatus(ctx, org, ids[rng.Intn(len(ids))], status)
				}
			}
			if err != nil && !expectedFailure(err) {
				t.Fatalf("seed %d step %d: unexpected error %v", seed, step, err)
			}
			assertDisjoint(t, f, professionals, seed, step)
		}
	}
}

func expectedFailure(err error) bool {
	var (
		conflict *apperr.SlotConflictError
		transErr *apperr.InvalidTransitionError
		validErr *apperr.ValidationError
	)
	return errors.As(err, &conflict) || errors.As(err, &transErr) || errors.As(err, &validErr)
}

func assertDisjoint(t *testing.T, f *fixture, professionals []string, seed int64, step int) {
	t.Helper()
	for _, professionalID := range professionals {
		appts, err := f.store.GetAppointmentsInRange(context.Background(), org, professionalID, day, day.Add(24*time.Hour), []model.Status{model.StatusCanceled})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		for i := 1; i < len(appts); i++ {
			if appts[i].StartTime.Before(appts[i-1].EndTime) {
				t.Fatalf("seed %d step %d: %s [%s,%s) overlaps %s [%s,%s)", seed, step,
					appts[i-1].ID, appts[i-1].StartTime.Format("15:04"), appts[i-1].EndTime.Format("15:04"),
					appts[i].ID, appts[i].StartTime.Format("15:04"), appts[i].EndTime.Format("15:04"))
			}
		}
	}
}
