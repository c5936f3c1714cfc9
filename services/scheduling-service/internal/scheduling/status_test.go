package scheduling

import (
	"testing"

	"github.com/elizahq/eliza/services/scheduling-service/internal/model"
)

func TestCanTransition(t *testing.T) {
	allowed := map[model.Status][]model.Status{
		model.StatusPending:    {model.StatusScheduled, model.StatusConfirmed, model.StatusCanceled},
		model.StatusScheduled:  {model.StatusConfirmed, model.StatusArrived, model.StatusNoShow, model.StatusCanceled},
		model.StatusConfirmed:  {model.StatusArrived, model.StatusNoShow, model.StatusCanceled},
		model.StatusArrived:    {model.StatusInProgress, model.StatusCanceled},
		model.StatusInProgress: {model.StatusCompleted, model.StatusCanceled},
	}
	for _, from := range model.AllStatuses {
		for _, to := range model.AllStatuses {
			want := false
			for _, s := range allowed[from] {
				if s == to {
					want = true
				}
			}
			if got := CanTransition(from, to); got != want {
				t.Fatalf("%s -> %s: expected %v, got %v", from, to, want, got)
			}
		}
	}
}

func TestTerminalStatusesHaveNoExit(t *testing.T) {
	for _, from := range []model.Status{model.StatusCompleted, model.StatusCanceled, model.StatusNoShow} {
		for _, to := range model.AllStatuses {
			if CanTransition(from, to) {
				t.Fatalf("%s must be terminal, but allows %s", from, to)
			}
		}
	}
}

func TestIsBackward(t *testing.T) {
	cases := []struct {
		from, to model.Status
		want     bool
	}{
		{model.StatusConfirmed, model.StatusPending, true},
		{model.StatusCanceled, model.StatusScheduled, true},
		{model.StatusCompleted, model.StatusNoShow, true},
		{model.StatusScheduled, model.StatusConfirmed, false},
		{model.StatusArrived, model.StatusCanceled, false},
		{model.StatusPending, model.StatusScheduled, false},
	}
	for _, tc := range cases {
		if got := IsBackward(tc.from, tc.to); got != tc.want {
			t.Fatalf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.want, got)
		}
	}
}
