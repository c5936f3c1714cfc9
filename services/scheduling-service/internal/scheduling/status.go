package scheduling

import "github.com/elizahq/eliza/services/scheduling-service/internal/model"

var transitions = map[model.Status][]model.Status{
	model.StatusPending:    {model.StatusScheduled, model.StatusConfirmed, model.StatusCanceled},
	model.StatusScheduled:  {model.StatusConfirmed, model.StatusArrived, model.StatusNoShow, model.StatusCanceled},
	model.StatusConfirmed:  {model.StatusArrived, model.StatusNoShow, model.StatusCanceled},
	model.StatusArrived:    {model.StatusInProgress, model.StatusCanceled},
	model.StatusInProgress: {model.StatusCompleted, model.StatusCanceled},
}

// CanTransition reports whether from -> to is a legal forward move. Same-status is not a
// transition; callers treat it as a no-op before asking.
func CanTransition(from, to model.Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

var progress = map[model.Status]int{
	model.StatusPending:    0,
	model.StatusScheduled:  1,
	model.StatusConfirmed:  2,
	model.StatusArrived:    3,
	model.StatusInProgress: 4,
	model.StatusCompleted:  5,
	model.StatusNoShow:     5,
	model.StatusCanceled:   5,
}

// IsBackward is true for moves that undo progress, including leaving a terminal status.
func IsBackward(from, to model.Status) bool {
	if from.Terminal() && from != to {
		return true
	}
	return progress[to] < progress[from]
}
