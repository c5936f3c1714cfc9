package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/elizahq/eliza/services/scheduling-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepositoryWrapsOnlyUnclassified(t *testing.T) {
	raw := errors.New("connection reset")
	err := Repository("get pattern", raw)

	var repoErr *RepositoryError
	require.ErrorAs(t, err, &repoErr)
	assert.Equal(t, "get pattern", repoErr.Op)
	assert.ErrorIs(t, err, raw)

	conflict := &SlotConflictError{ProfessionalID: "p1"}
	assert.Same(t, conflict, Repository("insert", conflict))

	notFound := fmt.Errorf("appointment a1: %w", ErrNotFound)
	assert.Equal(t, notFound, Repository("load", notFound))

	assert.NoError(t, Repository("noop", nil))
}

func TestPublicMessage(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"conflict", &SlotConflictError{ProfessionalID: "p1"}, msgConflict},
		{"wrapped conflict", fmt.Errorf("create: %w", &SlotConflictError{}), msgConflict},
		{"transition", &InvalidTransitionError{From: model.StatusCanceled, To: model.StatusConfirmed}, msgTransition + " (canceled -> confirmed)"},
		{"validation", Invalid("start_time", "must be in the future"), "start_time: must be in the future"},
		{"not found", fmt.Errorf("x: %w", ErrNotFound), msgNotFound},
		{"repository", &RepositoryError{Op: "q", Err: errors.New("pq: password authentication failed")}, msgRetry},
		{"configuration", &ConfigurationError{Reason: "start >= end"}, msgRetry},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, PublicMessage(tc.err))
		})
	}
}
