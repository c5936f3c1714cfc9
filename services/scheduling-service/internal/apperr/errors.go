// Package apperr is the error taxonomy surfaced by the availability engine and the scheduling
// service. Callers branch with errors.As / errors.Is; HTTP and gRPC edges map them to status
// codes and to PublicMessage.
package apperr

import (
	"errors"
	"fmt"
	"time"

	"github.com/elizahq/eliza/services/scheduling-service/internal/model"
)

var ErrNotFound = errors.New("not found")

// RepositoryError wraps a datastore failure. It is never a "no data" signal.
type RepositoryError struct {
	Op  string
	Err error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("repository: %s: %v", e.Op, e.Err)
}

func (e *RepositoryError) Unwrap() error { return e.Err }

// Repository wraps err unless it is nil or already classified.
func Repository(op string, err error) error {
	if err == nil {
		return nil
	}
	var (
		repoErr     *RepositoryError
		conflictErr *SlotConflictError
		validErr    *ValidationError
		transErr    *InvalidTransitionError
		cfgErr      *ConfigurationError
	)
	if errors.Is(err, ErrNotFound) || errors.As(err, &repoErr) || errors.As(err, &conflictErr) ||
		errors.As(err, &validErr) || errors.As(err, &transErr) || errors.As(err, &cfgErr) {
		return err
	}
	return &RepositoryError{Op: op, Err: err}
}

type SlotConflictError struct {
	ProfessionalID string
	Start          time.Time
	End            time.Time
	ConflictingID  string
}

func (e *SlotConflictError) Error() string {
	msg := fmt.Sprintf("slot conflict for professional %s in [%s, %s)", e.ProfessionalID,
		e.Start.UTC().Format(time.RFC3339), e.End.UTC().Format(time.RFC3339))
	if e.ConflictingID != "" {
		msg += " with appointment " + e.ConflictingID
	}
	return msg
}

type InvalidTransitionError struct {
	From model.Status
	To   model.Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

// ConfigurationError is malformed working-pattern or organization data.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration: " + e.Reason
}

// ValidationError is bad caller input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

const (
	msgConflict   = "this time is no longer available, please choose another"
	msgTransition = "this appointment cannot move to the requested status"
	msgNotFound   = "not found"
	msgRetry      = "something went wrong, please try again"
)

// PublicMessage is safe to show end users: actionable for caller mistakes, generic for
// infrastructure failures.
func PublicMessage(err error) string {
	var (
		conflictErr *SlotConflictError
		transErr    *InvalidTransitionError
		validErr    *ValidationError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &conflictErr):
		return msgConflict
	case errors.As(err, &transErr):
		return fmt.Sprintf("%s (%s -> %s)", msgTransition, transErr.From, transErr.To)
	case errors.As(err, &validErr):
		return validErr.Error()
	case errors.Is(err, ErrNotFound):
		return msgNotFound
	default:
		return msgRetry
	}
}
