package notify

import (
	"context"

	"github.com/elizahq/eliza/libs/db"
)

type Entry struct {
	EventID        string
	AppointmentID  string
	OrganizationID string
	Kind           Kind
	Recipient      string
	Provider       string
	Status         string
	Error          string
}

// Repository is the Postgres notification log.
type Repository struct {
	db db.Querier
}

func NewRepository(conn db.Querier) *Repository {
	return &Repository{db: conn}
}

func (r *Repository) Insert(ctx context.Context, e Entry) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO notifications (event_id, appointment_id, organization_id, kind, recipient, provider, status, error)
		VALUES (NULLIF($1, ''), $2, $3, $4, $5, $6, $7, NULLIF($8, ''))
	`, e.EventID, e.AppointmentID, e.OrganizationID, string(e.Kind), e.Recipient, e.Provider, e.Status, e.Error)
	return err
}
