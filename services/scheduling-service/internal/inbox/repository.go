package inbox

import (
	"context"

	"github.com/elizahq/eliza/libs/db"
)

// Repository deduplicates consumed events by event id.
type Repository struct {
	db db.Querier
}

func NewRepository(conn db.Querier) *Repository {
	return &Repository{db: conn}
}

// Record reports false when the event was already recorded.
func (r *Repository) Record(ctx context.Context, eventID string, eventType string) (bool, error) {
	_, err := r.db.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type)
		VALUES ($1, $2)
	`, eventID, eventType)
	if err == nil {
		return true, nil
	}
	if db.SQLState(err) == "23505" {
		return false, nil
	}
	return false, err
}

// Forget removes a recorded event so a later redelivery is processed again.
func (r *Repository) Forget(ctx context.Context, eventID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM inbox_events WHERE event_id = $1`, eventID)
	return err
}
