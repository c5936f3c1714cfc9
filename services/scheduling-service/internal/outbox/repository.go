package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/elizahq/eliza/libs/db"
	otelx "github.com/elizahq/eliza/libs/otel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	DefaultMaxAttempts = 10
	DefaultBackoff     = 30 * time.Second
)

// Repository is the Postgres outbox. Insert runs inside the caller's transaction; ProcessBatch
// claims rows with SKIP LOCKED so several publishers can share the table.
type Repository struct {
	db          db.TxBeginner
	maxAttempts int
	backoff     time.Duration
}

type RepositoryConfig struct {
	MaxAttempts int
	Backoff     time.Duration
}

func NewRepository(conn db.TxBeginner, cfg RepositoryConfig) *Repository {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	return &Repository{db: conn, maxAttempts: cfg.MaxAttempts, backoff: cfg.Backoff}
}

func (r *Repository) Insert(ctx context.Context, tx db.Querier, evt Event) error {
	tc := otelx.CaptureTraceContext(ctx)
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox_events (event_id, aggregate_type, aggregate_id, event_type, organization_id, payload, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, uuid.NewString(), evt.AggregateType, evt.AggregateID, evt.EventType, evt.OrganizationID, evt.Payload, tc.Parent, tc.State)
	return err
}

func (r *Repository) FetchUnpublished(ctx context.Context, tx pgx.Tx, limit int) ([]Record, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, event_id, aggregate_type, aggregate_id, event_type, organization_id, payload, traceparent, tracestate, attempts, created_at
		FROM outbox_events
		WHERE published_at IS NULL
			AND dead_lettered_at IS NULL
			AND next_attempt_at <= now()
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rcd Record
		if err := rows.Scan(&rcd.ID, &rcd.EventID, &rcd.AggregateType, &rcd.AggregateID, &rcd.EventType, &rcd.OrganizationID,
			&rcd.Payload, &rcd.Traceparent, &rcd.Tracestate, &rcd.Attempts, &rcd.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rcd)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

func (r *Repository) MarkPublished(ctx context.Context, tx pgx.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		UPDATE outbox_events
		SET published_at = now()
		WHERE id = ANY($1)
	`, ids)
	return err
}

// MarkFailed records a failed delivery. Once attempts reaches the limit the row is
// dead-lettered and no longer fetched.
func (r *Repository) MarkFailed(ctx context.Context, tx pgx.Tx, id int64, attempts int, reason string) (deadLettered bool, err error) {
	if attempts >= r.maxAttempts {
		_, err = tx.Exec(ctx, `
			UPDATE outbox_events
			SET attempts = $2, last_error = $3, dead_lettered_at = now()
			WHERE id = $1
		`, id, attempts, reason)
		return err == nil, err
	}
	_, err = tx.Exec(ctx, `
		UPDATE outbox_events
		SET attempts = $2, last_error = $3, next_attempt_at = now() + ($4 * interval '1 second')
		WHERE id = $1
	`, id, attempts, reason, r.backoff.Seconds()*float64(attempts))
	return false, err
}

// ProcessBatch claims up to limit due rows and hands each to deliver with its stored trace
// context. Rows are marked inside the same transaction that claimed them.
func (r *Repository) ProcessBatch(ctx context.Context, limit int, deliver DeliverFunc) (Stats, error) {
	var stats Stats
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		records, err := r.FetchUnpublished(ctx, tx, limit)
		if err != nil {
			return fmt.Errorf("fetch unpublished: %w", err)
		}
		var ids []int64
		for _, rcd := range records {
			recCtx := otelx.TraceContext{Parent: rcd.Traceparent, State: rcd.Tracestate}.Restore(ctx)
			if err := deliver(recCtx, rcd); err != nil {
				dead, markErr := r.MarkFailed(ctx, tx, rcd.ID, rcd.Attempts+1, err.Error())
				if markErr != nil {
					return fmt.Errorf("mark failed: %w", markErr)
				}
				stats.Failed++
				if dead {
					stats.DeadLettered++
				}
				continue
			}
			ids = append(ids, rcd.ID)
		}
		if err := r.MarkPublished(ctx, tx, ids); err != nil {
			return fmt.Errorf("mark published: %w", err)
		}
		stats.Published = len(ids)
		return nil
	})
	if err != nil {
		return Stats{}, err
	}
	return stats, nil
}
