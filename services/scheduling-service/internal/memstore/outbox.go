package memstore

import (
	"context"
	"time"

	"github.com/elizahq/eliza/services/scheduling-service/internal/outbox"
)

// ProcessBatch delivers due events without holding the store lock, so deliver may read
// from the store.
func (s *Store) ProcessBatch(ctx context.Context, limit int, deliver outbox.DeliverFunc) (outbox.Stats, error) {
	now := s.now()
	s.txMu.Lock()
	var claimed []*outboxEntry
	for _, e := range s.events {
		if len(claimed) >= limit {
			break
		}
		if e.published || e.deadLettered || e.inFlight || now.Before(e.nextAttempt) {
			continue
		}
		e.inFlight = true
		claimed = append(claimed, e)
	}
	s.txMu.Unlock()

	var stats outbox.Stats
	for _, e := range claimed {
		err := deliver(ctx, e.rec)

		s.txMu.Lock()
		e.inFlight = false
		if err == nil {
			e.published = true
			stats.Published++
		} else {
			e.rec.Attempts++
			e.lastError = err.Error()
			stats.Failed++
			if e.rec.Attempts >= s.maxAttempts {
				e.deadLettered = true
				stats.DeadLettered++
			} else {
				e.nextAttempt = now.Add(s.backoff * time.Duration(e.rec.Attempts))
			}
		}
		s.txMu.Unlock()
	}
	return stats, nil
}

// Events returns every event enqueued so far, oldest first.
func (s *Store) Events() []outbox.Record {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	out := make([]outbox.Record, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.rec)
	}
	return out
}

// PendingEvents counts events that are neither published nor dead-lettered.
func (s *Store) PendingEvents() int {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	n := 0
	for _, e := range s.events {
		if !e.published && !e.deadLettered {
			n++
		}
	}
	return n
}
