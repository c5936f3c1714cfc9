package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/elizahq/eliza/services/scheduling-service/internal/metrics"
)

type DeliverFunc func(ctx context.Context, rec Record) error

type Stats struct {
	Published    int
	Failed       int
	DeadLettered int
}

// Source hands due records to deliver and records the outcome of each.
type Source interface {
	ProcessBatch(ctx context.Context, limit int, deliver DeliverFunc) (Stats, error)
}

type Sink interface {
	Deliver(ctx context.Context, rec Record) error
}

type Publisher struct {
	source    Source
	sink      Sink
	logger    *slog.Logger
	metrics   *metrics.Metrics
	pollEvery time.Duration
	batchSize int
}

type PublisherConfig struct {
	PollEvery time.Duration
	BatchSize int
	Metrics   *metrics.Metrics
}

func NewPublisher(source Source, sink Sink, logger *slog.Logger, cfg PublisherConfig) *Publisher {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Publisher{
		source:    source,
		sink:      sink,
		logger:    logger,
		metrics:   cfg.Metrics,
		pollEvery: cfg.PollEvery,
		batchSize: cfg.BatchSize,
	}
}

func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.PublishOnce(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error("outbox publish failed", "err", err)
			}
		}
	}
}

// PublishOnce drains a single batch.
func (p *Publisher) PublishOnce(ctx context.Context) (Stats, error) {
	stats, err := p.source.ProcessBatch(ctx, p.batchSize, p.deliver)
	if err != nil {
		return stats, err
	}
	p.metrics.ObserveOutbox("published", stats.Published)
	p.metrics.ObserveOutbox("failed", stats.Failed)
	p.metrics.ObserveOutbox("dead_lettered", stats.DeadLettered)
	if stats.DeadLettered > 0 {
		p.logger.Error("outbox events dead-lettered", "count", stats.DeadLettered)
	}
	return stats, nil
}

func (p *Publisher) deliver(ctx context.Context, rec Record) error {
	if err := p.sink.Deliver(ctx, rec); err != nil {
		p.logger.Warn("outbox delivery failed",
			"event_id", rec.EventID,
			"event_type", rec.EventType,
			"attempt", rec.Attempts+1,
			"err", err,
		)
		return err
	}
	return nil
}
