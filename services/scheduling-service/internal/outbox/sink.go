package outbox

import (
	"context"
	"time"

	"github.com/elizahq/eliza/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer the sink needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes each record to the topic named after its event type, keyed by aggregate
// id so one appointment's events stay ordered.
type KafkaSink struct {
	writer MessageWriter
}

func NewKafkaSink(brokers []string) *KafkaSink {
	return &KafkaSink{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
		RequiredAcks:           kafka.RequireAll,
	}}
}

func NewKafkaSinkWithWriter(w MessageWriter) *KafkaSink {
	return &KafkaSink{writer: w}
}

func (s *KafkaSink) Deliver(ctx context.Context, rec Record) error {
	meta := kafkax.EventMeta{
		EventID:        rec.EventID,
		EventType:      rec.EventType,
		OrganizationID: rec.OrganizationID,
	}
	msg := kafka.Message{
		Topic:   rec.EventType,
		Key:     []byte(rec.AggregateID),
		Value:   rec.Payload,
		Headers: meta.Headers(),
	}
	msg.Headers = kafkax.InjectTraceHeaders(ctx, msg.Headers)
	return s.writer.WriteMessages(ctx, msg)
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

// HandlerSink delivers in process, for deployments without a broker.
type HandlerSink func(ctx context.Context, rec Record) error

func (h HandlerSink) Deliver(ctx context.Context, rec Record) error {
	return h(ctx, rec)
}
