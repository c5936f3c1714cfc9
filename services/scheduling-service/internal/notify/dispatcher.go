package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/elizahq/eliza/services/scheduling-service/internal/apperr"
	"github.com/elizahq/eliza/services/scheduling-service/internal/metrics"
	"github.com/elizahq/eliza/services/scheduling-service/internal/model"
	"github.com/elizahq/eliza/services/scheduling-service/internal/outbox"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	StatusSent    = "sent"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

type ContactDirectory interface {
	GetContact(ctx context.Context, orgID, customerID string) (model.Contact, error)
}

type SettingsReader interface {
	GetOrganizationSettings(ctx context.Context, orgID string) (model.OrganizationSettings, error)
}

// LogWriter persists one row per dispatch attempt.
type LogWriter interface {
	Insert(ctx context.Context, entry Entry) error
}

type Notification struct {
	EventID     string
	Kind        Kind
	Appointment outbox.AppointmentPayload
}

type Dispatcher struct {
	contacts ContactDirectory
	settings SettingsReader
	sender   Sender
	log      LogWriter
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Dispatcher)

func WithLog(w LogWriter) Option {
	return func(d *Dispatcher) { d.log = w }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

func NewDispatcher(contacts ContactDirectory, settings SettingsReader, sender Sender, logger *slog.Logger, opts ...Option) *Dispatcher {
	if sender == nil {
		sender = NewNoopSender()
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{contacts: contacts, settings: settings, sender: sender, logger: logger}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

var eventKinds = map[string]Kind{
	outbox.EventAppointmentCreated:     KindCreated,
	outbox.EventAppointmentRescheduled: KindRescheduled,
	outbox.EventAppointmentCanceled:    KindCanceled,
	outbox.EventAppointmentConfirmed:   KindConfirmed,
}

// ErrUnknownEvent is returned by DecodeEvent for event types that carry no notification.
var ErrUnknownEvent = errors.New("event type has no notification")

func DecodeEvent(eventID, eventType string, payload []byte) (Notification, error) {
	kind, ok := eventKinds[eventType]
	if !ok {
		return Notification{}, fmt.Errorf("%s: %w", eventType, ErrUnknownEvent)
	}
	appt, err := outbox.DecodePayload(payload)
	if err != nil {
		return Notification{}, fmt.Errorf("decode %s payload: %w", eventType, err)
	}
	if appt.AppointmentID == "" || appt.OrganizationID == "" || appt.CustomerID == "" {
		return Notification{}, fmt.Errorf("%s payload missing identifiers", eventType)
	}
	return Notification{EventID: eventID, Kind: kind, Appointment: appt}, nil
}

// HandleEvent is the entry point for both the in-process outbox sink and the Kafka consumer.
// Undecodable events are dropped; only delivery failures are returned for retry.
func (d *Dispatcher) HandleEvent(ctx context.Context, eventID, eventType string, payload []byte) error {
	n, err := DecodeEvent(eventID, eventType, payload)
	if errors.Is(err, ErrUnknownEvent) {
		d.logger.Debug("ignoring event without notification", "event_type", eventType)
		return nil
	}
	if err != nil {
		d.logger.Error("invalid appointment event", "event_id", eventID, "err", err)
		return nil
	}
	return d.Dispatch(ctx, n)
}

// HandleRecord adapts the dispatcher to outbox.HandlerSink.
func (d *Dispatcher) HandleRecord(ctx context.Context, rec outbox.Record) error {
	return d.HandleEvent(ctx, rec.EventID, rec.EventType, rec.Payload)
}

func (d *Dispatcher) Dispatch(ctx context.Context, n Notification) error {
	ctx, span := otel.Tracer("notify").Start(ctx, "notify.dispatch")
	defer span.End()
	appt := n.Appointment
	span.SetAttributes(
		attribute.String("notification.kind", string(n.Kind)),
		attribute.String("appointment.id", appt.AppointmentID),
	)

	contact, err := d.contacts.GetContact(ctx, appt.OrganizationID, appt.CustomerID)
	if errors.Is(err, apperr.ErrNotFound) {
		d.logger.Warn("notification skipped, unknown customer", "appointment_id", appt.AppointmentID, "customer_id", appt.CustomerID)
		d.metrics.ObserveNotification(string(n.Kind), StatusSkipped)
		return nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "contact lookup failed")
		return err
	}
	if strings.TrimSpace(contact.Phone) == "" {
		d.logger.Info("notification skipped, customer has no phone", "appointment_id", appt.AppointmentID)
		d.metrics.ObserveNotification(string(n.Kind), StatusSkipped)
		if err := d.record(ctx, n, "", StatusSkipped, ""); err != nil {
			d.logger.Error("failed to persist notification", "err", err)
		}
		return nil
	}

	settings, err := d.settings.GetOrganizationSettings(ctx, appt.OrganizationID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "settings lookup failed")
		return err
	}
	body, err := render(n.Kind, newMessageData(contact.Name, settings.Name, appt.StartTime, appt.PreviousStartTime, settings.Location()))
	if err != nil {
		return err
	}

	sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := d.sender.Send(sendCtx, contact.Phone, body); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
		d.logger.Error("notification send failed", "appointment_id", appt.AppointmentID, "kind", n.Kind, "provider", d.sender.ProviderID(), "err", err)
		d.metrics.ObserveNotification(string(n.Kind), StatusFailed)
		if recErr := d.record(ctx, n, contact.Phone, StatusFailed, err.Error()); recErr != nil {
			d.logger.Error("failed to persist notification", "err", recErr)
		}
		return err
	}

	d.metrics.ObserveNotification(string(n.Kind), StatusSent)
	d.logger.Info("notification sent", "appointment_id", appt.AppointmentID, "kind", n.Kind, "provider", d.sender.ProviderID())
	if err := d.record(ctx, n, contact.Phone, StatusSent, ""); err != nil {
		// already delivered; a retry would message the customer twice
		d.logger.Error("failed to persist notification", "err", err)
	}
	return nil
}

func (d *Dispatcher) record(ctx context.Context, n Notification, recipient, status, reason string) error {
	if d.log == nil {
		return nil
	}
	return d.log.Insert(ctx, Entry{
		EventID:        n.EventID,
		AppointmentID:  n.Appointment.AppointmentID,
		OrganizationID: n.Appointment.OrganizationID,
		Kind:           n.Kind,
		Recipient:      recipient,
		Provider:       d.sender.ProviderID(),
		Status:         status,
		Error:          reason,
	})
}
