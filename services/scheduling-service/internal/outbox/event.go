package outbox

import (
	"encoding/json"
	"time"

	"github.com/elizahq/eliza/services/scheduling-service/internal/model"
)

// Event types double as Kafka topic names.
const (
	EventAppointmentCreated     = "appointment.created.v1"
	EventAppointmentRescheduled = "appointment.rescheduled.v1"
	EventAppointmentCanceled    = "appointment.canceled.v1"
	EventAppointmentConfirmed   = "appointment.confirmed.v1"
)

var AppointmentEventTypes = []string{
	EventAppointmentCreated,
	EventAppointmentRescheduled,
	EventAppointmentCanceled,
	EventAppointmentConfirmed,
}

// Event is the domain event envelope written to the outbox table.
type Event struct {
	AggregateType  string
	AggregateID    string
	EventType      string
	OrganizationID string
	Payload        []byte
}

// Record is an Event as stored, with delivery bookkeeping.
type Record struct {
	ID             int64
	EventID        string
	AggregateType  string
	AggregateID    string
	EventType      string
	OrganizationID string
	Payload        []byte
	Traceparent    string
	Tracestate     string
	Attempts       int
	CreatedAt      time.Time
}

type AppointmentPayload struct {
	AppointmentID          string     `json:"appointment_id"`
	OrganizationID         string     `json:"organization_id"`
	ProfessionalID         string     `json:"professional_id"`
	CustomerID             string     `json:"customer_id"`
	ServiceID              string     `json:"service_id,omitempty"`
	Status                 string     `json:"status"`
	StartTime              time.Time  `json:"start_time"`
	EndTime                time.Time  `json:"end_time"`
	PreviousStartTime      *time.Time `json:"previous_start_time,omitempty"`
	PreviousProfessionalID string     `json:"previous_professional_id,omitempty"`
	OccurredAt             time.Time  `json:"occurred_at"`
}

// NewAppointmentEvent builds the envelope for an appointment change. previous is set for
// reschedules only.
func NewAppointmentEvent(eventType string, appt model.Appointment, previous *model.Appointment, at time.Time) (Event, error) {
	payload := AppointmentPayload{
		AppointmentID:  appt.ID,
		OrganizationID: appt.OrganizationID,
		ProfessionalID: appt.ProfessionalID,
		CustomerID:     appt.CustomerID,
		ServiceID:      appt.ServiceID,
		Status:         string(appt.Status),
		StartTime:      appt.StartTime.UTC(),
		EndTime:        appt.EndTime.UTC(),
		OccurredAt:     at.UTC(),
	}
	if previous != nil {
		prevStart := previous.StartTime.UTC()
		payload.PreviousStartTime = &prevStart
		if previous.ProfessionalID != appt.ProfessionalID {
			payload.PreviousProfessionalID = previous.ProfessionalID
		}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType:  "appointment",
		AggregateID:    appt.ID,
		EventType:      eventType,
		OrganizationID: appt.OrganizationID,
		Payload:        raw,
	}, nil
}

func DecodePayload(raw []byte) (AppointmentPayload, error) {
	var p AppointmentPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return AppointmentPayload{}, err
	}
	return p, nil
}
