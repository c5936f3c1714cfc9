package kafkax

import (
	"strings"

	"github.com/segmentio/kafka-go"
)

const (
	HeaderEventID        = "event_id"
	HeaderEventType      = "event_type"
	HeaderOrganizationID = "organization_id"
)

// EventMeta is the metadata every outbox-published message carries in its headers.
type EventMeta struct {
	EventID        string
	EventType      string
	OrganizationID string
}

// ExtractEventMeta falls back to the message key and topic for producers that omit headers.
func ExtractEventMeta(msg kafka.Message) EventMeta {
	meta := EventMeta{
		EventID:        HeaderValue(msg.Headers, HeaderEventID),
		EventType:      HeaderValue(msg.Headers, HeaderEventType),
		OrganizationID: HeaderValue(msg.Headers, HeaderOrganizationID),
	}
	if meta.EventID == "" {
		meta.EventID = string(msg.Key)
	}
	if meta.EventType == "" {
		meta.EventType = msg.Topic
	}
	return meta
}

func (m EventMeta) Headers() []kafka.Header {
	headers := []kafka.Header{
		{Key: HeaderEventID, Value: []byte(m.EventID)},
		{Key: HeaderEventType, Value: []byte(m.EventType)},
	}
	if m.OrganizationID != "" {
		headers = append(headers, kafka.Header{Key: HeaderOrganizationID, Value: []byte(m.OrganizationID)})
	}
	return headers
}

func HeaderValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
