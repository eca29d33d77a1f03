package events

import (
	"time"

	"github.com/spec-kit/support-intake/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventRequestCreated     EventType = "request_created"
	EventRequestCompleted   EventType = "request_completed"
	EventRequestFailed      EventType = "request_failed"
	EventNotificationSent   EventType = "notification_sent"
	EventNotificationFailed EventType = "notification_failed"
)

// Event represents a domain event emitted along the pipeline.
type Event struct {
	Type      EventType   `json:"type"`
	RequestID string      `json:"request_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// RequestCreatedPayload payload.
type RequestCreatedPayload struct {
	CustomerName string `json:"customer_name"`
	Subject      string `json:"subject"`
}

// RequestCompletedPayload payload.
type RequestCompletedPayload struct {
	Category   domain.Category `json:"category"`
	Confidence float64         `json:"confidence"`
}

// RequestFailedPayload payload.
type RequestFailedPayload struct {
	Reason   string `json:"reason"`
	Attempts int    `json:"attempts"`
}

// NotificationSentPayload payload.
type NotificationSentPayload struct {
	Category domain.Category `json:"category"`
}

// NotificationFailedPayload payload.
type NotificationFailedPayload struct {
	Category domain.Category `json:"category"`
	Reason   string          `json:"reason"`
}
