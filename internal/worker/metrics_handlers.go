package worker

import (
	"context"

	"github.com/spec-kit/support-intake/internal/events"
	"github.com/spec-kit/support-intake/internal/observability"
)

// RegisterMetricsHandlers feeds terminal pipeline events into the in-memory
// counters.
func RegisterMetricsHandlers(dispatcher events.Dispatcher, metrics *observability.Metrics) {
	if dispatcher == nil || metrics == nil {
		return
	}
	dispatcher.Subscribe(events.EventRequestCompleted, func(ctx context.Context, event events.Event) error {
		if payload, ok := event.Payload.(events.RequestCompletedPayload); ok {
			metrics.RecordCompleted(string(payload.Category))
		}
		return nil
	})
	dispatcher.Subscribe(events.EventRequestFailed, func(ctx context.Context, event events.Event) error {
		metrics.RecordFailed()
		return nil
	})
	dispatcher.Subscribe(events.EventNotificationSent, func(ctx context.Context, event events.Event) error {
		metrics.RecordNotification(true)
		return nil
	})
	dispatcher.Subscribe(events.EventNotificationFailed, func(ctx context.Context, event events.Event) error {
		metrics.RecordNotification(false)
		return nil
	})
}
