package worker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/support-intake/internal/classifier"
	"github.com/spec-kit/support-intake/internal/domain"
	"github.com/spec-kit/support-intake/internal/events"
	"github.com/spec-kit/support-intake/internal/observability"
	"github.com/spec-kit/support-intake/internal/repository/storetest"
	"github.com/spec-kit/support-intake/internal/worker"
)

func runPipelineWithMetrics(t *testing.T, cls *classifierStub, dispatcher *dispatcherStub) *observability.Metrics {
	t.Helper()

	store := storetest.New()
	req := submitRequest(t, store, "Cancel my subscription", "I want to cancel immediately")

	eventBus := events.NewInMemoryDispatcher()
	metrics := observability.NewMetrics()
	worker.RegisterMetricsHandlers(eventBus, metrics)

	processor := worker.NewProcessor(worker.Options{
		Store:        store,
		Classifier:   cls,
		Dispatcher:   dispatcher,
		Queue:        newQueueStub(1),
		Events:       eventBus,
		MaxAttempts:  3,
		RetryBackoff: time.Millisecond,
	})
	processor.ProcessOne(context.Background(), req.ID)
	return metrics
}

func cancellationClassifier() *classifierStub {
	return &classifierStub{
		ClassifyFn: func(call int, subject, description string) (*classifier.Result, error) {
			return &classifier.Result{
				Category:   domain.CategoryCancellation,
				Summary:    "Customer wants to cancel.",
				Confidence: 0.9,
			}, nil
		},
	}
}

func TestMetricsHandlers_CountSuccessfulNotification(t *testing.T) {
	metrics := runPipelineWithMetrics(t, cancellationClassifier(), &dispatcherStub{})

	completed, failed, sent, sendFailed := metrics.PipelineSnapshot()
	assert.Equal(t, int64(1), completed[string(domain.CategoryCancellation)])
	assert.Equal(t, int64(0), failed)
	assert.Equal(t, int64(1), sent)
	assert.Equal(t, int64(0), sendFailed)
}

func TestMetricsHandlers_CountFailedNotificationDispatch(t *testing.T) {
	dispatcher := &dispatcherStub{
		NotifyFn: func(req *domain.SupportRequest) error {
			return errors.New("webhook unavailable")
		},
	}
	metrics := runPipelineWithMetrics(t, cancellationClassifier(), dispatcher)

	completed, failed, sent, sendFailed := metrics.PipelineSnapshot()
	assert.Equal(t, int64(1), completed[string(domain.CategoryCancellation)])
	assert.Equal(t, int64(0), failed)
	assert.Equal(t, int64(0), sent)
	assert.Equal(t, int64(1), sendFailed)
}

func TestMetricsHandlers_CountExhaustedAttempts(t *testing.T) {
	cls := &classifierStub{
		ClassifyFn: func(call int, subject, description string) (*classifier.Result, error) {
			return nil, classifier.ErrUnreachable
		},
	}
	metrics := runPipelineWithMetrics(t, cls, &dispatcherStub{})

	completed, failed, _, _ := metrics.PipelineSnapshot()
	assert.Empty(t, completed)
	assert.Equal(t, int64(1), failed)
}
