package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-intake/internal/classifier"
	"github.com/spec-kit/support-intake/internal/domain"
	"github.com/spec-kit/support-intake/internal/repository"
	"github.com/spec-kit/support-intake/internal/repository/storetest"
	"github.com/spec-kit/support-intake/internal/worker"
)

type classifierStub struct {
	mu         sync.Mutex
	calls      int
	ClassifyFn func(call int, subject, description string) (*classifier.Result, error)
}

func (c *classifierStub) Classify(ctx context.Context, subject, description string) (*classifier.Result, error) {
	c.mu.Lock()
	c.calls++
	call := c.calls
	c.mu.Unlock()
	return c.ClassifyFn(call, subject, description)
}

func (c *classifierStub) Health(ctx context.Context) error {
	return nil
}

func (c *classifierStub) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type dispatcherStub struct {
	mu       sync.Mutex
	notified []domain.SupportRequest
	NotifyFn func(req *domain.SupportRequest) error
}

func (d *dispatcherStub) Notify(ctx context.Context, req *domain.SupportRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.NotifyFn != nil {
		if err := d.NotifyFn(req); err != nil {
			return err
		}
	}
	d.notified = append(d.notified, *req)
	return nil
}

func (d *dispatcherStub) Notified() []domain.SupportRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]domain.SupportRequest{}, d.notified...)
}

type queueStub struct {
	ch chan string
}

func newQueueStub(size int) *queueStub {
	return &queueStub{ch: make(chan string, size)}
}

func (q *queueStub) Enqueue(ctx context.Context, id string) error {
	q.ch <- id
	return nil
}

func (q *queueStub) Dequeue(ctx context.Context) (string, bool, error) {
	select {
	case <-ctx.Done():
		return "", false, ctx.Err()
	case id := <-q.ch:
		return id, true, nil
	case <-time.After(10 * time.Millisecond):
		return "", false, nil
	}
}

func submitRequest(t *testing.T, store *storetest.Store, subject, description string) *domain.SupportRequest {
	t.Helper()
	req := &domain.SupportRequest{
		ID:           uuid.NewString(),
		CustomerName: "Jane Doe",
		Email:        "jane@example.com",
		Subject:      subject,
		Description:  description,
	}
	require.NoError(t, store.Create(context.Background(), req))
	return req
}

func newProcessor(store repository.RequestStore, cls *classifierStub, dispatcher *dispatcherStub) *worker.Processor {
	return worker.NewProcessor(worker.Options{
		Store:        store,
		Classifier:   cls,
		Dispatcher:   dispatcher,
		Queue:        newQueueStub(1),
		MaxAttempts:  3,
		RetryBackoff: time.Millisecond,
	})
}

func TestProcessOne_CancellationRequestDispatchesNotification(t *testing.T) {
	store := storetest.New()
	req := submitRequest(t, store, "Cancel my subscription", "I want to cancel immediately")

	cls := &classifierStub{
		ClassifyFn: func(call int, subject, description string) (*classifier.Result, error) {
			return &classifier.Result{
				Category:   domain.CategoryCancellation,
				Summary:    "Customer wants to cancel their subscription immediately.",
				Confidence: 0.95,
			}, nil
		},
	}
	dispatcher := &dispatcherStub{}

	newProcessor(store, cls, dispatcher).ProcessOne(context.Background(), req.ID)

	stored, err := store.GetByID(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, stored.Status)
	require.NotNil(t, stored.Category)
	assert.Equal(t, domain.CategoryCancellation, *stored.Category)
	require.NotNil(t, stored.AISummary)
	assert.NotNil(t, stored.ProcessedAt)
	assert.True(t, stored.NotificationSent)

	notified := dispatcher.Notified()
	require.Len(t, notified, 1)
	assert.Equal(t, req.ID, notified[0].ID)
	assert.Equal(t, domain.StatusCompleted, notified[0].Status)
}

func TestProcessOne_NonCriticalCategorySkipsNotification(t *testing.T) {
	store := storetest.New()
	req := submitRequest(t, store, "Invoice question", "Why was I charged twice?")

	cls := &classifierStub{
		ClassifyFn: func(call int, subject, description string) (*classifier.Result, error) {
			return &classifier.Result{Category: domain.CategoryBilling, Summary: "Billing question.", Confidence: 0.9}, nil
		},
	}
	dispatcher := &dispatcherStub{}

	newProcessor(store, cls, dispatcher).ProcessOne(context.Background(), req.ID)

	stored, err := store.GetByID(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, stored.Status)
	assert.False(t, stored.NotificationSent)
	assert.Empty(t, dispatcher.Notified())
}

func TestProcessOne_ExhaustedAttemptsCommitsFailure(t *testing.T) {
	store := storetest.New()
	req := submitRequest(t, store, "Help", "Something broke")

	cls := &classifierStub{
		ClassifyFn: func(call int, subject, description string) (*classifier.Result, error) {
			return nil, classifier.ErrUnreachable
		},
	}
	dispatcher := &dispatcherStub{}

	newProcessor(store, cls, dispatcher).ProcessOne(context.Background(), req.ID)

	assert.Equal(t, 3, cls.Calls())

	stored, err := store.GetByID(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, stored.Status)
	assert.Nil(t, stored.Category)
	assert.Nil(t, stored.AISummary)
	assert.NotNil(t, stored.ProcessedAt)
	assert.False(t, stored.NotificationSent)
	assert.Empty(t, dispatcher.Notified())
}

func TestProcessOne_RetriesThenSucceeds(t *testing.T) {
	store := storetest.New()
	req := submitRequest(t, store, "App crashes", "Crashes on startup")

	cls := &classifierStub{
		ClassifyFn: func(call int, subject, description string) (*classifier.Result, error) {
			if call < 3 {
				return nil, classifier.ErrTimeout
			}
			return &classifier.Result{Category: domain.CategoryTechnicalIssue, Summary: "App crashes on startup.", Confidence: 0.85}, nil
		},
	}
	dispatcher := &dispatcherStub{}

	newProcessor(store, cls, dispatcher).ProcessOne(context.Background(), req.ID)

	assert.Equal(t, 3, cls.Calls())

	stored, err := store.GetByID(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, stored.Status)
	assert.True(t, stored.NotificationSent)
}

func TestProcessOne_DuplicateDequeueIsNoOp(t *testing.T) {
	store := storetest.New()
	req := submitRequest(t, store, "Complaint", "Very unhappy")

	cls := &classifierStub{
		ClassifyFn: func(call int, subject, description string) (*classifier.Result, error) {
			return &classifier.Result{Category: domain.CategoryComplaint, Summary: "Unhappy customer.", Confidence: 0.8}, nil
		},
	}
	dispatcher := &dispatcherStub{}
	processor := newProcessor(store, cls, dispatcher)

	processor.ProcessOne(context.Background(), req.ID)
	processor.ProcessOne(context.Background(), req.ID)

	assert.Equal(t, 1, cls.Calls())
	assert.Len(t, dispatcher.Notified(), 1)
}

func TestProcessOne_UnknownIDIsDropped(t *testing.T) {
	store := storetest.New()
	cls := &classifierStub{
		ClassifyFn: func(call int, subject, description string) (*classifier.Result, error) {
			t.Fatal("classifier must not be called for unknown ids")
			return nil, nil
		},
	}

	newProcessor(store, cls, &dispatcherStub{}).ProcessOne(context.Background(), uuid.NewString())

	assert.Equal(t, 0, cls.Calls())
}

func TestProcessOne_DispatchFailureKeepsCompletedStatus(t *testing.T) {
	store := storetest.New()
	req := submitRequest(t, store, "Cancel", "Cancel everything")

	cls := &classifierStub{
		ClassifyFn: func(call int, subject, description string) (*classifier.Result, error) {
			return &classifier.Result{Category: domain.CategoryCancellation, Summary: "Cancellation.", Confidence: 0.9}, nil
		},
	}
	dispatcher := &dispatcherStub{
		NotifyFn: func(req *domain.SupportRequest) error {
			return errors.New("webhook unavailable")
		},
	}

	newProcessor(store, cls, dispatcher).ProcessOne(context.Background(), req.ID)

	stored, err := store.GetByID(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, stored.Status)
	assert.False(t, stored.NotificationSent)
}

// ctxAwareStore refuses writes once the given context is cancelled, matching
// what a real connection pool does.
type ctxAwareStore struct {
	*storetest.Store
}

func (s *ctxAwareStore) CommitFailure(ctx context.Context, id, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Store.CommitFailure(ctx, id, reason)
}

func TestProcessOne_ShutdownDuringBackoffStillCommitsFailure(t *testing.T) {
	store := &ctxAwareStore{Store: storetest.New()}
	req := submitRequest(t, store.Store, "Help", "Something broke")

	ctx, cancel := context.WithCancel(context.Background())
	cls := &classifierStub{
		ClassifyFn: func(call int, subject, description string) (*classifier.Result, error) {
			cancel()
			return nil, classifier.ErrUnreachable
		},
	}

	processor := worker.NewProcessor(worker.Options{
		Store:        store,
		Classifier:   cls,
		Dispatcher:   &dispatcherStub{},
		Queue:        newQueueStub(1),
		MaxAttempts:  3,
		RetryBackoff: time.Hour,
	})
	processor.ProcessOne(ctx, req.ID)

	stored, err := store.GetByID(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, stored.Status)
	require.NotNil(t, stored.FailureReason)
}

func TestReclaimStale_RequeuesStuckProcessing(t *testing.T) {
	store := storetest.New()
	stuck := submitRequest(t, store, "Stuck", "Worker died mid-flight")
	fresh := submitRequest(t, store, "Fresh", "Still waiting in queue")

	_, err := store.Claim(context.Background(), stuck.ID)
	require.NoError(t, err)

	q := newQueueStub(2)
	processor := worker.NewProcessor(worker.Options{
		Store:        store,
		Classifier:   &classifierStub{},
		Dispatcher:   &dispatcherStub{},
		Queue:        q,
		ReclaimAfter: time.Nanosecond,
	})

	time.Sleep(time.Millisecond)
	assert.Equal(t, 1, processor.ReclaimStale(context.Background()))

	stored, err := store.GetByID(context.Background(), stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status)

	id, ok, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, stuck.ID, id)

	// Pending requests are untouched by the sweep.
	untouched, err := store.GetByID(context.Background(), fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, untouched.Status)
	_, ok, err = q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConcurrentClaims_ExactlyOneWins(t *testing.T) {
	store := storetest.New()
	req := submitRequest(t, store, "Race", "Concurrent claim check")

	const claimers = 16
	var wg sync.WaitGroup
	results := make(chan error, claimers)
	start := make(chan struct{})

	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := store.Claim(context.Background(), req.ID)
			results <- err
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	var wins, conflicts int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, repository.ErrAlreadyClaimed):
			conflicts++
		default:
			t.Fatalf("unexpected claim error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, claimers-1, conflicts)
}

func TestRun_ProcessesQueueAndShiftsAggregation(t *testing.T) {
	store := storetest.New()
	req := submitRequest(t, store, "Bug report", "Feature X fails")

	before, err := store.Aggregate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), before.Total)
	assert.Equal(t, int64(1), before.StatusBreakdown[domain.StatusPending])

	cls := &classifierStub{
		ClassifyFn: func(call int, subject, description string) (*classifier.Result, error) {
			return &classifier.Result{Category: domain.CategoryTechnicalIssue, Summary: "Feature X fails.", Confidence: 0.88}, nil
		},
	}
	dispatcher := &dispatcherStub{}
	q := newQueueStub(1)
	require.NoError(t, q.Enqueue(context.Background(), req.ID))

	processor := worker.NewProcessor(worker.Options{
		Store:        store,
		Classifier:   cls,
		Dispatcher:   dispatcher,
		Queue:        q,
		Concurrency:  2,
		MaxAttempts:  3,
		RetryBackoff: time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		processor.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		stored, err := store.GetByID(context.Background(), req.ID)
		return err == nil && stored.Status.Terminal()
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	<-done

	after, err := store.Aggregate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before.Total, after.Total)
	assert.Equal(t, int64(0), after.StatusBreakdown[domain.StatusPending])
	assert.Equal(t, int64(1), after.StatusBreakdown[domain.StatusCompleted])
	assert.Equal(t, int64(1), after.CategoryBreakdown[domain.CategoryTechnicalIssue])
}
