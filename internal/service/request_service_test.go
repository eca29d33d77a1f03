package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-intake/internal/domain"
	"github.com/spec-kit/support-intake/internal/events"
	"github.com/spec-kit/support-intake/internal/repository"
	"github.com/spec-kit/support-intake/internal/repository/storetest"
	"github.com/spec-kit/support-intake/internal/service"
)

type queueRecorder struct {
	mu  sync.Mutex
	ids []string
}

func (q *queueRecorder) Enqueue(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ids = append(q.ids, id)
	return nil
}

func (q *queueRecorder) Dequeue(ctx context.Context) (string, bool, error) {
	return "", false, nil
}

func (q *queueRecorder) Enqueued() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string{}, q.ids...)
}

func newService(store repository.RequestStore, q *queueRecorder, dispatcher events.Dispatcher) *service.RequestService {
	return service.NewRequestService(service.Dependencies{
		Store:      store,
		Queue:      q,
		Dispatcher: dispatcher,
	})
}

func TestSubmit_CreatesPendingAndEnqueuesOnce(t *testing.T) {
	store := storetest.New()
	q := &queueRecorder{}
	dispatcher := events.NewInMemoryDispatcher()

	var created []string
	dispatcher.Subscribe(events.EventRequestCreated, func(ctx context.Context, event events.Event) error {
		created = append(created, event.RequestID)
		return nil
	})

	svc := newService(store, q, dispatcher)
	req, err := svc.Submit(context.Background(), service.SubmitInput{
		CustomerName: "  Jane Doe  ",
		Email:        "jane@example.com",
		Subject:      "Cancel my subscription",
		Description:  "I want to cancel immediately",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, req.ID)
	assert.Equal(t, "Jane Doe", req.CustomerName)
	assert.Equal(t, domain.StatusPending, req.Status)
	assert.Nil(t, req.ProcessedAt)

	assert.Equal(t, []string{req.ID}, q.Enqueued())
	assert.Equal(t, []string{req.ID}, created)

	stored, err := svc.Get(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status)
	assert.False(t, stored.NotificationSent)
}

type failingQueue struct{}

func (failingQueue) Enqueue(ctx context.Context, id string) error {
	return errors.New("redis down")
}

func (failingQueue) Dequeue(ctx context.Context) (string, bool, error) {
	return "", false, nil
}

func TestSubmit_EnqueueFailureRollsBackCreate(t *testing.T) {
	store := storetest.New()
	svc := service.NewRequestService(service.Dependencies{Store: store, Queue: failingQueue{}})

	_, err := svc.Submit(context.Background(), service.SubmitInput{
		CustomerName: "A", Email: "a@example.com", Subject: "s", Description: "d",
	})
	require.Error(t, err)

	// No stranded pending row that nothing could ever pick up.
	all, err := svc.List(context.Background(), nil, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestGet_UnknownIDReturnsNotFound(t *testing.T) {
	svc := newService(storetest.New(), &queueRecorder{}, nil)
	_, err := svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestList_FiltersByStatus(t *testing.T) {
	store := storetest.New()
	q := &queueRecorder{}
	svc := newService(store, q, nil)

	first, err := svc.Submit(context.Background(), service.SubmitInput{
		CustomerName: "A", Email: "a@example.com", Subject: "one", Description: "d",
	})
	require.NoError(t, err)
	_, err = svc.Submit(context.Background(), service.SubmitInput{
		CustomerName: "B", Email: "b@example.com", Subject: "two", Description: "d",
	})
	require.NoError(t, err)

	_, err = store.Claim(context.Background(), first.ID)
	require.NoError(t, err)
	require.NoError(t, store.CommitFailure(context.Background(), first.ID, "unreachable"))

	pending := domain.StatusPending
	listed, err := svc.List(context.Background(), &pending, 0, 10)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "two", listed[0].Subject)

	all, err := svc.List(context.Background(), nil, 0, 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRequeue_FailedRequestReentersPending(t *testing.T) {
	store := storetest.New()
	q := &queueRecorder{}
	svc := newService(store, q, nil)

	req, err := svc.Submit(context.Background(), service.SubmitInput{
		CustomerName: "A", Email: "a@example.com", Subject: "s", Description: "d",
	})
	require.NoError(t, err)

	_, err = store.Claim(context.Background(), req.ID)
	require.NoError(t, err)
	require.NoError(t, store.CommitFailure(context.Background(), req.ID, "unreachable"))

	require.NoError(t, svc.Requeue(context.Background(), req.ID))

	stored, err := svc.Get(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status)
	assert.Nil(t, stored.Category)
	assert.Nil(t, stored.AISummary)
	assert.Nil(t, stored.ProcessedAt)

	// Submit enqueued once, requeue enqueued again.
	assert.Equal(t, []string{req.ID, req.ID}, q.Enqueued())
}

func TestRequeue_NonFailedRequestRejected(t *testing.T) {
	store := storetest.New()
	svc := newService(store, &queueRecorder{}, nil)

	req, err := svc.Submit(context.Background(), service.SubmitInput{
		CustomerName: "A", Email: "a@example.com", Subject: "s", Description: "d",
	})
	require.NoError(t, err)

	err = svc.Requeue(context.Background(), req.ID)
	assert.ErrorIs(t, err, repository.ErrInvalidTransition)
}
