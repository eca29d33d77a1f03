package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/support-intake/internal/domain"
	"github.com/spec-kit/support-intake/internal/events"
	"github.com/spec-kit/support-intake/internal/queue"
	"github.com/spec-kit/support-intake/internal/repository"
)

// RequestService coordinates the submission path and the query boundary.
type RequestService struct {
	store      repository.RequestStore
	queue      queue.Queue
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// Dependencies bundles collaborators for the request service.
type Dependencies struct {
	Store      repository.RequestStore
	Queue      queue.Queue
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// SubmitInput describes a new support request payload.
type SubmitInput struct {
	CustomerName string
	Email        string
	Subject      string
	Description  string
}

// NewRequestService constructs the service.
func NewRequestService(deps Dependencies) *RequestService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RequestService{
		store:      deps.Store,
		queue:      deps.Queue,
		dispatcher: deps.Dispatcher,
		logger:     logger,
	}
}

// Submit persists a new pending request and hands its identifier to the
// worker pool exactly once.
func (s *RequestService) Submit(ctx context.Context, input SubmitInput) (*domain.SupportRequest, error) {
	req := &domain.SupportRequest{
		ID:           uuid.NewString(),
		CustomerName: strings.TrimSpace(input.CustomerName),
		Email:        strings.TrimSpace(input.Email),
		Subject:      strings.TrimSpace(input.Subject),
		Description:  strings.TrimSpace(input.Description),
		Status:       domain.StatusPending,
	}

	if err := s.store.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("create support request: %w", err)
	}

	if err := s.queue.Enqueue(ctx, req.ID); err != nil {
		// Roll the row back: a pending request with no queue entry would
		// never be picked up, and requeue only covers failed requests.
		if delErr := s.store.Delete(context.WithoutCancel(ctx), req.ID); delErr != nil {
			s.logger.Error("rollback of unqueued request failed",
				zap.String("request_id", req.ID), zap.Error(delErr))
		}
		return nil, fmt.Errorf("enqueue support request %s: %w", req.ID, err)
	}

	s.publishEvent(ctx, events.Event{
		Type:      events.EventRequestCreated,
		RequestID: req.ID,
		Timestamp: time.Now().UTC(),
		Payload: events.RequestCreatedPayload{
			CustomerName: req.CustomerName,
			Subject:      req.Subject,
		},
	})

	s.logger.Info("support request submitted", zap.String("request_id", req.ID))
	return req, nil
}

// Get fetches a single request.
func (s *RequestService) Get(ctx context.Context, id string) (*domain.SupportRequest, error) {
	return s.store.GetByID(ctx, id)
}

// List returns requests with optional status filtering.
func (s *RequestService) List(ctx context.Context, status *domain.ProcessingStatus, offset, limit int) ([]domain.SupportRequest, error) {
	return s.store.List(ctx, repository.RequestFilter{Status: status}, offset, limit)
}

// Stats computes the aggregation snapshot.
func (s *RequestService) Stats(ctx context.Context) (*repository.Aggregation, error) {
	return s.store.Aggregate(ctx)
}

// Requeue returns a failed request to pending and re-enqueues it. Part of the
// external retry policy, not the pipeline core.
func (s *RequestService) Requeue(ctx context.Context, id string) error {
	if err := s.store.Requeue(ctx, id); err != nil {
		return err
	}
	if err := s.queue.Enqueue(ctx, id); err != nil {
		return fmt.Errorf("enqueue support request %s: %w", id, err)
	}
	s.logger.Info("support request requeued", zap.String("request_id", id))
	return nil
}

func (s *RequestService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed",
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
	}
}
