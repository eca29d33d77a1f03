// Package storetest provides an in-memory RequestStore that enforces the
// same transition contract as the pgx implementation, for use in tests.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/spec-kit/support-intake/internal/domain"
	"github.com/spec-kit/support-intake/internal/repository"
)

// Store is a mutex-guarded in-memory request store.
type Store struct {
	mu       sync.Mutex
	requests map[string]*domain.SupportRequest
}

// New creates an empty store.
func New() *Store {
	return &Store{requests: make(map[string]*domain.SupportRequest)}
}

func (s *Store) Create(ctx context.Context, req *domain.SupportRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	req.Status = domain.StatusPending
	req.CreatedAt = now
	req.UpdatedAt = now
	stored := cloneRequest(req)
	s.requests[req.ID] = &stored
	return nil
}

func (s *Store) Claim(ctx context.Context, id string) (*domain.SupportRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if req.Status != domain.StatusPending {
		return nil, repository.ErrAlreadyClaimed
	}
	req.Status = domain.StatusProcessing
	req.UpdatedAt = time.Now().UTC()
	snapshot := cloneRequest(req)
	return &snapshot, nil
}

func (s *Store) CommitSuccess(ctx context.Context, id string, category domain.Category, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return repository.ErrNotFound
	}
	if req.Status != domain.StatusProcessing {
		return repository.ErrInvalidTransition
	}
	now := time.Now().UTC()
	req.Status = domain.StatusCompleted
	req.Category = &category
	req.AISummary = &summary
	req.ProcessedAt = &now
	req.UpdatedAt = now
	return nil
}

func (s *Store) CommitFailure(ctx context.Context, id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return repository.ErrNotFound
	}
	if req.Status != domain.StatusProcessing {
		return repository.ErrInvalidTransition
	}
	now := time.Now().UTC()
	req.Status = domain.StatusFailed
	req.FailureReason = &reason
	req.ProcessedAt = &now
	req.UpdatedAt = now
	return nil
}

func (s *Store) MarkNotified(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return repository.ErrNotFound
	}
	if req.Status != domain.StatusCompleted || req.NotificationSent {
		return repository.ErrInvalidTransition
	}
	req.NotificationSent = true
	req.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) Requeue(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return repository.ErrNotFound
	}
	if req.Status != domain.StatusFailed {
		return repository.ErrInvalidTransition
	}
	req.Status = domain.StatusPending
	req.Category = nil
	req.AISummary = nil
	req.FailureReason = nil
	req.ProcessedAt = nil
	req.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.requests, id)
	return nil
}

func (s *Store) ReclaimStale(ctx context.Context, olderThan time.Duration) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().UTC().Add(-olderThan)
	var ids []string
	for id, req := range s.requests {
		if req.Status != domain.StatusProcessing || !req.UpdatedAt.Before(cutoff) {
			continue
		}
		req.Status = domain.StatusPending
		req.UpdatedAt = time.Now().UTC()
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*domain.SupportRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	snapshot := cloneRequest(req)
	return &snapshot, nil
}

func (s *Store) List(ctx context.Context, filter repository.RequestFilter, offset, limit int) ([]domain.SupportRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	var all []domain.SupportRequest
	for _, req := range s.requests {
		if filter.Status != nil && req.Status != *filter.Status {
			continue
		}
		all = append(all, cloneRequest(req))
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *Store) Aggregate(ctx context.Context) (*repository.Aggregation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	agg := &repository.Aggregation{
		StatusBreakdown:   make(map[domain.ProcessingStatus]int64),
		CategoryBreakdown: make(map[domain.Category]int64),
	}
	for _, req := range s.requests {
		agg.Total++
		agg.StatusBreakdown[req.Status]++
		if req.Category != nil {
			agg.CategoryBreakdown[*req.Category]++
		}
	}
	return agg, nil
}

func cloneRequest(req *domain.SupportRequest) domain.SupportRequest {
	out := *req
	if req.Category != nil {
		category := *req.Category
		out.Category = &category
	}
	if req.AISummary != nil {
		summary := *req.AISummary
		out.AISummary = &summary
	}
	if req.FailureReason != nil {
		reason := *req.FailureReason
		out.FailureReason = &reason
	}
	if req.ProcessedAt != nil {
		processedAt := *req.ProcessedAt
		out.ProcessedAt = &processedAt
	}
	return out
}

var _ repository.RequestStore = (*Store)(nil)
