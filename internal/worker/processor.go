package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-intake/internal/classifier"
	"github.com/spec-kit/support-intake/internal/domain"
	"github.com/spec-kit/support-intake/internal/events"
	"github.com/spec-kit/support-intake/internal/notifier"
	"github.com/spec-kit/support-intake/internal/queue"
	"github.com/spec-kit/support-intake/internal/repository"
)

// Options bundles processor dependencies and tuning.
type Options struct {
	Store      repository.RequestStore
	Classifier classifier.Client
	Dispatcher notifier.Dispatcher
	Queue      queue.Queue
	Events     events.Dispatcher
	Logger     *zap.Logger

	Concurrency  int
	MaxAttempts  int
	RetryBackoff time.Duration

	// ReclaimAfter bounds how long a request may sit in processing before
	// the sweep returns it to pending; ReclaimInterval is the sweep period.
	ReclaimAfter    time.Duration
	ReclaimInterval time.Duration
}

// Processor drives the request lifecycle: it claims pending requests off the
// queue, classifies them with bounded retries, commits the terminal state and
// dispatches notifications for critical categories.
type Processor struct {
	store      repository.RequestStore
	classifier classifier.Client
	dispatcher notifier.Dispatcher
	queue      queue.Queue
	events     events.Dispatcher
	logger     *zap.Logger

	concurrency  int
	maxAttempts  int
	retryBackoff time.Duration

	reclaimAfter    time.Duration
	reclaimInterval time.Duration
}

// NewProcessor constructs a processor, applying defaults for missing tuning.
func NewProcessor(opts Options) *Processor {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	backoff := opts.RetryBackoff
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dispatcher := opts.Events
	if dispatcher == nil {
		dispatcher = events.NewInMemoryDispatcher()
	}
	reclaimAfter := opts.ReclaimAfter
	if reclaimAfter <= 0 {
		reclaimAfter = 5 * time.Minute
	}
	reclaimInterval := opts.ReclaimInterval
	if reclaimInterval <= 0 {
		reclaimInterval = time.Minute
	}
	return &Processor{
		store:        opts.Store,
		classifier:   opts.Classifier,
		dispatcher:   opts.Dispatcher,
		queue:        opts.Queue,
		events:       dispatcher,
		logger:       logger,
		concurrency:  concurrency,
		maxAttempts:  maxAttempts,
		retryBackoff: backoff,

		reclaimAfter:    reclaimAfter,
		reclaimInterval: reclaimInterval,
	}
}

// Run blocks until ctx is cancelled, pulling identifiers with the configured
// number of parallel workers. Workers never block on each other; the store's
// atomic claim is the only shared-mutation coordination point.
func (p *Processor) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.concurrency; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			p.runLoop(ctx, worker)
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.reclaimLoop(ctx)
	}()
	wg.Wait()
}

func (p *Processor) reclaimLoop(ctx context.Context) {
	ticker := time.NewTicker(p.reclaimInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ReclaimStale(ctx)
		}
	}
}

// ReclaimStale returns requests stuck in processing longer than the reclaim
// threshold to pending and re-enqueues them. A request strands there when a
// worker dies between dequeue and commit; the queue itself never redelivers.
func (p *Processor) ReclaimStale(ctx context.Context) int {
	ids, err := p.store.ReclaimStale(ctx, p.reclaimAfter)
	if err != nil {
		p.logger.Error("stale reclaim failed", zap.Error(err))
		return 0
	}
	for _, id := range ids {
		if err := p.queue.Enqueue(ctx, id); err != nil {
			// The row is pending again but has no queue entry until an
			// operator re-submits it.
			p.logger.Error("re-enqueue of reclaimed request failed",
				zap.String("request_id", id), zap.Error(err))
		}
	}
	if len(ids) > 0 {
		p.logger.Warn("reclaimed stale processing requests", zap.Int("count", len(ids)))
	}
	return len(ids)
}

func (p *Processor) runLoop(ctx context.Context, worker int) {
	logger := p.logger.With(zap.Int("worker", worker))
	for {
		if ctx.Err() != nil {
			return
		}
		id, ok, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("dequeue failed", zap.Error(err))
			sleepCtx(ctx, time.Second)
			continue
		}
		if !ok {
			continue
		}
		p.ProcessOne(ctx, id)
	}
}

// ProcessOne runs the full state machine for a single dequeued identifier.
func (p *Processor) ProcessOne(ctx context.Context, id string) {
	logger := p.logger.With(zap.String("request_id", id))

	req, err := p.store.Claim(ctx, id)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrAlreadyClaimed):
			// Duplicate dequeue or already handled; at-least-once delivery
			// makes this a no-op.
			logger.Debug("skipping request, already claimed or terminal")
		case errors.Is(err, repository.ErrNotFound):
			logger.Debug("skipping request, not found")
		default:
			logger.Error("claim failed", zap.Error(err))
		}
		return
	}

	result, attempts, classifyErr := p.classifyWithRetry(ctx, logger, req)
	if classifyErr != nil {
		p.commitFailure(ctx, logger, id, attempts, classifyErr)
		return
	}

	if err := p.store.CommitSuccess(ctx, id, result.Category, result.Summary); err != nil {
		logger.Error("commit success failed", zap.Error(err))
		return
	}
	logger.Info("request classified",
		zap.String("category", string(result.Category)),
		zap.Float64("confidence", result.Confidence),
		zap.Int("attempts", attempts))

	p.publish(ctx, events.Event{
		Type:      events.EventRequestCompleted,
		RequestID: id,
		Timestamp: time.Now().UTC(),
		Payload: events.RequestCompletedPayload{
			Category:   result.Category,
			Confidence: result.Confidence,
		},
	})

	if result.Category.Critical() && !req.NotificationSent {
		p.notify(ctx, logger, req, result)
	}
}

// classifyWithRetry calls the classifier up to maxAttempts times with
// exponential backoff. Every failure kind the client reports is transient by
// contract, so they all retry.
func (p *Processor) classifyWithRetry(ctx context.Context, logger *zap.Logger, req *domain.SupportRequest) (*classifier.Result, int, error) {
	backoff := p.retryBackoff
	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		result, err := p.classifier.Classify(ctx, req.Subject, req.Description)
		if err == nil {
			return result, attempt, nil
		}
		lastErr = err
		logger.Warn("classification attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", p.maxAttempts),
			zap.Error(err))
		if attempt < p.maxAttempts {
			if !sleepCtx(ctx, backoff) {
				return nil, attempt, lastErr
			}
			backoff *= 2
		}
	}
	return nil, p.maxAttempts, lastErr
}

func (p *Processor) commitFailure(ctx context.Context, logger *zap.Logger, id string, attempts int, cause error) {
	// The terminal write must land even when shutdown interrupted the retry
	// backoff; a cancelled ctx would strand the request in processing.
	ctx = context.WithoutCancel(ctx)
	if err := p.store.CommitFailure(ctx, id, cause.Error()); err != nil {
		logger.Error("commit failure failed", zap.Error(err))
		return
	}
	logger.Warn("request failed after exhausted attempts",
		zap.Int("attempts", attempts),
		zap.Error(cause))

	p.publish(ctx, events.Event{
		Type:      events.EventRequestFailed,
		RequestID: id,
		Timestamp: time.Now().UTC(),
		Payload: events.RequestFailedPayload{
			Reason:   cause.Error(),
			Attempts: attempts,
		},
	})
}

// notify dispatches the alert for a critical category. Dispatch failures are
// logged and absorbed: notification is best-effort and never reverts a
// completed classification.
func (p *Processor) notify(ctx context.Context, logger *zap.Logger, req *domain.SupportRequest, result *classifier.Result) {
	snapshot := *req
	snapshot.Status = domain.StatusCompleted
	snapshot.Category = &result.Category
	snapshot.AISummary = &result.Summary

	if err := p.dispatcher.Notify(ctx, &snapshot); err != nil {
		logger.Warn("notification dispatch failed", zap.Error(err))
		p.publish(ctx, events.Event{
			Type:      events.EventNotificationFailed,
			RequestID: req.ID,
			Timestamp: time.Now().UTC(),
			Payload: events.NotificationFailedPayload{
				Category: result.Category,
				Reason:   err.Error(),
			},
		})
		return
	}
	if err := p.store.MarkNotified(ctx, req.ID); err != nil {
		logger.Error("mark notified failed", zap.Error(err))
		return
	}

	p.publish(ctx, events.Event{
		Type:      events.EventNotificationSent,
		RequestID: req.ID,
		Timestamp: time.Now().UTC(),
		Payload:   events.NotificationSentPayload{Category: result.Category},
	})
}

func (p *Processor) publish(ctx context.Context, event events.Event) {
	if err := p.events.Publish(ctx, event); err != nil {
		p.logger.Warn("event handler failed",
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
	}
}

// sleepCtx waits for d unless ctx ends first; reports whether the full wait
// elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
