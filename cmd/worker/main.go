package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/spec-kit/support-intake/internal/classifier"
	"github.com/spec-kit/support-intake/internal/config"
	"github.com/spec-kit/support-intake/internal/events"
	"github.com/spec-kit/support-intake/internal/notifier"
	"github.com/spec-kit/support-intake/internal/observability"
	"github.com/spec-kit/support-intake/internal/persistence"
	"github.com/spec-kit/support-intake/internal/queue"
	"github.com/spec-kit/support-intake/internal/repository"
	"github.com/spec-kit/support-intake/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	dispatcher := events.NewInMemoryDispatcher()
	metrics := observability.NewMetrics()
	worker.RegisterMetricsHandlers(dispatcher, metrics)

	processor := worker.NewProcessor(worker.Options{
		Store:           repository.NewRequestRepository(pg.PoolHandle()),
		Classifier:      classifier.NewClient(cfg.Classifier),
		Dispatcher:      notifier.NewDispatcher(cfg.Notifier, logger),
		Queue:           queue.NewRedisQueue(redis.Client, cfg.Redis.QueueKey, cfg.Worker.PollTimeout()),
		Events:          dispatcher,
		Logger:          logger,
		Concurrency:     cfg.Worker.Concurrency,
		MaxAttempts:     cfg.Worker.MaxAttempts,
		RetryBackoff:    cfg.Worker.RetryBackoff(),
		ReclaimAfter:    cfg.Worker.ReclaimAfter(),
		ReclaimInterval: cfg.Worker.ReclaimInterval(),
	})

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	logger.Info("worker pool starting",
		zap.Int("concurrency", cfg.Worker.Concurrency),
		zap.Int("max_attempts", cfg.Worker.MaxAttempts))
	processor.Run(ctx)

	completed, failed, sent, sendFailed := metrics.PipelineSnapshot()
	logger.Info("pipeline totals",
		zap.Any("completed_by_category", completed),
		zap.Int64("failed", failed),
		zap.Int64("notifications_sent", sent),
		zap.Int64("notifications_failed", sendFailed))
}
