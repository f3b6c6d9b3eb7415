package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"growth_tracker/internal/domain"
)

// Collector is the orchestrator surface driven by cron.
type Collector interface {
	RunDailyCollection(ctx context.Context) (*domain.CollectionResult, error)
	CheckAndRefreshTokens(ctx context.Context) (*domain.RefreshResult, error)
	ForceSyncStaleAccounts(ctx context.Context, hoursThreshold int) (*domain.CollectionResult, error)
}

// Config holds standard cron specs evaluated in UTC. An empty spec
// disables that job.
type Config struct {
	DailyCollection string
	TokenRefresh    string
	StaleSweep      string
	RunTimeout      time.Duration
}

// Scheduler runs collection jobs on cron schedules. Jobs never overlap; a
// tick that arrives while another job runs is skipped.
type Scheduler struct {
	collector Collector
	engine    *cron.Cron
	config    Config
	logger    *slog.Logger

	mu      sync.Mutex
	baseCtx context.Context
}

func NewScheduler(collector Collector, cfg Config, logger *slog.Logger) *Scheduler {
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 30 * time.Minute
	}
	logger = logger.With("component", "scheduler")
	return &Scheduler{
		collector: collector,
		engine: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cronLogger{logger}),
		),
		config:  cfg,
		logger:  logger,
		baseCtx: context.Background(),
	}
}

// Register adds the configured jobs to the engine.
func (s *Scheduler) Register() error {
	jobs := []struct {
		name string
		spec string
		run  func(ctx context.Context) error
	}{
		{"daily_collection", s.config.DailyCollection, s.dailyCollection},
		{"token_refresh", s.config.TokenRefresh, s.tokenRefresh},
		{"stale_sweep", s.config.StaleSweep, s.staleSweep},
	}

	for _, job := range jobs {
		if job.spec == "" {
			continue
		}
		name, run := job.name, job.run
		if _, err := s.engine.AddFunc(job.spec, func() { s.runJob(name, run) }); err != nil {
			return fmt.Errorf("schedule %s %q: %w", name, job.spec, err)
		}
		s.logger.Info("job scheduled", "job", name, "spec", job.spec)
	}
	return nil
}

// Start runs the engine until ctx is cancelled, then waits for a running
// job to finish.
func (s *Scheduler) Start(ctx context.Context) error {
	s.baseCtx = ctx
	s.logger.Info("scheduler started", "entries", len(s.engine.Entries()))
	s.engine.Start()

	<-ctx.Done()

	<-s.engine.Stop().Done()
	s.logger.Info("scheduler stopped")
	return ctx.Err()
}

func (s *Scheduler) runJob(name string, run func(ctx context.Context) error) {
	logger := s.logger.With("job", name, "run_id", "job-"+uuid.NewString())

	if !s.mu.TryLock() {
		logger.Warn("previous job still running, skipping tick")
		return
	}
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(s.baseCtx, s.config.RunTimeout)
	defer cancel()

	start := time.Now()
	if err := run(ctx); err != nil {
		logger.Error("job failed", "error", err, "duration", time.Since(start))
		return
	}
	logger.Info("job finished", "duration", time.Since(start))
}

func (s *Scheduler) dailyCollection(ctx context.Context) error {
	result, err := s.collector.RunDailyCollection(ctx)
	if err != nil {
		return fmt.Errorf("daily collection: %w", err)
	}
	s.logger.Info("daily collection summary", "successful", result.Successful, "failed", result.Failed)
	return s.tokenRefresh(ctx)
}

func (s *Scheduler) tokenRefresh(ctx context.Context) error {
	result, err := s.collector.CheckAndRefreshTokens(ctx)
	if err != nil {
		return fmt.Errorf("token refresh: %w", err)
	}
	s.logger.Info("token refresh summary", "refreshed", result.Refreshed, "deactivated", result.Deactivated)
	return nil
}

func (s *Scheduler) staleSweep(ctx context.Context) error {
	result, err := s.collector.ForceSyncStaleAccounts(ctx, 0)
	if err != nil {
		return fmt.Errorf("stale sweep: %w", err)
	}
	if result.Successful+result.Failed > 0 {
		s.logger.Info("stale sweep summary", "successful", result.Successful, "failed", result.Failed)
	}
	return nil
}

// cronLogger routes robfig/cron's own messages into slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
