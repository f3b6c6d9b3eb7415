package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"growth_tracker/internal/domain"
	"growth_tracker/internal/metrics"
)

const (
	StatusNever   = "never"
	StatusHealthy = "healthy"
	StatusStale   = "stale"

	statisticsWindow = 7 * 24 * time.Hour
)

type OrchestratorConfig struct {
	StaleThreshold time.Duration
	RetentionDays  int
}

// Orchestrator runs the snapshot writer over batches of accounts. Accounts
// are visited sequentially, gated by a limiter, and one account's failure
// never aborts the batch.
type Orchestrator struct {
	accounts     AccountStore
	snapshots    SnapshotStore
	syncLogs     SyncLogStore
	snapshotter  Snapshotter
	tokens       TokenRefresher
	limiter      Limiter
	staleLimiter Limiter
	logger       *slog.Logger
	config       OrchestratorConfig
	now          func() time.Time
}

func NewOrchestrator(
	accounts AccountStore,
	snapshots SnapshotStore,
	syncLogs SyncLogStore,
	snapshotter Snapshotter,
	tokens TokenRefresher,
	limiter Limiter,
	staleLimiter Limiter,
	logger *slog.Logger,
	cfg OrchestratorConfig,
) *Orchestrator {
	if cfg.StaleThreshold <= 0 {
		cfg.StaleThreshold = 25 * time.Hour
	}
	return &Orchestrator{
		accounts:     accounts,
		snapshots:    snapshots,
		syncLogs:     syncLogs,
		snapshotter:  snapshotter,
		tokens:       tokens,
		limiter:      limiter,
		staleLimiter: staleLimiter,
		logger:       logger.With("component", "orchestrator"),
		config:       cfg,
		now:          time.Now,
	}
}

func (o *Orchestrator) RunDailyCollection(ctx context.Context) (*domain.CollectionResult, error) {
	accounts, err := o.accounts.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active accounts: %w", err)
	}

	result, err := o.runBatch(ctx, "daily", accounts, domain.SyncTypeDaily, o.limiter)
	if err != nil {
		return result, err
	}

	o.applyRetention(ctx)
	return result, nil
}

// RunUserDataCollection is the manual "sync now" for one user's accounts.
func (o *Orchestrator) RunUserDataCollection(ctx context.Context, userID string) (*domain.CollectionResult, error) {
	accounts, err := o.accounts.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list user accounts: %w", err)
	}
	return o.runBatch(ctx, "user", accounts, domain.SyncTypeManual, o.limiter)
}

func (o *Orchestrator) CheckAndRefreshTokens(ctx context.Context) (*domain.RefreshResult, error) {
	return o.tokens.RefreshExpiring(ctx)
}

// ForceSyncStaleAccounts snapshots active accounts not synced within
// hoursThreshold hours. Zero or negative uses the configured threshold.
func (o *Orchestrator) ForceSyncStaleAccounts(ctx context.Context, hoursThreshold int) (*domain.CollectionResult, error) {
	threshold := o.config.StaleThreshold
	if hoursThreshold > 0 {
		threshold = time.Duration(hoursThreshold) * time.Hour
	}

	accounts, err := o.accounts.ListStale(ctx, o.now().Add(-threshold))
	if err != nil {
		return nil, fmt.Errorf("list stale accounts: %w", err)
	}
	return o.runBatch(ctx, "stale", accounts, domain.SyncTypeStale, o.staleLimiter)
}

func (o *Orchestrator) GetSyncStatus(ctx context.Context) (*domain.SyncStatusSummary, error) {
	count, err := o.accounts.CountActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("count active accounts: %w", err)
	}

	summary := &domain.SyncStatusSummary{Accounts: count, Status: StatusNever}

	last, err := o.syncLogs.LastCompleted(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return summary, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last completed sync: %w", err)
	}

	lastSync := last.StartedAt
	if last.CompletedAt != nil {
		lastSync = *last.CompletedAt
	}
	summary.LastSync = &lastSync
	summary.Status = StatusStale
	if o.now().Sub(lastSync) <= o.config.StaleThreshold {
		summary.Status = StatusHealthy
	}
	return summary, nil
}

// GetSyncStatistics reports success rate and average records over the
// trailing seven days.
func (o *Orchestrator) GetSyncStatistics(ctx context.Context) (*domain.SyncStatistics, error) {
	stats, err := o.syncLogs.StatsSince(ctx, o.now().Add(-statisticsWindow))
	if err != nil {
		return nil, fmt.Errorf("sync statistics: %w", err)
	}
	return stats, nil
}

func (o *Orchestrator) runBatch(
	ctx context.Context,
	batch string,
	accounts []domain.Account,
	syncType domain.SyncType,
	limiter Limiter,
) (*domain.CollectionResult, error) {
	startTime := o.now()
	result := &domain.CollectionResult{Errors: []string{}}

	o.logger.Info("starting collection", "batch", batch, "accounts", len(accounts))

	for _, account := range accounts {
		if err := limiter.Wait(ctx); err != nil {
			return result, fmt.Errorf("wait for next account: %w", err)
		}

		if _, err := o.snapshotter.Snapshot(ctx, account, syncType); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", account.Username, err))
			metrics.BatchAccountsTotal.WithLabelValues(batch, "failed").Inc()
			o.logger.Error("account snapshot failed",
				"batch", batch,
				"account_id", account.ID,
				"username", account.Username,
				"error", err,
			)
			continue
		}

		result.Successful++
		metrics.BatchAccountsTotal.WithLabelValues(batch, "successful").Inc()
	}

	o.logger.Info("collection finished",
		"batch", batch,
		"successful", result.Successful,
		"failed", result.Failed,
		"duration", o.now().Sub(startTime),
	)

	return result, nil
}

func (o *Orchestrator) applyRetention(ctx context.Context) {
	if o.config.RetentionDays <= 0 {
		return
	}
	cutoff := domain.DateOf(o.now()).AddDate(0, 0, -o.config.RetentionDays)
	deleted, err := o.snapshots.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		o.logger.Error("retention cleanup failed", "error", err)
		return
	}
	if deleted > 0 {
		o.logger.Info("removed expired snapshots", "before", cutoff.Format(time.DateOnly), "deleted", deleted)
	}
}
