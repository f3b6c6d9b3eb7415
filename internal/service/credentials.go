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

// defaultCredentialLifetime applies when the platform omits expires_in.
const defaultCredentialLifetime = 60 * 24 * time.Hour

// CredentialService renews credentials that expire within the refresh
// window. A failed refresh deactivates the account instead of retrying.
type CredentialService struct {
	accounts  AccountStore
	refresher CredentialRefresher
	syncLogs  SyncLogStore
	window    time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

func NewCredentialService(
	accounts AccountStore,
	refresher CredentialRefresher,
	syncLogs SyncLogStore,
	window time.Duration,
	logger *slog.Logger,
) *CredentialService {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &CredentialService{
		accounts:  accounts,
		refresher: refresher,
		syncLogs:  syncLogs,
		window:    window,
		logger:    logger.With("component", "credentials"),
		now:       time.Now,
	}
}

func (s *CredentialService) RefreshExpiring(ctx context.Context) (*domain.RefreshResult, error) {
	now := s.now()
	accounts, err := s.accounts.ListExpiring(ctx, now.Add(s.window))
	if err != nil {
		return nil, fmt.Errorf("list expiring accounts: %w", err)
	}

	result := &domain.RefreshResult{Errors: []string{}}
	for _, account := range accounts {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Checked++

		err := s.refresh(ctx, account)
		if err == nil {
			result.Refreshed++
			continue
		}
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", account.Username, err))

		var refreshErr *domain.RefreshError
		if !errors.As(err, &refreshErr) {
			continue
		}
		if err := s.accounts.Deactivate(ctx, account.ID); err != nil {
			s.logger.Error("failed to deactivate account",
				"account_id", account.ID,
				"username", account.Username,
				"error", err,
			)
			continue
		}
		result.Deactivated++
		metrics.TokenRefreshTotal.WithLabelValues("deactivated").Inc()
	}

	s.logger.Info("credential refresh finished",
		"checked", result.Checked,
		"refreshed", result.Refreshed,
		"deactivated", result.Deactivated,
	)

	return result, nil
}

// refresh returns a *domain.RefreshError when the platform rejected the
// refresh. Other errors leave the account active.
func (s *CredentialService) refresh(ctx context.Context, account domain.Account) error {
	logger := s.logger.With("account_id", account.ID, "username", account.Username)

	logID, err := s.syncLogs.Start(ctx, account.ID, domain.SyncTypeTokenRefresh, s.now())
	if err != nil {
		logger.Error("failed to start sync log", "error", err)
		logID = 0
	}

	cred, err := s.refresher.Refresh(ctx, account.RefreshCredential())
	if err != nil {
		var refreshErr *domain.RefreshError
		if !errors.As(err, &refreshErr) {
			err = &domain.RefreshError{Err: err}
		}
	} else {
		if cred.ExpiresAt.IsZero() {
			cred.ExpiresAt = s.now().Add(defaultCredentialLifetime)
		}
		if err = s.accounts.UpdateCredential(ctx, account.ID, *cred); err != nil {
			err = fmt.Errorf("store refreshed credential: %w", err)
		}
	}

	logCtx, cancel := detached(ctx)
	defer cancel()

	if err != nil {
		metrics.TokenRefreshTotal.WithLabelValues("failed").Inc()
		logger.Error("credential refresh failed", "error", err)
		if logID != 0 {
			if logErr := s.syncLogs.Fail(logCtx, logID, err.Error(), s.now()); logErr != nil {
				logger.Error("failed to mark sync log failed", "error", logErr)
			}
		}
		return err
	}

	metrics.TokenRefreshTotal.WithLabelValues("refreshed").Inc()
	logger.Info("credential refreshed", "expires_at", cred.ExpiresAt)
	if logID != 0 {
		if logErr := s.syncLogs.Complete(logCtx, logID, 1, s.now()); logErr != nil {
			logger.Error("failed to mark sync log completed", "error", logErr)
		}
	}
	return nil
}
