package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"growth_tracker/internal/domain"
)

type SyncLogStore struct {
	db *sqlx.DB
}

func NewSyncLogStore(db *sqlx.DB) *SyncLogStore {
	return &SyncLogStore{db: db}
}

// Start appends a started row and returns its id.
func (s *SyncLogStore) Start(ctx context.Context, accountID int64, syncType domain.SyncType, at time.Time) (int64, error) {
	query := `
		INSERT INTO sync_logs (account_id, sync_type, status, started_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	var id int64
	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		accountID, syncType, domain.SyncStatusStarted, at,
	).Scan(&id)
	if err != nil {
		return 0, storeErr("start sync log", err)
	}
	return id, nil
}

func (s *SyncLogStore) Complete(ctx context.Context, id int64, records int, at time.Time) error {
	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, `
		UPDATE sync_logs SET status = $2, records_processed = $3, completed_at = $4
		WHERE id = $1`,
		id, domain.SyncStatusCompleted, records, at,
	)
	return storeErr("complete sync log", err)
}

func (s *SyncLogStore) Fail(ctx context.Context, id int64, message string, at time.Time) error {
	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, `
		UPDATE sync_logs SET status = $2, error_message = $3, completed_at = $4
		WHERE id = $1`,
		id, domain.SyncStatusFailed, message, at,
	)
	return storeErr("fail sync log", err)
}

// LastCompleted returns the most recent completed snapshot run of any account.
func (s *SyncLogStore) LastCompleted(ctx context.Context) (*domain.SyncLog, error) {
	var log domain.SyncLog
	query := `
		SELECT id, account_id, sync_type, status, started_at, completed_at,
			records_processed, error_message
		FROM sync_logs
		WHERE status = $1 AND sync_type <> $2
		ORDER BY completed_at DESC
		LIMIT 1`
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &log, query,
		domain.SyncStatusCompleted, domain.SyncTypeTokenRefresh)
	if err != nil {
		return nil, storeErr("last completed sync log", err)
	}
	return &log, nil
}

func (s *SyncLogStore) ListByAccount(ctx context.Context, accountID int64, limit int) ([]domain.SyncLog, error) {
	var logs []domain.SyncLog
	query := `
		SELECT id, account_id, sync_type, status, started_at, completed_at,
			records_processed, error_message
		FROM sync_logs
		WHERE account_id = $1
		ORDER BY started_at DESC, id DESC
		LIMIT $2`
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &logs, query, accountID, limit); err != nil {
		return nil, storeErr("list sync logs", err)
	}
	return logs, nil
}

// StatsSince aggregates finished snapshot runs started at or after since.
func (s *SyncLogStore) StatsSince(ctx context.Context, since time.Time) (*domain.SyncStatistics, error) {
	query := `
		SELECT
			COUNT(*) AS total_runs,
			COUNT(*) FILTER (WHERE status = 'completed') AS completed,
			COUNT(*) FILTER (WHERE status = 'failed') AS failed,
			COALESCE(AVG(records_processed) FILTER (WHERE status = 'completed'), 0) AS avg_records_processed
		FROM sync_logs
		WHERE started_at >= $1 AND sync_type <> $2`

	var stats domain.SyncStatistics
	if err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &stats, query, since, domain.SyncTypeTokenRefresh); err != nil {
		return nil, storeErr("sync statistics", err)
	}
	stats.Since = since
	if finished := stats.Completed + stats.Failed; finished > 0 {
		stats.SuccessRate = float64(stats.Completed) / float64(finished) * 100
	}
	return &stats, nil
}
