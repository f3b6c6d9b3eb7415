package domain

import "time"

type SyncType string

const (
	SyncTypeDaily        SyncType = "daily"
	SyncTypeManual       SyncType = "manual"
	SyncTypeStale        SyncType = "stale_catchup"
	SyncTypeTokenRefresh SyncType = "token_refresh"
)

type SyncStatus string

const (
	SyncStatusStarted   SyncStatus = "started"
	SyncStatusCompleted SyncStatus = "completed"
	SyncStatusFailed    SyncStatus = "failed"
)

// SyncLog is the append-only audit row for one run against one account.
type SyncLog struct {
	ID               int64      `db:"id" json:"id"`
	AccountID        int64      `db:"account_id" json:"account_id"`
	SyncType         SyncType   `db:"sync_type" json:"sync_type"`
	Status           SyncStatus `db:"status" json:"status"`
	StartedAt        time.Time  `db:"started_at" json:"started_at"`
	CompletedAt      *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	RecordsProcessed int        `db:"records_processed" json:"records_processed"`
	ErrorMessage     *string    `db:"error_message" json:"error_message,omitempty"`
}

// CollectionResult is the outcome of a batch run over many accounts.
type CollectionResult struct {
	Successful int      `json:"successful"`
	Failed     int      `json:"failed"`
	Errors     []string `json:"errors"`
}

// RefreshResult is the outcome of a credential refresh sweep.
type RefreshResult struct {
	Checked     int      `json:"checked"`
	Refreshed   int      `json:"refreshed"`
	Deactivated int      `json:"deactivated"`
	Errors      []string `json:"errors"`
}

// SyncStatusSummary is the monitoring view served on GET /sync/daily.
type SyncStatusSummary struct {
	Accounts int        `json:"accounts"`
	LastSync *time.Time `json:"lastSync"`
	Status   string     `json:"status"`
}

// SyncStatistics aggregates SyncLog rows over a trailing window.
type SyncStatistics struct {
	Since               time.Time `db:"-" json:"since"`
	TotalRuns           int       `db:"total_runs" json:"total_runs"`
	Completed           int       `db:"completed" json:"completed"`
	Failed              int       `db:"failed" json:"failed"`
	SuccessRate         float64   `db:"-" json:"success_rate"`
	AvgRecordsProcessed float64   `db:"avg_records_processed" json:"avg_records_processed"`
}
