package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"growth_tracker/internal/domain"
)

const accountColumns = `
	id, user_id, external_id, username, access_token, refresh_token,
	token_expires_at, is_active, last_sync_at, account_type, created_at, updated_at`

type AccountStore struct {
	db *sqlx.DB
}

func NewAccountStore(db *sqlx.DB) *AccountStore {
	return &AccountStore{db: db}
}

// Upsert connects or reconnects an account. Reconnecting reactivates it and
// replaces the credential.
func (s *AccountStore) Upsert(ctx context.Context, account *domain.Account) (int64, error) {
	query := `
		INSERT INTO accounts (
			user_id, external_id, username, access_token, refresh_token,
			token_expires_at, is_active, account_type
		) VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7)
		ON CONFLICT (user_id, external_id) DO UPDATE SET
			username = EXCLUDED.username,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_expires_at = EXCLUDED.token_expires_at,
			account_type = EXCLUDED.account_type,
			is_active = TRUE,
			updated_at = NOW()
		RETURNING id`

	var id int64
	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		account.UserID,
		account.ExternalID,
		account.Username,
		account.AccessToken,
		account.RefreshToken,
		account.TokenExpiresAt,
		account.AccountType,
	).Scan(&id)
	if err != nil {
		return 0, storeErr("upsert account", err)
	}
	return id, nil
}

func (s *AccountStore) Get(ctx context.Context, id int64) (*domain.Account, error) {
	var account domain.Account
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	if err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &account, query, id); err != nil {
		return nil, storeErr("get account", err)
	}
	return &account, nil
}

func (s *AccountStore) ListActive(ctx context.Context) ([]domain.Account, error) {
	return s.list(ctx, "list active accounts",
		`WHERE is_active ORDER BY id`)
}

func (s *AccountStore) ListActiveByUser(ctx context.Context, userID string) ([]domain.Account, error) {
	return s.list(ctx, "list user accounts",
		`WHERE is_active AND user_id = $1 ORDER BY id`, userID)
}

// ListStale returns active accounts never synced or last synced before cutoff.
func (s *AccountStore) ListStale(ctx context.Context, cutoff time.Time) ([]domain.Account, error) {
	return s.list(ctx, "list stale accounts",
		`WHERE is_active AND (last_sync_at IS NULL OR last_sync_at < $1) ORDER BY last_sync_at NULLS FIRST, id`, cutoff)
}

// ListExpiring returns active accounts whose credential expires before the
// given instant.
func (s *AccountStore) ListExpiring(ctx context.Context, before time.Time) ([]domain.Account, error) {
	return s.list(ctx, "list expiring accounts",
		`WHERE is_active AND token_expires_at IS NOT NULL AND token_expires_at < $1 ORDER BY token_expires_at`, before)
}

// GetPrimaryByUser returns the user's most recently synced active account.
func (s *AccountStore) GetPrimaryByUser(ctx context.Context, userID string) (*domain.Account, error) {
	var account domain.Account
	query := `SELECT ` + accountColumns + ` FROM accounts
		WHERE is_active AND user_id = $1
		ORDER BY last_sync_at DESC NULLS LAST, id
		LIMIT 1`
	if err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &account, query, userID); err != nil {
		return nil, storeErr("get primary account", err)
	}
	return &account, nil
}

func (s *AccountStore) UpdateCredential(ctx context.Context, accountID int64, cred domain.Credential) error {
	query := `
		UPDATE accounts SET
			access_token = $2,
			refresh_token = NULLIF($3, ''),
			token_expires_at = $4,
			is_active = TRUE,
			updated_at = NOW()
		WHERE id = $1`
	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, accountID, cred.AccessToken, cred.RefreshToken, cred.ExpiresAt)
	return storeErr("update credential", err)
}

func (s *AccountStore) Deactivate(ctx context.Context, accountID int64) error {
	_, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		`UPDATE accounts SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, accountID)
	return storeErr("deactivate account", err)
}

func (s *AccountStore) MarkSynced(ctx context.Context, accountID int64, at time.Time) error {
	_, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		`UPDATE accounts SET last_sync_at = $2, updated_at = NOW() WHERE id = $1`, accountID, at)
	return storeErr("mark account synced", err)
}

func (s *AccountStore) CountActive(ctx context.Context) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &n, `SELECT COUNT(*) FROM accounts WHERE is_active`)
	if err != nil {
		return 0, storeErr("count active accounts", err)
	}
	return n, nil
}

func (s *AccountStore) list(ctx context.Context, op, where string, args ...any) ([]domain.Account, error) {
	var accounts []domain.Account
	query := `SELECT ` + accountColumns + ` FROM accounts ` + where
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &accounts, query, args...); err != nil {
		return nil, storeErr(op, err)
	}
	return accounts, nil
}
