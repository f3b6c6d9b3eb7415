package postgres

import (
	"database/sql"
	"errors"

	"growth_tracker/internal/domain"
)

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.StoreError{Op: op, Err: domain.ErrNotFound}
	}
	return &domain.StoreError{Op: op, Err: err}
}

// jsonParam passes a raw payload as text so lib/pq does not send it as
// bytea. Payload columns are NOT NULL, empty payloads become {}.
func jsonParam(raw []byte) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}
