package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrNoAccount = errors.New("no active account for user")
)

// APIError is returned by the social API client for non-2xx responses and
// transport failures (StatusCode 0).
type APIError struct {
	Endpoint   string
	StatusCode int
	Body       string
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("instagram %s: %v", e.Endpoint, e.Err)
	}
	return fmt.Sprintf("instagram %s: status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

func (e *APIError) Unwrap() error { return e.Err }

// Temporary reports whether the failure looks like a platform problem
// rather than a problem with one account's request.
func (e *APIError) Temporary() bool {
	return e.StatusCode == 0 || e.StatusCode == 429 || e.StatusCode >= 500
}

// RefreshError is returned when a credential refresh fails.
type RefreshError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *RefreshError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("refresh credential: %v", e.Err)
	}
	return fmt.Sprintf("refresh credential: status %d: %s", e.StatusCode, e.Body)
}

func (e *RefreshError) Unwrap() error { return e.Err }

// StoreError wraps a persistence failure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
