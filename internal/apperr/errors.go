// Package apperr defines the error taxonomy shared by the sync pipeline
// and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrSyncInProgress is returned when another sync for the same user holds the lock.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrInvalidInput marks caller mistakes such as a missing redirect URI.
	ErrInvalidInput = errors.New("invalid input")
)

// NotConnectedError means the user has no stored Strava credentials.
type NotConnectedError struct {
	UserID string
}

func (e *NotConnectedError) Error() string {
	return fmt.Sprintf("strava not connected for user %s", e.UserID)
}

// AuthError means Strava rejected a token exchange or refresh.
// The user has to reconnect.
type AuthError struct {
	Op  string // "refresh" or "exchange"
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("strava %s rejected: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// FetchError means the activity listing call failed. Safe to retry on the next trigger.
type FetchError struct {
	Page   int
	Status int // 0 for transport failures
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetching activities page %d: status %d: %v", e.Page, e.Status, e.Err)
	}
	return fmt.Sprintf("fetching activities page %d: %v", e.Page, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ConfigError means the app's Strava client id/secret could not be resolved.
type ConfigError struct {
	Missing string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("strava app credentials unresolved: missing %s", e.Missing)
}

// PersistError wraps a failed write of a single activity.
type PersistError struct {
	StravaID int64
	Err      error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("storing activity %d: %v", e.StravaID, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// ExchangeError means the authorization code could not be turned into tokens.
type ExchangeError struct {
	Reason string
	Err    error
}

func (e *ExchangeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *ExchangeError) Unwrap() error { return e.Err }

// InvalidInput returns an error wrapping ErrInvalidInput.
func InvalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// HTTPStatus maps an error from the pipeline to a response status.
func HTTPStatus(err error) int {
	var (
		notConnected *NotConnectedError
		authErr      *AuthError
		fetchErr     *FetchError
		configErr    *ConfigError
		exchangeErr  *ExchangeError
	)

	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrSyncInProgress):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput),
		errors.As(err, &notConnected),
		errors.As(err, &configErr),
		errors.As(err, &exchangeErr):
		return http.StatusBadRequest
	case errors.As(err, &authErr):
		return http.StatusUnauthorized
	case errors.As(err, &fetchErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
