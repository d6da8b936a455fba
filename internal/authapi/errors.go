package authapi

import "yamichi77/movement-log-agent/internal/models"

// SessionInvalidError is the classified SESSION_INVALID refresh failure.
// The session manager retries it once before escalating.
type SessionInvalidError struct {
	Message string
}

func (e *SessionInvalidError) Error() string {
	return e.Message
}

// ReauthRequiredError means silent refresh cannot recover the session
// and an interactive login is needed.
type ReauthRequiredError struct {
	Code    models.AuthErrorCode
	Message string
}

func (e *ReauthRequiredError) Error() string {
	return e.Message
}

// RefreshTemporaryFailureError is a backend-declared transient refresh
// failure, retried on a bounded schedule.
type RefreshTemporaryFailureError struct {
	Message string
}

func (e *RefreshTemporaryFailureError) Error() string {
	return e.Message
}

// UnauthorizedError is a per-request 401 outside the refresh endpoint.
// It drives the sync pipeline's single refresh-and-retry.
type UnauthorizedError struct {
	Message string
}

func (e *UnauthorizedError) Error() string {
	return e.Message
}

// APIError is any other transport or protocol failure
type APIError struct {
	Message    string
	StatusCode int
}

func (e *APIError) Error() string {
	return e.Message
}
