package models

// AuthErrorCode classifies why the session can no longer be silently
// refreshed. Values match the error-code tokens the BFF puts in 401/503
// bodies, so the raw strings matter.
type AuthErrorCode string

const (
	CodeSessionInvalid           AuthErrorCode = "SESSION_INVALID"
	CodeSessionStepUpRequired    AuthErrorCode = "SESSION_STEP_UP_REQUIRED"
	CodeSessionCompromisedReauth AuthErrorCode = "SESSION_COMPROMISED_REAUTH_REQUIRED"
	CodeSessionExpired           AuthErrorCode = "SESSION_EXPIRED"
	CodeRefreshTemporaryFailure  AuthErrorCode = "REFRESH_TEMPORARY_FAILURE"
	CodeUnknown                  AuthErrorCode = "UNKNOWN"
)

// RefreshResult is a successful token refresh. SessionRotated reports
// whether the backend issued a new underlying session during the refresh.
type RefreshResult struct {
	AccessToken    string
	SessionRotated bool
}
