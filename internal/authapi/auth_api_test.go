package authapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"yamichi77/movement-log-agent/internal/models"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient() *Client {
	return NewClient(nil, 5*time.Second, zap.NewNop())
}

func TestRefreshAccessTokenSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/auth/token/refresh", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"token-abc","session_rotated":true}`))
	}))
	defer server.Close()

	result, err := newTestClient().RefreshAccessToken(context.Background(), server.URL)
	require.NoError(t, err)
	require.Equal(t, "token-abc", result.AccessToken)
	require.True(t, result.SessionRotated)
}

func TestRefreshAccessTokenBlankTokenIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"  ","session_rotated":false}`))
	}))
	defer server.Close()

	_, err := newTestClient().RefreshAccessToken(context.Background(), server.URL)
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
}

func TestRefreshAccessToken401Classification(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode models.AuthErrorCode
	}{
		{"step up", `{"error":"SESSION_STEP_UP_REQUIRED"}`, models.CodeSessionStepUpRequired},
		{"compromised", `{"error":"SESSION_COMPROMISED_REAUTH_REQUIRED"}`, models.CodeSessionCompromisedReauth},
		{"expired", `{"error":"SESSION_EXPIRED"}`, models.CodeSessionExpired},
		{"unrecognized", `{"error":"SOMETHING_ELSE"}`, models.CodeUnknown},
		{"empty body", ``, models.CodeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestClient().RefreshAccessToken(context.Background(), server.URL)
			var reauth *ReauthRequiredError
			require.ErrorAs(t, err, &reauth)
			require.Equal(t, tt.wantCode, reauth.Code)
		})
	}
}

func TestRefreshAccessToken401SessionInvalid(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"SESSION_INVALID"}`))
	}))
	defer server.Close()

	_, err := newTestClient().RefreshAccessToken(context.Background(), server.URL)
	var invalid *SessionInvalidError
	require.ErrorAs(t, err, &invalid)
}

func TestRefreshAccessToken503TemporaryFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"REFRESH_TEMPORARY_FAILURE"}`))
	}))
	defer server.Close()

	_, err := newTestClient().RefreshAccessToken(context.Background(), server.URL)
	var temporary *RefreshTemporaryFailureError
	require.ErrorAs(t, err, &temporary)
}

func TestRefreshAccessToken503WithoutMarkerIsAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"MAINTENANCE"}`))
	}))
	defer server.Close()

	_, err := newTestClient().RefreshAccessToken(context.Background(), server.URL)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
}

func TestLogoutSendsBearerWhenPresent(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/auth/logout", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := newTestClient()
	require.NoError(t, client.Logout(context.Background(), server.URL, "token-abc"))
	require.Equal(t, "Bearer token-abc", gotAuth)

	require.NoError(t, client.Logout(context.Background(), server.URL, "  "))
	require.Empty(t, gotAuth)
}

func TestLogoutNon2xxIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	err := newTestClient().Logout(context.Background(), server.URL, "")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
}
