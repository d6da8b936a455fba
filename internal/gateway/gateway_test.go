package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"yamichi77/movement-log-agent/internal/authapi"
	"yamichi77/movement-log-agent/internal/models"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient() *Client {
	return NewClient(nil, 5*time.Second, zap.NewNop())
}

func testUploadRequest() models.UploadRequest {
	return models.UploadRequest{
		SeqTime:   "20260830093000",
		Latitude:  35.6812,
		Longitude: 139.7671,
		Accuracy:  8.5,
		Activity:  "WALKING",
	}
}

func TestUploadMovementLogSendsExpectedPayload(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	err := newTestClient().UploadMovementLog(context.Background(),
		server.URL, "/api/movelog", "token-abc", testUploadRequest())
	require.NoError(t, err)
	require.Equal(t, "/api/movelog", gotPath)
	require.Equal(t, "Bearer token-abc", gotAuth)

	// Wire field names are fixed by the backend contract
	require.Equal(t, "20260830093000", gotBody["SeqTime"])
	require.Equal(t, 35.6812, gotBody["Latitude"])
	require.Equal(t, 139.7671, gotBody["Longitude"])
	require.Equal(t, 8.5, gotBody["Accuracy"])
	require.Equal(t, "WALKING", gotBody["Activity"])
	require.Len(t, gotBody, 5)
}

func TestUploadMovementLogNormalizesPath(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient()
	ctx := context.Background()

	require.NoError(t, client.UploadMovementLog(ctx, server.URL, "", "t", testUploadRequest()))
	require.Equal(t, DefaultUploadPath, gotPath)

	require.NoError(t, client.UploadMovementLog(ctx, server.URL, "custom/path", "t", testUploadRequest()))
	require.Equal(t, "/custom/path", gotPath)
}

func TestUploadMovementLog401IsUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	err := newTestClient().UploadMovementLog(context.Background(),
		server.URL, "/api/movelog", "stale", testUploadRequest())
	var unauthorized *authapi.UnauthorizedError
	require.ErrorAs(t, err, &unauthorized)
}

func TestUploadMovementLogServerErrorIsAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	err := newTestClient().UploadMovementLog(context.Background(),
		server.URL, "/api/movelog", "t", testUploadRequest())
	var apiErr *authapi.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
}

func TestVerifyToken(t *testing.T) {
	var gotPath, gotAuth string
	status := http.StatusOK
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(status)
	}))
	defer server.Close()

	client := newTestClient()
	ctx := context.Background()

	require.NoError(t, client.VerifyToken(ctx, server.URL, "token-abc"))
	require.Equal(t, "/api/auth/token", gotPath)
	require.Equal(t, "Bearer token-abc", gotAuth)

	status = http.StatusUnauthorized
	err := client.VerifyToken(ctx, server.URL, "stale")
	var unauthorized *authapi.UnauthorizedError
	require.ErrorAs(t, err, &unauthorized)
}
