package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"yamichi77/movement-log-agent/internal/models"

	"go.uber.org/zap"
)

// AuthAPI performs token refresh and logout against the BFF
type AuthAPI interface {
	RefreshAccessToken(ctx context.Context, baseURL string) (models.RefreshResult, error)
	Logout(ctx context.Context, baseURL, accessToken string) error
}

// Client is the HTTP implementation of AuthAPI. Session correlation is
// cookie-based; the jar on the HTTP client carries it.
type Client struct {
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates an auth client. The jar may be nil when cookie
// persistence is handled elsewhere.
func NewClient(jar http.CookieJar, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			Jar:     jar,
		},
		logger: logger,
	}
}

type refreshTokenResponse struct {
	AccessToken    string `json:"access_token"`
	SessionRotated bool   `json:"session_rotated"`
}

// RefreshAccessToken posts to the refresh endpoint and classifies the
// response into the typed error taxonomy.
func (c *Client) RefreshAccessToken(ctx context.Context, baseURL string) (models.RefreshResult, error) {
	base, err := NormalizeBaseURL(baseURL)
	if err != nil {
		return models.RefreshResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		base+"/api/auth/token/refresh", bytes.NewBufferString("{}"))
	if err != nil {
		return models.RefreshResult{}, fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.RefreshResult{}, &APIError{Message: fmt.Sprintf("refresh request failed: %v", err)}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return parseRefreshSuccess(body)
	case resp.StatusCode == http.StatusUnauthorized:
		return models.RefreshResult{}, classify401(body)
	case resp.StatusCode == http.StatusServiceUnavailable &&
		strings.Contains(string(body), string(models.CodeRefreshTemporaryFailure)):
		return models.RefreshResult{}, &RefreshTemporaryFailureError{Message: "refresh temporary failure"}
	default:
		return models.RefreshResult{}, &APIError{
			Message:    fmt.Sprintf("refresh failed: code=%d", resp.StatusCode),
			StatusCode: resp.StatusCode,
		}
	}
}

// Logout posts to the logout endpoint with an optional bearer token.
// 204 or any 2xx is success.
func (c *Client) Logout(ctx context.Context, baseURL, accessToken string) error {
	base, err := NormalizeBaseURL(baseURL)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		base+"/api/auth/logout", bytes.NewBufferString("{}"))
	if err != nil {
		return fmt.Errorf("failed to create logout request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token := strings.TrimSpace(accessToken); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &APIError{Message: fmt.Sprintf("logout request failed: %v", err)}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusNoContent ||
		(resp.StatusCode >= 200 && resp.StatusCode < 300) {
		return nil
	}
	return &APIError{
		Message:    fmt.Sprintf("logout failed: code=%d", resp.StatusCode),
		StatusCode: resp.StatusCode,
	}
}

func parseRefreshSuccess(body []byte) (models.RefreshResult, error) {
	var dto refreshTokenResponse
	if err := json.Unmarshal(body, &dto); err != nil {
		return models.RefreshResult{}, &APIError{Message: "invalid refresh response"}
	}
	if strings.TrimSpace(dto.AccessToken) == "" {
		return models.RefreshResult{}, &APIError{Message: "refresh response missing access_token"}
	}
	return models.RefreshResult{
		AccessToken:    dto.AccessToken,
		SessionRotated: dto.SessionRotated,
	}, nil
}

// classify401 inspects the body for known error-code tokens. A 401 with
// no recognized token is still a reauth-required outcome, never benign.
func classify401(body []byte) error {
	text := string(body)
	switch {
	case strings.Contains(text, string(models.CodeSessionInvalid)):
		return &SessionInvalidError{Message: string(models.CodeSessionInvalid)}
	case strings.Contains(text, string(models.CodeSessionStepUpRequired)):
		return &ReauthRequiredError{
			Code:    models.CodeSessionStepUpRequired,
			Message: string(models.CodeSessionStepUpRequired),
		}
	case strings.Contains(text, string(models.CodeSessionCompromisedReauth)):
		return &ReauthRequiredError{
			Code:    models.CodeSessionCompromisedReauth,
			Message: string(models.CodeSessionCompromisedReauth),
		}
	case strings.Contains(text, string(models.CodeSessionExpired)):
		return &ReauthRequiredError{
			Code:    models.CodeSessionExpired,
			Message: string(models.CodeSessionExpired),
		}
	default:
		return &ReauthRequiredError{
			Code:    models.CodeUnknown,
			Message: "unknown auth error",
		}
	}
}
