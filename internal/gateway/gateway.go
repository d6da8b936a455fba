package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"yamichi77/movement-log-agent/internal/authapi"
	"yamichi77/movement-log-agent/internal/models"

	"go.uber.org/zap"
)

// DefaultUploadPath is used when the configured path is blank
const DefaultUploadPath = "/api/movelog"

// MovementAPI uploads movement logs and verifies tokens against the BFF
type MovementAPI interface {
	UploadMovementLog(ctx context.Context, baseURL, uploadPath, token string, req models.UploadRequest) error
	VerifyToken(ctx context.Context, baseURL, token string) error
}

// Client is the HTTP implementation of MovementAPI
type Client struct {
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(jar http.CookieJar, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			Jar:     jar,
		},
		logger: logger,
	}
}

// UploadMovementLog posts one sample to the upload endpoint.
// 401 is Unauthorized (the pipeline refreshes and retries once);
// other non-2xx responses are generic API failures.
func (c *Client) UploadMovementLog(ctx context.Context, baseURL, uploadPath, token string, uploadReq models.UploadRequest) error {
	base, err := authapi.NormalizeBaseURL(baseURL)
	if err != nil {
		return err
	}

	body, err := json.Marshal(uploadReq)
	if err != nil {
		return fmt.Errorf("failed to marshal upload request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		base+normalizeUploadPath(uploadPath), bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &authapi.APIError{Message: fmt.Sprintf("upload request failed: %v", err)}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusUnauthorized {
		return &authapi.UnauthorizedError{Message: "upload failed: unauthorized"}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &authapi.APIError{
			Message:    fmt.Sprintf("upload failed: code=%d", resp.StatusCode),
			StatusCode: resp.StatusCode,
		}
	}

	c.logger.Debug("Sample uploaded",
		zap.Int("status_code", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// VerifyToken probes the token endpoint with the bearer token. Used by
// the connectivity test, not by the sync hot path.
func (c *Client) VerifyToken(ctx context.Context, baseURL, token string) error {
	base, err := authapi.NormalizeBaseURL(baseURL)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		base+"/api/auth/token", bytes.NewBufferString("{}"))
	if err != nil {
		return fmt.Errorf("failed to create verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &authapi.APIError{Message: fmt.Sprintf("verify request failed: %v", err)}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusUnauthorized {
		return &authapi.UnauthorizedError{Message: "token verification failed: unauthorized"}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &authapi.APIError{
			Message:    fmt.Sprintf("token verification failed: code=%d", resp.StatusCode),
			StatusCode: resp.StatusCode,
		}
	}
	return nil
}

func normalizeUploadPath(uploadPath string) string {
	path := strings.TrimSpace(uploadPath)
	if path == "" {
		return DefaultUploadPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}
