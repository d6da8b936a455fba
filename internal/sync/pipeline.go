package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"yamichi77/movement-log-agent/internal/authapi"
	"yamichi77/movement-log-agent/internal/gateway"
	"yamichi77/movement-log-agent/internal/models"

	"go.uber.org/zap"
)

// DefaultUploadLimit bounds one sync cycle's batch
const DefaultUploadLimit = 200

const (
	seqTimeLayout      = "20060102150405"
	statusTimeLayout   = "2006-01-02 15:04:05"
	statusResultOK     = "ok"
	statusResultFailed = "failed"
)

// ResultKind classifies one sync cycle's outcome
type ResultKind int

const (
	ResultSuccess ResultKind = iota
	// ResultSkipped means validation failed before any network call;
	// not retryable
	ResultSkipped
	// ResultRetry is a transient failure the outer scheduler should re-run
	ResultRetry
	ResultFailure
)

// Result is the outcome of one sync cycle
type Result struct {
	Kind     ResultKind
	Uploaded int
	Reason   string
}

// SettingsSource is the slice of the settings store the pipeline uses
type SettingsSource interface {
	Connection(ctx context.Context) (models.ConnectionSettings, error)
	SaveSendStatusText(ctx context.Context, text string) error
}

// SampleSource is the slice of the sample store the pipeline drains
type SampleSource interface {
	Pending(ctx context.Context, limit int) ([]models.LocationSample, error)
	MarkUploaded(ctx context.Context, ids []int64) error
}

// TokenSource obtains and refreshes access tokens
type TokenSource interface {
	GetOrRefreshAccessToken(ctx context.Context, baseURL string) (string, error)
	RefreshAccessToken(ctx context.Context, baseURL string) (models.RefreshResult, error)
}

// Pipeline drains pending samples in FIFO order and uploads them.
// One call to Sync is one cycle; scheduling is the caller's concern.
type Pipeline struct {
	settings SettingsSource
	samples  SampleSource
	gateway  gateway.MovementAPI
	tokens   TokenSource
	logger   *zap.Logger
	now      func() time.Time
}

func NewPipeline(
	settings SettingsSource,
	samples SampleSource,
	api gateway.MovementAPI,
	tokens TokenSource,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		settings: settings,
		samples:  samples,
		gateway:  api,
		tokens:   tokens,
		logger:   logger,
		now:      time.Now,
	}
}

// Sync runs one cycle: validate settings, drain up to limit pending
// samples oldest-first, upload each, then bulk-mark uploaded. A status
// line is recorded for every outcome, success or failure.
func (p *Pipeline) Sync(ctx context.Context, limit int) Result {
	if limit <= 0 {
		limit = DefaultUploadLimit
	}
	now := p.now()

	settings, err := p.settings.Connection(ctx)
	if err != nil {
		reason := fmt.Sprintf("failed to read settings: %v", err)
		p.writeStatus(ctx, now, statusResultFailed, reason)
		return Result{Kind: ResultFailure, Reason: reason}
	}

	if reason := validateSettings(settings); reason != "" {
		p.writeStatus(ctx, now, statusResultFailed, reason)
		return Result{Kind: ResultSkipped, Reason: reason}
	}

	pending, err := p.samples.Pending(ctx, limit)
	if err != nil {
		reason := fmt.Sprintf("failed to read pending samples: %v", err)
		p.writeStatus(ctx, now, statusResultFailed, reason)
		return Result{Kind: ResultFailure, Reason: reason}
	}
	if len(pending) == 0 {
		p.writeStatus(ctx, now, statusResultOK, "nothing to send")
		return Result{Kind: ResultSuccess, Uploaded: 0}
	}

	uploaded, err := p.uploadBatch(ctx, settings, pending)
	if err != nil {
		reason := err.Error()
		p.writeStatus(ctx, now, statusResultFailed, reason)
		if isRetryable(err) {
			return Result{Kind: ResultRetry, Reason: reason}
		}
		return Result{Kind: ResultFailure, Reason: reason}
	}

	if err := p.samples.MarkUploaded(ctx, uploaded); err != nil {
		reason := fmt.Sprintf("failed to mark samples uploaded: %v", err)
		p.writeStatus(ctx, now, statusResultFailed, reason)
		return Result{Kind: ResultFailure, Reason: reason}
	}

	p.writeStatus(ctx, now, statusResultOK, fmt.Sprintf("%d uploaded", len(uploaded)))
	p.logger.Info("Sync cycle completed", zap.Int("uploaded", len(uploaded)))
	return Result{Kind: ResultSuccess, Uploaded: len(uploaded)}
}

// uploadBatch uploads samples in FIFO order. The first unrecovered
// failure aborts the rest of the batch; those samples stay pending.
func (p *Pipeline) uploadBatch(ctx context.Context, settings models.ConnectionSettings, pending []models.LocationSample) ([]int64, error) {
	token, err := p.tokens.GetOrRefreshAccessToken(ctx, settings.BaseURL)
	if err != nil {
		return nil, err
	}

	uploaded := make([]int64, 0, len(pending))
	for _, sample := range pending {
		token, err = p.uploadWithRefresh(ctx, settings, token, sample)
		if err != nil {
			return nil, err
		}
		uploaded = append(uploaded, sample.ID)
	}
	return uploaded, nil
}

// uploadWithRefresh uploads one sample. On Unauthorized it refreshes the
// token exactly once and retries; the refreshed token becomes current for
// the rest of the cycle.
func (p *Pipeline) uploadWithRefresh(ctx context.Context, settings models.ConnectionSettings, token string, sample models.LocationSample) (string, error) {
	request := toUploadRequest(sample)

	err := p.gateway.UploadMovementLog(ctx, settings.BaseURL, settings.UploadPath, token, request)
	if err == nil {
		return token, nil
	}

	var unauthorized *authapi.UnauthorizedError
	if !errors.As(err, &unauthorized) {
		return "", err
	}

	refreshed, err := p.tokens.RefreshAccessToken(ctx, settings.BaseURL)
	if err != nil {
		return "", err
	}
	if err := p.gateway.UploadMovementLog(ctx, settings.BaseURL, settings.UploadPath,
		refreshed.AccessToken, request); err != nil {
		return "", err
	}
	return refreshed.AccessToken, nil
}

func (p *Pipeline) writeStatus(ctx context.Context, now time.Time, result, detail string) {
	text := fmt.Sprintf("last sync: %s - %s (%s)",
		now.Format(statusTimeLayout), result, detail)
	if err := p.settings.SaveSendStatusText(ctx, text); err != nil {
		p.logger.Error("Failed to record sync status", zap.Error(err))
	}
}

func validateSettings(settings models.ConnectionSettings) string {
	if strings.TrimSpace(settings.BaseURL) == "" {
		return "base URL is not set"
	}
	path := strings.TrimSpace(settings.UploadPath)
	if path == "" {
		return "upload path is not set"
	}
	if !strings.HasPrefix(path, "/") {
		return "upload path must start with /"
	}
	return ""
}

// isRetryable: transient network/server errors and unauthorized (after
// the in-cycle retry already failed) go back to the scheduler; session
// escalations and everything else do not.
func isRetryable(err error) bool {
	var apiErr *authapi.APIError
	var unauthorized *authapi.UnauthorizedError
	var temporary *authapi.RefreshTemporaryFailureError
	return errors.As(err, &apiErr) ||
		errors.As(err, &unauthorized) ||
		errors.As(err, &temporary)
}

func toUploadRequest(sample models.LocationSample) models.UploadRequest {
	return models.UploadRequest{
		SeqTime:   time.UnixMilli(sample.RecordedAt).Format(seqTimeLayout),
		Latitude:  sample.Latitude,
		Longitude: sample.Longitude,
		Accuracy:  sample.Accuracy,
		Activity:  string(sample.Activity),
	}
}
