package sync

import (
	"context"
	"errors"
	"strings"
	"time"

	"yamichi77/movement-log-agent/internal/authapi"
	"yamichi77/movement-log-agent/internal/models"
	"yamichi77/movement-log-agent/internal/session"
	"yamichi77/movement-log-agent/internal/store"

	"go.uber.org/zap"
)

// reauthNotifyInterval rate-limits repeat reauthentication reminders
const reauthNotifyInterval = 12 * time.Hour

// StatusSource is the slice of the session status store keep-alive uses
type StatusSource interface {
	Status(ctx context.Context) (store.SessionStatus, error)
	MarkReauthNotificationSent(ctx context.Context, notifiedAt int64) error
}

// ConnectionSource reads the configured backend connection
type ConnectionSource interface {
	Connection(ctx context.Context) (models.ConnectionSettings, error)
}

// Refresher triggers a session refresh
type Refresher interface {
	RefreshAccessToken(ctx context.Context, baseURL string) (models.RefreshResult, error)
}

// KeepAliveJob periodically refreshes the session so the server-side
// rotation window never lapses while the agent idles. When refresh has
// already escalated to reauthentication-required, the job degrades to a
// rate-limited reminder instead of hammering the backend.
type KeepAliveJob struct {
	settings ConnectionSource
	status   StatusSource
	refresh  Refresher
	notifier session.ReauthNotifier
	logger   *zap.Logger
	now      func() time.Time
}

func NewKeepAliveJob(
	settings ConnectionSource,
	status StatusSource,
	refresh Refresher,
	notifier session.ReauthNotifier,
	logger *zap.Logger,
) *KeepAliveJob {
	return &KeepAliveJob{
		settings: settings,
		status:   status,
		refresh:  refresh,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Run executes one keep-alive pass
func (j *KeepAliveJob) Run(ctx context.Context) Result {
	settings, err := j.settings.Connection(ctx)
	if err != nil {
		return Result{Kind: ResultRetry, Reason: err.Error()}
	}
	if strings.TrimSpace(settings.BaseURL) == "" {
		return Result{Kind: ResultSuccess}
	}

	status, err := j.status.Status(ctx)
	if err != nil {
		return Result{Kind: ResultRetry, Reason: err.Error()}
	}
	if !status.IsSessionManaged {
		return Result{Kind: ResultSuccess}
	}

	if status.ReauthRequired {
		reason := models.CodeSessionExpired
		if status.ReauthReason != nil {
			reason = *status.ReauthReason
		}
		j.notifyIfAllowed(ctx, status, reason)
		return Result{Kind: ResultSuccess}
	}

	if _, err := j.refresh.RefreshAccessToken(ctx, settings.BaseURL); err != nil {
		return j.handleRefreshError(ctx, err)
	}
	j.logger.Debug("Session keep-alive refresh succeeded")
	return Result{Kind: ResultSuccess}
}

// handleRefreshError: escalations were already recorded by the session
// manager, so they become a reminder, not a retry. Transient failures go
// back to the scheduler.
func (j *KeepAliveJob) handleRefreshError(ctx context.Context, err error) Result {
	var sessionInvalid *authapi.SessionInvalidError
	var reauthRequired *authapi.ReauthRequiredError

	reason := models.AuthErrorCode("")
	switch {
	case errors.As(err, &sessionInvalid):
		reason = models.CodeSessionInvalid
	case errors.As(err, &reauthRequired):
		reason = reauthRequired.Code
	default:
		return Result{Kind: ResultRetry, Reason: err.Error()}
	}

	status, statusErr := j.status.Status(ctx)
	if statusErr != nil {
		j.logger.Error("Failed to read session status", zap.Error(statusErr))
		return Result{Kind: ResultSuccess}
	}
	if status.ReauthReason != nil {
		reason = *status.ReauthReason
	}
	j.notifyIfAllowed(ctx, status, reason)
	return Result{Kind: ResultSuccess}
}

// notifyIfAllowed reminds the user at most once per notify interval.
// The timestamp only advances when the notifier actually delivered.
func (j *KeepAliveJob) notifyIfAllowed(ctx context.Context, status store.SessionStatus, reason models.AuthErrorCode) {
	now := j.now()
	if status.LastReauthNotifiedAt != nil {
		last := time.UnixMilli(*status.LastReauthNotifiedAt)
		if now.Sub(last) < reauthNotifyInterval {
			return
		}
	}
	if !j.notifier.NotifyReauthRequired(reason) {
		return
	}
	if err := j.status.MarkReauthNotificationSent(ctx, now.UnixMilli()); err != nil {
		j.logger.Error("Failed to record reauth notification time", zap.Error(err))
	}
}
