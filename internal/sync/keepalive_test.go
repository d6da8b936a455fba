package sync

import (
	"context"
	"testing"
	"time"

	"yamichi77/movement-log-agent/internal/authapi"
	"yamichi77/movement-log-agent/internal/models"
	"yamichi77/movement-log-agent/internal/store"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStatus struct {
	status     store.SessionStatus
	notifiedAt []int64
}

func (f *fakeStatus) Status(ctx context.Context) (store.SessionStatus, error) {
	return f.status, nil
}

func (f *fakeStatus) MarkReauthNotificationSent(ctx context.Context, notifiedAt int64) error {
	f.notifiedAt = append(f.notifiedAt, notifiedAt)
	return nil
}

type fakeNotifier struct {
	delivered bool
	reasons   []models.AuthErrorCode
}

func (f *fakeNotifier) NotifyReauthRequired(reason models.AuthErrorCode) bool {
	f.reasons = append(f.reasons, reason)
	return f.delivered
}

var keepAliveNow = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

func newTestKeepAlive(settings *fakeSettings, status *fakeStatus, tokens *fakeTokens, notifier *fakeNotifier) *KeepAliveJob {
	j := NewKeepAliveJob(settings, status, tokens, notifier, zap.NewNop())
	j.now = func() time.Time { return keepAliveNow }
	return j
}

func managedStatus() store.SessionStatus {
	return store.SessionStatus{IsSessionManaged: true}
}

func TestKeepAliveNoBaseURLIsSuccess(t *testing.T) {
	settings := &fakeSettings{}
	tokens := &fakeTokens{}
	job := newTestKeepAlive(settings, &fakeStatus{}, tokens, &fakeNotifier{delivered: true})

	result := job.Run(context.Background())
	require.Equal(t, ResultSuccess, result.Kind)
	require.Equal(t, 0, tokens.refreshCalls)
}

func TestKeepAliveUnmanagedSessionIsSuccess(t *testing.T) {
	settings := &fakeSettings{connection: validConnection()}
	tokens := &fakeTokens{}
	job := newTestKeepAlive(settings, &fakeStatus{}, tokens, &fakeNotifier{delivered: true})

	result := job.Run(context.Background())
	require.Equal(t, ResultSuccess, result.Kind)
	require.Equal(t, 0, tokens.refreshCalls)
}

func TestKeepAliveRefreshesManagedSession(t *testing.T) {
	settings := &fakeSettings{connection: validConnection()}
	status := &fakeStatus{status: managedStatus()}
	tokens := &fakeTokens{refreshed: "fresh"}
	notifier := &fakeNotifier{delivered: true}
	job := newTestKeepAlive(settings, status, tokens, notifier)

	result := job.Run(context.Background())
	require.Equal(t, ResultSuccess, result.Kind)
	require.Equal(t, 1, tokens.refreshCalls)
	require.Empty(t, notifier.reasons)
}

func TestKeepAliveNotifiesWhenReauthFlagged(t *testing.T) {
	reason := models.CodeSessionCompromisedReauth
	settings := &fakeSettings{connection: validConnection()}
	status := &fakeStatus{status: store.SessionStatus{
		IsSessionManaged: true,
		ReauthRequired:   true,
		ReauthReason:     &reason,
	}}
	tokens := &fakeTokens{}
	notifier := &fakeNotifier{delivered: true}
	job := newTestKeepAlive(settings, status, tokens, notifier)

	result := job.Run(context.Background())
	require.Equal(t, ResultSuccess, result.Kind)
	// No refresh attempt while the flag stands
	require.Equal(t, 0, tokens.refreshCalls)
	require.Equal(t, []models.AuthErrorCode{reason}, notifier.reasons)
	require.Equal(t, []int64{keepAliveNow.UnixMilli()}, status.notifiedAt)
}

func TestKeepAliveNotificationRateLimit(t *testing.T) {
	reason := models.CodeSessionExpired

	run := func(lastNotifiedAgo time.Duration) (*fakeNotifier, *fakeStatus) {
		last := keepAliveNow.Add(-lastNotifiedAgo).UnixMilli()
		status := &fakeStatus{status: store.SessionStatus{
			IsSessionManaged:     true,
			ReauthRequired:       true,
			ReauthReason:         &reason,
			LastReauthNotifiedAt: &last,
		}}
		notifier := &fakeNotifier{delivered: true}
		settings := &fakeSettings{connection: validConnection()}
		job := newTestKeepAlive(settings, status, &fakeTokens{}, notifier)
		result := job.Run(context.Background())
		require.Equal(t, ResultSuccess, result.Kind)
		return notifier, status
	}

	// A minute after the last reminder stays quiet
	notifier, status := run(time.Minute)
	require.Empty(t, notifier.reasons)
	require.Empty(t, status.notifiedAt)

	// Past the twelve hour window the reminder fires again
	notifier, status = run(12*time.Hour + time.Millisecond)
	require.Equal(t, []models.AuthErrorCode{reason}, notifier.reasons)
	require.Len(t, status.notifiedAt, 1)
}

func TestKeepAliveUndeliveredNotificationIsNotRecorded(t *testing.T) {
	reason := models.CodeSessionExpired
	settings := &fakeSettings{connection: validConnection()}
	status := &fakeStatus{status: store.SessionStatus{
		IsSessionManaged: true,
		ReauthRequired:   true,
		ReauthReason:     &reason,
	}}
	notifier := &fakeNotifier{delivered: false}
	job := newTestKeepAlive(settings, status, &fakeTokens{}, notifier)

	result := job.Run(context.Background())
	require.Equal(t, ResultSuccess, result.Kind)
	require.Len(t, notifier.reasons, 1)
	// Delivery failed, so the next pass may try again immediately
	require.Empty(t, status.notifiedAt)
}

func TestKeepAliveTemporaryRefreshFailureIsRetry(t *testing.T) {
	settings := &fakeSettings{connection: validConnection()}
	status := &fakeStatus{status: managedStatus()}
	tokens := &fakeTokens{refreshErr: &authapi.RefreshTemporaryFailureError{Message: "busy"}}
	notifier := &fakeNotifier{delivered: true}
	job := newTestKeepAlive(settings, status, tokens, notifier)

	result := job.Run(context.Background())
	require.Equal(t, ResultRetry, result.Kind)
	require.Empty(t, notifier.reasons)
}

func TestKeepAliveEscalationNotifiesInsteadOfRetrying(t *testing.T) {
	settings := &fakeSettings{connection: validConnection()}
	status := &fakeStatus{status: managedStatus()}
	tokens := &fakeTokens{refreshErr: &authapi.SessionInvalidError{Message: "SESSION_INVALID"}}
	notifier := &fakeNotifier{delivered: true}
	job := newTestKeepAlive(settings, status, tokens, notifier)

	result := job.Run(context.Background())
	require.Equal(t, ResultSuccess, result.Kind)
	require.Equal(t, []models.AuthErrorCode{models.CodeSessionInvalid}, notifier.reasons)
	require.Len(t, status.notifiedAt, 1)
}
