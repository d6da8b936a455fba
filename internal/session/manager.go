package session

import (
	"context"
	"errors"
	"time"

	"yamichi77/movement-log-agent/internal/authapi"
	"yamichi77/movement-log-agent/internal/models"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// StatusStore is the slice of the durable session status the manager
// writes to.
type StatusStore interface {
	MarkRefreshSucceeded(ctx context.Context) error
	MarkReauthRequired(ctx context.Context, reason models.AuthErrorCode, detectedAt int64) error
}

// CookieStore is the durable session-affinity material cleared on logout
type CookieStore interface {
	Clear()
}

// Manager holds authority over the access token: it is the only mutator
// of the session store and the only caller of the refresh endpoint.
type Manager struct {
	api         authapi.AuthAPI
	store       *Store
	statusStore StatusStore
	events      *EventBus
	cookies     CookieStore
	logger      *zap.Logger

	invalidRetries int
	tempDelays     []time.Duration
	now            func() time.Time

	group singleflight.Group
}

// defaultTempDelays gates each refresh attempt on a temporary failure:
// three attempts total, waiting 0ms/1s/2s before each.
var defaultTempDelays = []time.Duration{0, time.Second, 2 * time.Second}

// NewManager creates a session manager. invalidRetries is the number of
// immediate retries on SESSION_INVALID before escalating (the backend has
// a known one-shot race; treat the count as tunable, not law).
func NewManager(
	api authapi.AuthAPI,
	store *Store,
	statusStore StatusStore,
	events *EventBus,
	cookies CookieStore,
	invalidRetries int,
	logger *zap.Logger,
) *Manager {
	if invalidRetries < 0 {
		invalidRetries = 0
	}
	return &Manager{
		api:            api,
		store:          store,
		statusStore:    statusStore,
		events:         events,
		cookies:        cookies,
		logger:         logger,
		invalidRetries: invalidRetries,
		tempDelays:     defaultTempDelays,
		now:            time.Now,
	}
}

// AccessToken returns the cached token, empty when absent
func (m *Manager) AccessToken() string {
	return m.store.Token()
}

// SetAccessToken overrides the token, e.g. when one arrives via an
// external login callback. Blank normalizes to "no token".
func (m *Manager) SetAccessToken(token string) {
	m.store.Set(token)
}

// GetOrRefreshAccessToken returns the cached token when present,
// otherwise refreshes and returns the new one.
func (m *Manager) GetOrRefreshAccessToken(ctx context.Context, baseURL string) (string, error) {
	if token := m.store.Token(); token != "" {
		return token, nil
	}
	result, err := m.RefreshAccessToken(ctx, baseURL)
	if err != nil {
		return "", err
	}
	return result.AccessToken, nil
}

// RefreshAccessToken performs a single-flight refresh: concurrent callers
// share one network refresh and all receive its outcome. This is what
// keeps two racing refreshes from clobbering a freshly rotated session.
func (m *Manager) RefreshAccessToken(ctx context.Context, baseURL string) (models.RefreshResult, error) {
	value, err, _ := m.group.Do("refresh", func() (interface{}, error) {
		return m.refreshWithPolicies(ctx, baseURL)
	})
	if err != nil {
		return models.RefreshResult{}, err
	}
	return value.(models.RefreshResult), nil
}

// Logout invalidates the session remotely on a best-effort basis and
// always clears the local token and persisted cookies.
func (m *Manager) Logout(ctx context.Context, baseURL string) {
	token := m.store.Token()
	if err := m.api.Logout(ctx, baseURL, token); err != nil {
		m.logger.Warn("Remote logout failed, clearing local session anyway", zap.Error(err))
	}
	if m.cookies != nil {
		m.cookies.Clear()
	}
	m.store.Set("")
}

func (m *Manager) refreshWithPolicies(ctx context.Context, baseURL string) (models.RefreshResult, error) {
	invalidRetries := 0
	tempAttempt := 0

	for {
		result, err := m.api.RefreshAccessToken(ctx, baseURL)
		if err == nil {
			m.store.Set(result.AccessToken)
			if statusErr := m.statusStore.MarkRefreshSucceeded(ctx); statusErr != nil {
				m.logger.Error("Failed to record refresh success", zap.Error(statusErr))
			}
			return result, nil
		}

		var sessionInvalid *authapi.SessionInvalidError
		var reauthRequired *authapi.ReauthRequiredError
		var temporary *authapi.RefreshTemporaryFailureError

		switch {
		case errors.As(err, &sessionInvalid):
			if invalidRetries < m.invalidRetries {
				invalidRetries++
				m.logger.Warn("Refresh returned SESSION_INVALID, retrying",
					zap.Int("attempt", invalidRetries),
				)
				continue
			}
			m.requireLogin(ctx, models.CodeSessionInvalid, baseURL)
			return models.RefreshResult{}, err

		case errors.As(err, &reauthRequired):
			m.requireLogin(ctx, reauthRequired.Code, baseURL)
			return models.RefreshResult{}, err

		case errors.As(err, &temporary):
			tempAttempt++
			if tempAttempt >= len(m.tempDelays) {
				return models.RefreshResult{}, err
			}
			delay := m.tempDelays[tempAttempt]
			m.logger.Warn("Refresh temporarily unavailable, backing off",
				zap.Duration("delay", delay),
				zap.Int("attempt", tempAttempt),
			)
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return models.RefreshResult{}, ctx.Err()
				}
			}

		default:
			return models.RefreshResult{}, err
		}
	}
}

// requireLogin transitions to reauthentication-required: token cleared,
// durable flag set, process-wide login signal emitted.
func (m *Manager) requireLogin(ctx context.Context, reason models.AuthErrorCode, baseURL string) {
	m.store.Set("")
	if err := m.statusStore.MarkReauthRequired(ctx, reason, m.now().UnixMilli()); err != nil {
		m.logger.Error("Failed to persist reauth-required status", zap.Error(err))
	}
	m.events.RequireLogin(reason, baseURL)
}
