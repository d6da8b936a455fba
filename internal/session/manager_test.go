package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"yamichi77/movement-log-agent/internal/authapi"
	"yamichi77/movement-log-agent/internal/models"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeAuthAPI scripts refresh outcomes in order; the last one repeats
type fakeAuthAPI struct {
	mu       sync.Mutex
	outcomes []refreshOutcome
	calls    int32
	block    chan struct{}

	logoutErr   error
	logoutCalls int32
}

type refreshOutcome struct {
	result models.RefreshResult
	err    error
}

func (f *fakeAuthAPI) RefreshAccessToken(ctx context.Context, baseURL string) (models.RefreshResult, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	outcome := f.outcomes[0]
	if len(f.outcomes) > 1 {
		f.outcomes = f.outcomes[1:]
	}
	return outcome.result, outcome.err
}

func (f *fakeAuthAPI) Logout(ctx context.Context, baseURL, accessToken string) error {
	atomic.AddInt32(&f.logoutCalls, 1)
	return f.logoutErr
}

type fakeStatusStore struct {
	mu               sync.Mutex
	refreshSucceeded int
	reauthReasons    []models.AuthErrorCode
}

func (f *fakeStatusStore) MarkRefreshSucceeded(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshSucceeded++
	return nil
}

func (f *fakeStatusStore) MarkReauthRequired(ctx context.Context, reason models.AuthErrorCode, detectedAt int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reauthReasons = append(f.reauthReasons, reason)
	return nil
}

type fakeCookieStore struct {
	cleared int32
}

func (f *fakeCookieStore) Clear() {
	atomic.AddInt32(&f.cleared, 1)
}

func newTestManager(api *fakeAuthAPI, invalidRetries int) (*Manager, *fakeStatusStore, *EventBus, *fakeCookieStore) {
	status := &fakeStatusStore{}
	cookies := &fakeCookieStore{}
	events := NewEventBus(zap.NewNop())
	m := NewManager(api, NewStore(), status, events, cookies, invalidRetries, zap.NewNop())
	m.tempDelays = []time.Duration{0, 0, 0}
	return m, status, events, cookies
}

func TestRefreshSuccessStoresToken(t *testing.T) {
	api := &fakeAuthAPI{outcomes: []refreshOutcome{
		{result: models.RefreshResult{AccessToken: "fresh", SessionRotated: true}},
	}}
	m, status, _, _ := newTestManager(api, 1)

	result, err := m.RefreshAccessToken(context.Background(), "https://example.com")
	require.NoError(t, err)
	require.Equal(t, "fresh", result.AccessToken)
	require.True(t, result.SessionRotated)
	require.Equal(t, "fresh", m.AccessToken())
	require.Equal(t, 1, status.refreshSucceeded)
}

func TestGetOrRefreshUsesCachedToken(t *testing.T) {
	api := &fakeAuthAPI{outcomes: []refreshOutcome{
		{result: models.RefreshResult{AccessToken: "fresh"}},
	}}
	m, _, _, _ := newTestManager(api, 1)
	m.SetAccessToken("cached")

	token, err := m.GetOrRefreshAccessToken(context.Background(), "https://example.com")
	require.NoError(t, err)
	require.Equal(t, "cached", token)
	require.Equal(t, int32(0), atomic.LoadInt32(&api.calls))
}

func TestConcurrentRefreshSharesOneCall(t *testing.T) {
	api := &fakeAuthAPI{
		outcomes: []refreshOutcome{{result: models.RefreshResult{AccessToken: "shared"}}},
		block:    make(chan struct{}),
	}
	m, _, _, _ := newTestManager(api, 1)

	const callers = 10
	tokens := make([]string, callers)
	errs := make([]error, callers)
	var started, done sync.WaitGroup
	started.Add(callers)
	done.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer done.Done()
			started.Done()
			result, err := m.RefreshAccessToken(context.Background(), "https://example.com")
			tokens[i] = result.AccessToken
			errs[i] = err
		}(i)
	}
	started.Wait()
	time.Sleep(50 * time.Millisecond) // let callers pile onto the flight
	close(api.block)
	done.Wait()

	require.Equal(t, int32(1), atomic.LoadInt32(&api.calls))
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, "shared", tokens[i])
	}
}

func TestSessionInvalidRetriesThenEscalates(t *testing.T) {
	api := &fakeAuthAPI{outcomes: []refreshOutcome{
		{err: &authapi.SessionInvalidError{Message: "SESSION_INVALID"}},
	}}
	m, status, events, _ := newTestManager(api, 1)
	m.SetAccessToken("stale")

	ch, cancel := events.Subscribe()
	defer cancel()

	_, err := m.RefreshAccessToken(context.Background(), "https://example.com")
	var invalid *authapi.SessionInvalidError
	require.ErrorAs(t, err, &invalid)

	// One initial attempt plus one retry
	require.Equal(t, int32(2), atomic.LoadInt32(&api.calls))
	require.Empty(t, m.AccessToken())
	require.Equal(t, []models.AuthErrorCode{models.CodeSessionInvalid}, status.reauthReasons)

	select {
	case event := <-ch:
		require.Equal(t, models.CodeSessionInvalid, event.Reason)
		require.Equal(t, "https://example.com", event.BaseURL)
	default:
		t.Fatal("expected a require-login event")
	}
}

func TestSessionInvalidRetrySucceeds(t *testing.T) {
	api := &fakeAuthAPI{outcomes: []refreshOutcome{
		{err: &authapi.SessionInvalidError{Message: "SESSION_INVALID"}},
		{result: models.RefreshResult{AccessToken: "recovered"}},
	}}
	m, status, _, _ := newTestManager(api, 1)

	result, err := m.RefreshAccessToken(context.Background(), "https://example.com")
	require.NoError(t, err)
	require.Equal(t, "recovered", result.AccessToken)
	require.Equal(t, int32(2), atomic.LoadInt32(&api.calls))
	require.Empty(t, status.reauthReasons)
}

func TestReauthRequiredEscalatesImmediately(t *testing.T) {
	api := &fakeAuthAPI{outcomes: []refreshOutcome{
		{err: &authapi.ReauthRequiredError{
			Code:    models.CodeSessionCompromisedReauth,
			Message: "compromised",
		}},
	}}
	m, status, events, _ := newTestManager(api, 3)
	m.SetAccessToken("stale")

	ch, cancel := events.Subscribe()
	defer cancel()

	_, err := m.RefreshAccessToken(context.Background(), "https://example.com")
	var reauth *authapi.ReauthRequiredError
	require.ErrorAs(t, err, &reauth)

	// No retries for an explicit reauth demand
	require.Equal(t, int32(1), atomic.LoadInt32(&api.calls))
	require.Empty(t, m.AccessToken())
	require.Equal(t, []models.AuthErrorCode{models.CodeSessionCompromisedReauth}, status.reauthReasons)
	require.Len(t, ch, 1)
}

func TestTemporaryFailureRetriesThenGivesUp(t *testing.T) {
	api := &fakeAuthAPI{outcomes: []refreshOutcome{
		{err: &authapi.RefreshTemporaryFailureError{Message: "busy"}},
	}}
	m, status, _, _ := newTestManager(api, 1)

	_, err := m.RefreshAccessToken(context.Background(), "https://example.com")
	var temporary *authapi.RefreshTemporaryFailureError
	require.ErrorAs(t, err, &temporary)

	require.Equal(t, int32(3), atomic.LoadInt32(&api.calls))
	// A temporary failure never demands reauthentication
	require.Empty(t, status.reauthReasons)
}

func TestTemporaryFailureThenSuccess(t *testing.T) {
	api := &fakeAuthAPI{outcomes: []refreshOutcome{
		{err: &authapi.RefreshTemporaryFailureError{Message: "busy"}},
		{result: models.RefreshResult{AccessToken: "after-wait"}},
	}}
	m, _, _, _ := newTestManager(api, 1)

	result, err := m.RefreshAccessToken(context.Background(), "https://example.com")
	require.NoError(t, err)
	require.Equal(t, "after-wait", result.AccessToken)
	require.Equal(t, int32(2), atomic.LoadInt32(&api.calls))
}

func TestUnexpectedErrorPassesThrough(t *testing.T) {
	api := &fakeAuthAPI{outcomes: []refreshOutcome{
		{err: fmt.Errorf("connection reset")},
	}}
	m, status, _, _ := newTestManager(api, 1)

	_, err := m.RefreshAccessToken(context.Background(), "https://example.com")
	require.Error(t, err)
	require.Equal(t, int32(1), atomic.LoadInt32(&api.calls))
	require.Empty(t, status.reauthReasons)
}

func TestLogoutClearsLocalStateEvenWhenRemoteFails(t *testing.T) {
	api := &fakeAuthAPI{
		outcomes:  []refreshOutcome{{result: models.RefreshResult{}}},
		logoutErr: fmt.Errorf("backend down"),
	}
	m, _, _, cookies := newTestManager(api, 1)
	m.SetAccessToken("active")

	m.Logout(context.Background(), "https://example.com")

	require.Empty(t, m.AccessToken())
	require.Equal(t, int32(1), atomic.LoadInt32(&cookies.cleared))
	require.Equal(t, int32(1), atomic.LoadInt32(&api.logoutCalls))
}
