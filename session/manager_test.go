package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/donmezahmet/ring-unlock/credstore/storefake"
	"github.com/donmezahmet/ring-unlock/ring"
	"github.com/donmezahmet/ring-unlock/session"
	"github.com/donmezahmet/ring-unlock/session/clientfakes"
)

const (
	testEmail    = "user@example.com"
	testPassword = "pw"
	testCode     = "123456"
)

// testFixture holds all test dependencies
type testFixture struct {
	store   *storefake.FakeStore
	client  *clientfakes.FakeVendorClient
	manager *session.Manager
	now     time.Time
}

// setupTestFixture creates a new test fixture with a fixed clock
func setupTestFixture(t *testing.T, options ...session.ManagerOption) *testFixture {
	t.Helper()

	f := &testFixture{
		store:  storefake.NewFakeStore(),
		client: clientfakes.NewFakeVendorClient(),
		now:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	options = append([]session.ManagerOption{
		session.WithNowTime(func() time.Time { return f.now }),
	}, options...)

	manager, err := session.NewManager(f.store, f.client, options...)
	require.NoError(t, err)
	f.manager = manager
	return f
}

func (f *testFixture) freshSession() *ring.Session {
	return &ring.Session{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    f.now.Add(time.Hour),
	}
}

func (f *testFixture) expiredSession() *ring.Session {
	return &ring.Session{
		AccessToken:  "access-stale",
		RefreshToken: "refresh-stale",
		ExpiresAt:    f.now.Add(-time.Minute),
	}
}

func (f *testFixture) refreshedSession() *ring.Session {
	return &ring.Session{
		AccessToken:  "access-2",
		RefreshToken: "refresh-2",
		ExpiresAt:    f.now.Add(time.Hour),
	}
}

func TestBeginThenCompletePersistsSession(t *testing.T) {
	f := setupTestFixture(t)
	f.client.SubmitSession = f.freshSession()

	token, err := f.manager.BeginAuthentication(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.True(t, f.manager.HasPendingAttempt())

	err = f.manager.CompleteAuthentication(context.Background(), testCode)
	require.NoError(t, err)
	require.False(t, f.manager.HasPendingAttempt())
	require.Equal(t, testCode, f.client.LastCode)

	// The persisted session is returned without contacting the refresh endpoint.
	sess, err := f.manager.GetUsableSession(context.Background())
	require.NoError(t, err)
	require.Equal(t, "access-1", sess.AccessToken)

	_, _, refreshCalls := f.client.Calls()
	require.Zero(t, refreshCalls)
}

func TestCompleteWithoutBeginFails(t *testing.T) {
	f := setupTestFixture(t)

	err := f.manager.CompleteAuthentication(context.Background(), testCode)
	require.ErrorIs(t, err, session.ErrNoPendingAttempt)
}

func TestSecondBeginSupersedesFirst(t *testing.T) {
	f := setupTestFixture(t)
	f.client.SubmitSession = f.freshSession()

	f.client.StartLoginAttempt = &ring.PendingLoginAttempt{Email: testEmail, Password: testPassword, PromptID: "prompt-first"}
	_, err := f.manager.BeginAuthentication(context.Background(), testEmail, testPassword)
	require.NoError(t, err)

	f.client.StartLoginAttempt = &ring.PendingLoginAttempt{Email: testEmail, Password: testPassword, PromptID: "prompt-second"}
	_, err = f.manager.BeginAuthentication(context.Background(), testEmail, testPassword)
	require.NoError(t, err)

	err = f.manager.CompleteAuthentication(context.Background(), testCode)
	require.NoError(t, err)

	// The code was submitted against the second attempt; the first is gone.
	require.Equal(t, "prompt-second", f.client.LastAttempt.PromptID)
}

func TestBeginWithoutTwoFactorPersistsImmediately(t *testing.T) {
	f := setupTestFixture(t)
	f.client.StartLoginSession = f.freshSession()

	token, err := f.manager.BeginAuthentication(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	require.Empty(t, token)
	require.False(t, f.manager.HasPendingAttempt())
	require.True(t, f.manager.IsAuthenticated())
}

func TestBeginInvalidCredentials(t *testing.T) {
	f := setupTestFixture(t)
	f.client.StartLoginErr = ring.ErrInvalidCredentials

	_, err := f.manager.BeginAuthentication(context.Background(), testEmail, "wrong")
	require.ErrorIs(t, err, ring.ErrInvalidCredentials)
	require.False(t, f.manager.HasPendingAttempt())
}

func TestCompleteInvalidCodeKeepsAttempt(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.manager.BeginAuthentication(context.Background(), testEmail, testPassword)
	require.NoError(t, err)

	f.client.SubmitErr = ring.ErrInvalidCode
	err = f.manager.CompleteAuthentication(context.Background(), "000000")
	require.ErrorIs(t, err, ring.ErrInvalidCode)
	require.True(t, f.manager.HasPendingAttempt())

	// Retyping the code against the same attempt works.
	f.client.SubmitErr = nil
	f.client.SubmitSession = f.freshSession()
	err = f.manager.CompleteAuthentication(context.Background(), testCode)
	require.NoError(t, err)
	require.True(t, f.manager.IsAuthenticated())
}

func TestCompleteExpiredPromptClearsAttempt(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.manager.BeginAuthentication(context.Background(), testEmail, testPassword)
	require.NoError(t, err)

	f.client.SubmitErr = ring.ErrCodeExpired
	err = f.manager.CompleteAuthentication(context.Background(), testCode)
	require.ErrorIs(t, err, ring.ErrCodeExpired)
	require.False(t, f.manager.HasPendingAttempt())

	err = f.manager.CompleteAuthentication(context.Background(), testCode)
	require.ErrorIs(t, err, session.ErrNoPendingAttempt)
}

func TestGetUsableSessionNotAuthenticated(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.manager.GetUsableSession(context.Background())
	require.ErrorIs(t, err, session.ErrNotAuthenticated)
}

func TestGetUsableSessionFreshSessionNoRefresh(t *testing.T) {
	f := setupTestFixture(t)
	f.store.Seed(f.freshSession())

	sess, err := f.manager.GetUsableSession(context.Background())
	require.NoError(t, err)
	require.Equal(t, "access-1", sess.AccessToken)

	_, _, refreshCalls := f.client.Calls()
	require.Zero(t, refreshCalls)
}

func TestGetUsableSessionExpiredRefreshesOnce(t *testing.T) {
	f := setupTestFixture(t)
	f.store.Seed(f.expiredSession())
	f.client.RefreshSession = f.refreshedSession()

	sess, err := f.manager.GetUsableSession(context.Background())
	require.NoError(t, err)
	require.Equal(t, "access-2", sess.AccessToken)

	_, _, refreshCalls := f.client.Calls()
	require.Equal(t, 1, refreshCalls)

	// The refreshed session was persisted, so an immediate second call
	// triggers zero further refreshes.
	sess, err = f.manager.GetUsableSession(context.Background())
	require.NoError(t, err)
	require.Equal(t, "access-2", sess.AccessToken)

	_, _, refreshCalls = f.client.Calls()
	require.Equal(t, 1, refreshCalls)
}

func TestGetUsableSessionRefreshesInsideMargin(t *testing.T) {
	f := setupTestFixture(t)
	// Not yet expired, but inside the 60s safety margin.
	f.store.Seed(&ring.Session{
		AccessToken:  "access-soon",
		RefreshToken: "refresh-soon",
		ExpiresAt:    f.now.Add(30 * time.Second),
	})
	f.client.RefreshSession = f.refreshedSession()

	sess, err := f.manager.GetUsableSession(context.Background())
	require.NoError(t, err)
	require.Equal(t, "access-2", sess.AccessToken)

	_, _, refreshCalls := f.client.Calls()
	require.Equal(t, 1, refreshCalls)
}

func TestRefreshFailureLeavesStoredSessionUntouched(t *testing.T) {
	f := setupTestFixture(t)
	f.store.Seed(f.expiredSession())
	f.client.RefreshErr = ring.ErrRefreshRejected

	_, err := f.manager.GetUsableSession(context.Background())
	require.ErrorIs(t, err, ring.ErrRefreshRejected)

	// The stale session stays readable for diagnostics.
	stored, err := f.store.Load()
	require.NoError(t, err)
	require.Equal(t, "access-stale", stored.AccessToken)
	require.Zero(t, f.store.SaveCalls)
}

func TestForceRefreshIgnoresExpiry(t *testing.T) {
	f := setupTestFixture(t)
	f.store.Seed(f.freshSession())
	f.client.RefreshSession = f.refreshedSession()

	sess, err := f.manager.ForceRefresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, "access-2", sess.AccessToken)

	_, _, refreshCalls := f.client.Calls()
	require.Equal(t, 1, refreshCalls)
}

func TestConcurrentGetUsableSessionSingleRefresh(t *testing.T) {
	f := setupTestFixture(t)
	f.store.Seed(f.expiredSession())
	f.client.RefreshSession = f.refreshedSession()

	const callers = 16
	results := make([]*ring.Session, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.manager.GetUsableSession(context.Background())
		}(i)
	}
	wg.Wait()

	// Exactly one refresh hit the vendor; every caller got the same session.
	_, _, refreshCalls := f.client.Calls()
	require.Equal(t, 1, refreshCalls)
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, "access-2", results[i].AccessToken)
	}
}

func TestStorageFailureIsFatalToRequestOnly(t *testing.T) {
	f := setupTestFixture(t)
	f.store.Seed(f.expiredSession())
	f.client.RefreshSession = f.refreshedSession()
	f.store.SaveErr = errSaveBroken

	_, err := f.manager.GetUsableSession(context.Background())
	require.ErrorIs(t, err, errSaveBroken)
}

var errSaveBroken = errorString("disk full")

type errorString string

func (e errorString) Error() string { return string(e) }
