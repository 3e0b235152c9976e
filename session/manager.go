package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/donmezahmet/ring-unlock/credstore"
	"github.com/donmezahmet/ring-unlock/ring"
)

// Default safety margin before expiry at which a session is refreshed rather
// than returned as-is.
const defaultRefreshMargin = 60 * time.Second

// VendorClient is the slice of the vendor API the Manager needs.
type VendorClient interface {
	StartLogin(ctx context.Context, email, password string) (*ring.PendingLoginAttempt, *ring.Session, error)
	SubmitTwoFactorCode(ctx context.Context, attempt *ring.PendingLoginAttempt, code string) (*ring.Session, error)
	Refresh(ctx context.Context, session *ring.Session) (*ring.Session, error)
}

// Manager owns the single credential slot for this deployment. It holds the
// pending login attempt between the two authentication calls and guarantees
// that every caller of GetUsableSession gets a valid session or a precise
// failure. There is exactly one Manager per process; it is constructed at
// startup and passed by reference to request handlers.
type Manager struct {
	store         credstore.Store
	client        VendorClient
	refreshMargin time.Duration
	nowTime       func() time.Time

	// credMu serializes the load-check-refresh-persist section so concurrent
	// requests never race to refresh the one credential slot. A second
	// refresh would rotate the refresh token under a sibling request's feet.
	credMu sync.Mutex

	// attemptMu guards the single pending-attempt slot.
	attemptMu sync.Mutex
	pending   *ring.PendingLoginAttempt
}

// ManagerOption modifies a Manager.
type ManagerOption func(*Manager)

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

// WithRefreshMargin overrides the safety margin before expiry.
func WithRefreshMargin(margin time.Duration) ManagerOption {
	return func(m *Manager) {
		m.refreshMargin = margin
	}
}

// NewManager creates a Manager over the given store and vendor client.
func NewManager(store credstore.Store, client VendorClient, options ...ManagerOption) (*Manager, error) {
	if store == nil {
		return nil, errors.New("[NewManager] store is required")
	}
	if client == nil {
		return nil, errors.New("[NewManager] client is required")
	}

	m := &Manager{
		store:         store,
		client:        client,
		refreshMargin: defaultRefreshMargin,
		nowTime:       time.Now,
	}

	for _, opt := range options {
		opt(m)
	}

	return m, nil
}

// BeginAuthentication starts the interactive login. On accounts with
// two-factor auth it stores the pending attempt and returns an opaque attempt
// token; a new call supersedes any prior attempt. On accounts without a
// second factor the vendor returns a session outright, which is persisted
// immediately and the returned token is empty.
//
// The attempt lives in process memory only. A restart invalidates it and the
// user starts over.
func (m *Manager) BeginAuthentication(ctx context.Context, email, password string) (string, error) {
	attempt, sess, err := m.client.StartLogin(ctx, email, password)
	if err != nil {
		return "", err
	}

	if sess != nil {
		if err := m.persist(sess); err != nil {
			return "", err
		}
		m.clearPending()
		log.Info().Msg("authenticated without a two-factor challenge")
		return "", nil
	}

	token := uuid.New().String()
	m.attemptMu.Lock()
	m.pending = attempt
	m.attemptMu.Unlock()

	log.Info().Msg("two-factor challenge issued, awaiting code")
	return token, nil
}

// CompleteAuthentication exchanges the one-time code for the first session
// and persists it. The attempt is cleared on success and when the vendor
// declares the prompt dead; a merely wrong code keeps the attempt so the user
// can retype it.
func (m *Manager) CompleteAuthentication(ctx context.Context, code string) error {
	m.attemptMu.Lock()
	attempt := m.pending
	m.attemptMu.Unlock()

	if attempt == nil {
		return errors.Wrap(ErrNoPendingAttempt, "[CompleteAuthentication]")
	}

	sess, err := m.client.SubmitTwoFactorCode(ctx, attempt, code)
	if err != nil {
		if errors.Is(err, ring.ErrCodeExpired) {
			m.clearPending()
		}
		return err
	}

	if err := m.persist(sess); err != nil {
		return err
	}
	m.clearPending()
	log.Info().Time("expires_at", sess.ExpiresAt).Msg("authentication complete, session persisted")
	return nil
}

// GetUsableSession is the single choke point every unlock request passes
// through. It loads the persisted session, returns it as-is while it is not
// expiring soon, and otherwise refreshes and persists it. At most one refresh
// is in flight at a time; callers arriving during a refresh block and then
// reuse its result.
func (m *Manager) GetUsableSession(ctx context.Context) (*ring.Session, error) {
	m.credMu.Lock()
	defer m.credMu.Unlock()

	sess, err := m.store.Load()
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, errors.Wrap(ErrNotAuthenticated, "[GetUsableSession]")
	}

	if sess.Valid(m.refreshMargin, m.nowTime()) {
		return sess, nil
	}

	return m.refreshAndPersist(ctx, sess)
}

// ForceRefresh refreshes the persisted session regardless of its expiry. Used
// when the vendor rejects a token that looked valid moments earlier.
func (m *Manager) ForceRefresh(ctx context.Context) (*ring.Session, error) {
	m.credMu.Lock()
	defer m.credMu.Unlock()

	sess, err := m.store.Load()
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, errors.Wrap(ErrNotAuthenticated, "[ForceRefresh]")
	}

	return m.refreshAndPersist(ctx, sess)
}

// IsAuthenticated reports whether a session has ever been persisted. Used by
// the status pages; it says nothing about the session still being accepted.
func (m *Manager) IsAuthenticated() bool {
	m.credMu.Lock()
	defer m.credMu.Unlock()

	sess, err := m.store.Load()
	return err == nil && sess != nil
}

// CurrentSession returns the persisted session without touching the vendor.
func (m *Manager) CurrentSession() (*ring.Session, error) {
	m.credMu.Lock()
	defer m.credMu.Unlock()

	return m.store.Load()
}

// refreshAndPersist must be called with credMu held. On refresh failure the
// stored session is left untouched so diagnostics remain available.
func (m *Manager) refreshAndPersist(ctx context.Context, sess *ring.Session) (*ring.Session, error) {
	refreshed, err := m.client.Refresh(ctx, sess)
	if err != nil {
		log.Err(err).Msg("session refresh failed, interactive login required")
		return nil, err
	}
	if err := m.store.Save(refreshed); err != nil {
		return nil, err
	}
	log.Info().Time("expires_at", refreshed.ExpiresAt).Msg("session refreshed")
	return refreshed, nil
}

func (m *Manager) persist(sess *ring.Session) error {
	m.credMu.Lock()
	defer m.credMu.Unlock()

	return m.store.Save(sess)
}

// HasPendingAttempt reports whether a login attempt is awaiting its code.
func (m *Manager) HasPendingAttempt() bool {
	m.attemptMu.Lock()
	defer m.attemptMu.Unlock()

	return m.pending != nil
}

func (m *Manager) clearPending() {
	m.attemptMu.Lock()
	m.pending = nil
	m.attemptMu.Unlock()
}

