// Package session owns the signed-in state of the WalletFit front-end.
//
// A Manager is the single writer of the session. The credential store is a
// write-through mirror: every transition to present saves the full record,
// every transition to absent removes it, and the store is read once at start
// (or on Reload). Store failures are logged; memory stays authoritative.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AneeshNi47/walletfit-ui/internal/models"
	"github.com/AneeshNi47/walletfit-ui/internal/storage"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidCredentials is returned by Login when the exchange is rejected.
	// The API error is wrapped alongside it.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrIncompleteSession is returned when tokens or identity are missing.
	ErrIncompleteSession = errors.New("incomplete session")
	// ErrRefreshFailed is returned by Refresh after it has logged the user out.
	ErrRefreshFailed = errors.New("refresh failed")
)

// Authenticator performs the credential exchanges with the API.
type Authenticator interface {
	ObtainToken(ctx context.Context, username, password string) (models.TokenPair, error)
	RefreshAccess(ctx context.Context, refresh string) (string, error)
	RevokeRefresh(ctx context.Context, access, refresh string) error
}

// State is whether a session is known to exist.
type State int

const (
	// StateUnknown is the state before the store has been read.
	StateUnknown State = iota
	StateAbsent
	StatePresent
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StatePresent:
		return "present"
	default:
		return "unknown"
	}
}

// EventKind names a session transition.
type EventKind string

const (
	EventLogin   EventKind = "login"
	EventAdopt   EventKind = "adopt"
	EventRefresh EventKind = "refresh"
	EventLogout  EventKind = "logout"
	EventExpire  EventKind = "expire"
	EventReload  EventKind = "reload"
)

// Event is delivered to subscribers after each transition.
type Event struct {
	Kind    EventKind
	Session models.Session
	Present bool
}

// Manager holds the current session. It is safe for concurrent use.
type Manager struct {
	auth   Authenticator
	store  storage.CredentialStore
	logger *slog.Logger

	mu      sync.Mutex
	state   State
	current models.Session
	// version counts in-process transitions; Reload uses it to detect that
	// memory moved on while it was reading the store.
	version uint64

	// storeMu orders store writes. It is taken while mu is held and kept
	// after mu is released, so readers never wait on store I/O. Lock order
	// is always mu, then storeMu.
	storeMu sync.Mutex

	subMu  sync.Mutex
	subs   map[int]func(Event)
	nextID int
}

// NewManager creates a manager in StateUnknown. Call Init before use.
func NewManager(auth Authenticator, store storage.CredentialStore, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		auth:   auth,
		store:  store,
		logger: logger,
		subs:   map[int]func(Event){},
	}
}

// Init reads the stored session once. A partial or unreadable record is
// discarded and removed from the store.
func (m *Manager) Init(ctx context.Context) error {
	stored, err := m.load(ctx)
	if err != nil {
		m.mu.Lock()
		m.state = StateAbsent
		m.mu.Unlock()
		return fmt.Errorf("load session: %w", err)
	}

	m.mu.Lock()
	if stored != nil {
		m.current = *stored
		m.state = StatePresent
	} else {
		m.current = models.Session{}
		m.state = StateAbsent
	}
	m.mu.Unlock()
	return nil
}

// load returns the stored session, nil when there is none usable.
func (m *Manager) load(ctx context.Context) (*models.Session, error) {
	stored, err := m.store.Load(ctx)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil, nil
	case errors.Is(err, storage.ErrCorrupt):
		m.logger.Warn("discarding unreadable stored session", "error", err)
		m.clearStore(ctx)
		return nil, nil
	case err != nil:
		return nil, err
	}
	if !stored.Valid() {
		m.logger.Warn("discarding partial stored session")
		m.clearStore(ctx)
		return nil, nil
	}
	return stored, nil
}

// Login exchanges identifier and secret for a new session.
func (m *Manager) Login(ctx context.Context, identifier, secret string) (models.Session, error) {
	pair, err := m.auth.ObtainToken(ctx, identifier, secret)
	if err != nil {
		return models.Session{}, fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
	}
	if !pair.Complete() {
		return models.Session{}, fmt.Errorf("login: %w: token response missing access or refresh", ErrIncompleteSession)
	}
	return m.install(ctx, EventLogin, pair, models.User{Username: identifier})
}

// Adopt installs a session from tokens obtained elsewhere, such as registration.
func (m *Manager) Adopt(ctx context.Context, pair models.TokenPair, user models.User) (models.Session, error) {
	return m.install(ctx, EventAdopt, pair, user)
}

func (m *Manager) install(ctx context.Context, kind EventKind, pair models.TokenPair, user models.User) (models.Session, error) {
	s := models.Session{AccessToken: pair.Access, RefreshToken: pair.Refresh, User: user}
	if !s.Valid() {
		return models.Session{}, fmt.Errorf("%s: %w", kind, ErrIncompleteSession)
	}

	m.mu.Lock()
	m.current = s
	m.state = StatePresent
	m.version++
	m.storeMu.Lock()
	m.mu.Unlock()
	m.save(ctx, s)
	m.storeMu.Unlock()

	m.publish(Event{Kind: kind, Session: s, Present: true})
	return s, nil
}

// Logout clears the session locally, then asks the API to revoke the refresh
// token. It never fails: a failed revocation is only logged.
func (m *Manager) Logout(ctx context.Context) {
	old, cleared := m.clear(ctx, EventLogout, nil)
	if !cleared || old.RefreshToken == "" {
		return
	}
	if err := m.auth.RevokeRefresh(ctx, old.AccessToken, old.RefreshToken); err != nil {
		m.logger.Warn("logout: revoking refresh token failed", "error", err)
	}
}

// Expire ends the session after the API rejected its access token. It
// reports whether this call cleared a session; concurrent callers see true
// exactly once.
func (m *Manager) Expire(ctx context.Context) bool {
	_, cleared := m.clear(ctx, EventExpire, nil)
	return cleared
}

// Refresh swaps the access token using the refresh token. Without a refresh
// token it does nothing. Any failure logs the user out.
func (m *Manager) Refresh(ctx context.Context) error {
	snapshot, ok := m.Current()
	if !ok || snapshot.RefreshToken == "" {
		return nil
	}

	access, err := m.auth.RefreshAccess(ctx, snapshot.RefreshToken)
	if err == nil && access == "" {
		err = errors.New("token response missing access")
	}
	if err != nil {
		if old, cleared := m.clear(ctx, EventLogout, &snapshot); cleared {
			if rerr := m.auth.RevokeRefresh(ctx, old.AccessToken, old.RefreshToken); rerr != nil {
				m.logger.Debug("refresh: revoking refresh token failed", "error", rerr)
			}
		}
		return fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	m.mu.Lock()
	if m.current != snapshot {
		// Logged out or replaced while the exchange was in flight.
		m.mu.Unlock()
		m.logger.Debug("refresh: session changed during exchange, result discarded")
		return nil
	}
	m.current.AccessToken = access
	m.version++
	s := m.current
	m.storeMu.Lock()
	m.mu.Unlock()
	m.save(ctx, s)
	m.storeMu.Unlock()

	m.publish(Event{Kind: EventRefresh, Session: s, Present: true})
	return nil
}

// clear moves to absent. With match set, it only acts while the current
// session still equals *match. It returns the session that was cleared.
func (m *Manager) clear(ctx context.Context, kind EventKind, match *models.Session) (models.Session, bool) {
	m.mu.Lock()
	if m.state != StatePresent || (match != nil && m.current != *match) {
		m.mu.Unlock()
		return models.Session{}, false
	}
	old := m.current
	m.current = models.Session{}
	m.state = StateAbsent
	m.version++
	m.storeMu.Lock()
	m.mu.Unlock()
	m.clearStore(ctx)
	m.storeMu.Unlock()

	m.publish(Event{Kind: kind, Present: false})
	return old, true
}

// Reload re-reads the store and follows it when another process changed it.
// A transition made in this process while the store was being read wins over
// what was read.
func (m *Manager) Reload(ctx context.Context) error {
	m.mu.Lock()
	version := m.version
	m.mu.Unlock()

	// Writes that started before the snapshot hold storeMu until they land.
	m.storeMu.Lock()
	stored, err := m.load(ctx)
	m.storeMu.Unlock()
	if err != nil {
		return fmt.Errorf("reload session: %w", err)
	}

	var next models.Session
	if stored != nil {
		next = *stored
	}
	m.mu.Lock()
	if m.version != version {
		m.mu.Unlock()
		m.logger.Debug("reload: session changed during read, result discarded")
		return nil
	}
	changed := next != m.current || m.state == StateUnknown
	m.current = next
	if stored != nil {
		m.state = StatePresent
	} else {
		m.state = StateAbsent
	}
	if changed {
		m.version++
	}
	m.mu.Unlock()

	if changed {
		m.publish(Event{Kind: EventReload, Session: next, Present: stored != nil})
	}
	return nil
}

// Current returns a copy of the session and whether one exists. No I/O.
func (m *Manager) Current() (models.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, m.state == StatePresent
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// AccessToken returns the current access token, empty when signed out.
func (m *Manager) AccessToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StatePresent {
		return ""
	}
	return m.current.AccessToken
}

// Subscribe registers fn for session events. Events are delivered
// synchronously after the transition, outside the manager's locks.
func (m *Manager) Subscribe(fn func(Event)) (cancel func()) {
	m.subMu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.subMu.Lock()
			delete(m.subs, id)
			m.subMu.Unlock()
		})
	}
}

func (m *Manager) publish(ev Event) {
	m.subMu.Lock()
	fns := make([]func(Event), 0, len(m.subs))
	for id := 0; id < m.nextID; id++ {
		if fn, ok := m.subs[id]; ok {
			fns = append(fns, fn)
		}
	}
	m.subMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func (m *Manager) save(ctx context.Context, s models.Session) {
	if err := m.store.Save(context.WithoutCancel(ctx), &s); err != nil {
		m.logger.Error("persist session failed", "error", err)
	}
}

func (m *Manager) clearStore(ctx context.Context) {
	if err := m.store.Clear(context.WithoutCancel(ctx)); err != nil {
		m.logger.Error("remove stored session failed", "error", err)
	}
}

// AccessExpiry reads the exp claim of an access token without verifying it.
// ok is false when the token is not a JWT or carries no expiry.
func AccessExpiry(token string) (exp time.Time, ok bool) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
