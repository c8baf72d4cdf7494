package tabAuth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/quillpress/tabAuth/bridge"
	"github.com/quillpress/tabAuth/internal/audit"
	"github.com/quillpress/tabAuth/internal/flows"
	"github.com/quillpress/tabAuth/refresh"
	"github.com/quillpress/tabAuth/tokenstore"
	"github.com/rs/zerolog"
)

// Manager owns one tab's session. It is the single writer of session state,
// the token store and the bridge. Build it with [Builder].
type Manager struct {
	cfg    Config
	tabID  string
	store  tokenstore.Store
	bridge bridge.Bridge
	flows  flows.Deps
	clock  refresh.Clock

	log            zerolog.Logger
	metrics        *Metrics
	audit          *audit.Dispatcher
	onForcedLogout func(prev Session, cause error)

	baseCtx    context.Context
	cancelBase context.CancelFunc

	mu      sync.Mutex
	epoch   uint64
	closed  bool
	sched   *refresh.Scheduler
	pending *pendingLogout

	current     atomic.Pointer[Session]
	hydrateOnce sync.Once

	watchMu     sync.Mutex
	watchers    map[uint64]chan Session
	nextWatch   uint64
	watchClosed bool
}

// pendingLogout marks a logout whose invalidation call is in flight.
type pendingLogout struct {
	epoch uint64
	done  chan struct{}
}

// TabID returns the tab this Manager serves.
func (m *Manager) TabID() string {
	return m.tabID
}

// Config returns a copy of the validated configuration.
func (m *Manager) Config() Config {
	return cloneConfig(m.cfg)
}

// Metrics returns the Manager's metrics. Never nil.
func (m *Manager) Metrics() *Metrics {
	return m.metrics
}

// MetricsSnapshot returns a point-in-time copy of all metrics.
func (m *Manager) MetricsSnapshot() MetricsSnapshot {
	return m.metrics.Snapshot()
}

// GetSession returns the current snapshot. It never blocks on I/O and returns
// an unauthenticated session before hydration.
func (m *Manager) GetSession() Session {
	return m.current.Load().clone()
}

// Login establishes a session from an access token obtained elsewhere. A login
// while authenticated replaces the session; the previous renewal credential is
// not invalidated. Token store and bridge failures are logged, not returned.
func (m *Manager) Login(ctx context.Context, accessToken string, id Identity) error {
	if strings.TrimSpace(accessToken) == "" {
		m.metrics.Inc(MetricLoginRejected)
		return ErrTokenRequired
	}
	id.Username = strings.TrimSpace(id.Username)
	if id.Username == "" {
		m.metrics.Inc(MetricLoginRejected)
		return ErrIdentityRequired
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}

	m.epoch++
	s := newSession(accessToken, &id, m.epoch)
	m.writeStoreLocked(ctx, s)
	m.setBridgeLocked(ctx, s)
	m.publishLocked(s)
	m.restartSchedulerLocked()
	m.mu.Unlock()

	m.metrics.Inc(MetricLoginSuccess)
	m.log.Info().Str("username", id.Username).Uint64("epoch", s.Epoch).Msg("tabAuth: session established")
	m.emit(ctx, EventLogin, s, nil, nil)
	return nil
}

// Hydrate restores the session persisted in the token store. Only the first
// call reads the store, and only when no login has happened yet. A store read
// error leaves the tab unauthenticated.
func (m *Manager) Hydrate(ctx context.Context) Session {
	m.hydrateOnce.Do(func() { m.hydrate(ctx) })
	return m.GetSession()
}

func (m *Manager) hydrate(ctx context.Context) {
	ioCtx, cancel := m.ioContext(ctx)
	rec, found, err := m.store.Read(ioCtx)
	cancel()
	if err != nil {
		m.metrics.Inc(MetricStoreFailure)
		m.log.Warn().Err(err).Msg("tabAuth: token store read failed, starting unauthenticated")
		return
	}
	if !found || strings.TrimSpace(rec.AccessToken) == "" {
		return
	}

	var id *Identity
	if rec.Username != "" {
		id = &Identity{Username: rec.Username, IsAdmin: rec.IsAdmin}
	}

	m.mu.Lock()
	if m.closed || m.epoch != 0 || m.current.Load().Authenticated {
		m.mu.Unlock()
		return
	}
	m.epoch++
	s := newSession(rec.AccessToken, id, m.epoch)
	m.setBridgeLocked(ctx, s)
	m.publishLocked(s)
	m.restartSchedulerLocked()
	m.mu.Unlock()

	m.metrics.Inc(MetricHydrated)
	m.log.Info().Str("username", s.Username()).Msg("tabAuth: session hydrated from token store")
	m.emit(ctx, EventHydrated, s, nil, nil)
}

// LoginWithPassword exchanges credentials with the issuer and logs in with the
// returned access token and admin flag.
func (m *Manager) LoginWithPassword(ctx context.Context, username, password string) (Session, error) {
	if m.isClosed() {
		return Session{}, ErrManagerClosed
	}

	callCtx, cancel := m.ioContext(ctx)
	res := flows.RunPasswordLogin(callCtx, username, password, m.flows.Login)
	cancel()

	if res.Failure != flows.LoginFailureNone {
		err := mapLoginFailure(res)
		if res.Failure == flows.LoginFailureTransport || res.Failure == flows.LoginFailureUnavailable {
			m.metrics.Inc(MetricLoginFailure)
		} else {
			m.metrics.Inc(MetricLoginRejected)
		}
		m.log.Warn().Err(res.Err).Str("username", res.Username).Msg("tabAuth: password login failed")
		m.emit(ctx, EventLoginFailed, &Session{Identity: &Identity{Username: res.Username}}, err, nil)
		return Session{}, err
	}

	if err := m.Login(ctx, res.AccessToken, Identity{Username: res.Username, IsAdmin: res.IsAdmin}); err != nil {
		return Session{}, err
	}
	return m.GetSession(), nil
}

func mapLoginFailure(res flows.LoginResult) error {
	switch res.Failure {
	case flows.LoginFailureInvalidInput:
		return ErrCredentialsRequired
	case flows.LoginFailureRejected:
		return errors.Join(ErrInvalidCredentials, res.Err)
	case flows.LoginFailureMalformed:
		return errors.Join(ErrMalformedGrant, res.Err)
	default:
		return errors.Join(ErrCredentialExchangeUnavailable, res.Err)
	}
}

// SyncMarker rewrites the bridge marker from the current session. BFF
// deployments using a [bridge.ResponseBridge] call it once per request so a
// renewal that happened between requests reaches the browser.
// Failures are logged and counted like any other bridge update, and returned.
func (m *Manager) SyncMarker(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.setBridgeLocked(ctx, m.current.Load())
}

// Close stops renewal, flushes pending events and closes watch channels. The
// persisted session is kept so a later Manager for the same tab can hydrate it.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.stopSchedulerLocked()
	m.mu.Unlock()

	m.cancelBase()
	m.audit.Close()
	m.closeWatchers()
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// ioContext bounds store, bridge and issuer calls. Values on ctx (such as a
// response writer for the bridge) are kept; its cancellation is not.
func (m *Manager) ioContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(context.WithoutCancel(ctx), m.cfg.Token.RequestTimeout)
}

func (m *Manager) writeStoreLocked(ctx context.Context, s *Session) {
	ioCtx, cancel := m.ioContext(ctx)
	defer cancel()

	rec := tokenstore.Record{AccessToken: s.AccessToken, Username: s.Username(), IsAdmin: s.IsAdmin()}
	if err := m.store.Write(ioCtx, rec); err != nil {
		m.metrics.Inc(MetricStoreFailure)
		m.log.Warn().Err(err).Msg("tabAuth: token store write failed")
	}
}

func (m *Manager) clearStoreLocked(ctx context.Context) {
	ioCtx, cancel := m.ioContext(ctx)
	defer cancel()

	if err := m.store.Clear(ioCtx); err != nil {
		m.metrics.Inc(MetricStoreFailure)
		m.log.Warn().Err(err).Msg("tabAuth: token store clear failed")
	}
}

func (m *Manager) setBridgeLocked(ctx context.Context, s *Session) error {
	ioCtx, cancel := m.ioContext(ctx)
	defer cancel()

	var err error
	if s.Authenticated {
		err = m.bridge.Set(ioCtx, s.AccessToken)
	} else {
		err = m.bridge.Clear(ioCtx)
	}
	switch {
	case err == nil:
	case errors.Is(err, bridge.ErrNoResponseWriter):
		m.log.Debug().Msg("tabAuth: bridge update deferred until next request")
	default:
		m.metrics.Inc(MetricBridgeFailure)
		m.log.Warn().Err(err).Msg("tabAuth: bridge update failed")
	}
	return err
}

func (m *Manager) restartSchedulerLocked() {
	m.stopSchedulerLocked()

	epoch := m.epoch
	s, err := refresh.NewScheduler(refresh.Config{
		Period: m.cfg.RefreshPeriod(),
		Clock:  m.clock,
		OnSkip: func() { m.metrics.Inc(MetricRefreshSkipped) },
	}, func(ctx context.Context) {
		m.runRefresh(ctx, epoch)
	})
	if err != nil {
		m.log.Error().Err(err).Msg("tabAuth: refresh scheduler not started")
		return
	}
	if err := s.Start(m.baseCtx); err != nil {
		m.log.Error().Err(err).Msg("tabAuth: refresh scheduler not started")
		return
	}
	m.sched = s
}

func (m *Manager) stopSchedulerLocked() {
	if m.sched == nil {
		return
	}
	m.sched.Stop()
	m.sched = nil
}

// RefreshRunning reports whether the renewal scheduler is active.
func (m *Manager) RefreshRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sched != nil && m.sched.Running()
}
