package tabAuth

import (
	"context"
	"strconv"

	"github.com/quillpress/tabAuth/internal/flows"
)

// Logout ends the session. When one exists it makes a single best-effort
// invalidation call, then clears the token store, the bridge and the session
// and stops renewal. Invalidation failures are logged only. Logout is
// idempotent; a concurrent Logout waits for the one already in progress.
func (m *Manager) Logout(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ended := m.endSession(ctx, false, 0); ended {
		m.metrics.Inc(MetricLogout)
	}
}

// forceLogout ends the session established at epoch after a failed renewal.
// Nothing happens if that session is already gone.
func (m *Manager) forceLogout(ctx context.Context, epoch uint64, cause error) {
	prev, ended := m.endSession(ctx, true, epoch)
	if !ended {
		m.metrics.Inc(MetricRefreshStale)
		return
	}

	m.metrics.Inc(MetricForcedLogout)
	m.log.Warn().Err(cause).Str("username", prev.Username()).Msg("tabAuth: session ended by failed refresh")
	m.emit(m.baseCtx, EventForcedLogout, &prev, cause, nil)
	if m.onForcedLogout != nil {
		m.onForcedLogout(prev.clone(), cause)
	}
}

// endSession runs the shared logout path. When forced, it only proceeds if
// the session is still the one established at epoch. It returns the ended
// session and whether this call ended it.
func (m *Manager) endSession(ctx context.Context, forced bool, epoch uint64) (Session, bool) {
	m.mu.Lock()
	if forced && (m.closed || m.epoch != epoch) {
		m.mu.Unlock()
		return Session{}, false
	}
	if p := m.pending; p != nil && p.epoch == m.epoch {
		m.mu.Unlock()
		if !forced {
			select {
			case <-p.done:
			case <-ctx.Done():
			}
		}
		return Session{}, false
	}

	prev := m.current.Load()
	if !prev.Authenticated {
		m.stopSchedulerLocked()
		m.mu.Unlock()
		return Session{}, false
	}

	// Bumping the epoch fences any renewal in flight for prev.
	m.epoch++
	p := &pendingLogout{epoch: m.epoch, done: make(chan struct{})}
	m.pending = p
	m.stopSchedulerLocked()
	m.mu.Unlock()

	inv := flows.RunInvalidate(ctx, true, m.flows.Logout)
	if inv.Err != nil {
		m.metrics.Inc(MetricInvalidationFailure)
		m.log.Warn().Err(inv.Err).Msg("tabAuth: renewal credential invalidation failed")
		m.emit(m.baseCtx, EventInvalidationFailed, prev, inv.Err, nil)
	}

	m.mu.Lock()
	if m.pending == p {
		m.pending = nil
	}
	// A login that replaced the session while invalidation was in flight
	// bumped the epoch again; that session stands.
	if m.epoch == p.epoch {
		cleared := newSession("", nil, m.epoch)
		m.clearStoreLocked(ctx)
		m.setBridgeLocked(ctx, cleared)
		m.publishLocked(cleared)
	}
	close(p.done)
	m.mu.Unlock()

	if !forced {
		m.log.Info().Str("username", prev.Username()).Msg("tabAuth: logged out")
		m.emit(m.baseCtx, EventLogout, prev, nil, map[string]string{
			"invalidated": strconv.FormatBool(inv.Attempted && inv.Err == nil),
		})
	}
	return prev.clone(), true
}
