package tabAuth

import (
	"context"
	"fmt"

	"github.com/quillpress/tabAuth/internal/flows"
)

// runRefresh is one scheduler firing for the session established at epoch.
// The issuer call runs without the lock; the result is applied only if the
// session it was started for is still current.
func (m *Manager) runRefresh(ctx context.Context, epoch uint64) {
	snap := m.current.Load()
	if !snap.Authenticated || snap.Epoch != epoch {
		return
	}

	budget := m.cfg.Token.RequestTimeout
	if m.cfg.Refresh.MaxRetries > 0 {
		budget = m.cfg.Token.SafetyMargin
	}
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), budget)
	defer cancel()

	res := flows.RunRefresh(callCtx, m.flows.Refresh)
	m.metrics.Observe(MetricRefreshLatency, res.Latency)

	if res.Failure == flows.RefreshFailureNone {
		m.applyRefresh(ctx, epoch, snap.AccessToken, res.AccessToken)
		return
	}

	if res.Failure == flows.RefreshFailureCanceled {
		m.metrics.Inc(MetricRefreshStale)
		return
	}

	m.metrics.Inc(MetricRefreshFailure)
	m.log.Warn().
		Err(res.Err).
		Str("failure", res.Failure.String()).
		Int("attempts", res.Attempts).
		Msg("tabAuth: session refresh failed")

	cause := fmt.Errorf("%w: %s: %w", ErrRefreshFailed, res.Failure, res.Err)
	m.forceLogout(ctx, epoch, cause)
}

func (m *Manager) applyRefresh(ctx context.Context, epoch uint64, prevToken, nextToken string) {
	m.mu.Lock()
	cur := m.current.Load()
	if m.closed || m.epoch != epoch || !cur.Authenticated || cur.AccessToken != prevToken {
		m.mu.Unlock()
		m.metrics.Inc(MetricRefreshStale)
		m.log.Debug().Err(ErrStaleRefresh).Uint64("epoch", epoch).Msg("tabAuth: refresh result discarded")
		return
	}

	s := newSession(nextToken, cur.Identity, epoch)
	m.writeStoreLocked(ctx, s)
	m.setBridgeLocked(ctx, s)
	m.publishLocked(s)
	m.mu.Unlock()

	m.metrics.Inc(MetricRefreshSuccess)
	m.log.Debug().Uint64("epoch", epoch).Msg("tabAuth: session refreshed")
	m.emit(m.baseCtx, EventRefreshed, s, nil, nil)
}
