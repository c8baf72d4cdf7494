package flows

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RefreshFailureKind classifies renewal failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureTransport
	RefreshFailureRejected
	RefreshFailureMalformed
	RefreshFailureCanceled
	RefreshFailureUnavailable
)

func (k RefreshFailureKind) String() string {
	switch k {
	case RefreshFailureNone:
		return "none"
	case RefreshFailureTransport:
		return "transport"
	case RefreshFailureRejected:
		return "rejected"
	case RefreshFailureMalformed:
		return "malformed"
	case RefreshFailureCanceled:
		return "canceled"
	case RefreshFailureUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Refresher exchanges the renewal credential for a new access token.
type Refresher interface {
	Refresh(ctx context.Context) (string, error)
}

// RefreshPolicy bounds retries of a failed renewal. MaxRetries 0 means a single
// attempt.
type RefreshPolicy struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration
}

// RefreshDeps captures renewal flow dependencies.
type RefreshDeps struct {
	Refresher Refresher
	Policy    RefreshPolicy
	// AttemptTimeout bounds each call; 0 leaves only ctx's deadline.
	AttemptTimeout time.Duration
	IsMalformed func(error) bool
	IsRejected  func(error) bool
	Now         func() time.Time
	// OnRetry is called before each backoff wait.
	OnRetry func(err error, wait time.Duration)
}

// RefreshResult carries either the new access token or failure metadata.
type RefreshResult struct {
	Failure     RefreshFailureKind
	Err         error
	AccessToken string
	Attempts    int
	Latency     time.Duration
}

// RunRefresh performs one renewal, retrying transient failures per policy.
// Malformed responses and rejections are never retried.
func RunRefresh(ctx context.Context, deps RefreshDeps) RefreshResult {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	start := now()

	if deps.Refresher == nil {
		return RefreshResult{Failure: RefreshFailureUnavailable, Err: errors.New("flows: no refresher configured")}
	}

	var (
		token    string
		attempts int
	)
	op := func() error {
		attempts++
		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if deps.AttemptTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, deps.AttemptTimeout)
		}
		t, err := deps.Refresher.Refresh(callCtx)
		cancel()
		if err != nil {
			if classifyRefresh(err, deps) != RefreshFailureTransport {
				return backoff.Permanent(err)
			}
			return err
		}
		token = t
		return nil
	}

	err := backoff.RetryNotify(op, newBackOff(ctx, deps.Policy), deps.OnRetry)
	latency := now().Sub(start)
	if err != nil {
		return RefreshResult{
			Failure:  classifyRefresh(err, deps),
			Err:      err,
			Attempts: attempts,
			Latency:  latency,
		}
	}
	if token == "" {
		return RefreshResult{
			Failure:  RefreshFailureMalformed,
			Err:      errors.New("flows: empty access token"),
			Attempts: attempts,
			Latency:  latency,
		}
	}

	return RefreshResult{AccessToken: token, Attempts: attempts, Latency: latency}
}

func newBackOff(ctx context.Context, p RefreshPolicy) backoff.BackOffContext {
	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	eb.MaxElapsedTime = p.MaxElapsed

	retries := p.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(retries)), ctx)
}

func classifyRefresh(err error, deps RefreshDeps) RefreshFailureKind {
	switch {
	case err == nil:
		return RefreshFailureNone
	case errors.Is(err, context.Canceled):
		return RefreshFailureCanceled
	case deps.IsMalformed != nil && deps.IsMalformed(err):
		return RefreshFailureMalformed
	case deps.IsRejected != nil && deps.IsRejected(err):
		return RefreshFailureRejected
	default:
		return RefreshFailureTransport
	}
}
