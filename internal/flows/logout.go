package flows

import (
	"context"
	"errors"
	"time"
)

// Invalidator revokes the server-side renewal credential.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// LogoutDeps captures invalidation dependencies.
type LogoutDeps struct {
	Invalidator Invalidator
	Timeout     time.Duration
}

// InvalidateResult reports the best-effort invalidation outcome.
type InvalidateResult struct {
	Attempted bool
	Err       error
}

// RunInvalidate makes one invalidation call when a session existed. It never
// retries; callers log Err and carry on with logout.
func RunInvalidate(ctx context.Context, hadSession bool, deps LogoutDeps) InvalidateResult {
	if !hadSession || deps.Invalidator == nil {
		return InvalidateResult{}
	}

	callCtx := context.WithoutCancel(ctx)
	if deps.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, deps.Timeout)
		defer cancel()
	}

	err := deps.Invalidator.Invalidate(callCtx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		err = errors.Join(errors.New("flows: invalidation timed out"), err)
	}
	return InvalidateResult{Attempted: true, Err: err}
}
