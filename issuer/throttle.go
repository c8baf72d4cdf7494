package issuer

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quillpress/tabAuth/internal/rate"
)

// ErrThrottled is what a [LoginLimiter] returns when a caller is out of
// attempts.
var ErrThrottled = rate.ErrRateLimited

// LoginLimiter budgets failed password logins.
type LoginLimiter interface {
	// Allow returns an error wrapping [ErrThrottled] once username or ip has
	// no attempts left. Other errors mean the limiter is unavailable.
	Allow(ctx context.Context, username, ip string) error
	Fail(ctx context.Context, username, ip string) error
	Reset(ctx context.Context, username string) error
}

// ThrottleConfig configures [NewRedisLoginLimiter].
type ThrottleConfig struct {
	MaxFailures int
	Window      time.Duration
	PerIP       bool
}

// DefaultThrottleConfig allows five failures per username in fifteen minutes.
func DefaultThrottleConfig() ThrottleConfig {
	return ThrottleConfig{MaxFailures: 5, Window: 15 * time.Minute}
}

// NewRedisLoginLimiter returns a [LoginLimiter] keeping fixed-window
// counters under prefix.
func NewRedisLoginLimiter(client redis.UniversalClient, prefix string, cfg ThrottleConfig) (LoginLimiter, error) {
	return rate.New(client, rate.Config{
		MaxFailures: cfg.MaxFailures,
		Window:      cfg.Window,
		PerIP:       cfg.PerIP,
		Prefix:      prefix,
	})
}
