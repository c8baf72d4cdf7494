package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds limiter tuning.
type Config struct {
	// MaxFailures is how many failed logins a key may record per window.
	MaxFailures int
	Window      time.Duration
	// PerIP also counts failures by client IP.
	PerIP  bool
	Prefix string
}

// Limiter enforces failed-login budgets with Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a [Limiter] backed by client.
func New(client redis.UniversalClient, cfg Config) (*Limiter, error) {
	if client == nil {
		return nil, errors.New("rate: redis client required")
	}
	if cfg.MaxFailures <= 0 {
		return nil, errors.New("rate: max failures must be > 0")
	}
	if cfg.Window <= 0 {
		return nil, errors.New("rate: window must be > 0")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "rl"
	}
	return &Limiter{redis: client, config: cfg}, nil
}

func (l *Limiter) userKey(username string) string { return l.config.Prefix + ":lf:" + username }
func (l *Limiter) ipKey(ip string) string         { return l.config.Prefix + ":lfi:" + ip }

// Allow reports [ErrRateLimited] when username, or ip with PerIP set, has no
// budget left in the current window.
func (l *Limiter) Allow(ctx context.Context, username, ip string) error {
	if err := l.checkCounter(ctx, l.userKey(username)); err != nil {
		return err
	}
	if l.config.PerIP && ip != "" {
		if err := l.checkCounter(ctx, l.ipKey(ip)); err != nil {
			return err
		}
	}
	return nil
}

// Fail records one failed login.
func (l *Limiter) Fail(ctx context.Context, username, ip string) error {
	if _, err := l.incrementWithTTL(ctx, l.userKey(username)); err != nil {
		return err
	}
	if l.config.PerIP && ip != "" {
		if _, err := l.incrementWithTTL(ctx, l.ipKey(ip)); err != nil {
			return err
		}
	}
	return nil
}

// Reset clears the username counter after a successful login. The IP
// counter is left to expire.
func (l *Limiter) Reset(ctx context.Context, username string) error {
	if err := l.redis.Del(ctx, l.userKey(username)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Failures returns the current failure count for username. Missing keys
// return zero.
func (l *Limiter) Failures(ctx context.Context, username string) (int, error) {
	count, err := l.redis.Get(ctx, l.userKey(username)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (l *Limiter) checkCounter(ctx context.Context, key string) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count >= int64(l.config.MaxFailures) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed window: only the first hit sets the expiry.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return count, nil
}
