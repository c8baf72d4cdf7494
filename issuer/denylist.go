package issuer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrDenylistUnavailable wraps backend failures.
var ErrDenylistUnavailable = errors.New("issuer: denylist unavailable")

// Denylist records consumed renewal token IDs until they would have expired
// anyway.
type Denylist interface {
	// Consume marks jti as used. It reports false if jti was already used.
	Consume(ctx context.Context, jti string, until time.Time) (bool, error)
}

// MemoryDenylist is a process-local [Denylist].
type MemoryDenylist struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryDenylist returns an empty [MemoryDenylist]. A nil now defaults to
// time.Now.
func NewMemoryDenylist(now func() time.Time) *MemoryDenylist {
	if now == nil {
		now = time.Now
	}
	return &MemoryDenylist{entries: make(map[string]time.Time), now: now}
}

// Consume implements [Denylist]. Expired entries are purged on each call.
func (d *MemoryDenylist) Consume(_ context.Context, jti string, until time.Time) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for k, exp := range d.entries {
		if !exp.After(now) {
			delete(d.entries, k)
		}
	}

	if _, used := d.entries[jti]; used {
		return false, nil
	}
	d.entries[jti] = until
	return true, nil
}

// Len returns the number of live entries.
func (d *MemoryDenylist) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// RedisDenylist stores consumed IDs as expiring keys so several issuer
// replicas share one view.
type RedisDenylist struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisDenylist creates a [RedisDenylist]. Keys are prefix:denied:<jti>.
func NewRedisDenylist(client redis.UniversalClient, prefix string) (*RedisDenylist, error) {
	if client == nil {
		return nil, errors.New("issuer: redis client required")
	}
	if prefix == "" {
		prefix = "issuer"
	}
	return &RedisDenylist{redis: client, prefix: prefix, now: time.Now}, nil
}

func (d *RedisDenylist) key(jti string) string {
	return d.prefix + ":denied:" + jti
}

// Consume implements [Denylist] with SET NX so two racing refreshes with the
// same cookie cannot both win.
func (d *RedisDenylist) Consume(ctx context.Context, jti string, until time.Time) (bool, error) {
	ttl := until.Sub(d.now())
	if ttl < time.Second {
		ttl = time.Second
	}

	ok, err := d.redis.SetNX(ctx, d.key(jti), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrDenylistUnavailable, err)
	}
	return ok, nil
}
