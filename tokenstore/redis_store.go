package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fieldAccessToken = "accessToken"
	fieldUsername    = "username"
	fieldIsAdmin     = "isAdmin"
)

// RedisStore keeps one tab's record as a Redis hash.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	tabID  string
	ttl    time.Duration
}

// NewRedisStore creates a [RedisStore] for one tab. prefix sets the key
// namespace; ttl bounds how long an abandoned tab's record lives (0 disables
// expiry).
//
//	Performance: Write is one MULTI/EXEC round-trip, Read is one HGETALL.
func NewRedisStore(client redis.UniversalClient, prefix, tabID string, ttl time.Duration) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("tokenstore: redis client required")
	}
	tabID = strings.TrimSpace(tabID)
	if tabID == "" {
		return nil, errors.New("tokenstore: tab id required")
	}
	if ttl < 0 {
		return nil, errors.New("tokenstore: ttl must be >= 0")
	}
	if prefix == "" {
		prefix = "tab"
	}

	return &RedisStore{
		redis:  client,
		prefix: prefix,
		tabID:  tabID,
		ttl:    ttl,
	}, nil
}

func (s *RedisStore) key() string {
	return s.prefix + ":tab:" + s.tabID
}

// Write replaces the stored record. DEL and HSET run in one transaction so a
// concurrent HGETALL sees either the previous record or the new one.
func (s *RedisStore) Write(ctx context.Context, rec Record) error {
	key := s.key()

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			fieldAccessToken, rec.AccessToken,
			fieldUsername, rec.Username,
			fieldIsAdmin, strconv.FormatBool(rec.IsAdmin),
		)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return nil
}

// Read returns the stored record. A hash without an access token counts as
// absent.
func (s *RedisStore) Read(ctx context.Context) (Record, bool, error) {
	fields, err := s.redis.HGetAll(ctx, s.key()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	token := fields[fieldAccessToken]
	if token == "" {
		return Record{}, false, nil
	}

	isAdmin, _ := strconv.ParseBool(fields[fieldIsAdmin])
	return Record{
		AccessToken: token,
		Username:    fields[fieldUsername],
		IsAdmin:     isAdmin,
	}, true, nil
}

// Clear deletes the record. Deleting a missing key is not an error.
func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.redis.Del(ctx, s.key()).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *RedisStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return time.Since(start), nil
}
