package main

import (
	"context"
	"fmt"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// openRedis connects to addr, or to an in-process miniredis when addr is
// "miniredis". The returned cleanup closes both.
func openRedis(ctx context.Context, addr string, log zerolog.Logger) (redis.UniversalClient, func(), error) {
	if addr == "miniredis" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		log.Info().Str("addr", mr.Addr()).Msg("tabAuth: using in-process redis")
		return client, func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis at %s: %w", addr, err)
	}
	log.Info().Str("addr", addr).Msg("tabAuth: using redis")
	return client, func() { _ = client.Close() }, nil
}
