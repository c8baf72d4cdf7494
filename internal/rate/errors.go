package rate

import "errors"

var (
	// ErrRateLimited is returned once a key has used up its failure budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps backend failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
