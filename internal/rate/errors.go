package rate

import "errors"

var (
	// ErrRateLimited means the caller exhausted its attempts for the window.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps Redis failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
