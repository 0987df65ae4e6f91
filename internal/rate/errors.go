package rate

import "errors"

var (
	// ErrRateLimited is returned once an origin exceeds its window budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrUnavailable wraps any failure talking to the counter store.
	ErrUnavailable = errors.New("rate limiter unavailable")
)
