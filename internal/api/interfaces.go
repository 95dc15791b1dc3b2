// Package api exposes the takedown case workflow over HTTP.
package api

import (
	"context"
)

// RateLimiter handles rate limiting.
type RateLimiter interface {
	// Allow checks if a request is allowed.
	Allow(ctx context.Context, key string) (bool, error)
	// Reset resets rate limit for a key.
	Reset(ctx context.Context, key string) error
	// GetRemaining returns remaining requests.
	GetRemaining(ctx context.Context, key string) (int, error)
}
