// Package cachebackend holds the shared cache the publication write path
// invalidates and the listing read path fills.
package cachebackend

import (
	"context"
	"time"
)

// Deleter is what the invalidation hook needs from a cache.
type Deleter interface {
	Delete(ctx context.Context, key string) error
	DeleteMany(ctx context.Context, keys ...string) error
}

// Backend is a byte-valued cache with per-entry expiry.
type Backend interface {
	Deleter
	// Get reports a miss as (nil, false, nil).
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
