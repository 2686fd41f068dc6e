package cachebackend

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type localEntry struct {
	value     []byte
	expiresAt time.Time
}

// Local is an in-process LRU Backend. It only sees this process's writes, so
// it suits single-instance deployments and tests.
type Local struct {
	cache *lru.Cache[string, localEntry]
	now   func() time.Time
}

// NewLocal creates a Local backend holding at most size entries.
func NewLocal(size int) (*Local, error) {
	cache, err := lru.New[string, localEntry](size)
	if err != nil {
		return nil, fmt.Errorf("create local cache: %w", err)
	}
	return &Local{cache: cache, now: time.Now}, nil
}

func (l *Local) Delete(_ context.Context, key string) error {
	l.cache.Remove(key)
	return nil
}

func (l *Local) DeleteMany(_ context.Context, keys ...string) error {
	for _, key := range keys {
		l.cache.Remove(key)
	}
	return nil
}

func (l *Local) Get(_ context.Context, key string) ([]byte, bool, error) {
	entry, ok := l.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && !l.now().Before(entry.expiresAt) {
		l.cache.Remove(key)
		return nil, false, nil
	}
	return entry.value, true, nil
}

// Set stores value; a non-positive ttl keeps it until evicted.
func (l *Local) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	entry := localEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = l.now().Add(ttl)
	}
	l.cache.Add(key, entry)
	return nil
}

// Len reports the number of live and not yet reaped entries.
func (l *Local) Len() int {
	return l.cache.Len()
}
