package cachebackend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"herald/pkg/platform/circuit"
	"herald/pkg/platform/sentinel"
)

// Guarded puts a circuit breaker in front of a remote Backend. While the
// breaker is open calls fail fast with sentinel.ErrUnavailable instead of
// waiting on network timeouts; callers already treat that as a miss or a
// logged invalidation failure.
type Guarded struct {
	inner   Backend
	breaker *circuit.Breaker
	logger  *slog.Logger
}

func NewGuarded(inner Backend, breaker *circuit.Breaker, logger *slog.Logger) *Guarded {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guarded{inner: inner, breaker: breaker, logger: logger}
}

func (g *Guarded) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := g.allow(); err != nil {
		return nil, false, err
	}
	value, ok, err := g.inner.Get(ctx, key)
	g.record(ctx, err)
	return value, ok, err
}

func (g *Guarded) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := g.allow(); err != nil {
		return err
	}
	err := g.inner.Set(ctx, key, value, ttl)
	g.record(ctx, err)
	return err
}

func (g *Guarded) Delete(ctx context.Context, key string) error {
	if err := g.allow(); err != nil {
		return err
	}
	err := g.inner.Delete(ctx, key)
	g.record(ctx, err)
	return err
}

func (g *Guarded) DeleteMany(ctx context.Context, keys ...string) error {
	if err := g.allow(); err != nil {
		return err
	}
	err := g.inner.DeleteMany(ctx, keys...)
	g.record(ctx, err)
	return err
}

func (g *Guarded) allow() error {
	if g.breaker.Allow() {
		return nil
	}
	return fmt.Errorf("cache %s: circuit open: %w", g.breaker.Name(), sentinel.ErrUnavailable)
}

// record only counts reachability failures; anything else says nothing about
// the backend's health.
func (g *Guarded) record(ctx context.Context, err error) {
	if err == nil {
		if _, change := g.breaker.RecordSuccess(); change.Closed {
			g.logger.InfoContext(ctx, "cache circuit closed", "cache", g.breaker.Name())
		}
		return
	}
	if !errors.Is(err, sentinel.ErrUnavailable) {
		return
	}
	if _, change := g.breaker.RecordFailure(); change.Opened {
		g.logger.WarnContext(ctx, "cache circuit opened", "cache", g.breaker.Name(), "error", err)
	}
}
