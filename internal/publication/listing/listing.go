// Package listing serves published listings through the shared cache. Entries
// are dropped by the invalidation hook (their keys are part of the configured
// flat keys) and otherwise expire after the configured TTL.
package listing

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"herald/internal/publication/cachebackend"
	"herald/internal/publication/metrics"
	"herald/internal/publication/models"
	"herald/pkg/requestcontext"
)

const keyPrefix = "published.list"

// Key is the cache key of the listing for tag; the empty tag is the listing
// of every kind.
func Key(tag models.EntityType) string {
	if tag == "" {
		return keyPrefix
	}
	return keyPrefix + "." + string(tag)
}

// Keys returns the all-kinds key followed by one key per tag.
func Keys(tags []models.EntityType) []string {
	keys := make([]string, 0, len(tags)+1)
	keys = append(keys, Key(""))
	for _, tag := range tags {
		keys = append(keys, Key(tag))
	}
	return keys
}

type Source interface {
	PublishedRecords(ctx context.Context, filter models.Filter) ([]*models.Record, error)
	PresentAll(ctx context.Context, records []*models.Record) ([]models.Presentation, error)
	Tags() []models.EntityType
}

// Cache is a read-through cache in front of Source. Cache failures degrade to
// reading the source directly.
type Cache struct {
	backend cachebackend.Backend
	source  Source
	ttl     time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Cache)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

// New builds a Cache. A nil backend disables caching.
func New(backend cachebackend.Backend, source Source, ttl time.Duration, opts ...Option) *Cache {
	c := &Cache{backend: backend, source: source, ttl: ttl, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Published returns the presented listing for tag, newest first.
func (c *Cache) Published(ctx context.Context, tag models.EntityType) ([]models.Presentation, error) {
	key := Key(tag)
	if c.backend != nil {
		if cached, ok := c.lookup(ctx, key); ok {
			return cached, nil
		}
	}

	records, err := c.source.PublishedRecords(ctx, models.Filter{Type: tag})
	if err != nil {
		return nil, err
	}
	presented, err := c.source.PresentAll(ctx, records)
	if err != nil {
		return nil, err
	}
	if c.backend != nil {
		c.store(ctx, key, presented)
	}
	return presented, nil
}

func (c *Cache) lookup(ctx context.Context, key string) ([]models.Presentation, bool) {
	raw, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		c.metrics.ObserveListingCache("error")
		c.logger.WarnContext(ctx, "listing cache read failed",
			"request_id", requestcontext.RequestID(ctx),
			"key", key,
			"error", err,
		)
		return nil, false
	}
	if !ok {
		c.metrics.ObserveListingCache("miss")
		return nil, false
	}
	var out []models.Presentation
	if err := json.Unmarshal(raw, &out); err != nil {
		c.metrics.ObserveListingCache("error")
		c.logger.WarnContext(ctx, "discarding undecodable listing cache entry", "key", key, "error", err)
		return nil, false
	}
	c.metrics.ObserveListingCache("hit")
	now := requestcontext.Now(ctx)
	for i := range out {
		out[i].Refresh(now)
	}
	return out, true
}

func (c *Cache) store(ctx context.Context, key string, presented []models.Presentation) {
	raw, err := json.Marshal(presented)
	if err != nil {
		c.logger.WarnContext(ctx, "listing not cached", "key", key, "error", err)
		return
	}
	if err := c.backend.Set(ctx, key, raw, c.ttl); err != nil {
		c.logger.WarnContext(ctx, "listing cache write failed",
			"request_id", requestcontext.RequestID(ctx),
			"key", key,
			"error", err,
		)
	}
}

// Invalidate drops every listing key. Deletes call it; writes are covered by
// the invalidation hook.
func (c *Cache) Invalidate(ctx context.Context) {
	if c.backend == nil {
		return
	}
	if err := c.backend.DeleteMany(ctx, Keys(c.source.Tags())...); err != nil {
		c.logger.WarnContext(ctx, "listing cache invalidation failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
}
