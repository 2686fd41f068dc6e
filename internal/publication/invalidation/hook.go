// Package invalidation runs the side effects of a publication write: clearing
// the shared cache and refreshing the entity's published-at mirror.
package invalidation

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"herald/internal/platform/config"
	"herald/internal/publication/metrics"
	"herald/internal/publication/models"
	"herald/pkg/platform/sentinel"
	"herald/pkg/requestcontext"
)

// Deleter removes cache keys. cachebackend.Redis and cachebackend.Local
// satisfy it.
type Deleter interface {
	Delete(ctx context.Context, key string) error
	DeleteMany(ctx context.Context, keys ...string) error
}

// EntitySaver persists an entity after its mirror field changed.
type EntitySaver interface {
	Save(ctx context.Context, e models.Entity) error
}

// Hook is invoked after every successful create or update of a record. It
// never fails the write: every error is logged and counted.
type Hook struct {
	cache   Deleter
	config  config.Invalidation
	saver   EntitySaver
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Hook.
type Option func(*Hook)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Hook) {
		h.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Hook) {
		h.metrics = m
	}
}

// New builds a hook. A nil cache skips cache clearing; a nil saver skips
// mirror persistence.
func New(cache Deleter, cfg config.Invalidation, saver EntitySaver, opts ...Option) *Hook {
	h := &Hook{
		cache:  cache,
		config: cfg,
		saver:  saver,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// TemplateKeys returns the configured fragment keys in name order.
func (h *Hook) TemplateKeys() []string {
	names := make([]string, 0, len(h.config.ClearTemplateKeys))
	for name := range h.config.ClearTemplateKeys {
		names = append(names, name)
	}
	sort.Strings(names)
	keys := make([]string, 0, len(names))
	for _, name := range names {
		keys = append(keys, FragmentKey(name, h.config.ClearTemplateKeys[name]))
	}
	return keys
}

// AfterSave clears the configured cache keys, then mirrors publish_at onto
// the entity when the record is approved.
func (h *Hook) AfterSave(ctx context.Context, rec *models.Record, entity models.Entity) {
	if rec == nil {
		return
	}
	start := time.Now()
	defer h.metrics.ObserveInvalidation(start)

	h.clearCache(ctx, rec)
	h.mirror(ctx, rec, entity)
}

func (h *Hook) clearCache(ctx context.Context, rec *models.Record) {
	if h.cache == nil {
		return
	}
	if len(h.config.ClearKeys) > 0 {
		if err := h.cache.DeleteMany(ctx, h.config.ClearKeys...); err != nil {
			h.fail(ctx, "clear_keys", rec, err)
		} else {
			h.metrics.AddKeysCleared(len(h.config.ClearKeys))
		}
	}
	for _, key := range h.TemplateKeys() {
		if err := h.cache.Delete(ctx, key); err != nil {
			h.fail(ctx, "clear_template_key", rec, err, "key", key)
			continue
		}
		h.metrics.AddKeysCleared(1)
	}
}

func (h *Hook) mirror(ctx context.Context, rec *models.Record, entity models.Entity) {
	if !rec.Approved || entity == nil {
		return
	}
	m, ok := entity.(models.PublishedAtMirror)
	if !ok {
		return
	}
	m.SetPublishedAt(rec.PublishAt)
	if h.saver == nil {
		return
	}
	if err := h.saver.Save(ctx, entity); err != nil {
		if errors.Is(err, sentinel.ErrNotSupported) {
			h.logger.WarnContext(ctx, "entity kind has no saver, published-at mirror not persisted",
				"request_id", requestcontext.RequestID(ctx),
				"entity", rec.Entity.String(),
			)
			return
		}
		h.fail(ctx, "mirror_save", rec, err)
		return
	}
	h.metrics.IncrementMirrorUpdate()
}

func (h *Hook) fail(ctx context.Context, step string, rec *models.Record, err error, attrs ...any) {
	h.metrics.IncrementInvalidationFailure(step)
	args := append([]any{
		"request_id", requestcontext.RequestID(ctx),
		"step", step,
		"entity", rec.Entity.String(),
		"error", err,
	}, attrs...)
	h.logger.ErrorContext(ctx, "post-write hook step failed", args...)
}
