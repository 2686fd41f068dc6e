// Package publisher emits audit events to a store.
//
// Compliance events are fail-closed: Emit returns the store error and the
// caller must fail its operation. Operations events are fail-open: a store
// error is logged and swallowed.
package publisher

import (
	"context"
	"fmt"
	"log/slog"

	audit "herald/pkg/platform/audit"
	"herald/pkg/platform/middleware/metadata"
	"herald/pkg/requestcontext"
)

type Publisher struct {
	store  audit.Store
	logger *slog.Logger
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit fills the category, timestamp, request ID and actor when unset, then
// persists the event. The actor is the client IP recorded by the metadata
// middleware.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Action == "" {
		return fmt.Errorf("audit event requires Action")
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.ActorID == "" {
		if ip := metadata.GetClientIP(ctx); ip != "" {
			event.ActorID = "ip:" + ip
		}
	}

	if err := p.store.Append(ctx, event); err != nil {
		if event.Category == audit.CategoryCompliance {
			p.logger.ErrorContext(ctx, "compliance audit failed",
				"action", event.Action,
				"subject", event.Subject,
				"error", err,
			)
			return fmt.Errorf("audit persistence failed: %w", err)
		}
		p.logger.WarnContext(ctx, "audit event dropped",
			"action", event.Action,
			"subject", event.Subject,
			"error", err,
		)
	}
	return nil
}

func (p *Publisher) ListBySubject(ctx context.Context, subject string) ([]audit.Event, error) {
	return p.store.ListBySubject(ctx, subject)
}

func (p *Publisher) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	return p.store.ListRecent(ctx, limit)
}
