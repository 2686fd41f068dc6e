package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"herald/internal/publication/metrics"
	"herald/internal/publication/models"
	"herald/internal/publication/registry"
	"herald/internal/publication/store"
	dErrors "herald/pkg/domain-errors"
	audit "herald/pkg/platform/audit"
	"herald/pkg/platform/sentinel"
	"herald/pkg/requestcontext"
)

type PublicationStore interface {
	Create(ctx context.Context, rec *models.Record) error
	Upsert(ctx context.Context, ref models.EntityRef, build store.BuildFunc) (*models.Record, error)
	FindByEntity(ctx context.Context, ref models.EntityRef) (*models.Record, error)
	FindByID(ctx context.Context, id models.PublicationID) (*models.Record, error)
	ListPublished(ctx context.Context, now time.Time, filter models.Filter) ([]*models.Record, error)
	List(ctx context.Context) ([]*models.Record, error)
	Previous(ctx context.Context, rec *models.Record) (*models.Record, error)
	Next(ctx context.Context, rec *models.Record) (*models.Record, error)
	Delete(ctx context.Context, id models.PublicationID) error
}

// PostWriteHook runs after every successful create or update. It must not fail
// the write.
type PostWriteHook interface {
	AfterSave(ctx context.Context, rec *models.Record, entity models.Entity)
}

// Transactor runs fn in a single transaction. Stores reached through ctx join
// it.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the publication core: record lifecycle, visibility queries and
// neighbor navigation over registered content kinds.
type Service struct {
	store          PublicationStore
	registry       *registry.Registry
	hook           PostWriteHook
	logger         *slog.Logger
	metrics        *metrics.Metrics
	auditPublisher AuditPublisher
	tx             Transactor
	tracer         trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

// WithTransactor groups a delete with its audit entry. Without one both run
// directly against the stores.
func WithTransactor(t Transactor) Option {
	return func(s *Service) {
		s.tx = t
	}
}

// New constructs a Service. hook may be nil.
func New(st PublicationStore, reg *registry.Registry, hook PostWriteHook, opts ...Option) *Service {
	s := &Service{
		store:    st,
		registry: reg,
		hook:     hook,
		logger:   slog.Default(),
		tracer:   otel.Tracer("herald/publication"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	ctx, span := s.tracer.Start(ctx, "publication."+op, trace.WithAttributes(attrs...))
	return ctx, span, time.Now()
}

func (s *Service) endSpan(span trace.Span, op string, start time.Time, err error) {
	if err != nil && !dErrors.HasCode(err, dErrors.CodeNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
	s.metrics.ObserveQuery(op, start)
}

// refOf identifies a caller-supplied entity.
func (s *Service) refOf(entity models.Entity) (models.EntityRef, error) {
	ref, err := s.registry.RefOf(entity)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.EntityRef{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "entity type is not registered")
		}
		return models.EntityRef{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to identify entity")
	}
	if err := ref.Validate(); err != nil {
		return models.EntityRef{}, dErrors.Wrap(err, dErrors.CodeValidation, "invalid entity reference")
	}
	return ref, nil
}

// Resolve loads the entity behind ref.
func (s *Service) Resolve(ctx context.Context, ref models.EntityRef) (models.Entity, error) {
	if !s.registry.Has(ref.Type) {
		return nil, dErrors.New(dErrors.CodeNotFound, "unknown entity type")
	}
	entity, err := s.registry.ResolveRef(ctx, ref)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "entity not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load entity")
	}
	return entity, nil
}

// Tags lists the registered content kinds.
func (s *Service) Tags() []models.EntityType {
	return s.registry.Tags()
}

func (s *Service) emitAudit(ctx context.Context, action audit.AuditEvent, rec *models.Record) error {
	if s.auditPublisher == nil {
		return nil
	}
	return s.auditPublisher.Emit(ctx, audit.Event{
		Timestamp: requestcontext.Now(ctx),
		Subject:   rec.Entity.String(),
		Action:    string(action),
		RecordID:  rec.ID.String(),
	})
}

func (s *Service) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.tx == nil {
		return fn(ctx)
	}
	return s.tx.RunInTx(ctx, fn)
}

func (s *Service) afterSave(ctx context.Context, rec *models.Record, entity models.Entity) {
	if s.hook == nil {
		return
	}
	s.hook.AfterSave(ctx, rec, entity)
}
