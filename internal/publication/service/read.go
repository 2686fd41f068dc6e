package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	"herald/internal/publication/models"
	"herald/internal/publication/registry"
	dErrors "herald/pkg/domain-errors"
	"herald/pkg/platform/sentinel"
	"herald/pkg/requestcontext"
)

// GetForEntity returns the record attached to entity, or (nil, nil) when it
// has none.
func (s *Service) GetForEntity(ctx context.Context, entity models.Entity) (rec *models.Record, err error) {
	ctx, span, start := s.startSpan(ctx, "get_for_entity")
	defer func() { s.endSpan(span, "get_for_entity", start, err) }()

	ref, err := s.refOf(entity)
	if err != nil {
		return nil, err
	}
	return s.findByRef(ctx, ref)
}

// RequireForEntity is GetForEntity for callers that need a record; a missing
// one is CodeNotFound.
func (s *Service) RequireForEntity(ctx context.Context, entity models.Entity) (*models.Record, error) {
	rec, err := s.GetForEntity(ctx, entity)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "publication not found")
	}
	return rec, nil
}

// GetForRef is GetForEntity keyed by reference; the entity is not loaded.
func (s *Service) GetForRef(ctx context.Context, ref models.EntityRef) (*models.Record, error) {
	if err := ref.Validate(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid entity reference")
	}
	return s.findByRef(ctx, ref)
}

func (s *Service) findByRef(ctx context.Context, ref models.EntityRef) (*models.Record, error) {
	rec, err := s.store.FindByEntity(ctx, ref)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load publication")
	}
	return rec, nil
}

// Published returns every visible record, newest first.
func (s *Service) Published(ctx context.Context) ([]*models.Record, error) {
	return s.PublishedRecords(ctx, models.Filter{})
}

// PublishedRecords returns visible records matching filter, newest first. The
// clock is read once so the whole listing agrees on "now".
func (s *Service) PublishedRecords(ctx context.Context, filter models.Filter) (records []*models.Record, err error) {
	ctx, span, start := s.startSpan(ctx, "published", attribute.String("type", string(filter.Type)))
	defer func() { s.endSpan(span, "published", start, err) }()

	records, err = s.store.ListPublished(ctx, requestcontext.Now(ctx), filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list published")
	}
	return records, nil
}

// PublishedEntitiesOfType resolves the visible records of one kind to their
// entities, newest first. Records whose entity is gone are skipped.
func (s *Service) PublishedEntitiesOfType(ctx context.Context, tag models.EntityType) ([]models.Entity, error) {
	if !s.registry.Has(tag) {
		return nil, dErrors.New(dErrors.CodeNotFound, "unknown entity type")
	}
	records, err := s.PublishedRecords(ctx, models.Filter{Type: tag})
	if err != nil {
		return nil, err
	}
	entities := make([]models.Entity, 0, len(records))
	for _, rec := range records {
		entity, ok, err := s.resolveVisible(ctx, rec)
		if err != nil {
			return nil, err
		}
		if ok {
			entities = append(entities, entity)
		}
	}
	return entities, nil
}

// PublishedOf is the type-level accessor: the visible entities of kind T,
// newest first.
func PublishedOf[T models.Entity](ctx context.Context, s *Service) ([]T, error) {
	tag, err := registry.TagFor[T](s.registry)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "entity type is not registered")
	}
	entities, err := s.PublishedEntitiesOfType(ctx, tag)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(entities))
	for _, e := range entities {
		typed, ok := e.(T)
		if !ok {
			return nil, dErrors.New(dErrors.CodeInternal, "registered kind resolved to an unexpected type")
		}
		out = append(out, typed)
	}
	return out, nil
}

// resolveVisible loads rec's entity. A missing entity is logged, counted and
// reported as ok=false.
func (s *Service) resolveVisible(ctx context.Context, rec *models.Record) (models.Entity, bool, error) {
	entity, err := s.registry.ResolveRef(ctx, rec.Entity)
	if err == nil {
		return entity, true, nil
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		s.metrics.IncrementOrphanSkipped()
		s.logger.WarnContext(ctx, "skipping publication with missing entity",
			"request_id", requestcontext.RequestID(ctx),
			"entity", rec.Entity.String(),
			"publication_id", rec.ID.String(),
		)
		return nil, false, nil
	}
	return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load entity")
}

// Direction selects a neighbor in (publish_at, id) order.
type Direction int

const (
	Previous Direction = iota
	Next
)

func (d Direction) String() string {
	if d == Next {
		return "next"
	}
	return "previous"
}

// Adjacent returns the approved neighbor of rec in direction d together with
// its entity, or (nil, nil, nil) at the end of the sequence. The neighbor may
// be scheduled in the future; rec itself need not be approved. Neighbors whose
// entity is gone are stepped over.
func (s *Service) Adjacent(ctx context.Context, rec *models.Record, d Direction) (neighbor *models.Record, entity models.Entity, err error) {
	if rec == nil {
		return nil, nil, dErrors.New(dErrors.CodeBadRequest, "publication is required")
	}
	ctx, span, start := s.startSpan(ctx, "adjacent",
		attribute.String("entity", rec.Entity.String()),
		attribute.String("direction", d.String()),
	)
	defer func() { s.endSpan(span, "adjacent", start, err) }()

	step := s.store.Previous
	if d == Next {
		step = s.store.Next
	}
	cur := rec
	for {
		neighbor, err = step(ctx, cur)
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil, nil
		}
		if err != nil {
			return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to find neighbor")
		}
		entity, ok, err := s.resolveVisible(ctx, neighbor)
		if err != nil {
			return nil, nil, err
		}
		if ok {
			return neighbor, entity, nil
		}
		cur = neighbor
	}
}

// PreviousPublished returns the entity of the approved record just before
// rec, or nil when there is none.
func (s *Service) PreviousPublished(ctx context.Context, rec *models.Record) (models.Entity, error) {
	_, entity, err := s.Adjacent(ctx, rec, Previous)
	return entity, err
}

// NextPublished returns the entity of the approved record just after rec, or
// nil when there is none.
func (s *Service) NextPublished(ctx context.Context, rec *models.Record) (models.Entity, error) {
	_, entity, err := s.Adjacent(ctx, rec, Next)
	return entity, err
}

// Present resolves rec against its entity at the request time.
func (s *Service) Present(ctx context.Context, rec *models.Record) (*models.Presentation, error) {
	entity, err := s.Resolve(ctx, rec.Entity)
	if err != nil {
		return nil, err
	}
	p := models.Present(rec, entity, requestcontext.Now(ctx))
	return &p, nil
}

// PresentAll presents records in order, skipping those whose entity is gone.
func (s *Service) PresentAll(ctx context.Context, records []*models.Record) ([]models.Presentation, error) {
	now := requestcontext.Now(ctx)
	out := make([]models.Presentation, 0, len(records))
	for _, rec := range records {
		entity, ok, err := s.resolveVisible(ctx, rec)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, models.Present(rec, entity, now))
		}
	}
	return out, nil
}

// Banners returns up to limit visible records eligible for the banner
// rotation: banners enabled on the record, allowed by the entity, and with an
// image from either. A non-positive limit means no cap.
func (s *Service) Banners(ctx context.Context, limit int) ([]models.Presentation, error) {
	records, err := s.PublishedRecords(ctx, models.Filter{BannersOnly: true})
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	out := make([]models.Presentation, 0)
	for _, rec := range records {
		if limit > 0 && len(out) >= limit {
			break
		}
		entity, ok, err := s.resolveVisible(ctx, rec)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if _, has := rec.ResolvedBannerImage(entity); !has {
			continue
		}
		out = append(out, models.Present(rec, entity, now))
	}
	return out, nil
}
