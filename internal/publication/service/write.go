package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	"herald/internal/publication/models"
	dErrors "herald/pkg/domain-errors"
	audit "herald/pkg/platform/audit"
	"herald/pkg/platform/sentinel"
	"herald/pkg/requestcontext"
)

// CreateOrUpdate attaches a record to entity, or updates the existing one.
// Unset params keep their current value (or the default on creation). The
// post-write hook runs after the write; its failures never surface here.
func (s *Service) CreateOrUpdate(ctx context.Context, entity models.Entity, params models.Params) (rec *models.Record, err error) {
	ctx, span, start := s.startSpan(ctx, "create_or_update")
	defer func() { s.endSpan(span, "create_or_update", start, err) }()

	ref, err := s.refOf(entity)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("entity", ref.String()))
	now := requestcontext.Now(ctx)

	var created, wasApproved bool
	rec, err = s.store.Upsert(ctx, ref, func(existing *models.Record) (*models.Record, error) {
		if existing == nil {
			created = true
			return models.NewRecord(ref, params, now)
		}
		created = false
		wasApproved = existing.Approved
		existing.Apply(params, now)
		return existing, nil
	})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid publication")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save publication")
	}

	action := audit.EventPublicationUpdated
	if created {
		action = audit.EventPublicationCreated
		s.metrics.IncrementWrite("create")
	} else {
		s.metrics.IncrementWrite("update")
	}
	if err := s.emitAudit(ctx, action, rec); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to audit publication")
	}
	if rec.Approved && !wasApproved {
		if err := s.emitAudit(ctx, audit.EventPublicationApproved, rec); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to audit publication")
		}
	}

	s.afterSave(ctx, rec, entity)
	return rec, nil
}

// Create attaches a new record to entity. It fails with CodeConflict when the
// entity already has one.
func (s *Service) Create(ctx context.Context, entity models.Entity, params models.Params) (rec *models.Record, err error) {
	ctx, span, start := s.startSpan(ctx, "create")
	defer func() { s.endSpan(span, "create", start, err) }()

	ref, err := s.refOf(entity)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("entity", ref.String()))

	rec, err = models.NewRecord(ref, params, requestcontext.Now(ctx))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid publication")
	}
	if err := s.store.Create(ctx, rec); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "entity already has a publication record")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create publication")
	}
	s.metrics.IncrementWrite("create")

	if err := s.emitAudit(ctx, audit.EventPublicationCreated, rec); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to audit publication")
	}
	if rec.Approved {
		if err := s.emitAudit(ctx, audit.EventPublicationApproved, rec); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to audit publication")
		}
	}

	s.afterSave(ctx, rec, entity)
	return rec, nil
}

// DeleteRef removes the record attached to ref. The entity itself is left
// untouched and need not exist. The post-write hook does not run. The audit
// entry is written before the delete, so a failed audit leaves the record in
// place.
func (s *Service) DeleteRef(ctx context.Context, ref models.EntityRef) (err error) {
	ctx, span, start := s.startSpan(ctx, "delete", attribute.String("entity", ref.String()))
	defer func() { s.endSpan(span, "delete", start, err) }()

	err = s.inTx(ctx, func(ctx context.Context) error {
		rec, err := s.store.FindByEntity(ctx, ref)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "publication not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load publication")
		}
		if err := s.emitAudit(ctx, audit.EventPublicationDeleted, rec); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to audit publication delete")
		}
		if err := s.store.Delete(ctx, rec.ID); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "publication not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete publication")
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.metrics.IncrementWrite("delete")
	return nil
}

// PruneOrphans deletes records whose entity no longer resolves and returns
// how many were removed. Records of unregistered kinds are orphans too. On
// error the count covers the records removed before the failure.
func (s *Service) PruneOrphans(ctx context.Context) (pruned int, err error) {
	ctx, span, start := s.startSpan(ctx, "prune_orphans")
	defer func() { s.endSpan(span, "prune_orphans", start, err) }()

	records, err := s.store.List(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list publications")
	}
	for _, rec := range records {
		_, err := s.registry.ResolveRef(ctx, rec.Entity)
		if err == nil {
			continue
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			return pruned, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve entity")
		}
		err = s.inTx(ctx, func(ctx context.Context) error {
			if err := s.emitAudit(ctx, audit.EventPublicationPruned, rec); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to audit prune")
			}
			if err := s.store.Delete(ctx, rec.ID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete orphaned publication")
			}
			return nil
		})
		if err != nil {
			return pruned, err
		}
		s.metrics.IncrementWrite("prune")
		s.logger.InfoContext(ctx, "pruned orphaned publication",
			"request_id", requestcontext.RequestID(ctx),
			"entity", rec.Entity.String(),
			"publication_id", rec.ID.String(),
		)
		pruned++
	}
	span.SetAttributes(attribute.Int("pruned", pruned))
	return pruned, nil
}
