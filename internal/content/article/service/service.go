// Package service manages articles together with their publication records.
package service

import (
	"context"
	"errors"
	"log/slog"

	"herald/internal/content/article/models"
	pubmodels "herald/internal/publication/models"
	pubservice "herald/internal/publication/service"
	dErrors "herald/pkg/domain-errors"
	audit "herald/pkg/platform/audit"
	"herald/pkg/platform/sentinel"
	"herald/pkg/requestcontext"
)

// Store persists articles. Errors wrap sentinel.ErrNotFound / ErrConflict.
type Store interface {
	Create(ctx context.Context, a *models.Article) error
	FindByID(ctx context.Context, id int64) (*models.Article, error)
	Save(ctx context.Context, a *models.Article) error
	Delete(ctx context.Context, id int64) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	articles       Store
	publications   *pubservice.Service
	tx             Transactor
	logger         *slog.Logger
	auditPublisher AuditPublisher
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func New(articles Store, publications *pubservice.Service, tx Transactor, opts ...Option) *Service {
	s := &Service{
		articles:     articles,
		publications: publications,
		tx:           tx,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRequest carries a new article and the initial state of its
// publication record.
type CreateRequest struct {
	Title       string
	Slug        string
	Summary     string
	Body        string
	CoverImage  string
	AllowBanner bool
	Status      pubmodels.DraftStatus
	Publication pubmodels.Params
}

// Result pairs an article with its publication record, which may be nil.
type Result struct {
	Article     *models.Article
	Publication *pubmodels.Record
}

// Create stores the article and its publication record in one transaction.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Result, error) {
	a, err := models.NewArticle(req.Title, req.Slug, req.Summary, req.Body, req.CoverImage,
		req.AllowBanner, req.Status, requestcontext.Now(ctx))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid article")
	}

	var rec *pubmodels.Record
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.articles.Create(ctx, a); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "slug already in use")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create article")
		}
		var err error
		rec, err = s.publications.Create(ctx, a, req.Publication)
		if err != nil {
			// In-memory stores cannot roll back; in SQL this runs in the
			// doomed transaction and is discarded with it.
			if delErr := s.articles.Delete(ctx, a.ID); delErr != nil {
				s.logger.DebugContext(ctx, "compensating article delete failed", "error", delErr)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emitAudit(ctx, a, rec)
	return &Result{Article: a, Publication: rec}, nil
}

// Get returns the article and its publication record, if it has one.
func (s *Service) Get(ctx context.Context, id int64) (*Result, error) {
	a, err := s.articles.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "article not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load article")
	}
	rec, err := s.publications.GetForEntity(ctx, a)
	if err != nil {
		return nil, err
	}
	return &Result{Article: a, Publication: rec}, nil
}

// ListPublished returns the currently visible articles, newest first.
func (s *Service) ListPublished(ctx context.Context) ([]*models.Article, error) {
	return pubservice.PublishedOf[*models.Article](ctx, s.publications)
}

// Delete removes the article and its publication record together. A missing
// record is not an error.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		a, err := s.articles.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "article not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load article")
		}
		ref := pubmodels.EntityRef{Type: models.Tag, ID: a.ID}
		if err := s.publications.DeleteRef(ctx, ref); err != nil && !dErrors.HasCode(err, dErrors.CodeNotFound) {
			return err
		}
		if err := s.articles.Delete(ctx, a.ID); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete article")
		}
		return nil
	})
}

func (s *Service) emitAudit(ctx context.Context, a *models.Article, rec *pubmodels.Record) {
	if s.auditPublisher == nil {
		return
	}
	event := audit.Event{
		Timestamp: requestcontext.Now(ctx),
		Subject:   pubmodels.EntityRef{Type: models.Tag, ID: a.ID}.String(),
		Action:    string(audit.EventContentCreated),
	}
	if rec != nil {
		event.RecordID = rec.ID.String()
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to audit article creation",
			"request_id", requestcontext.RequestID(ctx),
			"article_id", a.ID,
			"error", err,
		)
	}
}
