package service_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"herald/internal/content/article/models"
	"herald/internal/content/article/service"
	"herald/internal/content/article/store"
	"herald/internal/platform/config"
	"herald/internal/publication/cachebackend"
	"herald/internal/publication/invalidation"
	pubmodels "herald/internal/publication/models"
	"herald/internal/publication/registry"
	pubservice "herald/internal/publication/service"
	pubstore "herald/internal/publication/store"
	dErrors "herald/pkg/domain-errors"
	audit "herald/pkg/platform/audit"
	"herald/pkg/platform/audit/publisher"
	auditmemory "herald/pkg/platform/audit/store/memory"
	"herald/pkg/requestcontext"
)

type ArticleServiceSuite struct {
	suite.Suite
	ctx          context.Context
	now          time.Time
	articles     *store.InMemory
	publications *pubstore.InMemory
	audit        *auditmemory.InMemoryStore
	service      *service.Service
}

func TestArticleServiceSuite(t *testing.T) {
	suite.Run(t, new(ArticleServiceSuite))
}

func (s *ArticleServiceSuite) SetupTest() {
	s.now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.articles = store.NewInMemory()
	s.publications = pubstore.NewInMemory()
	s.audit = auditmemory.NewInMemoryStore()

	reg := registry.New()
	registry.MustRegister(reg, service.Kind(s.articles))

	backend, err := cachebackend.NewLocal(16)
	s.Require().NoError(err)
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	hook := invalidation.New(backend, config.Invalidation{}, reg, invalidation.WithLogger(logger))
	auditor := publisher.NewPublisher(s.audit, publisher.WithLogger(logger))
	pubs := pubservice.New(s.publications, reg, hook,
		pubservice.WithLogger(logger), pubservice.WithAuditPublisher(auditor))

	s.service = service.New(s.articles, pubs, service.NewLockingTx(),
		service.WithLogger(logger), service.WithAuditPublisher(auditor))
}

func (s *ArticleServiceSuite) create(slug string, publishAt time.Time, approved bool) *service.Result {
	res, err := s.service.Create(s.ctx, service.CreateRequest{
		Title:       "Title " + slug,
		Slug:        slug,
		CoverImage:  "/media/" + slug + ".jpg",
		AllowBanner: true,
		Publication: pubmodels.Params{PublishAt: &publishAt, Approved: &approved},
	})
	s.Require().NoError(err)
	return res
}

func (s *ArticleServiceSuite) TestCreateAttachesPublicationAndMirrors() {
	at := s.now.Add(-time.Hour)
	res := s.create("hello", at, true)

	s.Equal(int64(1), res.Article.ID)
	s.Require().NotNil(res.Publication)
	s.Equal(pubmodels.EntityRef{Type: models.Tag, ID: 1}, res.Publication.Entity)
	s.Require().NotNil(res.Article.PublishedAt)
	s.True(at.Equal(*res.Article.PublishedAt))

	stored, err := s.articles.FindByID(s.ctx, 1)
	s.Require().NoError(err)
	s.Require().NotNil(stored.PublishedAt, "mirror is persisted")
	s.Equal(pubmodels.StatusDraft, stored.Status)
}

func (s *ArticleServiceSuite) TestCreateUnapprovedLeavesMirrorEmpty() {
	res := s.create("pending", s.now.Add(-time.Hour), false)
	s.Nil(res.Article.PublishedAt)
}

func (s *ArticleServiceSuite) TestCreateValidation() {
	_, err := s.service.Create(s.ctx, service.CreateRequest{Title: "", Slug: "x"})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.service.Create(s.ctx, service.CreateRequest{Title: "Bad slug", Slug: "Not OK"})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ArticleServiceSuite) TestDuplicateSlugConflicts() {
	s.create("same", s.now, true)
	_, err := s.service.Create(s.ctx, service.CreateRequest{Title: "Again", Slug: "same"})
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	records, err := s.publications.List(s.ctx)
	s.Require().NoError(err)
	s.Len(records, 1)
}

func (s *ArticleServiceSuite) TestPublicationFailureRemovesArticle() {
	stale, err := pubmodels.NewRecord(pubmodels.EntityRef{Type: models.Tag, ID: 1}, pubmodels.Params{}, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.publications.Create(s.ctx, stale))

	_, err = s.service.Create(s.ctx, service.CreateRequest{Title: "Orphaned", Slug: "orphaned"})
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	_, err = s.articles.FindByID(s.ctx, 1)
	s.Error(err)
}

func (s *ArticleServiceSuite) TestGet() {
	created := s.create("get-me", s.now, true)

	res, err := s.service.Get(s.ctx, created.Article.ID)
	s.Require().NoError(err)
	s.Equal("get-me", res.Article.Slug)
	s.Require().NotNil(res.Publication)
	s.Equal(created.Publication.ID, res.Publication.ID)

	_, err = s.service.Get(s.ctx, 99)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ArticleServiceSuite) TestListPublished() {
	s.create("old", s.now.Add(-2*time.Hour), true)
	s.create("new", s.now.Add(-time.Hour), true)
	s.create("future", s.now.Add(time.Hour), true)
	s.create("unapproved", s.now.Add(-time.Hour), false)

	articles, err := s.service.ListPublished(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(articles, 2)
	s.Equal("new", articles[0].Slug)
	s.Equal("old", articles[1].Slug)
}

func (s *ArticleServiceSuite) TestDeleteRemovesBoth() {
	res := s.create("doomed", s.now, true)

	s.Require().NoError(s.service.Delete(s.ctx, res.Article.ID))

	_, err := s.service.Get(s.ctx, res.Article.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	records, err := s.publications.List(s.ctx)
	s.Require().NoError(err)
	s.Empty(records)

	err = s.service.Delete(s.ctx, res.Article.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ArticleServiceSuite) TestAuditTrail() {
	s.create("audited", s.now, true)

	events, err := s.audit.ListBySubject(s.ctx, "article:1")
	s.Require().NoError(err)
	actions := make([]string, 0, len(events))
	for _, e := range events {
		actions = append(actions, e.Action)
	}
	s.Contains(actions, string(audit.EventContentCreated))
	s.Contains(actions, string(audit.EventPublicationCreated))
	s.Contains(actions, string(audit.EventPublicationApproved))
}

func (s *ArticleServiceSuite) TestLockingTxRejectsCancelledContext() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	called := false
	err := service.NewLockingTx().RunInTx(ctx, func(context.Context) error {
		called = true
		return nil
	})
	s.Error(err)
	s.False(called)
}
