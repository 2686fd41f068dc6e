//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"herald/internal/content/article/models"
	"herald/internal/platform/postgres"
	pubmodels "herald/internal/publication/models"
	"herald/pkg/platform/sentinel"
	"herald/pkg/testutil/containers"
)

type PostgresArticleStoreSuite struct {
	suite.Suite
	ctx      context.Context
	postgres *containers.PostgresContainer
	store    *PostgresStore
}

func TestPostgresArticleStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresArticleStoreSuite))
}

func (s *PostgresArticleStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = NewPostgres(s.postgres.DB)
}

func (s *PostgresArticleStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.Require().NoError(s.postgres.TruncateTables(s.ctx, "articles", "publications"))
}

func (s *PostgresArticleStoreSuite) newArticle(slug string) *models.Article {
	a, err := models.NewArticle("Title "+slug, slug, "summary", "body", "/cover.jpg", true,
		pubmodels.StatusFinished, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	s.Require().NoError(err)
	return a
}

func (s *PostgresArticleStoreSuite) TestCreateFindSave() {
	a := s.newArticle("first")
	s.Require().NoError(s.store.Create(s.ctx, a))
	s.Positive(a.ID)

	found, err := s.store.FindByID(s.ctx, a.ID)
	s.Require().NoError(err)
	s.Equal("first", found.Slug)
	s.Equal(pubmodels.StatusFinished, found.Status)
	s.Nil(found.PublishedAt)
	s.Equal(time.UTC, found.CreatedAt.Location())

	at := time.Date(2024, 3, 2, 8, 30, 0, 0, time.UTC)
	found.SetPublishedAt(at)
	found.Title = "Renamed"
	s.Require().NoError(s.store.Save(s.ctx, found))

	reloaded, err := s.store.FindByID(s.ctx, a.ID)
	s.Require().NoError(err)
	s.Equal("Renamed", reloaded.Title)
	s.Require().NotNil(reloaded.PublishedAt)
	s.True(at.Equal(*reloaded.PublishedAt))
}

func (s *PostgresArticleStoreSuite) TestSlugConflict() {
	s.Require().NoError(s.store.Create(s.ctx, s.newArticle("dup")))
	s.ErrorIs(s.store.Create(s.ctx, s.newArticle("dup")), sentinel.ErrConflict)
}

func (s *PostgresArticleStoreSuite) TestMissing() {
	_, err := s.store.FindByID(s.ctx, 404)
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.ErrorIs(s.store.Save(s.ctx, &models.Article{ID: 404}), sentinel.ErrNotFound)
	s.ErrorIs(s.store.Delete(s.ctx, 404), sentinel.ErrNotFound)
}

func (s *PostgresArticleStoreSuite) TestRollbackDiscardsArticle() {
	a := s.newArticle("rolled-back")
	err := postgres.NewTransactor(s.postgres.DB).RunInTx(s.ctx, func(ctx context.Context) error {
		if err := s.store.Create(ctx, a); err != nil {
			return err
		}
		return context.Canceled
	})
	s.ErrorIs(err, context.Canceled)

	_, err = s.store.FindByID(s.ctx, a.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}
