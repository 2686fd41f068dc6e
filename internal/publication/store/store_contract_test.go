package store_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/suite"

	"herald/internal/publication/models"
	"herald/internal/publication/store"
	"herald/pkg/platform/sentinel"
)

type recordStore interface {
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

// contractSuite holds behavior every store implementation must share.
// Embedding suites set store before each test.
type contractSuite struct {
	suite.Suite
	ctx   context.Context
	store recordStore
}

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func ref(tag string, id int64) models.EntityRef {
	return models.EntityRef{Type: models.EntityType(tag), ID: id}
}

func (s *contractSuite) newRecord(r models.EntityRef, publishAt time.Time, approved bool) *models.Record {
	rec, err := models.NewRecord(r, models.Params{PublishAt: &publishAt, Approved: &approved}, base)
	s.Require().NoError(err)
	return rec
}

func (s *contractSuite) mustCreate(r models.EntityRef, publishAt time.Time, approved bool) *models.Record {
	rec := s.newRecord(r, publishAt, approved)
	s.Require().NoError(s.store.Create(s.ctx, rec))
	return rec
}

func refs(records []*models.Record) []models.EntityRef {
	out := make([]models.EntityRef, 0, len(records))
	for _, r := range records {
		out = append(out, r.Entity)
	}
	return out
}

func (s *contractSuite) TestCreateAndFind() {
	rec := s.mustCreate(ref("article", 1), base, true)

	s.Run("finds by entity", func() {
		found, err := s.store.FindByEntity(s.ctx, rec.Entity)
		s.Require().NoError(err)
		s.Equal(rec.ID, found.ID)
		s.True(rec.PublishAt.Equal(found.PublishAt))
		s.True(found.Approved)
		s.True(found.BannerEnabled)
	})

	s.Run("finds by id", func() {
		found, err := s.store.FindByID(s.ctx, rec.ID)
		s.Require().NoError(err)
		s.Equal(rec.Entity, found.Entity)
	})

	s.Run("missing entity is not found", func() {
		_, err := s.store.FindByEntity(s.ctx, ref("article", 99))
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("same id under another type is a different entity", func() {
		_, err := s.store.FindByEntity(s.ctx, ref("photo", 1))
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("duplicate entity conflicts", func() {
		dup := s.newRecord(rec.Entity, base.Add(time.Hour), false)
		err := s.store.Create(s.ctx, dup)
		s.ErrorIs(err, sentinel.ErrConflict)

		found, err := s.store.FindByEntity(s.ctx, rec.Entity)
		s.Require().NoError(err)
		s.Equal(rec.ID, found.ID, "existing record must not be overwritten")
	})
}

func (s *contractSuite) TestConcurrentCreateHasOneWinner() {
	const writers = 20
	target := ref("article", 7)

	var wg sync.WaitGroup
	var created, conflicts atomic.Int32
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := models.NewRecord(target, models.Params{}, base)
			if err != nil {
				return
			}
			switch err := s.store.Create(s.ctx, rec); {
			case err == nil:
				created.Add(1)
			case errors.Is(err, sentinel.ErrConflict):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), created.Load())
	s.Equal(int32(writers-1), conflicts.Load())
}

func (s *contractSuite) TestUpsert() {
	target := ref("article", 3)

	first, err := s.store.Upsert(s.ctx, target, func(existing *models.Record) (*models.Record, error) {
		s.Nil(existing)
		return models.NewRecord(target, models.Params{}, base)
	})
	s.Require().NoError(err)
	s.False(first.Approved)

	later := base.Add(2 * time.Hour)
	approved := true
	second, err := s.store.Upsert(s.ctx, target, func(existing *models.Record) (*models.Record, error) {
		s.Require().NotNil(existing)
		s.Equal(first.ID, existing.ID)
		existing.Apply(models.Params{Approved: &approved, PublishAt: &later}, later)
		return existing, nil
	})
	s.Require().NoError(err)

	s.Equal(first.ID, second.ID, "upsert keeps record identity")
	s.True(first.CreatedAt.Equal(second.CreatedAt))
	s.True(second.Approved)
	s.True(later.Equal(second.PublishAt))

	all, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Len(all, 1)
}

func (s *contractSuite) TestUpsertKeepsIdentityEvenIfBuildReplacesIt() {
	target := ref("article", 4)
	first, err := s.store.Upsert(s.ctx, target, func(*models.Record) (*models.Record, error) {
		return models.NewRecord(target, models.Params{}, base)
	})
	s.Require().NoError(err)

	second, err := s.store.Upsert(s.ctx, target, func(*models.Record) (*models.Record, error) {
		return models.NewRecord(target, models.Params{}, base.Add(time.Hour))
	})
	s.Require().NoError(err)
	s.Equal(first.ID, second.ID)
	s.True(first.CreatedAt.Equal(second.CreatedAt))
}

// TestListPublished covers the A/B/C scenario: A and B approved in the past,
// C approved but scheduled for the future.
func (s *contractSuite) TestListPublished() {
	a := s.mustCreate(ref("article", 1), base.AddDate(0, 0, -2), true)
	b := s.mustCreate(ref("article", 2), base.AddDate(0, 0, -1), true)
	s.mustCreate(ref("article", 3), base.AddDate(0, 0, 1), true)
	s.mustCreate(ref("article", 4), base.AddDate(0, 0, -3), false)
	p := s.mustCreate(ref("photo", 1), base.Add(-time.Hour), true)

	s.Run("newest first, hides unapproved and future", func() {
		got, err := s.store.ListPublished(s.ctx, base, models.Filter{})
		s.Require().NoError(err)
		s.Equal([]models.EntityRef{p.Entity, b.Entity, a.Entity}, refs(got))
	})

	s.Run("filters by type", func() {
		got, err := s.store.ListPublished(s.ctx, base, models.Filter{Type: "article"})
		s.Require().NoError(err)
		s.Equal([]models.EntityRef{b.Entity, a.Entity}, refs(got))
	})

	s.Run("publish time equal to now is visible", func() {
		got, err := s.store.ListPublished(s.ctx, p.PublishAt, models.Filter{Type: "photo"})
		s.Require().NoError(err)
		s.Len(got, 1)
	})

	s.Run("future record appears once its time comes", func() {
		got, err := s.store.ListPublished(s.ctx, base.AddDate(0, 0, 1), models.Filter{Type: "article"})
		s.Require().NoError(err)
		s.Len(got, 3)
	})

	s.Run("limit", func() {
		got, err := s.store.ListPublished(s.ctx, base, models.Filter{Limit: 2})
		s.Require().NoError(err)
		s.Equal([]models.EntityRef{p.Entity, b.Entity}, refs(got))
	})
}

func (s *contractSuite) TestListPublishedBannersOnly() {
	off := false
	at := base.Add(-time.Hour)
	yes := true
	rec, err := models.NewRecord(ref("article", 1), models.Params{PublishAt: &at, Approved: &yes, BannerEnabled: &off}, base)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(s.ctx, rec))
	on := s.mustCreate(ref("article", 2), at, true)

	got, err := s.store.ListPublished(s.ctx, base, models.Filter{BannersOnly: true})
	s.Require().NoError(err)
	s.Equal([]models.EntityRef{on.Entity}, refs(got))
}

func (s *contractSuite) TestNeighbors() {
	a := s.mustCreate(ref("article", 1), base.AddDate(0, 0, -2), true)
	b := s.mustCreate(ref("article", 2), base.AddDate(0, 0, -1), true)
	hidden := s.mustCreate(ref("article", 3), base.Add(-36*time.Hour), false)
	future := s.mustCreate(ref("article", 4), base.AddDate(0, 0, 5), true)

	s.Run("previous of B is A", func() {
		prev, err := s.store.Previous(s.ctx, b)
		s.Require().NoError(err)
		s.Equal(a.ID, prev.ID)
	})

	s.Run("nothing before A", func() {
		_, err := s.store.Previous(s.ctx, a)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("next skips unapproved but includes scheduled", func() {
		next, err := s.store.Next(s.ctx, b)
		s.Require().NoError(err)
		s.Equal(future.ID, next.ID)
	})

	s.Run("unapproved record still has neighbors", func() {
		prev, err := s.store.Previous(s.ctx, hidden)
		s.Require().NoError(err)
		s.Equal(a.ID, prev.ID)
		next, err := s.store.Next(s.ctx, hidden)
		s.Require().NoError(err)
		s.Equal(b.ID, next.ID)
	})
}

func (s *contractSuite) TestNeighborsBreakTiesByID() {
	first := s.mustCreate(ref("article", 1), base, true)
	second := s.mustCreate(ref("article", 2), base, true)
	if second.Before(first) {
		first, second = second, first
	}

	next, err := s.store.Next(s.ctx, first)
	s.Require().NoError(err)
	s.Equal(second.ID, next.ID)

	prev, err := s.store.Previous(s.ctx, second)
	s.Require().NoError(err)
	s.Equal(first.ID, prev.ID)

	_, err = s.store.Next(s.ctx, second)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *contractSuite) TestDelete() {
	rec := s.mustCreate(ref("article", 1), base, true)

	s.Require().NoError(s.store.Delete(s.ctx, rec.ID))
	_, err := s.store.FindByEntity(s.ctx, rec.Entity)
	s.ErrorIs(err, sentinel.ErrNotFound)

	s.ErrorIs(s.store.Delete(s.ctx, rec.ID), sentinel.ErrNotFound)

	// The entity may opt in again after an explicit delete.
	s.mustCreate(rec.Entity, base, false)
}
