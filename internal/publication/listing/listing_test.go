package listing_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"herald/internal/publication/cachebackend"
	"herald/internal/publication/listing"
	"herald/internal/publication/metrics"
	"herald/internal/publication/models"
	"herald/pkg/requestcontext"
)

type countingSource struct {
	records []*models.Record
	calls   int
}

func (s *countingSource) PublishedRecords(_ context.Context, filter models.Filter) ([]*models.Record, error) {
	s.calls++
	out := make([]*models.Record, 0)
	for _, r := range s.records {
		if filter.Matches(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *countingSource) PresentAll(ctx context.Context, records []*models.Record) ([]models.Presentation, error) {
	now := requestcontext.Now(ctx)
	out := make([]models.Presentation, 0, len(records))
	for _, r := range records {
		out = append(out, models.Presentation{
			Record:  r,
			Title:   r.Entity.String(),
			Visible: r.VisibleAt(now),
			Status:  r.HumanizedStatus(now),
		})
	}
	return out, nil
}

func (s *countingSource) Tags() []models.EntityType {
	return []models.EntityType{"article", "photo"}
}

type brokenBackend struct{ cachebackend.Backend }

func (brokenBackend) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("connection refused")
}

func (brokenBackend) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection refused")
}

func newSource() *countingSource {
	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return &countingSource{records: []*models.Record{
		{ID: models.NewPublicationID(), Entity: models.EntityRef{Type: "article", ID: 1}, PublishAt: at, Approved: true},
		{ID: models.NewPublicationID(), Entity: models.EntityRef{Type: "photo", ID: 1}, PublishAt: at, Approved: true},
	}}
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "published.list", listing.Key(""))
	assert.Equal(t, "published.list.article", listing.Key("article"))
	assert.Equal(t, []string{"published.list", "published.list.article"}, listing.Keys([]models.EntityType{"article"}))
}

func TestPublishedReadsThrough(t *testing.T) {
	ctx := context.Background()
	backend, err := cachebackend.NewLocal(16)
	require.NoError(t, err)
	src := newSource()
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	c := listing.New(backend, src, time.Minute, listing.WithMetrics(m))

	first, err := c.Published(ctx, "article")
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, "article:1", first[0].Title)

	second, err := c.Published(ctx, "article")
	require.NoError(t, err)
	assert.Equal(t, first[0].Title, second[0].Title)
	assert.Equal(t, first[0].Record.ID, second[0].Record.ID)
	assert.Equal(t, 1, src.calls, "second read is served from cache")

	all, err := c.Published(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, 2, src.calls)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.ListingCache.WithLabelValues("hit")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.ListingCache.WithLabelValues("miss")))
}

func TestInvalidateDropsEveryListing(t *testing.T) {
	ctx := context.Background()
	backend, err := cachebackend.NewLocal(16)
	require.NoError(t, err)
	src := newSource()
	c := listing.New(backend, src, time.Minute)

	for _, tag := range []models.EntityType{"", "article", "photo"} {
		_, err := c.Published(ctx, tag)
		require.NoError(t, err)
	}
	require.Equal(t, 3, backend.Len())

	c.Invalidate(ctx)
	assert.Equal(t, 0, backend.Len())
}

func TestCacheFailureFallsBackToSource(t *testing.T) {
	ctx := context.Background()
	src := newSource()
	c := listing.New(brokenBackend{}, src, time.Minute)

	got, err := c.Published(ctx, "photo")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = c.Published(ctx, "photo")
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestNilBackendDisablesCaching(t *testing.T) {
	src := newSource()
	c := listing.New(nil, src, time.Minute)
	for i := 0; i < 2; i++ {
		_, err := c.Published(context.Background(), "")
		require.NoError(t, err)
	}
	assert.Equal(t, 2, src.calls)
	c.Invalidate(context.Background())
}

func TestCachedListingStatusFollowsTheClock(t *testing.T) {
	backend, err := cachebackend.NewLocal(16)
	require.NoError(t, err)
	src := newSource()
	c := listing.New(backend, src, time.Hour)
	publishAt := src.records[0].PublishAt

	filled := requestcontext.WithTime(context.Background(), publishAt.Add(time.Hour))
	first, err := c.Published(filled, "article")
	require.NoError(t, err)
	require.Len(t, first, 1)

	later := publishAt.Add(4 * time.Hour)
	second, err := c.Published(requestcontext.WithTime(context.Background(), later), "article")
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, 1, src.calls, "second read is served from cache")
	assert.Equal(t, src.records[0].HumanizedStatus(later), second[0].Status)
	assert.NotEqual(t, first[0].Status.Text, second[0].Status.Text)
	assert.True(t, second[0].Visible)
}
