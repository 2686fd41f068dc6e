package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"herald/internal/publication/models"
	"herald/pkg/platform/sentinel"
)

// InMemory keeps publication records in process. The mutex plays the role of
// the database's unique index and row locks.
type InMemory struct {
	mu       sync.RWMutex
	records  map[models.PublicationID]*models.Record
	byEntity map[models.EntityRef]models.PublicationID
}

func NewInMemory() *InMemory {
	return &InMemory{
		records:  make(map[models.PublicationID]*models.Record),
		byEntity: make(map[models.EntityRef]models.PublicationID),
	}
}

func (s *InMemory) Create(_ context.Context, rec *models.Record) error {
	if rec == nil {
		return fmt.Errorf("publication record is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byEntity[rec.Entity]; exists {
		return fmt.Errorf("publication for %s: %w", rec.Entity, sentinel.ErrConflict)
	}
	if _, exists := s.records[rec.ID]; exists {
		return fmt.Errorf("publication %s: %w", rec.ID, sentinel.ErrConflict)
	}
	s.insertLocked(rec)
	return nil
}

func (s *InMemory) Upsert(_ context.Context, ref models.EntityRef, build BuildFunc) (*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var existing *models.Record
	if id, ok := s.byEntity[ref]; ok {
		existing = s.records[id].Clone()
	}
	rec, err := build(existing)
	if err != nil {
		return nil, err
	}
	if rec.Entity != ref {
		return nil, fmt.Errorf("upsert publication: record ref %s does not match %s", rec.Entity, ref)
	}
	if existing != nil {
		rec.ID = existing.ID
		rec.CreatedAt = existing.CreatedAt
		s.records[rec.ID] = rec.Clone()
		return rec.Clone(), nil
	}
	s.insertLocked(rec)
	return rec.Clone(), nil
}

func (s *InMemory) insertLocked(rec *models.Record) {
	s.records[rec.ID] = rec.Clone()
	s.byEntity[rec.Entity] = rec.ID
}

func (s *InMemory) FindByEntity(_ context.Context, ref models.EntityRef) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEntity[ref]
	if !ok {
		return nil, fmt.Errorf("publication for %s: %w", ref, sentinel.ErrNotFound)
	}
	return s.records[id].Clone(), nil
}

func (s *InMemory) FindByID(_ context.Context, id models.PublicationID) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("publication %s: %w", id, sentinel.ErrNotFound)
	}
	return rec.Clone(), nil
}

func (s *InMemory) ListPublished(_ context.Context, now time.Time, filter models.Filter) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Record, 0)
	for _, rec := range s.records {
		if rec.VisibleAt(now) && filter.Matches(rec) {
			out = append(out, rec.Clone())
		}
	}
	sortNewestFirst(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *InMemory) List(_ context.Context) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.Clone())
	}
	sortNewestFirst(out)
	return out, nil
}

// Previous returns the approved record immediately before rec in
// (publish_at, id) order.
func (s *InMemory) Previous(_ context.Context, rec *models.Record) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *models.Record
	for _, cand := range s.records {
		if !cand.Approved || cand.ID == rec.ID || !cand.Before(rec) {
			continue
		}
		if best == nil || best.Before(cand) {
			best = cand
		}
	}
	if best == nil {
		return nil, fmt.Errorf("publication before %s: %w", rec.ID, sentinel.ErrNotFound)
	}
	return best.Clone(), nil
}

// Next returns the approved record immediately after rec in (publish_at, id) order.
func (s *InMemory) Next(_ context.Context, rec *models.Record) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *models.Record
	for _, cand := range s.records {
		if !cand.Approved || cand.ID == rec.ID || !rec.Before(cand) {
			continue
		}
		if best == nil || cand.Before(best) {
			best = cand
		}
	}
	if best == nil {
		return nil, fmt.Errorf("publication after %s: %w", rec.ID, sentinel.ErrNotFound)
	}
	return best.Clone(), nil
}

func (s *InMemory) Delete(_ context.Context, id models.PublicationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return fmt.Errorf("publication %s: %w", id, sentinel.ErrNotFound)
	}
	delete(s.byEntity, rec.Entity)
	delete(s.records, id)
	return nil
}

func sortNewestFirst(records []*models.Record) {
	sort.Slice(records, func(i, j int) bool {
		return records[j].Before(records[i])
	})
}
