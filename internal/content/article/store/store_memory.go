package store

import (
	"context"
	"fmt"
	"sync"

	"herald/internal/content/article/models"
	"herald/pkg/platform/sentinel"
)

// InMemory keeps articles in process with a sequence for IDs.
type InMemory struct {
	mu       sync.RWMutex
	articles map[int64]*models.Article
	slugs    map[string]int64
	nextID   int64
}

func NewInMemory() *InMemory {
	return &InMemory{
		articles: make(map[int64]*models.Article),
		slugs:    make(map[string]int64),
		nextID:   1,
	}
}

// Create assigns a.ID and stores a copy.
func (s *InMemory) Create(_ context.Context, a *models.Article) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.slugs[a.Slug]; exists {
		return fmt.Errorf("article slug %q: %w", a.Slug, sentinel.ErrConflict)
	}
	a.ID = s.nextID
	s.nextID++
	s.articles[a.ID] = a.Clone()
	s.slugs[a.Slug] = a.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id int64) (*models.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.articles[id]
	if !ok {
		return nil, fmt.Errorf("article %d: %w", id, sentinel.ErrNotFound)
	}
	return a.Clone(), nil
}

// Save overwrites the stored article. The slug is immutable.
func (s *InMemory) Save(_ context.Context, a *models.Article) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.articles[a.ID]
	if !ok {
		return fmt.Errorf("article %d: %w", a.ID, sentinel.ErrNotFound)
	}
	updated := a.Clone()
	updated.Slug = existing.Slug
	s.articles[a.ID] = updated
	return nil
}

func (s *InMemory) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.articles[id]
	if !ok {
		return fmt.Errorf("article %d: %w", id, sentinel.ErrNotFound)
	}
	delete(s.slugs, a.Slug)
	delete(s.articles, id)
	return nil
}
