package store

import (
	"context"
	"sync"
	"time"

	"github.com/archyards/archyards/internal/models"
)

// MemoryStore is an in-process Store used by tests and for running the
// pipeline without a database.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[models.Collection]*memCollection
}

type memCollection struct {
	order    []string // insertion order, oldest first
	articles map[string]models.Article
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: map[models.Collection]*memCollection{
			models.CollectionRaw:       newMemCollection(),
			models.CollectionRewritten: newMemCollection(),
			models.CollectionPublished: newMemCollection(),
		},
	}
}

func newMemCollection() *memCollection {
	return &memCollection{articles: make(map[string]models.Article)}
}

// Merge upserts a batch by id. Existing records are replaced in place so
// their insertion position is preserved; new records append.
func (s *MemoryStore) Merge(ctx context.Context, collection models.Collection, articles []models.Article) error {
	if !models.ValidCollection(collection) {
		return ErrUnknownCollection
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	col := s.collections[collection]
	for _, a := range articles {
		if _, exists := col.articles[a.ID]; !exists {
			col.order = append(col.order, a.ID)
		}
		col.articles[a.ID] = a
	}
	return nil
}

// Read returns the collection's full current set, newest insertion first.
func (s *MemoryStore) Read(ctx context.Context, collection models.Collection) ([]models.Article, error) {
	if !models.ValidCollection(collection) {
		return nil, ErrUnknownCollection
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	col := s.collections[collection]
	out := make([]models.Article, 0, len(col.order))
	for i := len(col.order) - 1; i >= 0; i-- {
		out = append(out, col.articles[col.order[i]])
	}
	return out, nil
}

// Promote moves rewritten articles into published, stamping the publish
// timestamp and badge. Articles missing from rewritten or not in rewritten
// status are skipped. Returns the number promoted.
func (s *MemoryStore) Promote(ctx context.Context, ids []string, badge models.Badge, publishedAt time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rewritten := s.collections[models.CollectionRewritten]
	published := s.collections[models.CollectionPublished]

	promoted := 0
	for _, id := range ids {
		a, ok := rewritten.articles[id]
		if !ok || a.Status != models.StatusRewritten {
			continue
		}
		a.Status = models.StatusPublished
		a.Badge = badge
		a.PublishedAtArchyards = publishedAt

		if _, exists := published.articles[id]; !exists {
			published.order = append(published.order, id)
		}
		published.articles[id] = a
		promoted++
	}
	return promoted, nil
}

// Prune keeps the newest max published records.
func (s *MemoryStore) Prune(ctx context.Context, max int) error {
	if max <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	published := s.collections[models.CollectionPublished]
	excess := len(published.order) - max
	if excess <= 0 {
		return nil
	}

	for _, id := range published.order[:excess] {
		delete(published.articles, id)
	}
	published.order = append([]string(nil), published.order[excess:]...)
	return nil
}
