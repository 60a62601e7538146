package articles

import (
	"context"
	"sync"
)

// MemoryRepository is an in-memory Repository
type MemoryRepository struct {
	mu       sync.RWMutex
	articles map[string]*Article
}

// NewMemoryRepository creates a repository holding the given articles
func NewMemoryRepository(list ...*Article) *MemoryRepository {
	r := &MemoryRepository{articles: make(map[string]*Article, len(list))}
	for _, a := range list {
		r.articles[a.ID] = a
	}
	return r
}

// Get returns the article with the given id
func (r *MemoryRepository) Get(_ context.Context, id string) (*Article, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.articles[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *a
	return &c, nil
}

// List returns all articles ordered by modification time, then id
func (r *MemoryRepository) List(_ context.Context) ([]*Article, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]*Article, 0, len(r.articles))
	for _, a := range r.articles {
		c := *a
		list = append(list, &c)
	}
	SortArticles(list)
	return list, nil
}

// Put inserts or replaces an article
func (r *MemoryRepository) Put(a *Article) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.articles[a.ID] = a
}

// Replace swaps the whole collection
func (r *MemoryRepository) Replace(list []*Article) {
	m := make(map[string]*Article, len(list))
	for _, a := range list {
		m[a.ID] = a
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.articles = m
}
