package book

import (
	"sort"
	"sync"
)

// Registry holds one book per trading pair.
type Registry struct {
	mu    sync.RWMutex
	books map[string]*Book
}

func NewRegistry() *Registry {
	return &Registry{books: make(map[string]*Book)}
}

// Get returns the book for a pair, or nil if none exists.
func (r *Registry) Get(pairID string) *Book {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.books[pairID]
}

// Ensure returns the book for a pair, creating it when absent.
func (r *Registry) Ensure(pairID string) *Book {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.books[pairID]
	if !ok {
		b = New(pairID)
		r.books[pairID] = b
	}
	return b
}

// Drop discards the book of a pair.
func (r *Registry) Drop(pairID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.books, pairID)
}

// Pairs lists pairs with a live book, sorted.
func (r *Registry) Pairs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.books))
	for id := range r.books {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
