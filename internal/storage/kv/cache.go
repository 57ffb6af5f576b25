package kv

import (
	"context"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedStore wraps a Store with an LRU read-through cache. State documents
// are re-read far more often than they change (the HTTP layer and handlers
// hit the same hot accounts, pools and tokens), so reads are served from
// memory and writes keep the cache coherent.
type CachedStore struct {
	inner Store
	cache *lru.Cache[string, []byte]

	hits   uint64
	misses uint64
}

// WithCache wraps inner with an LRU of the given entry count. Size <= 0
// returns inner unwrapped.
func WithCache(inner Store, size int) (Store, error) {
	if size <= 0 {
		return inner, nil
	}
	cache, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, err
	}
	return &CachedStore{inner: inner, cache: cache}, nil
}

func (s *CachedStore) Read(ctx context.Context, key []byte) ([]byte, error) {
	if val, ok := s.cache.Get(string(key)); ok {
		atomic.AddUint64(&s.hits, 1)
		out := make([]byte, len(val))
		copy(out, val)
		return out, nil
	}
	atomic.AddUint64(&s.misses, 1)

	val, err := s.inner.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	s.cache.Add(string(key), val)
	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

func (s *CachedStore) Write(ctx context.Context, key, value []byte) error {
	if err := s.inner.Write(ctx, key, value); err != nil {
		return err
	}
	v := make([]byte, len(value))
	copy(v, value)
	s.cache.Add(string(key), v)
	return nil
}

func (s *CachedStore) Delete(ctx context.Context, key []byte) error {
	if err := s.inner.Delete(ctx, key); err != nil {
		return err
	}
	s.cache.Remove(string(key))
	return nil
}

func (s *CachedStore) Batch(ctx context.Context, ops []BatchOperation) error {
	if err := s.inner.Batch(ctx, ops); err != nil {
		return err
	}
	for _, op := range ops {
		switch op.Type {
		case BatchPut:
			v := make([]byte, len(op.Value))
			copy(v, op.Value)
			s.cache.Add(string(op.Key), v)
		case BatchDelete:
			s.cache.Remove(string(op.Key))
		}
	}
	return nil
}

// Iterate bypasses the cache; range scans read the backing store directly.
func (s *CachedStore) Iterate(ctx context.Context, start, end []byte) (Iterator, error) {
	return s.inner.Iterate(ctx, start, end)
}

func (s *CachedStore) Close() error {
	s.cache.Purge()
	return s.inner.Close()
}

// Stats reports cache hits and misses since startup.
func (s *CachedStore) Stats() (hits, misses uint64) {
	return atomic.LoadUint64(&s.hits), atomic.LoadUint64(&s.misses)
}
