package kv

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDBStore is an alternate on-disk backend for deployments that prefer
// goleveldb's single-file simplicity over pebble.
type LevelDBStore struct {
	mu sync.RWMutex
	db *leveldb.DB
}

// OpenLevelDB opens (or creates) a leveldb database at path.
func OpenLevelDB(path string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open leveldb store at %s: %w", path, err)
	}
	return &LevelDBStore{db: db}, nil
}

func (s *LevelDBStore) Read(ctx context.Context, key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, ErrClosed
	}

	val, err := s.db.Get(key, nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	return val, nil
}

func (s *LevelDBStore) Write(ctx context.Context, key, value []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return ErrClosed
	}
	return s.db.Put(key, value, nil)
}

func (s *LevelDBStore) Delete(ctx context.Context, key []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return ErrClosed
	}
	return s.db.Delete(key, nil)
}

func (s *LevelDBStore) Batch(ctx context.Context, ops []BatchOperation) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return ErrClosed
	}

	batch := new(leveldb.Batch)
	for _, op := range ops {
		switch op.Type {
		case BatchPut:
			batch.Put(op.Key, op.Value)
		case BatchDelete:
			batch.Delete(op.Key)
		default:
			return fmt.Errorf("unknown batch operation type: %d", op.Type)
		}
	}
	return s.db.Write(batch, nil)
}

func (s *LevelDBStore) Iterate(ctx context.Context, start, end []byte) (Iterator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, ErrClosed
	}

	iter := s.db.NewIterator(&util.Range{Start: start, Limit: end}, nil)
	return &leveldbIterator{iter: iter}, nil
}

func (s *LevelDBStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

type leveldbIterator struct {
	iter  iterator.Iterator
	key   []byte
	value []byte
}

func (it *leveldbIterator) Next() bool {
	if !it.iter.Next() {
		return false
	}
	it.key = append(it.key[:0], it.iter.Key()...)
	it.value = append(it.value[:0], it.iter.Value()...)
	return true
}

func (it *leveldbIterator) Key() []byte   { return it.key }
func (it *leveldbIterator) Value() []byte { return it.value }
func (it *leveldbIterator) Error() error  { return it.iter.Error() }
func (it *leveldbIterator) Close() error {
	it.iter.Release()
	return nil
}
