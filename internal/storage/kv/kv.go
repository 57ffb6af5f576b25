// Package kv defines the key-value storage interface backing the node's
// world state, with pebble (default), goleveldb and in-memory backends.
package kv

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned when operating on a closed store.
	ErrClosed = errors.New("kv store is closed")
	// ErrKeyNotFound is returned when a key does not exist.
	ErrKeyNotFound = errors.New("key not found")
)

// Store is the contract every backend implements. Values returned by Read
// and iterators are private copies the caller may retain.
type Store interface {
	Read(ctx context.Context, key []byte) ([]byte, error)
	Write(ctx context.Context, key, value []byte) error
	Delete(ctx context.Context, key []byte) error

	Batch(ctx context.Context, ops []BatchOperation) error

	// Iterate walks keys in [start, end) in ascending order. A nil end
	// means no upper bound.
	Iterate(ctx context.Context, start, end []byte) (Iterator, error)

	Close() error
}

// Iterator traverses store entries in key order.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Error() error
	Close() error
}

// BatchOperation is a single write or delete inside an atomic batch.
type BatchOperation struct {
	Type  BatchOpType
	Key   []byte
	Value []byte
}

type BatchOpType int

const (
	BatchPut BatchOpType = iota
	BatchDelete
)

// Backend names accepted by Open.
const (
	BackendPebble  = "pebble"
	BackendLevelDB = "leveldb"
	BackendMemory  = "memory"
)

// Open creates a store of the named backend rooted at path. The memory
// backend ignores path.
func Open(backend, path string) (Store, error) {
	switch backend {
	case BackendPebble, "":
		return OpenPebble(path)
	case BackendLevelDB:
		return OpenLevelDB(path)
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown kv backend %q", backend)
	}
}

// PrefixEnd returns the smallest key strictly greater than every key with
// the given prefix, for use as an exclusive iteration bound. A nil return
// means the prefix has no upper bound.
func PrefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
