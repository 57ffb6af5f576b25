package kv

import (
	"context"
	"sort"
)

// Overlay stages writes on top of a base store, the way an indexed pebble
// batch shadows its database: reads and iteration see the staged state,
// but nothing reaches the base until Flush applies the net result as one
// atomic batch. Marks let a caller roll back just the writes staged after
// a checkpoint, which is what batched transaction execution needs to undo
// one failed sub-operation.
//
// An Overlay is not safe for concurrent use; it lives inside a single
// transaction's execution.
type Overlay struct {
	base    Store
	pending map[string]overlayEntry
	log     []overlayUndo
}

type overlayEntry struct {
	value   []byte
	deleted bool
}

// overlayUndo remembers what a key's staged entry looked like before one
// Write or Delete, so RollbackTo can restore it exactly.
type overlayUndo struct {
	key     string
	prior   overlayEntry
	existed bool
}

func NewOverlay(base Store) *Overlay {
	return &Overlay{base: base, pending: make(map[string]overlayEntry)}
}

func (o *Overlay) stage(key string, e overlayEntry) {
	prior, existed := o.pending[key]
	o.log = append(o.log, overlayUndo{key: key, prior: prior, existed: existed})
	o.pending[key] = e
}

func (o *Overlay) Read(ctx context.Context, key []byte) ([]byte, error) {
	if e, ok := o.pending[string(key)]; ok {
		if e.deleted {
			return nil, ErrKeyNotFound
		}
		out := make([]byte, len(e.value))
		copy(out, e.value)
		return out, nil
	}
	return o.base.Read(ctx, key)
}

func (o *Overlay) Write(ctx context.Context, key, value []byte) error {
	v := make([]byte, len(value))
	copy(v, value)
	o.stage(string(key), overlayEntry{value: v})
	return nil
}

func (o *Overlay) Delete(ctx context.Context, key []byte) error {
	o.stage(string(key), overlayEntry{deleted: true})
	return nil
}

func (o *Overlay) Batch(ctx context.Context, ops []BatchOperation) error {
	for _, op := range ops {
		switch op.Type {
		case BatchPut:
			if err := o.Write(ctx, op.Key, op.Value); err != nil {
				return err
			}
		case BatchDelete:
			if err := o.Delete(ctx, op.Key); err != nil {
				return err
			}
		}
	}
	return nil
}

// Iterate merges the base store's range with the staged entries. Staged
// writes shadow base keys and staged deletes suppress them.
func (o *Overlay) Iterate(ctx context.Context, start, end []byte) (Iterator, error) {
	base, err := o.base.Iterate(ctx, start, end)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(o.pending))
	for k := range o.pending {
		if start != nil && k < string(start) {
			continue
		}
		if end != nil && k >= string(end) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	staged := make([]stagedEntry, len(keys))
	for i, k := range keys {
		e := o.pending[k]
		staged[i] = stagedEntry{key: k, value: e.value, deleted: e.deleted}
	}

	it := &overlayIterator{base: base, staged: staged}
	it.baseOK = base.Next()
	return it, nil
}

// Close detaches the overlay without touching the base store. Unflushed
// writes are discarded.
func (o *Overlay) Close() error {
	o.pending = make(map[string]overlayEntry)
	o.log = nil
	return nil
}

// Mark returns a checkpoint for RollbackTo.
func (o *Overlay) Mark() int { return len(o.log) }

// RollbackTo discards every write staged after the mark, newest first.
func (o *Overlay) RollbackTo(mark int) {
	if mark < 0 {
		mark = 0
	}
	for i := len(o.log) - 1; i >= mark; i-- {
		u := o.log[i]
		if u.existed {
			o.pending[u.key] = u.prior
		} else {
			delete(o.pending, u.key)
		}
	}
	o.log = o.log[:mark]
}

// Flush applies the staged state to the base store as one atomic batch, in
// key order, and resets the overlay.
func (o *Overlay) Flush(ctx context.Context) error {
	if len(o.pending) == 0 {
		return nil
	}
	keys := make([]string, 0, len(o.pending))
	for k := range o.pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ops := make([]BatchOperation, 0, len(keys))
	for _, k := range keys {
		e := o.pending[k]
		if e.deleted {
			ops = append(ops, BatchOperation{Type: BatchDelete, Key: []byte(k)})
			continue
		}
		ops = append(ops, BatchOperation{Type: BatchPut, Key: []byte(k), Value: e.value})
	}
	if err := o.base.Batch(ctx, ops); err != nil {
		return err
	}
	o.pending = make(map[string]overlayEntry)
	o.log = nil
	return nil
}

type stagedEntry struct {
	key     string
	value   []byte
	deleted bool
}

// overlayIterator merges a base iterator with sorted staged entries.
// Staged entries win on key collisions.
type overlayIterator struct {
	base   Iterator
	baseOK bool
	staged []stagedEntry
	pos    int

	key, value []byte
}

func (it *overlayIterator) Next() bool {
	for {
		hasStaged := it.pos < len(it.staged)
		if !it.baseOK && !hasStaged {
			return false
		}

		if it.baseOK && (!hasStaged || string(it.base.Key()) < it.staged[it.pos].key) {
			it.key = it.base.Key()
			it.value = it.base.Value()
			it.baseOK = it.base.Next()
			return true
		}

		e := it.staged[it.pos]
		it.pos++
		if it.baseOK && string(it.base.Key()) == e.key {
			it.baseOK = it.base.Next()
		}
		if e.deleted {
			continue
		}
		it.key = []byte(e.key)
		it.value = append([]byte(nil), e.value...)
		return true
	}
}

func (it *overlayIterator) Key() []byte   { return it.key }
func (it *overlayIterator) Value() []byte { return it.value }
func (it *overlayIterator) Error() error  { return it.base.Error() }
func (it *overlayIterator) Close() error  { return it.base.Close() }
