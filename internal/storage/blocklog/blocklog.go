// Package blocklog archives raw source-chain blocks by height. Records are
// lz4 block-compressed (selectable off) and live in the same kv store as
// world state under their own prefix, so a node carries everything needed
// for replay in one database.
package blocklog

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/pierrec/lz4"

	"github.com/echelon-net/echelond/internal/storage/kv"
)

// Compression modes accepted by New.
const (
	CompressionLZ4  = "lz4"
	CompressionNone = "none"
)

// Blocks smaller than this are stored raw; the lz4 frame overhead is not
// worth it.
const minCompressSize = 128

// Record layout: one flag byte, then the payload. Compressed records carry
// the uncompressed size so decompression allocates exactly once.
const (
	flagRaw = byte(0)
	flagLZ4 = byte(1)
)

// ErrNotArchived is returned when no block is stored at the given height.
var ErrNotArchived = errors.New("block not archived")

var keyPrefix = []byte("blocklog\x00")

// Log is the height-keyed block archive.
type Log struct {
	kv       kv.Store
	compress bool
}

// New opens the archive over a kv store. compression is "lz4" (default) or
// "none".
func New(backing kv.Store, compression string) (*Log, error) {
	switch compression {
	case CompressionLZ4, "":
		return &Log{kv: backing, compress: true}, nil
	case CompressionNone:
		return &Log{kv: backing, compress: false}, nil
	default:
		return nil, fmt.Errorf("unknown blocklog compression %q", compression)
	}
}

func blockKey(height uint64) []byte {
	key := make([]byte, len(keyPrefix)+8)
	copy(key, keyPrefix)
	binary.BigEndian.PutUint64(key[len(keyPrefix):], height)
	return key
}

// Append stores the raw block JSON at height, replacing any previous record.
func (l *Log) Append(ctx context.Context, height uint64, raw []byte) error {
	if err := l.kv.Write(ctx, blockKey(height), l.encode(raw)); err != nil {
		return fmt.Errorf("archive block %d: %w", height, err)
	}
	return nil
}

// Block returns the raw block JSON stored at height.
func (l *Log) Block(ctx context.Context, height uint64) ([]byte, error) {
	rec, err := l.kv.Read(ctx, blockKey(height))
	if err != nil {
		if errors.Is(err, kv.ErrKeyNotFound) {
			return nil, ErrNotArchived
		}
		return nil, fmt.Errorf("read block %d: %w", height, err)
	}
	raw, err := decode(rec)
	if err != nil {
		return nil, fmt.Errorf("decode block %d: %w", height, err)
	}
	return raw, nil
}

// Has reports whether a block is archived at height.
func (l *Log) Has(ctx context.Context, height uint64) (bool, error) {
	_, err := l.kv.Read(ctx, blockKey(height))
	if err != nil {
		if errors.Is(err, kv.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Walk visits archived blocks in height order starting at from. fn returns
// stop=true to end the walk early.
func (l *Log) Walk(ctx context.Context, from uint64, fn func(height uint64, raw []byte) (stop bool, err error)) error {
	it, err := l.kv.Iterate(ctx, blockKey(from), kv.PrefixEnd(keyPrefix))
	if err != nil {
		return fmt.Errorf("walk blocks: %w", err)
	}
	defer it.Close()
	for it.Next() {
		key := it.Key()
		if len(key) != len(keyPrefix)+8 {
			continue
		}
		height := binary.BigEndian.Uint64(key[len(keyPrefix):])
		raw, err := decode(it.Value())
		if err != nil {
			return fmt.Errorf("decode block %d: %w", height, err)
		}
		stop, err := fn(height, raw)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
	return it.Error()
}

// encode wraps raw in the record format, compressing when that wins.
func (l *Log) encode(raw []byte) []byte {
	if l.compress && len(raw) > minCompressSize {
		bound := lz4.CompressBlockBound(len(raw))
		dst := make([]byte, 5+bound)
		n, err := lz4.CompressBlock(raw, dst[5:], nil)
		// n == 0 means incompressible; fall through to the raw record.
		if err == nil && n > 0 && n < len(raw) {
			dst[0] = flagLZ4
			binary.BigEndian.PutUint32(dst[1:5], uint32(len(raw)))
			return dst[:5+n]
		}
	}
	rec := make([]byte, 1+len(raw))
	rec[0] = flagRaw
	copy(rec[1:], raw)
	return rec
}

func decode(rec []byte) ([]byte, error) {
	if len(rec) < 1 {
		return nil, errors.New("empty record")
	}
	switch rec[0] {
	case flagRaw:
		out := make([]byte, len(rec)-1)
		copy(out, rec[1:])
		return out, nil
	case flagLZ4:
		if len(rec) < 5 {
			return nil, errors.New("truncated lz4 record")
		}
		size := binary.BigEndian.Uint32(rec[1:5])
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(rec[5:], out)
		if err != nil {
			return nil, err
		}
		return out[:n], nil
	default:
		return nil, fmt.Errorf("unknown record flag %d", rec[0])
	}
}
