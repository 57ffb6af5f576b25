// Package state layers named JSON-document collections over the kv store.
// It is the node's rendition of the findOne/insertOne/updateOne/deleteOne
// store contract: the execution engine is the single writer, so updates are
// plain read-modify-write round trips on whole documents.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/echelon-net/echelond/internal/storage/kv"
)

// Collection names. Keys are <collection> 0x00 <id>; ids that embed padded
// amounts therefore iterate in numeric order.
const (
	CollAccounts       = "accounts"
	CollTokens         = "tokens"
	CollPools          = "pools"
	CollLpPositions    = "lppositions"
	CollPairs          = "pairs"
	CollOrders         = "orders"
	CollTrades         = "trades"
	CollNFTCollections = "nftcollections"
	CollNFTs           = "nfts"
	CollNFTListings    = "nftlistings"
	CollNFTBids        = "nftbids"
	CollNFTOffers      = "nftoffers"
	CollLaunchpads     = "launchpads"
	CollFarms          = "farms"
	CollFarmStakes     = "farmstakes"
	CollWitnessVotes   = "witnessvotes"
	CollChain          = "chain"
)

const keySeparator = byte(0)

// Store provides document access on top of a kv backend.
type Store struct {
	kv kv.Store
}

func New(backing kv.Store) *Store {
	return &Store{kv: backing}
}

// KV exposes the backing store for components that need raw access (block
// archive, book rebuild scans).
func (s *Store) KV() kv.Store { return s.kv }

func docKey(collection, id string) []byte {
	key := make([]byte, 0, len(collection)+1+len(id))
	key = append(key, collection...)
	key = append(key, keySeparator)
	key = append(key, id...)
	return key
}

// Get unmarshals the document with the given id into out. It reports
// found=false without error when the document does not exist.
func (s *Store) Get(ctx context.Context, collection, id string, out any) (bool, error) {
	raw, err := s.kv.Read(ctx, docKey(collection, id))
	if err != nil {
		if errors.Is(err, kv.ErrKeyNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("read %s/%s: %w", collection, id, err)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return false, fmt.Errorf("decode %s/%s: %w", collection, id, err)
		}
	}
	return true, nil
}

// Has reports whether a document exists.
func (s *Store) Has(ctx context.Context, collection, id string) (bool, error) {
	return s.Get(ctx, collection, id, nil)
}

// Put inserts or replaces the document. Serialization is the write-time
// boundary where over-wide amounts are rejected.
func (s *Store) Put(ctx context.Context, collection, id string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	if err := s.kv.Write(ctx, docKey(collection, id), raw); err != nil {
		return fmt.Errorf("write %s/%s: %w", collection, id, err)
	}
	return nil
}

// Delete removes the document, reporting whether it existed.
func (s *Store) Delete(ctx context.Context, collection, id string) (bool, error) {
	key := docKey(collection, id)
	if _, err := s.kv.Read(ctx, key); err != nil {
		if errors.Is(err, kv.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := s.kv.Delete(ctx, key); err != nil {
		return false, fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return true, nil
}

// Scan walks every document in the collection in id order. The callback
// returns false to stop early.
func (s *Store) Scan(ctx context.Context, collection string, fn func(id string, raw []byte) (bool, error)) error {
	return s.ScanPrefix(ctx, collection, "", fn)
}

// ScanPrefix walks documents whose id starts with idPrefix, in id order.
func (s *Store) ScanPrefix(ctx context.Context, collection, idPrefix string, fn func(id string, raw []byte) (bool, error)) error {
	start := docKey(collection, idPrefix)
	it, err := s.kv.Iterate(ctx, start, kv.PrefixEnd(start))
	if err != nil {
		return err
	}
	defer it.Close()

	skip := len(collection) + 1
	for it.Next() {
		id := string(it.Key()[skip:])
		cont, err := fn(id, it.Value())
		if err != nil {
			return err
		}
		if !cont {
			break
		}
	}
	return it.Error()
}

// Decode unmarshals a raw scanned document.
func Decode(raw []byte, out any) error { return json.Unmarshal(raw, out) }

// Count returns the number of documents in a collection.
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	n := 0
	err := s.Scan(ctx, collection, func(string, []byte) (bool, error) {
		n++
		return true, nil
	})
	return n, err
}
