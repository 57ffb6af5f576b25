package nft

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/echelon-net/echelond/internal/core/event"
	"github.com/echelon-net/echelond/internal/core/tx"
)

// MaxBatchOperations caps one NFT_BATCH_OPERATIONS envelope.
const MaxBatchOperations = 50

var (
	ErrBatchConflict = errors.New("conflicting operations in batch")
	errEmptyBatch    = errors.New("batch has no operations")
	errBatchTooLarge = errors.New("batch exceeds 50 operations")
	errBadSubType    = errors.New("operation type not allowed in a batch")
)

// batchable is the set of sub-operation types a batch may carry: the NFT
// family, minus nested batches.
var batchable = map[tx.Type]bool{
	tx.TypeNFTCreateCollection: true,
	tx.TypeNFTMint:             true,
	tx.TypeNFTTransfer:         true,
	tx.TypeNFTListItem:         true,
	tx.TypeNFTDelistItem:       true,
	tx.TypeNFTBuyItem:          true,
	tx.TypeNFTUpdate:           true,
	tx.TypeNFTUpdateCollection: true,
	tx.TypeNFTAcceptBid:        true,
	tx.TypeNFTCancelBid:        true,
	tx.TypeNFTMakeOffer:        true,
	tx.TypeNFTAcceptOffer:      true,
	tx.TypeNFTCancelOffer:      true,
}

// BatchOperation is one entry of a batch, typed by wire name.
type BatchOperation struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// BatchOperations is NFT_BATCH_OPERATIONS. Sub-operations run in order
// under the sender of the envelope. Atomic batches stop at the first
// failure and the dispatcher unwinds everything; non-atomic batches undo
// only the failed sub-operation and report per-operation results.
type BatchOperations struct {
	Atomic     bool             `json:"atomic,omitempty"`
	Operations []BatchOperation `json:"operations"`
}

func init() {
	tx.Register(tx.TypeNFTBatchOperations, func() tx.Operation { return &BatchOperations{} })
}

func (b *BatchOperations) TxType() tx.Type { return tx.TypeNFTBatchOperations }

// conflictKey identifies the resource a sub-operation contends on, or ""
// when the operation cannot conflict inside one batch.
func conflictKey(typ tx.Type, data json.RawMessage) string {
	switch typ {
	case tx.TypeNFTListItem:
		var p struct {
			TokenID string `json:"tokenId"`
		}
		if json.Unmarshal(data, &p) == nil && p.TokenID != "" {
			return "list:" + p.TokenID
		}
	case tx.TypeNFTDelistItem:
		var p struct {
			ListingID string `json:"listingId"`
		}
		if json.Unmarshal(data, &p) == nil && p.ListingID != "" {
			return "delist:" + p.ListingID
		}
	case tx.TypeNFTMint:
		var p struct {
			Collection string `json:"collectionSymbol"`
			Name       string `json:"name"`
		}
		if json.Unmarshal(data, &p) == nil && p.Name != "" {
			return "mint:" + p.Collection + "#" + p.Name
		}
	}
	return ""
}

func (b *BatchOperations) Validate(ctx *tx.Context) error {
	if len(b.Operations) == 0 {
		return errEmptyBatch
	}
	if len(b.Operations) > MaxBatchOperations {
		return errBatchTooLarge
	}
	seen := make(map[string]int, len(b.Operations))
	for i, bo := range b.Operations {
		typ, ok := tx.TypeFromName(bo.Type)
		if !ok || !batchable[typ] {
			return fmt.Errorf("%w: operation %d is %q", errBadSubType, i, bo.Type)
		}
		if _, err := tx.Decode(typ, bo.Data); err != nil {
			return fmt.Errorf("operation %d (%s): %w", i, bo.Type, err)
		}
		if key := conflictKey(typ, bo.Data); key != "" {
			if j, dup := seen[key]; dup {
				return fmt.Errorf("%w: operations %d and %d touch %s", ErrBatchConflict, j, i, key)
			}
			seen[key] = i
		}
	}
	return nil
}

func (b *BatchOperations) Apply(ctx *tx.Context) error {
	results := make([]map[string]any, 0, len(b.Operations))
	succeeded := 0
	for i, bo := range b.Operations {
		typ, _ := tx.TypeFromName(bo.Type)
		op, err := tx.Decode(typ, bo.Data)
		if err == nil {
			mark := ctx.Journal.Mark()
			evMark := ctx.Events.Len()
			if err = op.Validate(ctx); err == nil {
				err = op.Apply(ctx)
			}
			if err != nil && !b.Atomic {
				ctx.Journal.UnwindTo(ctx.Ctx, mark)
				ctx.Events.TruncateTo(evMark)
			}
		}
		if err != nil {
			if b.Atomic {
				return fmt.Errorf("operation %d (%s): %w", i, bo.Type, err)
			}
			results = append(results, map[string]any{
				"index": i, "type": bo.Type, "ok": false, "error": err.Error(),
			})
			continue
		}
		succeeded++
		results = append(results, map[string]any{"index": i, "type": bo.Type, "ok": true})
	}
	ctx.Emit(event.CategoryNFT, "batchExecuted", map[string]any{
		"atomic":    b.Atomic,
		"total":     len(b.Operations),
		"succeeded": succeeded,
		"failed":    len(b.Operations) - succeeded,
		"results":   results,
	})
	return nil
}
