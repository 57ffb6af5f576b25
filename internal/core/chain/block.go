// Package chain turns raw source-chain blocks into executed state: parsing
// the block contract, dispatching the sidechain transactions each block
// carries, writing the read projections and advancing the chain head.
package chain

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/echelon-net/echelond/internal/core/tx"
	"github.com/echelon-net/echelond/internal/crypto"
)

// Operation types the node understands. Everything else is carried by the
// source chain for someone else and ignored.
const (
	OpCustomJSON = "custom_json"
	OpComment    = "comment"
)

// Block is the raw source-chain block contract:
// {transactions:[{operations:[[type, data], ...]}], timestamp}.
type Block struct {
	Transactions []BlockTx `json:"transactions"`
	Timestamp    string    `json:"timestamp"`
}

// BlockTx is one source-chain transaction, a list of typed operations.
type BlockTx struct {
	Operations []Operation `json:"operations"`
}

// Operation is one [type, data] tuple.
type Operation struct {
	Type string
	Data json.RawMessage
}

func (o *Operation) UnmarshalJSON(raw []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(raw, &tuple); err != nil {
		return fmt.Errorf("operation is not a tuple: %w", err)
	}
	if len(tuple) != 2 {
		return fmt.Errorf("operation tuple has %d elements, want 2", len(tuple))
	}
	if err := json.Unmarshal(tuple[0], &o.Type); err != nil {
		return fmt.Errorf("operation type: %w", err)
	}
	o.Data = tuple[1]
	return nil
}

func (o Operation) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]json.RawMessage{mustJSON(o.Type), o.Data})
}

func mustJSON(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return raw
}

// customJSON is the operation payload sidechain envelopes ride in. The
// json field arrives either as an embedded string (source-chain native) or
// as a plain object.
type customJSON struct {
	ID                   string    `json:"id"`
	JSON                 jsonField `json:"json"`
	RequiredAuths        []string  `json:"required_auths"`
	RequiredPostingAuths []string  `json:"required_posting_auths"`
}

type jsonField []byte

func (f *jsonField) UnmarshalJSON(raw []byte) error {
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		*f = []byte(s)
		return nil
	}
	*f = append((*f)[:0], raw...)
	return nil
}

// Comment is a content operation surfaced off the block for downstream
// consumers; the node itself never acts on one.
type Comment struct {
	Author   string `json:"author"`
	Permlink string `json:"permlink"`
	Body     string `json:"body"`
}

// ParseBlock decodes a raw block.
func ParseBlock(raw []byte) (*Block, error) {
	var b Block
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("parse block: %w", err)
	}
	return &b, nil
}

// Time parses the block timestamp. Source chains emit ISO8601 without a
// zone suffix; both forms are accepted and read as UTC.
func (b *Block) Time() (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, b.Timestamp); err == nil {
		return ts.UTC(), nil
	}
	ts, err := time.Parse("2006-01-02T15:04:05", b.Timestamp)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse block timestamp %q: %w", b.Timestamp, err)
	}
	return ts.UTC(), nil
}

// Envelopes extracts the sidechain transactions addressed to chainID, in
// block order, plus the surfaced comment operations. Malformed operations
// are logged and skipped so one bad payload cannot stall the chain.
func (b *Block) Envelopes(chainID string, height uint64, blockTime int64) ([]*tx.Envelope, []Comment) {
	var envs []*tx.Envelope
	var comments []Comment
	for txIdx, btx := range b.Transactions {
		for opIdx, op := range btx.Operations {
			switch op.Type {
			case OpComment:
				var c Comment
				if err := json.Unmarshal(op.Data, &c); err != nil {
					log.Printf("[chain] block %d tx %d op %d: bad comment: %v", height, txIdx, opIdx, err)
					continue
				}
				comments = append(comments, c)
			case OpCustomJSON:
				var cj customJSON
				if err := json.Unmarshal(op.Data, &cj); err != nil {
					log.Printf("[chain] block %d tx %d op %d: bad custom_json: %v", height, txIdx, opIdx, err)
					continue
				}
				if cj.ID != chainID {
					continue
				}
				env, err := tx.ParseEnvelope(cj.JSON)
				if err != nil {
					log.Printf("[chain] block %d tx %d op %d: bad envelope: %v", height, txIdx, opIdx, err)
					continue
				}
				if env.ID == "" {
					// Deterministic fallback id from the envelope's block position.
					env.ID = crypto.ShortID(16,
						chainID,
						strconv.FormatUint(height, 10),
						strconv.Itoa(txIdx),
						strconv.Itoa(opIdx),
						string(cj.JSON))
				}
				if env.Timestamp == 0 {
					env.Timestamp = blockTime
				}
				envs = append(envs, env)
			}
		}
	}
	return envs, comments
}
