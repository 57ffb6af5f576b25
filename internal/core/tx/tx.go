// Package tx defines the transaction envelope, the operation interface
// implemented by every transaction type, and the dispatcher that executes
// envelopes against chain state.
package tx

import (
	"context"
	"errors"

	"github.com/echelon-net/echelond/internal/core/account"
	"github.com/echelon-net/echelond/internal/core/amount"
	"github.com/echelon-net/echelond/internal/core/book"
	"github.com/echelon-net/echelond/internal/core/event"
	"github.com/echelon-net/echelond/internal/state"
)

// Common dispatch errors.
var (
	ErrUnknownType  = errors.New("unknown transaction type")
	ErrBadSender    = errors.New("invalid sender account name")
	ErrNotMaster    = errors.New("restricted to the master account")
	ErrBadSignature = errors.New("envelope signature verification failed")
)

// Operation is one decoded transaction. Validate performs read-only checks;
// Apply mutates state through the context's journal and store and may fail,
// in which case the dispatcher unwinds the journal.
type Operation interface {
	TxType() Type
	Validate(ctx *Context) error
	Apply(ctx *Context) error
}

// Params are the chain parameters shared by all handlers.
type Params struct {
	// ChainID is the custom_json operation id carrying sidechain envelopes.
	ChainID string

	// NativeSymbol is the chain's native token; NativeDecimals its precision.
	NativeSymbol   string
	NativeDecimals uint8

	// MasterAccount issues the native token and holds admin rights.
	MasterAccount string

	// BlockReward is the per-block native emission budget shared by native
	// farms proportionally to weight.
	BlockReward amount.Amount

	// MaxTradeAmount caps order quantity, total and escrow.
	MaxTradeAmount amount.Amount

	// RequireSignatures turns on envelope signature checks for senders with
	// a registered witness key.
	RequireSignatures bool
}

// DefaultParams returns the chain defaults.
func DefaultParams() Params {
	return Params{
		ChainID:        "echelon",
		NativeSymbol:   "ECH",
		NativeDecimals: 8,
		MasterAccount:  "echelon",
		BlockReward:    amount.MustParse("100000000"), // 1 ECH
		MaxTradeAmount: amount.PowTen(21),
	}
}

// Context carries everything a handler may touch while validating and
// applying one transaction.
type Context struct {
	Ctx     context.Context
	Store   *state.Store
	Ledger  *account.Ledger
	Journal *account.Journal
	Events  *event.Recorder
	Books   *book.Registry
	Params  Params

	TxID      string
	Sender    string
	Timestamp int64 // block time, unix seconds
	Height    uint64
}

// IsMaster reports whether the transaction sender is the master account.
func (c *Context) IsMaster() bool { return c.Sender == c.Params.MasterAccount }

// Emit journals an event with the sender as actor.
func (c *Context) Emit(category, action string, data map[string]any) {
	c.Events.Emit(category, action, c.Sender, data)
}

// EmitAs journals an event on behalf of another actor.
func (c *Context) EmitAs(actor, category, action string, data map[string]any) {
	c.Events.Emit(category, action, actor, data)
}
