package tx

import (
	"context"
	"fmt"
	"log"

	"github.com/echelon-net/echelond/internal/core/account"
	"github.com/echelon-net/echelond/internal/core/book"
	"github.com/echelon-net/echelond/internal/core/event"
	"github.com/echelon-net/echelond/internal/state"
)

// Receipt is the outcome of executing one envelope. Failed transactions
// leave no state changes behind except account upserts and order nonce
// increments; their receipts carry the failure reason and no events.
type Receipt struct {
	TxID     string
	Type     Type
	Sender   string
	OK       bool
	Error    string
	Accounts []string
	Events   []event.Event
}

// Dispatcher executes envelopes serially against chain state.
type Dispatcher struct {
	store  *state.Store
	ledger *account.Ledger
	books  *book.Registry
	params Params
}

func NewDispatcher(store *state.Store, ledger *account.Ledger, books *book.Registry, params Params) *Dispatcher {
	return &Dispatcher{store: store, ledger: ledger, books: books, params: params}
}

// Params returns the chain parameters the dispatcher was built with.
func (d *Dispatcher) Params() Params { return d.params }

// Execute runs one envelope at the given block height and time. It never
// returns an error: failures are captured on the receipt so block
// processing can continue with the next transaction.
func (d *Dispatcher) Execute(ctx context.Context, env *Envelope, height uint64, blockTime int64) *Receipt {
	rcpt := &Receipt{TxID: env.ID, Type: env.Type, Sender: env.Sender}

	if !env.Type.Valid() {
		rcpt.Error = fmt.Sprintf("unknown transaction type: %d", uint16(env.Type))
		log.Printf("[tx] %s rejected: %s", env.ID, rcpt.Error)
		return rcpt
	}
	if !account.ValidName(env.Sender) {
		rcpt.Error = fmt.Sprintf("invalid %s: %v: %q", env.Type, ErrBadSender, env.Sender)
		return rcpt
	}

	op, err := Decode(env.Type, env.Data)
	if err != nil {
		rcpt.Error = fmt.Sprintf("invalid %s: %v", env.Type, err)
		return rcpt
	}

	if err := d.verifySignature(ctx, env); err != nil {
		rcpt.Error = fmt.Sprintf("invalid %s: %v", env.Type, err)
		return rcpt
	}

	// Upserts survive transaction failure: a referenced account exists from
	// the moment it is first named on chain.
	rcpt.Accounts = ExtractAccounts(env.Sender, env.Data)
	if err := d.ledger.EnsureAll(ctx, rcpt.Accounts, blockTime); err != nil {
		rcpt.Error = fmt.Sprintf("failed to process %s: %v", env.Type, err)
		log.Printf("[tx] %s %s: account upsert failed: %v", env.Type, env.ID, err)
		return rcpt
	}

	journal := account.NewJournal(d.ledger)
	tc := &Context{
		Ctx:       ctx,
		Store:     d.store,
		Ledger:    d.ledger,
		Journal:   journal,
		Events:    event.NewRecorder(env.ID, blockTime),
		Books:     d.books,
		Params:    d.params,
		TxID:      env.ID,
		Sender:    env.Sender,
		Timestamp: blockTime,
		Height:    height,
	}

	if err := op.Validate(tc); err != nil {
		rcpt.Error = fmt.Sprintf("invalid %s: %v", env.Type, err)
		return rcpt
	}
	if err := op.Apply(tc); err != nil {
		journal.Unwind(ctx)
		rcpt.Error = fmt.Sprintf("failed to process %s: %v", env.Type, err)
		log.Printf("[tx] %s %s failed: %v", env.Type, env.ID, err)
		return rcpt
	}

	journal.Commit()
	rcpt.OK = true
	rcpt.Events = tc.Events.Events()
	return rcpt
}

// verifySignature enforces envelope signatures when enabled. Only senders
// with a registered witness key are held to it; everyone else predates key
// registration and keeps working unsigned.
func (d *Dispatcher) verifySignature(ctx context.Context, env *Envelope) error {
	if !d.params.RequireSignatures {
		return nil
	}
	acct, found, err := d.ledger.Get(ctx, env.Sender)
	if err != nil {
		return err
	}
	if !found || acct.WitnessPublicKey == "" {
		return nil
	}
	if env.Signature == "" {
		return fmt.Errorf("%w: missing signature", ErrBadSignature)
	}
	return VerifyEnvelope(acct.WitnessPublicKey, env)
}
