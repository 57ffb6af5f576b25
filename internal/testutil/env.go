// Package testutil provides the chain environment used by handler and
// integration tests: an in-memory store, a funded master account, the
// native token and a dispatcher.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/echelon-net/echelond/internal/core/account"
	"github.com/echelon-net/echelond/internal/core/amount"
	"github.com/echelon-net/echelond/internal/core/book"
	"github.com/echelon-net/echelond/internal/core/token"
	"github.com/echelon-net/echelond/internal/core/tx"
	_ "github.com/echelon-net/echelond/internal/core/tx/all"
	"github.com/echelon-net/echelond/internal/core/witness"
	"github.com/echelon-net/echelond/internal/state"
	"github.com/echelon-net/echelond/internal/storage/kv"
)

// Env is a self-contained chain for tests. Execute runs envelopes through
// the real dispatcher; Height and Now advance only when the test says so.
type Env struct {
	T          *testing.T
	Store      *state.Store
	Ledger     *account.Ledger
	Books      *book.Registry
	Dispatcher *tx.Dispatcher
	Params     tx.Params

	Height uint64
	Now    int64

	txSeq int
}

// NewEnv boots a chain at height 1 with the master account and the native
// token in place.
func NewEnv(t *testing.T) *Env {
	t.Helper()
	store, err := kv.Open(kv.BackendMemory, "")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	params := tx.DefaultParams()
	st := state.New(store)
	ledger := account.NewLedger(st, params.NativeSymbol)
	ledger.SetBalanceHook(witness.BalanceHook(ledger))
	env := &Env{
		T:      t,
		Store:  st,
		Ledger: ledger,
		Books:  book.NewRegistry(),
		Params: params,
		Height: 1,
		Now:    1_700_000_000,
	}
	env.Dispatcher = tx.NewDispatcher(st, ledger, env.Books, params)

	ctx := context.Background()
	_, err = ledger.Ensure(ctx, params.MasterAccount, env.Now)
	require.NoError(t, err)
	require.NoError(t, token.Put(ctx, st, &token.Token{
		Identifier: params.NativeSymbol,
		Symbol:     params.NativeSymbol,
		Name:       "Echelon",
		Issuer:     params.MasterAccount,
		Precision:  params.NativeDecimals,
		Mintable:   true,
		Burnable:   true,
		CreatedAt:  env.Now,
	}))
	return env
}

// Ctx returns the context tests should pass to state helpers.
func (e *Env) Ctx() context.Context { return context.Background() }

// Execute dispatches one transaction with a generated tx id.
func (e *Env) Execute(typ tx.Type, sender, payload string) *tx.Receipt {
	e.txSeq++
	env := &tx.Envelope{
		ID:     fmt.Sprintf("tx-%d", e.txSeq),
		Type:   typ,
		Sender: sender,
		Data:   json.RawMessage(payload),
	}
	return e.Dispatcher.Execute(context.Background(), env, e.Height, e.Now)
}

// MustExecute dispatches and fails the test if the transaction did not
// apply.
func (e *Env) MustExecute(typ tx.Type, sender, payload string) *tx.Receipt {
	e.T.Helper()
	rcpt := e.Execute(typ, sender, payload)
	require.True(e.T, rcpt.OK, "%s by %s: %s", typ, sender, rcpt.Error)
	return rcpt
}

// Fund creates the account if needed and credits a spendable balance.
func (e *Env) Fund(name, identifier, raw string) {
	e.T.Helper()
	ctx := context.Background()
	_, err := e.Ledger.Ensure(ctx, name, e.Now)
	require.NoError(e.T, err)
	require.NoError(e.T, e.Ledger.Adjust(ctx, name, identifier, amount.MustParse(raw)))
}

// Account loads an account and fails the test when it does not exist.
func (e *Env) Account(name string) *account.Account {
	e.T.Helper()
	acct, found, err := e.Ledger.Get(context.Background(), name)
	require.NoError(e.T, err)
	require.True(e.T, found, "account %s not found", name)
	return acct
}

// Balance returns the spendable balance as a plain decimal string.
func (e *Env) Balance(name, identifier string) string {
	e.T.Helper()
	return e.Account(name).Balance(identifier).String()
}

// Held returns the escrowed balance as a plain decimal string.
func (e *Env) Held(name, identifier string) string {
	e.T.Helper()
	return e.Account(name).Held(identifier).String()
}

// CreateToken issues a token via TOKEN_CREATE and returns its identifier.
func (e *Env) CreateToken(sender, symbol string, precision int, initialRaw string) string {
	e.T.Helper()
	payload := fmt.Sprintf(`{"symbol":%q,"name":"%s token","precision":%d,"initialSupply":%q}`,
		symbol, symbol, precision, initialRaw)
	e.MustExecute(tx.TypeTokenCreate, sender, payload)
	return token.Identifier(symbol, sender, e.Params.MasterAccount)
}

// AdvanceBlocks moves the chain forward n blocks of 3 seconds.
func (e *Env) AdvanceBlocks(n uint64) {
	e.Height += n
	e.Now += int64(n) * 3
}
