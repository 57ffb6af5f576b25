package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/echelon-net/echelond/internal/core/amount"
	"github.com/echelon-net/echelond/internal/state"
)

var (
	// ErrAccountNotFound is returned when adjusting a balance on an
	// account that was never created.
	ErrAccountNotFound = errors.New("account not found")
	// ErrInsufficientBalance is the overdraft guard: no balance or hold
	// may ever go negative.
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// BalanceHook observes spendable native-token changes. The witness module
// installs one so vote weights track balances after every transaction.
type BalanceHook func(ctx context.Context, acct *Account, oldBalance, newBalance amount.Amount) error

// Ledger owns account documents and every balance mutation. Handlers move
// value exclusively through Adjust, Hold, Release and TransferHold, which
// is what makes the journal's reverse-order compensation complete.
type Ledger struct {
	store        *state.Store
	nativeSymbol string
	onNative     BalanceHook
}

func NewLedger(store *state.Store, nativeSymbol string) *Ledger {
	return &Ledger{store: store, nativeSymbol: nativeSymbol}
}

// SetBalanceHook installs the native-balance observer. Wired once at engine
// construction; not safe to change while transactions execute.
func (l *Ledger) SetBalanceHook(fn BalanceHook) { l.onNative = fn }

// NativeSymbol returns the configured native token identifier.
func (l *Ledger) NativeSymbol() string { return l.nativeSymbol }

// Get loads an account.
func (l *Ledger) Get(ctx context.Context, name string) (*Account, bool, error) {
	var acct Account
	found, err := l.store.Get(ctx, state.CollAccounts, name, &acct)
	if err != nil || !found {
		return nil, found, err
	}
	return &acct, true, nil
}

// Save writes an account document back.
func (l *Ledger) Save(ctx context.Context, acct *Account) error {
	return l.store.Put(ctx, state.CollAccounts, acct.Name, acct)
}

// All returns every account in name order.
func (l *Ledger) All(ctx context.Context) ([]*Account, error) {
	var out []*Account
	err := l.store.Scan(ctx, state.CollAccounts, func(id string, raw []byte) (bool, error) {
		var acct Account
		if err := state.Decode(raw, &acct); err != nil {
			return false, err
		}
		out = append(out, &acct)
		return true, nil
	})
	return out, err
}

// Count returns the number of accounts.
func (l *Ledger) Count(ctx context.Context) (int, error) {
	return l.store.Count(ctx, state.CollAccounts)
}

// Ensure upserts an account record, creating an empty one on first
// reference. Accounts are never deleted.
func (l *Ledger) Ensure(ctx context.Context, name string, createdAt int64) (*Account, error) {
	acct, found, err := l.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if found {
		return acct, nil
	}
	acct = &Account{Name: name, CreatedAt: createdAt}
	if err := l.Save(ctx, acct); err != nil {
		return nil, err
	}
	return acct, nil
}

// EnsureAll upserts every named account.
func (l *Ledger) EnsureAll(ctx context.Context, names []string, createdAt int64) error {
	for _, name := range names {
		if _, err := l.Ensure(ctx, name, createdAt); err != nil {
			return err
		}
	}
	return nil
}

// Adjust applies a signed delta to a spendable balance. It fails when the
// account is missing or the result would be negative, and leaves nothing
// half-done: the single document write carries the whole change.
func (l *Ledger) Adjust(ctx context.Context, name, identifier string, delta amount.Amount) error {
	if delta.IsZero() {
		return nil
	}
	acct, found, err := l.Get(ctx, name)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, name)
	}

	current := acct.Balance(identifier)
	next := current.Add(delta)
	if next.IsNegative() {
		return fmt.Errorf("%w: %s has %s %s, needs %s", ErrInsufficientBalance,
			name, current.String(), identifier, delta.Neg().String())
	}

	setBalance(acct, identifier, next)
	if err := l.Save(ctx, acct); err != nil {
		return err
	}
	return l.fireNativeHook(ctx, acct, identifier, current, next)
}

// Hold moves value from the spendable balance into the escrow bucket.
func (l *Ledger) Hold(ctx context.Context, name, identifier string, amt amount.Amount) error {
	if err := requirePositive(amt); err != nil {
		return err
	}
	acct, found, err := l.Get(ctx, name)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, name)
	}

	current := acct.Balance(identifier)
	next := current.Sub(amt)
	if next.IsNegative() {
		return fmt.Errorf("%w: %s has %s %s, escrow needs %s", ErrInsufficientBalance,
			name, current.String(), identifier, amt.String())
	}

	setBalance(acct, identifier, next)
	setHold(acct, identifier, acct.Held(identifier).Add(amt))
	if err := l.Save(ctx, acct); err != nil {
		return err
	}
	return l.fireNativeHook(ctx, acct, identifier, current, next)
}

// Release moves escrowed value back to the spendable balance.
func (l *Ledger) Release(ctx context.Context, name, identifier string, amt amount.Amount) error {
	if err := requirePositive(amt); err != nil {
		return err
	}
	acct, found, err := l.Get(ctx, name)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, name)
	}

	held := acct.Held(identifier)
	nextHeld := held.Sub(amt)
	if nextHeld.IsNegative() {
		return fmt.Errorf("%w: %s holds %s %s, release wants %s", ErrInsufficientBalance,
			name, held.String(), identifier, amt.String())
	}

	current := acct.Balance(identifier)
	next := current.Add(amt)
	setHold(acct, identifier, nextHeld)
	setBalance(acct, identifier, next)
	if err := l.Save(ctx, acct); err != nil {
		return err
	}
	return l.fireNativeHook(ctx, acct, identifier, current, next)
}

// TransferHold pays escrowed value out to another account's spendable
// balance. Fills, bid acceptance and presale sweeps settle through it.
func (l *Ledger) TransferHold(ctx context.Context, from, identifier string, amt amount.Amount, to string) error {
	if err := requirePositive(amt); err != nil {
		return err
	}
	fromAcct, found, err := l.Get(ctx, from)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, from)
	}

	held := fromAcct.Held(identifier)
	nextHeld := held.Sub(amt)
	if nextHeld.IsNegative() {
		return fmt.Errorf("%w: %s holds %s %s, settlement wants %s", ErrInsufficientBalance,
			from, held.String(), identifier, amt.String())
	}
	setHold(fromAcct, identifier, nextHeld)
	if err := l.Save(ctx, fromAcct); err != nil {
		return err
	}

	if err := l.Adjust(ctx, to, identifier, amt); err != nil {
		// Put the hold back so the failed settlement leaves no gap.
		setHold(fromAcct, identifier, held)
		if saveErr := l.Save(ctx, fromAcct); saveErr != nil {
			return fmt.Errorf("settlement failed (%v) and hold restore failed: %w", err, saveErr)
		}
		return err
	}
	return nil
}

// creditHold adds straight into the hold bucket. Only journal compensation
// uses it, to invert a TransferHold.
func (l *Ledger) creditHold(ctx context.Context, name, identifier string, amt amount.Amount) error {
	acct, found, err := l.Get(ctx, name)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, name)
	}
	setHold(acct, identifier, acct.Held(identifier).Add(amt))
	return l.Save(ctx, acct)
}

// NextOrderNonce increments and persists the account's order counter and
// returns the value the caller should use. Nonces are never reused, even
// when the transaction that consumed one later fails: deterministic ids
// matter more than dense numbering.
func (l *Ledger) NextOrderNonce(ctx context.Context, name string) (uint64, error) {
	acct, found, err := l.Get(ctx, name)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, fmt.Errorf("%w: %s", ErrAccountNotFound, name)
	}
	acct.OrderNonce++
	if err := l.Save(ctx, acct); err != nil {
		return 0, err
	}
	return acct.OrderNonce, nil
}

func (l *Ledger) fireNativeHook(ctx context.Context, acct *Account, identifier string, oldBal, newBal amount.Amount) error {
	if l.onNative == nil || identifier != l.nativeSymbol {
		return nil
	}
	if len(acct.VotedWitnesses) == 0 || oldBal.Equal(newBal) {
		return nil
	}
	return l.onNative(ctx, acct, oldBal, newBal)
}

func requirePositive(amt amount.Amount) error {
	if !amt.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrInsufficientBalance)
	}
	return nil
}

func setBalance(acct *Account, identifier string, v amount.Amount) {
	if acct.Balances == nil {
		acct.Balances = make(map[string]amount.Amount)
	}
	if v.IsZero() {
		delete(acct.Balances, identifier)
		return
	}
	acct.Balances[identifier] = v
}

func setHold(acct *Account, identifier string, v amount.Amount) {
	if acct.Holds == nil {
		acct.Holds = make(map[string]amount.Amount)
	}
	if v.IsZero() {
		delete(acct.Holds, identifier)
		return
	}
	acct.Holds[identifier] = v
}
