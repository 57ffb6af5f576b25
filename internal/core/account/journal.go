package account

import (
	"context"
	"log"

	"github.com/echelon-net/echelond/internal/core/amount"
)

type undoKind int

const (
	undoAdjust undoKind = iota
	undoRelease
	undoHold
	undoUntransfer
)

type undoOp struct {
	kind       undoKind
	name       string
	other      string
	identifier string
	amt        amount.Amount
}

// Journal wraps the ledger for the duration of one transaction. Every
// successful mutation pushes its inverse, so a failing handler is unwound
// in strict reverse order. The dispatcher unwinds automatically when a
// handler's process step reports failure.
type Journal struct {
	ledger *Ledger
	undo   []undoOp
}

func NewJournal(l *Ledger) *Journal {
	return &Journal{ledger: l}
}

// Ledger exposes the wrapped ledger for read-only access.
func (j *Journal) Ledger() *Ledger { return j.ledger }

// Len reports how many mutations are pending compensation.
func (j *Journal) Len() int { return len(j.undo) }

// Adjust applies a signed spendable-balance delta (see Ledger.Adjust).
func (j *Journal) Adjust(ctx context.Context, name, identifier string, delta amount.Amount) error {
	if delta.IsZero() {
		return nil
	}
	if err := j.ledger.Adjust(ctx, name, identifier, delta); err != nil {
		return err
	}
	j.undo = append(j.undo, undoOp{kind: undoAdjust, name: name, identifier: identifier, amt: delta.Neg()})
	return nil
}

// Hold escrows value from the spendable balance.
func (j *Journal) Hold(ctx context.Context, name, identifier string, amt amount.Amount) error {
	if err := j.ledger.Hold(ctx, name, identifier, amt); err != nil {
		return err
	}
	j.undo = append(j.undo, undoOp{kind: undoRelease, name: name, identifier: identifier, amt: amt})
	return nil
}

// Release returns escrowed value to the spendable balance.
func (j *Journal) Release(ctx context.Context, name, identifier string, amt amount.Amount) error {
	if err := j.ledger.Release(ctx, name, identifier, amt); err != nil {
		return err
	}
	j.undo = append(j.undo, undoOp{kind: undoHold, name: name, identifier: identifier, amt: amt})
	return nil
}

// TransferHold settles escrowed value to another account.
func (j *Journal) TransferHold(ctx context.Context, from, identifier string, amt amount.Amount, to string) error {
	if err := j.ledger.TransferHold(ctx, from, identifier, amt, to); err != nil {
		return err
	}
	j.undo = append(j.undo, undoOp{kind: undoUntransfer, name: from, other: to, identifier: identifier, amt: amt})
	return nil
}

// Commit drops the undo list; the transaction's mutations stand.
func (j *Journal) Commit() { j.undo = nil }

// Mark returns a checkpoint for UnwindTo.
func (j *Journal) Mark() int { return len(j.undo) }

// Unwind compensates every recorded mutation in reverse order. A failed
// compensation is the one tolerated recovery gap: it is logged as CRITICAL
// for offline reconciliation and unwinding continues.
func (j *Journal) Unwind(ctx context.Context) { j.UnwindTo(ctx, 0) }

// UnwindTo compensates the mutations recorded after the mark, newest
// first, leaving earlier ones pending. Non-atomic batches use it to undo
// one failed sub-operation without touching the rest.
func (j *Journal) UnwindTo(ctx context.Context, mark int) {
	if mark < 0 {
		mark = 0
	}
	for i := len(j.undo) - 1; i >= mark; i-- {
		op := j.undo[i]
		var err error
		switch op.kind {
		case undoAdjust:
			err = j.ledger.Adjust(ctx, op.name, op.identifier, op.amt)
		case undoRelease:
			err = j.ledger.Release(ctx, op.name, op.identifier, op.amt)
		case undoHold:
			err = j.ledger.Hold(ctx, op.name, op.identifier, op.amt)
		case undoUntransfer:
			// Inverse of a settlement: claw the payout back into the
			// original hold.
			if err = j.ledger.Adjust(ctx, op.other, op.identifier, op.amt.Neg()); err == nil {
				err = j.ledger.creditHold(ctx, op.name, op.identifier, op.amt)
			}
		}
		if err != nil {
			log.Printf("[ledger] CRITICAL: compensation failed for %s %s on %s: %v, requires reconciliation",
				op.identifier, op.amt.String(), op.name, err)
		}
	}
	j.undo = j.undo[:mark]
}
