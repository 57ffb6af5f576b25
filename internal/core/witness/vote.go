package witness

import (
	"github.com/echelon-net/echelond/internal/core/account"
	"github.com/echelon-net/echelond/internal/core/event"
	"github.com/echelon-net/echelond/internal/core/tx"
)

// Vote is WITNESS_VOTE. Casting a vote re-splits the voter's native
// balance across the enlarged set, so every witness they already vote for
// loses a slice to the newcomer.
type Vote struct {
	Witness string `json:"witness"`
}

// Unvote is WITNESS_UNVOTE, the exact inverse of Vote.
type Unvote struct {
	Witness string `json:"witness"`
}

func init() {
	tx.Register(tx.TypeWitnessVote, func() tx.Operation { return &Vote{} })
	tx.Register(tx.TypeWitnessUnvote, func() tx.Operation { return &Unvote{} })
}

func (v *Vote) TxType() tx.Type   { return tx.TypeWitnessVote }
func (u *Unvote) TxType() tx.Type { return tx.TypeWitnessUnvote }

// registered reports whether name holds a witness registration.
func registered(ctx *tx.Context, name string) (bool, error) {
	acct, found, err := ctx.Ledger.Get(ctx.Ctx, name)
	if err != nil || !found {
		return false, err
	}
	return acct.WitnessPublicKey != "", nil
}

func votesFor(acct *account.Account, witness string) bool {
	for _, w := range acct.VotedWitnesses {
		if w == witness {
			return true
		}
	}
	return false
}

func (v *Vote) Validate(ctx *tx.Context) error {
	if !account.ValidName(v.Witness) {
		return ErrNotRegistered
	}
	ok, err := registered(ctx, v.Witness)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotRegistered
	}
	acct, found, err := ctx.Ledger.Get(ctx.Ctx, ctx.Sender)
	if err != nil {
		return err
	}
	if found && votesFor(acct, v.Witness) {
		return ErrAlreadyVoted
	}
	return nil
}

func (v *Vote) Apply(ctx *tx.Context) error {
	acct, err := ctx.Ledger.Ensure(ctx.Ctx, ctx.Sender, ctx.Timestamp)
	if err != nil {
		return err
	}
	oldSet := acct.VotedWitnesses
	newSet := append(append([]string(nil), oldSet...), v.Witness)
	balance := acct.Balances[ctx.Ledger.NativeSymbol()]
	deltas := stageVoteChange(balance, oldSet, newSet, v.Witness, true)

	// Save the vote set before touching weights so a self-vote reloads the
	// fresh account inside applyWeightDeltas.
	acct.VotedWitnesses = newSet
	if err := ctx.Ledger.Save(ctx.Ctx, acct); err != nil {
		return err
	}
	if err := applyWeightDeltas(ctx.Ctx, ctx.Ledger, deltas); err != nil {
		return err
	}
	rec := &VoteRecord{Witness: v.Witness, Voter: ctx.Sender, VotedAt: ctx.Timestamp}
	if err := PutVoteRecord(ctx.Ctx, ctx.Store, rec); err != nil {
		return err
	}
	ctx.Emit(event.CategoryWitness, "voted", map[string]any{
		"witness": v.Witness,
		"voter":   ctx.Sender,
		"votes":   len(newSet),
	})
	return nil
}

func (u *Unvote) Validate(ctx *tx.Context) error {
	acct, found, err := ctx.Ledger.Get(ctx.Ctx, ctx.Sender)
	if err != nil {
		return err
	}
	if !found || !votesFor(acct, u.Witness) {
		return ErrNotVoting
	}
	return nil
}

func (u *Unvote) Apply(ctx *tx.Context) error {
	acct, found, err := ctx.Ledger.Get(ctx.Ctx, ctx.Sender)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotVoting
	}
	oldSet := acct.VotedWitnesses
	newSet := make([]string, 0, len(oldSet)-1)
	for _, w := range oldSet {
		if w != u.Witness {
			newSet = append(newSet, w)
		}
	}
	balance := acct.Balances[ctx.Ledger.NativeSymbol()]
	deltas := stageVoteChange(balance, oldSet, newSet, u.Witness, false)

	acct.VotedWitnesses = newSet
	if err := ctx.Ledger.Save(ctx.Ctx, acct); err != nil {
		return err
	}
	if err := applyWeightDeltas(ctx.Ctx, ctx.Ledger, deltas); err != nil {
		return err
	}
	if err := DeleteVoteRecord(ctx.Ctx, ctx.Store, u.Witness, ctx.Sender); err != nil {
		return err
	}
	ctx.Emit(event.CategoryWitness, "unvoted", map[string]any{
		"witness": u.Witness,
		"voter":   ctx.Sender,
		"votes":   len(newSet),
	})
	return nil
}
