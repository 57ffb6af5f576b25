// Package witness implements witness registration and stake-weighted
// voting (WITNESS_REGISTER, WITNESS_VOTE, WITNESS_UNVOTE). A voter's
// native balance is split evenly across everyone they vote for; the
// weight maintainer stages all per-witness deltas of a change and applies
// them as one batch, flooring each total at zero.
package witness

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/echelon-net/echelond/internal/core/account"
	"github.com/echelon-net/echelond/internal/core/amount"
	"github.com/echelon-net/echelond/internal/state"
)

var (
	ErrNotRegistered = errors.New("witness is not registered")
	ErrAlreadyVoted  = errors.New("already voting for this witness")
	ErrNotVoting     = errors.New("not voting for this witness")
	ErrBadPublicKey  = errors.New("malformed witness public key")
	errVoteKeyFormat = errors.New("malformed vote record key")
)

// VoteRecord is a reverse-index entry: one row per (witness, voter) edge,
// so voters-for queries and the weight audit never scan every account.
type VoteRecord struct {
	Witness string `json:"witness"`
	Voter   string `json:"voter"`
	VotedAt int64  `json:"votedAt"`
}

// voteKey builds the composite reverse-index id. Account names cannot
// contain ':'.
func voteKey(witness, voter string) string { return witness + ":" + voter }

// PutVoteRecord writes an edge into the reverse index.
func PutVoteRecord(ctx context.Context, store *state.Store, rec *VoteRecord) error {
	return store.Put(ctx, state.CollWitnessVotes, voteKey(rec.Witness, rec.Voter), rec)
}

// DeleteVoteRecord removes an edge from the reverse index.
func DeleteVoteRecord(ctx context.Context, store *state.Store, witness, voter string) error {
	_, err := store.Delete(ctx, state.CollWitnessVotes, voteKey(witness, voter))
	return err
}

// VotersFor lists the accounts currently voting for the witness.
func VotersFor(ctx context.Context, store *state.Store, witness string) ([]VoteRecord, error) {
	var out []VoteRecord
	err := store.ScanPrefix(ctx, state.CollWitnessVotes, witness+":", func(id string, raw []byte) (bool, error) {
		var rec VoteRecord
		if err := state.Decode(raw, &rec); err != nil {
			return false, fmt.Errorf("%w: %s", errVoteKeyFormat, id)
		}
		out = append(out, rec)
		return true, nil
	})
	return out, err
}

// perVote is the even split of a balance across n votes, zero when the
// voter votes for nobody.
func perVote(balance amount.Amount, n int) amount.Amount {
	if n <= 0 {
		return amount.Zero()
	}
	return balance.Div(amount.New(int64(n)))
}

// applyWeightDeltas applies a staged batch of per-witness weight changes
// in name order, flooring every total at zero. Weight updates bypass the
// journal: they are derived state, recomputable from balances and votes.
func applyWeightDeltas(ctx context.Context, ledger *account.Ledger, deltas map[string]amount.Amount) error {
	names := make([]string, 0, len(deltas))
	for name, d := range deltas {
		if !d.IsZero() {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		acct, found, err := ledger.Get(ctx, name)
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		next := acct.TotalVoteWeight.Add(deltas[name])
		if next.IsNegative() {
			next = amount.Zero()
		}
		acct.TotalVoteWeight = next
		if err := ledger.Save(ctx, acct); err != nil {
			return err
		}
	}
	return nil
}

// stageVoteChange computes the weight deltas of replacing a voter's set.
// Witnesses present in both sets move by the difference of the per-vote
// split; the voted (or unvoted) target gains the new split or loses the
// old one.
func stageVoteChange(balance amount.Amount, oldSet, newSet []string, target string, voted bool) map[string]amount.Amount {
	oldPer := perVote(balance, len(oldSet))
	newPer := perVote(balance, len(newSet))
	deltas := make(map[string]amount.Amount, len(newSet)+1)
	for _, w := range newSet {
		if w == target {
			continue
		}
		deltas[w] = deltas[w].Add(newPer.Sub(oldPer))
	}
	if voted {
		deltas[target] = deltas[target].Add(newPer)
	} else {
		deltas[target] = deltas[target].Sub(oldPer)
	}
	return deltas
}

// BalanceHook returns the ledger observer keeping witness weights in step
// with spendable native balance changes. The ledger only invokes it for
// accounts with a non-empty vote set.
func BalanceHook(ledger *account.Ledger) account.BalanceHook {
	return func(ctx context.Context, acct *account.Account, oldBal, newBal amount.Amount) error {
		n := len(acct.VotedWitnesses)
		oldPer := perVote(oldBal, n)
		newPer := perVote(newBal, n)
		if oldPer.Equal(newPer) {
			return nil
		}
		deltas := make(map[string]amount.Amount, n)
		for _, w := range acct.VotedWitnesses {
			deltas[w] = deltas[w].Add(newPer.Sub(oldPer))
		}
		return applyWeightDeltas(ctx, ledger, deltas)
	}
}

// AuditWeights recomputes every witness's vote weight from scratch by
// scanning all accounts. It is the ground truth the incremental maintainer
// is audited against.
func AuditWeights(ctx context.Context, store *state.Store, native string) (map[string]amount.Amount, error) {
	weights := make(map[string]amount.Amount)
	err := store.Scan(ctx, state.CollAccounts, func(id string, raw []byte) (bool, error) {
		var acct account.Account
		if err := state.Decode(raw, &acct); err != nil {
			return false, err
		}
		if len(acct.VotedWitnesses) == 0 {
			return true, nil
		}
		per := perVote(acct.Balances[native], len(acct.VotedWitnesses))
		for _, w := range acct.VotedWitnesses {
			weights[w] = weights[w].Add(per)
		}
		return true, nil
	})
	return weights, err
}
