// Package farm implements LP staking with MasterChef-style lazy reward
// accrual (FARM_CREATE, FARM_STAKE, FARM_UNSTAKE, FARM_CLAIM_REWARDS,
// FARM_UPDATE_WEIGHT). Native farms split the per-block native reward by
// integer weight; every other farm streams a creator-escrowed budget at a
// fixed rate per block.
package farm

import (
	"context"
	"errors"

	"github.com/echelon-net/echelond/internal/core/amount"
	"github.com/echelon-net/echelond/internal/core/token"
	"github.com/echelon-net/echelond/internal/core/tx"
	"github.com/echelon-net/echelond/internal/state"
)

// Farm statuses.
const (
	StatusActive   = "active"
	StatusFinished = "finished"
)

// WeightCapBps caps the combined weight of all native farms.
const WeightCapBps = 10000

// accPrecision scales accRewardPerShare so integer division keeps twelve
// digits of per-share resolution.
var accPrecision = amount.PowTen(12)

var (
	ErrFarmNotFound = errors.New("farm not found")
	ErrFarmExists   = errors.New("farm already exists for this pool")
	ErrFarmFinished = errors.New("farm is finished")
	ErrNotNative    = errors.New("farm does not draw the native block reward")
	ErrWeightCap    = errors.New("combined native farm weight exceeds 10000")
	ErrMasterOnly   = errors.New("only the master account creates native farms")
	ErrNoStake      = errors.New("no stake in this farm")
	ErrStakeShort   = errors.New("stake smaller than requested")
	errBadWeight    = errors.New("weight must be between 1 and 10000")
	errBadReward    = errors.New("reward schedule must be positive")
	errBadAmount    = errors.New("amount must be positive")
	errBadWindow    = errors.New("endBlock must come after startBlock")
)

// Farm is the state document of one staking program. The farm id doubles as
// the system account escrowing non-native reward budgets.
type Farm struct {
	ID                string        `json:"id"`
	PoolID            string        `json:"poolId"`
	StakeToken        string        `json:"stakeToken"`
	Creator           string        `json:"creator"`
	IsNativeFarm      bool          `json:"isNativeFarm"`
	Weight            int64         `json:"weight"`
	RewardToken       string        `json:"rewardToken"`
	RewardsPerBlock   amount.Amount `json:"rewardsPerBlock"`
	TotalRewards      amount.Amount `json:"totalRewards"`
	RewardsPaid       amount.Amount `json:"rewardsPaid"`
	AccRewardPerShare amount.Amount `json:"accRewardPerShare"`
	LastRewardBlock   uint64        `json:"lastRewardBlock"`
	TotalStaked       amount.Amount `json:"totalStaked"`
	StartBlock        uint64        `json:"startBlock"`
	EndBlock          uint64        `json:"endBlock"`
	Status            string        `json:"status"`
	CreatedAt         int64         `json:"createdAt"`
}

// FarmID derives the farm id from its pool.
func FarmID(poolID string) string { return "farm_" + poolID }

// Stake is one account's position in a farm, keyed <farmId>:<account>.
// RewardDebt is the MasterChef checkpoint: amount * accRewardPerShare / 1e12
// at the last settlement.
type Stake struct {
	FarmID     string        `json:"farmId"`
	Account    string        `json:"account"`
	Amount     amount.Amount `json:"amount"`
	RewardDebt amount.Amount `json:"rewardDebt"`
	CreatedAt  int64         `json:"createdAt"`
	UpdatedAt  int64         `json:"updatedAt"`
}

func stakeKey(farmID, acct string) string { return farmID + ":" + acct }

// Get loads a farm by id.
func Get(ctx context.Context, store *state.Store, id string) (*Farm, bool, error) {
	var f Farm
	found, err := store.Get(ctx, state.CollFarms, id, &f)
	if err != nil || !found {
		return nil, found, err
	}
	return &f, true, nil
}

// MustGet loads a farm or returns ErrFarmNotFound.
func MustGet(ctx context.Context, store *state.Store, id string) (*Farm, error) {
	f, found, err := Get(ctx, store, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrFarmNotFound
	}
	return f, nil
}

// Put persists a farm document.
func Put(ctx context.Context, store *state.Store, f *Farm) error {
	return store.Put(ctx, state.CollFarms, f.ID, f)
}

// All lists every farm.
func All(ctx context.Context, store *state.Store) ([]*Farm, error) {
	var out []*Farm
	err := store.Scan(ctx, state.CollFarms, func(id string, raw []byte) (bool, error) {
		var f Farm
		if err := state.Decode(raw, &f); err != nil {
			return false, err
		}
		out = append(out, &f)
		return true, nil
	})
	return out, err
}

// GetStake loads one account's position.
func GetStake(ctx context.Context, store *state.Store, farmID, acct string) (*Stake, bool, error) {
	var s Stake
	found, err := store.Get(ctx, state.CollFarmStakes, stakeKey(farmID, acct), &s)
	if err != nil || !found {
		return nil, found, err
	}
	return &s, true, nil
}

// PutStake persists a position.
func PutStake(ctx context.Context, store *state.Store, s *Stake) error {
	return store.Put(ctx, state.CollFarmStakes, stakeKey(s.FarmID, s.Account), s)
}

// FarmStakes lists every position in a farm.
func FarmStakes(ctx context.Context, store *state.Store, farmID string) ([]*Stake, error) {
	var out []*Stake
	err := store.ScanPrefix(ctx, state.CollFarmStakes, farmID+":", func(id string, raw []byte) (bool, error) {
		var s Stake
		if err := state.Decode(raw, &s); err != nil {
			return false, err
		}
		out = append(out, &s)
		return true, nil
	})
	return out, err
}

// nativeWeightSum totals the weight of active native farms, excluding one id.
func nativeWeightSum(ctx context.Context, store *state.Store, excludeID string) (int64, error) {
	farms, err := All(ctx, store)
	if err != nil {
		return 0, err
	}
	var sum int64
	for _, f := range farms {
		if f.IsNativeFarm && f.ID != excludeID && f.Status == StatusActive {
			sum += f.Weight
		}
	}
	return sum, nil
}

// accrue advances the farm to height and returns the reward earned by the
// skipped blocks. The reward window is clamped to [StartBlock, EndBlock];
// non-native farms stop at their escrowed budget and flip to finished. With
// nothing staked the window passes unrewarded.
func (f *Farm) accrue(height uint64, blockReward amount.Amount) amount.Amount {
	if height <= f.LastRewardBlock {
		return amount.Zero()
	}
	from := f.LastRewardBlock
	if f.StartBlock > from {
		from = f.StartBlock
	}
	to := height
	if f.EndBlock > 0 && to > f.EndBlock {
		to = f.EndBlock
	}
	f.LastRewardBlock = height
	if to <= from || f.TotalStaked.IsZero() || f.Status != StatusActive {
		return amount.Zero()
	}

	blocks := amount.New(int64(to - from))
	var reward amount.Amount
	if f.IsNativeFarm {
		reward = blockReward.PercentBps(f.Weight).Mul(blocks)
	} else {
		reward = f.RewardsPerBlock.Mul(blocks)
		remaining := f.TotalRewards.Sub(f.RewardsPaid)
		if reward.Cmp(remaining) >= 0 {
			reward = remaining
			f.Status = StatusFinished
		}
		f.RewardsPaid = f.RewardsPaid.Add(reward)
	}
	if reward.IsZero() {
		return amount.Zero()
	}
	f.AccRewardPerShare = f.AccRewardPerShare.Add(reward.MulDiv(accPrecision, f.TotalStaked))
	return reward
}

// pending is the unsettled reward of a position at the farm's current
// accumulator.
func (f *Farm) pending(s *Stake) amount.Amount {
	return s.Amount.MulDiv(f.AccRewardPerShare, accPrecision).Sub(s.RewardDebt)
}

// checkpoint re-anchors the position's reward debt after a settlement or a
// stake change.
func (f *Farm) checkpoint(s *Stake) {
	s.RewardDebt = s.Amount.MulDiv(f.AccRewardPerShare, accPrecision)
}

// payReward delivers an accrued reward. Native rewards are minted against
// the native token's supply; everything else drains the farm account's
// escrow.
func payReward(ctx *tx.Context, f *Farm, to string, amt amount.Amount) error {
	if !amt.IsPositive() {
		return nil
	}
	if f.IsNativeFarm {
		if err := ctx.Journal.Adjust(ctx.Ctx, to, f.RewardToken, amt); err != nil {
			return err
		}
		t, err := token.MustGet(ctx.Ctx, ctx.Store, f.RewardToken)
		if err != nil {
			return err
		}
		t.TotalSupply = t.TotalSupply.Add(amt)
		return token.Put(ctx.Ctx, ctx.Store, t)
	}
	if err := ctx.Journal.Adjust(ctx.Ctx, f.ID, f.RewardToken, amt.Neg()); err != nil {
		return err
	}
	return ctx.Journal.Adjust(ctx.Ctx, to, f.RewardToken, amt)
}
