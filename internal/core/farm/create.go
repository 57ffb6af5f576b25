package farm

import (
	"github.com/echelon-net/echelond/internal/core/amount"
	"github.com/echelon-net/echelond/internal/core/event"
	"github.com/echelon-net/echelond/internal/core/pool"
	"github.com/echelon-net/echelond/internal/core/token"
	"github.com/echelon-net/echelond/internal/core/tx"
)

// Create is FARM_CREATE. One farm per pool; native farms draw a weighted
// slice of the block reward, non-native farms stream a budget the creator
// escrows on the farm account up front.
type Create struct {
	PoolID          string        `json:"poolId"`
	IsNative        bool          `json:"isNative"`
	Weight          int64         `json:"weight"`
	RewardToken     string        `json:"rewardToken"`
	RewardsPerBlock amount.Amount `json:"rewardsPerBlock"`
	TotalRewards    amount.Amount `json:"totalRewards"`
	StartBlock      uint64        `json:"startBlock"`
	EndBlock        uint64        `json:"endBlock"`
}

// UpdateWeight is FARM_UPDATE_WEIGHT, master-only retuning of a native
// farm's share of the block reward.
type UpdateWeight struct {
	FarmID string `json:"farmId"`
	Weight int64  `json:"weight"`
}

func init() {
	tx.Register(tx.TypeFarmCreate, func() tx.Operation { return &Create{} })
	tx.Register(tx.TypeFarmUpdateWeight, func() tx.Operation { return &UpdateWeight{} })
}

func (c *Create) TxType() tx.Type       { return tx.TypeFarmCreate }
func (u *UpdateWeight) TxType() tx.Type { return tx.TypeFarmUpdateWeight }

func (c *Create) Validate(ctx *tx.Context) error {
	if _, err := pool.MustGet(ctx.Ctx, ctx.Store, c.PoolID); err != nil {
		return err
	}
	if _, found, err := Get(ctx.Ctx, ctx.Store, FarmID(c.PoolID)); err != nil {
		return err
	} else if found {
		return ErrFarmExists
	}
	if c.EndBlock > 0 && c.EndBlock <= c.StartBlock {
		return errBadWindow
	}
	if c.IsNative {
		if !ctx.IsMaster() {
			return ErrMasterOnly
		}
		if c.Weight <= 0 || c.Weight > WeightCapBps {
			return errBadWeight
		}
		sum, err := nativeWeightSum(ctx.Ctx, ctx.Store, "")
		if err != nil {
			return err
		}
		if sum+c.Weight > WeightCapBps {
			return ErrWeightCap
		}
		return nil
	}
	if _, err := token.MustGet(ctx.Ctx, ctx.Store, c.RewardToken); err != nil {
		return err
	}
	if !c.RewardsPerBlock.IsPositive() || !c.TotalRewards.IsPositive() {
		return errBadReward
	}
	return nil
}

func (c *Create) Apply(ctx *tx.Context) error {
	p, err := pool.MustGet(ctx.Ctx, ctx.Store, c.PoolID)
	if err != nil {
		return err
	}
	f := &Farm{
		ID:           FarmID(p.ID),
		PoolID:       p.ID,
		StakeToken:   p.LpIdentifier,
		Creator:      ctx.Sender,
		IsNativeFarm: c.IsNative,
		StartBlock:   c.StartBlock,
		EndBlock:     c.EndBlock,
		Status:       StatusActive,
		CreatedAt:    ctx.Timestamp,
	}
	f.LastRewardBlock = ctx.Height
	if f.StartBlock > f.LastRewardBlock {
		f.LastRewardBlock = f.StartBlock
	}
	if c.IsNative {
		f.Weight = c.Weight
		f.RewardToken = ctx.Ledger.NativeSymbol()
	} else {
		f.RewardToken = c.RewardToken
		f.RewardsPerBlock = c.RewardsPerBlock
		f.TotalRewards = c.TotalRewards
		// The budget lives on the farm's own system account until earned.
		if _, err := ctx.Ledger.Ensure(ctx.Ctx, f.ID, ctx.Timestamp); err != nil {
			return err
		}
		if err := ctx.Journal.Adjust(ctx.Ctx, ctx.Sender, f.RewardToken, c.TotalRewards.Neg()); err != nil {
			return err
		}
		if err := ctx.Journal.Adjust(ctx.Ctx, f.ID, f.RewardToken, c.TotalRewards); err != nil {
			return err
		}
	}
	if err := Put(ctx.Ctx, ctx.Store, f); err != nil {
		return err
	}
	ctx.Emit(event.CategoryFarm, "created", map[string]any{
		"farmId":       f.ID,
		"poolId":       f.PoolID,
		"stakeToken":   f.StakeToken,
		"isNativeFarm": f.IsNativeFarm,
		"weight":       f.Weight,
		"rewardToken":  f.RewardToken,
	})
	return nil
}

func (u *UpdateWeight) Validate(ctx *tx.Context) error {
	if !ctx.IsMaster() {
		return ErrMasterOnly
	}
	f, err := MustGet(ctx.Ctx, ctx.Store, u.FarmID)
	if err != nil {
		return err
	}
	if !f.IsNativeFarm {
		return ErrNotNative
	}
	if u.Weight <= 0 || u.Weight > WeightCapBps {
		return errBadWeight
	}
	sum, err := nativeWeightSum(ctx.Ctx, ctx.Store, f.ID)
	if err != nil {
		return err
	}
	if sum+u.Weight > WeightCapBps {
		return ErrWeightCap
	}
	return nil
}

func (u *UpdateWeight) Apply(ctx *tx.Context) error {
	f, err := MustGet(ctx.Ctx, ctx.Store, u.FarmID)
	if err != nil {
		return err
	}
	// Settle the accumulator at the old weight before switching.
	f.accrue(ctx.Height, ctx.Params.BlockReward)
	old := f.Weight
	f.Weight = u.Weight
	if err := Put(ctx.Ctx, ctx.Store, f); err != nil {
		return err
	}
	ctx.Emit(event.CategoryFarm, "weightUpdated", map[string]any{
		"farmId":    f.ID,
		"oldWeight": old,
		"weight":    u.Weight,
	})
	return nil
}
