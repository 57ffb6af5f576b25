package farm

import (
	"github.com/echelon-net/echelond/internal/core/amount"
	"github.com/echelon-net/echelond/internal/core/event"
	"github.com/echelon-net/echelond/internal/core/tx"
)

// StakeLP is FARM_STAKE. The LP tokens move into the staker's hold bucket;
// any reward accrued since the last interaction settles first.
type StakeLP struct {
	FarmID string        `json:"farmId"`
	Amount amount.Amount `json:"amount"`
}

// UnstakeLP is FARM_UNSTAKE.
type UnstakeLP struct {
	FarmID string        `json:"farmId"`
	Amount amount.Amount `json:"amount"`
}

// Claim is FARM_CLAIM_REWARDS.
type Claim struct {
	FarmID string `json:"farmId"`
}

func init() {
	tx.Register(tx.TypeFarmStake, func() tx.Operation { return &StakeLP{} })
	tx.Register(tx.TypeFarmUnstake, func() tx.Operation { return &UnstakeLP{} })
	tx.Register(tx.TypeFarmClaimRewards, func() tx.Operation { return &Claim{} })
}

func (s *StakeLP) TxType() tx.Type   { return tx.TypeFarmStake }
func (u *UnstakeLP) TxType() tx.Type { return tx.TypeFarmUnstake }
func (c *Claim) TxType() tx.Type     { return tx.TypeFarmClaimRewards }

// settle accrues the farm to the current height and pays out the position's
// pending reward. The caller still owns persisting both documents.
func settle(ctx *tx.Context, f *Farm, s *Stake) (amount.Amount, error) {
	f.accrue(ctx.Height, ctx.Params.BlockReward)
	paid := f.pending(s)
	if err := payReward(ctx, f, s.Account, paid); err != nil {
		return amount.Zero(), err
	}
	return paid, nil
}

func (s *StakeLP) Validate(ctx *tx.Context) error {
	if !s.Amount.IsPositive() {
		return errBadAmount
	}
	f, err := MustGet(ctx.Ctx, ctx.Store, s.FarmID)
	if err != nil {
		return err
	}
	if f.Status != StatusActive {
		return ErrFarmFinished
	}
	return nil
}

func (s *StakeLP) Apply(ctx *tx.Context) error {
	f, err := MustGet(ctx.Ctx, ctx.Store, s.FarmID)
	if err != nil {
		return err
	}
	pos, found, err := GetStake(ctx.Ctx, ctx.Store, f.ID, ctx.Sender)
	if err != nil {
		return err
	}
	if !found {
		pos = &Stake{FarmID: f.ID, Account: ctx.Sender, CreatedAt: ctx.Timestamp}
	}
	paid, err := settle(ctx, f, pos)
	if err != nil {
		return err
	}
	if err := ctx.Journal.Hold(ctx.Ctx, ctx.Sender, f.StakeToken, s.Amount); err != nil {
		return err
	}
	pos.Amount = pos.Amount.Add(s.Amount)
	pos.UpdatedAt = ctx.Timestamp
	f.checkpoint(pos)
	f.TotalStaked = f.TotalStaked.Add(s.Amount)
	if err := PutStake(ctx.Ctx, ctx.Store, pos); err != nil {
		return err
	}
	if err := Put(ctx.Ctx, ctx.Store, f); err != nil {
		return err
	}
	ctx.Emit(event.CategoryFarm, "staked", map[string]any{
		"farmId":      f.ID,
		"account":     ctx.Sender,
		"amount":      s.Amount,
		"totalStaked": f.TotalStaked,
		"rewardsPaid": paid,
	})
	return nil
}

func (u *UnstakeLP) Validate(ctx *tx.Context) error {
	if !u.Amount.IsPositive() {
		return errBadAmount
	}
	if _, err := MustGet(ctx.Ctx, ctx.Store, u.FarmID); err != nil {
		return err
	}
	pos, found, err := GetStake(ctx.Ctx, ctx.Store, u.FarmID, ctx.Sender)
	if err != nil {
		return err
	}
	if !found || pos.Amount.IsZero() {
		return ErrNoStake
	}
	if pos.Amount.Cmp(u.Amount) < 0 {
		return ErrStakeShort
	}
	return nil
}

func (u *UnstakeLP) Apply(ctx *tx.Context) error {
	f, err := MustGet(ctx.Ctx, ctx.Store, u.FarmID)
	if err != nil {
		return err
	}
	pos, found, err := GetStake(ctx.Ctx, ctx.Store, f.ID, ctx.Sender)
	if err != nil {
		return err
	}
	if !found {
		return ErrNoStake
	}
	paid, err := settle(ctx, f, pos)
	if err != nil {
		return err
	}
	if err := ctx.Journal.Release(ctx.Ctx, ctx.Sender, f.StakeToken, u.Amount); err != nil {
		return err
	}
	pos.Amount = pos.Amount.Sub(u.Amount)
	pos.UpdatedAt = ctx.Timestamp
	f.checkpoint(pos)
	f.TotalStaked = f.TotalStaked.Sub(u.Amount)
	if err := PutStake(ctx.Ctx, ctx.Store, pos); err != nil {
		return err
	}
	if err := Put(ctx.Ctx, ctx.Store, f); err != nil {
		return err
	}
	ctx.Emit(event.CategoryFarm, "unstaked", map[string]any{
		"farmId":      f.ID,
		"account":     ctx.Sender,
		"amount":      u.Amount,
		"totalStaked": f.TotalStaked,
		"rewardsPaid": paid,
	})
	return nil
}

func (c *Claim) Validate(ctx *tx.Context) error {
	if _, err := MustGet(ctx.Ctx, ctx.Store, c.FarmID); err != nil {
		return err
	}
	pos, found, err := GetStake(ctx.Ctx, ctx.Store, c.FarmID, ctx.Sender)
	if err != nil {
		return err
	}
	if !found || pos.Amount.IsZero() {
		return ErrNoStake
	}
	return nil
}

func (c *Claim) Apply(ctx *tx.Context) error {
	f, err := MustGet(ctx.Ctx, ctx.Store, c.FarmID)
	if err != nil {
		return err
	}
	pos, found, err := GetStake(ctx.Ctx, ctx.Store, f.ID, ctx.Sender)
	if err != nil {
		return err
	}
	if !found {
		return ErrNoStake
	}
	paid, err := settle(ctx, f, pos)
	if err != nil {
		return err
	}
	f.checkpoint(pos)
	pos.UpdatedAt = ctx.Timestamp
	if err := PutStake(ctx.Ctx, ctx.Store, pos); err != nil {
		return err
	}
	if err := Put(ctx.Ctx, ctx.Store, f); err != nil {
		return err
	}
	ctx.Emit(event.CategoryFarm, "rewardsClaimed", map[string]any{
		"farmId":  f.ID,
		"account": ctx.Sender,
		"amount":  paid,
	})
	return nil
}
