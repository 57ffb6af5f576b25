package farm_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echelon-net/echelond/internal/core/amount"
	"github.com/echelon-net/echelond/internal/core/event"
	"github.com/echelon-net/echelond/internal/core/farm"
	"github.com/echelon-net/echelond/internal/core/token"
	"github.com/echelon-net/echelond/internal/core/tx"
	"github.com/echelon-net/echelond/internal/testutil"
)

// farmEnv builds the ECH/USD pool and hands alice LP tokens to stake with.
func farmEnv(t *testing.T) *testutil.Env {
	t.Helper()
	env := testutil.NewEnv(t)
	env.CreateToken("echelon", "USD", 6, "0")
	env.Fund("alice", "ECH", "1000000000000")
	env.Fund("alice", "USD", "10000000000")
	env.MustExecute(tx.TypePoolCreate, "alice", `{"tokenA":"ECH","tokenB":"USD"}`)
	env.MustExecute(tx.TypePoolAddLiquidity, "alice",
		`{"poolId":"ECH_USD","amountA":"1000000000000","amountB":"10000000000"}`)
	return env
}

func createNativeFarm(t *testing.T, env *testutil.Env, weight int) string {
	t.Helper()
	env.MustExecute(tx.TypeFarmCreate, "echelon",
		fmt.Sprintf(`{"poolId":"ECH_USD","isNative":true,"weight":%d}`, weight))
	return farm.FarmID("ECH_USD")
}

func findEvent(t *testing.T, rcpt *tx.Receipt, action string) event.Event {
	t.Helper()
	for _, ev := range rcpt.Events {
		if ev.Action == action {
			return ev
		}
	}
	t.Fatalf("no %q event in receipt", action)
	return event.Event{}
}

func evAmount(t *testing.T, ev event.Event, key string) string {
	t.Helper()
	a, ok := ev.Data[key].(amount.Amount)
	require.True(t, ok, "event field %s is not an amount", key)
	return a.String()
}

func TestNativeFarmAccrues(t *testing.T) {
	env := farmEnv(t)
	id := createNativeFarm(t, env, 5000) // half the 1 ECH block reward

	env.MustExecute(tx.TypeFarmStake, "alice",
		fmt.Sprintf(`{"farmId":%q,"amount":"1000000"}`, id))
	assert.Equal(t, "1000000", env.Held("alice", "LP_ECH_USD"))

	supplyBefore := nativeSupply(t, env)
	env.AdvanceBlocks(10)
	rcpt := env.MustExecute(tx.TypeFarmClaimRewards, "alice",
		fmt.Sprintf(`{"farmId":%q}`, id))

	// 10 blocks at 50_000_000 per block.
	assert.Equal(t, "500000000", evAmount(t, findEvent(t, rcpt, "rewardsClaimed"), "amount"))
	assert.Equal(t, "500000000", env.Balance("alice", "ECH"))
	assert.Equal(t, supplyBefore.Add(amount.MustParse("500000000")).String(),
		nativeSupply(t, env).String(), "native rewards are minted")

	// Settled, nothing further pending at the same height.
	rcpt = env.MustExecute(tx.TypeFarmClaimRewards, "alice",
		fmt.Sprintf(`{"farmId":%q}`, id))
	assert.Equal(t, "0", evAmount(t, findEvent(t, rcpt, "rewardsClaimed"), "amount"))
}

func nativeSupply(t *testing.T, env *testutil.Env) amount.Amount {
	t.Helper()
	tok, err := token.MustGet(env.Ctx(), env.Store, "ECH")
	require.NoError(t, err)
	return tok.TotalSupply
}

func TestRewardsSplitByStake(t *testing.T) {
	env := farmEnv(t)
	id := createNativeFarm(t, env, 5000)
	env.Fund("bob", "LP_ECH_USD", "1000000")

	env.MustExecute(tx.TypeFarmStake, "alice",
		fmt.Sprintf(`{"farmId":%q,"amount":"4000000"}`, id))
	env.AdvanceBlocks(4)
	env.MustExecute(tx.TypeFarmStake, "bob",
		fmt.Sprintf(`{"farmId":%q,"amount":"1000000"}`, id))
	env.AdvanceBlocks(5)

	// alice: 4 blocks alone (200_000_000) plus 4/5 of 5 blocks (200_000_000).
	rcpt := env.MustExecute(tx.TypeFarmClaimRewards, "alice",
		fmt.Sprintf(`{"farmId":%q}`, id))
	assert.Equal(t, "400000000", evAmount(t, findEvent(t, rcpt, "rewardsClaimed"), "amount"))

	// bob: 1/5 of 5 blocks. Unstaking settles the same way.
	rcpt = env.MustExecute(tx.TypeFarmUnstake, "bob",
		fmt.Sprintf(`{"farmId":%q,"amount":"1000000"}`, id))
	assert.Equal(t, "50000000", evAmount(t, findEvent(t, rcpt, "unstaked"), "rewardsPaid"))
	assert.Equal(t, "50000000", env.Balance("bob", "ECH"))
	assert.Equal(t, "0", env.Held("bob", "LP_ECH_USD"))
	assert.Equal(t, "1000000", env.Balance("bob", "LP_ECH_USD"))

	f, err := farm.MustGet(env.Ctx(), env.Store, id)
	require.NoError(t, err)
	assert.Equal(t, "4000000", f.TotalStaked.String())
}

func TestBudgetFarmStopsAtTotalRewards(t *testing.T) {
	env := farmEnv(t)
	rwd := env.CreateToken("dave", "RWD", 0, "100000")

	env.MustExecute(tx.TypeFarmCreate, "dave", fmt.Sprintf(
		`{"poolId":"ECH_USD","rewardToken":%q,"rewardsPerBlock":"1000","totalRewards":"5000"}`, rwd))
	id := farm.FarmID("ECH_USD")
	assert.Equal(t, "95000", env.Balance("dave", rwd))
	assert.Equal(t, "5000", env.Balance(id, rwd), "budget escrowed on the farm account")

	env.MustExecute(tx.TypeFarmStake, "alice",
		fmt.Sprintf(`{"farmId":%q,"amount":"1000"}`, id))
	env.AdvanceBlocks(3)
	rcpt := env.MustExecute(tx.TypeFarmClaimRewards, "alice", fmt.Sprintf(`{"farmId":%q}`, id))
	assert.Equal(t, "3000", evAmount(t, findEvent(t, rcpt, "rewardsClaimed"), "amount"))

	// Ten more blocks would be 10_000 but only 2_000 remains.
	env.AdvanceBlocks(10)
	rcpt = env.MustExecute(tx.TypeFarmClaimRewards, "alice", fmt.Sprintf(`{"farmId":%q}`, id))
	assert.Equal(t, "2000", evAmount(t, findEvent(t, rcpt, "rewardsClaimed"), "amount"))
	assert.Equal(t, "5000", env.Balance("alice", rwd))
	assert.Equal(t, "0", env.Balance(id, rwd))

	f, err := farm.MustGet(env.Ctx(), env.Store, id)
	require.NoError(t, err)
	assert.Equal(t, farm.StatusFinished, f.Status)

	// Finished farms refuse new stake; exits still work.
	rcpt = env.Execute(tx.TypeFarmStake, "alice", fmt.Sprintf(`{"farmId":%q,"amount":"1"}`, id))
	require.False(t, rcpt.OK)
	assert.Contains(t, rcpt.Error, "finished")
	env.MustExecute(tx.TypeFarmUnstake, "alice", fmt.Sprintf(`{"farmId":%q,"amount":"1000"}`, id))
	assert.Equal(t, "0", env.Held("alice", "LP_ECH_USD"))
}

func TestNativeFarmGuards(t *testing.T) {
	env := farmEnv(t)
	env.CreateToken("echelon", "EUR", 6, "0")
	env.MustExecute(tx.TypePoolCreate, "alice", `{"tokenA":"ECH","tokenB":"EUR"}`)

	rcpt := env.Execute(tx.TypeFarmCreate, "alice", `{"poolId":"ECH_USD","isNative":true,"weight":100}`)
	require.False(t, rcpt.OK)
	assert.Contains(t, rcpt.Error, "master")

	createNativeFarm(t, env, 6000)
	rcpt = env.Execute(tx.TypeFarmCreate, "echelon", `{"poolId":"ECH_USD","isNative":true,"weight":100}`)
	require.False(t, rcpt.OK)
	assert.Contains(t, rcpt.Error, "already exists")

	rcpt = env.Execute(tx.TypeFarmCreate, "echelon", `{"poolId":"ECH_EUR","isNative":true,"weight":5000}`)
	require.False(t, rcpt.OK)
	assert.Contains(t, rcpt.Error, "exceeds 10000")
	env.MustExecute(tx.TypeFarmCreate, "echelon", `{"poolId":"ECH_EUR","isNative":true,"weight":4000}`)

	// Re-weighting re-checks the cap against the other farms.
	rcpt = env.Execute(tx.TypeFarmUpdateWeight, "echelon", `{"farmId":"farm_ECH_USD","weight":7000}`)
	require.False(t, rcpt.OK)
	assert.Contains(t, rcpt.Error, "exceeds 10000")
	env.MustExecute(tx.TypeFarmUpdateWeight, "echelon", `{"farmId":"farm_ECH_USD","weight":5000}`)

	f, err := farm.MustGet(env.Ctx(), env.Store, "farm_ECH_USD")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), f.Weight)

	rcpt = env.Execute(tx.TypeFarmCreate, "echelon", `{"poolId":"ECH_GBP","isNative":true,"weight":100}`)
	require.False(t, rcpt.OK)
	assert.Contains(t, rcpt.Error, "pool not found")
}

func TestReweightSettlesAtOldRate(t *testing.T) {
	env := farmEnv(t)
	id := createNativeFarm(t, env, 5000)
	env.MustExecute(tx.TypeFarmStake, "alice",
		fmt.Sprintf(`{"farmId":%q,"amount":"1000000"}`, id))

	env.AdvanceBlocks(10)
	env.MustExecute(tx.TypeFarmUpdateWeight, "echelon",
		fmt.Sprintf(`{"farmId":%q,"weight":2500}`, id))
	env.AdvanceBlocks(10)

	// 10 blocks at 50% plus 10 blocks at 25% of the 1 ECH reward.
	rcpt := env.MustExecute(tx.TypeFarmClaimRewards, "alice",
		fmt.Sprintf(`{"farmId":%q}`, id))
	assert.Equal(t, "750000000", evAmount(t, findEvent(t, rcpt, "rewardsClaimed"), "amount"))
}

func TestStakeGuards(t *testing.T) {
	env := farmEnv(t)
	id := createNativeFarm(t, env, 1000)

	rcpt := env.Execute(tx.TypeFarmStake, "alice", `{"farmId":"farm_ECH_EUR","amount":"1"}`)
	require.False(t, rcpt.OK)
	assert.Contains(t, rcpt.Error, "farm not found")

	rcpt = env.Execute(tx.TypeFarmClaimRewards, "alice", fmt.Sprintf(`{"farmId":%q}`, id))
	require.False(t, rcpt.OK)
	assert.Contains(t, rcpt.Error, "no stake")

	env.MustExecute(tx.TypeFarmStake, "alice", fmt.Sprintf(`{"farmId":%q,"amount":"500"}`, id))
	rcpt = env.Execute(tx.TypeFarmUnstake, "alice", fmt.Sprintf(`{"farmId":%q,"amount":"501"}`, id))
	require.False(t, rcpt.OK)
	assert.Contains(t, rcpt.Error, "smaller than requested")

	// Stake hold failure rolls the whole transaction back.
	rcpt = env.Execute(tx.TypeFarmStake, "bob", fmt.Sprintf(`{"farmId":%q,"amount":"10"}`, id))
	require.False(t, rcpt.OK)
	assert.Contains(t, rcpt.Error, "failed to process FARM_STAKE")
	_, found, err := farm.GetStake(env.Ctx(), env.Store, id, "bob")
	require.NoError(t, err)
	assert.False(t, found)
	f, err := farm.MustGet(env.Ctx(), env.Store, id)
	require.NoError(t, err)
	assert.Equal(t, "500", f.TotalStaked.String())
}
