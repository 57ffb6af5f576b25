package token_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echelon-net/echelond/internal/core/token"
	"github.com/echelon-net/echelond/internal/core/tx"
	"github.com/echelon-net/echelond/internal/testutil"
)

func TestIdentifier(t *testing.T) {
	assert.Equal(t, "USDT", token.Identifier("USDT", "echelon", "echelon"))
	assert.Equal(t, "GAME@alice", token.Identifier("GAME", "alice", "echelon"))

	sym, issuer := token.SplitIdentifier("GAME@alice")
	assert.Equal(t, "GAME", sym)
	assert.Equal(t, "alice", issuer)
	sym, issuer = token.SplitIdentifier("USDT")
	assert.Equal(t, "USDT", sym)
	assert.Empty(t, issuer)

	assert.True(t, token.IsLP("LP_ECH_USDT"))
	assert.False(t, token.IsLP("ECH"))
}

func TestCreate(t *testing.T) {
	env := testutil.NewEnv(t)

	rcpt := env.MustExecute(tx.TypeTokenCreate, "echelon",
		`{"symbol":"USDT","name":"Tether USD","precision":18,"initialSupply":"10000000000000000000000"}`)
	require.Len(t, rcpt.Events, 1)
	assert.Equal(t, "created", rcpt.Events[0].Action)

	tok, found, err := token.Get(env.Ctx(), env.Store, "USDT")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "echelon", tok.Issuer)
	assert.Equal(t, uint8(18), tok.Precision)
	assert.Equal(t, "10000000000000000000000", tok.TotalSupply.String())
	assert.True(t, tok.Mintable)
	assert.True(t, tok.Burnable)

	assert.Equal(t, "10000000000000000000000", env.Balance("echelon", "USDT"))
}

func TestCreateNonMasterGetsSuffixedIdentifier(t *testing.T) {
	env := testutil.NewEnv(t)
	env.Fund("alice", "ECH", "100")

	env.MustExecute(tx.TypeTokenCreate, "alice", `{"symbol":"GAME","name":"Game","initialSupply":"500"}`)

	tok, found, err := token.Get(env.Ctx(), env.Store, "GAME@alice")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "GAME@alice", tok.Identifier)
	assert.Equal(t, uint8(8), tok.Precision, "precision defaults to 8")
	assert.Equal(t, "500", env.Balance("alice", "GAME@alice"))
}

func TestCreateRejections(t *testing.T) {
	env := testutil.NewEnv(t)
	env.Fund("alice", "ECH", "100")

	tests := []struct {
		name    string
		payload string
		wantErr string
	}{
		{"bad symbol lowercase", `{"symbol":"usdt","name":"x"}`, "symbol"},
		{"bad symbol short", `{"symbol":"AB","name":"x"}`, "symbol"},
		{"bad symbol long", `{"symbol":"ABCDEFGHIJK","name":"x"}`, "symbol"},
		{"empty name", `{"symbol":"AAA","name":""}`, "name"},
		{"precision too high", `{"symbol":"AAA","name":"x","precision":19}`, "precision"},
		{"initial over max", `{"symbol":"AAA","name":"x","maxSupply":"10","initialSupply":"11"}`, "initial supply exceeds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rcpt := env.Execute(tx.TypeTokenCreate, "alice", tt.payload)
			require.False(t, rcpt.OK)
			assert.Contains(t, rcpt.Error, "invalid TOKEN_CREATE")
			assert.Contains(t, rcpt.Error, tt.wantErr)
		})
	}

	env.MustExecute(tx.TypeTokenCreate, "alice", `{"symbol":"AAA","name":"x"}`)
	rcpt := env.Execute(tx.TypeTokenCreate, "alice", `{"symbol":"AAA","name":"again"}`)
	require.False(t, rcpt.OK)
	assert.Contains(t, rcpt.Error, "already exists")
}

func TestMint(t *testing.T) {
	env := testutil.NewEnv(t)
	env.Fund("alice", "ECH", "100")
	env.MustExecute(tx.TypeTokenCreate, "alice", `{"symbol":"GAME","name":"Game","maxSupply":"1000"}`)

	env.MustExecute(tx.TypeTokenMint, "alice", `{"symbol":"GAME@alice","to":"bob","amount":"700"}`)
	assert.Equal(t, "700", env.Balance("bob", "GAME@alice"))

	tok, _, err := token.Get(env.Ctx(), env.Store, "GAME@alice")
	require.NoError(t, err)
	assert.Equal(t, "700", tok.TotalSupply.String())

	// Over the cap.
	rcpt := env.Execute(tx.TypeTokenMint, "alice", `{"symbol":"GAME@alice","to":"bob","amount":"301"}`)
	require.False(t, rcpt.OK)
	assert.Contains(t, rcpt.Error, "max supply")

	// Non-issuer.
	rcpt = env.Execute(tx.TypeTokenMint, "bob", `{"symbol":"GAME@alice","to":"bob","amount":"1"}`)
	require.False(t, rcpt.OK)
	assert.Contains(t, rcpt.Error, "issuer")

	// Unknown token.
	rcpt = env.Execute(tx.TypeTokenMint, "alice", `{"symbol":"NOPE","to":"bob","amount":"1"}`)
	require.False(t, rcpt.OK)
	assert.Contains(t, rcpt.Error, "not found")
}

func TestMintNotMintable(t *testing.T) {
	env := testutil.NewEnv(t)
	env.MustExecute(tx.TypeTokenCreate, "echelon", `{"symbol":"FIX","name":"Fixed","mintable":false,"initialSupply":"10"}`)
	rcpt := env.Execute(tx.TypeTokenMint, "echelon", `{"symbol":"FIX","to":"bob","amount":"1"}`)
	require.False(t, rcpt.OK)
	assert.Contains(t, rcpt.Error, "not mintable")
}

func TestTransfer(t *testing.T) {
	env := testutil.NewEnv(t)
	env.Fund("alice", "ECH", "1000")

	rcpt := env.MustExecute(tx.TypeTokenTransfer, "alice", `{"symbol":"ECH","to":"bob","amount":"400","memo":"rent"}`)
	assert.Equal(t, "600", env.Balance("alice", "ECH"))
	assert.Equal(t, "400", env.Balance("bob", "ECH"))
	require.Len(t, rcpt.Events, 1)
	assert.Equal(t, "transferred", rcpt.Events[0].Action)
	assert.Equal(t, "rent", rcpt.Events[0].Data["memo"])

	// Insufficient balance fails and changes nothing.
	rcpt = env.Execute(tx.TypeTokenTransfer, "alice", `{"symbol":"ECH","to":"bob","amount":"601"}`)
	require.False(t, rcpt.OK)
	assert.Contains(t, rcpt.Error, "failed to process TOKEN_TRANSFER")
	assert.Equal(t, "600", env.Balance("alice", "ECH"))
	assert.Equal(t, "400", env.Balance("bob", "ECH"))
}

func TestTransferRejections(t *testing.T) {
	env := testutil.NewEnv(t)
	env.Fund("alice", "ECH", "100")

	for name, payload := range map[string]string{
		"zero amount":   `{"symbol":"ECH","to":"bob","amount":"0"}`,
		"negative":      `{"symbol":"ECH","to":"bob","amount":"-5"}`,
		"self transfer": `{"symbol":"ECH","to":"alice","amount":"5"}`,
		"bad recipient": `{"symbol":"ECH","to":"NOT_AN_ACCOUNT","amount":"5"}`,
		"unknown token": `{"symbol":"NOPE","to":"bob","amount":"5"}`,
	} {
		t.Run(name, func(t *testing.T) {
			rcpt := env.Execute(tx.TypeTokenTransfer, "alice", payload)
			assert.False(t, rcpt.OK)
			assert.Contains(t, rcpt.Error, "invalid TOKEN_TRANSFER")
		})
	}

	longMemo := fmt.Sprintf(`{"symbol":"ECH","to":"bob","amount":"5","memo":%q}`, strings.Repeat("m", 257))
	rcpt := env.Execute(tx.TypeTokenTransfer, "alice", longMemo)
	assert.False(t, rcpt.OK)
}

func TestUpdate(t *testing.T) {
	env := testutil.NewEnv(t)
	env.Fund("alice", "ECH", "100")
	env.MustExecute(tx.TypeTokenCreate, "alice", `{"symbol":"GAME","name":"Game"}`)

	env.MustExecute(tx.TypeTokenUpdate, "alice",
		`{"symbol":"GAME@alice","name":"Game v2","logoUrl":"https://example.com/logo.png"}`)

	tok, _, err := token.Get(env.Ctx(), env.Store, "GAME@alice")
	require.NoError(t, err)
	assert.Equal(t, "Game v2", tok.Name)
	assert.Equal(t, "https://example.com/logo.png", tok.LogoURL)

	rcpt := env.Execute(tx.TypeTokenUpdate, "bob", `{"symbol":"GAME@alice","name":"hijack"}`)
	require.False(t, rcpt.OK)
	assert.Contains(t, rcpt.Error, "issuer")

	rcpt = env.Execute(tx.TypeTokenUpdate, "alice", `{"symbol":"GAME@alice"}`)
	require.False(t, rcpt.OK)
	assert.Contains(t, rcpt.Error, "no fields")
}

func TestWithdrawBurns(t *testing.T) {
	env := testutil.NewEnv(t)
	env.MustExecute(tx.TypeTokenCreate, "echelon", `{"symbol":"USDT","name":"Tether","initialSupply":"1000"}`)

	rcpt := env.MustExecute(tx.TypeTokenWithdraw, "echelon", `{"symbol":"USDT","to":"mainnet-acct","amount":"250","memo":"exit"}`)
	assert.Equal(t, "750", env.Balance("echelon", "USDT"))

	tok, _, err := token.Get(env.Ctx(), env.Store, "USDT")
	require.NoError(t, err)
	assert.Equal(t, "750", tok.TotalSupply.String(), "withdrawn tokens are burned")

	require.Len(t, rcpt.Events, 1)
	assert.Equal(t, "withdraw", rcpt.Events[0].Action)
	assert.Equal(t, "mainnet-acct", rcpt.Events[0].Data["to"])
}

func TestWithdrawNotBurnable(t *testing.T) {
	env := testutil.NewEnv(t)
	env.MustExecute(tx.TypeTokenCreate, "echelon", `{"symbol":"LOCK","name":"Locked","burnable":false,"initialSupply":"10"}`)
	rcpt := env.Execute(tx.TypeTokenWithdraw, "echelon", `{"symbol":"LOCK","to":"out","amount":"1"}`)
	require.False(t, rcpt.OK)
	assert.Contains(t, rcpt.Error, "not burnable")
}

func TestDecimals(t *testing.T) {
	env := testutil.NewEnv(t)
	env.MustExecute(tx.TypeTokenCreate, "echelon", `{"symbol":"USDT","name":"Tether","precision":18}`)

	dec, found, err := token.Decimals(env.Ctx(), env.Store, "USDT")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, uint8(18), dec)

	dec, found, err = token.Decimals(env.Ctx(), env.Store, "LP_ECH_USDT")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, uint8(18), dec)

	dec, found, err = token.Decimals(env.Ctx(), env.Store, "ECH")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, uint8(8), dec)

	_, found, err = token.Decimals(env.Ctx(), env.Store, "NOPE")
	require.NoError(t, err)
	assert.False(t, found)
}
