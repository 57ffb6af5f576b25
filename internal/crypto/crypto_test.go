package crypto

import (
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublicKeyRoundTrip(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	encoded := EncodePublicKey(priv.PubKey())
	assert.True(t, strings.HasPrefix(encoded, PublicKeyPrefix))

	decoded, err := ParsePublicKey(encoded)
	require.NoError(t, err)
	assert.True(t, priv.PubKey().IsEqual(decoded))
	assert.True(t, ValidPublicKey(encoded))
}

func TestParsePublicKeyRejectsGarbage(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want error
	}{
		{"empty", "", ErrInvalidPublicKey},
		{"no prefix", "5HueCGU8rMjxEXxiPuD5BDku4MkFqeZyd4dZ1jvhTVqvbTLvyTJ", ErrInvalidPublicKey},
		{"prefix only", "EPK", ErrInvalidPublicKey},
		{"short payload", "EPKabc", ErrInvalidPublicKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePublicKey(tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParsePublicKeyChecksum(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	encoded := EncodePublicKey(priv.PubKey())

	// Corrupt one character of the base58 payload.
	b := []byte(encoded)
	i := len(b) - 1
	if b[i] == 'x' {
		b[i] = 'y'
	} else {
		b[i] = 'x'
	}
	_, err = ParsePublicKey(string(b))
	assert.Error(t, err)
}

func TestSignRecoverVerify(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	pub := EncodePublicKey(priv.PubKey())

	digest := Digest("witness", "alpha", "42")
	sig := SignCompact(priv, digest)

	recovered, err := RecoverCompact(sig, digest)
	require.NoError(t, err)
	assert.True(t, priv.PubKey().IsEqual(recovered))

	require.NoError(t, VerifyCompact(pub, sig, digest))

	// Wrong digest must not verify against the same key.
	other := Digest("witness", "alpha", "43")
	assert.Error(t, VerifyCompact(pub, sig, other))

	// Wrong key must not verify.
	priv2, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	assert.ErrorIs(t, VerifyCompact(EncodePublicKey(priv2.PubKey()), sig, digest), ErrBadSignature)
}

func TestDigestFraming(t *testing.T) {
	// Joining with '|' keeps ("ab","c") distinct from ("a","bc").
	assert.NotEqual(t, Digest("ab", "c"), Digest("a", "bc"))
	assert.Equal(t, Digest("a", "b"), Digest("a", "b"))
}

func TestShortIDs(t *testing.T) {
	order := OrderID("alice", "ECH_USDT", "7")
	assert.Len(t, order, 16)
	assert.Equal(t, order, OrderID("alice", "ECH_USDT", "7"))
	assert.NotEqual(t, order, OrderID("alice", "ECH_USDT", "8"))

	trade := TradeID("ECH_USDT", order, OrderID("bob", "ECH_USDT", "1"), "100", "25000000")
	assert.Len(t, trade, 16)

	pad := LaunchpadID("carol", "MOON", "tx-1")
	assert.True(t, strings.HasPrefix(pad, "pad-"))
	assert.Len(t, pad, len("pad-")+12)
}
