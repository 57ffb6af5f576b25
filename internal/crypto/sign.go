package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

var ErrBadSignature = errors.New("signature verification failed")

// Digest hashes the given parts joined with '|'. Every signed or
// identifier-bearing payload in the node goes through this single form so
// that producers and verifiers cannot disagree on framing.
func Digest(parts ...string) [32]byte {
	return sha256.Sum256([]byte(strings.Join(parts, "|")))
}

// SignCompact produces a recoverable 65-byte signature over digest,
// hex encoded.
func SignCompact(priv *btcec.PrivateKey, digest [32]byte) string {
	sig := ecdsa.SignCompact(priv, digest[:], true)
	return hex.EncodeToString(sig)
}

// RecoverCompact returns the public key that produced sigHex over digest.
func RecoverCompact(sigHex string, digest [32]byte) (*btcec.PublicKey, error) {
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return nil, ErrBadSignature
	}
	pub, _, err := ecdsa.RecoverCompact(sig, digest[:])
	if err != nil {
		return nil, ErrBadSignature
	}
	return pub, nil
}

// VerifyCompact checks that sigHex over digest recovers to the wire-format
// public key pubStr.
func VerifyCompact(pubStr, sigHex string, digest [32]byte) error {
	want, err := ParsePublicKey(pubStr)
	if err != nil {
		return err
	}
	got, err := RecoverCompact(sigHex, digest)
	if err != nil {
		return err
	}
	if !want.IsEqual(got) {
		return ErrBadSignature
	}
	return nil
}
