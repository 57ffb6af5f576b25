// Package crypto implements the node's key encoding, compact signature
// scheme and deterministic identifier digests.
package crypto

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/decred/dcrd/crypto/ripemd160"
)

// PublicKeyPrefix tags wire-format public keys.
const PublicKeyPrefix = "EPK"

const (
	compressedKeySize = 33
	checksumSize      = 4
)

var (
	ErrInvalidPublicKey = errors.New("invalid public key")
	ErrBadChecksum      = errors.New("public key checksum mismatch")
)

// EncodePublicKey renders a compressed secp256k1 public key in the wire
// form: prefix + base58(key || ripemd160(key)[:4]).
func EncodePublicKey(pub *btcec.PublicKey) string {
	raw := pub.SerializeCompressed()
	payload := make([]byte, 0, compressedKeySize+checksumSize)
	payload = append(payload, raw...)
	payload = append(payload, checksum(raw)...)
	return PublicKeyPrefix + base58.Encode(payload)
}

// ParsePublicKey reads the wire form back into a key, verifying the prefix
// and the ripemd160 checksum.
func ParsePublicKey(s string) (*btcec.PublicKey, error) {
	if len(s) <= len(PublicKeyPrefix) || s[:len(PublicKeyPrefix)] != PublicKeyPrefix {
		return nil, fmt.Errorf("%w: missing %s prefix", ErrInvalidPublicKey, PublicKeyPrefix)
	}
	payload := base58.Decode(s[len(PublicKeyPrefix):])
	if len(payload) != compressedKeySize+checksumSize {
		return nil, fmt.Errorf("%w: wrong length", ErrInvalidPublicKey)
	}
	raw, sum := payload[:compressedKeySize], payload[compressedKeySize:]
	if !bytes.Equal(sum, checksum(raw)) {
		return nil, ErrBadChecksum
	}
	pub, err := btcec.ParsePubKey(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return pub, nil
}

// ValidPublicKey reports whether s parses as a wire-format public key.
func ValidPublicKey(s string) bool {
	_, err := ParsePublicKey(s)
	return err == nil
}

func checksum(data []byte) []byte {
	h := ripemd160.New()
	h.Write(data)
	return h.Sum(nil)[:checksumSize]
}
