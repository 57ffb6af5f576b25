package tx

import (
	"encoding/json"
	"strconv"

	"github.com/echelon-net/echelond/internal/crypto"
)

// Envelope is the wire form of one sidechain transaction as carried in a
// custom_json block operation.
type Envelope struct {
	ID        string          `json:"id"`
	Type      Type            `json:"type"`
	Sender    string          `json:"sender"`
	Data      json.RawMessage `json:"data"`
	Signature string          `json:"signature,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
}

// ParseEnvelope decodes a raw custom_json payload into an envelope.
func ParseEnvelope(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// SigningDigest is the hash a sender signs: sha256 over
// id|type|sender|data with the numeric type code.
func (e *Envelope) SigningDigest() [32]byte {
	return crypto.Digest(e.ID, strconv.FormatUint(uint64(e.Type), 10), e.Sender, string(e.Data))
}

// VerifyEnvelope checks the envelope's compact signature against a
// wire-format public key.
func VerifyEnvelope(publicKey string, e *Envelope) error {
	if err := crypto.VerifyCompact(publicKey, e.Signature, e.SigningDigest()); err != nil {
		return ErrBadSignature
	}
	return nil
}
