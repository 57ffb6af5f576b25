// Package account holds the account model and the balance ledger every
// value-moving operation goes through.
package account

import (
	"regexp"

	"github.com/echelon-net/echelond/internal/core/amount"
)

// Account is the per-name state document. Balances and holds are keyed by
// token identifier (bare SYMBOL for master-issued tokens, SYMBOL@issuer
// otherwise). Holds carry escrow for open orders, bids and offers; held
// funds are not spendable and carry no vote weight.
type Account struct {
	Name             string                   `json:"name"`
	Balances         map[string]amount.Amount `json:"balances,omitempty"`
	Holds            map[string]amount.Amount `json:"holds,omitempty"`
	VotedWitnesses   []string                 `json:"votedWitnesses,omitempty"`
	WitnessPublicKey string                   `json:"witnessPublicKey,omitempty"`
	WitnessURL       string                   `json:"witnessUrl,omitempty"`
	WitnessEnabled   bool                     `json:"witnessEnabled,omitempty"`
	TotalVoteWeight  amount.Amount            `json:"totalVoteWeight"`
	OrderNonce       uint64                   `json:"orderNonce,omitempty"`
	CreatedAt        int64                    `json:"createdAt,omitempty"`
}

// Balance returns the spendable balance for a token identifier.
func (a *Account) Balance(identifier string) amount.Amount {
	return a.Balances[identifier]
}

// Held returns the escrowed balance for a token identifier.
func (a *Account) Held(identifier string) amount.Amount {
	return a.Holds[identifier]
}

// HasVoted reports whether the account currently votes for the witness.
func (a *Account) HasVoted(witness string) bool {
	for _, w := range a.VotedWitnesses {
		if w == witness {
			return true
		}
	}
	return false
}

var namePattern = regexp.MustCompile(`^[a-z][a-z0-9.-]{2,15}$`)

// ValidName reports whether name conforms to the user-account grammar.
// System entity accounts (pool, farm and launchpad ids) are created directly
// by handlers and are not subject to it.
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}
