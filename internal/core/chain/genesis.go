package chain

import (
	"context"
	"fmt"
	"log"

	"github.com/echelon-net/echelond/internal/core/account"
	"github.com/echelon-net/echelond/internal/core/market"
	"github.com/echelon-net/echelond/internal/core/token"
	"github.com/echelon-net/echelond/internal/core/tx"
	"github.com/echelon-net/echelond/internal/state"
)

// GenesisPair seeds one trading pair with default limits at bootstrap.
type GenesisPair struct {
	Base  string
	Quote string
}

// Bootstrap seeds an empty chain: the master account, the native token and
// the configured trading pairs. It reports whether it ran; a chain whose
// native token already exists is left untouched, so calling this on every
// boot is safe.
func Bootstrap(ctx context.Context, store *state.Store, ledger *account.Ledger, params tx.Params, pairs []GenesisPair) (bool, error) {
	if _, found, err := token.Get(ctx, store, params.NativeSymbol); err != nil {
		return false, fmt.Errorf("genesis: %w", err)
	} else if found {
		return false, nil
	}

	// Genesis state predates every block; timestamps stay zero so replay
	// from any source reproduces it byte for byte.
	if _, err := ledger.Ensure(ctx, params.MasterAccount, 0); err != nil {
		return false, fmt.Errorf("genesis: master account: %w", err)
	}
	if err := token.Put(ctx, store, &token.Token{
		Identifier: params.NativeSymbol,
		Symbol:     params.NativeSymbol,
		Name:       "Echelon",
		Issuer:     params.MasterAccount,
		Precision:  params.NativeDecimals,
		Mintable:   true,
		Burnable:   true,
	}); err != nil {
		return false, fmt.Errorf("genesis: native token: %w", err)
	}

	for _, p := range pairs {
		if _, err := market.CreatePair(ctx, store, p.Base, p.Quote, market.PairConfig{}, 0); err != nil {
			return false, fmt.Errorf("genesis: pair %s/%s: %w", p.Base, p.Quote, err)
		}
	}

	log.Printf("[chain] genesis: seeded %s, master %q, %d pairs",
		params.NativeSymbol, params.MasterAccount, len(pairs))
	return true, nil
}
