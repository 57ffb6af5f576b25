// Package token implements token issuance and movement: TOKEN_CREATE,
// TOKEN_MINT, TOKEN_TRANSFER, TOKEN_UPDATE and TOKEN_WITHDRAW.
package token

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/echelon-net/echelond/internal/core/amount"
	"github.com/echelon-net/echelond/internal/state"
)

var (
	ErrNotFound       = errors.New("token not found")
	ErrExists         = errors.New("token already exists")
	ErrNotIssuer      = errors.New("only the token issuer may do this")
	ErrNotMintable    = errors.New("token is not mintable")
	ErrNotBurnable    = errors.New("token is not burnable")
	ErrSupplyCap      = errors.New("mint exceeds max supply")
	ErrBadSymbol      = errors.New("symbol must be 3-10 uppercase letters or digits")
	ErrBadAmount      = errors.New("amount must be positive")
	ErrBadRecipient   = errors.New("invalid recipient account")
	ErrMemoTooLong    = errors.New("memo exceeds 256 characters")
	errBadName        = errors.New("name must be 1-50 characters")
	errBadPrecision   = errors.New("precision must be between 0 and 18")
	errInitialOverMax = errors.New("initial supply exceeds max supply")
)

var symbolRe = regexp.MustCompile(`^[A-Z0-9]{3,10}$`)

// Token is the registry document of one fungible token.
type Token struct {
	Identifier  string        `json:"identifier"`
	Symbol      string        `json:"symbol"`
	Name        string        `json:"name"`
	Issuer      string        `json:"issuer"`
	Precision   uint8         `json:"precision"`
	MaxSupply   amount.Amount `json:"maxSupply"` // zero = uncapped
	TotalSupply amount.Amount `json:"totalSupply"`
	Mintable    bool          `json:"mintable"`
	Burnable    bool          `json:"burnable"`
	Description string        `json:"description,omitempty"`
	LogoURL     string        `json:"logoUrl,omitempty"`
	WebsiteURL  string        `json:"websiteUrl,omitempty"`
	CreatedAt   int64         `json:"createdAt"`
}

// Identifier derives the balance-map key of a token: the bare symbol for
// master-issued tokens, SYMBOL@issuer otherwise.
func Identifier(symbol, issuer, master string) string {
	if issuer == master {
		return symbol
	}
	return symbol + "@" + issuer
}

// SplitIdentifier returns the symbol and the issuer suffix (empty for
// master-issued tokens).
func SplitIdentifier(identifier string) (symbol, issuer string) {
	if i := strings.IndexByte(identifier, '@'); i >= 0 {
		return identifier[:i], identifier[i+1:]
	}
	return identifier, ""
}

// IsLP reports whether the identifier names a liquidity-pool share token.
func IsLP(identifier string) bool { return strings.HasPrefix(identifier, "LP_") }

// ValidSymbol reports whether s matches the token symbol grammar.
func ValidSymbol(s string) bool { return symbolRe.MatchString(s) }

// SymbolExists reports whether any issuer has registered the symbol. The
// launchpad uses it to keep launch symbols globally unique.
func SymbolExists(ctx context.Context, store *state.Store, symbol string) (bool, error) {
	exists := false
	err := store.Scan(ctx, state.CollTokens, func(id string, raw []byte) (bool, error) {
		var t Token
		if err := state.Decode(raw, &t); err != nil {
			return false, err
		}
		if t.Symbol == symbol {
			exists = true
			return false, nil
		}
		return true, nil
	})
	return exists, err
}

// Get loads a token by identifier.
func Get(ctx context.Context, store *state.Store, identifier string) (*Token, bool, error) {
	var t Token
	found, err := store.Get(ctx, state.CollTokens, identifier, &t)
	if err != nil || !found {
		return nil, found, err
	}
	return &t, true, nil
}

// MustGet loads a token that callers already validated to exist.
func MustGet(ctx context.Context, store *state.Store, identifier string) (*Token, error) {
	t, found, err := Get(ctx, store, identifier)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, identifier)
	}
	return t, nil
}

// Put writes a token document.
func Put(ctx context.Context, store *state.Store, t *Token) error {
	return store.Put(ctx, state.CollTokens, t.Identifier, t)
}

// Decimals resolves the display precision of any balance identifier: LP
// tokens are fixed at 18, everything else reads the token registry.
func Decimals(ctx context.Context, store *state.Store, identifier string) (uint8, bool, error) {
	if IsLP(identifier) {
		return 18, true, nil
	}
	t, found, err := Get(ctx, store, identifier)
	if err != nil || !found {
		return 0, found, err
	}
	return t.Precision, true, nil
}
