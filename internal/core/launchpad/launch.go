package launchpad

import (
	"errors"
	"strings"

	"github.com/echelon-net/echelond/internal/core/amount"
	"github.com/echelon-net/echelond/internal/core/event"
	"github.com/echelon-net/echelond/internal/core/token"
	"github.com/echelon-net/echelond/internal/core/tx"
	"github.com/echelon-net/echelond/internal/crypto"
)

var (
	errBadSymbol   = errors.New("symbol must be 3-10 uppercase alphanumerics")
	errBadName     = errors.New("token name must be 1-50 characters")
	errBadDecimals = errors.New("decimals must be between 0 and 18")
	errBadSupply   = errors.New("totalSupply must be positive")
	errLongDesc    = errors.New("description exceeds 1000 characters")
	errBadWebsite  = errors.New("website must be an http(s) url of at most 2048 characters")
	errBadPrice    = errors.New("pricePerToken must be positive")
	errBadHardCap  = errors.New("hardCap must be positive")
	errBadSoftCap  = errors.New("softCap cannot exceed hardCap")
	errBadSaleSpan = errors.New("startTime must come before endTime")
	errBadQuote    = errors.New("quote asset does not exist")
)

// LaunchToken is LAUNCHPAD_LAUNCH_TOKEN. It only creates the launch record;
// the token itself is minted later by SET_MAIN_TOKEN.
type LaunchToken struct {
	Symbol      string        `json:"symbol"`
	Name        string        `json:"name"`
	Decimals    *uint8        `json:"decimals"`
	TotalSupply amount.Amount `json:"totalSupply"`
	Description string        `json:"description"`
	Website     string        `json:"website"`
}

// ConfigurePresale is LAUNCHPAD_CONFIGURE_PRESALE. Configuring moves the
// pad to PRESALE_SCHEDULED, so terms freeze once set.
type ConfigurePresale struct {
	LaunchpadID      string        `json:"launchpadId"`
	PricePerToken    amount.Amount `json:"pricePerToken"`
	QuoteAsset       string        `json:"quoteAssetId"`
	HardCap          amount.Amount `json:"hardCap"`
	SoftCap          amount.Amount `json:"softCap"`
	MinContribution  amount.Amount `json:"minContribution"`
	MaxContribution  amount.Amount `json:"maxContribution"`
	StartTime        int64         `json:"startTime"`
	EndTime          int64         `json:"endTime"`
	AllocationBps    int64         `json:"presaleAllocationBps"`
	WhitelistEnabled bool          `json:"whitelistEnabled"`
}

func init() {
	tx.Register(tx.TypeLaunchpadLaunchToken, func() tx.Operation { return &LaunchToken{} })
	tx.Register(tx.TypeLaunchpadConfigurePresale, func() tx.Operation { return &ConfigurePresale{} })
}

func (l *LaunchToken) TxType() tx.Type      { return tx.TypeLaunchpadLaunchToken }
func (c *ConfigurePresale) TxType() tx.Type { return tx.TypeLaunchpadConfigurePresale }

func (l *LaunchToken) Validate(ctx *tx.Context) error {
	if !token.ValidSymbol(l.Symbol) {
		return errBadSymbol
	}
	if l.Name == "" || len(l.Name) > 50 {
		return errBadName
	}
	if l.Decimals != nil && *l.Decimals > 18 {
		return errBadDecimals
	}
	if !l.TotalSupply.IsPositive() {
		return errBadSupply
	}
	if len(l.Description) > 1000 {
		return errLongDesc
	}
	if l.Website != "" {
		if !strings.HasPrefix(l.Website, "http") || len(l.Website) > 2048 {
			return errBadWebsite
		}
	}
	if taken, err := token.SymbolExists(ctx.Ctx, ctx.Store, l.Symbol); err != nil {
		return err
	} else if taken {
		return ErrSymbolTaken
	}
	if taken, err := SymbolLaunching(ctx.Ctx, ctx.Store, l.Symbol); err != nil {
		return err
	} else if taken {
		return ErrSymbolLaunching
	}
	return nil
}

func (l *LaunchToken) Apply(ctx *tx.Context) error {
	decimals := uint8(18)
	if l.Decimals != nil {
		decimals = *l.Decimals
	}
	lp := &Launchpad{
		ID:          crypto.LaunchpadID(ctx.Sender, l.Symbol, ctx.TxID),
		Owner:       ctx.Sender,
		TokenSymbol: l.Symbol,
		TokenName:   l.Name,
		Decimals:    decimals,
		TotalSupply: l.TotalSupply,
		Description: l.Description,
		Website:     l.Website,
		Status:      StatusUpcoming,
		CreatedAt:   ctx.Timestamp,
		UpdatedAt:   ctx.Timestamp,
	}
	if err := Put(ctx.Ctx, ctx.Store, lp); err != nil {
		return err
	}
	ctx.Emit(event.CategoryLaunchpad, "launched", map[string]any{
		"launchpadId": lp.ID,
		"symbol":      lp.TokenSymbol,
		"name":        lp.TokenName,
		"decimals":    int(lp.Decimals),
		"totalSupply": lp.TotalSupply,
	})
	return nil
}

func (c *ConfigurePresale) Validate(ctx *tx.Context) error {
	lp, err := MustGet(ctx.Ctx, ctx.Store, c.LaunchpadID)
	if err != nil {
		return err
	}
	if lp.Owner != ctx.Sender {
		return ErrNotOwner
	}
	if lp.Status != StatusUpcoming && lp.Status != StatusPendingValidation {
		return ErrBadStatus
	}
	if !c.PricePerToken.IsPositive() {
		return errBadPrice
	}
	if !c.HardCap.IsPositive() {
		return errBadHardCap
	}
	if c.SoftCap.Cmp(c.HardCap) > 0 {
		return errBadSoftCap
	}
	if c.StartTime >= c.EndTime {
		return errBadSaleSpan
	}
	quote := c.QuoteAsset
	if quote == "" {
		quote = ctx.Ledger.NativeSymbol()
	}
	if _, found, err := token.Get(ctx.Ctx, ctx.Store, quote); err != nil {
		return err
	} else if !found {
		return errBadQuote
	}
	return nil
}

func (c *ConfigurePresale) Apply(ctx *tx.Context) error {
	lp, err := MustGet(ctx.Ctx, ctx.Store, c.LaunchpadID)
	if err != nil {
		return err
	}
	quote := c.QuoteAsset
	if quote == "" {
		quote = ctx.Ledger.NativeSymbol()
	}
	lp.Presale = &Presale{
		PricePerToken:    c.PricePerToken,
		QuoteAsset:       quote,
		HardCap:          c.HardCap,
		SoftCap:          c.SoftCap,
		MinContribution:  c.MinContribution,
		MaxContribution:  c.MaxContribution,
		StartTime:        c.StartTime,
		EndTime:          c.EndTime,
		AllocationBps:    c.AllocationBps,
		WhitelistEnabled: c.WhitelistEnabled,
	}
	lp.Status = StatusPresaleScheduled
	lp.UpdatedAt = ctx.Timestamp
	if err := Put(ctx.Ctx, ctx.Store, lp); err != nil {
		return err
	}
	ctx.Emit(event.CategoryLaunchpad, "presaleConfigured", map[string]any{
		"launchpadId":   lp.ID,
		"pricePerToken": c.PricePerToken,
		"quoteAssetId":  quote,
		"hardCap":       c.HardCap,
		"softCap":       c.SoftCap,
		"startTime":     c.StartTime,
		"endTime":       c.EndTime,
	})
	return nil
}
