// Package launchpad implements the token-launch lifecycle: launch record,
// presale configuration, refundable participation, finalization against the
// caps, token generation and claims, and the administrative status machine
// (LAUNCHPAD_* transaction types).
package launchpad

import (
	"context"
	"errors"

	"github.com/echelon-net/echelond/internal/core/amount"
	"github.com/echelon-net/echelond/internal/state"
)

// Lifecycle statuses. The happy path runs top to bottom; CANCELLED and
// PAUSED are administrative side states.
const (
	StatusUpcoming          = "UPCOMING"
	StatusPendingValidation = "PENDING_VALIDATION"
	StatusPresaleScheduled  = "PRESALE_SCHEDULED"
	StatusPresaleActive     = "PRESALE_ACTIVE"
	StatusPresaleEnded      = "PRESALE_ENDED"
	StatusSucceededSoftcap  = "PRESALE_SUCCEEDED_SOFTCAP_MET"
	StatusSucceededHardcap  = "PRESALE_SUCCEEDED_HARDCAP_MET"
	StatusFailed            = "PRESALE_FAILED_SOFTCAP_NOT_MET"
	StatusTGE               = "TGE"
	StatusTradingLive       = "TRADING_LIVE"
	StatusCompleted         = "COMPLETED"
	StatusCancelled         = "CANCELLED"
	StatusPaused            = "PAUSED"
)

// AllocationPresale is the only claim bucket the chain pays out; the other
// buckets of the original token-economics sheet are rejected explicitly.
const AllocationPresale = "PRESALE_PARTICIPANTS"

var (
	ErrPadNotFound     = errors.New("launchpad not found")
	ErrNotOwner        = errors.New("only the launchpad owner may do this")
	ErrBadStatus       = errors.New("launchpad status does not allow this")
	ErrBadTransition   = errors.New("status transition not allowed")
	ErrSymbolTaken     = errors.New("token symbol already exists")
	ErrSymbolLaunching = errors.New("a launchpad already tracks this symbol")
	ErrNotConfigured   = errors.New("presale is not configured")
	ErrHardCapExceeded = errors.New("contribution exceeds the hard cap")
	ErrNotWhitelisted  = errors.New("account is not whitelisted")
	ErrNotParticipant  = errors.New("no presale contribution recorded")
	ErrAlreadyClaimed  = errors.New("tokens already claimed")
	ErrAllocationType  = errors.New("unsupported allocation type")
	ErrPresaleRunning  = errors.New("presale has not ended")
	ErrNothingToRefund = errors.New("nothing to refund")
)

// statusEdges lists the statuses reachable from each state by
// LAUNCHPAD_UPDATE_STATUS. The presale outcome states are normally entered
// by FINALIZE_PRESALE; the edges stay open so the owner can force an
// outcome when finalization is impossible. Leaving PAUSED is special-cased
// to the status the pad was paused from.
var statusEdges = map[string][]string{
	StatusUpcoming:          {StatusPendingValidation, StatusPresaleScheduled, StatusCancelled},
	StatusPendingValidation: {StatusUpcoming, StatusPresaleScheduled, StatusCancelled},
	StatusPresaleScheduled:  {StatusPresaleActive, StatusPaused, StatusCancelled},
	StatusPresaleActive:     {StatusPresaleEnded, StatusPaused, StatusCancelled},
	StatusPresaleEnded:      {StatusSucceededSoftcap, StatusSucceededHardcap, StatusFailed, StatusCancelled},
	StatusSucceededSoftcap:  {StatusTGE, StatusCancelled},
	StatusSucceededHardcap:  {StatusTGE, StatusCancelled},
	StatusFailed:            {StatusCancelled},
	StatusTGE:               {StatusTradingLive, StatusPaused, StatusCancelled},
	StatusTradingLive:       {StatusCompleted, StatusPaused},
}

// Participant is one account's presale position. Contribution accumulates
// across PARTICIPATE calls; TokensAllocated is fixed at finalization.
type Participant struct {
	Account         string        `json:"account"`
	Contribution    amount.Amount `json:"contribution"`
	TokensAllocated amount.Amount `json:"tokensAllocated"`
	Claimed         bool          `json:"claimed"`
	Refunded        bool          `json:"refunded"`
	JoinedAt        int64         `json:"joinedAt"`
}

// Presale holds the configured sale terms and the running tally.
type Presale struct {
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
	Whitelist        []string      `json:"whitelist,omitempty"`
	TotalQuoteRaised amount.Amount `json:"totalQuoteRaised"`
	Participants     []Participant `json:"participants,omitempty"`
}

// Launchpad is the state document of one token launch. The pad id doubles
// as the system account escrowing contributions and the claimable token
// supply.
type Launchpad struct {
	ID          string        `json:"id"`
	Owner       string        `json:"owner"`
	TokenSymbol string        `json:"tokenSymbol"`
	TokenName   string        `json:"tokenName"`
	Decimals    uint8         `json:"decimals"`
	TotalSupply amount.Amount `json:"totalSupply"`
	Description string        `json:"description,omitempty"`
	Website     string        `json:"website,omitempty"`
	Status      string        `json:"status"`
	PausedFrom  string        `json:"pausedFrom,omitempty"`
	MainTokenID string        `json:"mainTokenId,omitempty"`
	Presale     *Presale      `json:"presale,omitempty"`
	CreatedAt   int64         `json:"createdAt"`
	UpdatedAt   int64         `json:"updatedAt"`
}

// Get loads a launchpad by id.
func Get(ctx context.Context, store *state.Store, id string) (*Launchpad, bool, error) {
	var lp Launchpad
	found, err := store.Get(ctx, state.CollLaunchpads, id, &lp)
	if err != nil || !found {
		return nil, found, err
	}
	return &lp, true, nil
}

// MustGet loads a launchpad or returns ErrPadNotFound.
func MustGet(ctx context.Context, store *state.Store, id string) (*Launchpad, error) {
	lp, found, err := Get(ctx, store, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrPadNotFound
	}
	return lp, nil
}

// Put persists a launchpad document.
func Put(ctx context.Context, store *state.Store, lp *Launchpad) error {
	return store.Put(ctx, state.CollLaunchpads, lp.ID, lp)
}

// All returns every launchpad in id order.
func All(ctx context.Context, store *state.Store) ([]*Launchpad, error) {
	var out []*Launchpad
	err := store.Scan(ctx, state.CollLaunchpads, func(id string, raw []byte) (bool, error) {
		var lp Launchpad
		if err := state.Decode(raw, &lp); err != nil {
			return false, err
		}
		out = append(out, &lp)
		return true, nil
	})
	return out, err
}

// SymbolLaunching reports whether a non-cancelled launchpad already tracks
// the symbol.
func SymbolLaunching(ctx context.Context, store *state.Store, symbol string) (bool, error) {
	taken := false
	err := store.Scan(ctx, state.CollLaunchpads, func(id string, raw []byte) (bool, error) {
		var lp Launchpad
		if err := state.Decode(raw, &lp); err != nil {
			return false, err
		}
		if lp.TokenSymbol == symbol && lp.Status != StatusCancelled {
			taken = true
			return false, nil
		}
		return true, nil
	})
	return taken, err
}

// participant returns the entry for an account, nil when absent.
func (p *Presale) participant(acct string) *Participant {
	for i := range p.Participants {
		if p.Participants[i].Account == acct {
			return &p.Participants[i]
		}
	}
	return nil
}

// whitelisted reports whether the account may participate. An empty
// whitelist with the flag on locks everyone out until names are added.
func (p *Presale) whitelisted(acct string) bool {
	if !p.WhitelistEnabled {
		return true
	}
	for _, name := range p.Whitelist {
		if name == acct {
			return true
		}
	}
	return false
}

// Succeeded reports whether the pad reached a successful presale outcome or
// any later happy-path status.
func (lp *Launchpad) Succeeded() bool {
	switch lp.Status {
	case StatusSucceededSoftcap, StatusSucceededHardcap, StatusTGE, StatusTradingLive, StatusCompleted:
		return true
	}
	return false
}

// canTransition checks the status machine, following PausedFrom when the
// pad is paused.
func (lp *Launchpad) canTransition(next string) bool {
	if lp.Status == StatusPaused {
		return next == lp.PausedFrom
	}
	for _, s := range statusEdges[lp.Status] {
		if s == next {
			return true
		}
	}
	return false
}
