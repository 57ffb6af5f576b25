package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/echelon-net/echelond/internal/core/amount"
	"github.com/echelon-net/echelond/internal/core/launchpad"
)

// launchpadView is the wire form of a launchpad. Contribution figures are
// in the quote asset, allocation figures in the launched token's decimals.
type launchpadView struct {
	ID          string       `json:"id"`
	Owner       string       `json:"owner"`
	TokenSymbol string       `json:"tokenSymbol"`
	TokenName   string       `json:"tokenName"`
	Decimals    uint8        `json:"decimals"`
	TotalSupply amountJSON   `json:"totalSupply"`
	Description string       `json:"description,omitempty"`
	Website     string       `json:"website,omitempty"`
	Status      string       `json:"status"`
	MainTokenID string       `json:"mainTokenId,omitempty"`
	Presale     *presaleView `json:"presale,omitempty"`
	CreatedAt   int64        `json:"createdAt"`
	UpdatedAt   int64        `json:"updatedAt"`
}

type presaleView struct {
	PricePerToken    amountJSON        `json:"pricePerToken"`
	QuoteAsset       string            `json:"quoteAssetId"`
	HardCap          amountJSON        `json:"hardCap"`
	SoftCap          amountJSON        `json:"softCap"`
	MinContribution  amountJSON        `json:"minContribution"`
	MaxContribution  amountJSON        `json:"maxContribution"`
	StartTime        int64             `json:"startTime"`
	EndTime          int64             `json:"endTime"`
	AllocationBps    int64             `json:"presaleAllocationBps"`
	WhitelistEnabled bool              `json:"whitelistEnabled"`
	TotalQuoteRaised amountJSON        `json:"totalQuoteRaised"`
	Participants     int               `json:"participants"`
	Entries          []participantView `json:"entries,omitempty"`
}

type participantView struct {
	Account         string     `json:"account"`
	Contribution    amountJSON `json:"contribution"`
	TokensAllocated amountJSON `json:"tokensAllocated"`
	Claimed         bool       `json:"claimed"`
	Refunded        bool       `json:"refunded"`
	JoinedAt        int64      `json:"joinedAt"`
}

func (s *Server) participantView(ctx context.Context, lp *launchpad.Launchpad, p launchpad.Participant) participantView {
	return participantView{
		Account:         p.Account,
		Contribution:    s.renderAmount(ctx, lp.Presale.QuoteAsset, p.Contribution),
		TokensAllocated: renderAt(p.TokensAllocated, lp.Decimals),
		Claimed:         p.Claimed,
		Refunded:        p.Refunded,
		JoinedAt:        p.JoinedAt,
	}
}

// launchpadView renders a pad; participant entries are included only on the
// single-pad view.
func (s *Server) launchpadView(ctx context.Context, lp *launchpad.Launchpad, withEntries bool) launchpadView {
	v := launchpadView{
		ID:          lp.ID,
		Owner:       lp.Owner,
		TokenSymbol: lp.TokenSymbol,
		TokenName:   lp.TokenName,
		Decimals:    lp.Decimals,
		TotalSupply: renderAt(lp.TotalSupply, lp.Decimals),
		Description: lp.Description,
		Website:     lp.Website,
		Status:      lp.Status,
		MainTokenID: lp.MainTokenID,
		CreatedAt:   lp.CreatedAt,
		UpdatedAt:   lp.UpdatedAt,
	}
	if sale := lp.Presale; sale != nil {
		pv := &presaleView{
			PricePerToken:    s.renderAmount(ctx, sale.QuoteAsset, sale.PricePerToken),
			QuoteAsset:       sale.QuoteAsset,
			HardCap:          s.renderAmount(ctx, sale.QuoteAsset, sale.HardCap),
			SoftCap:          s.renderAmount(ctx, sale.QuoteAsset, sale.SoftCap),
			MinContribution:  s.renderAmount(ctx, sale.QuoteAsset, sale.MinContribution),
			MaxContribution:  s.renderAmount(ctx, sale.QuoteAsset, sale.MaxContribution),
			StartTime:        sale.StartTime,
			EndTime:          sale.EndTime,
			AllocationBps:    sale.AllocationBps,
			WhitelistEnabled: sale.WhitelistEnabled,
			TotalQuoteRaised: s.renderAmount(ctx, sale.QuoteAsset, sale.TotalQuoteRaised),
			Participants:     len(sale.Participants),
		}
		if withEntries {
			pv.Entries = make([]participantView, 0, len(sale.Participants))
			for _, p := range sale.Participants {
				pv.Entries = append(pv.Entries, s.participantView(ctx, lp, p))
			}
		}
		v.Presale = pv
	}
	return v
}

func (s *Server) handleListLaunchpads(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pads, err := launchpad.All(ctx, s.cfg.Store)
	if err != nil {
		internalErr(w, err)
		return
	}
	limit, skip := page(r)
	total := len(pads)
	views := make([]launchpadView, 0, limit)
	for _, lp := range pageWindow(pads, limit, skip) {
		views = append(views, s.launchpadView(ctx, lp, false))
	}
	okPage(w, "launchpads", views, total, limit, skip)
}

func (s *Server) handleGetLaunchpad(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lp, found, err := launchpad.Get(ctx, s.cfg.Store, mux.Vars(r)["id"])
	if err != nil {
		internalErr(w, err)
		return
	}
	if !found {
		notFound(w, "launchpad")
		return
	}
	ok(w, "launchpad", s.launchpadView(ctx, lp, true))
}

// loadParticipant resolves a pad and one account's presale entry; it writes
// the error response and returns found=false when either is missing.
func (s *Server) loadParticipant(w http.ResponseWriter, r *http.Request) (*launchpad.Launchpad, *launchpad.Participant, bool) {
	vars := mux.Vars(r)
	lp, found, err := launchpad.Get(r.Context(), s.cfg.Store, vars["id"])
	if err != nil {
		internalErr(w, err)
		return nil, nil, false
	}
	if !found {
		notFound(w, "launchpad")
		return nil, nil, false
	}
	if lp.Presale == nil {
		notFound(w, "participant")
		return nil, nil, false
	}
	for i := range lp.Presale.Participants {
		if lp.Presale.Participants[i].Account == vars["account"] {
			return lp, &lp.Presale.Participants[i], true
		}
	}
	notFound(w, "participant")
	return nil, nil, false
}

func (s *Server) handleLaunchpadUser(w http.ResponseWriter, r *http.Request) {
	lp, entry, found := s.loadParticipant(w, r)
	if !found {
		return
	}
	ok(w, "participant", s.participantView(r.Context(), lp, *entry))
}

// claimableView reports whether an account can claim right now and for how
// much. Eligible means the pad succeeded, the token is minted and the entry
// is unclaimed.
type claimableView struct {
	Eligible bool       `json:"eligible"`
	Claimed  bool       `json:"claimed"`
	Amount   amountJSON `json:"amount"`
}

func (s *Server) handleLaunchpadClaimable(w http.ResponseWriter, r *http.Request) {
	lp, entry, found := s.loadParticipant(w, r)
	if !found {
		return
	}

	claimable := amount.Zero()
	eligible := lp.Succeeded() && lp.MainTokenID != "" && !entry.Claimed && entry.TokensAllocated.IsPositive()
	if eligible {
		claimable = entry.TokensAllocated
	}
	ok(w, "claimable", claimableView{
		Eligible: eligible,
		Claimed:  entry.Claimed,
		Amount:   renderAt(claimable, lp.Decimals),
	})
}
