package api

import (
	"context"
	"net/http"
	"sort"

	"github.com/gorilla/mux"

	"github.com/echelon-net/echelond/internal/core/account"
	"github.com/echelon-net/echelond/internal/core/witness"
)

// witnessView is the ranking row: registered witnesses ordered by
// accumulated vote weight.
type witnessView struct {
	Name            string     `json:"name"`
	PublicKey       string     `json:"publicKey"`
	URL             string     `json:"url,omitempty"`
	Enabled         bool       `json:"enabled"`
	TotalVoteWeight amountJSON `json:"totalVoteWeight"`
}

func (s *Server) witnessView(ctx context.Context, acct *account.Account) witnessView {
	return witnessView{
		Name:            acct.Name,
		PublicKey:       acct.WitnessPublicKey,
		URL:             acct.WitnessURL,
		Enabled:         acct.WitnessEnabled,
		TotalVoteWeight: s.renderAmount(ctx, s.cfg.Ledger.NativeSymbol(), acct.TotalVoteWeight),
	}
}

// registeredWitnesses returns witness accounts ranked by vote weight,
// heaviest first; ties break on name.
func (s *Server) registeredWitnesses(ctx context.Context) ([]*account.Account, error) {
	accts, err := s.cfg.Ledger.All(ctx)
	if err != nil {
		return nil, err
	}
	witnesses := accts[:0]
	for _, a := range accts {
		if a.WitnessPublicKey != "" {
			witnesses = append(witnesses, a)
		}
	}
	sort.SliceStable(witnesses, func(i, j int) bool {
		if c := witnesses[i].TotalVoteWeight.Cmp(witnesses[j].TotalVoteWeight); c != 0 {
			return c > 0
		}
		return witnesses[i].Name < witnesses[j].Name
	})
	return witnesses, nil
}

func (s *Server) handleListWitnesses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	witnesses, err := s.registeredWitnesses(ctx)
	if err != nil {
		internalErr(w, err)
		return
	}
	limit, skip := page(r)
	total := len(witnesses)
	views := make([]witnessView, 0, limit)
	for _, acct := range pageWindow(witnesses, limit, skip) {
		views = append(views, s.witnessView(ctx, acct))
	}
	okPage(w, "witnesses", views, total, limit, skip)
}

// witnessDetails adds the voter roll to the ranking row.
type witnessDetails struct {
	witnessView
	Voters []witness.VoteRecord `json:"voters"`
}

func (s *Server) handleWitnessDetails(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := mux.Vars(r)["name"]

	acct, found, err := s.cfg.Ledger.Get(ctx, name)
	if err != nil {
		internalErr(w, err)
		return
	}
	if !found || acct.WitnessPublicKey == "" {
		notFound(w, "witness")
		return
	}

	voters, err := witness.VotersFor(ctx, s.cfg.Store, name)
	if err != nil {
		internalErr(w, err)
		return
	}
	if voters == nil {
		voters = []witness.VoteRecord{}
	}
	ok(w, "witness", witnessDetails{witnessView: s.witnessView(ctx, acct), Voters: voters})
}

func (s *Server) handleVotesCastBy(w http.ResponseWriter, r *http.Request) {
	acct, found, err := s.cfg.Ledger.Get(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		internalErr(w, err)
		return
	}
	if !found {
		notFound(w, "account")
		return
	}
	votes := acct.VotedWitnesses
	if votes == nil {
		votes = []string{}
	}
	ok(w, "votes", votes)
}

func (s *Server) handleVotersFor(w http.ResponseWriter, r *http.Request) {
	voters, err := witness.VotersFor(r.Context(), s.cfg.Store, mux.Vars(r)["name"])
	if err != nil {
		internalErr(w, err)
		return
	}
	if voters == nil {
		voters = []witness.VoteRecord{}
	}
	ok(w, "voters", voters)
}
