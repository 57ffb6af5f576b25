package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/echelon-net/echelond/internal/core/account"
	"github.com/echelon-net/echelond/internal/core/token"
	"github.com/echelon-net/echelond/internal/storage/index"
)

// accountView is the wire form of an account document.
type accountView struct {
	Name             string                `json:"name"`
	Balances         map[string]amountJSON `json:"balances"`
	Holds            map[string]amountJSON `json:"holds,omitempty"`
	VotedWitnesses   []string              `json:"votedWitnesses,omitempty"`
	WitnessPublicKey string                `json:"witnessPublicKey,omitempty"`
	WitnessURL       string                `json:"witnessUrl,omitempty"`
	WitnessEnabled   bool                  `json:"witnessEnabled,omitempty"`
	TotalVoteWeight  amountJSON            `json:"totalVoteWeight"`
	CreatedAt        int64                 `json:"createdAt,omitempty"`
}

func (s *Server) accountView(ctx context.Context, acct *account.Account) accountView {
	v := accountView{
		Name:             acct.Name,
		Balances:         s.renderBalances(ctx, acct.Balances),
		VotedWitnesses:   acct.VotedWitnesses,
		WitnessPublicKey: acct.WitnessPublicKey,
		WitnessURL:       acct.WitnessURL,
		WitnessEnabled:   acct.WitnessEnabled,
		TotalVoteWeight:  s.renderAmount(ctx, s.cfg.Ledger.NativeSymbol(), acct.TotalVoteWeight),
		CreatedAt:        acct.CreatedAt,
	}
	if len(acct.Holds) > 0 {
		v.Holds = s.renderBalances(ctx, acct.Holds)
	}
	return v
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	limit, skip := page(r)

	isWitness := false
	if v := q.Get("isWitness"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			badRequest(w, "isWitness must be a boolean")
			return
		}
		isWitness = b
	}

	sortBy := q.Get("sortBy")
	switch sortBy {
	case "", "name", "createdAt", "totalVoteWeight":
	default:
		badRequest(w, "sortBy must be one of name, createdAt, totalVoteWeight")
		return
	}
	desc := false
	switch q.Get("sortDirection") {
	case "", "asc":
	case "desc":
		desc = true
	default:
		badRequest(w, "sortDirection must be asc or desc")
		return
	}

	accts, err := s.cfg.Ledger.All(ctx)
	if err != nil {
		internalErr(w, err)
		return
	}

	if sym := q.Get("hasToken"); sym != "" {
		kept := accts[:0]
		for _, a := range accts {
			if a.Balance(sym).IsPositive() || a.Held(sym).IsPositive() {
				kept = append(kept, a)
			}
		}
		accts = kept
	}
	if isWitness {
		kept := accts[:0]
		for _, a := range accts {
			if a.WitnessPublicKey != "" {
				kept = append(kept, a)
			}
		}
		accts = kept
	}

	// The scan already yields name order; re-sort only when asked.
	switch sortBy {
	case "createdAt":
		sort.SliceStable(accts, func(i, j int) bool { return accts[i].CreatedAt < accts[j].CreatedAt })
	case "totalVoteWeight":
		sort.SliceStable(accts, func(i, j int) bool {
			return accts[i].TotalVoteWeight.Cmp(accts[j].TotalVoteWeight) < 0
		})
	}
	if desc {
		for i, j := 0, len(accts)-1; i < j; i, j = i+1, j-1 {
			accts[i], accts[j] = accts[j], accts[i]
		}
	}

	total := len(accts)
	views := make([]accountView, 0, limit)
	for _, a := range pageWindow(accts, limit, skip) {
		views = append(views, s.accountView(ctx, a))
	}
	okPage(w, "accounts", views, total, limit, skip)
}

func (s *Server) handleAccountCount(w http.ResponseWriter, r *http.Request) {
	n, err := s.cfg.Ledger.Count(r.Context())
	if err != nil {
		internalErr(w, err)
		return
	}
	ok(w, "count", n)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	acct, found, err := s.cfg.Ledger.Get(ctx, mux.Vars(r)["name"])
	if err != nil {
		internalErr(w, err)
		return
	}
	if !found {
		notFound(w, "account")
		return
	}
	ok(w, "account", s.accountView(ctx, acct))
}

func (s *Server) handleAccountTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, skip := page(r)

	rows, total, err := s.cfg.Index.AccountTxs(r.Context(), mux.Vars(r)["name"], index.TxFilter{
		TypeName:  q.Get("type"),
		DataKey:   q.Get("dataKey"),
		DataValue: q.Get("dataValue"),
		Limit:     limit,
		Skip:      skip,
	})
	if err != nil {
		internalErr(w, err)
		return
	}
	okPage(w, "transactions", txViews(rows), int(total), limit, skip)
}

// txView re-emits an indexed transaction with its payload as JSON rather
// than an escaped string.
type txView struct {
	ID        string          `json:"id"`
	Height    uint64          `json:"height"`
	Seq       int             `json:"seq"`
	Type      uint16          `json:"type"`
	TypeName  string          `json:"typeName"`
	Sender    string          `json:"sender"`
	OK        bool            `json:"ok"`
	Error     string          `json:"error,omitempty"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

func txViews(rows []index.TxRow) []txView {
	out := make([]txView, 0, len(rows))
	for _, row := range rows {
		out = append(out, txView{
			ID:        row.ID,
			Height:    row.Height,
			Seq:       row.Seq,
			Type:      row.Type,
			TypeName:  row.TypeName,
			Sender:    row.Sender,
			OK:        row.OK,
			Error:     row.Error,
			Data:      rawJSON(row.Data),
			Timestamp: row.Timestamp,
		})
	}
	return out
}

// tokenHolding is one row of an account's token list.
type tokenHolding struct {
	Identifier string     `json:"identifier"`
	Symbol     string     `json:"symbol"`
	Name       string     `json:"name,omitempty"`
	Precision  uint8      `json:"precision"`
	Balance    amountJSON `json:"balance"`
	Held       amountJSON `json:"held"`
}

func (s *Server) handleAccountTokens(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	acct, found, err := s.cfg.Ledger.Get(ctx, mux.Vars(r)["name"])
	if err != nil {
		internalErr(w, err)
		return
	}
	if !found {
		notFound(w, "account")
		return
	}

	seen := make(map[string]bool, len(acct.Balances)+len(acct.Holds))
	for identifier := range acct.Balances {
		seen[identifier] = true
	}
	for identifier := range acct.Holds {
		seen[identifier] = true
	}
	identifiers := make([]string, 0, len(seen))
	for identifier := range seen {
		identifiers = append(identifiers, identifier)
	}
	sort.Strings(identifiers)

	holdings := make([]tokenHolding, 0, len(identifiers))
	for _, identifier := range identifiers {
		h := tokenHolding{
			Identifier: identifier,
			Symbol:     identifier,
			Balance:    s.renderAmount(ctx, identifier, acct.Balance(identifier)),
			Held:       s.renderAmount(ctx, identifier, acct.Held(identifier)),
		}
		if tok, tokFound, err := token.Get(ctx, s.cfg.Store, identifier); err == nil && tokFound {
			h.Symbol = tok.Symbol
			h.Name = tok.Name
			h.Precision = tok.Precision
		} else if token.IsLP(identifier) {
			h.Precision = 18
		}
		holdings = append(holdings, h)
	}
	ok(w, "tokens", holdings)
}
