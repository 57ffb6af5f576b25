package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/echelon-net/echelond/internal/core/amount"
	"github.com/echelon-net/echelond/internal/core/pool"
)

// poolView is the wire form of a liquidity pool.
type poolView struct {
	ID            string     `json:"id"`
	TokenA        string     `json:"tokenA"`
	TokenB        string     `json:"tokenB"`
	ReserveA      amountJSON `json:"reserveA"`
	ReserveB      amountJSON `json:"reserveB"`
	TotalLpTokens amountJSON `json:"totalLpTokens"`
	BurnedLp      amountJSON `json:"burnedLp"`
	FeeBps        int        `json:"feeBps"`
	LpIdentifier  string     `json:"lpIdentifier"`
	CreatedBy     string     `json:"createdBy"`
	CreatedAt     int64      `json:"createdAt"`
}

func (s *Server) poolView(ctx context.Context, p *pool.Pool) poolView {
	return poolView{
		ID:            p.ID,
		TokenA:        p.TokenA,
		TokenB:        p.TokenB,
		ReserveA:      s.renderAmount(ctx, p.TokenA, p.ReserveA),
		ReserveB:      s.renderAmount(ctx, p.TokenB, p.ReserveB),
		TotalLpTokens: s.renderAmount(ctx, p.LpIdentifier, p.TotalLpTokens),
		BurnedLp:      s.renderAmount(ctx, p.LpIdentifier, p.BurnedLp),
		FeeBps:        p.FeeBps,
		LpIdentifier:  p.LpIdentifier,
		CreatedBy:     p.CreatedBy,
		CreatedAt:     p.CreatedAt,
	}
}

func (s *Server) poolViews(ctx context.Context, pools []*pool.Pool) []poolView {
	out := make([]poolView, 0, len(pools))
	for _, p := range pools {
		out = append(out, s.poolView(ctx, p))
	}
	return out
}

// positionView is the wire form of a provider's LP position. The id is the
// provider:poolId composite the store keys positions by.
type positionView struct {
	ID        string     `json:"id"`
	Provider  string     `json:"provider"`
	PoolID    string     `json:"poolId"`
	LpTokens  amountJSON `json:"lpTokens"`
	CreatedAt int64      `json:"createdAt"`
	UpdatedAt int64      `json:"updatedAt"`
}

func (s *Server) positionView(ctx context.Context, pos *pool.Position) positionView {
	return positionView{
		ID:        pos.Provider + ":" + pos.PoolID,
		Provider:  pos.Provider,
		PoolID:    pos.PoolID,
		LpTokens:  s.renderAmount(ctx, pool.LpIdentifier(pos.PoolID), pos.LpTokens),
		CreatedAt: pos.CreatedAt,
		UpdatedAt: pos.UpdatedAt,
	}
}

func (s *Server) positionViews(ctx context.Context, positions []*pool.Position) []positionView {
	out := make([]positionView, 0, len(positions))
	for _, pos := range positions {
		out = append(out, s.positionView(ctx, pos))
	}
	return out
}

func (s *Server) handleListPools(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pools, err := pool.All(ctx, s.cfg.Store)
	if err != nil {
		internalErr(w, err)
		return
	}
	limit, skip := page(r)
	total := len(pools)
	okPage(w, "pools", s.poolViews(ctx, pageWindow(pools, limit, skip)), total, limit, skip)
}

func (s *Server) handleGetPool(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, found, err := pool.Get(ctx, s.cfg.Store, mux.Vars(r)["id"])
	if err != nil {
		internalErr(w, err)
		return
	}
	if !found {
		notFound(w, "pool")
		return
	}
	ok(w, "pool", s.poolView(ctx, p))
}

func (s *Server) handlePoolsByToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	symbol := mux.Vars(r)["symbol"]
	pools, err := pool.All(ctx, s.cfg.Store)
	if err != nil {
		internalErr(w, err)
		return
	}
	matched := pools[:0]
	for _, p := range pools {
		if p.TokenA == symbol || p.TokenB == symbol {
			matched = append(matched, p)
		}
	}
	ok(w, "pools", s.poolViews(ctx, matched))
}

func (s *Server) handlePositionsByUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	positions, err := pool.PositionsByProvider(ctx, s.cfg.Store, mux.Vars(r)["account"])
	if err != nil {
		internalErr(w, err)
		return
	}
	ok(w, "positions", s.positionViews(ctx, positions))
}

func (s *Server) handlePositionsByPool(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	positions, err := pool.PositionsByPool(ctx, s.cfg.Store, mux.Vars(r)["id"])
	if err != nil {
		internalErr(w, err)
		return
	}
	ok(w, "positions", s.positionViews(ctx, positions))
}

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	provider, poolID, okSplit := strings.Cut(mux.Vars(r)["id"], ":")
	if !okSplit {
		badRequest(w, "position id must be provider:poolId")
		return
	}
	s.writePosition(w, r, provider, poolID)
}

func (s *Server) handlePositionByUserPool(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	s.writePosition(w, r, vars["account"], vars["pool"])
}

func (s *Server) writePosition(w http.ResponseWriter, r *http.Request, provider, poolID string) {
	ctx := r.Context()
	pos, found, err := pool.GetPosition(ctx, s.cfg.Store, provider, poolID)
	if err != nil {
		internalErr(w, err)
		return
	}
	if !found {
		notFound(w, "position")
		return
	}
	ok(w, "position", s.positionView(ctx, pos))
}

// hopView and routeView are the wire form of a simulated swap path.
type hopView struct {
	PoolID    string     `json:"poolId"`
	TokenIn   string     `json:"tokenIn"`
	TokenOut  string     `json:"tokenOut"`
	AmountIn  amountJSON `json:"amountIn"`
	AmountOut amountJSON `json:"amountOut"`
}

type routeView struct {
	TokenIn   string     `json:"tokenIn"`
	TokenOut  string     `json:"tokenOut"`
	AmountIn  amountJSON `json:"amountIn"`
	AmountOut amountJSON `json:"amountOut"`
	Hops      []hopView  `json:"hops"`
}

func (s *Server) handleRouteSwap(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	tokenIn := q.Get("fromTokenSymbol")
	tokenOut := q.Get("toTokenSymbol")
	if tokenIn == "" || tokenOut == "" {
		badRequest(w, "fromTokenSymbol and toTokenSymbol are required")
		return
	}
	amountIn, err := amount.Parse(q.Get("amountIn"))
	if err != nil || !amountIn.IsPositive() {
		badRequest(w, "amountIn must be a positive raw integer amount")
		return
	}

	route, err := pool.BestRoute(ctx, s.cfg.Store, tokenIn, tokenOut, amountIn)
	if err != nil {
		if errors.Is(err, pool.ErrNoRoute) {
			notFound(w, "route")
			return
		}
		internalErr(w, err)
		return
	}

	view := routeView{
		TokenIn:   tokenIn,
		TokenOut:  tokenOut,
		AmountIn:  s.renderAmount(ctx, tokenIn, amountIn),
		AmountOut: s.renderAmount(ctx, tokenOut, route.AmountOut),
		Hops:      make([]hopView, 0, len(route.Hops)),
	}
	for _, hop := range route.Hops {
		view.Hops = append(view.Hops, hopView{
			PoolID:    hop.PoolID,
			TokenIn:   hop.TokenIn,
			TokenOut:  hop.TokenOut,
			AmountIn:  s.renderAmount(ctx, hop.TokenIn, hop.AmountIn),
			AmountOut: s.renderAmount(ctx, hop.TokenOut, hop.AmountOut),
		})
	}
	ok(w, "route", view)
}
