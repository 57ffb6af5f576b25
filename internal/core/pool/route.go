package pool

import (
	"context"

	"github.com/echelon-net/echelond/internal/core/amount"
	"github.com/echelon-net/echelond/internal/state"
)

// Hop is one pool traversal of a route with its simulated amounts.
type Hop struct {
	PoolID    string        `json:"poolId"`
	TokenIn   string        `json:"tokenIn"`
	TokenOut  string        `json:"tokenOut"`
	AmountIn  amount.Amount `json:"amountIn"`
	AmountOut amount.Amount `json:"amountOut"`
}

// Route is a simulated swap path.
type Route struct {
	Hops      []Hop
	AmountOut amount.Amount
}

// BestRoute searches all pool paths from tokenIn to tokenOut up to MaxHops
// deep, simulates each with the live reserves, and returns the route with
// the largest final output; ties go to the shorter path. Paths never revisit
// a token.
func BestRoute(ctx context.Context, store *state.Store, tokenIn, tokenOut string, amountIn amount.Amount) (*Route, error) {
	pools, err := All(ctx, store)
	if err != nil {
		return nil, err
	}
	// Adjacency by token identifier.
	byToken := make(map[string][]*Pool)
	for _, p := range pools {
		byToken[p.TokenA] = append(byToken[p.TokenA], p)
		byToken[p.TokenB] = append(byToken[p.TokenB], p)
	}

	var best *Route
	visited := map[string]bool{tokenIn: true}

	var walk func(token string, amt amount.Amount, hops []Hop)
	walk = func(token string, amt amount.Amount, hops []Hop) {
		if len(hops) >= MaxHops {
			return
		}
		for _, p := range byToken[token] {
			rIn, rOut, nextToken, ok := p.Reserves(token)
			if !ok || visited[nextToken] {
				continue
			}
			out, err := SwapOutput(rIn, rOut, amt)
			if err != nil {
				continue
			}
			hop := Hop{PoolID: p.ID, TokenIn: token, TokenOut: nextToken, AmountIn: amt, AmountOut: out}
			path := append(append([]Hop(nil), hops...), hop)
			if nextToken == tokenOut {
				if best == nil || out.Cmp(best.AmountOut) > 0 ||
					(out.Equal(best.AmountOut) && len(path) < len(best.Hops)) {
					best = &Route{Hops: path, AmountOut: out}
				}
				continue
			}
			visited[nextToken] = true
			walk(nextToken, out, path)
			visited[nextToken] = false
		}
	}
	walk(tokenIn, amountIn, nil)

	if best == nil {
		return nil, ErrNoRoute
	}
	return best, nil
}
