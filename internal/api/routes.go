package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// registerRoutes binds the read surface. Fixed segments are registered
// before their {param} siblings; mux matches in registration order.
func (s *Server) registerRoutes(r *mux.Router) {
	get := func(path string, h http.HandlerFunc) {
		r.HandleFunc(path, h).Methods(http.MethodGet, http.MethodOptions)
	}

	get("/status", s.handleStatus)
	get("/peers", s.handlePeers)

	get("/accounts", s.handleListAccounts)
	get("/accounts/count", s.handleAccountCount)
	get("/accounts/{name}", s.handleGetAccount)
	get("/accounts/{name}/transactions", s.handleAccountTransactions)
	get("/accounts/{name}/tokens", s.handleAccountTokens)

	get("/markets/pairs", s.handleListPairs)
	get("/markets/pairs/{id}", s.handleGetPair)
	get("/markets/orders/pair/{id}", s.handleOrdersByPair)
	get("/markets/orders/user/{id}", s.handleOrdersByUser)
	get("/markets/orders/{id}", s.handleGetOrder)
	get("/markets/trades/pair/{id}", s.handleTradesByPair)
	get("/markets/trades/order/{id}", s.handleTradesByOrder)
	get("/markets/trades/{id}", s.handleGetTrade)

	get("/pools", s.handleListPools)
	get("/pools/route-swap", s.handleRouteSwap)
	get("/pools/token/{symbol}", s.handlePoolsByToken)
	get("/pools/positions/user/{account}/pool/{pool}", s.handlePositionByUserPool)
	get("/pools/positions/user/{account}", s.handlePositionsByUser)
	get("/pools/positions/pool/{id}", s.handlePositionsByPool)
	get("/pools/positions/{id}", s.handleGetPosition)
	get("/pools/{id}", s.handleGetPool)

	get("/launchpad", s.handleListLaunchpads)
	get("/launchpad/{id}/user/{account}/claimable", s.handleLaunchpadClaimable)
	get("/launchpad/{id}/user/{account}", s.handleLaunchpadUser)
	get("/launchpad/{id}", s.handleGetLaunchpad)

	get("/witnesses", s.handleListWitnesses)
	get("/witnesses/votescastby/{name}", s.handleVotesCastBy)
	get("/witnesses/votersfor/{name}", s.handleVotersFor)
	get("/witnesses/{name}/details", s.handleWitnessDetails)

	get("/events", s.handleListEvents)
	get("/events/types", s.handleEventTypes)
	get("/events/categories", s.handleEventCategories)
	get("/events/stats", s.handleEventStats)
	get("/events/{id}", s.handleGetEvent)

	if s.hub != nil {
		r.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)
	}
}
