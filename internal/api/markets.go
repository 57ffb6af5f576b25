package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/echelon-net/echelond/internal/core/market"
	"github.com/echelon-net/echelond/internal/storage/index"
)

// Orders and trades are served from the relational index as their stored
// documents; amounts inside are the persisted padded form.

func orderDocs(rows []index.OrderRow) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(rows))
	for _, row := range rows {
		out = append(out, json.RawMessage(row.Doc))
	}
	return out
}

func tradeDocs(rows []index.TradeRow) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(rows))
	for _, row := range rows {
		out = append(out, json.RawMessage(row.Doc))
	}
	return out
}

func (s *Server) handleListPairs(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	pairs, err := market.AllPairs(r.Context(), s.cfg.Store, status)
	if err != nil {
		internalErr(w, err)
		return
	}
	limit, skip := page(r)
	total := len(pairs)
	okPage(w, "pairs", pageWindow(pairs, limit, skip), total, limit, skip)
}

func (s *Server) handleGetPair(w http.ResponseWriter, r *http.Request) {
	pair, found, err := market.GetPair(r.Context(), s.cfg.Store, mux.Vars(r)["id"])
	if err != nil {
		internalErr(w, err)
		return
	}
	if !found {
		notFound(w, "pair")
		return
	}
	ok(w, "pair", pair)
}

func (s *Server) handleOrdersByPair(w http.ResponseWriter, r *http.Request) {
	limit, skip := page(r)
	rows, total, err := s.cfg.Index.OrdersByPair(r.Context(), mux.Vars(r)["id"], r.URL.Query().Get("status"), limit, skip)
	if err != nil {
		internalErr(w, err)
		return
	}
	okPage(w, "orders", orderDocs(rows), int(total), limit, skip)
}

func (s *Server) handleOrdersByUser(w http.ResponseWriter, r *http.Request) {
	limit, skip := page(r)
	rows, total, err := s.cfg.Index.OrdersByUser(r.Context(), mux.Vars(r)["id"], r.URL.Query().Get("status"), limit, skip)
	if err != nil {
		internalErr(w, err)
		return
	}
	okPage(w, "orders", orderDocs(rows), int(total), limit, skip)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	row, found, err := s.cfg.Index.OrderByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		internalErr(w, err)
		return
	}
	if !found {
		notFound(w, "order")
		return
	}
	ok(w, "order", json.RawMessage(row.Doc))
}

func (s *Server) handleTradesByPair(w http.ResponseWriter, r *http.Request) {
	fromTs, err := intParam(r, "fromTimestamp")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	toTs, err := intParam(r, "toTimestamp")
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	limit, skip := page(r)
	rows, total, err := s.cfg.Index.TradesByPair(r.Context(), mux.Vars(r)["id"], fromTs, toTs, limit, skip)
	if err != nil {
		internalErr(w, err)
		return
	}
	okPage(w, "trades", tradeDocs(rows), int(total), limit, skip)
}

func (s *Server) handleTradesByOrder(w http.ResponseWriter, r *http.Request) {
	rows, err := s.cfg.Index.TradesByOrder(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		internalErr(w, err)
		return
	}
	ok(w, "trades", tradeDocs(rows))
}

func (s *Server) handleGetTrade(w http.ResponseWriter, r *http.Request) {
	row, found, err := s.cfg.Index.TradeByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		internalErr(w, err)
		return
	}
	if !found {
		notFound(w, "trade")
		return
	}
	ok(w, "trade", json.RawMessage(row.Doc))
}
