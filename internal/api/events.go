package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/echelon-net/echelond/internal/storage/index"
)

// eventView re-emits an indexed journal record with its data as JSON.
type eventView struct {
	ID        string          `json:"id"`
	Category  string          `json:"category"`
	Action    string          `json:"action"`
	Actor     string          `json:"actor"`
	Data      json.RawMessage `json:"data"`
	TxID      string          `json:"transactionId"`
	Timestamp int64           `json:"timestamp"`
}

func eventViewOf(row index.EventRow) eventView {
	return eventView{
		ID:        row.ID,
		Category:  row.Category,
		Action:    row.Action,
		Actor:     row.Actor,
		Data:      rawJSON(row.Data),
		TxID:      row.TxID,
		Timestamp: row.Timestamp,
	}
}

func eventViews(rows []index.EventRow) []eventView {
	out := make([]eventView, 0, len(rows))
	for _, row := range rows {
		out = append(out, eventViewOf(row))
	}
	return out
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	startTime, err := intParam(r, "startTime")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	endTime, err := intParam(r, "endTime")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	ascending := false
	switch q.Get("sortDirection") {
	case "", "desc":
	case "asc":
		ascending = true
	default:
		badRequest(w, "sortDirection must be asc or desc")
		return
	}

	limit, skip := page(r)
	rows, total, err := s.cfg.Index.Events(r.Context(), index.EventFilter{
		Category:  q.Get("category"),
		Action:    q.Get("action"),
		Actor:     q.Get("actor"),
		TxID:      q.Get("transactionId"),
		PoolID:    q.Get("poolId"),
		StartTime: startTime,
		EndTime:   endTime,
		Ascending: ascending,
		Limit:     limit,
		Skip:      skip,
	})
	if err != nil {
		internalErr(w, err)
		return
	}
	okPage(w, "events", eventViews(rows), int(total), limit, skip)
}

func (s *Server) handleEventTypes(w http.ResponseWriter, r *http.Request) {
	actions, err := s.cfg.Index.EventActions(r.Context())
	if err != nil {
		internalErr(w, err)
		return
	}
	ok(w, "types", actions)
}

func (s *Server) handleEventCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.cfg.Index.EventCategories(r.Context())
	if err != nil {
		internalErr(w, err)
		return
	}
	ok(w, "categories", categories)
}

func (s *Server) handleEventStats(w http.ResponseWriter, r *http.Request) {
	stats, total, err := s.cfg.Index.EventStats(r.Context())
	if err != nil {
		internalErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"stats":   stats,
		"total":   total,
	})
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	row, found, err := s.cfg.Index.EventByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		internalErr(w, err)
		return
	}
	if !found {
		notFound(w, "event")
		return
	}
	ok(w, "event", eventViewOf(row))
}
