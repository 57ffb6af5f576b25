package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/echelon-net/echelond/internal/core/amount"
	"github.com/echelon-net/echelond/internal/core/token"
)

const (
	defaultPageSize = 50
	maxPageSize     = 1000
)

// writeJSON writes an envelope. Encoding failures are only logged; the
// status line is already on the wire.
func writeJSON(w http.ResponseWriter, status int, payload map[string]any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[api] encode response: %v", err)
	}
}

// ok writes {"success":true, <key>: v}.
func ok(w http.ResponseWriter, key string, v any) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, key: v})
}

// okPage writes a list envelope with the paging echo.
func okPage(w http.ResponseWriter, key string, items any, total, limit, skip int) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		key:       items,
		"total":   total,
		"limit":   limit,
		"skip":    skip,
	})
}

func fail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

func notFound(w http.ResponseWriter, entity string) {
	fail(w, http.StatusNotFound, entity+" not found")
}

func badRequest(w http.ResponseWriter, msg string) {
	fail(w, http.StatusBadRequest, msg)
}

// internalErr hides the cause from the client but keeps it in the log.
func internalErr(w http.ResponseWriter, err error) {
	log.Printf("[api] %v", err)
	fail(w, http.StatusInternalServerError, "internal error")
}

// page reads the limit and offset query parameters; skip is accepted as an
// alias for offset.
func page(r *http.Request) (limit, skip int) {
	limit = defaultPageSize
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= maxPageSize {
			limit = n
		}
	}
	off := r.URL.Query().Get("offset")
	if off == "" {
		off = r.URL.Query().Get("skip")
	}
	if n, err := strconv.Atoi(off); err == nil && n >= 0 {
		skip = n
	}
	return limit, skip
}

// intParam parses an optional integer query parameter, zero when absent.
func intParam(r *http.Request, name string) (int64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return n, nil
}

// pageWindow clips a slice to the limit/skip window.
func pageWindow[T any](items []T, limit, skip int) []T {
	if skip >= len(items) {
		return []T{} // marshals as [], not null
	}
	items = items[skip:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

// rawJSON passes a stored JSON document through without re-encoding.
func rawJSON(s string) json.RawMessage {
	if s == "" {
		return json.RawMessage("{}")
	}
	return json.RawMessage(s)
}

// amountJSON is the wire form of a token quantity.
type amountJSON struct {
	Amount    string `json:"amount"`
	RawAmount string `json:"rawAmount"`
}

// renderAt pairs the human-decimal and padded renditions of a quantity at
// a known decimal count.
func renderAt(amt amount.Amount, decimals uint8) amountJSON {
	raw, err := amt.Padded()
	if err != nil {
		raw = amt.String()
	}
	return amountJSON{Amount: amt.Human(decimals), RawAmount: raw}
}

// renderAmount resolves the identifier's decimals from the token registry.
// Unknown identifiers render at zero decimals.
func (s *Server) renderAmount(ctx context.Context, identifier string, amt amount.Amount) amountJSON {
	decimals, _, err := token.Decimals(ctx, s.cfg.Store, identifier)
	if err != nil {
		decimals = 0
	}
	return renderAt(amt, decimals)
}

// renderBalances maps a balance set into wire form.
func (s *Server) renderBalances(ctx context.Context, balances map[string]amount.Amount) map[string]amountJSON {
	if len(balances) == 0 {
		return map[string]amountJSON{}
	}
	out := make(map[string]amountJSON, len(balances))
	for identifier, amt := range balances {
		out[identifier] = s.renderAmount(ctx, identifier, amt)
	}
	return out
}
