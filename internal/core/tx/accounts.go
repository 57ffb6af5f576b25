package tx

import (
	"encoding/json"
	"sort"

	"github.com/echelon-net/echelond/internal/core/account"
)

// participantKeys are the payload fields whose string values name accounts
// a transaction may touch. The dispatcher upserts them before validation so
// handlers can credit accounts that never transacted themselves.
var participantKeys = map[string]bool{
	"to":          true,
	"recipient":   true,
	"buyer":       true,
	"seller":      true,
	"provider":    true,
	"owner":       true,
	"creator":     true,
	"issuer":      true,
	"user":        true,
	"bidder":      true,
	"trader":      true,
	"witness":     true,
	"from":        true,
	"participant": true,
}

// ExtractAccounts collects the sender plus every participant-keyed string
// in data, at any nesting depth, that satisfies the account name grammar.
// The sender comes first; the rest are sorted for determinism.
func ExtractAccounts(sender string, data json.RawMessage) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(name string) {
		if !seen[name] && account.ValidName(name) {
			seen[name] = true
			out = append(out, name)
		}
	}
	add(sender)

	var decoded any
	if len(data) > 0 && json.Unmarshal(data, &decoded) == nil {
		walkAccounts(decoded, add)
	}
	if len(out) > 1 {
		sort.Strings(out[1:])
	}
	return out
}

func walkAccounts(v any, add func(string)) {
	switch x := v.(type) {
	case map[string]any:
		for k, val := range x {
			if s, ok := val.(string); ok && participantKeys[k] {
				add(s)
			}
			walkAccounts(val, add)
		}
	case []any:
		for _, val := range x {
			walkAccounts(val, add)
		}
	}
}
