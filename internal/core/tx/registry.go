package tx

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Factory constructs an empty operation ready for payload decoding.
type Factory func() Operation

var registry = struct {
	sync.RWMutex
	factories map[Type]Factory
}{factories: make(map[Type]Factory)}

// Register binds a factory to a transaction type. Handler packages call
// this from init(); a duplicate registration is a programming error and
// panics.
func Register(t Type, f Factory) {
	registry.Lock()
	defer registry.Unlock()
	if _, dup := registry.factories[t]; dup {
		panic(fmt.Sprintf("tx: duplicate registration for %s", t))
	}
	registry.factories[t] = f
}

// NewFromType constructs an empty operation for the given type.
func NewFromType(t Type) (Operation, error) {
	registry.RLock()
	f, ok := registry.factories[t]
	registry.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, uint16(t))
	}
	return f(), nil
}

// Decode constructs an operation for the type and unmarshals the payload
// into it.
func Decode(t Type, payload json.RawMessage) (Operation, error) {
	op, err := NewFromType(t)
	if err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, op); err != nil {
			return nil, fmt.Errorf("malformed payload: %w", err)
		}
	}
	return op, nil
}

// SupportedTypes lists all registered transaction types in code order.
func SupportedTypes() []Type {
	registry.RLock()
	defer registry.RUnlock()
	out := make([]Type, 0, len(registry.factories))
	for t := range registry.factories {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
