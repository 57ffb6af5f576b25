// Package book keeps the in-memory orderbooks: price-indexed levels with
// FIFO queues per level. Books are rebuilt from open orders on boot and are
// never persisted themselves.
package book

import (
	"sort"
	"sync"

	"github.com/echelon-net/echelond/internal/core/amount"
)

// Side of the book an order rests on.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Opposite returns the side a taker of side s matches against.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Valid reports whether s is BUY or SELL.
func (s Side) Valid() bool { return s == Buy || s == Sell }

// Entry is one resting order. Entries handed out by Best and Walk are
// copies; mutate the book through Reduce and Remove only.
type Entry struct {
	OrderID   string
	Account   string
	Price     amount.Amount
	Remaining amount.Amount
	ExpiresAt int64 // unix seconds, 0 = never

	seq uint64
}

// Expired reports whether the entry's expiry has passed at now.
func (e Entry) Expired(now int64) bool {
	return e.ExpiresAt > 0 && e.ExpiresAt <= now
}

// level is a FIFO queue of entries at one price.
type level struct {
	price   amount.Amount
	entries []*Entry
}

type position struct {
	side  Side
	price amount.Amount
}

// Book is the two-sided orderbook of one trading pair. Asks are kept
// ascending and bids descending, so index 0 is always the best level.
type Book struct {
	mu     sync.RWMutex
	pairID string
	bids   []*level
	asks   []*level
	index  map[string]position
	seq    uint64
}

// New creates an empty book for a pair.
func New(pairID string) *Book {
	return &Book{pairID: pairID, index: make(map[string]position)}
}

// PairID returns the pair this book serves.
func (b *Book) PairID() string { return b.pairID }

// Add rests an entry on the given side behind all earlier entries at the
// same price. Entries with a duplicate order id are ignored.
func (b *Book) Add(side Side, e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, dup := b.index[e.OrderID]; dup {
		return
	}
	b.seq++
	e.seq = b.seq
	levels := b.sideLevels(side)
	i, exact := b.search(side, e.Price)
	if exact {
		(*levels)[i].entries = append((*levels)[i].entries, &e)
	} else {
		lv := &level{price: e.Price, entries: []*Entry{&e}}
		*levels = append(*levels, nil)
		copy((*levels)[i+1:], (*levels)[i:])
		(*levels)[i] = lv
	}
	b.index[e.OrderID] = position{side: side, price: e.Price}
}

// Best returns the first entry of the best level on side, if any.
func (b *Book) Best(side Side) (Entry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	levels := *b.sideLevels(side)
	if len(levels) == 0 {
		return Entry{}, false
	}
	return *levels[0].entries[0], true
}

// Remove detaches an order from the book and returns its final entry state.
func (b *Book) Remove(orderID string) (Entry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	pos, ok := b.index[orderID]
	if !ok {
		return Entry{}, false
	}
	delete(b.index, orderID)
	levels := b.sideLevels(pos.side)
	i, exact := b.search(pos.side, pos.price)
	if !exact {
		return Entry{}, false
	}
	lv := (*levels)[i]
	for j, e := range lv.entries {
		if e.OrderID != orderID {
			continue
		}
		removed := *e
		lv.entries = append(lv.entries[:j], lv.entries[j+1:]...)
		if len(lv.entries) == 0 {
			*levels = append((*levels)[:i], (*levels)[i+1:]...)
		}
		return removed, true
	}
	return Entry{}, false
}

// Reduce sets the remaining quantity of a resting order after a partial
// fill. Reducing to zero removes the order.
func (b *Book) Reduce(orderID string, remaining amount.Amount) bool {
	if remaining.Sign() <= 0 {
		_, ok := b.Remove(orderID)
		return ok
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	pos, ok := b.index[orderID]
	if !ok {
		return false
	}
	levels := *b.sideLevels(pos.side)
	i, exact := b.search(pos.side, pos.price)
	if !exact {
		return false
	}
	for _, e := range levels[i].entries {
		if e.OrderID == orderID {
			e.Remaining = remaining
			return true
		}
	}
	return false
}

// Contains reports whether the order currently rests on the book.
func (b *Book) Contains(orderID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.index[orderID]
	return ok
}

// Walk visits entries on side in price-time priority (best level first,
// FIFO within a level) until fn returns false. The book must not be
// mutated from inside fn.
func (b *Book) Walk(side Side, fn func(Entry) bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, lv := range *b.sideLevels(side) {
		for _, e := range lv.entries {
			if !fn(*e) {
				return
			}
		}
	}
}

// Level is one aggregated price point of the depth view.
type Level struct {
	Price    amount.Amount
	Quantity amount.Amount
	Orders   int
}

// Depth aggregates up to max levels per side, best first. max <= 0 means
// all levels.
func (b *Book) Depth(side Side, max int) []Level {
	b.mu.RLock()
	defer b.mu.RUnlock()
	levels := *b.sideLevels(side)
	if max <= 0 || max > len(levels) {
		max = len(levels)
	}
	out := make([]Level, 0, max)
	for _, lv := range levels[:max] {
		total := amount.Zero()
		for _, e := range lv.entries {
			total = total.Add(e.Remaining)
		}
		out = append(out, Level{Price: lv.price, Quantity: total, Orders: len(lv.entries)})
	}
	return out
}

// Len counts resting orders on one side.
func (b *Book) Len(side Side) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, lv := range *b.sideLevels(side) {
		n += len(lv.entries)
	}
	return n
}

func (b *Book) sideLevels(side Side) *[]*level {
	if side == Buy {
		return &b.bids
	}
	return &b.asks
}

// search finds the index of price on side, or the insertion point that
// keeps asks ascending and bids descending.
func (b *Book) search(side Side, price amount.Amount) (int, bool) {
	levels := *b.sideLevels(side)
	var i int
	if side == Buy {
		i = sort.Search(len(levels), func(j int) bool { return levels[j].price.Cmp(price) <= 0 })
	} else {
		i = sort.Search(len(levels), func(j int) bool { return levels[j].price.Cmp(price) >= 0 })
	}
	if i < len(levels) && levels[i].price.Equal(price) {
		return i, true
	}
	return i, false
}
