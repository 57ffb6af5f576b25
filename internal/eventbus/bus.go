// Package eventbus fans journal events out to in-process subscribers, the
// WebSocket stream in particular. Delivery is best-effort: slow subscribers
// have events dropped rather than stalling the execution loop.
package eventbus

import (
	"sync"

	"github.com/echelon-net/echelond/internal/core/event"
)

// AllCategories subscribes a channel to every journal category.
const AllCategories = "*"

// Bus routes journal events to subscribers by category. Safe for concurrent
// use; the execution loop publishes, API connections subscribe.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]chan<- event.Event
	closed      bool
}

func New() *Bus {
	return &Bus{subscribers: make(map[string][]chan<- event.Event)}
}

// Subscribe registers ch for a category (or AllCategories). The caller owns
// the channel and its buffer size; full channels drop.
func (b *Bus) Subscribe(category string, ch chan<- event.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[category] = append(b.subscribers[category], ch)
}

// Unsubscribe removes ch from a category's subscriber list.
func (b *Bus) Unsubscribe(category string, ch chan<- event.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subscribers[category]
	for i, c := range subs {
		if c == ch {
			b.subscribers[category] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}

// Publish delivers evt to the category's subscribers and to wildcard
// subscribers. No-op after Close.
func (b *Bus) Publish(evt event.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subscribers[evt.Category] {
		select {
		case ch <- evt:
		default:
			// drop if subscriber is slow
		}
	}
	for _, ch := range b.subscribers[AllCategories] {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Close stops delivery. Subscriber channels stay open; closing them is the
// subscriber's job.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}
