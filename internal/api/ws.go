package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/echelon-net/echelond/internal/core/event"
	"github.com/echelon-net/echelond/internal/eventbus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The stream is read-only public data; origin checks add nothing.
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsHub fans journal events out to WebSocket subscribers. Slow clients are
// disconnected rather than allowed to stall the stream.
type wsHub struct {
	bus *eventbus.Bus

	mu      sync.Mutex
	clients map[*wsClient]bool
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	// category filters the stream; empty means every category.
	category string
}

func newWSHub(bus *eventbus.Bus) *wsHub {
	return &wsHub{bus: bus, clients: make(map[*wsClient]bool)}
}

// run pumps bus events to connected clients until ctx is cancelled.
func (h *wsHub) run(ctx context.Context) {
	events := make(chan event.Event, 256)
	h.bus.Subscribe(eventbus.AllCategories, events)
	defer h.bus.Unsubscribe(eventbus.AllCategories, events)

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case evt := <-events:
			payload, err := json.Marshal(evt)
			if err != nil {
				log.Printf("[api] encode ws event: %v", err)
				continue
			}
			h.broadcast(evt.Category, payload)
		}
	}
}

func (h *wsHub) broadcast(category string, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.category != "" && c.category != category {
			continue
		}
		select {
		case c.send <- payload:
		default:
			// Client is not draining; cut it loose.
			delete(h.clients, c)
			close(c.send)
		}
	}
}

func (h *wsHub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
}

func (h *wsHub) remove(c *wsClient) {
	h.mu.Lock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *wsHub) closeAll() {
	h.mu.Lock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[api] ws upgrade: %v", err)
		return
	}

	client := &wsClient{
		conn:     conn,
		send:     make(chan []byte, 64),
		category: r.URL.Query().Get("category"),
	}
	s.hub.add(client)

	// Writer: drains the send queue; a closed queue means the hub dropped
	// us and the connection should go down.
	go func() {
		defer conn.Close()
		for payload := range client.send {
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.hub.remove(client)
				return
			}
		}
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
	}()

	// Reader: the stream is one-way, so reads only surface disconnects.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.hub.remove(client)
				return
			}
		}
	}()
}
