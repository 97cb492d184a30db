package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/jardin-pos/api/internal/identity"
	"github.com/jardin-pos/api/internal/metrics"
)

// Event is one websocket frame.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Hub tracks the connected displays by the session they were opened with,
// so a sign-out can close every display of that session.
type Hub struct {
	// Registered clients by session ID
	rooms map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client

	// Sessions whose displays must be closed
	ended chan string

	done    chan struct{}
	metrics *metrics.Registry

	mu sync.RWMutex
}

func NewHub(m *metrics.Registry) *Hub {
	if m == nil {
		m = metrics.NewRegistry()
	}
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ended:      make(chan string, 64),
		done:       make(chan struct{}),
		metrics:    m,
	}
}

// Run is the hub's main loop. When ctx is done every client is closed.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for sessionID, clients := range h.rooms {
				for client := range clients {
					h.drop(sessionID, client)
				}
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.rooms[client.sessionID] == nil {
				h.rooms[client.sessionID] = make(map[*Client]bool)
			}
			h.rooms[client.sessionID][client] = true
			h.metrics.DisplaysConnected.Inc()
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.rooms[client.sessionID]; ok && clients[client] {
				h.drop(client.sessionID, client)
			}
			h.mu.Unlock()

		case sessionID := <-h.ended:
			h.mu.Lock()
			for client := range h.rooms[sessionID] {
				h.drop(sessionID, client)
			}
			h.mu.Unlock()
		}
	}
}

// drop must be called with mu held.
func (h *Hub) drop(sessionID string, client *Client) {
	delete(h.rooms[sessionID], client)
	if len(h.rooms[sessionID]) == 0 {
		delete(h.rooms, sessionID)
	}
	client.close()
	h.metrics.DisplaysConnected.Dec()
}

// OnSessionEvent closes the displays of a session that signed out.
// Register it with identity.Provider.OnSessionChange.
func (h *Hub) OnSessionEvent(ev identity.SessionEvent) {
	if ev.Kind != identity.SignedOut {
		return
	}
	select {
	case h.ended <- ev.Identity.SessionID:
	case <-h.done:
	}
}

// Connected returns the number of open displays.
func (h *Hub) Connected() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, clients := range h.rooms {
		n += len(clients)
	}
	return n
}

func (h *Hub) add(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
