// Package vis exposes the simulation over WebSocket and HTTP for the
// visualization frontend: a broadcast hub for the per-tick event
// stream, command handling, and JSON snapshot endpoints.
package vis

import (
	"context"
	"encoding/json"
	"sync"

	network "github.com/netlabworks/vlansim/core"
	"github.com/netlabworks/vlansim/internal/logging"
)

// Client represents a connected WebSocket client that receives
// broadcast messages.
type Client interface {
	SendMessage(msg Message) error
}

// Hub fans simulation events out to all registered clients. It
// satisfies the sim state's EventSink, so wiring it in via
// WithEventSink streams every tick's events to the frontend.
type Hub struct {
	mu      sync.Mutex
	clients map[Client]bool
	log     logging.Logger
}

// NewHub creates an empty hub.
func NewHub(log logging.Logger) *Hub {
	if log == nil {
		log = logging.Noop()
	}
	return &Hub{
		clients: make(map[Client]bool),
		log:     log,
	}
}

// Register adds a client to receive broadcasts.
func (h *Hub) Register(c Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
}

// Unregister removes a client.
func (h *Hub) Unregister(c Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sends msg to every registered client.
func (h *Hub) Broadcast(msg Message) {
	h.mu.Lock()
	clients := make([]Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		_ = c.SendMessage(msg)
	}
}

// Publish implements the sim state's EventSink: each engine event is
// wrapped in an "event" message and broadcast.
func (h *Hub) Publish(events []network.Event) {
	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			h.log.Warn(context.Background(), "marshal event failed",
				logging.String("type", string(ev.Type)),
				logging.String("error", err.Error()),
			)
			continue
		}
		h.Broadcast(Message{Type: "event", Payload: payload})
	}
}
