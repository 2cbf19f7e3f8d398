// Package ws streams queue events to connected dashboards over websockets.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/Veraticus/the-trucks-must-roll/internal/service"
)

// Event is the wire format of every websocket message.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Hub tracks connected clients and fans events out to all of them.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}
	logger     *slog.Logger
	mu         sync.RWMutex
}

var _ service.Publisher = (*Hub)(nil)

// NewHub creates a hub. Call Run before publishing.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run processes registrations and broadcasts until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// slow consumer
					delete(h.clients, client)
					close(client.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Publish queues an event for every connected client. Events are dropped
// rather than blocking the caller when the broadcast buffer is full.
func (h *Hub) Publish(eventType string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		h.logger.Warn("failed to encode event payload", "type", eventType, "error", err)
		return
	}
	message, err := json.Marshal(Event{Type: eventType, Payload: body})
	if err != nil {
		h.logger.Warn("failed to encode event", "type", eventType, "error", err)
		return
	}

	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("dropping queue event, broadcast buffer full", "type", eventType)
	}
}

func (h *Hub) attach(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) detach(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
