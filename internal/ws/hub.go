// Package ws pushes order lifecycle events to workshop dashboards over
// WebSocket. Connections join a room per workshop unit; intake and status
// changes fan out to everyone watching that unit.
package ws

import (
	"encoding/json"
	"sync"
)

// Event is a WebSocket message to be broadcast.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// locationEvent routes an event to one unit's room.
type locationEvent struct {
	Location string
	Event    Event
}

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	// Registered clients by workshop unit
	rooms map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *locationEvent

	mu sync.RWMutex
}

// NewHub creates a new Hub instance.
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *locationEvent, 256),
	}
}

// Run starts the hub's main loop.
// This should be called as a goroutine: go hub.Run()
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.rooms[client.location] == nil {
				h.rooms[client.location] = make(map[*Client]bool)
			}
			h.rooms[client.location][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.rooms[client.location]; ok {
				if _, exists := clients[client]; exists {
					delete(clients, client)
					close(client.send)
					if len(clients) == 0 {
						delete(h.rooms, client.location)
					}
				}
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			h.mu.Lock()
			clients := h.rooms[event.Location]

			message, err := json.Marshal(event.Event)
			if err != nil {
				h.mu.Unlock()
				continue
			}

			for client := range clients {
				select {
				case client.send <- message:
				default:
					// Client's send buffer is full, close and unregister
					close(client.send)
					delete(h.rooms[event.Location], client)
					if len(h.rooms[event.Location]) == 0 {
						delete(h.rooms, event.Location)
					}
				}
			}
			h.mu.Unlock()
		}
	}
}

// BroadcastToLocation sends an event to all clients watching a workshop unit.
// This is the public API for handlers to broadcast events.
func (h *Hub) BroadcastToLocation(location string, event Event) {
	h.broadcast <- &locationEvent{
		Location: location,
		Event:    event,
	}
}
