package web

import (
	"sync"
)

// Hub manages SSE client subscriptions and broadcasts project events.
// thread-safe for concurrent subscribe/unsubscribe/broadcast operations.
type Hub struct {
	mu      sync.RWMutex
	clients map[chan Event]string // channel -> project filter, empty receives every project
}

// NewHub creates a new SSE hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[chan Event]string),
	}
}

// Subscribe adds a client channel receiving events of projectID, or of all projects when projectID is empty.
// the returned channel has buffer size of 64 to handle burst events.
func (h *Hub) Subscribe(projectID string) chan Event {
	ch := make(chan Event, 64)

	h.mu.Lock()
	h.clients[ch] = projectID
	h.mu.Unlock()

	return ch
}

// Unsubscribe removes a client channel and closes it.
// safe to call multiple times with the same channel.
func (h *Hub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[ch]; ok {
		delete(h.clients, ch)
		close(ch)
	}
}

// Broadcast sends an event to every client subscribed to its project.
// uses non-blocking send; events are dropped for clients with full buffers.
func (h *Hub) Broadcast(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch, projectID := range h.clients {
		if projectID != "" && projectID != e.ProjectID {
			continue
		}
		select {
		case ch <- e:
		default:
			// slow client, drop
		}
	}
}

// ClientCount returns the number of currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

// Close unsubscribes all clients and closes their channels.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.clients {
		close(ch)
		delete(h.clients, ch)
	}
}
