// Package hub streams controller notifications to browsers over
// Server-Sent Events.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"digraph/internal/domain"
	"digraph/internal/service"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultKeepAlive is the interval between keep-alive comments
const DefaultKeepAlive = 30 * time.Second

// Client represents a connected SSE client
type Client struct {
	id     string
	events chan []byte
}

// Hub manages SSE client connections
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan service.Event
	keepAlive  time.Duration
	logger     *zap.Logger
}

// Option configures a Hub
type Option func(*Hub)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithKeepAlive sets the keep-alive interval
func WithKeepAlive(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.keepAlive = d
		}
	}
}

// New creates a new Hub
func New(opts ...Option) *Hub {
	h := &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan service.Event, 256),
		keepAlive:  DefaultKeepAlive,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Attach forwards every event published on bus to the hub. The returned
// subscription stops the forwarding.
func (h *Hub) Attach(bus *service.EventBus) *service.Subscription {
	return bus.SubscribeChan(h.broadcast)
}

// Run starts the hub's event loop. It returns when ctx is cancelled, after
// disconnecting every client.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("SSE client connected", zap.String("client", client.id), zap.Int("total", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.events)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("SSE client disconnected", zap.String("client", client.id), zap.Int("total", total))

		case event := <-h.broadcast:
			msg, err := Encode(event)
			if err != nil {
				h.logger.Warn("failed to encode event", zap.String("type", string(event.Type)), zap.Error(err))
				continue
			}

			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.events <- msg:
				default:
					h.logger.Warn("SSE client is slow, skipping message", zap.String("client", client.id))
				}
			}
			h.mu.RUnlock()

		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.events)
			}
			h.mu.Unlock()
			return ctx.Err()
		}
	}
}

// Broadcast queues an event for all connected clients
func (h *Hub) Broadcast(event service.Event) {
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("broadcast channel full, dropping event", zap.String("type", string(event.Type)))
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// wireEvent is the JSON shape of a streamed event
type wireEvent struct {
	Type      service.EventType `json:"type"`
	Node      *domain.Node      `json:"node,omitempty"`
	Edge      *domain.Edge      `json:"edge,omitempty"`
	Pin       *domain.Pin       `json:"pin,omitempty"`
	Selection any               `json:"selection,omitempty"`
	Path      string            `json:"path,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// Encode formats an event as one SSE message named after its type
func Encode(event service.Event) ([]byte, error) {
	w := wireEvent{
		Type:  event.Type,
		Node:  event.Node,
		Edge:  event.Edge,
		Pin:   event.Pin,
		Path:  event.Path,
		Error: event.Failure(),
	}
	if event.Type == service.EventSelectionChanged {
		selection := event.Selection
		if selection == nil {
			selection = []string{}
		}
		w.Selection = selection
	}

	data, err := json.Marshal(w)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, data)), nil
}

// ServeHTTP handles SSE connections
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	client := &Client{
		id:     uuid.New().String(),
		events: make(chan []byte, 64),
	}

	select {
	case h.register <- client:
	case <-r.Context().Done():
		return
	}
	defer func() {
		select {
		case h.unregister <- client:
		case <-time.After(time.Second):
		}
	}()

	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-client.events:
			if !ok {
				return
			}
			if _, err := w.Write(msg); err != nil {
				return
			}
			flusher.Flush()

		case <-ticker.C:
			if _, err := fmt.Fprintf(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
