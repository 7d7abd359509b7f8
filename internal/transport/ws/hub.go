package ws

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/vedran77/rentals/internal/realtime"
)

// Hub manages all active WebSocket clients and routes document changes to
// the ones that subscribed to them and may read them.
type Hub struct {
	logger *slog.Logger

	// clients holds every open connection; a user may have several.
	clients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	broadcast  chan realtime.Event
	count      chan chan int
	stopped    chan struct{}
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:     logger,
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan realtime.Event, 256),
		count:      make(chan chan int),
		stopped:    make(chan struct{}),
	}
}

// Run starts the Hub's main event loop and returns when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.drop(client)
			}
			return

		case client := <-h.register:
			h.clients[client] = struct{}{}
			h.logger.Debug("Client connected", "user_id", client.principal.UserID, "clients", len(h.clients))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				h.logger.Debug("Client disconnected", "user_id", client.principal.UserID, "clients", len(h.clients))
			}

		case evt := <-h.broadcast:
			h.deliver(evt)

		case reply := <-h.count:
			reply <- len(h.clients)
		}
	}
}

func (h *Hub) deliver(evt realtime.Event) {
	var data []byte
	for client := range h.clients {
		if !client.IsSubscribed(evt.Channels) || !evt.ReadableBy(client.principal) {
			continue
		}
		if data == nil {
			out, err := newDocumentEvent(evt)
			if err != nil {
				h.logger.Error("Could not encode event", "error", err.Error())
				return
			}
			if data, err = json.Marshal(out); err != nil {
				h.logger.Error("Could not encode event", "error", err.Error())
				return
			}
		}
		if !client.queue(data) {
			// Client buffer full - disconnect
			h.logger.Warn("Dropping slow client", "user_id", client.principal.UserID)
			h.drop(client)
		}
	}
}

// Register adds client to the hub. It reports false when the hub has
// stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.stopped:
		return false
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.stopped:
	}
}

func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	client.close()
}

// Broadcast queues a document change for delivery. It drops the event when
// the hub is saturated.
func (h *Hub) Broadcast(evt realtime.Event) {
	select {
	case h.broadcast <- evt:
	default:
		h.logger.Warn("Hub saturated, dropping event", "events", evt.Events)
	}
}

// ClientCount returns the number of open connections. It blocks until Run
// handles the request.
func (h *Hub) ClientCount(ctx context.Context) (int, error) {
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
	case <-h.stopped:
		return 0, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	return <-reply, nil
}
