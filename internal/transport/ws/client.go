package ws

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/vedran77/rentals/internal/domain"
	"github.com/vedran77/rentals/internal/realtime"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	writeWait      = 10 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 4096
	sendBufSize    = 256
	maxSubscribed  = 64
)

// Client represents a single WebSocket connection.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	principal domain.Principal

	// channels tracks which realtime channels this client listens to.
	channels map[string]struct{}
	mu       sync.RWMutex

	sendMu sync.Mutex
	closed bool
	send   chan []byte
	done   chan struct{}
}

func NewClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		principal: domain.Principal{UserID: userID},
		channels:  make(map[string]struct{}),
		send:      make(chan []byte, sendBufSize),
		done:      make(chan struct{}),
	}
}

// IsSubscribed reports whether the client listens to any of channels.
func (c *Client) IsSubscribed(channels []string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, ch := range channels {
		if _, ok := c.channels[ch]; ok {
			return true
		}
	}
	return false
}

// Subscribe adds channel subscriptions. Unknown channel names are rejected.
func (c *Client) Subscribe(channels []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range channels {
		if !validChannel(ch) {
			return domain.Validationf("unknown channel %q", ch)
		}
	}
	if len(c.channels)+len(channels) > maxSubscribed {
		return domain.Validationf("at most %d channels per connection", maxSubscribed)
	}
	for _, ch := range channels {
		c.channels[ch] = struct{}{}
	}
	return nil
}

// Unsubscribe removes channel subscriptions.
func (c *Client) Unsubscribe(channels []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range channels {
		delete(c.channels, ch)
	}
}

func validChannel(ch string) bool {
	if ch == realtime.ChannelDocuments {
		return true
	}
	rest, ok := strings.CutPrefix(ch, "collections.")
	if !ok {
		return false
	}
	parts := strings.SplitN(rest, ".", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] != "documents" {
		return false
	}
	return len(parts) == 2 || parts[2] != ""
}

// ReadPump reads messages from the WebSocket and handles them until the
// connection closes.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	for {
		var event Event
		err := wsjson.Read(ctx, c.conn, &event)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				c.hub.logger.Debug("Client closed connection", "user_id", c.principal.UserID)
			} else {
				c.hub.logger.Debug("Could not read from client", "user_id", c.principal.UserID, "error", err.Error())
			}
			return
		}

		c.handleEvent(&event)
	}
}

// WritePump writes messages from the send channel to the WebSocket.
func (c *Client) WritePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}
			wctx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Write(wctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				c.hub.logger.Debug("Could not write to client", "user_id", c.principal.UserID, "error", err.Error())
				return
			}

		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(pctx)
			cancel()
			if err != nil {
				c.hub.logger.Debug("Could not ping client", "user_id", c.principal.UserID, "error", err.Error())
				return
			}

		case <-c.done:
			return
		}
	}
}

// handleEvent routes an incoming client event.
func (c *Client) handleEvent(event *Event) {
	switch event.Type {
	case EventTypeSubscribe:
		var p SubscribePayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			c.sendError("INVALID_PAYLOAD", "invalid subscribe payload")
			return
		}
		if err := c.Subscribe(p.Channels); err != nil {
			c.sendError("INVALID_CHANNEL", err.Error())
			return
		}
		c.reply(EventTypeSubscribed, p.Channels, nil)

	case EventTypeUnsubscribe:
		var p SubscribePayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			c.sendError("INVALID_PAYLOAD", "invalid unsubscribe payload")
			return
		}
		c.Unsubscribe(p.Channels)

	case EventTypePing:
		c.reply(EventTypePong, nil, nil)

	default:
		c.sendError("UNKNOWN_EVENT", "unknown event type: "+event.Type)
	}
}

func (c *Client) sendError(code, message string) {
	c.reply(EventTypeError, nil, ErrorPayload{Code: code, Message: message})
}

// reply queues an event for this client only. It is dropped when the send
// buffer is full.
func (c *Client) reply(eventType string, channels []string, payload any) {
	evt := &Event{Type: eventType, Channels: channels, Timestamp: time.Now().Unix()}
	if payload != nil {
		var err error
		if evt, err = NewEvent(eventType, channels, payload); err != nil {
			return
		}
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	c.queue(data)
}

// queue adds data to the send buffer. It reports false when the buffer is
// full; data for a closed client is discarded.
func (c *Client) queue(data []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	close(c.done)
}
