package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/vedran77/rentals/internal/domain"
	"github.com/vedran77/rentals/internal/realtime"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const testSecret = "test-secret"

func setup(t *testing.T) (context.Context, *realtime.LocalBus, *Hub, string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	// connection goroutines outlive the test, so they must not log to t
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	go hub.Run(ctx)

	bus := realtime.NewLocalBus()
	t.Cleanup(Relay(bus, hub))

	srv := httptest.NewServer(ServeWS(hub, testSecret, nil))
	t.Cleanup(srv.Close)
	return ctx, bus, hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, ctx context.Context, url, userID string) *websocket.Conn {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: userID}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}
	conn, _, err := websocket.Dial(ctx, url+"?token="+tok, nil)
	if err != nil {
		t.Fatalf("Could not dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func send(t *testing.T, ctx context.Context, conn *websocket.Conn, typ string, payload string) {
	t.Helper()
	evt := Event{Type: typ}
	if payload != "" {
		evt.Payload = json.RawMessage(payload)
	}
	if err := wsjson.Write(ctx, conn, evt); err != nil {
		t.Fatalf("Could not write: %v", err)
	}
}

func receive(t *testing.T, ctx context.Context, conn *websocket.Conn) Event {
	t.Helper()
	var evt Event
	if err := wsjson.Read(ctx, conn, &evt); err != nil {
		t.Fatalf("Could not read: %v", err)
	}
	return evt
}

func TestServeWS_Unauthorized(t *testing.T) {
	ctx, _, _, url := setup(t)

	for _, query := range []string{"", "?token=garbage"} {
		_, resp, err := websocket.Dial(ctx, url+query, nil)
		if err == nil {
			t.Fatalf("dial %q should fail", query)
		}
		if resp == nil || resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("dial %q: got response %v, want 401", query, resp)
		}
	}
}

func TestServeWS_DeliversReadableEvents(t *testing.T) {
	ctx, bus, hub, url := setup(t)
	conn := dial(t, ctx, url, "u1")

	send(t, ctx, conn, EventTypePing, "")
	if evt := receive(t, ctx, conn); evt.Type != EventTypePong {
		t.Fatalf("got %s, want pong", evt.Type)
	}

	send(t, ctx, conn, EventTypeSubscribe, `{"channels": ["collections.messages.documents"]}`)
	if evt := receive(t, ctx, conn); evt.Type != EventTypeSubscribed {
		t.Fatalf("got %s, want subscribed", evt.Type)
	}

	if n, err := hub.ClientCount(ctx); err != nil || n != 1 {
		t.Errorf("ClientCount = %d, %v; want 1", n, err)
	}

	publish := func(collection, id, owner string) {
		t.Helper()
		evt := realtime.NewDocumentEvent(collection, id, "create",
			json.RawMessage(`{"id":"`+id+`"}`), domain.MessagePermissions(owner, "y1"))
		if err := bus.Publish(ctx, evt); err != nil {
			t.Fatal(err)
		}
	}
	publish("messages", "hidden", "x1")
	publish("notifications", "elsewhere", "u1")
	publish("messages", "m1", "u1")

	evt := receive(t, ctx, conn)
	if evt.Type != EventTypeDocument {
		t.Fatalf("got %s, want event", evt.Type)
	}
	var p DocumentPayload
	if err := json.Unmarshal(evt.Payload, &p); err != nil {
		t.Fatal(err)
	}
	if string(p.Payload) != `{"id":"m1"}` {
		t.Errorf("got payload %s, want m1", p.Payload)
	}
	if len(p.Events) == 0 || p.Events[0] != "collections.messages.documents.m1.create" {
		t.Errorf("unexpected events %v", p.Events)
	}
}

func TestServeWS_RejectsUnknownChannel(t *testing.T) {
	ctx, _, _, url := setup(t)
	conn := dial(t, ctx, url, "u1")

	send(t, ctx, conn, EventTypeSubscribe, `{"channels": ["account"]}`)
	evt := receive(t, ctx, conn)
	if evt.Type != EventTypeError {
		t.Fatalf("got %s, want error", evt.Type)
	}
	var p ErrorPayload
	if err := json.Unmarshal(evt.Payload, &p); err != nil {
		t.Fatal(err)
	}
	if p.Code != "INVALID_CHANNEL" {
		t.Errorf("got code %s, want INVALID_CHANNEL", p.Code)
	}

	send(t, ctx, conn, "typing.start", "")
	if evt := receive(t, ctx, conn); evt.Type != EventTypeError {
		t.Errorf("got %s, want error", evt.Type)
	}
}

func TestValidChannel(t *testing.T) {
	tests := map[string]bool{
		"documents":                         true,
		"collections.messages.documents":    true,
		"collections.messages.documents.m1": true,
		"collections.messages":              false,
		"collections..documents":            false,
		"files":                             false,
		"collections.a.documents.b.c":       true,
		"collections.messages.documents.":   false,
	}
	for ch, want := range tests {
		if got := validChannel(ch); got != want {
			t.Errorf("validChannel(%q) = %v, want %v", ch, got, want)
		}
	}
}
