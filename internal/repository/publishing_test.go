package repository_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/neilotoole/slogt"
	"github.com/vedran77/rentals/internal/domain"
	"github.com/vedran77/rentals/internal/realtime"
	"github.com/vedran77/rentals/internal/repository"
	"github.com/vedran77/rentals/internal/repository/memory"
)

func TestPublishing(t *testing.T) {
	bus := realtime.NewLocalBus()
	store := repository.NewPublishing(memory.NewStore(), bus, slogt.New(t))
	ctx := repository.WithUser(context.Background(), "t1")

	var got []realtime.Event
	unsub := bus.Subscribe([]string{realtime.CollectionChannel("messages")}, func(evt realtime.Event) {
		got = append(got, evt)
	})
	defer unsub()

	perms := domain.MessagePermissions("t1", "l1")
	doc, err := store.Create(ctx, "messages", "", map[string]any{"body": "hi", "read": false}, perms)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Update(ctx, "messages", doc.ID, map[string]any{"read": true}, nil); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(ctx, "messages", doc.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Create(ctx, "messages", "", map[string]any{}, domain.NotificationPermissions("l1")); err == nil {
		t.Fatal("cross-user create should fail")
	}

	if len(got) != 3 {
		t.Fatalf("got %d events, want 3", len(got))
	}
	for i, action := range []string{"create", "update", "delete"} {
		if !got[i].Is(action) {
			t.Errorf("event %d = %v, want %s", i, got[i].Events, action)
		}
	}

	var payload struct {
		ID   string `json:"id"`
		Read bool   `json:"read"`
	}
	if err := json.Unmarshal(got[1].Payload, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.ID != doc.ID || !payload.Read {
		t.Errorf("update payload should carry the current state, got %s", got[1].Payload)
	}
	if !got[0].ReadableBy(domain.Principal{UserID: "l1"}) {
		t.Errorf("receiver should be able to read the create event")
	}
}
