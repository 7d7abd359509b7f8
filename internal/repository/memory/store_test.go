package memory

import (
	"context"
	"testing"
	"time"

	"github.com/vedran77/rentals/internal/domain"
	"github.com/vedran77/rentals/internal/repository"
)

type note struct {
	UserID string `json:"user_id"`
	Status string `json:"status"`
}

func newTestStore() *Store {
	s := NewStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var tick int
	s.Now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}
	return s
}

func TestStore_BasicFlow(t *testing.T) {
	s := newTestStore()
	ctx := repository.WithUser(context.Background(), "u1")
	perms := domain.NotificationPermissions("u1")

	for _, id := range []string{"n1", "n2", "n3"} {
		status := "unread"
		if id == "n2" {
			status = "read"
		}
		if _, err := s.Create(ctx, "notes", id, note{UserID: "u1", Status: status}, perms); err != nil {
			t.Fatal(err)
		}
	}

	list, err := s.List(ctx, "notes", repository.Query{})
	if err != nil {
		t.Fatal(err)
	}
	if list.Total != 3 || list.Documents[0].ID != "n3" {
		t.Fatalf("want n3 first of 3, got total=%d first=%s", list.Total, list.Documents[0].ID)
	}

	list, err = s.List(ctx, "notes", repository.Query{
		Filters: []repository.Filter{repository.Equal("status", "unread")},
		Order:   repository.OrderCreatedAsc,
		Limit:   1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if list.Total != 2 || len(list.Documents) != 1 || list.Documents[0].ID != "n1" {
		t.Fatalf("filter failed: total=%d docs=%v", list.Total, list.Documents)
	}

	doc, err := s.Update(ctx, "notes", "n1", map[string]any{"status": "read"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	var got note
	if err := doc.Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Status != "read" || got.UserID != "u1" {
		t.Fatalf("patch failed: %+v", got)
	}

	if err := s.Delete(ctx, "notes", "n1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, "notes", "n1"); !domain.IsKind(err, domain.KindNotFound) {
		t.Fatalf("get after delete: want not found, got %v", err)
	}
}

func TestStore_InFilter(t *testing.T) {
	s := newTestStore()
	ctx := repository.Privileged(context.Background())

	for _, st := range []string{"pending", "accepted", "rejected"} {
		if _, err := s.Create(ctx, "apps", st, note{Status: st}, nil); err != nil {
			t.Fatal(err)
		}
	}

	list, err := s.List(ctx, "apps", repository.Query{
		Filters: []repository.Filter{repository.In("status", "pending", "accepted")},
	})
	if err != nil {
		t.Fatal(err)
	}
	if list.Total != 2 {
		t.Fatalf("want 2, got %d", list.Total)
	}
}

func TestStore_ACL(t *testing.T) {
	s := newTestStore()
	alice := repository.WithUser(context.Background(), "alice")
	bob := repository.WithUser(context.Background(), "bob")

	tests := []struct {
		name string
		run  func() error
		kind domain.Kind
	}{
		{
			name: "NoPrincipal",
			run: func() error {
				_, err := s.List(context.Background(), "notes", repository.Query{})
				return err
			},
			kind: domain.KindAuthorization,
		},
		{
			name: "GrantToOtherUser",
			run: func() error {
				_, err := s.Create(alice, "notes", "", note{UserID: "bob"}, domain.NotificationPermissions("bob"))
				return err
			},
			kind: domain.KindAuthorization,
		},
		{
			name: "ReadOtherUsersDocument",
			run: func() error {
				if _, err := s.Create(alice, "notes", "private", note{UserID: "alice"}, domain.NotificationPermissions("alice")); err != nil {
					return err
				}
				_, err := s.Get(bob, "notes", "private")
				return err
			},
			kind: domain.KindNotFound,
		},
		{
			name: "UpdateWithoutGrant",
			run: func() error {
				perms := []domain.Permission{domain.Read(domain.RoleAny), domain.Update(domain.UserRole("alice"))}
				if _, err := s.Create(alice, "notes", "public", note{UserID: "alice"}, perms); err != nil {
					return err
				}
				_, err := s.Update(bob, "notes", "public", map[string]any{"status": "read"}, nil)
				return err
			},
			kind: domain.KindAuthorization,
		},
		{
			name: "DuplicateID",
			run: func() error {
				_, err := s.Create(alice, "notes", "private", note{}, nil)
				return err
			},
			kind: domain.KindConflict,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			if got := domain.KindOf(err); got != tt.kind {
				t.Errorf("got kind %s (%v), want %s", got, err, tt.kind)
			}
		})
	}

	list, err := s.List(bob, "notes", repository.Query{})
	if err != nil {
		t.Fatal(err)
	}
	if list.Total != 1 || list.Documents[0].ID != "public" {
		t.Errorf("bob should only see the public note, got %+v", list.Documents)
	}

	if _, err := s.Get(repository.Privileged(context.Background()), "notes", "private"); err != nil {
		t.Errorf("privileged get: %v", err)
	}
}

func TestStore_UniqueIndex(t *testing.T) {
	s := newTestStore()
	s.AddUniqueIndex("apps", []string{"user_id"}, repository.In("status", "pending", "accepted"))
	ctx := repository.Privileged(context.Background())

	if _, err := s.Create(ctx, "apps", "a1", note{UserID: "t1", Status: "pending"}, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Create(ctx, "apps", "a2", note{UserID: "t1", Status: "pending"}, nil); !domain.IsKind(err, domain.KindConflict) {
		t.Fatalf("second active: want conflict, got %v", err)
	}
	if _, err := s.Update(ctx, "apps", "a1", map[string]any{"status": "rejected"}, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Create(ctx, "apps", "a2", note{UserID: "t1", Status: "pending"}, nil); err != nil {
		t.Fatalf("after reject: %v", err)
	}
}
