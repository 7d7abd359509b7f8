package appstate

import (
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/vedran77/rentals/internal/domain"
)

func TestState_Lifecycle(t *testing.T) {
	var zero State
	if got := zero.Snapshot().AuthStatus; got != AuthLoading {
		t.Errorf("zero value status = %s, want loading", got)
	}

	s := New()
	if s.UserID() != "" {
		t.Error("loading state has a user")
	}

	s.Init("t1", domain.AccountTenant)
	s.SetNotificationCount(3)
	want := Snapshot{AuthStatus: AuthAuthenticated, UserID: "t1", Role: domain.AccountTenant, NotificationCount: 3}
	if diff := cmp.Diff(want, s.Snapshot()); diff != "" {
		t.Errorf("after Init (-want +got):\n%s", diff)
	}

	if got := s.IncrementNotificationCount(-5); got != 0 {
		t.Errorf("count = %d, want clamped to 0", got)
	}

	s.Init("", "")
	if diff := cmp.Diff(Snapshot{AuthStatus: AuthAnonymous}, s.Snapshot()); diff != "" {
		t.Errorf("anonymous (-want +got):\n%s", diff)
	}

	s.Init("l1", domain.AccountLandlord)
	s.IncrementNotificationCount(2)
	s.Reset()
	if diff := cmp.Diff(Snapshot{AuthStatus: AuthLoading}, s.Snapshot()); diff != "" {
		t.Errorf("after Reset (-want +got):\n%s", diff)
	}
}

func TestState_ConcurrentIncrements(t *testing.T) {
	s := New()
	s.Init("u1", domain.AccountTenant)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.IncrementNotificationCount(1)
		}()
	}
	wg.Wait()

	if got := s.NotificationCount(); got != 50 {
		t.Errorf("count = %d, want 50", got)
	}
}
