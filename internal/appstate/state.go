// Package appstate holds the session-wide state shared by the inbox views:
// who is signed in and how many unread notifications they have.
package appstate

import (
	"sync"

	"github.com/vedran77/rentals/internal/domain"
)

type AuthStatus string

const (
	AuthLoading       AuthStatus = "loading"
	AuthAuthenticated AuthStatus = "authenticated"
	AuthAnonymous     AuthStatus = "anonymous"
)

// Snapshot is a point-in-time copy of State.
type Snapshot struct {
	AuthStatus        AuthStatus
	UserID            string
	Role              domain.AccountRole
	NotificationCount int
}

// State is safe for concurrent use. The zero value is loading with no user.
type State struct {
	mu   sync.RWMutex
	snap Snapshot
}

func New() *State {
	return &State{snap: Snapshot{AuthStatus: AuthLoading}}
}

// Init records a signed-in user. An empty userID marks the session
// anonymous. The notification count starts at zero.
func (s *State) Init(userID string, role domain.AccountRole) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if userID == "" {
		s.snap = Snapshot{AuthStatus: AuthAnonymous}
		return
	}
	s.snap = Snapshot{AuthStatus: AuthAuthenticated, UserID: userID, Role: role}
}

// Reset returns to the loading state, e.g. on sign-out.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = Snapshot{AuthStatus: AuthLoading}
}

func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := s.snap
	if snap.AuthStatus == "" {
		snap.AuthStatus = AuthLoading
	}
	return snap
}

// UserID returns the signed-in user, or "" when there is none.
func (s *State) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap.AuthStatus != AuthAuthenticated {
		return ""
	}
	return s.snap.UserID
}

func (s *State) NotificationCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.NotificationCount
}

// SetNotificationCount clamps negative counts to zero.
func (s *State) SetNotificationCount(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.NotificationCount = max(0, n)
}

// IncrementNotificationCount adds delta, never going below zero, and returns
// the new count.
func (s *State) IncrementNotificationCount(delta int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.NotificationCount = max(0, s.snap.NotificationCount+delta)
	return s.snap.NotificationCount
}
