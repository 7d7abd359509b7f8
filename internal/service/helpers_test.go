package service_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/vedran77/rentals/internal/domain"
	"github.com/vedran77/rentals/internal/functions"
	"github.com/vedran77/rentals/internal/repository"
	"github.com/vedran77/rentals/internal/repository/memory"
	"github.com/vedran77/rentals/internal/service"
)

const (
	messages      = "messages"
	notifications = "notifications"
	applications  = "applications"
)

// newStore returns a memory store whose clock advances one second per call,
// so creation order is also timestamp order.
func newStore() *memory.Store {
	s := memory.NewStore()
	var mu sync.Mutex
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.Now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
	return s
}

func as(userID string) context.Context {
	return repository.WithUser(context.Background(), userID)
}

// teststore fails the test on any call it has no func for.
type teststore struct {
	t      *testing.T
	list   func(t *testing.T, collection string, q repository.Query) (*repository.DocumentList, error)
	create func(t *testing.T, collection string, data any, perms []domain.Permission) (*repository.Document, error)
}

func (s teststore) List(_ context.Context, collection string, q repository.Query) (*repository.DocumentList, error) {
	if s.list == nil {
		s.t.Fatalf("unexpected List(%s)", collection)
	}
	return s.list(s.t, collection, q)
}

func (s teststore) Get(_ context.Context, collection, id string) (*repository.Document, error) {
	s.t.Fatalf("unexpected Get(%s, %s)", collection, id)
	return nil, nil
}

func (s teststore) Create(_ context.Context, collection, _ string, data any, perms []domain.Permission) (*repository.Document, error) {
	if s.create == nil {
		s.t.Fatalf("unexpected Create(%s)", collection)
	}
	return s.create(s.t, collection, data, perms)
}

func (s teststore) Update(_ context.Context, collection, id string, _ any, _ []domain.Permission) (*repository.Document, error) {
	s.t.Fatalf("unexpected Update(%s, %s)", collection, id)
	return nil, nil
}

func (s teststore) Delete(_ context.Context, collection, id string) error {
	s.t.Fatalf("unexpected Delete(%s, %s)", collection, id)
	return nil
}

type execution struct {
	name    string
	request functions.SendNotificationRequest
	async   bool
}

// testexecutor records executions and answers them with execute.
type testexecutor struct {
	execute func(name string, async bool) (*functions.Execution, error)

	mu    sync.Mutex
	calls []execution
}

func (e *testexecutor) Enabled() bool { return true }

func (e *testexecutor) Execute(_ context.Context, name string, payload any, async bool) (*functions.Execution, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var req functions.SendNotificationRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.calls = append(e.calls, execution{name: name, request: req, async: async})
	e.mu.Unlock()

	return e.execute(name, async)
}

func (e *testexecutor) executions() []execution {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]execution(nil), e.calls...)
}

// testnotifier records notification requests and answers them with err.
type testnotifier struct {
	err error

	mu    sync.Mutex
	calls []service.CreateNotificationInput
}

func (n *testnotifier) CreateNotification(_ context.Context, in service.CreateNotificationInput) (*domain.Notification, error) {
	n.mu.Lock()
	n.calls = append(n.calls, in)
	n.mu.Unlock()
	if n.err != nil {
		return nil, n.err
	}
	return &domain.Notification{ID: "n-1", UserID: in.UserID, Type: in.Type}, nil
}

func (n *testnotifier) requests() []service.CreateNotificationInput {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]service.CreateNotificationInput(nil), n.calls...)
}
