package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/vedran77/rentals/internal/domain"
)

// ChannelDocuments receives every document change.
const ChannelDocuments = "documents"

// CollectionChannel is the channel for changes in one collection.
func CollectionChannel(collection string) string {
	return "collections." + collection + ".documents"
}

// DocumentChannel is the channel for changes to one document.
func DocumentChannel(collection, id string) string {
	return CollectionChannel(collection) + "." + id
}

// DocumentChannels lists every channel a change to collection/id is
// delivered on.
func DocumentChannels(collection, id string) []string {
	return []string{ChannelDocuments, CollectionChannel(collection), DocumentChannel(collection, id)}
}

// Event is a document change. Payload is the document's current state.
type Event struct {
	Events      []string        `json:"events"`
	Channels    []string        `json:"channels"`
	Payload     json.RawMessage `json:"payload"`
	Permissions []string        `json:"permissions"`
	Timestamp   time.Time       `json:"timestamp"`
}

// NewDocumentEvent builds the event for action ("create", "update" or
// "delete") on collection/id.
func NewDocumentEvent(collection, id, action string, payload json.RawMessage, perms []domain.Permission) Event {
	return Event{
		Events: []string{
			fmt.Sprintf("collections.%s.documents.%s.%s", collection, id, action),
			fmt.Sprintf("collections.%s.documents.*.%s", collection, action),
		},
		Channels:    DocumentChannels(collection, id),
		Payload:     payload,
		Permissions: domain.PermissionStrings(perms),
		Timestamp:   time.Now(),
	}
}

// Is reports whether e names the given action, e.g. "create".
func (e Event) Is(action string) bool {
	return slices.ContainsFunc(e.Events, func(name string) bool {
		return strings.HasSuffix(name, "."+action)
	})
}

// ReadableBy reports whether the event's document grants read to p.
func (e Event) ReadableBy(p domain.Principal) bool {
	perms, err := domain.ParsePermissions(e.Permissions)
	if err != nil {
		return false
	}
	return p.Allows(perms, domain.ActionRead)
}

type Handler func(Event)

type Bus interface {
	Publish(ctx context.Context, evt Event) error
	// Subscribe calls h for every event on any of channels until the
	// returned function is called. It must not be called from inside h.
	Subscribe(channels []string, h Handler) (unsubscribe func())
}

type subscription struct {
	channels map[string]struct{}
	handler  Handler

	mu     sync.Mutex
	active bool
}

func (s *subscription) wants(evt Event) bool {
	for _, ch := range evt.Channels {
		if _, ok := s.channels[ch]; ok {
			return true
		}
	}
	return false
}

func (s *subscription) deliver(evt Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		s.handler(evt)
	}
}

// LocalBus delivers events to in-process subscribers on the publisher's
// goroutine.
type LocalBus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]*subscription
}

func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[int]*subscription)}
}

func (b *LocalBus) Publish(_ context.Context, evt Event) error {
	b.mu.RLock()
	var targets []*subscription
	for _, s := range b.subs {
		if s.wants(evt) {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range targets {
		s.deliver(evt)
	}
	return nil
}

func (b *LocalBus) Subscribe(channels []string, h Handler) func() {
	s := &subscription{
		channels: make(map[string]struct{}, len(channels)),
		handler:  h,
		active:   true,
	}
	for _, ch := range channels {
		s.channels[ch] = struct{}{}
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = s
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()

			s.mu.Lock()
			s.active = false
			s.mu.Unlock()
		})
	}
}
