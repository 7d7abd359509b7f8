// Package inbox keeps one user's view of their conversations in step with
// the realtime stream. Events may arrive late, twice or out of order; the
// merge rules in merge.go make applying them idempotent.
package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/vedran77/rentals/internal/appstate"
	"github.com/vedran77/rentals/internal/domain"
	"github.com/vedran77/rentals/internal/realtime"
	"github.com/vedran77/rentals/internal/repository"
	"golang.org/x/sync/errgroup"
)

// markReadTimeout bounds a mark-as-read call that outlives its view.
const markReadTimeout = 10 * time.Second

// loadConcurrency caps the conversations fetched at once while Load seeds
// unread state.
const loadConcurrency = 4

var ErrClosed = errors.New("inbox is closed")

type Conversations interface {
	ListUserConversations(ctx context.Context, userID string) ([]domain.ConversationSummary, error)
	ListConversationMessages(ctx context.Context, conversationID string) ([]domain.Message, error)
	MarkConversationAsRead(ctx context.Context, conversationID, userID string) (int, error)
}

type NotificationCounter interface {
	CountUnreadNotifications(ctx context.Context, userID string) (int, error)
}

// Inbox is safe for concurrent use. Bus handlers and callers may run on
// different goroutines.
type Inbox struct {
	conversations Conversations
	counter       NotificationCounter
	bus           realtime.Bus
	state         *appstate.State
	logger        *slog.Logger

	messagesChannel      string
	notificationsChannel string

	mu          sync.Mutex
	userID      string
	summaries   []domain.ConversationSummary
	selected    string
	thread      []domain.Message
	unread      map[string]bool
	notified    map[string]bool
	unsubscribe func()
	closed      bool

	pending sync.WaitGroup
}

// New returns an inbox for the user signed in on state. counter may be nil,
// in which case the notification count is only moved by events.
func New(conversations Conversations, counter NotificationCounter, bus realtime.Bus, state *appstate.State, messages, notifications string, logger *slog.Logger) *Inbox {
	return &Inbox{
		conversations:        conversations,
		counter:              counter,
		bus:                  bus,
		state:                state,
		logger:               logger,
		messagesChannel:      realtime.CollectionChannel(messages),
		notificationsChannel: realtime.CollectionChannel(notifications),
		unread:               make(map[string]bool),
		notified:             make(map[string]bool),
	}
}

// Load fetches the conversation list and starts listening for changes. The
// messages behind each unread count are fetched too, so a later read on
// another device moves the count down.
func (b *Inbox) Load(ctx context.Context) ([]domain.ConversationSummary, error) {
	userID := b.state.UserID()
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}
	ctx = repository.WithUser(ctx, userID)

	summaries, err := b.conversations.ListUserConversations(ctx, userID)
	if err != nil {
		return nil, err
	}
	if b.counter != nil {
		n, err := b.counter.CountUnreadNotifications(ctx, userID)
		if err != nil {
			return nil, err
		}
		b.state.SetNotificationCount(n)
	}
	unread, err := b.unreadMessages(ctx, summaries, userID)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	if b.userID != userID {
		b.notified = make(map[string]bool)
		b.selected, b.thread = "", nil
	}
	b.userID = userID
	b.summaries = summaries
	b.unread = unread
	if b.unsubscribe == nil {
		b.unsubscribe = b.bus.Subscribe([]string{b.messagesChannel, b.notificationsChannel}, b.HandleEvent)
	}
	return slices.Clone(b.summaries), nil
}

// unreadMessages returns the unread state of every message in the
// conversations that have an unread count.
func (b *Inbox) unreadMessages(ctx context.Context, summaries []domain.ConversationSummary, userID string) (map[string]bool, error) {
	threads := make([][]domain.Message, len(summaries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(loadConcurrency)
	for i, s := range summaries {
		if s.UnreadCount == 0 {
			continue
		}
		g.Go(func() error {
			messages, err := b.conversations.ListConversationMessages(gctx, s.ConversationID)
			threads[i] = messages
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	unread := make(map[string]bool)
	for _, messages := range threads {
		for _, m := range messages {
			unread[m.ID] = m.UnreadFor(userID)
		}
	}
	return unread, nil
}

// Select opens a conversation. Its unread count drops to zero locally right
// away; the server is told on a detached context and the call is not waited
// for. A failed call is logged and the next Load shows the server's count.
func (b *Inbox) Select(ctx context.Context, conversationID string) ([]domain.Message, error) {
	b.mu.Lock()
	userID, closed := b.userID, b.closed
	b.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}
	ctx = repository.WithUser(ctx, userID)

	messages, err := b.conversations.ListConversationMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	b.selected = conversationID
	b.thread = nil
	for _, m := range messages {
		if m.UnreadFor(userID) {
			m.Read = true
		}
		b.unread[m.ID] = false
		b.thread = UpsertMessage(b.thread, m)
	}
	if i := b.summaryIndex(conversationID); i >= 0 {
		b.summaries[i].UnreadCount = 0
	}
	thread := slices.Clone(b.thread)
	b.mu.Unlock()

	b.markRead(ctx, conversationID, userID)

	return thread, nil
}

// markRead tells the server a conversation was read without waiting for the
// answer.
func (b *Inbox) markRead(ctx context.Context, conversationID, userID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), markReadTimeout)
	b.pending.Add(1)
	go func() {
		defer b.pending.Done()
		defer cancel()
		if _, err := b.conversations.MarkConversationAsRead(ctx, conversationID, userID); err != nil {
			b.logger.Warn("Could not mark conversation read", "conversation_id", conversationID, "error", err.Error())
		}
	}()
}

// HandleEvent applies one realtime change. Changes the user cannot read and
// anything after Close are ignored.
func (b *Inbox) HandleEvent(evt realtime.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || b.userID == "" {
		return
	}
	if !evt.ReadableBy(domain.Principal{UserID: b.userID}) {
		return
	}

	switch {
	case slices.Contains(evt.Channels, b.messagesChannel):
		b.applyMessage(evt)
	case slices.Contains(evt.Channels, b.notificationsChannel):
		b.applyNotification(evt)
	}
}

func (b *Inbox) applyMessage(evt realtime.Event) {
	var m domain.Message
	if err := json.Unmarshal(evt.Payload, &m); err != nil || m.ID == "" || m.ConversationID == "" {
		b.logger.Warn("Ignoring malformed message event", "events", evt.Events)
		return
	}
	if m.SenderID != b.userID && m.ReceiverID != b.userID {
		return
	}

	if evt.Is("delete") {
		b.thread = slices.DeleteFunc(slices.Clone(b.thread), func(cur domain.Message) bool { return cur.ID == m.ID })
		if b.unread[m.ID] {
			b.summaries = ApplyMessage(b.summaries, domain.Message{ConversationID: m.ConversationID}, b.userID, -1)
		}
		delete(b.unread, m.ID)
		return
	}

	if m.ConversationID == b.selected && m.UnreadFor(b.userID) {
		// The open conversation is read as it arrives.
		m.Read = true
		b.markRead(repository.WithUser(context.Background(), b.userID), m.ConversationID, b.userID)
	}
	was := b.unread[m.ID]
	now := m.UnreadFor(b.userID)
	delta := 0
	switch {
	case now && !was:
		delta = 1
	case !now && was:
		delta = -1
	}
	b.unread[m.ID] = now
	b.summaries = ApplyMessage(b.summaries, m, b.userID, delta)

	if m.ConversationID == b.selected {
		b.thread = UpsertMessage(b.thread, m)
	}
}

// applyNotification moves the shared unread notification count. Only
// notifications this inbox has seen created are counted down again.
func (b *Inbox) applyNotification(evt realtime.Event) {
	var n domain.Notification
	if err := json.Unmarshal(evt.Payload, &n); err != nil || n.ID == "" {
		b.logger.Warn("Ignoring malformed notification event", "events", evt.Events)
		return
	}
	if n.UserID != b.userID {
		return
	}

	counted, known := b.notified[n.ID]
	unread := n.Status == domain.StatusUnread && !evt.Is("delete")
	switch {
	case evt.Is("create") && !known && unread:
		b.notified[n.ID] = true
		b.state.IncrementNotificationCount(1)
	case known && counted && !unread:
		b.notified[n.ID] = false
		b.state.IncrementNotificationCount(-1)
	case known && !counted && unread:
		b.notified[n.ID] = true
		b.state.IncrementNotificationCount(1)
	}
}

func (b *Inbox) summaryIndex(conversationID string) int {
	return slices.IndexFunc(b.summaries, func(s domain.ConversationSummary) bool {
		return s.ConversationID == conversationID
	})
}

// Summaries returns the current conversation list, newest first.
func (b *Inbox) Summaries() []domain.ConversationSummary {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.summaries)
}

// Thread returns the open conversation's messages, oldest first.
func (b *Inbox) Thread() []domain.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.thread)
}

// Close stops event processing. Mark-as-read calls already issued still
// complete.
func (b *Inbox) Close() {
	b.mu.Lock()
	b.closed = true
	unsubscribe := b.unsubscribe
	b.unsubscribe = nil
	b.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// Wait blocks until issued mark-as-read calls finish.
func (b *Inbox) Wait() {
	b.pending.Wait()
}
