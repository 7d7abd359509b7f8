package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vedran77/rentals/internal/domain"
	"github.com/vedran77/rentals/internal/repository"
	"github.com/vedran77/rentals/pkg/validator"
	"golang.org/x/sync/errgroup"
)

const (
	MessageBatchLimit = 200
	MaxMessageLength  = 5000

	// notifyTimeout bounds best-effort side effects that outlive the request.
	notifyTimeout = 10 * time.Second
)

// NotificationCreator is the part of the notification dispatcher other
// services depend on.
type NotificationCreator interface {
	CreateNotification(ctx context.Context, in CreateNotificationInput) (*domain.Notification, error)
}

type MessagingService struct {
	store      repository.DocumentStore
	collection string
	notifier   NotificationCreator
	logger     *slog.Logger

	background sync.WaitGroup
}

func NewMessagingService(store repository.DocumentStore, collection string, logger *slog.Logger) *MessagingService {
	return &MessagingService{
		store:      store,
		collection: collection,
		logger:     logger,
	}
}

func (s *MessagingService) SetNotifier(n NotificationCreator) {
	s.notifier = n
}

// Wait blocks until background notifications started by SendMessage finish.
func (s *MessagingService) Wait() {
	s.background.Wait()
}

// SendMessage persists a message from sender to receiver about a listing and
// notifies the receiver without waiting for the notification.
func (s *MessagingService) SendMessage(ctx context.Context, listingID, senderID, receiverID, body string) (*domain.Message, error) {
	listingID, err := validator.EnsureSafeID("listing_id", listingID, 0)
	if err != nil {
		return nil, domain.Validationf("%v", err)
	}
	senderID, err = validator.EnsureSafeID("sender_id", senderID, 0)
	if err != nil {
		return nil, domain.Validationf("%v", err)
	}
	receiverID, err = validator.EnsureSafeID("receiver_id", receiverID, 0)
	if err != nil {
		return nil, domain.Validationf("%v", err)
	}
	if senderID == receiverID {
		return nil, domain.ErrCannotMessageSelf
	}

	text := validator.SanitizeText(body, MaxMessageLength, true)
	if text == "" {
		return nil, domain.ErrEmptyMessage
	}

	conversationID, err := ConversationID(listingID, senderID, receiverID)
	if err != nil {
		return nil, err
	}

	msg := domain.Message{
		ConversationID: conversationID,
		ListingID:      listingID,
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Body:           text,
		Read:           false,
	}
	doc, err := s.store.Create(ctx, s.collection, "", msg, domain.MessagePermissions(senderID, receiverID))
	if err != nil {
		return nil, fmt.Errorf("creating message: %w", err)
	}

	created, err := decodeDocument[domain.Message](doc)
	if err != nil {
		return nil, err
	}

	s.notifyReceiver(ctx, created)

	return created, nil
}

func (s *MessagingService) notifyReceiver(ctx context.Context, msg *domain.Message) {
	if s.notifier == nil {
		return
	}

	entityType := "conversation"
	entityID := msg.ConversationID
	in := CreateNotificationInput{
		UserID:     msg.ReceiverID,
		Type:       domain.NotificationMessageNew,
		Title:      "New message",
		Body:       msg.Body,
		EntityType: &entityType,
		EntityID:   &entityID,
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		defer cancel()
		if _, err := s.notifier.CreateNotification(ctx, in); err != nil {
			s.logger.Warn("Could not notify message receiver",
				"message_id", msg.ID, "receiver_id", msg.ReceiverID, "error", err.Error())
		}
	}()
}

// ListUserConversations returns one summary per conversation the user takes
// part in, newest first.
func (s *MessagingService) ListUserConversations(ctx context.Context, userID string) ([]domain.ConversationSummary, error) {
	userID, err := validator.EnsureSafeID("user_id", userID, 0)
	if err != nil {
		return nil, domain.Validationf("%v", err)
	}

	var sent, received *repository.DocumentList
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sent, err = s.store.List(gctx, s.collection, repository.Query{
			Filters: []repository.Filter{repository.Equal("sender_id", userID)},
			Order:   repository.OrderCreatedDesc,
			Limit:   MessageBatchLimit,
		})
		return err
	})
	g.Go(func() error {
		var err error
		received, err = s.store.List(gctx, s.collection, repository.Query{
			Filters: []repository.Filter{repository.Equal("receiver_id", userID)},
			Order:   repository.OrderCreatedDesc,
			Limit:   MessageBatchLimit,
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}

	seen := make(map[string]struct{})
	var docs []repository.Document
	for _, doc := range append(sent.Documents, received.Documents...) {
		if _, ok := seen[doc.ID]; ok {
			continue
		}
		seen[doc.ID] = struct{}{}
		docs = append(docs, doc)
	}

	messages, err := decodeDocuments[domain.Message](docs)
	if err != nil {
		return nil, err
	}
	return SummarizeConversations(messages, userID), nil
}

// ListConversationMessages returns a conversation's messages, oldest first.
func (s *MessagingService) ListConversationMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	if conversationID == "" {
		return nil, domain.Validationf("conversation_id is required")
	}

	list, err := s.store.List(ctx, s.collection, repository.Query{
		Filters: []repository.Filter{repository.Equal("conversation_id", conversationID)},
		Order:   repository.OrderCreatedAsc,
		Limit:   MessageBatchLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("listing conversation messages: %w", err)
	}
	return decodeDocuments[domain.Message](list.Documents)
}

// MarkConversationAsRead marks every unread message the user received in the
// conversation as read and returns how many were updated.
func (s *MessagingService) MarkConversationAsRead(ctx context.Context, conversationID, userID string) (int, error) {
	if conversationID == "" {
		return 0, domain.Validationf("conversation_id is required")
	}
	userID, err := validator.EnsureSafeID("user_id", userID, 0)
	if err != nil {
		return 0, domain.Validationf("%v", err)
	}

	unread, err := s.store.List(ctx, s.collection, repository.Query{
		Filters: []repository.Filter{
			repository.Equal("conversation_id", conversationID),
			repository.Equal("receiver_id", userID),
			repository.Equal("read", false),
		},
		Limit: MessageBatchLimit,
	})
	if err != nil {
		return 0, fmt.Errorf("listing unread messages: %w", err)
	}
	if len(unread.Documents) == 0 {
		return 0, nil
	}

	ids := make([]string, len(unread.Documents))
	for i, doc := range unread.Documents {
		ids[i] = doc.ID
	}
	if err := updateAll(ctx, s.store, s.collection, ids, map[string]any{"read": true}); err != nil {
		return 0, fmt.Errorf("marking messages read: %w", err)
	}
	return len(unread.Documents), nil
}

// updateAll applies patch to every document concurrently.
func updateAll(ctx context.Context, store repository.DocumentStore, collection string, ids []string, patch map[string]any) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(16)
	for _, id := range ids {
		g.Go(func() error {
			_, err := store.Update(gctx, collection, id, patch, nil)
			return err
		})
	}
	return g.Wait()
}
