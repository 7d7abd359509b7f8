package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/rentals/internal/domain"
	"github.com/vedran77/rentals/internal/functions"
	"github.com/vedran77/rentals/internal/repository"
	"github.com/vedran77/rentals/pkg/validator"
)

const (
	MaxNotificationBatch = 100

	maxTitleLength      = 140
	maxBodyLength       = 1000
	maxChannels         = 4
	maxChannelLength    = 20
	maxEntityTypeLength = 40
	maxEntityIDLength   = 36
)

var errFunctionRejected = errors.New("notification function did not persist the notification")

type CreateNotificationInput struct {
	UserID     string                    `json:"user_id" validate:"required,safeid"`
	Type       domain.NotificationType   `json:"type" validate:"required"`
	Title      string                    `json:"title" validate:"required"`
	Body       string                    `json:"body" validate:"required"`
	Channels   []string                  `json:"channels"`
	Status     domain.NotificationStatus `json:"status"`
	EntityType *string                   `json:"entity_type"`
	EntityID   *string                   `json:"entity_id"`
}

// NotificationService persists notifications for a single recipient and hands
// multi-channel delivery to the notification function.
type NotificationService struct {
	store      repository.DocumentStore
	collection string
	executor   functions.Executor
	logger     *slog.Logger

	// Now is the clock used for sent_at and synthesized notifications.
	Now func() time.Time

	background sync.WaitGroup
}

func NewNotificationService(store repository.DocumentStore, collection string, logger *slog.Logger) *NotificationService {
	return &NotificationService{
		store:      store,
		collection: collection,
		logger:     logger,
		Now:        time.Now,
	}
}

// SetExecutor enables the privileged fallback and channel fan-out. Without an
// executor, permission errors on create are returned as they are.
func (s *NotificationService) SetExecutor(e functions.Executor) {
	s.executor = e
}

// Wait blocks until background fan-out calls finish.
func (s *NotificationService) Wait() {
	s.background.Wait()
}

// NormalizeNotification validates in and returns the notification to store.
func NormalizeNotification(in CreateNotificationInput, now time.Time) (*domain.Notification, error) {
	userID, err := validator.EnsureSafeID("user_id", in.UserID, 0)
	if err != nil {
		return nil, domain.Validationf("%v", err)
	}
	if !in.Type.Valid() {
		return nil, domain.ErrUnknownNotification
	}

	status := in.Status
	if status == "" {
		status = domain.StatusUnread
	}
	if !status.Valid() {
		return nil, domain.ErrInvalidStatus
	}

	title := validator.SanitizeText(in.Title, maxTitleLength, false)
	body := validator.SanitizeText(in.Body, maxBodyLength, true)
	if title == "" || body == "" {
		return nil, domain.Validationf("notification title and body are required")
	}

	channels := validator.SanitizeStringSlice(in.Channels, maxChannels, maxChannelLength)
	if len(channels) == 0 {
		channels = []string{domain.ChannelInApp}
	}

	n := &domain.Notification{
		UserID:    userID,
		Type:      in.Type,
		Title:     title,
		Body:      body,
		Channels:  channels,
		Status:    status,
		SentAt:    now.UTC(),
		CreatedAt: now.UTC(),
	}
	if in.EntityType != nil {
		if et := validator.SanitizeText(*in.EntityType, maxEntityTypeLength, false); et != "" {
			n.EntityType = &et
		}
	}
	if in.EntityID != nil && *in.EntityID != "" {
		id, err := validator.EnsureSafeID("entity_id", *in.EntityID, maxEntityIDLength)
		if err != nil {
			return nil, domain.Validationf("%v", err)
		}
		n.EntityID = &id
	}
	return n, nil
}

// CreateNotification stores a notification visible only to its recipient.
// When the caller may not grant access to the recipient, the notification
// function creates it with elevated privilege instead.
func (s *NotificationService) CreateNotification(ctx context.Context, in CreateNotificationInput) (*domain.Notification, error) {
	n, err := NormalizeNotification(in, s.Now())
	if err != nil {
		return nil, err
	}

	doc, err := s.store.Create(ctx, s.collection, "", n, domain.NotificationPermissions(n.UserID))
	if err != nil {
		if !domain.IsKind(err, domain.KindAuthorization) || s.executor == nil || !s.executor.Enabled() {
			return nil, fmt.Errorf("creating notification: %w", err)
		}

		created, ferr := s.createViaFunction(ctx, n)
		if ferr != nil {
			s.logger.Warn("Notification fallback failed", "user_id", n.UserID, "type", n.Type, "error", ferr.Error())
			return nil, fmt.Errorf("creating notification: %w", err)
		}
		return created, nil
	}

	created, err := decodeDocument[domain.Notification](doc)
	if err != nil {
		return nil, err
	}

	s.fanOut(ctx, created)

	return created, nil
}

func (s *NotificationService) createViaFunction(ctx context.Context, n *domain.Notification) (*domain.Notification, error) {
	persist := true
	exec, err := s.executor.Execute(ctx, functions.SendNotification, sendRequest(n, persist), false)
	if err != nil {
		return nil, err
	}
	if !exec.Executed() {
		return nil, fmt.Errorf("%w: execution %s", errFunctionRejected, exec.Status)
	}

	var resp functions.SendNotificationResponse
	if err := exec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("decoding notification function response: %w", err)
	}
	if !resp.OK {
		return nil, fmt.Errorf("%w: %s", errFunctionRejected, resp.Message)
	}

	created := *n
	created.ID = resp.NotificationID
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	return &created, nil
}

// fanOut asks the notification function to deliver n to external channels.
// Failures are logged only.
func (s *NotificationService) fanOut(ctx context.Context, n *domain.Notification) {
	if s.executor == nil || !s.executor.Enabled() {
		return
	}

	req := sendRequest(n, false)
	req.NotificationID = n.ID

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		defer cancel()
		if _, err := s.executor.Execute(ctx, functions.SendNotification, req, true); err != nil {
			s.logger.Warn("Notification fan-out failed", "notification_id", n.ID, "error", err.Error())
		}
	}()
}

func sendRequest(n *domain.Notification, persist bool) functions.SendNotificationRequest {
	return functions.SendNotificationRequest{
		UserID:       n.UserID,
		Type:         n.Type,
		Title:        n.Title,
		Body:         n.Body,
		Channels:     n.Channels,
		EntityType:   n.EntityType,
		EntityID:     n.EntityID,
		PersistInApp: &persist,
	}
}

// ListUserNotifications returns the user's notifications, newest first.
// status is "all" or "unread"; limit is clamped to 1..100.
func (s *NotificationService) ListUserNotifications(ctx context.Context, userID, status string, limit int) ([]domain.Notification, error) {
	userID, err := validator.EnsureSafeID("user_id", userID, 0)
	if err != nil {
		return nil, domain.Validationf("%v", err)
	}
	limit = min(MaxNotificationBatch, max(1, limit))

	filters := []repository.Filter{repository.Equal("user_id", userID)}
	switch status {
	case "", "all":
	case string(domain.StatusUnread):
		filters = append(filters, repository.Equal("status", domain.StatusUnread))
	default:
		return nil, domain.Validationf("status must be all or unread")
	}

	list, err := s.store.List(ctx, s.collection, repository.Query{
		Filters: filters,
		Order:   repository.OrderCreatedDesc,
		Limit:   limit,
	})
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	return decodeDocuments[domain.Notification](list.Documents)
}

func (s *NotificationService) CountUnreadNotifications(ctx context.Context, userID string) (int, error) {
	userID, err := validator.EnsureSafeID("user_id", userID, 0)
	if err != nil {
		return 0, domain.Validationf("%v", err)
	}

	list, err := s.store.List(ctx, s.collection, repository.Query{
		Filters: []repository.Filter{
			repository.Equal("user_id", userID),
			repository.Equal("status", domain.StatusUnread),
		},
		Limit: 1,
	})
	if err != nil {
		return 0, fmt.Errorf("counting notifications: %w", err)
	}
	return list.Total, nil
}

func (s *NotificationService) MarkNotificationAsRead(ctx context.Context, notificationID string) (*domain.Notification, error) {
	notificationID, err := validator.EnsureSafeID("notification_id", notificationID, 0)
	if err != nil {
		return nil, domain.Validationf("%v", err)
	}

	doc, err := s.store.Update(ctx, s.collection, notificationID, map[string]any{"status": domain.StatusRead}, nil)
	if err != nil {
		return nil, fmt.Errorf("marking notification read: %w", err)
	}
	return decodeDocument[domain.Notification](doc)
}

// MarkAllAsRead marks up to one batch of the user's unread notifications as
// read and returns how many were updated.
func (s *NotificationService) MarkAllAsRead(ctx context.Context, userID string) (int, error) {
	unread, err := s.ListUserNotifications(ctx, userID, string(domain.StatusUnread), MaxNotificationBatch)
	if err != nil {
		return 0, err
	}
	if len(unread) == 0 {
		return 0, nil
	}

	ids := make([]string, len(unread))
	for i, n := range unread {
		ids[i] = n.ID
	}
	if err := updateAll(ctx, s.store, s.collection, ids, map[string]any{"status": domain.StatusRead}); err != nil {
		return 0, fmt.Errorf("marking notifications read: %w", err)
	}
	return len(unread), nil
}
