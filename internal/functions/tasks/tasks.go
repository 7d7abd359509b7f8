// Package tasks holds the server-side functions the host runs: notification
// delivery and the lease and rent sweeps.
package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/vedran77/rentals/internal/config"
	"github.com/vedran77/rentals/internal/domain"
	"github.com/vedran77/rentals/internal/functions"
	"github.com/vedran77/rentals/internal/functions/host"
	"github.com/vedran77/rentals/internal/repository"
	"github.com/vedran77/rentals/internal/service"
	"github.com/vedran77/rentals/pkg/validator"
)

// sweepLimit caps the documents one sweep looks at.
const sweepLimit = 500

type Tasks struct {
	store       repository.DocumentStore
	collections config.Collections
	logger      *slog.Logger

	// EnablePayments turns on the rent overdue sweep.
	EnablePayments bool
	Now            func() time.Time
}

func New(store repository.DocumentStore, collections config.Collections, logger *slog.Logger) *Tasks {
	return &Tasks{
		store:       store,
		collections: collections,
		logger:      logger,
		Now:         time.Now,
	}
}

// Register adds every task to h.
func (t *Tasks) Register(h *host.Host) {
	h.Register(functions.SendNotification, t.SendNotification)
	h.Register(functions.LeaseExpiryReminder, t.LeaseExpiryReminder)
	h.Register(functions.RentOverdueChecker, t.RentOverdueChecker)
}

// SendNotification persists a notification when asked to and hands external
// channels to their dispatchers.
func (t *Tasks) SendNotification(ctx context.Context, payload json.RawMessage) (any, error) {
	var req functions.SendNotificationRequest
	if err := decodePayload(payload, &req); err != nil {
		return nil, err
	}

	n, err := service.NormalizeNotification(service.CreateNotificationInput{
		UserID:     req.UserID,
		Type:       req.Type,
		Title:      req.Title,
		Body:       req.Body,
		Channels:   req.Channels,
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
	}, t.Now())
	if err != nil {
		return nil, err
	}

	id := req.NotificationID
	if id != "" {
		if id, err = validator.EnsureSafeID("notification_id", id, 0); err != nil {
			return nil, domain.Validationf("%v", err)
		}
	}

	persist := req.PersistInApp == nil || *req.PersistInApp
	if persist {
		doc, err := t.store.Create(ctx, t.collections.Notifications, id, n, domain.NotificationPermissions(n.UserID))
		if err != nil {
			return nil, fmt.Errorf("persisting notification: %w", err)
		}
		id = doc.ID
	}

	for _, ch := range n.Channels {
		if ch == domain.ChannelInApp {
			continue
		}
		// TODO: dispatch email and push once a provider is configured.
		t.logger.Info("External channel dispatch skipped", "user_id", n.UserID, "channel", ch, "notification_id", id)
	}

	return functions.SendNotificationResponse{
		OK:             true,
		Message:        "Notification processed.",
		NotificationID: id,
		PersistedInApp: persist,
		Channels:       n.Channels,
	}, nil
}

type LeaseReminderRequest struct {
	DaysAhead int `json:"days_ahead"`
}

type LeaseReminderResponse struct {
	OK               bool `json:"ok"`
	DaysAhead        int  `json:"days_ahead"`
	RemindersCreated int  `json:"reminders_created"`
}

// LeaseExpiryReminder notifies both parties of every active lease that ends
// within the next DaysAhead days.
func (t *Tasks) LeaseExpiryReminder(ctx context.Context, payload json.RawMessage) (any, error) {
	var req LeaseReminderRequest
	if err := decodePayload(payload, &req); err != nil {
		return nil, err
	}
	days := req.DaysAhead
	if days == 0 {
		days = 14
	}
	days = min(90, max(1, days))

	list, err := t.store.List(ctx, t.collections.Leases, repository.Query{
		Filters: []repository.Filter{repository.Equal("status", "active")},
		Order:   repository.OrderCreatedAsc,
		Limit:   sweepLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("listing leases: %w", err)
	}

	now := t.Now()
	window := now.AddDate(0, 0, days)
	created := 0

	for i := range list.Documents {
		var lease domain.Lease
		if err := list.Documents[i].Decode(&lease); err != nil {
			t.logger.Warn("Skipping unreadable lease", "lease_id", list.Documents[i].ID, "error", err.Error())
			continue
		}
		if lease.EndDate.IsZero() || lease.EndDate.Before(now) || lease.EndDate.After(window) {
			continue
		}

		body := fmt.Sprintf("Your lease is ending on %s. Please review renewal options.", lease.EndDate.Format("01/02/2006"))
		for _, userID := range []string{lease.TenantID, lease.LandlordID} {
			if userID == "" {
				continue
			}
			if err := t.notify(ctx, userID, domain.NotificationLeaseExpiry, "Lease expiry reminder", body, "lease", lease.ID); err != nil {
				return nil, err
			}
			created++
		}
	}

	t.logger.Info("Lease reminders created", "days_ahead", days, "reminders_created", created)
	return LeaseReminderResponse{OK: true, DaysAhead: days, RemindersCreated: created}, nil
}

type OverdueCheckRequest struct {
	GracePeriodDays int `json:"grace_period_days"`
}

type OverdueCheckResponse struct {
	OK              bool `json:"ok"`
	GracePeriodDays int  `json:"grace_period_days"`
	UpdatedCount    int  `json:"updated_count"`
}

// RentOverdueChecker marks unpaid payments past their due date plus the grace
// period as overdue and tells the tenant.
func (t *Tasks) RentOverdueChecker(ctx context.Context, payload json.RawMessage) (any, error) {
	if !t.EnablePayments {
		return nil, &host.StatusError{Code: http.StatusGone, Message: "Rent overdue checks are currently disabled in this deployment."}
	}

	var req OverdueCheckRequest
	if err := decodePayload(payload, &req); err != nil {
		return nil, err
	}
	grace := min(30, max(0, req.GracePeriodDays))

	list, err := t.store.List(ctx, t.collections.Payments, repository.Query{
		Filters: []repository.Filter{repository.In("status", domain.PaymentPending, domain.PaymentProcessing, domain.PaymentOverdue)},
		Order:   repository.OrderCreatedAsc,
		Limit:   sweepLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("listing payments: %w", err)
	}

	now := t.Now()
	updated := 0

	for i := range list.Documents {
		var payment domain.Payment
		if err := list.Documents[i].Decode(&payment); err != nil {
			t.logger.Warn("Skipping unreadable payment", "payment_id", list.Documents[i].ID, "error", err.Error())
			continue
		}
		if payment.DueDate.IsZero() || payment.DueDate.AddDate(0, 0, grace).After(now) {
			continue
		}

		if _, err := t.store.Update(ctx, t.collections.Payments, payment.ID, map[string]any{"status": domain.PaymentOverdue}, nil); err != nil {
			return nil, fmt.Errorf("marking payment %s overdue: %w", payment.ID, err)
		}
		if payment.TenantID != "" {
			err := t.notify(ctx, payment.TenantID, domain.NotificationPaymentOverdue, "Rent payment overdue",
				"Your rent payment is overdue. Please complete payment as soon as possible.", "payment", payment.ID)
			if err != nil {
				return nil, err
			}
		}
		updated++
	}

	t.logger.Info("Overdue payments updated", "grace_period_days", grace, "updated_count", updated)
	return OverdueCheckResponse{OK: true, GracePeriodDays: grace, UpdatedCount: updated}, nil
}

func (t *Tasks) notify(ctx context.Context, userID string, typ domain.NotificationType, title, body, entityType, entityID string) error {
	n, err := service.NormalizeNotification(service.CreateNotificationInput{
		UserID:     userID,
		Type:       typ,
		Title:      title,
		Body:       body,
		EntityType: &entityType,
		EntityID:   &entityID,
	}, t.Now())
	if err != nil {
		return err
	}
	if _, err := t.store.Create(ctx, t.collections.Notifications, "", n, domain.NotificationPermissions(userID)); err != nil {
		return fmt.Errorf("creating %s notification: %w", typ, err)
	}
	return nil
}

// decodePayload accepts an empty or null payload as the zero value.
func decodePayload(payload json.RawMessage, v any) error {
	if len(payload) == 0 || string(payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return domain.Validationf("payload is not valid JSON for this function")
	}
	return nil
}

// Jobs returns the interval sweeps configured in cfg.
func Jobs(cfg *config.Config) []host.Job {
	jobs := []host.Job{
		{Function: functions.LeaseExpiryReminder, Every: cfg.ReminderInterval},
	}
	if cfg.EnablePayments {
		jobs = append(jobs, host.Job{Function: functions.RentOverdueChecker, Every: cfg.OverdueInterval})
	}
	return jobs
}
