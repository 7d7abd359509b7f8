package domain

import (
	"slices"
	"time"
)

type NotificationType string

const (
	NotificationApplicationNew       NotificationType = "application_new"
	NotificationApplicationAccepted  NotificationType = "application_accepted"
	NotificationApplicationRejected  NotificationType = "application_rejected"
	NotificationLeaseSignatureNeeded NotificationType = "lease_signature_needed"
	NotificationLeaseSigned          NotificationType = "lease_signed"
	NotificationPaymentRequest       NotificationType = "payment_request"
	NotificationPaymentConfirmed     NotificationType = "payment_confirmed"
	NotificationPaymentOverdue       NotificationType = "payment_overdue"
	NotificationLeaseExpiry          NotificationType = "lease_expiry"
	NotificationMaintenanceNew       NotificationType = "maintenance_new"
	NotificationMaintenanceUpdated   NotificationType = "maintenance_updated"
	NotificationMessageNew           NotificationType = "message_new"
)

var notificationTypes = []NotificationType{
	NotificationApplicationNew,
	NotificationApplicationAccepted,
	NotificationApplicationRejected,
	NotificationLeaseSignatureNeeded,
	NotificationLeaseSigned,
	NotificationPaymentRequest,
	NotificationPaymentConfirmed,
	NotificationPaymentOverdue,
	NotificationLeaseExpiry,
	NotificationMaintenanceNew,
	NotificationMaintenanceUpdated,
	NotificationMessageNew,
}

// Valid reports whether t belongs to the closed set of notification kinds.
func (t NotificationType) Valid() bool {
	return slices.Contains(notificationTypes, t)
}

type NotificationStatus string

const (
	StatusUnread   NotificationStatus = "unread"
	StatusRead     NotificationStatus = "read"
	StatusArchived NotificationStatus = "archived"
)

func (s NotificationStatus) Valid() bool {
	return s == StatusUnread || s == StatusRead || s == StatusArchived
}

// ChannelInApp is the default delivery channel.
const ChannelInApp = "in_app"

type Notification struct {
	ID         string             `json:"id"`
	UserID     string             `json:"user_id"`
	Type       NotificationType   `json:"type"`
	Title      string             `json:"title"`
	Body       string             `json:"body"`
	Channels   []string           `json:"channels"`
	Status     NotificationStatus `json:"status"`
	EntityType *string            `json:"entity_type,omitempty"`
	EntityID   *string            `json:"entity_id,omitempty"`
	SentAt     time.Time          `json:"sent_at"`
	CreatedAt  time.Time          `json:"created_at"`
}
