package domain

import "time"

type ApplicationStatus string

const (
	ApplicationPending   ApplicationStatus = "pending"
	ApplicationAccepted  ApplicationStatus = "accepted"
	ApplicationRejected  ApplicationStatus = "rejected"
	ApplicationWithdrawn ApplicationStatus = "withdrawn"
)

// ActiveApplicationStatuses block a second application for the same listing.
var ActiveApplicationStatuses = []ApplicationStatus{ApplicationPending, ApplicationAccepted}

type Application struct {
	ID               string            `json:"id"`
	ListingID        string            `json:"listing_id"`
	TenantID         string            `json:"tenant_id"`
	LandlordID       string            `json:"landlord_id"`
	Status           ApplicationStatus `json:"status"`
	MoveInDate       *time.Time        `json:"move_in_date,omitempty"`
	CoverNote        string            `json:"cover_note"`
	TenantDocFileIDs []string          `json:"tenant_doc_file_ids"`
	CreatedAt        time.Time         `json:"created_at"`
}

type Lease struct {
	ID         string    `json:"id"`
	ListingID  string    `json:"listing_id"`
	TenantID   string    `json:"tenant_id"`
	LandlordID string    `json:"landlord_id"`
	Status     string    `json:"status"`
	EndDate    time.Time `json:"end_date"`
}

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentOverdue    PaymentStatus = "overdue"
	PaymentPaid       PaymentStatus = "paid"
)

type Payment struct {
	ID        string        `json:"id"`
	LeaseID   string        `json:"lease_id"`
	TenantID  string        `json:"tenant_id"`
	Status    PaymentStatus `json:"status"`
	DueDate   time.Time     `json:"due_date"`
	UpdatedAt *time.Time    `json:"updated_at,omitempty"`
}
