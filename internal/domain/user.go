package domain

import "time"

type AccountRole string

const (
	AccountTenant   AccountRole = "tenant"
	AccountLandlord AccountRole = "landlord"
)

type User struct {
	ID          string      `json:"id"`
	Email       string      `json:"email"`
	DisplayName string      `json:"display_name"`
	Role        AccountRole `json:"role"`
	CreatedAt   time.Time   `json:"created_at"`
}

