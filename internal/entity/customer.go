package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// Customer statuses.
const (
	CustomerActive   = "active"
	CustomerInactive = "inactive"
	CustomerProspect = "prospect"
)

// Customer is a buyer of samples and production orders.
type Customer struct {
	bun.BaseModel `bun:"table:customers,alias:c"`

	ID              string    `bun:"id,pk"`
	Name            string    `bun:"name,notnull"`
	ContactPerson   string    `bun:"contact_person"`
	Email           string    `bun:"email,notnull"`
	Phone           string    `bun:"phone"`
	BillingAddress  string    `bun:"billing_address"`
	ShippingAddress string    `bun:"shipping_address"`
	Status          string    `bun:"status,notnull"`
	Notes           string    `bun:"notes"`
	CreatedBy       string    `bun:"created_by,notnull"`
	CreatedAt       time.Time `bun:"created_at,notnull"`
	UpdatedAt       time.Time `bun:"updated_at,notnull"`
}

// ValidCustomerStatus reports whether s is a known customer status.
func ValidCustomerStatus(s string) bool {
	switch s {
	case CustomerActive, CustomerInactive, CustomerProspect:
		return true
	}
	return false
}
