package dto

import (
	"time"

	"github.com/Additional-Code/loom/internal/entity"
)

// CustomerRequest is the body of POST and PUT /customers. On update only
// the fields present are changed.
type CustomerRequest struct {
	Name            *string `json:"name"`
	ContactPerson   *string `json:"contactPerson"`
	Email           *string `json:"email"`
	Phone           *string `json:"phone"`
	BillingAddress  *string `json:"billingAddress"`
	ShippingAddress *string `json:"shippingAddress"`
	Status          *string `json:"status"`
	Notes           *string `json:"notes"`
}

// CustomerResponse represents a customer as exposed via transport layers.
type CustomerResponse struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	ContactPerson   string    `json:"contactPerson"`
	Email           string    `json:"email"`
	Phone           string    `json:"phone"`
	BillingAddress  string    `json:"billingAddress"`
	ShippingAddress string    `json:"shippingAddress"`
	Status          string    `json:"status"`
	Notes           string    `json:"notes"`
	CreatedBy       string    `json:"createdBy"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Customer maps an entity to its response.
func Customer(c *entity.Customer) CustomerResponse {
	return CustomerResponse{
		ID:              c.ID,
		Name:            c.Name,
		ContactPerson:   c.ContactPerson,
		Email:           c.Email,
		Phone:           c.Phone,
		BillingAddress:  c.BillingAddress,
		ShippingAddress: c.ShippingAddress,
		Status:          c.Status,
		Notes:           c.Notes,
		CreatedBy:       c.CreatedBy,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

// Customers maps a list of customers.
func Customers(rows []*entity.Customer) []CustomerResponse {
	out := make([]CustomerResponse, 0, len(rows))
	for _, c := range rows {
		out = append(out, Customer(c))
	}
	return out
}
