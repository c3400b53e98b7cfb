package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Additional-Code/loom/internal/entity"
)

// SalesOrderItemPayload is one garment line of a sales order.
type SalesOrderItemPayload struct {
	ID          string          `json:"id,omitempty"`
	Style       string          `json:"style"`
	Description string          `json:"description"`
	Color       string          `json:"color"`
	Size        string          `json:"size"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	LineTotal   decimal.Decimal `json:"lineTotal"`
}

// SalesOrderRequest is the body of POST and PUT /sales-orders.
type SalesOrderRequest struct {
	CustomerID   *string                  `json:"customerId"`
	OrderDate    *Date                    `json:"orderDate"`
	DeliveryDate *Date                    `json:"deliveryDate"`
	Currency     *string                  `json:"currency"`
	Notes        *string                  `json:"notes"`
	Items        *[]SalesOrderItemPayload `json:"items"`
}

// SalesOrderResponse represents a sales order as exposed via transport layers.
type SalesOrderResponse struct {
	ID           string                  `json:"id"`
	Number       string                  `json:"number"`
	CustomerID   string                  `json:"customerId"`
	Customer     *CustomerRef            `json:"customer,omitempty"`
	OrderDate    string                  `json:"orderDate"`
	DeliveryDate *string                 `json:"deliveryDate"`
	Currency     string                  `json:"currency"`
	TotalAmount  decimal.Decimal         `json:"totalAmount"`
	Notes        string                  `json:"notes"`
	Status       string                  `json:"status"`
	CreatedBy    string                  `json:"createdBy"`
	CreatedAt    time.Time               `json:"createdAt"`
	UpdatedAt    time.Time               `json:"updatedAt"`
	Items        []SalesOrderItemPayload `json:"items,omitempty"`
	History      []HistoryResponse       `json:"history,omitempty"`
}

// SalesOrder maps a sales order and, when given, its history.
func SalesOrder(o *entity.SalesOrder, history []*entity.StatusHistory) SalesOrderResponse {
	out := SalesOrderResponse{
		ID:           o.ID,
		Number:       o.Number,
		CustomerID:   o.CustomerID,
		Customer:     customerRef(o.Customer),
		OrderDate:    o.OrderDate.Format(DateLayout),
		DeliveryDate: dateString(o.DeliveryDate),
		Currency:     o.Currency,
		TotalAmount:  o.TotalAmount,
		Notes:        o.Notes,
		Status:       o.Status,
		CreatedBy:    o.CreatedBy,
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
	}
	for _, it := range o.Items {
		out.Items = append(out.Items, SalesOrderItemPayload{
			ID:          it.ID,
			Style:       it.Style,
			Description: it.Description,
			Color:       it.Color,
			Size:        it.Size,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			LineTotal:   it.LineTotal(),
		})
	}
	if history != nil {
		out.History = History(history)
	}
	return out
}

// SalesOrders maps a list of sales orders.
func SalesOrders(rows []*entity.SalesOrder) []SalesOrderResponse {
	out := make([]SalesOrderResponse, 0, len(rows))
	for _, o := range rows {
		out = append(out, SalesOrder(o, nil))
	}
	return out
}
