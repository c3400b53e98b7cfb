package dto

import (
	"time"

	"github.com/Additional-Code/loom/internal/entity"
)

// WorkOrderRequest is the body of POST and PUT /work-orders.
type WorkOrderRequest struct {
	CustomerID   *string `json:"customerId"`
	SalesOrderID *string `json:"salesOrderId"`
	Name         *string `json:"name"`
	Description  *string `json:"description"`
	Color        *string `json:"color"`
	Quantity     *int    `json:"quantity"`
	Notes        *string `json:"notes"`
	DueDate      *Date   `json:"dueDate"`
}

// WorkOrderResponse represents a work order as exposed via transport layers.
type WorkOrderResponse struct {
	ID           string               `json:"id"`
	Number       string               `json:"number"`
	CustomerID   string               `json:"customerId"`
	Customer     *CustomerRef         `json:"customer,omitempty"`
	SalesOrderID *string              `json:"salesOrderId"`
	Name         string               `json:"name"`
	Description  string               `json:"description"`
	Color        string               `json:"color"`
	Quantity     int                  `json:"quantity"`
	Notes        string               `json:"notes"`
	Status       string               `json:"status"`
	DueDate      *string              `json:"dueDate"`
	CreatedBy    string               `json:"createdBy"`
	CreatedAt    time.Time            `json:"createdAt"`
	UpdatedAt    time.Time            `json:"updatedAt"`
	Inspections  []InspectionResponse `json:"inspections,omitempty"`
	History      []HistoryResponse    `json:"history,omitempty"`
}

// WorkOrder maps a work order and, when given, its history.
func WorkOrder(wo *entity.WorkOrder, history []*entity.StatusHistory) WorkOrderResponse {
	out := WorkOrderResponse{
		ID:           wo.ID,
		Number:       wo.Number,
		CustomerID:   wo.CustomerID,
		Customer:     customerRef(wo.Customer),
		SalesOrderID: wo.SalesOrderID,
		Name:         wo.Name,
		Description:  wo.Description,
		Color:        wo.Color,
		Quantity:     wo.Quantity,
		Notes:        wo.Notes,
		Status:       wo.Status,
		DueDate:      dateString(wo.DueDate),
		CreatedBy:    wo.CreatedBy,
		CreatedAt:    wo.CreatedAt,
		UpdatedAt:    wo.UpdatedAt,
	}
	for _, qc := range wo.Inspections {
		out.Inspections = append(out.Inspections, Inspection(qc))
	}
	if history != nil {
		out.History = History(history)
	}
	return out
}

// WorkOrders maps a list of work orders.
func WorkOrders(rows []*entity.WorkOrder) []WorkOrderResponse {
	out := make([]WorkOrderResponse, 0, len(rows))
	for _, wo := range rows {
		out = append(out, WorkOrder(wo, nil))
	}
	return out
}
