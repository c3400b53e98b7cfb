package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Additional-Code/loom/internal/entity"
)

// MaterialPayload is one material line of a sample request.
type MaterialPayload struct {
	ID           string          `json:"id,omitempty"`
	MaterialName string          `json:"materialName"`
	Category     string          `json:"category"`
	Quantity     decimal.Decimal `json:"quantity"`
	Unit         string          `json:"unit"`
}

// StagePayload is one planned process stage of a sample request.
type StagePayload struct {
	ID       string `json:"id,omitempty"`
	Stage    string `json:"stage"`
	Sequence int    `json:"sequence"`
	Notes    string `json:"notes"`
}

// SampleRequest is the body of POST and PUT /samples. On update only the
// fields present are changed; materials and stages replace the whole list.
type SampleRequest struct {
	CustomerID  *string            `json:"customerId"`
	Name        *string            `json:"name"`
	Description *string            `json:"description"`
	Color       *string            `json:"color"`
	Quantity    *int               `json:"quantity"`
	Notes       *string            `json:"notes"`
	Materials   *[]MaterialPayload `json:"materials"`
	Stages      *[]StagePayload    `json:"stages"`
}

// SampleResponse represents a sample request as exposed via transport layers.
type SampleResponse struct {
	ID          string            `json:"id"`
	Number      string            `json:"number"`
	CustomerID  string            `json:"customerId"`
	Customer    *CustomerRef      `json:"customer,omitempty"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Color       string            `json:"color"`
	Quantity    int               `json:"quantity"`
	Notes       string            `json:"notes"`
	Status      string            `json:"status"`
	CreatedBy   string            `json:"createdBy"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
	Materials   []MaterialPayload `json:"materials,omitempty"`
	Stages      []StagePayload    `json:"stages,omitempty"`
	History     []HistoryResponse `json:"history,omitempty"`
}

// Sample maps a sample request and, when given, its history.
func Sample(s *entity.SampleRequest, history []*entity.StatusHistory) SampleResponse {
	out := SampleResponse{
		ID:          s.ID,
		Number:      s.Number,
		CustomerID:  s.CustomerID,
		Customer:    customerRef(s.Customer),
		Name:        s.Name,
		Description: s.Description,
		Color:       s.Color,
		Quantity:    s.Quantity,
		Notes:       s.Notes,
		Status:      s.Status,
		CreatedBy:   s.CreatedBy,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
	for _, m := range s.Materials {
		out.Materials = append(out.Materials, MaterialPayload{
			ID:           m.ID,
			MaterialName: m.MaterialName,
			Category:     m.Category,
			Quantity:     m.Quantity,
			Unit:         m.Unit,
		})
	}
	for _, st := range s.Stages {
		out.Stages = append(out.Stages, StagePayload{ID: st.ID, Stage: st.Stage, Sequence: st.Sequence, Notes: st.Notes})
	}
	if history != nil {
		out.History = History(history)
	}
	return out
}

// Samples maps a list of sample requests.
func Samples(rows []*entity.SampleRequest) []SampleResponse {
	out := make([]SampleResponse, 0, len(rows))
	for _, s := range rows {
		out = append(out, Sample(s, nil))
	}
	return out
}
