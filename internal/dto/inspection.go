package dto

import (
	"time"

	"github.com/Additional-Code/loom/internal/entity"
)

// InspectionRequest is the body of POST /work-orders/:id/inspections.
type InspectionRequest struct {
	SampleSize  int        `json:"sampleSize"`
	DefectCount int        `json:"defectCount"`
	Result      string     `json:"result"`
	Notes       string     `json:"notes"`
	InspectedAt *time.Time `json:"inspectedAt"`
}

// InspectionResponse represents a QC inspection.
type InspectionResponse struct {
	ID              string    `json:"id"`
	Number          string    `json:"number"`
	WorkOrderID     string    `json:"workOrderId"`
	WorkOrderNumber string    `json:"workOrderNumber,omitempty"`
	Inspector       string    `json:"inspector"`
	SampleSize      int       `json:"sampleSize"`
	DefectCount     int       `json:"defectCount"`
	DefectRate      float64   `json:"defectRate"`
	Result          string    `json:"result"`
	Notes           string    `json:"notes"`
	HasReport       bool      `json:"hasReport"`
	InspectedAt     time.Time `json:"inspectedAt"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Inspection maps an inspection.
func Inspection(qc *entity.Inspection) InspectionResponse {
	out := InspectionResponse{
		ID:          qc.ID,
		Number:      qc.Number,
		WorkOrderID: qc.WorkOrderID,
		Inspector:   qc.Inspector,
		SampleSize:  qc.SampleSize,
		DefectCount: qc.DefectCount,
		Result:      qc.Result,
		Notes:       qc.Notes,
		HasReport:   qc.ReportKey != nil,
		InspectedAt: qc.InspectedAt,
		CreatedAt:   qc.CreatedAt,
	}
	if qc.SampleSize > 0 {
		out.DefectRate = float64(qc.DefectCount) / float64(qc.SampleSize)
	}
	if qc.WorkOrder != nil {
		out.WorkOrderNumber = qc.WorkOrder.Number
	}
	return out
}

// Inspections maps a list of inspections.
func Inspections(rows []*entity.Inspection) []InspectionResponse {
	out := make([]InspectionResponse, 0, len(rows))
	for _, qc := range rows {
		out = append(out, Inspection(qc))
	}
	return out
}
