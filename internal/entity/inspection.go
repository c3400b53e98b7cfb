package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// Inspection results.
const (
	InspectionPassed      = "passed"
	InspectionFailed      = "failed"
	InspectionConditional = "conditional"
)

// Inspection is a quality-control check recorded against a work order.
type Inspection struct {
	bun.BaseModel `bun:"table:inspections,alias:qc"`

	ID          string    `bun:"id,pk"`
	Number      string    `bun:"number,notnull"`
	WorkOrderID string    `bun:"work_order_id,notnull"`
	Inspector   string    `bun:"inspector,notnull"`
	SampleSize  int       `bun:"sample_size,notnull"`
	DefectCount int       `bun:"defect_count,notnull"`
	Result      string    `bun:"result,notnull"`
	Notes       string    `bun:"notes"`
	ReportKey   *string   `bun:"report_key"`
	InspectedAt time.Time `bun:"inspected_at,notnull"`
	CreatedAt   time.Time `bun:"created_at,notnull"`

	WorkOrder *WorkOrder `bun:"rel:belongs-to,join:work_order_id=id"`
}

// ValidInspectionResult reports whether r is a known result.
func ValidInspectionResult(r string) bool {
	switch r {
	case InspectionPassed, InspectionFailed, InspectionConditional:
		return true
	}
	return false
}
