package entity

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Material categories used by sample material requirements.
var MaterialCategories = []string{"fabric", "trim", "accessory", "packaging", "other"}

// FinishingProcesses are process stages a sample may plan besides the
// production pipeline stages.
var FinishingProcesses = []string{"embroidery", "printing", "washing"}

// ValidMaterialCategory reports whether c is a known category.
func ValidMaterialCategory(c string) bool {
	return slices.Contains(MaterialCategories, c)
}

// SampleRequest is a customer's request for a pre-production garment sample.
type SampleRequest struct {
	bun.BaseModel `bun:"table:sample_requests,alias:sr"`

	ID          string    `bun:"id,pk"`
	Number      string    `bun:"number,notnull"`
	CustomerID  string    `bun:"customer_id,notnull"`
	Name        string    `bun:"name,notnull"`
	Description string    `bun:"description"`
	Color       string    `bun:"color"`
	Quantity    int       `bun:"quantity,notnull"`
	Notes       string    `bun:"notes"`
	Status      string    `bun:"status,notnull"`
	CreatedBy   string    `bun:"created_by,notnull"`
	CreatedAt   time.Time `bun:"created_at,notnull"`
	UpdatedAt   time.Time `bun:"updated_at,notnull"`

	Customer  *Customer              `bun:"rel:belongs-to,join:customer_id=id"`
	Materials []*MaterialRequirement `bun:"rel:has-many,join:id=sample_id"`
	Stages    []*ProcessStage        `bun:"rel:has-many,join:id=sample_id"`
}

// MaterialRequirement is a material line of a sample request.
type MaterialRequirement struct {
	bun.BaseModel `bun:"table:sample_materials,alias:sm"`

	ID           string          `bun:"id,pk"`
	SampleID     string          `bun:"sample_id,notnull"`
	MaterialName string          `bun:"material_name,notnull"`
	Category     string          `bun:"category,notnull"`
	Quantity     decimal.Decimal `bun:"quantity,type:numeric(12,3),notnull"`
	Unit         string          `bun:"unit"`
}

// ProcessStage is a production step a sample request goes through.
type ProcessStage struct {
	bun.BaseModel `bun:"table:sample_process_stages,alias:sps"`

	ID       string `bun:"id,pk"`
	SampleID string `bun:"sample_id,notnull"`
	Stage    string `bun:"stage,notnull"`
	Sequence int    `bun:"sequence,notnull"`
	Notes    string `bun:"notes"`
}
