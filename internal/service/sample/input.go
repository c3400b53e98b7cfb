package sample

import (
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Additional-Code/loom/internal/entity"
	"github.com/Additional-Code/loom/internal/workflow"
	"github.com/Additional-Code/loom/pkg/errorbank"
)

// MaterialInput is one requested material line.
type MaterialInput struct {
	MaterialName string
	Category     string
	Quantity     decimal.Decimal
	Unit         string
}

// StageInput is one planned process stage. A zero Sequence takes the
// position of the stage in the list.
type StageInput struct {
	Stage    string
	Sequence int
	Notes    string
}

// Input carries the fields of a new sample request.
type Input struct {
	CustomerID  string
	Name        string
	Description string
	Color       string
	Quantity    int
	Notes       string
	Materials   []MaterialInput
	Stages      []StageInput
}

// Patch carries the fields to change; nil fields are left untouched. A
// non-nil Materials or Stages replaces the whole list.
type Patch struct {
	Name        *string
	Description *string
	Color       *string
	Quantity    *int
	Notes       *string
	Materials   *[]MaterialInput
	Stages      *[]StageInput
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.Color == nil && p.Quantity == nil &&
		p.Notes == nil && p.Materials == nil && p.Stages == nil
}

func validateSample(s *entity.SampleRequest) error {
	if strings.TrimSpace(s.CustomerID) == "" {
		return errorbank.Validation("customerId is required", errorbank.WithDetail("field", "customerId"))
	}
	if strings.TrimSpace(s.Name) == "" {
		return errorbank.Validation("name is required", errorbank.WithDetail("field", "name"))
	}
	if s.Quantity <= 0 {
		return errorbank.Validation("quantity must be greater than zero", errorbank.WithDetail("field", "quantity"))
	}
	return nil
}

func buildMaterials(in []MaterialInput) ([]*entity.MaterialRequirement, error) {
	out := make([]*entity.MaterialRequirement, 0, len(in))
	for i, m := range in {
		name := strings.TrimSpace(m.MaterialName)
		if name == "" {
			return nil, errorbank.Validation(fmt.Sprintf("materials[%d].materialName is required", i))
		}
		category := strings.ToLower(strings.TrimSpace(m.Category))
		if category == "" {
			category = "other"
		}
		if !entity.ValidMaterialCategory(category) {
			return nil, errorbank.Validation(fmt.Sprintf("materials[%d].category %q is not one of %s", i, m.Category, strings.Join(entity.MaterialCategories, ", ")))
		}
		if !m.Quantity.IsPositive() {
			return nil, errorbank.Validation(fmt.Sprintf("materials[%d].quantity must be greater than zero", i))
		}
		out = append(out, &entity.MaterialRequirement{
			ID:           entity.NewID(),
			MaterialName: name,
			Category:     category,
			Quantity:     m.Quantity,
			Unit:         strings.TrimSpace(m.Unit),
		})
	}
	return out, nil
}

func buildStages(in []StageInput) ([]*entity.ProcessStage, error) {
	out := make([]*entity.ProcessStage, 0, len(in))
	for i, st := range in {
		name := strings.ToLower(strings.TrimSpace(st.Stage))
		if !validStage(name) {
			return nil, errorbank.Validation(fmt.Sprintf("stages[%d].stage %q is not a known process stage", i, st.Stage))
		}
		seq := st.Sequence
		if seq <= 0 {
			seq = i + 1
		}
		out = append(out, &entity.ProcessStage{
			ID:       entity.NewID(),
			Stage:    name,
			Sequence: seq,
			Notes:    st.Notes,
		})
	}
	return out, nil
}

func validStage(name string) bool {
	return workflow.Production.Has(workflow.State(name)) || slices.Contains(entity.FinishingProcesses, name)
}
