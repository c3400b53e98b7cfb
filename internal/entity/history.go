package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// Kinds of entities that carry a status history.
const (
	KindSampleRequest = "sample_request"
	KindWorkOrder     = "work_order"
	KindSalesOrder    = "sales_order"
)

// StatusHistory is one append-only audit row per status transition.
type StatusHistory struct {
	bun.BaseModel `bun:"table:status_history,alias:h"`

	ID             string    `bun:"id,pk"`
	EntityType     string    `bun:"entity_type,notnull"`
	EntityID       string    `bun:"entity_id,notnull"`
	PreviousStatus *string   `bun:"previous_status"`
	NewStatus      string    `bun:"new_status,notnull"`
	ChangedBy      string    `bun:"changed_by,notnull"`
	ChangeReason   *string   `bun:"change_reason"`
	ChangedAt      time.Time `bun:"changed_at,notnull"`
}
