package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// WorkOrder tracks a production batch through the pipeline stages.
type WorkOrder struct {
	bun.BaseModel `bun:"table:work_orders,alias:wo"`

	ID           string     `bun:"id,pk"`
	Number       string     `bun:"number,notnull"`
	CustomerID   string     `bun:"customer_id,notnull"`
	SalesOrderID *string    `bun:"sales_order_id"`
	Name         string     `bun:"name,notnull"`
	Description  string     `bun:"description"`
	Color        string     `bun:"color"`
	Quantity     int        `bun:"quantity,notnull"`
	Notes        string     `bun:"notes"`
	Status       string     `bun:"status,notnull"`
	DueDate      *time.Time `bun:"due_date"`
	CreatedBy    string     `bun:"created_by,notnull"`
	CreatedAt    time.Time  `bun:"created_at,notnull"`
	UpdatedAt    time.Time  `bun:"updated_at,notnull"`

	Customer    *Customer     `bun:"rel:belongs-to,join:customer_id=id"`
	Inspections []*Inspection `bun:"rel:has-many,join:id=work_order_id"`
}
