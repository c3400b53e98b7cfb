package entity

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// SalesOrder is a confirmed customer purchase.
type SalesOrder struct {
	bun.BaseModel `bun:"table:sales_orders,alias:so"`

	ID           string          `bun:"id,pk"`
	Number       string          `bun:"number,notnull"`
	CustomerID   string          `bun:"customer_id,notnull"`
	OrderDate    time.Time       `bun:"order_date,notnull"`
	DeliveryDate *time.Time      `bun:"delivery_date"`
	Currency     string          `bun:"currency,notnull"`
	TotalAmount  decimal.Decimal `bun:"total_amount,type:numeric(14,2),notnull"`
	Notes        string          `bun:"notes"`
	Status       string          `bun:"status,notnull"`
	CreatedBy    string          `bun:"created_by,notnull"`
	CreatedAt    time.Time       `bun:"created_at,notnull"`
	UpdatedAt    time.Time       `bun:"updated_at,notnull"`

	Customer *Customer         `bun:"rel:belongs-to,join:customer_id=id"`
	Items    []*SalesOrderItem `bun:"rel:has-many,join:id=sales_order_id"`
}

// SalesOrderItem is one garment line of a sales order.
type SalesOrderItem struct {
	bun.BaseModel `bun:"table:sales_order_items,alias:soi"`

	ID           string          `bun:"id,pk"`
	SalesOrderID string          `bun:"sales_order_id,notnull"`
	Style        string          `bun:"style,notnull"`
	Description  string          `bun:"description"`
	Color        string          `bun:"color"`
	Size         string          `bun:"size"`
	Quantity     int             `bun:"quantity,notnull"`
	UnitPrice    decimal.Decimal `bun:"unit_price,type:numeric(12,2),notnull"`
}

// LineTotal is quantity times unit price.
func (i *SalesOrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
