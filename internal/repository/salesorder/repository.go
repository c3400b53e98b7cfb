package salesorder

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/loom/internal/database"
	"github.com/Additional-Code/loom/internal/entity"
	"github.com/Additional-Code/loom/internal/repository"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/loom/repository/salesorder")

var (
	// ErrNotFound is returned when a sales order is missing.
	ErrNotFound = errors.New("sales order not found")
	// ErrStatusChanged is returned when a guarded write finds the row outside the expected status.
	ErrStatusChanged = errors.New("sales order status changed")
)

// Repository encapsulates read/write access for sales orders and their items.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{
		writer: conns.Writer,
		reader: conns.Reader,
	}
}

// Create inserts the order row and its items.
func (r *Repository) Create(ctx context.Context, so *entity.SalesOrder) error {
	if so == nil {
		return errors.New("nil sales order")
	}
	ctx, span := repoTracer.Start(ctx, "SalesOrderRepository.Create", trace.WithAttributes(attribute.String("sales_order.number", so.Number)))
	defer span.End()

	db := database.Conn(ctx, r.writer)
	if _, err := db.NewInsert().Model(so).Exec(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return err
	}
	if err := insertItems(ctx, db, so); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert items failed")
		return err
	}
	return nil
}

// GetByID loads an order with its customer and items.
func (r *Repository) GetByID(ctx context.Context, id string) (*entity.SalesOrder, error) {
	ctx, span := repoTracer.Start(ctx, "SalesOrderRepository.GetByID", trace.WithAttributes(attribute.String("sales_order.id", id)))
	defer span.End()

	so := new(entity.SalesOrder)
	err := database.Conn(ctx, r.reader).NewSelect().
		Model(so).
		Relation("Customer").
		Relation("Items", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("soi.style", "soi.id")
		}).
		Where("so.id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return so, nil
}

// List returns one page of orders, newest first.
func (r *Repository) List(ctx context.Context, f repository.Filter) ([]*entity.SalesOrder, int, error) {
	f = f.Paged()
	ctx, span := repoTracer.Start(ctx, "SalesOrderRepository.List", trace.WithAttributes(
		attribute.String("filter.status", f.Status),
		attribute.Int("page", f.Page.Page),
	))
	defer span.End()

	rows := make([]*entity.SalesOrder, 0)
	q := database.Conn(ctx, r.reader).NewSelect().Model(&rows).Relation("Customer")
	if f.Status != "" {
		q = q.Where("so.status = ?", f.Status)
	}
	if f.CustomerID != "" {
		q = q.Where("so.customer_id = ?", f.CustomerID)
	}
	q = repository.Search(q, f.Search, "so.number", "so.notes")
	total, err := q.
		OrderExpr("so.created_at DESC, so.id DESC").
		Limit(f.Page.Limit).
		Offset(f.Page.Offset).
		ScanAndCount(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, 0, err
	}
	return rows, total, nil
}

// UpdateDraft writes the editable columns while the stored status still equals status.
func (r *Repository) UpdateDraft(ctx context.Context, so *entity.SalesOrder, status string) error {
	ctx, span := repoTracer.Start(ctx, "SalesOrderRepository.UpdateDraft", trace.WithAttributes(attribute.String("sales_order.id", so.ID)))
	defer span.End()

	res, err := database.Conn(ctx, r.writer).NewUpdate().
		Model(so).
		Column("order_date", "delivery_date", "currency", "total_amount", "notes", "updated_at").
		Where("so.id = ?", so.ID).
		Where("so.status = ?", status).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStatusChanged
	}
	return nil
}

// ReplaceItems swaps the stored items for the ones so carries.
func (r *Repository) ReplaceItems(ctx context.Context, so *entity.SalesOrder) error {
	ctx, span := repoTracer.Start(ctx, "SalesOrderRepository.ReplaceItems", trace.WithAttributes(attribute.String("sales_order.id", so.ID)))
	defer span.End()

	db := database.Conn(ctx, r.writer)
	if _, err := db.NewDelete().Model((*entity.SalesOrderItem)(nil)).Where("sales_order_id = ?", so.ID).Exec(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete items failed")
		return err
	}
	if err := insertItems(ctx, db, so); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert items failed")
		return err
	}
	return nil
}

// Delete removes an order and its items while it still holds status.
func (r *Repository) Delete(ctx context.Context, id, status string) error {
	ctx, span := repoTracer.Start(ctx, "SalesOrderRepository.Delete", trace.WithAttributes(attribute.String("sales_order.id", id)))
	defer span.End()

	db := database.Conn(ctx, r.writer)
	if _, err := db.NewDelete().Model((*entity.SalesOrderItem)(nil)).Where("sales_order_id = ?", id).Exec(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete items failed")
		return err
	}
	res, err := db.NewDelete().
		Model((*entity.SalesOrder)(nil)).
		Where("id = ?", id).
		Where("status = ?", status).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStatusChanged
	}
	return nil
}

// Exists reports whether an order with id is stored.
func (r *Repository) Exists(ctx context.Context, id string) (bool, error) {
	return database.Conn(ctx, r.writer).NewSelect().
		Model((*entity.SalesOrder)(nil)).
		Where("so.id = ?", id).
		Exists(ctx)
}

func insertItems(ctx context.Context, db bun.IDB, so *entity.SalesOrder) error {
	if len(so.Items) == 0 {
		return nil
	}
	for _, it := range so.Items {
		if it.ID == "" {
			it.ID = entity.NewID()
		}
		it.SalesOrderID = so.ID
	}
	_, err := db.NewInsert().Model(&so.Items).Exec(ctx)
	return err
}
