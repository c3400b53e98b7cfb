package workorder

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

var repoTracer = otel.Tracer("github.com/Additional-Code/loom/repository/workorder")

var (
	// ErrNotFound is returned when a work order is missing.
	ErrNotFound = errors.New("work order not found")
	// ErrStatusChanged is returned when a guarded write finds the row outside the expected stage.
	ErrStatusChanged = errors.New("work order status changed")
)

// Repository encapsulates read/write access for work orders.
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

// Create persists a new work order.
func (r *Repository) Create(ctx context.Context, wo *entity.WorkOrder) error {
	if wo == nil {
		return errors.New("nil work order")
	}
	ctx, span := repoTracer.Start(ctx, "WorkOrderRepository.Create", trace.WithAttributes(attribute.String("work_order.number", wo.Number)))
	defer span.End()

	_, err := database.Conn(ctx, r.writer).NewInsert().Model(wo).Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
	}
	return err
}

// GetByID loads a work order with its customer and inspections.
func (r *Repository) GetByID(ctx context.Context, id string) (*entity.WorkOrder, error) {
	ctx, span := repoTracer.Start(ctx, "WorkOrderRepository.GetByID", trace.WithAttributes(attribute.String("work_order.id", id)))
	defer span.End()

	wo := new(entity.WorkOrder)
	err := database.Conn(ctx, r.reader).NewSelect().
		Model(wo).
		Relation("Customer").
		Relation("Inspections", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.OrderExpr("qc.inspected_at DESC, qc.id DESC")
		}).
		Where("wo.id = ?", id).
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
	return wo, nil
}

// List returns one page of work orders, newest first.
func (r *Repository) List(ctx context.Context, f repository.Filter) ([]*entity.WorkOrder, int, error) {
	f = f.Paged()
	ctx, span := repoTracer.Start(ctx, "WorkOrderRepository.List", trace.WithAttributes(
		attribute.String("filter.status", f.Status),
		attribute.Int("page", f.Page.Page),
	))
	defer span.End()

	rows := make([]*entity.WorkOrder, 0)
	q := database.Conn(ctx, r.reader).NewSelect().Model(&rows).Relation("Customer")
	if f.Status != "" {
		q = q.Where("wo.status = ?", f.Status)
	}
	if f.CustomerID != "" {
		q = q.Where("wo.customer_id = ?", f.CustomerID)
	}
	q = repository.Search(q, f.Search, "wo.name", "wo.number", "wo.description")
	total, err := q.
		OrderExpr("wo.created_at DESC, wo.id DESC").
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
func (r *Repository) UpdateDraft(ctx context.Context, wo *entity.WorkOrder, status string) error {
	ctx, span := repoTracer.Start(ctx, "WorkOrderRepository.UpdateDraft", trace.WithAttributes(attribute.String("work_order.id", wo.ID)))
	defer span.End()

	res, err := database.Conn(ctx, r.writer).NewUpdate().
		Model(wo).
		Column("sales_order_id", "name", "description", "color", "quantity", "notes", "due_date", "updated_at").
		Where("wo.id = ?", wo.ID).
		Where("wo.status = ?", status).
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

// Delete removes a work order and its inspections while it still holds status.
func (r *Repository) Delete(ctx context.Context, id, status string) error {
	ctx, span := repoTracer.Start(ctx, "WorkOrderRepository.Delete", trace.WithAttributes(attribute.String("work_order.id", id)))
	defer span.End()

	db := database.Conn(ctx, r.writer)
	if _, err := db.NewDelete().Model((*entity.Inspection)(nil)).Where("work_order_id = ?", id).Exec(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete inspections failed")
		return err
	}
	res, err := db.NewDelete().
		Model((*entity.WorkOrder)(nil)).
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

// CountBySalesOrder counts work orders produced for a sales order.
func (r *Repository) CountBySalesOrder(ctx context.Context, salesOrderID string) (int, error) {
	return database.Conn(ctx, r.writer).NewSelect().
		Model((*entity.WorkOrder)(nil)).
		Where("wo.sales_order_id = ?", salesOrderID).
		Count(ctx)
}
