package inspection

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
	"github.com/Additional-Code/loom/pkg/pagination"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/loom/repository/inspection")

// ErrNotFound is returned when an inspection is missing.
var ErrNotFound = errors.New("inspection not found")

// Filter narrows inspection listings.
type Filter struct {
	WorkOrderID string
	Result      string
	Page        pagination.Params
}

// Repository encapsulates read/write access for QC inspections.
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

// Create persists a new inspection.
func (r *Repository) Create(ctx context.Context, in *entity.Inspection) error {
	if in == nil {
		return errors.New("nil inspection")
	}
	ctx, span := repoTracer.Start(ctx, "InspectionRepository.Create", trace.WithAttributes(attribute.String("inspection.number", in.Number)))
	defer span.End()

	_, err := database.Conn(ctx, r.writer).NewInsert().Model(in).Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
	}
	return err
}

// GetByID loads an inspection with its work order.
func (r *Repository) GetByID(ctx context.Context, id string) (*entity.Inspection, error) {
	ctx, span := repoTracer.Start(ctx, "InspectionRepository.GetByID", trace.WithAttributes(attribute.String("inspection.id", id)))
	defer span.End()

	in := new(entity.Inspection)
	err := database.Conn(ctx, r.reader).NewSelect().
		Model(in).
		Relation("WorkOrder").
		Where("qc.id = ?", id).
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
	return in, nil
}

// List returns one page of inspections, newest first.
func (r *Repository) List(ctx context.Context, f Filter) ([]*entity.Inspection, int, error) {
	if f.Page.Limit == 0 {
		f.Page = pagination.New(f.Page.Page, f.Page.Limit)
	}
	ctx, span := repoTracer.Start(ctx, "InspectionRepository.List", trace.WithAttributes(attribute.Int("page", f.Page.Page)))
	defer span.End()

	rows := make([]*entity.Inspection, 0)
	q := database.Conn(ctx, r.reader).NewSelect().Model(&rows).Relation("WorkOrder")
	if f.WorkOrderID != "" {
		q = q.Where("qc.work_order_id = ?", f.WorkOrderID)
	}
	if f.Result != "" {
		q = q.Where("qc.result = ?", f.Result)
	}
	total, err := q.
		OrderExpr("qc.inspected_at DESC, qc.id DESC").
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

// SetReportKey records the storage key of an uploaded report.
func (r *Repository) SetReportKey(ctx context.Context, id, key string) error {
	ctx, span := repoTracer.Start(ctx, "InspectionRepository.SetReportKey", trace.WithAttributes(attribute.String("inspection.id", id)))
	defer span.End()

	res, err := database.Conn(ctx, r.writer).NewUpdate().
		Model((*entity.Inspection)(nil)).
		Set("report_key = ?", key).
		Where("qc.id = ?", id).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
