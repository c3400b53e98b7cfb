package dashboard

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/Additional-Code/loom/internal/database"
	"github.com/Additional-Code/loom/internal/entity"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/loom/repository/dashboard")

// MaterialTotal aggregates material lines of one category.
type MaterialTotal struct {
	Category      string          `bun:"category"`
	Lines         int             `bun:"lines"`
	TotalQuantity decimal.Decimal `bun:"total_quantity"`
}

// StageUsage counts samples that plan a given process stage.
type StageUsage struct {
	Stage   string `bun:"stage"`
	Samples int    `bun:"samples"`
}

// Label is the display identity of an entity referenced by a history row.
type Label struct {
	ID     string `bun:"id"`
	Number string `bun:"number"`
	Name   string `bun:"name"`
}

type statusCount struct {
	Status string `bun:"status"`
	Count  int    `bun:"count"`
}

// Repository runs read-only aggregate queries.
type Repository struct {
	reader *bun.DB
}

// NewRepository wires the repository against the read pool.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{reader: conns.Reader}
}

// SampleStatusCounts groups live samples by status.
func (r *Repository) SampleStatusCounts(ctx context.Context) (map[string]int, error) {
	return r.statusCounts(ctx, (*entity.SampleRequest)(nil), "sr", "DashboardRepository.SampleStatusCounts")
}

// WorkOrderStageCounts groups work orders by pipeline stage.
func (r *Repository) WorkOrderStageCounts(ctx context.Context) (map[string]int, error) {
	return r.statusCounts(ctx, (*entity.WorkOrder)(nil), "wo", "DashboardRepository.WorkOrderStageCounts")
}

func (r *Repository) statusCounts(ctx context.Context, model any, alias, spanName string) (map[string]int, error) {
	ctx, span := repoTracer.Start(ctx, spanName)
	defer span.End()

	var rows []statusCount
	err := r.reader.NewSelect().
		Model(model).
		ColumnExpr(alias+".status AS status").
		ColumnExpr("COUNT(*) AS count").
		GroupExpr(alias + ".status").
		Scan(ctx, &rows)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	out := make(map[string]int, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}

// MaterialSummary totals material lines per category.
func (r *Repository) MaterialSummary(ctx context.Context) ([]MaterialTotal, error) {
	ctx, span := repoTracer.Start(ctx, "DashboardRepository.MaterialSummary")
	defer span.End()

	rows := make([]MaterialTotal, 0)
	err := r.reader.NewSelect().
		Model((*entity.MaterialRequirement)(nil)).
		ColumnExpr("sm.category AS category").
		ColumnExpr("COUNT(*) AS lines").
		ColumnExpr("COALESCE(SUM(sm.quantity), 0) AS total_quantity").
		GroupExpr("sm.category").
		OrderExpr("sm.category").
		Scan(ctx, &rows)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return rows, nil
}

// ProcessStageUsage counts distinct samples per planned stage.
func (r *Repository) ProcessStageUsage(ctx context.Context) ([]StageUsage, error) {
	ctx, span := repoTracer.Start(ctx, "DashboardRepository.ProcessStageUsage")
	defer span.End()

	rows := make([]StageUsage, 0)
	err := r.reader.NewSelect().
		Model((*entity.ProcessStage)(nil)).
		ColumnExpr("sps.stage AS stage").
		ColumnExpr("COUNT(DISTINCT sps.sample_id) AS samples").
		GroupExpr("sps.stage").
		OrderExpr("samples DESC, sps.stage").
		Scan(ctx, &rows)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return rows, nil
}

// Labels resolves number and name for entities of one kind.
func (r *Repository) Labels(ctx context.Context, kind string, ids []string) (map[string]Label, error) {
	out := make(map[string]Label, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	ctx, span := repoTracer.Start(ctx, "DashboardRepository.Labels")
	defer span.End()

	var q *bun.SelectQuery
	switch kind {
	case entity.KindSampleRequest:
		q = r.reader.NewSelect().Model((*entity.SampleRequest)(nil)).
			ColumnExpr("sr.id AS id, sr.number AS number, sr.name AS name").
			Where("sr.id IN (?)", bun.In(ids))
	case entity.KindWorkOrder:
		q = r.reader.NewSelect().Model((*entity.WorkOrder)(nil)).
			ColumnExpr("wo.id AS id, wo.number AS number, wo.name AS name").
			Where("wo.id IN (?)", bun.In(ids))
	case entity.KindSalesOrder:
		q = r.reader.NewSelect().Model((*entity.SalesOrder)(nil)).
			ColumnExpr("so.id AS id, so.number AS number, c.name AS name").
			Join("JOIN customers AS c ON c.id = so.customer_id").
			Where("so.id IN (?)", bun.In(ids))
	default:
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}

	var rows []Label
	if err := q.Scan(ctx, &rows); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}
