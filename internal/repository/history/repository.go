package history

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/loom/internal/database"
	"github.com/Additional-Code/loom/internal/entity"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/loom/repository/history")

var (
	// ErrNotFound is returned when the entity owning a status is missing.
	ErrNotFound = errors.New("entity not found")
	// ErrStaleStatus is returned when a compare-and-set loses against another writer.
	ErrStaleStatus = errors.New("status changed concurrently")
)

// Repository stores the append-only status audit trail and performs the
// guarded status writes it records.
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

// Append inserts one history row.
func (r *Repository) Append(ctx context.Context, row *entity.StatusHistory) error {
	if row == nil {
		return errors.New("nil history row")
	}
	ctx, span := repoTracer.Start(ctx, "HistoryRepository.Append", trace.WithAttributes(
		attribute.String("entity.type", row.EntityType),
		attribute.String("entity.id", row.EntityID),
		attribute.String("status.new", row.NewStatus),
	))
	defer span.End()

	if row.ID == "" {
		row.ID = entity.NewID()
	}
	_, err := database.Conn(ctx, r.writer).NewInsert().Model(row).Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
	}
	return err
}

// ListByEntity returns every row for one entity, newest first.
func (r *Repository) ListByEntity(ctx context.Context, kind, id string) ([]*entity.StatusHistory, error) {
	ctx, span := repoTracer.Start(ctx, "HistoryRepository.ListByEntity", trace.WithAttributes(
		attribute.String("entity.type", kind),
		attribute.String("entity.id", id),
	))
	defer span.End()

	rows := make([]*entity.StatusHistory, 0)
	err := database.Conn(ctx, r.reader).NewSelect().
		Model(&rows).
		Where("h.entity_type = ?", kind).
		Where("h.entity_id = ?", id).
		OrderExpr("h.changed_at DESC, h.id DESC").
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return rows, nil
}

// Recent returns the newest rows across all entity kinds.
func (r *Repository) Recent(ctx context.Context, limit int) ([]*entity.StatusHistory, error) {
	ctx, span := repoTracer.Start(ctx, "HistoryRepository.Recent", trace.WithAttributes(attribute.Int("limit", limit)))
	defer span.End()

	rows := make([]*entity.StatusHistory, 0, limit)
	err := database.Conn(ctx, r.reader).NewSelect().
		Model(&rows).
		OrderExpr("h.changed_at DESC, h.id DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return rows, nil
}

// DeleteByEntity removes the trail of an entity that is itself being deleted.
func (r *Repository) DeleteByEntity(ctx context.Context, kind, id string) error {
	ctx, span := repoTracer.Start(ctx, "HistoryRepository.DeleteByEntity", trace.WithAttributes(
		attribute.String("entity.type", kind),
		attribute.String("entity.id", id),
	))
	defer span.End()

	_, err := database.Conn(ctx, r.writer).NewDelete().
		Model((*entity.StatusHistory)(nil)).
		Where("entity_type = ?", kind).
		Where("entity_id = ?", id).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
	}
	return err
}

// CurrentStatus reads the status column of one row of table.
func (r *Repository) CurrentStatus(ctx context.Context, table, id string) (string, error) {
	ctx, span := repoTracer.Start(ctx, "HistoryRepository.CurrentStatus", trace.WithAttributes(
		attribute.String("table", table),
		attribute.String("entity.id", id),
	))
	defer span.End()

	var status string
	err := database.Conn(ctx, r.writer).
		NewRaw("SELECT status FROM ? WHERE id = ?", bun.Ident(table), id).
		Scan(ctx, &status)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return "", ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return "", err
	}
	return status, nil
}

// SwapStatus moves a row from expected to next only if it still holds
// expected. It returns ErrStaleStatus when no row matched.
func (r *Repository) SwapStatus(ctx context.Context, table, id, expected, next string, at time.Time) error {
	ctx, span := repoTracer.Start(ctx, "HistoryRepository.SwapStatus", trace.WithAttributes(
		attribute.String("table", table),
		attribute.String("entity.id", id),
		attribute.String("status.expected", expected),
		attribute.String("status.next", next),
	))
	defer span.End()

	res, err := database.Conn(ctx, r.writer).
		NewRaw("UPDATE ? SET status = ?, updated_at = ? WHERE id = ? AND status = ?", bun.Ident(table), next, at, id, expected).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		span.SetStatus(codes.Error, "stale status")
		return ErrStaleStatus
	}
	return nil
}
