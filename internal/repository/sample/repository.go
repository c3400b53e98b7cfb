package sample

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

var repoTracer = otel.Tracer("github.com/Additional-Code/loom/repository/sample")

var (
	// ErrNotFound is returned when a sample request is missing.
	ErrNotFound = errors.New("sample request not found")
	// ErrStatusChanged is returned when a guarded write finds the row outside the expected status.
	ErrStatusChanged = errors.New("sample request status changed")
)

// Repository encapsulates read/write access for sample requests and their line items.
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

// Create inserts the sample row and its materials and stages.
func (r *Repository) Create(ctx context.Context, s *entity.SampleRequest) error {
	if s == nil {
		return errors.New("nil sample request")
	}
	ctx, span := repoTracer.Start(ctx, "SampleRepository.Create", trace.WithAttributes(attribute.String("sample.number", s.Number)))
	defer span.End()

	db := database.Conn(ctx, r.writer)
	if _, err := db.NewInsert().Model(s).Exec(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return err
	}
	if err := r.insertLines(ctx, db, s); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert lines failed")
		return err
	}
	return nil
}

// GetByID loads a sample with its customer, materials and stages.
func (r *Repository) GetByID(ctx context.Context, id string) (*entity.SampleRequest, error) {
	ctx, span := repoTracer.Start(ctx, "SampleRepository.GetByID", trace.WithAttributes(attribute.String("sample.id", id)))
	defer span.End()

	s := new(entity.SampleRequest)
	err := database.Conn(ctx, r.reader).NewSelect().
		Model(s).
		Relation("Customer").
		Relation("Materials", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("sm.material_name", "sm.id")
		}).
		Relation("Stages", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("sps.sequence", "sps.id")
		}).
		Where("sr.id = ?", id).
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
	return s, nil
}

// List returns one page of samples, newest first, with their customers.
func (r *Repository) List(ctx context.Context, f repository.Filter) ([]*entity.SampleRequest, int, error) {
	f = f.Paged()
	ctx, span := repoTracer.Start(ctx, "SampleRepository.List", trace.WithAttributes(
		attribute.String("filter.status", f.Status),
		attribute.Int("page", f.Page.Page),
	))
	defer span.End()

	rows := make([]*entity.SampleRequest, 0)
	q := database.Conn(ctx, r.reader).NewSelect().Model(&rows).Relation("Customer")
	if f.Status != "" {
		q = q.Where("sr.status = ?", f.Status)
	}
	if f.CustomerID != "" {
		q = q.Where("sr.customer_id = ?", f.CustomerID)
	}
	q = repository.Search(q, f.Search, "sr.name", "sr.number", "sr.description")
	total, err := q.
		OrderExpr("sr.created_at DESC, sr.id DESC").
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

// UpdateDraft writes the editable columns of s only while its stored status
// still equals status.
func (r *Repository) UpdateDraft(ctx context.Context, s *entity.SampleRequest, status string) error {
	ctx, span := repoTracer.Start(ctx, "SampleRepository.UpdateDraft", trace.WithAttributes(attribute.String("sample.id", s.ID)))
	defer span.End()

	res, err := database.Conn(ctx, r.writer).NewUpdate().
		Model(s).
		Column("name", "description", "color", "quantity", "notes", "updated_at").
		Where("sr.id = ?", s.ID).
		Where("sr.status = ?", status).
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

// ReplaceLines swaps the stored materials and stages of s for the ones it carries.
func (r *Repository) ReplaceLines(ctx context.Context, s *entity.SampleRequest) error {
	ctx, span := repoTracer.Start(ctx, "SampleRepository.ReplaceLines", trace.WithAttributes(attribute.String("sample.id", s.ID)))
	defer span.End()

	db := database.Conn(ctx, r.writer)
	if err := r.deleteLines(ctx, db, s.ID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete lines failed")
		return err
	}
	if err := r.insertLines(ctx, db, s); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert lines failed")
		return err
	}
	return nil
}

// Delete removes a sample and its line items while it still holds status.
func (r *Repository) Delete(ctx context.Context, id, status string) error {
	ctx, span := repoTracer.Start(ctx, "SampleRepository.Delete", trace.WithAttributes(attribute.String("sample.id", id)))
	defer span.End()

	db := database.Conn(ctx, r.writer)
	if err := r.deleteLines(ctx, db, id); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete lines failed")
		return err
	}
	res, err := db.NewDelete().
		Model((*entity.SampleRequest)(nil)).
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

func (r *Repository) insertLines(ctx context.Context, db bun.IDB, s *entity.SampleRequest) error {
	for _, m := range s.Materials {
		if m.ID == "" {
			m.ID = entity.NewID()
		}
		m.SampleID = s.ID
	}
	for _, st := range s.Stages {
		if st.ID == "" {
			st.ID = entity.NewID()
		}
		st.SampleID = s.ID
	}
	if len(s.Materials) > 0 {
		if _, err := db.NewInsert().Model(&s.Materials).Exec(ctx); err != nil {
			return err
		}
	}
	if len(s.Stages) > 0 {
		if _, err := db.NewInsert().Model(&s.Stages).Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) deleteLines(ctx context.Context, db bun.IDB, id string) error {
	if _, err := db.NewDelete().Model((*entity.MaterialRequirement)(nil)).Where("sample_id = ?", id).Exec(ctx); err != nil {
		return err
	}
	_, err := db.NewDelete().Model((*entity.ProcessStage)(nil)).Where("sample_id = ?", id).Exec(ctx)
	return err
}
