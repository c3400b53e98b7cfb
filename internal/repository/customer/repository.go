package customer

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/loom/internal/database"
	"github.com/Additional-Code/loom/internal/entity"
	"github.com/Additional-Code/loom/internal/repository"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/loom/repository/customer")

// ErrNotFound is returned when a customer is missing.
var ErrNotFound = errors.New("customer not found")

// References counts rows pointing at a customer.
type References struct {
	SalesOrders    int
	SampleRequests int
	WorkOrders     int
}

// Total is the sum of all references.
func (r References) Total() int {
	return r.SalesOrders + r.SampleRequests + r.WorkOrders
}

// Repository encapsulates read/write access for customers.
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

// Create persists a new customer.
func (r *Repository) Create(ctx context.Context, c *entity.Customer) error {
	if c == nil {
		return errors.New("nil customer")
	}
	ctx, span := repoTracer.Start(ctx, "CustomerRepository.Create", trace.WithAttributes(attribute.String("customer.email", c.Email)))
	defer span.End()

	_, err := database.Conn(ctx, r.writer).NewInsert().Model(c).Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
	}
	return err
}

// GetByID fetches a customer by primary key.
func (r *Repository) GetByID(ctx context.Context, id string) (*entity.Customer, error) {
	ctx, span := repoTracer.Start(ctx, "CustomerRepository.GetByID", trace.WithAttributes(attribute.String("customer.id", id)))
	defer span.End()

	c := new(entity.Customer)
	err := database.Conn(ctx, r.reader).NewSelect().Model(c).Where("c.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return c, nil
}

// List returns one page of customers and the total match count.
func (r *Repository) List(ctx context.Context, f repository.Filter) ([]*entity.Customer, int, error) {
	f = f.Paged()
	ctx, span := repoTracer.Start(ctx, "CustomerRepository.List", trace.WithAttributes(attribute.Int("page", f.Page.Page)))
	defer span.End()

	rows := make([]*entity.Customer, 0)
	q := database.Conn(ctx, r.reader).NewSelect().Model(&rows)
	if f.Status != "" {
		q = q.Where("c.status = ?", f.Status)
	}
	q = repository.Search(q, f.Search, "c.name", "c.email", "c.contact_person")
	total, err := q.
		OrderExpr("c.created_at DESC, c.id DESC").
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

// Update writes every mutable column of c.
func (r *Repository) Update(ctx context.Context, c *entity.Customer) error {
	ctx, span := repoTracer.Start(ctx, "CustomerRepository.Update", trace.WithAttributes(attribute.String("customer.id", c.ID)))
	defer span.End()

	res, err := database.Conn(ctx, r.writer).NewUpdate().
		Model(c).
		ExcludeColumn("id", "created_by", "created_at").
		WherePK().
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

// Delete removes a customer row.
func (r *Repository) Delete(ctx context.Context, id string) error {
	ctx, span := repoTracer.Start(ctx, "CustomerRepository.Delete", trace.WithAttributes(attribute.String("customer.id", id)))
	defer span.End()

	res, err := database.Conn(ctx, r.writer).NewDelete().
		Model((*entity.Customer)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// EmailTaken reports whether another customer already uses email,
// ignoring case. excludeID skips the customer being updated.
func (r *Repository) EmailTaken(ctx context.Context, email, excludeID string) (bool, error) {
	q := database.Conn(ctx, r.writer).NewSelect().
		Model((*entity.Customer)(nil)).
		Where("LOWER(c.email) = ?", strings.ToLower(strings.TrimSpace(email)))
	if excludeID != "" {
		q = q.Where("c.id <> ?", excludeID)
	}
	return q.Exists(ctx)
}

// CountReferences counts sales orders, sample requests and work orders of a customer.
func (r *Repository) CountReferences(ctx context.Context, id string) (References, error) {
	ctx, span := repoTracer.Start(ctx, "CustomerRepository.CountReferences", trace.WithAttributes(attribute.String("customer.id", id)))
	defer span.End()

	db := database.Conn(ctx, r.writer)
	var refs References
	for _, ref := range []struct {
		model any
		dst   *int
	}{
		{(*entity.SalesOrder)(nil), &refs.SalesOrders},
		{(*entity.SampleRequest)(nil), &refs.SampleRequests},
		{(*entity.WorkOrder)(nil), &refs.WorkOrders},
	} {
		n, err := db.NewSelect().Model(ref.model).Where("customer_id = ?", id).Count(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "count failed")
			return References{}, err
		}
		*ref.dst = n
	}
	return refs, nil
}
