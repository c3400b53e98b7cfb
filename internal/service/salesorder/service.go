package salesorder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/loom/internal/database"
	"github.com/Additional-Code/loom/internal/entity"
	"github.com/Additional-Code/loom/internal/events"
	"github.com/Additional-Code/loom/internal/repository"
	customerrepo "github.com/Additional-Code/loom/internal/repository/customer"
	repo "github.com/Additional-Code/loom/internal/repository/salesorder"
	workorderrepo "github.com/Additional-Code/loom/internal/repository/workorder"
	"github.com/Additional-Code/loom/internal/service/transition"
	"github.com/Additional-Code/loom/internal/workflow"
	"github.com/Additional-Code/loom/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/Additional-Code/loom/service/salesorder")

var subject = transition.SalesOrder

const defaultCurrency = "USD"

// ItemInput is one ordered garment line.
type ItemInput struct {
	Style       string
	Description string
	Color       string
	Size        string
	Quantity    int
	UnitPrice   decimal.Decimal
}

// Input carries the fields of a new sales order. A nil OrderDate means today.
type Input struct {
	CustomerID   string
	OrderDate    *time.Time
	DeliveryDate *time.Time
	Currency     string
	Notes        string
	Items        []ItemInput
}

// Patch carries the fields to change; nil fields are left untouched. A
// non-nil Items replaces every line.
type Patch struct {
	OrderDate    *time.Time
	DeliveryDate *time.Time
	Currency     *string
	Notes        *string
	Items        *[]ItemInput
}

// Detail is an order with its full status history, newest first.
type Detail struct {
	Order   *entity.SalesOrder
	History []*entity.StatusHistory
}

// Service encapsulates business logic around sales orders.
type Service struct {
	conns      *database.Connections
	repo       *repo.Repository
	customers  *customerrepo.Repository
	workOrders *workorderrepo.Repository
	engine     *transition.Engine
	events     *events.Dispatcher
	logger     *zap.Logger
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Conns      *database.Connections
	Repository *repo.Repository
	Customers  *customerrepo.Repository
	WorkOrders *workorderrepo.Repository
	Engine     *transition.Engine
	Events     *events.Dispatcher
	Logger     *zap.Logger
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return &Service{
		conns:      p.Conns,
		repo:       p.Repository,
		customers:  p.Customers,
		workOrders: p.WorkOrders,
		engine:     p.Engine,
		events:     p.Events,
		logger:     p.Logger,
	}
}

// Create stores a draft order with its items and creation history row.
func (s *Service) Create(ctx context.Context, actor string, in Input) (*Detail, error) {
	ctx, span := serviceTracer.Start(ctx, "SalesOrderService.Create")
	defer span.End()

	actor = strings.TrimSpace(actor)
	if actor == "" {
		return nil, errorbank.Validation("actor is required")
	}
	if strings.TrimSpace(in.CustomerID) == "" {
		return nil, errorbank.Validation("customerId is required", errorbank.WithDetail("field", "customerId"))
	}
	now := s.engine.Now()
	order := &entity.SalesOrder{
		ID:           entity.NewID(),
		Number:       entity.NewNumber(entity.PrefixSalesOrder, now),
		CustomerID:   strings.TrimSpace(in.CustomerID),
		OrderDate:    now,
		DeliveryDate: in.DeliveryDate,
		Currency:     normaliseCurrency(in.Currency),
		Notes:        in.Notes,
		Status:       string(subject.Machine.Initial()),
		CreatedBy:    actor,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if in.OrderDate != nil {
		order.OrderDate = in.OrderDate.UTC()
	}
	items, err := buildItems(in.Items)
	if err != nil {
		return nil, err
	}
	order.Items = items
	order.TotalAmount = orderTotal(items)
	if err := validateOrder(order); err != nil {
		return nil, err
	}

	var change *transition.Change
	err = s.conns.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.customers.GetByID(ctx, order.CustomerID); err != nil {
			if errors.Is(err, customerrepo.ErrNotFound) {
				return errorbank.NotFound("customer not found", errorbank.WithDetail("customerId", order.CustomerID))
			}
			return errorbank.Internal("failed to load customer", errorbank.WithCause(err))
		}
		if err := s.repo.Create(ctx, order); err != nil {
			return errorbank.Internal("failed to create sales order", errorbank.WithCause(err))
		}
		change, err = s.engine.Created(ctx, subject, order.ID, actor, now)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		return nil, err
	}

	s.engine.Committed(ctx, change)
	s.events.Dispatch(ctx, events.FromChange(change, order.Number))
	return s.Get(ctx, order.ID)
}

// Get returns an order with customer, items and history.
func (s *Service) Get(ctx context.Context, id string) (*Detail, error) {
	ctx, span := serviceTracer.Start(ctx, "SalesOrderService.Get", trace.WithAttributes(attribute.String("sales_order.id", id)))
	defer span.End()

	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, errorbank.NotFound("Sales order not found")
		}
		span.RecordError(err)
		return nil, errorbank.Internal("failed to load sales order", errorbank.WithCause(err))
	}
	history, err := s.engine.History(ctx, subject, id)
	if err != nil {
		return nil, err
	}
	return &Detail{Order: order, History: history}, nil
}

// List returns a filtered page of orders and the total count.
func (s *Service) List(ctx context.Context, f repository.Filter) ([]*entity.SalesOrder, int, error) {
	if f.Status != "" && !subject.Machine.Has(workflow.State(f.Status)) {
		return nil, 0, errorbank.Validation(fmt.Sprintf("Invalid status: %s", f.Status))
	}
	rows, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, 0, errorbank.Internal("failed to list sales orders", errorbank.WithCause(err))
	}
	return rows, total, nil
}

// Update applies a field-level patch to a draft order.
func (s *Service) Update(ctx context.Context, id, actor string, p Patch) (*Detail, error) {
	ctx, span := serviceTracer.Start(ctx, "SalesOrderService.Update", trace.WithAttributes(attribute.String("sales_order.id", id)))
	defer span.End()

	actor = strings.TrimSpace(actor)
	if actor == "" {
		return nil, errorbank.Validation("actor is required")
	}

	var number string
	err := s.conns.RunInTx(ctx, func(ctx context.Context) error {
		status, err := s.engine.Guard(ctx, subject, id, transition.OpEdit)
		if err != nil {
			return err
		}
		order, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return errorbank.Internal("failed to load sales order", errorbank.WithCause(err))
		}
		if p.OrderDate != nil {
			order.OrderDate = p.OrderDate.UTC()
		}
		if p.DeliveryDate != nil {
			order.DeliveryDate = p.DeliveryDate
		}
		if p.Currency != nil {
			order.Currency = normaliseCurrency(*p.Currency)
		}
		if p.Notes != nil {
			order.Notes = *p.Notes
		}
		if p.Items != nil {
			items, err := buildItems(*p.Items)
			if err != nil {
				return err
			}
			order.Items = items
		}
		order.TotalAmount = orderTotal(order.Items)
		if err := validateOrder(order); err != nil {
			return err
		}
		order.UpdatedAt = s.engine.Now()
		if err := s.repo.UpdateDraft(ctx, order, status); err != nil {
			if errors.Is(err, repo.ErrStatusChanged) {
				return errorbank.ConcurrentModification("Sales order was modified concurrently; reload and retry")
			}
			return errorbank.Internal("failed to update sales order", errorbank.WithCause(err))
		}
		if p.Items != nil {
			if err := s.repo.ReplaceItems(ctx, order); err != nil {
				return errorbank.Internal("failed to update sales order items", errorbank.WithCause(err))
			}
		}
		number = order.Number
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return nil, err
	}

	s.events.Dispatch(ctx, events.ChangeEvent{
		Action:     events.ActionUpdated,
		EntityType: subject.Kind,
		EntityID:   id,
		Number:     number,
		Status:     string(subject.Machine.Initial()),
		Actor:      actor,
	})
	return s.Get(ctx, id)
}

// Delete removes a draft order that no work order references.
func (s *Service) Delete(ctx context.Context, id, actor string) error {
	ctx, span := serviceTracer.Start(ctx, "SalesOrderService.Delete", trace.WithAttributes(attribute.String("sales_order.id", id)))
	defer span.End()

	actor = strings.TrimSpace(actor)
	if actor == "" {
		return errorbank.Validation("actor is required")
	}

	err := s.conns.RunInTx(ctx, func(ctx context.Context) error {
		status, err := s.engine.Guard(ctx, subject, id, transition.OpDelete)
		if err != nil {
			return err
		}
		refs, err := s.workOrders.CountBySalesOrder(ctx, id)
		if err != nil {
			return errorbank.Internal("failed to check sales order references", errorbank.WithCause(err))
		}
		if refs > 0 {
			return errorbank.ReferentialIntegrity(
				fmt.Sprintf("Cannot delete sales order: still referenced by %d work order(s)", refs),
				errorbank.WithDetail("workOrders", refs))
		}
		if err := s.repo.Delete(ctx, id, status); err != nil {
			if errors.Is(err, repo.ErrStatusChanged) {
				return errorbank.ConcurrentModification("Sales order was modified concurrently; reload and retry")
			}
			return errorbank.Internal("failed to delete sales order", errorbank.WithCause(err))
		}
		return s.engine.Purge(ctx, subject, id)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
		return err
	}

	s.events.Dispatch(ctx, events.ChangeEvent{
		Action:     events.ActionDeleted,
		EntityType: subject.Kind,
		EntityID:   id,
		Actor:      actor,
	})
	return nil
}

// ChangeStatus moves an order through the approval workflow.
func (s *Service) ChangeStatus(ctx context.Context, id, target, actor, reason string) (*Detail, error) {
	change, err := s.engine.Transition(ctx, subject, id, target, actor, reason)
	if err != nil {
		return nil, err
	}
	detail, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.events.Dispatch(ctx, events.FromChange(change, detail.Order.Number))
	return detail, nil
}

func buildItems(in []ItemInput) ([]*entity.SalesOrderItem, error) {
	if len(in) == 0 {
		return nil, errorbank.Validation("at least one item is required", errorbank.WithDetail("field", "items"))
	}
	out := make([]*entity.SalesOrderItem, 0, len(in))
	for i, it := range in {
		style := strings.TrimSpace(it.Style)
		if style == "" {
			return nil, errorbank.Validation(fmt.Sprintf("items[%d].style is required", i))
		}
		if it.Quantity <= 0 {
			return nil, errorbank.Validation(fmt.Sprintf("items[%d].quantity must be greater than zero", i))
		}
		if it.UnitPrice.IsNegative() {
			return nil, errorbank.Validation(fmt.Sprintf("items[%d].unitPrice must not be negative", i))
		}
		out = append(out, &entity.SalesOrderItem{
			ID:          entity.NewID(),
			Style:       style,
			Description: it.Description,
			Color:       strings.TrimSpace(it.Color),
			Size:        strings.TrimSpace(it.Size),
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice.Round(2),
		})
	}
	return out, nil
}

func validateOrder(o *entity.SalesOrder) error {
	if len(o.Currency) != 3 {
		return errorbank.Validation("currency must be a 3-letter ISO code", errorbank.WithDetail("field", "currency"))
	}
	if o.DeliveryDate != nil && o.DeliveryDate.Before(o.OrderDate.Truncate(24*time.Hour)) {
		return errorbank.Validation("deliveryDate must not be before orderDate", errorbank.WithDetail("field", "deliveryDate"))
	}
	return nil
}

func orderTotal(items []*entity.SalesOrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.LineTotal())
	}
	return total
}

func normaliseCurrency(c string) string {
	c = strings.ToUpper(strings.TrimSpace(c))
	if c == "" {
		return defaultCurrency
	}
	return c
}
