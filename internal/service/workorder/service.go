package workorder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

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
	salesorderrepo "github.com/Additional-Code/loom/internal/repository/salesorder"
	repo "github.com/Additional-Code/loom/internal/repository/workorder"
	"github.com/Additional-Code/loom/internal/service/transition"
	"github.com/Additional-Code/loom/internal/workflow"
	"github.com/Additional-Code/loom/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/Additional-Code/loom/service/workorder")

var subject = transition.WorkOrder

// Input carries the fields of a new work order.
type Input struct {
	CustomerID   string
	SalesOrderID *string
	Name         string
	Description  string
	Color        string
	Quantity     int
	Notes        string
	DueDate      *time.Time
}

// Patch carries the fields to change; nil fields are left untouched.
type Patch struct {
	SalesOrderID *string
	Name         *string
	Description  *string
	Color        *string
	Quantity     *int
	Notes        *string
	DueDate      *time.Time
}

// Detail is a work order with its full status history, newest first.
type Detail struct {
	WorkOrder *entity.WorkOrder
	History   []*entity.StatusHistory
}

// Service encapsulates business logic around production work orders.
type Service struct {
	conns       *database.Connections
	repo        *repo.Repository
	customers   *customerrepo.Repository
	salesOrders *salesorderrepo.Repository
	engine      *transition.Engine
	events      *events.Dispatcher
	logger      *zap.Logger
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Conns       *database.Connections
	Repository  *repo.Repository
	Customers   *customerrepo.Repository
	SalesOrders *salesorderrepo.Repository
	Engine      *transition.Engine
	Events      *events.Dispatcher
	Logger      *zap.Logger
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return &Service{
		conns:       p.Conns,
		repo:        p.Repository,
		customers:   p.Customers,
		salesOrders: p.SalesOrders,
		engine:      p.Engine,
		events:      p.Events,
		logger:      p.Logger,
	}
}

// Create stores a work order in the first pipeline stage.
func (s *Service) Create(ctx context.Context, actor string, in Input) (*Detail, error) {
	ctx, span := serviceTracer.Start(ctx, "WorkOrderService.Create")
	defer span.End()

	actor = strings.TrimSpace(actor)
	if actor == "" {
		return nil, errorbank.Validation("actor is required")
	}
	now := s.engine.Now()
	wo := &entity.WorkOrder{
		ID:           entity.NewID(),
		Number:       entity.NewNumber(entity.PrefixWorkOrder, now),
		CustomerID:   strings.TrimSpace(in.CustomerID),
		SalesOrderID: normaliseRef(in.SalesOrderID),
		Name:         strings.TrimSpace(in.Name),
		Description:  in.Description,
		Color:        strings.TrimSpace(in.Color),
		Quantity:     in.Quantity,
		Notes:        in.Notes,
		DueDate:      in.DueDate,
		Status:       string(subject.Machine.Initial()),
		CreatedBy:    actor,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := validate(wo); err != nil {
		return nil, err
	}

	var change *transition.Change
	err := s.conns.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.checkReferences(ctx, wo); err != nil {
			return err
		}
		if err := s.repo.Create(ctx, wo); err != nil {
			return errorbank.Internal("failed to create work order", errorbank.WithCause(err))
		}
		var err error
		change, err = s.engine.Created(ctx, subject, wo.ID, actor, now)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		return nil, err
	}

	s.engine.Committed(ctx, change)
	s.events.Dispatch(ctx, events.FromChange(change, wo.Number))
	return s.Get(ctx, wo.ID)
}

// Get returns a work order with customer, inspections and history.
func (s *Service) Get(ctx context.Context, id string) (*Detail, error) {
	ctx, span := serviceTracer.Start(ctx, "WorkOrderService.Get", trace.WithAttributes(attribute.String("work_order.id", id)))
	defer span.End()

	wo, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, errorbank.NotFound("Work order not found")
		}
		span.RecordError(err)
		return nil, errorbank.Internal("failed to load work order", errorbank.WithCause(err))
	}
	history, err := s.engine.History(ctx, subject, id)
	if err != nil {
		return nil, err
	}
	return &Detail{WorkOrder: wo, History: history}, nil
}

// List returns a filtered page of work orders and the total count.
func (s *Service) List(ctx context.Context, f repository.Filter) ([]*entity.WorkOrder, int, error) {
	if f.Status != "" && !subject.Machine.Has(workflow.State(f.Status)) {
		return nil, 0, errorbank.Validation(fmt.Sprintf("Invalid status: %s", f.Status))
	}
	rows, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, 0, errorbank.Internal("failed to list work orders", errorbank.WithCause(err))
	}
	return rows, total, nil
}

// Update applies a field-level patch while the order is still in order processing.
func (s *Service) Update(ctx context.Context, id, actor string, p Patch) (*Detail, error) {
	ctx, span := serviceTracer.Start(ctx, "WorkOrderService.Update", trace.WithAttributes(attribute.String("work_order.id", id)))
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
		wo, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return errorbank.Internal("failed to load work order", errorbank.WithCause(err))
		}
		if p.SalesOrderID != nil {
			wo.SalesOrderID = normaliseRef(p.SalesOrderID)
		}
		if p.Name != nil {
			wo.Name = strings.TrimSpace(*p.Name)
		}
		if p.Description != nil {
			wo.Description = *p.Description
		}
		if p.Color != nil {
			wo.Color = strings.TrimSpace(*p.Color)
		}
		if p.Quantity != nil {
			wo.Quantity = *p.Quantity
		}
		if p.Notes != nil {
			wo.Notes = *p.Notes
		}
		if p.DueDate != nil {
			wo.DueDate = p.DueDate
		}
		if err := validate(wo); err != nil {
			return err
		}
		if p.SalesOrderID != nil {
			if err := s.checkReferences(ctx, wo); err != nil {
				return err
			}
		}
		wo.UpdatedAt = s.engine.Now()
		if err := s.repo.UpdateDraft(ctx, wo, status); err != nil {
			if errors.Is(err, repo.ErrStatusChanged) {
				return errorbank.ConcurrentModification("Work order was modified concurrently; reload and retry")
			}
			return errorbank.Internal("failed to update work order", errorbank.WithCause(err))
		}
		number = wo.Number
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

// Delete removes a work order that has not left order processing.
func (s *Service) Delete(ctx context.Context, id, actor string) error {
	ctx, span := serviceTracer.Start(ctx, "WorkOrderService.Delete", trace.WithAttributes(attribute.String("work_order.id", id)))
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
		if err := s.repo.Delete(ctx, id, status); err != nil {
			if errors.Is(err, repo.ErrStatusChanged) {
				return errorbank.ConcurrentModification("Work order was modified concurrently; reload and retry")
			}
			return errorbank.Internal("failed to delete work order", errorbank.WithCause(err))
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

// ChangeStatus moves a work order one stage forward in the pipeline.
func (s *Service) ChangeStatus(ctx context.Context, id, target, actor, reason string) (*Detail, error) {
	change, err := s.engine.Transition(ctx, subject, id, target, actor, reason)
	if err != nil {
		return nil, err
	}
	detail, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.events.Dispatch(ctx, events.FromChange(change, detail.WorkOrder.Number))
	return detail, nil
}

func (s *Service) checkReferences(ctx context.Context, wo *entity.WorkOrder) error {
	if _, err := s.customers.GetByID(ctx, wo.CustomerID); err != nil {
		if errors.Is(err, customerrepo.ErrNotFound) {
			return errorbank.NotFound("customer not found", errorbank.WithDetail("customerId", wo.CustomerID))
		}
		return errorbank.Internal("failed to load customer", errorbank.WithCause(err))
	}
	if wo.SalesOrderID == nil {
		return nil
	}
	so, err := s.salesOrders.GetByID(ctx, *wo.SalesOrderID)
	if err != nil {
		if errors.Is(err, salesorderrepo.ErrNotFound) {
			return errorbank.NotFound("Sales order not found", errorbank.WithDetail("salesOrderId", *wo.SalesOrderID))
		}
		return errorbank.Internal("failed to load sales order", errorbank.WithCause(err))
	}
	if so.CustomerID != wo.CustomerID {
		return errorbank.Validation("sales order belongs to a different customer", errorbank.WithDetail("field", "salesOrderId"))
	}
	return nil
}

func validate(wo *entity.WorkOrder) error {
	if wo.CustomerID == "" {
		return errorbank.Validation("customerId is required", errorbank.WithDetail("field", "customerId"))
	}
	if wo.Name == "" {
		return errorbank.Validation("name is required", errorbank.WithDetail("field", "name"))
	}
	if wo.Quantity <= 0 {
		return errorbank.Validation("quantity must be greater than zero", errorbank.WithDetail("field", "quantity"))
	}
	return nil
}

func normaliseRef(id *string) *string {
	if id == nil {
		return nil
	}
	v := strings.TrimSpace(*id)
	if v == "" {
		return nil
	}
	return &v
}
