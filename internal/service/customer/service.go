package customer

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

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
	repo "github.com/Additional-Code/loom/internal/repository/customer"
	"github.com/Additional-Code/loom/internal/service/transition"
	"github.com/Additional-Code/loom/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/Additional-Code/loom/service/customer")

// Input carries the fields of a new customer.
type Input struct {
	Name            string
	ContactPerson   string
	Email           string
	Phone           string
	BillingAddress  string
	ShippingAddress string
	Status          string
	Notes           string
}

// Patch carries the fields to change; nil fields are left untouched.
type Patch struct {
	Name            *string
	ContactPerson   *string
	Email           *string
	Phone           *string
	BillingAddress  *string
	ShippingAddress *string
	Status          *string
	Notes           *string
}

// Service encapsulates business logic around customers.
type Service struct {
	conns  *database.Connections
	repo   *repo.Repository
	engine *transition.Engine
	events *events.Dispatcher
	logger *zap.Logger
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Conns      *database.Connections
	Repository *repo.Repository
	Engine     *transition.Engine
	Events     *events.Dispatcher
	Logger     *zap.Logger
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return &Service{
		conns:  p.Conns,
		repo:   p.Repository,
		engine: p.Engine,
		events: p.Events,
		logger: p.Logger,
	}
}

// Create validates and stores a customer. Emails are unique ignoring case.
func (s *Service) Create(ctx context.Context, actor string, in Input) (*entity.Customer, error) {
	ctx, span := serviceTracer.Start(ctx, "CustomerService.Create")
	defer span.End()

	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if in.Status == "" {
		in.Status = entity.CustomerActive
	}
	now := s.engine.Now()
	c := &entity.Customer{
		ID:              entity.NewID(),
		Name:            strings.TrimSpace(in.Name),
		ContactPerson:   strings.TrimSpace(in.ContactPerson),
		Email:           strings.TrimSpace(in.Email),
		Phone:           strings.TrimSpace(in.Phone),
		BillingAddress:  in.BillingAddress,
		ShippingAddress: in.ShippingAddress,
		Status:          in.Status,
		Notes:           in.Notes,
		CreatedBy:       actor,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := validate(c); err != nil {
		return nil, err
	}

	err := s.conns.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.ensureEmailFree(ctx, c.Email, ""); err != nil {
			return err
		}
		if err := s.repo.Create(ctx, c); err != nil {
			return errorbank.Internal("failed to create customer", errorbank.WithCause(err))
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		return nil, err
	}

	s.dispatch(ctx, events.ActionCreated, c, actor)
	return c, nil
}

// Get retrieves a customer by id.
func (s *Service) Get(ctx context.Context, id string) (*entity.Customer, error) {
	ctx, span := serviceTracer.Start(ctx, "CustomerService.Get", trace.WithAttributes(attribute.String("customer.id", id)))
	defer span.End()

	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, errorbank.NotFound("customer not found")
		}
		span.RecordError(err)
		return nil, errorbank.Internal("failed to load customer", errorbank.WithCause(err))
	}
	return c, nil
}

// List returns a filtered page of customers and the total count.
func (s *Service) List(ctx context.Context, f repository.Filter) ([]*entity.Customer, int, error) {
	if f.Status != "" && !entity.ValidCustomerStatus(f.Status) {
		return nil, 0, errorbank.Validation(fmt.Sprintf("Invalid status: %s", f.Status))
	}
	rows, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, 0, errorbank.Internal("failed to list customers", errorbank.WithCause(err))
	}
	return rows, total, nil
}

// Update applies a field-level patch.
func (s *Service) Update(ctx context.Context, id, actor string, p Patch) (*entity.Customer, error) {
	ctx, span := serviceTracer.Start(ctx, "CustomerService.Update", trace.WithAttributes(attribute.String("customer.id", id)))
	defer span.End()

	if err := requireActor(actor); err != nil {
		return nil, err
	}

	var updated *entity.Customer
	err := s.conns.RunInTx(ctx, func(ctx context.Context) error {
		c, err := s.repo.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return errorbank.NotFound("customer not found")
			}
			return errorbank.Internal("failed to load customer", errorbank.WithCause(err))
		}
		apply(c, p)
		if err := validate(c); err != nil {
			return err
		}
		if p.Email != nil {
			if err := s.ensureEmailFree(ctx, c.Email, c.ID); err != nil {
				return err
			}
		}
		c.UpdatedAt = s.engine.Now()
		if err := s.repo.Update(ctx, c); err != nil {
			return errorbank.Internal("failed to update customer", errorbank.WithCause(err))
		}
		updated = c
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return nil, err
	}

	s.dispatch(ctx, events.ActionUpdated, updated, actor)
	return updated, nil
}

// Delete removes a customer that nothing references.
func (s *Service) Delete(ctx context.Context, id, actor string) error {
	ctx, span := serviceTracer.Start(ctx, "CustomerService.Delete", trace.WithAttributes(attribute.String("customer.id", id)))
	defer span.End()

	if err := requireActor(actor); err != nil {
		return err
	}

	var deleted *entity.Customer
	err := s.conns.RunInTx(ctx, func(ctx context.Context) error {
		c, err := s.repo.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return errorbank.NotFound("customer not found")
			}
			return errorbank.Internal("failed to load customer", errorbank.WithCause(err))
		}
		refs, err := s.repo.CountReferences(ctx, id)
		if err != nil {
			return errorbank.Internal("failed to check customer references", errorbank.WithCause(err))
		}
		if refs.Total() > 0 {
			return errorbank.ReferentialIntegrity(referenceMessage(refs), errorbank.WithDetails(map[string]any{
				"salesOrders":    refs.SalesOrders,
				"sampleRequests": refs.SampleRequests,
				"workOrders":     refs.WorkOrders,
			}))
		}
		if err := s.repo.Delete(ctx, id); err != nil {
			return errorbank.Internal("failed to delete customer", errorbank.WithCause(err))
		}
		deleted = c
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
		return err
	}

	s.dispatch(ctx, events.ActionDeleted, deleted, actor)
	return nil
}

func (s *Service) ensureEmailFree(ctx context.Context, email, excludeID string) error {
	taken, err := s.repo.EmailTaken(ctx, email, excludeID)
	if err != nil {
		return errorbank.Internal("failed to check customer email", errorbank.WithCause(err))
	}
	if taken {
		return errorbank.Conflict(fmt.Sprintf("a customer with email %s already exists", email),
			errorbank.WithDetail("field", "email"))
	}
	return nil
}

func (s *Service) dispatch(ctx context.Context, action string, c *entity.Customer, actor string) {
	s.events.Dispatch(ctx, events.ChangeEvent{
		Action:     action,
		EntityType: events.EntityCustomer,
		EntityID:   c.ID,
		Number:     c.Name,
		Status:     c.Status,
		Actor:      actor,
		OccurredAt: c.UpdatedAt,
	})
}

func apply(c *entity.Customer, p Patch) {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}
	set(&c.Name, p.Name)
	set(&c.ContactPerson, p.ContactPerson)
	set(&c.Email, p.Email)
	set(&c.Phone, p.Phone)
	set(&c.BillingAddress, p.BillingAddress)
	set(&c.ShippingAddress, p.ShippingAddress)
	set(&c.Status, p.Status)
	set(&c.Notes, p.Notes)
}

func validate(c *entity.Customer) error {
	if c.Name == "" {
		return errorbank.Validation("name is required", errorbank.WithDetail("field", "name"))
	}
	if c.Email == "" {
		return errorbank.Validation("email is required", errorbank.WithDetail("field", "email"))
	}
	if addr, err := mail.ParseAddress(c.Email); err != nil || addr.Address != c.Email {
		return errorbank.Validation(fmt.Sprintf("invalid email: %s", c.Email), errorbank.WithDetail("field", "email"))
	}
	if !entity.ValidCustomerStatus(c.Status) {
		return errorbank.Validation(fmt.Sprintf("Invalid status: %s", c.Status), errorbank.WithDetail("field", "status"))
	}
	return nil
}

func referenceMessage(refs repo.References) string {
	var parts []string
	for _, ref := range []struct {
		n    int
		name string
	}{
		{refs.SalesOrders, "sales order(s)"},
		{refs.SampleRequests, "sample request(s)"},
		{refs.WorkOrders, "work order(s)"},
	} {
		if ref.n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", ref.n, ref.name))
		}
	}
	return "Cannot delete customer: still referenced by " + strings.Join(parts, ", ")
}

func requireActor(actor string) error {
	if strings.TrimSpace(actor) == "" {
		return errorbank.Validation("actor is required")
	}
	return nil
}
