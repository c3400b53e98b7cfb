package sample

import (
	"context"
	"errors"
	"fmt"
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
	customerrepo "github.com/Additional-Code/loom/internal/repository/customer"
	repo "github.com/Additional-Code/loom/internal/repository/sample"
	"github.com/Additional-Code/loom/internal/service/transition"
	"github.com/Additional-Code/loom/internal/workflow"
	"github.com/Additional-Code/loom/pkg/errorbank"
	"github.com/Additional-Code/loom/pkg/pagination"
)

var serviceTracer = otel.Tracer("github.com/Additional-Code/loom/service/sample")

var subject = transition.SampleRequest

// Detail is a sample request with its full status history, newest first.
type Detail struct {
	Sample  *entity.SampleRequest
	History []*entity.StatusHistory
}

// Service encapsulates business logic around sample requests.
type Service struct {
	conns     *database.Connections
	repo      *repo.Repository
	customers *customerrepo.Repository
	engine    *transition.Engine
	events    *events.Dispatcher
	logger    *zap.Logger
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Conns      *database.Connections
	Repository *repo.Repository
	Customers  *customerrepo.Repository
	Engine     *transition.Engine
	Events     *events.Dispatcher
	Logger     *zap.Logger
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return &Service{
		conns:     p.Conns,
		repo:      p.Repository,
		customers: p.Customers,
		engine:    p.Engine,
		events:    p.Events,
		logger:    p.Logger,
	}
}

// Create stores a sample request in draft together with its creation history row.
func (s *Service) Create(ctx context.Context, actor string, in Input) (*Detail, error) {
	ctx, span := serviceTracer.Start(ctx, "SampleService.Create")
	defer span.End()

	actor = strings.TrimSpace(actor)
	if actor == "" {
		return nil, errorbank.Validation("actor is required")
	}
	now := s.engine.Now()
	sample := &entity.SampleRequest{
		ID:          entity.NewID(),
		Number:      entity.NewNumber(entity.PrefixSample, now),
		CustomerID:  strings.TrimSpace(in.CustomerID),
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Color:       strings.TrimSpace(in.Color),
		Quantity:    in.Quantity,
		Notes:       in.Notes,
		Status:      string(subject.Machine.Initial()),
		CreatedBy:   actor,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := validateSample(sample); err != nil {
		return nil, err
	}
	materials, err := buildMaterials(in.Materials)
	if err != nil {
		return nil, err
	}
	stages, err := buildStages(in.Stages)
	if err != nil {
		return nil, err
	}
	sample.Materials, sample.Stages = materials, stages

	var change *transition.Change
	err = s.conns.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.requireCustomer(ctx, sample.CustomerID); err != nil {
			return err
		}
		if err := s.repo.Create(ctx, sample); err != nil {
			return errorbank.Internal("failed to create sample request", errorbank.WithCause(err))
		}
		change, err = s.engine.Created(ctx, subject, sample.ID, actor, now)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		return nil, err
	}

	s.engine.Committed(ctx, change)
	s.events.Dispatch(ctx, events.FromChange(change, sample.Number))
	return s.Get(ctx, sample.ID)
}

// Get returns a sample with customer, line items and history.
func (s *Service) Get(ctx context.Context, id string) (*Detail, error) {
	ctx, span := serviceTracer.Start(ctx, "SampleService.Get", trace.WithAttributes(attribute.String("sample.id", id)))
	defer span.End()

	sample, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, errorbank.NotFound("Sample request not found")
		}
		span.RecordError(err)
		return nil, errorbank.Internal("failed to load sample request", errorbank.WithCause(err))
	}
	history, err := s.engine.History(ctx, subject, id)
	if err != nil {
		return nil, err
	}
	return &Detail{Sample: sample, History: history}, nil
}

// List returns a filtered page of samples and the total count.
func (s *Service) List(ctx context.Context, f repository.Filter) ([]*entity.SampleRequest, int, error) {
	if f.Status != "" && !subject.Machine.Has(workflow.State(f.Status)) {
		return nil, 0, errorbank.Validation(fmt.Sprintf("Invalid status: %s", f.Status))
	}
	rows, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, 0, errorbank.Internal("failed to list sample requests", errorbank.WithCause(err))
	}
	return rows, total, nil
}

// All returns every sample matching f, ignoring its pagination.
func (s *Service) All(ctx context.Context, f repository.Filter) ([]*entity.SampleRequest, error) {
	var out []*entity.SampleRequest
	for page := 1; ; page++ {
		f.Page = pagination.New(page, pagination.MaxLimit)
		rows, total, err := s.List(ctx, f)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
		if len(rows) == 0 || len(out) >= total {
			return out, nil
		}
	}
}

// Update applies a field-level patch. Only draft samples are editable; the
// write itself is guarded on the draft status.
func (s *Service) Update(ctx context.Context, id, actor string, p Patch) (*Detail, error) {
	ctx, span := serviceTracer.Start(ctx, "SampleService.Update", trace.WithAttributes(attribute.String("sample.id", id)))
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
		sample, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return errorbank.Internal("failed to load sample request", errorbank.WithCause(err))
		}
		if err := s.apply(sample, p); err != nil {
			return err
		}
		sample.UpdatedAt = s.engine.Now()
		if err := s.repo.UpdateDraft(ctx, sample, status); err != nil {
			if errors.Is(err, repo.ErrStatusChanged) {
				return errorbank.ConcurrentModification("Sample request was modified concurrently; reload and retry")
			}
			return errorbank.Internal("failed to update sample request", errorbank.WithCause(err))
		}
		if p.Materials != nil || p.Stages != nil {
			if err := s.repo.ReplaceLines(ctx, sample); err != nil {
				return errorbank.Internal("failed to update sample line items", errorbank.WithCause(err))
			}
		}
		number = sample.Number
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

// Delete removes a draft sample with its line items and history.
func (s *Service) Delete(ctx context.Context, id, actor string) error {
	ctx, span := serviceTracer.Start(ctx, "SampleService.Delete", trace.WithAttributes(attribute.String("sample.id", id)))
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
				return errorbank.ConcurrentModification("Sample request was modified concurrently; reload and retry")
			}
			return errorbank.Internal("failed to delete sample request", errorbank.WithCause(err))
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

// ChangeStatus moves a sample through the approval workflow.
func (s *Service) ChangeStatus(ctx context.Context, id, target, actor, reason string) (*Detail, error) {
	ctx, span := serviceTracer.Start(ctx, "SampleService.ChangeStatus", trace.WithAttributes(
		attribute.String("sample.id", id),
		attribute.String("status.target", target),
	))
	defer span.End()

	change, err := s.engine.Transition(ctx, subject, id, target, actor, reason)
	if err != nil {
		return nil, err
	}
	detail, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.events.Dispatch(ctx, events.FromChange(change, detail.Sample.Number))
	return detail, nil
}

func (s *Service) apply(sample *entity.SampleRequest, p Patch) error {
	if p.Name != nil {
		sample.Name = strings.TrimSpace(*p.Name)
	}
	if p.Description != nil {
		sample.Description = *p.Description
	}
	if p.Color != nil {
		sample.Color = strings.TrimSpace(*p.Color)
	}
	if p.Quantity != nil {
		sample.Quantity = *p.Quantity
	}
	if p.Notes != nil {
		sample.Notes = *p.Notes
	}
	if err := validateSample(sample); err != nil {
		return err
	}

	if p.Materials != nil {
		materials, err := buildMaterials(*p.Materials)
		if err != nil {
			return err
		}
		sample.Materials = materials
	}
	if p.Stages != nil {
		stages, err := buildStages(*p.Stages)
		if err != nil {
			return err
		}
		sample.Stages = stages
	}
	return nil
}

func (s *Service) requireCustomer(ctx context.Context, id string) error {
	if _, err := s.customers.GetByID(ctx, id); err != nil {
		if errors.Is(err, customerrepo.ErrNotFound) {
			return errorbank.NotFound("customer not found", errorbank.WithDetail("customerId", id))
		}
		return errorbank.Internal("failed to load customer", errorbank.WithCause(err))
	}
	return nil
}
