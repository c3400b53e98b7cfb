// Package transition applies status changes to tracked entities. Every change
// is validated against the entity's workflow machine, written with a
// compare-and-set on the expected previous status and recorded as one history
// row in the same transaction.
package transition

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/loom/internal/database"
	"github.com/Additional-Code/loom/internal/entity"
	"github.com/Additional-Code/loom/internal/repository/history"
	"github.com/Additional-Code/loom/internal/workflow"
	"github.com/Additional-Code/loom/pkg/errorbank"
)

const instrumentation = "github.com/Additional-Code/loom/service/transition"

var serviceTracer = otel.Tracer(instrumentation)

// Subject binds an entity kind to its table and workflow machine.
type Subject struct {
	Kind    string
	Table   string
	Label   string
	Machine *workflow.Machine
}

// Subjects tracked by the engine.
var (
	SampleRequest = Subject{Kind: entity.KindSampleRequest, Table: "sample_requests", Label: "Sample request", Machine: workflow.Approval}
	SalesOrder    = Subject{Kind: entity.KindSalesOrder, Table: "sales_orders", Label: "Sales order", Machine: workflow.Approval}
	WorkOrder     = Subject{Kind: entity.KindWorkOrder, Table: "work_orders", Label: "Work order", Machine: workflow.Production}
)

// Operation is a field-level mutation that only the initial state permits.
type Operation int

const (
	OpEdit Operation = iota
	OpDelete
)

// Change describes one applied status change.
type Change struct {
	Subject  Subject
	EntityID string
	From     string
	To       string
	Record   *entity.StatusHistory
}

// Created reports whether the change is the creation entry.
func (c *Change) Created() bool {
	return c.Record != nil && c.Record.PreviousStatus == nil
}

// Engine is the only writer of status columns.
type Engine struct {
	conns       *database.Connections
	history     *history.Repository
	logger      *zap.Logger
	transitions metric.Int64Counter
	now         func() time.Time
	// beforeSwap runs between the status read and the compare-and-set.
	beforeSwap func(ctx context.Context, subj Subject, id string)
}

// Params defines dependencies for constructing Engine.
type Params struct {
	fx.In

	Conns   *database.Connections
	History *history.Repository
	Logger  *zap.Logger
	Meter   metric.Meter `optional:"true"`
}

// NewEngine wires a transition engine.
func NewEngine(p Params) (*Engine, error) {
	meter := p.Meter
	if meter == nil {
		meter = otel.Meter(instrumentation)
	}
	counter, err := meter.Int64Counter(
		"loom.status.transitions",
		metric.WithDescription("Applied status transitions by entity kind and target status"),
	)
	if err != nil {
		return nil, fmt.Errorf("create transitions counter: %w", err)
	}
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		conns:       p.Conns,
		history:     p.History,
		logger:      logger,
		transitions: counter,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// Now returns the engine clock, truncated to microseconds so values survive
// a round trip through every supported database.
func (e *Engine) Now() time.Time {
	return e.now().Truncate(time.Microsecond)
}

// Created records the creation entry (no previous status, reason "created")
// of an entity that was just inserted in its initial state. Callers run it in
// the transaction that inserted the entity and pass the change to Committed
// once that transaction commits.
func (e *Engine) Created(ctx context.Context, subj Subject, id, actor string, at time.Time) (*Change, error) {
	reason := workflow.CreatedReason
	row := &entity.StatusHistory{
		ID:           entity.NewID(),
		EntityType:   subj.Kind,
		EntityID:     id,
		NewStatus:    string(subj.Machine.Initial()),
		ChangedBy:    actor,
		ChangeReason: &reason,
		ChangedAt:    at,
	}
	if err := e.history.Append(ctx, row); err != nil {
		return nil, errorbank.Internal("failed to record status history", errorbank.WithCause(err))
	}
	return &Change{Subject: subj, EntityID: id, To: row.NewStatus, Record: row}, nil
}

// Transition moves an entity to target. The read, the compare-and-set and the
// history insert share one transaction; losing the compare-and-set fails with
// a concurrent modification error and writes nothing.
func (e *Engine) Transition(ctx context.Context, subj Subject, id, target, actor, reason string) (*Change, error) {
	ctx, span := serviceTracer.Start(ctx, "TransitionEngine.Transition", trace.WithAttributes(
		attribute.String("entity.type", subj.Kind),
		attribute.String("entity.id", id),
		attribute.String("status.target", target),
	))
	defer span.End()

	actor = strings.TrimSpace(actor)
	if actor == "" {
		return nil, errorbank.Validation("actor is required")
	}
	to, err := subj.Machine.Parse(strings.TrimSpace(target))
	if err != nil {
		return nil, errorbank.Validation(fmt.Sprintf("Invalid status: %s", target),
			errorbank.WithDetail("allowed", subj.Machine.States()))
	}

	var change *Change
	err = e.conns.RunInTx(ctx, func(ctx context.Context) error {
		current, err := e.history.CurrentStatus(ctx, subj.Table, id)
		if err != nil {
			if errors.Is(err, history.ErrNotFound) {
				return errorbank.NotFound(subj.Label + " not found")
			}
			return errorbank.Internal("failed to load status", errorbank.WithCause(err))
		}
		from := workflow.State(current)
		if err := subj.Machine.Validate(from, to); err != nil {
			return errorbank.InvalidTransition(current, string(to), errorbank.WithCause(err))
		}

		if e.beforeSwap != nil {
			e.beforeSwap(ctx, subj, id)
		}

		at := e.Now()
		if err := e.history.SwapStatus(ctx, subj.Table, id, current, string(to), at); err != nil {
			if errors.Is(err, history.ErrStaleStatus) {
				return errorbank.ConcurrentModification(
					fmt.Sprintf("%s was modified concurrently; reload and retry", subj.Label),
					errorbank.WithDetail("expected", current))
			}
			return errorbank.Internal("failed to update status", errorbank.WithCause(err))
		}

		row := &entity.StatusHistory{
			ID:             entity.NewID(),
			EntityType:     subj.Kind,
			EntityID:       id,
			PreviousStatus: &current,
			NewStatus:      string(to),
			ChangedBy:      actor,
			ChangedAt:      at,
		}
		if r := strings.TrimSpace(reason); r != "" {
			row.ChangeReason = &r
		}
		if err := e.history.Append(ctx, row); err != nil {
			return errorbank.Internal("failed to record status history", errorbank.WithCause(err))
		}
		change = &Change{Subject: subj, EntityID: id, From: current, To: string(to), Record: row}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transition rejected")
		return nil, err
	}

	e.Committed(ctx, change)
	return change, nil
}

// Committed counts and logs a change whose transaction has committed.
func (e *Engine) Committed(ctx context.Context, change *Change) {
	if change == nil {
		return
	}
	e.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entity_type", change.Subject.Kind),
		attribute.String("status", change.To),
	))
	fields := []zap.Field{
		zap.String("entity_type", change.Subject.Kind),
		zap.String("entity_id", change.EntityID),
		zap.String("to", change.To),
	}
	if change.Record != nil {
		fields = append(fields, zap.String("actor", change.Record.ChangedBy))
	}
	if change.Created() {
		e.logger.Info("entity created", fields...)
		return
	}
	e.logger.Info("status changed", append(fields, zap.String("from", change.From))...)
}

// Guard returns the current status of an entity when op is allowed in it.
// Outside the initial state it fails with an edit/delete-not-allowed error.
func (e *Engine) Guard(ctx context.Context, subj Subject, id string, op Operation) (string, error) {
	current, err := e.history.CurrentStatus(ctx, subj.Table, id)
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			return "", errorbank.NotFound(subj.Label + " not found")
		}
		return "", errorbank.Internal("failed to load status", errorbank.WithCause(err))
	}
	if subj.Machine.Editable(workflow.State(current)) {
		return current, nil
	}
	initial := subj.Machine.Initial()
	if op == OpDelete {
		return "", errorbank.DeleteNotAllowed(
			fmt.Sprintf("%s can only be deleted in %s status", subj.Label, initial),
			errorbank.WithDetail("status", current))
	}
	return "", errorbank.EditNotAllowed(
		fmt.Sprintf("%s can only be edited in %s status", subj.Label, initial),
		errorbank.WithDetail("status", current))
}

// History lists the audit trail of an entity, newest first.
func (e *Engine) History(ctx context.Context, subj Subject, id string) ([]*entity.StatusHistory, error) {
	rows, err := e.history.ListByEntity(ctx, subj.Kind, id)
	if err != nil {
		return nil, errorbank.Internal("failed to load status history", errorbank.WithCause(err))
	}
	return rows, nil
}

// Purge deletes the audit trail of an entity being deleted.
func (e *Engine) Purge(ctx context.Context, subj Subject, id string) error {
	if err := e.history.DeleteByEntity(ctx, subj.Kind, id); err != nil {
		return errorbank.Internal("failed to delete status history", errorbank.WithCause(err))
	}
	return nil
}
