// Package activity consumes change events from the bus: it logs them, drops
// the dashboard cache of this instance and counts them per type.
package activity

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/loom/internal/cache"
	"github.com/Additional-Code/loom/internal/events"
	"github.com/Additional-Code/loom/internal/messaging"
	"github.com/Additional-Code/loom/internal/worker"
)

const instrumentation = "github.com/Additional-Code/loom/worker/activity"

var workerTracer = otel.Tracer(instrumentation)

// Module registers the change event handler.
var Module = fx.Module("worker_activity",
	fx.Provide(
		NewHandler,
		fx.Annotate(
			func(h *Handler) worker.HandlerRegistration { return h.Registration() },
			fx.ResultTags(`group:"worker.handlers"`),
		),
	),
)

// Handler processes committed change events.
type Handler struct {
	cache     cache.Store
	logger    *zap.Logger
	processed metric.Int64Counter
}

// NewHandler builds the change event handler.
func NewHandler(store cache.Store, logger *zap.Logger) (*Handler, error) {
	processed, err := otel.Meter(instrumentation).Int64Counter("loom.events.processed",
		metric.WithDescription("Change events consumed by the worker"),
	)
	if err != nil {
		return nil, err
	}
	return &Handler{cache: store, logger: logger, processed: processed}, nil
}

// Registration binds the handler to every event type.
func (h *Handler) Registration() worker.HandlerRegistration {
	return worker.HandlerRegistration{EventType: worker.AnyEvent, Handler: h.Handle}
}

// Handle decodes one change event. Undecodable payloads are logged and
// skipped so they do not block the partition.
func (h *Handler) Handle(ctx context.Context, msg messaging.Message) error {
	ctx, span := workerTracer.Start(ctx, "worker.activity.process", trace.WithAttributes(
		attribute.String("messaging.topic", msg.Topic),
		attribute.Int64("messaging.offset", msg.Offset),
	))
	defer span.End()

	var ev events.ChangeEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		h.logger.Error("failed to decode change event", zap.Error(err), zap.Int64("offset", msg.Offset))

		span.RecordError(err)
		span.SetStatus(codes.Error, "decode error")
		return nil
	}
	span.SetAttributes(attribute.String("event.type", ev.Type()))

	if err := cache.InvalidateDashboard(ctx, h.cache); err != nil {
		h.logger.Warn("dashboard cache invalidation failed", zap.Error(err))
	}
	h.processed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entity_type", ev.EntityType),
		attribute.String("action", ev.Action),
	))

	fields := []zap.Field{
		zap.String("event", ev.Type()),
		zap.String("entity_id", ev.EntityID),
		zap.String("number", ev.Number),
		zap.String("actor", ev.Actor),
		zap.Time("occurred_at", ev.OccurredAt),
	}
	if ev.PreviousStatus != nil {
		fields = append(fields, zap.String("from", *ev.PreviousStatus))
	}
	if ev.Status != "" {
		fields = append(fields, zap.String("to", ev.Status))
	}
	h.logger.Info("change event processed", fields...)
	return nil
}
