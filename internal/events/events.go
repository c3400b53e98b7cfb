// Package events fans committed changes out to the dashboard cache, the
// message bus and websocket subscribers.
package events

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/loom/internal/cache"
	"github.com/Additional-Code/loom/internal/config"
	"github.com/Additional-Code/loom/internal/messaging"
	"github.com/Additional-Code/loom/internal/realtime"
	"github.com/Additional-Code/loom/internal/service/transition"
)

// Actions carried by change events.
const (
	ActionCreated        = "created"
	ActionUpdated        = "updated"
	ActionDeleted        = "deleted"
	ActionStatusChanged  = "status_changed"
	ActionReportAttached = "report_attached"
)

// Entity types without a status machine.
const (
	EntityCustomer   = "customer"
	EntityInspection = "inspection"
)

// defaultPublishTimeout bounds a bus publish when none is configured.
const defaultPublishTimeout = 2 * time.Second

// Module provides the dispatcher to Fx.
var Module = fx.Provide(NewDispatcher)

// ChangeEvent describes one committed mutation.
type ChangeEvent struct {
	Action         string    `json:"action"`
	EntityType     string    `json:"entity_type"`
	EntityID       string    `json:"entity_id"`
	Number         string    `json:"number,omitempty"`
	PreviousStatus *string   `json:"previous_status,omitempty"`
	Status         string    `json:"status,omitempty"`
	Actor          string    `json:"actor"`
	Reason         *string   `json:"reason,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Type is the event type header value, e.g. sample_request.status_changed.
func (e ChangeEvent) Type() string {
	return e.EntityType + "." + e.Action
}

// FromChange builds the event for an applied status change or creation.
func FromChange(change *transition.Change, number string) ChangeEvent {
	ev := ChangeEvent{
		Action:     ActionStatusChanged,
		EntityType: change.Subject.Kind,
		EntityID:   change.EntityID,
		Number:     number,
		Status:     change.To,
	}
	if rec := change.Record; rec != nil {
		ev.PreviousStatus = rec.PreviousStatus
		ev.Actor = rec.ChangedBy
		ev.Reason = rec.ChangeReason
		ev.OccurredAt = rec.ChangedAt
	}
	if change.Created() {
		ev.Action = ActionCreated
	}
	return ev
}

// Broadcaster pushes raw payloads to live subscribers.
type Broadcaster interface {
	Broadcast(payload []byte)
}

// Dispatcher delivers change events after commit. Delivery failures are
// logged and never surface to the caller.
type Dispatcher struct {
	cache   cache.Store
	bus     messaging.Client
	hub     Broadcaster
	publish bool
	timeout time.Duration
	logger  *zap.Logger
}

// Params defines dependencies for constructing Dispatcher.
type Params struct {
	fx.In

	Cache  cache.Store
	Bus    messaging.Client
	Hub    *realtime.Hub `optional:"true"`
	Config config.Config
	Logger *zap.Logger
}

// NewDispatcher wires a dispatcher.
func NewDispatcher(p Params) *Dispatcher {
	d := &Dispatcher{
		cache:   p.Cache,
		bus:     p.Bus,
		publish: p.Config.Messaging.Enabled,
		timeout: p.Config.Messaging.PublishTimeout,
		logger:  p.Logger,
	}
	if d.timeout <= 0 {
		d.timeout = defaultPublishTimeout
	}
	if p.Hub != nil {
		d.hub = p.Hub
	}
	if d.logger == nil {
		d.logger = zap.NewNop()
	}
	return d
}

// WithBroadcaster replaces the websocket fan-out target.
func (d *Dispatcher) WithBroadcaster(b Broadcaster) *Dispatcher {
	d.hub = b
	return d
}

// Dispatch delivers ev to every sink.
func (d *Dispatcher) Dispatch(ctx context.Context, ev ChangeEvent) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	log := d.logger.With(
		zap.String("event", ev.Type()),
		zap.String("entity_id", ev.EntityID),
	)

	if d.cache != nil {
		if err := cache.InvalidateDashboard(ctx, d.cache); err != nil {
			log.Warn("dashboard cache invalidation failed", zap.Error(err))
		}
	}

	if d.publish && d.bus != nil {
		pubCtx, cancel := context.WithTimeout(ctx, d.timeout)
		err := messaging.PublishJSON(pubCtx, d.bus, ev.EntityID, ev.Type(), ev)
		cancel()
		if err != nil {
			log.Error("publish change event", zap.Error(err), zap.Duration("timeout", d.timeout))
		}
	}

	if d.hub != nil {
		payload, err := json.Marshal(ev)
		if err != nil {
			log.Error("marshal change event", zap.Error(err))
			return
		}
		d.hub.Broadcast(payload)
	}
}
