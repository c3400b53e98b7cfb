package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Additional-Code/loom/internal/cache"
	"github.com/Additional-Code/loom/internal/config"
	"github.com/Additional-Code/loom/internal/entity"
	"github.com/Additional-Code/loom/internal/messaging"
	"github.com/Additional-Code/loom/internal/service/transition"
)

type recordingBus struct {
	mu      sync.Mutex
	keys    []string
	headers []map[string]string
	err     error
}

func (b *recordingBus) Publish(_ context.Context, key, _ []byte, headers map[string]string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.keys = append(b.keys, string(key))
	b.headers = append(b.headers, headers)
	return b.err
}

func (b *recordingBus) Consume(ctx context.Context, _ messaging.Handler) error {
	<-ctx.Done()
	return ctx.Err()
}

func (b *recordingBus) Topic() string { return "loom.test.events" }

type recordingHub struct {
	payloads [][]byte
}

func (h *recordingHub) Broadcast(p []byte) { h.payloads = append(h.payloads, p) }

func TestDispatchReachesEverySink(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore(time.Minute)
	_ = store.Set(ctx, cache.DashboardKey(0), []byte("{}"), 0)
	bus := &recordingBus{}
	hub := &recordingHub{}

	d := NewDispatcher(Params{
		Cache:  store,
		Bus:    bus,
		Config: config.Config{Messaging: config.Messaging{Enabled: true}},
		Logger: zap.NewNop(),
	}).WithBroadcaster(hub)

	prev := "draft"
	d.Dispatch(ctx, ChangeEvent{
		Action:         ActionStatusChanged,
		EntityType:     entity.KindSampleRequest,
		EntityID:       "s-1",
		PreviousStatus: &prev,
		Status:         "on_review",
		Actor:          "tester",
	})

	if _, err := store.Get(ctx, cache.DashboardKey(0)); !errors.Is(err, cache.ErrCacheMiss) {
		t.Fatalf("dashboard cache should be invalidated, got %v", err)
	}
	if gen, _ := cache.DashboardGeneration(ctx, store); gen != 1 {
		t.Fatalf("dashboard generation = %d, want 1", gen)
	}
	if len(bus.keys) != 1 || bus.keys[0] != "s-1" {
		t.Fatalf("published keys = %v", bus.keys)
	}
	if got := bus.headers[0][messaging.HeaderEventType]; got != "sample_request.status_changed" {
		t.Fatalf("event type header = %q", got)
	}
	if len(hub.payloads) != 1 {
		t.Fatalf("broadcasts = %d", len(hub.payloads))
	}
	var ev ChangeEvent
	if err := json.Unmarshal(hub.payloads[0], &ev); err != nil {
		t.Fatalf("decode broadcast: %v", err)
	}
	if ev.Status != "on_review" || ev.OccurredAt.IsZero() {
		t.Fatalf("broadcast event = %+v", ev)
	}
}

func TestDispatchSwallowsPublishFailure(t *testing.T) {
	hub := &recordingHub{}
	d := NewDispatcher(Params{
		Cache:  cache.NewMemoryStore(0),
		Bus:    &recordingBus{err: errors.New("broker down")},
		Config: config.Config{Messaging: config.Messaging{Enabled: true}},
		Logger: zap.NewNop(),
	}).WithBroadcaster(hub)

	d.Dispatch(context.Background(), ChangeEvent{Action: ActionDeleted, EntityType: EntityCustomer, EntityID: "c-1"})
	if len(hub.payloads) != 1 {
		t.Fatal("broadcast should still happen when publishing fails")
	}
}

// stalledBus blocks every publish until its context ends.
type stalledBus struct {
	recordingBus
}

func (b *stalledBus) Publish(ctx context.Context, _, _ []byte, _ map[string]string) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestDispatchBoundsStalledPublish(t *testing.T) {
	hub := &recordingHub{}
	d := NewDispatcher(Params{
		Cache:  cache.NewMemoryStore(0),
		Bus:    &stalledBus{},
		Config: config.Config{Messaging: config.Messaging{Enabled: true, PublishTimeout: 20 * time.Millisecond}},
		Logger: zap.NewNop(),
	}).WithBroadcaster(hub)

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Dispatch(context.Background(), ChangeEvent{Action: ActionUpdated, EntityType: EntityCustomer, EntityID: "c-1"})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Dispatch did not return while the bus was stalled")
	}
	if len(hub.payloads) != 1 {
		t.Fatal("broadcast should still happen after a publish timeout")
	}
}

func TestFromChangeMarksCreation(t *testing.T) {
	reason := "created"
	change := &transition.Change{
		Subject:  transition.WorkOrder,
		EntityID: "wo-1",
		To:       "order_processing",
		Record:   &entity.StatusHistory{NewStatus: "order_processing", ChangedBy: "planner", ChangeReason: &reason},
	}
	ev := FromChange(change, "WO-1")
	if ev.Action != ActionCreated || ev.EntityType != entity.KindWorkOrder || ev.Actor != "planner" {
		t.Fatalf("event = %+v", ev)
	}
}
