package dashboard_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Additional-Code/loom/internal/cache"
	"github.com/Additional-Code/loom/internal/config"
	"github.com/Additional-Code/loom/internal/database"
	"github.com/Additional-Code/loom/internal/entity"
	"github.com/Additional-Code/loom/internal/events"
	repo "github.com/Additional-Code/loom/internal/repository/dashboard"
	historyrepo "github.com/Additional-Code/loom/internal/repository/history"
	samplerepo "github.com/Additional-Code/loom/internal/repository/sample"
	"github.com/Additional-Code/loom/internal/service/dashboard"
	"github.com/Additional-Code/loom/internal/service/transition"
	"github.com/Additional-Code/loom/internal/testutil"
	"github.com/Additional-Code/loom/internal/workflow"
)

func TestBuildProjectsLiveState(t *testing.T) {
	ctx := context.Background()
	conns, cfg := testutil.NewDB(t)
	engine := testutil.Engine(t, conns)
	customer := testutil.InsertCustomer(t, conns, "Acme")

	polo := testutil.InsertSample(t, conns, customer.ID, "Polo")
	tee := testutil.InsertSample(t, conns, customer.ID, "Tee")
	testutil.InsertSample(t, conns, customer.ID, "Hoodie")
	testutil.InsertWorkOrder(t, conns, customer.ID, workflow.Cutting)

	lines := []any{
		&entity.MaterialRequirement{ID: entity.NewID(), SampleID: polo.ID, MaterialName: "Pique", Category: "fabric", Quantity: decimal.RequireFromString("2.5")},
		&entity.MaterialRequirement{ID: entity.NewID(), SampleID: tee.ID, MaterialName: "Jersey", Category: "fabric", Quantity: decimal.RequireFromString("1.5")},
		&entity.ProcessStage{ID: entity.NewID(), SampleID: polo.ID, Stage: "embroidery", Sequence: 1},
		&entity.ProcessStage{ID: entity.NewID(), SampleID: tee.ID, Stage: "embroidery", Sequence: 1},
	}
	for _, m := range lines {
		if _, err := conns.Writer.NewInsert().Model(m).Exec(ctx); err != nil {
			t.Fatalf("insert line: %v", err)
		}
	}

	if _, err := engine.Transition(ctx, transition.SampleRequest, polo.ID, "on_review", testutil.Actor, "ready"); err != nil {
		t.Fatalf("Transition() error = %v", err)
	}
	if _, err := engine.Transition(ctx, transition.SampleRequest, polo.ID, "approved", testutil.Actor, ""); err != nil {
		t.Fatalf("Transition() error = %v", err)
	}

	svc := newService(conns, cfg, cache.NewMemoryStore(time.Minute))
	d, err := svc.Build(ctx)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if d.Overview.TotalSamples != 3 || len(d.Samples) != 3 {
		t.Fatalf("samples = %d/%d", d.Overview.TotalSamples, len(d.Samples))
	}
	want := map[string]int{"draft": 2, "on_review": 0, "approved": 1, "revision": 0, "canceled": 0}
	for status, n := range want {
		if d.Overview.StatusCounts[status] != n {
			t.Errorf("StatusCounts[%s] = %d, want %d", status, d.Overview.StatusCounts[status], n)
		}
	}
	if d.Production.TotalWorkOrders != 1 || d.Production.StageCounts["cutting"] != 1 || d.Production.StageCounts["dispatch"] != 0 {
		t.Errorf("production = %+v", d.Production)
	}
	if len(d.Production.StageCounts) != len(transition.WorkOrder.Machine.States()) {
		t.Errorf("stage counts not zero-filled: %v", d.Production.StageCounts)
	}

	if len(d.Overview.MaterialSummary) != 1 || !d.Overview.MaterialSummary[0].TotalQuantity.Equal(decimal.NewFromInt(4)) {
		t.Errorf("material summary = %+v", d.Overview.MaterialSummary)
	}
	if len(d.Overview.ProcessStageUsage) != 1 || d.Overview.ProcessStageUsage[0].Samples != 2 {
		t.Errorf("process usage = %+v", d.Overview.ProcessStageUsage)
	}

	latest := d.RecentActivity[0]
	if latest.EntityID != polo.ID || latest.NewStatus != "approved" || latest.Name != "Polo" || latest.Number != polo.Number {
		t.Errorf("latest activity = %+v", latest)
	}
}

func TestRecentActivityIsBounded(t *testing.T) {
	conns, cfg := testutil.NewDB(t)
	customer := testutil.InsertCustomer(t, conns, "Acme")
	for i := 0; i < 12; i++ {
		testutil.InsertSample(t, conns, customer.ID, "Sample")
	}
	d, err := newService(conns, cfg, cache.NewMemoryStore(time.Minute)).Build(context.Background())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(d.RecentActivity) != 10 {
		t.Fatalf("recent activity = %d rows, want 10", len(d.RecentActivity))
	}
	for i := 1; i < len(d.RecentActivity); i++ {
		if d.RecentActivity[i].ChangedAt.After(d.RecentActivity[i-1].ChangedAt) {
			t.Fatalf("activity not newest first at %d", i)
		}
	}
}

func TestGetServesCacheUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	conns, cfg := testutil.NewDB(t)
	cfg.Dashboard.CacheTTL = time.Minute
	store := cache.NewMemoryStore(time.Minute)
	svc := newService(conns, cfg, store)
	customer := testutil.InsertCustomer(t, conns, "Acme")

	first, err := svc.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if first.Overview.TotalSamples != 0 {
		t.Fatalf("TotalSamples = %d", first.Overview.TotalSamples)
	}

	testutil.InsertSample(t, conns, customer.ID, "Polo")
	cached, _ := svc.Get(ctx)
	if cached.Overview.TotalSamples != 0 {
		t.Fatalf("expected cached projection, got %d samples", cached.Overview.TotalSamples)
	}

	testutil.Dispatcher(store).Dispatch(ctx, dashboardEvent())
	fresh, _ := svc.Get(ctx)
	if fresh.Overview.TotalSamples != 1 {
		t.Fatalf("TotalSamples after invalidation = %d", fresh.Overview.TotalSamples)
	}
}

// interleavingStore runs mutate before the first write it receives, as if
// a mutation committed while a dashboard projection was being built.
type interleavingStore struct {
	cache.Store
	once   sync.Once
	mutate func()
}

func (s *interleavingStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.once.Do(s.mutate)
	return s.Store.Set(ctx, key, value, ttl)
}

func TestGetDoesNotServeProjectionBuiltBeforeInvalidation(t *testing.T) {
	ctx := context.Background()
	conns, cfg := testutil.NewDB(t)
	cfg.Dashboard.CacheTTL = time.Minute
	engine := testutil.Engine(t, conns)
	customer := testutil.InsertCustomer(t, conns, "Acme")
	polo := testutil.InsertSample(t, conns, customer.ID, "Polo")

	inner := cache.NewMemoryStore(time.Minute)
	dispatcher := testutil.Dispatcher(inner)
	store := &interleavingStore{Store: inner, mutate: func() {
		change, err := engine.Transition(ctx, transition.SampleRequest, polo.ID, "on_review", testutil.Actor, "")
		if err != nil {
			t.Errorf("Transition() error = %v", err)
			return
		}
		dispatcher.Dispatch(ctx, events.FromChange(change, polo.Number))
	}}
	svc := newService(conns, cfg, store)

	first, err := svc.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if first.Overview.StatusCounts["draft"] != 1 {
		t.Fatalf("first projection = %v", first.Overview.StatusCounts)
	}

	next, err := svc.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if next.Overview.StatusCounts["on_review"] != 1 || next.Overview.StatusCounts["draft"] != 0 {
		t.Fatalf("projection after concurrent transition = %v", next.Overview.StatusCounts)
	}
}

func newService(conns *database.Connections, cfg config.Config, store cache.Store) *dashboard.Service {
	return dashboard.NewService(dashboard.Params{
		Repository: repo.NewRepository(conns),
		Samples:    samplerepo.NewRepository(conns),
		History:    historyrepo.NewRepository(conns),
		Cache:      store,
		Config:     cfg,
		Logger:     zap.NewNop(),
	})
}

func dashboardEvent() events.ChangeEvent {
	return events.ChangeEvent{
		Action:     events.ActionCreated,
		EntityType: entity.KindSampleRequest,
		EntityID:   entity.NewID(),
		Status:     string(workflow.Draft),
		Actor:      testutil.Actor,
	}
}
