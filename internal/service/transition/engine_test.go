package transition_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"

	"github.com/Additional-Code/loom/internal/database"
	"github.com/Additional-Code/loom/internal/repository/history"
	"github.com/Additional-Code/loom/internal/service/transition"
	"github.com/Additional-Code/loom/internal/testutil"
	"github.com/Additional-Code/loom/pkg/errorbank"
)

func newEngine(t *testing.T) (*transition.Engine, *database.Connections) {
	t.Helper()
	engine, conns, _ := newMeteredEngine(t)
	return engine, conns
}

func newMeteredEngine(t *testing.T) (*transition.Engine, *database.Connections, *sdkmetric.ManualReader) {
	t.Helper()
	conns, _ := testutil.NewDB(t)
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	engine, err := transition.NewEngine(transition.Params{
		Conns:   conns,
		History: history.NewRepository(conns),
		Logger:  zap.NewNop(),
		Meter:   provider.Meter("transition-test"),
	})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return engine, conns, reader
}

func transitionsCounted(t *testing.T, reader *sdkmetric.ManualReader) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect metrics: %v", err)
	}
	var total int64
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != "loom.status.transitions" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("transitions metric data = %T", m.Data)
			}
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func historyRows(t *testing.T, conns *database.Connections, id string) int {
	t.Helper()
	var n int
	if err := conns.Reader.NewRaw("SELECT COUNT(*) FROM status_history WHERE entity_id = ?", id).Scan(context.Background(), &n); err != nil {
		t.Fatalf("count history: %v", err)
	}
	return n
}

func currentStatus(t *testing.T, conns *database.Connections, id string) string {
	t.Helper()
	var status string
	if err := conns.Reader.NewRaw("SELECT status FROM sample_requests WHERE id = ?", id).Scan(context.Background(), &status); err != nil {
		t.Fatalf("read status: %v", err)
	}
	return status
}

func TestTransitionAppliesAndRecords(t *testing.T) {
	engine, conns := newEngine(t)
	ctx := context.Background()
	c := testutil.InsertCustomer(t, conns, "Acme")
	s := testutil.InsertSample(t, conns, c.ID, "Polo")

	change, err := engine.Transition(ctx, transition.SampleRequest, s.ID, "on_review", testutil.Actor, "ready")
	if err != nil {
		t.Fatalf("Transition() error = %v", err)
	}
	if change.From != "draft" || change.To != "on_review" {
		t.Fatalf("change = %s -> %s", change.From, change.To)
	}
	if change.Record.ChangeReason == nil || *change.Record.ChangeReason != "ready" {
		t.Fatalf("reason = %v", change.Record.ChangeReason)
	}
	if got := currentStatus(t, conns, s.ID); got != "on_review" {
		t.Fatalf("status = %s", got)
	}

	rows, err := engine.History(ctx, transition.SampleRequest, s.ID)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("history rows = %d, want 2", len(rows))
	}
	if rows[0].NewStatus != "on_review" || rows[0].PreviousStatus == nil || *rows[0].PreviousStatus != "draft" {
		t.Fatalf("newest row = %+v", rows[0])
	}
	if rows[1].PreviousStatus != nil {
		t.Fatalf("creation row should have no previous status")
	}
}

func TestTransitionScenarioTerminalApproved(t *testing.T) {
	engine, conns := newEngine(t)
	ctx := context.Background()
	c := testutil.InsertCustomer(t, conns, "Acme")
	s := testutil.InsertSample(t, conns, c.ID, "Polo")

	for _, target := range []string{"on_review", "approved"} {
		if _, err := engine.Transition(ctx, transition.SampleRequest, s.ID, target, testutil.Actor, ""); err != nil {
			t.Fatalf("Transition(%s) error = %v", target, err)
		}
	}

	_, err := engine.Transition(ctx, transition.SampleRequest, s.ID, "on_review", testutil.Actor, "")
	if !errorbank.Is(err, errorbank.KindInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if msg := errorbank.From(err).Message(); msg != "Invalid status transition from approved to on_review" {
		t.Fatalf("message = %q", msg)
	}
	if got := currentStatus(t, conns, s.ID); got != "approved" {
		t.Fatalf("status = %s", got)
	}
	rows, _ := engine.History(ctx, transition.SampleRequest, s.ID)
	if len(rows) != 3 {
		t.Fatalf("history rows = %d, want 3", len(rows))
	}
}

func TestTransitionRejectsBadInput(t *testing.T) {
	engine, conns := newEngine(t)
	ctx := context.Background()
	c := testutil.InsertCustomer(t, conns, "Acme")
	s := testutil.InsertSample(t, conns, c.ID, "Polo")

	cases := map[string]struct {
		id, target, actor string
		kind              errorbank.Kind
	}{
		"unknown target": {s.ID, "shipped", testutil.Actor, errorbank.KindValidation},
		"missing actor":  {s.ID, "on_review", " ", errorbank.KindValidation},
		"missing entity": {"nope", "on_review", testutil.Actor, errorbank.KindNotFound},
		"disallowed":     {s.ID, "revision", testutil.Actor, errorbank.KindInvalidTransition},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := engine.Transition(ctx, transition.SampleRequest, tc.id, tc.target, tc.actor, "")
			if !errorbank.Is(err, tc.kind) {
				t.Fatalf("error = %v, want kind %s", err, tc.kind)
			}
		})
	}
	if got := currentStatus(t, conns, s.ID); got != "draft" {
		t.Fatalf("status = %s", got)
	}
}

func TestConcurrentTransitionsHaveOneWinner(t *testing.T) {
	engine, conns := newEngine(t)
	ctx := context.Background()
	c := testutil.InsertCustomer(t, conns, "Acme")
	s := testutil.InsertSample(t, conns, c.ID, "Polo")

	targets := []string{"approved", "canceled"}
	errs := make([]error, len(targets))
	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target string) {
			defer wg.Done()
			_, errs[i] = engine.Transition(ctx, transition.SampleRequest, s.ID, target, testutil.Actor, "")
		}(i, target)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case errorbank.Is(err, errorbank.KindInvalidTransition), errorbank.Is(err, errorbank.KindConcurrentModification):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("winners = %d, want 1", winners)
	}
	rows, _ := engine.History(ctx, transition.SampleRequest, s.ID)
	if len(rows) != 2 {
		t.Fatalf("history rows = %d, want 2", len(rows))
	}
	if rows[0].NewStatus != currentStatus(t, conns, s.ID) {
		t.Fatalf("latest history %s does not match status", rows[0].NewStatus)
	}
}

func TestGuardOutsideInitialState(t *testing.T) {
	engine, conns := newEngine(t)
	ctx := context.Background()
	c := testutil.InsertCustomer(t, conns, "Acme")
	s := testutil.InsertSample(t, conns, c.ID, "Polo")

	if status, err := engine.Guard(ctx, transition.SampleRequest, s.ID, transition.OpEdit); err != nil || status != "draft" {
		t.Fatalf("Guard(draft) = %q, %v", status, err)
	}
	if _, err := engine.Transition(ctx, transition.SampleRequest, s.ID, "on_review", testutil.Actor, ""); err != nil {
		t.Fatalf("Transition() error = %v", err)
	}
	if _, err := engine.Guard(ctx, transition.SampleRequest, s.ID, transition.OpEdit); !errorbank.Is(err, errorbank.KindEditNotAllowed) {
		t.Fatalf("edit guard error = %v", err)
	}
	if _, err := engine.Guard(ctx, transition.SampleRequest, s.ID, transition.OpDelete); !errorbank.Is(err, errorbank.KindDeleteNotAllowed) {
		t.Fatalf("delete guard error = %v", err)
	}
}

func TestSwapStatusRejectsStaleExpectation(t *testing.T) {
	ctx := context.Background()
	conns, _ := testutil.NewDB(t)
	repo := history.NewRepository(conns)
	c := testutil.InsertCustomer(t, conns, "Acme")
	s := testutil.InsertSample(t, conns, c.ID, "Polo")

	read, err := repo.CurrentStatus(ctx, "sample_requests", s.ID)
	if err != nil || read != "draft" {
		t.Fatalf("CurrentStatus() = %q, %v", read, err)
	}
	if err := repo.SwapStatus(ctx, "sample_requests", s.ID, "draft", "canceled", time.Now().UTC()); err != nil {
		t.Fatalf("first SwapStatus() error = %v", err)
	}

	err = repo.SwapStatus(ctx, "sample_requests", s.ID, read, "on_review", time.Now().UTC())
	if !errors.Is(err, history.ErrStaleStatus) {
		t.Fatalf("SwapStatus() with stale expectation error = %v, want ErrStaleStatus", err)
	}
	if got := currentStatus(t, conns, s.ID); got != "canceled" {
		t.Fatalf("status = %s, want canceled", got)
	}
}

func TestTransitionLosingCompareAndSetWritesNothing(t *testing.T) {
	ctx := context.Background()
	engine, conns, reader := newMeteredEngine(t)
	c := testutil.InsertCustomer(t, conns, "Acme")
	s := testutil.InsertSample(t, conns, c.ID, "Polo")

	// another writer cancels the sample after the engine read it as draft
	transition.SetBeforeSwap(engine, func(ctx context.Context, subj transition.Subject, id string) {
		if _, err := database.Conn(ctx, conns.Writer).
			NewRaw("UPDATE sample_requests SET status = ? WHERE id = ?", "canceled", id).
			Exec(ctx); err != nil {
			t.Errorf("interleaved write: %v", err)
		}
	})

	change, err := engine.Transition(ctx, transition.SampleRequest, s.ID, "on_review", testutil.Actor, "")
	if change != nil {
		t.Fatalf("change = %+v, want nil", change)
	}
	if !errorbank.Is(err, errorbank.KindConcurrentModification) {
		t.Fatalf("Transition() error = %v, want concurrent modification", err)
	}
	if code := errorbank.From(err).StatusCode(); code != http.StatusConflict {
		t.Fatalf("status code = %d, want 409", code)
	}
	if got := historyRows(t, conns, s.ID); got != 1 {
		t.Fatalf("history rows = %d, want only the creation row", got)
	}
	if got := transitionsCounted(t, reader); got != 0 {
		t.Fatalf("transitions counted = %d, want 0", got)
	}
}

func TestCreatedIsCountedOnlyAfterCommit(t *testing.T) {
	ctx := context.Background()
	engine, conns, reader := newMeteredEngine(t)
	c := testutil.InsertCustomer(t, conns, "Acme")
	s := testutil.InsertSample(t, conns, c.ID, "Polo")
	rollback := errors.New("rollback")

	err := conns.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := engine.Created(ctx, transition.SampleRequest, s.ID, testutil.Actor, engine.Now()); err != nil {
			return err
		}
		return rollback
	})
	if !errors.Is(err, rollback) {
		t.Fatalf("RunInTx() error = %v", err)
	}
	if got := transitionsCounted(t, reader); got != 0 {
		t.Fatalf("transitions counted after rollback = %d, want 0", got)
	}
	if got := historyRows(t, conns, s.ID); got != 1 {
		t.Fatalf("history rows after rollback = %d, want 1", got)
	}

	var change *transition.Change
	err = conns.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		change, err = engine.Created(ctx, transition.SampleRequest, s.ID, testutil.Actor, engine.Now())
		return err
	})
	if err != nil {
		t.Fatalf("RunInTx() error = %v", err)
	}
	if got := transitionsCounted(t, reader); got != 0 {
		t.Fatalf("transitions counted before Committed = %d, want 0", got)
	}
	engine.Committed(ctx, change)
	if got := transitionsCounted(t, reader); got != 1 {
		t.Fatalf("transitions counted = %d, want 1", got)
	}
}
