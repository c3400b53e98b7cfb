package sample_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Additional-Code/loom/internal/cache"
	"github.com/Additional-Code/loom/internal/database"
	"github.com/Additional-Code/loom/internal/entity"
	"github.com/Additional-Code/loom/internal/repository"
	customerrepo "github.com/Additional-Code/loom/internal/repository/customer"
	repo "github.com/Additional-Code/loom/internal/repository/sample"
	"github.com/Additional-Code/loom/internal/service/sample"
	"github.com/Additional-Code/loom/internal/testutil"
	"github.com/Additional-Code/loom/internal/workflow"
	"github.com/Additional-Code/loom/pkg/errorbank"
	"github.com/Additional-Code/loom/pkg/pagination"
)

type fixture struct {
	svc      *sample.Service
	conns    *database.Connections
	customer *entity.Customer
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conns, _ := testutil.NewDB(t)
	svc := sample.NewService(sample.Params{
		Conns:      conns,
		Repository: repo.NewRepository(conns),
		Customers:  customerrepo.NewRepository(conns),
		Engine:     testutil.Engine(t, conns),
		Events:     testutil.Dispatcher(cache.NewMemoryStore(time.Minute)),
		Logger:     zap.NewNop(),
	})
	return fixture{svc: svc, conns: conns, customer: testutil.InsertCustomer(t, conns, "Acme")}
}

func (f fixture) create(t *testing.T, name string) *sample.Detail {
	t.Helper()
	d, err := f.svc.Create(context.Background(), testutil.Actor, sample.Input{
		CustomerID: f.customer.ID,
		Name:       name,
		Color:      "navy",
		Quantity:   3,
		Materials: []sample.MaterialInput{
			{MaterialName: "Pique cotton", Category: "fabric", Quantity: decimal.RequireFromString("2.5"), Unit: "m"},
			{MaterialName: "Button", Category: "trim", Quantity: decimal.NewFromInt(6), Unit: "pcs"},
		},
		Stages: []sample.StageInput{{Stage: "cutting"}, {Stage: "sewing_assembly"}, {Stage: "embroidery"}},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return d
}

func countRows(t *testing.T, conns *database.Connections, model any, column, id string) int {
	t.Helper()
	n, err := conns.Reader.NewSelect().Model(model).Where(column+" = ?", id).Count(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func TestCreateGetRoundTrip(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, "Polo shirt")

	got, err := f.svc.Get(context.Background(), created.Sample.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	s := got.Sample
	if s.Name != "Polo shirt" || s.Color != "navy" || s.Quantity != 3 || s.Status != "draft" {
		t.Fatalf("sample = %+v", s)
	}
	if s.CreatedBy != testutil.Actor || s.Customer == nil || s.Customer.ID != f.customer.ID {
		t.Fatalf("creator/customer = %q %+v", s.CreatedBy, s.Customer)
	}
	if len(s.Materials) != 2 || len(s.Stages) != 3 {
		t.Fatalf("line items = %d materials, %d stages", len(s.Materials), len(s.Stages))
	}
	if s.Stages[2].Stage != "embroidery" || s.Stages[2].Sequence != 3 {
		t.Fatalf("stage ordering = %+v", s.Stages[2])
	}
	var fabric *entity.MaterialRequirement
	for _, m := range s.Materials {
		if m.Category == "fabric" {
			fabric = m
		}
	}
	if fabric == nil || !fabric.Quantity.Equal(decimal.RequireFromString("2.5")) {
		t.Fatalf("fabric line = %+v", fabric)
	}

	if len(got.History) != 1 {
		t.Fatalf("history rows = %d, want 1", len(got.History))
	}
	h := got.History[0]
	if h.PreviousStatus != nil || h.NewStatus != "draft" || h.ChangeReason == nil || *h.ChangeReason != "created" {
		t.Fatalf("creation row = %+v", h)
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := map[string]struct {
		in   sample.Input
		kind errorbank.Kind
	}{
		"missing name":     {sample.Input{CustomerID: f.customer.ID, Quantity: 1}, errorbank.KindValidation},
		"zero quantity":    {sample.Input{CustomerID: f.customer.ID, Name: "Tee"}, errorbank.KindValidation},
		"missing customer": {sample.Input{Name: "Tee", Quantity: 1}, errorbank.KindValidation},
		"unknown customer": {sample.Input{CustomerID: "nobody", Name: "Tee", Quantity: 1}, errorbank.KindNotFound},
		"bad category": {sample.Input{CustomerID: f.customer.ID, Name: "Tee", Quantity: 1,
			Materials: []sample.MaterialInput{{MaterialName: "Silk", Category: "luxury", Quantity: decimal.NewFromInt(1)}}}, errorbank.KindValidation},
		"bad stage": {sample.Input{CustomerID: f.customer.ID, Name: "Tee", Quantity: 1,
			Stages: []sample.StageInput{{Stage: "dyeing"}}}, errorbank.KindValidation},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := f.svc.Create(ctx, testutil.Actor, tc.in); !errorbank.Is(err, tc.kind) {
				t.Fatalf("err = %v, want %s", err, tc.kind)
			}
		})
	}

	_, total, err := f.svc.List(ctx, repository.Filter{})
	if err != nil || total != 0 {
		t.Fatalf("rejected creates must store nothing: total = %d, err = %v", total, err)
	}
}

func TestApprovalScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.create(t, "Hoodie")
	id := d.Sample.ID

	if _, err := f.svc.ChangeStatus(ctx, id, "on_review", testutil.Actor, ""); err != nil {
		t.Fatalf("to on_review: %v", err)
	}
	approved, err := f.svc.ChangeStatus(ctx, id, "approved", testutil.Actor, "fit approved")
	if err != nil {
		t.Fatalf("to approved: %v", err)
	}
	if approved.Sample.Status != "approved" {
		t.Fatalf("status = %s", approved.Sample.Status)
	}

	_, err = f.svc.ChangeStatus(ctx, id, "on_review", testutil.Actor, "")
	if !errorbank.Is(err, errorbank.KindInvalidTransition) {
		t.Fatalf("err = %v", err)
	}
	if got := errorbank.From(err).Message(); got != "Invalid status transition from approved to on_review" {
		t.Fatalf("message = %q", got)
	}

	final, _ := f.svc.Get(ctx, id)
	if final.Sample.Status != "approved" || len(final.History) != 3 {
		t.Fatalf("status = %s, history = %d", final.Sample.Status, len(final.History))
	}
	if final.History[0].ChangeReason == nil || *final.History[0].ChangeReason != "fit approved" {
		t.Fatalf("newest reason = %v", final.History[0].ChangeReason)
	}
}

func TestEditOnlyInDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.create(t, "Jacket")
	id := d.Sample.ID

	qty := 10
	materials := []sample.MaterialInput{{MaterialName: "Denim", Category: "fabric", Quantity: decimal.NewFromInt(4), Unit: "m"}}
	updated, err := f.svc.Update(ctx, id, testutil.Actor, sample.Patch{Quantity: &qty, Materials: &materials})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Sample.Quantity != 10 || len(updated.Sample.Materials) != 1 || len(updated.Sample.Stages) != 3 {
		t.Fatalf("updated = %+v", updated.Sample)
	}

	if _, err := f.svc.ChangeStatus(ctx, id, "approved", testutil.Actor, ""); err != nil {
		t.Fatalf("approve: %v", err)
	}
	name := "Renamed"
	if _, err := f.svc.Update(ctx, id, testutil.Actor, sample.Patch{Name: &name}); !errorbank.Is(err, errorbank.KindEditNotAllowed) {
		t.Fatalf("edit after approve err = %v", err)
	}
	after, _ := f.svc.Get(ctx, id)
	if after.Sample.Name != "Jacket" || after.Sample.Status != "approved" {
		t.Fatalf("rejected edit changed state: %+v", after.Sample)
	}
}

func TestDeleteCascadesOnlyInDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	draft := f.create(t, "Tee")
	if err := f.svc.Delete(ctx, draft.Sample.ID, testutil.Actor); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := f.svc.Get(ctx, draft.Sample.ID); !errorbank.Is(err, errorbank.KindNotFound) {
		t.Fatalf("Get() after delete err = %v", err)
	}
	if n := countRows(t, f.conns, (*entity.MaterialRequirement)(nil), "sample_id", draft.Sample.ID); n != 0 {
		t.Fatalf("materials left = %d", n)
	}
	if n := countRows(t, f.conns, (*entity.ProcessStage)(nil), "sample_id", draft.Sample.ID); n != 0 {
		t.Fatalf("stages left = %d", n)
	}
	if n := countRows(t, f.conns, (*entity.StatusHistory)(nil), "entity_id", draft.Sample.ID); n != 0 {
		t.Fatalf("history left = %d", n)
	}

	reviewed := f.create(t, "Cap")
	if _, err := f.svc.ChangeStatus(ctx, reviewed.Sample.ID, "on_review", testutil.Actor, ""); err != nil {
		t.Fatalf("to on_review: %v", err)
	}
	if err := f.svc.Delete(ctx, reviewed.Sample.ID, testutil.Actor); !errorbank.Is(err, errorbank.KindDeleteNotAllowed) {
		t.Fatalf("Delete(on_review) err = %v", err)
	}
	if _, err := f.svc.Get(ctx, reviewed.Sample.ID); err != nil {
		t.Fatalf("rejected delete removed the sample: %v", err)
	}
}

func TestLatestHistoryMatchesStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.create(t, "Vest")
	id := d.Sample.ID

	walk := []string{"on_review", "revision", "on_review", "revision", "approved", "canceled", "draft"}
	accepted := 1
	for _, target := range walk {
		_, err := f.svc.ChangeStatus(ctx, id, target, testutil.Actor, "")
		if err == nil {
			accepted++
		}
		got, gerr := f.svc.Get(ctx, id)
		if gerr != nil {
			t.Fatalf("Get() error = %v", gerr)
		}
		if !workflow.Approval.Has(workflow.State(got.Sample.Status)) {
			t.Fatalf("status %q is not a member of the machine", got.Sample.Status)
		}
		if got.History[0].NewStatus != got.Sample.Status {
			t.Fatalf("after %s: latest history %s != status %s", target, got.History[0].NewStatus, got.Sample.Status)
		}
		if len(got.History) != accepted {
			t.Fatalf("after %s: history = %d, want %d", target, len(got.History), accepted)
		}
	}
}

func TestListFiltersAndPaginates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, name := range []string{"Polo red", "Polo blue", "Tee"} {
		f.create(t, name)
	}
	other := testutil.InsertCustomer(t, f.conns, "Bolt")
	testutil.InsertSample(t, f.conns, other.ID, "Scarf")

	rows, total, err := f.svc.List(ctx, repository.Filter{Search: "polo", Page: pagination.New(1, 1)})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 2 || len(rows) != 1 {
		t.Fatalf("search page = %d rows of %d", len(rows), total)
	}

	_, total, _ = f.svc.List(ctx, repository.Filter{CustomerID: other.ID})
	if total != 1 {
		t.Fatalf("customer filter total = %d", total)
	}
	_, total, _ = f.svc.List(ctx, repository.Filter{Status: "draft"})
	if total != 4 {
		t.Fatalf("status filter total = %d", total)
	}
	if _, _, err := f.svc.List(ctx, repository.Filter{Status: "shipped"}); !errorbank.Is(err, errorbank.KindValidation) {
		t.Fatalf("unknown status filter err = %v", err)
	}

	all, err := f.svc.All(ctx, repository.Filter{})
	if err != nil || len(all) != 4 {
		t.Fatalf("All() = %d, %v", len(all), err)
	}
}
