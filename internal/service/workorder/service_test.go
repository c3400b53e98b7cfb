package workorder_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Additional-Code/loom/internal/cache"
	"github.com/Additional-Code/loom/internal/database"
	"github.com/Additional-Code/loom/internal/entity"
	customerrepo "github.com/Additional-Code/loom/internal/repository/customer"
	salesorderrepo "github.com/Additional-Code/loom/internal/repository/salesorder"
	repo "github.com/Additional-Code/loom/internal/repository/workorder"
	"github.com/Additional-Code/loom/internal/service/workorder"
	"github.com/Additional-Code/loom/internal/testutil"
	"github.com/Additional-Code/loom/internal/workflow"
	"github.com/Additional-Code/loom/pkg/errorbank"
)

func newService(t *testing.T) (*workorder.Service, *database.Connections, *entity.Customer) {
	t.Helper()
	conns, _ := testutil.NewDB(t)
	svc := workorder.NewService(workorder.Params{
		Conns:       conns,
		Repository:  repo.NewRepository(conns),
		Customers:   customerrepo.NewRepository(conns),
		SalesOrders: salesorderrepo.NewRepository(conns),
		Engine:      testutil.Engine(t, conns),
		Events:      testutil.Dispatcher(cache.NewMemoryStore(time.Minute)),
		Logger:      zap.NewNop(),
	})
	return svc, conns, testutil.InsertCustomer(t, conns, "Acme")
}

func insertOrder(t *testing.T, conns *database.Connections, customerID string) string {
	t.Helper()
	now := time.Now().UTC()
	so := &entity.SalesOrder{
		ID: entity.NewID(), Number: entity.NewNumber(entity.PrefixSalesOrder, now), CustomerID: customerID,
		OrderDate: now, Currency: "USD", TotalAmount: decimal.Zero, Status: "approved",
		CreatedBy: testutil.Actor, CreatedAt: now, UpdatedAt: now,
	}
	if _, err := conns.Writer.NewInsert().Model(so).Exec(context.Background()); err != nil {
		t.Fatalf("insert sales order: %v", err)
	}
	return so.ID
}

func TestPipelineMovesStrictlyForward(t *testing.T) {
	svc, _, c := newService(t)
	ctx := context.Background()
	d, err := svc.Create(ctx, testutil.Actor, workorder.Input{CustomerID: c.ID, Name: "Polo batch", Quantity: 500})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if d.WorkOrder.Status != "order_processing" {
		t.Fatalf("initial status = %s", d.WorkOrder.Status)
	}
	id := d.WorkOrder.ID

	if _, err := svc.ChangeStatus(ctx, id, "cutting", testutil.Actor, ""); !errorbank.Is(err, errorbank.KindInvalidTransition) {
		t.Fatalf("skipping a stage err = %v", err)
	}

	stages := workflow.Production.States()
	for _, next := range stages[1:] {
		if _, err := svc.ChangeStatus(ctx, id, string(next), testutil.Actor, ""); err != nil {
			t.Fatalf("advance to %s: %v", next, err)
		}
	}
	if _, err := svc.ChangeStatus(ctx, id, "packing", testutil.Actor, ""); !errorbank.Is(err, errorbank.KindInvalidTransition) {
		t.Fatalf("moving back from dispatch err = %v", err)
	}

	final, _ := svc.Get(ctx, id)
	if final.WorkOrder.Status != "dispatch" || len(final.History) != len(stages) {
		t.Fatalf("status = %s, history = %d", final.WorkOrder.Status, len(final.History))
	}
}

func TestEditAndDeleteOnlyInOrderProcessing(t *testing.T) {
	svc, _, c := newService(t)
	ctx := context.Background()
	due := time.Now().UTC().AddDate(0, 1, 0).Truncate(time.Second)
	d, _ := svc.Create(ctx, testutil.Actor, workorder.Input{CustomerID: c.ID, Name: "Tee batch", Quantity: 100})

	qty := 120
	updated, err := svc.Update(ctx, d.WorkOrder.ID, testutil.Actor, workorder.Patch{Quantity: &qty, DueDate: &due})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.WorkOrder.Quantity != 120 || updated.WorkOrder.DueDate == nil || !updated.WorkOrder.DueDate.Equal(due) {
		t.Fatalf("updated = %+v", updated.WorkOrder)
	}

	if _, err := svc.ChangeStatus(ctx, d.WorkOrder.ID, "material_procurement", testutil.Actor, "fabric ordered"); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if _, err := svc.Update(ctx, d.WorkOrder.ID, testutil.Actor, workorder.Patch{Quantity: &qty}); !errorbank.Is(err, errorbank.KindEditNotAllowed) {
		t.Fatalf("edit err = %v", err)
	}
	if err := svc.Delete(ctx, d.WorkOrder.ID, testutil.Actor); !errorbank.Is(err, errorbank.KindDeleteNotAllowed) {
		t.Fatalf("delete err = %v", err)
	}

	fresh, _ := svc.Create(ctx, testutil.Actor, workorder.Input{CustomerID: c.ID, Name: "Cap batch", Quantity: 10})
	if err := svc.Delete(ctx, fresh.WorkOrder.ID, testutil.Actor); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
}

func TestSalesOrderReference(t *testing.T) {
	svc, conns, c := newService(t)
	ctx := context.Background()
	other := testutil.InsertCustomer(t, conns, "Bolt")
	orderID := insertOrder(t, conns, c.ID)
	foreign := insertOrder(t, conns, other.ID)
	missing := "missing"

	d, err := svc.Create(ctx, testutil.Actor, workorder.Input{CustomerID: c.ID, SalesOrderID: &orderID, Name: "Batch", Quantity: 1})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if d.WorkOrder.SalesOrderID == nil || *d.WorkOrder.SalesOrderID != orderID {
		t.Fatalf("sales order ref = %v", d.WorkOrder.SalesOrderID)
	}
	if _, err := svc.Create(ctx, testutil.Actor, workorder.Input{CustomerID: c.ID, SalesOrderID: &foreign, Name: "Batch", Quantity: 1}); !errorbank.Is(err, errorbank.KindValidation) {
		t.Fatalf("foreign order err = %v", err)
	}
	if _, err := svc.Create(ctx, testutil.Actor, workorder.Input{CustomerID: c.ID, SalesOrderID: &missing, Name: "Batch", Quantity: 1}); !errorbank.Is(err, errorbank.KindNotFound) {
		t.Fatalf("missing order err = %v", err)
	}
}
