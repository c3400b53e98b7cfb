package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/Additional-Code/loom/internal/database"
	"github.com/Additional-Code/loom/internal/entity"
	"github.com/Additional-Code/loom/internal/workflow"
)

// InsertCustomer stores an active customer directly.
func InsertCustomer(t *testing.T, conns *database.Connections, name string) *entity.Customer {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	c := &entity.Customer{
		ID:        entity.NewID(),
		Name:      name,
		Email:     entity.NewID() + "@buyer.test",
		Status:    entity.CustomerActive,
		CreatedBy: Actor,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := conns.Writer.NewInsert().Model(c).Exec(context.Background()); err != nil {
		t.Fatalf("insert customer: %v", err)
	}
	return c
}

// InsertSample stores a draft sample request and its creation history row
// without going through the service layer.
func InsertSample(t *testing.T, conns *database.Connections, customerID, name string) *entity.SampleRequest {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	s := &entity.SampleRequest{
		ID:         entity.NewID(),
		Number:     entity.NewNumber(entity.PrefixSample, now),
		CustomerID: customerID,
		Name:       name,
		Quantity:   1,
		Status:     string(workflow.Draft),
		CreatedBy:  Actor,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	reason := workflow.CreatedReason
	row := &entity.StatusHistory{
		ID:           entity.NewID(),
		EntityType:   entity.KindSampleRequest,
		EntityID:     s.ID,
		NewStatus:    s.Status,
		ChangedBy:    Actor,
		ChangeReason: &reason,
		ChangedAt:    now,
	}
	ctx := context.Background()
	if _, err := conns.Writer.NewInsert().Model(s).Exec(ctx); err != nil {
		t.Fatalf("insert sample: %v", err)
	}
	if _, err := conns.Writer.NewInsert().Model(row).Exec(ctx); err != nil {
		t.Fatalf("insert history: %v", err)
	}
	return s
}

// InsertWorkOrder stores a work order already sitting in status, with a
// creation history row.
func InsertWorkOrder(t *testing.T, conns *database.Connections, customerID string, status workflow.State) *entity.WorkOrder {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	wo := &entity.WorkOrder{
		ID:         entity.NewID(),
		Number:     entity.NewNumber(entity.PrefixWorkOrder, now),
		CustomerID: customerID,
		Name:       "Polo batch",
		Quantity:   500,
		Status:     string(status),
		CreatedBy:  Actor,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	reason := workflow.CreatedReason
	row := &entity.StatusHistory{
		ID:           entity.NewID(),
		EntityType:   entity.KindWorkOrder,
		EntityID:     wo.ID,
		NewStatus:    wo.Status,
		ChangedBy:    Actor,
		ChangeReason: &reason,
		ChangedAt:    now,
	}
	ctx := context.Background()
	if _, err := conns.Writer.NewInsert().Model(wo).Exec(ctx); err != nil {
		t.Fatalf("insert work order: %v", err)
	}
	if _, err := conns.Writer.NewInsert().Model(row).Exec(ctx); err != nil {
		t.Fatalf("insert history: %v", err)
	}
	return wo
}
