package seeder

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/loom/internal/entity"
	customerrepo "github.com/Additional-Code/loom/internal/repository/customer"
	"github.com/Additional-Code/loom/internal/service/customer"
	"github.com/Additional-Code/loom/internal/service/salesorder"
	"github.com/Additional-Code/loom/internal/service/sample"
	"github.com/Additional-Code/loom/internal/service/workorder"
)

// Actor is recorded as the author of seeded records and history rows.
const Actor = "seeder"

// Module provides the seeder to Fx.
var Module = fx.Provide(New)

// Seeder performs database seeding for local/dev setups.
type Seeder struct {
	customers   *customerrepo.Repository
	customerSvc *customer.Service
	samples     *sample.Service
	orders      *salesorder.Service
	workOrders  *workorder.Service
	logger      *zap.Logger
}

// Params defines dependencies for constructing Seeder.
type Params struct {
	fx.In

	Customers   *customerrepo.Repository
	CustomerSvc *customer.Service
	Samples     *sample.Service
	Orders      *salesorder.Service
	WorkOrders  *workorder.Service
	Logger      *zap.Logger
}

// New constructs a Seeder on top of the domain services so seeded records
// carry their creation history like any other.
func New(p Params) *Seeder {
	return &Seeder{
		customers:   p.Customers,
		customerSvc: p.CustomerSvc,
		samples:     p.Samples,
		orders:      p.Orders,
		workOrders:  p.WorkOrders,
		logger:      p.Logger,
	}
}

var demoCustomers = []customer.Input{
	{
		Name:            "Northwind Apparel",
		ContactPerson:   "Dana Reyes",
		Email:           "buying@northwind-apparel.test",
		Phone:           "+1 555 0100",
		BillingAddress:  "12 Harbor Road, Portland",
		ShippingAddress: "12 Harbor Road, Portland",
		Status:          entity.CustomerActive,
	},
	{
		Name:          "Blue Loop Kids",
		ContactPerson: "Sam Okafor",
		Email:         "orders@blueloop.test",
		Status:        entity.CustomerProspect,
	},
}

// Run seeds demo customers and, for each new customer, a sample request,
// a sales order and a work order. Customers whose email already exists are
// skipped, so Run is safe to repeat.
func (s *Seeder) Run(ctx context.Context) error {
	seeded := 0
	for _, in := range demoCustomers {
		taken, err := s.customers.EmailTaken(ctx, in.Email, "")
		if err != nil {
			return err
		}
		if taken {
			continue
		}
		c, err := s.customerSvc.Create(ctx, Actor, in)
		if err != nil {
			return fmt.Errorf("seed customer %s: %w", in.Email, err)
		}
		if err := s.production(ctx, c); err != nil {
			return err
		}
		seeded++
	}

	if s.logger != nil {
		s.logger.Info("seeded customers", zap.Int("count", seeded))
	}
	return nil
}

func (s *Seeder) production(ctx context.Context, c *entity.Customer) error {
	_, err := s.samples.Create(ctx, Actor, sample.Input{
		CustomerID:  c.ID,
		Name:        "Crew neck tee",
		Description: "Garment-dyed jersey tee",
		Color:       "navy",
		Quantity:    3,
		Materials: []sample.MaterialInput{
			{MaterialName: "Cotton jersey 180gsm", Category: "fabric", Quantity: decimal.RequireFromString("2.5"), Unit: "m"},
			{MaterialName: "Neck label", Category: "trim", Quantity: decimal.NewFromInt(3), Unit: "pcs"},
		},
		Stages: []sample.StageInput{
			{Stage: "cutting"},
			{Stage: "sewing_assembly"},
			{Stage: "printing"},
		},
	})
	if err != nil {
		return fmt.Errorf("seed sample for %s: %w", c.Name, err)
	}

	order, err := s.orders.Create(ctx, Actor, salesorder.Input{
		CustomerID: c.ID,
		Items: []salesorder.ItemInput{
			{Style: "TEE-01", Color: "navy", Size: "M", Quantity: 120, UnitPrice: decimal.RequireFromString("6.40")},
			{Style: "TEE-01", Color: "navy", Size: "L", Quantity: 80, UnitPrice: decimal.RequireFromString("6.40")},
		},
	})
	if err != nil {
		return fmt.Errorf("seed sales order for %s: %w", c.Name, err)
	}

	orderID := order.Order.ID
	_, err = s.workOrders.Create(ctx, Actor, workorder.Input{
		CustomerID:   c.ID,
		SalesOrderID: &orderID,
		Name:         "Crew neck tee bulk run",
		Color:        "navy",
		Quantity:     200,
	})
	if err != nil {
		return fmt.Errorf("seed work order for %s: %w", c.Name, err)
	}
	return nil
}
