package customer

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/loom/internal/auth"
	"github.com/Additional-Code/loom/internal/dto"
	"github.com/Additional-Code/loom/internal/presentation/http/request"
	"github.com/Additional-Code/loom/internal/presentation/http/response"
	service "github.com/Additional-Code/loom/internal/service/customer"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/loom/transport/http/customer")

// Handler exposes customer endpoints over HTTP.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs a customer Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/customers")
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.getByID)
	g.PUT("/:id", h.update)
	g.DELETE("/:id", h.delete)
}

func (h *Handler) create(c echo.Context) error {
	b := response.New(c)

	actor, err := auth.Actor(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	var payload dto.CustomerRequest
	if err := request.Bind(c, &payload); err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "customers.create")
	defer span.End()

	created, err := h.svc.Create(ctx, actor, service.Input{
		Name:            request.Value(payload.Name),
		ContactPerson:   request.Value(payload.ContactPerson),
		Email:           request.Value(payload.Email),
		Phone:           request.Value(payload.Phone),
		BillingAddress:  request.Value(payload.BillingAddress),
		ShippingAddress: request.Value(payload.ShippingAddress),
		Status:          request.Value(payload.Status),
		Notes:           request.Value(payload.Notes),
	})
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusCreated).WithData(dto.Customer(created)).Build()
}

func (h *Handler) list(c echo.Context) error {
	b := response.New(c)
	f := request.Filter(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "customers.list")
	defer span.End()

	rows, total, err := h.svc.List(ctx, f)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.Customers(rows)).WithPagination(f.Page.Meta(total)).Build()
}

func (h *Handler) getByID(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	ctx, span := httpTracer.Start(c.Request().Context(), "customers.getByID", trace.WithAttributes(attribute.String("customer.id", id)))
	defer span.End()

	found, err := h.svc.Get(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.Customer(found)).Build()
}

func (h *Handler) update(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	actor, err := auth.Actor(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	var payload dto.CustomerRequest
	if err := request.Bind(c, &payload); err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "customers.update", trace.WithAttributes(attribute.String("customer.id", id)))
	defer span.End()

	updated, err := h.svc.Update(ctx, id, actor, service.Patch{
		Name:            payload.Name,
		ContactPerson:   payload.ContactPerson,
		Email:           payload.Email,
		Phone:           payload.Phone,
		BillingAddress:  payload.BillingAddress,
		ShippingAddress: payload.ShippingAddress,
		Status:          payload.Status,
		Notes:           payload.Notes,
	})
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.Customer(updated)).Build()
}

func (h *Handler) delete(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	actor, err := auth.Actor(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "customers.delete", trace.WithAttributes(attribute.String("customer.id", id)))
	defer span.End()

	if err := h.svc.Delete(ctx, id, actor); err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(map[string]string{"id": id}).Build()
}
