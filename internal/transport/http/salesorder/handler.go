package salesorder

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
	service "github.com/Additional-Code/loom/internal/service/salesorder"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/loom/transport/http/salesorder")

// Handler exposes sales order endpoints over HTTP.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs a sales order Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/sales-orders")
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.getByID)
	g.PUT("/:id", h.update)
	g.DELETE("/:id", h.delete)
	g.POST("/:id/status", h.changeStatus)
}

func (h *Handler) create(c echo.Context) error {
	b := response.New(c)

	actor, err := auth.Actor(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	var payload dto.SalesOrderRequest
	if err := request.Bind(c, &payload); err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "salesOrders.create")
	defer span.End()

	in := service.Input{
		CustomerID:   request.Value(payload.CustomerID),
		OrderDate:    payload.OrderDate.Ptr(),
		DeliveryDate: payload.DeliveryDate.Ptr(),
		Currency:     request.Value(payload.Currency),
		Notes:        request.Value(payload.Notes),
	}
	if payload.Items != nil {
		in.Items = items(*payload.Items)
	}

	detail, err := h.svc.Create(ctx, actor, in)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusCreated).WithData(dto.SalesOrder(detail.Order, detail.History)).Build()
}

func (h *Handler) list(c echo.Context) error {
	b := response.New(c)
	f := request.Filter(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "salesOrders.list")
	defer span.End()

	rows, total, err := h.svc.List(ctx, f)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.SalesOrders(rows)).WithPagination(f.Page.Meta(total)).Build()
}

func (h *Handler) getByID(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	ctx, span := httpTracer.Start(c.Request().Context(), "salesOrders.getByID", trace.WithAttributes(attribute.String("sales_order.id", id)))
	defer span.End()

	detail, err := h.svc.Get(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.SalesOrder(detail.Order, detail.History)).Build()
}

func (h *Handler) update(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	actor, err := auth.Actor(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	var payload dto.SalesOrderRequest
	if err := request.Bind(c, &payload); err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "salesOrders.update", trace.WithAttributes(attribute.String("sales_order.id", id)))
	defer span.End()

	patch := service.Patch{
		OrderDate:    payload.OrderDate.Ptr(),
		DeliveryDate: payload.DeliveryDate.Ptr(),
		Currency:     payload.Currency,
		Notes:        payload.Notes,
	}
	if payload.Items != nil {
		it := items(*payload.Items)
		patch.Items = &it
	}

	detail, err := h.svc.Update(ctx, id, actor, patch)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.SalesOrder(detail.Order, detail.History)).Build()
}

func (h *Handler) delete(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	actor, err := auth.Actor(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "salesOrders.delete", trace.WithAttributes(attribute.String("sales_order.id", id)))
	defer span.End()

	if err := h.svc.Delete(ctx, id, actor); err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(map[string]string{"id": id}).Build()
}

func (h *Handler) changeStatus(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	actor, err := auth.Actor(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	var payload dto.StatusChangeRequest
	if err := request.Bind(c, &payload); err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "salesOrders.changeStatus", trace.WithAttributes(
		attribute.String("sales_order.id", id),
		attribute.String("status.target", payload.Status),
	))
	defer span.End()

	detail, err := h.svc.ChangeStatus(ctx, id, payload.Status, actor, payload.Reason)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.SalesOrder(detail.Order, detail.History)).Build()
}

func items(in []dto.SalesOrderItemPayload) []service.ItemInput {
	out := make([]service.ItemInput, 0, len(in))
	for _, it := range in {
		out = append(out, service.ItemInput{
			Style:       it.Style,
			Description: it.Description,
			Color:       it.Color,
			Size:        it.Size,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
		})
	}
	return out
}
