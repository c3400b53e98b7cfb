package sample

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/loom/internal/auth"
	"github.com/Additional-Code/loom/internal/dto"
	"github.com/Additional-Code/loom/internal/export"
	"github.com/Additional-Code/loom/internal/presentation/http/request"
	"github.com/Additional-Code/loom/internal/presentation/http/response"
	service "github.com/Additional-Code/loom/internal/service/sample"
	"github.com/Additional-Code/loom/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/loom/transport/http/sample")

// Handler exposes sample request endpoints over HTTP.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs a sample Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/samples")
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/export", h.export)
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
	var payload dto.SampleRequest
	if err := request.Bind(c, &payload); err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "samples.create")
	defer span.End()

	in := service.Input{
		CustomerID:  request.Value(payload.CustomerID),
		Name:        request.Value(payload.Name),
		Description: request.Value(payload.Description),
		Color:       request.Value(payload.Color),
		Notes:       request.Value(payload.Notes),
	}
	if payload.Quantity != nil {
		in.Quantity = *payload.Quantity
	}
	if payload.Materials != nil {
		in.Materials = materials(*payload.Materials)
	}
	if payload.Stages != nil {
		in.Stages = stages(*payload.Stages)
	}

	detail, err := h.svc.Create(ctx, actor, in)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusCreated).WithData(dto.Sample(detail.Sample, detail.History)).Build()
}

func (h *Handler) list(c echo.Context) error {
	b := response.New(c)
	f := request.Filter(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "samples.list")
	defer span.End()

	rows, total, err := h.svc.List(ctx, f)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.Samples(rows)).WithPagination(f.Page.Meta(total)).Build()
}

func (h *Handler) export(c echo.Context) error {
	f := request.Filter(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "samples.export")
	defer span.End()

	rows, err := h.svc.All(ctx, f)
	if err != nil {
		return response.New(c).WithError(err).Build()
	}
	book, err := export.Samples(rows)
	if err != nil {
		return response.New(c).WithError(errorbank.Internal("failed to build workbook", errorbank.WithCause(err))).Build()
	}
	defer book.Close()

	filename := fmt.Sprintf("samples-%s.xlsx", time.Now().UTC().Format("20060102-150405"))
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, export.ContentType)
	res.Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	res.WriteHeader(http.StatusOK)
	return book.Write(res)
}

func (h *Handler) getByID(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	ctx, span := httpTracer.Start(c.Request().Context(), "samples.getByID", trace.WithAttributes(attribute.String("sample.id", id)))
	defer span.End()

	detail, err := h.svc.Get(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.Sample(detail.Sample, detail.History)).Build()
}

func (h *Handler) update(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	actor, err := auth.Actor(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	var payload dto.SampleRequest
	if err := request.Bind(c, &payload); err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "samples.update", trace.WithAttributes(attribute.String("sample.id", id)))
	defer span.End()

	patch := service.Patch{
		Name:        payload.Name,
		Description: payload.Description,
		Color:       payload.Color,
		Quantity:    payload.Quantity,
		Notes:       payload.Notes,
	}
	if payload.Materials != nil {
		m := materials(*payload.Materials)
		patch.Materials = &m
	}
	if payload.Stages != nil {
		s := stages(*payload.Stages)
		patch.Stages = &s
	}

	detail, err := h.svc.Update(ctx, id, actor, patch)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.Sample(detail.Sample, detail.History)).Build()
}

func (h *Handler) delete(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	actor, err := auth.Actor(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "samples.delete", trace.WithAttributes(attribute.String("sample.id", id)))
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

	ctx, span := httpTracer.Start(c.Request().Context(), "samples.changeStatus", trace.WithAttributes(
		attribute.String("sample.id", id),
		attribute.String("status.target", payload.Status),
	))
	defer span.End()

	detail, err := h.svc.ChangeStatus(ctx, id, payload.Status, actor, payload.Reason)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.Sample(detail.Sample, detail.History)).Build()
}

func materials(in []dto.MaterialPayload) []service.MaterialInput {
	out := make([]service.MaterialInput, 0, len(in))
	for _, m := range in {
		out = append(out, service.MaterialInput{
			MaterialName: m.MaterialName,
			Category:     m.Category,
			Quantity:     m.Quantity,
			Unit:         m.Unit,
		})
	}
	return out
}

func stages(in []dto.StagePayload) []service.StageInput {
	out := make([]service.StageInput, 0, len(in))
	for _, s := range in {
		out = append(out, service.StageInput{Stage: s.Stage, Sequence: s.Sequence, Notes: s.Notes})
	}
	return out
}
