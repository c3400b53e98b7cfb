package inspection

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/loom/internal/auth"
	"github.com/Additional-Code/loom/internal/dto"
	"github.com/Additional-Code/loom/internal/presentation/http/request"
	"github.com/Additional-Code/loom/internal/presentation/http/response"
	repo "github.com/Additional-Code/loom/internal/repository/inspection"
	service "github.com/Additional-Code/loom/internal/service/inspection"
	"github.com/Additional-Code/loom/pkg/errorbank"
	"github.com/Additional-Code/loom/pkg/pagination"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/loom/transport/http/inspection")

// Handler exposes QC inspection endpoints over HTTP.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs an inspection Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	e.POST("/work-orders/:id/inspections", h.create)

	g := e.Group("/inspections")
	g.GET("", h.list)
	g.GET("/:id", h.getByID)
	g.PUT("/:id/report", h.attachReport)
	g.GET("/:id/report", h.downloadReport)
}

func (h *Handler) create(c echo.Context) error {
	b := response.New(c)
	workOrderID := c.Param("id")

	actor, err := auth.Actor(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	var payload dto.InspectionRequest
	if err := request.Bind(c, &payload); err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "inspections.create", trace.WithAttributes(attribute.String("work_order.id", workOrderID)))
	defer span.End()

	created, err := h.svc.Create(ctx, workOrderID, actor, service.Input{
		SampleSize:  payload.SampleSize,
		DefectCount: payload.DefectCount,
		Result:      payload.Result,
		Notes:       payload.Notes,
		InspectedAt: payload.InspectedAt,
	})
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusCreated).WithData(dto.Inspection(created)).Build()
}

func (h *Handler) list(c echo.Context) error {
	b := response.New(c)
	f := repo.Filter{
		WorkOrderID: strings.TrimSpace(c.QueryParam("workOrderId")),
		Result:      strings.TrimSpace(c.QueryParam("result")),
		Page:        pagination.Parse(c),
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "inspections.list")
	defer span.End()

	rows, total, err := h.svc.List(ctx, f)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.Inspections(rows)).WithPagination(f.Page.Meta(total)).Build()
}

func (h *Handler) getByID(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	ctx, span := httpTracer.Start(c.Request().Context(), "inspections.getByID", trace.WithAttributes(attribute.String("inspection.id", id)))
	defer span.End()

	found, err := h.svc.Get(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.Inspection(found)).Build()
}

// attachReport accepts the report as the multipart field "file".
func (h *Handler) attachReport(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	actor, err := auth.Actor(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	header, err := c.FormFile("file")
	if err != nil {
		return b.WithError(errorbank.Validation("report file is required", errorbank.WithDetail("field", "file"), errorbank.WithCause(err))).Build()
	}
	file, err := header.Open()
	if err != nil {
		return b.WithError(errorbank.Internal("failed to read upload", errorbank.WithCause(err))).Build()
	}
	defer file.Close()

	ctx, span := httpTracer.Start(c.Request().Context(), "inspections.attachReport", trace.WithAttributes(
		attribute.String("inspection.id", id),
		attribute.Int64("report.size", header.Size),
	))
	defer span.End()

	updated, err := h.svc.AttachReport(ctx, id, actor, service.Report{
		Filename:    header.Filename,
		ContentType: header.Header.Get(echo.HeaderContentType),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.Inspection(updated)).Build()
}

func (h *Handler) downloadReport(c echo.Context) error {
	id := c.Param("id")

	ctx, span := httpTracer.Start(c.Request().Context(), "inspections.downloadReport", trace.WithAttributes(attribute.String("inspection.id", id)))
	defer span.End()

	rc, obj, err := h.svc.OpenReport(ctx, id)
	if err != nil {
		return response.New(c).WithError(err).Build()
	}
	defer rc.Close()

	name := obj.Key
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	res := c.Response()
	res.Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	if obj.Size > 0 {
		res.Header().Set(echo.HeaderContentLength, fmt.Sprint(obj.Size))
	}
	return c.Stream(http.StatusOK, obj.ContentType, rc)
}
