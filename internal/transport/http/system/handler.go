// Package system serves the read-only projections: dashboard, workflow
// definitions and the websocket change feed.
package system

import (
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"

	"github.com/Additional-Code/loom/internal/presentation/http/response"
	"github.com/Additional-Code/loom/internal/realtime"
	"github.com/Additional-Code/loom/internal/service/dashboard"
	"github.com/Additional-Code/loom/internal/service/transition"
	"github.com/Additional-Code/loom/internal/workflow"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/loom/transport/http/system")

// WorkflowResponse describes one status machine.
type WorkflowResponse struct {
	Entity      string              `json:"entity"`
	Machine     string              `json:"machine"`
	Initial     string              `json:"initial"`
	States      []string            `json:"states"`
	Transitions map[string][]string `json:"transitions"`
	Terminal    []string            `json:"terminal"`
}

// Handler exposes the dashboard, workflow and feed endpoints.
type Handler struct {
	dashboard *dashboard.Service
	hub       *realtime.Hub
}

// NewHandler constructs a system Handler.
func NewHandler(svc *dashboard.Service, hub *realtime.Hub) *Handler {
	return &Handler{dashboard: svc, hub: hub}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	e.GET("/dashboard", h.getDashboard)
	e.GET("/workflows", h.workflows)
	e.GET("/ws", h.hub.Serve)
}

func (h *Handler) getDashboard(c echo.Context) error {
	b := response.New(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "dashboard.get")
	defer span.End()

	d, err := h.dashboard.Get(ctx)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(d).Build()
}

func (h *Handler) workflows(c echo.Context) error {
	subjects := []transition.Subject{transition.SampleRequest, transition.SalesOrder, transition.WorkOrder}
	out := make([]WorkflowResponse, 0, len(subjects))
	for _, subj := range subjects {
		out = append(out, describe(subj))
	}
	return response.New(c).WithData(out).Build()
}

func describe(subj transition.Subject) WorkflowResponse {
	m := subj.Machine
	resp := WorkflowResponse{
		Entity:      subj.Kind,
		Machine:     m.Name(),
		Initial:     string(m.Initial()),
		Transitions: make(map[string][]string),
		Terminal:    []string{},
	}
	for _, st := range m.States() {
		resp.States = append(resp.States, string(st))
		if m.Terminal(st) {
			resp.Terminal = append(resp.Terminal, string(st))
			continue
		}
		resp.Transitions[string(st)] = names(m.Targets(st))
	}
	return resp
}

func names(states []workflow.State) []string {
	out := make([]string, 0, len(states))
	for _, s := range states {
		out = append(out, string(s))
	}
	return out
}
