package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/Additional-Code/loom/internal/config"
)

func newManager(t *testing.T, obs config.Observability) *Manager {
	t.Helper()
	mgr, err := NewManager(nil, config.Config{Observability: obs}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	t.Cleanup(func() { _ = mgr.Shutdown(context.Background()) })
	return mgr
}

func TestManagerServesLoomRegistry(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t, config.Observability{
		ServiceName:     "loom",
		ServiceVersion:  "1.2.3",
		EnableMetrics:   true,
		MetricsExporter: "prometheus",
		PrometheusPath:  "/metrics",
	})
	if mgr.TracingEnabled() || !mgr.MetricsEnabled() {
		t.Fatalf("tracing=%v metrics=%v", mgr.TracingEnabled(), mgr.MetricsEnabled())
	}
	if mgr.Version() != "1.2.3" {
		t.Fatalf("Version() = %q", mgr.Version())
	}

	counter, err := mgr.Meter().Int64Counter("loom.status.transitions")
	if err != nil {
		t.Fatalf("Int64Counter() error = %v", err)
	}
	counter.Add(ctx, 2)

	e := echo.New()
	e.Use(mgr.HTTPMetrics().Middleware())
	e.GET("/samples", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/samples", nil))

	rec := httptest.NewRecorder()
	mgr.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, mgr.PrometheusPath(), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"loom_status_transitions",
		"http_requests_total{",
		`path="/samples"`,
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output lacks %q", want)
		}
	}
}

func TestManagerWithoutPrometheus(t *testing.T) {
	stdout := newManager(t, config.Observability{ServiceName: "loom", EnableMetrics: true, MetricsExporter: "stdout"})
	if !stdout.MetricsEnabled() {
		t.Fatal("stdout exporter should enable metrics")
	}
	if stdout.HTTPMetrics() != nil || stdout.MetricsHandler() != nil {
		t.Fatal("stdout exporter should not expose a scrape endpoint")
	}

	off := newManager(t, config.Observability{ServiceName: "loom"})
	if off.MetricsEnabled() || off.TracingEnabled() {
		t.Fatal("providers should be off")
	}
	if _, err := off.Meter().Int64Counter("loom.status.transitions"); err != nil {
		t.Fatalf("no-op meter error = %v", err)
	}
	if off.Version() == "" {
		t.Fatal("version should fall back to build info")
	}
}
