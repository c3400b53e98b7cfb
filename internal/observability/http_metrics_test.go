package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHTTPMetricsCountsByRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewHTTPMetrics("loom", reg)
	if err != nil {
		t.Fatalf("NewHTTPMetrics() error = %v", err)
	}
	if _, err := NewHTTPMetrics("loom", reg); err != nil {
		t.Fatalf("second registration error = %v", err)
	}

	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/samples/:id", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	for _, path := range []string{"/samples/a", "/samples/b"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}
	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))

	if got := testutil.ToFloat64(m.requests.WithLabelValues("loom", "GET", "/samples/:id", "200")); got != 2 {
		t.Fatalf("route counter = %v, want 2", got)
	}
	if got := testutil.CollectAndCount(m.requests); got != 2 {
		t.Fatalf("series = %d, want 2", got)
	}
}
