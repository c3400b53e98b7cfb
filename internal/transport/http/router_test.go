package http_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/loom/internal/app"
	"github.com/Additional-Code/loom/internal/auth"
	"github.com/Additional-Code/loom/internal/cache"
	"github.com/Additional-Code/loom/internal/messaging"
	"github.com/Additional-Code/loom/internal/realtime"
	httpserver "github.com/Additional-Code/loom/internal/server/http"
	"github.com/Additional-Code/loom/internal/storage"
	"github.com/Additional-Code/loom/internal/testutil"
	transporthttp "github.com/Additional-Code/loom/internal/transport/http"
)

type envelope struct {
	Success    bool            `json:"success"`
	Data       json.RawMessage `json:"data"`
	Error      string          `json:"error"`
	Kind       string          `json:"kind"`
	Pagination *struct {
		Total int `json:"total"`
	} `json:"pagination"`
}

type resource struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	History []struct {
		NewStatus string `json:"newStatus"`
	} `json:"history"`
}

func newRouter(t *testing.T) *echo.Echo {
	t.Helper()
	conns, cfg := testutil.NewDB(t)

	var e *echo.Echo
	application := fx.New(
		fx.NopLogger,
		fx.Supply(cfg, conns, zap.NewNop()),
		fx.Provide(cache.NewStore, messaging.NewClient),
		storage.Module,
		auth.Module,
		realtime.Module,
		app.Repositories,
		app.Services,
		fx.Provide(httpserver.NewEcho),
		transporthttp.Module,
		fx.Populate(&e),
	)
	if err := application.Err(); err != nil {
		t.Fatalf("build router: %v", err)
	}
	return e
}

func call(t *testing.T, e *echo.Echo, method, path string, body any) (int, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(auth.HeaderActor, testutil.Actor)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: decode %q: %v", method, path, rec.Body.String(), err)
	}
	return rec.Code, env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(env.Data, &out); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	return out
}

func createCustomer(t *testing.T, e *echo.Echo, email string) string {
	t.Helper()
	code, env := call(t, e, http.MethodPost, "/customers", map[string]any{
		"name":  "Acme Garments",
		"email": email,
	})
	if code != http.StatusCreated {
		t.Fatalf("create customer status = %d (%s)", code, env.Error)
	}
	return decode[resource](t, env).ID
}

func TestSampleApprovalLifecycle(t *testing.T) {
	e := newRouter(t)
	customerID := createCustomer(t, e, "buyer@acme.test")

	code, env := call(t, e, http.MethodPost, "/samples", map[string]any{
		"customerId": customerID,
		"name":       "Denim jacket",
		"quantity":   2,
		"materials": []map[string]any{
			{"materialName": "Selvedge denim", "category": "fabric", "quantity": "3.2", "unit": "m"},
		},
		"stages": []map[string]any{{"stage": "cutting"}, {"stage": "washing"}},
	})
	if code != http.StatusCreated {
		t.Fatalf("create sample status = %d (%s)", code, env.Error)
	}
	sample := decode[resource](t, env)
	if sample.Status != "draft" || len(sample.History) != 1 {
		t.Fatalf("new sample = %+v", sample)
	}

	for _, status := range []string{"on_review", "approved"} {
		code, env = call(t, e, http.MethodPost, "/samples/"+sample.ID+"/status", map[string]any{"status": status})
		if code != http.StatusOK {
			t.Fatalf("move to %s status = %d (%s)", status, code, env.Error)
		}
	}

	code, env = call(t, e, http.MethodPost, "/samples/"+sample.ID+"/status", map[string]any{"status": "on_review"})
	if code != http.StatusBadRequest || env.Kind != "invalid_transition" {
		t.Fatalf("approved -> on_review = %d %s", code, env.Kind)
	}
	if env.Error != "Invalid status transition from approved to on_review" {
		t.Fatalf("error message = %q", env.Error)
	}

	code, env = call(t, e, http.MethodPut, "/samples/"+sample.ID, map[string]any{"name": "Renamed"})
	if code != http.StatusBadRequest || env.Kind != "edit_not_allowed" {
		t.Fatalf("edit after approval = %d %s", code, env.Kind)
	}

	code, env = call(t, e, http.MethodGet, "/samples/"+sample.ID, nil)
	if code != http.StatusOK {
		t.Fatalf("get sample status = %d", code)
	}
	got := decode[resource](t, env)
	if got.Status != "approved" || len(got.History) != 3 {
		t.Fatalf("sample after lifecycle = %+v", got)
	}
	if got.History[0].NewStatus != "approved" {
		t.Fatalf("latest history row = %s", got.History[0].NewStatus)
	}
}

func TestCustomerEndpoints(t *testing.T) {
	e := newRouter(t)
	id := createCustomer(t, e, "a@acme.test")

	code, env := call(t, e, http.MethodPost, "/customers", map[string]any{"name": "Other", "email": "A@acme.test"})
	if code != http.StatusConflict || env.Kind != "conflict" {
		t.Fatalf("duplicate email = %d %s", code, env.Kind)
	}

	for i := 0; i < 2; i++ {
		code, env = call(t, e, http.MethodPost, "/sales-orders", map[string]any{
			"customerId": id,
			"items": []map[string]any{
				{"style": "TEE", "quantity": 10, "unitPrice": "4.50"},
			},
		})
		if code != http.StatusCreated {
			t.Fatalf("create order status = %d (%s)", code, env.Error)
		}
	}

	code, env = call(t, e, http.MethodGet, "/sales-orders?customerId="+id, nil)
	if code != http.StatusOK || env.Pagination == nil || env.Pagination.Total != 2 {
		t.Fatalf("orders of customer = %d %+v", code, env.Pagination)
	}

	code, env = call(t, e, http.MethodDelete, "/customers/"+id, nil)
	if code != http.StatusBadRequest || env.Kind != "referential_integrity" {
		t.Fatalf("delete referenced customer = %d %s", code, env.Kind)
	}

	code, env = call(t, e, http.MethodGet, "/customers/does-not-exist", nil)
	if code != http.StatusNotFound || env.Success {
		t.Fatalf("unknown customer = %d %+v", code, env)
	}
}

func TestMutationsRequireActor(t *testing.T) {
	e := newRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/customers", strings.NewReader(`{"name":"Anon","email":"anon@acme.test"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"kind":"validation_error"`) {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestDashboardAndWorkflows(t *testing.T) {
	e := newRouter(t)
	customerID := createCustomer(t, e, "dash@acme.test")
	if code, env := call(t, e, http.MethodPost, "/work-orders", map[string]any{
		"customerId": customerID,
		"name":       "Polo run",
		"quantity":   300,
	}); code != http.StatusCreated {
		t.Fatalf("create work order status = %d (%s)", code, env.Error)
	}

	code, env := call(t, e, http.MethodGet, "/dashboard", nil)
	if code != http.StatusOK {
		t.Fatalf("dashboard status = %d", code)
	}
	dash := decode[struct {
		Overview struct {
			StatusCounts map[string]int `json:"statusCounts"`
		} `json:"overview"`
		Production struct {
			StageCounts     map[string]int `json:"stageCounts"`
			TotalWorkOrders int            `json:"totalWorkOrders"`
		} `json:"production"`
		RecentActivity []struct {
			EntityType string `json:"entityType"`
		} `json:"recentActivity"`
	}](t, env)
	if dash.Overview.StatusCounts["draft"] != 0 || len(dash.Overview.StatusCounts) != 5 {
		t.Fatalf("status counts = %v", dash.Overview.StatusCounts)
	}
	if dash.Production.TotalWorkOrders != 1 || dash.Production.StageCounts["order_processing"] != 1 {
		t.Fatalf("production = %+v", dash.Production)
	}
	if len(dash.RecentActivity) != 1 || dash.RecentActivity[0].EntityType != "work_order" {
		t.Fatalf("recent activity = %+v", dash.RecentActivity)
	}

	code, env = call(t, e, http.MethodGet, "/workflows", nil)
	if code != http.StatusOK {
		t.Fatalf("workflows status = %d", code)
	}
	flows := decode[[]struct {
		Entity  string `json:"entity"`
		Initial string `json:"initial"`
	}](t, env)
	if len(flows) != 3 {
		t.Fatalf("workflows = %+v", flows)
	}
}
