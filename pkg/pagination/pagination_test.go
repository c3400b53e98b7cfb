package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestNewClamps(t *testing.T) {
	for _, tc := range []struct {
		page, limit int
		want        Params
	}{
		{0, 0, Params{Page: 1, Limit: 20, Offset: 0}},
		{3, 10, Params{Page: 3, Limit: 10, Offset: 20}},
		{-2, 500, Params{Page: 1, Limit: 100, Offset: 0}},
	} {
		if got := New(tc.page, tc.limit); got != tc.want {
			t.Errorf("New(%d, %d) = %+v, want %+v", tc.page, tc.limit, got, tc.want)
		}
	}
}

func TestParseQuery(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/samples?page=2&limit=5", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	if got := Parse(c); got != (Params{Page: 2, Limit: 5, Offset: 5}) {
		t.Fatalf("Parse() = %+v", got)
	}
}

func TestMetaTotalPages(t *testing.T) {
	m := New(1, 10).Meta(21)
	if m.TotalPages != 3 || m.Total != 21 {
		t.Fatalf("Meta() = %+v", m)
	}
	if New(1, 10).Meta(0).TotalPages != 0 {
		t.Fatal("empty result should have zero pages")
	}
}
