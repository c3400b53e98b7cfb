// Package request decodes common HTTP request inputs.
package request

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Additional-Code/loom/internal/repository"
	"github.com/Additional-Code/loom/pkg/errorbank"
	"github.com/Additional-Code/loom/pkg/pagination"
)

// Bind decodes the JSON body into dst, reporting malformed input as a
// validation error.
func Bind(c echo.Context, dst any) error {
	if err := (&echo.DefaultBinder{}).BindBody(c, dst); err != nil {
		return errorbank.Validation("invalid payload", errorbank.WithCause(err))
	}
	return nil
}

// Filter reads the standard list query parameters: status, customerId,
// search, page and limit.
func Filter(c echo.Context) repository.Filter {
	return repository.Filter{
		Status:     strings.TrimSpace(c.QueryParam("status")),
		CustomerID: strings.TrimSpace(c.QueryParam("customerId")),
		Search:     strings.TrimSpace(c.QueryParam("search")),
		Page:       pagination.Parse(c),
	}
}

// Value dereferences an optional string.
func Value(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
