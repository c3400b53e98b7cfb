// Package repository holds query helpers shared by the entity repositories.
package repository

import (
	"strings"

	"github.com/uptrace/bun"

	"github.com/Additional-Code/loom/pkg/pagination"
)

// Filter narrows list queries. Empty fields are ignored.
type Filter struct {
	Status     string
	CustomerID string
	Search     string
	Page       pagination.Params
}

// Paged returns a copy of f with zero pagination replaced by defaults.
func (f Filter) Paged() Filter {
	if f.Page.Limit == 0 {
		f.Page = pagination.New(f.Page.Page, f.Page.Limit)
	}
	return f
}

// Search adds a case-insensitive substring match over the given columns.
// Columns are trusted identifiers, never request input.
func Search(q *bun.SelectQuery, term string, columns ...string) *bun.SelectQuery {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" || len(columns) == 0 {
		return q
	}
	pattern := "%" + term + "%"
	return q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
		for _, col := range columns {
			q = q.WhereOr("LOWER("+col+") LIKE ?", pattern)
		}
		return q
	})
}
