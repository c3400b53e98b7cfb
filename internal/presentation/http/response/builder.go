package response

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/Additional-Code/loom/internal/logger"
	"github.com/Additional-Code/loom/pkg/errorbank"
	"github.com/Additional-Code/loom/pkg/pagination"
)

// Builder helps construct consistent HTTP responses.
type Builder struct {
	ctx        echo.Context
	status     int
	data       any
	err        error
	pagination *pagination.Meta
}

// New instantiates a Builder for the provided request context.
func New(ctx echo.Context) *Builder {
	return &Builder{ctx: ctx, status: http.StatusOK}
}

// WithStatus overrides the response status code.
func (b *Builder) WithStatus(status int) *Builder {
	if status > 0 {
		b.status = status
	}
	return b
}

// WithData attaches a success payload.
func (b *Builder) WithData(data any) *Builder {
	b.data = data
	return b
}

// WithError records an error to be rendered.
func (b *Builder) WithError(err error) *Builder {
	b.err = err
	return b
}

// WithPagination attaches list paging metadata.
func (b *Builder) WithPagination(meta pagination.Meta) *Builder {
	b.pagination = &meta
	return b
}

// Build finalises and emits the HTTP response.
func (b *Builder) Build() error {
	if b.err != nil {
		return b.buildError()
	}
	return b.buildSuccess()
}

func (b *Builder) buildSuccess() error {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	payload := struct {
		Success    bool             `json:"success"`
		Data       any              `json:"data"`
		Pagination *pagination.Meta `json:"pagination,omitempty"`
	}{
		Success:    true,
		Data:       b.data,
		Pagination: b.pagination,
	}
	return b.ctx.JSON(b.status, payload)
}

func (b *Builder) buildError() error {
	appErr := errorbank.From(b.err)
	status := b.status
	if status < 400 {
		status = appErr.StatusCode()
	}

	if appErr.Kind() == errorbank.KindInternal {
		req := b.ctx.Request()
		logger.FromContext(req.Context(), nil).Error("request failed",
			zap.String("method", req.Method),
			zap.String("path", b.ctx.Path()),
			zap.Error(appErr),
		)
	}

	payload := struct {
		Success bool           `json:"success"`
		Error   string         `json:"error"`
		Kind    string         `json:"kind"`
		Details map[string]any `json:"details,omitempty"`
	}{
		Success: false,
		Error:   appErr.PublicMessage(),
		Kind:    string(appErr.Kind()),
	}
	if appErr.Kind() != errorbank.KindInternal {
		payload.Details = appErr.Details()
	}

	return b.ctx.JSON(status, payload)
}
