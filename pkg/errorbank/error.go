package errorbank

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind enumerates supported application error categories.
type Kind string

const (
	KindValidation             Kind = "validation_error"
	KindNotFound               Kind = "not_found"
	KindInvalidTransition      Kind = "invalid_transition"
	KindEditNotAllowed         Kind = "edit_not_allowed"
	KindDeleteNotAllowed       Kind = "delete_not_allowed"
	KindReferentialIntegrity   Kind = "referential_integrity"
	KindConcurrentModification Kind = "concurrent_modification"
	KindConflict               Kind = "conflict"
	KindUnauthorized           Kind = "unauthorized"
	KindInternal               Kind = "internal"
)

// internalMessage is what callers see for unexpected failures.
const internalMessage = "internal server error"

// AppError captures rich error context shared across transports.
type AppError struct {
	kind    Kind
	message string
	details map[string]any
	cause   error
}

// Option mutates an AppError during construction.
type Option func(*AppError)

// WithCause attaches an underlying error.
func WithCause(err error) Option {
	return func(appErr *AppError) {
		appErr.cause = err
	}
}

// WithDetail adds a single named detail value.
func WithDetail(key string, value any) Option {
	return func(appErr *AppError) {
		if appErr.details == nil {
			appErr.details = make(map[string]any)
		}
		appErr.details[key] = value
	}
}

// WithDetails merges multiple detail values.
func WithDetails(details map[string]any) Option {
	return func(appErr *AppError) {
		if len(details) == 0 {
			return
		}
		if appErr.details == nil {
			appErr.details = make(map[string]any)
		}
		for k, v := range details {
			appErr.details[k] = v
		}
	}
}

// New constructs a new AppError with the supplied kind and message.
func New(kind Kind, message string, opts ...Option) *AppError {
	if message == "" {
		message = string(kind)
	}
	appErr := &AppError{kind: kind, message: message}
	for _, opt := range opts {
		opt(appErr)
	}
	return appErr
}

// Error satisfies the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Kind returns the error category.
func (e *AppError) Kind() Kind {
	if e == nil {
		return KindInternal
	}
	return e.kind
}

// Message returns the human-readable message.
func (e *AppError) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// PublicMessage returns the message safe to show to callers. Internal errors
// never leak their message or cause.
func (e *AppError) PublicMessage() string {
	if e == nil || e.kind == KindInternal {
		return internalMessage
	}
	return e.message
}

// Details returns optional metadata about the error.
func (e *AppError) Details() map[string]any {
	if e == nil {
		return nil
	}
	return e.details
}

// StatusCode resolves the HTTP status for the error kind.
func (e *AppError) StatusCode() int {
	if e == nil {
		return http.StatusInternalServerError
	}
	switch e.kind {
	case KindValidation,
		KindInvalidTransition,
		KindEditNotAllowed,
		KindDeleteNotAllowed,
		KindReferentialIntegrity:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindConcurrentModification:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// GRPCCode maps the error kind onto a gRPC status code.
func (e *AppError) GRPCCode() codes.Code {
	if e == nil {
		return codes.Internal
	}
	switch e.kind {
	case KindValidation:
		return codes.InvalidArgument
	case KindNotFound:
		return codes.NotFound
	case KindInvalidTransition, KindEditNotAllowed, KindDeleteNotAllowed, KindReferentialIntegrity:
		return codes.FailedPrecondition
	case KindConcurrentModification:
		return codes.Aborted
	case KindConflict:
		return codes.AlreadyExists
	case KindUnauthorized:
		return codes.Unauthenticated
	default:
		return codes.Internal
	}
}

// GRPCStatus lets grpc/status.FromError convert an AppError transparently.
func (e *AppError) GRPCStatus() *status.Status {
	return status.New(e.GRPCCode(), e.PublicMessage())
}

// Validation constructs a 400 error for malformed input.
func Validation(message string, opts ...Option) *AppError {
	return New(KindValidation, message, opts...)
}

// NotFound constructs a 404 error.
func NotFound(message string, opts ...Option) *AppError {
	return New(KindNotFound, message, opts...)
}

// InvalidTransition reports a status change the workflow does not allow.
func InvalidTransition(from, to string, opts ...Option) *AppError {
	opts = append([]Option{WithDetail("from", from), WithDetail("to", to)}, opts...)
	return New(KindInvalidTransition, fmt.Sprintf("Invalid status transition from %s to %s", from, to), opts...)
}

// EditNotAllowed reports a field edit outside the editable state.
func EditNotAllowed(message string, opts ...Option) *AppError {
	return New(KindEditNotAllowed, message, opts...)
}

// DeleteNotAllowed reports a delete outside the deletable state.
func DeleteNotAllowed(message string, opts ...Option) *AppError {
	return New(KindDeleteNotAllowed, message, opts...)
}

// ReferentialIntegrity reports a delete blocked by existing references.
func ReferentialIntegrity(message string, opts ...Option) *AppError {
	return New(KindReferentialIntegrity, message, opts...)
}

// ConcurrentModification reports a lost compare-and-set.
func ConcurrentModification(message string, opts ...Option) *AppError {
	return New(KindConcurrentModification, message, opts...)
}

// Conflict constructs a 409 error.
func Conflict(message string, opts ...Option) *AppError {
	return New(KindConflict, message, opts...)
}

// Unauthorized reports a missing or invalid credential.
func Unauthorized(message string, opts ...Option) *AppError {
	return New(KindUnauthorized, message, opts...)
}

// Internal constructs a generic 500 error.
func Internal(message string, opts ...Option) *AppError {
	return New(KindInternal, message, opts...)
}

// From returns an AppError for any error input, wrapping unexpected values.
func From(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal("internal error", WithCause(err))
}

// Is reports whether err is an AppError of the given kind.
func Is(err error, kind Kind) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.kind == kind
}
