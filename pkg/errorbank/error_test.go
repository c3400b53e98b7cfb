package errorbank

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestStatusCodeByKind(t *testing.T) {
	for _, tc := range []struct {
		err  *AppError
		http int
		grpc codes.Code
	}{
		{Validation("bad"), http.StatusBadRequest, codes.InvalidArgument},
		{NotFound("missing"), http.StatusNotFound, codes.NotFound},
		{InvalidTransition("approved", "draft"), http.StatusBadRequest, codes.FailedPrecondition},
		{EditNotAllowed("no"), http.StatusBadRequest, codes.FailedPrecondition},
		{DeleteNotAllowed("no"), http.StatusBadRequest, codes.FailedPrecondition},
		{ReferentialIntegrity("in use"), http.StatusBadRequest, codes.FailedPrecondition},
		{ConcurrentModification("stale"), http.StatusConflict, codes.Aborted},
		{Conflict("dup"), http.StatusConflict, codes.AlreadyExists},
		{Unauthorized("token"), http.StatusUnauthorized, codes.Unauthenticated},
		{Internal("boom"), http.StatusInternalServerError, codes.Internal},
	} {
		t.Run(string(tc.err.Kind()), func(t *testing.T) {
			if got := tc.err.StatusCode(); got != tc.http {
				t.Errorf("StatusCode() = %d, want %d", got, tc.http)
			}
			if got := tc.err.GRPCCode(); got != tc.grpc {
				t.Errorf("GRPCCode() = %s, want %s", got, tc.grpc)
			}
		})
	}
}

func TestInvalidTransitionMessage(t *testing.T) {
	err := InvalidTransition("approved", "on_review")
	if got, want := err.Message(), "Invalid status transition from approved to on_review"; got != want {
		t.Fatalf("Message() = %q, want %q", got, want)
	}
	if err.Details()["from"] != "approved" || err.Details()["to"] != "on_review" {
		t.Fatalf("unexpected details: %v", err.Details())
	}
}

func TestFromWrapsUnexpectedErrors(t *testing.T) {
	cause := errors.New("connection reset")
	appErr := From(cause)
	if appErr.Kind() != KindInternal {
		t.Fatalf("Kind() = %s, want internal", appErr.Kind())
	}
	if !errors.Is(appErr, cause) {
		t.Fatal("cause is not reachable through errors.Is")
	}
	if appErr.PublicMessage() != "internal server error" {
		t.Fatalf("PublicMessage() = %q", appErr.PublicMessage())
	}
}

func TestFromKeepsWrappedAppError(t *testing.T) {
	wrapped := fmt.Errorf("handler: %w", NotFound("sample not found"))
	appErr := From(wrapped)
	if appErr.Kind() != KindNotFound || appErr.PublicMessage() != "sample not found" {
		t.Fatalf("unexpected error: %v", appErr)
	}
	if !Is(wrapped, KindNotFound) || Is(wrapped, KindConflict) {
		t.Fatal("Is() did not match the wrapped kind")
	}
}

func TestGRPCStatusConversion(t *testing.T) {
	st, ok := status.FromError(ConcurrentModification("stale"))
	if !ok {
		t.Fatal("status.FromError did not recognise AppError")
	}
	if st.Code() != codes.Aborted || st.Message() != "stale" {
		t.Fatalf("unexpected status: %v", st)
	}
}
