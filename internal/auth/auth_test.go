package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Additional-Code/loom/internal/config"
	"github.com/Additional-Code/loom/pkg/errorbank"
)

func run(t *testing.T, v *Verifier, req *http.Request) (string, error) {
	t.Helper()
	e := echo.New()
	c := e.NewContext(req, httptest.NewRecorder())
	var actor string
	var actorErr error
	err := v.Middleware()(func(c echo.Context) error {
		actor, actorErr = Actor(c)
		return nil
	})(c)
	if err != nil {
		return "", err
	}
	return actor, actorErr
}

func TestHeaderActorWhenAuthDisabled(t *testing.T) {
	v := NewVerifier(config.Config{})
	req := httptest.NewRequest(http.MethodPost, "/samples", nil)
	req.Header.Set(HeaderActor, "planner@loom.test")

	actor, err := run(t, v, req)
	if err != nil || actor != "planner@loom.test" {
		t.Fatalf("actor = %q, err = %v", actor, err)
	}
}

func TestMissingActorIsValidationError(t *testing.T) {
	v := NewVerifier(config.Config{})
	_, err := run(t, v, httptest.NewRequest(http.MethodPost, "/samples", nil))
	if !errorbank.Is(err, errorbank.KindValidation) {
		t.Fatalf("err = %v", err)
	}
}

func TestBearerTokenSubject(t *testing.T) {
	v := NewVerifier(config.Config{Auth: config.Auth{Enabled: true, JWTSecret: "s3cret", Issuer: "loom"}})
	token, err := v.Issue("qc-lead", time.Minute)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/samples", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	req.Header.Set(HeaderActor, "spoofed")

	actor, err := run(t, v, req)
	if err != nil || actor != "qc-lead" {
		t.Fatalf("actor = %q, err = %v", actor, err)
	}
}

func TestInvalidTokenRejected(t *testing.T) {
	v := NewVerifier(config.Config{Auth: config.Auth{Enabled: true, JWTSecret: "s3cret"}})
	other := NewVerifier(config.Config{Auth: config.Auth{Enabled: true, JWTSecret: "different"}})
	token, _ := other.Issue("intruder", time.Minute)

	req := httptest.NewRequest(http.MethodPost, "/samples", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	if _, err := run(t, v, req); !errorbank.Is(err, errorbank.KindUnauthorized) {
		t.Fatalf("err = %v", err)
	}
}
