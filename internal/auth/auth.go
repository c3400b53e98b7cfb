// Package auth resolves the acting identity of a request.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"

	"github.com/Additional-Code/loom/internal/config"
	"github.com/Additional-Code/loom/pkg/errorbank"
)

// HeaderActor carries the actor when token verification is disabled.
const HeaderActor = "X-Actor-ID"

const actorKey = "loom.actor"

// Module provides the verifier to Fx.
var Module = fx.Provide(NewVerifier)

// Verifier validates HS256 bearer tokens.
type Verifier struct {
	enabled bool
	secret  []byte
	issuer  string
}

// NewVerifier builds a verifier from configuration.
func NewVerifier(cfg config.Config) *Verifier {
	return &Verifier{
		enabled: cfg.Auth.Enabled,
		secret:  []byte(cfg.Auth.JWTSecret),
		issuer:  cfg.Auth.Issuer,
	}
}

// Enabled reports whether tokens are required to identify actors.
func (v *Verifier) Enabled() bool {
	return v.enabled
}

// Subject validates raw and returns its sub claim.
func (v *Verifier) Subject(raw string) (string, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	token, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return "", err
	}
	sub, err := token.Claims.GetSubject()
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(sub) == "" {
		return "", errors.New("token has no subject")
	}
	return sub, nil
}

// Issue signs a token for subject. It backs the token CLI command and tests.
func (v *Verifier) Issue(subject string, ttl time.Duration) (string, error) {
	if len(v.secret) == 0 {
		return "", errors.New("jwt secret is not configured")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    v.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Middleware stores the request actor in the echo context. With tokens
// enabled a present but invalid bearer token is rejected; an absent one
// leaves the actor empty so read-only routes still work.
func (v *Verifier) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			actor, err := v.resolve(c)
			if err != nil {
				return err
			}
			if actor != "" {
				c.Set(actorKey, actor)
			}
			return next(c)
		}
	}
}

func (v *Verifier) resolve(c echo.Context) (string, error) {
	if !v.enabled {
		return strings.TrimSpace(c.Request().Header.Get(HeaderActor)), nil
	}
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if header == "" {
		return "", nil
	}
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return "", errorbank.Unauthorized("authorization header must use the Bearer scheme")
	}
	sub, err := v.Subject(strings.TrimSpace(raw))
	if err != nil {
		return "", errorbank.Unauthorized(fmt.Sprintf("invalid token: %v", err))
	}
	return sub, nil
}

// Actor returns the resolved actor or a validation error when none was supplied.
func Actor(c echo.Context) (string, error) {
	if actor, ok := c.Get(actorKey).(string); ok && actor != "" {
		return actor, nil
	}
	return "", errorbank.Validation("actor is required; send a bearer token or the " + HeaderActor + " header")
}
