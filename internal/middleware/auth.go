package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/jardin-pos/api/internal/apperr"
	"github.com/jardin-pos/api/internal/identity"
	"github.com/sirupsen/logrus"
)

type contextKey string

const (
	principalKey contextKey = "principal"
	tokenKey     contextKey = "token"
)

// Gate is satisfied by *identity.Gate.
type Gate interface {
	Resolve(ctx context.Context, token string) (*identity.Principal, error)
	Authorize(ctx context.Context, token string, p *identity.Principal, roles ...string) error
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", errors.New("invalid authorization format")
	}
	return parts[1], nil
}

func Authenticate(gate Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := BearerToken(r)
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
				return
			}

			p, err := gate.Resolve(r.Context(), token)
			if err != nil {
				writeError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p, token)))
		})
	}
}

// RequireRole lets the request through when the principal holds one of
// roles. A mismatch answers 403 and ends the session.
func RequireRole(gate Gate, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := PrincipalFromContext(r.Context())
			if p == nil {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
				return
			}

			if err := gate.Authorize(r.Context(), TokenFromContext(r.Context()), p, roles...); err != nil {
				logrus.WithFields(logrus.Fields{
					"staff_id": p.ID,
					"role":     p.Role,
					"required": roles,
					"path":     r.URL.Path,
				}).Warn("role check failed")
				writeError(w, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// WithPrincipal stores an authenticated principal and its token in ctx.
func WithPrincipal(ctx context.Context, p *identity.Principal, token string) context.Context {
	ctx = context.WithValue(ctx, principalKey, p)
	return context.WithValue(ctx, tokenKey, token)
}

func PrincipalFromContext(ctx context.Context) *identity.Principal {
	p, _ := ctx.Value(principalKey).(*identity.Principal)
	return p
}

func TokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(tokenKey).(string)
	return t
}

func writeError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		logrus.WithError(err).Error("authenticate request")
		msg = http.StatusText(status)
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
