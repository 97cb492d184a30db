package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jardin-pos/api/internal/apperr"
	"github.com/jardin-pos/api/internal/identity"
	"github.com/jardin-pos/api/internal/middleware"
	"github.com/sirupsen/logrus"
)

// SessionProvider is satisfied by *identity.Provider.
type SessionProvider interface {
	Authenticate(ctx context.Context, email, password string) (identity.Session, error)
	EndSession(ctx context.Context, token string) error
}

// PrincipalResolver is satisfied by *identity.Gate.
type PrincipalResolver interface {
	Resolve(ctx context.Context, token string) (*identity.Principal, error)
}

// AuthHandler handles sign-in and sign-out.
type AuthHandler struct {
	provider SessionProvider
	gate     PrincipalResolver
}

func NewAuthHandler(provider SessionProvider, gate PrincipalResolver) *AuthHandler {
	return &AuthHandler{provider: provider, gate: gate}
}

// RegisterRoutes registers the public auth endpoints. /auth/me needs an
// authenticated route and is mounted by the router.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/login", h.Login)
	r.Post("/auth/logout", h.Logout)
}

// --- Request / Response types ---

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string              `json:"token"`
	ExpiresAt time.Time           `json:"expires_at"`
	Principal *identity.Principal `json:"principal"`
}

// --- Handlers ---

// Login checks the credential and resolves the staff record behind it. An
// account without a staff record gets no session: the gate ends it.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Email == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "email and password are required"})
		return
	}

	session, err := h.provider.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	p, err := h.gate.Resolve(r.Context(), session.Token)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     session.Token,
		ExpiresAt: session.Identity.ExpiresAt,
		Principal: p,
	})
}

// Logout ends the session of the bearer token. Ending an already ended
// session succeeds.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, err := middleware.BearerToken(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
		return
	}

	if err := h.provider.EndSession(r.Context(), token); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Me returns the principal of the current request.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	if p == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// --- Helpers ---

// writeError answers with the status apperr maps err to. Server-side
// failures are logged and their detail is not sent to the client.
func writeError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		logrus.WithError(err).WithField("status", status).Error("request failed")
		msg = http.StatusText(status)
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Error("encode JSON response")
	}
}
