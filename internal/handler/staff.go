package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jardin-pos/api/internal/apperr"
	"github.com/jardin-pos/api/internal/database"
	"github.com/jardin-pos/api/internal/service"
	"github.com/sirupsen/logrus"
)

// StaffServicer is satisfied by *service.StaffService.
type StaffServicer interface {
	Create(ctx context.Context, req service.CreateStaffRequest) (database.Staff, error)
	List(ctx context.Context) ([]database.Staff, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// StaffHandler handles the staff directory endpoints.
type StaffHandler struct {
	svc StaffServicer
}

func NewStaffHandler(svc StaffServicer) *StaffHandler {
	return &StaffHandler{svc: svc}
}

// RegisterRoutes registers staff endpoints.
// Expected to be mounted behind the admin role: /staff
func (h *StaffHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Delete("/{id}", h.Delete)
}

// --- Request / Response types ---

type createStaffRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	Role        string `json:"role"`
	DisplayName string `json:"display_name"`
}

type staffResponse struct {
	ID          uuid.UUID  `json:"id"`
	Email       string     `json:"email"`
	Role        string     `json:"role"`
	DisplayName string     `json:"display_name"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
}

type orphanResponse struct {
	Error        string    `json:"error"`
	CredentialID uuid.UUID `json:"credential_id"`
	CleanedUp    bool      `json:"cleaned_up"`
}

func toStaffResponse(s database.Staff) staffResponse {
	resp := staffResponse{
		ID:          s.ID,
		Email:       s.Email,
		Role:        s.Role,
		DisplayName: s.DisplayName,
	}
	if s.CreatedAt.Valid {
		t := s.CreatedAt.Time
		resp.CreatedAt = &t
	}
	return resp
}

// --- Handlers ---

func (h *StaffHandler) List(w http.ResponseWriter, r *http.Request) {
	staff, err := h.svc.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]staffResponse, len(staff))
	for i, s := range staff {
		resp[i] = toStaffResponse(s)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create provisions a credential and its staff record. When the record
// cannot be written the response names the credential that was created so
// an operator can check the cleanup.
func (h *StaffHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createStaffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Email == "" || req.Password == "" || req.Role == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "email, password, and role are required"})
		return
	}

	staff, err := h.svc.Create(r.Context(), service.CreateStaffRequest{
		Email:       req.Email,
		Password:    req.Password,
		Role:        req.Role,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		var orphan *apperr.OrphanedCredentialError
		if errors.As(err, &orphan) {
			logrus.WithError(err).WithField("credential_id", orphan.CredentialID).Error("create staff")
			writeJSON(w, apperr.HTTPStatus(err), orphanResponse{
				Error:        "staff record could not be created",
				CredentialID: orphan.CredentialID,
				CleanedUp:    orphan.CleanupErr == nil,
			})
			return
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toStaffResponse(staff))
}

func (h *StaffHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid staff ID"})
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
