package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jardin-pos/api/internal/apperr"
	"github.com/jardin-pos/api/internal/database"
	"github.com/jardin-pos/api/internal/enum"
	"github.com/jardin-pos/api/internal/logger"
	"github.com/sirupsen/logrus"
)

// cleanupTimeout bounds the credential rollback after a failed record write.
// The rollback runs even when the request context is already done.
const cleanupTimeout = 5 * time.Second

var (
	ErrInvalidRole     = fmt.Errorf("%w: role must be one of admin, pos, cocina", apperr.ErrValidation)
	ErrInvalidEmail    = fmt.Errorf("%w: invalid email", apperr.ErrValidation)
	ErrMissingPassword = fmt.Errorf("%w: password is required", apperr.ErrValidation)
	ErrStaffNotFound   = fmt.Errorf("%w: staff member", apperr.ErrNotFound)
)

// CredentialProvisioner creates credentials without touching the caller's
// session. Satisfied by *identity.Provider.
type CredentialProvisioner interface {
	CreateCredential(ctx context.Context, email, password string) (uuid.UUID, error)
	DeleteCredential(ctx context.Context, id uuid.UUID) error
}

// StaffStore is satisfied by *database.Queries.
type StaffStore interface {
	CreateStaff(ctx context.Context, arg database.CreateStaffParams) (database.Staff, error)
	ListStaff(ctx context.Context) ([]database.Staff, error)
	DeleteStaff(ctx context.Context, id uuid.UUID) (int64, error)
}

type CreateStaffRequest struct {
	Email       string
	Password    string
	Role        string
	DisplayName string
}

// StaffService is the staff directory: who may sign in and with which role.
type StaffService struct {
	creds CredentialProvisioner
	store StaffStore
	log   logrus.FieldLogger
}

func NewStaffService(creds CredentialProvisioner, store StaffStore, log logrus.FieldLogger) *StaffService {
	return &StaffService{creds: creds, store: store, log: logger.OrDefault(log)}
}

// ValidRole reports whether role names one of the staff roles.
func ValidRole(role string) bool {
	switch role {
	case enum.RoleAdmin, enum.RolePOS, enum.RoleKitchen:
		return true
	}
	return false
}

// Create provisions a credential and then the directory record keyed by it.
// If the record cannot be written the credential is deleted again; the
// returned *apperr.OrphanedCredentialError unwraps to the write failure.
func (s *StaffService) Create(ctx context.Context, req CreateStaffRequest) (database.Staff, error) {
	role := strings.ToLower(strings.TrimSpace(req.Role))
	if !ValidRole(role) {
		return database.Staff{}, ErrInvalidRole
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !strings.Contains(email, "@") {
		return database.Staff{}, ErrInvalidEmail
	}
	if req.Password == "" {
		return database.Staff{}, ErrMissingPassword
	}

	credID, err := s.creds.CreateCredential(ctx, email, req.Password)
	if err != nil {
		return database.Staff{}, fmt.Errorf("create credential: %w", err)
	}

	staff, err := s.store.CreateStaff(ctx, database.CreateStaffParams{
		ID:          credID,
		Email:       email,
		Role:        role,
		DisplayName: strings.TrimSpace(req.DisplayName),
	})
	if err != nil {
		orphan := &apperr.OrphanedCredentialError{
			CredentialID: credID,
			Err:          apperr.Unavailable("create staff", err),
		}
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		defer cancel()
		if cleanupErr := s.creds.DeleteCredential(cleanupCtx, credID); cleanupErr != nil {
			orphan.CleanupErr = cleanupErr
			s.log.WithError(cleanupErr).WithFields(logrus.Fields{
				"credential_id": credID,
				"email":         email,
			}).Error("credential left without staff record")
		}
		return database.Staff{}, orphan
	}

	s.log.WithFields(logrus.Fields{"staff_id": staff.ID, "role": staff.Role}).Info("staff member created")
	return staff, nil
}

func (s *StaffService) List(ctx context.Context) ([]database.Staff, error) {
	staff, err := s.store.ListStaff(ctx)
	if err != nil {
		return nil, apperr.Unavailable("list staff", err)
	}
	return staff, nil
}

// Delete removes the directory record only. The credential stays valid, but
// the role gate ends any session that has no record behind it.
func (s *StaffService) Delete(ctx context.Context, id uuid.UUID) error {
	n, err := s.store.DeleteStaff(ctx, id)
	if err != nil {
		return apperr.Unavailable("delete staff", err)
	}
	if n == 0 {
		return ErrStaffNotFound
	}
	s.log.WithField("staff_id", id).Warn("staff record deleted; credential remains valid")
	return nil
}

// IsOrphan reports whether err left a credential behind.
func IsOrphan(err error) bool {
	var orphan *apperr.OrphanedCredentialError
	return errors.As(err, &orphan)
}
