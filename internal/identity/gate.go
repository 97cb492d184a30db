package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jardin-pos/api/internal/apperr"
	"github.com/jardin-pos/api/internal/database"
	"github.com/jardin-pos/api/internal/logger"
	"github.com/sirupsen/logrus"
)

var (
	ErrNoStaffRecord = fmt.Errorf("%w: no staff record for this account", apperr.ErrUnauthenticated)
	ErrForbidden     = fmt.Errorf("%w: role not allowed here", apperr.ErrUnauthorized)
)

// Principal is an authenticated staff member with their directory role.
type Principal struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	Role        string    `json:"role"`
	DisplayName string    `json:"display_name"`
	SessionID   string    `json:"-"`
}

// Sessions is satisfied by *Provider.
type Sessions interface {
	Restore(ctx context.Context, token string) (SessionIdentity, error)
	EndSession(ctx context.Context, token string) error
}

// StaffLookup is satisfied by *database.Queries.
type StaffLookup interface {
	GetStaff(ctx context.Context, id uuid.UUID) (database.Staff, error)
}

// Gate resolves tokens into principals and enforces roles.
type Gate struct {
	sessions  Sessions
	directory StaffLookup
	log       logrus.FieldLogger
}

func NewGate(sessions Sessions, directory StaffLookup, log logrus.FieldLogger) *Gate {
	return &Gate{sessions: sessions, directory: directory, log: logger.OrDefault(log)}
}

// Resolve restores the session behind token, reads the staff record and
// combines the two. A session without a staff record is ended.
func (g *Gate) Resolve(ctx context.Context, token string) (*Principal, error) {
	session, err := g.sessions.Restore(ctx, token)
	if err != nil {
		return nil, err
	}

	var staff *database.Staff
	rec, err := g.directory.GetStaff(ctx, session.UserID)
	switch {
	case err == nil:
		staff = &rec
	case errors.Is(err, pgx.ErrNoRows):
	default:
		return nil, apperr.Unavailable("get staff", err)
	}

	p, err := Combine(session, staff)
	if err != nil {
		g.forceSignOut(ctx, token, session, err)
		return nil, err
	}
	return p, nil
}

// Authorize passes when p holds one of roles. Otherwise the session is
// ended and ErrForbidden is returned.
func (g *Gate) Authorize(ctx context.Context, token string, p *Principal, roles ...string) error {
	for _, role := range roles {
		if Allow(p, role) {
			return nil
		}
	}
	if p != nil {
		g.forceSignOut(ctx, token, SessionIdentity{UserID: p.ID, Email: p.Email, SessionID: p.SessionID}, ErrForbidden)
	}
	return ErrForbidden
}

func (g *Gate) forceSignOut(ctx context.Context, token string, session SessionIdentity, reason error) {
	fields := logrus.Fields{"user_id": session.UserID, "email": session.Email, "reason": reason.Error()}
	if err := g.sessions.EndSession(ctx, token); err != nil {
		g.log.WithFields(fields).WithError(err).Error("forced sign-out failed")
		return
	}
	g.log.WithFields(fields).Warn("session ended by role gate")
}

// Combine joins a session with its staff record. It is pure.
func Combine(session SessionIdentity, staff *database.Staff) (*Principal, error) {
	if staff == nil {
		return nil, ErrNoStaffRecord
	}
	if staff.Role == "" {
		return nil, fmt.Errorf("%w: staff record has no role", apperr.ErrUnauthenticated)
	}
	email := staff.Email
	if email == "" {
		email = session.Email
	}
	if email == "" {
		return nil, fmt.Errorf("%w: staff record has no email", apperr.ErrUnauthenticated)
	}
	return &Principal{
		ID:          session.UserID,
		Email:       email,
		Role:        staff.Role,
		DisplayName: staff.DisplayName,
		SessionID:   session.SessionID,
	}, nil
}

// Allow reports whether p holds required, ignoring case.
func Allow(p *Principal, required string) bool {
	return p != nil && strings.EqualFold(p.Role, required)
}
