// Package identity is the boundary to credentials and sessions, and the role
// gate that turns a session into an authorised principal.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jardin-pos/api/internal/apperr"
	"github.com/jardin-pos/api/internal/auth"
	"github.com/jardin-pos/api/internal/database"
	"github.com/jardin-pos/api/internal/logger"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = fmt.Errorf("%w: invalid email or password", apperr.ErrUnauthenticated)
	ErrInvalidSession     = fmt.Errorf("%w: invalid or expired session", apperr.ErrUnauthenticated)
	ErrSessionEnded       = fmt.Errorf("%w: session has ended", apperr.ErrUnauthenticated)
	ErrEmailTaken         = fmt.Errorf("%w: email already registered", apperr.ErrConflict)
	ErrCredentialNotFound = fmt.Errorf("%w: credential", apperr.ErrNotFound)
)

// CredentialStore is satisfied by *database.Queries.
type CredentialStore interface {
	CreateCredential(ctx context.Context, arg database.CreateCredentialParams) (database.Credential, error)
	GetCredentialByEmail(ctx context.Context, email string) (database.Credential, error)
	DeleteCredential(ctx context.Context, id uuid.UUID) (int64, error)
}

// RevocationLedger is satisfied by *Revocations.
type RevocationLedger interface {
	Revoke(sessionID string, until time.Time) error
	IsRevoked(sessionID string) (bool, error)
}

// SessionIdentity is what a valid session token proves.
type SessionIdentity struct {
	UserID    uuid.UUID `json:"user_id"`
	Email     string    `json:"email"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Session is an issued token and the identity it carries.
type Session struct {
	Token    string
	Identity SessionIdentity
}

type SessionEventKind string

const (
	SignedIn  SessionEventKind = "signed_in"
	Restored  SessionEventKind = "restored"
	SignedOut SessionEventKind = "signed_out"
)

type SessionEvent struct {
	Kind     SessionEventKind
	Identity SessionIdentity
}

// Provider authenticates credentials and manages session tokens.
type Provider struct {
	store    CredentialStore
	ledger   RevocationLedger
	secret   string
	ttl      time.Duration
	hashCost int
	log      logrus.FieldLogger

	mu        sync.RWMutex
	listeners map[int]func(SessionEvent)
	nextID    int
}

func NewProvider(store CredentialStore, ledger RevocationLedger, secret string, ttl time.Duration, log logrus.FieldLogger) *Provider {
	return &Provider{
		store:     store,
		ledger:    ledger,
		secret:    secret,
		ttl:       ttl,
		hashCost:  bcrypt.DefaultCost,
		log:       logger.OrDefault(log),
		listeners: make(map[int]func(SessionEvent)),
	}
}

// SetHashCost overrides the bcrypt cost for new credentials.
func (p *Provider) SetHashCost(cost int) { p.hashCost = cost }

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Authenticate checks email and password and issues a new session.
func (p *Provider) Authenticate(ctx context.Context, email, password string) (Session, error) {
	cred, err := p.store.GetCredentialByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, apperr.Unavailable("get credential", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}

	sessionID := uuid.NewString()
	token, expires, err := auth.GenerateToken(p.secret, cred.ID, cred.Email, sessionID, p.ttl)
	if err != nil {
		return Session{}, fmt.Errorf("generate token: %w", err)
	}

	s := Session{
		Token: token,
		Identity: SessionIdentity{
			UserID:    cred.ID,
			Email:     cred.Email,
			SessionID: sessionID,
			ExpiresAt: expires,
		},
	}
	p.emit(SessionEvent{Kind: SignedIn, Identity: s.Identity})
	return s, nil
}

// Restore resolves a token issued earlier into its identity.
func (p *Provider) Restore(ctx context.Context, token string) (SessionIdentity, error) {
	id, err := p.verify(token)
	if err != nil {
		return SessionIdentity{}, err
	}
	p.emit(SessionEvent{Kind: Restored, Identity: id})
	return id, nil
}

func (p *Provider) verify(token string) (SessionIdentity, error) {
	claims, err := auth.ValidateToken(p.secret, token)
	if err != nil {
		return SessionIdentity{}, ErrInvalidSession
	}

	revoked, err := p.ledger.IsRevoked(claims.SessionID())
	if err != nil {
		return SessionIdentity{}, apperr.Unavailable("check revocation", err)
	}
	if revoked {
		return SessionIdentity{}, ErrSessionEnded
	}

	id := SessionIdentity{
		UserID:    claims.UserID,
		Email:     claims.Email,
		SessionID: claims.SessionID(),
	}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, nil
}

// EndSession revokes the token's session. Ending an already ended session
// is a no-op.
func (p *Provider) EndSession(ctx context.Context, token string) error {
	id, err := p.verify(token)
	if errors.Is(err, ErrSessionEnded) {
		return nil
	}
	if err != nil {
		return err
	}

	until := id.ExpiresAt
	if until.IsZero() {
		until = time.Now().Add(p.ttl)
	}
	if err := p.ledger.Revoke(id.SessionID, until); err != nil {
		return apperr.Unavailable("revoke session", err)
	}

	p.log.WithFields(logrus.Fields{"user_id": id.UserID, "session_id": id.SessionID}).Info("session ended")
	p.emit(SessionEvent{Kind: SignedOut, Identity: id})
	return nil
}

// OnSessionChange registers fn for every session event. The returned func
// removes the registration.
func (p *Provider) OnSessionChange(fn func(SessionEvent)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.listeners, id)
			p.mu.Unlock()
		})
	}
}

func (p *Provider) emit(ev SessionEvent) {
	p.mu.RLock()
	fns := make([]func(SessionEvent), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// CreateCredential provisions a credential for someone else. It issues no
// session and emits no event, so the caller's own session is untouched.
func (p *Provider) CreateCredential(ctx context.Context, email, password string) (uuid.UUID, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.hashCost)
	if err != nil {
		return uuid.Nil, fmt.Errorf("hash password: %w", err)
	}

	cred, err := p.store.CreateCredential(ctx, database.CreateCredentialParams{
		Email:        normalizeEmail(email),
		PasswordHash: string(hash),
	})
	if err != nil {
		if isUniqueViolation(err) {
			return uuid.Nil, ErrEmailTaken
		}
		return uuid.Nil, apperr.Unavailable("create credential", err)
	}
	return cred.ID, nil
}

func (p *Provider) DeleteCredential(ctx context.Context, id uuid.UUID) error {
	n, err := p.store.DeleteCredential(ctx, id)
	if err != nil {
		return apperr.Unavailable("delete credential", err)
	}
	if n == 0 {
		return ErrCredentialNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
