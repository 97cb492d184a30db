package identity_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jardin-pos/api/internal/apperr"
	"github.com/jardin-pos/api/internal/database"
	"github.com/jardin-pos/api/internal/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// memCredentials is an in-memory CredentialStore.
type memCredentials struct {
	mu      sync.Mutex
	byEmail map[string]database.Credential
	failErr error
}

func newMemCredentials() *memCredentials {
	return &memCredentials{byEmail: make(map[string]database.Credential)}
}

func (m *memCredentials) CreateCredential(ctx context.Context, arg database.CreateCredentialParams) (database.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return database.Credential{}, m.failErr
	}
	if _, ok := m.byEmail[arg.Email]; ok {
		return database.Credential{}, &pgconn.PgError{Code: "23505", ConstraintName: "credentials_email_key"}
	}
	c := database.Credential{ID: uuid.New(), Email: arg.Email, PasswordHash: arg.PasswordHash}
	m.byEmail[arg.Email] = c
	return c, nil
}

func (m *memCredentials) GetCredentialByEmail(ctx context.Context, email string) (database.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byEmail[email]
	if !ok {
		return database.Credential{}, pgx.ErrNoRows
	}
	return c, nil
}

func (m *memCredentials) DeleteCredential(ctx context.Context, id uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, c := range m.byEmail {
		if c.ID == id {
			delete(m.byEmail, k)
			return 1, nil
		}
	}
	return 0, nil
}

func openLedger(t *testing.T, dir string) *identity.Revocations {
	t.Helper()
	r, err := identity.OpenRevocations(dir)
	require.NoError(t, err)
	return r
}

func newTestProvider(t *testing.T) (*identity.Provider, *memCredentials) {
	t.Helper()
	ledger := openLedger(t, t.TempDir())
	t.Cleanup(func() { _ = ledger.Close() })

	store := newMemCredentials()
	p := identity.NewProvider(store, ledger, "test-secret", time.Hour, nil)
	p.SetHashCost(bcrypt.MinCost)
	return p, store
}

type eventLog struct {
	mu     sync.Mutex
	events []identity.SessionEvent
}

func (l *eventLog) record(ev identity.SessionEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) kinds() []identity.SessionEventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := []identity.SessionEventKind{}
	for _, ev := range l.events {
		out = append(out, ev.Kind)
	}
	return out
}

func TestAuthenticateRestoreEnd(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProvider(t)
	log := &eventLog{}
	p.OnSessionChange(log.record)

	id, err := p.CreateCredential(ctx, "Cocina@Jardin.mx ", "secreto")
	require.NoError(t, err)

	s, err := p.Authenticate(ctx, "cocina@jardin.mx", "secreto")
	require.NoError(t, err)
	assert.Equal(t, id, s.Identity.UserID)
	assert.Equal(t, "cocina@jardin.mx", s.Identity.Email)
	assert.NotEmpty(t, s.Identity.SessionID)

	restored, err := p.Restore(ctx, s.Token)
	require.NoError(t, err)
	assert.Equal(t, s.Identity.SessionID, restored.SessionID)

	require.NoError(t, p.EndSession(ctx, s.Token))
	_, err = p.Restore(ctx, s.Token)
	assert.ErrorIs(t, err, identity.ErrSessionEnded)
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)

	// Ending twice is harmless and emits nothing new.
	require.NoError(t, p.EndSession(ctx, s.Token))

	assert.Equal(t, []identity.SessionEventKind{identity.SignedIn, identity.Restored, identity.SignedOut}, log.kinds())
}

func TestAuthenticateRejectsBadCredentials(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProvider(t)
	_, err := p.CreateCredential(ctx, "pos@jardin.mx", "correcta")
	require.NoError(t, err)

	_, err = p.Authenticate(ctx, "pos@jardin.mx", "incorrecta")
	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)

	_, err = p.Authenticate(ctx, "nadie@jardin.mx", "correcta")
	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)
}

func TestRestoreRejectsGarbage(t *testing.T) {
	p, _ := newTestProvider(t)
	_, err := p.Restore(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, identity.ErrInvalidSession)
}

func TestCreateCredentialIsSessionIsolated(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProvider(t)
	_, err := p.CreateCredential(ctx, "admin@jardin.mx", "admin")
	require.NoError(t, err)
	admin, err := p.Authenticate(ctx, "admin@jardin.mx", "admin")
	require.NoError(t, err)

	log := &eventLog{}
	unsubscribe := p.OnSessionChange(log.record)
	defer unsubscribe()

	_, err = p.CreateCredential(ctx, "nuevo@jardin.mx", "clave")
	require.NoError(t, err)

	assert.Empty(t, log.kinds(), "provisioning must not emit session events")
	restored, err := p.Restore(ctx, admin.Token)
	require.NoError(t, err)
	assert.Equal(t, admin.Identity.UserID, restored.UserID)
}

func TestCreateCredentialDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProvider(t)
	_, err := p.CreateCredential(ctx, "pos@jardin.mx", "a")
	require.NoError(t, err)

	_, err = p.CreateCredential(ctx, "POS@jardin.mx", "b")
	assert.ErrorIs(t, err, identity.ErrEmailTaken)
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestCreateCredentialStoreDown(t *testing.T) {
	p, store := newTestProvider(t)
	store.failErr = errors.New("connection refused")

	_, err := p.CreateCredential(context.Background(), "pos@jardin.mx", "a")
	assert.ErrorIs(t, err, apperr.ErrStoreUnavailable)
}

func TestDeleteCredential(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProvider(t)
	id, err := p.CreateCredential(ctx, "pos@jardin.mx", "a")
	require.NoError(t, err)

	require.NoError(t, p.DeleteCredential(ctx, id))
	assert.ErrorIs(t, p.DeleteCredential(ctx, id), identity.ErrCredentialNotFound)

	_, err = p.Authenticate(ctx, "pos@jardin.mx", "a")
	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)
}

func TestOnSessionChangeUnsubscribe(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProvider(t)
	_, err := p.CreateCredential(ctx, "pos@jardin.mx", "a")
	require.NoError(t, err)

	log := &eventLog{}
	unsubscribe := p.OnSessionChange(log.record)
	unsubscribe()
	unsubscribe()

	_, err = p.Authenticate(ctx, "pos@jardin.mx", "a")
	require.NoError(t, err)
	assert.Empty(t, log.kinds())
}

func TestRevocationsSurviveReopen(t *testing.T) {
	dir := t.TempDir()
	r := openLedger(t, dir)
	require.NoError(t, r.Revoke("s-1", time.Now().Add(time.Hour)))
	require.NoError(t, r.Close())

	r = openLedger(t, dir)
	defer r.Close()
	revoked, err := r.IsRevoked("s-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = r.IsRevoked("s-2")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRevocationsPrune(t *testing.T) {
	r := openLedger(t, t.TempDir())
	defer r.Close()
	now := time.Now()
	require.NoError(t, r.Revoke("old", now.Add(-time.Hour)))
	require.NoError(t, r.Revoke("live", now.Add(time.Hour)))

	n, err := r.Prune(now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	revoked, _ := r.IsRevoked("old")
	assert.False(t, revoked)
	revoked, _ = r.IsRevoked("live")
	assert.True(t, revoked)
}
