package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jardin-pos/api/internal/database"
	"github.com/jardin-pos/api/internal/enum"
	"github.com/jardin-pos/api/internal/identity"
	"github.com/jardin-pos/api/internal/metrics"
	"github.com/jardin-pos/api/internal/stream"
)

// --- Fakes ---

type fakeGate struct {
	principals map[string]*identity.Principal

	mu    sync.Mutex
	ended []string
}

func (g *fakeGate) Resolve(_ context.Context, token string) (*identity.Principal, error) {
	p, ok := g.principals[token]
	if !ok {
		return nil, identity.ErrInvalidSession
	}
	return p, nil
}

func (g *fakeGate) Authorize(_ context.Context, token string, p *identity.Principal, roles ...string) error {
	for _, role := range roles {
		if identity.Allow(p, role) {
			return nil
		}
	}
	g.mu.Lock()
	g.ended = append(g.ended, token)
	g.mu.Unlock()
	return identity.ErrForbidden
}

type orderStore struct {
	mu     sync.Mutex
	orders []database.Order
	err    error
}

func (s *orderStore) ListOrders(context.Context) ([]database.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return append([]database.Order(nil), s.orders...), nil
}

func (s *orderStore) ListOrdersBetween(_ context.Context, arg database.ListOrdersBetweenParams) ([]database.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	var out []database.Order
	for _, o := range s.orders {
		if t := o.CreatedTime(); !t.Before(arg.Start.Time) && !t.After(arg.End.Time) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *orderStore) add(o database.Order) {
	s.mu.Lock()
	s.orders = append(s.orders, o)
	s.mu.Unlock()
}

func order(status, total string, created time.Time) database.Order {
	var n pgtype.Numeric
	_ = n.Scan(total)
	return database.Order{
		ID:          uuid.New(),
		TableNumber: 4,
		Total:       n,
		Status:      status,
		CreatedAt:   pgtype.Timestamptz{Time: created, Valid: true},
	}
}

// --- Harness ---

type harness struct {
	url     string
	hub     *Hub
	signals *stream.Hub
	store   *orderStore
	gate    *fakeGate
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	m := metrics.NewRegistry()
	signals := stream.NewHub()
	go signals.Run(ctx)
	hub := NewHub(m)
	go hub.Run(ctx)

	store := &orderStore{}
	gate := &fakeGate{principals: map[string]*identity.Principal{
		"kitchen-token": {ID: uuid.New(), Email: "cocina@jardin.test", Role: enum.RoleKitchen, SessionID: "kitchen-session"},
		"admin-token":   {ID: uuid.New(), Email: "admin@jardin.test", Role: enum.RoleAdmin, SessionID: "admin-session"},
		"pos-token":     {ID: uuid.New(), Email: "caja@jardin.test", Role: enum.RolePOS, SessionID: "pos-session"},
	}}
	obs := stream.NewObserver(store, signals, m, nil)
	srv := NewServer(hub, gate, obs, time.UTC, nil)

	ts := httptest.NewServer(http.HandlerFunc(srv.ServeWS))
	t.Cleanup(ts.Close)

	return &harness{
		url:     "ws" + strings.TrimPrefix(ts.URL, "http"),
		hub:     hub,
		signals: signals,
		store:   store,
		gate:    gate,
	}
}

func (h *harness) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(h.url+"/?"+query, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial %q: %v (status %d)", query, err, status)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	return ev
}

// readSnapshot reads frames until one satisfies ok. Frames built before the
// last change may still arrive first.
func readSnapshot(t *testing.T, conn *websocket.Conn, ok func(snapshotPayload) bool) snapshotPayload {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		ev := readEvent(t, conn)
		if ev.Type != enum.EventOrdersSnapshot {
			continue
		}
		var p snapshotPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			t.Fatalf("decode snapshot: %v", err)
		}
		if ok(p) {
			return p
		}
	}
	t.Fatal("no matching snapshot")
	return snapshotPayload{}
}

// --- Tests ---

func TestServeWS_RejectsBadRequests(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"missing token", "view=kitchen", http.StatusUnauthorized},
		{"unknown token", "token=nope", http.StatusUnauthorized},
		{"pos cannot watch kitchen", "token=pos-token&view=kitchen", http.StatusForbidden},
		{"kitchen cannot watch admin", "token=kitchen-token&view=admin", http.StatusForbidden},
		{"bad view", "token=kitchen-token&view=bar", http.StatusBadRequest},
		{"bad date", "token=kitchen-token&date=ayer", http.StatusBadRequest},
		{"bad status", "token=kitchen-token&status=burnt", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(h.url+"/?"+tt.query, nil)
			if err == nil {
				t.Fatal("expected the upgrade to be refused")
			}
			if resp == nil || resp.StatusCode != tt.want {
				t.Fatalf("expected %d, got %v", tt.want, resp)
			}
		})
	}

	h.gate.mu.Lock()
	defer h.gate.mu.Unlock()
	if len(h.gate.ended) != 2 {
		t.Errorf("role mismatches should end the session, ended %v", h.gate.ended)
	}
}

func TestServeWS_KitchenDisplayFollowsChanges(t *testing.T) {
	h := newHarness(t)
	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	h.store.add(order(enum.OrderStatusPending, "12.99", today.Add(2*time.Second)))
	h.store.add(order(enum.OrderStatusCompleted, "2.50", today.Add(time.Second)))
	h.store.add(order(enum.OrderStatusPending, "8.99", today.Add(-48*time.Hour)))

	conn := h.dial(t, "token=kitchen-token&status=pending")

	first := readSnapshot(t, conn, func(p snapshotPayload) bool { return true })
	if first.View != enum.ViewKitchen || first.Date != today.Format("2006-01-02") {
		t.Errorf("unexpected header: %+v", first)
	}
	if len(first.Orders) != 1 || first.Orders[0].Total != "12.99" {
		t.Fatalf("expected today's pending order only, got %+v", first.Orders)
	}
	if first.Summary != nil {
		t.Error("kitchen frames carry no summary")
	}

	h.store.add(order(enum.OrderStatusPending, "3.50", today.Add(3*time.Second)))
	h.signals.Notify()
	next := readSnapshot(t, conn, func(p snapshotPayload) bool { return len(p.Orders) == 2 })
	if next.Orders[0].Total != "3.50" {
		t.Errorf("expected newest first, got %s", next.Orders[0].Total)
	}

	if err := conn.WriteJSON(filterFrame{Type: frameFilter, Status: enum.OrderStatusCompleted}); err != nil {
		t.Fatalf("send filter: %v", err)
	}
	filtered := readSnapshot(t, conn, func(p snapshotPayload) bool { return p.Status == enum.OrderStatusCompleted })
	if len(filtered.Orders) != 1 || filtered.Orders[0].Total != "2.50" {
		t.Errorf("expected the completed order, got %+v", filtered.Orders)
	}
}

func TestServeWS_AdminDisplaySummarisesDay(t *testing.T) {
	h := newHarness(t)
	day := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	h.store.add(order(enum.OrderStatusCompleted, "28.48", day))
	h.store.add(order(enum.OrderStatusPending, "10.99", day.Add(time.Hour)))
	h.store.add(order(enum.OrderStatusPending, "35.00", day.Add(24*time.Hour)))

	conn := h.dial(t, "token=admin-token&date=2024-03-15")

	snap := readSnapshot(t, conn, func(p snapshotPayload) bool { return true })
	if snap.View != enum.ViewAdmin || snap.Date != "2024-03-15" {
		t.Errorf("unexpected header: %+v", snap)
	}
	if len(snap.Orders) != 2 {
		t.Fatalf("expected 2 orders on the day, got %d", len(snap.Orders))
	}
	if snap.Summary == nil || snap.Summary.Count != 2 || snap.Summary.Total.StringFixed(2) != "39.47" {
		t.Errorf("unexpected summary: %+v", snap.Summary)
	}
}

func TestServeWS_BadFilterFrame(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, "token=kitchen-token")
	readSnapshot(t, conn, func(p snapshotPayload) bool { return true })

	if err := conn.WriteJSON(filterFrame{Type: frameFilter, Date: "15/03/2024"}); err != nil {
		t.Fatalf("send filter: %v", err)
	}
	ev := readEvent(t, conn)
	if ev.Type != enum.EventStreamError {
		t.Fatalf("expected an error frame, got %s", ev.Type)
	}
}

func TestServeWS_StoreFailureReported(t *testing.T) {
	h := newHarness(t)
	h.store.err = errors.New("connection refused")

	conn := h.dial(t, "token=kitchen-token")
	ev := readEvent(t, conn)
	if ev.Type != enum.EventStreamError {
		t.Fatalf("expected an error frame, got %s", ev.Type)
	}
	if strings.Contains(string(ev.Payload), "connection refused") {
		t.Error("store detail must not reach the display")
	}
}

func TestServeWS_SignOutClosesDisplay(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, "token=kitchen-token")
	readSnapshot(t, conn, func(p snapshotPayload) bool { return true })

	h.hub.OnSessionEvent(identity.SessionEvent{
		Kind:     identity.SignedOut,
		Identity: identity.SessionIdentity{SessionID: "kitchen-session"},
	})

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
				t.Errorf("expected a policy-violation close, got %v", err)
			}
			break
		}
	}
	waitFor(t, "display unregistered", func() bool { return h.hub.Connected() == 0 })
}
