package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jardin-pos/api/internal/apperr"
	"github.com/jardin-pos/api/internal/database"
	"github.com/jardin-pos/api/internal/datewindow"
	"github.com/jardin-pos/api/internal/enum"
	"github.com/jardin-pos/api/internal/identity"
	"github.com/jardin-pos/api/internal/logger"
	"github.com/jardin-pos/api/internal/stream"
	"github.com/sirupsen/logrus"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512
)

// frameFilter is the only frame a display sends.
const frameFilter = "filter"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // the session token is checked instead
	},
}

// Gate is satisfied by *identity.Gate.
type Gate interface {
	Resolve(ctx context.Context, token string) (*identity.Principal, error)
	Authorize(ctx context.Context, token string, p *identity.Principal, roles ...string) error
}

// --- Frames ---

type filterFrame struct {
	Type   string `json:"type"`
	Date   string `json:"date"`
	Status string `json:"status"`
}

type orderView struct {
	ID             uuid.UUID            `json:"id"`
	TableNumber    int32                `json:"table_number"`
	Items          []database.OrderItem `json:"items"`
	Total          string               `json:"total"`
	Status         string               `json:"status"`
	Observation    string               `json:"observation"`
	CreatedAt      *time.Time           `json:"created_at"`
	LocalCreatedAt string               `json:"local_created_at,omitempty"`
	CreatedByEmail string               `json:"created_by_email"`
	CreatedByName  string               `json:"created_by_name"`
}

type snapshotPayload struct {
	View    string          `json:"view"`
	Date    string          `json:"date"`
	Status  string          `json:"status,omitempty"`
	Orders  []orderView     `json:"orders"`
	Summary *stream.Summary `json:"summary,omitempty"`
	TakenAt time.Time       `json:"taken_at"`
}

func toOrderView(o database.Order) orderView {
	v := orderView{
		ID:             o.ID,
		TableNumber:    o.TableNumber,
		Items:          o.Items,
		Total:          o.TotalDecimal().StringFixed(2),
		Status:         o.Status,
		Observation:    o.Observation,
		LocalCreatedAt: o.LocalCreatedAt,
		CreatedByEmail: o.CreatedByEmail,
		CreatedByName:  o.CreatedByName,
	}
	if v.Items == nil {
		v.Items = []database.OrderItem{}
	}
	if t := o.CreatedTime(); !t.IsZero() {
		v.CreatedAt = &t
	}
	return v
}

func encodeEvent(typ string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Event{Type: typ, Payload: raw})
}

// --- Client ---

// Client is one connected display. It owns a stream.Display and forwards
// its snapshots, narrowed to the display's filter, as frames.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	sessionID string
	view      string
	loc       *time.Location
	now       func() time.Time
	log       logrus.FieldLogger

	display *stream.Display
	ctx     context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func newClient(hub *Hub, conn *websocket.Conn, sessionID, view string, loc *time.Location, log logrus.FieldLogger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		hub:       hub,
		conn:      conn,
		sessionID: sessionID,
		view:      view,
		loc:       loc,
		now:       time.Now,
		log:       logger.OrDefault(log),
		ctx:       ctx,
		cancel:    cancel,
		send:      make(chan []byte, 1),
	}
}

// filter builds the store query and the local narrowing for a date and
// status. The kitchen view lets the store apply the day window; the admin
// view reads everything and narrows it here.
func (c *Client) filter(date, status string) (stream.Query, stream.Narrow, string, error) {
	day, err := datewindow.ParseDay(date, c.now(), c.loc)
	if err != nil {
		return stream.Query{}, stream.Narrow{}, "", err
	}
	if status != "" && !validStatus(status) {
		return stream.Query{}, stream.Narrow{}, "", apperr.Validation("unknown order status " + status)
	}
	if c.view == enum.ViewAdmin {
		return stream.Query{}, stream.Narrow{Window: &day, Status: status}, day.Label(), nil
	}
	return stream.Query{Window: &day}, stream.Narrow{Status: status}, day.Label(), nil
}

// watch applies a filter and re-subscribes the display. An omitted date
// means today, which is how a kitchen screen refreshes.
func (c *Client) watch(date, status string) error {
	q, narrow, label, err := c.filter(date, status)
	if err != nil {
		return err
	}
	c.subscribe(q, narrow, label)
	return nil
}

// subscribe replaces the display's subscription. The narrowing and label
// travel with it, so a frame always describes the query it was read for.
func (c *Client) subscribe(q stream.Query, narrow stream.Narrow, label string) {
	c.display.Watch(c.ctx, q, func(snap stream.Snapshot) {
		c.deliver(snap, narrow, label)
	})
}

func (c *Client) deliver(snap stream.Snapshot, narrow stream.Narrow, date string) {
	orders := narrow.Apply(snap.Orders, c.now())
	payload := snapshotPayload{
		View:    c.view,
		Date:    date,
		Status:  narrow.Status,
		Orders:  make([]orderView, len(orders)),
		TakenAt: snap.TakenAt,
	}
	for i, o := range orders {
		payload.Orders[i] = toOrderView(o)
	}
	if c.view == enum.ViewAdmin {
		s := stream.Summarize(orders)
		payload.Summary = &s
	}

	msg, err := encodeEvent(enum.EventOrdersSnapshot, payload)
	if err != nil {
		c.log.WithError(err).Error("encode snapshot frame")
		return
	}
	c.push(msg)
}

func (c *Client) failed(err error) {
	c.log.WithError(err).Warn("display subscription ended")
	c.pushError(err)
}

func (c *Client) pushError(err error) {
	msg := err.Error()
	if apperr.HTTPStatus(err) >= http.StatusInternalServerError {
		msg = "orders are unavailable, send a filter frame to retry"
	}
	frame, encErr := encodeEvent(enum.EventStreamError, map[string]string{"error": msg})
	if encErr != nil {
		return
	}
	c.push(frame)
}

// push queues msg, replacing a frame the writer has not picked up yet.
func (c *Client) push(msg []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
		select {
		case <-c.send:
		default:
		}
		c.send <- msg
	}
}

// close is called by the hub; WritePump then sends a close frame.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// ReadPump reads filter frames until the connection drops, then tears the
// display down.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.remove(c)
		c.cancel()
		c.display.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.WithError(err).Warn("websocket read")
			}
			return
		}

		var frame filterFrame
		if err := json.Unmarshal(data, &frame); err != nil || frame.Type != frameFilter {
			c.pushError(apperr.Validation("expected a filter frame"))
			continue
		}
		if err := c.watch(frame.Date, frame.Status); err != nil {
			c.pushError(err)
		}
	}
}

// WritePump writes queued frames and pings to the connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "session ended"))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// --- Endpoint ---

// Server accepts display connections on /ws/orders.
type Server struct {
	hub      *Hub
	gate     Gate
	observer *stream.Observer
	loc      *time.Location
	log      logrus.FieldLogger
}

func NewServer(hub *Hub, gate Gate, observer *stream.Observer, loc *time.Location, log logrus.FieldLogger) *Server {
	if loc == nil {
		loc = time.Local
	}
	return &Server{hub: hub, gate: gate, observer: observer, loc: loc, log: logger.OrDefault(log)}
}

// ServeWS handles WebSocket requests from displays.
// Endpoint: WS /ws/orders?token=JWT&view=kitchen|admin&date=YYYY-MM-DD&status=
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	// 1. Resolve the session behind the token
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	p, err := s.gate.Resolve(r.Context(), token)
	if err != nil {
		status := apperr.HTTPStatus(err)
		msg := err.Error()
		if status >= http.StatusInternalServerError {
			s.log.WithError(err).Error("resolve display session")
			msg = http.StatusText(status)
		}
		http.Error(w, msg, status)
		return
	}

	// 2. The kitchen view is for cocina, the admin view for admin
	view := r.URL.Query().Get("view")
	if view == "" {
		view = defaultView(p.Role)
	}
	var required string
	switch view {
	case enum.ViewKitchen:
		required = enum.RoleKitchen
	case enum.ViewAdmin:
		required = enum.RoleAdmin
	default:
		http.Error(w, "view must be kitchen or admin", http.StatusBadRequest)
		return
	}
	if err := s.gate.Authorize(r.Context(), token, p, required); err != nil {
		s.log.WithFields(logrus.Fields{"staff_id": p.ID, "role": p.Role, "view": view}).Warn("display refused")
		http.Error(w, err.Error(), apperr.HTTPStatus(err))
		return
	}

	log := s.log.WithFields(logrus.Fields{"staff_id": p.ID, "view": view})
	client := newClient(s.hub, nil, p.SessionID, view, s.loc, log)
	q, narrow, label, err := client.filter(r.URL.Query().Get("date"), r.URL.Query().Get("status"))
	if err != nil {
		client.cancel()
		http.Error(w, err.Error(), apperr.HTTPStatus(err))
		return
	}
	client.display = stream.NewDisplay(s.observer, client.failed)

	// 3. Upgrade and attach the display
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		client.cancel()
		log.WithError(err).Warn("websocket upgrade")
		return
	}
	client.conn = conn

	if !s.hub.add(client) {
		client.cancel()
		conn.Close()
		return
	}
	log.Info("display connected")

	go client.WritePump()
	client.subscribe(q, narrow, label)
	go client.ReadPump()
}

// --- Helpers ---

func validStatus(s string) bool {
	for _, st := range enum.OrderStatusSequence {
		if st == s {
			return true
		}
	}
	return false
}

func defaultView(role string) string {
	if role == enum.RoleAdmin {
		return enum.ViewAdmin
	}
	return enum.ViewKitchen
}
