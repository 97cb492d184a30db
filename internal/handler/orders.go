package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jardin-pos/api/internal/apperr"
	"github.com/jardin-pos/api/internal/cart"
	"github.com/jardin-pos/api/internal/database"
	"github.com/jardin-pos/api/internal/datewindow"
	"github.com/jardin-pos/api/internal/enum"
	"github.com/jardin-pos/api/internal/middleware"
	"github.com/jardin-pos/api/internal/service"
	"github.com/jardin-pos/api/internal/stream"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// OrderServicer is satisfied by *service.OrderService.
type OrderServicer interface {
	Submit(ctx context.Context, req service.SubmitRequest) (database.Order, error)
	Advance(ctx context.Context, id uuid.UUID) (string, error)
}

// OrderStore defines the read methods needed by order handlers.
// Satisfied by *database.Queries.
type OrderStore interface {
	stream.Store
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
}

// OrderHandler handles order endpoints. Roles differ per route, so the
// router mounts each handler method itself.
type OrderHandler struct {
	svc     OrderServicer
	store   OrderStore
	catalog cart.Catalog
	loc     *time.Location
	now     func() time.Time
}

func NewOrderHandler(svc OrderServicer, store OrderStore, catalog cart.Catalog, loc *time.Location) *OrderHandler {
	if loc == nil {
		loc = time.Local
	}
	return &OrderHandler{svc: svc, store: store, catalog: catalog, loc: loc, now: time.Now}
}

// --- Request / Response types ---

type createOrderRequest struct {
	TableNumber int                      `json:"table_number"`
	Observation string                   `json:"observation"`
	LocalTime   string                   `json:"local_time"`
	Items       []createOrderItemRequest `json:"items"`
}

type createOrderItemRequest struct {
	ItemID   int `json:"item_id"`
	Quantity int `json:"quantity"`
}

type orderItemResponse struct {
	Name        string   `json:"name"`
	Price       string   `json:"price"`
	Quantity    int      `json:"quantity"`
	Subtotal    string   `json:"subtotal"`
	Ingredients []string `json:"ingredients"`
}

type orderResponse struct {
	ID             uuid.UUID           `json:"id"`
	TableNumber    int32               `json:"table_number"`
	Items          []orderItemResponse `json:"items"`
	Total          string              `json:"total"`
	Status         string              `json:"status"`
	Observation    string              `json:"observation"`
	CreatedAt      *time.Time          `json:"created_at"`
	LocalCreatedAt string              `json:"local_created_at,omitempty"`
	CreatedBy      uuid.UUID           `json:"created_by"`
	CreatedByEmail string              `json:"created_by_email"`
	CreatedByName  string              `json:"created_by_name"`
}

type summaryResponse struct {
	Count    int            `json:"count"`
	Total    string         `json:"total"`
	ByStatus map[string]int `json:"by_status"`
}

type orderListResponse struct {
	View    string           `json:"view"`
	Date    string           `json:"date"`
	Orders  []orderResponse  `json:"orders"`
	Summary *summaryResponse `json:"summary,omitempty"`
}

type advanceResponse struct {
	ID     uuid.UUID `json:"id"`
	Status string    `json:"status"`
}

func toOrderResponse(o database.Order) orderResponse {
	resp := orderResponse{
		ID:             o.ID,
		TableNumber:    o.TableNumber,
		Items:          make([]orderItemResponse, len(o.Items)),
		Total:          o.TotalDecimal().StringFixed(2),
		Status:         o.Status,
		Observation:    o.Observation,
		LocalCreatedAt: o.LocalCreatedAt,
		CreatedBy:      o.CreatedBy,
		CreatedByEmail: o.CreatedByEmail,
		CreatedByName:  o.CreatedByName,
	}
	if t := o.CreatedTime(); !t.IsZero() {
		resp.CreatedAt = &t
	}
	for i, it := range o.Items {
		ingredients := it.Ingredients
		if ingredients == nil {
			ingredients = []string{}
		}
		resp.Items[i] = orderItemResponse{
			Name:        it.Name,
			Price:       it.Price.StringFixed(2),
			Quantity:    it.Quantity,
			Subtotal:    it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))).StringFixed(2),
			Ingredients: ingredients,
		}
	}
	return resp
}

func toOrderResponses(orders []database.Order) []orderResponse {
	resp := make([]orderResponse, len(orders))
	for i, o := range orders {
		resp[i] = toOrderResponse(o)
	}
	return resp
}

func toSummaryResponse(s stream.Summary) *summaryResponse {
	return &summaryResponse{Count: s.Count, Total: s.Total.StringFixed(2), ByStatus: s.ByStatus}
}

// --- Handlers ---

// Create submits an order from explicit menu lines.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	if p == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	localTime, err := parseLocalTime(req.LocalTime)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "local_time must be RFC 3339"})
		return
	}

	lines := make([]cart.Line, 0, len(req.Items))
	for i, it := range req.Items {
		item, ok := h.catalog.Lookup(it.ItemID)
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("items[%d]: unknown menu item %d", i, it.ItemID)})
			return
		}
		lines = append(lines, cart.Line{
			ItemID:      item.ID,
			Name:        item.Name,
			UnitPrice:   item.Price,
			Quantity:    it.Quantity,
			Ingredients: item.Ingredients,
		})
	}

	order, err := h.svc.Submit(r.Context(), service.SubmitRequest{
		TableNumber: req.TableNumber,
		Observation: req.Observation,
		Lines:       lines,
		Principal:   p,
		LocalTime:   localTime,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

// List returns the orders of one day. The kitchen view asks the store for
// the day window; the admin view reads every order, narrows it here and adds
// the day summary.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	if p == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	now := h.now()
	day, err := datewindow.ParseDay(r.URL.Query().Get("date"), now, h.loc)
	if err != nil {
		writeError(w, err)
		return
	}
	status := r.URL.Query().Get("status")
	if status != "" && !validStatus(status) {
		writeError(w, service.ErrInvalidStatus)
		return
	}

	view := r.URL.Query().Get("view")
	if view == "" {
		view = defaultView(p.Role)
	}

	resp := orderListResponse{View: view, Date: day.Label()}
	switch view {
	case enum.ViewKitchen:
		orders, err := stream.Materialize(r.Context(), h.store, stream.Query{Window: &day})
		if err != nil {
			writeError(w, apperr.Unavailable("list orders", err))
			return
		}
		resp.Orders = toOrderResponses(stream.Narrow{Status: status}.Apply(orders, now))
	case enum.ViewAdmin:
		orders, err := stream.Materialize(r.Context(), h.store, stream.Query{})
		if err != nil {
			writeError(w, apperr.Unavailable("list orders", err))
			return
		}
		narrowed := stream.Narrow{Window: &day, Status: status}.Apply(orders, now)
		resp.Orders = toOrderResponses(narrowed)
		resp.Summary = toSummaryResponse(stream.Summarize(narrowed))
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "view must be kitchen or admin"})
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	order, err := h.store.GetOrder(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		writeError(w, apperr.Unavailable("get order", err))
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// Advance moves the order one step along its workflow and returns the
// status it ended at.
func (h *OrderHandler) Advance(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	status, err := h.svc.Advance(r.Context(), id)
	if err != nil {
		if apperr.HTTPStatus(err) < http.StatusInternalServerError {
			logrus.WithError(err).WithField("order_id", id).Info("advance rejected")
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, advanceResponse{ID: id, Status: status})
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
