package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jardin-pos/api/internal/cart"
	"github.com/jardin-pos/api/internal/database"
	"github.com/jardin-pos/api/internal/middleware"
	"github.com/jardin-pos/api/internal/service"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// OrderSubmitter is satisfied by *service.OrderService.
type OrderSubmitter interface {
	Submit(ctx context.Context, req service.SubmitRequest) (database.Order, error)
}

// CartHandler drives the cart of the signed-in POS terminal.
type CartHandler struct {
	carts  *cart.Registry
	orders OrderSubmitter
}

func NewCartHandler(carts *cart.Registry, orders OrderSubmitter) *CartHandler {
	return &CartHandler{carts: carts, orders: orders}
}

// RegisterRoutes registers cart endpoints. Expected to be mounted behind
// authentication and the pos role.
func (h *CartHandler) RegisterRoutes(r chi.Router) {
	r.Get("/cart", h.Get)
	r.Delete("/cart", h.Clear)
	r.Post("/cart/items", h.AddItem)
	r.Delete("/cart/items/{itemID}", h.RemoveItem)
	r.Post("/cart/submit", h.Submit)
}

// --- Request / Response types ---

type addItemRequest struct {
	ItemID int `json:"item_id"`
}

type submitCartRequest struct {
	TableNumber int    `json:"table_number"`
	Observation string `json:"observation"`
	LocalTime   string `json:"local_time"`
}

type cartLineResponse struct {
	ItemID      int      `json:"item_id"`
	Name        string   `json:"name"`
	UnitPrice   string   `json:"unit_price"`
	Quantity    int      `json:"quantity"`
	Subtotal    string   `json:"subtotal"`
	Ingredients []string `json:"ingredients"`
}

type cartResponse struct {
	Lines []cartLineResponse `json:"lines"`
	Total string             `json:"total"`
}

func toCartResponse(lines []cart.Line) cartResponse {
	resp := cartResponse{Lines: make([]cartLineResponse, len(lines))}
	total := decimal.Zero
	for i, l := range lines {
		resp.Lines[i] = cartLineResponse{
			ItemID:      l.ItemID,
			Name:        l.Name,
			UnitPrice:   l.UnitPrice.StringFixed(2),
			Quantity:    l.Quantity,
			Subtotal:    l.Subtotal().StringFixed(2),
			Ingredients: l.Ingredients,
		}
		total = total.Add(l.Subtotal())
	}
	resp.Total = total.StringFixed(2)
	return resp
}

// --- Handlers ---

func (h *CartHandler) Get(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	if p == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(h.carts.Snapshot(p.SessionID)))
}

func (h *CartHandler) Clear(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	if p == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}
	h.carts.Do(p.SessionID, func(c *cart.Cart) { c.Clear() })
	w.WriteHeader(http.StatusNoContent)
}

// AddItem adds one unit of a menu item. The cart ignores unknown items; the
// endpoint reports them as 404 so the terminal can tell.
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	if p == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	var (
		added bool
		lines []cart.Line
	)
	h.carts.Do(p.SessionID, func(c *cart.Cart) {
		added = c.Add(req.ItemID)
		lines = c.Lines()
	})
	if !added {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "menu item not found"})
		return
	}

	writeJSON(w, http.StatusOK, toCartResponse(lines))
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	if p == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	itemID, err := strconv.Atoi(chi.URLParam(r, "itemID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid item ID"})
		return
	}

	var lines []cart.Line
	h.carts.Do(p.SessionID, func(c *cart.Cart) {
		c.Remove(itemID)
		lines = c.Lines()
	})
	writeJSON(w, http.StatusOK, toCartResponse(lines))
}

// Submit turns the cart into a pending order. The cart is kept when the
// submission fails so the terminal can retry; on success only the submitted
// lines leave it.
func (h *CartHandler) Submit(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	if p == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req submitCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	localTime, err := parseLocalTime(req.LocalTime)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "local_time must be RFC 3339"})
		return
	}

	lines := h.carts.Snapshot(p.SessionID)
	order, err := h.orders.Submit(r.Context(), service.SubmitRequest{
		TableNumber: req.TableNumber,
		Observation: req.Observation,
		Lines:       lines,
		Principal:   p,
		LocalTime:   localTime,
	})
	if err != nil {
		logrus.WithError(err).WithField("staff_id", p.ID).Warn("submit cart")
		writeError(w, err)
		return
	}

	h.carts.Do(p.SessionID, func(c *cart.Cart) { c.Deduct(lines) })
	writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

func parseLocalTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}
