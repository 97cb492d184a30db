package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jardin-pos/api/internal/apperr"
	"github.com/jardin-pos/api/internal/cart"
	"github.com/jardin-pos/api/internal/database"
	"github.com/jardin-pos/api/internal/enum"
	"github.com/jardin-pos/api/internal/events"
	"github.com/jardin-pos/api/internal/identity"
	"github.com/jardin-pos/api/internal/logger"
	"github.com/jardin-pos/api/internal/metrics"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// DefaultCreatorName is stored when the submitting staff member has no
// display name.
const DefaultCreatorName = "Punto de Venta"

// Errors returned by the order service.
var (
	ErrEmptyOrder      = fmt.Errorf("%w: order has no items", apperr.ErrValidation)
	ErrInvalidTable    = fmt.Errorf("%w: table number must be > 0", apperr.ErrValidation)
	ErrInvalidQuantity = fmt.Errorf("%w: quantity must be > 0", apperr.ErrValidation)
	ErrInvalidStatus   = fmt.Errorf("%w: unknown order status", apperr.ErrValidation)
	ErrOrderNotFound   = fmt.Errorf("%w: order", apperr.ErrNotFound)
)

// OrderStore defines the DB methods the order service needs.
// Satisfied by *database.Queries.
type OrderStore interface {
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	GetOrderStatus(ctx context.Context, id uuid.UUID) (string, error)
	AdvanceOrderStatus(ctx context.Context, arg database.AdvanceOrderStatusParams) (int64, error)
}

// SubmitRequest is one order as built on a POS terminal.
type SubmitRequest struct {
	TableNumber int
	Observation string
	Lines       []cart.Line
	Principal   *identity.Principal
	// LocalTime is the terminal's clock. It is kept for display only;
	// created_at is assigned by the database.
	LocalTime time.Time
}

// OrderService submits orders and moves them along the kitchen workflow.
type OrderService struct {
	store     OrderStore
	publisher events.Publisher
	metrics   *metrics.Registry
	log       logrus.FieldLogger
}

func NewOrderService(store OrderStore, publisher events.Publisher, m *metrics.Registry, log logrus.FieldLogger) *OrderService {
	if publisher == nil {
		publisher = events.Noop{}
	}
	if m == nil {
		m = metrics.NewRegistry()
	}
	return &OrderService{store: store, publisher: publisher, metrics: m, log: logger.OrDefault(log)}
}

// Submit persists the lines as a new pending order. Exactly one row is written
// per successful call; there is no retry, so a failure may be retried by the
// caller and a retry after an ambiguous failure can duplicate the order.
func (s *OrderService) Submit(ctx context.Context, req SubmitRequest) (database.Order, error) {
	if len(req.Lines) == 0 {
		return database.Order{}, ErrEmptyOrder
	}
	if req.TableNumber <= 0 {
		return database.Order{}, ErrInvalidTable
	}
	if req.Principal == nil || req.Principal.ID == uuid.Nil {
		return database.Order{}, apperr.ErrUnauthenticated
	}

	items := make([]database.OrderItem, len(req.Lines))
	for i, l := range req.Lines {
		if l.Quantity <= 0 {
			return database.Order{}, fmt.Errorf("item[%d]: %w", i, ErrInvalidQuantity)
		}
		ingredients := l.Ingredients
		if ingredients == nil {
			ingredients = []string{}
		}
		items[i] = database.OrderItem{
			Name:        l.Name,
			Price:       l.UnitPrice,
			Quantity:    l.Quantity,
			Ingredients: ingredients,
		}
	}
	total := cart.Sum(req.Lines)

	creatorName := req.Principal.DisplayName
	if creatorName == "" {
		creatorName = DefaultCreatorName
	}
	localCreatedAt := ""
	if !req.LocalTime.IsZero() {
		localCreatedAt = req.LocalTime.Format(time.RFC3339)
	}

	order, err := s.store.CreateOrder(ctx, database.CreateOrderParams{
		TableNumber:    int32(req.TableNumber),
		Items:          items,
		Total:          decimalToNumeric(total),
		Status:         enum.OrderStatusPending,
		Observation:    req.Observation,
		LocalCreatedAt: localCreatedAt,
		CreatedBy:      req.Principal.ID,
		CreatedByEmail: req.Principal.Email,
		CreatedByName:  creatorName,
	})
	if err != nil {
		return database.Order{}, apperr.Unavailable("create order", err)
	}

	s.metrics.OrdersSubmitted.Inc()
	s.log.WithFields(logrus.Fields{
		"order_id":     order.ID,
		"table_number": order.TableNumber,
		"total":        total.StringFixed(2),
		"staff_id":     req.Principal.ID,
	}).Info("order submitted")

	s.publish(ctx, events.OrderEvent{
		Type:        enum.EventOrderCreated,
		OrderID:     order.ID,
		Status:      order.Status,
		TableNumber: order.TableNumber,
		Total:       total.StringFixed(2),
		At:          time.Now(),
	})
	return order, nil
}

// Advance moves an order one step along OrderStatusSequence and returns the
// resulting status. A completed order is returned as is without a write.
// The update is guarded on the earlier statuses, so concurrent advances never
// move an order backwards or skip a step; the loser reads back the winner's
// status.
func (s *OrderService) Advance(ctx context.Context, id uuid.UUID) (string, error) {
	current, err := s.currentStatus(ctx, id)
	if err != nil {
		return "", err
	}

	idx, err := statusIndex(current)
	if err != nil {
		return "", err
	}
	last := len(enum.OrderStatusSequence) - 1
	if idx == last {
		return enum.OrderStatusCompleted, nil
	}

	next := enum.OrderStatusSequence[idx+1]
	earlier := append([]string{""}, enum.OrderStatusSequence[:idx+1]...)
	n, err := s.store.AdvanceOrderStatus(ctx, database.AdvanceOrderStatusParams{
		ID:      id,
		Status:  next,
		Earlier: earlier,
	})
	if err != nil {
		return "", apperr.Unavailable("advance order", err)
	}
	if n == 0 {
		// Someone else moved it first, or it was deleted.
		after, err := s.currentStatus(ctx, id)
		if err != nil {
			return "", err
		}
		s.log.WithFields(logrus.Fields{"order_id": id, "status": after}).Debug("advance lost race, returning current status")
		return after, nil
	}

	s.metrics.StatusAdvanced.WithLabelValues(next).Inc()
	s.log.WithFields(logrus.Fields{"order_id": id, "from": current, "to": next}).Info("order advanced")
	s.publish(ctx, events.OrderEvent{
		Type:    enum.EventOrderStatusChanged,
		OrderID: id,
		Status:  next,
		At:      time.Now(),
	})
	return next, nil
}

func (s *OrderService) currentStatus(ctx context.Context, id uuid.UUID) (string, error) {
	status, err := s.store.GetOrderStatus(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrOrderNotFound
		}
		return "", apperr.Unavailable("get order status", err)
	}
	if status == "" {
		status = enum.OrderStatusPending
	}
	return status, nil
}

// publish is best effort: the order is already stored.
func (s *OrderService) publish(ctx context.Context, ev events.OrderEvent) {
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.metrics.EventsFailed.Inc()
		s.log.WithError(err).WithFields(logrus.Fields{"order_id": ev.OrderID, "event": ev.Type}).Warn("publish order event failed")
	}
}

// --- Helpers ---

func statusIndex(status string) (int, error) {
	for i, st := range enum.OrderStatusSequence {
		if st == status {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.StringFixed(2))
	return n
}
