// Package events publishes order lifecycle events to other systems.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Exchange is the topic exchange order events are published on. The routing
// key is the event type.
const Exchange = "orders_topic"

type OrderEvent struct {
	Type        string    `json:"type"`
	OrderID     uuid.UUID `json:"order_id"`
	Status      string    `json:"status"`
	TableNumber int32     `json:"table_number,omitempty"`
	Total       string    `json:"total,omitempty"`
	At          time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, ev OrderEvent) error
	Close() error
}

// Noop drops every event. Used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, OrderEvent) error { return nil }
func (Noop) Close() error                              { return nil }
