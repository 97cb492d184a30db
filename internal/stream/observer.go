package stream

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jardin-pos/api/internal/apperr"
	"github.com/jardin-pos/api/internal/database"
	"github.com/jardin-pos/api/internal/datewindow"
	"github.com/jardin-pos/api/internal/logger"
	"github.com/jardin-pos/api/internal/metrics"
	"github.com/sirupsen/logrus"
)

// Store is satisfied by *database.Queries.
type Store interface {
	ListOrders(ctx context.Context) ([]database.Order, error)
	ListOrdersBetween(ctx context.Context, arg database.ListOrdersBetweenParams) ([]database.Order, error)
}

// Query selects what a subscription watches. With a Window the range is
// applied by the store and orders come newest first; without one the whole
// collection is returned in no particular order.
type Query struct {
	Window *datewindow.Window
}

// Snapshot is the complete result of a Query at one moment. It is never a
// delta and must not be modified by receivers.
type Snapshot struct {
	Orders  []database.Order
	Query   Query
	TakenAt time.Time
}

// Materialize reads the full result set for q.
func Materialize(ctx context.Context, store Store, q Query) ([]database.Order, error) {
	if q.Window == nil {
		return store.ListOrders(ctx)
	}
	return store.ListOrdersBetween(ctx, database.ListOrdersBetweenParams{
		Start: pgtype.Timestamptz{Time: q.Window.Start, Valid: true},
		End:   pgtype.Timestamptz{Time: q.Window.End, Valid: true},
	})
}

type Observer struct {
	store   Store
	hub     *Hub
	metrics *metrics.Registry
	log     logrus.FieldLogger
}

func NewObserver(store Store, hub *Hub, m *metrics.Registry, log logrus.FieldLogger) *Observer {
	if m == nil {
		m = metrics.NewRegistry()
	}
	return &Observer{store: store, hub: hub, metrics: m, log: logger.OrDefault(log)}
}

// Subscribe starts watching q. The first snapshot is delivered as soon as it
// is read, then one per change signal. The subscription ends when ctx is done,
// Cancel is called or the store fails; C is closed afterwards.
func (o *Observer) Subscribe(ctx context.Context, q Query) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		c:      make(chan Snapshot, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go o.run(ctx, s, q)
	return s
}

func (o *Observer) run(ctx context.Context, s *Subscription, q Query) {
	defer close(s.done)
	defer close(s.c)

	o.metrics.SubscriptionsLive.Inc()
	defer o.metrics.SubscriptionsLive.Dec()

	signals := o.hub.listen(ctx)
	if signals == nil {
		return
	}
	defer o.hub.forget(signals)

	if !o.deliver(ctx, s, q) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-signals:
			if !o.deliver(ctx, s, q) {
				return
			}
		}
	}
}

func (o *Observer) deliver(ctx context.Context, s *Subscription, q Query) bool {
	orders, err := Materialize(ctx, o.store, q)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		s.setErr(apperr.Unavailable("materialize orders", err))
		o.log.WithError(err).Error("order subscription ended")
		return false
	}

	snap := Snapshot{Orders: orders, Query: q, TakenAt: time.Now()}
	// Only this goroutine sends, so after dropping a stale snapshot the
	// buffer has room.
	select {
	case s.c <- snap:
	default:
		select {
		case <-s.c:
		default:
		}
		s.c <- snap
	}
	o.metrics.SnapshotsDelivered.Inc()
	return true
}

// Subscription is one live query. A snapshot already buffered when Cancel is
// called may still be received.
type Subscription struct {
	c      chan Snapshot
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// C delivers snapshots; a slow receiver only sees the newest one.
func (s *Subscription) C() <-chan Snapshot { return s.c }

// Done is closed once the subscription has stopped.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Cancel stops the subscription and waits for it to wind down.
func (s *Subscription) Cancel() {
	s.cancel()
	<-s.done
}

// Err reports why the subscription ended, nil if it was cancelled.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Subscription) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}
