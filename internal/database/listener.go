package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jardin-pos/api/internal/logger"
	"github.com/sirupsen/logrus"
)

// OrdersChannel is the NOTIFY channel the orders trigger publishes on.
const OrdersChannel = "orders_changed"

const listenRetry = 2 * time.Second

// Listener holds one pooled connection in LISTEN mode and reports every
// notification on its channel.
type Listener struct {
	pool    *pgxpool.Pool
	channel string
	log     logrus.FieldLogger
}

func NewListener(pool *pgxpool.Pool, channel string, log logrus.FieldLogger) *Listener {
	return &Listener{pool: pool, channel: channel, log: logger.OrDefault(log)}
}

// Run blocks until ctx is done. onChange receives each notification payload,
// and an empty payload after every (re)connect since notifications sent while
// disconnected are lost.
func (l *Listener) Run(ctx context.Context, onChange func(payload string)) {
	for {
		err := l.listen(ctx, onChange)
		if ctx.Err() != nil {
			return
		}
		l.log.WithError(err).WithField("channel", l.channel).Warn("order listener disconnected, retrying")

		select {
		case <-ctx.Done():
			return
		case <-time.After(listenRetry):
		}
	}
}

func (l *Listener) listen(ctx context.Context, onChange func(payload string)) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listener conn: %w", err)
	}
	defer func() {
		// The conn goes back to the pool, so drop the subscription first.
		unlistenCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if _, err := conn.Exec(unlistenCtx, "UNLISTEN *"); err != nil {
			conn.Conn().Close(unlistenCtx) //nolint:errcheck
		}
		conn.Release()
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen %s: %w", l.channel, err)
	}
	l.log.WithField("channel", l.channel).Info("listening for order changes")
	onChange("")

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}
		onChange(n.Payload)
	}
}
