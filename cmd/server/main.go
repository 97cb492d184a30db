package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jardin-pos/api/internal/cart"
	"github.com/jardin-pos/api/internal/config"
	"github.com/jardin-pos/api/internal/database"
	"github.com/jardin-pos/api/internal/events"
	"github.com/jardin-pos/api/internal/identity"
	"github.com/jardin-pos/api/internal/logger"
	"github.com/jardin-pos/api/internal/menu"
	"github.com/jardin-pos/api/internal/metrics"
	"github.com/jardin-pos/api/internal/router"
	"github.com/jardin-pos/api/internal/service"
	"github.com/jardin-pos/api/internal/stream"
	"github.com/jardin-pos/api/internal/ws"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}

func run(cfg *config.Config, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	if cfg.RunMigrations {
		if err := database.Migrate(cfg.DatabaseURL); err != nil {
			return err
		}
		log.Info("migrations applied")
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return err
	}
	queries := database.New(pool)

	revocations, err := identity.OpenRevocations(cfg.SessionStoreDir)
	if err != nil {
		return err
	}
	defer revocations.Close()
	if n, err := revocations.Prune(time.Now()); err != nil {
		log.WithError(err).Warn("prune revoked sessions")
	} else if n > 0 {
		log.WithField("pruned", n).Info("expired revocations dropped")
	}

	provider := identity.NewProvider(queries, revocations, cfg.JWTSecret, cfg.SessionTTL, log)
	gate := identity.NewGate(provider, queries, log)
	m := metrics.NewRegistry()

	var publisher events.Publisher = events.Noop{}
	if cfg.AMQPURL != "" {
		amqpPub, err := events.DialAMQP(cfg.AMQPURL)
		if err != nil {
			return err
		}
		publisher = amqpPub
		log.Info("publishing order events to amqp")
	}
	defer publisher.Close()

	signals := stream.NewHub()
	go signals.Run(ctx)
	go database.NewListener(pool, database.OrdersChannel, log).
		Run(ctx, func(string) { signals.Notify() })
	observer := stream.NewObserver(queries, signals, m, log)

	catalog := menu.Default()
	orders := service.NewOrderService(queries, publisher, m, log)
	staff := service.NewStaffService(provider, queries, log)

	displays := ws.NewHub(m)
	go displays.Run(ctx)
	unsubscribe := provider.OnSessionChange(displays.OnSessionEvent)
	defer unsubscribe()

	r := router.New(router.Deps{
		CORSOrigins: cfg.CORSOrigins,
		Location:    loc,
		Queries:     queries,
		Provider:    provider,
		Gate:        gate,
		Catalog:     catalog,
		Carts:       cart.NewRegistry(catalog),
		Orders:      orders,
		Staff:       staff,
		Displays:    ws.NewServer(displays, gate, observer, loc, log),
		Metrics:     m,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{"port": cfg.Port, "timezone": loc.String()}).Info("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
