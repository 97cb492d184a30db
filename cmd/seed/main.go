package main

import (
	"context"
	"errors"
	"flag"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jardin-pos/api/internal/config"
	"github.com/jardin-pos/api/internal/database"
	"github.com/jardin-pos/api/internal/enum"
	"github.com/jardin-pos/api/internal/identity"
	"github.com/jardin-pos/api/internal/logger"
	"github.com/jardin-pos/api/internal/service"
	"github.com/sirupsen/logrus"
)

// seed bootstraps the first admin so the staff directory can be managed
// through the API. Running it again for an existing email is a no-op.
func main() {
	email := flag.String("email", "", "Admin email address")
	password := flag.String("password", "", "Admin password")
	name := flag.String("name", "", "Admin display name")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log := logger.Setup(cfg.LogLevel, "text")

	// Fall back to environment variables, then defaults
	*email = firstNonEmpty(*email, os.Getenv("SEED_EMAIL"), "admin@jardin.local")
	*name = firstNonEmpty(*name, os.Getenv("SEED_NAME"), "Administrador")
	if *password == "" {
		*password = os.Getenv("SEED_PASSWORD")
	}
	if *password == "" {
		*password = "password123"
		log.Warn("using default password 'password123', change it immediately in production")
	}

	ctx := context.Background()

	if cfg.RunMigrations {
		if err := database.Migrate(cfg.DatabaseURL); err != nil {
			log.WithError(err).Fatal("apply migrations")
		}
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("connect to database")
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		log.WithError(err).Fatal("ping database")
	}
	log.Info("connected to database")

	queries := database.New(pool)
	provider := identity.NewProvider(queries, nil, cfg.JWTSecret, cfg.SessionTTL, log)
	staff := service.NewStaffService(provider, queries, log)

	admin, err := staff.Create(ctx, service.CreateStaffRequest{
		Email:       *email,
		Password:    *password,
		Role:        enum.RoleAdmin,
		DisplayName: *name,
	})
	switch {
	case errors.Is(err, identity.ErrEmailTaken):
		log.WithField("email", *email).Info("admin already exists, skipping")
		return
	case err != nil:
		log.WithError(err).Fatal("seed admin")
	}

	log.WithFields(logrus.Fields{"staff_id": admin.ID, "email": admin.Email}).Info("seed completed successfully")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
