package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jardin-pos/api/internal/cart"
	"github.com/jardin-pos/api/internal/database"
	"github.com/jardin-pos/api/internal/enum"
	"github.com/jardin-pos/api/internal/handler"
	"github.com/jardin-pos/api/internal/identity"
	"github.com/jardin-pos/api/internal/menu"
	"github.com/jardin-pos/api/internal/metrics"
	mw "github.com/jardin-pos/api/internal/middleware"
	"github.com/jardin-pos/api/internal/service"
	"github.com/jardin-pos/api/internal/ws"
	"github.com/sirupsen/logrus"
)

// Deps is everything the routes are built from.
type Deps struct {
	CORSOrigins []string
	Location    *time.Location

	Queries  *database.Queries
	Provider *identity.Provider
	Gate     *identity.Gate
	Catalog  *menu.Catalog
	Carts    *cart.Registry
	Orders   *service.OrderService
	Staff    *service.StaffService
	Displays *ws.Server
	Metrics  *metrics.Registry
}

// New creates a Chi router with all application routes wired up.
// Applies authentication and role-based middleware as needed.
func New(d Deps) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method("GET", "/metrics", d.Metrics.Handler())

	// Auth routes (public)
	authHandler := handler.NewAuthHandler(d.Provider, d.Gate)
	authHandler.RegisterRoutes(r)

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws/orders", d.Displays.ServeWS)

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(d.Gate))

		r.Get("/auth/me", authHandler.Me)
		handler.NewMenuHandler(d.Catalog).RegisterRoutes(r)

		orderHandler := handler.NewOrderHandler(d.Orders, d.Queries, d.Catalog, d.Location)

		// POS terminals
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(d.Gate, enum.RolePOS))
			handler.NewCartHandler(d.Carts, d.Orders).RegisterRoutes(r)
			r.Post("/orders", orderHandler.Create)
		})

		// Kitchen and admin screens
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(d.Gate, enum.RoleKitchen, enum.RoleAdmin))
			r.Get("/orders", orderHandler.List)
			r.Get("/orders/{id}", orderHandler.Get)
		})

		// Kitchen only
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(d.Gate, enum.RoleKitchen))
			r.Patch("/orders/{id}/advance", orderHandler.Advance)
		})

		// Admin only
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(d.Gate, enum.RoleAdmin))
			r.Route("/staff", handler.NewStaffHandler(d.Staff).RegisterRoutes)
		})
	})

	logrus.Debug("router initialized with all handlers")
	return r
}
