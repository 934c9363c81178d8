// Package router wires handlers, middleware, and role groups into the HTTP
// surface of the workshop API.
package router

import (
	"net/http"

	"github.com/atelierhq/api/internal/config"
	"github.com/atelierhq/api/internal/database"
	"github.com/atelierhq/api/internal/enum"
	"github.com/atelierhq/api/internal/handler"
	mw "github.com/atelierhq/api/internal/middleware"
	"github.com/atelierhq/api/internal/policy"
	"github.com/atelierhq/api/internal/service"
	"github.com/atelierhq/api/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// New creates a Chi router with all application routes wired up.
// Authentication applies to everything except login, refresh, health, and
// the WebSocket feed (which validates its token itself); role groups narrow
// access further.
func New(cfg *config.Config, queries *database.Queries, hub *ws.Hub) chi.Router {
	pol := policy.Policy{LocationScoping: cfg.LocationScoping}

	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	authHandler := handler.NewAuthHandler(queries, cfg.JWTSecret)
	authHandler.RegisterRoutes(r)

	// WebSocket feed (handles auth internally via query param)
	r.Get("/ws/locations/{location}/orders", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, chi.URLParam(r, "location"), w, r)
	})

	orderService := service.NewOrderService(queries, pol)

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		// Orders: every role gets through the router; the service applies
		// ownership and location rules per order.
		orderHandler := handler.NewOrderHandler(orderService, hub)
		r.Route("/orders", orderHandler.RegisterRoutes)

		userHandler := handler.NewUserHandler(queries, pol)
		r.Route("/tailors", userHandler.RegisterTailorRoutes)

		// Reports: the dashboard serves every role with scoped counts; the
		// finance summary enforces its own policy check and denies tailors.
		reportsHandler := handler.NewReportsHandler(queries, orderService, pol)
		r.Route("/reports", reportsHandler.RegisterRoutes)

		// Admin and manager routes
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(enum.UserRoleAdmin, enum.UserRoleManager))

			clientHandler := handler.NewClientHandler(queries)
			r.Route("/clients", clientHandler.RegisterRoutes)

			measurementHandler := handler.NewMeasurementHandler(queries)
			r.Route("/measurements", measurementHandler.RegisterRoutes)

			invoiceHandler := handler.NewInvoiceHandler(queries, pol)
			r.Route("/invoices", invoiceHandler.RegisterRoutes)
		})

		// Admin-only routes
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(enum.UserRoleAdmin))
			r.Route("/users", userHandler.RegisterRoutes)
		})
	})

	return r
}
