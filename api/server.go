/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the HR frontend

ROUTE GROUPS:
  /api/points/*     Point lifecycle (create, excuse, reset)
  /api/employees/*  Per-employee queries (points, balance)
  /api/admin/*      Expiration pass trigger, run records, repair tools

SECURITY NOTE:
  No authentication middleware; this service sits behind the HR
  application's gateway, which owns auth.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Point lifecycle
		r.Route("/points", func(r chi.Router) {
			r.Post("/", h.CreatePoint)
			r.Get("/{id}", h.GetPoint)
			r.Post("/{id}/excuse", h.ExcusePoint)
			r.Post("/{id}/reset", h.ResetPoint)
		})

		// Per-employee queries
		r.Route("/employees", func(r chi.Router) {
			r.Get("/{id}/points", h.ListPoints)
			r.Get("/{id}/balance", h.GetBalance)
		})

		// Admin operations
		r.Route("/admin", func(r chi.Router) {
			r.Post("/expiration-pass", h.TriggerPass)
			r.Get("/runs", h.ListRuns)
			r.Post("/recompute-cohorts", h.RecomputeCohorts)
		})
	})

	return r
}
