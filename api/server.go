/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, middleware stack and route definitions. This
  is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     request logging
  2. Recoverer:  panic recovery (500 instead of crash)
  3. RequestID:  unique id per request for tracing
  4. CORS:       cross-origin requests for a planning frontend

ROUTE GROUPS:
  /api/customers/*   cost plans (customer fallback, per-area)
  /api/campaigns/*   attendance, assignments, overrides, ledger entries
  /api/invoices      invoice status and attachment
  /api/recompute     explicit recompute trigger

SEE ALSO:
  - handlers.go: handler implementations
  - cmd/server/main.go: server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a router with all routes configured. allowedOrigins
// feeds the CORS middleware; empty means same-origin only.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	if len(allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   allowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
		}))
	}

	r.Route("/api", func(r chi.Router) {
		// Cost plans
		r.Route("/customers/{customerID}", func(r chi.Router) {
			r.Get("/plan", h.GetCustomerPlan)
			r.Put("/plan", h.SaveCustomerPlan)
			r.Route("/campaigns/{campaignID}/areas/{areaID}", func(r chi.Router) {
				r.Get("/plan", h.GetAreaPlan)
				r.Put("/plan", h.SaveAreaPlan)
			})
		})

		// Attendance and bindings, per campaign week
		r.Route("/campaigns/{campaignID}", func(r chi.Router) {
			r.Route("/weeks/{year}/{week}", func(r chi.Router) {
				r.Get("/attendance", h.GetAttendance)
				r.Put("/attendance", h.SaveAttendance)
				r.Get("/assignments", h.GetAssignments)
				r.Put("/assignments", h.SaveAssignments)
				r.Get("/overrides", h.GetOverrides)
				r.Put("/overrides", h.SaveOverrides)
			})
			r.Get("/areas/{areaID}/weeks/{year}/{week}/entries", h.GetEntries)
		})

		// Invoice status (generation lives elsewhere)
		r.Route("/invoices", func(r chi.Router) {
			r.Put("/", h.SaveInvoice)
			r.Post("/attach", h.AttachInvoice)
		})

		// Explicit trigger
		r.Post("/recompute", h.TriggerRecompute)
	})

	return r
}
