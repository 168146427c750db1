/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address behind proxies
  3. Logger:     Request logging
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the check-in frontend

SECURITY NOTE:
  No authentication middleware. Authentication and authorization are
  out of scope for this service; deploy behind a trusted boundary.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/guests", func(r chi.Router) {
			r.Get("/", h.ListGuests)
			r.Post("/", h.CreateGuest)

			// Search before {id} so the literal path wins.
			r.Get("/search", h.SearchGuests)
			r.Get("/search/quick", h.QuickSearch)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetGuest)
				r.Put("/", h.UpdateGuest)
				r.Delete("/", h.DeleteGuest)
				r.Post("/checkin", h.CheckInGuest)
				r.Get("/qr", h.PaymentSlip)
				r.Get("/activity", h.ListActivity)
			})
		})

		r.Get("/statistics", h.GetStatistics)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/errors", h.ListErrors)
			r.Post("/errors/{id}/resolve", h.ResolveError)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	return r
}
