package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"iap-coordinator/internal/handler"
	"iap-coordinator/internal/middleware"
)

// Config holds the configuration for creating a router.
type Config struct {
	Handler         *handler.Handler
	PurchaseHandler *handler.PurchaseHandler
	AdminHandler    *handler.AdminHandler
	AuthMiddleware  func(http.Handler) http.Handler
	CORSOrigins     []string
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// Global middleware stack (applies to ALL routes)
	r.Use(middleware.Recovery)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-API-Key", "X-Admin-Key"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	// PUBLIC routes (no auth required)
	if cfg.Handler != nil {
		r.Get("/api/status", cfg.Handler.Status)
	}

	// AUTHENTICATED routes (use Group to apply auth middleware only to these)
	r.Group(func(r chi.Router) {
		if cfg.AuthMiddleware != nil {
			r.Use(cfg.AuthMiddleware)
		}

		r.Route("/api/v1", func(r chi.Router) {
			// Health check endpoints
			if cfg.Handler != nil {
				r.Get("/health", cfg.Handler.Health)
				r.Get("/ready", cfg.Handler.Ready)
			}

			if cfg.PurchaseHandler != nil {
				r.Get("/payments/capability", cfg.PurchaseHandler.Capability)

				r.Route("/products", func(r chi.Router) {
					r.Get("/purchased", cfg.PurchaseHandler.ListPurchased)
					r.Post("/load", cfg.PurchaseHandler.LoadProducts)
					r.Get("/{product_id}/purchased", cfg.PurchaseHandler.IsPurchased)
					r.Post("/{product_id}/purchase", cfg.PurchaseHandler.Purchase)
				})

				r.Post("/purchases/restore", cfg.PurchaseHandler.Restore)
			}

			// Admin endpoints
			if cfg.AdminHandler != nil {
				r.Get("/admin/stats", cfg.AdminHandler.GetStats)
			}
		})
	})

	return r
}
