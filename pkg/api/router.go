// Package api wires the HTTP surface of mnemo: middleware, routes and the
// server lifecycle.
package api

import (
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/goclaw/mnemo/config"
	"github.com/goclaw/mnemo/pkg/api/handlers"
	"github.com/goclaw/mnemo/pkg/api/middleware"
	"github.com/goclaw/mnemo/pkg/logger"

	_ "github.com/goclaw/mnemo/docs/swagger" // registers the OpenAPI document
)

// Handlers holds all HTTP handlers. Nil handlers leave their routes
// unregistered.
type Handlers struct {
	Memory      *handlers.MemoryHandler
	Retrieval   *handlers.RetrievalHandler
	Maintenance *handlers.MaintenanceHandler
	Health      *handlers.HealthHandler
	WebSocket   *handlers.WebSocketHandler

	// Metrics is the optional metrics recorder
	Metrics middleware.MetricsRecorder
}

// NewRouter creates a chi router with the middleware chain and routes.
func NewRouter(cfg *config.Config, log logger.Logger, h *Handlers) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID())
	r.Use(middleware.Tracing(middleware.DefaultTracingOptions()))
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))
	if h.Metrics != nil {
		r.Use(middleware.Metrics(h.Metrics))
	}
	r.Use(middleware.CORS(cfg.Server.CORS))
	r.Use(middleware.RateLimit(cfg.Server.RateLimit))
	r.Use(middleware.Timeout(cfg.Server.HTTP.RequestTimeout))

	RegisterRoutes(r, h)
	return r
}

// RegisterRoutes registers all API routes.
func RegisterRoutes(r chi.Router, h *Handlers) {
	r.Route("/api/v1", func(r chi.Router) {
		if h.Memory != nil {
			r.Route("/memories", func(r chi.Router) {
				r.Post("/", h.Memory.Remember)
				r.Get("/", h.Memory.List)
				r.Get("/{id}", h.Memory.Get)
				r.Delete("/{id}", h.Memory.Forget)
				r.Post("/{id}/reactivate", h.Memory.Reactivate)
				r.Post("/{id}/tags", h.Memory.Tag)
				r.Put("/{id}/importance", h.Memory.SetImportance)
				r.Get("/{id}/strength", h.Memory.Strength)
			})
			r.Get("/stats", h.Memory.Stats)
		}

		if h.Retrieval != nil {
			r.Post("/retrieve", h.Retrieval.Retrieve)
			r.Post("/retrievals/{id}/feedback", h.Retrieval.Feedback)
		}

		if h.Maintenance != nil {
			r.Route("/consolidation", func(r chi.Router) {
				r.Post("/run", h.Maintenance.RunConsolidation)
				r.Get("/queue", h.Maintenance.ListQueue)
			})
			r.Route("/evolution", func(r chi.Router) {
				r.Post("/run", h.Maintenance.RunEvolution)
				r.Get("/state", h.Maintenance.State)
				r.Post("/rollback", h.Maintenance.Rollback)
			})
		}
	})

	// Probes are not versioned
	if h.Health != nil {
		r.Get("/health", h.Health.Health)
		r.Get("/ready", h.Health.Ready)
		r.Get("/status", h.Health.Status)
	}

	if h.WebSocket != nil {
		r.Get("/ws/events", h.WebSocket.ServeHTTP)
	}

	r.Get("/swagger/*", httpSwagger.WrapHandler)
}
