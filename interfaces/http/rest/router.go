package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/PRicaldone/atelier-sub003/application/ports"
	"github.com/PRicaldone/atelier-sub003/application/services"
	"github.com/PRicaldone/atelier-sub003/infrastructure/config"
	"github.com/PRicaldone/atelier-sub003/infrastructure/observability"
	"github.com/PRicaldone/atelier-sub003/interfaces/http/rest/handlers"
	"github.com/PRicaldone/atelier-sub003/interfaces/http/rest/middleware"
	pkgerrors "github.com/PRicaldone/atelier-sub003/pkg/errors"
)

// requestTimeout bounds every API call except the event stream
const requestTimeout = 30 * time.Second

// Dependencies carries everything the REST surface serves
type Dependencies struct {
	Containers *services.ContainerStore
	Graphs     *services.GraphStore
	Promotions *services.PromotionEngine
	Integrity  *services.ConsistencyEngine
	Queue      ports.WriteScheduler
	Bus        ports.EventBus
	Store      ports.SnapshotStore
	Collector  *observability.Collector
}

// Router creates and configures the HTTP router
type Router struct {
	cfg    *config.Config
	deps   Dependencies
	logger *zap.Logger
}

// NewRouter creates a new router instance
func NewRouter(cfg *config.Config, deps Dependencies, logger *zap.Logger) *Router {
	return &Router{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Global middleware
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Logger(rt.logger))
	if rt.cfg.EnableMetrics && rt.deps.Collector != nil {
		router.Use(middleware.Metrics(rt.deps.Collector))
	}

	if rt.cfg.EnableCORS {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   rt.cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	// Operational endpoints
	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)
	if rt.cfg.EnableMetrics && rt.deps.Collector != nil {
		router.Method(http.MethodGet, "/metrics", rt.deps.Collector.Handler())
	}

	errorHandler := pkgerrors.NewErrorHandler(rt.logger, rt.cfg.Environment != "production")

	canvasHandler := handlers.NewCanvasHandler(rt.deps.Containers, rt.deps.Queue, errorHandler, rt.logger)
	graphHandler := handlers.NewGraphHandler(rt.deps.Graphs, errorHandler, rt.logger)
	promotionHandler := handlers.NewPromotionHandler(rt.deps.Promotions, errorHandler, rt.logger)
	integrityHandler := handlers.NewIntegrityHandler(rt.deps.Integrity, errorHandler, rt.logger)
	eventsHandler := handlers.NewEventsHandler(rt.deps.Bus, errorHandler, rt.logger)

	router.Route("/api/v1", func(r chi.Router) {
		// Panics inside API handlers still answer in the JSON error shape
		r.Use(errorHandler.Middleware)

		// Long-lived stream, mounted outside the request timeout
		r.Get("/events", eventsHandler.Stream)

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(requestTimeout))

			r.Route("/canvas", func(r chi.Router) {
				r.Get("/hierarchy", canvasHandler.GetHierarchy)
				r.Get("/level", canvasHandler.GetActiveLevel)
				r.Put("/level/elements", canvasHandler.ReplaceActiveElements)
				r.Post("/enter", canvasHandler.Enter)
				r.Post("/exit", canvasHandler.Exit)
				r.Post("/save", canvasHandler.Save)
			})

			r.Route("/containers", func(r chi.Router) {
				r.Post("/", canvasHandler.CreateContainer)
				r.Get("/{containerID}", canvasHandler.GetContainer)
				r.Patch("/{containerID}", canvasHandler.UpdateContainer)
				r.Delete("/{containerID}", canvasHandler.DeleteContainer)
				r.Get("/{containerID}/children", canvasHandler.ListChildren)
			})

			r.Route("/graphs", func(r chi.Router) {
				r.Get("/", graphHandler.ListGraphs)
				r.Post("/", graphHandler.CreateGraph)
				r.Get("/{graphID}", graphHandler.GetGraph)
				r.Patch("/{graphID}", graphHandler.UpdateGraph)
				r.Delete("/{graphID}", graphHandler.DeleteGraph)
				r.Post("/{graphID}/nodes", graphHandler.AppendNode)
				r.Delete("/{graphID}/nodes/{nodeID}", graphHandler.RemoveNode)
			})

			r.Route("/promotions", func(r chi.Router) {
				r.Post("/", promotionHandler.Promote)
				r.Post("/scope", promotionHandler.PromoteScope)
			})
			r.Post("/migrations/legacy", promotionHandler.MigrateLegacy)

			r.Route("/integrity", func(r chi.Router) {
				r.Get("/", integrityHandler.Validate)
				r.Post("/repair", integrityHandler.Repair)
			})
		})
	})

	return router
}

// healthCheck handles health check requests
func (rt *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

// readinessCheck reports ready only when the snapshot store answers
func (rt *Router) readinessCheck(w http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	if err := rt.deps.Store.Ping(ctx); err != nil {
		rt.logger.Warn("Readiness probe failed", zap.Error(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}
