package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/balcao-pos/balcao/internal/observability"
	"github.com/balcao-pos/balcao/internal/platform/httpx"
)

// RouteMounter is implemented by each domain handler.
type RouteMounter interface {
	MountRoutes(r chi.Router)
}

// RouterDeps carries everything the router needs to assemble the API.
type RouterDeps struct {
	Logger  *slog.Logger
	Config  *Config
	Pool    *pgxpool.Pool
	Metrics *observability.Metrics
	Modules []RouteMounter
}

// NewRouter assembles the chi router with the full middleware stack,
// health and metrics endpoints, and every domain module under /api/v1.
func NewRouter(deps RouterDeps) chi.Router {
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{Logger: deps.Logger, Config: deps.Config, Metrics: deps.Metrics}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if deps.Pool != nil {
			if err := deps.Pool.Ping(ctx); err != nil {
				httpx.Problem(w, http.StatusServiceUnavailable, "Unhealthy", "database unreachable")
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(ActorMiddleware(deps.Logger))
		for _, m := range deps.Modules {
			m.MountRoutes(api)
		}
	})

	return r
}
