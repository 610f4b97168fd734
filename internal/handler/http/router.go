package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/catalogcore/pkg/health"
	"github.com/utafrali/catalogcore/pkg/middleware"
)

// ServiceName labels the router's request metrics.
const ServiceName = "catalog-service"

// Paths served by the ops router.
const (
	PathLive    = "/health/live"
	PathReady   = "/health/ready"
	PathMetrics = "/metrics"
)

// NewRouter creates the operational router: probes, Prometheus scrape
// endpoint and, for callers inside pprofCIDRs, runtime profiling. Catalog
// operations are not exposed over HTTP here.
func NewRouter(healthHandler *health.Handler, pprofCIDRs []string, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger, PathLive, PathReady, PathMetrics))
	r.Use(middleware.PrometheusMetrics(ServiceName))

	r.Get(PathLive, healthHandler.LivenessHandler())
	r.Get(PathReady, healthHandler.ReadinessHandler())
	r.Handle(PathMetrics, promhttp.Handler())

	if len(pprofCIDRs) > 0 {
		middleware.RegisterPprof(r, pprofCIDRs, logger)
	}

	return r
}
