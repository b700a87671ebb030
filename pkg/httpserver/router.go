package httpserver

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/readtrack/pkg/metrics"
)

// NewOpsRouter mounts /healthz, /readyz and /metrics.
func NewOpsRouter(log *slog.Logger, checkTimeout time.Duration, checks ...Check) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", LivenessHandler())
	r.Get("/readyz", ReadinessHandler(log, checkTimeout, checks...))
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	return r
}
