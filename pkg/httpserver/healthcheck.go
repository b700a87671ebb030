package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/readtrack/pkg/logger"
)

const (
	statusOK       = "ok"
	statusReady    = "ready"
	statusDegraded = "degraded"
	statusNotReady = "not_ready"
)

// DefaultCheckTimeout bounds a single readiness check.
const DefaultCheckTimeout = 2 * time.Second

// Check is a named dependency probe. A failing optional check degrades
// readiness without failing it.
type Check struct {
	Name     string
	Fn       func(context.Context) error
	Optional bool
}

type readinessReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LivenessHandler always reports 200 with body "ALIVE".
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ALIVE"))
	}
}

// ReadinessHandler runs every check concurrently and reports the result as
// JSON. It responds 503 when a required check fails.
func ReadinessHandler(log *slog.Logger, timeout time.Duration, checks ...Check) http.HandlerFunc {
	if log == nil {
		log = logger.Discard()
	}
	if timeout <= 0 {
		timeout = DefaultCheckTimeout
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		report := readinessReport{Status: statusReady, Checks: make(map[string]string, len(checks))}
		var mu sync.Mutex
		var g errgroup.Group

		for _, c := range checks {
			g.Go(func() error {
				err := c.Fn(ctx)

				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					report.Checks[c.Name] = statusOK
					return nil
				}

				report.Checks[c.Name] = err.Error()
				switch {
				case !c.Optional:
					report.Status = statusNotReady
				case report.Status == statusReady:
					report.Status = statusDegraded
				}
				log.WarnContext(ctx, "readiness check failed",
					slog.String("check", c.Name),
					slog.Bool("optional", c.Optional),
					logger.Error(err))
				return nil
			})
		}
		_ = g.Wait()

		code := http.StatusOK
		if report.Status == statusNotReady {
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(report)
	}
}
