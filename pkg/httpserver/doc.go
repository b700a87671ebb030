// Package httpserver runs the operational HTTP surface of the reading
// service: liveness, readiness and Prometheus metrics.
//
// Server wraps http.Server with context-driven graceful shutdown. Run blocks
// until the context is cancelled, then shuts down within the configured
// deadline. Signal handling belongs to the caller, usually through
// signal.NotifyContext in main.
//
//	srv := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log))
//	router := httpserver.NewOpsRouter(log, cfg.HTTP.CheckTimeout,
//		httpserver.Check{Name: "postgres", Fn: pg.Healthcheck(pool)},
//		httpserver.Check{Name: "redis", Fn: redis.Healthcheck(client), Optional: true},
//	)
//	err := srv.Run(ctx, router)
//
// Run wraps listen errors with ErrStart and Shutdown wraps shutdown errors
// with ErrShutdown.
package httpserver
