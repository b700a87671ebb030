// Command readtrackd runs the reading session engine: the position
// write-back drain, the periodic orphan reaper and the ops HTTP surface.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/readtrack"
	"github.com/dmitrymomot/readtrack/pkg/config"
	"github.com/dmitrymomot/readtrack/pkg/environment"
	"github.com/dmitrymomot/readtrack/pkg/httpserver"
	"github.com/dmitrymomot/readtrack/pkg/logger"
	"github.com/dmitrymomot/readtrack/pkg/pg"
	"github.com/dmitrymomot/readtrack/pkg/redis"
	"github.com/dmitrymomot/readtrack/svc/reading"
	"github.com/dmitrymomot/readtrack/svc/reading/pgstore"
	"github.com/dmitrymomot/readtrack/svc/reading/rediscache"
)

type appConfig struct {
	Env          string `env:"APP_ENV" envDefault:"development"`
	Name         string `env:"APP_NAME" envDefault:"readtrackd"`
	LogLevel     string `env:"LOG_LEVEL"`
	CacheEnabled bool   `env:"CACHE_ENABLED" envDefault:"true"`
}

type Config struct {
	App      appConfig
	Postgres pg.Config
	Redis    redis.Config
	HTTP     httpserver.Config
	Reading  reading.Config
}

// Validate is called by config.Load.
func (c Config) Validate() error {
	return c.Reading.Validate()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("readtrackd stopped with error", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		return err
	}

	env := environment.Parse(cfg.App.Env)
	ctx = environment.WithContext(ctx, env)

	logOpts := []logger.Option{
		logger.WithEnvironment(env, cfg.App.Name),
		logger.WithContextExtractors(environment.LoggerExtractor()),
	}
	if cfg.App.LogLevel != "" {
		logOpts = append(logOpts, logger.WithLevelName(cfg.App.LogLevel))
	}
	log := logger.New(logOpts...)
	logger.SetAsDefault(log)

	pool, err := pg.Connect(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, pgstore.Migrations, pgstore.MigrationsDir, cfg.Postgres, log); err != nil {
		return err
	}

	store, err := pgstore.New(pool)
	if err != nil {
		return err
	}

	checks := []httpserver.Check{{Name: "postgres", Fn: pg.Healthcheck(pool)}}
	engineOpts := []readtrack.Option{readtrack.WithLogger(log)}

	if cfg.App.CacheEnabled {
		client, err := redis.Connect(ctx, cfg.Redis)
		switch {
		case err != nil:
			// The store stays authoritative; the engine runs uncached.
			log.WarnContext(ctx, "redis unavailable, running without session cache", logger.Error(err))
		default:
			defer client.Close()
			cache, err := rediscache.New(client, cfg.Reading.CacheTTL)
			if err != nil {
				return err
			}
			engineOpts = append(engineOpts, readtrack.WithCache(cache))
			checks = append(checks, httpserver.Check{Name: "redis", Fn: redis.Healthcheck(client), Optional: true})
		}
	}

	engine, err := readtrack.New(store, cfg.Reading, engineOpts...)
	if err != nil {
		return err
	}

	srv := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log))
	router := httpserver.NewOpsRouter(log, cfg.HTTP.CheckTimeout, checks...)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return engine.Run(ctx) })
	g.Go(func() error { return srv.Run(ctx, router) })

	log.InfoContext(ctx, "readtrackd started")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.InfoContext(context.WithoutCancel(ctx), "readtrackd stopped")
	return nil
}
