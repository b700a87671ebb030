// Package pg bootstraps the PostgreSQL side of readtrack on top of pgx/v5.
//
// Connect opens a *pgxpool.Pool and retries with a growing delay until the
// database answers a ping. Migrate applies goose migrations from any fs.FS,
// which lets packages ship their schema with go:embed next to the code that
// queries it. Healthcheck returns a readiness probe closure.
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, pgstore.Migrations, "migrations", log); err != nil {
//	    return err
//	}
//
// Error helpers classify *pgconn.PgError values: IsDuplicateKeyError reports
// any unique violation, IsUniqueViolation narrows it to a named constraint or
// index, which is how callers tell a partial unique index apart from a
// primary key collision.
package pg
