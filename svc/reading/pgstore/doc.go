// Package pgstore is the PostgreSQL implementation of reading.Store and
// readingstats.Store, built on pgx/v5.
//
// The schema ships as embedded goose migrations; apply them with
//
//	pg.Migrate(ctx, pool, pgstore.Migrations, pgstore.MigrationsDir, cfg, log)
//
// The at-most-one active session rule is the partial unique index
// reading_sessions_one_active_per_user. Inserting a second active row for a
// user fails with reading.ErrActiveSessionConflict.
//
// Position pings are applied with a single UPDATE ... FROM unnest(...)
// statement per flush and stale sessions are closed with a single
// conditional UPDATE, so neither races with a concurrent client write.
package pgstore
