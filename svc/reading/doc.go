// Package reading owns the lifecycle of reading sessions: starting, updating
// and ending them, keeping the "at most one active session per user" rule,
// and closing sessions whose clients disappeared.
//
// # Architecture
//
// Manager is the entry point for request handling. It talks to two ports:
//
//   - Store, the durable source of truth. Every transition that changes
//     whether a session is active runs inside Store.InTx. The at-most-one
//     rule is enforced by the store itself (a partial unique index in
//     PostgreSQL); losing that race surfaces as ErrActiveSessionConflict,
//     which StartSession absorbs with one retry.
//   - Cache, a cache-aside copy of each user's active session. It is only
//     read by GetActiveSession and is never consulted for analytics. When the
//     cache fails the Manager logs and goes to the Store.
//
// Position pings are the hot path. With a WriteBackQueue attached,
// UpdateSession validates against the Store and then queues the write; the
// queue's drain applies all pending positions with one conditional
// multi-row update. Start and End are always written synchronously.
//
// Reaper force-closes active sessions whose last activity is older than a
// policy threshold. The close is a single conditional update, so a sweep
// racing a client update either closes the row or skips it, never both.
//
// MemoryStore implements Store for tests and single-process tooling;
// svc/reading/pgstore is the PostgreSQL implementation and
// svc/reading/rediscache the Redis cache.
//
// # Errors
//
// Failures carry one of the sentinels in errors.go. KindOf maps any returned
// error to a stable Kind (validation, not found, state conflict, storage) so
// callers can render distinct messages.
package reading
