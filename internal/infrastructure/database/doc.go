// Package database provides the SQLite connection and schema migration
// layer for the bridge's local settings store.
//
// The bridge keeps very little state of its own: per-device capacity
// overrides and the migration ledger. SQLite with WAL mode is plenty for
// that volume, and keeping it embedded means a single-binary deployment.
//
// Migrations are SQL files embedded into the binary by the top-level
// migrations package. They are named NNN_description.up.sql with an
// optional matching .down.sql, applied in ordinal order, each in its own
// transaction.
//
// # Thread Safety
//
// The wrapper is safe for concurrent use; the pool is pinned to a single
// connection because SQLite allows only one writer.
package database
