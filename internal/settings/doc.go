// Package settings persists operator-supplied bridge settings.
//
// Today that is one concern: per-device battery capacity overrides. The
// vendor cloud never reports pack capacity, so stored-energy figures are
// derived from a configured default unless the operator records the real
// capacity for a device here. Overrides survive restarts and apply on the
// next poll cycle.
//
// The package provides a Store interface with a SQLite implementation.
//
// # Thread Safety
//
// SQLiteStore is safe for concurrent use from multiple goroutines
// (SQLite WAL mode, single pooled connection).
package settings
