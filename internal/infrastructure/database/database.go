package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const (
	dirPermissions  = 0750
	filePermissions = 0600

	// defaultBusyTimeout is how long SQLite waits for a lock before
	// erroring. The bridge has a single writer (the settings store) so
	// contention is rare, but the API server reads concurrently.
	defaultBusyTimeout = 5 // seconds

	connectTimeout = 5 * time.Second
)

// Config contains database options, mapped from the database section of
// config.yaml.
type Config struct {
	// Path is the filesystem path to the SQLite database file.
	// The directory is created if it doesn't exist.
	Path string

	// WALMode enables Write-Ahead Logging so API reads don't block on
	// settings writes. Recommended: true.
	WALMode bool

	// BusyTimeout is the maximum time to wait for a lock, in seconds.
	BusyTimeout int
}

// DB wraps a sql.DB connection to the bridge's settings database.
// It owns migration support and lifecycle management; domain packages
// receive the wrapper and run plain database/sql queries against it.
type DB struct {
	*sql.DB
	path string
}

// Open opens (creating if necessary) the SQLite database described by cfg.
// The file is created with owner-only permissions since the database
// sits next to the config file that holds cloud credentials.
func Open(cfg Config) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	busyTimeout := cfg.BusyTimeout
	if busyTimeout <= 0 {
		busyTimeout = defaultBusyTimeout
	}

	connStr := fmt.Sprintf(
		"file:%s?_busy_timeout=%d&_foreign_keys=on",
		cfg.Path, busyTimeout*1000,
	)
	if cfg.WALMode {
		connStr += "&_journal_mode=WAL&_synchronous=NORMAL"
	}

	sqlDB, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite supports one writer; a single pooled connection avoids
	// lock churn entirely at the bridge's tiny write volume.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	db := &DB{DB: sqlDB, path: cfg.Path}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		sqlDB.Close() //nolint:errcheck // best effort on the error path
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}

	_ = os.Chmod(cfg.Path, filePermissions) //nolint:errcheck // file may not exist until first write

	return db, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// Path returns the filesystem path to the database file.
func (db *DB) Path() string {
	return db.path
}

// HealthCheck verifies the database answers a trivial query.
// The API health endpoint calls this on every request.
func (db *DB) HealthCheck(ctx context.Context) error {
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}
