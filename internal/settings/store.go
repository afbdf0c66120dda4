package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Accepted capacity range in kWh. The smallest supported pack is well
// above 0.1 and nothing residential approaches 100.
const (
	MinCapacityKWh = 0.1
	MaxCapacityKWh = 100.0
)

// CapacityOverride is one operator-recorded battery capacity.
type CapacityOverride struct {
	DevID       string    `json:"devid"`
	CapacityKWh float64   `json:"capacity_kwh"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Store defines the persistence interface for capacity overrides.
type Store interface {
	Get(ctx context.Context, devID string) (*CapacityOverride, error)
	Set(ctx context.Context, devID string, capacityKWh float64) error
	Delete(ctx context.Context, devID string) error
	All(ctx context.Context) (map[string]float64, error)
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLite-backed settings store.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Get returns the override for devID, or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, devID string) (*CapacityOverride, error) {
	const query = `SELECT devid, capacity_kwh, updated_at FROM capacity_overrides WHERE devid = ?`

	var o CapacityOverride
	var updatedAt string
	err := s.db.QueryRowContext(ctx, query, devID).Scan(&o.DevID, &o.CapacityKWh, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("device %s: %w", devID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying override for %s: %w", devID, err)
	}
	o.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled
	return &o, nil
}

// Set records (or replaces) the capacity override for devID.
func (s *SQLiteStore) Set(ctx context.Context, devID string, capacityKWh float64) error {
	if capacityKWh < MinCapacityKWh || capacityKWh > MaxCapacityKWh {
		return fmt.Errorf("%.3f kWh: %w", capacityKWh, ErrInvalidCapacity)
	}

	const query = `INSERT INTO capacity_overrides (devid, capacity_kwh, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(devid) DO UPDATE SET
			capacity_kwh = excluded.capacity_kwh,
			updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		devID, capacityKWh, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("storing override for %s: %w", devID, err)
	}
	return nil
}

// Delete removes the override for devID. Returns ErrNotFound if none exists.
func (s *SQLiteStore) Delete(ctx context.Context, devID string) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM capacity_overrides WHERE devid = ?", devID)
	if err != nil {
		return fmt.Errorf("deleting override for %s: %w", devID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("device %s: %w", devID, ErrNotFound)
	}
	return nil
}

// All returns every override keyed by device ID. The poller calls this
// once per cycle to stamp capacities onto fresh device records.
func (s *SQLiteStore) All(ctx context.Context) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT devid, capacity_kwh FROM capacity_overrides")
	if err != nil {
		return nil, fmt.Errorf("querying overrides: %w", err)
	}
	defer rows.Close()

	overrides := make(map[string]float64)
	for rows.Next() {
		var devID string
		var capacity float64
		if err := rows.Scan(&devID, &capacity); err != nil {
			return nil, fmt.Errorf("scanning override row: %w", err)
		}
		overrides[devID] = capacity
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating overrides: %w", err)
	}
	return overrides, nil
}
