package settings

import "errors"

var (
	// ErrNotFound is returned when no override exists for a device ID.
	ErrNotFound = errors.New("capacity override not found")

	// ErrInvalidCapacity is returned when a capacity value is outside
	// the accepted range.
	ErrInvalidCapacity = errors.New("capacity must be between 0.1 and 100 kWh")
)
