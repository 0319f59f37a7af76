package domain

import (
	"fmt"
	"math"
)

// Coordinate represents a geographic coordinate (WGS 84).
// The zero value means the position is not known yet.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// IsZero reports whether the coordinate has not been set.
func (c Coordinate) IsZero() bool {
	return c.Latitude == 0 && c.Longitude == 0
}

// Validate checks the coordinate is finite and within WGS 84 bounds.
func (c Coordinate) Validate() error {
	if !finite(c.Latitude) {
		return NewValidationError("latitude", "must be a finite number")
	}
	if !finite(c.Longitude) {
		return NewValidationError("longitude", "must be a finite number")
	}
	if c.Latitude < -90 || c.Latitude > 90 {
		return NewValidationError("latitude", fmt.Sprintf("must be between -90 and 90, got %g", c.Latitude))
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return NewValidationError("longitude", fmt.Sprintf("must be between -180 and 180, got %g", c.Longitude))
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
