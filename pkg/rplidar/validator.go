// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rplidar

import "fmt"

// AnomalyType represents the kinds of implausible scan point values.
// Records that fail to decode are classified by their error instead.
type AnomalyType int

const (
	AnomalyZeroDistance AnomalyType = iota
	AnomalyAngleRange
)

// MaxAngleQ6 is one full revolution in q6 fixed point
const MaxAngleQ6 = 360 * 64

// ValidationError represents a scan point validation failure
type ValidationError struct {
	Type    AnomalyType
	Message string
}

// Error implements the error interface
func (v ValidationError) Error() string {
	return v.Message
}

// ValidateScanPoint flags scan points that decoded cleanly but carry values
// the sensor should never report for a usable measurement.
// Returns a slice of validation errors (empty if the point is usable)
func ValidateScanPoint(p ScanPoint) []ValidationError {
	errors := []ValidationError{}

	if p.DistanceQ2 == 0 {
		errors = append(errors, ValidationError{
			Type:    AnomalyZeroDistance,
			Message: fmt.Sprintf("No return at angle %.2f°", p.AngleDegrees()),
		})
	}

	if p.AngleQ6 >= MaxAngleQ6 {
		errors = append(errors, ValidationError{
			Type:    AnomalyAngleRange,
			Message: fmt.Sprintf("Angle out of range (%.2f° >= 360°)", p.AngleDegrees()),
		})
	}

	return errors
}
