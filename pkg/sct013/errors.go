package sct013

import "errors"

var (
	// ErrNoSamples is returned when an estimation is asked for zero samples.
	ErrNoSamples = errors.New("sample count must be > 0")
	// ErrInvalidCalibration is returned when the calibration cannot convert samples.
	ErrInvalidCalibration = errors.New("invalid calibration")
)
