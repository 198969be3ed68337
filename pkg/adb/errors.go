package adb

import "errors"

var (
	// ErrDeviceNotFound is returned when adb cannot reach the device.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrInstrumentationFailed is returned when a device-side workload reports failures.
	ErrInstrumentationFailed = errors.New("instrumentation failed")
)
