// Package validation runs the statsd versus BatteryStats checks against a
// device and reports their outcome.
package validation

import (
	"fmt"
	"time"

	pkgerrors "github.com/pkg/errors"
)

// Status is the outcome of one check.
type Status string

const (
	StatusPass  Status = "pass"
	StatusFail  Status = "fail"
	StatusSkip  Status = "skip"
	StatusError Status = "error"
)

// Measurement is the pair of values a check compared.
type Measurement struct {
	Statsd       float64 `json:"statsd"`
	BatteryStats float64 `json:"batterystats"`
}

// Ratio returns statsd/batterystats, or 0 when batterystats is 0.
func (m Measurement) Ratio() float64 {
	if m.BatteryStats == 0 {
		return 0
	}
	return m.Statsd / m.BatteryStats
}

// Result is the outcome of one check on one device.
type Result struct {
	Check       string       `json:"check"`
	Serial      string       `json:"serial"`
	Status      Status       `json:"status"`
	Message     string       `json:"message,omitempty"`
	Start       time.Time    `json:"start"`
	End         time.Time    `json:"end"`
	Measurement *Measurement `json:"measurement,omitempty"`
}

// Duration is how long the check took, teardown included.
func (r Result) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Passed reports whether the check passed or was skipped.
func (r Result) Passed() bool {
	return r.Status == StatusPass || r.Status == StatusSkip
}

// failure is an assertion that did not hold. It is reported as StatusFail.
type failure struct {
	msg string
}

func (f *failure) Error() string { return f.msg }

// skip means the device cannot run the check.
type skip struct {
	msg string
}

func (s *skip) Error() string { return s.msg }

// Failf returns an error that marks the check as failed.
func Failf(format string, args ...interface{}) error {
	return &failure{msg: fmt.Sprintf(format, args...)}
}

// Skipf returns an error that marks the check as skipped.
func Skipf(format string, args ...interface{}) error {
	return &skip{msg: fmt.Sprintf(format, args...)}
}

// StatusOf maps a check error to a Status. Errors that are neither a
// failure nor a skip are infrastructure errors.
func StatusOf(err error) Status {
	if err == nil {
		return StatusPass
	}
	var f *failure
	if pkgerrors.As(err, &f) {
		return StatusFail
	}
	var s *skip
	if pkgerrors.As(err, &s) {
		return StatusSkip
	}
	return StatusError
}

// AllPassed reports whether no result failed or errored.
func AllPassed(results []Result) bool {
	for _, r := range results {
		if !r.Passed() {
			return false
		}
	}
	return true
}
