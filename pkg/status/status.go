// Package status defines the discrete status codes returned by every program
// run and the error type that carries them.
//
// Codes fall into four classes:
//
//   - Configuration: detected before any hardware access. Hardware state is untouched.
//   - Hardware: a force/measure/pulse/sweep/route call failed during the run.
//     The channel has been parked at 0 V before the error is returned.
//   - Degraded: the run completed and returned usable numbers, but one of the
//     measurements was substituted (see the pulse resistance rule).
//   - Cancelled: the caller cancelled a monitor between iterations.
//
// Callers must inspect the code before trusting any output arrays.
package status

import (
	"context"
	"errors"
	"fmt"
)

// Code is a machine-readable status code.
type Code int

const (
	OK Code = 0

	// Configuration errors.
	CodeInvalidProgram           Code = -1
	CodeSlewRate                 Code = -2
	CodeSizeMismatch             Code = -3
	CodeRange                    Code = -4
	CodeChannelNotConfigured     Code = -5
	CodeHighChannelNotConfigured Code = -6
	CodeLowChannelNotConfigured  Code = -7
	CodeInvalidBuffer            Code = -8
	CodeBufferMismatch           Code = -9

	// Hardware-call errors.
	CodeConfigureFailed      Code = -20
	CodeForceFailed          Code = -21
	CodeMeasureCurrentFailed Code = -22
	CodeMeasureVoltageFailed Code = -23
	CodePulseFailed          Code = -24
	CodeSweepFailed          Code = -25
	CodeRouteFailed          Code = -26

	// Degraded results.
	CodePulseMeasureFailed Code = -40

	CodeCancelled Code = -50
	CodeInternal  Code = -99
)

var codeNames = map[Code]string{
	OK:                           "OK",
	CodeInvalidProgram:           "INVALID_PROGRAM",
	CodeSlewRate:                 "SLEW_RATE",
	CodeSizeMismatch:             "SIZE_MISMATCH",
	CodeRange:                    "RANGE",
	CodeChannelNotConfigured:     "CHANNEL_NOT_CONFIGURED",
	CodeHighChannelNotConfigured: "HIGH_CHANNEL_NOT_CONFIGURED",
	CodeLowChannelNotConfigured:  "LOW_CHANNEL_NOT_CONFIGURED",
	CodeInvalidBuffer:            "INVALID_BUFFER",
	CodeBufferMismatch:           "BUFFER_MISMATCH",
	CodeConfigureFailed:          "CONFIGURE_FAILED",
	CodeForceFailed:              "FORCE_FAILED",
	CodeMeasureCurrentFailed:     "MEASURE_CURRENT_FAILED",
	CodeMeasureVoltageFailed:     "MEASURE_VOLTAGE_FAILED",
	CodePulseFailed:              "PULSE_FAILED",
	CodeSweepFailed:              "SWEEP_FAILED",
	CodeRouteFailed:              "ROUTE_FAILED",
	CodePulseMeasureFailed:       "PULSE_MEASURE_FAILED",
	CodeCancelled:                "CANCELLED",
	CodeInternal:                 "INTERNAL",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("CODE(%d)", int(c))
}

// MarshalText encodes the code by name so results stay readable in JSON.
func (c Code) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText accepts the names produced by MarshalText.
func (c *Code) UnmarshalText(b []byte) error {
	for code, name := range codeNames {
		if name == string(b) {
			*c = code
			return nil
		}
	}
	return fmt.Errorf("unknown status code %q", string(b))
}

// Class groups codes by the stage that produced them.
type Class string

const (
	ClassOK            Class = "ok"
	ClassConfiguration Class = "configuration"
	ClassHardware      Class = "hardware"
	ClassDegraded      Class = "degraded"
	ClassCancelled     Class = "cancelled"
	ClassInternal      Class = "internal"
)

// Class reports which stage the code belongs to.
func (c Code) Class() Class {
	switch {
	case c == OK:
		return ClassOK
	case c <= CodeInvalidProgram && c >= CodeBufferMismatch:
		return ClassConfiguration
	case c <= CodeConfigureFailed && c >= CodeRouteFailed:
		return ClassHardware
	case c == CodePulseMeasureFailed:
		return ClassDegraded
	case c == CodeCancelled:
		return ClassCancelled
	default:
		return ClassInternal
	}
}

// Error is a status code with a message and optional cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates an Error around an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// CodeOf extracts the status code from err. A nil error is OK, context
// cancellation is CodeCancelled and anything else unknown is CodeInternal.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CodeCancelled
	}
	return CodeInternal
}

// Message returns the message without the code prefix.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
