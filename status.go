package osal

import (
	"errors"
	"fmt"
)

// Status is the flat result code returned by every fallible operation.
// Operations return statuses rather than raising errors so that the public
// surface stays identical across backends.
type Status uint8

const (
	// StatusOk indicates success.
	StatusOk Status = iota

	// StatusNullPointer indicates a required pointer argument was nil.
	StatusNullPointer

	// StatusInvalidParam indicates an out-of-range argument or a stale,
	// foreign, or otherwise invalid handle.
	StatusInvalidParam

	// StatusTimeout indicates a blocking call gave up before its condition
	// was satisfied.
	StatusTimeout

	// StatusNoMemory indicates pool exhaustion or a per-kind capacity limit.
	StatusNoMemory

	// StatusIsr indicates a blocking call was attempted from interrupt
	// context.
	StatusIsr

	// StatusFull indicates a queue had no space and the caller declined to
	// wait.
	StatusFull

	// StatusEmpty indicates a queue had no items and the caller declined to
	// wait.
	StatusEmpty

	// StatusBusy indicates the resource is held or in a state that forbids
	// the operation (e.g. unlocking a mutex owned by another task).
	StatusBusy

	// StatusNotInit indicates the subsystem is disabled by configuration or
	// has not been initialized.
	StatusNotInit

	// StatusCorrupted indicates guard-value or control-block corruption was
	// detected. It is reported through the fault callback as well.
	StatusCorrupted

	// StatusStackOverflow indicates a task exceeded its stack budget.
	StatusStackOverflow
)

var statusNames = [...]string{
	StatusOk:            "ok",
	StatusNullPointer:   "null_pointer",
	StatusInvalidParam:  "invalid_param",
	StatusTimeout:       "timeout",
	StatusNoMemory:      "no_memory",
	StatusIsr:           "isr_context",
	StatusFull:          "full",
	StatusEmpty:         "empty",
	StatusBusy:          "busy",
	StatusNotInit:       "not_initialized",
	StatusCorrupted:     "corrupted",
	StatusStackOverflow: "stack_overflow",
}

// String returns the short lowercase name of the status.
func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// Ok reports whether the status is StatusOk.
func (s Status) Ok() bool { return s == StatusOk }

// Err converts the status to an error, nil for StatusOk. Use it at the
// boundary between the status-code surface and ordinary Go error handling.
func (s Status) Err() error {
	if s == StatusOk {
		return nil
	}
	return &Error{Status: s}
}

// Error is the structured error type wrapping a Status for callers that
// prefer Go errors over raw status codes.
type Error struct {
	Cause  error
	Op     string
	Detail string
	Status Status
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Status.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Detail != "" {
		msg += " - " + e.Detail
	}
	if e.Cause != nil {
		msg += " (caused by: " + e.Cause.Error() + ")"
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target matches this error. Two Errors match when their
// statuses match, so errors.Is(err, osal.StatusTimeout.Err()) works.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Status == t.Status
	}
	return false
}

// StatusOf extracts the Status carried by err. It returns StatusOk for nil
// and StatusInvalidParam for errors that carry no status.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOk
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return StatusInvalidParam
}

// Errorf builds an *Error with an operation name and formatted detail.
func Errorf(status Status, op, format string, args ...any) *Error {
	return &Error{
		Status: status,
		Op:     op,
		Detail: fmt.Sprintf(format, args...),
	}
}
