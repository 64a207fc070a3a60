// Package errors defines the error taxonomy shared by stackspy components.
package errors

import (
	stderrors "errors"
	"fmt"
	"io/fs"

	"golang.org/x/sys/unix"
)

// ErrorCode represents a stackspy error code.
type ErrorCode string

const (
	ErrConfig        ErrorCode = "CONFIG"            // invalid or missing option, fatal before sampling
	ErrAttach        ErrorCode = "ATTACH"            // could not attach after the retry budget
	ErrPermission    ErrorCode = "PERMISSION_DENIED" // access to the target was refused
	ErrCapture       ErrorCode = "CAPTURE"           // one capture attempt failed
	ErrSerialization ErrorCode = "SERIALIZATION"     // raw snapshot I/O or invalid time window
	ErrRender        ErrorCode = "RENDER"            // flame graph renderer failed
)

// SpyError is a structured error carrying a code and an optional cause.
type SpyError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *SpyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *SpyError) Unwrap() error {
	return e.Err
}

// NewConfig creates an error for an invalid configuration value.
func NewConfig(msg string) *SpyError {
	return &SpyError{Code: ErrConfig, Message: msg}
}

// NewAttach creates an error for an exhausted attach retry budget.
func NewAttach(pid, attempts int, err error) *SpyError {
	return &SpyError{
		Code:    ErrAttach,
		Message: fmt.Sprintf("failed to attach to process %d after %d attempts", pid, attempts),
		Err:     err,
	}
}

// NewPermission creates an error for a refused access to the target process.
func NewPermission(msg string, err error) *SpyError {
	return &SpyError{Code: ErrPermission, Message: msg, Err: err}
}

// NewCapture creates an error for a single failed capture attempt.
func NewCapture(err error) *SpyError {
	return &SpyError{Code: ErrCapture, Message: "failed to capture stack traces", Err: err}
}

// NewSerialization creates an error for raw snapshot I/O.
func NewSerialization(msg string, err error) *SpyError {
	return &SpyError{Code: ErrSerialization, Message: msg, Err: err}
}

// NewInvalidInterval creates an error for a time window whose start is after its end.
func NewInvalidInterval(start, end uint64) *SpyError {
	return &SpyError{
		Code:    ErrSerialization,
		Message: fmt.Sprintf("invalid time interval [%d, %d): start must be before end", start, end),
	}
}

// NewRender creates an error for a flame graph rendering failure.
func NewRender(path string, err error) *SpyError {
	return &SpyError{
		Code:    ErrRender,
		Message: fmt.Sprintf("failed to render flame graph %q", path),
		Err:     err,
	}
}

// Is checks if any error in err's chain is a SpyError with the given code.
func Is(err error, code ErrorCode) bool {
	var sErr *SpyError
	for err != nil {
		if !stderrors.As(err, &sErr) {
			return false
		}
		if sErr.Code == code {
			return true
		}
		err = sErr.Err
	}
	return false
}

// PermissionDenied reports whether err's cause chain contains an access-denied condition.
func PermissionDenied(err error) bool {
	if err == nil {
		return false
	}
	if Is(err, ErrPermission) {
		return true
	}
	return stderrors.Is(err, fs.ErrPermission) ||
		stderrors.Is(err, unix.EPERM) ||
		stderrors.Is(err, unix.EACCES)
}

// Chain returns the messages of err and each wrapped cause, outermost first.
func Chain(err error) []string {
	var msgs []string
	for err != nil {
		msgs = append(msgs, err.Error())
		err = stderrors.Unwrap(err)
	}
	return msgs
}
