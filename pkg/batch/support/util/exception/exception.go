// Package exception provides the error type shared by every batch component.
// A BatchError records which step or component failed and keeps the cause
// reachable through errors.Is and errors.As.
package exception

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// BatchError is an error raised by a step, reader, writer or tasklet.
type BatchError struct {
	// Module is the step or component that failed ("trusted", "SqlTableWriter", ...).
	Module string
	// Message is a concise description of the failure.
	Message string
	// OriginalErr is the wrapped cause, if any.
	OriginalErr error
	// StackTrace is captured at construction, for DEBUG logging.
	StackTrace string
}

// NewBatchError creates a BatchError wrapping originalErr, which may be nil.
func NewBatchError(module, message string, originalErr error) *BatchError {
	return &BatchError{
		Module:      module,
		Message:     message,
		OriginalErr: originalErr,
		StackTrace:  captureStack(),
	}
}

// NewBatchErrorf creates a BatchError with a formatted message. A trailing error
// argument becomes the wrapped cause instead of a format operand.
//
//	NewBatchErrorf("writer", "write to %s failed", table, err)
func NewBatchErrorf(module, format string, a ...interface{}) *BatchError {
	var originalErr error
	if len(a) > 0 {
		if err, ok := a[len(a)-1].(error); ok {
			originalErr = err
			a = a[:len(a)-1]
		}
	}
	return &BatchError{
		Module:      module,
		Message:     fmt.Sprintf(format, a...),
		OriginalErr: originalErr,
		StackTrace:  captureStack(),
	}
}

func captureStack() string {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Module, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", e.Module, e.Message)
}

// Unwrap returns the original error for errors.Unwrap.
func (e *BatchError) Unwrap() error {
	return e.OriginalErr
}

// IsBatchError reports whether err, or anything it wraps, is a BatchError.
func IsBatchError(err error) bool {
	var be *BatchError
	return errors.As(err, &be)
}

// IsErrorOfType walks the error chain and reports whether any link's message
// contains the given name. Used for driver errors that have no exported sentinel.
func IsErrorOfType(err error, name string) bool {
	for current := err; current != nil; current = errors.Unwrap(current) {
		if strings.Contains(current.Error(), name) {
			return true
		}
	}
	return false
}

// ExtractErrorMessage returns the Message of the outermost BatchError,
// or the plain Error() string for anything else.
func ExtractErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var be *BatchError
	if errors.As(err, &be) {
		return be.Message
	}
	return err.Error()
}
