// Package errors provides standardized error handling patterns for the
// workbench processing-graph engine. It includes error classification,
// standard error variables, and helper functions for consistent error
// wrapping and classification across the system.
package errors

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorInvalid represents errors due to invalid input or a rejected
	// graph mutation; the graph is left unchanged
	ErrorInvalid ErrorClass = iota
	// ErrorFault represents a block-level computation fault isolated to
	// the faulting block
	ErrorFault
	// ErrorFatal represents programmer errors that should fail fast
	ErrorFatal
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorInvalid:
		return "invalid"
	case ErrorFault:
		return "fault"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Standard error variables for common conditions
var (
	// Graph mutation errors
	ErrDuplicateName     = errors.New("name already in use")
	ErrNotFound          = errors.New("not found")
	ErrTypeMismatch      = errors.New("incompatible port types")
	ErrFanInConflict     = errors.New("input port already has a source")
	ErrCycle             = errors.New("connection would create a cycle")
	ErrReentrantMutation = errors.New("topology mutation during propagation")

	// Graph description errors
	ErrSchema = errors.New("malformed graph description")

	// Lifecycle errors
	ErrAlreadyStarted = errors.New("already started")
	ErrNotStarted     = errors.New("not started")
	ErrDetached       = errors.New("block detached from graph")

	// Port and property errors
	ErrUnknownPort     = errors.New("unknown port")
	ErrUnknownProperty = errors.New("unknown property")
)

// ClassifiedError wraps an error with its classification
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// IsInvalid checks if an error is due to invalid input or a rejected mutation
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorInvalid
	}

	return errors.Is(err, ErrDuplicateName) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrTypeMismatch) ||
		errors.Is(err, ErrFanInConflict) ||
		errors.Is(err, ErrCycle) ||
		errors.Is(err, ErrReentrantMutation) ||
		errors.Is(err, ErrSchema)
}

// IsFault checks if an error is an isolated block-level computation fault
func IsFault(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorFault
	}

	return false
}

// IsFatal checks if an error represents a programmer error that should
// fail fast
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorFatal
	}

	return false
}

// Classify returns the error class for an error
func Classify(err error) ErrorClass {
	if IsFatal(err) {
		return ErrorFatal
	}
	if IsFault(err) {
		return ErrorFault
	}
	return ErrorInvalid
}

// newClassified creates a new classified error
// This is an internal helper - use WrapInvalid(), WrapFault(), or WrapFatal() instead.
func newClassified(class ErrorClass, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapInvalid wraps an error as invalid with context
func WrapInvalid(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorInvalid, wrappedErr, component, method, wrappedErr.Error())
}

// WrapFault wraps an error as a block-level fault with context
func WrapFault(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorFault, wrappedErr, component, method, wrappedErr.Error())
}

// WrapFatal wraps an error as fatal with context
func WrapFatal(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorFatal, wrappedErr, component, method, wrappedErr.Error())
}
