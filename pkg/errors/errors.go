// Package errors carries the error vocabulary shared by every layer.
// Services and entities return *AppError values; the HTTP error handler
// maps their types to statuses without inspecting messages.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
)

// ErrorType classifies an AppError
type ErrorType string

const (
	// Raised by domain rules
	ErrorTypeValidation       ErrorType = "VALIDATION"
	ErrorTypeNotFound         ErrorType = "NOT_FOUND"
	ErrorTypeConflict         ErrorType = "CONFLICT"
	ErrorTypeFlowIncompatible ErrorType = "FLOW_INCOMPATIBLE"
	ErrorTypeRepair           ErrorType = "REPAIR"

	// Raised by application services
	ErrorTypeInternal    ErrorType = "INTERNAL"
	ErrorTypeTimeout     ErrorType = "TIMEOUT"
	ErrorTypeUnavailable ErrorType = "UNAVAILABLE"

	// Raised by storage adapters
	ErrorTypePersistence ErrorType = "PERSISTENCE"
)

// AppError is the error representation every layer agrees on. The zero
// Details map stays nil until a caller attaches some; HTTPStatus and
// StackTrace never reach the wire directly.
type AppError struct {
	Type       ErrorType              `json:"type"`
	Message    string                 `json:"message"`
	Code       string                 `json:"code,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	StackTrace string                 `json:"-"`
	HTTPStatus int                    `json:"-"`
}

// Error renders "TYPE: message", appending the cause when one is set
func (e *AppError) Error() string {
	msg := string(e.Type) + ": " + e.Message
	if e.Cause != nil {
		msg += fmt.Sprintf(" (caused by: %v)", e.Cause)
	}
	return msg
}

// Unwrap exposes the cause to errors.Is and errors.As
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithCode attaches a machine-readable code
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// WithDetails attaches structured context for the error response body
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

// WithCause records the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

// newError builds an AppError with the trace rooted at the caller of
// the exported constructor.
func newError(errType ErrorType, status int, message string) *AppError {
	return &AppError{
		Type:       errType,
		Message:    message,
		HTTPStatus: status,
		StackTrace: captureStackTrace(),
	}
}

// captureStackTrace skips its own plumbing frames so traces start where
// the error was raised
func captureStackTrace() string {
	var pcs [32]uintptr
	n := runtime.Callers(4, pcs[:])

	var buf strings.Builder
	frames := runtime.CallersFrames(pcs[:n])
	for more := n > 0; more; {
		var frame runtime.Frame
		frame, more = frames.Next()
		fmt.Fprintf(&buf, "%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line)
	}
	return buf.String()
}

// Constructors

// NewValidationError flags input rejected by a domain rule
func NewValidationError(message string) *AppError {
	return newError(ErrorTypeValidation, http.StatusBadRequest, message)
}

// NewNotFoundError creates a not found error for the named resource
func NewNotFoundError(resource string) *AppError {
	return newError(ErrorTypeNotFound, http.StatusNotFound, resource+" not found")
}

// NewConflictError flags a write that lost against concurrent state
func NewConflictError(message string) *AppError {
	return newError(ErrorTypeConflict, http.StatusConflict, message)
}

// NewFlowIncompatibleError creates an error for a promotion between
// incompatible scope families
func NewFlowIncompatibleError(source, target string) *AppError {
	return newError(ErrorTypeFlowIncompatible, http.StatusUnprocessableEntity,
		fmt.Sprintf("promotion flow from %s to %s is not permitted", source, target))
}

// NewPersistenceError creates an error for a failed durable write
func NewPersistenceError(operation string, err error) *AppError {
	return newError(ErrorTypePersistence, http.StatusServiceUnavailable,
		fmt.Sprintf("persistence operation '%s' failed", operation)).WithCause(err)
}

// NewRepairError creates an error for an auto-repair pass that could not converge
func NewRepairError(message string, err error) *AppError {
	return newError(ErrorTypeRepair, http.StatusInternalServerError, message).WithCause(err)
}

// NewInternalError flags a failure with no more specific classification
func NewInternalError(message string) *AppError {
	return newError(ErrorTypeInternal, http.StatusInternalServerError, message)
}

// NewTimeoutError flags an operation that exceeded its deadline
func NewTimeoutError(operation string) *AppError {
	return newError(ErrorTypeTimeout, http.StatusRequestTimeout,
		fmt.Sprintf("operation '%s' timed out", operation))
}

// NewUnavailableError flags a dependency that refused work
func NewUnavailableError(service string) *AppError {
	return newError(ErrorTypeUnavailable, http.StatusServiceUnavailable,
		fmt.Sprintf("service '%s' is unavailable", service))
}

// Predicates

// GetAppError extracts the AppError from an error chain, or nil
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// IsAppError reports whether the chain carries an AppError
func IsAppError(err error) bool {
	return GetAppError(err) != nil
}

// IsType reports whether the chain carries an AppError of the given type
func IsType(err error, errType ErrorType) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Type == errType
}

// IsNotFound reports whether err is a not found error
func IsNotFound(err error) bool {
	return IsType(err, ErrorTypeNotFound)
}

// IsValidation reports whether err is a validation error
func IsValidation(err error) bool {
	return IsType(err, ErrorTypeValidation)
}

// IsConflict reports whether err is a conflict error
func IsConflict(err error) bool {
	return IsType(err, ErrorTypeConflict)
}

// IsFlowIncompatible reports whether err is a flow compatibility error
func IsFlowIncompatible(err error) bool {
	return IsType(err, ErrorTypeFlowIncompatible)
}

// IsPersistence reports whether err is a persistence error
func IsPersistence(err error) bool {
	return IsType(err, ErrorTypePersistence)
}

// IsRepair reports whether err is a repair error
func IsRepair(err error) bool {
	return IsType(err, ErrorTypeRepair)
}

// IsInternal reports whether err is an internal error
func IsInternal(err error) bool {
	return IsType(err, ErrorTypeInternal)
}

// Wrap adds context to an error. A classified error keeps its type and
// status; anything else becomes an internal error with err as cause.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	if appErr := GetAppError(err); appErr != nil {
		appErr.Message = message + ": " + appErr.Message
		return appErr
	}
	return NewInternalError(message).WithCause(err)
}

// Wrapf wraps an error with a formatted message
func Wrapf(err error, format string, args ...interface{}) error {
	return Wrap(err, fmt.Sprintf(format, args...))
}
