package errors

import (
	stderrors "errors"
	"fmt"
)

// Generic error codes
const (
	ErrInternal     = "INTERNAL"
	ErrNotFound     = "NOT_FOUND"
	ErrInvalidInput = "INVALID_INPUT"
	ErrUnauthorized = "UNAUTHORIZED"
	ErrConflict     = "CONFLICT"
)

// Registry error codes. Each fallible step of a registry cycle maps to one of these.
const (
	ErrPathResolution  = "PATH_RESOLUTION_FAILED"
	ErrDirectoryCreate = "DIRECTORY_CREATE_FAILED"
	ErrRead            = "READ_FAILED"
	ErrWrite           = "WRITE_FAILED"
	ErrSerialization   = "SERIALIZATION_FAILED"
	ErrDuplicateID     = "DUPLICATE_ID"
)

// AppError is a standardized error type for the application
type AppError struct {
	Code       string
	Message    string
	Op         string // Operation where the error occurred
	Err        error  // Underlying error
	Suggestion string // Actionable suggestion for the user
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s (cause: %v)", e.Code, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Op, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError
func New(code, op, message string) *AppError {
	return &AppError{
		Code:    code,
		Op:      op,
		Message: message,
	}
}

// Wrap wraps an existing error into an AppError
func Wrap(err error, code, op, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    code,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// WrapWithSuggestion wraps an existing error with a suggestion
func WrapWithSuggestion(err error, code, op, message, suggestion string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:       code,
		Op:         op,
		Message:    message,
		Err:        err,
		Suggestion: suggestion,
	}
}

// WithSuggestion adds a suggestion to an existing AppError
func (e *AppError) WithSuggestion(suggestion string) *AppError {
	e.Suggestion = suggestion
	return e
}

// IsCode reports whether any AppError in err's chain carries code.
func IsCode(err error, code string) bool {
	return CodeOf(err) == code
}

// CodeOf returns the code of the outermost AppError in err's chain, or "" if there is none.
func CodeOf(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// As is errors.As, re-exported so callers importing this package under the
// name "errors" keep access to it.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Is is errors.Is, re-exported for the same reason as As.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}
