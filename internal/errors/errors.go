package errors

import (
	"fmt"
)

// MaktabaError is the structured error type for maktaba. It provides the
// code, category and severity the orchestrator uses to decide between
// degrading and aborting a request.
type MaktabaError struct {
	// Code is the unique error code (e.g., "ERR_404_QUERY_EMPTY").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Dependency, Validation, Internal).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs
	// (sub-call, corpus, expanded query index).
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error
}

// Error implements the error interface.
func (e *MaktabaError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *MaktabaError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with MaktabaError.
func (e *MaktabaError) Is(target error) bool {
	if t, ok := target.(*MaktabaError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *MaktabaError) WithDetail(key, value string) *MaktabaError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new MaktabaError with the given code and message.
// Category and severity are derived from the code.
func New(code string, message string, cause error) *MaktabaError {
	return &MaktabaError{
		Code:     code,
		Message:  message,
		Category: categoryFromCode(code),
		Severity: severityFromCode(code),
		Cause:    cause,
	}
}

// Wrap creates a MaktabaError from an existing error.
// The error's message becomes the MaktabaError message.
func Wrap(code string, err error) *MaktabaError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ValidationError creates a caller-input error. These abort the request
// before any retrieval begins.
func ValidationError(code string, message string) *MaktabaError {
	return New(code, message, nil)
}

// DependencyError creates a dependency error. These never abort a request
// on their own; the failing sub-call degrades to an empty result.
func DependencyError(message string, cause error) *MaktabaError {
	return New(ErrCodeBackendUnavailable, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *MaktabaError {
	return New(ErrCodeInternal, message, cause)
}

// IsFatal reports whether err should abort the whole request.
func IsFatal(err error) bool {
	if e, ok := err.(*MaktabaError); ok {
		return e.Severity == SeverityFatal
	}
	return false
}
