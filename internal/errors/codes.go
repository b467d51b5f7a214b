// Package errors provides structured error handling for maktaba.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 3XX: Dependency / network errors (degradable)
//   - 4XX: Caller input errors (fatal to the request)
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryDependency indicates an external backend failing or slow.
	CategoryDependency Category = "DEPENDENCY"
	// CategoryValidation indicates caller input errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates the request cannot proceed.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates the operation failed but the request continues.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Dependency errors (300-399). These always degrade: the orchestrator
	// substitutes an empty result and keeps going.
	ErrCodeBackendTimeout     = "ERR_301_BACKEND_TIMEOUT"
	ErrCodeBackendUnavailable = "ERR_302_BACKEND_UNAVAILABLE"
	ErrCodeIndexNotReady      = "ERR_303_INDEX_NOT_READY"
	ErrCodeBadResponse        = "ERR_304_MALFORMED_RESPONSE"

	// Validation errors (400-499). Fatal to the request, surfaced before
	// any retrieval begins.
	ErrCodeInvalidInput = "ERR_401_INVALID_INPUT"
	ErrCodeQueryEmpty   = "ERR_404_QUERY_EMPTY"
	ErrCodeQueryTooLong = "ERR_405_QUERY_TOO_LONG"
	ErrCodeInvalidMode  = "ERR_406_INVALID_MODE"

	// Internal errors (500-599)
	ErrCodeInternal        = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed = "ERR_502_EMBEDDING_FAILED"
	ErrCodeSearchFailed    = "ERR_503_SEARCH_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}
	switch code[4] {
	case '1':
		return CategoryConfig
	case '3':
		return CategoryDependency
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode derives default severity from the code's category.
// Validation errors abort the request; dependency errors degrade, except
// for a missing index, which no amount of degradation can paper over.
func severityFromCode(code string) Severity {
	if code == ErrCodeIndexNotReady {
		return SeverityFatal
	}
	switch categoryFromCode(code) {
	case CategoryValidation:
		return SeverityFatal
	case CategoryDependency:
		return SeverityWarning
	default:
		return SeverityError
	}
}
