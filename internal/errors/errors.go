// Package errors provides structured error types for the Cairn system.
// All errors include a category, code, message, and retryable flag for
// consistent error handling across components.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by system component.
type ErrorCategory string

const (
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryStatusLog  ErrorCategory = "STATUSLOG"
	ErrCategoryCommit     ErrorCategory = "COMMIT"
	ErrCategoryCatalog    ErrorCategory = "CATALOG"
	ErrCategoryStorage    ErrorCategory = "STORAGE"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Validation codes
	CodePreconditionRejected = "PRECONDITION_REJECTED"
	CodeInvalidTable         = "INVALID_TABLE"
	CodeEmptyLoad            = "EMPTY_LOAD"

	// Status log codes
	CodeStagingIO          = "STAGING_IO"
	CodeCorruptionDetected = "CORRUPTION_DETECTED"
	CodeEntryNotFound      = "ENTRY_NOT_FOUND"

	// Commit codes
	CodeActivationFailed = "ACTIVATION_FAILED"
	CodeRollbackIO       = "ROLLBACK_IO"

	// Catalog codes
	CodeTableNotFound = "TABLE_NOT_FOUND"
	CodeTableExists   = "TABLE_EXISTS"

	// Storage codes
	CodeUploadFailed   = "UPLOAD_FAILED"
	CodeDownloadFailed = "DOWNLOAD_FAILED"
	CodeObjectNotFound = "OBJECT_NOT_FOUND"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// CairnError is the structured error type used throughout the system.
type CairnError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *CairnError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *CairnError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *CairnError) Is(target error) bool {
	var t *CairnError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new CairnError.
func New(category ErrorCategory, code, message string) *CairnError {
	return &CairnError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new CairnError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *CairnError {
	return &CairnError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *CairnError) WithDetails(details map[string]interface{}) *CairnError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var ce *CairnError
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a CairnError.
func GetCategory(err error) ErrorCategory {
	var ce *CairnError
	if errors.As(err, &ce) {
		return ce.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a CairnError.
func GetCode(err error) string {
	var ce *CairnError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// isRetryable determines if an error code is retryable. Commit and
// rollback failures are never retried: the protocol is single-attempt.
func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryStorage && code == CodeUploadFailed:
		return true
	case category == ErrCategoryStorage && code == CodeDownloadFailed:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NewValidationError(code, message string) *CairnError {
	return New(ErrCategoryValidation, code, message)
}

func NewStatusLogError(code, message string, cause error) *CairnError {
	return Wrap(ErrCategoryStatusLog, code, message, cause)
}

func NewCommitError(code, message string, cause error) *CairnError {
	return Wrap(ErrCategoryCommit, code, message, cause)
}

func NewCatalogError(code, message string, cause error) *CairnError {
	return Wrap(ErrCategoryCatalog, code, message, cause)
}

func NewStorageError(code, message string, cause error) *CairnError {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewInternalError(message string, cause error) *CairnError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
