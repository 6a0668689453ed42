// Package errors provides structured error types for rtsync.
// All errors include a category, code, message, and retryable flag so
// callers can tell a caller bug from a transport outage.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by the surface that produced them.
type ErrorCategory string

const (
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryTransport  ErrorCategory = "TRANSPORT"
	ErrCategorySource     ErrorCategory = "SOURCE"
	ErrCategoryState      ErrorCategory = "STATE"
	ErrCategoryDrain      ErrorCategory = "DRAIN"
	ErrCategoryJournal    ErrorCategory = "JOURNAL"
	ErrCategoryStorage    ErrorCategory = "STORAGE"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Validation codes
	CodeInvalidValue    = "INVALID_VALUE"
	CodeInvalidIndex    = "INVALID_INDEX"
	CodeUnsupportedType = "UNSUPPORTED_TYPE"

	// Transport codes
	CodeConnectFailed = "CONNECT_FAILED"
	CodeCommandFailed = "COMMAND_FAILED"
	CodeQueryFailed   = "QUERY_FAILED"

	// Source codes
	CodeFetchFailed    = "FETCH_FAILED"
	CodeProducerFailed = "PRODUCER_FAILED"

	// State codes
	CodeFlagReadFailed  = "FLAG_READ_FAILED"
	CodeFlagWriteFailed = "FLAG_WRITE_FAILED"

	// Drain codes
	CodeCursorRegression = "CURSOR_REGRESSION"
	CodeMissingKey       = "MISSING_KEY"

	// Journal codes
	CodeAppendFailed = "APPEND_FAILED"
	CodeCorruptEntry = "CORRUPT_ENTRY"
	CodeReplayFailed = "REPLAY_FAILED"

	// Storage codes
	CodeUploadFailed   = "UPLOAD_FAILED"
	CodeObjectNotFound = "OBJECT_NOT_FOUND"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// SyncError is the structured error type used throughout the module.
type SyncError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *SyncError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *SyncError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *SyncError) Is(target error) bool {
	var t *SyncError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new SyncError.
func New(category ErrorCategory, code, message string) *SyncError {
	return &SyncError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new SyncError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *SyncError {
	return &SyncError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *SyncError) WithDetails(details map[string]interface{}) *SyncError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
// Nothing in this module retries on its own; the flag tells operators
// whether re-invoking the whole operation is worthwhile.
func IsRetryable(err error) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a SyncError.
func GetCategory(err error) ErrorCategory {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a SyncError.
func GetCode(err error) string {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryTransport && code == CodeConnectFailed:
		return true
	case category == ErrCategoryTransport && code == CodeCommandFailed:
		return true
	case category == ErrCategoryTransport && code == CodeQueryFailed:
		return true
	case category == ErrCategoryStorage && code == CodeUploadFailed:
		return true
	case category == ErrCategoryState && code == CodeFlagReadFailed:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NewValidationError(code, message string) *SyncError {
	return New(ErrCategoryValidation, code, message)
}

func NewTransportError(code, message string, cause error) *SyncError {
	return Wrap(ErrCategoryTransport, code, message, cause)
}

func NewSourceError(code, message string, cause error) *SyncError {
	return Wrap(ErrCategorySource, code, message, cause)
}

func NewStateError(code, message string, cause error) *SyncError {
	return Wrap(ErrCategoryState, code, message, cause)
}

func NewDrainError(code, message string) *SyncError {
	return New(ErrCategoryDrain, code, message)
}

func NewJournalError(code, message string, cause error) *SyncError {
	return Wrap(ErrCategoryJournal, code, message, cause)
}

func NewStorageError(code, message string, cause error) *SyncError {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewInternalError(message string, cause error) *SyncError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
