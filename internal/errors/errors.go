// Package errors provides structured error types for the Learner Information
// System. All errors include a category, code, message, and retryable flag for
// consistent handling by the HTTP surface, the CLI and the aggregation core.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by failure kind.
type ErrorCategory string

const (
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryNotFound   ErrorCategory = "NOT_FOUND"
	ErrCategoryStorage    ErrorCategory = "STORAGE"
	ErrCategoryConflict   ErrorCategory = "CONFLICT"
	ErrCategoryMalformed  ErrorCategory = "MALFORMED"
	ErrCategoryAuth       ErrorCategory = "AUTH"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Validation codes
	CodeMissingField     = "MISSING_FIELD"
	CodeInvalidCount     = "INVALID_COUNT"
	CodeInvalidYear      = "INVALID_YEAR"
	CodeInvalidGrade     = "INVALID_GRADE"
	CodeInvalidGender    = "INVALID_GENDER"
	CodeInvalidSchema    = "INVALID_SCHEMA"
	CodeUnsupportedInput = "UNSUPPORTED_INPUT"
	CodeInvalidRequest   = "INVALID_REQUEST"

	// Not-found codes
	CodeSchoolNotFound = "SCHOOL_NOT_FOUND"
	CodeYearNotFound   = "YEAR_NOT_FOUND"
	CodeObjectNotFound = "OBJECT_NOT_FOUND"

	// Storage codes
	CodeReadFailed  = "READ_FAILED"
	CodeWriteFailed = "WRITE_FAILED"

	// Conflict codes
	CodeWriteConflict = "WRITE_CONFLICT"

	// Malformed codes
	CodeParseError = "PARSE_ERROR"

	// Auth codes
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeDuplicateAccount   = "DUPLICATE_ACCOUNT"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// LISError is the structured error type used throughout the system.
type LISError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *LISError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *LISError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *LISError) Is(target error) bool {
	var t *LISError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new LISError.
func New(category ErrorCategory, code, message string) *LISError {
	return &LISError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new LISError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *LISError {
	return &LISError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *LISError) WithDetails(details map[string]interface{}) *LISError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var le *LISError
	if errors.As(err, &le) {
		return le.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a LISError.
func GetCategory(err error) ErrorCategory {
	var le *LISError
	if errors.As(err, &le) {
		return le.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a LISError.
func GetCode(err error) string {
	var le *LISError
	if errors.As(err, &le) {
		return le.Code
	}
	return ""
}

// IsNotFound reports whether err is in the NOT_FOUND category.
func IsNotFound(err error) bool {
	return GetCategory(err) == ErrCategoryNotFound
}

// IsValidation reports whether err is in the VALIDATION category.
func IsValidation(err error) bool {
	return GetCategory(err) == ErrCategoryValidation
}

func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryStorage && code == CodeReadFailed:
		return true
	case category == ErrCategoryStorage && code == CodeWriteFailed:
		return true
	case category == ErrCategoryConflict && code == CodeWriteConflict:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NewValidationError(code, message string) *LISError {
	return New(ErrCategoryValidation, code, message)
}

func NewNotFoundError(code, message string) *LISError {
	return New(ErrCategoryNotFound, code, message)
}

func NewStorageError(code, message string, cause error) *LISError {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewConflictError(message string, cause error) *LISError {
	return Wrap(ErrCategoryConflict, CodeWriteConflict, message, cause)
}

func NewMalformedError(message string, cause error) *LISError {
	return Wrap(ErrCategoryMalformed, CodeParseError, message, cause)
}

func NewAuthError(code, message string) *LISError {
	return New(ErrCategoryAuth, code, message)
}

func NewInternalError(message string, cause error) *LISError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
