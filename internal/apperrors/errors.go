// Package apperrors defines the closed error taxonomy carried across
// OrderFlow's pipeline boundaries. Every caller-facing failure is one
// of these kinds; infrastructure failures stay wrapped in
// pkg/shared/errors until they cross into a caller-facing result.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorType is the closed set of failure kinds the pipeline can
// surface to a caller.
type ErrorType string

const (
	// Input errors.
	ErrorTypeInvalidFile         ErrorType = "invalid_file"
	ErrorTypeUnsupportedMimeType ErrorType = "unsupported_mime_type"
	ErrorTypeFileTooLarge        ErrorType = "file_too_large"
	ErrorTypeEmptyFile           ErrorType = "empty_file"
	ErrorTypeFilenameInvalid     ErrorType = "filename_invalid"

	// State errors.
	ErrorTypeIllegalStateTransition ErrorType = "illegal_state_transition"
	ErrorTypeVersionConflict        ErrorType = "version_conflict"
	ErrorTypeNotFound               ErrorType = "not_found"
	ErrorTypeAmbiguousCustomer      ErrorType = "ambiguous_customer"

	// External service errors.
	ErrorTypeLLMTimeout            ErrorType = "llm_timeout"
	ErrorTypeLLMRateLimit          ErrorType = "llm_rate_limit"
	ErrorTypeLLMAuthFailed         ErrorType = "llm_auth_failed"
	ErrorTypeLLMServiceUnavailable ErrorType = "llm_service_unavailable"
	ErrorTypeLLMInvalidResponse    ErrorType = "llm_invalid_response"
	ErrorTypeEmbeddingError        ErrorType = "embedding_error"
	ErrorTypeStorageUnavailable    ErrorType = "storage_unavailable"
	ErrorTypeDropzoneWriteFailed   ErrorType = "dropzone_write_failed"
	ErrorTypeSftpAuthFailed        ErrorType = "sftp_auth_failed"

	// Budget and validation.
	ErrorTypeBudgetExceeded       ErrorType = "budget_exceeded"
	ErrorTypeValidationRuleFailed ErrorType = "validation_rule_failed"

	// Catch-alls for failures that do not map to a domain kind.
	ErrorTypeDatabase ErrorType = "database"
	ErrorTypeInternal ErrorType = "internal"
)

// AppError carries a typed failure with an HTTP-style status code for
// the (out of scope) API layer and optional structured details.
type AppError struct {
	Type       ErrorType
	Message    string
	StatusCode int
	Details    string
	Cause      error
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails attaches detail text, modifying the error in place.
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithDetailsf attaches formatted detail text, modifying the error in
// place.
func (e *AppError) WithDetailsf(format string, args ...interface{}) *AppError {
	e.Details = fmt.Sprintf(format, args...)
	return e
}

// New builds an AppError of the given type.
func New(errorType ErrorType, message string) *AppError {
	return &AppError{
		Type:       errorType,
		Message:    message,
		StatusCode: statusCodeFor(errorType),
	}
}

// Newf builds an AppError with a formatted message.
func Newf(errorType ErrorType, format string, args ...interface{}) *AppError {
	return New(errorType, fmt.Sprintf(format, args...))
}

// Wrap builds an AppError whose Cause is err.
func Wrap(err error, errorType ErrorType, message string) *AppError {
	e := New(errorType, message)
	e.Cause = err
	return e
}

// Wrapf builds an AppError with a formatted message whose Cause is err.
func Wrapf(err error, errorType ErrorType, format string, args ...interface{}) *AppError {
	return Wrap(err, errorType, fmt.Sprintf(format, args...))
}

func statusCodeFor(errorType ErrorType) int {
	switch errorType {
	case ErrorTypeInvalidFile, ErrorTypeUnsupportedMimeType, ErrorTypeFileTooLarge,
		ErrorTypeEmptyFile, ErrorTypeFilenameInvalid, ErrorTypeValidationRuleFailed:
		return http.StatusBadRequest
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeVersionConflict, ErrorTypeIllegalStateTransition, ErrorTypeAmbiguousCustomer:
		return http.StatusConflict
	case ErrorTypeLLMTimeout:
		return http.StatusRequestTimeout
	case ErrorTypeLLMRateLimit:
		return http.StatusTooManyRequests
	case ErrorTypeLLMAuthFailed, ErrorTypeSftpAuthFailed:
		return http.StatusUnauthorized
	case ErrorTypeBudgetExceeded:
		return http.StatusPaymentRequired
	case ErrorTypeLLMServiceUnavailable, ErrorTypeStorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// IsType reports whether err is an *AppError of the given type.
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// GetType returns the error's type, or ErrorTypeInternal for non-app
// errors.
func GetType(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeInternal
}

// GetStatusCode returns the error's HTTP status code, or 500 for
// non-app errors.
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

// ErrorMessages holds the caller-safe replacements for error kinds
// whose internal message must not leak across the tenant boundary.
var ErrorMessages = struct {
	ResourceNotFound       string
	ConcurrentModification string
	OperationTimeout       string
	RateLimitExceeded      string
	BudgetExceeded         string
	ServiceUnavailable     string
}{
	ResourceNotFound:       "The requested resource was not found",
	ConcurrentModification: "The resource was modified concurrently; retry with the latest version",
	OperationTimeout:       "The operation timed out",
	RateLimitExceeded:      "Rate limit exceeded; retry later",
	BudgetExceeded:         "The daily AI budget for this account is exhausted",
	ServiceUnavailable:     "A dependent service is unavailable",
}

// SafeErrorMessage returns a message suitable to show a caller.
// Input-validation messages pass through; everything else maps to a
// generic replacement so internals (hosts, SQL, provider payloads)
// never leak. Cross-tenant lookups surface as NotFound upstream, so
// the NotFound message here is already enumeration-safe.
func SafeErrorMessage(err error) string {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return "An unexpected error occurred"
	}

	switch appErr.Type {
	case ErrorTypeInvalidFile, ErrorTypeUnsupportedMimeType, ErrorTypeFileTooLarge,
		ErrorTypeEmptyFile, ErrorTypeFilenameInvalid, ErrorTypeValidationRuleFailed,
		ErrorTypeAmbiguousCustomer:
		return appErr.Message
	case ErrorTypeNotFound:
		return ErrorMessages.ResourceNotFound
	case ErrorTypeVersionConflict, ErrorTypeIllegalStateTransition:
		return ErrorMessages.ConcurrentModification
	case ErrorTypeLLMTimeout:
		return ErrorMessages.OperationTimeout
	case ErrorTypeLLMRateLimit:
		return ErrorMessages.RateLimitExceeded
	case ErrorTypeBudgetExceeded:
		return ErrorMessages.BudgetExceeded
	case ErrorTypeLLMServiceUnavailable, ErrorTypeStorageUnavailable:
		return ErrorMessages.ServiceUnavailable
	default:
		return "An internal error occurred"
	}
}

// LogFields renders err as structured logging fields.
func LogFields(err error) map[string]interface{} {
	fields := map[string]interface{}{
		"error": err.Error(),
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		fields["error_type"] = string(appErr.Type)
		fields["status_code"] = appErr.StatusCode
		if appErr.Details != "" {
			fields["error_details"] = appErr.Details
		}
		if appErr.Cause != nil {
			fields["underlying_error"] = appErr.Cause.Error()
		}
	}

	return fields
}

// Chain joins errors into one, skipping nils. A single survivor is
// returned unchanged; multiple are joined with " -> " in order.
func Chain(errs ...error) error {
	var nonNil []error
	for _, err := range errs {
		if err != nil {
			nonNil = append(nonNil, err)
		}
	}

	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	}

	parts := make([]string, len(nonNil))
	for i, err := range nonNil {
		parts[i] = err.Error()
	}
	return errors.New(strings.Join(parts, " -> "))
}
