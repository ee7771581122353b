package errors

import (
	"errors"
	"fmt"
)

// Error types for different failure domains
type ErrorType string

const (
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeConflict    ErrorType = "conflict"
	ErrorTypeInternal    ErrorType = "internal"
	ErrorTypeExternal    ErrorType = "external"
	ErrorTypePersistence ErrorType = "persistence"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType              `json:"type"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	Retryable  bool                   `json:"retryable"`
	StatusCode int                    `json:"status_code"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// Error constructors
func NewValidationError(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		Retryable:  false,
		StatusCode: 400,
	}
}

func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       "RESOURCE_NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		Retryable:  false,
		StatusCode: 404,
	}
}

func NewConflictError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       "CONFLICT",
		Message:    message,
		Retryable:  false,
		StatusCode: 409,
	}
}

func NewInternalError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Retryable:  true,
		StatusCode: 500,
	}
}

// NewProviderUnavailableError signals that a provider's circuit breaker is
// open. The branch fails fast and must not be retried until the breaker
// allows a trial call again.
func NewProviderUnavailableError(provider string) *AppError {
	return &AppError{
		Type:       ErrorTypeExternal,
		Code:       "PROVIDER_UNAVAILABLE",
		Message:    fmt.Sprintf("%s is currently unavailable", provider),
		Retryable:  false,
		StatusCode: 503,
		Details:    map[string]interface{}{"provider": provider},
	}
}

// NewUpstreamError signals that a provider returned an error response.
// Retryable within the adapter's retry budget.
func NewUpstreamError(provider, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeExternal,
		Code:       "UPSTREAM_ERROR",
		Message:    fmt.Sprintf("%s upstream error: %s", provider, message),
		Retryable:  true,
		StatusCode: 502,
		Details:    map[string]interface{}{"provider": provider},
	}
}

// NewPersistenceError signals a failed store write. The owning job is
// retried wholesale by the queue.
func NewPersistenceError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypePersistence,
		Code:       "PERSISTENCE_ERROR",
		Message:    message,
		Retryable:  true,
		StatusCode: 500,
	}
}

func NewRateLimitError(provider string) *AppError {
	return &AppError{
		Type:       ErrorTypeExternal,
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    fmt.Sprintf("%s rate limit exceeded", provider),
		Retryable:  true,
		StatusCode: 429,
		Details:    map[string]interface{}{"provider": provider},
	}
}

// Predefined common errors
var (
	ErrInvalidInput      = NewValidationError("INVALID_INPUT", "Invalid input provided")
	ErrResultNotFound    = NewNotFoundError("screening result")
	ErrWatchlistNotFound = NewNotFoundError("watchlist")
	ErrJobNotFound       = NewNotFoundError("screening job")
	ErrProviderNotFound  = NewNotFoundError("provider")

	// ErrResultPending distinguishes an accepted job that has not
	// produced its result yet from an unknown ID.
	ErrResultPending = &AppError{
		Type:       ErrorTypeNotFound,
		Code:       "RESULT_PENDING",
		Message:    "Screening is still in progress",
		Retryable:  true,
		StatusCode: 202,
	}
)

// Wrap wraps an error with a message using fmt.Errorf with %w
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// IsType checks if an error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}

// Code extracts the application error code, or "UNKNOWN" for plain errors.
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}
