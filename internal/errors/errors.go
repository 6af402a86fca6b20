// Package errors provides the typed error taxonomy for the wallet scanner.
// Fatal errors abort a snapshot run; everything else degrades to partial data.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/wallet-scanner/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryUserInput represents user input errors (4xx)
	CategoryUserInput ErrorCategory = "user_input"
	// CategorySystem represents system errors (5xx)
	CategorySystem ErrorCategory = "system"
	// CategoryProvider represents data provider errors
	CategoryProvider ErrorCategory = "provider"
	// CategoryCache represents cache errors
	CategoryCache ErrorCategory = "cache"
	// CategoryNotFound represents not found errors
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryRateLimit represents rate limit errors
	CategoryRateLimit ErrorCategory = "rate_limit"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to a ServiceError
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// NewInvalidAddressError creates an invalid address error. The address never
// reached the network when this is returned.
func NewInvalidAddressError(address string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUserInput,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_ADDRESS",
		Message:    fmt.Sprintf("invalid address format: %s", address),
		Details: map[string]interface{}{
			"address": address,
		},
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string, id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found: %s", resource, id),
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// NewProviderError creates a data provider error
func NewProviderError(provider string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryProvider,
		StatusCode: http.StatusBadGateway,
		Code:       "PROVIDER_ERROR",
		Message:    fmt.Sprintf("data provider error: %s", provider),
		Cause:      cause,
		Details: map[string]interface{}{
			"provider": provider,
		},
	}
}

// NewProviderTimeoutError creates a provider timeout error. Timeouts carry
// their own code so callers can tell an expired deadline from a provider
// reported failure.
func NewProviderTimeoutError(provider string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryProvider,
		StatusCode: http.StatusGatewayTimeout,
		Code:       "PROVIDER_TIMEOUT",
		Message:    fmt.Sprintf("data provider timeout: %s", provider),
		Details: map[string]interface{}{
			"provider": provider,
		},
	}
}

// NewProviderRateLimitError creates a provider rate limit error
func NewProviderRateLimitError(provider string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRateLimit,
		StatusCode: http.StatusTooManyRequests,
		Code:       "PROVIDER_RATE_LIMIT",
		Message:    fmt.Sprintf("data provider rate limit exceeded: %s", provider),
		Details: map[string]interface{}{
			"provider": provider,
		},
	}
}

// NewSnapshotFailedError creates the terminal error for an aborted snapshot run
func NewSnapshotFailedError(phase string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusBadGateway,
		Code:       "SNAPSHOT_FAILED",
		Message:    fmt.Sprintf("snapshot aggregation failed during %s", phase),
		Cause:      cause,
		Details: map[string]interface{}{
			"phase": phase,
		},
	}
}

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Cause:      cause,
	}
}

// Categorize categorizes an existing error
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr
	}

	return NewInternalError("unexpected error", err)
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsTimeout reports whether the error is deadline-shaped.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var catErr *CategorizedError
	if errors.As(err, &catErr) && catErr.Code == "PROVIDER_TIMEOUT" {
		return true
	}
	return false
}

// IsRateLimit reports whether the error looks like provider rate limiting.
// Providers are inconsistent about how they surface 429s, so this falls back
// to matching the usual signatures in the error text.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	var catErr *CategorizedError
	if errors.As(err, &catErr) && catErr.Category == CategoryRateLimit {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"429", "too many requests", "rate limit"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// IsTransient reports whether the error should trigger a retry. Only
// rate-limit and timeout shaped errors qualify; everything else propagates
// immediately.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if IsRateLimit(err) || IsTimeout(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded")
}
