package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeInternalError = "INTERNAL_ERROR"

	// Provider error codes. Configuration errors are never retried and
	// surface to the admin layer; rate limits are the only retried class.
	ErrCodeConfiguration = "CONFIGURATION_ERROR"
	ErrCodeRateLimit     = "RATE_LIMIT"
	ErrCodeAPI           = "API_ERROR"
	ErrCodeNoProvider    = "NO_PROVIDER"
)

// ConfigurationError marks a provider config problem (bad credentials,
// model, endpoint, or an unrecognized provider type).
type ConfigurationError struct{ *DomainError }

// RateLimitError marks backend throttling; callers retry with backoff.
type RateLimitError struct{ *DomainError }

// APIError marks any other provider failure; it fails the operation.
type APIError struct{ *DomainError }

// NewConfigurationError creates a ConfigurationError.
func NewConfigurationError(message string, err error) *ConfigurationError {
	return &ConfigurationError{NewDomainErrorWithCause(ErrCodeConfiguration, message, err)}
}

// NewRateLimitError creates a RateLimitError.
func NewRateLimitError(message string, err error) *RateLimitError {
	return &RateLimitError{NewDomainErrorWithCause(ErrCodeRateLimit, message, err)}
}

// NewAPIError creates an APIError.
func NewAPIError(message string, err error) *APIError {
	return &APIError{NewDomainErrorWithCause(ErrCodeAPI, message, err)}
}

// IsRateLimit reports whether err is (or wraps) a RateLimitError.
func IsRateLimit(err error) bool {
	for err != nil {
		if _, ok := err.(*RateLimitError); ok {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// IsConfiguration reports whether err is (or wraps) a ConfigurationError.
func IsConfiguration(err error) bool {
	for err != nil {
		if _, ok := err.(*ConfigurationError); ok {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Not found errors
var (
	ErrDocumentNotFound = NewDomainError(ErrCodeNotFound, "document not found")
	ErrSpaceNotFound    = NewDomainError(ErrCodeNotFound, "space not found")
	ErrProviderNotFound = NewDomainError(ErrCodeNotFound, "provider config not found")
)

// ErrNoProvider short-circuits operations that need a provider when none is
// configured or enabled. It yields an explicit "unavailable" result, never a
// user-visible failure.
var ErrNoProvider = NewDomainError(ErrCodeNoProvider, "no usable provider configured")

// Validation errors
var (
	ErrInvalidDocumentType = NewDomainError(ErrCodeValidation, "invalid document type")
	ErrBlankQuery          = NewDomainError(ErrCodeValidation, "query is blank")
)
