package tg

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors - use with errors.Is()
var (
	// API errors
	ErrUnauthorized    = errors.New("despacho: unauthorized (invalid token)")
	ErrForbidden       = errors.New("despacho: forbidden")
	ErrNotFound        = errors.New("despacho: not found")
	ErrTooManyRequests = errors.New("despacho: too many requests")

	// Content errors
	ErrBadRequest    = errors.New("despacho: bad request")
	ErrChatNotFound  = errors.New("despacho: chat not found")
	ErrBotBlocked    = errors.New("despacho: bot blocked by user")
	ErrBotKicked     = errors.New("despacho: bot kicked from chat")
	ErrWrongFileType = errors.New("despacho: wrong file type")
	ErrFileTooBig    = errors.New("despacho: file too big")

	// Client errors
	ErrCircuitOpen      = errors.New("despacho: circuit breaker open")
	ErrMaxRetries       = errors.New("despacho: max retries exceeded")
	ErrResponseTooLarge = errors.New("despacho: response too large")

	// Validation errors
	ErrInvalidToken       = errors.New("despacho: invalid bot token format")
	ErrInvalidDestination = errors.New("despacho: invalid destination identifier")
	ErrInvalidConfig      = errors.New("despacho: invalid configuration")
)

// ResponseParameters contains information about why a request was unsuccessful.
type ResponseParameters struct {
	MigrateToChatID int64 `json:"migrate_to_chat_id,omitempty"`
	RetryAfter      int   `json:"retry_after,omitempty"`
}

// APIError represents an error response from the Bot API.
// Use errors.As() to extract details, errors.Is() to match sentinels.
type APIError struct {
	Code        int
	Description string
	RetryAfter  time.Duration
	Method      string // API method that failed
	cause       error  // Underlying sentinel for errors.Is()
}

func (e *APIError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("despacho: %s failed: %s (code=%d, retry_after=%s)",
			e.Method, e.Description, e.Code, e.RetryAfter)
	}
	return fmt.Sprintf("despacho: %s failed: %s (code=%d)", e.Method, e.Description, e.Code)
}

// Unwrap returns the underlying sentinel error for errors.Is() support.
func (e *APIError) Unwrap() error { return e.cause }

// IsRateLimit returns true if the endpoint signalled backpressure with a
// mandatory cooldown.
func (e *APIError) IsRateLimit() bool {
	return e.Code == 429 || e.RetryAfter > 0
}

// IsContentRejection returns true if the endpoint refused the content
// itself (format, size, markup) rather than the request rate.
func (e *APIError) IsContentRejection() bool {
	return e.Code >= 400 && e.Code < 500 && !e.IsRateLimit()
}

// IsRetryable returns true if the error is temporary and may succeed on retry.
func (e *APIError) IsRetryable() bool {
	return e.Code == 429 || (e.Code >= 500 && e.Code <= 504)
}

// NewAPIError creates an APIError with automatic sentinel detection.
func NewAPIError(method string, code int, description string) *APIError {
	return &APIError{
		Code:        code,
		Description: description,
		Method:      method,
		cause:       DetectSentinel(code, description),
	}
}

// NewAPIErrorWithRetry creates an APIError with retry information.
func NewAPIErrorWithRetry(method string, code int, description string, retryAfter time.Duration) *APIError {
	return &APIError{
		Code:        code,
		Description: description,
		Method:      method,
		RetryAfter:  retryAfter,
		cause:       DetectSentinel(code, description),
	}
}

// DetectSentinel maps Bot API error codes/descriptions to sentinel errors.
// Description-based detection is prioritized over HTTP status codes for
// more specific errors.
func DetectSentinel(code int, desc string) error {
	descLower := strings.ToLower(desc)
	switch {
	case strings.Contains(descLower, "bot was blocked"):
		return ErrBotBlocked
	case strings.Contains(descLower, "bot was kicked"):
		return ErrBotKicked
	case strings.Contains(descLower, "chat not found"):
		return ErrChatNotFound
	case strings.Contains(descLower, "wrong file identifier"),
		strings.Contains(descLower, "wrong type of the web page content"):
		return ErrWrongFileType
	case strings.Contains(descLower, "file is too big"):
		return ErrFileTooBig
	}

	switch code {
	case 400:
		return ErrBadRequest
	case 401:
		return ErrUnauthorized
	case 403:
		return ErrForbidden
	case 404:
		return ErrNotFound
	case 429:
		return ErrTooManyRequests
	}

	return nil
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Key     string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("despacho: config: %s - %s", e.Key, e.Message)
}

// NewConfigError creates a new ConfigError.
func NewConfigError(key, message string) *ConfigError {
	return &ConfigError{Key: key, Message: message}
}
