// Package errors provides a structured error system for tiercache with error codes, categories, and context.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents a structured error code for cache operations.
type ErrorCode string

const (
	// Configuration errors
	ErrCodeInvalidConfig    ErrorCode = "INVALID_CONFIG"
	ErrCodeConfigLoad       ErrorCode = "CONFIG_LOAD"
	ErrCodeConfigValidation ErrorCode = "CONFIG_VALIDATION"

	// Connection errors
	ErrCodeConnectionFailed  ErrorCode = "CONNECTION_FAILED"
	ErrCodeConnectionTimeout ErrorCode = "CONNECTION_TIMEOUT"
	ErrCodeNotReady          ErrorCode = "NOT_READY"

	// Codec errors
	ErrCodeEncodeFailed ErrorCode = "ENCODE_FAILED"
	ErrCodeDecodeFailed ErrorCode = "DECODE_FAILED"

	// Storage errors
	ErrCodeStoreWrite     ErrorCode = "STORE_WRITE"
	ErrCodeStoreRead      ErrorCode = "STORE_READ"
	ErrCodeEntryTooLarge  ErrorCode = "ENTRY_TOO_LARGE"
	ErrCodeBatchFlush     ErrorCode = "BATCH_FLUSH_FAILED"
	ErrCodeBatchQueueFull ErrorCode = "BATCH_QUEUE_FULL"

	// State errors
	ErrCodeAlreadyStarted     ErrorCode = "ALREADY_STARTED"
	ErrCodeNotInitialized     ErrorCode = "NOT_INITIALIZED"
	ErrCodeShutdownInProgress ErrorCode = "SHUTDOWN_IN_PROGRESS"

	// Internal errors
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// ErrorCategory represents the general category of an error.
type ErrorCategory string

const (
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryConnection    ErrorCategory = "connection"
	CategoryCodec         ErrorCategory = "codec"
	CategoryStorage       ErrorCategory = "storage"
	CategoryState         ErrorCategory = "state"
	CategoryInternal      ErrorCategory = "internal"
)

// CacheError represents a structured error with context and metadata.
type CacheError struct {
	Code      ErrorCode         `json:"code"`
	Category  ErrorCategory     `json:"category"`
	Message   string            `json:"message"`
	Context   map[string]string `json:"context,omitempty"`
	Cause     error             `json:"-"`
	Timestamp time.Time         `json:"timestamp"`

	Component string `json:"component,omitempty"`
	Operation string `json:"operation,omitempty"`

	// Retryable hints whether the caller may see a different outcome on retry.
	Retryable bool `json:"retryable"`
}

// Error implements the error interface.
func (e *CacheError) Error() string {
	if e.Component != "" {
		if e.Operation != "" {
			return fmt.Sprintf("[%s:%s] %s: %s", e.Component, e.Operation, e.Code, e.Message)
		}
		return fmt.Sprintf("[%s] %s: %s", e.Component, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error for error wrapping compatibility.
func (e *CacheError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target error (for errors.Is compatibility).
func (e *CacheError) Is(target error) bool {
	if cacheErr, ok := target.(*CacheError); ok {
		return e.Code == cacheErr.Code
	}
	return false
}

// String returns a detailed string representation for logging.
func (e *CacheError) String() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Code=%s", e.Code))
	parts = append(parts, fmt.Sprintf("Category=%s", e.Category))
	parts = append(parts, fmt.Sprintf("Message=%q", e.Message))

	if e.Component != "" {
		parts = append(parts, fmt.Sprintf("Component=%s", e.Component))
	}
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("Operation=%s", e.Operation))
	}
	if e.Retryable {
		parts = append(parts, "Retryable=true")
	}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause=%q", e.Cause.Error()))
	}

	return fmt.Sprintf("CacheError{%s}", strings.Join(parts, ", "))
}

// NewError creates a new cache error with default values.
func NewError(code ErrorCode, message string) *CacheError {
	return &CacheError{
		Code:      code,
		Category:  GetCategory(code),
		Message:   message,
		Timestamp: time.Now(),
		Retryable: IsRetryableByDefault(code),
	}
}

// GetCategory determines the category based on the error code.
func GetCategory(code ErrorCode) ErrorCategory {
	switch code {
	case ErrCodeInvalidConfig, ErrCodeConfigLoad, ErrCodeConfigValidation:
		return CategoryConfiguration
	case ErrCodeConnectionFailed, ErrCodeConnectionTimeout, ErrCodeNotReady:
		return CategoryConnection
	case ErrCodeEncodeFailed, ErrCodeDecodeFailed:
		return CategoryCodec
	case ErrCodeStoreWrite, ErrCodeStoreRead, ErrCodeEntryTooLarge,
		ErrCodeBatchFlush, ErrCodeBatchQueueFull:
		return CategoryStorage
	case ErrCodeAlreadyStarted, ErrCodeNotInitialized, ErrCodeShutdownInProgress:
		return CategoryState
	default:
		return CategoryInternal
	}
}

// IsRetryableByDefault determines if an error is retryable by default.
// Codec errors are never retryable: the input itself is unprocessable.
func IsRetryableByDefault(code ErrorCode) bool {
	retryableCodes := map[ErrorCode]bool{
		ErrCodeConnectionFailed:  true,
		ErrCodeConnectionTimeout: true,
		ErrCodeNotReady:          true,
		ErrCodeStoreWrite:        true,
		ErrCodeStoreRead:         true,
		ErrCodeBatchFlush:        true,
		ErrCodeInternalError:     true,
	}
	return retryableCodes[code]
}

// WithContext adds contextual information to an error
func (e *CacheError) WithContext(key, value string) *CacheError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// WithComponent sets the component for an error
func (e *CacheError) WithComponent(component string) *CacheError {
	e.Component = component
	return e
}

// WithOperation sets the operation for an error
func (e *CacheError) WithOperation(operation string) *CacheError {
	e.Operation = operation
	return e
}

// WithCause sets the underlying cause
func (e *CacheError) WithCause(cause error) *CacheError {
	e.Cause = cause
	return e
}

// IsCode reports whether err is a CacheError carrying the given code.
func IsCode(err error, code ErrorCode) bool {
	cacheErr, ok := err.(*CacheError)
	if !ok {
		return false
	}
	return cacheErr.Code == code
}

// CodeOf returns the error code carried by err, or ErrCodeInternalError when
// err is not a CacheError.
func CodeOf(err error) ErrorCode {
	cacheErr, ok := err.(*CacheError)
	if !ok {
		return ErrCodeInternalError
	}
	return cacheErr.Code
}
