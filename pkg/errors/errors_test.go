package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

// TestNewError tests error construction defaults
func TestNewError(t *testing.T) {
	tests := []struct {
		code          ErrorCode
		wantCategory  ErrorCategory
		wantRetryable bool
	}{
		{ErrCodeInvalidConfig, CategoryConfiguration, false},
		{ErrCodeConnectionFailed, CategoryConnection, true},
		{ErrCodeConnectionTimeout, CategoryConnection, true},
		{ErrCodeEncodeFailed, CategoryCodec, false},
		{ErrCodeDecodeFailed, CategoryCodec, false},
		{ErrCodeBatchFlush, CategoryStorage, true},
		{ErrCodeEntryTooLarge, CategoryStorage, false},
		{ErrCodeNotInitialized, CategoryState, false},
		{ErrCodeInternalError, CategoryInternal, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			err := NewError(tt.code, "test message")
			if err.Category != tt.wantCategory {
				t.Errorf("category = %s, want %s", err.Category, tt.wantCategory)
			}
			if err.Retryable != tt.wantRetryable {
				t.Errorf("retryable = %v, want %v", err.Retryable, tt.wantRetryable)
			}
			if err.Timestamp.IsZero() {
				t.Error("timestamp not set")
			}
		})
	}
}

// TestCacheError_Error tests the error string format
func TestCacheError_Error(t *testing.T) {
	err := NewError(ErrCodeDecodeFailed, "corrupt payload").
		WithComponent("codec").
		WithOperation("decode")

	msg := err.Error()
	if !strings.Contains(msg, "codec:decode") {
		t.Errorf("expected component:operation prefix, got %q", msg)
	}
	if !strings.Contains(msg, "DECODE_FAILED") {
		t.Errorf("expected code in message, got %q", msg)
	}
}

// TestCacheError_Unwrap tests cause chaining with errors.Is/As
func TestCacheError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := NewError(ErrCodeConnectionFailed, "remote unreachable").WithCause(cause)

	if !stderrors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}

	target := NewError(ErrCodeConnectionFailed, "different message")
	if !stderrors.Is(err, target) {
		t.Error("errors.Is should match on error code")
	}

	other := NewError(ErrCodeDecodeFailed, "x")
	if stderrors.Is(err, other) {
		t.Error("errors.Is should not match a different code")
	}
}

// TestIsCode tests the code inspection helper
func TestIsCode(t *testing.T) {
	err := NewError(ErrCodeBatchFlush, "pipeline failed")
	if !IsCode(err, ErrCodeBatchFlush) {
		t.Error("IsCode should match the error's code")
	}
	if IsCode(err, ErrCodeEncodeFailed) {
		t.Error("IsCode should not match a different code")
	}
	if IsCode(fmt.Errorf("plain error"), ErrCodeBatchFlush) {
		t.Error("IsCode should be false for non-CacheError values")
	}
}

// TestCacheError_WithContext tests context accumulation
func TestCacheError_WithContext(t *testing.T) {
	err := NewError(ErrCodeStoreWrite, "write failed").
		WithContext("key", "user:42").
		WithContext("tier", "remote")

	if err.Context["key"] != "user:42" {
		t.Errorf("expected context key=user:42, got %v", err.Context["key"])
	}
	if err.Context["tier"] != "remote" {
		t.Errorf("expected context tier=remote, got %v", err.Context["tier"])
	}
}
