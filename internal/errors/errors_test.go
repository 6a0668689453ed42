package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestSyncError_Error(t *testing.T) {
	err := New(ErrCategoryTransport, CodeCommandFailed, "replace failed")
	expected := "[TRANSPORT:COMMAND_FAILED] replace failed"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestSyncError_ErrorWithCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(ErrCategoryTransport, CodeConnectFailed, "dial searchd", cause)
	expected := "[TRANSPORT:CONNECT_FAILED] dial searchd: connection refused"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestSyncError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := Wrap(ErrCategoryState, CodeFlagReadFailed, "read flags", cause)
	if !errors.Is(err, cause) {
		t.Error("Unwrap should allow errors.Is to find the cause")
	}
}

func TestSyncError_Is(t *testing.T) {
	err1 := New(ErrCategoryTransport, CodeCommandFailed, "first")
	err2 := New(ErrCategoryTransport, CodeCommandFailed, "second")
	err3 := New(ErrCategoryTransport, CodeQueryFailed, "different code")

	if !errors.Is(err1, err2) {
		t.Error("errors with same category+code should match via Is")
	}
	if errors.Is(err1, err3) {
		t.Error("errors with different codes should not match via Is")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		category  ErrorCategory
		code      string
		retryable bool
	}{
		{ErrCategoryTransport, CodeConnectFailed, true},
		{ErrCategoryTransport, CodeCommandFailed, true},
		{ErrCategoryTransport, CodeQueryFailed, true},
		{ErrCategoryStorage, CodeUploadFailed, true},
		{ErrCategoryStorage, CodeObjectNotFound, false},
		{ErrCategoryState, CodeFlagReadFailed, true},
		{ErrCategoryState, CodeFlagWriteFailed, false},
		{ErrCategoryValidation, CodeInvalidValue, false},
		{ErrCategoryDrain, CodeCursorRegression, false},
		{ErrCategoryJournal, CodeCorruptEntry, false},
		{ErrCategoryInternal, CodeUnexpected, false},
	}

	for _, tt := range tests {
		err := New(tt.category, tt.code, "test")
		if IsRetryable(err) != tt.retryable {
			t.Errorf("%s:%s retryable=%v, want %v", tt.category, tt.code, IsRetryable(err), tt.retryable)
		}
	}
}

func TestGetCategoryAndCode(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewSourceError(CodeFetchFailed, "select", nil))
	if GetCategory(err) != ErrCategorySource {
		t.Errorf("got %q, want %q", GetCategory(err), ErrCategorySource)
	}
	if GetCode(err) != CodeFetchFailed {
		t.Errorf("got %q, want %q", GetCode(err), CodeFetchFailed)
	}
	if GetCategory(fmt.Errorf("plain error")) != "" {
		t.Error("plain error should return empty category")
	}
}

func TestWithDetails(t *testing.T) {
	err := NewValidationError(CodeInvalidValue, "bad mva token")
	detailed := err.WithDetails(map[string]interface{}{"attribute": "tags"})

	if detailed.Details["attribute"] != "tags" {
		t.Error("WithDetails should set details")
	}
	if err.Details != nil {
		t.Error("WithDetails should not modify original")
	}
}
