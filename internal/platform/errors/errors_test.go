package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "error with cause",
			err: Wrap(KindPermanent, "load", "failed to load config",
				errors.New("file not found")),
			contains: []string{"[permanent:load]", "failed to load config", "file not found"},
		},
		{
			name:     "error without cause",
			err:      New(KindProtocol, "validate", "invalid input"),
			contains: []string{"[protocol:validate]", "invalid input"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errStr := tt.err.Error()
			for _, substr := range tt.contains {
				if !strings.Contains(errStr, substr) {
					t.Errorf("error string %q does not contain %q", errStr, substr)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	originalErr := errors.New("original error")
	wrappedErr := Wrap(KindTransient, "test", "wrapped", originalErr)

	if !errors.Is(wrappedErr, originalErr) {
		t.Error("Unwrap should return the original error")
	}
}

func TestIsKind(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		kind     Kind
		expected bool
	}{
		{
			name:     "direct error kind match",
			err:      New(KindTransient, "test", "message"),
			kind:     KindTransient,
			expected: true,
		},
		{
			name:     "wrapped error kind match",
			err:      Wrap(KindProtocol, "test", "message", errors.New("cause")),
			kind:     KindProtocol,
			expected: true,
		},
		{
			name:     "error kind mismatch",
			err:      New(KindTransient, "test", "message"),
			kind:     KindProtocol,
			expected: false,
		},
		{
			name:     "non-typed error",
			err:      errors.New("plain error"),
			kind:     KindTransient,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsKind(tt.err, tt.kind)
			if result != tt.expected {
				t.Errorf("IsKind() = %v, expected %v", result, tt.expected)
			}
		})
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(New(KindTransient, "dial", "connection refused")) {
		t.Error("transient errors should be retryable")
	}
	if !Retryable(New(KindBackendUnavailable, "dial", "still warming up")) {
		t.Error("backend-unavailable errors should be retryable")
	}
	if Retryable(New(KindPermanent, "validate", "bad request")) {
		t.Error("permanent errors should not be retryable")
	}
	if Retryable(New(KindCancellation, "interrupt", "barge-in")) {
		t.Error("cancellation errors should not be retryable")
	}
	if !Retryable(errors.New("plain error")) {
		t.Error("untyped errors should default to retryable")
	}
}
