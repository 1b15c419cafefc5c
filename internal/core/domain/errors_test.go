package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *DomainError
		expected string
	}{
		{
			name:     "error without details",
			err:      NewDomainError("DM-TEST-1000", "test message"),
			expected: "[DM-TEST-1000] test message",
		},
		{
			name:     "error with details",
			err:      NewDomainError("DM-TEST-1001", "test message").WithDetails("extra info"),
			expected: "[DM-TEST-1001] test message: extra info",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestDomainError_Is(t *testing.T) {
	wrapped := fmt.Errorf("decode: %w", ErrCorruptChangeSet.WithDetails("truncated"))

	if !errors.Is(wrapped, ErrCorruptChangeSet) {
		t.Error("errors.Is should match the same code through wrapping")
	}
	if errors.Is(wrapped, ErrEmptyChangeSet) {
		t.Error("errors.Is should not match a different code")
	}
	if errors.Is(ErrNoResponse, fmt.Errorf("some error")) {
		t.Error("errors.Is should return false for non-DomainError")
	}
}

func TestDomainError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("badger: txn too big")
	err := ErrStorageCorrupted.WithCause(cause)

	if errors.Unwrap(err) != cause {
		t.Errorf("Unwrap() = %v, want %v", errors.Unwrap(err), cause)
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
	if ErrStorageCorrupted.Cause != nil {
		t.Error("WithCause must not modify the sentinel")
	}
}

func TestIsDomainError(t *testing.T) {
	err := fmt.Errorf("round: %w", ErrTargetMismatch)

	if !IsDomainError(err, "") {
		t.Error("expected a DomainError")
	}
	if !IsDomainError(err, "DM-REP-4090") {
		t.Error("expected code DM-REP-4090")
	}
	if IsDomainError(err, "DM-REP-0000") {
		t.Error("unexpected code match")
	}
	if IsDomainError(errors.New("plain"), "") {
		t.Error("plain error is not a DomainError")
	}
	if got := GetErrorCode(err); got != "DM-REP-4090" {
		t.Errorf("GetErrorCode() = %q", got)
	}
	if got := GetErrorCode(errors.New("plain")); got != "" {
		t.Errorf("GetErrorCode() = %q, want empty", got)
	}
}
