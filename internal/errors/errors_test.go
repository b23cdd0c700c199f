package errors

import (
	"errors"
	"fmt"
	"os"
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"ErrEmptyBody", ErrEmptyBody},
		{"ErrMissingTimestamp", ErrMissingTimestamp},
		{"ErrMissingDataField", ErrMissingDataField},
		{"ErrMethodNotAllowed", ErrMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err == nil {
				t.Errorf("%s should not be nil", tt.name)
			}
			if tt.err.Error() == "" {
				t.Errorf("%s should have an error message", tt.name)
			}
		})
	}
}

func TestMalformedRecordError(t *testing.T) {
	err := &MalformedRecordError{Detail: "unexpected end of JSON input"}

	if err.Error() != "JSON parse error: unexpected end of JSON input" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestStorageError(t *testing.T) {
	baseErr := errors.New("disk full")
	storageErr := NewStorageError("append", "/data/2025/07/2025-07-01.csv", baseErr)

	if storageErr.Error() == "" {
		t.Error("StorageError should have an error message")
	}
	if !errors.Is(storageErr, baseErr) {
		t.Error("StorageError should wrap base error")
	}
}

func TestIsValidation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"empty body", ErrEmptyBody, true},
		{"missing timestamp", ErrMissingTimestamp, true},
		{"missing data", ErrMissingDataField, true},
		{"wrapped missing data", fmt.Errorf("validate: %w", ErrMissingDataField), true},
		{"malformed", &MalformedRecordError{Detail: "x"}, true},
		{"method not allowed", ErrMethodNotAllowed, false},
		{"storage", NewStorageError("write", "p", os.ErrPermission), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidation(tt.err); got != tt.want {
				t.Errorf("IsValidation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsClientError(t *testing.T) {
	if !IsClientError(ErrMethodNotAllowed) {
		t.Error("method not allowed should be a client error")
	}
	if !IsClientError(ErrEmptyBody) {
		t.Error("empty body should be a client error")
	}
	if IsClientError(NewStorageError("mkdir", "p", os.ErrPermission)) {
		t.Error("storage error should not be a client error")
	}
}

func TestIsStorage(t *testing.T) {
	wrapped := fmt.Errorf("append line: %w", NewStorageError("open", "p", os.ErrNotExist))
	if !IsStorage(wrapped) {
		t.Error("wrapped StorageError should be detected")
	}
	if IsStorage(ErrEmptyBody) {
		t.Error("sentinel should not be a storage error")
	}
}
