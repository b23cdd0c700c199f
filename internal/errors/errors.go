// Package errors defines application-specific error types and sentinel errors.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for rejected requests. None carry further state.
var (
	ErrEmptyBody        = errors.New("request body is empty")
	ErrMissingTimestamp = errors.New("timestamp field is missing")
	ErrMissingDataField = errors.New("data field is missing")
	ErrMethodNotAllowed = errors.New("only POST is supported")
)

// MalformedRecordError reports a body that starts with '{' but does not parse
// as a JSON object.
type MalformedRecordError struct {
	Detail string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("JSON parse error: %s", e.Detail)
}

// StorageError represents a filesystem or remote storage failure.
type StorageError struct {
	Operation string
	Path      string
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: operation=%s path=%s: %v",
		e.Operation, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError wraps err with the failed operation and path.
func NewStorageError(op, path string, err error) *StorageError {
	return &StorageError{Operation: op, Path: path, Err: err}
}

// IsValidation reports whether err rejects the request as malformed input.
func IsValidation(err error) bool {
	if err == nil {
		return false
	}
	var malformed *MalformedRecordError
	if errors.As(err, &malformed) {
		return true
	}
	return errors.Is(err, ErrEmptyBody) ||
		errors.Is(err, ErrMissingTimestamp) ||
		errors.Is(err, ErrMissingDataField)
}

// IsClientError reports whether err should be answered with a 4xx status.
func IsClientError(err error) bool {
	return IsValidation(err) || errors.Is(err, ErrMethodNotAllowed)
}

// IsStorage reports whether err originates from a storage operation.
func IsStorage(err error) bool {
	var storageErr *StorageError
	return errors.As(err, &storageErr)
}
