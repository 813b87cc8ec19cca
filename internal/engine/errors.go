package engine

import (
	"errors"
	"fmt"
)

// GroupError represents a failure that stopped a run.
//
// Group errors include:
//   - Side input failure: grid, ROI or raster metadata could not be loaded
//   - Resolve failure: the resolver rejected the group
//   - Store failure: groups could not be read or output could not be written
//
// Per-record problems are never GroupErrors; they are counted in the Summary.
type GroupError struct {
	// Code identifies the error category.
	Code GroupErrorCode

	// Group is the key of the affected group, empty for run-level failures.
	Group string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause.
	Err error
}

// GroupErrorCode categorizes group errors.
type GroupErrorCode string

const (
	// ErrCodeSideInputFailed indicates a side input could not be loaded.
	ErrCodeSideInputFailed GroupErrorCode = "SIDE_INPUT_FAILED"

	// ErrCodeResolveFailed indicates the resolver failed a group.
	ErrCodeResolveFailed GroupErrorCode = "RESOLVE_FAILED"

	// ErrCodeStoreFailed indicates a store read or write failed.
	ErrCodeStoreFailed GroupErrorCode = "STORE_FAILED"
)

// Error implements the error interface.
func (e *GroupError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Group != "" {
		return fmt.Sprintf("%s: %s (group=%s)", e.Code, msg, e.Group)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Unwrap returns the underlying cause.
func (e *GroupError) Unwrap() error { return e.Err }

// IsSideInputError returns true if the error is a side input failure.
// Uses errors.As to handle wrapped errors.
func IsSideInputError(err error) bool {
	var ge *GroupError
	if errors.As(err, &ge) {
		return ge.Code == ErrCodeSideInputFailed
	}
	return false
}

// IsStoreError returns true if the error is a store failure.
func IsStoreError(err error) bool {
	var ge *GroupError
	if errors.As(err, &ge) {
		return ge.Code == ErrCodeStoreFailed
	}
	return false
}

func storeError(group, msg string, err error) *GroupError {
	return &GroupError{Code: ErrCodeStoreFailed, Group: group, Message: msg, Err: err}
}
