// Package domain defines the core domain models for docmesh.
package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain error with a structured error code.
// Codes follow the format DM-<AREA>-<NNNN>.
type DomainError struct {
	Code    string // Error code (e.g., "DM-CHG-4001")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ============================================================================
// Change-set Errors (CHG)
// ============================================================================

var (
	// ErrEmptyChangeSet indicates an attempt to encode a change-set with no changes.
	ErrEmptyChangeSet = NewDomainError("DM-CHG-4001", "change-set is empty")

	// ErrCorruptChangeSet indicates an encoded change-set could not be decoded.
	ErrCorruptChangeSet = NewDomainError("DM-CHG-4002", "corrupt change-set")
)

// ============================================================================
// Document and Log Errors (DOC, LOG)
// ============================================================================

var (
	// ErrDocumentNotFound indicates the requested document does not exist.
	ErrDocumentNotFound = NewDomainError("DM-DOC-4040", "document not found")

	// ErrDocumentExists indicates an insert of an id that is already stored.
	ErrDocumentExists = NewDomainError("DM-DOC-4090", "document already exists")

	// ErrLastLogNotFound indicates the node has no applied log entry.
	ErrLastLogNotFound = NewDomainError("DM-LOG-4040", "last log not found")

	// ErrLogOutOfOrder indicates an append below the current last log position.
	ErrLogOutOfOrder = NewDomainError("DM-LOG-4090", "log position out of order")
)

// ============================================================================
// Replication Errors (REP, RPC)
// ============================================================================

var (
	// ErrTargetMismatch indicates rollback records for a target other than the active one.
	ErrTargetMismatch = NewDomainError("DM-REP-4090", "rollback target mismatch")

	// ErrNoResponse indicates a peer did not answer a request.
	ErrNoResponse = NewDomainError("DM-RPC-5030", "no response from peer")

	// ErrUnexpectedResponse indicates a peer answered with an unexpected message.
	ErrUnexpectedResponse = NewDomainError("DM-RPC-5020", "unexpected response from peer")
)

// ============================================================================
// Storage Errors (STO)
// ============================================================================

var (
	// ErrStorageClosed indicates the storage engine was used after Close.
	ErrStorageClosed = NewDomainError("DM-STO-5030", "storage closed")

	// ErrStorageCorrupted indicates a stored value could not be decoded.
	ErrStorageCorrupted = NewDomainError("DM-STO-5001", "stored value corrupted")
)
