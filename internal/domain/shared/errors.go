package shared

import "errors"

// Error codes shared by every layer. The HTTP layer maps these to status codes.
const (
	CodeInvalidAmount     = "INVALID_AMOUNT"
	CodeInvalidAllocation = "INVALID_ALLOCATION"
	CodeNotFound          = "NOT_FOUND"
	CodeConflict          = "CONFLICT"
	CodeStorage           = "STORAGE_ERROR"
	CodeInvalidInput      = "INVALID_INPUT"
	CodeInvalidState      = "INVALID_STATE"
	CodeAlreadyExists     = "ALREADY_EXISTS"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause, if any
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a DomainError carrying the same code,
// so errors.Is(err, ErrConflict) matches any conflict regardless of message.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WrapDomainError creates a domain error that keeps the cause for logging
func WrapDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain errors
var (
	ErrInvalidAmount     = NewDomainError(CodeInvalidAmount, "Amount must be a positive number of minor units")
	ErrInvalidAllocation = NewDomainError(CodeInvalidAllocation, "Allocation violates invoice bounds")
	ErrNotFound          = NewDomainError(CodeNotFound, "Resource not found")
	ErrConflict          = NewDomainError(CodeConflict, "Resource was modified by another process")
	ErrStorage           = NewDomainError(CodeStorage, "Storage operation failed")
	ErrInvalidInput      = NewDomainError(CodeInvalidInput, "Invalid input provided")
	ErrInvalidState      = NewDomainError(CodeInvalidState, "Operation not allowed in current state")
	ErrAlreadyExists     = NewDomainError(CodeAlreadyExists, "Resource already exists")
)

// CodeOf extracts the domain error code from err, or "" if err is not a DomainError.
func CodeOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsConflict reports whether err is an optimistic concurrency conflict
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
