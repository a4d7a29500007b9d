package dto

import (
	"net/http"

	"github.com/fleetbill/backend/internal/domain/shared"
)

// Domain error codes, exposed on the wire unchanged
const (
	ErrCodeInvalidAmount     = shared.CodeInvalidAmount
	ErrCodeInvalidAllocation = shared.CodeInvalidAllocation
	ErrCodeNotFound          = shared.CodeNotFound
	ErrCodeConflict          = shared.CodeConflict
	ErrCodeStorage           = shared.CodeStorage
	ErrCodeInvalidInput      = shared.CodeInvalidInput
	ErrCodeInvalidState      = shared.CodeInvalidState
	ErrCodeAlreadyExists     = shared.CodeAlreadyExists
)

// Transport error codes
const (
	// ErrCodeValidation is used when request binding or validation fails
	ErrCodeValidation = "VALIDATION_ERROR"
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "BAD_REQUEST"
	// ErrCodeInternal is used for errors that are not domain errors
	ErrCodeInternal = "INTERNAL_ERROR"
	// ErrCodeRateLimited is used when the client exceeded its request budget
	ErrCodeRateLimited = "RATE_LIMITED"
	// ErrCodeRequestTooLarge is used when the body exceeds the configured limit
	ErrCodeRequestTooLarge = "REQUEST_TOO_LARGE"
	// ErrCodeNotReady is used by the readiness probe
	ErrCodeNotReady = "NOT_READY"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	// Client input, rejected before any state is read
	ErrCodeInvalidAmount: http.StatusBadRequest,
	ErrCodeInvalidInput:  http.StatusBadRequest,
	ErrCodeValidation:    http.StatusBadRequest,
	ErrCodeBadRequest:    http.StatusBadRequest,

	// Client input that is inconsistent with stored state
	ErrCodeInvalidAllocation: http.StatusUnprocessableEntity,
	ErrCodeInvalidState:      http.StatusUnprocessableEntity,

	ErrCodeNotFound:      http.StatusNotFound,
	ErrCodeConflict:      http.StatusConflict,
	ErrCodeAlreadyExists: http.StatusConflict,

	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,
	ErrCodeRateLimited:     http.StatusTooManyRequests,

	ErrCodeStorage:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,
	ErrCodeNotReady: http.StatusServiceUnavailable,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
