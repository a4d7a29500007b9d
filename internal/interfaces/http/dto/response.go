package dto

// Response is the envelope every endpoint answers with. Exactly one of Data
// and Error is set, matching Success.
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

type ErrorInfo struct {
	Code      string             `json:"code"`
	Message   string             `json:"message"`
	RequestID string             `json:"requestId,omitempty"`
	Details   []ValidationDetail `json:"details,omitempty"`
}

// ValidationDetail names one rejected request field
type ValidationDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// OK wraps data in a success envelope
func OK(data any) Response {
	return Response{Success: true, Data: data}
}

// Fail builds an error envelope. requestID may be empty.
func Fail(code, message, requestID string) Response {
	return Response{Error: &ErrorInfo{Code: code, Message: message, RequestID: requestID}}
}

// ValidationFailed is Fail with VALIDATION_ERROR and per-field details
func ValidationFailed(message, requestID string, details []ValidationDetail) Response {
	resp := Fail(ErrCodeValidation, message, requestID)
	resp.Error.Details = details
	return resp
}
