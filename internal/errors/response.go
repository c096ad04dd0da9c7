package errors

import (
	"encoding/json"
	"net/http"
)

// fallbackBody is written when an envelope cannot be encoded.
var fallbackBody = []byte(`{"error":{"code":"internal_error","message":"Internal server error","retryable":false},"detail":"Internal server error"}` + "\n")

// ErrorResponse is the envelope every failed request gets. The storefront reads the
// flat detail string; API clients read the structured error object.
type ErrorResponse struct {
	Error  ErrorDetail `json:"error"`
	Detail string      `json:"detail"`
}

// ErrorDetail is the structured half of the envelope.
type ErrorDetail struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Retryable bool                   `json:"retryable"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// NewErrorResponse builds the envelope for code; retryable follows the code and the
// message is mirrored into detail.
func NewErrorResponse(code ErrorCode, message string, details map[string]interface{}) ErrorResponse {
	return ErrorResponse{
		Error: ErrorDetail{
			Code:      code,
			Message:   message,
			Retryable: code.IsRetryable(),
			Details:   details,
		},
		Detail: message,
	}
}

// Status is the HTTP status mapped from the envelope's code.
func (e ErrorResponse) Status() int {
	return e.Error.Code.HTTPStatus()
}

// Write sends the envelope with status. An envelope whose details cannot be encoded
// degrades to a generic 500 instead of a truncated body.
func (e ErrorResponse) Write(w http.ResponseWriter, status int) {
	body, err := json.Marshal(e)
	if err != nil {
		status, body = http.StatusInternalServerError, fallbackBody
	} else {
		body = append(body, '\n')
	}
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// WriteError writes the envelope for code with the status the code maps to.
func WriteError(w http.ResponseWriter, code ErrorCode, message string, details map[string]interface{}) {
	resp := NewErrorResponse(code, message, details)
	resp.Write(w, resp.Status())
}

// WriteSimpleError writes an error with no details.
func WriteSimpleError(w http.ResponseWriter, code ErrorCode, message string) {
	WriteError(w, code, message, nil)
}
