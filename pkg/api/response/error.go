package response

import (
	"context"
	"errors"
	"net/http"

	"github.com/goclaw/mnemo/pkg/memory"
)

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id"`
}

// Error codes
const (
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeTooManyRequests    = "TOO_MANY_REQUESTS"
	ErrCodeInternalServer     = "INTERNAL_SERVER_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeGatewayTimeout     = "GATEWAY_TIMEOUT"
)

// ErrInvalidInput marks malformed request bodies and parameters.
var ErrInvalidInput = errors.New("invalid input")

// HTTPStatusFromError maps memory errors to HTTP status codes.
func HTTPStatusFromError(err error) int {
	var idx *memory.IndexUnavailableError
	switch {
	case errors.Is(err, memory.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, memory.ErrInvalidMemory),
		errors.Is(err, memory.ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, memory.ErrFeedbackRecorded),
		errors.Is(err, memory.ErrIllegalTransition),
		errors.Is(err, memory.ErrStateConflict),
		errors.Is(err, memory.ErrNoHistory):
		return http.StatusConflict
	case errors.As(err, &idx), errors.Is(err, memory.ErrEmbeddingUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// ErrorCodeFromStatus returns an error code for the given HTTP status.
func ErrorCodeFromStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return ErrCodeBadRequest
	case http.StatusNotFound:
		return ErrCodeNotFound
	case http.StatusConflict:
		return ErrCodeConflict
	case http.StatusTooManyRequests:
		return ErrCodeTooManyRequests
	case http.StatusServiceUnavailable:
		return ErrCodeServiceUnavailable
	case http.StatusGatewayTimeout:
		return ErrCodeGatewayTimeout
	default:
		return ErrCodeInternalServer
	}
}

// HandleError writes the error envelope for err. Internal errors are not
// echoed to the client.
func HandleError(w http.ResponseWriter, err error, requestID string) {
	status := HTTPStatusFromError(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	Error(w, status, ErrorCodeFromStatus(status), msg, requestID)
}
