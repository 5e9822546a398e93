package apierror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
)

type ErrorCode string

const (
	ErrNotFound       ErrorCode = "NOT_FOUND"
	ErrConflict       ErrorCode = "CONFLICT"
	ErrBadRequest     ErrorCode = "BAD_REQUEST"
	ErrInvalidInput   ErrorCode = "INVALID_INPUT"
	ErrInternalServer ErrorCode = "INTERNAL_SERVER_ERROR"

	// Integration error codes surfaced by the HubSoft client stack.
	ErrAuthFailed             ErrorCode = "AUTH_FAILED"
	ErrRateLimitExceeded      ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrTransientApi           ErrorCode = "TRANSIENT_API_ERROR"
	ErrDataIntegrity          ErrorCode = "DATA_INTEGRITY_VIOLATION"
	ErrReconciliationConflict ErrorCode = "RECONCILIATION_CONFLICT"
)

type APIError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewAPIError(code ErrorCode, message string, details interface{}) APIError {
	logrus.Error(details)
	return APIError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// Is reports whether err is an APIError carrying the given code.
func Is(err error, code ErrorCode) bool {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}

// Retryable reports whether an error is worth retrying against the ERP.
// Auth failures are handled separately (invalidate + single retry) and
// reconciliation conflicts are successes in disguise.
func Retryable(err error) bool {
	return Is(err, ErrTransientApi) || Is(err, ErrRateLimitExceeded)
}

func MapErrorToHTTPStatus(err error) int {
	if apiErr, ok := err.(APIError); ok {
		switch apiErr.Code {
		case ErrNotFound:
			return http.StatusNotFound
		case ErrConflict, ErrReconciliationConflict:
			return http.StatusConflict
		case ErrBadRequest, ErrInvalidInput:
			return http.StatusBadRequest
		case ErrAuthFailed:
			return http.StatusBadGateway
		case ErrRateLimitExceeded:
			return http.StatusTooManyRequests
		case ErrTransientApi:
			return http.StatusServiceUnavailable
		case ErrInternalServer:
			return http.StatusInternalServerError
		default:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}
