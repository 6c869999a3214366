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

	// Workflow failures. None of them leave a partial commit behind.
	ErrValidation      ErrorCode = "VALIDATION_ERROR"
	ErrStateConflict   ErrorCode = "STATE_CONFLICT"
	ErrUnauthorized    ErrorCode = "AUTHORIZATION_ERROR"
	ErrTiming          ErrorCode = "TIMING_ERROR"
	ErrArithmetic      ErrorCode = "ARITHMETIC_ERROR"
	ErrTransferFailure ErrorCode = "TRANSFER_FAILURE"
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
	if details != nil {
		logrus.Error(details)
	}
	return APIError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// Validation, StateConflict, Unauthorized, Timing, Arithmetic and TransferFailure
// build the workflow error classes with a formatted message.
func Validation(format string, args ...interface{}) APIError {
	return APIError{Code: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

func StateConflict(format string, args ...interface{}) APIError {
	return APIError{Code: ErrStateConflict, Message: fmt.Sprintf(format, args...)}
}

func Unauthorized(format string, args ...interface{}) APIError {
	return APIError{Code: ErrUnauthorized, Message: fmt.Sprintf(format, args...)}
}

func Timing(format string, args ...interface{}) APIError {
	return APIError{Code: ErrTiming, Message: fmt.Sprintf(format, args...)}
}

func Arithmetic(format string, args ...interface{}) APIError {
	return APIError{Code: ErrArithmetic, Message: fmt.Sprintf(format, args...)}
}

func TransferFailure(format string, args ...interface{}) APIError {
	return APIError{Code: ErrTransferFailure, Message: fmt.Sprintf(format, args...)}
}

// CodeOf returns the code carried by err, looking through wrapped errors.
func CodeOf(err error) (ErrorCode, bool) {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, true
	}
	return "", false
}

func IsCode(err error, code ErrorCode) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}

func MapErrorToHTTPStatus(err error) int {
	code, ok := CodeOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch code {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrConflict, ErrStateConflict:
		return http.StatusConflict
	case ErrInvalidInput, ErrBadRequest, ErrValidation:
		return http.StatusBadRequest
	case ErrUnauthorized:
		return http.StatusForbidden
	case ErrTiming, ErrArithmetic:
		return http.StatusUnprocessableEntity
	case ErrInternalServer, ErrTransferFailure:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
