package apierror

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
)

type ErrorCode string

const (
	ErrInvalidAmount        ErrorCode = "INVALID_AMOUNT"
	ErrSameAccount          ErrorCode = "SAME_ACCOUNT"
	ErrAccountNotFound      ErrorCode = "ACCOUNT_NOT_FOUND"
	ErrInsufficientFunds    ErrorCode = "INSUFFICIENT_FUNDS"
	ErrAccountDisabled      ErrorCode = "ACCOUNT_DISABLED"
	ErrConflict             ErrorCode = "CONFLICT"
	ErrDuplicateCorrelation ErrorCode = "DUPLICATE_CORRELATION"
	ErrUnavailable          ErrorCode = "UNAVAILABLE"
	ErrNotFound             ErrorCode = "NOT_FOUND"
	ErrInvalidInput         ErrorCode = "INVALID_INPUT"
	ErrInternalServer       ErrorCode = "INTERNAL_SERVER_ERROR"
)

type APIError struct {
	Code      ErrorCode   `json:"code"`
	Message   string      `json:"message"`
	AccountID string      `json:"account_id,omitempty"`
	Details   interface{} `json:"details,omitempty"`
	cause     error
}

func (e APIError) Error() string {
	if e.AccountID != "" {
		return fmt.Sprintf("%s: %s (account %s)", e.Code, e.Message, e.AccountID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e APIError) Unwrap() error {
	return e.cause
}

func NewAPIError(code ErrorCode, message string, details interface{}) APIError {
	if details != nil {
		logrus.Error(details)
	}
	e := APIError{
		Code:    code,
		Message: message,
		Details: details,
	}
	if cause, ok := details.(error); ok {
		e.cause = cause
	}
	return e
}

// NewAccountError builds an error naming the account that caused it.
func NewAccountError(code ErrorCode, accountID, message string) APIError {
	return APIError{Code: code, Message: message, AccountID: accountID}
}

// Wrap keeps err reachable through errors.Is / errors.As.
func Wrap(code ErrorCode, message string, err error) APIError {
	return APIError{Code: code, Message: message, Details: errString(err), cause: err}
}

func errString(err error) interface{} {
	if err == nil {
		return nil
	}
	return err.Error()
}

// CodeOf returns the code carried by err, or ErrInternalServer for foreign errors.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var apiErr APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrUnavailable
	}
	return ErrInternalServer
}

// Is reports whether err carries code.
func Is(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// IsRetryable reports whether the whole operation may be repeated.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case ErrConflict, ErrUnavailable:
		return true
	}
	return false
}

// IsUnknownOutcome reports whether the operation may have committed despite the error.
func IsUnknownOutcome(err error) bool {
	return CodeOf(err) == ErrUnavailable
}

func MapErrorToHTTPStatus(err error) int {
	switch CodeOf(err) {
	case ErrInvalidAmount, ErrSameAccount, ErrInvalidInput:
		return http.StatusBadRequest
	case ErrAccountNotFound, ErrNotFound:
		return http.StatusNotFound
	case ErrInsufficientFunds, ErrAccountDisabled:
		return http.StatusUnprocessableEntity
	case ErrConflict, ErrDuplicateCorrelation:
		return http.StatusConflict
	case ErrUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
