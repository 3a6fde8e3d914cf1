// Package apperr defines the error taxonomy shared by the ledger, escrow and
// task lifecycle, and maps it onto HTTP status codes.
package apperr

import (
	"errors"
	"net/http"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeInvalidAmount         Code = "INVALID_AMOUNT"
	CodeInsufficientFunds     Code = "INSUFFICIENT_FUNDS"
	CodeUnauthorized          Code = "UNAUTHORIZED"
	CodeInvalidTransition     Code = "INVALID_TRANSITION"
	CodeAlreadyClosed         Code = "ALREADY_CLOSED"
	CodeNotFound              Code = "NOT_FOUND"
	CodeInvalidSettings       Code = "INVALID_SETTINGS"
	CodeExternalPaymentFailed Code = "EXTERNAL_PAYMENT_FAILED"
	CodeConflict              Code = "CONFLICT"
	CodeMaintenance           Code = "MAINTENANCE"
	CodeInvalidInput          Code = "INVALID_INPUT"
)

// Error is a coded error. Two errors match under errors.Is when their codes match.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string { return e.Message }

// Is reports code equality so wrapped sentinels compare by code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// New returns an *Error with the given code and message.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

var (
	ErrInvalidAmount         = New(CodeInvalidAmount, "invalid amount")
	ErrInsufficientFunds     = New(CodeInsufficientFunds, "insufficient funds")
	ErrUnauthorized          = New(CodeUnauthorized, "unauthorized")
	ErrInvalidTransition     = New(CodeInvalidTransition, "invalid status transition")
	ErrAlreadyClosed         = New(CodeAlreadyClosed, "escrow already closed")
	ErrNotFound              = New(CodeNotFound, "not found")
	ErrInvalidSettings       = New(CodeInvalidSettings, "invalid platform settings")
	ErrExternalPaymentFailed = New(CodeExternalPaymentFailed, "external payment failed")
	ErrConflict              = New(CodeConflict, "concurrent modification")
	ErrMaintenance           = New(CodeMaintenance, "platform is in maintenance mode")
	ErrInvalidInput          = New(CodeInvalidInput, "invalid input")
)

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// HTTPStatus maps err to the status code a handler should respond with.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeInvalidAmount, CodeInvalidInput:
		return http.StatusBadRequest
	case CodeInsufficientFunds:
		return http.StatusPaymentRequired
	case CodeUnauthorized:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidTransition, CodeAlreadyClosed, CodeConflict:
		return http.StatusConflict
	case CodeInvalidSettings, CodeExternalPaymentFailed:
		return http.StatusUnprocessableEntity
	case CodeMaintenance:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
