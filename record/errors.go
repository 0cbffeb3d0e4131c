package record

import (
	"errors"
	"net/http"
)

// Code classifies failures returned to callers of the coordinator.
type Code string

const (
	CodeNotFound            Code = "NOT_FOUND"
	CodeVersionConflict     Code = "VERSION_CONFLICT"
	CodeStoreUnavailable    Code = "STORE_UNAVAILABLE"
	CodeUpstreamUnavailable Code = "UPSTREAM_UNAVAILABLE"
	CodeInvalidInput        Code = "INVALID_INPUT"
)

// HTTPStatus maps a code to the status an HTTP layer would answer with.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeVersionConflict:
		return http.StatusConflict
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeStoreUnavailable:
		return http.StatusServiceUnavailable
	case CodeUpstreamUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Sentinels for errors.Is checks. Matching is by code only.
var (
	ErrNotFound            = &Error{Code: CodeNotFound, Message: "record not found"}
	ErrVersionConflict     = &Error{Code: CodeVersionConflict, Message: "version conflict"}
	ErrStoreUnavailable    = &Error{Code: CodeStoreUnavailable, Message: "store unavailable"}
	ErrUpstreamUnavailable = &Error{Code: CodeUpstreamUnavailable, Message: "upstream unavailable"}
	ErrInvalidInput        = &Error{Code: CodeInvalidInput, Message: "invalid input"}
)

// Error is the typed failure surfaced by the store, remote client and coordinator.
type Error struct {
	Code    Code
	Message string
	Key     string
	Cause   error
}

// NewError creates an error for key without an underlying cause.
func NewError(code Code, key, message string) *Error {
	return &Error{Code: code, Key: key, Message: message}
}

// Wrap creates an error for key that wraps cause.
func Wrap(code Code, key, message string, cause error) *Error {
	return &Error{Code: code, Key: key, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	msg := string(e.Code) + ": " + e.Message
	if e.Key != "" {
		msg += " (key=" + e.Key + ")"
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target carries the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// CodeOf extracts the code from err, or "" when err is not an *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
