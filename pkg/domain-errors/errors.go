// Package domainerrors carries the error taxonomy shared by services and
// transports. Services return *Error values; handlers translate them into
// HTTP responses through Status.
package domainerrors

import (
	"errors"
	"net/http"
)

// Code identifies a class of domain failure. Codes are stable and appear
// verbatim in API error bodies.
type Code string

const (
	CodeBadRequest           Code = "bad_request"
	CodeValidation           Code = "validation_error"
	CodeUnknownSource        Code = "unknown_source"
	CodeReferentialIntegrity Code = "referential_integrity"
	CodeUnknownTable         Code = "unknown_table"
	CodeInvalidFilter        Code = "invalid_filter"
	CodeInvalidSort          Code = "invalid_sort"
	CodeExportTooLarge       Code = "export_too_large"
	CodeNotFound             Code = "not_found"
	CodeConflict             Code = "conflict"
	CodeUnauthorized         Code = "unauthorized"
	CodeRateLimited          Code = "rate_limited"
	CodeTimeout              Code = "timeout"
	CodeInternal             Code = "internal_error"
)

// Error is a domain error with a stable code and a client-safe message.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a domain error.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying error. A nil err yields nil.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode reports whether any error in err's chain carries code.
func HasCode(err error, code Code) bool {
	var de *Error
	for err != nil {
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}

// Is is an alias of HasCode kept for call sites that read better with it.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the outermost domain code in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf returns the outermost domain message in err's chain.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return ""
}

// Status maps a code to the HTTP status it is rendered with.
func Status(code Code) int {
	switch code {
	case CodeBadRequest, CodeValidation, CodeUnknownSource, CodeInvalidFilter, CodeInvalidSort:
		return http.StatusBadRequest
	case CodeNotFound, CodeUnknownTable:
		return http.StatusNotFound
	case CodeReferentialIntegrity, CodeConflict:
		return http.StatusConflict
	case CodeExportTooLarge:
		return http.StatusRequestEntityTooLarge
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
