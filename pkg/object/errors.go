package object

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies errors surfaced by the core to the API layer.
type Code string

const (
	CodeNoSuchKey  Code = "NoSuchKey"
	CodeBadRequest Code = "BadRequest"
	CodeForbidden  Code = "Forbidden"
	CodeInternal   Code = "Internal"
)

// Error is an API-visible error with a classification code, a client
// message and an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrNoSuchKey is returned when the requested key has no visible version.
var ErrNoSuchKey = &Error{Code: CodeNoSuchKey, Message: "The specified key does not exist."}

// BadRequest builds a client-error with the given reason.
func BadRequest(message string) *Error {
	return &Error{Code: CodeBadRequest, Message: message}
}

// Forbidden builds a quota/permission error with the given reason.
func Forbidden(format string, args ...any) *Error {
	return &Error{Code: CodeForbidden, Message: fmt.Sprintf(format, args...)}
}

// InternalError wraps a failure from the table layer, the block layer or a
// worker.
func InternalError(err error) *Error {
	return &Error{Code: CodeInternal, Message: "Internal error", Err: err}
}

// CodeOf extracts the classification of any error; unclassified errors are
// internal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// MessageOf returns the client-visible message of an error.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "Internal error"
}

// HTTPStatus maps an error code to its HTTP response status.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNoSuchKey:
		return http.StatusNotFound
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// AWSCode maps an error code to the code element of an S3 error response.
func (c Code) AWSCode() string {
	switch c {
	case CodeNoSuchKey:
		return "NoSuchKey"
	case CodeBadRequest:
		return "InvalidRequest"
	case CodeForbidden:
		return "AccessDenied"
	default:
		return "InternalError"
	}
}
