package types

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies an error for the API error envelope. Every error that can
// reach a client carries exactly one code.
type Code string

const (
	CodeInvalidRequestFormat  Code = "invalid_request_format"
	CodeMissingRequiredField  Code = "missing_required_field"
	CodeInvalidVerseReference Code = "invalid_verse_reference"
	CodeNotFound              Code = "resource_not_found"
	CodeUnauthorized          Code = "unauthorized"
	CodeForbidden             Code = "forbidden"
	CodeRateLimited           Code = "rate_limit_exceeded"
	CodeContentBlocked        Code = "content_blocked"
	CodeModelInferenceFailed  Code = "model_inference_failed"
	CodeAITimeout             Code = "ai_service_timeout"
	CodeStorageReadFailed     Code = "storage_read_failed"
	CodeStorageWriteFailed    Code = "storage_write_failed"
	CodeDatabaseQueryFailed   Code = "database_query_failed"
	CodeInternal              Code = "internal_server_error"
)

// Error is the single tagged error variant used across the service. It
// replaces a hierarchy of exception types with one code plus optional
// structured details.
type Error struct {
	Code    Code
	Message string
	Details any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E builds a tagged error
func E(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap tags an underlying error with a code, preserving the chain
func Wrap(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf extracts the code from an error chain. Untagged errors are
// classified as internal_server_error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// DetailsOf extracts structured details from an error chain, if any
func DetailsOf(err error) any {
	var e *Error
	if errors.As(err, &e) {
		return e.Details
	}
	return nil
}

// IsNotFound reports whether err carries resource_not_found
func IsNotFound(err error) bool {
	return CodeOf(err) == CodeNotFound
}

// HTTPStatus maps an error code to its response status
func HTTPStatus(code Code) int {
	switch code {
	case CodeInvalidRequestFormat, CodeMissingRequiredField, CodeInvalidVerseReference:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeContentBlocked:
		return http.StatusUnprocessableEntity
	case CodeModelInferenceFailed:
		return http.StatusBadGateway
	case CodeAITimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
