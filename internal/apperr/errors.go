/**
 * @description
 * Application error taxonomy shared across the service. Each class carries an
 * HTTP-ish status code and a stable machine code so that the API layer can map
 * failures to responses without inspecting message text, and the queue can
 * distinguish retryable provider failures from permanent validation failures.
 */

package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is the common shape for classified application errors.
type Error struct {
	Code       string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Validation marks bad input. Never retried.
func Validation(format string, args ...any) *Error {
	return &Error{Code: "VALIDATION_ERROR", StatusCode: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

// NotFound marks a missing entity. The raising caller does not retry; the
// entity may be corrected and reconciled later.
func NotFound(resource string) *Error {
	return &Error{Code: "NOT_FOUND", StatusCode: http.StatusNotFound, Message: resource + " not found"}
}

// Provider wraps an upstream provider failure. Retryable.
func Provider(err error) *Error {
	return &Error{Code: "PROVIDER_ERROR", StatusCode: http.StatusBadGateway, Message: "provider request failed", Err: err}
}

// StatusCode extracts the HTTP status for an error, defaulting to 500.
func StatusCode(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsRetryable reports whether the failure is worth retrying through the job
// queue. Validation and missing-entity failures are permanent.
func IsRetryable(err error) bool {
	var appErr *Error
	if !errors.As(err, &appErr) {
		return true
	}
	switch appErr.Code {
	case "VALIDATION_ERROR", "NOT_FOUND":
		return false
	}
	return true
}
