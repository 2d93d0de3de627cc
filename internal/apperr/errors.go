// Package apperr defines the coded error taxonomy shared by services and handlers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies an error for API responses.
type Code string

const (
	CodeValidation   Code = "VALIDATION_ERROR"
	CodeNotFound     Code = "NOT_FOUND"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeForbidden    Code = "FORBIDDEN"
	CodeRateLimited  Code = "RATE_LIMITED"
	CodeDatabase     Code = "DATABASE_ERROR"
	CodeUnexpected   Code = "UNEXPECTED_ERROR"
)

// Error is an error carrying a Code and a message safe to show to users.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an Error that wraps a cause.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Validation returns a VALIDATION_ERROR.
func Validation(message string) *Error {
	return New(CodeValidation, message)
}

// NotFound returns a NOT_FOUND error for the named resource.
func NotFound(resource string) *Error {
	return New(CodeNotFound, resource+" not found")
}

// Database wraps a backend failure.
func Database(message string, err error) *Error {
	return Wrap(CodeDatabase, message, err)
}

// RateLimited returns a RATE_LIMITED error.
func RateLimited() *Error {
	return New(CodeRateLimited, "too many requests, please try again later")
}

// CodeOf extracts the Code from err, or CodeUnexpected if err is not coded.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnexpected
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// Message returns the user-facing message for err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "an unexpected error occurred"
}

// HTTPStatus maps a Code to its HTTP status.
func HTTPStatus(code Code) int {
	switch code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeDatabase:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
