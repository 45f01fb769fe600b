// Package errors defines the error taxonomy of the context service and the
// HTTP-facing AppError used by handlers.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrContextUnavailable is the only build failure callers see: the primary
	// tier could not be produced because its backing stores are down.
	ErrContextUnavailable = errors.New("context unavailable")

	ErrInvalidRequest = errors.New("invalid context request")

	// Source-level failures. They never leave the degradation wrapper.
	ErrSourceTimeout     = errors.New("source timed out")
	ErrSourceUnavailable = errors.New("source unavailable")

	ErrPrimaryFetchEmpty = errors.New("primary tier empty")
	ErrAssemblyInvariant = errors.New("assembly invariant violated")

	ErrNotFound = errors.New("not found")
)

// ErrorCode is the stable code returned in HTTP error bodies
type ErrorCode int

const (
	ErrBadRequest          ErrorCode = 1000
	ErrNotFoundCode        ErrorCode = 1004
	ErrContextUnavailCode  ErrorCode = 2001
	ErrUploadFailed        ErrorCode = 2002
	ErrInternalServerError ErrorCode = 5000
)

// AppError carries an HTTP status alongside the wrapped cause
type AppError struct {
	Code     ErrorCode `json:"code"`
	Message  string    `json:"message"`
	Details  any       `json:"details,omitempty"`
	HTTPCode int       `json:"-"`
	cause    error
}

func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.cause }

// WithDetails attaches extra information to the error body
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

func NewBadRequestError(message string) *AppError {
	return &AppError{Code: ErrBadRequest, Message: message, HTTPCode: http.StatusBadRequest}
}

func NewNotFoundError(message string) *AppError {
	return &AppError{Code: ErrNotFoundCode, Message: message, HTTPCode: http.StatusNotFound}
}

func NewContextUnavailableError(cause error) *AppError {
	return &AppError{
		Code:     ErrContextUnavailCode,
		Message:  "context temporarily unavailable",
		HTTPCode: http.StatusServiceUnavailable,
		cause:    cause,
	}
}

func NewUploadError(cause error) *AppError {
	return &AppError{Code: ErrUploadFailed, Message: "upload failed", HTTPCode: http.StatusBadGateway, cause: cause}
}

func NewInternalServerError(cause error) *AppError {
	return &AppError{
		Code:     ErrInternalServerError,
		Message:  "internal server error",
		HTTPCode: http.StatusInternalServerError,
		cause:    cause,
	}
}

// FromError maps a service error onto an AppError
func FromError(err error) *AppError {
	var appErr *AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, ErrInvalidRequest):
		return NewBadRequestError(err.Error())
	case errors.Is(err, ErrNotFound):
		return NewNotFoundError(err.Error())
	case errors.Is(err, ErrContextUnavailable):
		return NewContextUnavailableError(err)
	default:
		return NewInternalServerError(err)
	}
}

// Is and As re-export the standard helpers so callers need one import
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }
