package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

const (
	HttpInternalError       = "internal_error"
	HttpInvalidRequestError = "invalid_request"
	HttpValidationError     = "validation_error"
	HttpTenantNotFoundError = "tenant_not_found"
	HttpNotFoundError       = "not_found"
	HttpStoreUnavailable    = "store_unavailable"
)

// Kind classifies an engine failure. Every error leaving the consumption
// service carries exactly one kind.
type Kind string

const (
	KindInternal         Kind = HttpInternalError
	KindValidation       Kind = HttpValidationError
	KindTenantNotFound   Kind = HttpTenantNotFoundError
	KindNotFound         Kind = HttpNotFoundError
	KindStoreUnavailable Kind = HttpStoreUnavailable
)

// Error is the structured error returned by the engine.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// E wraps err with a kind. An err that already carries a kind keeps it.
func E(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if stderrors.As(err, &existing) {
		return &Error{Kind: existing.Kind, Op: op, Err: err}
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a new error of the given kind.
func Errorf(kind Kind, op, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of err, or KindInternal when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps a kind onto its response status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindTenantNotFound, KindNotFound:
		return http.StatusNotFound
	case KindStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorResponse is the error response body for every API error.
type ErrorResponse struct {
	ErrorType string      `json:"error_type"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}

// Response renders err as a response body with the given human message.
func Response(err error, message string) ErrorResponse {
	return ErrorResponse{
		ErrorType: string(KindOf(err)),
		Message:   message,
		Details:   err.Error(),
	}
}
