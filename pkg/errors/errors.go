package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Error kind codes.
const (
	CodeNotFound           = "NotFound"
	CodeLimitExceeded      = "LimitExceeded"
	CodeUnavailable        = "Unavailable"
	CodeConflict           = "Conflict"
	CodeTransactionFailure = "TransactionFailure"
	CodeEmptyResult        = "EmptyResult"
	CodeInvalidRequest     = "InvalidRequest"
	CodeUnauthorized       = "Unauthorized"
	CodeForbidden          = "Forbidden"
	CodeInternalError      = "InternalError"
)

// Sentinels for errors.Is; matching is by Code only.
var (
	ErrNotFound           = &StandardError{Code: CodeNotFound}
	ErrLimitExceeded      = &StandardError{Code: CodeLimitExceeded}
	ErrUnavailable        = &StandardError{Code: CodeUnavailable}
	ErrConflict           = &StandardError{Code: CodeConflict}
	ErrTransactionFailure = &StandardError{Code: CodeTransactionFailure}
	ErrEmptyResult        = &StandardError{Code: CodeEmptyResult}
	ErrInvalidRequest     = &StandardError{Code: CodeInvalidRequest}
	ErrUnauthorized       = &StandardError{Code: CodeUnauthorized}
	ErrForbidden          = &StandardError{Code: CodeForbidden}
)

// StandardError represents a standardized error response
type StandardError struct {
	Code    string `json:"error"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`

	cause error
}

func (e *StandardError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Message
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// HTTPStatus returns the appropriate HTTP status code for the error
func (e *StandardError) HTTPStatus() int {
	switch e.Code {
	case CodeInvalidRequest, CodeLimitExceeded, CodeUnavailable:
		return http.StatusBadRequest
	case CodeNotFound, CodeEmptyResult:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func New(code, message, details string) *StandardError {
	return &StandardError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

func NewNotFound(resource string, id interface{}) *StandardError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource), fmt.Sprintf("ID: %v", id))
}

func NewEmptyResult(resource string) *StandardError {
	return New(CodeEmptyResult, fmt.Sprintf("no %s found", resource), "")
}

func NewLimitExceeded(message string, limit, actual int) *StandardError {
	return New(CodeLimitExceeded, message, fmt.Sprintf("Limit: %d, Actual: %d", limit, actual))
}

func NewUnavailable(bookID string) *StandardError {
	return New(CodeUnavailable, "book is not available", fmt.Sprintf("Book ID: %s", bookID))
}

func NewConflict(message, details string) *StandardError {
	return New(CodeConflict, message, details)
}

func NewInvalidRequest(message, details string) *StandardError {
	return New(CodeInvalidRequest, message, details)
}

// NewTransactionFailure wraps a persistence error raised inside a rolled
// back transaction.
func NewTransactionFailure(operation string, err error) *StandardError {
	e := New(CodeTransactionFailure, fmt.Sprintf("transaction failed: %s", operation), err.Error())
	e.cause = err
	return e
}

func NewInternalError(message string, err error) *StandardError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	e := New(CodeInternalError, message, details)
	e.cause = err
	return e
}

// From returns the StandardError carried by err, or wraps err as an
// internal error.
func From(err error) *StandardError {
	var se *StandardError
	if stderrors.As(err, &se) {
		return se
	}
	return NewInternalError("internal server error", err)
}

// InTransaction keeps domain errors as they are and turns anything else
// into a TransactionFailure.
func InTransaction(operation string, err error) error {
	if err == nil {
		return nil
	}
	var se *StandardError
	if stderrors.As(err, &se) {
		return err
	}
	return NewTransactionFailure(operation, err)
}
