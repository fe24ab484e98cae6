package compiler

import (
	"errors"
	"fmt"
)

// Code identifies the failure class of an operation. These codes are part of
// the contract with the registration layer and surface verbatim in tool
// results.
type Code string

const (
	CodeInvalidInput      Code = "INVALID_INPUT"
	CodeMissingService    Code = "ERR_MISSING_SERVICE"
	CodeMissingKey        Code = "MISSING_KEY"
	CodeNoFields          Code = "NO_FIELDS"
	CodeFilterParse       Code = "FILTER_PARSE_ERROR"
	CodeQueryFailed       Code = "QUERY_FAILED"
	CodeGetFailed         Code = "GET_FAILED"
	CodeCreateFailed      Code = "CREATE_FAILED"
	CodeUpdateFailed      Code = "UPDATE_FAILED"
	CodeDeleteFailed      Code = "DELETE_FAILED"
	CodeDraftCreateFailed Code = "DRAFT_CREATE_FAILED"
	CodeTimeout           Code = "TIMEOUT"
)

// OperationError is the typed error every compiler stage fails with. It
// never escapes the operation boundary as a panic or an untyped error.
type OperationError struct {
	Code    Code
	Message string
	Details any
	cause   error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the cause so callers can inspect driver errors underneath
// the operation code.
func (e *OperationError) Unwrap() error {
	return e.cause
}

// NewError creates an OperationError with a formatted message.
func NewError(code Code, format string, args ...any) *OperationError {
	return &OperationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// NewErrorWithDetails creates an OperationError carrying structured details,
// such as the list of validation violations.
func NewErrorWithDetails(code Code, details any, format string, args ...any) *OperationError {
	return &OperationError{Code: code, Message: fmt.Sprintf(format, args...), Details: details}
}

// WrapError creates an OperationError around a data-layer cause.
func WrapError(code Code, cause error, format string, args ...any) *OperationError {
	return &OperationError{Code: code, Message: fmt.Sprintf(format, args...), cause: cause}
}

// AsOperationError extracts an OperationError from an error chain.
func AsOperationError(err error) (*OperationError, bool) {
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr, true
	}
	return nil, false
}
