package tools

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ekaya-inc/cds-mcp-bridge/pkg/compiler"
)

// ErrorResponse represents a structured error in tool results. Actionable
// failures are returned as a successful tool result carrying this payload,
// so the agent sees the code and details instead of an opaque protocol
// error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// NewErrorResult creates a tool result containing a structured error.
func NewErrorResult(code, message string) *mcp.CallToolResult {
	return NewErrorResultWithDetails(code, message, nil)
}

// NewErrorResultWithDetails creates an error result with additional context,
// such as the list of validation violations or an injection fingerprint.
func NewErrorResultWithDetails(code, message string, details any) *mcp.CallToolResult {
	resp := ErrorResponse{
		Error:   code,
		Message: message,
		Details: details,
	}
	jsonBytes, _ := json.Marshal(resp)
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

// OperationErrorResult converts a compiler failure into a structured error
// result. Non-operation errors fall back to the given code.
func OperationErrorResult(err error, fallback compiler.Code) *mcp.CallToolResult {
	if opErr, ok := compiler.AsOperationError(err); ok {
		return NewErrorResultWithDetails(string(opErr.Code), opErr.Message, opErr.Details)
	}
	return NewErrorResult(string(fallback), err.Error())
}

// IsInputError reports whether the error is caused by the caller's input
// rather than a server failure. Input errors are logged at debug level.
func IsInputError(err error) bool {
	if err == nil {
		return false
	}
	if opErr, ok := compiler.AsOperationError(err); ok {
		switch opErr.Code {
		case compiler.CodeQueryFailed, compiler.CodeCreateFailed,
			compiler.CodeUpdateFailed, compiler.CodeDeleteFailed,
			compiler.CodeDraftCreateFailed, compiler.CodeTimeout:
			return isConstraintError(err)
		default:
			return true
		}
	}
	return isConstraintError(err)
}

// isConstraintError detects the PostgreSQL SQLSTATE classes that indicate a
// payload problem (data exception, constraint violation) rather than an
// infrastructure failure.
func isConstraintError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 {
		switch pgErr.Code[:2] {
		case "22", "23":
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "invalid")
}
