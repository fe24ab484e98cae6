package tools

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/cds-mcp-bridge/pkg/compiler"
)

func decodeError(t *testing.T, result *mcp.CallToolResult) ErrorResponse {
	t.Helper()
	require.True(t, result.IsError)
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(text.Text), &resp))
	return resp
}

func TestNewErrorResult(t *testing.T) {
	resp := decodeError(t, NewErrorResult("INVALID_INPUT", "top must be a number"))
	assert.Equal(t, "INVALID_INPUT", resp.Error)
	assert.Equal(t, "top must be a number", resp.Message)
	assert.Nil(t, resp.Details)
}

func TestNewErrorResultWithDetails(t *testing.T) {
	resp := decodeError(t, NewErrorResultWithDetails("MISSING_KEY", "missing key field(s)", []string{"ID"}))
	assert.Equal(t, "MISSING_KEY", resp.Error)
	assert.Equal(t, []any{"ID"}, resp.Details)
}

func TestOperationErrorResult(t *testing.T) {
	t.Run("operation errors keep their code", func(t *testing.T) {
		err := compiler.NewError(compiler.CodeGetFailed, "books not found for the given keys")
		resp := decodeError(t, OperationErrorResult(err, compiler.CodeQueryFailed))
		assert.Equal(t, string(compiler.CodeGetFailed), resp.Error)
		assert.Equal(t, "books not found for the given keys", resp.Message)
	})

	t.Run("plain errors take the fallback code", func(t *testing.T) {
		resp := decodeError(t, OperationErrorResult(errors.New("boom"), compiler.CodeQueryFailed))
		assert.Equal(t, string(compiler.CodeQueryFailed), resp.Error)
		assert.Equal(t, "boom", resp.Message)
	})
}

func TestIsInputError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{
			"validation codes are input errors",
			compiler.NewError(compiler.CodeInvalidInput, "bad top"),
			true,
		},
		{
			"missing key is an input error",
			compiler.NewError(compiler.CodeMissingKey, "missing key field(s)"),
			true,
		},
		{
			"execution failure from infrastructure is not",
			compiler.WrapError(compiler.CodeQueryFailed, errors.New("connection refused"), "query failed"),
			false,
		},
		{
			"execution failure from a constraint violation is",
			compiler.WrapError(compiler.CodeCreateFailed,
				&pgconn.PgError{Code: "23505", Message: "duplicate key"}, "create failed"),
			true,
		},
		{
			"execution failure from a data exception is",
			compiler.WrapError(compiler.CodeUpdateFailed,
				&pgconn.PgError{Code: "22P02", Message: "invalid input syntax"}, "update failed"),
			true,
		},
		{
			"not-found failures are input errors",
			compiler.NewError(compiler.CodeDeleteFailed, "books not found for the given keys"),
			true,
		},
		{"plain infrastructure error", errors.New("dial tcp: refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsInputError(tt.err))
		})
	}
}
