package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ekaya-inc/cds-mcp-bridge/pkg/access"
	"github.com/ekaya-inc/cds-mcp-bridge/pkg/annotations"
	"github.com/ekaya-inc/cds-mcp-bridge/pkg/auth"
	"github.com/ekaya-inc/cds-mcp-bridge/pkg/cds"
	"github.com/ekaya-inc/cds-mcp-bridge/pkg/compiler"
)

// RegisterOperationTools generates one MCP tool per annotated function or
// action. Bound operations additionally require the owning entity's key
// arguments, forwarded to the dispatcher alongside the declared parameters.
func RegisterOperationTools(s *server.MCPServer, deps *Deps) {
	for _, tool := range deps.Registry.Tools() {
		registerOperationTool(s, deps, tool)
	}
}

func registerOperationTool(s *server.MCPServer, deps *Deps, t *annotations.Tool) {
	desc := t.Description
	if t.Bound() {
		desc += fmt.Sprintf(" Bound %s: identify the target instance by its key field(s).", t.Kind)
	}
	if len(t.ElicitModes) > 0 {
		desc += " Confirmation modes: " + strings.Join(t.ElicitModes, ", ") + "."
	}

	opts := []mcp.ToolOption{mcp.WithDescription(desc)}
	if t.Kind == cds.KindFunction {
		opts = append(opts, mcp.WithReadOnlyHintAnnotation(true))
	}

	for _, name := range sortedKeys(t.Parameters) {
		opts = append(opts, paramOption(name, t.Parameters[name], true))
	}
	if t.Bound() {
		for _, name := range sortedKeys(t.Keys) {
			opts = append(opts, paramOption(name, t.Keys[name], true))
		}
	}

	mcpTool := mcp.NewTool(t.Name, opts...)
	s.AddTool(mcpTool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		user := auth.UserFromContext(ctx)
		if !access.HasOperationAccess(user, t.Restrictions) {
			return NewErrorResult("FORBIDDEN",
				fmt.Sprintf("access to %s is not permitted for this caller", t.Name)), nil
		}

		dispatcher, ok := deps.Dispatchers[t.Service]
		if !ok {
			return NewErrorResult(string(compiler.CodeMissingService),
				fmt.Sprintf("no service handler registered for %s", t.Service)), nil
		}

		args := req.GetArguments()
		if t.Bound() {
			for name, typeName := range t.Keys {
				if raw, ok := args[name]; ok {
					args[name] = compiler.CoerceKeyValue(typeName, raw)
				}
			}
		}

		result, err := dispatcher.Dispatch(ctx, t.Service, t.Operation, args)
		if err != nil {
			logToolError(deps.Logger, t.Name, err)
			return OperationErrorResult(err, compiler.CodeQueryFailed), nil
		}

		jsonBytes, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s result: %w", t.Name, err)
		}
		return mcp.NewToolResultText(string(jsonBytes)), nil
	})
}

// paramOption maps a resolved parameter type to a tool argument option.
func paramOption(name, typeName string, required bool) mcp.ToolOption {
	var propOpts []mcp.PropertyOption
	if required {
		propOpts = append(propOpts, mcp.Required())
	}
	propOpts = append(propOpts, mcp.Description(fmt.Sprintf("Parameter (%s)", typeName)))

	switch {
	case strings.HasSuffix(typeName, "Array"):
		return mcp.WithArray(name, append(propOpts, mcp.Items(map[string]any{}))...)
	case typeName == cds.TypeBoolean:
		return mcp.WithBoolean(name, propOpts...)
	case cds.IsSafeIntegerType(typeName) || typeName == cds.TypeDouble || typeName == cds.TypeDecimal:
		return mcp.WithNumber(name, propOpts...)
	default:
		return mcp.WithString(name, propOpts...)
	}
}

func sortedKeys(m map[string]string) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
