package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jinzhu/inflection"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/cds-mcp-bridge/pkg/access"
	"github.com/ekaya-inc/cds-mcp-bridge/pkg/annotations"
	"github.com/ekaya-inc/cds-mcp-bridge/pkg/auth"
	"github.com/ekaya-inc/cds-mcp-bridge/pkg/cds"
	"github.com/ekaya-inc/cds-mcp-bridge/pkg/compiler"
	"github.com/ekaya-inc/cds-mcp-bridge/pkg/formatter"
)

// RegisterResourceTools generates the CRUD sub-tools for every registered
// resource. Restriction checks run again inside each handler; the session
// tool filter only controls visibility.
func RegisterResourceTools(s *server.MCPServer, deps *Deps) {
	for _, res := range deps.Registry.Resources() {
		for _, mode := range enabledModes(res) {
			switch mode {
			case annotations.ModeQuery:
				registerQueryTool(s, deps, res)
			case annotations.ModeGet:
				registerGetTool(s, deps, res)
			case annotations.ModeCreate:
				registerCreateTool(s, deps, res)
			case annotations.ModeUpdate:
				registerUpdateTool(s, deps, res)
			case annotations.ModeDelete:
				registerDeleteTool(s, deps, res)
			}
		}
	}
}

// checkResourceAccess enforces the resource's restrictions for one CRUD
// operation. A denied caller receives nil access; the caller returns an
// error result.
func checkResourceAccess(ctx context.Context, res *annotations.Resource, op annotations.Operation) bool {
	user := auth.UserFromContext(ctx)
	return access.ComputeWrapAccess(user, res.Restrictions).Allows(op)
}

func deniedResult(res *annotations.Resource) *mcp.CallToolResult {
	return NewErrorResult("FORBIDDEN", fmt.Sprintf("access to %s is not permitted for this caller", res.Name))
}

func registerQueryTool(s *server.MCPServer, deps *Deps, res *annotations.Resource) {
	desc := fmt.Sprintf("Query %s of the %s service. %s",
		inflection.Plural(res.Name), res.Service, res.Description)
	if hint := hintFor(res, annotations.ModeQuery); hint != "" {
		desc += " " + hint
	}
	desc += capabilitySummary(res)

	tool := mcp.NewTool(
		baseName(res)+"_query",
		mcp.WithDescription(desc),
		mcp.WithNumber("top", mcp.Description("Maximum number of rows to return")),
		mcp.WithNumber("skip", mcp.Description("Number of rows to skip")),
		mcp.WithArray("select",
			mcp.Description("Fields to return; defaults to all accessible fields"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithArray("orderby",
			mcp.Description("Sort directives, applied in order"),
			mcp.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"field":     map[string]any{"type": "string"},
					"direction": map[string]any{"type": "string", "enum": []string{"asc", "desc"}},
				},
				"required": []string{"field"},
			}),
		),
		mcp.WithArray("where",
			mcp.Description("Filter clauses, conjoined with AND. Operators: eq, ne, gt, ge, lt, le, contains, startswith, endswith, in"),
			mcp.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"field": map[string]any{"type": "string"},
					"op":    map[string]any{"type": "string"},
					"value": map[string]any{},
				},
				"required": []string{"field", "op"},
			}),
		),
		mcp.WithString("quickSearch",
			mcp.Description("Free-text term matched against all string fields"),
		),
		mcp.WithString("returnMode",
			mcp.Description("rows (default), count, or aggregate"),
			mcp.Enum("rows", "count", "aggregate"),
		),
		mcp.WithArray("aggregate",
			mcp.Description("Aggregates to compute when returnMode is aggregate. Functions: min, max, sum, avg, count"),
			mcp.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"func":  map[string]any{"type": "string"},
					"field": map[string]any{"type": "string"},
				},
				"required": []string{"func", "field"},
			}),
		),
		mcp.WithArray("expand",
			mcp.Description("Associations to expand into nested objects; * expands all"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if !checkResourceAccess(ctx, res, annotations.OpRead) {
			return deniedResult(res), nil
		}
		result, err := deps.Compiler.Query(ctx, res, req.GetArguments())
		if err != nil {
			logToolError(deps.Logger, tool.Name, err)
			return OperationErrorResult(err, compiler.CodeQueryFailed), nil
		}
		return formatter.QueryResult(res, result)
	})
}

func registerGetTool(s *server.MCPServer, deps *Deps, res *annotations.Resource) {
	desc := fmt.Sprintf("Get a single %s of the %s service by key. %s",
		res.Name, res.Service, res.Description)
	if hint := hintFor(res, annotations.ModeGet); hint != "" {
		desc += " " + hint
	}

	opts := []mcp.ToolOption{
		mcp.WithDescription(desc),
		mcp.WithReadOnlyHintAnnotation(true),
	}
	opts = append(opts, keyOptions(res)...)

	tool := mcp.NewTool(baseName(res)+"_get", opts...)
	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if !checkResourceAccess(ctx, res, annotations.OpRead) {
			return deniedResult(res), nil
		}
		row, err := deps.Compiler.Get(ctx, res, req.GetArguments())
		if err != nil {
			logToolError(deps.Logger, tool.Name, err)
			return OperationErrorResult(err, compiler.CodeGetFailed), nil
		}
		return formatter.RowResult(res, row)
	})
}

func registerCreateTool(s *server.MCPServer, deps *Deps, res *annotations.Resource) {
	desc := fmt.Sprintf("Create a new %s in the %s service. Writable fields: %s.",
		res.Name, res.Service, strings.Join(writableFields(res), ", "))
	if res.DraftEnabled {
		desc += " Creates a draft; the draft must be activated separately."
	}
	if hint := hintFor(res, annotations.ModeCreate); hint != "" {
		desc += " " + hint
	}

	tool := mcp.NewTool(
		baseName(res)+"_create",
		mcp.WithDescription(desc),
		mcp.WithObject("data",
			mcp.Required(),
			mcp.Description("Field values for the new row. Associations may be set by name (scalar key) or, when marked for deep insert, as nested objects"),
		),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if !checkResourceAccess(ctx, res, annotations.OpCreate) {
			return deniedResult(res), nil
		}
		data, ok := req.GetArguments()["data"].(map[string]any)
		if !ok {
			return NewErrorResult(string(compiler.CodeInvalidInput), "data must be an object"), nil
		}
		row, err := deps.Compiler.Create(ctx, res, data)
		if err != nil {
			logToolError(deps.Logger, tool.Name, err)
			return OperationErrorResult(err, compiler.CodeCreateFailed), nil
		}
		return formatter.RowResult(res, row)
	})
}

func registerUpdateTool(s *server.MCPServer, deps *Deps, res *annotations.Resource) {
	desc := fmt.Sprintf("Update an existing %s in the %s service by key.", res.Name, res.Service)
	if hint := hintFor(res, annotations.ModeUpdate); hint != "" {
		desc += " " + hint
	}

	opts := []mcp.ToolOption{
		mcp.WithDescription(desc),
		mcp.WithObject("data",
			mcp.Required(),
			mcp.Description("Field values to change; key fields cannot be rewritten"),
		),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
	}
	opts = append(opts, keyOptions(res)...)

	tool := mcp.NewTool(baseName(res)+"_update", opts...)
	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if !checkResourceAccess(ctx, res, annotations.OpUpdate) {
			return deniedResult(res), nil
		}
		args := req.GetArguments()
		data, ok := args["data"].(map[string]any)
		if !ok {
			return NewErrorResult(string(compiler.CodeInvalidInput), "data must be an object"), nil
		}
		merged := make(map[string]any, len(data)+len(res.Keys))
		for k, v := range data {
			merged[k] = v
		}
		for name := range res.Keys {
			if v, ok := args[name]; ok {
				merged[name] = v
			}
		}
		row, err := deps.Compiler.Update(ctx, res, merged)
		if err != nil {
			logToolError(deps.Logger, tool.Name, err)
			return OperationErrorResult(err, compiler.CodeUpdateFailed), nil
		}
		return formatter.RowResult(res, row)
	})
}

func registerDeleteTool(s *server.MCPServer, deps *Deps, res *annotations.Resource) {
	desc := fmt.Sprintf("Delete a %s of the %s service by key.", res.Name, res.Service)
	if hint := hintFor(res, annotations.ModeDelete); hint != "" {
		desc += " " + hint
	}

	opts := []mcp.ToolOption{
		mcp.WithDescription(desc),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
	}
	opts = append(opts, keyOptions(res)...)

	tool := mcp.NewTool(baseName(res)+"_delete", opts...)
	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if !checkResourceAccess(ctx, res, annotations.OpDelete) {
			return deniedResult(res), nil
		}
		count, err := deps.Compiler.Delete(ctx, res, req.GetArguments())
		if err != nil {
			logToolError(deps.Logger, tool.Name, err)
			return OperationErrorResult(err, compiler.CodeDeleteFailed), nil
		}
		return formatter.DeleteResult(count)
	})
}

// keyOptions generates one required argument per entity key. Safe integer
// keys are declared as numbers; everything else, including the
// precision-sensitive types, as strings.
func keyOptions(res *annotations.Resource) []mcp.ToolOption {
	names := make([]string, 0, len(res.Keys))
	for name := range res.Keys {
		names = append(names, name)
	}
	sort.Strings(names)

	opts := make([]mcp.ToolOption, 0, len(names))
	for _, name := range names {
		typeName := res.Keys[name]
		desc := fmt.Sprintf("Key field (%s)", typeName)
		if cds.IsSafeIntegerType(typeName) {
			opts = append(opts, mcp.WithNumber(name, mcp.Required(), mcp.Description(desc)))
		} else {
			opts = append(opts, mcp.WithString(name, mcp.Required(), mcp.Description(desc)))
		}
	}
	return opts
}

// writableFields lists the properties a create payload may carry.
func writableFields(res *annotations.Resource) []string {
	fields := make([]string, 0, len(res.Properties))
	for name := range res.Properties {
		if res.IsOmitted(name) || res.IsComputed(name) {
			continue
		}
		fields = append(fields, name)
	}
	sort.Strings(fields)
	return fields
}

// capabilitySummary appends the enabled query capabilities to a description.
func capabilitySummary(res *annotations.Resource) string {
	if len(res.Capabilities) == 0 {
		return ""
	}
	caps := make([]string, 0, len(res.Capabilities))
	for _, c := range res.Capabilities {
		caps = append(caps, string(c))
	}
	return " Supported query options: " + strings.Join(caps, ", ") + "."
}

func logToolError(logger *zap.Logger, tool string, err error) {
	if IsInputError(err) {
		logger.Debug("tool returned input error", zap.String("tool", tool), zap.Error(err))
		return
	}
	logger.Error("tool execution failed", zap.String("tool", tool), zap.Error(err))
}
