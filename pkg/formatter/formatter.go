// Package formatter shapes compiled operation results into protocol content.
// Omitted fields are stripped here as well, so a result can never leak a
// field the annotation hides, regardless of what the execution path
// returned.
package formatter

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ekaya-inc/cds-mcp-bridge/pkg/annotations"
	"github.com/ekaya-inc/cds-mcp-bridge/pkg/compiler"
)

// QueryResult shapes a query execution into a JSON tool result. Row results
// carry the rows plus their count; count mode carries the bare count;
// aggregate mode carries the single aggregate row.
func QueryResult(res *annotations.Resource, result *compiler.QueryResult) (*mcp.CallToolResult, error) {
	switch result.Mode {
	case compiler.ReturnCount:
		var count any
		if len(result.Rows) > 0 {
			count = result.Rows[0]["count"]
		}
		return textResult(map[string]any{"count": count})

	case compiler.ReturnAggregate:
		var aggregates map[string]any
		if len(result.Rows) > 0 {
			aggregates = result.Rows[0]
		}
		return textResult(map[string]any{"aggregates": aggregates})

	default:
		rows := FilterRows(res, result.Rows)
		return textResult(map[string]any{"results": rows, "count": len(rows)})
	}
}

// RowResult shapes a single-row result (get, create, update).
func RowResult(res *annotations.Resource, row map[string]any) (*mcp.CallToolResult, error) {
	return textResult(FilterRow(res, row))
}

// DeleteResult reports how many rows a delete removed.
func DeleteResult(count int64) (*mcp.CallToolResult, error) {
	return textResult(map[string]any{"deleted": count})
}

// FilterRows strips omitted fields from every row.
func FilterRows(res *annotations.Resource, rows []map[string]any) []map[string]any {
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		out = append(out, FilterRow(res, row))
	}
	return out
}

// FilterRow strips omitted fields from one row.
func FilterRow(res *annotations.Resource, row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for key, value := range row {
		if res.IsOmitted(key) {
			continue
		}
		out[key] = value
	}
	return out
}

func textResult(payload any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}
