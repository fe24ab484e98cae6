package compiler

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/cds-mcp-bridge/pkg/annotations"
	"github.com/ekaya-inc/cds-mcp-bridge/pkg/cds"
	"github.com/ekaya-inc/cds-mcp-bridge/pkg/jsonutil"
)

// ReturnMode selects what a query execution returns.
type ReturnMode string

const (
	ReturnRows      ReturnMode = "rows"
	ReturnCount     ReturnMode = "count"
	ReturnAggregate ReturnMode = "aggregate"
)

// WhereClause is one agent-supplied filter clause.
type WhereClause struct {
	Field string
	Op    string
	Value any
}

// OrderClause is one agent-supplied sort directive.
type OrderClause struct {
	Field string
	Desc  bool
}

// AggregateClause is one requested aggregate.
type AggregateClause struct {
	Func  string
	Field string
}

// QueryRequest is the validated, request-scoped argument set for one query
// invocation.
type QueryRequest struct {
	Top         int
	Skip        int
	Select      []string
	OrderBy     []OrderClause
	Where       []WhereClause
	QuickSearch string
	ReturnMode  ReturnMode
	Aggregate   []AggregateClause
	Expand      []string
}

// ParseQueryRequest decodes the raw tool arguments into a QueryRequest.
// Shape violations are collected and returned together as INVALID_INPUT;
// nothing executes when parsing fails.
func ParseQueryRequest(args map[string]any) (*QueryRequest, *OperationError) {
	req := &QueryRequest{Top: -1, ReturnMode: ReturnRows}
	var violations []string

	if raw, ok := args["top"]; ok {
		if n, ok := jsonutil.FlexibleInt(raw); ok {
			req.Top = n
		} else {
			violations = append(violations, "top must be an integer")
		}
	}
	if raw, ok := args["skip"]; ok {
		if n, ok := jsonutil.FlexibleInt(raw); ok && n >= 0 {
			req.Skip = n
		} else {
			violations = append(violations, "skip must be a non-negative integer")
		}
	}

	req.Select = jsonutil.FlexibleStringSlice(args["select"])
	req.Expand = jsonutil.FlexibleStringSlice(args["expand"])
	req.QuickSearch = jsonutil.FlexibleString(args["quickSearch"])

	if raw, ok := args["returnMode"]; ok {
		mode := ReturnMode(jsonutil.FlexibleString(raw))
		switch mode {
		case ReturnRows, ReturnCount, ReturnAggregate:
			req.ReturnMode = mode
		default:
			violations = append(violations, fmt.Sprintf("unknown returnMode %q", mode))
		}
	}

	if raw, ok := args["orderby"]; ok {
		entries, ok := raw.([]any)
		if !ok {
			violations = append(violations, "orderby must be a list")
		}
		for _, entry := range entries {
			clause, ok := entry.(map[string]any)
			if !ok {
				violations = append(violations, "orderby entries must be objects")
				continue
			}
			field := jsonutil.FlexibleString(clause["field"])
			if field == "" {
				violations = append(violations, "orderby entry missing field")
				continue
			}
			direction := strings.ToLower(jsonutil.FlexibleString(clause["direction"]))
			if direction != "" && direction != "asc" && direction != "desc" {
				violations = append(violations, fmt.Sprintf("orderby direction must be asc or desc, got %q", direction))
				continue
			}
			req.OrderBy = append(req.OrderBy, OrderClause{Field: field, Desc: direction == "desc"})
		}
	}

	if raw, ok := args["where"]; ok {
		entries, ok := raw.([]any)
		if !ok {
			violations = append(violations, "where must be a list")
		}
		for _, entry := range entries {
			clause, ok := entry.(map[string]any)
			if !ok {
				violations = append(violations, "where entries must be objects")
				continue
			}
			field := jsonutil.FlexibleString(clause["field"])
			op := jsonutil.FlexibleString(clause["op"])
			if field == "" || op == "" {
				violations = append(violations, "where entry needs field and op")
				continue
			}
			req.Where = append(req.Where, WhereClause{Field: field, Op: op, Value: clause["value"]})
		}
	}

	if raw, ok := args["aggregate"]; ok {
		entries, ok := raw.([]any)
		if !ok {
			violations = append(violations, "aggregate must be a list")
		}
		for _, entry := range entries {
			clause, ok := entry.(map[string]any)
			if !ok {
				violations = append(violations, "aggregate entries must be objects")
				continue
			}
			fn := strings.ToLower(jsonutil.FlexibleString(clause["func"]))
			field := jsonutil.FlexibleString(clause["field"])
			if fn == "" || field == "" {
				violations = append(violations, "aggregate entry needs func and field")
				continue
			}
			req.Aggregate = append(req.Aggregate, AggregateClause{Func: fn, Field: field})
		}
	}

	if len(violations) > 0 {
		return nil, NewErrorWithDetails(CodeInvalidInput, violations, "invalid query arguments")
	}
	return req, nil
}

// validateQuery checks the parsed request against the resource's scalar-field
// grammar and capability set, and applies pagination defaults and bounds.
func (c *Compiler) validateQuery(res *annotations.Resource, req *QueryRequest) *OperationError {
	var violations []string

	if req.Top == -1 {
		req.Top = c.cfg.DefaultPageSize
	} else if !res.HasCapability(annotations.CapTop) {
		violations = append(violations, "top is not enabled for this resource")
	}
	if req.Top < 1 {
		violations = append(violations, "top must be at least 1")
	} else if req.Top > c.cfg.MaxPageSize {
		violations = append(violations, fmt.Sprintf("top exceeds the maximum page size of %d", c.cfg.MaxPageSize))
	}
	if req.Skip > 0 && !res.HasCapability(annotations.CapSkip) {
		violations = append(violations, "skip is not enabled for this resource")
	}

	if len(req.Select) > 0 && !res.HasCapability(annotations.CapSelect) {
		violations = append(violations, "select is not enabled for this resource")
	}
	for _, field := range req.Select {
		if err := validateScalarField(res, field, "select"); err != "" {
			violations = append(violations, err)
		}
	}

	if len(req.OrderBy) > 0 && !res.HasCapability(annotations.CapOrderBy) {
		violations = append(violations, "orderby is not enabled for this resource")
	}
	for _, clause := range req.OrderBy {
		if err := validateScalarField(res, clause.Field, "orderby"); err != "" {
			violations = append(violations, err)
		}
	}

	if (len(req.Where) > 0 || req.QuickSearch != "") && !res.HasCapability(annotations.CapFilter) {
		violations = append(violations, "filtering is not enabled for this resource")
	}
	for _, clause := range req.Where {
		if err := validateScalarField(res, clause.Field, "where"); err != "" {
			violations = append(violations, err)
		}
	}

	for _, clause := range req.Aggregate {
		if err := validateScalarField(res, clause.Field, "aggregate"); err != "" {
			violations = append(violations, err)
		}
	}
	if req.ReturnMode == ReturnAggregate && len(req.Aggregate) == 0 {
		violations = append(violations, "aggregate returnMode requires at least one aggregate clause")
	}

	for _, assoc := range req.Expand {
		if assoc == "*" {
			continue
		}
		if _, ok := res.AssociationTargets[assoc]; !ok {
			violations = append(violations, fmt.Sprintf("unknown association %q in expand", assoc))
		}
	}

	if len(violations) > 0 {
		return NewErrorWithDetails(CodeInvalidInput, violations, "invalid query arguments for %s", res.Name)
	}
	return nil
}

// validateScalarField enforces the shared accept/reject boundary for
// select/orderby/where/aggregate fields: declared, non-omitted, non-arrayed
// scalar properties only. Associations never appear in the property map, so
// they are rejected here by construction.
func validateScalarField(res *annotations.Resource, field, clause string) string {
	typeName, ok := res.Properties[field]
	if !ok {
		return fmt.Sprintf("unknown field %q in %s", field, clause)
	}
	if res.IsOmitted(field) {
		return fmt.Sprintf("field %q is not accessible in %s", field, clause)
	}
	if strings.HasSuffix(typeName, "Array") {
		return fmt.Sprintf("array field %q cannot be used in %s", field, clause)
	}
	if typeName == cds.TypeAssociation || typeName == cds.TypeComposition {
		return fmt.Sprintf("association %q cannot be used in %s", field, clause)
	}
	return ""
}
