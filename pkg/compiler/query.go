package compiler

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ekaya-inc/cds-mcp-bridge/pkg/annotations"
	"github.com/ekaya-inc/cds-mcp-bridge/pkg/dataaccess"
)

// QueryResult carries the post-filtered rows of one query execution.
type QueryResult struct {
	Mode ReturnMode
	Rows []map[string]any
}

// expandSpec is one resolved expansion directive.
type expandSpec struct {
	Assoc     string
	Target    *annotations.Resource
	FK        string
	TargetKey string
}

// Query runs the full query pipeline for a resource: parse, validate,
// compile, execute per return mode, expand, and post-filter. Every stage
// fails fast with a typed OperationError.
func (c *Compiler) Query(ctx context.Context, res *annotations.Resource, args map[string]any) (*QueryResult, error) {
	req, perr := ParseQueryRequest(args)
	if perr != nil {
		return nil, perr
	}
	if verr := c.validateQuery(res, req); verr != nil {
		return nil, verr
	}

	// Expansion is resolved before the select-column decision: expanded
	// associations pull their foreign-key columns into the projection.
	expands, eerr := c.resolveExpands(res, req)
	if eerr != nil {
		return nil, eerr
	}

	predicate, perr2 := buildPredicate(res, req)
	if perr2 != nil {
		return nil, perr2
	}

	stmt := &dataaccess.Select{
		From:    dataaccess.TableName(res.Target),
		Columns: selectColumns(res, req, expands),
		Where:   predicate,
		Limit:   req.Top,
		Offset:  req.Skip,
	}
	// Count and aggregate projections have no orderable output columns.
	if req.ReturnMode == ReturnRows {
		for _, clause := range req.OrderBy {
			stmt.OrderBy = append(stmt.OrderBy, dataaccess.Ordering{Field: clause.Field, Desc: clause.Desc})
		}
	}

	switch req.ReturnMode {
	case ReturnCount:
		stmt.CountOnly = true
	case ReturnAggregate:
		for _, clause := range req.Aggregate {
			stmt.Aggregates = append(stmt.Aggregates, dataaccess.Aggregate{
				Func:  clause.Func,
				Field: clause.Field,
				Alias: clause.Func + "_" + clause.Field,
			})
		}
	}

	execCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	rows, err := c.runtime.Query(execCtx, stmt)
	if err != nil {
		return nil, c.execError(err, CodeQueryFailed)
	}

	if req.ReturnMode == ReturnRows {
		if err := c.applyExpands(execCtx, rows, expands); err != nil {
			return nil, c.execError(err, CodeQueryFailed)
		}
		rows = c.postFilter(res, req, rows, expands)
	}

	return &QueryResult{Mode: req.ReturnMode, Rows: rows}, nil
}

// Get reads a single row addressed by its key fields.
func (c *Compiler) Get(ctx context.Context, res *annotations.Resource, args map[string]any) (map[string]any, error) {
	predicate, kerr := keyPredicate(res, args)
	if kerr != nil {
		return nil, kerr
	}

	stmt := &dataaccess.Select{
		From:    dataaccess.TableName(res.Target),
		Columns: safeColumns(res),
		Where:   predicate,
		Limit:   1,
	}

	execCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	rows, err := c.runtime.Query(execCtx, stmt)
	if err != nil {
		return nil, c.execError(err, CodeGetFailed)
	}
	if len(rows) == 0 {
		return nil, NewError(CodeGetFailed, "%s not found for the given keys", res.Name)
	}
	return filterRow(rows[0], res.Omitted), nil
}

// resolveExpands turns the expand directives into specs over registered
// resources. "*" expands every association whose target is itself a
// registered resource; naming an unexpandable association is an input error.
func (c *Compiler) resolveExpands(res *annotations.Resource, req *QueryRequest) ([]expandSpec, *OperationError) {
	if len(req.Expand) == 0 || req.ReturnMode != ReturnRows {
		return nil, nil
	}

	names := req.Expand
	wildcard := false
	for _, name := range names {
		if name == "*" {
			wildcard = true
			break
		}
	}
	if wildcard {
		names = make([]string, 0, len(res.AssociationTargets))
		for assoc := range res.AssociationTargets {
			names = append(names, assoc)
		}
		sort.Strings(names)
	}

	var specs []expandSpec
	for _, assoc := range names {
		target := res.AssociationTargets[assoc]
		targetRes, ok := c.registry.Resource(target)
		if !ok {
			if wildcard {
				continue
			}
			return nil, NewError(CodeInvalidInput, "association %q cannot be expanded", assoc)
		}
		fk, ok := res.ForeignKeys[assoc]
		if !ok {
			if wildcard {
				continue
			}
			return nil, NewError(CodeInvalidInput, "association %q has no foreign key", assoc)
		}
		specs = append(specs, expandSpec{
			Assoc:     assoc,
			Target:    targetRes,
			FK:        fk,
			TargetKey: strings.TrimPrefix(fk, assoc+"_"),
		})
	}
	return specs, nil
}

// applyExpands attaches each expanded association as a nested object,
// resolved through one batched lookup per association keyed by the collected
// foreign-key values. Sub-selections are limited to the target's own safe
// columns.
func (c *Compiler) applyExpands(ctx context.Context, rows []map[string]any, expands []expandSpec) error {
	for _, spec := range expands {
		values := make([]any, 0, len(rows))
		seen := make(map[string]struct{})
		for _, row := range rows {
			value, ok := row[spec.FK]
			if !ok || value == nil {
				continue
			}
			key := fmt.Sprintf("%v", value)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			values = append(values, value)
		}
		if len(values) == 0 {
			continue
		}

		children, err := c.runtime.Query(ctx, &dataaccess.Select{
			From:    dataaccess.TableName(spec.Target.Target),
			Columns: safeColumns(spec.Target),
			Where:   &dataaccess.In{Field: spec.TargetKey, Values: values},
		})
		if err != nil {
			return err
		}

		index := make(map[string]map[string]any, len(children))
		for _, child := range children {
			index[fmt.Sprintf("%v", child[spec.TargetKey])] = filterRow(child, spec.Target.Omitted)
		}
		for _, row := range rows {
			value, ok := row[spec.FK]
			if !ok || value == nil {
				continue
			}
			if child, found := index[fmt.Sprintf("%v", value)]; found {
				row[spec.Assoc] = child
			}
		}
	}
	return nil
}

// postFilter drops omitted fields and the foreign-key columns that were only
// pulled in to drive expansion.
func (c *Compiler) postFilter(res *annotations.Resource, req *QueryRequest, rows []map[string]any, expands []expandSpec) []map[string]any {
	extraFKs := make(map[string]struct{})
	if len(req.Select) > 0 {
		requested := make(map[string]struct{}, len(req.Select))
		for _, field := range req.Select {
			requested[field] = struct{}{}
		}
		for _, spec := range expands {
			if _, ok := requested[spec.FK]; !ok {
				extraFKs[spec.FK] = struct{}{}
			}
		}
	}

	filtered := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		out := filterRow(row, res.Omitted)
		for fk := range extraFKs {
			delete(out, fk)
		}
		filtered = append(filtered, out)
	}
	return filtered
}

// selectColumns projects the requested columns, or all safe columns when the
// request does not specify any. Expanded associations force their foreign-key
// columns into the projection so rows can be merged.
func selectColumns(res *annotations.Resource, req *QueryRequest, expands []expandSpec) []string {
	if len(req.Select) == 0 {
		return safeColumns(res)
	}

	columns := make([]string, 0, len(req.Select)+len(expands))
	have := make(map[string]struct{}, len(req.Select))
	for _, field := range req.Select {
		columns = append(columns, field)
		have[field] = struct{}{}
	}
	for _, spec := range expands {
		if _, ok := have[spec.FK]; !ok {
			columns = append(columns, spec.FK)
			have[spec.FK] = struct{}{}
		}
	}
	return columns
}

// safeColumns returns the resource's non-omitted scalar properties in
// deterministic order.
func safeColumns(res *annotations.Resource) []string {
	columns := make([]string, 0, len(res.Properties))
	for name := range res.Properties {
		if res.IsOmitted(name) {
			continue
		}
		columns = append(columns, name)
	}
	sort.Strings(columns)
	return columns
}

// filterRow copies a row without its omitted fields.
func filterRow(row map[string]any, omitted map[string]struct{}) map[string]any {
	out := make(map[string]any, len(row))
	for key, value := range row {
		if _, drop := omitted[key]; drop {
			continue
		}
		out[key] = value
	}
	return out
}
