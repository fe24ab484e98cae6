package compiler

import (
	"sort"

	"github.com/ekaya-inc/cds-mcp-bridge/pkg/annotations"
	"github.com/ekaya-inc/cds-mcp-bridge/pkg/cds"
	"github.com/ekaya-inc/cds-mcp-bridge/pkg/dataaccess"
	sqlguard "github.com/ekaya-inc/cds-mcp-bridge/pkg/sql"
)

// comparisonOps maps agent-facing operators to comparison operators.
var comparisonOps = map[string]dataaccess.CompareOp{
	"eq": dataaccess.OpEq,
	"ne": dataaccess.OpNe,
	"gt": dataaccess.OpGt,
	"ge": dataaccess.OpGe,
	"lt": dataaccess.OpLt,
	"le": dataaccess.OpLe,
}

// matchOps maps agent-facing operators to substring match kinds.
var matchOps = map[string]dataaccess.MatchKind{
	"contains":   dataaccess.MatchContains,
	"startswith": dataaccess.MatchStartsWith,
	"endswith":   dataaccess.MatchEndsWith,
}

// buildPredicate compiles the where clauses and the quick-search term into a
// single conjoined expression tree. Literal values stay opaque parameters;
// string values additionally pass the injection detector. Returns nil when
// the request carries no predicate at all.
func buildPredicate(res *annotations.Resource, req *QueryRequest) (dataaccess.Expr, *OperationError) {
	var exprs []dataaccess.Expr

	for _, clause := range req.Where {
		expr, err := compileClause(clause)
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, expr)
	}

	if req.QuickSearch != "" {
		if check := sqlguard.CheckValueForInjection("quickSearch", req.QuickSearch); check != nil {
			return nil, NewErrorWithDetails(CodeFilterParse, check,
				"quickSearch value failed the injection check")
		}
		if quick := quickSearchExpr(res, req.QuickSearch); quick != nil {
			exprs = append(exprs, quick)
		}
	}

	switch len(exprs) {
	case 0:
		return nil, nil
	case 1:
		return exprs[0], nil
	default:
		return &dataaccess.And{Exprs: exprs}, nil
	}
}

func compileClause(clause WhereClause) (dataaccess.Expr, *OperationError) {
	if check := sqlguard.CheckValueForInjection(clause.Field, clause.Value); check != nil {
		return nil, NewErrorWithDetails(CodeFilterParse, check,
			"filter value for %s failed the injection check", clause.Field)
	}

	if op, ok := comparisonOps[clause.Op]; ok {
		return &dataaccess.Comparison{Field: clause.Field, Op: op, Value: clause.Value}, nil
	}

	if kind, ok := matchOps[clause.Op]; ok {
		value, ok := clause.Value.(string)
		if !ok {
			return nil, NewError(CodeFilterParse, "operator %s on %s requires a string value", clause.Op, clause.Field)
		}
		return &dataaccess.Match{Field: clause.Field, Kind: kind, Value: value}, nil
	}

	if clause.Op == "in" {
		values, ok := clause.Value.([]any)
		if !ok {
			return nil, NewError(CodeFilterParse, "operator in on %s requires a list value", clause.Field)
		}
		for _, value := range values {
			if check := sqlguard.CheckValueForInjection(clause.Field, value); check != nil {
				return nil, NewErrorWithDetails(CodeFilterParse, check,
					"filter value for %s failed the injection check", clause.Field)
			}
		}
		return &dataaccess.In{Field: clause.Field, Values: values}, nil
	}

	return nil, NewError(CodeFilterParse, "unknown filter operator %q", clause.Op)
}

// quickSearchExpr expands a free-text term into an OR-chain of contains
// matches over every string-typed safe column. Nil when the resource has no
// string columns to search.
func quickSearchExpr(res *annotations.Resource, term string) dataaccess.Expr {
	var fields []string
	for name, typeName := range res.Properties {
		if res.IsOmitted(name) || !cds.IsStringType(typeName) {
			continue
		}
		fields = append(fields, name)
	}
	if len(fields) == 0 {
		return nil
	}
	sort.Strings(fields)

	exprs := make([]dataaccess.Expr, 0, len(fields))
	for _, field := range fields {
		exprs = append(exprs, &dataaccess.Match{
			Field: field,
			Kind:  dataaccess.MatchContains,
			Value: term,
		})
	}
	if len(exprs) == 1 {
		return exprs[0]
	}
	return &dataaccess.Or{Exprs: exprs}
}
