package dataaccess

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Ordering is one sort fragment of a select.
type Ordering struct {
	Field string
	Desc  bool
}

// Aggregate is one aggregate projection: Func(Field) AS Alias.
type Aggregate struct {
	Func  string
	Field string
	Alias string
}

// Select is a structured read statement.
type Select struct {
	From    string
	Columns []string
	// CountOnly replaces the projection with count(1) AS count.
	CountOnly bool
	// Aggregates replaces the projection with aggregate expressions.
	Aggregates []Aggregate
	Where      Expr
	OrderBy    []Ordering
	Limit      int
	Offset     int
}

// aggregateFuncs is the bounded set of permitted aggregate functions.
var aggregateFuncs = map[string]struct{}{
	"min": {}, "max": {}, "sum": {}, "avg": {}, "count": {},
}

// SQL renders the select to parameterized SQL.
func (s *Select) SQL() (string, []any, error) {
	var sb strings.Builder
	var args []any

	sb.WriteString("SELECT ")
	switch {
	case s.CountOnly:
		sb.WriteString("count(1) AS count")
	case len(s.Aggregates) > 0:
		for idx, agg := range s.Aggregates {
			if _, ok := aggregateFuncs[agg.Func]; !ok {
				return "", nil, fmt.Errorf("unsupported aggregate function %q", agg.Func)
			}
			if idx > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(agg.Func + "(" + quoteIdent(agg.Field) + ") AS " + quoteIdent(agg.Alias))
		}
	case len(s.Columns) > 0:
		for idx, column := range s.Columns {
			if idx > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(quoteIdent(column))
		}
	default:
		sb.WriteString("*")
	}

	sb.WriteString(" FROM " + quoteIdent(s.From))

	if s.Where != nil {
		fragment, whereArgs, err := RenderExpr(s.Where)
		if err != nil {
			return "", nil, err
		}
		sb.WriteString(" WHERE " + fragment)
		args = append(args, whereArgs...)
	}

	if len(s.OrderBy) > 0 {
		sb.WriteString(" ORDER BY ")
		for idx, ordering := range s.OrderBy {
			if idx > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(quoteIdent(ordering.Field))
			if ordering.Desc {
				sb.WriteString(" DESC")
			}
		}
	}

	if s.Limit > 0 {
		sb.WriteString(" LIMIT " + strconv.Itoa(s.Limit))
	}
	if s.Offset > 0 {
		sb.WriteString(" OFFSET " + strconv.Itoa(s.Offset))
	}

	return sb.String(), args, nil
}

// Insert is a structured single-row insert.
type Insert struct {
	Into string
	Row  map[string]any
}

// SQL renders the insert to parameterized SQL with a RETURNING * clause so
// defaulted columns come back to the caller.
func (i *Insert) SQL() (string, []any, error) {
	if len(i.Row) == 0 {
		return "", nil, fmt.Errorf("insert into %s has no columns", i.Into)
	}

	columns := sortedKeys(i.Row)
	var sb strings.Builder
	args := make([]any, 0, len(columns))

	sb.WriteString("INSERT INTO " + quoteIdent(i.Into) + " (")
	for idx, column := range columns {
		if idx > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(quoteIdent(column))
	}
	sb.WriteString(") VALUES (")
	for idx, column := range columns {
		if idx > 0 {
			sb.WriteString(", ")
		}
		args = append(args, i.Row[column])
		sb.WriteString("$" + strconv.Itoa(len(args)))
	}
	sb.WriteString(") RETURNING *")

	return sb.String(), args, nil
}

// Update is a structured update statement.
type Update struct {
	Table string
	Set   map[string]any
	Where Expr
}

// SQL renders the update to parameterized SQL.
func (u *Update) SQL() (string, []any, error) {
	if len(u.Set) == 0 {
		return "", nil, fmt.Errorf("update of %s has no fields", u.Table)
	}

	columns := sortedKeys(u.Set)
	var sb strings.Builder
	args := make([]any, 0, len(columns))

	sb.WriteString("UPDATE " + quoteIdent(u.Table) + " SET ")
	for idx, column := range columns {
		if idx > 0 {
			sb.WriteString(", ")
		}
		args = append(args, u.Set[column])
		sb.WriteString(quoteIdent(column) + " = $" + strconv.Itoa(len(args)))
	}

	if u.Where != nil {
		fragment, whereArgs, err := renderExprOffset(u.Where, len(args))
		if err != nil {
			return "", nil, err
		}
		sb.WriteString(" WHERE " + fragment)
		args = append(args, whereArgs...)
	}

	return sb.String(), args, nil
}

// Delete is a structured delete statement.
type Delete struct {
	From  string
	Where Expr
}

// SQL renders the delete to parameterized SQL. A delete without a predicate
// is refused.
func (d *Delete) SQL() (string, []any, error) {
	if d.Where == nil {
		return "", nil, fmt.Errorf("delete from %s requires a predicate", d.From)
	}
	fragment, args, err := RenderExpr(d.Where)
	if err != nil {
		return "", nil, err
	}
	return "DELETE FROM " + quoteIdent(d.From) + " WHERE " + fragment, args, nil
}

// renderExprOffset renders an expression with placeholder numbering starting
// after already-bound arguments.
func renderExprOffset(e Expr, offset int) (string, []any, error) {
	r := &exprRenderer{args: make([]any, 0)}
	// Pre-fill placeholder numbering.
	r.args = append(r.args, make([]any, offset)...)
	if err := e.render(r); err != nil {
		return "", nil, err
	}
	return r.sb.String(), r.args[offset:], nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
