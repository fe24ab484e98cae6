// Package dataaccess is the boundary to the underlying data store. It builds
// structured statements (expression trees, never string-assembled SQL) and
// executes them against postgres through pgx. Literal values stay opaque
// typed parameters bound at execution time.
package dataaccess

import (
	"fmt"
	"strconv"
	"strings"
)

// CompareOp is a binary comparison operator.
type CompareOp string

const (
	OpEq CompareOp = "="
	OpNe CompareOp = "<>"
	OpGt CompareOp = ">"
	OpGe CompareOp = ">="
	OpLt CompareOp = "<"
	OpLe CompareOp = "<="
)

// MatchKind selects how a Match expression anchors its pattern.
type MatchKind string

const (
	MatchContains   MatchKind = "contains"
	MatchStartsWith MatchKind = "startswith"
	MatchEndsWith   MatchKind = "endswith"
)

// Expr is a node of a predicate expression tree.
type Expr interface {
	render(r *exprRenderer) error
}

// Comparison compares a field against a typed literal.
type Comparison struct {
	Field string
	Op    CompareOp
	Value any
}

// Match is a substring match (contains/startswith/endswith) on a field.
type Match struct {
	Field string
	Kind  MatchKind
	Value string
}

// In tests field membership in a literal list.
type In struct {
	Field  string
	Values []any
}

// And conjoins sub-expressions.
type And struct {
	Exprs []Expr
}

// Or disjoins sub-expressions.
type Or struct {
	Exprs []Expr
}

type exprRenderer struct {
	sb   strings.Builder
	args []any
	// inline renders literals into the text (quotes doubled) instead of
	// binding them. Only used for logging; execution always binds.
	inline bool
}

func (r *exprRenderer) literal(value any) {
	if r.inline {
		r.sb.WriteString(InlineLiteral(value))
		return
	}
	r.args = append(r.args, value)
	r.sb.WriteString("$" + strconv.Itoa(len(r.args)))
}

func (c *Comparison) render(r *exprRenderer) error {
	if c.Value == nil {
		switch c.Op {
		case OpEq:
			r.sb.WriteString(quoteIdent(c.Field) + " IS NULL")
			return nil
		case OpNe:
			r.sb.WriteString(quoteIdent(c.Field) + " IS NOT NULL")
			return nil
		default:
			return fmt.Errorf("operator %s cannot compare against null", c.Op)
		}
	}
	r.sb.WriteString(quoteIdent(c.Field))
	r.sb.WriteString(" " + string(c.Op) + " ")
	r.literal(c.Value)
	return nil
}

func (m *Match) render(r *exprRenderer) error {
	pattern := escapeLikePattern(m.Value)
	switch m.Kind {
	case MatchContains:
		pattern = "%" + pattern + "%"
	case MatchStartsWith:
		pattern = pattern + "%"
	case MatchEndsWith:
		pattern = "%" + pattern
	default:
		return fmt.Errorf("unknown match kind %q", m.Kind)
	}
	r.sb.WriteString(quoteIdent(m.Field))
	r.sb.WriteString(" LIKE ")
	r.literal(pattern)
	return nil
}

func (i *In) render(r *exprRenderer) error {
	if len(i.Values) == 0 {
		// Empty IN matches nothing.
		r.sb.WriteString("1 = 0")
		return nil
	}
	r.sb.WriteString(quoteIdent(i.Field))
	r.sb.WriteString(" IN (")
	for idx, value := range i.Values {
		if idx > 0 {
			r.sb.WriteString(", ")
		}
		r.literal(value)
	}
	r.sb.WriteString(")")
	return nil
}

func renderJoined(r *exprRenderer, exprs []Expr, sep string) error {
	if len(exprs) == 1 {
		return exprs[0].render(r)
	}
	r.sb.WriteString("(")
	for idx, expr := range exprs {
		if idx > 0 {
			r.sb.WriteString(sep)
		}
		if err := expr.render(r); err != nil {
			return err
		}
	}
	r.sb.WriteString(")")
	return nil
}

func (a *And) render(r *exprRenderer) error {
	if len(a.Exprs) == 0 {
		r.sb.WriteString("1 = 1")
		return nil
	}
	return renderJoined(r, a.Exprs, " AND ")
}

func (o *Or) render(r *exprRenderer) error {
	if len(o.Exprs) == 0 {
		r.sb.WriteString("1 = 0")
		return nil
	}
	return renderJoined(r, o.Exprs, " OR ")
}

// RenderExpr renders an expression tree to a SQL fragment with positional
// placeholders and its bound arguments.
func RenderExpr(e Expr) (string, []any, error) {
	r := &exprRenderer{}
	if err := e.render(r); err != nil {
		return "", nil, err
	}
	return r.sb.String(), r.args, nil
}

// RenderExprInline renders an expression tree with literals inlined, string
// values escaped by doubling embedded quotes. Used for logging only; the
// execution path always binds parameters.
func RenderExprInline(e Expr) (string, error) {
	r := &exprRenderer{inline: true}
	if err := e.render(r); err != nil {
		return "", err
	}
	return r.sb.String(), nil
}

// EscapeLiteral quotes a string literal for textual SQL, doubling embedded
// single quotes.
func EscapeLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// InlineLiteral formats any literal value for textual SQL.
func InlineLiteral(value any) string {
	switch v := value.(type) {
	case nil:
		return "NULL"
	case string:
		return EscapeLiteral(v)
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// escapeLikePattern escapes LIKE wildcards inside a user-supplied value so
// the value matches literally.
func escapeLikePattern(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}

// quoteIdent quotes an identifier. Identifiers originate from the validated
// annotation model, never from raw agent input; quoting is belt and braces.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, ``) + `"`
}
