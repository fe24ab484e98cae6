package compiler

import (
	"sort"
	"strconv"

	"github.com/ekaya-inc/cds-mcp-bridge/pkg/annotations"
	"github.com/ekaya-inc/cds-mcp-bridge/pkg/cds"
	"github.com/ekaya-inc/cds-mcp-bridge/pkg/dataaccess"
)

// CoerceKeyValue normalizes a key argument to the representation its declared
// type needs at the data layer. Digit strings become numbers for the integer
// types that fit a float64 exactly; Int64 and Decimal go the other way, since
// a JSON number would lose precision. Values that already match, or that
// cannot be converted, pass through unchanged and fail later with a typed
// execution error.
func CoerceKeyValue(typeName string, value any) any {
	switch {
	case cds.IsSafeIntegerType(typeName):
		s, ok := value.(string)
		if !ok {
			return value
		}
		if !isIntegerLiteral(s, cds.IsUnsignedType(typeName)) {
			return value
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return value
		}
		return n

	case cds.IsPrecisionSensitiveType(typeName):
		switch v := value.(type) {
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case int:
			return strconv.Itoa(v)
		case int64:
			return strconv.FormatInt(v, 10)
		}
		return value
	}
	return value
}

// isIntegerLiteral reports whether s is a plain base-10 integer literal. A
// leading minus sign is accepted unless the type is unsigned.
func isIntegerLiteral(s string, unsigned bool) bool {
	if s == "" {
		return false
	}
	if s[0] == '-' {
		if unsigned || len(s) == 1 {
			return false
		}
		s = s[1:]
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// coerceKeys extracts and coerces every declared key from the arguments.
// Any missing key fails the whole call with MISSING_KEY before the data
// layer is touched.
func coerceKeys(res *annotations.Resource, args map[string]any) (map[string]any, *OperationError) {
	keys := make(map[string]any, len(res.Keys))
	var missing []string
	for name, typeName := range res.Keys {
		raw, ok := args[name]
		if !ok || raw == nil {
			missing = append(missing, name)
			continue
		}
		keys[name] = CoerceKeyValue(typeName, raw)
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, NewErrorWithDetails(CodeMissingKey, missing,
			"missing key field(s) for %s", res.Name)
	}
	return keys, nil
}

// keyPredicate builds the equality conjunction addressing exactly one entity
// instance.
func keyPredicate(res *annotations.Resource, args map[string]any) (dataaccess.Expr, *OperationError) {
	keys, err := coerceKeys(res, args)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(keys))
	for name := range keys {
		names = append(names, name)
	}
	sort.Strings(names)

	exprs := make([]dataaccess.Expr, 0, len(names))
	for _, name := range names {
		exprs = append(exprs, &dataaccess.Comparison{Field: name, Op: dataaccess.OpEq, Value: keys[name]})
	}
	if len(exprs) == 1 {
		return exprs[0], nil
	}
	return &dataaccess.And{Exprs: exprs}, nil
}
