// Package jsonutil normalizes loosely-typed values from JSON tool arguments,
// where agents may send numbers as strings and vice versa.
package jsonutil

import (
	"fmt"
	"math"
	"strconv"
)

// FlexibleString converts a decoded JSON value to a string, handling agents
// that send numbers or booleans where strings are expected. Returns empty
// string for nil.
func FlexibleString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		if v == math.Trunc(v) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// FlexibleInt converts a decoded JSON value to an int. JSON numbers arrive
// as float64; agents occasionally send digit strings. The second return is
// false when the value is absent or not integral.
func FlexibleInt(value any) (int, bool) {
	switch v := value.(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int(v), true
	case int:
		return v, true
	case int64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// FlexibleStringSlice converts a decoded JSON value to a string slice. A
// scalar string yields a one-element slice.
func FlexibleStringSlice(value any) []string {
	switch v := value.(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, entry := range v {
			if s, ok := entry.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	default:
		return nil
	}
}
