// Package sql provides SQL safety checks applied to agent-supplied values
// before they reach the data layer. Literals are always parameter-bound, so
// libinjection here is defense in depth, not the primary barrier.
package sql

import (
	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult contains the result of an injection check on a
// filter or search value.
type InjectionCheckResult struct {
	IsSQLi      bool   // True if SQL injection pattern detected
	Fingerprint string // libinjection fingerprint of the detected pattern
	Field       string // Field the value was supplied for
	Value       any    // The value that was checked
}

// CheckValueForInjection uses libinjection to detect SQL injection patterns
// in a filter value.
//
// Only string values are checked - numbers, booleans, and other types cannot
// contain SQL injection patterns and return nil (no injection detected).
func CheckValueForInjection(field string, value any) *InjectionCheckResult {
	strValue, ok := value.(string)
	if !ok {
		return nil
	}

	isSQLi, fingerprint := libinjection.IsSQLi(strValue)
	if isSQLi {
		return &InjectionCheckResult{
			IsSQLi:      true,
			Fingerprint: string(fingerprint),
			Field:       field,
			Value:       value,
		}
	}

	return nil
}

// CheckAllValues validates all filter values for SQL injection attempts.
// Returns one result per value that failed the check; empty when all values
// are clean.
func CheckAllValues(values map[string]any) []*InjectionCheckResult {
	var results []*InjectionCheckResult
	for field, value := range values {
		if result := CheckValueForInjection(field, value); result != nil {
			results = append(results, result)
		}
	}
	return results
}
