package engine

import (
	"strconv"
	"strings"
)

// clauseMatches decides whether a single clause is satisfied by the given
// attributes. It is total: malformed input resolves to non-match, never a
// panic. A missing attribute fails the clause, except for the negative
// operators not_equals and not_contains, which treat "absent" as "not equal
// to / not containing anything".
func clauseMatches(c Clause, attrs CustomerAttributes) bool {
	val, ok := attrs[c.Attribute]
	if !ok {
		return c.Operator == OpNotEquals || c.Operator == OpNotContains
	}

	switch c.Operator {
	case OpEquals:
		return valueEquals(val, c.Value)
	case OpNotEquals:
		return !valueEquals(val, c.Value)
	case OpGreaterThan, OpLessThan, OpGreaterThanOrEqual, OpLessThanOrEqual:
		return numericCompare(c.Operator, val, c.Value)
	case OpContains:
		return valueContains(val, c.Value)
	case OpNotContains:
		return !valueContains(val, c.Value)
	case OpIsTrue:
		b, isBool := val.(bool)
		return isBool && b
	case OpIsFalse:
		b, isBool := val.(bool)
		return isBool && !b
	default:
		return false
	}
}

// valueEquals compares as strings, except when the attribute is a runtime
// boolean, in which case the clause value is parsed as "true"/"false"
// (case-insensitive). An unparseable clause value counts as unequal.
func valueEquals(val any, clauseVal string) bool {
	if b, isBool := val.(bool); isBool {
		want, ok := parseBool(clauseVal)
		return ok && want == b
	}
	return stringify(val) == clauseVal
}

func valueContains(val any, clauseVal string) bool {
	return strings.Contains(strings.ToLower(stringify(val)), strings.ToLower(clauseVal))
}

func numericCompare(op Operator, val any, clauseVal string) bool {
	av, ok := toFloat(val)
	if !ok {
		return false
	}
	cv, err := strconv.ParseFloat(strings.TrimSpace(clauseVal), 64)
	if err != nil {
		return false
	}
	switch op {
	case OpGreaterThan:
		return av > cv
	case OpLessThan:
		return av < cv
	case OpGreaterThanOrEqual:
		return av >= cv
	case OpLessThanOrEqual:
		return av <= cv
	}
	return false
}

// toFloat coerces number-typed attributes (and numeric strings) to float64.
// Booleans are not numbers here.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case bool:
		return strconv.FormatBool(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(s), 'f', -1, 32)
	case int:
		return strconv.Itoa(s)
	case int32:
		return strconv.FormatInt(int64(s), 10)
	case int64:
		return strconv.FormatInt(s, 10)
	default:
		return ""
	}
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true":
		return true, true
	case "false":
		return false, true
	default:
		return false, false
	}
}
