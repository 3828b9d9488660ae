package services

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"complaint-workflow-service/internal/models"
)

// Condition operators
const (
	OpEquals      = "eq"
	OpNotEquals   = "neq"
	OpIn          = "in"
	OpNotIn       = "not_in"
	OpGreater     = "gt"
	OpGreaterOrEq = "gte"
	OpLess        = "lt"
	OpLessOrEq    = "lte"
	OpContains    = "contains"
	OpExists      = "exists"
)

// IsKnownOperator reports whether op can be evaluated
func IsKnownOperator(op string) bool {
	switch op {
	case OpEquals, OpNotEquals, OpIn, OpNotIn, OpGreater, OpGreaterOrEq, OpLess, OpLessOrEq, OpContains, OpExists:
		return true
	}
	return false
}

// EvaluateConditions returns the next step of the first condition that
// matches payload, in declaration order.
func EvaluateConditions(conditions []models.Condition, payload map[string]interface{}) (string, bool) {
	for _, c := range conditions {
		if MatchCondition(c, payload) {
			return c.Next, true
		}
	}
	return "", false
}

// MatchCondition evaluates one condition. Fields may address nested
// objects with dots, e.g. "inspection.result".
func MatchCondition(c models.Condition, payload map[string]interface{}) bool {
	actual, present := lookupField(payload, c.Field)

	switch c.Operator {
	case OpExists:
		want := true
		if b, ok := c.Value.(bool); ok {
			want = b
		}
		return present == want
	case OpNotEquals:
		return !present || !valuesEqual(actual, c.Value)
	case OpNotIn:
		return !present || !inList(actual, c.Value)
	}

	if !present {
		return false
	}

	switch c.Operator {
	case OpEquals:
		return valuesEqual(actual, c.Value)
	case OpIn:
		return inList(actual, c.Value)
	case OpGreater, OpGreaterOrEq, OpLess, OpLessOrEq:
		cmp, ok := compareValues(actual, c.Value)
		if !ok {
			return false
		}
		switch c.Operator {
		case OpGreater:
			return cmp > 0
		case OpGreaterOrEq:
			return cmp >= 0
		case OpLess:
			return cmp < 0
		default:
			return cmp <= 0
		}
	case OpContains:
		return contains(actual, c.Value)
	}
	return false
}

func lookupField(payload map[string]interface{}, field string) (interface{}, bool) {
	if payload == nil || field == "" {
		return nil, false
	}
	if v, ok := payload[field]; ok {
		return v, true
	}

	var current interface{} = payload
	for _, part := range strings.Split(field, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func toNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func valuesEqual(a, b interface{}) bool {
	if an, ok := toNumber(a); ok {
		if bn, ok := toNumber(b); ok {
			return an == bn
		}
		if bs, ok := b.(string); ok {
			f, err := strconv.ParseFloat(bs, 64)
			return err == nil && f == an
		}
		return false
	}
	if as, ok := a.(string); ok {
		if bn, ok := toNumber(b); ok {
			f, err := strconv.ParseFloat(as, 64)
			return err == nil && f == bn
		}
	}
	return reflect.DeepEqual(a, b)
}

func inList(actual, list interface{}) bool {
	items, ok := list.([]interface{})
	if !ok {
		return valuesEqual(actual, list)
	}
	for _, item := range items {
		if valuesEqual(actual, item) {
			return true
		}
	}
	return false
}

// compareValues orders numbers numerically and strings lexically
func compareValues(a, b interface{}) (int, bool) {
	an, aNum := toNumber(a)
	bn, bNum := toNumber(b)
	if aNum && bNum {
		switch {
		case an < bn:
			return -1, true
		case an > bn:
			return 1, true
		}
		return 0, true
	}

	as, aStr := a.(string)
	bs, bStr := b.(string)
	if aStr && bStr {
		return strings.Compare(as, bs), true
	}
	return 0, false
}

func contains(actual, value interface{}) bool {
	switch v := actual.(type) {
	case string:
		return strings.Contains(v, fmt.Sprint(value))
	case []interface{}:
		for _, item := range v {
			if valuesEqual(item, value) {
				return true
			}
		}
	}
	return false
}
