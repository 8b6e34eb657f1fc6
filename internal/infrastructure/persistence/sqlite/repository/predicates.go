package repository

import (
	"encoding/json"
	"reflect"

	"crms/internal/ports"
)

func matchesAll(fields map[string]any, predicates []ports.Predicate) bool {
	for _, predicate := range predicates {
		if !matches(fields, predicate) {
			return false
		}
	}
	return true
}

func matches(fields map[string]any, predicate ports.Predicate) bool {
	value, ok := fields[predicate.Field]
	if !ok {
		return false
	}

	switch predicate.Op {
	case ports.OpEqual:
		return valuesEqual(value, predicate.Value)
	case ports.OpArrayContains:
		items, ok := value.([]any)
		if !ok {
			return false
		}
		for _, item := range items {
			if valuesEqual(item, predicate.Value) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// valuesEqual compares a decoded JSON value with a caller-supplied one.
// Numbers compare by value regardless of Go numeric type.
func valuesEqual(stored any, want any) bool {
	if a, ok := asFloat(stored); ok {
		if b, ok := asFloat(want); ok {
			return a == b
		}
		return false
	}
	if reflect.DeepEqual(stored, want) {
		return true
	}

	// Fall back to comparing JSON forms so typed slices and maps match their decoded shape.
	storedRaw, err := json.Marshal(stored)
	if err != nil {
		return false
	}
	wantRaw, err := json.Marshal(want)
	if err != nil {
		return false
	}
	return string(storedRaw) == string(wantRaw)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
