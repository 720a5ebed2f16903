// Package convert provides loose numeric conversion for exchange payloads,
// which mix strings, json.Number and floats for the same fields.
package convert

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ToFloat64 converts common wire representations to float64. Unsupported
// types and parse failures yield 0.
func ToFloat64(v any) float64 {
	switch t := v.(type) {
	case nil:
		return 0
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case uint64:
		return float64(t)
	case json.Number:
		f, _ := t.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f
	default:
		return 0
	}
}

// ParseFloat parses an exchange decimal string, returning 0 on failure or
// empty input.
func ParseFloat(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
