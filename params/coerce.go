package params

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DefaultTruthyValues are the lowercase strings accepted as an affirmative
// yes/no parameter value.
var DefaultTruthyValues = []string{"si", "yes", "true", "1"}

// Text renders a parameter value as a string. Nil is reported as absent.
func Text(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, true
	case bool:
		return strconv.FormatBool(val), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32), true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case json.Number:
		return val.String(), true
	case fmt.Stringer:
		return val.String(), true
	default:
		return fmt.Sprint(val), true
	}
}

// Blank reports whether v is missing or renders as an empty/whitespace string.
func Blank(v any) bool {
	s, ok := Text(v)
	return !ok || strings.TrimSpace(s) == ""
}

// Truthy reports whether v is an affirmative value: boolean true, or a string
// form that case-insensitively equals one of accepted. Nil accepted means
// DefaultTruthyValues.
func Truthy(v any, accepted []string) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	s, ok := Text(v)
	if !ok {
		return false
	}
	if accepted == nil {
		accepted = DefaultTruthyValues
	}
	s = strings.TrimSpace(s)
	for _, a := range accepted {
		if strings.EqualFold(s, a) {
			return true
		}
	}
	return false
}

// Number coerces v to a finite float64. Strings are parsed after trimming, and a
// single decimal comma ("12,5") is accepted. Booleans are not numbers.
func Number(v any) (float64, bool) {
	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case float32:
		f = float64(val)
	case int:
		f = float64(val)
	case int64:
		f = float64(val)
	case json.Number:
		parsed, err := val.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		s := strings.TrimSpace(val)
		if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
			s = strings.Replace(s, ",", ".", 1)
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
