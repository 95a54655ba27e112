package coerce

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

// ToString converts input to a string. nil becomes "".
func ToString(input interface{}) string {
	if input == nil {
		return ""
	}
	if b, ok := input.([]byte); ok {
		return string(b)
	}
	s, err := cast.ToStringE(input)
	if err != nil {
		return fmt.Sprintf("%v", input)
	}
	return s
}

// ToInt accepts numeric strings and whole floats. nil is 0.
func ToInt(input interface{}) (int, error) {
	if input == nil {
		return 0, nil
	}
	i, err := cast.ToIntE(input)
	if err != nil {
		return 0, fmt.Errorf("failed to coerce value '%v' (type %T) to int", input, input)
	}
	return i, nil
}

// ToIntDef is ToInt with a fallback for unparsable or empty input.
func ToIntDef(input interface{}, defaultVal int) int {
	if input == nil || input == "" {
		return defaultVal
	}
	i, err := ToInt(input)
	if err != nil {
		return defaultVal
	}
	return i
}

func ToInt64(input interface{}) (int64, error) {
	if input == nil {
		return 0, nil
	}
	i, err := cast.ToInt64E(input)
	if err != nil {
		return 0, fmt.Errorf("failed to coerce value '%v' (type %T) to int64", input, input)
	}
	return i, nil
}

// ToBool understands true/false, 1/0 and their string forms.
func ToBool(input interface{}) (bool, error) {
	if input == nil {
		return false, nil
	}
	b, err := cast.ToBoolE(input)
	if err != nil {
		return false, fmt.Errorf("failed to coerce value '%v' (type %T) to bool", input, input)
	}
	return b, nil
}

func ToSlice(input interface{}) ([]interface{}, error) {
	if input == nil {
		return nil, nil
	}
	s, err := cast.ToSliceE(input)
	if err != nil {
		return nil, fmt.Errorf("failed to coerce value (type %T) to slice", input)
	}
	return s, nil
}

// IsZeroID reports whether v is an absent or zero-valued identifier.
func IsZeroID(v interface{}) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return s == ""
	}
	i, err := cast.ToInt64E(v)
	if err != nil {
		return false
	}
	return i == 0
}

// unitSep separates tuple members in canonical identity strings.
const unitSep = "\x1f"

// Canonical renders an identity value as a map key. Numbers of any width and
// their decimal string forms collapse to the same key, so int64 ids scanned
// from a driver match int ids written in Go code, and a DECIMAL column read
// as "7.00" matches 7.
func Canonical(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return "\x00"
	case []interface{}:
		parts := make([]string, len(t))
		for i, p := range t {
			parts[i] = Canonical(p)
		}
		return "(" + strings.Join(parts, unitSep) + ")"
	case float32:
		if !isFinite(float64(t)) {
			return ToString(t)
		}
		return decimal.NewFromFloat32(t).String()
	case float64:
		if !isFinite(t) {
			return ToString(t)
		}
		return decimal.NewFromFloat(t).String()
	case decimal.Decimal:
		return t.String()
	default:
		s := ToString(t)
		if strings.Contains(s, ".") {
			if d, err := decimal.NewFromString(s); err == nil {
				return d.String()
			}
		}
		return s
	}
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
