package extract

import (
	"encoding/json"
	"math"
	"strconv"
)

// ToNumber coerces an untyped JSON value to a finite float64.
// Missing values, non-numeric values, NaN and infinities all yield def, so
// downstream arithmetic never sees a non-finite number.
func ToNumber(v any, def float64) float64 {
	f, ok := asFloat(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return def
	}
	return f
}

// asFloat converts the value shapes encoding/json produces (float64,
// json.Number when decoders use UseNumber, and numeric strings, which several
// upstream revisions emit for prices) into a float64.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		if n == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
