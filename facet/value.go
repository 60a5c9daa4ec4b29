package facet

import (
	"cmp"
	"encoding/json"
	"fmt"
	"math"
)

// NormalizeValue maps decoded bucket values onto the canonical kinds string,
// int64, float64 and bool. Integral floats become int64, which undoes the
// number widening of JSON round trips.
func NormalizeValue(v any) any {
	switch t := v.(type) {
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case uint32:
		return int64(t)
	case float32:
		return NormalizeValue(float64(t))
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return int64(t)
		}
		return t
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	default:
		return v
	}
}

func normalizeAll(vals []any) []any {
	for i, v := range vals {
		vals[i] = NormalizeValue(v)
	}
	return vals
}

func kindRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case int64, float64:
		return 2
	case string:
		return 3
	default:
		return 4
	}
}

// CompareValues orders bucket values. Values of the same kind compare
// naturally; int64 and float64 compare numerically; otherwise nil < bool <
// numbers < strings < anything else.
func CompareValues(a, b any) int {
	a, b = NormalizeValue(a), NormalizeValue(b)
	ra, rb := kindRank(a), kindRank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch x := a.(type) {
	case nil:
		return 0
	case bool:
		y := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		default:
			return 1
		}
	case int64:
		switch y := b.(type) {
		case int64:
			return cmp.Compare(x, y)
		case float64:
			return cmp.Compare(float64(x), y)
		}
	case float64:
		switch y := b.(type) {
		case int64:
			return cmp.Compare(x, float64(y))
		case float64:
			return cmp.Compare(x, y)
		}
	case string:
		return cmp.Compare(x, b.(string))
	}
	return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

// SameKind reports whether a and b normalize to the same Go type.
func SameKind(a, b any) bool {
	return fmt.Sprintf("%T", NormalizeValue(a)) == fmt.Sprintf("%T", NormalizeValue(b))
}
