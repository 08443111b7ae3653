package value

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"
)

// FromAny converts a Go value as produced by database drivers or
// encoding/json into a Value. Map keys are sorted since Go maps carry no
// order.
func FromAny(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null
	case Value:
		return t
	case bool:
		return Bool(t)
	case float64:
		return Number(t)
	case float32:
		return Number(t)
	case int:
		return FromInt(int64(t))
	case int8:
		return Number(t)
	case int16:
		return Number(t)
	case int32:
		return Number(t)
	case int64:
		return FromInt(t)
	case uint:
		return fromUint(uint64(t))
	case uint8:
		return Number(t)
	case uint16:
		return Number(t)
	case uint32:
		return Number(t)
	case uint64:
		return fromUint(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return FromInt(i)
		}
		if f, err := t.Float64(); err == nil {
			return Number(f)
		}
		return String(t.String())
	case string:
		return String(t)
	case []byte:
		return String(string(t))
	case time.Time:
		return String(t.UTC().Format(time.RFC3339Nano))
	case []any:
		arr := make(Array, len(t))
		for i, e := range t {
			arr[i] = FromAny(e)
		}
		return arr
	case []string:
		arr := make(Array, len(t))
		for i, e := range t {
			arr[i] = String(e)
		}
		return arr
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := NewObject()
		for _, k := range keys {
			obj.Set(k, FromAny(t[k]))
		}
		return obj
	case fmt.Stringer:
		return String(t.String())
	default:
		return String(fmt.Sprint(t))
	}
}

// fromUint keeps integers up to MaxInt64 exact; larger ones are rounded.
func fromUint(u uint64) Value {
	if u <= math.MaxInt64 {
		return FromInt(int64(u))
	}
	return Number(u)
}

// ToAny converts v into plain Go values: nil, bool, float64, int64, string,
// []any and map[string]any.
func ToAny(v Value) any {
	switch t := v.(type) {
	case nil, nullValue:
		return nil
	case Bool:
		return bool(t)
	case Number:
		return float64(t)
	case Int:
		return int64(t)
	case String:
		return string(t)
	case Array:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = ToAny(e)
		}
		return out
	case *Object:
		out := make(map[string]any, t.Len())
		for _, k := range t.keys {
			out[k] = ToAny(t.fields[k])
		}
		return out
	default:
		return v.String()
	}
}

// AsText renders v as text the way a cast to a string column would: strings
// are returned unquoted, complex values as canonical JSON. ok is false for
// null.
func AsText(v Value) (s string, ok bool) {
	switch t := v.(type) {
	case nil, nullValue:
		return "", false
	case String:
		return string(t), true
	case Number:
		return strconv.FormatFloat(float64(t), 'f', -1, 64), true
	case Int:
		return strconv.FormatInt(int64(t), 10), true
	default:
		return string(Canonical(v)), true
	}
}
