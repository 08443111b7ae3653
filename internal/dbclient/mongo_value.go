package dbclient

import (
	"encoding/hex"
	"math"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"docmodel/internal/value"
)

// fromBSON converts a decoded BSON value into a Value. Document field order
// is kept for bson.D; bson.M keys are sorted.
func fromBSON(x any) value.Value {
	switch t := x.(type) {
	case bson.D:
		obj := value.NewObject()
		for _, e := range t {
			obj.Set(e.Key, fromBSON(e.Value))
		}
		return obj
	case bson.M:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := value.NewObject()
		for _, k := range keys {
			obj.Set(k, fromBSON(t[k]))
		}
		return obj
	case bson.A:
		arr := make(value.Array, len(t))
		for i, e := range t {
			arr[i] = fromBSON(e)
		}
		return arr
	case []any:
		return fromBSON(bson.A(t))
	case bson.ObjectID:
		return value.String(t.Hex())
	case bson.DateTime:
		return value.String(t.Time().UTC().Format(time.RFC3339Nano))
	case bson.Decimal128:
		return value.String(t.String())
	case bson.Binary:
		return value.String(hex.EncodeToString(t.Data))
	case bson.Null, bson.Undefined:
		return value.Null
	default:
		return value.FromAny(x)
	}
}

// toBSON converts a Value into a driver value. Integral numbers are stored
// as int64 so they read back as integers.
func toBSON(v value.Value) any {
	switch t := v.(type) {
	case nil:
		return nil
	case *value.Object:
		d := make(bson.D, 0, t.Len())
		for _, k := range t.Keys() {
			child, _ := t.Get(k)
			d = append(d, bson.E{Key: k, Value: toBSON(child)})
		}
		return d
	case value.Array:
		a := make(bson.A, len(t))
		for i, e := range t {
			a[i] = toBSON(e)
		}
		return a
	case value.Number:
		f := float64(t)
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return int64(f)
		}
		return f
	case value.Int:
		return int64(t)
	case value.String:
		return string(t)
	case value.Bool:
		return bool(t)
	default:
		return nil
	}
}
