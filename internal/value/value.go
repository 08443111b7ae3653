package value

import (
	"sort"
)

// ── Value ──────────────────────────────────────────────────
// Dynamic representation of a document field: a tagged union over
// Null, Bool, Number, String, Array and Object.

// Value is implemented by every member of the union.
type Value interface {
	Kind() Kind
	Equal(v Value) bool
	Clone() Value
	String() string
}

var (
	_ Value = Null
	_ Value = Bool(true)
	_ Value = Number(0)
	_ Value = Int(0)
	_ Value = String("")
	_ Value = Array{}
	_ Value = (*Object)(nil)
)

// KindOf returns the kind of v, treating a nil interface as Null.
func KindOf(v Value) Kind {
	if v == nil {
		return KindNull
	}
	return v.Kind()
}

// IsNull reports whether v is nil or the Null value.
func IsNull(v Value) bool { return KindOf(v) == KindNull }

// Equal compares two values, treating nil as Null.
func Equal(a, b Value) bool {
	if a == nil {
		a = Null
	}
	if b == nil {
		b = Null
	}
	return a.Equal(b)
}

type nullValue struct{}

// Null is the single null value.
var Null = nullValue{}

func (nullValue) Kind() Kind                   { return KindNull }
func (nullValue) Equal(v Value) bool           { return KindOf(v) == KindNull }
func (nullValue) Clone() Value                 { return Null }
func (nullValue) String() string               { return "null" }
func (nullValue) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

type Bool bool

func (b Bool) Kind() Kind { return KindBool }
func (b Bool) Equal(v Value) bool {
	o, ok := v.(Bool)
	return ok && o == b
}
func (b Bool) Clone() Value   { return b }
func (b Bool) String() string { return string(AppendJSON(nil, b)) }

// Number holds a JSON number as a float64. Integers beyond ±2^53 are Ints.
type Number float64

func (n Number) Kind() Kind { return KindNumber }
func (n Number) Equal(v Value) bool {
	switch o := v.(type) {
	case Number:
		return o == n
	case Int:
		return o.Equal(n)
	}
	return false
}
func (n Number) Clone() Value   { return n }
func (n Number) String() string { return string(AppendJSON(nil, n)) }

// maxExactInt bounds the integers a float64 holds exactly.
const maxExactInt = 1 << 53

// Int holds an integer a float64 would round. Integers within ±2^53 are
// always Numbers, so such a value has a single representation.
type Int int64

// FromInt returns i as a Number when a float64 holds it exactly and as an
// Int otherwise.
func FromInt(i int64) Value {
	if i >= -maxExactInt && i <= maxExactInt {
		return Number(i)
	}
	return Int(i)
}

func (i Int) Kind() Kind { return KindNumber }

// Equal compares by decimal text, so a float that rounds to the same
// integer is equal and any other float is not.
func (i Int) Equal(v Value) bool {
	switch o := v.(type) {
	case Int:
		return o == i
	case Number:
		return string(AppendJSON(nil, o)) == string(AppendJSON(nil, i))
	}
	return false
}
func (i Int) Clone() Value   { return i }
func (i Int) String() string { return string(AppendJSON(nil, i)) }

type String string

func (s String) Kind() Kind { return KindString }
func (s String) Equal(v Value) bool {
	o, ok := v.(String)
	return ok && o == s
}
func (s String) Clone() Value   { return s }
func (s String) String() string { return string(AppendJSON(nil, s)) }

// Array is an ordered sequence of values.
type Array []Value

func (a Array) Kind() Kind { return KindArray }
func (a Array) Equal(v Value) bool {
	o, ok := v.(Array)
	if !ok || len(o) != len(a) {
		return false
	}
	for i := range a {
		if !Equal(a[i], o[i]) {
			return false
		}
	}
	return true
}
func (a Array) Clone() Value {
	out := make(Array, len(a))
	for i, v := range a {
		if v == nil {
			out[i] = Null
			continue
		}
		out[i] = v.Clone()
	}
	return out
}
func (a Array) String() string               { return string(AppendJSON(nil, a)) }
func (a Array) MarshalJSON() ([]byte, error) { return AppendJSON(nil, a), nil }

// Object is an ordered mapping of field name to value. Insertion order is
// kept for output; equality and canonical encoding ignore it.
type Object struct {
	keys   []string
	fields map[string]Value
}

// NewObject returns an empty object.
func NewObject() *Object {
	return &Object{fields: make(map[string]Value)}
}

// Set adds or replaces a field. A new key is appended to the key order.
func (o *Object) Set(key string, v Value) *Object {
	if v == nil {
		v = Null
	}
	if _, ok := o.fields[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.fields[key] = v
	return o
}

// Get returns the field value and whether it was present.
func (o *Object) Get(key string) (Value, bool) {
	if o == nil {
		return Null, false
	}
	v, ok := o.fields[key]
	if !ok {
		return Null, false
	}
	return v, true
}

// Delete removes a field and reports whether it was present.
func (o *Object) Delete(key string) bool {
	if _, ok := o.fields[key]; !ok {
		return false
	}
	delete(o.fields, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
	return true
}

// Keys returns the field names in insertion order.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	out := make([]string, len(o.keys))
	copy(out, o.keys)
	return out
}

func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

func (o *Object) Kind() Kind { return KindObject }

func (o *Object) Equal(v Value) bool {
	other, ok := v.(*Object)
	if !ok || other.Len() != o.Len() {
		return false
	}
	for _, k := range o.keys {
		ov, ok := other.fields[k]
		if !ok || !Equal(o.fields[k], ov) {
			return false
		}
	}
	return true
}

func (o *Object) Clone() Value {
	out := NewObject()
	if o == nil {
		return out
	}
	for _, k := range o.keys {
		out.Set(k, o.fields[k].Clone())
	}
	return out
}

func (o *Object) String() string               { return string(AppendJSON(nil, o)) }
func (o *Object) MarshalJSON() ([]byte, error) { return AppendJSON(nil, o), nil }

func (o *Object) sortedKeys() []string {
	keys := o.Keys()
	sort.Strings(keys)
	return keys
}
