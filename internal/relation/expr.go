package relation

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"

	"docmodel/internal/value"
)

// Expr is an unbound column expression. It is resolved against a frame's
// columns when the operation using it is built.
type Expr struct {
	alias string
	bind  func(cols []Column) (bound, error)
}

type bound struct {
	name string
	typ  ColumnType
	eval func(Row) value.Value
}

func (e Expr) resolve(cols []Column) (bound, error) {
	if e.bind == nil {
		return bound{}, fmt.Errorf("empty expression")
	}
	b, err := e.bind(cols)
	if err != nil {
		return bound{}, err
	}
	if e.alias != "" {
		b.name = e.alias
	}
	return b, nil
}

// Col references a column by name.
func Col(name string) Expr {
	return Expr{bind: func(cols []Column) (bound, error) {
		for i, c := range cols {
			if c.Name == name {
				idx := i
				return bound{name: name, typ: c.Type, eval: func(r Row) value.Value { return r[idx] }}, nil
			}
		}
		return bound{}, fmt.Errorf("%w: %s", ErrColumnNotFound, name)
	}}
}

// Lit is a constant.
func Lit(v value.Value) Expr {
	if v == nil {
		v = value.Null
	}
	return Expr{bind: func([]Column) (bound, error) {
		return bound{name: v.String(), typ: typeOfKind(v.Kind()), eval: func(Row) value.Value { return v }}, nil
	}}
}

// As names the expression's output column.
func (e Expr) As(alias string) Expr {
	e.alias = alias
	return e
}

func (e Expr) unary(suffix string, typ ColumnType, fn func(value.Value) value.Value) Expr {
	inner := e
	return Expr{bind: func(cols []Column) (bound, error) {
		b, err := inner.resolve(cols)
		if err != nil {
			return bound{}, err
		}
		return bound{
			name: b.name + suffix,
			typ:  typ,
			eval: func(r Row) value.Value { return fn(b.eval(r)) },
		}, nil
	}}
}

// Get extracts an object field; non-objects and missing keys yield null.
func (e Expr) Get(key string) Expr {
	return e.unary("["+key+"]", TypeVariant, func(v value.Value) value.Value {
		obj, ok := v.(*value.Object)
		if !ok {
			return value.Null
		}
		got, _ := obj.Get(key)
		return got
	})
}

// TypeOf yields the kind name of each value (ARRAY, OBJECT, STRING, ...).
func (e Expr) TypeOf() Expr {
	return e.unary("_TYPEOF", TypeText, func(v value.Value) value.Value {
		return value.String(value.KindOf(v).String())
	})
}

// AsString casts to text. Complex values render as canonical JSON.
func (e Expr) AsString() Expr {
	return e.unary("", TypeText, func(v value.Value) value.Value {
		s, ok := value.AsText(v)
		if !ok {
			return value.Null
		}
		return value.String(s)
	})
}

func (e Expr) IsNotNull() Expr {
	return e.unary("_NOTNULL", TypeBool, func(v value.Value) value.Value {
		return value.Bool(!value.IsNull(v))
	})
}

// IsIn reports membership in the candidate list.
func (e Expr) IsIn(candidates ...value.Value) Expr {
	return e.unary("_IN", TypeBool, func(v value.Value) value.Value {
		for _, c := range candidates {
			if value.Equal(v, c) {
				return value.Bool(true)
			}
		}
		return value.Bool(false)
	})
}

// SHA2 returns the hex digest of the text form of e. bits is one of 224,
// 256, 384, 512 (0 means 256). Null input yields null.
func SHA2(e Expr, bits int) Expr {
	var newHash func() hash.Hash
	switch bits {
	case 0, 256:
		newHash = sha256.New
	case 224:
		newHash = sha256.New224
	case 384:
		newHash = sha512.New384
	case 512:
		newHash = sha512.New
	default:
		return Expr{bind: func([]Column) (bound, error) {
			return bound{}, fmt.Errorf("unsupported SHA2 digest size: %d", bits)
		}}
	}
	return e.AsString().unary("_SHA2", TypeText, func(v value.Value) value.Value {
		s, ok := v.(value.String)
		if !ok {
			return value.Null
		}
		h := newHash()
		h.Write([]byte(s))
		return value.String(hex.EncodeToString(h.Sum(nil)))
	})
}
