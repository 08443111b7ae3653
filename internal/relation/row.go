package relation

import (
	"github.com/cespare/xxhash/v2"

	"docmodel/internal/value"
)

// ColumnType is the static type a column is known to carry. Variant columns
// may hold any value kind.
type ColumnType uint8

const (
	TypeVariant ColumnType = iota
	TypeText
	TypeNumber
	TypeBool
)

func (t ColumnType) String() string {
	switch t {
	case TypeText:
		return "TEXT"
	case TypeNumber:
		return "NUMBER"
	case TypeBool:
		return "BOOLEAN"
	default:
		return "VARIANT"
	}
}

func typeOfKind(k value.Kind) ColumnType {
	switch k {
	case value.KindString:
		return TypeText
	case value.KindNumber:
		return TypeNumber
	case value.KindBool:
		return TypeBool
	default:
		return TypeVariant
	}
}

type Column struct {
	Name string
	Type ColumnType
}

// Row holds one cell per frame column, in column order.
type Row []value.Value

func (r Row) normalize() Row {
	out := make(Row, len(r))
	for i, v := range r {
		if v == nil {
			v = value.Null
		}
		out[i] = v
	}
	return out
}

func (r Row) equal(o Row) bool {
	if len(r) != len(o) {
		return false
	}
	for i := range r {
		if !value.Equal(r[i], o[i]) {
			return false
		}
	}
	return true
}

// hash digests the canonical encoding of every cell, so equal rows hash
// equal regardless of object key order.
func (r Row) hash() uint64 {
	d := xxhash.New()
	buf := make([]byte, 0, 64)
	for _, v := range r {
		buf = buf[:0]
		buf = append(buf, byte(value.KindOf(v)))
		buf = append(buf, value.Canonical(v)...)
		buf = append(buf, 0)
		_, _ = d.Write(buf)
	}
	return d.Sum64()
}
