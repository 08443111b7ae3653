package relation

import (
	"context"
	"fmt"
	"strconv"

	"docmodel/internal/value"
)

// Columns appended by Explode.
const (
	ColSeq   = "SEQ"
	ColKey   = "KEY"
	ColPath  = "PATH"
	ColIndex = "INDEX"
	ColValue = "VALUE"
	ColThis  = "THIS"
)

// ExplodeColumns lists the columns Explode appends, in order.
var ExplodeColumns = []string{ColSeq, ColKey, ColPath, ColIndex, ColValue, ColThis}

type ExplodeMode uint8

const (
	ExplodeArray ExplodeMode = iota + 1
	ExplodeObject
	ExplodeBoth
)

func (m ExplodeMode) String() string {
	switch m {
	case ExplodeArray:
		return "ARRAY"
	case ExplodeObject:
		return "OBJECT"
	case ExplodeBoth:
		return "BOTH"
	}
	return "ExplodeMode(" + strconv.Itoa(int(m)) + ")"
}

// Explode joins every row with the elements of its column col, appending
// SEQ, KEY, PATH, INDEX, VALUE and THIS. Arrays yield one row per element
// with INDEX set; objects yield one row per entry with KEY set. When outer
// is true, a row whose input is null, empty or of the wrong kind is kept
// once with null KEY, PATH, INDEX and VALUE; otherwise it is dropped.
func (f *Frame) Explode(col string, mode ExplodeMode, outer bool) *Frame {
	if f.err != nil {
		return f.fail(nil)
	}
	src := f.index(col)
	if src < 0 {
		return f.fail(fmt.Errorf("explode: %w: %s", ErrColumnNotFound, col))
	}
	cols := f.Columns()
	for _, name := range ExplodeColumns {
		if f.HasColumn(name) {
			return f.fail(fmt.Errorf("explode %s: %w: %s", col, ErrDuplicateColumn, name))
		}
		t := TypeVariant
		switch name {
		case ColSeq, ColIndex:
			t = TypeNumber
		case ColKey, ColPath:
			t = TypeText
		}
		cols = append(cols, Column{Name: name, Type: t})
	}

	return f.derive(cols, func(ctx context.Context, in []Row) ([]Row, error) {
		var out []Row
		emit := func(r Row, seq int, key, path, index, val, this value.Value) {
			nr := make(Row, 0, len(r)+len(ExplodeColumns))
			nr = append(nr, r...)
			nr = append(nr, value.Number(seq), key, path, index, val, this)
			out = append(out, nr)
		}
		for i, r := range in {
			if i%1024 == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}
			seq := i + 1
			this := r[src]
			produced := false
			switch t := this.(type) {
			case value.Array:
				if mode == ExplodeObject {
					break
				}
				for idx, elem := range t {
					emit(r, seq, value.Null, value.String("["+strconv.Itoa(idx)+"]"), value.Number(idx), elem, this)
					produced = true
				}
			case *value.Object:
				if mode == ExplodeArray {
					break
				}
				for _, k := range t.Keys() {
					v, _ := t.Get(k)
					emit(r, seq, value.String(k), value.String(k), value.Null, v, this)
					produced = true
				}
			}
			if !produced && outer {
				emit(r, seq, value.Null, value.Null, value.Null, value.Null, this)
			}
		}
		return out, nil
	})
}
