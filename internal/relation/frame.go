package relation

import (
	"context"
	"fmt"

	"github.com/samber/lo"

	"docmodel/internal/value"
)

type stepFunc func(ctx context.Context, in []Row) ([]Row, error)

// Frame is an immutable, lazily evaluated table. Errors raised while
// building a chain are deferred and reported by Err, Collect and Count.
type Frame struct {
	engine  *Engine
	id      uint64
	columns []Column
	parent  *Frame
	step    stepFunc
	err     error
}

// Err returns the first error recorded while building this frame.
func (f *Frame) Err() error { return f.err }

func (f *Frame) Engine() *Engine { return f.engine }

// Columns returns a copy of the column directory.
func (f *Frame) Columns() []Column {
	out := make([]Column, len(f.columns))
	copy(out, f.columns)
	return out
}

func (f *Frame) ColumnNames() []string {
	return lo.Map(f.columns, func(c Column, _ int) string { return c.Name })
}

func (f *Frame) HasColumn(name string) bool {
	return f.index(name) >= 0
}

func (f *Frame) index(name string) int {
	for i, c := range f.columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

func (f *Frame) derive(cols []Column, step stepFunc) *Frame {
	if f.err != nil {
		return f.engine.failed(f.err)
	}
	if err := checkUnique(cols); err != nil {
		return f.engine.failed(err)
	}
	return f.engine.newFrame(cols, f, step)
}

func (f *Frame) fail(err error) *Frame {
	if f.err != nil {
		return f.engine.failed(f.err)
	}
	return f.engine.failed(err)
}

// ── Materialization ────────────────────────────────────────

func (f *Frame) rows(ctx context.Context) ([]Row, error) {
	if f.err != nil {
		return nil, f.err
	}
	if cached, ok := f.engine.cache.Get(f.id); ok {
		return cached, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var in []Row
	if f.parent != nil {
		var err error
		if in, err = f.parent.rows(ctx); err != nil {
			return nil, err
		}
	}
	out, err := f.step(ctx, in)
	if err != nil {
		return nil, err
	}
	f.engine.cache.Add(f.id, out)
	return out, nil
}

// Collect executes the frame and returns its rows. The returned rows are
// copies and may be modified by the caller.
func (f *Frame) Collect(ctx context.Context) ([]Row, error) {
	rows, err := f.rows(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = append(Row(nil), r...)
	}
	return out, nil
}

func (f *Frame) Count(ctx context.Context) (int, error) {
	rows, err := f.rows(ctx)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// Objects executes the frame and returns each row as an object keyed by
// column name, in column order.
func (f *Frame) Objects(ctx context.Context) ([]*value.Object, error) {
	rows, err := f.rows(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*value.Object, len(rows))
	for i, r := range rows {
		obj := value.NewObject()
		for j, c := range f.columns {
			obj.Set(c.Name, r[j])
		}
		out[i] = obj
	}
	return out, nil
}

// ── Projection ─────────────────────────────────────────────

// Select keeps the named columns in the given order.
func (f *Frame) Select(names ...string) *Frame {
	exprs := lo.Map(names, func(n string, _ int) Expr { return Col(n) })
	return f.SelectExpr(exprs...)
}

// SelectExpr projects the frame through the given expressions.
func (f *Frame) SelectExpr(exprs ...Expr) *Frame {
	if f.err != nil {
		return f.fail(nil)
	}
	bs := make([]bound, len(exprs))
	cols := make([]Column, len(exprs))
	for i, e := range exprs {
		b, err := e.resolve(f.columns)
		if err != nil {
			return f.fail(fmt.Errorf("select: %w", err))
		}
		bs[i] = b
		cols[i] = Column{Name: b.name, Type: b.typ}
	}
	return f.derive(cols, func(ctx context.Context, in []Row) ([]Row, error) {
		out := make([]Row, len(in))
		for i, r := range in {
			if i%4096 == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}
			nr := make(Row, len(bs))
			for j, b := range bs {
				nr[j] = b.eval(r)
			}
			out[i] = nr
		}
		return out, nil
	})
}

// WithColumn adds a column, or replaces an existing one in place.
func (f *Frame) WithColumn(name string, e Expr) *Frame {
	return f.WithColumns([]string{name}, []Expr{e})
}

// WithColumns adds or replaces several columns at once. Every expression is
// evaluated against the input frame.
func (f *Frame) WithColumns(names []string, exprs []Expr) *Frame {
	if f.err != nil {
		return f.fail(nil)
	}
	if len(names) != len(exprs) {
		return f.fail(fmt.Errorf("with columns: %d names for %d expressions", len(names), len(exprs)))
	}
	if dups := lo.FindDuplicates(names); len(dups) > 0 {
		return f.fail(fmt.Errorf("with columns: %w: %s", ErrDuplicateColumn, dups[0]))
	}

	cols := f.Columns()
	// target[i] is the output position written by expression i.
	target := make([]int, len(names))
	bs := make([]bound, len(exprs))
	for i, e := range exprs {
		b, err := e.resolve(f.columns)
		if err != nil {
			return f.fail(fmt.Errorf("with column %s: %w", names[i], err))
		}
		bs[i] = b
		col := Column{Name: names[i], Type: b.typ}
		if pos := f.index(names[i]); pos >= 0 {
			cols[pos] = col
			target[i] = pos
		} else {
			target[i] = len(cols)
			cols = append(cols, col)
		}
	}
	width := len(cols)
	return f.derive(cols, func(ctx context.Context, in []Row) ([]Row, error) {
		out := make([]Row, len(in))
		for i, r := range in {
			if i%4096 == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}
			nr := make(Row, width)
			copy(nr, r)
			for j, b := range bs {
				nr[target[j]] = b.eval(r)
			}
			out[i] = nr
		}
		return out, nil
	})
}

// WithColumnRenamed renames an existing column.
func (f *Frame) WithColumnRenamed(from, to string) *Frame {
	if f.err != nil {
		return f.fail(nil)
	}
	pos := f.index(from)
	if pos < 0 {
		return f.fail(fmt.Errorf("rename: %w: %s", ErrColumnNotFound, from))
	}
	if from == to {
		return f
	}
	cols := f.Columns()
	cols[pos].Name = to
	return f.derive(cols, func(_ context.Context, in []Row) ([]Row, error) {
		return in, nil
	})
}

// Drop removes the named columns. Unknown names are ignored.
func (f *Frame) Drop(names ...string) *Frame {
	if f.err != nil {
		return f.fail(nil)
	}
	drop := lo.SliceToMap(names, func(n string) (string, bool) { return n, true })
	var keep []int
	var cols []Column
	for i, c := range f.columns {
		if !drop[c.Name] {
			keep = append(keep, i)
			cols = append(cols, c)
		}
	}
	if len(keep) == len(f.columns) {
		return f
	}
	return f.derive(cols, func(_ context.Context, in []Row) ([]Row, error) {
		out := make([]Row, len(in))
		for i, r := range in {
			nr := make(Row, len(keep))
			for j, k := range keep {
				nr[j] = r[k]
			}
			out[i] = nr
		}
		return out, nil
	})
}

// ── Row operations ─────────────────────────────────────────

// Filter keeps rows where pred evaluates to true.
func (f *Frame) Filter(pred Expr) *Frame {
	if f.err != nil {
		return f.fail(nil)
	}
	b, err := pred.resolve(f.columns)
	if err != nil {
		return f.fail(fmt.Errorf("filter: %w", err))
	}
	return f.derive(f.Columns(), func(ctx context.Context, in []Row) ([]Row, error) {
		var out []Row
		for i, r := range in {
			if i%4096 == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}
			if ok, _ := b.eval(r).(value.Bool); ok {
				out = append(out, r)
			}
		}
		return out, nil
	})
}

// Distinct removes duplicate rows, keeping the first occurrence.
func (f *Frame) Distinct() *Frame {
	return f.derive(f.Columns(), func(ctx context.Context, in []Row) ([]Row, error) {
		buckets := make(map[uint64][]Row)
		var out []Row
	rows:
		for i, r := range in {
			if i%4096 == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}
			h := r.hash()
			for _, seen := range buckets[h] {
				if seen.equal(r) {
					continue rows
				}
			}
			buckets[h] = append(buckets[h], r)
			out = append(out, r)
		}
		return out, nil
	})
}

// Limit keeps at most n rows.
func (f *Frame) Limit(n int) *Frame {
	if n < 0 {
		n = 0
	}
	return f.derive(f.Columns(), func(_ context.Context, in []Row) ([]Row, error) {
		if len(in) <= n {
			return in, nil
		}
		return in[:n], nil
	})
}
