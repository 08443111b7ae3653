// Package relation is a small in-memory, lazily evaluated relational engine
// over value.Value cells. Frames are immutable: each operation returns a new
// Frame describing the work, and rows are only produced by Collect or Count.
package relation

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/samber/lo"

	"docmodel/internal/value"
)

var (
	ErrColumnNotFound  = errors.New("column not found")
	ErrDuplicateColumn = errors.New("duplicate column")
)

// DefaultCacheSize bounds how many materialized frames an Engine keeps.
const DefaultCacheSize = 256

// Engine creates frames and memoizes their materialized rows.
type Engine struct {
	cache  *lru.Cache[uint64, []Row]
	nextID atomic.Uint64
}

// NewEngine returns an engine whose cache holds up to cacheSize
// materialized frames. A non-positive size uses DefaultCacheSize.
func NewEngine(cacheSize int) (*Engine, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[uint64, []Row](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("relation cache: %w", err)
	}
	return &Engine{cache: cache}, nil
}

// Purge drops all memoized results.
func (e *Engine) Purge() { e.cache.Purge() }

// FromRows builds a frame over the given rows. Each row must have one cell
// per column. Columns are typed as variants.
func (e *Engine) FromRows(columns []string, rows []Row) *Frame {
	cols := lo.Map(columns, func(name string, _ int) Column {
		return Column{Name: name, Type: TypeVariant}
	})
	if err := checkUnique(cols); err != nil {
		return e.failed(err)
	}
	for i, r := range rows {
		if len(r) != len(cols) {
			return e.failed(fmt.Errorf("row %d has %d cells, want %d", i, len(r), len(cols)))
		}
	}
	data := make([]Row, len(rows))
	for i, r := range rows {
		data[i] = r.normalize()
	}
	return e.newFrame(cols, nil, func(context.Context, []Row) ([]Row, error) {
		return data, nil
	})
}

// FromObjects builds a frame with one row per object. The column set is the
// union of all keys in first-appearance order; absent keys become null.
func (e *Engine) FromObjects(objs []*value.Object) *Frame {
	var names []string
	seen := make(map[string]bool)
	for _, o := range objs {
		for _, k := range o.Keys() {
			if !seen[k] {
				seen[k] = true
				names = append(names, k)
			}
		}
	}
	rows := make([]Row, len(objs))
	for i, o := range objs {
		r := make(Row, len(names))
		for j, n := range names {
			r[j], _ = o.Get(n)
		}
		rows[i] = r
	}
	return e.FromRows(names, rows)
}

func (e *Engine) newFrame(cols []Column, parent *Frame, step stepFunc) *Frame {
	return &Frame{
		engine:  e,
		id:      e.nextID.Add(1),
		columns: cols,
		parent:  parent,
		step:    step,
	}
}

func (e *Engine) failed(err error) *Frame {
	return &Frame{engine: e, id: e.nextID.Add(1), err: err}
}

func checkUnique(cols []Column) error {
	seen := make(map[string]bool, len(cols))
	for _, c := range cols {
		if seen[c.Name] {
			return fmt.Errorf("%w: %s", ErrDuplicateColumn, c.Name)
		}
		seen[c.Name] = true
	}
	return nil
}
