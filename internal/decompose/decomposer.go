// Package decompose turns a table of nested documents into a set of flat
// relational tables. Nested objects become sibling columns of their table;
// nested arrays become child tables keyed by a content hash of the array.
package decompose

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"docmodel/internal/relation"
)

const (
	DefaultMaxDepth   = 100
	DefaultSampleSize = 50
)

// LineageMode selects how child tables are named.
type LineageMode uint8

const (
	// LineageFlat names a child table after the array field alone.
	LineageFlat LineageMode = iota
	// LineageCumulative joins the ancestor array names: ITEMS__TAGS.
	LineageCumulative
)

func (m LineageMode) String() string {
	if m == LineageCumulative {
		return "cumulative"
	}
	return "flat"
}

// ParseLineageMode accepts "flat" (or empty) and "cumulative".
func ParseLineageMode(s string) (LineageMode, error) {
	switch s {
	case "", "flat":
		return LineageFlat, nil
	case "cumulative":
		return LineageCumulative, nil
	}
	return LineageFlat, fmt.Errorf("unknown lineage mode: %q", s)
}

type Options struct {
	MaxDepth   int
	SampleSize int
	Lineage    LineageMode
}

func (o Options) withDefaults() Options {
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	if o.SampleSize <= 0 {
		o.SampleSize = DefaultSampleSize
	}
	return o
}

type Decomposer struct {
	opts Options
	log  *zap.Logger
}

func New(opts Options, log *zap.Logger) *Decomposer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Decomposer{opts: opts.withDefaults(), log: log.Named("decompose")}
}

func (d *Decomposer) Options() Options { return d.opts }

// Run decomposes frame and returns its terminal tables keyed by lineage
// path. On error no result is returned.
func (d *Decomposer) Run(ctx context.Context, frame *relation.Frame) (*Result, error) {
	if err := frame.Err(); err != nil {
		return nil, fmt.Errorf("decompose input: %w", err)
	}
	res := newResult()
	processed := make(ProcessedFieldSet)
	if err := d.decompose(ctx, frame, RootPath, 0, processed, res); err != nil {
		return nil, err
	}
	res.Processed = processed.Sorted()
	d.log.Info("decomposition finished",
		zap.Int("tables", res.Len()),
		zap.Strings("paths", res.Paths()),
		zap.Int("truncated", len(res.Truncated)))
	return res, nil
}

// unprocessedFields lists columns still subject to decomposition, in column
// order.
func unprocessedFields(frame *relation.Frame, processed ProcessedFieldSet) []string {
	var out []string
	for _, name := range frame.ColumnNames() {
		if IsBookkeeping(name) || processed.Has(name) {
			continue
		}
		out = append(out, name)
	}
	return out
}

type childTable struct {
	path  string
	frame *relation.Frame
}

func (d *Decomposer) decompose(ctx context.Context, frame *relation.Frame, path string, depth int,
	processed ProcessedFieldSet, res *Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	depth++
	fields := unprocessedFields(frame, processed)
	d.log.Debug("decompose call",
		zap.String("path", path),
		zap.Int("depth", depth),
		zap.Strings("unprocessed", fields))

	if len(fields) == 0 || depth == d.opts.MaxDepth {
		if len(fields) > 0 {
			d.log.Warn("depth cap reached, recording table as is",
				zap.String("path", path),
				zap.Int("depth", depth),
				zap.Strings("unprocessed", fields))
			res.Truncated = append(res.Truncated, path)
		}
		res.record(d.log, path, frame)
		return nil
	}

	var children []childTable
	for _, field := range fields {
		desc, err := Classify(ctx, frame, field, d.opts.SampleSize)
		if err != nil {
			var ambiguous *AmbiguousTypeError
			if errors.As(err, &ambiguous) {
				ambiguous.Path = path
			}
			return err
		}
		d.log.Debug("classified field", zap.String("field", field), zap.Stringer("kind", desc.Kind))

		switch desc.Kind {
		case FieldArray:
			hash := arrayHashColumn(frame, path, field)
			frame = withArrayHash(frame, field, hash)
			child, err := d.flatten(ctx, frame, field, hash)
			if err != nil {
				return err
			}
			children = append(children, childTable{
				path:  ChildPath(d.opts.Lineage, path, field),
				frame: child,
			})
			frame = frame.Drop(field)
		case FieldObject:
			expanded, err := d.expand(ctx, frame, field)
			if err != nil {
				return err
			}
			processed.Add(field)
			frame = expanded.Drop(field)
		default:
			processed.Add(field)
		}
	}
	if err := frame.Err(); err != nil {
		return fmt.Errorf("decompose %s: %w", path, err)
	}

	if err := d.decompose(ctx, frame, path, depth, processed, res); err != nil {
		return err
	}
	for _, c := range children {
		d.log.Debug("descending into child table", zap.String("path", c.path))
		if err := d.decompose(ctx, c.frame, c.path, depth, processed, res); err != nil {
			return err
		}
	}
	return nil
}

func (d *Decomposer) flatten(ctx context.Context, frame *relation.Frame, field, hash string) (*relation.Frame, error) {
	d.log.Debug("flatten array start", zap.String("field", field), zap.String("hash", hash))
	child := FlattenArray(frame, field, hash)
	if err := child.Err(); err != nil {
		return nil, fmt.Errorf("flatten %s: %w", field, err)
	}
	if ce := d.log.Check(zap.DebugLevel, "flatten array done"); ce != nil {
		n, err := child.Count(ctx)
		if err != nil {
			return nil, fmt.Errorf("flatten %s: %w", field, err)
		}
		ce.Write(zap.String("field", field), zap.Int("rows", n))
	}
	return child, nil
}

func (d *Decomposer) expand(ctx context.Context, frame *relation.Frame, field string) (*relation.Frame, error) {
	d.log.Debug("expand object start", zap.String("field", field))
	out, columns, err := ExpandObject(ctx, frame, field)
	if err != nil {
		return nil, err
	}
	d.log.Debug("expand object done", zap.String("field", field), zap.Strings("columns", columns))
	return out, nil
}
