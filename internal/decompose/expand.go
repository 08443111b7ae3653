package decompose

import (
	"context"
	"fmt"

	"docmodel/internal/relation"
	"docmodel/internal/value"
)

// ObjectKeys returns the distinct non-null keys of an object field in
// first-appearance order.
func ObjectKeys(ctx context.Context, frame *relation.Frame, field string) ([]string, error) {
	keys := frame.
		Select(field).
		Distinct().
		WithColumnRenamed(field, flattenAlias).
		Explode(flattenAlias, relation.ExplodeObject, true).
		Select(relation.ColKey).
		Filter(relation.Col(relation.ColKey).IsNotNull()).
		Distinct()

	rows, err := keys.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("object keys of %s: %w", field, err)
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		if s, ok := r[0].(value.String); ok {
			out = append(out, string(s))
		}
	}
	return out, nil
}

// ExpandObject adds one column <field>__<key> per discovered key, holding
// field[key]. The original column is left in place and the row count is
// unchanged.
func ExpandObject(ctx context.Context, frame *relation.Frame, field string) (*relation.Frame, []string, error) {
	keys, err := ObjectKeys(ctx, frame, field)
	if err != nil {
		return nil, nil, err
	}
	if len(keys) == 0 {
		return frame, nil, nil
	}
	names := make([]string, len(keys))
	exprs := make([]relation.Expr, len(keys))
	for i, k := range keys {
		names[i] = SubfieldColumn(field, k)
		exprs[i] = relation.Col(field).Get(k)
	}
	out := frame.WithColumns(names, exprs)
	if err := out.Err(); err != nil {
		return nil, nil, fmt.Errorf("expand %s: %w", field, err)
	}
	return out, names, nil
}
