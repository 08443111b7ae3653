package relation_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docmodel/internal/relation"
	"docmodel/internal/value"
)

func newEngine(t *testing.T) *relation.Engine {
	t.Helper()
	e, err := relation.NewEngine(0)
	require.NoError(t, err)
	return e
}

func mustJSON(t *testing.T, s string) value.Value {
	t.Helper()
	v, err := value.FromJSON([]byte(s))
	require.NoError(t, err)
	return v
}

// ─────────────────────────────────────────────────────────────
// Construction and projection
// ─────────────────────────────────────────────────────────────

func TestFromObjects_UnionColumns(t *testing.T) {
	e := newEngine(t)
	f := e.FromObjects([]*value.Object{
		value.NewObject().Set("a", value.Number(1)),
		value.NewObject().Set("b", value.String("x")).Set("a", value.Number(2)),
	})
	assert.Equal(t, []string{"a", "b"}, f.ColumnNames())

	rows, err := f.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, value.IsNull(rows[0][1]))
}

func TestFromRows_RejectsDuplicateColumns(t *testing.T) {
	e := newEngine(t)
	f := e.FromRows([]string{"a", "a"}, nil)
	assert.ErrorIs(t, f.Err(), relation.ErrDuplicateColumn)
}

func TestSelect_MissingColumnIsDeferred(t *testing.T) {
	e := newEngine(t)
	f := e.FromRows([]string{"a"}, []relation.Row{{value.Number(1)}}).
		Select("nope").
		Distinct().
		Limit(3)

	_, err := f.Count(context.Background())
	assert.True(t, errors.Is(err, relation.ErrColumnNotFound))
}

func TestWithColumns_ReplaceAndAppend(t *testing.T) {
	e := newEngine(t)
	f := e.FromRows([]string{"doc", "id"}, []relation.Row{
		{mustJSON(t, `{"a":1,"b":"x"}`), value.Number(7)},
	})
	out := f.WithColumns(
		[]string{"doc__a", "id"},
		[]relation.Expr{relation.Col("doc").Get("a"), relation.Lit(value.String("seven"))},
	)
	require.NoError(t, out.Err())
	assert.Equal(t, []string{"doc", "id", "doc__a"}, out.ColumnNames())

	rows, err := out.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, value.String("seven"), rows[0][1])
	assert.Equal(t, value.Number(1), rows[0][2])
}

func TestWithColumnRenamed(t *testing.T) {
	e := newEngine(t)
	f := e.FromRows([]string{"a", "b"}, nil)

	assert.Equal(t, []string{"c", "b"}, f.WithColumnRenamed("a", "c").ColumnNames())
	assert.ErrorIs(t, f.WithColumnRenamed("a", "b").Err(), relation.ErrDuplicateColumn)
	assert.ErrorIs(t, f.WithColumnRenamed("zz", "c").Err(), relation.ErrColumnNotFound)
}

func TestDrop_IgnoresUnknown(t *testing.T) {
	e := newEngine(t)
	f := e.FromRows([]string{"a", "b"}, []relation.Row{{value.Number(1), value.Number(2)}})
	out := f.Drop("a", "missing")
	assert.Equal(t, []string{"b"}, out.ColumnNames())

	rows, err := out.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, relation.Row{value.Number(2)}, rows[0])
}

// ─────────────────────────────────────────────────────────────
// Row operations
// ─────────────────────────────────────────────────────────────

func TestDistinct_IgnoresObjectKeyOrder(t *testing.T) {
	e := newEngine(t)
	f := e.FromRows([]string{"doc"}, []relation.Row{
		{mustJSON(t, `{"a":1,"b":2}`)},
		{mustJSON(t, `{"b":2,"a":1}`)},
		{mustJSON(t, `{"a":1}`)},
	})
	n, err := f.Distinct().Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestFilterAndTypeOf(t *testing.T) {
	e := newEngine(t)
	f := e.FromRows([]string{"v"}, []relation.Row{
		{mustJSON(t, `[1]`)},
		{mustJSON(t, `{"a":1}`)},
		{value.String("s")},
		{value.Null},
	})
	kinds := f.SelectExpr(relation.Col("v").TypeOf().As("TYPEOF")).
		Distinct().
		Filter(relation.Col("TYPEOF").IsIn(value.String("ARRAY"), value.String("OBJECT")))

	rows, err := kinds.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, value.String("ARRAY"), rows[0][0])
	assert.Equal(t, value.String("OBJECT"), rows[1][0])
}

func TestSHA2_CanonicalText(t *testing.T) {
	e := newEngine(t)
	f := e.FromRows([]string{"v"}, []relation.Row{
		{mustJSON(t, `[{"a":1,"b":2}]`)},
		{mustJSON(t, `[{"b":2,"a":1}]`)},
		{value.Null},
	})
	rows, err := f.SelectExpr(relation.SHA2(relation.Col("v"), 256).As("h")).Collect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, rows[0][0], rows[1][0])
	assert.Len(t, string(rows[0][0].(value.String)), 64)
	assert.True(t, value.IsNull(rows[2][0]))
}

func TestSHA2_UnsupportedSize(t *testing.T) {
	e := newEngine(t)
	f := e.FromRows([]string{"v"}, nil).SelectExpr(relation.SHA2(relation.Col("v"), 100))
	assert.Error(t, f.Err())
}

func TestCollect_Cancelled(t *testing.T) {
	e := newEngine(t)
	f := e.FromRows([]string{"v"}, []relation.Row{{value.Number(1)}}).Distinct()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.Collect(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

// ─────────────────────────────────────────────────────────────
// Explode
// ─────────────────────────────────────────────────────────────

func TestExplode_ArrayOuter(t *testing.T) {
	e := newEngine(t)
	f := e.FromRows([]string{"id", "items"}, []relation.Row{
		{value.Number(1), mustJSON(t, `["a","b"]`)},
		{value.Number(2), mustJSON(t, `[]`)},
		{value.Number(3), value.Null},
	})
	out := f.Explode("items", relation.ExplodeArray, true)
	assert.Equal(t, []string{"id", "items", "SEQ", "KEY", "PATH", "INDEX", "VALUE", "THIS"}, out.ColumnNames())

	rows, err := out.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, value.String("a"), rows[0][6])
	assert.Equal(t, value.Number(1), rows[1][5])
	assert.Equal(t, value.String("[1]"), rows[1][4])
	assert.True(t, value.IsNull(rows[2][6]))
	assert.True(t, value.IsNull(rows[3][6]))
}

func TestExplode_ArrayInnerDropsEmpty(t *testing.T) {
	e := newEngine(t)
	f := e.FromRows([]string{"items"}, []relation.Row{
		{mustJSON(t, `[1]`)},
		{mustJSON(t, `[]`)},
	})
	n, err := f.Explode("items", relation.ExplodeArray, false).Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestExplode_ObjectKeys(t *testing.T) {
	e := newEngine(t)
	f := e.FromRows([]string{"doc"}, []relation.Row{
		{mustJSON(t, `{"x":1,"y":{"z":true}}`)},
	})
	rows, err := f.Explode("doc", relation.ExplodeObject, true).
		Select(relation.ColKey, relation.ColValue).
		Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, value.String("x"), rows[0][0])
	assert.Equal(t, value.String("y"), rows[1][0])
}

func TestExplode_ColumnCollision(t *testing.T) {
	e := newEngine(t)
	f := e.FromRows([]string{"VALUE"}, nil)
	assert.ErrorIs(t, f.Explode("VALUE", relation.ExplodeArray, true).Err(), relation.ErrDuplicateColumn)
}
