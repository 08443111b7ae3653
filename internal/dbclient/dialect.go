package dbclient

import (
	"strconv"
	"strings"

	"docmodel/internal/relation"
	"docmodel/internal/value"
)

// dialect captures the SQL differences between the supported drivers.
type dialect struct {
	driver     string // database/sql driver name
	numbered   bool   // $1 style placeholders
	quoteChar  byte
	textType   string
	numberType string
	// exactType holds int64 values a float column would round.
	exactType string
	boolType   string
	jsonType   string
	// maxParams bounds the placeholders of one INSERT statement.
	maxParams int
}

var (
	dialectPostgres = dialect{
		driver: "postgres", numbered: true, quoteChar: '"',
		textType: "TEXT", numberType: "DOUBLE PRECISION", exactType: "NUMERIC", boolType: "BOOLEAN", jsonType: "JSONB",
		maxParams: 65535,
	}
	dialectMySQL = dialect{
		driver: "mysql", quoteChar: '`',
		textType: "LONGTEXT", numberType: "DOUBLE", exactType: "DECIMAL(65,30)", boolType: "BOOLEAN", jsonType: "JSON",
		maxParams: 65535,
	}
	dialectSQLite = dialect{
		driver: "sqlite", quoteChar: '"',
		textType: "TEXT", numberType: "REAL", exactType: "NUMERIC", boolType: "INTEGER", jsonType: "TEXT",
		maxParams: 32766,
	}
)

func (d dialect) quote(ident string) string {
	q := string(d.quoteChar)
	return q + strings.ReplaceAll(ident, q, q+q) + q
}

// placeholder returns the i-th (1-based) bind parameter marker.
func (d dialect) placeholder(i int) string {
	if d.numbered {
		return "$" + strconv.Itoa(i)
	}
	return "?"
}

// columnType picks the SQL type of a column. Variant columns are typed by
// the values they actually hold.
func (d dialect) columnType(col relation.Column, rows []relation.Row, idx int) string {
	switch col.Type {
	case relation.TypeText:
		return d.textType
	case relation.TypeNumber:
		return d.numericType(rows, idx)
	case relation.TypeBool:
		return d.boolType
	}
	seen := map[value.Kind]bool{}
	for _, r := range rows {
		if k := value.KindOf(r[idx]); k != value.KindNull {
			seen[k] = true
		}
	}
	switch {
	case len(seen) == 0:
		return d.textType
	case len(seen) == 1 && seen[value.KindNumber]:
		return d.numericType(rows, idx)
	case len(seen) == 1 && seen[value.KindBool]:
		return d.boolType
	case len(seen) == 1 && seen[value.KindString]:
		return d.textType
	case !seen[value.KindString] && !seen[value.KindNumber] && !seen[value.KindBool]:
		return d.jsonType
	default:
		return d.textType
	}
}

// numericType widens a number column to exactType when it holds an Int.
func (d dialect) numericType(rows []relation.Row, idx int) string {
	for _, r := range rows {
		if _, ok := r[idx].(value.Int); ok {
			return d.exactType
		}
	}
	return d.numberType
}

// bindValue converts a cell into a driver argument. Complex values, and
// every value of a text or JSON column, are bound as text.
func bindValue(v value.Value, asText bool) any {
	if value.IsNull(v) {
		return nil
	}
	if !asText {
		switch t := v.(type) {
		case value.Bool:
			return bool(t)
		case value.Number:
			return float64(t)
		case value.Int:
			return int64(t)
		}
	}
	s, _ := value.AsText(v)
	return s
}

func (d dialect) isTextual(sqlType string) bool {
	return sqlType == d.textType || sqlType == d.jsonType
}
