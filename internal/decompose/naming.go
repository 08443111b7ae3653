package decompose

import "strings"

// RootPath is the lineage path of the input table.
const RootPath = "ENTRY"

const (
	hashSuffix      = "_SHA256"
	subfieldSep     = "__"
	ingestionMarker = "INGESTION_CTRL"
	// flattenAlias holds the array column while it is exploded, so a field
	// named like one of the explode columns cannot collide with them.
	flattenAlias = "__DOCMODEL_FLATTEN_INPUT"
)

// HashColumn names the content-hash column of an array field.
func HashColumn(field string) string { return field + hashSuffix }

// SubfieldColumn names the column holding key of object field.
func SubfieldColumn(field, key string) string { return field + subfieldSep + key }

// IsBookkeeping reports whether a column is excluded from decomposition:
// content hashes and ingestion-control columns.
func IsBookkeeping(column string) bool {
	return strings.Contains(column, "SHA256") || strings.Contains(column, ingestionMarker)
}

// ChildPath derives the lineage path of the table spawned by an array field.
// Expanded subfield columns already carry their parent's name, so in
// cumulative mode the parent is only prepended when missing.
func ChildPath(mode LineageMode, parent, field string) string {
	if mode != LineageCumulative || parent == RootPath || parent == "" {
		return field
	}
	if strings.HasPrefix(field, parent+subfieldSep) {
		return field
	}
	return parent + subfieldSep + field
}

// TableName is the persisted name of a lineage path's table.
func TableName(prefix, path, suffix string) string {
	return prefix + path + suffix
}
