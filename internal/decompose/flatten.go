package decompose

import (
	"docmodel/internal/relation"
)

// FlattenArray builds the child table of an array field. frame must carry
// both field and its hash column. Distinct (hash, array) pairs are exploded
// with outer semantics, so every array instance contributes one row per
// element and an empty or null array contributes a single null row. The
// result has exactly the columns (hash, field).
func FlattenArray(frame *relation.Frame, field, hash string) *relation.Frame {
	return frame.
		Select(hash, field).
		Distinct().
		WithColumnRenamed(field, flattenAlias).
		Explode(flattenAlias, relation.ExplodeArray, true).
		Drop(relation.ColSeq, relation.ColKey, relation.ColPath, relation.ColIndex, relation.ColThis, flattenAlias).
		WithColumnRenamed(relation.ColValue, field)
}

// arrayHashColumn names the hash column of an array field of the table at
// path. The element column of a nested array keeps its array's name, so the
// table already holds its parent link under HashColumn(field); the new hash
// is then qualified by path and the link survives.
func arrayHashColumn(frame *relation.Frame, path, field string) string {
	name := HashColumn(field)
	for frame.HasColumn(name) {
		name = path + subfieldSep + name
	}
	return name
}

// withArrayHash adds the content hash column of an array field.
func withArrayHash(frame *relation.Frame, field, hash string) *relation.Frame {
	return frame.WithColumn(hash, relation.SHA2(relation.Col(field), 256))
}
