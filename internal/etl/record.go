package etl

import "docmodel/internal/value"

// ── Record ─────────────────────────────────────────────────
// Common intermediate data format.
// All sources emit Records; the pipeline turns them into the root frame
// handed to the decomposer.

// Field describes a single top-level field seen in a dataset.
type Field struct {
	Name string `json:"name"`
	Type string `json:"type"` // value kind name: STRING, NUMBER, OBJECT, ...
}

// Schema describes the shape of records coming from a source.
type Schema struct {
	Fields []Field `json:"fields"`
}

// FieldNames returns an ordered list of field names.
func (s *Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Record is a single document flowing through the pipeline.
type Record struct {
	Data *value.Object `json:"data"`
}

// NewRecord wraps obj, substituting an empty object for nil.
func NewRecord(obj *value.Object) Record {
	if obj == nil {
		obj = value.NewObject()
	}
	return Record{Data: obj}
}

// Get returns the named field, or Null when absent.
func (r Record) Get(field string) value.Value {
	if r.Data == nil {
		return value.Null
	}
	v, ok := r.Data.Get(field)
	if !ok {
		return value.Null
	}
	return v
}

// InferSchema lists fields in first-appearance order. A field's type is the
// kind of its first non-null value, or NULL when it never holds one.
func InferSchema(records []Record) *Schema {
	schema := &Schema{}
	index := map[string]int{}
	for _, rec := range records {
		if rec.Data == nil {
			continue
		}
		for _, k := range rec.Data.Keys() {
			v, _ := rec.Data.Get(k)
			kind := value.KindOf(v)
			i, seen := index[k]
			if !seen {
				index[k] = len(schema.Fields)
				schema.Fields = append(schema.Fields, Field{Name: k, Type: kind.String()})
				continue
			}
			if schema.Fields[i].Type == value.KindNull.String() && kind != value.KindNull {
				schema.Fields[i].Type = kind.String()
			}
		}
	}
	return schema
}

// Objects returns the record payloads.
func Objects(records []Record) []*value.Object {
	out := make([]*value.Object, len(records))
	for i, r := range records {
		out[i] = r.Data
	}
	return out
}
