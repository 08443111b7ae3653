package etl

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"docmodel/internal/value"
)

// ── Transformer ────────────────────────────────────────────
// Transformers reshape records before decomposition. They are composable:
// each takes a record, returns a (possibly modified) record and a boolean
// indicating whether to keep it.
//
// Pattern: Benthos processor chain.

// Transformer processes a single record.
// Returns (transformed record, keep). If keep is false, the record is dropped.
type Transformer interface {
	Transform(Record) (Record, bool)
}

// TransformerFunc adapts a plain function to the Transformer interface.
type TransformerFunc func(Record) (Record, bool)

func (f TransformerFunc) Transform(r Record) (Record, bool) { return f(r) }

// TransformConfig is a declarative transform definition (stored as JSON).
type TransformConfig struct {
	Type   string         `json:"type"` // filter | rename | select | drop | dedupe | limit | type_cast | parse_json | sort
	Config map[string]any `json:"config"`
}

// ── Built-in Transforms ────────────────────────────────────

// FilterTransform drops records where the given field does not match.
type FilterTransform struct {
	Field string
	Op    string // "eq" | "neq" | "gt" | "lt" | "contains" | "exists"
	Value value.Value
}

func (t *FilterTransform) Transform(r Record) (Record, bool) {
	v, ok := r.Data.Get(t.Field)
	if t.Op == "exists" {
		return r, ok && !value.IsNull(v)
	}
	if !ok {
		return r, false
	}
	switch t.Op {
	case "eq":
		return r, value.Equal(v, t.Value) || textOf(v) == textOf(t.Value)
	case "neq":
		return r, !value.Equal(v, t.Value) && textOf(v) != textOf(t.Value)
	case "contains":
		return r, strings.Contains(textOf(v), textOf(t.Value))
	case "gt":
		a, aok := toFloat(v)
		b, bok := toFloat(t.Value)
		return r, aok && bok && a > b
	case "lt":
		a, aok := toFloat(v)
		b, bok := toFloat(t.Value)
		return r, aok && bok && a < b
	default:
		return r, true
	}
}

// RenameTransform renames top-level fields. A renamed field moves to the
// end of the key order.
type RenameTransform struct {
	Mapping map[string]string // oldName → newName
}

func (t *RenameTransform) Transform(r Record) (Record, bool) {
	olds := make([]string, 0, len(t.Mapping))
	for old := range t.Mapping {
		olds = append(olds, old)
	}
	sort.Strings(olds)
	for _, old := range olds {
		if v, ok := r.Data.Get(old); ok {
			r.Data.Delete(old)
			r.Data.Set(t.Mapping[old], v)
		}
	}
	return r, true
}

// SelectTransform keeps only the specified fields, in the given order.
type SelectTransform struct {
	Fields []string
}

func (t *SelectTransform) Transform(r Record) (Record, bool) {
	filtered := value.NewObject()
	for _, f := range t.Fields {
		if v, ok := r.Data.Get(f); ok {
			filtered.Set(f, v)
		}
	}
	r.Data = filtered
	return r, true
}

// DropTransform removes the specified fields.
type DropTransform struct {
	Fields []string
}

func (t *DropTransform) Transform(r Record) (Record, bool) {
	for _, f := range t.Fields {
		r.Data.Delete(f)
	}
	return r, true
}

// DedupeTransform drops records with duplicate values for the given key.
// Values are compared by canonical JSON, so object key order is ignored.
type DedupeTransform struct {
	Key  string
	seen map[string]bool
}

func NewDedupeTransform(key string) *DedupeTransform {
	return &DedupeTransform{Key: key, seen: make(map[string]bool)}
}

func (t *DedupeTransform) Transform(r Record) (Record, bool) {
	k := string(value.Canonical(r.Get(t.Key)))
	if t.seen[k] {
		return r, false
	}
	t.seen[k] = true
	return r, true
}

// LimitTransform caps the number of records.
type LimitTransform struct {
	Count int
	seen  int
}

func NewLimitTransform(count int) *LimitTransform {
	return &LimitTransform{Count: count}
}

func (t *LimitTransform) Transform(r Record) (Record, bool) {
	t.seen++
	return r, t.seen <= t.Count
}

// TypeCastTransform converts a scalar field to a target type.
type TypeCastTransform struct {
	Field    string
	CastType string // "number" | "string" | "bool"
}

func (t *TypeCastTransform) Transform(r Record) (Record, bool) {
	v, ok := r.Data.Get(t.Field)
	if !ok || value.IsNull(v) {
		return r, true
	}
	switch t.CastType {
	case "number":
		if value.KindOf(v) == value.KindNumber {
			break
		}
		if f, ok := toFloat(v); ok {
			r.Data.Set(t.Field, value.Number(f))
		} else {
			r.Data.Set(t.Field, value.Null)
		}
	case "string":
		r.Data.Set(t.Field, value.String(textOf(v)))
	case "bool":
		r.Data.Set(t.Field, value.Bool(toBool(v)))
	}
	return r, true
}

// ParseJSONTransform replaces JSON text held in string fields with the
// parsed value, so documents stored as text can be decomposed. With no
// fields configured every string field is considered.
type ParseJSONTransform struct {
	Fields []string
}

func (t *ParseJSONTransform) Transform(r Record) (Record, bool) {
	fields := t.Fields
	if len(fields) == 0 {
		fields = r.Data.Keys()
	}
	for _, f := range fields {
		if s, ok := r.Get(f).(value.String); ok {
			r.Data.Set(f, value.ParseText(string(s)))
		}
	}
	return r, true
}

// SortTransform sorts all collected records by a field.
// It is a batch transform: the pipeline applies it after the streaming
// phase, per-record it is a pass-through.
type SortTransform struct {
	Field     string
	Direction string // "asc" | "desc"
}

func (t *SortTransform) Transform(r Record) (Record, bool) { return r, true }

// ── Batch Transforms ──────────────────────────────────────

// ApplyBatchSort sorts records if a SortTransform exists in the chain.
func ApplyBatchSort(records []Record, ts []Transformer) []Record {
	for _, t := range ts {
		if st, ok := t.(*SortTransform); ok && st.Field != "" {
			sorted := make([]Record, len(records))
			copy(sorted, records)
			dir := 1
			if st.Direction == "desc" {
				dir = -1
			}
			sort.SliceStable(sorted, func(i, j int) bool {
				return compareValues(sorted[i].Get(st.Field), sorted[j].Get(st.Field))*dir < 0
			})
			return sorted
		}
	}
	return records
}

// compareValues orders numbers numerically and everything else by text.
// Nulls sort first.
func compareValues(a, b value.Value) int {
	an, bn := value.IsNull(a), value.IsNull(b)
	switch {
	case an && bn:
		return 0
	case an:
		return -1
	case bn:
		return 1
	}
	fa, aOk := toFloat(a)
	fb, bOk := toFloat(b)
	if aOk && bOk {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	return strings.Compare(textOf(a), textOf(b))
}

// ── Builder ────────────────────────────────────────────────

// BuildTransformers converts declarative TransformConfig into Transformer
// instances. Unknown types and incomplete configs are rejected.
func BuildTransformers(configs []TransformConfig, dedupeKey string) ([]Transformer, error) {
	var ts []Transformer

	for i, tc := range configs {
		cfg := SourceConfig(tc.Config)
		switch tc.Type {
		case "filter":
			field, op := cfg.String("field"), cfg.String("op")
			if field == "" || op == "" {
				return nil, fmt.Errorf("transform %d (filter): field and op are required", i)
			}
			ts = append(ts, &FilterTransform{Field: field, Op: op, Value: value.FromAny(tc.Config["value"])})

		case "rename":
			mapping, ok := tc.Config["mapping"].(map[string]any)
			if !ok || len(mapping) == 0 {
				return nil, fmt.Errorf("transform %d (rename): mapping is required", i)
			}
			m := make(map[string]string, len(mapping))
			for k, v := range mapping {
				m[k] = fmt.Sprint(v)
			}
			ts = append(ts, &RenameTransform{Mapping: m})

		case "select", "drop":
			fields := stringList(tc.Config["fields"])
			if len(fields) == 0 {
				return nil, fmt.Errorf("transform %d (%s): fields are required", i, tc.Type)
			}
			if tc.Type == "select" {
				ts = append(ts, &SelectTransform{Fields: fields})
			} else {
				ts = append(ts, &DropTransform{Fields: fields})
			}

		case "dedupe":
			key := cfg.String("key")
			if key == "" {
				return nil, fmt.Errorf("transform %d (dedupe): key is required", i)
			}
			ts = append(ts, NewDedupeTransform(key))

		case "limit":
			count, ok := toFloat(value.FromAny(tc.Config["count"]))
			if !ok || count <= 0 {
				return nil, fmt.Errorf("transform %d (limit): count must be positive", i)
			}
			ts = append(ts, NewLimitTransform(int(count)))

		case "type_cast":
			field, castType := cfg.String("field"), cfg.String("castType")
			if field == "" || castType == "" {
				return nil, fmt.Errorf("transform %d (type_cast): field and castType are required", i)
			}
			ts = append(ts, &TypeCastTransform{Field: field, CastType: castType})

		case "parse_json":
			ts = append(ts, &ParseJSONTransform{Fields: stringList(tc.Config["fields"])})

		case "sort":
			field, direction := cfg.String("field"), cfg.String("direction")
			if field == "" {
				return nil, fmt.Errorf("transform %d (sort): field is required", i)
			}
			if direction == "" {
				direction = "asc"
			}
			ts = append(ts, &SortTransform{Field: field, Direction: direction})

		default:
			return nil, fmt.Errorf("transform %d: unknown type %q", i, tc.Type)
		}
	}

	// Dedupe on the job key is always applied last.
	if dedupeKey != "" {
		ts = append(ts, NewDedupeTransform(dedupeKey))
	}
	return ts, nil
}

// ── Helpers ────────────────────────────────────────────────

// ApplyTransformers runs a chain of transformers on a record.
func ApplyTransformers(r Record, ts []Transformer) (Record, bool) {
	for _, t := range ts {
		var keep bool
		r, keep = t.Transform(r)
		if !keep {
			return r, false
		}
	}
	return r, true
}

func stringList(raw any) []string {
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, f := range v {
			out = append(out, fmt.Sprint(f))
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return nil
}

func textOf(v value.Value) string {
	s, _ := value.AsText(v)
	return s
}

func toFloat(v value.Value) (float64, bool) {
	switch n := v.(type) {
	case value.Number:
		return float64(n), true
	case value.Int:
		return float64(n), true
	case value.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(n)), 64)
		return f, err == nil
	case value.Bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func toBool(v value.Value) bool {
	switch b := v.(type) {
	case value.Bool:
		return bool(b)
	case value.String:
		lower := strings.ToLower(strings.TrimSpace(string(b)))
		return lower == "true" || lower == "yes" || lower == "1"
	case value.Number:
		return b != 0
	case value.Int:
		return b != 0
	default:
		return false
	}
}
