package sources

import (
	"context"
	"fmt"
	"strings"

	"docmodel/internal/etl"
	"docmodel/internal/value"
)

// parseJSONField is the option shared by every source: when not "false",
// string fields holding JSON objects or arrays are parsed into values.
var parseJSONField = etl.ConfigField{
	Key: "parseJSON", Label: "Parse JSON text", Type: "select",
	Options: []string{"true", "false"}, Default: "true",
	Help: "Parse string fields that contain JSON objects or arrays",
}

// navigatePath walks a dot-separated path into nested objects.
func navigatePath(v value.Value, path string) (value.Value, error) {
	if path == "" {
		return v, nil
	}
	current := v
	for _, part := range strings.Split(path, ".") {
		obj, ok := current.(*value.Object)
		if !ok {
			return nil, fmt.Errorf("invalid data path: %q is not inside an object", part)
		}
		next, ok := obj.Get(part)
		if !ok {
			return nil, fmt.Errorf("invalid data path: %q not found", part)
		}
		current = next
	}
	return current, nil
}

// toRecords converts a decoded document into records: one per object of an
// array, or a single record for an object. Non-object array elements are
// skipped.
func toRecords(v value.Value) []etl.Record {
	switch t := v.(type) {
	case value.Array:
		records := make([]etl.Record, 0, len(t))
		for _, item := range t {
			if obj, ok := item.(*value.Object); ok {
				records = append(records, etl.NewRecord(obj))
			}
		}
		return records
	case *value.Object:
		return []etl.Record{etl.NewRecord(t)}
	default:
		return nil
	}
}

// parseJSONText replaces top-level string fields that hold JSON text with
// the decoded value.
func parseJSONText(rec etl.Record) etl.Record {
	for _, k := range rec.Data.Keys() {
		if s, ok := rec.Get(k).(value.String); ok {
			rec.Data.Set(k, value.ParseText(string(s)))
		}
	}
	return rec
}

// emit sends records on out, applying the parseJSON option. It returns
// false when ctx was cancelled.
func emit(ctx context.Context, out chan<- etl.Record, cfg etl.SourceConfig, records []etl.Record) bool {
	parse := cfg.Bool("parseJSON", true)
	for _, rec := range records {
		if parse {
			rec = parseJSONText(rec)
		}
		select {
		case out <- rec:
		case <-ctx.Done():
			return false
		}
	}
	return true
}

// discover reads every record and infers the schema from them.
func discover(ctx context.Context, src etl.Source, cfg etl.SourceConfig) (*etl.Schema, error) {
	records, err := etl.ReadAll(ctx, src, cfg, 0)
	if err != nil {
		return nil, err
	}
	return etl.InferSchema(records), nil
}
