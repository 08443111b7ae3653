package sources

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"docmodel/internal/etl"
	"docmodel/internal/value"
)

// ── JSON File Source ────────────────────────────────────────
// Reads documents from a local JSON or JSON-lines file.

type jsonFileSource struct{}

func init() { etl.RegisterSource(&jsonFileSource{}) }

func (s *jsonFileSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:  "json_file",
		Label: "JSON File",
		ConfigFields: []etl.ConfigField{
			{Key: "filePath", Label: "File Path", Type: "file", Required: true, Help: "Absolute path to the JSON file"},
			{Key: "format", Label: "Format", Type: "select", Options: []string{"json", "jsonl"}, Help: "Defaults to jsonl for .jsonl/.ndjson files, json otherwise"},
			{Key: "dataPath", Label: "Data Path", Type: "string", Help: "Dot-separated path to the array (e.g., 'data.items'). Leave empty if root is an array. Ignored for jsonl."},
			parseJSONField,
		},
	}
}

func (s *jsonFileSource) Discover(ctx context.Context, cfg etl.SourceConfig) (*etl.Schema, error) {
	return discover(ctx, s, cfg)
}

func (s *jsonFileSource) Read(ctx context.Context, cfg etl.SourceConfig) (<-chan etl.Record, <-chan error) {
	out := make(chan etl.Record, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		records, err := readJSONFile(cfg)
		if err != nil {
			errCh <- err
			return
		}
		emit(ctx, out, cfg, records)
	}()

	return out, errCh
}

func readJSONFile(cfg etl.SourceConfig) ([]etl.Record, error) {
	filePath := cfg.String("filePath")
	if filePath == "" {
		return nil, fmt.Errorf("filePath is required")
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	format := cfg.String("format")
	if format == "" {
		switch strings.ToLower(filepath.Ext(filePath)) {
		case ".jsonl", ".ndjson":
			format = "jsonl"
		default:
			format = "json"
		}
	}

	switch format {
	case "jsonl":
		return readJSONLines(data)
	case "json":
		doc, err := value.FromJSON(data)
		if err != nil {
			return nil, err
		}
		doc, err = navigatePath(doc, cfg.String("dataPath"))
		if err != nil {
			return nil, err
		}
		return toRecords(doc), nil
	default:
		return nil, fmt.Errorf("unknown format: %q", format)
	}
}

// readJSONLines decodes one object per non-blank line.
func readJSONLines(data []byte) ([]etl.Record, error) {
	var records []etl.Record
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		v, err := value.FromJSON(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		obj, ok := v.(*value.Object)
		if !ok {
			return nil, fmt.Errorf("line %d: expected an object, got %s", line, value.KindOf(v))
		}
		records = append(records, etl.NewRecord(obj))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	return records, nil
}
