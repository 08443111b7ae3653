package sources

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"docmodel/internal/etl"
	"docmodel/internal/value"
)

// ── CSV File Source ─────────────────────────────────────────
// Reads records from a local CSV file. Cells holding JSON text become
// documents once parsed.

type csvFileSource struct{}

func init() { etl.RegisterSource(&csvFileSource{}) }

func (s *csvFileSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:  "csv_file",
		Label: "CSV File",
		ConfigFields: []etl.ConfigField{
			{Key: "filePath", Label: "File Path", Type: "file", Required: true, Help: "Absolute path to the CSV file"},
			{Key: "delimiter", Label: "Delimiter", Type: "string", Default: ",", Help: "Column delimiter (default: comma)"},
			{Key: "hasHeader", Label: "Has Header", Type: "select", Options: []string{"true", "false"}, Default: "true", Help: "Whether the first row contains column names"},
			parseJSONField,
		},
	}
}

func (s *csvFileSource) Discover(ctx context.Context, cfg etl.SourceConfig) (*etl.Schema, error) {
	return discover(ctx, s, cfg)
}

func (s *csvFileSource) Read(ctx context.Context, cfg etl.SourceConfig) (<-chan etl.Record, <-chan error) {
	out := make(chan etl.Record, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		headers, rows, err := readCSVFile(cfg)
		if err != nil {
			errCh <- err
			return
		}

		records := make([]etl.Record, 0, len(rows))
		for _, row := range rows {
			obj := value.NewObject()
			for j, h := range headers {
				if j < len(row) {
					obj.Set(h, inferCSVValue(row[j]))
				} else {
					obj.Set(h, value.Null)
				}
			}
			records = append(records, etl.NewRecord(obj))
		}
		emit(ctx, out, cfg, records)
	}()

	return out, errCh
}

func readCSVFile(cfg etl.SourceConfig) ([]string, [][]string, error) {
	filePath := cfg.String("filePath")
	if filePath == "" {
		return nil, nil, fmt.Errorf("filePath is required")
	}

	f, err := os.Open(filePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	if delim := cfg.String("delimiter"); len(delim) > 0 {
		reader.Comma = rune(delim[0])
	}
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("empty csv file")
	}

	if cfg.Bool("hasHeader", true) {
		return records[0], records[1:], nil
	}
	// Generate column names: col_1, col_2, ...
	headers := make([]string, len(records[0]))
	for i := range headers {
		headers[i] = fmt.Sprintf("col_%d", i+1)
	}
	return headers, records, nil
}

// inferCSVValue parses a cell as a number or bool when it looks like one.
// JSON text is left as a string for the parseJSON option to handle.
func inferCSVValue(s string) value.Value {
	s = strings.TrimSpace(s)
	if s == "" {
		return value.Null
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return value.FromInt(i)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return value.Number(f)
	}
	switch strings.ToLower(s) {
	case "true":
		return value.Bool(true)
	case "false":
		return value.Bool(false)
	}
	return value.String(s)
}
