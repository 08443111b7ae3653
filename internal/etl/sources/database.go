package sources

import (
	"context"
	"fmt"

	"docmodel/internal/dbclient"
	"docmodel/internal/etl"
	"docmodel/internal/value"
)

// ── Database Source ────────────────────────────────────────
// Reads documents from a saved database connection: a SQL table or query,
// or a MongoDB collection.

const dbFetchSize = 500

// DBProvider opens connectors for saved connections. The app layer
// implements it and injects it at startup.
type DBProvider interface {
	OpenConnector(ctx context.Context, connID string) (dbclient.Connector, error)
}

var dbProvider DBProvider

// SetDBProvider is called by the app at startup.
func SetDBProvider(p DBProvider) { dbProvider = p }

type databaseSource struct{}

func init() { etl.RegisterSource(&databaseSource{}) }

func (s *databaseSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:  "database",
		Label: "Database",
		ConfigFields: []etl.ConfigField{
			{Key: "connectionId", Label: "Connection", Type: "connection", Required: true},
			{Key: "table", Label: "Table / Collection", Type: "string", Help: "Read every row of this table or collection"},
			{Key: "query", Label: "Query", Type: "textarea", Help: "SQL query, or a JSON query for MongoDB. Used when table is empty."},
			{Key: "documentColumn", Label: "Document Column", Type: "string", Help: "Use the JSON held in this column as the document instead of the whole row"},
			parseJSONField,
		},
	}
}

func (s *databaseSource) Discover(ctx context.Context, cfg etl.SourceConfig) (*etl.Schema, error) {
	return discover(ctx, s, cfg)
}

func (s *databaseSource) Read(ctx context.Context, cfg etl.SourceConfig) (<-chan etl.Record, <-chan error) {
	out := make(chan etl.Record, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		if err := readDatabase(ctx, cfg, out); err != nil {
			errCh <- err
		}
	}()

	return out, errCh
}

func readDatabase(ctx context.Context, cfg etl.SourceConfig, out chan<- etl.Record) error {
	if dbProvider == nil {
		return fmt.Errorf("database provider not initialized")
	}
	connID := cfg.String("connectionId")
	if connID == "" {
		return fmt.Errorf("connectionId is required")
	}
	table, query := cfg.String("table"), cfg.String("query")
	if table == "" && query == "" {
		return fmt.Errorf("table or query is required")
	}

	conn, err := dbProvider.OpenConnector(ctx, connID)
	if err != nil {
		return fmt.Errorf("open connection: %w", err)
	}
	defer conn.Close()

	if table != "" {
		query = conn.TableQuery(table)
	}
	page, err := conn.Execute(ctx, query, dbFetchSize)
	if err != nil {
		return fmt.Errorf("execute: %w", err)
	}
	if page.IsWrite {
		return fmt.Errorf("query is not a read")
	}

	docColumn := cfg.String("documentColumn")
	for {
		records, err := pageRecords(page, docColumn)
		if err != nil {
			return err
		}
		if !emit(ctx, out, cfg, records) {
			return nil
		}
		if !page.HasMore {
			return nil
		}
		page, err = conn.FetchMore(ctx, dbFetchSize)
		if err != nil {
			return fmt.Errorf("fetch more: %w", err)
		}
	}
}

// pageRecords turns page rows into records. With docColumn set, each row
// contributes the object decoded from that column; rows where it is null
// are skipped.
func pageRecords(page *dbclient.QueryPage, docColumn string) ([]etl.Record, error) {
	objs := page.Objects()
	records := make([]etl.Record, 0, len(objs))
	for _, obj := range objs {
		if docColumn == "" {
			records = append(records, etl.NewRecord(obj))
			continue
		}
		v, ok := obj.Get(docColumn)
		if !ok {
			return nil, fmt.Errorf("document column %q not in result", docColumn)
		}
		if s, isText := v.(value.String); isText {
			v = value.ParseText(string(s))
		}
		switch doc := v.(type) {
		case *value.Object:
			records = append(records, etl.NewRecord(doc))
		default:
			if !value.IsNull(v) {
				return nil, fmt.Errorf("document column %q holds %s, expected an object", docColumn, value.KindOf(v))
			}
		}
	}
	return records, nil
}
