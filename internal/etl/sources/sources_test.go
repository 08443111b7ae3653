package sources_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docmodel/internal/dbclient"
	"docmodel/internal/domain"
	"docmodel/internal/etl"
	"docmodel/internal/etl/sources"
	"docmodel/internal/relation"
	"docmodel/internal/value"
)

func readAll(t *testing.T, typ string, cfg etl.SourceConfig) []etl.Record {
	t.Helper()
	src, err := etl.GetSource(typ)
	require.NoError(t, err)
	records, err := etl.ReadAll(context.Background(), src, cfg, 0)
	require.NoError(t, err)
	return records
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestListSources(t *testing.T) {
	var types []string
	for _, s := range etl.ListSources() {
		types = append(types, s.Type)
	}
	assert.Subset(t, types, []string{"csv_file", "database", "http", "json_file"})
}

// ─────────────────────────────────────────────────────────────
// json_file
// ─────────────────────────────────────────────────────────────

func TestJSONFile_DataPathKeepsNesting(t *testing.T) {
	path := writeFile(t, "orders.json", `{"data":{"items":[{"id":1,"lines":[{"sku":"a"}]},{"id":2,"lines":[]},7]}}`)
	records := readAll(t, "json_file", etl.SourceConfig{"filePath": path, "dataPath": "data.items"})

	require.Len(t, records, 2, "non-object elements are skipped")
	assert.Equal(t, []string{"id", "lines"}, records[0].Data.Keys())
	assert.Equal(t, value.KindArray, value.KindOf(records[0].Get("lines")))
}

func TestJSONFile_JSONLines(t *testing.T) {
	path := writeFile(t, "events.jsonl", "{\"a\":1}\n\n{\"a\":2,\"doc\":\"{\\\"k\\\":true}\"}\n")
	records := readAll(t, "json_file", etl.SourceConfig{"filePath": path})

	require.Len(t, records, 2)
	assert.Equal(t, value.KindObject, value.KindOf(records[1].Get("doc")), "JSON text is parsed by default")

	records = readAll(t, "json_file", etl.SourceConfig{"filePath": path, "parseJSON": "false"})
	assert.Equal(t, value.KindString, value.KindOf(records[1].Get("doc")))
}

func TestJSONFile_Errors(t *testing.T) {
	src, err := etl.GetSource("json_file")
	require.NoError(t, err)

	bad := writeFile(t, "bad.jsonl", "[1,2]\n")
	_, err = etl.ReadAll(context.Background(), src, etl.SourceConfig{"filePath": bad}, 0)
	assert.ErrorContains(t, err, "line 1")

	doc := writeFile(t, "doc.json", `{"data":[]}`)
	_, err = etl.ReadAll(context.Background(), src, etl.SourceConfig{"filePath": doc, "dataPath": "nope"}, 0)
	assert.ErrorContains(t, err, "not found")
}

// ─────────────────────────────────────────────────────────────
// csv_file
// ─────────────────────────────────────────────────────────────

func TestCSVFile(t *testing.T) {
	path := writeFile(t, "rows.csv", "id;payload;flag\n1;{\"a\":[1]};true\n2;;false\n")
	records := readAll(t, "csv_file", etl.SourceConfig{"filePath": path, "delimiter": ";"})

	require.Len(t, records, 2)
	assert.Equal(t, value.Number(1), records[0].Get("id"))
	assert.Equal(t, value.KindObject, value.KindOf(records[0].Get("payload")))
	assert.Equal(t, value.Bool(true), records[0].Get("flag"))
	assert.True(t, value.IsNull(records[1].Get("payload")))
}

func TestCSVFile_NoHeader(t *testing.T) {
	path := writeFile(t, "rows.csv", "a,b\nc,d\n")
	records := readAll(t, "csv_file", etl.SourceConfig{"filePath": path, "hasHeader": "false"})

	require.Len(t, records, 2)
	assert.Equal(t, []string{"col_1", "col_2"}, records[0].Data.Keys())
}

// ─────────────────────────────────────────────────────────────
// http
// ─────────────────────────────────────────────────────────────

func TestHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer t" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte("no token"))
			return
		}
		_, _ = w.Write([]byte(`{"result":{"rows":[{"id":1,"tags":["x"]},{"id":2,"tags":[]}]}}`))
	}))
	defer srv.Close()

	records := readAll(t, "http", etl.SourceConfig{
		"url":      srv.URL,
		"headers":  `{"Authorization":"Bearer t"}`,
		"dataPath": "result.rows",
	})
	require.Len(t, records, 2)
	assert.Equal(t, value.KindArray, value.KindOf(records[0].Get("tags")))

	src, err := etl.GetSource("http")
	require.NoError(t, err)
	_, err = etl.ReadAll(context.Background(), src, etl.SourceConfig{"url": srv.URL}, 0)
	assert.ErrorContains(t, err, "http 401")
}

// ─────────────────────────────────────────────────────────────
// database
// ─────────────────────────────────────────────────────────────

type sqliteProvider struct{ path string }

func (p sqliteProvider) OpenConnector(ctx context.Context, connID string) (dbclient.Connector, error) {
	return dbclient.NewConnector(&domain.DatabaseConnection{
		ID:     connID,
		Driver: domain.DatabaseDriverSQLite,
		Host:   p.path,
	}, "")
}

func TestDatabase_TableAndDocumentColumn(t *testing.T) {
	ctx := context.Background()
	provider := sqliteProvider{path: filepath.Join(t.TempDir(), "src.db")}
	sources.SetDBProvider(provider)
	defer sources.SetDBProvider(nil)

	conn, err := provider.OpenConnector(ctx, "c1")
	require.NoError(t, err)
	_, err = conn.WriteTable(ctx, &dbclient.Table{
		Name: "raw_events",
		Columns: []relation.Column{
			{Name: "id", Type: relation.TypeNumber},
			{Name: "body", Type: relation.TypeText},
		},
		Rows: []relation.Row{
			{value.Number(1), value.String(`{"kind":"a","items":[1,2]}`)},
			{value.Number(2), value.String(`{"kind":"b","items":[]}`)},
			{value.Number(3), value.Null},
		},
	}, true)
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	rows := readAll(t, "database", etl.SourceConfig{"connectionId": "c1", "table": "raw_events"})
	require.Len(t, rows, 3)
	assert.Equal(t, value.KindObject, value.KindOf(rows[0].Get("body")))

	docs := readAll(t, "database", etl.SourceConfig{"connectionId": "c1", "table": "raw_events", "documentColumn": "body"})
	require.Len(t, docs, 2, "null documents are skipped")
	assert.Equal(t, []string{"kind", "items"}, docs[0].Data.Keys())

	src, err := etl.GetSource("database")
	require.NoError(t, err)
	_, err = etl.ReadAll(ctx, src, etl.SourceConfig{"connectionId": "c1"}, 0)
	assert.ErrorContains(t, err, "table or query")
}
