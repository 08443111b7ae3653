package service_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docmodel/internal/etl"
	"docmodel/internal/etl/sources"
	"docmodel/internal/service"
	"docmodel/internal/storage"
	"docmodel/internal/value"
)

func sqliteInput(path string) service.CreateConnectionInput {
	return service.CreateConnectionInput{Name: "local", Driver: "sqlite", Host: path, Password: "pw"}
}

func TestConnectionService_CRUD(t *testing.T) {
	f := newFixture(t)

	_, err := f.conns.CreateConnection(service.CreateConnectionInput{Name: "x", Driver: "oracle", Host: "h"})
	assert.Error(t, err)

	conn, err := f.conns.CreateConnection(sqliteInput(filepath.Join(f.dir, "data.db")))
	require.NoError(t, err)

	pw, err := f.secrets.Get("db:" + conn.ID)
	require.NoError(t, err)
	assert.Equal(t, "pw", string(pw))

	in := sqliteInput(filepath.Join(f.dir, "other.db"))
	in.Name = "renamed"
	require.NoError(t, f.conns.UpdateConnection(conn.ID, in))

	list, err := f.conns.ListConnections()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "renamed", list[0].Name)

	require.NoError(t, f.conns.TestConnection(context.Background(), conn.ID))

	require.NoError(t, f.conns.DeleteConnection(conn.ID))
	pw, _ = f.secrets.Get("db:" + conn.ID)
	assert.Nil(t, pw)
	_, err = f.conns.GetConnection(conn.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestConnectionService_ExecuteQuery(t *testing.T) {
	f := newFixture(t)
	conn, err := f.conns.CreateConnection(sqliteInput(filepath.Join(f.dir, "data.db")))
	require.NoError(t, err)
	ctx := context.Background()

	page, err := f.conns.ExecuteQuery(ctx, conn.ID, `CREATE TABLE docs (doc TEXT)`, 0)
	require.NoError(t, err)
	assert.True(t, page.IsWrite)

	page, err = f.conns.ExecuteQuery(ctx, conn.ID, `INSERT INTO docs (doc) VALUES ('a'), ('b'), ('c')`, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, page.AffectedRows)

	page, err = f.conns.ExecuteQuery(ctx, conn.ID, `SELECT doc FROM docs ORDER BY doc`, 2)
	require.NoError(t, err)
	assert.True(t, page.HasMore)
	page, err = f.conns.FetchMoreRows(ctx, conn.ID, 2)
	require.NoError(t, err)
	require.Len(t, page.Rows, 1)
	assert.Equal(t, value.String("c"), page.Rows[0][0])

	schema, err := f.conns.Introspect(ctx, conn.ID)
	require.NoError(t, err)
	require.Len(t, schema.Tables, 1)
	assert.Equal(t, "docs", schema.Tables[0].Name)
}

// A job reading JSON documents from one SQLite table and writing the
// decomposed tables back through the same connection.
func TestModelService_DatabaseRoundTrip(t *testing.T) {
	f := newFixture(t)
	sources.SetDBProvider(f.conns)
	ctx := context.Background()

	conn, err := f.conns.CreateConnection(sqliteInput(filepath.Join(f.dir, "data.db")))
	require.NoError(t, err)
	_, err = f.conns.ExecuteQuery(ctx, conn.ID, `CREATE TABLE docs (doc TEXT)`, 0)
	require.NoError(t, err)
	_, err = f.conns.ExecuteQuery(ctx, conn.ID,
		`INSERT INTO docs (doc) VALUES ('{"id":1,"tags":["a","b"]}'), ('{"id":2,"tags":["c"]}'), (NULL)`, 0)
	require.NoError(t, err)

	job, err := f.models.CreateJob(service.CreateModelJobInput{
		Name:         "docs",
		SourceType:   "database",
		SourceConfig: map[string]any{"connectionId": conn.ID, "table": "docs", "documentColumn": "doc"},
		Destination:  etl.DestinationConfig{Type: etl.DestConnection, ConnectionID: conn.ID},
		TablePrefix:  "raw_",
	})
	require.NoError(t, err)

	result, err := f.models.RunJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, result.RecordsRead)
	assert.Equal(t, "sqlite:local", result.Destination)

	page, err := f.conns.ExecuteQuery(ctx, conn.ID, `SELECT id FROM raw_ENTRY ORDER BY id`, 10)
	require.NoError(t, err)
	require.Len(t, page.Rows, 2)
	assert.Equal(t, value.Number(2), page.Rows[1][0])

	page, err = f.conns.ExecuteQuery(ctx, conn.ID, `SELECT tags FROM raw_tags ORDER BY tags`, 10)
	require.NoError(t, err)
	require.Len(t, page.Rows, 3)
	assert.Equal(t, value.String("a"), page.Rows[0][0])
}
