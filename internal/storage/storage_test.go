package storage_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docmodel/internal/domain"
	"docmodel/internal/etl"
	"docmodel/internal/storage"
)

func openDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.New(filepath.Join(t.TempDir(), "meta", "docmodel.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleJob() *etl.ModelJob {
	return &etl.ModelJob{
		Name:        "orders",
		SourceType:  "json_file",
		SourceCfg:   etl.SourceConfig{"filePath": "/tmp/orders.json", "dataPath": "data"},
		Transforms:  []etl.TransformConfig{{Type: "limit", Config: map[string]any{"count": 10.0}}},
		Destination: etl.DestinationConfig{Type: etl.DestDir, Path: "/tmp/out"},
		TablePrefix: "raw_",
		MaxDepth:    5,
		Lineage:     "cumulative",
		WriteMode:   etl.WriteOverwrite,
		TriggerType: "manual",
		Enabled:     true,
	}
}

// ─────────────────────────────────────────────────────────────
// ModelStore
// ─────────────────────────────────────────────────────────────

func TestModelStore_JobCRUD(t *testing.T) {
	s := storage.NewModelStore(openDB(t))

	job := sampleJob()
	require.NoError(t, s.CreateJob(job))
	require.NotEmpty(t, job.ID)

	got, err := s.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, "orders", got.Name)
	assert.Equal(t, "/tmp/orders.json", got.SourceCfg["filePath"])
	assert.Equal(t, job.Destination, got.Destination)
	assert.Equal(t, 10.0, got.Transforms[0].Config["count"])
	assert.Equal(t, "cumulative", got.Lineage)
	assert.True(t, got.LastRunAt.IsZero())

	got.TriggerType = "schedule"
	got.TriggerConfig = "@every 1h"
	require.NoError(t, s.UpdateJob(got))

	triggered, err := s.ListEnabledTriggeredJobs()
	require.NoError(t, err)
	require.Len(t, triggered, 1)

	require.NoError(t, s.UpdateJobStatus(job.ID, "error", "boom"))
	got, err = s.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, "error", got.LastStatus)
	assert.False(t, got.LastRunAt.IsZero())

	require.NoError(t, s.DeleteJob(job.ID))
	_, err = s.GetJob(job.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, s.DeleteJob(job.ID), storage.ErrNotFound)
}

func TestModelStore_RunsAndCatalog(t *testing.T) {
	s := storage.NewModelStore(openDB(t))
	job := sampleJob()
	require.NoError(t, s.CreateJob(job))

	start := time.Now().UTC().Add(-time.Minute)
	first := &etl.RunLog{
		JobID: job.ID, StartedAt: start, FinishedAt: start.Add(time.Second), Status: "success",
		RecordsRead: 2, RowsWritten: 5,
		Tables: []etl.TableResult{
			{Path: "ENTRY", Table: "raw_ENTRY", Columns: []string{"id", "ITEMS_SHA256"}, Rows: 2},
			{Path: "ITEMS", Table: "raw_ITEMS", Columns: []string{"ITEMS_SHA256", "ITEMS"}, Rows: 3},
		},
	}
	require.NoError(t, s.CreateRun(first, "dir:/tmp/out"))

	second := &etl.RunLog{
		JobID: job.ID, StartedAt: start.Add(30 * time.Second), FinishedAt: start.Add(31 * time.Second), Status: "success",
		Tables: []etl.TableResult{{Path: "ENTRY", Table: "raw_ENTRY", Columns: []string{"id"}, Rows: 4}},
	}
	require.NoError(t, s.CreateRun(second, "dir:/tmp/out"))

	runs, err := s.ListRuns(job.ID, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID, "newest first")
	assert.Len(t, runs[1].Tables, 2)

	catalog, err := s.ListProducedTables(job.ID)
	require.NoError(t, err)
	require.Len(t, catalog, 2)
	assert.Equal(t, "raw_ENTRY", catalog[0].Table)
	assert.Equal(t, 4, catalog[0].Rows, "latest write wins")
	assert.Equal(t, "raw_ITEMS", catalog[1].Table)
	assert.Equal(t, "dir:/tmp/out", catalog[1].Destination)

	require.NoError(t, s.DeleteJob(job.ID))
	catalog, err = s.ListProducedTables("")
	require.NoError(t, err)
	assert.Empty(t, catalog)
}

// ─────────────────────────────────────────────────────────────
// DBConnectionStore
// ─────────────────────────────────────────────────────────────

func TestDBConnectionStore(t *testing.T) {
	s := storage.NewDBConnectionStore(openDB(t))

	c := &domain.DatabaseConnection{Name: "warehouse", Driver: domain.DatabaseDriverPostgres, Host: "db", Port: 5432}
	require.NoError(t, s.CreateConnection(c))
	require.NotEmpty(t, c.ID)

	got, err := s.GetConnection(c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DatabaseDriverPostgres, got.Driver)
	assert.Equal(t, "{}", got.ExtraJSON)

	got.Database = "analytics"
	require.NoError(t, s.UpdateConnection(got))

	list, err := s.ListConnections()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "analytics", list[0].Database)

	require.NoError(t, s.DeleteConnection(c.ID))
	_, err = s.GetConnection(c.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, s.UpdateConnection(got), storage.ErrNotFound)
}

// ─────────────────────────────────────────────────────────────
// ApprovalStore
// ─────────────────────────────────────────────────────────────

func TestApprovalStore(t *testing.T) {
	s := storage.NewApprovalStore(openDB(t))

	require.NoError(t, s.Create(&storage.Approval{ID: "a1", Tool: "run_model_job", Description: "run"}))
	require.NoError(t, s.Create(&storage.Approval{ID: "a2", Tool: "delete_model_job"}))

	pending, err := s.ListPending()
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "{}", pending[0].Metadata)

	require.NoError(t, s.Resolve("a1", true))
	status, err := s.Status("a1")
	require.NoError(t, err)
	assert.Equal(t, storage.ApprovalApproved, status)
	assert.ErrorIs(t, s.Resolve("a1", false), storage.ErrNotFound, "already resolved")

	require.NoError(t, s.Delete("a1"))
	_, err = s.Status("a1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
