package service_test

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"docmodel/internal/decompose"
	"docmodel/internal/etl"
	_ "docmodel/internal/etl/sources"
	"docmodel/internal/secret"
	"docmodel/internal/service"
	"docmodel/internal/storage"
	"docmodel/internal/value"
)

// ─────────────────────────────────────────────────────────────
// Fixtures
// ─────────────────────────────────────────────────────────────

// gates holds the channels blockingSource waits on, keyed by cfg "gate".
var gates sync.Map

type blockingSource struct{}

func init() { etl.RegisterSource(blockingSource{}) }

func (blockingSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:         "test_blocking",
		Label:        "Blocking",
		ConfigFields: []etl.ConfigField{{Key: "gate", Required: true}},
	}
}

func (blockingSource) Discover(ctx context.Context, cfg etl.SourceConfig) (*etl.Schema, error) {
	return &etl.Schema{}, nil
}

func (blockingSource) Read(ctx context.Context, cfg etl.SourceConfig) (<-chan etl.Record, <-chan error) {
	out := make(chan etl.Record, 1)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)
		gate, _ := gates.Load(cfg.String("gate"))
		select {
		case <-gate.(chan struct{}):
		case <-ctx.Done():
			errCh <- ctx.Err()
			return
		}
		out <- etl.NewRecord(value.NewObject().Set("id", value.Number(1)))
	}()
	return out, errCh
}

type fixture struct {
	db       *storage.DB
	conns    *service.ConnectionService
	secrets  *secret.MemoryStore
	models   *service.ModelService
	notifier *service.MockNotifier
	dir      string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	db, err := storage.New(filepath.Join(dir, "meta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{db: db, secrets: secret.NewMemoryStore(), notifier: &service.MockNotifier{}, dir: dir}
	f.conns = service.NewConnectionService(storage.NewDBConnectionStore(db), f.secrets, zap.NewNop())
	t.Cleanup(f.conns.Close)

	pipeline := etl.NewPipeline(&service.DestinationResolver{Connections: f.conns}, zap.NewNop())
	f.models = service.NewModelService(storage.NewModelStore(db), pipeline, f.notifier, zap.NewNop())
	t.Cleanup(f.models.Stop)
	return f
}

func (f *fixture) writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(f.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (f *fixture) jsonJob(path string) service.CreateModelJobInput {
	return service.CreateModelJobInput{
		Name:         "orders",
		SourceType:   "json_file",
		SourceConfig: map[string]any{"filePath": path},
		Destination:  etl.DestinationConfig{Type: etl.DestDir, Path: filepath.Join(f.dir, "out")},
		TablePrefix:  "raw_",
	}
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()
	n := 0
	sc := bufio.NewScanner(file)
	for sc.Scan() {
		n++
	}
	return n
}

const ordersJSON = `[{"id":1,"tags":["a","b"]},{"id":2,"tags":["c"]}]`

// ─────────────────────────────────────────────────────────────
// Job CRUD
// ─────────────────────────────────────────────────────────────

func TestModelService_CreateJobDefaults(t *testing.T) {
	f := newFixture(t)
	job, err := f.models.CreateJob(f.jsonJob(f.writeFile(t, "orders.json", ordersJSON)))
	require.NoError(t, err)

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, service.TriggerManual, job.TriggerType)
	assert.Equal(t, etl.WriteOverwrite, job.WriteMode)
	assert.Equal(t, decompose.DefaultMaxDepth, job.MaxDepth)
	assert.Equal(t, decompose.DefaultSampleSize, job.SampleSize)

	jobs, err := f.models.ListJobs()
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "orders", jobs[0].Name)
}

func TestModelService_CreateJobRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	path := f.writeFile(t, "orders.json", ordersJSON)

	cases := map[string]func(in *service.CreateModelJobInput){
		"missing name":       func(in *service.CreateModelJobInput) { in.Name = " " },
		"unknown source":     func(in *service.CreateModelJobInput) { in.SourceType = "ftp" },
		"missing file path":  func(in *service.CreateModelJobInput) { in.SourceConfig = nil },
		"missing dest path":  func(in *service.CreateModelJobInput) { in.Destination.Path = "" },
		"bad lineage":        func(in *service.CreateModelJobInput) { in.Lineage = "nested" },
		"bad write mode":     func(in *service.CreateModelJobInput) { in.WriteMode = "upsert" },
		"bad transform":      func(in *service.CreateModelJobInput) { in.Transforms = []etl.TransformConfig{{Type: "explode"}} },
		"bad schedule":       func(in *service.CreateModelJobInput) { in.TriggerType, in.TriggerConfig = service.TriggerSchedule, "every day" },
		"watch without path": func(in *service.CreateModelJobInput) { in.TriggerType = service.TriggerFileWatch },
		"unknown trigger":    func(in *service.CreateModelJobInput) { in.TriggerType = "webhook" },
		"negative depth":     func(in *service.CreateModelJobInput) { in.MaxDepth = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := f.jsonJob(path)
			mutate(&in)
			_, err := f.models.CreateJob(in)
			assert.Error(t, err)
		})
	}

	jobs, err := f.models.ListJobs()
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestModelService_UpdateAndDeleteJob(t *testing.T) {
	f := newFixture(t)
	in := f.jsonJob(f.writeFile(t, "orders.json", ordersJSON))
	job, err := f.models.CreateJob(in)
	require.NoError(t, err)

	in.TablePrefix = "stg_"
	in.TriggerType = service.TriggerSchedule
	in.TriggerConfig = "@every 1h"
	in.Enabled = true
	updated, err := f.models.UpdateJob(job.ID, in)
	require.NoError(t, err)
	assert.Equal(t, job.ID, updated.ID)

	got, err := f.models.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, "stg_", got.TablePrefix)
	assert.Equal(t, "@every 1h", got.TriggerConfig)

	require.NoError(t, f.models.DeleteJob(job.ID))
	_, err = f.models.GetJob(job.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

// ─────────────────────────────────────────────────────────────
// Runs
// ─────────────────────────────────────────────────────────────

func TestModelService_RunJob(t *testing.T) {
	f := newFixture(t)
	job, err := f.models.CreateJob(f.jsonJob(f.writeFile(t, "orders.json", ordersJSON)))
	require.NoError(t, err)

	result, err := f.models.RunJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, "success", result.Status)
	assert.Equal(t, 2, result.RecordsRead)
	require.Len(t, result.Tables, 2)
	assert.Equal(t, "raw_ENTRY", result.Tables[0].Table)
	assert.Equal(t, []string{"id", "tags_SHA256"}, result.Tables[0].Columns)
	assert.Equal(t, "raw_tags", result.Tables[1].Table)
	assert.Equal(t, 3, result.Tables[1].Rows)

	out := filepath.Join(f.dir, "out")
	assert.Equal(t, 2, countLines(t, filepath.Join(out, "raw_ENTRY.jsonl")))
	assert.Equal(t, 3, countLines(t, filepath.Join(out, "raw_tags.jsonl")))

	got, err := f.models.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, "success", got.LastStatus)

	runs, err := f.models.ListRuns(job.ID)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 5, runs[0].RowsWritten)

	tables, err := f.models.ListTables(job.ID)
	require.NoError(t, err)
	require.Len(t, tables, 2)
	assert.Equal(t, "dir:"+out, tables[0].Destination)

	assert.Equal(t, []string{service.EventRunStarted, service.EventRunCompleted}, f.notifier.Names())
}

func TestModelService_RunJob_AmbiguousTypeRecordsError(t *testing.T) {
	f := newFixture(t)
	path := f.writeFile(t, "mixed.json", `[{"id":1,"x":[1]},{"id":2,"x":{"k":1}}]`)
	job, err := f.models.CreateJob(f.jsonJob(path))
	require.NoError(t, err)

	result, err := f.models.RunJob(context.Background(), job.ID)
	require.ErrorIs(t, err, decompose.ErrAmbiguousType)
	assert.Equal(t, "error", result.Status)
	assert.Empty(t, result.Tables)

	_, statErr := os.Stat(filepath.Join(f.dir, "out"))
	assert.True(t, os.IsNotExist(statErr), "nothing may be written")

	got, err := f.models.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, "error", got.LastStatus)
	assert.Contains(t, got.LastError, `"x"`)

	runs, err := f.models.ListRuns(job.ID)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "error", runs[0].Status)
}

func TestModelService_RunJob_AlreadyRunning(t *testing.T) {
	f := newFixture(t)
	gate := make(chan struct{})
	gates.Store(t.Name(), gate)

	job, err := f.models.CreateJob(service.CreateModelJobInput{
		Name:         "slow",
		SourceType:   "test_blocking",
		SourceConfig: map[string]any{"gate": t.Name()},
		Destination:  etl.DestinationConfig{Type: etl.DestDir, Path: filepath.Join(f.dir, "out")},
	})
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := f.models.RunJob(context.Background(), job.ID)
		errCh <- err
	}()
	require.Eventually(t, func() bool { return len(f.models.Running()) == 1 }, 2*time.Second, 5*time.Millisecond)

	_, err = f.models.RunJob(context.Background(), job.ID)
	require.ErrorIs(t, err, service.ErrJobRunning)

	close(gate)
	require.NoError(t, <-errCh)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	f.models.WaitRunning(ctx)
	assert.Empty(t, f.models.Running())
}

func TestModelService_Preview(t *testing.T) {
	f := newFixture(t)
	in := f.jsonJob(f.writeFile(t, "orders.json", ordersJSON))
	in.Destination = etl.DestinationConfig{}

	preview, err := f.models.Preview(context.Background(), in, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, preview.RecordsRead)
	require.Len(t, preview.Tables, 2)
	assert.Equal(t, "raw_tags", preview.Tables[1].Table)
	assert.Equal(t, 3, preview.Tables[1].Rows)
	assert.Len(t, preview.Tables[1].Sample, 2)

	_, statErr := os.Stat(filepath.Join(f.dir, "out"))
	assert.True(t, os.IsNotExist(statErr))
}

// ─────────────────────────────────────────────────────────────
// Triggers
// ─────────────────────────────────────────────────────────────

func TestModelService_FileWatchTrigger(t *testing.T) {
	f := newFixture(t)
	path := f.writeFile(t, "orders.json", ordersJSON)
	in := f.jsonJob(path)
	in.TriggerType = service.TriggerFileWatch
	in.TriggerConfig = path
	in.Enabled = true
	job, err := f.models.CreateJob(in)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, f.models.Start(ctx))

	require.NoError(t, os.WriteFile(path, []byte(`[{"id":3,"tags":[]}]`), 0o644))

	require.Eventually(t, func() bool {
		runs, err := f.models.ListRuns(job.ID)
		return err == nil && len(runs) > 0 && runs[0].Status == "success"
	}, 5*time.Second, 50*time.Millisecond)
}

func TestModelService_StopIsIdempotent(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.models.Start(context.Background()))
	f.models.Stop()
	f.models.Stop()
}
