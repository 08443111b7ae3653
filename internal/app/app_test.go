package app_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"docmodel/internal/app"
	"docmodel/internal/config"
	"docmodel/internal/storage"
)

func newApp(t *testing.T) *app.App {
	t.Helper()
	args := &config.Args{DataDir: filepath.Join(t.TempDir(), "data")}
	a, err := app.New(args, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func writeDocs(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "orders.json")
	docs := `[{"id":1,"lines":[{"sku":"a"},{"sku":"b"}]},{"id":2,"lines":[{"sku":"c"}]}]`
	require.NoError(t, os.WriteFile(path, []byte(docs), 0o644))
	return path
}

func TestRun_WritesDirectory(t *testing.T) {
	a := newApp(t)
	out := t.TempDir()

	res, err := a.Run(context.Background(), &config.RunCmd{
		ModelArgs: config.ModelArgs{
			Source:     "json_file",
			Config:     map[string]string{"filePath": writeDocs(t)},
			Prefix:     "t_",
			MaxDepth:   100,
			SampleSize: 50,
			Lineage:    "flat",
		},
		Dest:      "dir:" + out,
		WriteMode: "overwrite",
	})
	require.NoError(t, err)
	assert.Equal(t, "success", res.Status)
	assert.Equal(t, 2, res.RecordsRead)

	assert.FileExists(t, filepath.Join(out, "t_ENTRY.jsonl"))
	assert.FileExists(t, filepath.Join(out, "t_lines.jsonl"))
}

func TestRun_RejectsBadDestination(t *testing.T) {
	a := newApp(t)
	_, err := a.Run(context.Background(), &config.RunCmd{
		ModelArgs: config.ModelArgs{Source: "json_file", Config: map[string]string{"filePath": "x.json"}},
		Dest:      "ftp://nowhere",
	})
	assert.Error(t, err)
}

func TestPreview(t *testing.T) {
	a := newApp(t)
	res, err := a.Preview(context.Background(), &config.PreviewCmd{
		ModelArgs: config.ModelArgs{
			Source:  "json_file",
			Config:  map[string]string{"filePath": writeDocs(t)},
			Lineage: "cumulative",
		},
		MaxRecords: 10,
		SampleRows: 1,
	})
	require.NoError(t, err)
	require.Len(t, res.Tables, 2)
	assert.Equal(t, "ENTRY", res.Tables[0].Table)
	assert.Len(t, res.Tables[0].Sample, 1)
}

func TestResolveApprovals(t *testing.T) {
	a := newApp(t)
	require.NoError(t, a.Approvals.Create(&storage.Approval{ID: "a1", Tool: "run_model_job"}))
	require.NoError(t, a.Approvals.Create(&storage.Approval{ID: "a2", Tool: "delete_model_job"}))

	pending, err := a.ResolveApprovals(&config.ApprovalsCmd{Approve: "a1"})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "a2", pending[0].ID)

	status, err := a.Approvals.Status("a1")
	require.NoError(t, err)
	assert.Equal(t, storage.ApprovalApproved, status)

	_, err = a.ResolveApprovals(&config.ApprovalsCmd{Reject: "missing"})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestWatch_StopsOnCancel(t *testing.T) {
	a := newApp(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, a.Watch(ctx))
}
