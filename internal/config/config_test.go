package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docmodel/internal/config"
	"docmodel/internal/etl"
)

func TestParse_RunDefaults(t *testing.T) {
	args, _, err := config.Parse([]string{
		"--data-dir", "/tmp/dm",
		"run", "--source", "json_file", "--config", "filePath=/data/a.json", "dataPath=items",
		"--dest", "dir:/out",
	})
	require.NoError(t, err)
	require.NotNil(t, args.Run)
	assert.Equal(t, "/tmp/dm/docmodel.db", args.DBPath())
	assert.Equal(t, "info", args.LogLevel)
	assert.Equal(t, 100, args.Run.MaxDepth)
	assert.Equal(t, 50, args.Run.SampleSize)
	assert.Equal(t, "flat", args.Run.Lineage)
	assert.Equal(t, "overwrite", args.Run.WriteMode)
	assert.Equal(t, map[string]any{"filePath": "/data/a.json", "dataPath": "items"}, args.Run.SourceConfig())
}

func TestParse_EnvFallback(t *testing.T) {
	t.Setenv("DOCMODEL_DATA_DIR", "/var/lib/docmodel")
	t.Setenv("DOCMODEL_S3_ENDPOINT", "localhost:9000")
	args, _, err := config.Parse([]string{"jobs"})
	require.NoError(t, err)
	require.NotNil(t, args.Jobs)
	assert.Equal(t, "/var/lib/docmodel", args.DataDir)
	assert.Equal(t, "localhost:9000", args.ObjectStoreConfig().Endpoint)
	assert.Equal(t, "us-east-1", args.ObjectStoreConfig().Region)
}

func TestParse_MissingRequired(t *testing.T) {
	_, _, err := config.Parse([]string{"run", "--source", "json_file"})
	assert.Error(t, err)
}

func TestParseDestination(t *testing.T) {
	cases := map[string]etl.DestinationConfig{
		"dir:/out":               {Type: etl.DestDir, Path: "/out"},
		"connection:abc":         {Type: etl.DestConnection, ConnectionID: "abc"},
		"s3://lake/raw/orders/":  {Type: etl.DestObjectStore, Bucket: "lake", Prefix: "raw/orders/"},
		"s3://lake":              {Type: etl.DestObjectStore, Bucket: "lake"},
	}
	for in, want := range cases {
		got, err := config.ParseDestination(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := config.ParseDestination("ftp://x")
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	log, err := config.NewLogger(true, "debug")
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(-1))

	_, err = config.NewLogger(false, "loud")
	assert.Error(t, err)
}
