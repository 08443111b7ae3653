// Package config parses docmodel's command line and environment and builds
// its logger.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/alexflint/go-arg"

	"docmodel/internal/etl"
)

// Args is the full command line. Every global flag also reads an
// environment variable; a .env file in the working directory is loaded
// before parsing.
type Args struct {
	DataDir  string `arg:"--data-dir,env:DOCMODEL_DATA_DIR" help:"directory holding the metadata database"`
	Dev      bool   `arg:"--dev,env:DOCMODEL_DEV" help:"human-readable development logging"`
	LogLevel string `arg:"--log-level,env:DOCMODEL_LOG_LEVEL" default:"info" help:"debug, info, warn or error"`
	Keychain bool   `arg:"--keychain,env:DOCMODEL_KEYCHAIN" help:"store connection passwords in the macOS keychain"`
	ObjectStoreArgs

	Run       *RunCmd       `arg:"subcommand:run" help:"decompose a source and write the tables"`
	Preview   *PreviewCmd   `arg:"subcommand:preview" help:"decompose a source without writing anything"`
	Jobs      *JobsCmd      `arg:"subcommand:jobs" help:"list saved model jobs"`
	RunJob    *RunJobCmd    `arg:"subcommand:run-job" help:"run a saved model job"`
	Watch     *WatchCmd     `arg:"subcommand:watch" help:"run scheduled and file-watch jobs until interrupted"`
	MCP       *MCPCmd       `arg:"subcommand:mcp" help:"serve the MCP tools on stdin/stdout"`
	Approvals *ApprovalsCmd `arg:"subcommand:approvals" help:"list or resolve pending MCP approvals"`
}

// ObjectStoreArgs configures the S3-compatible object store destination.
type ObjectStoreArgs struct {
	S3Endpoint  string `arg:"--s3-endpoint,env:DOCMODEL_S3_ENDPOINT" help:"S3-compatible endpoint host[:port]"`
	S3Region    string `arg:"--s3-region,env:DOCMODEL_S3_REGION" default:"us-east-1"`
	S3AccessKey string `arg:"--s3-access-key,env:DOCMODEL_S3_ACCESS_KEY"`
	S3SecretKey string `arg:"--s3-secret-key,env:DOCMODEL_S3_SECRET_KEY"`
	S3UseSSL    bool   `arg:"--s3-ssl,env:DOCMODEL_S3_SSL" help:"use https for the object store"`
}

func (o ObjectStoreArgs) ObjectStoreConfig() etl.ObjectStoreConfig {
	return etl.ObjectStoreConfig{
		Endpoint:  o.S3Endpoint,
		Region:    o.S3Region,
		AccessKey: o.S3AccessKey,
		SecretKey: o.S3SecretKey,
		UseSSL:    o.S3UseSSL,
	}
}

// ModelArgs describe an ad-hoc model: source, transforms and decomposition
// settings.
type ModelArgs struct {
	Source     string            `arg:"--source,required" help:"source type: json_file, csv_file, http or database"`
	Config     map[string]string `arg:"--config" help:"source option as key=value, e.g. filePath=/data/orders.json"`
	Transforms string            `arg:"--transforms" help:"JSON array of {type, config} record transforms"`
	DedupeKey  string            `arg:"--dedupe-key" help:"drop records repeating this field's value"`
	Prefix     string            `arg:"--prefix" help:"table name prefix"`
	Suffix     string            `arg:"--suffix" help:"table name suffix"`
	MaxDepth   int               `arg:"--max-depth" default:"100" help:"recursion cap"`
	SampleSize int               `arg:"--sample-size" default:"50" help:"distinct values sampled to classify a field"`
	Lineage    string            `arg:"--lineage" default:"flat" help:"child table naming: flat or cumulative"`
}

type RunCmd struct {
	ModelArgs
	Dest      string `arg:"--dest,required" help:"dir:<path>, connection:<id> or s3://<bucket>/<prefix>"`
	WriteMode string `arg:"--write-mode" default:"overwrite" help:"overwrite or append"`
}

type PreviewCmd struct {
	ModelArgs
	MaxRecords int `arg:"--max-records" default:"100" help:"read at most this many records"`
	SampleRows int `arg:"--sample-rows" default:"5" help:"sample rows shown per table"`
}

type JobsCmd struct{}

type RunJobCmd struct {
	JobID string `arg:"positional,required" help:"model job ID"`
}

type WatchCmd struct{}

type MCPCmd struct {
	RequireApproval bool `arg:"--require-approval,env:DOCMODEL_REQUIRE_APPROVAL" help:"hold destructive tools until approved with 'docmodel approvals'"`
}

type ApprovalsCmd struct {
	Approve string `arg:"--approve" help:"approve the pending action with this ID"`
	Reject  string `arg:"--reject" help:"reject the pending action with this ID"`
}

func (Args) Description() string {
	return "docmodel decomposes semi-structured documents into relational tables"
}

// Parse parses argv (without the program name).
func Parse(argv []string) (*Args, *arg.Parser, error) {
	var args Args
	p, err := arg.NewParser(arg.Config{Program: "docmodel"}, &args)
	if err != nil {
		return nil, nil, err
	}
	if err := p.Parse(argv); err != nil {
		return &args, p, err
	}
	if args.DataDir == "" {
		args.DataDir = DefaultDataDir()
	}
	return &args, p, nil
}

// DefaultDataDir is ~/.local/share/docmodel.
func DefaultDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".docmodel"
	}
	return filepath.Join(homeDir, ".local", "share", "docmodel")
}

// DBPath is the metadata database inside the data dir.
func (a *Args) DBPath() string {
	return filepath.Join(a.DataDir, "docmodel.db")
}

// SourceConfig converts the key=value options. "true"/"false" stay strings;
// sources read them with SourceConfig.Bool.
func (m ModelArgs) SourceConfig() map[string]any {
	out := make(map[string]any, len(m.Config))
	for k, v := range m.Config {
		out[k] = v
	}
	return out
}

// ParseDestination reads the --dest syntax.
func ParseDestination(s string) (etl.DestinationConfig, error) {
	switch {
	case strings.HasPrefix(s, "dir:"):
		return etl.DestinationConfig{Type: etl.DestDir, Path: strings.TrimPrefix(s, "dir:")}, nil
	case strings.HasPrefix(s, "connection:"):
		return etl.DestinationConfig{Type: etl.DestConnection, ConnectionID: strings.TrimPrefix(s, "connection:")}, nil
	case strings.HasPrefix(s, "s3://"):
		rest := strings.TrimPrefix(s, "s3://")
		bucket, prefix, _ := strings.Cut(rest, "/")
		return etl.DestinationConfig{Type: etl.DestObjectStore, Bucket: bucket, Prefix: prefix}, nil
	}
	return etl.DestinationConfig{}, fmt.Errorf("unrecognized destination %q (want dir:<path>, connection:<id> or s3://<bucket>/<prefix>)", s)
}
