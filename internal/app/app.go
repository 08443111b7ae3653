// Package app wires storage, secrets and services together for the
// docmodel command line.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"docmodel/internal/config"
	"docmodel/internal/etl"
	"docmodel/internal/etl/sources"
	mcpserver "docmodel/internal/mcp"
	"docmodel/internal/secret"
	"docmodel/internal/service"
	"docmodel/internal/storage"
)

// App owns the process-wide services.
type App struct {
	args *config.Args
	log  *zap.Logger
	db   *storage.DB

	pipeline    *etl.Pipeline
	Models      *service.ModelService
	Connections *service.ConnectionService
	Approvals   *storage.ApprovalStore
}

// New opens the metadata database under args.DataDir and builds the services.
func New(args *config.Args, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(args.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := storage.New(args.DBPath())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	conns := service.NewConnectionService(storage.NewDBConnectionStore(db), secretStore(args), log)
	// database sources open their own connectors through the service
	sources.SetDBProvider(conns)

	pipeline := etl.NewPipeline(&service.DestinationResolver{
		Connections: conns,
		ObjectStore: args.ObjectStoreConfig(),
	}, log)

	a := &App{
		args:        args,
		log:         log,
		db:          db,
		pipeline:    pipeline,
		Connections: conns,
		Models:      service.NewModelService(storage.NewModelStore(db), pipeline, service.LogNotifier{Log: log}, log),
		Approvals:   storage.NewApprovalStore(db),
	}
	log.Debug("app ready", zap.String("db", args.DBPath()))
	return a, nil
}

// secretStore reads connection passwords from the environment first, then
// from the keychain when asked for and available. Without a keychain,
// passwords saved during this process live in memory only.
func secretStore(args *config.Args) secret.SecretStore {
	if args.Keychain && secret.KeychainAvailable() {
		return secret.Chain{secret.NewKeychainStore(), secret.NewEnvStore()}
	}
	return secret.Chain{secret.NewMemoryStore(), secret.NewEnvStore()}
}

// Close stops triggers and releases connections and the database.
func (a *App) Close() {
	a.Models.Stop()
	a.Connections.Close()
	sources.SetDBProvider(nil)
	if err := a.db.Close(); err != nil {
		a.log.Warn("close database", zap.Error(err))
	}
}

// modelInput maps command line model flags onto a job input.
func modelInput(m config.ModelArgs, name string) (service.CreateModelJobInput, error) {
	in := service.CreateModelJobInput{
		Name:         name,
		SourceType:   m.Source,
		SourceConfig: m.SourceConfig(),
		DedupeKey:    m.DedupeKey,
		TablePrefix:  m.Prefix,
		TableSuffix:  m.Suffix,
		MaxDepth:     m.MaxDepth,
		SampleSize:   m.SampleSize,
		Lineage:      m.Lineage,
	}
	if m.Transforms != "" {
		if err := json.Unmarshal([]byte(m.Transforms), &in.Transforms); err != nil {
			return in, fmt.Errorf("--transforms: %w", err)
		}
	}
	return in, nil
}

// Run decomposes a source described on the command line and writes the
// tables without saving a job.
func (a *App) Run(ctx context.Context, cmd *config.RunCmd) (*etl.RunResult, error) {
	in, err := modelInput(cmd.ModelArgs, "cli")
	if err != nil {
		return nil, err
	}
	in.Destination, err = config.ParseDestination(cmd.Dest)
	if err != nil {
		return nil, err
	}
	if in.Destination.Type == etl.DestDir {
		if in.Destination.Path, err = filepath.Abs(in.Destination.Path); err != nil {
			return nil, err
		}
	}
	in.WriteMode = cmd.WriteMode
	job, err := in.Job()
	if err != nil {
		return nil, err
	}
	return a.pipeline.Run(ctx, job)
}

func (a *App) Preview(ctx context.Context, cmd *config.PreviewCmd) (*etl.PreviewResult, error) {
	in, err := modelInput(cmd.ModelArgs, "preview")
	if err != nil {
		return nil, err
	}
	return a.Models.Preview(ctx, in, cmd.MaxRecords, cmd.SampleRows)
}

// Watch runs scheduled and file-watch jobs until ctx is cancelled, then
// waits for in-flight runs.
func (a *App) Watch(ctx context.Context) error {
	if err := a.Models.Start(ctx); err != nil {
		return err
	}
	a.log.Info("watching triggered jobs")
	<-ctx.Done()
	a.Models.Stop()
	a.Models.WaitRunning(context.Background())
	a.log.Info("watch stopped")
	return nil
}

// ServeMCP serves the MCP tools on stdin/stdout. With RequireApproval,
// destructive tools wait for `docmodel approvals` in another process.
func (a *App) ServeMCP(ctx context.Context, cmd *config.MCPCmd, version string) error {
	queue := mcpserver.AutoApprove()
	if cmd.RequireApproval {
		queue = mcpserver.NewApprovalQueue(service.LogNotifier{Log: a.log})
		queue.SetStore(a.Approvals)
	}
	if err := a.Models.Start(ctx); err != nil {
		return err
	}
	srv := mcpserver.New(mcpserver.Deps{
		Models:      a.Models,
		Connections: a.Connections,
		Approval:    queue,
		Log:         a.log,
		Version:     version,
	})
	return srv.ServeStdio(ctx)
}

// ResolveApprovals applies --approve/--reject, then returns what is still
// pending.
func (a *App) ResolveApprovals(cmd *config.ApprovalsCmd) ([]storage.Approval, error) {
	if cmd.Approve != "" {
		if err := a.Approvals.Resolve(cmd.Approve, true); err != nil {
			return nil, err
		}
		a.log.Info("approved", zap.String("id", cmd.Approve))
	}
	if cmd.Reject != "" {
		if err := a.Approvals.Resolve(cmd.Reject, false); err != nil {
			return nil, err
		}
		a.log.Info("rejected", zap.String("id", cmd.Reject))
	}
	return a.Approvals.ListPending()
}
