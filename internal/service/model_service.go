package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"docmodel/internal/decompose"
	"docmodel/internal/etl"
	"docmodel/internal/storage"
)

// ─────────────────────────────────────────────────────────────
// Model Service: saved model jobs, runs and triggers
// ─────────────────────────────────────────────────────────────

// Trigger types of a model job.
const (
	TriggerManual    = "manual"
	TriggerSchedule  = "schedule"
	TriggerFileWatch = "file_watch"
)

const (
	defaultRunTimeout     = 5 * time.Minute
	defaultPreviewTimeout = 30 * time.Second
	fileWatchDebounce     = 500 * time.Millisecond
	runHistoryLimit       = 50
)

// ModelService manages model jobs, their triggers and run history.
type ModelService struct {
	store       *storage.ModelStore
	pipeline    *etl.Pipeline
	notifier    Notifier
	log         *zap.Logger
	runningJobs runningJobsGuard

	// RunTimeout bounds a single job run.
	RunTimeout time.Duration

	// watcher / cron lifecycle
	watchMu     sync.Mutex
	baseCtx     context.Context
	watchCancel context.CancelFunc
	watcher     *fsnotify.Watcher
	cronSched   *cron.Cron
}

func NewModelService(store *storage.ModelStore, pipeline *etl.Pipeline, notifier Notifier, log *zap.Logger) *ModelService {
	if log == nil {
		log = zap.NewNop()
	}
	if notifier == nil {
		notifier = LogNotifier{Log: log}
	}
	return &ModelService{
		store:      store,
		pipeline:   pipeline,
		notifier:   notifier,
		log:        log.Named("models"),
		RunTimeout: defaultRunTimeout,
	}
}

// ── Job CRUD ───────────────────────────────────────────────

type CreateModelJobInput struct {
	Name          string                `json:"name"`
	SourceType    string                `json:"sourceType"`
	SourceConfig  map[string]any        `json:"sourceConfig"`
	Transforms    []etl.TransformConfig `json:"transforms"`
	DedupeKey     string                `json:"dedupeKey"`
	Destination   etl.DestinationConfig `json:"destination"`
	TablePrefix   string                `json:"tablePrefix"`
	TableSuffix   string                `json:"tableSuffix"`
	MaxDepth      int                   `json:"maxDepth"`
	SampleSize    int                   `json:"sampleSize"`
	Lineage       string                `json:"lineage"`
	WriteMode     string                `json:"writeMode"`
	TriggerType   string                `json:"triggerType"`
	TriggerConfig string                `json:"triggerConfig"`
	Enabled       bool                  `json:"enabled"`
}

// Job builds the job described by the input, applying defaults and
// rejecting invalid settings.
func (in CreateModelJobInput) Job() (*etl.ModelJob, error) {
	job := &etl.ModelJob{
		Name:          strings.TrimSpace(in.Name),
		SourceType:    in.SourceType,
		SourceCfg:     etl.SourceConfig(in.SourceConfig),
		Transforms:    in.Transforms,
		DedupeKey:     in.DedupeKey,
		Destination:   in.Destination,
		TablePrefix:   in.TablePrefix,
		TableSuffix:   in.TableSuffix,
		MaxDepth:      in.MaxDepth,
		SampleSize:    in.SampleSize,
		Lineage:       in.Lineage,
		WriteMode:     etl.WriteMode(in.WriteMode),
		TriggerType:   in.TriggerType,
		TriggerConfig: strings.TrimSpace(in.TriggerConfig),
		Enabled:       in.Enabled,
	}
	if job.SourceCfg == nil {
		job.SourceCfg = etl.SourceConfig{}
	}
	if job.TriggerType == "" {
		job.TriggerType = TriggerManual
	}
	if job.MaxDepth == 0 {
		job.MaxDepth = decompose.DefaultMaxDepth
	}
	if job.SampleSize == 0 {
		job.SampleSize = decompose.DefaultSampleSize
	}
	mode, err := etl.ParseWriteMode(in.WriteMode)
	if err != nil {
		return nil, err
	}
	job.WriteMode = mode

	if err := validateJob(job); err != nil {
		return nil, err
	}
	return job, nil
}

func validateJob(job *etl.ModelJob) error {
	if job.Name == "" {
		return fmt.Errorf("job name is required")
	}
	if job.MaxDepth < 0 || job.SampleSize < 0 {
		return fmt.Errorf("maxDepth and sampleSize must not be negative")
	}
	source, err := etl.GetSource(job.SourceType)
	if err != nil {
		return err
	}
	if err := source.Spec().Validate(job.SourceCfg); err != nil {
		return err
	}
	if _, err := job.DecomposeOptions(); err != nil {
		return err
	}
	if _, err := etl.BuildTransformers(job.Transforms, job.DedupeKey); err != nil {
		return err
	}
	if err := job.Destination.Validate(); err != nil {
		return err
	}
	switch job.TriggerType {
	case TriggerManual:
	case TriggerSchedule:
		if _, err := cron.ParseStandard(job.TriggerConfig); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", job.TriggerConfig, err)
		}
	case TriggerFileWatch:
		if job.TriggerConfig == "" {
			return fmt.Errorf("file_watch trigger needs a path")
		}
	default:
		return fmt.Errorf("unknown trigger type: %q", job.TriggerType)
	}
	return nil
}

func (s *ModelService) CreateJob(input CreateModelJobInput) (*etl.ModelJob, error) {
	job, err := input.Job()
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateJob(job); err != nil {
		return nil, fmt.Errorf("create model job: %w", err)
	}
	s.refreshWatchers()
	return job, nil
}

func (s *ModelService) GetJob(id string) (*etl.ModelJob, error) {
	return s.store.GetJob(id)
}

func (s *ModelService) ListJobs() ([]etl.ModelJob, error) {
	return s.store.ListJobs()
}

func (s *ModelService) UpdateJob(id string, input CreateModelJobInput) (*etl.ModelJob, error) {
	existing, err := s.store.GetJob(id)
	if err != nil {
		return nil, err
	}
	job, err := input.Job()
	if err != nil {
		return nil, err
	}
	job.ID = existing.ID
	job.CreatedAt = existing.CreatedAt
	if err := s.store.UpdateJob(job); err != nil {
		return nil, err
	}
	s.refreshWatchers()
	return job, nil
}

func (s *ModelService) DeleteJob(id string) error {
	if err := s.store.DeleteJob(id); err != nil {
		return err
	}
	s.refreshWatchers()
	return nil
}

// ── Run ────────────────────────────────────────────────────

// RunJob executes a saved job synchronously and records the run.
func (s *ModelService) RunJob(ctx context.Context, id string) (*etl.RunResult, error) {
	if !s.runningJobs.TryLock(id) {
		return nil, fmt.Errorf("job %s: %w", id, ErrJobRunning)
	}
	defer s.runningJobs.Unlock(id)

	job, err := s.store.GetJob(id)
	if err != nil {
		return nil, err
	}

	if err := s.store.UpdateJobStatus(id, "running", ""); err != nil {
		s.log.Warn("update job status", zap.String("job", id), zap.Error(err))
	}
	s.notifier.Notify(ctx, EventRunStarted, id)

	timeout := s.RunTimeout
	if timeout <= 0 {
		timeout = defaultRunTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now().UTC()
	result, runErr := s.pipeline.Run(runCtx, job)

	runLog := &etl.RunLog{
		JobID:       id,
		StartedAt:   start,
		FinishedAt:  time.Now().UTC(),
		Status:      result.Status,
		RecordsRead: result.RecordsRead,
		RowsWritten: result.RowsWritten(),
		Tables:      result.Tables,
		Error:       result.Error,
	}
	if err := s.store.CreateRun(runLog, result.Destination); err != nil {
		s.log.Error("record run", zap.String("job", id), zap.Error(err))
	}
	if err := s.store.UpdateJobStatus(id, result.Status, result.Error); err != nil {
		s.log.Warn("update job status", zap.String("job", id), zap.Error(err))
	}

	fields := []zap.Field{
		zap.String("job", id),
		zap.String("status", result.Status),
		zap.Int("tables", len(result.Tables)),
		zap.Duration("duration", result.Duration),
	}
	if runErr != nil {
		s.log.Error("model run failed", append(fields, zap.Error(runErr))...)
	} else {
		s.log.Info("model run finished", fields...)
	}
	s.notifier.Notify(ctx, EventRunCompleted, result)

	return result, runErr
}

// ListSources returns the available source descriptors.
func (s *ModelService) ListSources() []etl.SourceSpec {
	return etl.ListSources()
}

// ListRuns returns the most recent runs of a job.
func (s *ModelService) ListRuns(jobID string) ([]etl.RunLog, error) {
	return s.store.ListRuns(jobID, runHistoryLimit)
}

// ListTables returns the catalog of produced tables; empty jobID lists all.
func (s *ModelService) ListTables(jobID string) ([]storage.ProducedTable, error) {
	return s.store.ListProducedTables(jobID)
}

// ── Preview ────────────────────────────────────────────────

// Preview decomposes an unsaved job without writing anything.
func (s *ModelService) Preview(ctx context.Context, input CreateModelJobInput, maxRecords, sampleRows int) (*etl.PreviewResult, error) {
	if input.Name == "" {
		input.Name = "preview"
	}
	if input.Destination.Type == "" {
		input.Destination = etl.DestinationConfig{Type: etl.DestDir, Path: "."}
	}
	job, err := input.Job()
	if err != nil {
		return nil, err
	}
	return s.preview(ctx, job, maxRecords, sampleRows)
}

// PreviewJob decomposes a saved job without writing anything.
func (s *ModelService) PreviewJob(ctx context.Context, id string, maxRecords, sampleRows int) (*etl.PreviewResult, error) {
	job, err := s.store.GetJob(id)
	if err != nil {
		return nil, err
	}
	return s.preview(ctx, job, maxRecords, sampleRows)
}

func (s *ModelService) preview(ctx context.Context, job *etl.ModelJob, maxRecords, sampleRows int) (*etl.PreviewResult, error) {
	previewCtx, cancel := context.WithTimeout(ctx, defaultPreviewTimeout)
	defer cancel()
	return s.pipeline.Preview(previewCtx, job, maxRecords, sampleRows)
}

// ── Watchers (cron + file_watch) ──────────────────────────

// Start installs the schedule and file-watch triggers of all enabled jobs.
// Triggered runs use ctx; CRUD calls after Start rebuild the triggers.
func (s *ModelService) Start(ctx context.Context) error {
	s.watchMu.Lock()
	s.baseCtx = ctx
	s.watchMu.Unlock()
	return s.RestartWatchers()
}

func (s *ModelService) refreshWatchers() {
	s.watchMu.Lock()
	started := s.baseCtx != nil
	s.watchMu.Unlock()
	if !started {
		return
	}
	if err := s.RestartWatchers(); err != nil {
		s.log.Error("restart watchers", zap.Error(err))
	}
}

// RestartWatchers tears down the current watcher/cron and rebuilds them from scratch.
func (s *ModelService) RestartWatchers() error {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	s.stopWatchersLocked()

	ctx := s.baseCtx
	if ctx == nil {
		ctx = context.Background()
	}

	jobs, err := s.store.ListEnabledTriggeredJobs()
	if err != nil {
		return fmt.Errorf("list triggered jobs: %w", err)
	}

	// ── Cron jobs ──
	c := cron.New()
	scheduled := 0
	for _, j := range jobs {
		if j.TriggerType != TriggerSchedule || j.TriggerConfig == "" {
			continue
		}
		jid := j.ID
		if _, err := c.AddFunc(j.TriggerConfig, func() { s.runTriggered(ctx, jid, "schedule") }); err != nil {
			s.log.Warn("invalid schedule", zap.String("job", jid), zap.String("expr", j.TriggerConfig), zap.Error(err))
			continue
		}
		scheduled++
	}
	if scheduled > 0 {
		c.Start()
		s.cronSched = c
		s.log.Info("cron scheduled", zap.Int("jobs", scheduled))
	}

	// ── File watchers ──
	pathToJob := make(map[string]string)
	for _, j := range jobs {
		if j.TriggerType != TriggerFileWatch || j.TriggerConfig == "" {
			continue
		}
		absPath, err := filepath.Abs(j.TriggerConfig)
		if err != nil {
			s.log.Warn("bad watch path", zap.String("path", j.TriggerConfig), zap.Error(err))
			continue
		}
		pathToJob[absPath] = j.ID
	}
	if len(pathToJob) == 0 {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	s.watcher = watcher

	watchedDirs := make(map[string]bool)
	for absPath := range pathToJob {
		dir := filepath.Dir(absPath)
		if watchedDirs[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			s.log.Warn("watch dir", zap.String("dir", dir), zap.Error(err))
			continue
		}
		watchedDirs[dir] = true
	}

	watchCtx, cancel := context.WithCancel(ctx)
	s.watchCancel = cancel
	go s.watchLoop(watchCtx, watcher, pathToJob)

	s.log.Info("watching files", zap.Int("files", len(pathToJob)))
	return nil
}

// watchLoop debounces write/create events per job before running it.
func (s *ModelService) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, pathToJob map[string]string) {
	timers := make(map[string]*time.Timer)
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			absPath, _ := filepath.Abs(event.Name)
			jobID, ok := pathToJob[absPath]
			if !ok {
				continue
			}
			if t, exists := timers[jobID]; exists {
				t.Stop()
			}
			timers[jobID] = time.AfterFunc(fileWatchDebounce, func() {
				s.log.Debug("file changed", zap.String("path", absPath), zap.String("job", jobID))
				s.runTriggered(ctx, jobID, "file_watch")
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.log.Warn("watcher error", zap.Error(err))
		}
	}
}

func (s *ModelService) runTriggered(ctx context.Context, jobID, trigger string) {
	if ctx.Err() != nil {
		return
	}
	s.log.Info("triggered run", zap.String("job", jobID), zap.String("trigger", trigger))
	if _, err := s.RunJob(ctx, jobID); err != nil {
		s.log.Warn("triggered run failed", zap.String("job", jobID), zap.Error(err))
	}
}

// WaitRunning blocks until all running jobs finish or ctx is cancelled.
// Used for graceful shutdown.
func (s *ModelService) WaitRunning(ctx context.Context) {
	s.runningJobs.WaitAll(ctx)
}

// Running lists the IDs of jobs currently running.
func (s *ModelService) Running() []string {
	return s.runningJobs.Running()
}

// Stop tears down all watchers and schedulers.
func (s *ModelService) Stop() {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	s.stopWatchersLocked()
	s.baseCtx = nil
}

func (s *ModelService) stopWatchersLocked() {
	if s.watchCancel != nil {
		s.watchCancel()
		s.watchCancel = nil
	}
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
	if s.cronSched != nil {
		s.cronSched.Stop()
		s.cronSched = nil
	}
}
