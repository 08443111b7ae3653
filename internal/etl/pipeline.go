package etl

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"docmodel/internal/decompose"
	"docmodel/internal/relation"
	"docmodel/internal/value"
)

// ── ModelJob ───────────────────────────────────────────────
// Orchestrates: source.Read → transform chain → decompose → destination.
//
// Pattern: Airbyte sync / Singer tap→target pipeline.

// ModelJob holds the configuration for one document-modeling job.
type ModelJob struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	SourceType  string            `json:"sourceType"`
	SourceCfg   SourceConfig      `json:"sourceConfig"`
	Transforms  []TransformConfig `json:"transforms,omitempty"`
	DedupeKey   string            `json:"dedupeKey,omitempty"`
	Destination DestinationConfig `json:"destination"`
	TablePrefix string            `json:"tablePrefix,omitempty"`
	TableSuffix string            `json:"tableSuffix,omitempty"`
	MaxDepth    int               `json:"maxDepth,omitempty"`
	SampleSize  int               `json:"sampleSize,omitempty"`
	Lineage     string            `json:"lineage,omitempty"` // "flat" | "cumulative"
	WriteMode   WriteMode         `json:"writeMode,omitempty"`

	TriggerType   string    `json:"triggerType"`   // "manual" | "schedule" | "file_watch"
	TriggerConfig string    `json:"triggerConfig"` // cron expression or watch path
	Enabled       bool      `json:"enabled"`
	LastRunAt     time.Time `json:"lastRunAt"`
	LastStatus    string    `json:"lastStatus"` // "success" | "error" | "running" | ""
	LastError     string    `json:"lastError"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// DecomposeOptions returns the decomposer settings of the job.
func (j *ModelJob) DecomposeOptions() (decompose.Options, error) {
	lineage, err := decompose.ParseLineageMode(j.Lineage)
	if err != nil {
		return decompose.Options{}, err
	}
	return decompose.Options{MaxDepth: j.MaxDepth, SampleSize: j.SampleSize, Lineage: lineage}, nil
}

// TableResult describes one persisted (or previewed) terminal table.
type TableResult struct {
	Path    string   `json:"path"`
	Table   string   `json:"table"`
	Columns []string `json:"columns"`
	Rows    int      `json:"rows"`
}

// RunResult is the outcome of running a model job.
type RunResult struct {
	JobID       string        `json:"jobId"`
	Status      string        `json:"status"` // "success" | "error"
	RecordsRead int           `json:"recordsRead"`
	RecordsKept int           `json:"recordsKept"`
	Destination string        `json:"destination,omitempty"`
	Tables      []TableResult `json:"tables"`
	Collisions  []string      `json:"collisions,omitempty"`
	Truncated   []string      `json:"truncated,omitempty"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`
}

// RowsWritten sums the rows of every table.
func (r *RunResult) RowsWritten() int {
	n := 0
	for _, t := range r.Tables {
		n += t.Rows
	}
	return n
}

// RunLog is a historical record of a job run.
type RunLog struct {
	ID          string        `json:"id"`
	JobID       string        `json:"jobId"`
	StartedAt   time.Time     `json:"startedAt"`
	FinishedAt  time.Time     `json:"finishedAt"`
	Status      string        `json:"status"`
	RecordsRead int           `json:"recordsRead"`
	RowsWritten int           `json:"rowsWritten"`
	Tables      []TableResult `json:"tables,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// PreviewTable is one terminal table of a dry run.
type PreviewTable struct {
	TableResult
	Sample []*value.Object `json:"sample"`
}

// PreviewResult is the outcome of a dry run.
type PreviewResult struct {
	RecordsRead int            `json:"recordsRead"`
	RecordsKept int            `json:"recordsKept"`
	Schema      *Schema        `json:"schema"`
	Tables      []PreviewTable `json:"tables"`
	Collisions  []string       `json:"collisions,omitempty"`
	Truncated   []string       `json:"truncated,omitempty"`
}

// ── Pipeline ───────────────────────────────────────────────

// Pipeline runs model jobs using the registered sources.
type Pipeline struct {
	Destinations DestinationResolver
	// CacheSize bounds the frames memoized per run.
	CacheSize int

	log *zap.Logger
}

func NewPipeline(dest DestinationResolver, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{Destinations: dest, CacheSize: relation.DefaultCacheSize, log: log.Named("pipeline")}
}

// stageResult is what read → transform → decompose produces.
type stageResult struct {
	read, kept int
	records    []Record
	result     *decompose.Result
}

// decompose reads the job's source (at most maxRecords when positive),
// applies transforms and decomposes the documents.
func (p *Pipeline) decompose(ctx context.Context, job *ModelJob, maxRecords int) (*stageResult, error) {
	opts, err := job.DecomposeOptions()
	if err != nil {
		return nil, err
	}
	source, err := GetSource(job.SourceType)
	if err != nil {
		return nil, err
	}
	if err := source.Spec().Validate(job.SourceCfg); err != nil {
		return nil, err
	}
	transformers, err := BuildTransformers(job.Transforms, job.DedupeKey)
	if err != nil {
		return nil, err
	}

	raw, err := ReadAll(ctx, source, job.SourceCfg, maxRecords)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	st := &stageResult{read: len(raw)}
	for _, rec := range raw {
		if out, keep := ApplyTransformers(rec, transformers); keep {
			st.records = append(st.records, out)
		}
	}
	st.records = ApplyBatchSort(st.records, transformers)
	st.kept = len(st.records)
	p.log.Debug("records loaded",
		zap.String("source", job.SourceType),
		zap.Int("read", st.read),
		zap.Int("kept", st.kept))
	if st.kept == 0 {
		return st, nil
	}

	engine, err := relation.NewEngine(p.CacheSize)
	if err != nil {
		return nil, err
	}
	frame := engine.FromObjects(Objects(st.records))
	st.result, err = decompose.New(opts, p.log).Run(ctx, frame)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// Run executes a model job end-to-end. Tables are written only after the
// whole decomposition succeeded.
func (p *Pipeline) Run(ctx context.Context, job *ModelJob) (*RunResult, error) {
	start := time.Now()
	result := &RunResult{JobID: job.ID}
	fail := func(err error) (*RunResult, error) {
		result.Status = "error"
		result.Error = err.Error()
		result.Duration = time.Since(start)
		return result, err
	}

	mode, err := ParseWriteMode(string(job.WriteMode))
	if err != nil {
		return fail(err)
	}
	if err := job.Destination.Validate(); err != nil {
		return fail(err)
	}

	st, err := p.decompose(ctx, job, 0)
	if err != nil {
		return fail(err)
	}
	result.RecordsRead, result.RecordsKept = st.read, st.kept
	if st.result == nil {
		p.log.Warn("no records to model", zap.String("job", job.ID))
		result.Status = "success"
		result.Duration = time.Since(start)
		return result, nil
	}
	result.Collisions = st.result.Collisions
	result.Truncated = st.result.Truncated

	dest, err := p.Destinations.OpenDestination(ctx, job.Destination)
	if err != nil {
		return fail(fmt.Errorf("open destination: %w", err))
	}
	defer dest.Close()
	result.Destination = dest.Name()

	for _, path := range st.result.Paths() {
		frame, _ := st.result.Table(path)
		name := decompose.TableName(job.TablePrefix, path, job.TableSuffix)
		n, err := dest.WriteTable(ctx, name, frame, mode)
		if err != nil {
			return fail(fmt.Errorf("write %s: %w", name, err))
		}
		result.Tables = append(result.Tables, TableResult{
			Path:    path,
			Table:   name,
			Columns: frame.ColumnNames(),
			Rows:    n,
		})
		p.log.Info("Results: "+name,
			zap.String("path", path),
			zap.Strings("columns", frame.ColumnNames()),
			zap.Int("rows", n))
	}

	result.Status = "success"
	result.Duration = time.Since(start)
	return result, nil
}

// DefaultPreviewRows is the sample size of a preview table.
const DefaultPreviewRows = 5

// Preview decomposes up to maxRecords source records without writing and
// returns every terminal table with up to sampleRows rows.
func (p *Pipeline) Preview(ctx context.Context, job *ModelJob, maxRecords, sampleRows int) (*PreviewResult, error) {
	if sampleRows <= 0 {
		sampleRows = DefaultPreviewRows
	}
	st, err := p.decompose(ctx, job, maxRecords)
	if err != nil {
		return nil, err
	}
	out := &PreviewResult{
		RecordsRead: st.read,
		RecordsKept: st.kept,
		Schema:      InferSchema(st.records),
	}
	if st.result == nil {
		return out, nil
	}
	out.Collisions = st.result.Collisions
	out.Truncated = st.result.Truncated

	for _, path := range st.result.Paths() {
		frame, _ := st.result.Table(path)
		count, err := frame.Count(ctx)
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", path, err)
		}
		objs, err := frame.Limit(sampleRows).Objects(ctx)
		if err != nil {
			return nil, fmt.Errorf("sample %s: %w", path, err)
		}
		out.Tables = append(out.Tables, PreviewTable{
			TableResult: TableResult{
				Path:    path,
				Table:   decompose.TableName(job.TablePrefix, path, job.TableSuffix),
				Columns: frame.ColumnNames(),
				Rows:    count,
			},
			Sample: objs,
		})
	}
	return out, nil
}
