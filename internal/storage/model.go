package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"docmodel/internal/etl"
)

// ModelStore persists model jobs, their run history and the catalog of
// tables each run produced.
type ModelStore struct {
	db *DB
}

func NewModelStore(db *DB) *ModelStore {
	return &ModelStore{db: db}
}

// ProducedTable is one catalog entry: a table written by a run.
type ProducedTable struct {
	etl.TableResult
	RunID       string    `json:"runId"`
	JobID       string    `json:"jobId"`
	Destination string    `json:"destination"`
	WrittenAt   time.Time `json:"writtenAt"`
}

// ── ModelJob CRUD ──────────────────────────────────────────

const jobColumns = `id, name, source_type, source_config, transforms, dedupe_key, destination,
	table_prefix, table_suffix, max_depth, sample_size, lineage, write_mode,
	trigger_type, trigger_config, enabled, last_run_at, last_status, last_error, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(sc rowScanner) (*etl.ModelJob, error) {
	job := &etl.ModelJob{}
	var srcCfg, transforms, dest string
	var lastRun sql.NullTime
	if err := sc.Scan(
		&job.ID, &job.Name, &job.SourceType, &srcCfg, &transforms, &job.DedupeKey, &dest,
		&job.TablePrefix, &job.TableSuffix, &job.MaxDepth, &job.SampleSize, &job.Lineage, &job.WriteMode,
		&job.TriggerType, &job.TriggerConfig, &job.Enabled, &lastRun, &job.LastStatus, &job.LastError,
		&job.CreatedAt, &job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if lastRun.Valid {
		job.LastRunAt = lastRun.Time
	}
	if err := json.Unmarshal([]byte(srcCfg), &job.SourceCfg); err != nil {
		return nil, fmt.Errorf("job %s source config: %w", job.ID, err)
	}
	if err := json.Unmarshal([]byte(transforms), &job.Transforms); err != nil {
		return nil, fmt.Errorf("job %s transforms: %w", job.ID, err)
	}
	if err := json.Unmarshal([]byte(dest), &job.Destination); err != nil {
		return nil, fmt.Errorf("job %s destination: %w", job.ID, err)
	}
	return job, nil
}

func marshalJob(job *etl.ModelJob) (srcCfg, transforms, dest string, err error) {
	b, err := json.Marshal(job.SourceCfg)
	if err != nil {
		return "", "", "", fmt.Errorf("source config: %w", err)
	}
	srcCfg = string(b)
	if b, err = json.Marshal(job.Transforms); err != nil {
		return "", "", "", fmt.Errorf("transforms: %w", err)
	}
	transforms = string(b)
	if b, err = json.Marshal(job.Destination); err != nil {
		return "", "", "", fmt.Errorf("destination: %w", err)
	}
	return srcCfg, transforms, string(b), nil
}

func (s *ModelStore) CreateJob(job *etl.ModelJob) error {
	now := time.Now().UTC()
	job.ID = uuid.New().String()
	job.CreatedAt = now
	job.UpdatedAt = now

	srcCfg, transforms, dest, err := marshalJob(job)
	if err != nil {
		return err
	}
	_, err = s.db.conn.Exec(
		`INSERT INTO model_jobs (id, name, source_type, source_config, transforms, dedupe_key, destination,
		 table_prefix, table_suffix, max_depth, sample_size, lineage, write_mode,
		 trigger_type, trigger_config, enabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Name, job.SourceType, srcCfg, transforms, job.DedupeKey, dest,
		job.TablePrefix, job.TableSuffix, job.MaxDepth, job.SampleSize, job.Lineage, job.WriteMode,
		job.TriggerType, job.TriggerConfig, job.Enabled, job.CreatedAt, job.UpdatedAt,
	)
	return err
}

func (s *ModelStore) GetJob(id string) (*etl.ModelJob, error) {
	job, err := scanJob(s.db.conn.QueryRow(`SELECT `+jobColumns+` FROM model_jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("model job %s: %w", id, ErrNotFound)
	}
	return job, err
}

func (s *ModelStore) UpdateJob(job *etl.ModelJob) error {
	job.UpdatedAt = time.Now().UTC()
	srcCfg, transforms, dest, err := marshalJob(job)
	if err != nil {
		return err
	}
	res, err := s.db.conn.Exec(
		`UPDATE model_jobs SET name=?, source_type=?, source_config=?, transforms=?, dedupe_key=?, destination=?,
		 table_prefix=?, table_suffix=?, max_depth=?, sample_size=?, lineage=?, write_mode=?,
		 trigger_type=?, trigger_config=?, enabled=?, updated_at=? WHERE id=?`,
		job.Name, job.SourceType, srcCfg, transforms, job.DedupeKey, dest,
		job.TablePrefix, job.TableSuffix, job.MaxDepth, job.SampleSize, job.Lineage, job.WriteMode,
		job.TriggerType, job.TriggerConfig, job.Enabled, job.UpdatedAt, job.ID,
	)
	if err != nil {
		return err
	}
	return expectOne(res, "model job", job.ID)
}

func (s *ModelStore) UpdateJobStatus(id, status, errMsg string) error {
	now := time.Now().UTC()
	_, err := s.db.conn.Exec(
		`UPDATE model_jobs SET last_run_at=?, last_status=?, last_error=?, updated_at=? WHERE id=?`,
		now, status, errMsg, now, id,
	)
	return err
}

// DeleteJob removes a job; its runs and catalog entries cascade.
func (s *ModelStore) DeleteJob(id string) error {
	res, err := s.db.conn.Exec(`DELETE FROM model_jobs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectOne(res, "model job", id)
}

func (s *ModelStore) ListJobs() ([]etl.ModelJob, error) {
	return s.queryJobs(`SELECT ` + jobColumns + ` FROM model_jobs ORDER BY created_at ASC`)
}

// ListEnabledTriggeredJobs returns enabled jobs with a schedule or
// file-watch trigger.
func (s *ModelStore) ListEnabledTriggeredJobs() ([]etl.ModelJob, error) {
	return s.queryJobs(`SELECT ` + jobColumns + ` FROM model_jobs
		WHERE enabled = 1 AND trigger_type IN ('schedule', 'file_watch') ORDER BY created_at ASC`)
}

func (s *ModelStore) queryJobs(query string, args ...any) ([]etl.ModelJob, error) {
	rows, err := s.db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []etl.ModelJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// ── Runs & Catalog ─────────────────────────────────────────

// CreateRun stores a run and its produced tables in one transaction.
func (s *ModelStore) CreateRun(run *etl.RunLog, destination string) error {
	run.ID = uuid.New().String()

	tx, err := s.db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO model_runs (id, job_id, started_at, finished_at, status, records_read, rows_written, error, destination)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.JobID, run.StartedAt, run.FinishedAt, run.Status, run.RecordsRead, run.RowsWritten, run.Error, destination,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	for _, t := range run.Tables {
		cols, err := json.Marshal(t.Columns)
		if err != nil {
			return err
		}
		_, err = tx.Exec(
			`INSERT INTO produced_tables (run_id, job_id, table_name, lineage_path, columns_json, row_count, destination, written_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, run.JobID, t.Table, t.Path, string(cols), t.Rows, destination, run.FinishedAt,
		)
		if err != nil {
			return fmt.Errorf("insert table %s: %w", t.Table, err)
		}
	}
	return tx.Commit()
}

// ListRuns returns the most recent runs of a job, newest first, with their
// tables.
func (s *ModelStore) ListRuns(jobID string, limit int) ([]etl.RunLog, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.conn.Query(
		`SELECT id, job_id, started_at, finished_at, status, records_read, rows_written, error
		 FROM model_runs WHERE job_id = ? ORDER BY started_at DESC LIMIT ?`,
		jobID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []etl.RunLog
	index := map[string]int{}
	for rows.Next() {
		var r etl.RunLog
		if err := rows.Scan(&r.ID, &r.JobID, &r.StartedAt, &r.FinishedAt, &r.Status, &r.RecordsRead, &r.RowsWritten, &r.Error); err != nil {
			return nil, err
		}
		index[r.ID] = len(runs)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	tables, err := s.queryTables(`SELECT `+tableColumns+` FROM produced_tables WHERE job_id = ? ORDER BY rowid`, jobID)
	if err != nil {
		return nil, err
	}
	for _, t := range tables {
		if i, ok := index[t.RunID]; ok {
			runs[i].Tables = append(runs[i].Tables, t.TableResult)
		}
	}
	return runs, nil
}

const tableColumns = `run_id, job_id, table_name, lineage_path, columns_json, row_count, destination, written_at`

// ListProducedTables returns the catalog of a job: the latest write of each
// table name. With an empty jobID every job is listed.
func (s *ModelStore) ListProducedTables(jobID string) ([]ProducedTable, error) {
	query := `SELECT ` + tableColumns + ` FROM produced_tables p
		WHERE written_at = (SELECT MAX(written_at) FROM produced_tables q
			WHERE q.job_id = p.job_id AND q.table_name = p.table_name)`
	var args []any
	if jobID != "" {
		query += ` AND job_id = ?`
		args = append(args, jobID)
	}
	query += ` ORDER BY job_id, table_name`
	return s.queryTables(query, args...)
}

func (s *ModelStore) queryTables(query string, args ...any) ([]ProducedTable, error) {
	rows, err := s.db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProducedTable
	for rows.Next() {
		var t ProducedTable
		var cols string
		if err := rows.Scan(&t.RunID, &t.JobID, &t.Table, &t.Path, &cols, &t.Rows, &t.Destination, &t.WrittenAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(cols), &t.Columns); err != nil {
			return nil, fmt.Errorf("table %s columns: %w", t.Table, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func expectOne(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}
