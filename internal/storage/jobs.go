package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tablexport/internal/etl"
)

// ErrJobNotFound is returned when no job matches the given id or name.
var ErrJobNotFound = errors.New("export job not found")

// JobStore implements persistence for export jobs and their run logs.
type JobStore struct {
	db *DB
}

// NewJobStore creates a new JobStore.
func NewJobStore(db *DB) *JobStore {
	return &JobStore{db: db}
}

const jobColumns = `id, name, connection, table_name, output_prefix, workers, on_error,
	trigger_type, trigger_config, enabled, last_run_at, last_status, last_error,
	created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (*etl.ExportJob, error) {
	var (
		job     etl.ExportJob
		lastRun sql.NullTime
	)
	err := s.Scan(
		&job.ID, &job.Name, &job.Connection, &job.Table, &job.OutputPrefix,
		&job.Workers, &job.OnError, &job.TriggerType, &job.TriggerConfig, &job.Enabled,
		&lastRun, &job.LastStatus, &job.LastError, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastRun.Valid {
		job.LastRunAt = lastRun.Time
	}
	return &job, nil
}

// ── ExportJob CRUD ─────────────────────────────────────────

func (s *JobStore) CreateJob(job *etl.ExportJob) error {
	now := time.Now().UTC()
	job.ID = uuid.New().String()
	job.CreatedAt = now
	job.UpdatedAt = now

	_, err := s.db.conn.Exec(
		`INSERT INTO export_jobs (id, name, connection, table_name, output_prefix, workers,
		 on_error, trigger_type, trigger_config, enabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Name, job.Connection, job.Table, job.OutputPrefix, job.Workers,
		job.OnError, job.TriggerType, job.TriggerConfig, job.Enabled,
		job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job %q: %w", job.Name, err)
	}
	return nil
}

// GetJob looks a job up by id, falling back to its name.
func (s *JobStore) GetJob(idOrName string) (*etl.ExportJob, error) {
	job, err := scanJob(s.db.conn.QueryRow(
		`SELECT `+jobColumns+` FROM export_jobs WHERE id = ? OR name = ? LIMIT 1`,
		idOrName, idOrName,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, idOrName)
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (s *JobStore) UpdateJob(job *etl.ExportJob) error {
	job.UpdatedAt = time.Now().UTC()
	res, err := s.db.conn.Exec(
		`UPDATE export_jobs SET name=?, connection=?, table_name=?, output_prefix=?, workers=?,
		 on_error=?, trigger_type=?, trigger_config=?, enabled=?, updated_at=? WHERE id=?`,
		job.Name, job.Connection, job.Table, job.OutputPrefix, job.Workers,
		job.OnError, job.TriggerType, job.TriggerConfig, job.Enabled,
		job.UpdatedAt, job.ID,
	)
	if err != nil {
		return err
	}
	return requireAffected(res, job.ID)
}

func (s *JobStore) UpdateJobStatus(id, status, errMsg string) error {
	now := time.Now().UTC()
	_, err := s.db.conn.Exec(
		`UPDATE export_jobs SET last_run_at=?, last_status=?, last_error=?, updated_at=? WHERE id=?`,
		now, status, errMsg, now, id,
	)
	return err
}

func (s *JobStore) DeleteJob(id string) error {
	// Delete run logs first.
	if _, err := s.db.conn.Exec(`DELETE FROM export_run_logs WHERE job_id = ?`, id); err != nil {
		return err
	}
	res, err := s.db.conn.Exec(`DELETE FROM export_jobs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res, id)
}

func (s *JobStore) ListJobs() ([]etl.ExportJob, error) {
	return s.queryJobs(`SELECT ` + jobColumns + ` FROM export_jobs ORDER BY created_at ASC`)
}

// ListEnabledTriggeredJobs returns enabled jobs with a schedule or file_watch trigger.
func (s *JobStore) ListEnabledTriggeredJobs() ([]etl.ExportJob, error) {
	return s.queryJobs(`SELECT ` + jobColumns + ` FROM export_jobs
		WHERE enabled = 1 AND trigger_type IN ('schedule', 'file_watch')
		ORDER BY created_at ASC`)
}

func (s *JobStore) queryJobs(query string) ([]etl.ExportJob, error) {
	rows, err := s.db.conn.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []etl.ExportJob{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func requireAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return nil
}

// ── Run Logs ───────────────────────────────────────────────

func (s *JobStore) CreateRunLog(log *etl.ExportRunLog) error {
	log.ID = uuid.New().String()
	_, err := s.db.conn.Exec(
		`INSERT INTO export_run_logs (id, job_id, started_at, finished_at, status,
		 rows_read, rows_written, rows_skipped, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.JobID, log.StartedAt, log.FinishedAt, log.Status,
		log.RowsRead, log.RowsWritten, log.RowsSkipped, log.Error,
	)
	return err
}

// ListRunLogs returns the newest run logs of a job first.
func (s *JobStore) ListRunLogs(jobID string, limit int) ([]etl.ExportRunLog, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.conn.Query(
		`SELECT id, job_id, started_at, finished_at, status, rows_read, rows_written, rows_skipped, error
		 FROM export_run_logs WHERE job_id = ? ORDER BY started_at DESC LIMIT ?`,
		jobID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []etl.ExportRunLog{}
	for rows.Next() {
		var l etl.ExportRunLog
		if err := rows.Scan(&l.ID, &l.JobID, &l.StartedAt, &l.FinishedAt, &l.Status,
			&l.RowsRead, &l.RowsWritten, &l.RowsSkipped, &l.Error); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
