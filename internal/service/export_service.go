package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"github.com/spf13/afero"

	"tablexport/internal/dbclient"
	"tablexport/internal/etl"
	"tablexport/internal/storage"
)

// ─────────────────────────────────────────────────────────────
// Export Service: business logic for table exports and jobs
// ─────────────────────────────────────────────────────────────

// Trigger types of an export job.
const (
	TriggerManual    = "manual"
	TriggerSchedule  = "schedule"
	TriggerFileWatch = "file_watch"
)

// EventExportCompleted is emitted after every job run, successful or not.
const EventExportCompleted = "export:completed"

// ErrNoJobStore is returned by job operations on a service built without a store.
var ErrNoJobStore = errors.New("no job store configured")

// ErrJobRunning is returned when a job is started while a run of it is in progress.
var ErrJobRunning = errors.New("job is already running")

// ExportService manages one-shot exports, stored export jobs, scheduling,
// and file watching.
type ExportService struct {
	store       *storage.JobStore
	connect     ConnectorFactory
	emitter     EventEmitter
	logger      *slog.Logger
	runningJobs runningJobsGuard

	// Metrics is shared by every export engine; nil records nothing.
	Metrics *etl.Metrics
	// Fs receives export output; nil means the OS filesystem.
	Fs afero.Fs
	// RunTimeout bounds one job run; zero means no limit.
	RunTimeout time.Duration

	// watcher / cron lifecycle
	mu          sync.Mutex
	watchCancel context.CancelFunc
	watcher     *fsnotify.Watcher
	cronSched   *cron.Cron
}

// NewExportService creates an ExportService ready for use.
func NewExportService(
	store *storage.JobStore,
	connect ConnectorFactory,
	emitter EventEmitter,
	logger *slog.Logger,
) *ExportService {
	if logger == nil {
		logger = slog.Default()
	}
	if emitter == nil {
		emitter = &LogEmitter{Logger: logger}
	}
	return &ExportService{
		store:   store,
		connect: connect,
		emitter: emitter,
		logger:  logger,
	}
}

func (s *ExportService) engine(src etl.Source, prefix string) *etl.Engine {
	fs := s.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &etl.Engine{
		Source:  src,
		Sink:    &etl.FileSink{Fs: fs, Prefix: prefix},
		Logger:  s.logger,
		Metrics: s.Metrics,
	}
}

func (s *ExportService) jobs() (*storage.JobStore, error) {
	if s.store == nil {
		return nil, ErrNoJobStore
	}
	return s.store, nil
}

// withConnector opens the named connection for the duration of fn.
func (s *ExportService) withConnector(name string, fn func(dbclient.Connector) error) error {
	if s.connect == nil {
		return fmt.Errorf("no connections configured")
	}
	conn, err := s.connect(name)
	if err != nil {
		return fmt.Errorf("connect %q: %w", name, err)
	}
	defer conn.Close()
	return fn(conn)
}

// ── Schema / Tables ────────────────────────────────────────

// ReadSchema returns the ordered columns of table.
func (s *ExportService) ReadSchema(ctx context.Context, connection, table string) (*etl.Schema, error) {
	var schema *etl.Schema
	err := s.withConnector(connection, func(c dbclient.Connector) error {
		var err error
		schema, err = c.ReadSchema(ctx, table)
		return err
	})
	return schema, err
}

// ListTables returns the tables visible through connection.
func (s *ExportService) ListTables(ctx context.Context, connection string) ([]dbclient.TableInfo, error) {
	var tables []dbclient.TableInfo
	err := s.withConnector(connection, func(c dbclient.Connector) error {
		var err error
		tables, err = c.ListTables(ctx)
		return err
	})
	return tables, err
}

// PreviewResult is the response from Preview.
type PreviewResult struct {
	Schema *etl.Schema `json:"schema"`
	Lines  []string    `json:"lines"`
}

// Preview encodes the first maxRows rows of table without writing files.
func (s *ExportService) Preview(ctx context.Context, connection, table string, maxRows int) (*PreviewResult, error) {
	var res *PreviewResult
	err := s.withConnector(connection, func(c dbclient.Connector) error {
		lines, schema, err := s.engine(c, "").Preview(ctx, table, maxRows)
		if err != nil {
			return err
		}
		res = &PreviewResult{Schema: schema, Lines: lines}
		return nil
	})
	return res, err
}

// ── One-shot export ────────────────────────────────────────

// ExportInput describes an ad-hoc export that is not stored as a job.
type ExportInput struct {
	Connection   string          `json:"connection"`
	Table        string          `json:"table"`
	OutputPrefix string          `json:"outputPrefix"`
	Workers      int             `json:"workers"`
	OnError      etl.ErrorPolicy `json:"onError"`
}

// Export runs one export synchronously.
func (s *ExportService) Export(ctx context.Context, in ExportInput) (*etl.ExportResult, error) {
	if in.Table == "" {
		return nil, fmt.Errorf("table is required")
	}
	if in.OutputPrefix == "" {
		return nil, fmt.Errorf("output prefix is required")
	}
	var result *etl.ExportResult
	err := s.withConnector(in.Connection, func(c dbclient.Connector) error {
		var err error
		result, err = s.engine(c, in.OutputPrefix).Run(ctx, etl.ExportRequest{
			Table:   in.Table,
			Workers: in.Workers,
			OnError: in.OnError,
		})
		return err
	})
	return result, err
}

// ── Job CRUD ───────────────────────────────────────────────

// JobInput creates or replaces an export job.
type JobInput struct {
	Name          string          `json:"name"`
	Connection    string          `json:"connection"`
	Table         string          `json:"table"`
	OutputPrefix  string          `json:"outputPrefix"`
	Workers       int             `json:"workers"`
	OnError       etl.ErrorPolicy `json:"onError"`
	TriggerType   string          `json:"triggerType"`
	TriggerConfig string          `json:"triggerConfig"`
	Enabled       bool            `json:"enabled"`
}

func (in *JobInput) normalize() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("job name is required")
	}
	if in.Connection == "" || in.Table == "" {
		return fmt.Errorf("job %q: connection and table are required", in.Name)
	}
	if in.OutputPrefix == "" {
		return fmt.Errorf("job %q: output prefix is required", in.Name)
	}
	if in.Workers < 0 {
		return fmt.Errorf("job %q: workers must not be negative", in.Name)
	}
	switch in.OnError {
	case "":
		in.OnError = etl.OnErrorAbort
	case etl.OnErrorAbort, etl.OnErrorSkip:
	default:
		return fmt.Errorf("job %q: unknown error policy %q", in.Name, in.OnError)
	}
	switch in.TriggerType {
	case "":
		in.TriggerType = TriggerManual
	case TriggerManual:
	case TriggerSchedule:
		if _, err := cron.ParseStandard(in.TriggerConfig); err != nil {
			return fmt.Errorf("job %q: invalid cron expression %q: %w", in.Name, in.TriggerConfig, err)
		}
	case TriggerFileWatch:
		if in.TriggerConfig == "" {
			return fmt.Errorf("job %q: file_watch needs a path", in.Name)
		}
	default:
		return fmt.Errorf("job %q: unknown trigger type %q", in.Name, in.TriggerType)
	}
	return nil
}

func (s *ExportService) CreateJob(ctx context.Context, input JobInput) (*etl.ExportJob, error) {
	if err := input.normalize(); err != nil {
		return nil, err
	}
	store, err := s.jobs()
	if err != nil {
		return nil, err
	}
	job := &etl.ExportJob{}
	applyInput(job, input)

	if err := store.CreateJob(job); err != nil {
		return nil, fmt.Errorf("create export job: %w", err)
	}
	s.restartIfWatching(ctx)
	return job, nil
}

func applyInput(job *etl.ExportJob, in JobInput) {
	job.Name = in.Name
	job.Connection = in.Connection
	job.Table = in.Table
	job.OutputPrefix = in.OutputPrefix
	job.Workers = in.Workers
	job.OnError = in.OnError
	job.TriggerType = in.TriggerType
	job.TriggerConfig = in.TriggerConfig
	job.Enabled = in.Enabled
}

// GetJob looks a job up by id or name.
func (s *ExportService) GetJob(idOrName string) (*etl.ExportJob, error) {
	store, err := s.jobs()
	if err != nil {
		return nil, err
	}
	return store.GetJob(idOrName)
}

func (s *ExportService) ListJobs() ([]etl.ExportJob, error) {
	store, err := s.jobs()
	if err != nil {
		return nil, err
	}
	return store.ListJobs()
}

func (s *ExportService) UpdateJob(ctx context.Context, idOrName string, input JobInput) (*etl.ExportJob, error) {
	if err := input.normalize(); err != nil {
		return nil, err
	}
	job, err := s.GetJob(idOrName)
	if err != nil {
		return nil, err
	}
	applyInput(job, input)
	if err := s.store.UpdateJob(job); err != nil {
		return nil, err
	}
	s.restartIfWatching(ctx)
	return job, nil
}

func (s *ExportService) DeleteJob(ctx context.Context, idOrName string) error {
	job, err := s.GetJob(idOrName)
	if err != nil {
		return err
	}
	if err := s.store.DeleteJob(job.ID); err != nil {
		return err
	}
	s.restartIfWatching(ctx)
	return nil
}

// ── Run ────────────────────────────────────────────────────

// RunJob executes a stored job synchronously, records a run log, and
// emits EventExportCompleted.
func (s *ExportService) RunJob(ctx context.Context, idOrName string) (*etl.ExportResult, error) {
	job, err := s.GetJob(idOrName)
	if err != nil {
		return nil, err
	}

	// Prevent concurrent execution of the same job.
	if !s.runningJobs.TryLock(job.ID) {
		return nil, fmt.Errorf("%w: %s", ErrJobRunning, job.Name)
	}
	defer s.runningJobs.Unlock(job.ID)

	log := s.logger.With("job", job.Name, "table", job.Table)
	if err := s.store.UpdateJobStatus(job.ID, "running", ""); err != nil {
		log.Warn("could not mark job running", "error", err)
	}

	runCtx := ctx
	if s.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.RunTimeout)
		defer cancel()
	}

	start := time.Now().UTC()
	result, runErr := s.Export(runCtx, ExportInput{
		Connection:   job.Connection,
		Table:        job.Table,
		OutputPrefix: job.OutputPrefix,
		Workers:      job.Workers,
		OnError:      job.OnError,
	})
	if result == nil {
		// Failed before the engine ran (e.g. could not connect).
		result = &etl.ExportResult{Table: job.Table, Status: "error"}
		if runErr != nil {
			result.Error = runErr.Error()
		}
	}

	runLog := &etl.ExportRunLog{
		JobID:       job.ID,
		StartedAt:   start,
		FinishedAt:  time.Now().UTC(),
		Status:      result.Status,
		RowsRead:    result.RowsRead,
		RowsWritten: result.RowsWritten,
		RowsSkipped: result.RowsSkipped,
	}
	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
		runLog.Error = errMsg
	}
	if err := s.store.CreateRunLog(runLog); err != nil {
		log.Warn("could not record run log", "error", err)
	}
	if err := s.store.UpdateJobStatus(job.ID, result.Status, errMsg); err != nil {
		log.Warn("could not update job status", "error", err)
	}

	s.emitter.Emit(ctx, EventExportCompleted, map[string]any{
		"jobId":  job.ID,
		"job":    job.Name,
		"status": result.Status,
		"rows":   result.RowsWritten,
	})
	if runErr != nil {
		log.Error("export job failed", "error", runErr)
	}
	return result, runErr
}

// RunningJobs returns the ids of jobs with a run in flight.
func (s *ExportService) RunningJobs() []string {
	return s.runningJobs.Running()
}

// ListRunLogs returns the most recent run logs for a job, newest first.
func (s *ExportService) ListRunLogs(idOrName string, limit int) ([]etl.ExportRunLog, error) {
	job, err := s.GetJob(idOrName)
	if err != nil {
		return nil, err
	}
	return s.store.ListRunLogs(job.ID, limit)
}

// ── Watchers (cron + file_watch) ──────────────────────────

func (s *ExportService) restartIfWatching(ctx context.Context) {
	s.mu.Lock()
	active := s.cronSched != nil || s.watcher != nil
	s.mu.Unlock()
	if active {
		s.RestartWatchers(ctx)
	}
}

// RestartWatchers tears down the current watcher/cron and rebuilds them
// from the enabled jobs. It returns the number of scheduled and watched jobs.
func (s *ExportService) RestartWatchers(ctx context.Context) (scheduled, watched int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopWatchersLocked()
	if s.store == nil {
		return 0, 0
	}

	jobs, err := s.store.ListEnabledTriggeredJobs()
	if err != nil {
		s.logger.Error("export watcher: failed to list jobs", "error", err)
		return 0, 0
	}

	// ── Cron jobs ──
	c := cron.New()
	for _, j := range jobs {
		if j.TriggerType != TriggerSchedule || j.TriggerConfig == "" {
			continue
		}
		jid, name := j.ID, j.Name
		_, err := c.AddFunc(j.TriggerConfig, func() {
			s.logger.Info("export cron: running job", "job", name)
			if _, err := s.RunJob(ctx, jid); err != nil {
				s.logger.Error("export cron: job failed", "job", name, "error", err)
			}
		})
		if err != nil {
			s.logger.Error("export cron: invalid expression", "job", name, "expr", j.TriggerConfig, "error", err)
			continue
		}
		scheduled++
	}
	if scheduled > 0 {
		c.Start()
		s.cronSched = c
		s.logger.Info("export cron: scheduled jobs", "count", scheduled)
	}

	// ── File watchers ──
	pathToJobs := make(map[string][]string)
	for _, j := range jobs {
		if j.TriggerType != TriggerFileWatch || j.TriggerConfig == "" {
			continue
		}
		absPath, err := filepath.Abs(j.TriggerConfig)
		if err != nil {
			s.logger.Error("export watcher: bad path", "path", j.TriggerConfig, "error", err)
			continue
		}
		pathToJobs[absPath] = append(pathToJobs[absPath], j.ID)
	}
	if len(pathToJobs) == 0 {
		return scheduled, 0
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.logger.Error("export watcher: failed to create watcher", "error", err)
		return scheduled, 0
	}
	s.watcher = watcher

	watchedDirs := make(map[string]bool)
	for absPath := range pathToJobs {
		dir := filepath.Dir(absPath)
		if watchedDirs[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			s.logger.Error("export watcher: failed to watch dir", "dir", dir, "error", err)
			continue
		}
		watchedDirs[dir] = true
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	s.watchCancel = cancel
	go s.watchLoop(ctx, watchCtx, watcher, pathToJobs)

	for _, ids := range pathToJobs {
		watched += len(ids)
	}
	s.logger.Info("export watcher: watching files", "files", len(pathToJobs), "jobs", watched)
	return scheduled, watched
}

// watchDebounce coalesces bursts of writes to one trigger file.
const watchDebounce = 500 * time.Millisecond

func (s *ExportService) watchLoop(ctx, watchCtx context.Context, watcher *fsnotify.Watcher, pathToJobs map[string][]string) {
	timers := make(map[string]*time.Timer)
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()
	for {
		select {
		case <-watchCtx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			absPath, _ := filepath.Abs(event.Name)
			for _, jobID := range pathToJobs[absPath] {
				if t, exists := timers[jobID]; exists {
					t.Stop()
				}
				jid := jobID
				timers[jobID] = time.AfterFunc(watchDebounce, func() {
					s.logger.Info("export watcher: file changed, running job", "path", absPath, "job", jid)
					if _, err := s.RunJob(ctx, jid); err != nil {
						s.logger.Error("export watcher: run failed", "job", jid, "error", err)
					}
				})
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Error("export watcher: error", "error", err)
		}
	}
}

// WaitRunning blocks until all running jobs finish or ctx is cancelled.
// Used for graceful shutdown.
func (s *ExportService) WaitRunning(ctx context.Context) {
	s.runningJobs.WaitAll(ctx)
}

// Stop tears down all watchers and schedulers.
func (s *ExportService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopWatchersLocked()
}

func (s *ExportService) stopWatchersLocked() {
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
