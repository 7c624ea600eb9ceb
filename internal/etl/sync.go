package etl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// ── ExportJob ──────────────────────────────────────────────
// Orchestrates: schema read → codec build → schema artifact →
// row fan-out to encoder workers → CSV shards.

// ErrorPolicy decides what happens to a record that fails to encode.
type ErrorPolicy string

const (
	OnErrorAbort ErrorPolicy = "abort" // fail the whole export
	OnErrorSkip  ErrorPolicy = "skip"  // drop the record, count it, go on
)

// ExportJob holds the configuration of a stored export.
type ExportJob struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Connection    string      `json:"connection"` // name of a configured connection
	Table         string      `json:"table"`
	OutputPrefix  string      `json:"outputPrefix"`
	Workers       int         `json:"workers"`
	OnError       ErrorPolicy `json:"onError"`
	TriggerType   string      `json:"triggerType"`   // "manual" | "schedule" | "file_watch"
	TriggerConfig string      `json:"triggerConfig"` // cron expression or watch path
	Enabled       bool        `json:"enabled"`
	LastRunAt     time.Time   `json:"lastRunAt"`
	LastStatus    string      `json:"lastStatus"` // "success" | "error" | "running" | ""
	LastError     string      `json:"lastError"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

// ExportRequest is one export run.
type ExportRequest struct {
	Table   string
	Workers int
	OnError ErrorPolicy
}

// ExportResult is the outcome of an export run.
type ExportResult struct {
	Table       string        `json:"table"`
	Status      string        `json:"status"` // "success" | "error"
	SchemaPath  string        `json:"schemaPath,omitempty"`
	Shards      []string      `json:"shards,omitempty"`
	Columns     int           `json:"columns"`
	RowsRead    int64         `json:"rowsRead"`
	RowsWritten int64         `json:"rowsWritten"`
	RowsSkipped int64         `json:"rowsSkipped"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`
}

// ExportRunLog is a historical record of an export run.
type ExportRunLog struct {
	ID          string    `json:"id"`
	JobID       string    `json:"jobId"`
	StartedAt   time.Time `json:"startedAt"`
	FinishedAt  time.Time `json:"finishedAt"`
	Status      string    `json:"status"`
	RowsRead    int64     `json:"rowsRead"`
	RowsWritten int64     `json:"rowsWritten"`
	RowsSkipped int64     `json:"rowsSkipped"`
	Error       string    `json:"error,omitempty"`
}

// ── Engine ─────────────────────────────────────────────────

// DefaultWorkers is used when a request does not set Workers.
const DefaultWorkers = 4

// Engine runs exports from a Source into a FileSink.
type Engine struct {
	Source  Source
	Sink    *FileSink
	Logger  *slog.Logger
	Metrics *Metrics
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

// Prepare reads the table schema and builds its codecs. Both happen once
// per export; the returned Encoder is shared by every worker.
func (e *Engine) Prepare(ctx context.Context, table string) (*Encoder, error) {
	log := e.logger().With("table", table)

	log.Info("reading schema information")
	schema, err := e.Source.ReadSchema(ctx, table)
	if err != nil {
		return nil, err
	}
	log.Info("got schema information", "columns", len(schema.Columns))

	codecs, err := BuildCodecs(schema)
	if err != nil {
		return nil, err
	}
	return NewEncoder(schema, codecs), nil
}

// Run executes an export end-to-end.
func (e *Engine) Run(ctx context.Context, req ExportRequest) (*ExportResult, error) {
	start := time.Now()
	result := &ExportResult{Table: req.Table}
	fail := func(err error) (*ExportResult, error) {
		result.Status = "error"
		result.Error = err.Error()
		result.Duration = time.Since(start)
		e.Metrics.exportFinished(req.Table, result.Status, result.Duration)
		return result, err
	}

	workers := req.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	policy := req.OnError
	if policy == "" {
		policy = OnErrorAbort
	}
	log := e.logger().With("table", req.Table)

	// 1. Schema + codecs, once.
	enc, err := e.Prepare(ctx, req.Table)
	if err != nil {
		return fail(err)
	}
	result.Columns = len(enc.Schema().Columns)

	// 2. Schema artifact, once.
	log.Info("saving schema information", "path", e.Sink.SchemaPath())
	schemaPath, err := e.Sink.WriteSchema(enc.Schema())
	if err != nil {
		return fail(err)
	}
	result.SchemaPath = schemaPath

	// 3. One shard per worker. Shards of an earlier run with another
	// worker count would otherwise be read back with this run's output.
	if err := e.Sink.RemoveStaleShards(workers); err != nil {
		return fail(err)
	}
	shards := make([]*ShardWriter, 0, workers)
	closeShards := func() error {
		var errs []error
		for _, s := range shards {
			errs = append(errs, s.Close())
		}
		shards = nil
		return errors.Join(errs...)
	}
	for i := 0; i < workers; i++ {
		w, err := e.Sink.CreateShard(i, workers)
		if err != nil {
			_ = closeShards()
			return fail(err)
		}
		shards = append(shards, w)
		result.Shards = append(result.Shards, w.Path())
	}

	// 4. Fan rows out to encoder workers.
	var read, written, skipped atomic.Int64
	rows := make(chan Row, workers*64)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(rows)
		return e.Source.ReadRows(gctx, enc.Schema(), func(r Row) error {
			read.Add(1)
			select {
			case rows <- r:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	})

	for i, shard := range shards {
		g.Go(func() error {
			for r := range rows {
				line, err := enc.EncodeCSV(r)
				if err != nil {
					var encErr *EncodingError
					if policy == OnErrorSkip && errors.As(err, &encErr) {
						skipped.Add(1)
						e.Metrics.rowSkipped(req.Table)
						log.Warn("skipping record", "shard", i, "column", encErr.Column, "error", encErr.Cause)
						continue
					}
					return err
				}
				if err := shard.WriteLine(line); err != nil {
					return err
				}
				written.Add(1)
				e.Metrics.rowEncoded(req.Table)
			}
			return nil
		})
	}

	runErr := g.Wait()
	closeErr := closeShards()

	result.RowsRead = read.Load()
	result.RowsWritten = written.Load()
	result.RowsSkipped = skipped.Load()

	if runErr != nil {
		return fail(fmt.Errorf("export %s: %w", req.Table, runErr))
	}
	if closeErr != nil {
		return fail(closeErr)
	}

	result.Status = "success"
	result.Duration = time.Since(start)
	e.Metrics.exportFinished(req.Table, result.Status, result.Duration)
	log.Info("export finished",
		"rows", result.RowsWritten,
		"skipped", result.RowsSkipped,
		"shards", len(result.Shards),
		"duration", result.Duration,
	)
	return result, nil
}

var errPreviewDone = errors.New("preview complete")

// Preview encodes up to maxRows rows without writing anything.
func (e *Engine) Preview(ctx context.Context, table string, maxRows int) ([]string, *Schema, error) {
	enc, err := e.Prepare(ctx, table)
	if err != nil {
		return nil, nil, err
	}
	var lines []string
	err = e.Source.ReadRows(ctx, enc.Schema(), func(r Row) error {
		if len(lines) >= maxRows {
			return errPreviewDone
		}
		line, err := enc.EncodeCSV(r)
		if err != nil {
			return err
		}
		lines = append(lines, line)
		return nil
	})
	if err != nil && !errors.Is(err, errPreviewDone) {
		return lines, enc.Schema(), err
	}
	return lines, enc.Schema(), nil
}
