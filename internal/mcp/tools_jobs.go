package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"tablexport/internal/etl"
)

func (s *Server) registerJobTools() {
	s.mcp.AddTool(mcp.NewTool("list_jobs",
		mcp.WithDescription("List stored export jobs with their last run status"),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), handler(s.handleListJobs))

	s.mcp.AddTool(mcp.NewTool("run_job",
		mcp.WithDescription("Run a stored export job now. Overwrites the job's output files."),
		mcp.WithString("job", mcp.Description("Job id or name"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), handler(s.handleRunJob))

	s.mcp.AddTool(mcp.NewTool("list_run_logs",
		mcp.WithDescription("List recent runs of an export job, newest first"),
		mcp.WithString("job", mcp.Description("Job id or name"), mcp.Required()),
		mcp.WithNumber("limit", mcp.Description("Maximum number of runs (default 20)")),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), handler(s.handleListRunLogs))
}

func errRequired(key string) error {
	return fmt.Errorf("%s is required", key)
}

// jobView is a job plus whether a run of it is in flight.
type jobView struct {
	etl.ExportJob
	Running bool `json:"running"`
}

func (s *Server) handleListJobs(ctx context.Context, req mcp.CallToolRequest) (any, error) {
	jobs, err := s.exports.ListJobs()
	if err != nil {
		return nil, err
	}
	running := make(map[string]bool)
	for _, id := range s.exports.RunningJobs() {
		running[id] = true
	}
	views := make([]jobView, len(jobs))
	for i, j := range jobs {
		views[i] = jobView{ExportJob: j, Running: running[j.ID]}
	}
	return views, nil
}

func (s *Server) handleRunJob(ctx context.Context, req mcp.CallToolRequest) (any, error) {
	job, err := requireString(req, "job")
	if err != nil {
		return nil, err
	}
	return s.exports.RunJob(ctx, job)
}

func (s *Server) handleListRunLogs(ctx context.Context, req mcp.CallToolRequest) (any, error) {
	job, err := requireString(req, "job")
	if err != nil {
		return nil, err
	}
	return s.exports.ListRunLogs(job, req.GetInt("limit", 20))
}
