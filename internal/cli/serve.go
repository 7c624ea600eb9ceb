package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run scheduled and file-triggered jobs until interrupted",
		Long: `Run every enabled job with a schedule or file_watch trigger. When
metrics.addr is set, Prometheus metrics are served at /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			a, err := opts.start(cmd, true)
			if err != nil {
				return err
			}
			defer opts.stop()
			return a.Serve(ctx)
		},
	}
}

func newMCPCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the export tools over MCP on stdin/stdout",
		Long: `Serve the MCP tools list_tables, read_schema, preview_table,
export_table, list_jobs, run_job, and list_run_logs on stdin/stdout.
Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.start(cmd, true)
			if err != nil {
				return err
			}
			defer opts.stop()
			return a.ServeMCP()
		},
	}
}
