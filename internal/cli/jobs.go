package cli

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"tablexport/internal/config"
	"tablexport/internal/etl"
	"tablexport/internal/service"
)

func newJobsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Manage stored export jobs",
	}
	cmd.AddCommand(
		newJobsAddCmd(opts),
		newJobsListCmd(opts),
		newJobsRunCmd(opts),
		newJobsLogsCmd(opts),
		newJobsDeleteCmd(opts),
	)
	return cmd
}

func newJobsAddCmd(opts *rootOptions) *cobra.Command {
	var (
		in       service.JobInput
		onError  string
		schedule string
		watch    string
		disabled bool
	)
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Store an export job",
		Long: `Store an export job. A job runs on demand with "jobs run", on a cron
schedule (--schedule), or whenever a trigger file is written (--watch)
while "tablexport serve" is running.

Examples:
  tablexport jobs add users-nightly --connection warehouse --table users \
    --output /data/users/ --schedule "0 2 * * *"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if schedule != "" && watch != "" {
				return fmt.Errorf("--schedule and --watch are mutually exclusive")
			}
			policy, err := config.ParseErrorPolicy(onError)
			if err != nil {
				return err
			}
			in.Name = args[0]
			in.OnError = policy
			in.Enabled = !disabled
			switch {
			case schedule != "":
				in.TriggerType, in.TriggerConfig = service.TriggerSchedule, schedule
			case watch != "":
				in.TriggerType, in.TriggerConfig = service.TriggerFileWatch, watch
			default:
				in.TriggerType = service.TriggerManual
			}

			a, err := opts.start(cmd, true)
			if err != nil {
				return err
			}
			defer opts.stop()

			if in.OutputPrefix == "" {
				in.OutputPrefix = defaultPrefix(a.Config().Export.OutputDir, in.Table)
			}
			job, err := a.Exports().CreateJob(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created job %s (%s)\n", job.Name, job.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.Connection, "connection", "", "connection name")
	cmd.Flags().StringVar(&in.Table, "table", "", "table name")
	cmd.Flags().StringVarP(&in.OutputPrefix, "output", "o", "", "output path prefix")
	cmd.Flags().IntVarP(&in.Workers, "workers", "w", 0, "encoder workers (0 uses the default)")
	cmd.Flags().StringVar(&onError, "on-error", string(etl.OnErrorAbort), "abort or skip")
	cmd.Flags().StringVar(&schedule, "schedule", "", "cron expression")
	cmd.Flags().StringVar(&watch, "watch", "", "trigger file path")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "store the job without enabling its trigger")
	_ = cmd.MarkFlagRequired("connection")
	_ = cmd.MarkFlagRequired("table")
	return cmd
}

func newJobsListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored export jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.start(cmd, true)
			if err != nil {
				return err
			}
			defer opts.stop()

			jobs, err := a.Exports().ListJobs()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tCONNECTION\tTABLE\tTRIGGER\tENABLED\tLAST RUN\tSTATUS")
			for _, j := range jobs {
				trigger := j.TriggerType
				if j.TriggerConfig != "" {
					trigger += " " + j.TriggerConfig
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\t%s\n",
					j.Name, j.Connection, j.Table, trigger, j.Enabled, formatTime(j.LastRunAt), j.LastStatus)
			}
			return w.Flush()
		},
	}
}

func newJobsRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run <job>",
		Short: "Run a stored job now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.start(cmd, true)
			if err != nil {
				return err
			}
			defer opts.stop()

			result, err := a.Exports().RunJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printResult(cmd, result)
			return nil
		},
	}
}

func newJobsLogsCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "logs <job>",
		Short: "Show recent runs of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.start(cmd, true)
			if err != nil {
				return err
			}
			defer opts.stop()

			logs, err := a.Exports().ListRunLogs(args[0], limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "STARTED\tDURATION\tSTATUS\tREAD\tWRITTEN\tSKIPPED\tERROR")
			for _, l := range logs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
					formatTime(l.StartedAt), l.FinishedAt.Sub(l.StartedAt).Round(time.Millisecond),
					l.Status, l.RowsRead, l.RowsWritten, l.RowsSkipped, l.Error)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs")
	return cmd
}

func newJobsDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <job>",
		Short: "Delete a job and its run logs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.start(cmd, true)
			if err != nil {
				return err
			}
			defer opts.stop()

			if err := a.Exports().DeleteJob(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted job %s\n", args[0])
			return nil
		},
	}
}

// ── Output helpers ─────────────────────────────────────────

func defaultPrefix(dir, table string) string {
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, table) + string(filepath.Separator)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func printResult(cmd *cobra.Command, r *etl.ExportResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "exported %s: %d rows written, %d skipped, %d columns in %s\n",
		r.Table, r.RowsWritten, r.RowsSkipped, r.Columns, r.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "schema: %s\n", r.SchemaPath)
	for _, s := range r.Shards {
		fmt.Fprintf(out, "shard:  %s\n", s)
	}
}
