package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"tablexport/internal/config"
	"tablexport/internal/etl"
	"tablexport/internal/service"
)

func newTablesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tables <connection>",
		Short: "List the tables of a connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.start(cmd, false)
			if err != nil {
				return err
			}
			defer opts.stop()

			tables, err := a.Exports().ListTables(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, t := range tables {
				fmt.Fprintln(cmd.OutOrStdout(), t.Name)
			}
			return nil
		},
	}
}

func newSchemaCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schema <connection> <table>",
		Short: "Print a table's schema artifact",
		Long: `Print the JSON object mapping each column name to its declared type,
in the table's column order. This is the file an export writes as
<prefix>schema.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.start(cmd, false)
			if err != nil {
				return err
			}
			defer opts.stop()

			schema, err := a.Exports().ReadSchema(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			data, err := etl.SchemaArtifact(schema)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

func newPreviewCmd(opts *rootOptions) *cobra.Command {
	var rows int
	cmd := &cobra.Command{
		Use:   "preview <connection> <table>",
		Short: "Print the first rows of a table as encoded CSV lines",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.start(cmd, false)
			if err != nil {
				return err
			}
			defer opts.stop()

			res, err := a.Exports().Preview(cmd.Context(), args[0], args[1], rows)
			if err != nil {
				return err
			}
			for _, line := range res.Lines {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&rows, "rows", "n", 10, "number of rows")
	return cmd
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	var (
		output  string
		workers int
		onError string
	)
	cmd := &cobra.Command{
		Use:   "export <connection> <table>",
		Short: "Export a table once",
		Long: `Export a table to <output>schema plus <output>NNNNN-of-MMMMM.csv shards.

Examples:
  # Four shards under ./out/users/
  tablexport export warehouse users --output ./out/users/ --workers 4

  # Drop records that fail to encode instead of aborting
  tablexport export warehouse events --output ./out/events- --on-error skip`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.start(cmd, false)
			if err != nil {
				return err
			}
			defer opts.stop()

			cfg := a.Config()
			if !cmd.Flags().Changed("workers") {
				workers = cfg.Export.Workers
			}
			if !cmd.Flags().Changed("on-error") {
				onError = cfg.Export.OnError
			}
			policy, err := config.ParseErrorPolicy(onError)
			if err != nil {
				return err
			}
			if output == "" {
				output = defaultPrefix(cfg.Export.OutputDir, args[1])
			}

			result, err := a.Exports().Export(cmd.Context(), service.ExportInput{
				Connection:   args[0],
				Table:        args[1],
				OutputPrefix: output,
				Workers:      workers,
				OnError:      policy,
			})
			if err != nil {
				return err
			}
			printResult(cmd, result)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output path prefix (default <output_dir>/<table>/)")
	cmd.Flags().IntVarP(&workers, "workers", "w", etl.DefaultWorkers, "encoder workers, one CSV shard each")
	cmd.Flags().StringVar(&onError, "on-error", string(etl.OnErrorAbort), "abort or skip records that fail to encode")
	return cmd
}

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <prefix>",
		Short: "Show the schema and shards of a finished export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sink := etl.NewFileSink(args[0])
			schema, err := sink.ReadSchema("")
			if err != nil {
				return err
			}
			shards, err := sink.Shards()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "COLUMN\tTYPE")
			for _, c := range schema.Columns {
				fmt.Fprintf(w, "%s\t%s\n", c.Name, c.DeclaredType)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			for _, s := range shards {
				fmt.Fprintf(out, "shard:  %s\n", s)
			}
			return nil
		},
	}
}
