package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"tablexport/internal/app"
	"tablexport/internal/config"
	"tablexport/internal/logging"
)

// rootOptions are the global flags.
type rootOptions struct {
	cfgFile  string
	logLevel string

	app     *app.App
	cleanup func()
}

// NewRootCommand builds the tablexport command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "tablexport",
		Short: "Export database tables to a schema file and sharded CSV",
		Long: `tablexport reads a table's schema from the database catalog, writes it as a
JSON schema artifact, and streams every row through typed encoders into
sharded CSV files. Exports can run once, on a cron schedule, or when a
trigger file changes.

Configuration Sources (in order of precedence):
1. Command line flags
2. Environment variables (TABLEXPORT_*)
3. Config file (./tablexport.yaml or --config)
4. Defaults`,
		Version:       app.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.cfgFile, "config", "c", "", "config file path")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log level (debug, info, warn, error)")

	root.AddCommand(
		newTablesCmd(opts),
		newSchemaCmd(opts),
		newPreviewCmd(opts),
		newExportCmd(opts),
		newInspectCmd(),
		newJobsCmd(opts),
		newServeCmd(opts),
		newMCPCmd(opts),
	)
	return root
}

// start loads config, sets up logging, and starts the app. Commands that
// manage stored jobs pass withState.
func (o *rootOptions) start(cmd *cobra.Command, withState bool) (*app.App, error) {
	cfg, err := config.Load(o.cfgFile)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		if _, err := logging.ParseLevel(o.logLevel); err != nil {
			return nil, err
		}
		cfg.Logging.Level = o.logLevel
	}

	logger, cleanup, err := logging.Setup(cfg.Logging, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}

	a := app.New(cfg, logger)
	if err := a.Startup(withState); err != nil {
		cleanup()
		return nil, err
	}
	o.app, o.cleanup = a, cleanup
	return a, nil
}

// stop shuts the app down, giving running jobs a grace period.
func (o *rootOptions) stop() {
	if o.app != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		o.app.Shutdown(ctx)
		o.app = nil
	}
	if o.cleanup != nil {
		o.cleanup()
		o.cleanup = nil
	}
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
