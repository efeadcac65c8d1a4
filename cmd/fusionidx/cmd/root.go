// Package cmd provides the CLI commands for fusionidx.
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/fusionidx/internal/config"
	fuserr "github.com/Aman-CERP/fusionidx/internal/errors"
	"github.com/Aman-CERP/fusionidx/internal/logging"
	"github.com/Aman-CERP/fusionidx/internal/profiling"
	"github.com/Aman-CERP/fusionidx/internal/provider"
	"github.com/Aman-CERP/fusionidx/internal/ui"
	"github.com/Aman-CERP/fusionidx/pkg/version"
)

// app holds the global flags and per-run state shared by all commands.
type app struct {
	debug      bool
	dataDir    string
	jsonOutput bool
	profile    profiling.Options

	profiler       *profiling.Session
	loggingCleanup func()
}

// NewRootCmd creates the root command for the fusionidx CLI.
func NewRootCmd() *cobra.Command {
	return (&app{}).rootCmd()
}

func (a *app) rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fusionidx",
		Short: "Fusion property indexes over routed backends",
		Long: `fusionidx manages property indexes that split their entries across
several backends. Each index records the slot selector version it was
created with; every value is routed by that selector to exactly one
backend, so it is always written to and sought in the same place.

Values are given as JSON literals: "alice", 42, true, [1,2],
{"datetime":"2024-01-02T03:04:05Z"}, {"duration":"1h"} or
{"crs":"cartesian","coords":[1,2]}. Arguments that are not valid JSON
are taken as plain strings.`,
		Version:       version.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.SetVersionTemplate("fusionidx version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "Enable debug logging to ~/.fusionidx/logs/ and stderr")
	cmd.PersistentFlags().StringVar(&a.dataDir, "data-dir", "", "Data directory (overrides data_dir from config)")
	cmd.PersistentFlags().BoolVar(&a.jsonOutput, "json", false, "Output as JSON")
	cmd.PersistentFlags().StringVar(&a.profile.CPUPath, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&a.profile.HeapPath, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&a.profile.TracePath, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = a.start
	cmd.PersistentPostRunE = a.stop

	cmd.AddCommand(a.newCreateCmd())
	cmd.AddCommand(a.newAddCmd())
	cmd.AddCommand(a.newRemoveCmd())
	cmd.AddCommand(a.newQueryCmd())
	cmd.AddCommand(a.newDescribeCmd())
	cmd.AddCommand(a.newListCmd())
	cmd.AddCommand(a.newDropCmd())
	cmd.AddCommand(a.newVersionsCmd())
	cmd.AddCommand(a.newConfigCmd())
	cmd.AddCommand(a.newVersionCmd())

	return cmd
}

// start sets up logging and profiling for one command run.
func (a *app) start(_ *cobra.Command, _ []string) error {
	logCfg := logging.Config{Level: "error"}
	if a.debug {
		logCfg = logging.DebugConfig()
	}
	cleanup, err := logging.SetupDefault(logCfg)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	a.loggingCleanup = cleanup
	if a.debug {
		slog.Debug("debug_logging_enabled",
			slog.String("log_file", logCfg.FilePath),
			slog.String("version", version.Version))
	}

	if a.profile.Enabled() {
		a.profiler, err = profiling.Start(a.profile)
		if err != nil {
			return err
		}
	}
	return nil
}

// stop flushes profiles and closes the log file.
func (a *app) stop(_ *cobra.Command, _ []string) error {
	err := a.profiler.Stop()
	a.profiler = nil

	if a.loggingCleanup != nil {
		a.loggingCleanup()
		a.loggingCleanup = nil
	}
	return err
}

// loadConfig loads configuration for the working directory and applies
// --data-dir.
func (a *app) loadConfig() (*config.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	cfg, err := config.Load(cwd)
	if err != nil {
		return nil, err
	}
	if a.dataDir != "" {
		cfg.DataDir = a.dataDir
	}
	return cfg, nil
}

// openProvider loads configuration and opens a provider on it. The caller
// closes the provider.
func (a *app) openProvider() (*provider.Provider, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	return provider.New(cfg, provider.WithLogger(slog.Default()))
}

// printer returns a styled printer for the command's stdout.
func (a *app) printer(cmd *cobra.Command) *ui.Printer {
	return ui.NewPrinter(cmd.OutOrStdout())
}

// writeJSON writes v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// reportError prints err to w, as JSON when --json is set. With --debug the
// error's cause is included. Transient errors get a retry hint.
func (a *app) reportError(w io.Writer, err error) {
	if a.jsonOutput {
		data, jerr := fuserr.FormatJSON(err)
		if jerr == nil {
			_, _ = fmt.Fprintln(w, string(data))
			return
		}
	}
	p := ui.NewPrinter(w)
	if a.debug {
		p.Error(fuserr.FormatForUser(err, true))
	} else {
		p.Error(fuserr.FormatForCLI(err))
	}
	if fuserr.IsRetryable(err) {
		p.Warn("this error is transient, retry the command")
	}
}

// Execute runs the root command and reports any error on stderr.
func Execute() error {
	a := &app{}
	root := a.rootCmd()
	err := root.Execute()
	if err != nil {
		slog.Error("command_failed", fuserr.LogAttrs(err)...)
		a.reportError(root.ErrOrStderr(), err)
	}
	// PersistentPostRunE is skipped when a command fails.
	_ = a.stop(root, nil)
	return err
}
