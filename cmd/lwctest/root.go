package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/specvital/lwctest/pkg/config"
	"github.com/specvital/lwctest/pkg/discovery"
	"github.com/specvital/lwctest/pkg/domain"
	"github.com/specvital/lwctest/pkg/events"
	"github.com/specvital/lwctest/pkg/execution"
	"github.com/specvital/lwctest/pkg/index"
	"github.com/specvital/lwctest/pkg/logging"
	"github.com/specvital/lwctest/pkg/parser/jstest"
	"github.com/specvital/lwctest/pkg/runner"
	"github.com/specvital/lwctest/pkg/task"
	"github.com/specvital/lwctest/pkg/telemetry"
	"github.com/specvital/lwctest/pkg/watch"
	"github.com/specvital/lwctest/pkg/workspace"
)

type rootFlags struct {
	executable string
	logLevel   string
	noColor    bool
	resultsDir string
	workspace  string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:   "lwctest",
		Short: "Discover, run and watch LWC Jest tests",
		Long: `lwctest indexes the Lightning Web Component Jest tests of a Salesforce DX
workspace, runs them through sfdx-lwc-jest and maps the results back onto
the discovered test cases.`,
		SilenceUsage: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.workspace, "workspace", "w", "", "Workspace root (default is the current directory)")
	pf.StringVar(&flags.executable, "executable", "", "Path to sfdx-lwc-jest (default is node_modules/.bin)")
	pf.StringVar(&flags.resultsDir, "results-dir", "", "Directory for result documents, relative to the workspace")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	pf.BoolVar(&flags.noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(newListCmd(flags))
	rootCmd.AddCommand(newRunCmd(flags, domain.ModeRun))
	rootCmd.AddCommand(newRunCmd(flags, domain.ModeDebug))
	rootCmd.AddCommand(newWatchCmd(flags))
	return rootCmd
}

// app holds the services a command works with.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	hub     *events.Hub
	index   *index.Index
	tasks   *task.Manager
	runner  *runner.Runner
	watches watch.Provider
	out     io.Writer
}

func newApp(cmd *cobra.Command, flags *rootFlags) (*app, error) {
	ws := flags.workspace
	if ws == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		ws = wd
	}
	ws, err := filepath.Abs(ws)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace: %w", err)
	}

	cfg, err := config.Load(ws)
	if err != nil {
		return nil, err
	}
	cfg.Apply(config.Flags{
		Executable: flags.executable,
		LogLevel:   flags.logLevel,
		ResultsDir: flags.resultsDir,
	})

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := logging.New(level, cmd.ErrOrStderr())
	if flags.noColor {
		disableColor()
	}

	kind := workspace.Detect(ws)
	if kind.Type != workspace.TypeSFDX {
		logger.Warn("Workspace is not an SFDX project", "type", kind.Type, "workspace", ws)
	}

	hub := events.NewHub()
	scanner := discovery.NewScanner(
		discovery.WithPatterns([]string{cfg.TestGlob}),
		discovery.WithExcludePatterns(cfg.Exclude))
	idx := index.New(ws,
		index.WithScanner(scanner),
		index.WithParser(jstest.NewAdapter()),
		index.WithLogger(logger),
		index.WithHub(hub))

	tasks := task.NewManager(task.NewExecScheduler(logger),
		task.WithLogger(logger),
		task.WithDisposeDelay(cfg.DisposeDelay))
	orch := execution.NewOrchestrator(ws, cfg.ResultsPath(),
		execution.WithResolver(execution.LocalResolver{Override: cfg.ExecutablePath()}))
	provider := watch.NewFSProvider(logger)

	r := runner.New(orch, tasks, provider, idx,
		runner.WithLogger(logger),
		runner.WithTelemetry(telemetry.NewLogSink(logger)),
		runner.WithWorkspaceType(string(kind.Type)),
		runner.WithOutput(cmd.OutOrStdout(), cmd.ErrOrStderr()),
		runner.WithDisposeDelay(cfg.DisposeDelay))

	return &app{
		cfg:     cfg,
		logger:  logger,
		hub:     hub,
		index:   idx,
		tasks:   tasks,
		runner:  r,
		watches: provider,
		out:     cmd.OutOrStdout(),
	}, nil
}

func (a *app) Close() {
	a.tasks.Close()
}
