package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/specvital/lwctest/pkg/domain"
	"github.com/specvital/lwctest/pkg/execution"
	"github.com/specvital/lwctest/pkg/runner"
)

func newRunCmd(flags *rootFlags, mode domain.RunMode) *cobra.Command {
	var (
		name        string
		ancestors   []string
		printConfig bool
	)

	short := "Run tests once"
	if mode == domain.ModeDebug {
		short = "Run tests with the node inspector enabled"
	}

	runCmd := &cobra.Command{
		Use:   string(mode) + " [path]",
		Short: short,
		Long: `Run the tests below a directory, in a file, or a single test case selected
with --name. Results are mapped back onto the discovered test cases.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			var arg string
			if len(args) == 1 {
				arg = args[0]
			}
			target, err := targetFor(a.cfg.Workspace, arg, name, ancestors)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if _, err := a.index.FindAll(ctx); err != nil {
				return err
			}

			var inv *runner.Invocation
			if mode == domain.ModeDebug {
				inv, err = a.runner.Debug(ctx, target)
			} else {
				inv, err = a.runner.Run(ctx, target)
			}
			if err != nil {
				return err
			}

			if printConfig {
				enc := json.NewEncoder(cmd.ErrOrStderr())
				enc.SetIndent("", "  ")
				if err := enc.Encode(execution.NewDebugConfiguration(inv.Spec())); err != nil {
					return err
				}
			}

			awaitInvocation(ctx, inv, a.cfg.DisposeDelay)
			return a.report(context.WithoutCancel(ctx), inv)
		},
	}

	runCmd.Flags().StringVarP(&name, "name", "n", "", "Run only the test case with this title")
	runCmd.Flags().StringSliceVar(&ancestors, "describe", nil, "Enclosing describe titles of --name, outermost first")
	if mode == domain.ModeDebug {
		runCmd.Flags().BoolVar(&printConfig, "print-config", false, "Print the debugger launch configuration")
	}
	return runCmd
}

// awaitInvocation waits for the process to end and then, for at most grace,
// for its result document.
func awaitInvocation(ctx context.Context, inv *runner.Invocation, grace time.Duration) {
	select {
	case <-inv.Done():
	case <-ctx.Done():
		inv.Stop()
		<-inv.Done()
		return
	}

	select {
	case <-inv.Applied():
	case <-time.After(grace):
	}
}

func (a *app) report(ctx context.Context, inv *runner.Invocation) error {
	files, err := a.index.FindAll(ctx)
	if err != nil {
		return err
	}

	var t tally
	for _, f := range filesUnder(files, inv.Target().Path) {
		a.index.FindCases(ctx, f.Path)
		if info, ok := a.index.FileInfo(f.Path); ok {
			f = info
		}
		printFile(a.out, a.cfg.Workspace, f, &t)
	}
	fmt.Fprintln(a.out, t.String())

	res := inv.Result()
	if res.Err != nil {
		return res.Err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%s exited with code %d", execution.ExecutableName, res.ExitCode)
	}
	return nil
}
