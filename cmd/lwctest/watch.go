package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/specvital/lwctest/pkg/domain"
	"github.com/specvital/lwctest/pkg/events"
	"github.com/specvital/lwctest/pkg/session"
	"github.com/specvital/lwctest/pkg/watch"
)

func newWatchCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [path...]",
		Short: "Re-run tests on change",
		Long: `Start sfdx-lwc-jest in watch mode for each path, at most one run per path,
and print the results of every re-run. Test files created, changed or deleted
meanwhile are reflected in the index.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if _, err := a.index.FindAll(ctx); err != nil {
				return err
			}

			sources, err := watch.WatchSources(a.watches, a.cfg.Workspace, a.cfg.TestGlob, a.cfg.Exclude, a.index, a.logger)
			if err != nil {
				return err
			}
			defer sources.Close()

			sessions := session.NewManager(func(ctx context.Context, t domain.ExecutionTarget) (session.Run, error) {
				inv, err := a.runner.Watch(ctx, t)
				if err != nil {
					return nil, err
				}
				return inv, nil
			}, session.WithLogger(a.logger), session.WithHub(a.hub))
			defer sessions.StopAll()

			changed := make(chan events.Topic, 1)
			notify := func(topic events.Topic) {
				select {
				case changed <- topic:
				default:
				}
			}
			defer a.hub.Subscribe(events.TopicResults, notify).Unsubscribe()
			defer a.hub.Subscribe(events.TopicWatch, notify).Unsubscribe()

			if len(args) == 0 {
				args = []string{""}
			}
			for _, arg := range args {
				target, err := targetFor(a.cfg.Workspace, arg, "", nil)
				if err != nil {
					return err
				}
				if _, err := sessions.Watch(ctx, target); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Watching %s\n", relPath(a.cfg.Workspace, target.Path))
			}

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-changed:
					paths := sessions.Paths()
					if len(paths) == 0 {
						fmt.Fprintln(a.out, dimColor.Sprint("All watch runs ended"))
						return nil
					}
					a.reportWatched(ctx, paths)
				}
			}
		},
	}
}

func (a *app) reportWatched(ctx context.Context, paths []string) {
	files, err := a.index.FindAll(ctx)
	if err != nil {
		a.logger.Warn("Failed to list test files", "error", err)
		return
	}

	var t tally
	for _, dir := range paths {
		for _, f := range filesUnder(files, dir) {
			a.index.FindCases(ctx, f.Path)
			if info, ok := a.index.FileInfo(f.Path); ok {
				f = info
			}
			printFile(a.out, a.cfg.Workspace, f, &t)
		}
	}
	fmt.Fprintln(a.out, t.String())
}
