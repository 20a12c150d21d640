package runner

import (
	"log/slog"
	"sync"

	"github.com/specvital/lwctest/pkg/domain"
	"github.com/specvital/lwctest/pkg/execution"
	"github.com/specvital/lwctest/pkg/task"
	"github.com/specvital/lwctest/pkg/watch"
)

// Invocation is a started run, debug session or watch run.
type Invocation struct {
	spec    *execution.Invocation
	task    *task.Task
	results *watch.ResultWatcher
	logger  *slog.Logger
	// release deregisters an adapter-launched debug session.
	release func()

	// done is used instead of the task's when a debug adapter owns the process.
	done     chan struct{}
	doneOnce sync.Once
}

func (inv *Invocation) ID() string {
	return inv.spec.ID
}

func (inv *Invocation) Mode() domain.RunMode {
	return inv.spec.Mode
}

func (inv *Invocation) Target() domain.ExecutionTarget {
	return inv.spec.Target
}

// OutputPath is the result document this invocation writes.
func (inv *Invocation) OutputPath() string {
	return inv.spec.OutputPath
}

// Spec returns the prepared command.
func (inv *Invocation) Spec() *execution.Invocation {
	return inv.spec
}

// Task returns the process task, or nil for adapter-launched debug sessions.
func (inv *Invocation) Task() *task.Task {
	return inv.task
}

// Applied is closed once the first result document has been applied.
func (inv *Invocation) Applied() <-chan struct{} {
	return inv.results.Applied()
}

// Done is closed when the invocation ended.
func (inv *Invocation) Done() <-chan struct{} {
	if inv.task != nil {
		return inv.task.Done()
	}
	return inv.done
}

// Result is the process result; zero for adapter-launched debug sessions.
func (inv *Invocation) Result() task.Result {
	if inv.task != nil {
		return inv.task.Result()
	}
	return task.Result{}
}

// Stop detaches the result watcher and then terminates the process, so output
// written while shutting down is never applied.
func (inv *Invocation) Stop() {
	inv.closeResults()
	if inv.task != nil {
		inv.task.Terminate()
		return
	}
	if inv.release != nil {
		inv.release()
	}
	inv.finish()
}

func (inv *Invocation) closeResults() {
	if err := inv.results.Close(); err != nil {
		inv.logger.Warn("Failed to close result watcher", "path", inv.spec.OutputPath, "error", err)
	}
}

func (inv *Invocation) finish() {
	inv.doneOnce.Do(func() {
		close(inv.done)
	})
}
