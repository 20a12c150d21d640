package task

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"os/exec"
	"sync"

	"github.com/specvital/lwctest/pkg/logging"
)

// MetaTaskID is the metadata key carrying the task id through the scheduler.
const MetaTaskID = "taskID"

// EventKind is a process lifecycle signal.
type EventKind int

const (
	EventStarted EventKind = iota
	EventEnded
)

func (k EventKind) String() string {
	if k == EventStarted {
		return "started"
	}
	return "ended"
}

// Spec describes a process to start. Meta is opaque to the scheduler and is
// echoed back on every event.
type Spec struct {
	Args    []string
	Command string
	Dir     string
	Env     []string
	Meta    map[string]string
	Name    string
	Stderr  io.Writer
	Stdout  io.Writer
}

// SchedulerEvent reports a process signal. ExitCode and Err are only set on EventEnded.
type SchedulerEvent struct {
	Err      error
	ExitCode int
	Kind     EventKind
	Meta     map[string]string
}

// Handle controls a started process.
type Handle interface {
	Terminate() error
}

// Scheduler starts processes and reports their lifecycle on one stream. It
// knows nothing about tasks; events are tied to tasks only through Meta.
type Scheduler interface {
	Start(ctx context.Context, spec Spec) (Handle, error)
	Events() <-chan SchedulerEvent
}

const schedulerBuffer = 64

// ExecScheduler runs processes on the local machine. Events nobody reads
// after Close are dropped.
type ExecScheduler struct {
	events chan SchedulerEvent
	logger *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
}

// NewExecScheduler creates a scheduler.
func NewExecScheduler(logger *slog.Logger) *ExecScheduler {
	return &ExecScheduler{
		events: make(chan SchedulerEvent, schedulerBuffer),
		logger: logging.For(logger, "scheduler"),
		done:   make(chan struct{}),
	}
}

// Close releases the goroutines still waiting to report. It does not stop
// running processes.
func (s *ExecScheduler) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

func (s *ExecScheduler) emit(ev SchedulerEvent) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *ExecScheduler) Events() <-chan SchedulerEvent {
	return s.events
}

// Start launches spec. Cancelling ctx terminates the process tree.
func (s *ExecScheduler) Start(ctx context.Context, spec Spec) (Handle, error) {
	cmd := exec.CommandContext(ctx, spec.Command, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)
	cmd.Stdout = spec.Stdout
	cmd.Stderr = spec.Stderr
	cmd.SysProcAttr = sysProcAttr()
	cmd.Cancel = func() error { return killTree(cmd) }

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("task: start %s: %w", spec.Command, err)
	}

	meta := maps.Clone(spec.Meta)
	pid := cmd.Process.Pid
	s.logger.Debug("Process started", "name", spec.Name, "pid", pid)

	go func() {
		s.emit(SchedulerEvent{Kind: EventStarted, Meta: meta})

		err := cmd.Wait()
		ev := SchedulerEvent{Kind: EventEnded, Meta: meta, ExitCode: -1}
		if cmd.ProcessState != nil {
			ev.ExitCode = cmd.ProcessState.ExitCode()
		}
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			ev.Err = err
		}
		s.logger.Debug("Process ended", "name", spec.Name, "pid", pid, "exitCode", ev.ExitCode)
		s.emit(ev)
	}()

	return &execHandle{cmd: cmd}, nil
}

type execHandle struct {
	cmd *exec.Cmd
}

func (h *execHandle) Terminate() error {
	return killTree(h.cmd)
}
