// Package runner starts LWC Jest runs, debug sessions and watch runs and feeds
// their result documents back into the index.
package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/specvital/lwctest/pkg/domain"
	"github.com/specvital/lwctest/pkg/execution"
	"github.com/specvital/lwctest/pkg/logging"
	"github.com/specvital/lwctest/pkg/task"
	"github.com/specvital/lwctest/pkg/telemetry"
	"github.com/specvital/lwctest/pkg/watch"
)

// DebugLauncher hands a launch configuration to a debug adapter. The adapter
// reports back through Runner.DebugSessionStarted and DebugSessionTerminated,
// keyed by DebugConfiguration.SessionID.
type DebugLauncher interface {
	Launch(ctx context.Context, cfg execution.DebugConfiguration) error
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger; the default discards.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logging.For(l, "runner")
	}
}

// WithDebugLauncher routes debug invocations to a debug adapter instead of
// starting the runner process directly.
func WithDebugLauncher(l DebugLauncher) Option {
	return func(r *Runner) {
		r.launcher = l
	}
}

// WithTelemetry sets the sink receiving command events; nil keeps NopSink.
func WithTelemetry(s telemetry.Sink) Option {
	return func(r *Runner) {
		if s != nil {
			r.telemetry = s
		}
	}
}

// WithWorkspaceType tags telemetry events.
func WithWorkspaceType(t string) Option {
	return func(r *Runner) {
		r.workspaceType = t
	}
}

// WithOutput wires runner process output.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(r *Runner) {
		r.stdout = stdout
		r.stderr = stderr
	}
}

// WithDisposeDelay sets how long a debug session's result watcher outlives
// the session.
func WithDisposeDelay(d time.Duration) Option {
	return func(r *Runner) {
		if d >= 0 {
			r.disposeDelay = d
		}
	}
}

// Runner composes the orchestrator, task manager, watch provider and index.
type Runner struct {
	orchestrator *execution.Orchestrator
	tasks        *task.Manager
	provider     watch.Provider
	index        watch.ResultApplier

	launcher      DebugLauncher
	telemetry     telemetry.Sink
	debugTimer    *telemetry.SessionTimer
	workspaceType string
	disposeDelay  time.Duration
	logger        *slog.Logger
	stdout        io.Writer
	stderr        io.Writer

	mu        sync.Mutex
	debugging map[string]*Invocation
}

// New creates a runner.
func New(orchestrator *execution.Orchestrator, tasks *task.Manager, provider watch.Provider, index watch.ResultApplier, opts ...Option) *Runner {
	r := &Runner{
		orchestrator:  orchestrator,
		tasks:         tasks,
		provider:      provider,
		index:         index,
		telemetry:     telemetry.NopSink{},
		workspaceType: "SFDX",
		disposeDelay:  task.DefaultDisposeDelay,
		logger:        logging.Discard(),
		debugging:     make(map[string]*Invocation),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.debugTimer = telemetry.NewSessionTimer(r.telemetry, telemetry.EventDebug, r.props())
	return r
}

// Run executes target once.
func (r *Runner) Run(ctx context.Context, target domain.ExecutionTarget) (*Invocation, error) {
	return r.start(ctx, target, domain.ModeRun)
}

// Debug executes target with the inspector enabled, through the debug
// launcher when one is configured.
func (r *Runner) Debug(ctx context.Context, target domain.ExecutionTarget) (*Invocation, error) {
	return r.start(ctx, target, domain.ModeDebug)
}

// Watch starts the runner in watch mode. Every re-run's results are applied
// until the invocation is stopped.
func (r *Runner) Watch(ctx context.Context, target domain.ExecutionTarget) (*Invocation, error) {
	return r.start(ctx, target, domain.ModeWatch)
}

func (r *Runner) start(ctx context.Context, target domain.ExecutionTarget, mode domain.RunMode) (*Invocation, error) {
	spec, err := r.orchestrator.Prepare(target, mode)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(r.orchestrator.ResultsDir(), 0o755); err != nil {
		return nil, fmt.Errorf("runner: create results dir: %w", err)
	}

	watchMode := watch.OneShot
	if mode == domain.ModeWatch {
		watchMode = watch.Persistent
	}
	// Registered before the process starts so a fast run cannot finish unseen.
	results, err := watch.WatchResults(r.provider, spec.OutputPath, watchMode, r.index, r.logger)
	if err != nil {
		return nil, fmt.Errorf("runner: watch results: %w", err)
	}

	if mode == domain.ModeDebug && r.launcher != nil {
		return r.launchDebug(ctx, spec, results)
	}

	name := fmt.Sprintf("%s %s", mode, target)
	t := r.tasks.Create(spec.ID, name, spec.Executable, spec.Args,
		task.WithDir(spec.Dir),
		task.WithOutput(r.stdout, r.stderr))
	inv := &Invocation{spec: spec, task: t, results: results, logger: r.logger}
	t.OnDispose(inv.closeResults)

	started := time.Now()
	t.OnEnd(func(res task.Result) {
		r.logger.Info("Invocation ended", "id", spec.ID, "mode", mode, "exitCode", res.ExitCode, "error", res.Err)
		r.telemetry.SendCommandEvent(eventFor(mode), time.Since(started), r.props())
	})

	r.logger.Info("Starting invocation", "id", spec.ID, "mode", mode, "target", target.String())
	r.logger.Debug("Command line", "id", spec.ID, "cmd", spec.CommandLine())
	if err := t.Execute(ctx); err != nil {
		return nil, err
	}
	return inv, nil
}

func (r *Runner) launchDebug(ctx context.Context, spec *execution.Invocation, results *watch.ResultWatcher) (*Invocation, error) {
	inv := &Invocation{spec: spec, results: results, logger: r.logger, done: make(chan struct{})}
	inv.release = func() { r.forget(spec.ID) }

	r.mu.Lock()
	r.debugging[spec.ID] = inv
	r.mu.Unlock()

	r.logger.Info("Launching debug session", "id", spec.ID, "target", spec.Target.String())
	if err := r.launcher.Launch(ctx, execution.NewDebugConfiguration(spec)); err != nil {
		r.forget(spec.ID)
		inv.closeResults()
		return nil, fmt.Errorf("runner: launch debugger: %w", err)
	}
	return inv, nil
}

// DebugSessionStarted records the start of a debug session launched by this runner.
func (r *Runner) DebugSessionStarted(sessionID string) {
	r.mu.Lock()
	_, ok := r.debugging[sessionID]
	r.mu.Unlock()
	if ok {
		r.debugTimer.Start(sessionID)
	}
}

// DebugSessionTerminated reports the session duration and ends its invocation.
// Unknown ids are ignored.
func (r *Runner) DebugSessionTerminated(sessionID string) {
	inv, ok := r.forget(sessionID)
	if !ok {
		return
	}

	r.debugTimer.End(sessionID)
	inv.finish()
	time.AfterFunc(r.disposeDelay, inv.closeResults)
}

// forget removes a debug session from the registry.
func (r *Runner) forget(sessionID string) (*Invocation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.debugging[sessionID]
	delete(r.debugging, sessionID)
	return inv, ok
}

func (r *Runner) props() map[string]string {
	return map[string]string{telemetry.PropWorkspaceType: r.workspaceType}
}

func eventFor(mode domain.RunMode) string {
	switch mode {
	case domain.ModeDebug:
		return telemetry.EventDebug
	case domain.ModeWatch:
		return telemetry.EventWatch
	default:
		return telemetry.EventRun
	}
}
