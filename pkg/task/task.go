// Package task wraps one runner process in a lifecycle of
// Created, Started, Ended and Disposed.
package task

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

var (
	// ErrAlreadyStarted is returned by Execute on a task that was executed before.
	ErrAlreadyStarted = errors.New("task: already started")
	// ErrDisposed is returned by Execute on a disposed task.
	ErrDisposed = errors.New("task: disposed")
)

// State is a task's lifecycle position. It only moves forward.
type State int

const (
	StateCreated State = iota
	StateStarted
	StateEnded
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarted:
		return "started"
	case StateEnded:
		return "ended"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// Result is how a task ended. Err is set when the process could not be
// launched or did not exit on its own.
type Result struct {
	Err      error
	ExitCode int
}

// Abnormal reports an end that was not a regular process exit.
func (r Result) Abnormal() bool {
	return r.Err != nil
}

// Option configures a task at creation.
type Option func(*Spec)

// WithDir sets the working directory of the process.
func WithDir(dir string) Option {
	return func(s *Spec) { s.Dir = dir }
}

// WithEnv appends KEY=value pairs to the inherited environment.
func WithEnv(env ...string) Option {
	return func(s *Spec) { s.Env = append(s.Env, env...) }
}

// WithOutput wires the process output streams.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(s *Spec) {
		s.Stdout = stdout
		s.Stderr = stderr
	}
}

// Task is one invocation of an external process.
type Task struct {
	id      string
	spec    Spec
	manager *Manager

	mu        sync.Mutex
	state     State
	launched  bool
	handle    Handle
	result    Result
	onStart   []func()
	onEnd     []func(Result)
	disposers []func()
	timer     *time.Timer
	ended     chan struct{}
}

func (t *Task) ID() string {
	return t.id
}

func (t *Task) Name() string {
	return t.spec.Name
}

func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Result returns the end result; it is zero until the task ended.
func (t *Task) Result() Result {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result
}

// Done is closed when the task ended and its end callbacks returned.
func (t *Task) Done() <-chan struct{} {
	return t.ended
}

// OnStart registers fn to run when the scheduler reports the process started.
func (t *Task) OnStart(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onStart = append(t.onStart, fn)
}

// OnEnd registers fn to run once when the task ends for any reason.
func (t *Task) OnEnd(fn func(Result)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onEnd = append(t.onEnd, fn)
}

// OnDispose registers fn to release a resource tied to the task.
func (t *Task) OnDispose(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disposers = append(t.disposers, fn)
}

// Execute launches the process. A launch failure ends the task with an
// abnormal result and is also returned.
func (t *Task) Execute(ctx context.Context) error {
	t.mu.Lock()
	switch {
	case t.state == StateDisposed:
		t.mu.Unlock()
		return ErrDisposed
	case t.launched:
		t.mu.Unlock()
		return ErrAlreadyStarted
	}
	t.launched = true
	spec := t.spec
	t.mu.Unlock()

	handle, err := t.manager.scheduler.Start(ctx, spec)
	if err != nil {
		err = fmt.Errorf("task: launch %s: %w", t.spec.Name, err)
		t.manager.logger.Error("Launch failed", "task", t.id, "name", t.spec.Name, "error", err)
		t.end(Result{ExitCode: -1, Err: err})
		return err
	}

	t.mu.Lock()
	t.handle = handle
	t.mu.Unlock()
	return nil
}

// Terminate stops the process. A task that was never executed is disposed.
func (t *Task) Terminate() {
	t.mu.Lock()
	state, handle, launched := t.state, t.handle, t.launched
	t.mu.Unlock()

	switch {
	case state >= StateEnded:
		return
	case !launched:
		t.Dispose()
		return
	case handle == nil:
		return
	}

	if err := handle.Terminate(); err != nil {
		t.manager.logger.Warn("Terminate failed", "task", t.id, "error", err)
	}
}

// Dispose releases the task and everything registered with OnDispose. A task
// that has not ended yet is terminated and ends with ErrDisposed. It is safe
// to call more than once.
func (t *Task) Dispose() {
	t.mu.Lock()
	if t.state == StateDisposed {
		t.mu.Unlock()
		return
	}
	var (
		endCallbacks []func(Result)
		handle       Handle
	)
	if t.state < StateEnded {
		t.result = Result{ExitCode: -1, Err: ErrDisposed}
		close(t.ended)
		endCallbacks = append(endCallbacks, t.onEnd...)
		handle = t.handle
	}
	t.state = StateDisposed
	if t.timer != nil {
		t.timer.Stop()
	}
	result := t.result
	disposers := t.disposers
	t.disposers = nil
	t.mu.Unlock()

	if handle != nil {
		if err := handle.Terminate(); err != nil {
			t.manager.logger.Warn("Terminate failed", "task", t.id, "error", err)
		}
	}
	t.manager.remove(t.id)
	for _, fn := range endCallbacks {
		fn(result)
	}
	for _, fn := range disposers {
		fn()
	}
}

func (t *Task) started() {
	t.mu.Lock()
	if t.state != StateCreated {
		t.mu.Unlock()
		return
	}
	t.state = StateStarted
	callbacks := append([]func(){}, t.onStart...)
	t.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}

func (t *Task) end(result Result) {
	t.mu.Lock()
	if t.state >= StateEnded {
		t.mu.Unlock()
		return
	}
	t.state = StateEnded
	t.result = result
	callbacks := append([]func(Result){}, t.onEnd...)
	// A result document can be reported slightly after the process exits.
	t.timer = time.AfterFunc(t.manager.disposeDelay, t.Dispose)
	t.mu.Unlock()

	for _, fn := range callbacks {
		fn(result)
	}
	close(t.ended)
}
