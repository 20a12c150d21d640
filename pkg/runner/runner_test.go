package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specvital/lwctest/pkg/domain"
	"github.com/specvital/lwctest/pkg/execution"
	"github.com/specvital/lwctest/pkg/results"
	"github.com/specvital/lwctest/pkg/task"
	"github.com/specvital/lwctest/pkg/telemetry"
	"github.com/specvital/lwctest/pkg/watch"
)

const waitFor = 5 * time.Second

// journal records the order in which collaborators are touched.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(s string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, s)
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

type fakeWatcher struct {
	events chan watch.Event
	closed atomic.Bool
	log    *journal

	mu sync.Mutex
}

func (w *fakeWatcher) Events() <-chan watch.Event { return w.events }

func (w *fakeWatcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed.Load() {
		w.closed.Store(true)
		w.log.add("watcher closed")
		close(w.events)
	}
	return nil
}

func (w *fakeWatcher) send(ev watch.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed.Load() {
		w.events <- ev
	}
}

type fakeProvider struct {
	log *journal

	mu       sync.Mutex
	watchers []*fakeWatcher
}

func (p *fakeProvider) Watch(pattern string, _ []string) (watch.Watcher, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.log.add("watch " + filepath.Base(pattern))
	w := &fakeWatcher{events: make(chan watch.Event, 8), log: p.log}
	p.watchers = append(p.watchers, w)
	return w, nil
}

func (p *fakeProvider) last() *fakeWatcher {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.watchers[len(p.watchers)-1]
}

func (p *fakeProvider) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.watchers)
}

type fakeHandle struct {
	log     *journal
	watcher *fakeWatcher
	closed  atomic.Bool
}

func (h *fakeHandle) Terminate() error {
	if h.watcher != nil {
		h.closed.Store(h.watcher.closed.Load())
	}
	h.log.add("terminate")
	return nil
}

type fakeScheduler struct {
	log      *journal
	provider *fakeProvider
	events   chan task.SchedulerEvent

	mu      sync.Mutex
	specs   []task.Spec
	handles []*fakeHandle
}

func newFakeScheduler(log *journal, p *fakeProvider) *fakeScheduler {
	return &fakeScheduler{log: log, provider: p, events: make(chan task.SchedulerEvent, 8)}
}

func (s *fakeScheduler) Start(_ context.Context, spec task.Spec) (task.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.add("start " + spec.Meta[task.MetaTaskID])
	s.specs = append(s.specs, spec)
	h := &fakeHandle{log: s.log}
	if s.provider.count() > 0 {
		h.watcher = s.provider.last()
	}
	s.handles = append(s.handles, h)
	return h, nil
}

func (s *fakeScheduler) Events() <-chan task.SchedulerEvent { return s.events }

func (s *fakeScheduler) end(id string, code int) {
	s.events <- task.SchedulerEvent{Kind: task.EventEnded, Meta: map[string]string{task.MetaTaskID: id}, ExitCode: code}
}

type staticResolver struct {
	path string
	err  error
}

func (r staticResolver) Resolve(string) (string, error) { return r.path, r.err }

type recordingApplier struct {
	mu    sync.Mutex
	paths []string
}

func (a *recordingApplier) ApplyResults(doc *results.Document) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, f := range doc.Files {
		a.paths = append(a.paths, f.Path())
	}
}

func (a *recordingApplier) applied() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.paths...)
}

type recordingSink struct {
	mu     sync.Mutex
	events []string
}

func (s *recordingSink) SendCommandEvent(name string, _ time.Duration, props map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, name+" "+props[telemetry.PropWorkspaceType])
}

func (s *recordingSink) sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

type fakeLauncher struct {
	err error

	mu      sync.Mutex
	configs []execution.DebugConfiguration
}

func (l *fakeLauncher) Launch(_ context.Context, cfg execution.DebugConfiguration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.configs = append(l.configs, cfg)
	return l.err
}

type fixture struct {
	log       *journal
	provider  *fakeProvider
	scheduler *fakeScheduler
	applier   *recordingApplier
	sink      *recordingSink
	tasks     *task.Manager
	runner    *Runner
	workspace string
}

func newFixture(t *testing.T, resolver execution.ExecutableResolver, opts ...Option) *fixture {
	t.Helper()

	ws := t.TempDir()
	f := &fixture{log: &journal{}, applier: &recordingApplier{}, sink: &recordingSink{}, workspace: ws}
	f.provider = &fakeProvider{log: f.log}
	f.scheduler = newFakeScheduler(f.log, f.provider)
	f.tasks = task.NewManager(f.scheduler, task.WithDisposeDelay(10*time.Millisecond))
	t.Cleanup(f.tasks.Close)

	var n atomic.Int32
	orch := execution.NewOrchestrator(ws, filepath.Join(ws, "results"),
		execution.WithResolver(resolver),
		execution.WithIDGenerator(func() string { return fmt.Sprintf("id%d", n.Add(1)) }))

	opts = append([]Option{WithTelemetry(f.sink), WithDisposeDelay(10 * time.Millisecond)}, opts...)
	f.runner = New(orch, f.tasks, f.provider, f.applier, opts...)
	return f
}

func (f *fixture) writeResults(t *testing.T, inv *Invocation, testPath string) {
	t.Helper()
	doc := fmt.Sprintf(`{"testResults":[{"name":%q,"status":"passed","assertionResults":[]}]}`, testPath)
	require.NoError(t, os.WriteFile(inv.OutputPath(), []byte(doc), 0o644))
	f.provider.last().send(watch.Event{Op: watch.Create, Path: inv.OutputPath()})
}

func waitClosed(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(waitFor):
		t.Fatalf("timed out waiting for %s", what)
	}
}

var jest = staticResolver{path: "/bin/sfdx-lwc-jest"}

func TestRunner_Run(t *testing.T) {
	t.Parallel()

	// Given
	f := newFixture(t, jest)
	file := filepath.Join(f.workspace, "lwc", "foo", "foo.test.js")

	// When
	inv, err := f.runner.Run(context.Background(), domain.FileTarget(file))

	// Then
	require.NoError(t, err)
	assert.Equal(t, "id1", inv.ID())
	assert.Equal(t, domain.ModeRun, inv.Mode())
	assert.Equal(t, []string{"watch test-result-id1.json", "start id1"}, f.log.list())
	assert.DirExists(t, filepath.Join(f.workspace, "results"))

	f.writeResults(t, inv, file)
	waitClosed(t, inv.Applied(), "results applied")
	assert.Equal(t, []string{file}, f.applier.applied())

	f.scheduler.end("id1", 1)
	waitClosed(t, inv.Done(), "invocation end")
	assert.Equal(t, 1, inv.Result().ExitCode)
	assert.Equal(t, []string{telemetry.EventRun + " SFDX"}, f.sink.sent())
}

func TestRunner_ExecutableMissing(t *testing.T) {
	t.Parallel()

	// Given
	f := newFixture(t, staticResolver{err: execution.ErrExecutableNotFound})

	// When
	inv, err := f.runner.Run(context.Background(), domain.FileTarget("/ws/a.test.js"))

	// Then
	require.ErrorIs(t, err, execution.ErrExecutableNotFound)
	assert.Nil(t, inv)
	assert.Empty(t, f.log.list())
	assert.Equal(t, 0, f.tasks.Len())
}

func TestRunner_Watch_AppliesEveryRerun(t *testing.T) {
	t.Parallel()

	// Given
	f := newFixture(t, jest)
	inv, err := f.runner.Watch(context.Background(), domain.FileTarget("/ws/a.test.js"))
	require.NoError(t, err)
	require.Equal(t, "--watch", f.scheduler.specs[0].Args[0])

	// When
	f.writeResults(t, inv, "/ws/a.test.js")
	require.Eventually(t, func() bool { return len(f.applier.applied()) == 1 }, waitFor, 5*time.Millisecond)
	f.writeResults(t, inv, "/ws/b.test.js")

	// Then
	require.Eventually(t, func() bool { return len(f.applier.applied()) == 2 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, []string{"/ws/a.test.js", "/ws/b.test.js"}, f.applier.applied())
}

func TestRunner_StopClosesWatcherFirst(t *testing.T) {
	t.Parallel()

	// Given
	f := newFixture(t, jest)
	inv, err := f.runner.Watch(context.Background(), domain.DirectoryTarget(""))
	require.NoError(t, err)

	// When
	inv.Stop()

	// Then
	log := f.log.list()
	assert.Equal(t, []string{"watcher closed", "terminate"}, log[len(log)-2:])
	assert.True(t, f.scheduler.handles[0].closed.Load())
}

func TestRunner_DebugWithLauncher(t *testing.T) {
	t.Parallel()

	// Given
	launcher := &fakeLauncher{}
	f := newFixture(t, jest, WithDebugLauncher(launcher), WithWorkspaceType("CORE_ALL"))
	target := domain.CaseTarget("/ws/a.test.js", "renders", nil)

	// When
	inv, err := f.runner.Debug(context.Background(), target)
	require.NoError(t, err)
	f.runner.DebugSessionStarted("unknown")
	f.runner.DebugSessionStarted(inv.ID())
	f.runner.DebugSessionTerminated("unknown")
	f.runner.DebugSessionTerminated(inv.ID())

	// Then
	require.Len(t, launcher.configs, 1)
	cfg := launcher.configs[0]
	assert.Equal(t, inv.ID(), cfg.SessionID)
	assert.Equal(t, "/bin/sfdx-lwc-jest", cfg.RuntimeExecutable)
	assert.Equal(t, "--debug", cfg.Args[0])
	assert.Nil(t, inv.Task())
	assert.Empty(t, f.scheduler.specs)

	waitClosed(t, inv.Done(), "debug session end")
	assert.Equal(t, []string{telemetry.EventDebug + " CORE_ALL"}, f.sink.sent())
	require.Eventually(t, func() bool { return f.provider.last().closed.Load() }, waitFor, 5*time.Millisecond)
}

func TestRunner_DebugLaunchFailure(t *testing.T) {
	t.Parallel()

	// Given
	boom := errors.New("adapter unavailable")
	f := newFixture(t, jest, WithDebugLauncher(&fakeLauncher{err: boom}))

	// When
	inv, err := f.runner.Debug(context.Background(), domain.FileTarget("/ws/a.test.js"))

	// Then
	require.ErrorIs(t, err, boom)
	assert.Nil(t, inv)
	assert.True(t, f.provider.last().closed.Load())
}

func TestRunner_DebugWithoutLauncher(t *testing.T) {
	t.Parallel()

	// Given
	f := newFixture(t, jest)

	// When
	inv, err := f.runner.Debug(context.Background(), domain.FileTarget("/ws/a.test.js"))

	// Then
	require.NoError(t, err)
	require.NotNil(t, inv.Task())
	require.Len(t, f.scheduler.specs, 1)
	assert.Equal(t, "--debug", f.scheduler.specs[0].Args[0])
}

func TestRunner_StopDebugSession(t *testing.T) {
	t.Parallel()

	// Given
	f := newFixture(t, jest, WithDebugLauncher(&fakeLauncher{}))
	inv, err := f.runner.Debug(context.Background(), domain.FileTarget("/ws/a.test.js"))
	require.NoError(t, err)
	f.runner.DebugSessionStarted(inv.ID())

	// When
	inv.Stop()

	// Then
	waitClosed(t, inv.Done(), "debug session end")
	assert.Zero(t, f.runner.debugSessions())
	assert.True(t, f.provider.last().closed.Load())

	f.runner.DebugSessionTerminated(inv.ID())
	assert.Empty(t, f.sink.sent())
}

func TestEventFor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, telemetry.EventRun, eventFor(domain.ModeRun))
	assert.Equal(t, telemetry.EventDebug, eventFor(domain.ModeDebug))
	assert.Equal(t, telemetry.EventWatch, eventFor(domain.ModeWatch))
}

// debugSessions reports how many launched debug sessions are still registered.
func (r *Runner) debugSessions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.debugging)
}
