package task

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 5 * time.Second

type fakeHandle struct {
	terminated atomic.Int32
}

func (h *fakeHandle) Terminate() error {
	h.terminated.Add(1)
	return nil
}

type fakeScheduler struct {
	events chan SchedulerEvent
	err    error
	closed atomic.Bool

	mu      sync.Mutex
	specs   []Spec
	handles []*fakeHandle
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{events: make(chan SchedulerEvent, 16)}
}

func (s *fakeScheduler) Start(_ context.Context, spec Spec) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.specs = append(s.specs, spec)
	if s.err != nil {
		return nil, s.err
	}
	h := &fakeHandle{}
	s.handles = append(s.handles, h)
	return h, nil
}

func (s *fakeScheduler) Events() <-chan SchedulerEvent { return s.events }

func (s *fakeScheduler) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *fakeScheduler) emit(kind EventKind, id string, code int) {
	s.events <- SchedulerEvent{Kind: kind, Meta: map[string]string{MetaTaskID: id}, ExitCode: code}
}

func waitState(t *testing.T, task *Task, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return task.State() == want }, waitFor, 5*time.Millisecond,
		"state %s, want %s", task.State(), want)
}

func TestTask_Lifecycle(t *testing.T) {
	t.Parallel()

	// Given
	s := newFakeScheduler()
	m := NewManager(s, WithDisposeDelay(10*time.Millisecond))
	defer m.Close()

	task := m.Create("t1", "run foo", "jest", []string{"--json"}, WithDir("/ws"))
	var started, ended, disposed atomic.Int32
	var endResult Result
	task.OnStart(func() { started.Add(1) })
	task.OnEnd(func(r Result) { endResult = r; ended.Add(1) })
	task.OnDispose(func() { disposed.Add(1) })
	assert.Equal(t, StateCreated, task.State())

	// When
	require.NoError(t, task.Execute(context.Background()))
	s.emit(EventStarted, "t1", 0)
	waitState(t, task, StateStarted)
	s.emit(EventEnded, "t1", 1)

	// Then
	select {
	case <-task.Done():
	case <-time.After(waitFor):
		t.Fatal("task did not end")
	}
	waitState(t, task, StateDisposed)
	assert.Equal(t, int32(1), started.Load())
	assert.Equal(t, int32(1), ended.Load())
	assert.Equal(t, int32(1), disposed.Load())
	assert.Equal(t, 1, endResult.ExitCode)
	assert.False(t, endResult.Abnormal())
	assert.Equal(t, 0, m.Len())

	require.Len(t, s.specs, 1)
	assert.Equal(t, "t1", s.specs[0].Meta[MetaTaskID])
	assert.Equal(t, "/ws", s.specs[0].Dir)
	assert.Equal(t, []string{"--json"}, s.specs[0].Args)
}

func TestManager_RoutesByMeta(t *testing.T) {
	t.Parallel()

	// Given
	s := newFakeScheduler()
	m := NewManager(s, WithDisposeDelay(time.Hour))
	defer m.Close()
	a := m.Create("a", "a", "jest", nil)
	b := m.Create("b", "b", "jest", nil)
	require.NoError(t, a.Execute(context.Background()))
	require.NoError(t, b.Execute(context.Background()))

	// When
	s.emit(EventStarted, "a", 0)
	s.emit(EventStarted, "b", 0)
	s.emit(EventEnded, "b", 0)
	s.emit(EventEnded, "unknown", 0)

	// Then
	waitState(t, b, StateEnded)
	assert.Equal(t, StateStarted, a.State())
	assert.Equal(t, 2, m.Len(), "ended tasks stay until the grace delay passes")
}

func TestTask_LaunchFailure(t *testing.T) {
	t.Parallel()

	// Given
	s := newFakeScheduler()
	s.err = errors.New("exec: not found")
	m := NewManager(s)
	defer m.Close()
	task := m.Create("t1", "run", "missing", nil)
	var got Result
	task.OnEnd(func(r Result) { got = r })

	// When
	err := task.Execute(context.Background())

	// Then
	require.Error(t, err)
	assert.Equal(t, StateEnded, task.State())
	assert.True(t, got.Abnormal())
	assert.Equal(t, -1, got.ExitCode)

	s.err = nil
	other := m.Create("t2", "run", "jest", nil)
	require.NoError(t, other.Execute(context.Background()))
	s.emit(EventStarted, "t2", 0)
	waitState(t, other, StateStarted)
}

func TestManager_CloseClosesScheduler(t *testing.T) {
	t.Parallel()

	// Given
	s := newFakeScheduler()
	m := NewManager(s)

	// When
	m.Close()
	m.Close()

	// Then
	assert.True(t, s.closed.Load())
}

func TestTask_ExecuteErrors(t *testing.T) {
	t.Parallel()

	m := NewManager(newFakeScheduler())
	defer m.Close()

	task := m.Create("t1", "run", "jest", nil)
	require.NoError(t, task.Execute(context.Background()))
	assert.ErrorIs(t, task.Execute(context.Background()), ErrAlreadyStarted)

	disposed := m.Create("t2", "run", "jest", nil)
	disposed.Dispose()
	assert.ErrorIs(t, disposed.Execute(context.Background()), ErrDisposed)
}

func TestTask_DisposeIdempotent(t *testing.T) {
	t.Parallel()

	// Given
	s := newFakeScheduler()
	m := NewManager(s)
	defer m.Close()
	task := m.Create("t1", "run", "jest", nil)
	var disposers, ends atomic.Int32
	var result Result
	task.OnDispose(func() { disposers.Add(1) })
	task.OnEnd(func(r Result) { result = r; ends.Add(1) })
	require.NoError(t, task.Execute(context.Background()))

	// When
	task.Dispose()
	task.Dispose()

	// Then
	assert.Equal(t, StateDisposed, task.State())
	assert.Equal(t, int32(1), disposers.Load())
	assert.Equal(t, int32(1), ends.Load())
	assert.ErrorIs(t, result.Err, ErrDisposed)
	assert.Equal(t, int32(1), s.handles[0].terminated.Load())
	_, ok := m.Get("t1")
	assert.False(t, ok)
}

func TestTask_Terminate(t *testing.T) {
	t.Parallel()

	t.Run("running task signals the process", func(t *testing.T) {
		t.Parallel()

		s := newFakeScheduler()
		m := NewManager(s, WithDisposeDelay(time.Hour))
		defer m.Close()
		task := m.Create("t1", "run", "jest", nil)
		require.NoError(t, task.Execute(context.Background()))

		task.Terminate()

		assert.Equal(t, int32(1), s.handles[0].terminated.Load())
	})

	t.Run("ended task is left alone", func(t *testing.T) {
		t.Parallel()

		s := newFakeScheduler()
		m := NewManager(s, WithDisposeDelay(time.Hour))
		defer m.Close()
		task := m.Create("t1", "run", "jest", nil)
		require.NoError(t, task.Execute(context.Background()))
		s.emit(EventEnded, "t1", 0)
		waitState(t, task, StateEnded)

		task.Terminate()

		assert.Equal(t, int32(0), s.handles[0].terminated.Load())
		assert.Equal(t, StateEnded, task.State())
	})

	t.Run("unexecuted task is disposed", func(t *testing.T) {
		t.Parallel()

		m := NewManager(newFakeScheduler())
		defer m.Close()
		task := m.Create("t1", "run", "jest", nil)

		task.Terminate()

		assert.Equal(t, StateDisposed, task.State())
	})
}

func TestState_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "created", StateCreated.String())
	assert.Equal(t, "disposed", StateDisposed.String())
	assert.Equal(t, "unknown", State(9).String())
}

func TestExecScheduler(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	t.Parallel()

	t.Run("reports exit code", func(t *testing.T) {
		t.Parallel()

		s := NewExecScheduler(nil)
		_, err := s.Start(context.Background(), Spec{Command: "sh", Args: []string{"-c", "exit 3"}, Meta: map[string]string{MetaTaskID: "x"}})
		require.NoError(t, err)

		first := <-s.Events()
		second := <-s.Events()

		assert.Equal(t, EventStarted, first.Kind)
		assert.Equal(t, EventEnded, second.Kind)
		assert.Equal(t, 3, second.ExitCode)
		assert.NoError(t, second.Err)
		assert.Equal(t, "x", second.Meta[MetaTaskID])
	})

	t.Run("launch failure", func(t *testing.T) {
		t.Parallel()

		s := NewExecScheduler(nil)
		_, err := s.Start(context.Background(), Spec{Command: "/nonexistent/sfdx-lwc-jest"})

		assert.Error(t, err)
	})

	t.Run("close releases unread events", func(t *testing.T) {
		t.Parallel()

		// Given
		s := NewExecScheduler(nil)
		s.events = make(chan SchedulerEvent)
		_, err := s.Start(context.Background(), Spec{Command: "sh", Args: []string{"-c", "exit 0"}})
		require.NoError(t, err)
		sent := make(chan struct{})
		go func() {
			s.emit(SchedulerEvent{Kind: EventEnded})
			close(sent)
		}()

		// When
		require.NoError(t, s.Close())
		require.NoError(t, s.Close())

		// Then
		select {
		case <-sent:
		case <-time.After(waitFor):
			t.Fatal("emit blocked after close")
		}
	})

	t.Run("terminate", func(t *testing.T) {
		t.Parallel()

		s := NewExecScheduler(nil)
		h, err := s.Start(context.Background(), Spec{Command: "sleep", Args: []string{"30"}})
		require.NoError(t, err)
		<-s.Events()

		require.NoError(t, h.Terminate())

		select {
		case ev := <-s.Events():
			assert.Equal(t, EventEnded, ev.Kind)
			assert.NotEqual(t, 0, ev.ExitCode)
		case <-time.After(waitFor):
			t.Fatal("process did not end")
		}
	})
}
