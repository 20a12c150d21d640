package task

import (
	"io"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/specvital/lwctest/pkg/logging"
)

// DefaultDisposeDelay is the grace period between a task's end and its disposal.
const DefaultDisposeDelay = 500 * time.Millisecond

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the logger; the default discards.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logging.For(l, "task")
	}
}

// WithDisposeDelay sets the grace period. Negative values are ignored.
func WithDisposeDelay(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d >= 0 {
			m.disposeDelay = d
		}
	}
}

// Manager creates tasks and routes scheduler signals to them by task id.
type Manager struct {
	scheduler    Scheduler
	logger       *slog.Logger
	disposeDelay time.Duration

	mu    sync.Mutex
	tasks map[string]*Task

	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// NewManager starts routing events of scheduler until Close.
func NewManager(scheduler Scheduler, opts ...ManagerOption) *Manager {
	m := &Manager{
		scheduler:    scheduler,
		logger:       logging.Discard(),
		disposeDelay: DefaultDisposeDelay,
		tasks:        make(map[string]*Task),
		done:         make(chan struct{}),
		stopped:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	go m.route()
	return m
}

// Create registers a task. The id must be unique among live tasks; it is
// carried to the scheduler as metadata.
func (m *Manager) Create(id, name, command string, args []string, opts ...Option) *Task {
	spec := Spec{
		Args:    append([]string(nil), args...),
		Command: command,
		Meta:    map[string]string{MetaTaskID: id},
		Name:    name,
	}
	for _, opt := range opts {
		opt(&spec)
	}

	t := &Task{
		id:      id,
		spec:    spec,
		manager: m,
		ended:   make(chan struct{}),
	}

	m.mu.Lock()
	m.tasks[id] = t
	m.mu.Unlock()

	return t
}

// Get returns the live task with id.
func (m *Manager) Get(id string) (*Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	return t, ok
}

// Len returns the number of live tasks.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// Close stops routing, disposes every live task and closes the scheduler when
// it is an io.Closer.
func (m *Manager) Close() {
	m.once.Do(func() {
		close(m.done)
		<-m.stopped

		m.mu.Lock()
		tasks := make([]*Task, 0, len(m.tasks))
		for _, t := range m.tasks {
			tasks = append(tasks, t)
		}
		m.mu.Unlock()

		for _, t := range tasks {
			t.Dispose()
		}

		if c, ok := m.scheduler.(io.Closer); ok {
			if err := c.Close(); err != nil {
				m.logger.Warn("Failed to close scheduler", "error", err)
			}
		}
	})
}

func (m *Manager) remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, id)
}

func (m *Manager) route() {
	defer close(m.stopped)

	for {
		select {
		case <-m.done:
			return
		case ev, ok := <-m.scheduler.Events():
			if !ok {
				return
			}
			m.dispatch(ev)
		}
	}
}

func (m *Manager) dispatch(ev SchedulerEvent) {
	id := ev.Meta[MetaTaskID]
	t, ok := m.Get(id)
	if !ok {
		m.logger.Debug("Event for unknown task", "kind", ev.Kind, "meta", maps.Clone(ev.Meta))
		return
	}

	switch ev.Kind {
	case EventStarted:
		t.started()
	case EventEnded:
		t.end(Result{ExitCode: ev.ExitCode, Err: ev.Err})
	}
}
