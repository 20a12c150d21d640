// Package session keeps at most one watch run per test file.
package session

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/specvital/lwctest/pkg/domain"
	"github.com/specvital/lwctest/pkg/events"
	"github.com/specvital/lwctest/pkg/logging"
)

// Run is a started watch run.
type Run interface {
	Done() <-chan struct{}
	Stop()
}

// StartFunc starts a watch run for target.
type StartFunc func(ctx context.Context, target domain.ExecutionTarget) (Run, error)

// Session is a registered watch run.
type Session struct {
	Path    string
	Started time.Time
	Target  domain.ExecutionTarget

	run Run
}

// Done is closed when the underlying run ended.
func (s *Session) Done() <-chan struct{} {
	return s.run.Done()
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger; the default discards.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logging.For(l, "session")
	}
}

// WithHub publishes events.TopicWatch on membership changes.
func WithHub(h *events.Hub) Option {
	return func(m *Manager) {
		m.hub = h
	}
}

// Manager is the registry of active watch sessions keyed by file path.
type Manager struct {
	start  StartFunc
	hub    *events.Hub
	logger *slog.Logger

	flights  singleflight.Group
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates an empty registry. start launches the run behind each
// new session.
func NewManager(start StartFunc, opts ...Option) *Manager {
	m := &Manager{
		start:    start,
		logger:   logging.Discard(),
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Watch starts watching target unless a session for its path exists, in which
// case that session is returned and nothing is started.
func (m *Manager) Watch(ctx context.Context, target domain.ExecutionTarget) (*Session, error) {
	key := filepath.Clean(target.Path)
	if s, ok := m.get(key); ok {
		return s, nil
	}

	v, err, _ := m.flights.Do(key, func() (any, error) {
		if s, ok := m.get(key); ok {
			return s, nil
		}
		run, err := m.start(ctx, target)
		if err != nil {
			return nil, err
		}

		s := &Session{Path: key, Started: time.Now(), Target: target, run: run}
		m.mu.Lock()
		m.sessions[key] = s
		m.mu.Unlock()

		m.logger.Info("Watch session started", "path", key)
		go m.await(s)
		m.publish()
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

func (m *Manager) await(s *Session) {
	<-s.run.Done()
	if m.remove(s) {
		m.logger.Info("Watch session ended", "path", s.Path)
		m.publish()
	}
}

// Stop ends the session watching target's path. It reports whether one existed.
func (m *Manager) Stop(target domain.ExecutionTarget) bool {
	s, ok := m.get(filepath.Clean(target.Path))
	if !ok || !m.remove(s) {
		return false
	}
	s.run.Stop()
	m.logger.Info("Watch session stopped", "path", s.Path)
	m.publish()
	return true
}

// StopAll ends every session.
func (m *Manager) StopAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	if len(sessions) == 0 {
		return
	}
	for _, s := range sessions {
		s.run.Stop()
	}
	m.logger.Info("Stopped all watch sessions", "count", len(sessions))
	m.publish()
}

func (m *Manager) IsWatching(path string) bool {
	_, ok := m.get(filepath.Clean(path))
	return ok
}

// Paths returns the watched paths in sorted order.
func (m *Manager) Paths() []string {
	m.mu.Lock()
	paths := make([]string, 0, len(m.sessions))
	for p := range m.sessions {
		paths = append(paths, p)
	}
	m.mu.Unlock()

	sort.Strings(paths)
	return paths
}

func (m *Manager) get(key string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	return s, ok
}

func (m *Manager) remove(s *Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[s.Path] != s {
		return false
	}
	delete(m.sessions, s.Path)
	return true
}

func (m *Manager) publish() {
	if m.hub != nil {
		m.hub.Publish(events.TopicWatch)
	}
}
