// Package telemetry reports command usage to an injected sink.
package telemetry

import (
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/specvital/lwctest/pkg/logging"
)

// Command event names.
const (
	EventDebug = "lwc_test_debug_action"
	EventRun   = "lwc_test_run_action"
	EventWatch = "lwc_test_watch_action"
)

// PropWorkspaceType tags every event with the kind of workspace.
const PropWorkspaceType = "workspaceType"

// Sink receives command events.
type Sink interface {
	SendCommandEvent(name string, duration time.Duration, props map[string]string)
}

// NopSink drops every event.
type NopSink struct{}

func (NopSink) SendCommandEvent(string, time.Duration, map[string]string) {}

// LogSink writes events to a logger at debug level.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logging.For(logger, "telemetry")}
}

func (s *LogSink) SendCommandEvent(name string, duration time.Duration, props map[string]string) {
	attrs := []any{"event", name, "duration", duration}
	for k, v := range props {
		attrs = append(attrs, k, v)
	}
	s.logger.Debug("Command event", attrs...)
}

// SessionTimer measures sessions identified by id and reports their duration
// when they end. Ending an unknown session sends nothing.
type SessionTimer struct {
	sink  Sink
	event string
	props map[string]string
	now   func() time.Time

	mu     sync.Mutex
	starts map[string]time.Time
}

// NewSessionTimer reports under event with props attached to every event.
func NewSessionTimer(sink Sink, event string, props map[string]string) *SessionTimer {
	if sink == nil {
		sink = NopSink{}
	}
	return &SessionTimer{
		sink:   sink,
		event:  event,
		props:  maps.Clone(props),
		now:    time.Now,
		starts: make(map[string]time.Time),
	}
}

// Start records the start of session id.
func (t *SessionTimer) Start(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.starts[id] = t.now()
}

// End reports the duration of session id and reports whether it was known.
func (t *SessionTimer) End(id string) bool {
	t.mu.Lock()
	start, ok := t.starts[id]
	delete(t.starts, id)
	t.mu.Unlock()

	if !ok {
		return false
	}
	t.sink.SendCommandEvent(t.event, t.now().Sub(start), maps.Clone(t.props))
	return true
}
