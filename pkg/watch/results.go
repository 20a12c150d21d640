package watch

import (
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/specvital/lwctest/pkg/logging"
	"github.com/specvital/lwctest/pkg/results"
)

// Mode selects how long a ResultWatcher lives.
type Mode int

const (
	// OneShot stops after the first document was applied. Run and debug
	// invocations write their document exactly once.
	OneShot Mode = iota
	// Persistent applies every rewrite until closed. Watch-mode runs rewrite
	// the same document after each re-run.
	Persistent
)

// ResultApplier consumes decoded result documents.
type ResultApplier interface {
	ApplyResults(doc *results.Document)
}

// ResultWatcher applies the result document written to one output path.
// Decode failures are logged and the watcher keeps waiting, since a create
// event may arrive before the runner finished writing.
type ResultWatcher struct {
	path    string
	mode    Mode
	w       Watcher
	applier ResultApplier
	logger  *slog.Logger

	applied chan struct{}
	stopped chan struct{}
	closing atomic.Bool
	once    sync.Once
	err     error
}

// WatchResults registers a watcher for the document at path. The directory
// of path must exist.
func WatchResults(p Provider, path string, mode Mode, applier ResultApplier, logger *slog.Logger) (*ResultWatcher, error) {
	path = filepath.Clean(path)
	w, err := p.Watch(EscapePath(path), nil)
	if err != nil {
		return nil, err
	}

	r := &ResultWatcher{
		path:    path,
		mode:    mode,
		w:       w,
		applier: applier,
		logger:  logging.For(logger, "results").With("path", path),
		applied: make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go r.loop()
	return r, nil
}

// Path returns the watched document path.
func (r *ResultWatcher) Path() string {
	return r.path
}

// Applied is closed once the first document has been applied.
func (r *ResultWatcher) Applied() <-chan struct{} {
	return r.applied
}

// Done is closed when the watcher stopped, by Close or after a one-shot apply.
func (r *ResultWatcher) Done() <-chan struct{} {
	return r.stopped
}

func (r *ResultWatcher) loop() {
	defer close(r.stopped)

	first := true
	for ev := range r.w.Events() {
		if ev.Op == Delete || r.closing.Load() {
			continue
		}
		doc, err := results.DecodeFile(ev.Path)
		if err != nil {
			r.logger.Warn("Failed to decode result document", "op", ev.Op, "error", err)
			continue
		}
		r.applier.ApplyResults(doc)
		r.logger.Debug("Applied result document", "files", len(doc.Files))

		if first {
			first = false
			close(r.applied)
		}
		if r.mode == OneShot {
			r.closeWatcher()
			return
		}
	}
}

func (r *ResultWatcher) closeWatcher() {
	r.once.Do(func() {
		r.closing.Store(true)
		r.err = r.w.Close()
	})
}

// Close stops the watcher and waits until no further document can be applied.
// It is safe to call more than once but must not be called from ApplyResults.
func (r *ResultWatcher) Close() error {
	r.closeWatcher()
	<-r.stopped
	return r.err
}
