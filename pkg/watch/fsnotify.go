package watch

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/specvital/lwctest/pkg/logging"
)

const eventBuffer = 64

// FSProvider watches the local filesystem with fsnotify. Every directory below
// the pattern's static base is watched, including directories created later.
type FSProvider struct {
	logger *slog.Logger
}

// NewFSProvider creates a provider logging through logger.
func NewFSProvider(logger *slog.Logger) *FSProvider {
	return &FSProvider{logger: logging.For(logger, "watch")}
}

// Watch starts watching pattern. The static base directory must exist.
// Backslashes in pattern are escapes; use EscapePath for literal paths.
func (p *FSProvider) Watch(pattern string, exclude []string) (Watcher, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPattern, pattern)
	}
	base, _ := doublestar.SplitPattern(pattern)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create watcher: %w", err)
	}

	skip := make(map[string]bool, len(exclude))
	for _, name := range exclude {
		skip[name] = true
	}

	w := &fsWatcher{
		fw:      fw,
		pattern: pattern,
		skip:    skip,
		events:  make(chan Event, eventBuffer),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		logger:  p.logger.With("pattern", pattern),
	}
	if err := w.addTree(filepath.FromSlash(unescapePath(base)), false); err != nil {
		_ = fw.Close()
		return nil, err
	}

	go w.loop()
	return w, nil
}

type fsWatcher struct {
	fw      *fsnotify.Watcher
	pattern string
	skip    map[string]bool
	events  chan Event
	done    chan struct{}
	stopped chan struct{}
	logger  *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

func (w *fsWatcher) Events() <-chan Event {
	return w.events
}

// Close stops the watcher. It is safe to call more than once.
func (w *fsWatcher) Close() error {
	w.closeOnce.Do(func() {
		close(w.done)
		w.closeErr = w.fw.Close()
		<-w.stopped
		close(w.events)
	})
	return w.closeErr
}

func (w *fsWatcher) loop() {
	defer close(w.stopped)

	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Watch error", "error", err)
		}
	}
}

func (w *fsWatcher) handle(ev fsnotify.Event) {
	switch {
	case ev.Has(fsnotify.Create):
		info, err := os.Stat(ev.Name)
		if err == nil && info.IsDir() {
			if w.skip[filepath.Base(ev.Name)] {
				return
			}
			// Files may land in a new directory before it is watched.
			if err := w.addTree(ev.Name, true); err != nil {
				w.logger.Warn("Failed to watch new directory", "path", ev.Name, "error", err)
			}
			return
		}
		w.emit(Create, ev.Name)
	case ev.Has(fsnotify.Write):
		w.emit(Change, ev.Name)
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		w.emit(Delete, ev.Name)
	}
}

func (w *fsWatcher) emit(op Op, path string) {
	matched, err := doublestar.Match(w.pattern, filepath.ToSlash(path))
	if err != nil || !matched {
		return
	}
	select {
	case w.events <- Event{Op: op, Path: filepath.Clean(path)}:
	case <-w.done:
	}
}

// addTree watches root and every non-excluded directory below it. With
// announce set, files already present are reported as created.
func (w *fsWatcher) addTree(root string, announce bool) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == root {
				return fmt.Errorf("watch: %s: %w", root, walkErr)
			}
			return nil
		}
		if !d.IsDir() {
			if announce {
				w.emit(Create, path)
			}
			return nil
		}
		if path != root && w.skip[d.Name()] {
			return filepath.SkipDir
		}
		if err := w.fw.Add(path); err != nil {
			return fmt.Errorf("watch: add %s: %w", path, err)
		}
		return nil
	})
}
