package watch

import (
	"log/slog"
	"path"
	"sync"

	"github.com/specvital/lwctest/pkg/logging"
)

// IndexUpdater is the part of the test index driven by source changes.
type IndexUpdater interface {
	Add(path string)
	Invalidate(path string)
	Evict(path string)
}

// SourceWatcher keeps an index in step with test sources on disk: created
// files are registered unparsed, changed files are invalidated and deleted
// files are evicted.
type SourceWatcher struct {
	w       Watcher
	index   IndexUpdater
	logger  *slog.Logger
	stopped chan struct{}
	once    sync.Once
	err     error
}

// SourcePattern joins a workspace root and a root-relative glob into the
// absolute pattern a Provider expects. Glob characters in root match literally.
func SourcePattern(root, glob string) string {
	return path.Join(EscapePath(root), glob)
}

// WatchSources starts forwarding events for glob below root to index.
func WatchSources(p Provider, root, glob string, exclude []string, index IndexUpdater, logger *slog.Logger) (*SourceWatcher, error) {
	w, err := p.Watch(SourcePattern(root, glob), exclude)
	if err != nil {
		return nil, err
	}

	s := &SourceWatcher{
		w:       w,
		index:   index,
		logger:  logging.For(logger, "watch"),
		stopped: make(chan struct{}),
	}
	go s.loop()
	return s, nil
}

func (s *SourceWatcher) loop() {
	defer close(s.stopped)

	for ev := range s.w.Events() {
		s.logger.Debug("Test source event", "op", ev.Op, "path", ev.Path)
		switch ev.Op {
		case Create:
			s.index.Add(ev.Path)
		case Change:
			s.index.Invalidate(ev.Path)
		case Delete:
			s.index.Evict(ev.Path)
		}
	}
}

// Close stops forwarding. It is safe to call more than once.
func (s *SourceWatcher) Close() error {
	s.once.Do(func() {
		s.err = s.w.Close()
		<-s.stopped
	})
	return s.err
}
