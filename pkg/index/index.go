// Package index is the lazily populated registry of LWC test files, their
// parsed cases and the results last reported for them.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/specvital/lwctest/pkg/correlate"
	"github.com/specvital/lwctest/pkg/discovery"
	"github.com/specvital/lwctest/pkg/domain"
	"github.com/specvital/lwctest/pkg/events"
	"github.com/specvital/lwctest/pkg/logging"
	"github.com/specvital/lwctest/pkg/parser/jstest"
	"github.com/specvital/lwctest/pkg/results"
)

// MaxWorkers caps the parallelism of Warm.
const MaxWorkers = 64

const scanFlight = "scan"

// Parser turns a test source into a describe/it tree.
type Parser interface {
	Parse(ctx context.Context, path string, source []byte) (*jstest.Node, error)
}

// Scanner discovers test sources below a root.
type Scanner interface {
	Scan(ctx context.Context, root string) (*discovery.ScanResult, error)
}

// Option configures an Index.
type Option func(*Index)

// WithParser replaces the default jstest adapter.
func WithParser(p Parser) Option {
	return func(i *Index) {
		if p != nil {
			i.parser = p
		}
	}
}

// WithScanner replaces the default discovery scanner.
func WithScanner(s Scanner) Option {
	return func(i *Index) {
		if s != nil {
			i.scanner = s
		}
	}
}

// WithLogger sets the logger; the default discards.
func WithLogger(l *slog.Logger) Option {
	return func(i *Index) {
		i.logger = logging.For(l, "index")
	}
}

// WithHub publishes notifications on a shared hub.
func WithHub(h *events.Hub) Option {
	return func(i *Index) {
		if h != nil {
			i.hub = h
		}
	}
}

// WithWorkers sets the parallelism of Warm. Zero or negative uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(i *Index) {
		i.workers = n
	}
}

type entry struct {
	info    domain.TestFileInfo
	version uint64
}

// Index is safe for concurrent use. All mutations are serialised by one mutex
// and notifications are published after it is released.
type Index struct {
	root    string
	parser  Parser
	scanner Scanner
	logger  *slog.Logger
	hub     *events.Hub
	workers int

	flights singleflight.Group

	mu      sync.Mutex
	files   map[string]*entry
	scanned bool
	// seq versions entries and scans; a parse or scan that finishes after its
	// entry was invalidated, evicted or reset is discarded.
	seq     uint64
	resetAt uint64
	// evicted holds the seq of each eviction made while no scan has finished.
	evicted map[string]uint64
}

// New creates an index rooted at the workspace directory root.
func New(root string, opts ...Option) *Index {
	i := &Index{
		root:    filepath.Clean(root),
		parser:  jstest.NewAdapter(),
		scanner: discovery.NewScanner(),
		logger:  logging.Discard(),
		hub:     events.NewHub(),
		files:   make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Root returns the workspace directory.
func (i *Index) Root() string {
	return i.root
}

// Subscribe registers handler for topic.
func (i *Index) Subscribe(topic events.Topic, handler events.Handler) *events.Subscription {
	return i.hub.Subscribe(topic, handler)
}

// FindAll returns every known file sorted by path. The first call, and the
// first after Reset, scans the workspace; concurrent callers share that scan.
// Test bodies are not parsed.
func (i *Index) FindAll(ctx context.Context) ([]domain.TestFileInfo, error) {
	i.mu.Lock()
	scanned := i.scanned
	i.mu.Unlock()

	if !scanned {
		// The flight outlives any single caller.
		flightCtx := context.WithoutCancel(ctx)
		_, err, _ := i.flights.Do(scanFlight, func() (any, error) {
			return nil, i.scan(flightCtx)
		})
		if err != nil {
			return nil, err
		}
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	return i.snapshotLocked(), nil
}

func (i *Index) scan(ctx context.Context) error {
	i.mu.Lock()
	if i.scanned {
		i.mu.Unlock()
		return nil
	}
	gen := i.seq
	i.mu.Unlock()

	res, err := i.scanner.Scan(ctx, i.root)
	if err != nil {
		i.logger.Error("Scan failed", "root", i.root, "error", err)
		return fmt.Errorf("index: scan %s: %w", i.root, err)
	}
	for _, se := range res.Errors {
		i.logger.Warn("Scan error", "phase", se.Phase, "path", se.Path, "error", se.Err)
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if i.resetAt > gen {
		i.logger.Debug("Discarding scan started before reset", "root", i.root)
		return nil
	}
	for _, path := range res.Files {
		path = filepath.Clean(path)
		if i.evicted[path] > gen {
			continue
		}
		if _, ok := i.files[path]; !ok {
			i.files[path] = i.newEntryLocked(path)
		}
	}
	i.scanned = true
	i.evicted = nil
	i.logger.Debug("Scan finished", "files", len(res.Files), "duration", res.Duration)
	return nil
}

// FindCases returns the cases of path, parsing it on first access. A parse
// failure is logged and cached as an empty list; ParseError reports it.
// Concurrent callers for one path share one parse.
func (i *Index) FindCases(ctx context.Context, path string) []domain.TestCaseInfo {
	path = filepath.Clean(path)

	i.mu.Lock()
	e, ok := i.files[path]
	if !ok {
		e = i.newEntryLocked(path)
		i.files[path] = e
	}
	if e.info.Parsed() {
		cases := domain.CloneCases(e.info.TestCases)
		i.mu.Unlock()
		return cases
	}
	i.mu.Unlock()

	flightCtx := context.WithoutCancel(ctx)
	v, _, _ := i.flights.Do("parse:"+path, func() (any, error) {
		return i.parse(flightCtx, path), nil
	})
	return domain.CloneCases(v.([]domain.TestCaseInfo))
}

func (i *Index) parse(ctx context.Context, path string) []domain.TestCaseInfo {
	i.mu.Lock()
	e, ok := i.files[path]
	if ok && e.info.Parsed() {
		cases := domain.CloneCases(e.info.TestCases)
		i.mu.Unlock()
		return cases
	}
	target := e
	var version uint64
	if ok {
		version = e.version
	}
	i.mu.Unlock()

	cases := []domain.TestCaseInfo{}
	root, err := i.parser.Parse(ctx, path, nil)
	if err != nil {
		i.logger.Warn("Parse failed", "path", path, "error", err)
	} else {
		cases = jstest.TestCases(root, path)
	}

	i.mu.Lock()
	e, ok = i.files[path]
	if !ok || e != target || e.version != version {
		i.mu.Unlock()
		return cases
	}
	var report correlate.Report
	if len(e.info.RawResults) > 0 {
		report = correlate.Merge(cases, e.info.RawResults)
	}
	e.info.TestCases = cases
	e.info.ParseErr = err
	out := domain.CloneCases(cases)
	i.mu.Unlock()

	i.logAmbiguous(path, report)
	return out
}

// FileInfo returns a copy of the record for path.
func (i *Index) FileInfo(path string) (domain.TestFileInfo, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()

	e, ok := i.files[filepath.Clean(path)]
	if !ok {
		return domain.TestFileInfo{}, false
	}
	return e.info.Clone(), true
}

// ParseError returns the error of the last parse of path, if any.
func (i *Index) ParseError(path string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if e, ok := i.files[filepath.Clean(path)]; ok {
		return e.info.ParseErr
	}
	return nil
}

// ApplyResults records a result document: file statuses, diagnostics and raw
// results are stored, and parsed cases are correlated. Raw results are kept so
// a later parse merges them again. Publishes TopicResults once.
func (i *Index) ApplyResults(doc *results.Document) {
	if doc == nil {
		return
	}
	for _, skipped := range doc.Skipped {
		i.logger.Warn("Skipped result entry", "index", skipped.Index, "error", skipped.Err)
	}

	reports := make(map[string]correlate.Report)

	i.mu.Lock()
	for _, fr := range doc.Files {
		path := fr.Path()
		e, ok := i.files[path]
		if !ok {
			e = i.newEntryLocked(path)
			i.files[path] = e
		}
		e.info.LastResultStatus = domain.StatusPtr(fr.FileStatus())
		e.info.RawResults = fr.RawResults()
		e.info.Diagnostics = fr.Diagnostics()
		if e.info.Parsed() {
			reports[path] = correlate.Merge(e.info.TestCases, e.info.RawResults)
		}
	}
	i.mu.Unlock()

	for path, report := range reports {
		i.logAmbiguous(path, report)
	}
	i.logger.Debug("Applied results", "files", len(doc.Files), "skipped", len(doc.Skipped))
	i.hub.Publish(events.TopicResults)
}

// Add registers path without parsing it. Publishes TopicIndex once.
func (i *Index) Add(path string) {
	path = filepath.Clean(path)

	i.mu.Lock()
	delete(i.evicted, path)
	if _, ok := i.files[path]; !ok {
		i.files[path] = i.newEntryLocked(path)
	}
	i.mu.Unlock()

	i.hub.Publish(events.TopicIndex)
}

// Invalidate drops the cached cases of path so the next FindCases re-parses.
// The entry, its file status and its raw results stay. Publishes TopicIndex once.
func (i *Index) Invalidate(path string) {
	path = filepath.Clean(path)

	i.mu.Lock()
	if e, ok := i.files[path]; ok {
		e.info.TestCases = nil
		e.info.ParseErr = nil
		i.seq++
		e.version = i.seq
	}
	i.mu.Unlock()

	i.hub.Publish(events.TopicIndex)
}

// Evict removes path. It reappears only after a scan or Add. Publishes TopicIndex once.
func (i *Index) Evict(path string) {
	path = filepath.Clean(path)

	i.mu.Lock()
	delete(i.files, path)
	i.seq++
	if !i.scanned {
		if i.evicted == nil {
			i.evicted = make(map[string]uint64)
		}
		i.evicted[path] = i.seq
	}
	i.mu.Unlock()

	i.hub.Publish(events.TopicIndex)
}

// Reset clears the index. The next FindAll scans again. Publishes TopicIndex once.
func (i *Index) Reset() {
	i.mu.Lock()
	i.files = make(map[string]*entry)
	i.scanned = false
	i.evicted = nil
	i.seq++
	i.resetAt = i.seq
	i.mu.Unlock()

	i.hub.Publish(events.TopicIndex)
}

// WarmStats summarises a Warm call.
type WarmStats struct {
	Failed int
	Parsed int
}

// Warm parses every known file that has no cached cases, in parallel.
func (i *Index) Warm(ctx context.Context) (WarmStats, error) {
	files, err := i.FindAll(ctx)
	if err != nil {
		return WarmStats{}, err
	}

	workers := i.workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > MaxWorkers {
		workers = MaxWorkers
	}

	sem := semaphore.NewWeighted(int64(workers))
	g, gCtx := errgroup.WithContext(ctx)

	var (
		mu    sync.Mutex
		stats WarmStats
	)

	for _, f := range files {
		if f.Parsed() {
			continue
		}
		path := f.Path

		g.Go(func() error {
			if err := sem.Acquire(gCtx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			i.FindCases(gCtx, path)
			failed := i.ParseError(path) != nil

			mu.Lock()
			defer mu.Unlock()
			if failed {
				stats.Failed++
			} else {
				stats.Parsed++
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return stats, fmt.Errorf("index: warm: %w", err)
	}
	return stats, nil
}

func (i *Index) newEntryLocked(path string) *entry {
	return &entry{
		info:    domain.TestFileInfo{Path: path},
		version: i.seq,
	}
}

func (i *Index) snapshotLocked() []domain.TestFileInfo {
	out := make([]domain.TestFileInfo, 0, len(i.files))
	for _, e := range i.files {
		out = append(out, e.info.Clone())
	}
	sort.Slice(out, func(a, b int) bool {
		return out[a].Path < out[b].Path
	})
	return out
}

func (i *Index) logAmbiguous(path string, report correlate.Report) {
	for _, key := range report.Ambiguous {
		i.logger.Warn("Ambiguous result match, first result wins",
			"path", path, "name", key.Name, "ancestors", key.Ancestors)
	}
}
