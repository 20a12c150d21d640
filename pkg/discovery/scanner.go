// Package discovery finds LWC Jest test sources below a workspace root.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

const (
	// DefaultPattern matches Jest tests living in an lwc bundle directory.
	DefaultPattern = "**/lwc/**/*.test.js"
	// DefaultTimeout is the default scan timeout duration.
	DefaultTimeout = 5 * time.Minute
	// DefaultMaxFileSize is the default maximum file size for scanning (10MB).
	DefaultMaxFileSize = 10 * 1024 * 1024
)

// DefaultSkipPatterns contains directory names that are skipped by default during scanning.
var DefaultSkipPatterns = []string{
	"node_modules",
	".git",
	".sfdx",
	".sf",
	"dist",
	"coverage",
	".cache",
}

var (
	// ErrScanCancelled is returned when scanning is cancelled via context.
	ErrScanCancelled = errors.New("discovery: scan cancelled")
	// ErrScanTimeout is returned when scanning exceeds the timeout duration.
	ErrScanTimeout = errors.New("discovery: scan timeout")
)

// Scanner walks a workspace and reports test sources matching its patterns.
type Scanner struct {
	options *ScanOptions
}

// ScanResult contains the outcome of a scan operation.
type ScanResult struct {
	// Files holds absolute, cleaned paths sorted lexically.
	Files []string

	// Errors contains non-fatal errors encountered during scanning.
	Errors []ScanError

	Duration time.Duration
}

// ScanError represents an error that occurred during a specific phase of scanning.
type ScanError struct {
	Err error

	// Path is the file path where the error occurred (may be empty for non-file errors).
	Path string

	// Phase indicates which phase the error occurred in.
	// Values: "discovery", "stat"
	Phase string
}

// Error implements the error interface.
func (e ScanError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("[%s] %v", e.Phase, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Phase, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e ScanError) Unwrap() error {
	return e.Err
}

// NewScanner creates a new scanner with the given options.
func NewScanner(opts ...ScanOption) *Scanner {
	options := &ScanOptions{}
	for _, opt := range opts {
		opt(options)
	}
	applyDefaults(options)

	return &Scanner{options: options}
}

// Matches reports whether path, absolute or relative to root, is a test source
// under the scanner's patterns. Skipped directories are honoured.
func (s *Scanner) Matches(root, path string) bool {
	if filepath.IsAbs(path) {
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return false
		}
		path = rel
	}
	skipSet := buildSkipSet(append(append([]string{}, DefaultSkipPatterns...), s.options.ExcludePatterns...))
	for _, part := range splitDirs(path) {
		if skipSet[part] {
			return false
		}
	}
	return matchesAnyPattern(filepath.ToSlash(path), s.options.Patterns)
}

// Scan walks root and returns every matching test source.
func (s *Scanner) Scan(ctx context.Context, root string) (*ScanResult, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, s.options.Timeout)
	defer cancel()

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("discovery: resolve root %s: %w", root, err)
	}

	files, errs := s.discoverTestFiles(ctx, absRoot)

	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return nil, ErrScanTimeout
		}
		return nil, ErrScanCancelled
	}

	sort.Strings(files)

	return &ScanResult{
		Files:    files,
		Errors:   errs,
		Duration: time.Since(start),
	}, nil
}

func (s *Scanner) discoverTestFiles(ctx context.Context, rootPath string) ([]string, []ScanError) {
	skipSet := buildSkipSet(append(append([]string{}, DefaultSkipPatterns...), s.options.ExcludePatterns...))

	var (
		files []string
		errs  []ScanError
	)

	err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, walkErr error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if walkErr != nil {
			errs = append(errs, ScanError{Err: walkErr, Path: path, Phase: "discovery"})
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if shouldSkipDir(path, rootPath, skipSet) {
				return filepath.SkipDir
			}
			return nil
		}

		relPath, err := filepath.Rel(rootPath, path)
		if err != nil {
			errs = append(errs, ScanError{Err: err, Path: path, Phase: "discovery"})
			return nil
		}

		if !matchesAnyPattern(filepath.ToSlash(relPath), s.options.Patterns) {
			return nil
		}

		if s.options.MaxFileSize > 0 {
			info, err := d.Info()
			if err != nil {
				errs = append(errs, ScanError{Err: err, Path: path, Phase: "stat"})
				return nil
			}
			if info.Size() > s.options.MaxFileSize {
				return nil
			}
		}

		files = append(files, filepath.Clean(path))
		return nil
	})

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		errs = append(errs, ScanError{Err: err, Phase: "discovery"})
	}

	return files, errs
}

func buildSkipSet(patterns []string) map[string]bool {
	skipSet := make(map[string]bool, len(patterns))
	for _, p := range patterns {
		skipSet[p] = true
	}
	return skipSet
}

func shouldSkipDir(path, rootPath string, skipSet map[string]bool) bool {
	if path == rootPath {
		return false
	}

	base := filepath.Base(path)
	return skipSet[base]
}

func splitDirs(relPath string) []string {
	dir := filepath.Dir(filepath.Clean(relPath))
	if dir == "." {
		return nil
	}
	var parts []string
	for dir != "." && dir != string(filepath.Separator) && dir != "" {
		parts = append(parts, filepath.Base(dir))
		next := filepath.Dir(dir)
		if next == dir {
			break
		}
		dir = next
	}
	return parts
}

func matchesAnyPattern(relPath string, patterns []string) bool {
	for _, pattern := range patterns {
		matched, err := doublestar.Match(pattern, relPath)
		if err != nil {
			continue
		}
		if matched {
			return true
		}
	}
	return false
}

// Scan is a convenience wrapper around NewScanner(opts...).Scan.
func Scan(ctx context.Context, root string, opts ...ScanOption) (*ScanResult, error) {
	return NewScanner(opts...).Scan(ctx, root)
}
