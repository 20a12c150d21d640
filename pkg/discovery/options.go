package discovery

import "time"

// ScanOptions configures scanner behavior.
type ScanOptions struct {
	// ExcludePatterns specifies directory names to skip during file discovery.
	// These are combined with DefaultSkipPatterns.
	ExcludePatterns []string

	// MaxFileSize is the maximum file size in bytes to report.
	// Files larger than this are skipped.
	MaxFileSize int64

	// Patterns specifies doublestar globs, relative to the scan root, that a
	// test source must match. Empty means DefaultPattern.
	Patterns []string

	// Timeout is the maximum duration for the entire scan operation.
	// Zero or negative values use DefaultTimeout.
	Timeout time.Duration
}

// ScanOption is a functional option for configuring Scanner.
type ScanOption func(*ScanOptions)

// WithExcludePatterns adds directory names to skip during file discovery.
func WithExcludePatterns(patterns []string) ScanOption {
	return func(o *ScanOptions) {
		o.ExcludePatterns = patterns
	}
}

// WithMaxFileSize sets the maximum file size to report.
// Negative values are ignored.
func WithMaxFileSize(size int64) ScanOption {
	return func(o *ScanOptions) {
		if size >= 0 {
			o.MaxFileSize = size
		}
	}
}

// WithPatterns sets the globs test sources must match.
func WithPatterns(patterns []string) ScanOption {
	return func(o *ScanOptions) {
		o.Patterns = patterns
	}
}

// WithTimeout sets the scan timeout duration.
// Negative values are ignored.
func WithTimeout(d time.Duration) ScanOption {
	return func(o *ScanOptions) {
		if d >= 0 {
			o.Timeout = d
		}
	}
}

func applyDefaults(opts *ScanOptions) {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	if len(opts.Patterns) == 0 {
		opts.Patterns = []string{DefaultPattern}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
}
