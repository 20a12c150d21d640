// Package watch bridges filesystem notifications to the test index and to
// per-run result documents.
package watch

import (
	"errors"
	"path/filepath"
	"strings"
)

// ErrInvalidPattern is returned for a glob doublestar cannot parse.
var ErrInvalidPattern = errors.New("watch: invalid pattern")

// Op is the kind of change an Event reports.
type Op int

const (
	Create Op = iota
	Change
	Delete
)

func (o Op) String() string {
	switch o {
	case Create:
		return "create"
	case Change:
		return "change"
	case Delete:
		return "delete"
	default:
		return "unknown"
	}
}

// Event is one change to a file matching a watcher's pattern.
type Event struct {
	Op   Op
	Path string
}

// Watcher delivers events until closed. Events is closed after Close returns.
type Watcher interface {
	Events() <-chan Event
	Close() error
}

// Provider creates watchers for an absolute, slash-separated doublestar
// pattern. Directories named in exclude are never descended into.
type Provider interface {
	Watch(pattern string, exclude []string) (Watcher, error)
}

const globMeta = `*?[]{}\`

// EscapePath turns a filesystem path into a slash-separated pattern that
// matches only that path.
func EscapePath(p string) string {
	p = filepath.ToSlash(p)
	if !strings.ContainsAny(p, globMeta) {
		return p
	}
	var b strings.Builder
	for _, r := range p {
		if strings.ContainsRune(globMeta, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// unescapePath reverses EscapePath on the static base of a pattern.
func unescapePath(p string) string {
	if !strings.Contains(p, `\`) {
		return p
	}
	var b strings.Builder
	escaped := false
	for _, r := range p {
		if r == '\\' && !escaped {
			escaped = true
			continue
		}
		escaped = false
		b.WriteRune(r)
	}
	return b.String()
}
