// Package execution turns an execution target into a concrete invocation of
// the LWC Jest runner.
package execution

import (
	"fmt"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/google/uuid"

	"github.com/specvital/lwctest/pkg/domain"
)

const (
	// ResultFilePrefix starts the name of every result document.
	ResultFilePrefix = "test-result-"
	resultFileExt    = ".json"
)

// Invocation is everything needed to start one runner process.
type Invocation struct {
	Args       []string
	Dir        string
	Executable string
	// ID is unique per invocation and names the output document.
	ID         string
	Mode       domain.RunMode
	OutputPath string
	Target     domain.ExecutionTarget
}

// CommandLine renders the invocation for logs.
func (inv *Invocation) CommandLine() string {
	return strings.Join(append([]string{inv.Executable}, inv.Args...), " ")
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithResolver replaces the default LocalResolver.
func WithResolver(r ExecutableResolver) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.resolver = r
		}
	}
}

// WithIDGenerator replaces uuid.NewString.
func WithIDGenerator(fn func() string) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.newID = fn
		}
	}
}

// WithGOOS overrides the platform used for path arguments.
func WithGOOS(goos string) Option {
	return func(o *Orchestrator) {
		o.goos = goos
	}
}

// Orchestrator prepares invocations for one workspace.
type Orchestrator struct {
	workspace  string
	resultsDir string
	resolver   ExecutableResolver
	newID      func() string
	goos       string
}

// NewOrchestrator creates an orchestrator writing result documents to resultsDir.
func NewOrchestrator(workspace, resultsDir string, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		workspace:  filepath.Clean(workspace),
		resultsDir: filepath.Clean(resultsDir),
		resolver:   LocalResolver{},
		newID:      uuid.NewString,
		goos:       runtime.GOOS,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Workspace returns the workspace root passed to the runner as its cwd.
func (o *Orchestrator) Workspace() string {
	return o.workspace
}

// ResultsDir returns the directory receiving JSON result files.
func (o *Orchestrator) ResultsDir() string {
	return o.resultsDir
}

// Prepare resolves the runner and computes arguments and a fresh output path.
// When the runner is missing it fails with ErrExecutableNotFound and nothing
// else is computed.
func (o *Orchestrator) Prepare(target domain.ExecutionTarget, mode domain.RunMode) (*Invocation, error) {
	executable, err := o.resolver.Resolve(o.workspace)
	if err != nil {
		return nil, err
	}
	if err := validate(target, mode); err != nil {
		return nil, err
	}

	id := o.newID()
	output := filepath.Join(o.resultsDir, ResultFilePrefix+id+resultFileExt)

	args := append([]string{}, ModeFlags(mode)...)
	args = append(args, "--", "--json", "--outputFile", output, "--testLocationInResults")
	args = append(args, o.selectionArgs(target)...)

	return &Invocation{
		Args:       args,
		Dir:        o.workspace,
		Executable: executable,
		ID:         id,
		Mode:       mode,
		OutputPath: output,
		Target:     target,
	}, nil
}

func validate(target domain.ExecutionTarget, mode domain.RunMode) error {
	switch mode {
	case domain.ModeRun, domain.ModeDebug, domain.ModeWatch:
	default:
		return fmt.Errorf("execution: unknown mode %q", mode)
	}
	if target.Kind == domain.TargetCase && target.Name == "" {
		return fmt.Errorf("execution: case target without name: %s", target.Path)
	}
	return nil
}

// ModeFlags returns the runner flags placed before "--".
func ModeFlags(mode domain.RunMode) []string {
	switch mode {
	case domain.ModeDebug:
		return []string{"--debug"}
	case domain.ModeWatch:
		return []string{"--watch"}
	default:
		return nil
	}
}

func (o *Orchestrator) selectionArgs(target domain.ExecutionTarget) []string {
	switch target.Kind {
	case domain.TargetFile:
		return []string{"--runTestsByPath", o.pathArg(target.Path)}
	case domain.TargetCase:
		return []string{
			"--runTestsByPath", o.pathArg(target.Path),
			"--testNamePattern", EscapeRegexp(target.Name),
		}
	default:
		dir := filepath.Clean(target.Path)
		if target.Path == "" || dir == o.workspace {
			return nil
		}
		// Jest treats positional arguments as test path patterns.
		return []string{EscapeRegexp(filepath.ToSlash(dir))}
	}
}

// pathArg returns the path as the runner expects it: workspace-relative on
// Windows, absolute elsewhere.
func (o *Orchestrator) pathArg(path string) string {
	if o.goos != "windows" {
		return path
	}
	rel, err := filepath.Rel(o.workspace, path)
	if err != nil {
		return path
	}
	return rel
}

// EscapeRegexp escapes every regular expression metacharacter so the result
// matches s literally.
func EscapeRegexp(s string) string {
	return regexp.QuoteMeta(s)
}
