package execution

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// ErrExecutableNotFound is returned when the test runner cannot be located.
var ErrExecutableNotFound = errors.New("execution: sfdx-lwc-jest executable not found")

// ExecutableName is the runner installed by @salesforce/sfdx-lwc-jest.
const ExecutableName = "sfdx-lwc-jest"

// ExecutableResolver locates the runner for a workspace.
type ExecutableResolver interface {
	Resolve(workspace string) (string, error)
}

// LocalResolver looks for the runner in the workspace's node_modules/.bin,
// or at Override when set.
type LocalResolver struct {
	Override string
	// GOOS defaults to runtime.GOOS; on windows the .cmd shim is used.
	GOOS string
}

// Resolve returns the absolute runner path or an error wrapping ErrExecutableNotFound.
func (r LocalResolver) Resolve(workspace string) (string, error) {
	candidate := r.Override
	if candidate == "" {
		candidate = DefaultExecutablePath(workspace, r.goos())
	}

	info, err := os.Stat(candidate)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrExecutableNotFound, candidate, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrExecutableNotFound, candidate)
	}
	return candidate, nil
}

func (r LocalResolver) goos() string {
	if r.GOOS != "" {
		return r.GOOS
	}
	return runtime.GOOS
}

// DefaultExecutablePath is where npm installs the runner shim.
func DefaultExecutablePath(workspace, goos string) string {
	name := ExecutableName
	if goos == "windows" {
		name += ".cmd"
	}
	return filepath.Join(workspace, "node_modules", ".bin", name)
}
