package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/specvital/lwctest/pkg/domain"
)

var errNameNeedsFile = errors.New("--name requires a test file")

// targetFor maps a command-line path to an execution target. An empty path
// selects the whole workspace.
func targetFor(workspace, arg, name string, ancestors []string) (domain.ExecutionTarget, error) {
	if arg == "" {
		if name != "" {
			return domain.ExecutionTarget{}, errNameNeedsFile
		}
		return domain.DirectoryTarget(workspace), nil
	}

	path := arg
	if !filepath.IsAbs(path) {
		path = filepath.Join(workspace, path)
	}
	path = filepath.Clean(path)

	info, err := os.Stat(path)
	if err != nil {
		return domain.ExecutionTarget{}, fmt.Errorf("target %s: %w", arg, err)
	}
	switch {
	case info.IsDir() && name != "":
		return domain.ExecutionTarget{}, errNameNeedsFile
	case info.IsDir():
		return domain.DirectoryTarget(path), nil
	case name != "":
		return domain.CaseTarget(path, name, ancestors), nil
	default:
		return domain.FileTarget(path), nil
	}
}
