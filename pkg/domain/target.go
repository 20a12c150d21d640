package domain

import "fmt"

// TargetKind discriminates ExecutionTarget.
type TargetKind int

const (
	TargetDirectory TargetKind = iota
	TargetFile
	TargetCase
)

func (k TargetKind) String() string {
	switch k {
	case TargetDirectory:
		return "directory"
	case TargetFile:
		return "file"
	case TargetCase:
		return "case"
	default:
		return "unknown"
	}
}

// ExecutionTarget selects what a run covers.
type ExecutionTarget struct {
	AncestorTitles []string
	Kind           TargetKind
	// Name is only set for TargetCase.
	Name string
	Path string
}

// CaseTarget selects a single test case.
func CaseTarget(path, name string, ancestors []string) ExecutionTarget {
	return ExecutionTarget{Kind: TargetCase, Path: path, Name: name, AncestorTitles: ancestors}
}

// FileTarget selects every case of one file.
func FileTarget(path string) ExecutionTarget {
	return ExecutionTarget{Kind: TargetFile, Path: path}
}

// DirectoryTarget selects every test below a directory.
func DirectoryTarget(path string) ExecutionTarget {
	return ExecutionTarget{Kind: TargetDirectory, Path: path}
}

func (t ExecutionTarget) String() string {
	if t.Kind == TargetCase {
		return fmt.Sprintf("%s %s#%s", t.Kind, t.Path, t.Name)
	}
	return fmt.Sprintf("%s %s", t.Kind, t.Path)
}

// RunMode selects how the external runner is invoked.
type RunMode string

const (
	ModeRun   RunMode = "run"
	ModeDebug RunMode = "debug"
	ModeWatch RunMode = "watch"
)
