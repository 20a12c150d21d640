package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/fatih/color"

	"github.com/specvital/lwctest/pkg/domain"
)

var (
	passColor = color.New(color.FgGreen)
	failColor = color.New(color.FgRed, color.Bold)
	skipColor = color.New(color.FgYellow)
	dimColor  = color.New(color.Faint)
)

func disableColor() {
	color.NoColor = true
}

func statusLabel(s *domain.ResultStatus) string {
	if s == nil {
		return dimColor.Sprint("·")
	}
	switch *s {
	case domain.ResultPassed:
		return passColor.Sprint("✓")
	case domain.ResultFailed:
		return failColor.Sprint("✗")
	case domain.ResultSkipped:
		return skipColor.Sprint("○")
	default:
		return dimColor.Sprint("?")
	}
}

func relPath(workspace, path string) string {
	rel, err := filepath.Rel(workspace, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return filepath.ToSlash(rel)
}

// within reports whether path is dir or lies below it.
func within(dir, path string) bool {
	if dir == "" {
		return true
	}
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func caseTitle(c domain.TestCaseInfo) string {
	if len(c.AncestorTitles) == 0 {
		return c.Name
	}
	return strings.Join(c.AncestorTitles, " › ") + " › " + c.Name
}

// tally counts case outcomes.
type tally struct {
	failed  int
	passed  int
	skipped int
	unknown int
}

func (t *tally) add(s *domain.ResultStatus) {
	switch {
	case s == nil:
		t.unknown++
	case *s == domain.ResultPassed:
		t.passed++
	case *s == domain.ResultFailed:
		t.failed++
	case *s == domain.ResultSkipped:
		t.skipped++
	default:
		t.unknown++
	}
}

func (t tally) String() string {
	parts := []string{
		passColor.Sprintf("%d passed", t.passed),
		failColor.Sprintf("%d failed", t.failed),
		skipColor.Sprintf("%d skipped", t.skipped),
	}
	if t.unknown > 0 {
		parts = append(parts, dimColor.Sprintf("%d not run", t.unknown))
	}
	return strings.Join(parts, ", ")
}

// printFile writes a file line, its cases when known, and its diagnostics.
func printFile(w io.Writer, workspace string, f domain.TestFileInfo, t *tally) {
	fmt.Fprintf(w, "%s %s\n", statusLabel(f.LastResultStatus), relPath(workspace, f.Path))
	if f.ParseErr != nil {
		fmt.Fprintf(w, "    %s\n", failColor.Sprintf("parse error: %v", f.ParseErr))
	}
	for _, c := range f.TestCases {
		fmt.Fprintf(w, "    %s %s\n", statusLabel(c.LastResultStatus), caseTitle(c))
		if t != nil {
			t.add(c.LastResultStatus)
		}
	}
	for _, d := range f.Diagnostics {
		fmt.Fprintf(w, "      %s\n", dimColor.Sprintf("%d:%d %s", d.Position.Line+1, d.Position.Column+1, firstLine(d.Message)))
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
