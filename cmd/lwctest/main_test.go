package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specvital/lwctest/pkg/domain"
)

func TestTargetFor(t *testing.T) {
	t.Parallel()

	ws := t.TempDir()
	dir := filepath.Join(ws, "lwc", "foo")
	file := filepath.Join(dir, "foo.test.js")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(file, []byte("it('a', () => {});"), 0o644))

	tests := []struct {
		name     string
		arg      string
		caseName string
		want     domain.ExecutionTarget
		wantErr  bool
	}{
		{name: "workspace", arg: "", want: domain.DirectoryTarget(ws)},
		{name: "relative directory", arg: "lwc/foo", want: domain.DirectoryTarget(dir)},
		{name: "absolute file", arg: file, want: domain.FileTarget(file)},
		{name: "case", arg: "lwc/foo/foo.test.js", caseName: "a", want: domain.CaseTarget(file, "a", []string{"Foo"})},
		{name: "case in directory", arg: "lwc/foo", caseName: "a", wantErr: true},
		{name: "case without file", caseName: "a", wantErr: true},
		{name: "missing path", arg: "lwc/bar", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := targetFor(ws, tt.arg, tt.caseName, []string{"Foo"})

			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWithin(t *testing.T) {
	t.Parallel()

	assert.True(t, within("", "/ws/a.test.js"))
	assert.True(t, within("/ws", "/ws/lwc/a.test.js"))
	assert.True(t, within("/ws/lwc/a.test.js", "/ws/lwc/a.test.js"))
	assert.False(t, within("/ws/lwc", "/ws/other/a.test.js"))
	assert.False(t, within("/ws/lwc", "/ws/lwc2/a.test.js"))
}

func TestPrintFile(t *testing.T) {
	disableColor()

	// Given
	passed := domain.StatusPtr(domain.ResultPassed)
	failed := domain.StatusPtr(domain.ResultFailed)
	f := domain.TestFileInfo{
		Path:             "/ws/lwc/foo/foo.test.js",
		LastResultStatus: failed,
		TestCases: []domain.TestCaseInfo{
			{Name: "renders", AncestorTitles: []string{"c-foo"}, LastResultStatus: passed},
			{Name: "clicks", AncestorTitles: []string{"c-foo"}, LastResultStatus: failed},
			{Name: "later"},
		},
		Diagnostics: []domain.Diagnostic{{Message: "expected 1\nreceived 2", Position: domain.Position{Line: 9, Column: 4}}},
	}
	var out bytes.Buffer
	var tl tally

	// When
	printFile(&out, "/ws", f, &tl)

	// Then
	want := "✗ lwc/foo/foo.test.js\n" +
		"    ✓ c-foo › renders\n" +
		"    ✗ c-foo › clicks\n" +
		"    · later\n" +
		"      10:5 expected 1\n"
	assert.Equal(t, want, out.String())
	assert.Equal(t, tally{failed: 1, passed: 1, unknown: 1}, tl)
	assert.Equal(t, "1 passed, 1 failed, 0 skipped, 1 not run", tl.String())
}

func TestRootCmd_Commands(t *testing.T) {
	t.Parallel()

	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}

	assert.ElementsMatch(t, []string{"list", "run", "debug", "watch"}, names)
}
