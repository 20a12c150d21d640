package jstest

import (
	"testing"
)

func TestUnquoteString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "should unquote double quotes",
			input: `"hello"`,
			want:  "hello",
		},
		{
			name:  "should unquote single quotes",
			input: `'hello'`,
			want:  "hello",
		},
		{
			name:  "should unquote backticks",
			input: "`hello`",
			want:  "hello",
		},
		{
			name:  "should return short string as-is",
			input: "a",
			want:  "a",
		},
		{
			name:  "should handle mismatched quotes",
			input: `"hello'`,
			want:  `"hello'`,
		},
		{
			name:  "should handle escaped single quotes",
			input: `'it\'s working'`,
			want:  "it's working",
		},
		{
			name:  "should keep double quotes inside single quoted string",
			input: `'say "hi"'`,
			want:  `say "hi"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := UnquoteString(tt.input); got != tt.want {
				t.Errorf("UnquoteString(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatEachName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		template string
		data     string
		index    int
		want     string
	}{
		{
			name:     "should substitute positional placeholders",
			template: "adds %i + %i",
			data:     "1, 2",
			want:     "adds 1 + 2",
		},
		{
			name:     "should keep literal percent",
			template: "100%% of %s",
			data:     "cases",
			want:     "100% of cases",
		},
		{
			name:     "should substitute row index",
			template: "row %# is %s",
			data:     "a",
			index:    3,
			want:     "row 3 is a",
		},
		{
			name:     "should leave unmatched placeholders",
			template: "%s and %s",
			data:     "one",
			want:     "one and %s",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := FormatEachName(tt.template, tt.data, tt.index); got != tt.want {
				t.Errorf("FormatEachName(%q, %q) = %q, want %q", tt.template, tt.data, got, tt.want)
			}
		})
	}
}

func TestDetectLanguage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		filename string
		want     string
	}{
		{"foo.test.js", "javascript"},
		{"foo.test.jsx", "javascript"},
		{"foo.test.ts", "typescript"},
		{"foo.test.tsx", "tsx"},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			t.Parallel()

			if got := DetectLanguage(tt.filename); string(got) != tt.want {
				t.Errorf("DetectLanguage(%q) = %q, want %q", tt.filename, got, tt.want)
			}
		})
	}
}
