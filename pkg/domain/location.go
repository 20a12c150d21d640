package domain

import "fmt"

// Position is a zero-based line/column pair.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Range is a half-open span between two positions.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Diagnostic is a failure message attached to a location in a test file.
type Diagnostic struct {
	Message  string   `json:"message"`
	Path     string   `json:"path"`
	Position Position `json:"position"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s:%d:%d: %s", d.Path, d.Position.Line+1, d.Position.Column+1, d.Message)
}
