package domain

import (
	"encoding/json"
	"slices"
)

// TestFileInfo is the index record of one test source file.
type TestFileInfo struct {
	// DiscoveryLocation is where the file itself is reported; always the start of the file.
	DiscoveryLocation Range `json:"discoveryLocation"`
	// Diagnostics holds the failure messages of the last applied result document.
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
	// LastResultStatus is nil until a result document mentioned the file.
	LastResultStatus *ResultStatus `json:"lastResultStatus,omitempty"`
	// ParseErr is set when the last parse failed; TestCases is then empty, not nil.
	ParseErr error `json:"-"`
	// Path is the absolute file path.
	Path string `json:"path"`
	// RawResults are the assertion results of the last applied run, kept so they
	// can be merged again after a re-parse.
	RawResults []RawTestResult `json:"rawResults,omitempty"`
	// TestCases is nil until the file has been parsed.
	TestCases []TestCaseInfo `json:"testCases,omitempty"`
}

// Parsed reports whether the file's test cases are cached.
func (f *TestFileInfo) Parsed() bool {
	return f.TestCases != nil
}

// Clone returns a deep copy that callers may keep without holding index locks.
func (f *TestFileInfo) Clone() TestFileInfo {
	c := *f
	if f.LastResultStatus != nil {
		c.LastResultStatus = StatusPtr(*f.LastResultStatus)
	}
	c.Diagnostics = slices.Clone(f.Diagnostics)
	c.RawResults = slices.Clone(f.RawResults)
	if f.TestCases != nil {
		c.TestCases = CloneCases(f.TestCases)
	}
	return c
}

// TestCaseInfo is one test case of a parsed file.
type TestCaseInfo struct {
	// AncestorTitles lists the enclosing group names, outermost first.
	// Nil means the chain is unknown and matching falls back to the name only.
	AncestorTitles []string `json:"ancestorTitles"`
	// LastResultStatus is nil until a result matched the case.
	LastResultStatus *ResultStatus `json:"lastResultStatus,omitempty"`
	// Name is the title passed to it()/test().
	Name string `json:"name"`
	// Path is the file that declares the case.
	Path string `json:"path"`
	// SourceRange is the range of the case title; it shifts across edits.
	SourceRange Range `json:"sourceRange"`
}

// Key returns the identity of the case.
func (c TestCaseInfo) Key() CaseKey {
	return NewCaseKey(c.Name, c.AncestorTitles)
}

// Status returns the last status or ResultUnknown.
func (c TestCaseInfo) Status() ResultStatus {
	if c.LastResultStatus == nil {
		return ResultUnknown
	}
	return *c.LastResultStatus
}

// CloneCases deep-copies a case list.
func CloneCases(cases []TestCaseInfo) []TestCaseInfo {
	out := make([]TestCaseInfo, len(cases))
	for i, c := range cases {
		out[i] = c
		out[i].AncestorTitles = slices.Clone(c.AncestorTitles)
		if c.LastResultStatus != nil {
			out[i].LastResultStatus = StatusPtr(*c.LastResultStatus)
		}
	}
	return out
}

// RawTestResult is one assertion result decoded from a result document.
type RawTestResult struct {
	AncestorTitles []string     `json:"ancestorTitles"`
	FailureMessage string       `json:"failureMessage,omitempty"`
	Status         ResultStatus `json:"status"`
	Title          string       `json:"title"`
}

// Key returns the identity the result claims.
func (r RawTestResult) Key() CaseKey {
	return NewCaseKey(r.Title, r.AncestorTitles)
}

// CaseKey is the comparable identity of a test case: its name and the canonical
// serialization of its ancestor chain.
type CaseKey struct {
	Ancestors string
	Name      string
}

// NewCaseKey builds a key. The ancestor chain is serialized as a JSON array so that
// ["a b"] and ["a", "b"] stay distinct.
func NewCaseKey(name string, ancestors []string) CaseKey {
	return CaseKey{Name: name, Ancestors: CanonicalAncestors(ancestors)}
}

// CanonicalAncestors serializes an ancestor chain for ordered comparison.
// A nil chain serializes to "null", an empty one to "[]".
func CanonicalAncestors(ancestors []string) string {
	b, err := json.Marshal(ancestors)
	if err != nil {
		return ""
	}
	return string(b)
}
