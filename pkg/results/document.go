// Package results decodes the JSON result documents written by the test runner
// (jest --json --outputFile --testLocationInResults).
package results

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/specvital/lwctest/pkg/domain"
)

// ErrDecode is returned when a result document cannot be decoded at all.
var ErrDecode = errors.New("results: decode failed")

// Document is a decoded result document. File entries that could not be decoded
// are listed in Skipped instead of failing the whole document.
type Document struct {
	Files   []FileResult
	Skipped []SkipError
}

// SkipError describes one file entry dropped during decoding.
type SkipError struct {
	Err   error
	Index int
}

func (e SkipError) Error() string {
	return fmt.Sprintf("testResults[%d]: %v", e.Index, e.Err)
}

func (e SkipError) Unwrap() error {
	return e.Err
}

// FileResult is the outcome of one test file.
type FileResult struct {
	AssertionResults []AssertionResult `json:"assertionResults"`
	Message          string            `json:"message"`
	Name             string            `json:"name"`
	Status           string            `json:"status"`
}

// AssertionResult is the outcome of one test case.
type AssertionResult struct {
	AncestorTitles  []string  `json:"ancestorTitles"`
	FailureMessages []string  `json:"failureMessages"`
	FullName        string    `json:"fullName"`
	Location        *Location `json:"location"`
	Status          string    `json:"status"`
	Title           string    `json:"title"`
}

// Location is the one-based position Jest records with --testLocationInResults.
type Location struct {
	Column int `json:"column"`
	Line   int `json:"line"`
}

type rawDocument struct {
	TestResults []json.RawMessage `json:"testResults"`
}

type rawFileResult struct {
	AssertionResults *[]AssertionResult `json:"assertionResults"`
	Message          string             `json:"message"`
	Name             *string            `json:"name"`
	Status           string             `json:"status"`
}

// Decode reads a result document. Unknown fields are ignored. A file entry that is
// malformed or lacks its name or assertion results is skipped individually.
func Decode(r io.Reader) (*Document, error) {
	var raw rawDocument
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if raw.TestResults == nil {
		return nil, fmt.Errorf("%w: missing testResults", ErrDecode)
	}

	doc := &Document{Files: make([]FileResult, 0, len(raw.TestResults))}
	for i, msg := range raw.TestResults {
		file, err := decodeFile(msg)
		if err != nil {
			doc.Skipped = append(doc.Skipped, SkipError{Index: i, Err: err})
			continue
		}
		doc.Files = append(doc.Files, file)
	}

	return doc, nil
}

// DecodeFile reads and decodes the result document at path.
func DecodeFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	defer func() { _ = f.Close() }()

	return Decode(f)
}

func decodeFile(msg json.RawMessage) (FileResult, error) {
	var raw rawFileResult
	if err := json.Unmarshal(msg, &raw); err != nil {
		return FileResult{}, err
	}
	if raw.Name == nil || *raw.Name == "" {
		return FileResult{}, errors.New("missing name")
	}
	if raw.AssertionResults == nil {
		return FileResult{}, errors.New("missing assertionResults")
	}

	return FileResult{
		AssertionResults: *raw.AssertionResults,
		Message:          raw.Message,
		Name:             *raw.Name,
		Status:           raw.Status,
	}, nil
}

// Path returns the cleaned absolute path of the file.
func (f FileResult) Path() string {
	return filepath.Clean(f.Name)
}

// FileStatus maps the file-level status.
func (f FileResult) FileStatus() domain.ResultStatus {
	return domain.ParseFileStatus(f.Status)
}

// RawResults converts the assertion results into correlator input, in document order.
func (f FileResult) RawResults() []domain.RawTestResult {
	out := make([]domain.RawTestResult, 0, len(f.AssertionResults))
	for _, a := range f.AssertionResults {
		raw := domain.RawTestResult{
			Title:          a.Title,
			AncestorTitles: a.AncestorTitles,
			Status:         domain.ParseAssertionStatus(a.Status),
		}
		if raw.AncestorTitles == nil {
			raw.AncestorTitles = []string{}
		}
		if len(a.FailureMessages) > 0 {
			raw.FailureMessage = SanitizeFailureMessage(a.FailureMessages[0])
		}
		out = append(out, raw)
	}
	return out
}
