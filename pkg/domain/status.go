package domain

// ResultStatus is the outcome of the last run that covered a test file or case.
type ResultStatus string

const (
	ResultPassed  ResultStatus = "passed"
	ResultFailed  ResultStatus = "failed"
	ResultSkipped ResultStatus = "skipped"
	// ResultUnknown is used when a run reported a status the engine does not model,
	// or when nothing has been reported yet.
	ResultUnknown ResultStatus = "unknown"
)

// ParseFileStatus maps a file-level status string of the result document.
// Jest only reports "passed" or "failed" for files; anything else is unknown.
func ParseFileStatus(s string) ResultStatus {
	switch s {
	case "passed":
		return ResultPassed
	case "failed":
		return ResultFailed
	default:
		return ResultUnknown
	}
}

// ParseAssertionStatus maps an assertion-level status string.
// Pending, todo and disabled assertions are all reported as skipped.
func ParseAssertionStatus(s string) ResultStatus {
	switch s {
	case "passed":
		return ResultPassed
	case "failed":
		return ResultFailed
	default:
		return ResultSkipped
	}
}

// StatusPtr returns a pointer to a copy of s.
func StatusPtr(s ResultStatus) *ResultStatus {
	return &s
}
