// Package correlate merges decoded assertion results into parsed test cases.
//
// Titles are not unique within a file, so a case is matched on its title and,
// when the parser recorded one, on the exact ordered ancestor chain. When several
// results match one case the first in declaration order wins; the collision is
// reported so callers can surface it.
package correlate

import (
	"github.com/specvital/lwctest/pkg/domain"
)

// Report summarises one merge.
type Report struct {
	// Ambiguous lists cases matched by more than one result.
	Ambiguous []domain.CaseKey
	// Matched counts cases that received a status.
	Matched int
	// Unmatched lists cases no result matched; they kept their previous status.
	Unmatched []domain.CaseKey
}

// Merge assigns each case the status of its matching raw result. cases is
// modified in place; raws is only read.
func Merge(cases []domain.TestCaseInfo, raws []domain.RawTestResult) Report {
	var report Report

	byTitle := make(map[string][]domain.RawTestResult, len(raws))
	for _, raw := range raws {
		byTitle[raw.Title] = append(byTitle[raw.Title], raw)
	}

	for i := range cases {
		tc := &cases[i]
		matches := match(tc, byTitle[tc.Name])

		switch {
		case len(matches) == 0:
			report.Unmatched = append(report.Unmatched, tc.Key())
			continue
		case len(matches) > 1:
			report.Ambiguous = append(report.Ambiguous, tc.Key())
		}

		tc.LastResultStatus = domain.StatusPtr(matches[0].Status)
		report.Matched++
	}

	return report
}

func match(tc *domain.TestCaseInfo, candidates []domain.RawTestResult) []domain.RawTestResult {
	if tc.AncestorTitles == nil {
		return candidates
	}

	want := domain.CanonicalAncestors(tc.AncestorTitles)
	var matched []domain.RawTestResult
	for _, raw := range candidates {
		if domain.CanonicalAncestors(normalize(raw.AncestorTitles)) == want {
			matched = append(matched, raw)
		}
	}
	return matched
}

// normalize treats a missing chain in a result as top-level.
func normalize(ancestors []string) []string {
	if ancestors == nil {
		return []string{}
	}
	return ancestors
}
