package correlate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specvital/lwctest/pkg/domain"
)

func status(tc domain.TestCaseInfo) domain.ResultStatus {
	return tc.Status()
}

func TestMerge_DisambiguatesByAncestors(t *testing.T) {
	t.Parallel()

	// Given
	cases := []domain.TestCaseInfo{
		{Name: "works", AncestorTitles: []string{"A"}},
		{Name: "works", AncestorTitles: []string{"B"}},
	}
	raws := []domain.RawTestResult{
		{Title: "works", AncestorTitles: []string{"A"}, Status: domain.ResultPassed},
		{Title: "works", AncestorTitles: []string{"B"}, Status: domain.ResultFailed},
	}

	// When
	report := Merge(cases, raws)

	// Then
	assert.Equal(t, domain.ResultPassed, status(cases[0]))
	assert.Equal(t, domain.ResultFailed, status(cases[1]))
	assert.Equal(t, 2, report.Matched)
	assert.Empty(t, report.Ambiguous)
	assert.Empty(t, report.Unmatched)
}

func TestMerge_ResultOrderDoesNotCrossAssign(t *testing.T) {
	t.Parallel()

	cases := []domain.TestCaseInfo{
		{Name: "works", AncestorTitles: []string{"A"}},
		{Name: "works", AncestorTitles: []string{"B"}},
	}
	raws := []domain.RawTestResult{
		{Title: "works", AncestorTitles: []string{"B"}, Status: domain.ResultFailed},
		{Title: "works", AncestorTitles: []string{"A"}, Status: domain.ResultPassed},
	}

	Merge(cases, raws)

	assert.Equal(t, domain.ResultPassed, status(cases[0]))
	assert.Equal(t, domain.ResultFailed, status(cases[1]))
}

func TestMerge_AncestorOrderMatters(t *testing.T) {
	t.Parallel()

	cases := []domain.TestCaseInfo{{Name: "x", AncestorTitles: []string{"A", "B"}}}
	raws := []domain.RawTestResult{{Title: "x", AncestorTitles: []string{"B", "A"}, Status: domain.ResultPassed}}

	report := Merge(cases, raws)

	assert.Nil(t, cases[0].LastResultStatus)
	assert.Equal(t, 0, report.Matched)
	require.Len(t, report.Unmatched, 1)
}

func TestMerge_JoinedTitlesStayDistinct(t *testing.T) {
	t.Parallel()

	cases := []domain.TestCaseInfo{{Name: "x", AncestorTitles: []string{"a b"}}}
	raws := []domain.RawTestResult{{Title: "x", AncestorTitles: []string{"a", "b"}, Status: domain.ResultPassed}}

	Merge(cases, raws)

	assert.Nil(t, cases[0].LastResultStatus)
}

func TestMerge_NameOnlyWithoutAncestors(t *testing.T) {
	t.Parallel()

	cases := []domain.TestCaseInfo{{Name: "solo"}}
	raws := []domain.RawTestResult{{Title: "solo", AncestorTitles: []string{"Anything"}, Status: domain.ResultSkipped}}

	Merge(cases, raws)

	assert.Equal(t, domain.ResultSkipped, status(cases[0]))
}

func TestMerge_TopLevelCase(t *testing.T) {
	t.Parallel()

	cases := []domain.TestCaseInfo{{Name: "top", AncestorTitles: []string{}}}
	raws := []domain.RawTestResult{{Title: "top", Status: domain.ResultPassed}}

	Merge(cases, raws)

	assert.Equal(t, domain.ResultPassed, status(cases[0]))
}

func TestMerge_FirstMatchWinsAndIsReported(t *testing.T) {
	t.Parallel()

	cases := []domain.TestCaseInfo{{Name: "dup", AncestorTitles: []string{"G"}}}
	raws := []domain.RawTestResult{
		{Title: "dup", AncestorTitles: []string{"G"}, Status: domain.ResultFailed},
		{Title: "dup", AncestorTitles: []string{"G"}, Status: domain.ResultPassed},
	}

	report := Merge(cases, raws)

	assert.Equal(t, domain.ResultFailed, status(cases[0]))
	assert.Equal(t, []domain.CaseKey{domain.NewCaseKey("dup", []string{"G"})}, report.Ambiguous)
}

func TestMerge_UnmatchedKeepsPreviousStatus(t *testing.T) {
	t.Parallel()

	cases := []domain.TestCaseInfo{
		{Name: "old", AncestorTitles: []string{}, LastResultStatus: domain.StatusPtr(domain.ResultFailed)},
		{Name: "never", AncestorTitles: []string{}},
	}

	report := Merge(cases, []domain.RawTestResult{{Title: "other", Status: domain.ResultPassed}})

	assert.Equal(t, domain.ResultFailed, status(cases[0]))
	assert.Equal(t, domain.ResultUnknown, status(cases[1]))
	assert.Len(t, report.Unmatched, 2)
}

func TestMerge_Empty(t *testing.T) {
	t.Parallel()

	report := Merge(nil, nil)

	assert.Equal(t, 0, report.Matched)
	assert.Empty(t, report.Unmatched)
}
