package results

import (
	"regexp"
	"strconv"

	"github.com/charmbracelet/x/ansi"

	"github.com/specvital/lwctest/pkg/domain"
)

// SanitizeFailureMessage strips terminal escape sequences from a failure message.
func SanitizeFailureMessage(msg string) string {
	return ansi.Strip(msg)
}

// ExtractPosition finds the first "<path>:<line>:<column>" reference to path in a
// failure stack and returns it as a zero-based position.
func ExtractPosition(path, msg string) (domain.Position, bool) {
	re, err := regexp.Compile(`(?i)` + regexp.QuoteMeta(path) + `:(\d+):(\d+)`)
	if err != nil {
		return domain.Position{}, false
	}

	m := re.FindStringSubmatch(msg)
	if len(m) < 3 {
		return domain.Position{}, false
	}

	line, err := strconv.Atoi(m[1])
	if err != nil {
		return domain.Position{}, false
	}
	col, err := strconv.Atoi(m[2])
	if err != nil {
		return domain.Position{}, false
	}

	return domain.Position{Line: max(line-1, 0), Column: max(col-1, 0)}, true
}

// Diagnostics returns one diagnostic per failed assertion of the file. The position
// comes from the failure stack when it references the file, otherwise from the
// assertion's recorded location.
func (f FileResult) Diagnostics() []domain.Diagnostic {
	path := f.Path()

	var out []domain.Diagnostic
	for _, a := range f.AssertionResults {
		if len(a.FailureMessages) == 0 {
			continue
		}

		msg := SanitizeFailureMessage(a.FailureMessages[0])
		pos, ok := ExtractPosition(path, msg)
		if !ok && a.Location != nil {
			pos = domain.Position{Line: max(a.Location.Line-1, 0), Column: max(a.Location.Column-1, 0)}
		}

		out = append(out, domain.Diagnostic{Path: path, Position: pos, Message: msg})
	}
	return out
}
