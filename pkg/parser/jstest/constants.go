package jstest

import "regexp"

const (
	FuncDescribe = "describe"
	FuncIt       = "it"
	FuncTest     = "test"

	ModifierConcurrent = "concurrent"
	ModifierEach       = "each"
	ModifierFailing    = "failing"
	ModifierOnly       = "only"
	ModifierSkip       = "skip"
	ModifierTodo       = "todo"

	DynamicNamePlaceholder = "(dynamic)"
	ObjectPlaceholder      = "<object>"
)

var SkippedFunctionAliases = map[string]string{
	"xdescribe": FuncDescribe,
	"xit":       FuncIt,
	"xtest":     FuncTest,
}

var FocusedFunctionAliases = map[string]string{
	"fdescribe": FuncDescribe,
	"fit":       FuncIt,
}

// JestPlaceholderPattern matches the printf-style placeholders Jest substitutes in
// .each titles.
var JestPlaceholderPattern = regexp.MustCompile(`%[sdifjopP#%]`)

// queryCallByIdentifier captures plain calls such as expect(x).
const queryCallByIdentifier = `(call_expression function: (identifier) @fn) @call`

const funcExpect = "expect"
