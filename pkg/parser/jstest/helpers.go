package jstest

import (
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/specvital/lwctest/pkg/domain"
	"github.com/specvital/lwctest/pkg/parser"
)

func UnquoteString(text string) string {
	if len(text) < 2 {
		return text
	}

	if text[0] == '`' && text[len(text)-1] == '`' {
		return text[1 : len(text)-1]
	}

	// strconv.Unquote only understands double quotes: unescape \' and escape "
	// before re-wrapping single-quoted literals.
	if text[0] == '\'' && text[len(text)-1] == '\'' {
		inner := text[1 : len(text)-1]
		inner = strings.ReplaceAll(inner, `\'`, `'`)
		escaped := strings.ReplaceAll(inner, `"`, `\"`)
		converted := `"` + escaped + `"`
		if s, err := strconv.Unquote(converted); err == nil {
			return s
		}
		return text
	}

	if s, err := strconv.Unquote(text); err == nil {
		return s
	}

	return text
}

// FormatEachName substitutes one row of an .each table into a title template.
// index is the zero-based row number used for %#.
func FormatEachName(template, data string, index int) string {
	args := strings.Split(data, ", ")
	argIndex := 0

	return JestPlaceholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		if match == "%%" {
			return "%"
		}
		if match == "%#" {
			return strconv.Itoa(index)
		}
		if argIndex < len(args) {
			arg := args[argIndex]
			argIndex++
			return arg
		}
		return match
	})
}

func ExtractArrayContent(node *sitter.Node, source []byte) string {
	var parts []string

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "string":
			parts = append(parts, UnquoteString(parser.GetNodeText(child, source)))
		case "number", "true", "false", "null":
			parts = append(parts, parser.GetNodeText(child, source))
		}
	}

	return strings.Join(parts, ", ")
}

func ExtractArrayElements(arrayNode *sitter.Node, source []byte) []string {
	var elements []string

	for i := 0; i < int(arrayNode.ChildCount()); i++ {
		elem := arrayNode.Child(i)
		switch elem.Type() {
		case "array":
			elements = append(elements, ExtractArrayContent(elem, source))
		case "number", "true", "false", "null":
			elements = append(elements, parser.GetNodeText(elem, source))
		case "object":
			elements = append(elements, ObjectPlaceholder)
		case "string":
			elements = append(elements, UnquoteString(parser.GetNodeText(elem, source)))
		}
	}

	return elements
}

// ExtractEachTestCases returns the rows of an inline .each([...]) table, or nil
// when the table is not an array literal.
func ExtractEachTestCases(args *sitter.Node, source []byte) []string {
	for i := 0; i < int(args.ChildCount()); i++ {
		child := args.Child(i)
		if child.Type() == "array" {
			return ExtractArrayElements(child, source)
		}
	}
	return nil
}

func FindCallback(args *sitter.Node) *sitter.Node {
	for i := 0; i < int(args.ChildCount()); i++ {
		child := args.Child(i)
		switch child.Type() {
		case "arrow_function", "function_expression", "function":
			return child
		}
	}
	return nil
}

// FindLastCallback finds the last argument that is a function.
// Custom wrappers like describeIf(cond, () => {...}) pass the body last.
func FindLastCallback(args *sitter.Node) *sitter.Node {
	var lastCallback *sitter.Node
	for i := 0; i < int(args.ChildCount()); i++ {
		child := args.Child(i)
		switch child.Type() {
		case "arrow_function", "function_expression", "function":
			lastCallback = child
		}
	}
	return lastCallback
}

// ExtractTestName returns the title argument and the node it was read from.
func ExtractTestName(args *sitter.Node, source []byte) (string, *sitter.Node) {
	for i := 0; i < int(args.ChildCount()); i++ {
		child := args.Child(i)
		switch child.Type() {
		case "string", "template_string":
			return UnquoteString(parser.GetNodeText(child, source)), child
		case "identifier", "binary_expression", "call_expression", "member_expression":
			return DynamicNamePlaceholder, child
		}
	}
	return "", nil
}

func parseModifier(name string) string {
	switch name {
	case ModifierSkip, ModifierTodo, ModifierOnly:
		return name
	default:
		return ""
	}
}

func ParseSimpleMemberExpression(obj, prop *sitter.Node, source []byte) (string, string) {
	objName := parser.GetNodeText(obj, source)
	propName := parser.GetNodeText(prop, source)

	switch propName {
	case ModifierConcurrent, ModifierFailing:
		return objName, ""
	case ModifierEach:
		return objName + "." + ModifierEach, ""
	case ModifierOnly, ModifierSkip, ModifierTodo:
		return objName, propName
	default:
		return "", ""
	}
}

func ParseNestedMemberExpression(obj, prop *sitter.Node, source []byte) (string, string) {
	innerObj := obj.ChildByFieldName("object")
	innerProp := obj.ChildByFieldName("property")

	if innerObj == nil || innerProp == nil {
		return "", ""
	}

	objName := parser.GetNodeText(innerObj, source)
	middleProp := parser.GetNodeText(innerProp, source)
	propName := parser.GetNodeText(prop, source)

	// test.concurrent.skip, describe.concurrent.each, ...
	if middleProp == ModifierConcurrent || middleProp == ModifierFailing {
		if propName == ModifierEach {
			return objName + "." + ModifierEach, ""
		}
		return objName, parseModifier(propName)
	}

	modifier := parseModifier(middleProp)
	if propName == ModifierEach {
		return objName + "." + ModifierEach, modifier
	}

	return "", modifier
}

func ParseMemberExpressionFunction(node *sitter.Node, source []byte) (string, string) {
	obj := node.ChildByFieldName("object")
	prop := node.ChildByFieldName("property")

	if obj == nil || prop == nil {
		return "", ""
	}

	if obj.Type() == "member_expression" {
		return ParseNestedMemberExpression(obj, prop, source)
	}

	return ParseSimpleMemberExpression(obj, prop, source)
}

func ParseIdentifierFunction(node *sitter.Node, source []byte) (string, string) {
	name := parser.GetNodeText(node, source)

	if baseName, ok := SkippedFunctionAliases[name]; ok {
		return baseName, ModifierSkip
	}

	if baseName, ok := FocusedFunctionAliases[name]; ok {
		return baseName, ModifierOnly
	}

	return name, ""
}

// ParseFunctionName resolves the callee of a call to its base test function and
// modifier, e.g. "xit" -> ("it", "skip"), "describe.only.each" -> ("describe.each", "only").
func ParseFunctionName(node *sitter.Node, source []byte) (string, string) {
	switch node.Type() {
	case "identifier":
		return ParseIdentifierFunction(node, source)
	case "member_expression":
		return ParseMemberExpressionFunction(node, source)
	default:
		return "", ""
	}
}

// DetectLanguage determines the grammar based on file extension.
func DetectLanguage(filename string) domain.Language {
	switch {
	case strings.HasSuffix(filename, ".js"), strings.HasSuffix(filename, ".jsx"),
		strings.HasSuffix(filename, ".mjs"), strings.HasSuffix(filename, ".cjs"):
		return domain.LanguageJavaScript
	case strings.HasSuffix(filename, ".tsx"):
		return domain.LanguageTSX
	default:
		return domain.LanguageTypeScript
	}
}
