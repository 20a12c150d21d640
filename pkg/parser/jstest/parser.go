package jstest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/specvital/lwctest/pkg/domain"
	"github.com/specvital/lwctest/pkg/parser"
	"github.com/specvital/lwctest/pkg/parser/tspool"
)

// ErrParse is returned when a source file cannot be turned into a test tree.
var ErrParse = errors.New("jstest: parse failed")

// Adapter parses Jest test sources into a root/group/case/assertion tree.
// Output is deterministic for identical input.
type Adapter struct {
	readFile func(string) ([]byte, error)
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithReadFile replaces the function used to load sources when Parse is called
// without source text.
func WithReadFile(fn func(string) ([]byte, error)) AdapterOption {
	return func(a *Adapter) {
		if fn != nil {
			a.readFile = fn
		}
	}
}

// NewAdapter creates a parser adapter reading from the local filesystem.
func NewAdapter(opts ...AdapterOption) *Adapter {
	a := &Adapter{readFile: os.ReadFile}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Parse parses the file at path. When source is nil the file is read first.
func (a *Adapter) Parse(ctx context.Context, path string, source []byte) (*Node, error) {
	if source == nil {
		content, err := a.readFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %w", ErrParse, path, err)
		}
		source = content
	}
	return Parse(ctx, source, path)
}

// Parse is the main entry point for parsing JavaScript/TypeScript test sources.
// Sources with syntax errors are rejected rather than partially indexed.
func Parse(ctx context.Context, source []byte, filename string) (*Node, error) {
	lang := DetectLanguage(filename)

	tree, err := tspool.Parse(ctx, lang, source)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrParse, filename, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, fmt.Errorf("%w: %s: syntax error", ErrParse, filename)
	}

	w := &walker{source: source, lang: lang}
	result := &Node{Type: NodeRoot, Range: parser.GetRange(root)}
	w.parseNode(root, result, nil)

	return result, nil
}

type walker struct {
	depth  int
	lang   domain.Language
	source []byte
}

func (w *walker) parseNode(node *sitter.Node, parent *Node, ancestors []string) {
	if w.depth > tspool.MaxTreeDepth {
		return
	}
	w.depth++
	defer func() { w.depth-- }()

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)

		switch child.Type() {
		case "expression_statement":
			if expr := parser.FindChildByType(child, "call_expression"); expr != nil {
				w.processCallExpression(expr, parent, ancestors)
			} else if expr := parser.FindChildByType(child, "await_expression"); expr != nil {
				w.parseNode(expr, parent, ancestors)
			}
		case "call_expression":
			w.processCallExpression(child, parent, ancestors)
		case "variable_declaration", "lexical_declaration":
			w.processVariableDeclaration(child, parent, ancestors)
		default:
			w.parseNode(child, parent, ancestors)
		}
	}
}

func (w *walker) processVariableDeclaration(node *sitter.Node, parent *Node, ancestors []string) {
	for i := 0; i < int(node.ChildCount()); i++ {
		declarator := node.Child(i)
		if declarator == nil || declarator.Type() != "variable_declarator" {
			continue
		}

		valueNode := declarator.ChildByFieldName("value")
		if valueNode == nil {
			continue
		}

		if valueNode.Type() == "call_expression" {
			w.processCallExpression(valueNode, parent, ancestors)
		} else {
			w.parseNode(valueNode, parent, ancestors)
		}
	}
}

func (w *walker) processCallExpression(node *sitter.Node, parent *Node, ancestors []string) {
	funcNode := node.ChildByFieldName("function")
	if funcNode == nil {
		return
	}

	args := node.ChildByFieldName("arguments")
	if args == nil {
		return
	}

	if funcNode.Type() == "call_expression" {
		w.processEachCall(node, funcNode, args, parent, ancestors)
		return
	}

	if callback := w.findArrayIteratorCallback(funcNode, args); callback != nil {
		if body := callback.ChildByFieldName("body"); body != nil {
			w.parseNode(body, parent, ancestors)
		}
		return
	}

	funcName, modifier := ParseFunctionName(funcNode, w.source)

	switch funcName {
	case FuncDescribe:
		name, nameNode := ExtractTestName(args, w.source)
		if name == "" {
			return
		}
		w.addGroup(node, nameNode, args, name, modifier, parent, ancestors)
	case FuncIt, FuncTest:
		name, nameNode := ExtractTestName(args, w.source)
		if name == "" {
			return
		}
		w.addCase(node, nameNode, args, name, modifier, parent, ancestors)
	case "":
		return
	default:
		// Custom wrappers such as describeIf(cond, () => {...}).
		if callback := FindLastCallback(args); callback != nil {
			if body := callback.ChildByFieldName("body"); body != nil {
				w.parseNode(body, parent, ancestors)
			}
		}
	}
}

// processEachCall handles fn.each(table)(title, callback). Inline array tables are
// expanded into one node per row with the title formatted the way Jest reports it;
// other tables produce a single node carrying the template title.
func (w *walker) processEachCall(outerCall, innerCall, outerArgs *sitter.Node, parent *Node, ancestors []string) {
	innerFunc := innerCall.ChildByFieldName("function")
	innerArgs := innerCall.ChildByFieldName("arguments")
	if innerFunc == nil || innerArgs == nil {
		return
	}

	funcName, modifier := ParseFunctionName(innerFunc, w.source)
	template, nameNode := ExtractTestName(outerArgs, w.source)
	if template == "" {
		return
	}

	var add func(name string)
	switch funcName {
	case FuncDescribe + "." + ModifierEach:
		add = func(name string) { w.addGroup(outerCall, nameNode, outerArgs, name, modifier, parent, ancestors) }
	case FuncIt + "." + ModifierEach, FuncTest + "." + ModifierEach:
		add = func(name string) { w.addCase(outerCall, nameNode, outerArgs, name, modifier, parent, ancestors) }
	default:
		return
	}

	rows := ExtractEachTestCases(innerArgs, w.source)
	if len(rows) == 0 {
		add(template)
		return
	}
	for i, row := range rows {
		add(FormatEachName(template, row, i))
	}
}

func (w *walker) addGroup(callNode, nameNode, args *sitter.Node, name, modifier string, parent *Node, ancestors []string) {
	group := &Node{
		Type:     NodeGroup,
		Name:     name,
		Modifier: modifier,
		Range:    titleRange(callNode, nameNode),
	}

	if callback := FindCallback(args); callback != nil {
		if body := callback.ChildByFieldName("body"); body != nil {
			w.parseNode(body, group, append(slices.Clone(ancestors), name))
		}
	}

	parent.add(group)
}

func (w *walker) addCase(callNode, nameNode, args *sitter.Node, name, modifier string, parent *Node, ancestors []string) {
	tc := &Node{
		Type:      NodeCase,
		Name:      name,
		Modifier:  modifier,
		Range:     titleRange(callNode, nameNode),
		Ancestors: slices.Clone(ancestors),
	}
	if tc.Ancestors == nil {
		tc.Ancestors = []string{}
	}

	if callback := FindCallback(args); callback != nil {
		if body := callback.ChildByFieldName("body"); body != nil {
			w.addAssertions(body, tc)
		}
	}

	parent.add(tc)
}

func (w *walker) addAssertions(body *sitter.Node, tc *Node) {
	matches, err := tspool.Captures(body, w.lang, queryCallByIdentifier)
	if err != nil {
		return
	}
	for _, m := range matches {
		fn, call := m["fn"], m["call"]
		if fn == nil || call == nil || parser.GetNodeText(fn, w.source) != funcExpect {
			continue
		}
		tc.add(&Node{Type: NodeAssertion, Range: parser.GetRange(call)})
	}
}

// findArrayIteratorCallback extracts the callback of [...].forEach / [...].map.
func (w *walker) findArrayIteratorCallback(funcNode, args *sitter.Node) *sitter.Node {
	if funcNode.Type() != "member_expression" {
		return nil
	}

	prop := funcNode.ChildByFieldName("property")
	if prop == nil {
		return nil
	}

	switch parser.GetNodeText(prop, w.source) {
	case "forEach", "map":
		return FindCallback(args)
	}

	return nil
}

func titleRange(callNode, nameNode *sitter.Node) domain.Range {
	if nameNode != nil {
		return parser.GetRange(nameNode)
	}
	return parser.GetRange(callNode)
}
