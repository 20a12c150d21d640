package jstest

import (
	"slices"

	"github.com/specvital/lwctest/pkg/domain"
)

// NodeType is the kind of a parsed node.
type NodeType string

const (
	NodeRoot      NodeType = "root"
	NodeGroup     NodeType = "group"
	NodeCase      NodeType = "case"
	NodeAssertion NodeType = "assertion"
)

// Node is one element of the parsed test structure.
type Node struct {
	// Ancestors is set on case nodes only: enclosing group names, outermost first.
	Ancestors []string
	Children  []*Node
	// Modifier records skip/only/todo markers ("" when none).
	Modifier string
	// Name is empty for root and assertion nodes.
	Name string
	// Range covers the title argument for groups and cases, the call for assertions
	// and the whole file for the root.
	Range domain.Range
	Type  NodeType
}

func (n *Node) add(child *Node) {
	n.Children = append(n.Children, child)
}

// Cases returns every case node below n in declaration order.
func (n *Node) Cases() []*Node {
	var cases []*Node
	n.walk(func(node *Node) {
		if node.Type == NodeCase {
			cases = append(cases, node)
		}
	})
	return cases
}

// Groups returns every group node below n in declaration order.
func (n *Node) Groups() []*Node {
	var groups []*Node
	n.walk(func(node *Node) {
		if node.Type == NodeGroup {
			groups = append(groups, node)
		}
	})
	return groups
}

// Assertions returns the assertion children of a case node.
func (n *Node) Assertions() []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Type == NodeAssertion {
			out = append(out, c)
		}
	}
	return out
}

func (n *Node) walk(fn func(*Node)) {
	for _, c := range n.Children {
		fn(c)
		c.walk(fn)
	}
}

// TestCases flattens a parsed tree into index records for the given file.
func TestCases(root *Node, path string) []domain.TestCaseInfo {
	cases := root.Cases()
	out := make([]domain.TestCaseInfo, 0, len(cases))
	for _, c := range cases {
		out = append(out, domain.TestCaseInfo{
			Name:           c.Name,
			AncestorTitles: slices.Clone(c.Ancestors),
			Path:           path,
			SourceRange:    c.Range,
		})
	}
	return out
}
