// Package parser holds the tree-sitter helpers shared by the source parser adapter.
package parser

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/specvital/lwctest/pkg/domain"
)

// GetNodeText returns the source text for the given AST node.
// Returns empty string if the node's byte range exceeds the source length.
func GetNodeText(node *sitter.Node, source []byte) (result string) {
	start := node.StartByte()
	end := node.EndByte()
	sourceLen := uint32(len(source))

	// Validate bounds before calling tree-sitter C code
	if start > sourceLen || end > sourceLen {
		return ""
	}

	defer func() {
		if r := recover(); r != nil {
			result = ""
		}
	}()

	return node.Content(source)
}

// GetRange converts a tree-sitter node span to a zero-based [domain.Range].
func GetRange(node *sitter.Node) domain.Range {
	start := node.StartPoint()
	end := node.EndPoint()

	return domain.Range{
		Start: domain.Position{Line: int(start.Row), Column: int(start.Column)},
		End:   domain.Position{Line: int(end.Row), Column: int(end.Column)},
	}
}

// FindChildByType returns the first direct child with the given node type.
func FindChildByType(node *sitter.Node, nodeType string) *sitter.Node {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() == nodeType {
			return child
		}
	}
	return nil
}
