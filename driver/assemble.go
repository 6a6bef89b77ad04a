package driver

import (
	"github.com/grackle-lang/grackle/tree"
)

// Frame is one value on a driver's semantic stack: a finished node plus
// the flags that tell the parent reduction how to take it in.
type Frame struct {
	Node tree.Node

	// Splice means Node is a tree whose children replace it in the
	// parent (a `_rule` or an anonymous helper rule).
	Splice bool

	// Placeholder means the frame stands for an absent optional item and
	// contributes a nil child.
	Placeholder bool

	// FilteredToken means Node is a token of a filtered terminal and is
	// dropped unless the consuming rule keeps all tokens.
	FilteredToken bool
}

// AssembleAttrs are the tree-shaping attributes of the production being
// reduced.
type AssembleAttrs struct {
	Name             string
	Alias            string
	InlineIfSingle   bool
	FilterOut        bool
	KeepAllTokens    bool
	EmptyPlaceholder bool
}

// Assembler turns reduced productions into parse-tree frames. Both
// drivers funnel their reductions through one assembler so the engines
// agree on tree shape.
type Assembler struct {
	PropagatePositions bool
}

// TokenFrame wraps a lexed token for the semantic stack.
func (a *Assembler) TokenFrame(tok *tree.Token, filtered bool) *Frame {
	return &Frame{
		Node:          tok,
		FilteredToken: filtered,
	}
}

// Assemble reduces handle into a single frame according to attrs.
func (a *Assembler) Assemble(attrs AssembleAttrs, handle []*Frame) *Frame {
	if attrs.EmptyPlaceholder {
		return &Frame{
			Splice:      true,
			Placeholder: true,
			Node: &tree.Tree{
				Data:     attrs.Name,
				Children: []tree.Node{nil},
			},
		}
	}

	var children []tree.Node
	for _, f := range handle {
		switch {
		case f.Splice:
			sub := f.Node.(*tree.Tree)
			children = append(children, sub.Children...)
		case f.FilteredToken && !attrs.KeepAllTokens:
			// dropped
		default:
			children = append(children, f.Node)
		}
	}

	if attrs.InlineIfSingle && attrs.Alias == "" && len(children) == 1 {
		return &Frame{
			Node: children[0],
		}
	}

	name := attrs.Name
	if attrs.Alias != "" {
		name = attrs.Alias
	}
	t := &tree.Tree{
		Data:     name,
		Children: children,
	}
	if a.PropagatePositions {
		t.Meta = spanOf(children)
	}
	return &Frame{
		Node:   t,
		Splice: attrs.FilterOut && attrs.Alias == "",
	}
}

// spanOf bounds a node list by its children's spans. Nil placeholders and
// empty subtrees contribute nothing.
func spanOf(children []tree.Node) tree.Meta {
	meta := tree.Meta{Empty: true}
	for _, c := range children {
		var start, end [3]int // pos, row, col
		switch n := c.(type) {
		case *tree.Token:
			start = [3]int{n.StartPos, n.Row, n.Col}
			end = [3]int{n.EndPos, n.EndRow, n.EndCol}
		case *tree.Tree:
			if n.Meta.Empty {
				continue
			}
			start = [3]int{n.Meta.StartPos, n.Meta.Row, n.Meta.Col}
			end = [3]int{n.Meta.EndPos, n.Meta.EndRow, n.Meta.EndCol}
		default:
			continue
		}
		if meta.Empty {
			meta = tree.Meta{
				StartPos: start[0], Row: start[1], Col: start[2],
				EndPos: end[0], EndRow: end[1], EndCol: end[2],
			}
			continue
		}
		if start[0] < meta.StartPos {
			meta.StartPos, meta.Row, meta.Col = start[0], start[1], start[2]
		}
		if end[0] > meta.EndPos {
			meta.EndPos, meta.EndRow, meta.EndCol = end[0], end[1], end[2]
		}
	}
	return meta
}
