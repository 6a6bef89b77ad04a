package tree

import (
	"fmt"
	"io"
	"strings"
)

// Node is either a *Tree or a *Token. A nil Node is a placeholder produced
// for an absent optional item when the parser runs with placeholders enabled.
type Node interface {
	node()
}

// Token is a leaf of a parse tree. It is immutable once emitted by a lexer.
type Token struct {
	// Type is the terminal name.
	Type string

	// Value is the matched text.
	Value string

	// StartPos and EndPos are byte offsets into the input.
	StartPos int
	EndPos   int

	// Row and Col are 1-based. Col is counted in code points, not bytes.
	Row    int
	Col    int
	EndRow int
	EndCol int
}

func (t *Token) node() {}

func (t *Token) String() string {
	return t.Value
}

// Meta is the source span of a tree. Empty reports whether the span was
// filled in; trees built without position propagation leave it zero.
type Meta struct {
	Empty    bool
	StartPos int
	EndPos   int
	Row      int
	Col      int
	EndRow   int
	EndCol   int
}

// Tree is a parse-tree node. Data is the rule name, or the alias when the
// producing alternative carries one.
type Tree struct {
	Data     string
	Children []Node
	Meta     Meta
}

func (t *Tree) node() {}

// AmbigData names the synthetic node that groups alternative derivations
// when a parse is ambiguous and the caller asked for an explicit forest.
const AmbigData = "_ambig"

func New(data string, children []Node) *Tree {
	return &Tree{
		Data:     data,
		Children: children,
	}
}

// String renders the tree on one line, in the form (data child ...).
// Tokens are rendered as their quoted text.
func (t *Tree) String() string {
	var b strings.Builder
	writeSExpr(&b, t)
	return b.String()
}

func writeSExpr(b *strings.Builder, node Node) {
	switch n := node.(type) {
	case nil:
		b.WriteString("<nil>")
	case *Token:
		fmt.Fprintf(b, "%q", n.Value)
	case *Tree:
		b.WriteString("(")
		b.WriteString(n.Data)
		for _, c := range n.Children {
			b.WriteString(" ")
			writeSExpr(b, c)
		}
		b.WriteString(")")
	}
}

// PrintTree writes a tree to w using box-drawing rules.
func PrintTree(w io.Writer, node Node) {
	printTree(w, node, "", "")
}

func printTree(w io.Writer, node Node, ruledLine string, childRuledLinePrefix string) {
	if node == nil {
		fmt.Fprintf(w, "%v<nil>\n", ruledLine)
		return
	}

	switch n := node.(type) {
	case *Token:
		fmt.Fprintf(w, "%v%v %#v\n", ruledLine, n.Type, n.Value)
	case *Tree:
		fmt.Fprintf(w, "%v%v\n", ruledLine, n.Data)

		num := len(n.Children)
		for i, child := range n.Children {
			var line string
			if num > 1 && i < num-1 {
				line = "├─ "
			} else {
				line = "└─ "
			}

			var prefix string
			if i >= num-1 {
				prefix = "   "
			} else {
				prefix = "│  "
			}

			printTree(w, child, childRuledLinePrefix+line, childRuledLinePrefix+prefix)
		}
	}
}

// Find returns every subtree whose Data equals name, in depth-first order.
// The receiver itself is included when it matches.
func (t *Tree) Find(name string) []*Tree {
	var found []*Tree
	t.Scan(func(sub *Tree) {
		if sub.Data == name {
			found = append(found, sub)
		}
	})
	return found
}

// Scan invokes f on the receiver and on every subtree, depth-first,
// parents before children.
func (t *Tree) Scan(f func(*Tree)) {
	f(t)
	for _, c := range t.Children {
		if sub, ok := c.(*Tree); ok {
			sub.Scan(f)
		}
	}
}

// Tokens returns the leaf tokens of the tree in source order.
func (t *Tree) Tokens() []*Token {
	var toks []*Token
	var walk func(Node)
	walk = func(node Node) {
		switch n := node.(type) {
		case *Token:
			toks = append(toks, n)
		case *Tree:
			for _, c := range n.Children {
				walk(c)
			}
		}
	}
	walk(t)
	return toks
}
