package earley

import (
	"github.com/grackle-lang/grackle/grammar/symbol"
	"github.com/grackle-lang/grackle/tree"
)

type nodeKind int

const (
	nodeKindSymbol nodeKind = iota
	nodeKindIntermediate
	nodeKindToken
)

// forestNode is one node of the shared packed parse forest. Symbol and
// intermediate nodes are interned by (label, start, end), which keeps the
// forest a DAG even when the number of derivations is exponential.
type forestNode struct {
	kind  nodeKind
	sym   symbol.Symbol // symbol nodes
	prod  int           // intermediate nodes
	dot   int           // intermediate nodes
	start int
	end   int
	token *tree.Token // token nodes

	families []*family
}

// family is one packed derivation of a node: the children are the
// flattened left spine plus right.
type family struct {
	prod  int
	left  *forestNode
	right *forestNode
}

func (n *forestNode) addFamily(prod int, left, right *forestNode) {
	for _, f := range n.families {
		if f.prod == prod && f.left == left && f.right == right {
			return
		}
	}
	n.families = append(n.families, &family{
		prod:  prod,
		left:  left,
		right: right,
	})
}

type forestKey struct {
	kind  nodeKind
	a     int
	b     int
	start int
	end   int
}

// forest interns nodes for one parse.
type forest struct {
	nodes map[forestKey]*forestNode
}

func newForest() *forest {
	return &forest{
		nodes: map[forestKey]*forestNode{},
	}
}

func (f *forest) symbolNode(sym symbol.Symbol, start, end int) *forestNode {
	key := forestKey{
		kind:  nodeKindSymbol,
		a:     int(sym),
		start: start,
		end:   end,
	}
	if n, ok := f.nodes[key]; ok {
		return n
	}
	n := &forestNode{
		kind:  nodeKindSymbol,
		sym:   sym,
		start: start,
		end:   end,
	}
	f.nodes[key] = n
	return n
}

func (f *forest) intermediateNode(prod, dot, start, end int) *forestNode {
	key := forestKey{
		kind:  nodeKindIntermediate,
		a:     prod,
		b:     dot,
		start: start,
		end:   end,
	}
	if n, ok := f.nodes[key]; ok {
		return n
	}
	n := &forestNode{
		kind:  nodeKindIntermediate,
		prod:  prod,
		dot:   dot,
		start: start,
		end:   end,
	}
	f.nodes[key] = n
	return n
}

func (f *forest) tokenNode(tok *tree.Token, start, end int) *forestNode {
	return &forestNode{
		kind:  nodeKindToken,
		start: start,
		end:   end,
		token: tok,
	}
}

// makeNode packs the derivation of an item advanced over right. A
// single-symbol prefix needs no node of its own; a completed production
// labels a symbol node; anything else labels an intermediate node.
func (f *forest) makeNode(prod, dot, rhsLen int, lhs symbol.Symbol, origin, end int, left, right *forestNode) *forestNode {
	if dot < rhsLen && left == nil {
		return right
	}
	var n *forestNode
	if dot == rhsLen {
		n = f.symbolNode(lhs, origin, end)
	} else {
		n = f.intermediateNode(prod, dot, origin, end)
	}
	n.addFamily(prod, left, right)
	return n
}
