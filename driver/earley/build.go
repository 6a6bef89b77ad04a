package earley

import (
	"fmt"
	"sort"

	"github.com/grackle-lang/grackle/driver"
	"github.com/grackle-lang/grackle/tree"
)

// buildTree materializes the forest into a parse tree. In resolve mode
// each ambiguous node keeps the alternative with the highest rule
// priority; in explicit mode the surviving alternatives are grouped under
// an `_ambig` node. A visited guard stops sharing-induced infinite
// descent on cyclic derivations.
func (p *Parser) buildTree(root *forestNode) (tree.Node, error) {
	b := &treeBuilder{
		p:       p,
		memo:    map[*forestNode]*driver.Frame{},
		onWay:   map[*forestNode]struct{}{},
		scores:  map[*forestNode]int{},
		scoring: map[*forestNode]struct{}{},
	}
	frame, err := b.build(root)
	if err != nil {
		return nil, err
	}
	return frame.Node, nil
}

type treeBuilder struct {
	p       *Parser
	memo    map[*forestNode]*driver.Frame
	onWay   map[*forestNode]struct{}
	scores  map[*forestNode]int
	scoring map[*forestNode]struct{}
}

func (b *treeBuilder) build(n *forestNode) (*driver.Frame, error) {
	if f, ok := b.memo[n]; ok {
		return f, nil
	}
	if _, ok := b.onWay[n]; ok {
		return nil, fmt.Errorf("cyclic derivation; the grammar derives a symbol from itself without consuming input")
	}
	b.onWay[n] = struct{}{}
	defer delete(b.onWay, n)

	switch n.kind {
	case nodeKindToken:
		num := b.p.terminalNumOf(n.token.Type)
		return b.p.assembler.TokenFrame(n.token, b.p.cg.TermAttr(num).FilterOut), nil
	case nodeKindSymbol:
		frame, err := b.buildSymbol(n)
		if err != nil {
			return nil, err
		}
		b.memo[n] = frame
		return frame, nil
	}
	return nil, fmt.Errorf("an intermediate node cannot be materialized directly")
}

func (b *treeBuilder) buildSymbol(n *forestNode) (*driver.Frame, error) {
	fams := b.rankedFamilies(n)

	if b.p.disambiguator != nil && len(fams) > 1 && !b.p.explicit {
		return b.buildScored(n, fams)
	}

	if !b.p.explicit || len(fams) == 1 {
		for _, fam := range fams {
			frame, err := b.buildFamily(fam)
			if err != nil {
				// An alternative that cycles is dropped; the next one in
				// rank order is tried instead.
				continue
			}
			return frame, nil
		}
		return nil, fmt.Errorf("no materializable derivation for %v", n.sym)
	}

	var alts []tree.Node
	seen := map[string]struct{}{}
	for _, fam := range fams {
		frame, err := b.buildFamily(fam)
		if err != nil {
			continue
		}
		key := renderKey(frame.Node)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		alts = append(alts, frame.Node)
	}
	if len(alts) == 0 {
		return nil, fmt.Errorf("no materializable derivation for %v", n.sym)
	}
	if len(alts) == 1 {
		return &driver.Frame{Node: alts[0]}, nil
	}
	return &driver.Frame{
		Node: &tree.Tree{
			Data:     tree.AmbigData,
			Children: alts,
		},
	}, nil
}

// buildScored lets the caller's callback pick between alternatives the
// static priorities cannot settle.
func (b *treeBuilder) buildScored(n *forestNode, fams []*family) (*driver.Frame, error) {
	var frames []*driver.Frame
	var alts []tree.Node
	top := 0
	for _, fam := range fams {
		score := b.familyScore(n, fam)
		if len(frames) > 0 && score < top {
			break
		}
		frame, err := b.buildFamily(fam)
		if err != nil {
			continue
		}
		if len(frames) == 0 {
			top = score
		}
		frames = append(frames, frame)
		alts = append(alts, frame.Node)
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("no materializable derivation for %v", n.sym)
	}
	if len(frames) == 1 {
		return frames[0], nil
	}
	choice := b.p.disambiguator(alts)
	if choice < 0 || choice >= len(frames) {
		choice = 0
	}
	return frames[choice], nil
}

func (b *treeBuilder) buildFamily(fam *family) (*driver.Frame, error) {
	var childNodes []*forestNode
	err := b.flatten(fam, &childNodes)
	if err != nil {
		return nil, err
	}

	handle := make([]*driver.Frame, 0, len(childNodes))
	for _, c := range childNodes {
		f, err := b.build(c)
		if err != nil {
			return nil, err
		}
		handle = append(handle, f)
	}

	attrs := b.p.cg.Attrs(fam.prod)
	return b.p.assembler.Assemble(driver.AssembleAttrs{
		Name:             attrs.Name,
		Alias:            attrs.Alias,
		InlineIfSingle:   attrs.InlineIfSingle,
		FilterOut:        attrs.FilterOut,
		KeepAllTokens:    attrs.KeepAllTokens,
		EmptyPlaceholder: attrs.EmptyPlaceholder,
	}, handle), nil
}

// flatten expands the left spine of a family into the production's child
// sequence. Ambiguity inside intermediate nodes is resolved by rank; the
// spec-level alternatives all surface on symbol nodes.
func (b *treeBuilder) flatten(fam *family, out *[]*forestNode) error {
	if fam.left != nil {
		if fam.left.kind == nodeKindIntermediate {
			sub := b.rankedFamilies(fam.left)
			if len(sub) == 0 {
				return fmt.Errorf("an intermediate node has no families")
			}
			err := b.flatten(sub[0], out)
			if err != nil {
				return err
			}
		} else {
			*out = append(*out, fam.left)
		}
	}
	if fam.right != nil {
		*out = append(*out, fam.right)
	}
	return nil
}

// rankedFamilies orders a node's families for resolution: higher
// aggregate rule priority first, insertion order after that. Insertion
// order favors the derivation completed first, which is the
// leftmost-longest one.
func (b *treeBuilder) rankedFamilies(n *forestNode) []*family {
	fams := make([]*family, len(n.families))
	copy(fams, n.families)
	sort.SliceStable(fams, func(i, j int) bool {
		return b.familyScore(n, fams[i]) > b.familyScore(n, fams[j])
	})
	return fams
}

// familyScore aggregates the declared rule priorities of a derivation:
// the producing rule's own priority plus everything below it. Priorities
// deep in a subtree must be able to settle an ambiguity that only
// surfaces at an outer rule.
func (b *treeBuilder) familyScore(n *forestNode, fam *family) int {
	score := b.score(fam.left) + b.score(fam.right)
	if n.kind == nodeKindSymbol {
		score += b.p.cg.Attrs(fam.prod).Priority
	}
	return score
}

func (b *treeBuilder) score(n *forestNode) int {
	if n == nil || n.kind == nodeKindToken {
		return 0
	}
	if s, ok := b.scores[n]; ok {
		return s
	}
	if _, ok := b.scoring[n]; ok {
		// A cyclic derivation contributes nothing; the build pass
		// rejects it if it is ever chosen.
		return 0
	}
	b.scoring[n] = struct{}{}
	defer delete(b.scoring, n)

	best := 0
	for i, fam := range n.families {
		s := b.familyScore(n, fam)
		if i == 0 || s > best {
			best = s
		}
	}
	b.scores[n] = best
	return best
}

// renderKey is the dedup key of an alternative: two derivations that
// materialize into the same tree collapse.
func renderKey(n tree.Node) string {
	switch t := n.(type) {
	case *tree.Tree:
		return t.String()
	case *tree.Token:
		return t.Type + ":" + t.Value
	}
	return "<nil>"
}

// terminalNumOf resolves a terminal name back to its number; token nodes
// in the forest carry names only.
func (p *Parser) terminalNumOf(name string) int {
	sym, ok := p.cg.SymbolTable().ToSymbol(name)
	if !ok {
		return 0
	}
	return sym.Num().Int()
}
