package earley

import (
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/grackle-lang/grackle/driver"
	"github.com/grackle-lang/grackle/driver/lexer"
	"github.com/grackle-lang/grackle/grammar"
	"github.com/grackle-lang/grackle/grammar/symbol"
	"github.com/grackle-lang/grackle/tree"
)

// item is one Earley chart entry: a production with a dot, the column it
// started in, and the derivation packed so far.
type item struct {
	prod   int
	dot    int
	origin int
	node   *forestNode
}

type itemKey struct {
	prod   int
	dot    int
	origin int
	node   *forestNode
}

type column struct {
	// ordinal indexes the column among all columns; pos is a byte offset.
	// In dynamic mode they coincide; in token mode ordinal counts tokens
	// and pos is the offset where the last scanned token ends.
	ordinal int
	pos     int

	items []*item
	seen  map[itemKey]struct{}

	// predicted guards against predicting a non-terminal twice.
	predicted map[symbol.Symbol]struct{}

	// nullCompletions holds same-column completions. An item predicted
	// after its expected symbol already completed with an empty span
	// advances immediately through this map.
	nullCompletions map[symbol.Symbol]*forestNode

	// scannable maps a terminal number to the items expecting it.
	scannable map[int][]*item
	scanOrder []int
}

func newColumn(ordinal, pos int) *column {
	return &column{
		ordinal:         ordinal,
		pos:             pos,
		seen:            map[itemKey]struct{}{},
		predicted:       map[symbol.Symbol]struct{}{},
		nullCompletions: map[symbol.Symbol]*forestNode{},
		scannable:       map[int][]*item{},
	}
}

type ParserOption func(p *Parser) error

// ExplicitAmbiguity keeps every surviving derivation in the tree under
// `_ambig` nodes instead of resolving to one.
func ExplicitAmbiguity() ParserOption {
	return func(p *Parser) error {
		p.explicit = true
		return nil
	}
}

// DynamicLexer scans terminals straight off the text at every chart
// position instead of consuming a fixed token stream. When complete is
// true every match length is fed to the chart, not only the longest.
func DynamicLexer(complete bool) ParserOption {
	return func(p *Parser) error {
		p.dynamic = true
		p.dynamicComplete = complete
		return nil
	}
}

func PropagatePositions() ParserOption {
	return func(p *Parser) error {
		p.assembler.PropagatePositions = true
		return nil
	}
}

// Disambiguator installs a callback consulted at each ambiguity the
// static priorities cannot settle. It receives the materialized
// alternatives and returns the index of the one to keep.
func Disambiguator(pick func(alternatives []tree.Node) int) ParserOption {
	return func(p *Parser) error {
		p.disambiguator = pick
		return nil
	}
}

func Logger(l *zap.Logger) ParserOption {
	return func(p *Parser) error {
		p.logger = l
		return nil
	}
}

// Parser is the Earley driver. It works from the lowered productions
// directly and accepts every context-free grammar, ambiguous ones
// included.
type Parser struct {
	cg    *grammar.CompiledGrammar
	lex   *lexer.Lexer
	start string

	explicit        bool
	dynamic         bool
	dynamicComplete bool
	disambiguator   func(alternatives []tree.Node) int
	assembler       driver.Assembler
	logger          *zap.Logger

	forest   *forest
	columns  []*column
	colIndex map[int]*column
}

func NewParser(cg *grammar.CompiledGrammar, lex *lexer.Lexer, start string, opts ...ParserOption) (*Parser, error) {
	p := &Parser{
		cg:     cg,
		lex:    lex,
		start:  start,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		err := opt(p)
		if err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Parse runs the chart over the whole input and materializes the forest.
func (p *Parser) Parse() (tree.Node, error) {
	startSym, ok := p.cg.StartRuleSymbolOf(p.start)
	if !ok {
		return nil, &driver.UnexpectedEOF{Row: 1, Col: 1}
	}

	p.forest = newForest()
	p.colIndex = map[int]*column{}
	var root *forestNode
	var err error
	if p.dynamic {
		root, err = p.runDynamic(startSym)
	} else {
		root, err = p.runTokens(startSym)
	}
	if err != nil {
		return nil, err
	}
	return p.buildTree(root)
}

// runTokens is the token-stream chart: one column per token boundary.
func (p *Parser) runTokens(startSym symbol.Symbol) (*forestNode, error) {
	toks, err := p.lex.Tokenize()
	if err != nil {
		return nil, err
	}

	cur := newColumn(0, 0)
	p.trackColumn(cur)
	p.predict(cur, startSym)
	p.closeColumn(cur)

	for i, tok := range toks {
		next := newColumn(i+1, tok.Tok.EndPos)
		scanned := cur.scannable[tok.TerminalID]
		for _, it := range scanned {
			p.advance(next, it, p.forest.tokenNode(tok.Tok, i, i+1))
		}
		if len(next.items) == 0 {
			return nil, &driver.UnexpectedToken{
				Token:    tok.Tok,
				Expected: p.expectedNames(cur),
				State:    -1,
			}
		}
		p.trackColumn(next)
		cur = next
		p.closeColumn(cur)
	}

	root := p.findRoot(startSym, len(toks))
	if root == nil {
		row, col := 1, 1
		if len(toks) > 0 {
			last := toks[len(toks)-1].Tok
			row, col = last.EndRow, last.EndCol
		}
		return nil, &driver.UnexpectedEOF{
			Expected: p.expectedNames(cur),
			Row:      row,
			Col:      col,
		}
	}
	return root, nil
}

// runDynamic is the text-position chart: columns are byte offsets and the
// lexer is consulted at every position the chart reaches.
func (p *Parser) runDynamic(startSym symbol.Symbol) (*forestNode, error) {
	ini := newColumn(0, 0)
	p.trackColumn(ini)
	p.predict(ini, startSym)

	end := p.lex.Len()
	colAt := func(pos int) *column {
		if c, ok := p.colIndex[pos]; ok {
			return c
		}
		c := newColumn(pos, pos)
		p.trackColumn(c)
		return c
	}

	maxReached := 0
	for pos := 0; pos <= end; pos++ {
		cur, ok := p.colIndex[pos]
		if !ok || len(cur.items) == 0 {
			continue
		}
		if pos > maxReached {
			maxReached = pos
		}
		p.closeColumn(cur)
		if pos == end {
			continue
		}
		for _, termNum := range cur.scanOrder {
			items := cur.scannable[termNum]
			entry := p.cg.LexSpec.Entries[termNum]
			if entry == nil {
				continue
			}
			for _, n := range entry.MatchLengths(p.lex.TextFrom(pos), p.dynamicComplete) {
				row, colNo := p.lex.PositionAt(pos)
				endRow, endCol := p.lex.PositionAt(pos + n)
				tok := &tree.Token{
					Type:     entry.Name,
					Value:    p.lex.TextFrom(pos)[:n],
					StartPos: pos,
					EndPos:   pos + n,
					Row:      row,
					Col:      colNo,
					EndRow:   endRow,
					EndCol:   endCol,
				}
				next := colAt(pos + n)
				node := p.forest.tokenNode(tok, pos, pos+n)
				for _, it := range items {
					p.advance(next, it, node)
				}
			}
			// Ignored terminals may match anywhere; skipping them is
			// modeled by scanning them from every item unchanged.
		}
		p.scanIgnored(cur, colAt)
	}

	root := p.findRootSpan(startSym, 0, end)
	if root == nil {
		row, colNo := p.lex.PositionAt(maxReached)
		c, _ := utf8.DecodeRuneInString(p.lex.TextFrom(maxReached))
		return nil, &driver.UnexpectedCharacters{
			Char: c,
			Pos:  maxReached,
			Row:  row,
			Col:  colNo,
		}
	}
	return root, nil
}

// scanIgnored carries every item across an ignored-terminal match
// unchanged, which is how the dynamic chart skips whitespace.
func (p *Parser) scanIgnored(cur *column, colAt func(int) *column) {
	for _, num := range p.cg.LexSpec.IgnoredTerminals() {
		entry := p.cg.LexSpec.Entries[num]
		if entry == nil {
			continue
		}
		n := entry.Match(p.lex.TextFrom(cur.pos))
		if n <= 0 {
			continue
		}
		next := colAt(cur.pos + n)
		for _, it := range cur.items {
			p.addItem(next, &item{
				prod:   it.prod,
				dot:    it.dot,
				origin: it.origin,
				node:   it.node,
			})
		}
	}
}

// closeColumn runs prediction and completion to a fixed point.
func (p *Parser) closeColumn(col *column) {
	for i := 0; i < len(col.items); i++ {
		it := col.items[i]
		rhs := p.cg.ProdRHS(it.prod)
		if it.dot < len(rhs) {
			continue
		}
		p.complete(col, it)
	}
}

// complete advances every parent waiting for the item's LHS.
func (p *Parser) complete(col *column, it *item) {
	lhs := p.cg.ProdLHS(it.prod)
	node := it.node
	if node == nil {
		// An empty production completes with an empty family.
		node = p.forest.symbolNode(lhs, col.ordinal, col.ordinal)
		node.addFamily(it.prod, nil, nil)
	}

	if it.origin == col.ordinal {
		col.nullCompletions[lhs] = node
	}

	originCol := p.columnAt(it.origin)
	for i := 0; i < len(originCol.items); i++ {
		parent := originCol.items[i]
		rhs := p.cg.ProdRHS(parent.prod)
		if parent.dot >= len(rhs) || rhs[parent.dot] != lhs {
			continue
		}
		p.advance(col, parent, node)
	}
}

// advance moves parent's dot over child, packing the derivation, and adds
// the result to col.
func (p *Parser) advance(col *column, parent *item, child *forestNode) {
	rhs := p.cg.ProdRHS(parent.prod)
	lhs := p.cg.ProdLHS(parent.prod)
	node := p.forest.makeNode(parent.prod, parent.dot+1, len(rhs), lhs, parent.origin, col.ordinal, parent.node, child)
	p.addItem(col, &item{
		prod:   parent.prod,
		dot:    parent.dot + 1,
		origin: parent.origin,
		node:   node,
	})
}

// addItem inserts an item, firing prediction and same-column null
// completion for whatever the dot now expects.
func (p *Parser) addItem(col *column, it *item) {
	key := itemKey{
		prod:   it.prod,
		dot:    it.dot,
		origin: it.origin,
		node:   it.node,
	}
	if _, ok := col.seen[key]; ok {
		return
	}
	col.seen[key] = struct{}{}
	col.items = append(col.items, it)

	rhs := p.cg.ProdRHS(it.prod)
	if it.dot >= len(rhs) {
		return
	}
	next := rhs[it.dot]
	if next.IsTerminal() {
		num := next.Num().Int()
		if _, ok := col.scannable[num]; !ok {
			col.scanOrder = append(col.scanOrder, num)
		}
		col.scannable[num] = append(col.scannable[num], it)
		return
	}
	p.predict(col, next)
	if node, ok := col.nullCompletions[next]; ok {
		p.advance(col, it, node)
	}
}

func (p *Parser) predict(col *column, sym symbol.Symbol) {
	if _, ok := col.predicted[sym]; ok {
		return
	}
	col.predicted[sym] = struct{}{}
	for _, prod := range p.cg.ProductionsOf(sym) {
		p.addItem(col, &item{
			prod:   prod,
			dot:    0,
			origin: col.ordinal,
		})
	}
}

func (p *Parser) trackColumn(c *column) {
	p.columns = append(p.columns, c)
	p.colIndex[c.ordinal] = c
}

func (p *Parser) columnAt(ordinal int) *column {
	return p.colIndex[ordinal]
}

func (p *Parser) findRoot(startSym symbol.Symbol, end int) *forestNode {
	return p.findRootSpan(startSym, 0, end)
}

func (p *Parser) findRootSpan(startSym symbol.Symbol, start, end int) *forestNode {
	key := forestKey{
		kind:  nodeKindSymbol,
		a:     int(startSym),
		start: start,
		end:   end,
	}
	n, ok := p.forest.nodes[key]
	if !ok || len(n.families) == 0 {
		return nil
	}
	return n
}

func (p *Parser) expectedNames(col *column) []string {
	var names []string
	for _, num := range col.scanOrder {
		names = append(names, p.cg.TermAttr(num).Name)
	}
	return names
}
