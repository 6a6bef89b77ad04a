package grammar

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	verr "github.com/grackle-lang/grackle/error"
	"github.com/grackle-lang/grackle/grammar/lexical"
	"github.com/grackle-lang/grackle/grammar/symbol"
	spec "github.com/grackle-lang/grackle/spec/grammar"
)

// PriorityMode controls how declared rule priorities are interpreted.
type PriorityMode string

const (
	// PriorityNormal uses priorities as declared.
	PriorityNormal = PriorityMode("normal")

	// PriorityInvert flips the sign of explicitly declared priorities;
	// undeclared ones stay at zero.
	PriorityInvert = PriorityMode("invert")

	// PriorityNone discards all declared priorities.
	PriorityNone = PriorityMode("none")
)

type buildConfig struct {
	starts            []string
	needTables        bool
	keepAllTokens     bool
	maybePlaceholders bool
	priority          PriorityMode
	logger            *zap.Logger
}

type BuildOption func(c *buildConfig) error

// StartSymbols sets the start rules. Each one gets its own parsing table.
func StartSymbols(starts ...string) BuildOption {
	return func(c *buildConfig) error {
		if len(starts) == 0 {
			return fmt.Errorf("at least one start symbol is required")
		}
		c.starts = starts
		return nil
	}
}

// EnableTables builds the LALR(1) parsing tables. The Earley driver works
// from the productions alone and doesn't need them.
func EnableTables() BuildOption {
	return func(c *buildConfig) error {
		c.needTables = true
		return nil
	}
}

func KeepAllTokens() BuildOption {
	return func(c *buildConfig) error {
		c.keepAllTokens = true
		return nil
	}
}

// MaybePlaceholders makes `[x]` produce a nil child when x is absent.
func MaybePlaceholders() BuildOption {
	return func(c *buildConfig) error {
		c.maybePlaceholders = true
		return nil
	}
}

func Priority(mode PriorityMode) BuildOption {
	return func(c *buildConfig) error {
		switch mode {
		case PriorityNormal, PriorityInvert, PriorityNone:
		default:
			return fmt.Errorf("unknown priority mode: %v", mode)
		}
		c.priority = mode
		return nil
	}
}

func Logger(l *zap.Logger) BuildOption {
	return func(c *buildConfig) error {
		c.logger = l
		return nil
	}
}

// RuleAttrs are the tree-shaping attributes of one production, consumed
// by the drivers when they reduce it.
type RuleAttrs struct {
	Name             string
	Alias            string
	InlineIfSingle   bool
	FilterOut        bool
	KeepAllTokens    bool
	EmptyPlaceholder bool
	Priority         int
	RHSLen           int
}

// TermAttrs are the tree-shaping attributes of one terminal.
type TermAttrs struct {
	Name      string
	FilterOut bool
}

// CompiledGrammar is the immutable build product: the lowered rule set,
// the lexical specification, and the parsing tables when requested. It is
// safe to share between concurrent parses.
type CompiledGrammar struct {
	symTab  *symbol.SymbolTable
	prods   *productionSet
	first   *firstSet
	follow  *followSet
	LexSpec *lexical.Spec

	tables     map[string]*ParsingTable
	starts     map[string]symbol.Symbol
	startRules map[string]symbol.Symbol
	startNames []string

	ruleAttrs []*RuleAttrs // indexed by production number
	termAttrs []*TermAttrs // indexed by terminal number
}

// StartNames returns the start rule names in declaration order.
func (g *CompiledGrammar) StartNames() []string {
	return g.startNames
}

// Table returns the parsing table for the given start rule, or nil when
// tables were not built or the start is unknown.
func (g *CompiledGrammar) Table(start string) *ParsingTable {
	return g.tables[start]
}

func (g *CompiledGrammar) SymbolTable() *symbol.SymbolTableReader {
	return g.symTab.Reader()
}

func (g *CompiledGrammar) TerminalCount() int {
	return g.symTab.Reader().TerminalCount()
}

func (g *CompiledGrammar) NonTerminalCount() int {
	return g.symTab.Reader().NonTerminalCount()
}

func (g *CompiledGrammar) ProductionCount() int {
	return g.prods.count()
}

// Attrs returns the tree-shaping attributes of a production.
func (g *CompiledGrammar) Attrs(prod int) *RuleAttrs {
	return g.ruleAttrs[prod]
}

// TermAttr returns the tree-shaping attributes of a terminal.
func (g *CompiledGrammar) TermAttr(term int) *TermAttrs {
	if term < 0 || term >= len(g.termAttrs) || g.termAttrs[term] == nil {
		return &TermAttrs{}
	}
	return g.termAttrs[term]
}

// ProdLHS returns the production's LHS symbol.
func (g *CompiledGrammar) ProdLHS(prod int) symbol.Symbol {
	p, ok := g.prods.findByNum(productionNum(prod))
	if !ok {
		return symbol.SymbolNil
	}
	return p.lhs
}

// ProdRHS returns the production's expansion.
func (g *CompiledGrammar) ProdRHS(prod int) []symbol.Symbol {
	p, ok := g.prods.findByNum(productionNum(prod))
	if !ok {
		return nil
	}
	return p.rhs
}

// ProductionsOf returns the numbers of the productions deriving sym.
func (g *CompiledGrammar) ProductionsOf(sym symbol.Symbol) []int {
	prods, ok := g.prods.findByLHS(sym)
	if !ok {
		return nil
	}
	nums := make([]int, len(prods))
	for i, p := range prods {
		nums[i] = p.num.Int()
	}
	return nums
}

// StartSymbolOf returns the augmented start symbol of a start rule.
func (g *CompiledGrammar) StartSymbolOf(start string) (symbol.Symbol, bool) {
	sym, ok := g.starts[start]
	return sym, ok
}

// StartRuleSymbolOf returns the user rule symbol of a start rule.
func (g *CompiledGrammar) StartRuleSymbolOf(start string) (symbol.Symbol, bool) {
	sym, ok := g.startRules[start]
	return sym, ok
}

// FollowOf returns the FOLLOW terminals of a non-terminal; eof reports
// whether <eof> belongs to the set.
func (g *CompiledGrammar) FollowOf(sym symbol.Symbol) (terms []symbol.Symbol, eof bool) {
	e, err := g.follow.find(sym)
	if err != nil {
		return nil, false
	}
	for t := range e.symbols {
		terms = append(terms, t)
	}
	return terms, e.eof
}

// Build lowers a loaded grammar to flat productions over interned
// symbols, compiles the lexical specification, and, when requested,
// constructs one LALR(1) parsing table per start symbol.
func Build(g *spec.Grammar, opts ...BuildOption) (*CompiledGrammar, error) {
	config := &buildConfig{
		starts:   []string{"start"},
		priority: PriorityNormal,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		err := opt(config)
		if err != nil {
			return nil, err
		}
	}

	b := &builder{
		g:         g,
		config:    config,
		symTab:    symbol.NewSymbolTable(),
		prods:     newProductionSet(),
		anonTerms: map[string]symbol.Symbol{},
		templates: map[string]symbol.Symbol{},
		logger:    config.logger,
	}
	return b.build()
}

type builder struct {
	g      *spec.Grammar
	config *buildConfig
	symTab *symbol.SymbolTable
	prods  *productionSet
	logger *zap.Logger

	entries []*lexical.Entry
	ignored []int

	// anonTerms collapses identical literals to one terminal.
	anonTerms map[string]symbol.Symbol

	// templates caches template instances by name and argument signature.
	templates map[string]symbol.Symbol

	ruleAttrs map[productionID]*RuleAttrs
	termAttrs []*TermAttrs

	anonRuleNum int
	defOrder    int

	maxUserPriority int
}

func (b *builder) build() (*CompiledGrammar, error) {
	if len(b.g.Rules) == 0 {
		return nil, semErrNoProduction
	}
	b.ruleAttrs = map[productionID]*RuleAttrs{}

	err := b.registerTerminals()
	if err != nil {
		return nil, err
	}

	err = b.registerRules()
	if err != nil {
		return nil, err
	}

	starts := map[string]symbol.Symbol{}
	startRules := map[string]symbol.Symbol{}
	for _, start := range b.config.starts {
		rule := b.g.Rule(start)
		if rule == nil {
			return nil, &verr.SourceError{
				Cause:      semErrUndefinedStart,
				Detail:     start,
				SourceName: b.g.Name,
			}
		}
		if rule.FilterOut {
			return nil, &verr.SourceError{
				Cause:      semErrStartFilteredOut,
				Detail:     start,
				SourceName: b.g.Name,
				Row:        rule.Pos.Row,
				Col:        rule.Pos.Col,
			}
		}
		augSym, err := b.symTab.Writer().RegisterStartSymbol(start + "'")
		if err != nil {
			return nil, err
		}
		ruleSym, _ := b.symTab.Reader().ToSymbol(start)
		augProd, err := newProduction(augSym, []symbol.Symbol{ruleSym})
		if err != nil {
			return nil, err
		}
		b.prods.append(augProd)
		b.ruleAttrs[augProd.id] = &RuleAttrs{
			Name:          start + "'",
			RHSLen:        1,
			KeepAllTokens: b.config.keepAllTokens,
		}
		starts[start] = augSym
		startRules[start] = ruleSym
	}

	for _, rule := range b.g.Rules {
		if len(rule.Params) > 0 {
			continue // templates are lowered at their call sites
		}
		ruleSym, _ := b.symTab.Reader().ToSymbol(rule.Name)
		err := b.lowerRule(ruleSym, rule, nil)
		if err != nil {
			return nil, err
		}
	}

	lexSpec, warnings, err := lexical.NewSpec(b.entries, b.ignored)
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		b.logger.Warn("terminal collision", zap.String("detail", w.String()))
	}

	first, err := genFirstSet(b.prods)
	if err != nil {
		return nil, err
	}
	follow, err := genFollowSet(b.prods, first)
	if err != nil {
		return nil, err
	}

	compiled := &CompiledGrammar{
		symTab:     b.symTab,
		prods:      b.prods,
		first:      first,
		follow:     follow,
		LexSpec:    lexSpec,
		tables:     map[string]*ParsingTable{},
		starts:     starts,
		startRules: startRules,
		startNames: b.config.starts,
		termAttrs:  b.termAttrs,
	}

	compiled.ruleAttrs = make([]*RuleAttrs, b.prods.count())
	for id, attrs := range b.ruleAttrs {
		prod, ok := b.prods.findByID(id)
		if !ok {
			return nil, fmt.Errorf("production not found for attributes: %v", id)
		}
		attrs.RHSLen = prod.rhsLen
		compiled.ruleAttrs[prod.num.Int()] = attrs
	}

	if b.config.needTables {
		for _, start := range b.config.starts {
			lr0, err := genLR0Automaton(b.prods, starts[start])
			if err != nil {
				return nil, err
			}
			lalr1, err := genLALR1Automaton(lr0, b.prods, first)
			if err != nil {
				return nil, err
			}
			tb := &lrTableBuilder{
				automaton:    lalr1.lr0Automaton,
				prods:        b.prods,
				termCount:    b.symTab.Reader().TerminalCount(),
				nonTermCount: b.symTab.Reader().NonTerminalCount(),
				symTab:       b.symTab.Reader(),
			}
			tab, err := tb.build()
			if err != nil {
				return nil, err
			}
			compiled.tables[start] = tab
			b.logger.Debug("parsing table built",
				zap.String("start", start),
				zap.Int("states", tab.stateCount))
		}
	}

	return compiled, nil
}

// registerTerminals interns the terminals the lexer will know about: the
// ones rules reference, the ignored set, and the declared set. Terminals
// used only inside other terminal definitions stay composition-only.
func (b *builder) registerTerminals() error {
	b.termAttrs = []*TermAttrs{}

	referenced := map[string]spec.Position{}
	var walk func(exps *spec.ExpansionsNode)
	walk = func(exps *spec.ExpansionsNode) {
		if exps == nil {
			return
		}
		for _, alt := range exps.Alts {
			for _, expr := range alt.Elems {
				atom := expr.Atom
				switch atom.Kind {
				case spec.AtomKindGroup, spec.AtomKindMaybe:
					walk(atom.Group)
				case spec.AtomKindTermRef:
					if _, ok := referenced[atom.Text]; !ok {
						referenced[atom.Text] = atom.Pos
					}
				case spec.AtomKindTemplate:
					for _, arg := range atom.Args {
						if arg.Kind == spec.AtomKindTermRef {
							if _, ok := referenced[arg.Text]; !ok {
								referenced[arg.Text] = arg.Pos
							}
						}
					}
				case spec.AtomKindString:
					if atom.CaseInsensitive {
						break
					}
					for _, term := range b.g.Terminals {
						if text, ok := lexical.IsLiteralPattern(term); ok && text == atom.Text {
							if _, ok := referenced[term.Name]; !ok {
								referenced[term.Name] = atom.Pos
							}
						}
					}
				}
			}
		}
	}
	for _, rule := range b.g.Rules {
		walk(rule.RHS)
	}

	for _, term := range b.g.Terminals {
		if term.Priority > b.maxUserPriority {
			b.maxUserPriority = term.Priority
		}
	}

	register := func(term *spec.TerminalNode) error {
		sym, err := b.symTab.Writer().RegisterTerminalSymbol(term.Name)
		if err != nil {
			return err
		}

		pattern, err := lexical.ComposePattern(term, b.resolveTerminal)
		if err != nil {
			return &verr.SourceError{
				Cause:      semErrTermRecursion,
				Detail:     err.Error(),
				SourceName: b.g.Name,
				Row:        term.Pos.Row,
				Col:        term.Pos.Col,
			}
		}

		entry := &lexical.Entry{
			Num:              sym.Num().Int(),
			Name:             term.Name,
			Pattern:          pattern,
			Priority:         term.Priority,
			ExplicitPriority: term.Priority != 0,
			FilterOut:        term.FilterOut,
			DefOrder:         b.defOrder,
		}
		if text, ok := lexical.IsLiteralPattern(term); ok {
			entry.Literal = true
			entry.Text = text
		}
		b.defOrder++
		b.entries = append(b.entries, entry)
		b.setTermAttr(sym, &TermAttrs{
			Name:      term.Name,
			FilterOut: term.FilterOut,
		})
		return nil
	}

	for _, term := range b.g.Terminals {
		if _, used := referenced[term.Name]; !used {
			continue
		}
		err := register(term)
		if err != nil {
			return err
		}
	}

	for _, name := range b.g.Declared {
		if b.g.Terminal(name) != nil {
			return &verr.SourceError{
				Cause:      semErrDeclaredPattern,
				Detail:     name,
				SourceName: b.g.Name,
			}
		}
		sym, err := b.symTab.Writer().RegisterTerminalSymbol(name)
		if err != nil {
			return err
		}
		b.entries = append(b.entries, &lexical.Entry{
			Num:      sym.Num().Int(),
			Name:     name,
			Declared: true,
			DefOrder: b.defOrder,
		})
		b.defOrder++
		b.setTermAttr(sym, &TermAttrs{
			Name:      name,
			FilterOut: strings.HasPrefix(name, "_"),
		})
	}

	for _, atom := range b.g.Ignore {
		switch atom.Kind {
		case spec.AtomKindTermRef:
			term := b.g.Terminal(atom.Text)
			if term == nil {
				return &verr.SourceError{
					Cause:      semErrIgnoreUndefined,
					Detail:     atom.Text,
					SourceName: b.g.Name,
					Row:        atom.Pos.Row,
					Col:        atom.Pos.Col,
				}
			}
			if _, ok := b.symTab.Reader().ToSymbol(atom.Text); !ok {
				err := register(term)
				if err != nil {
					return err
				}
			}
			sym, _ := b.symTab.Reader().ToSymbol(atom.Text)
			b.ignored = append(b.ignored, sym.Num().Int())
		case spec.AtomKindString, spec.AtomKindPattern:
			sym, err := b.anonTerminal(atom)
			if err != nil {
				return err
			}
			b.ignored = append(b.ignored, sym.Num().Int())
		}
	}

	return nil
}

func (b *builder) resolveTerminal(name string) (*spec.TerminalNode, bool) {
	term := b.g.Terminal(name)
	if term == nil {
		return nil, false
	}
	return term, true
}

func (b *builder) setTermAttr(sym symbol.Symbol, attrs *TermAttrs) {
	num := sym.Num().Int()
	for len(b.termAttrs) <= num {
		b.termAttrs = append(b.termAttrs, nil)
	}
	b.termAttrs[num] = attrs
}

// anonTerminal interns the terminal for an inline string or pattern.
// Identical literals collapse to one terminal, and a literal that equals
// a user terminal's pattern reuses the user terminal.
func (b *builder) anonTerminal(atom *spec.AtomNode) (symbol.Symbol, error) {
	key := string(atom.Kind) + "/" + atom.Text
	if atom.CaseInsensitive {
		key += "/i"
	}
	if sym, ok := b.anonTerms[key]; ok {
		return sym, nil
	}

	if atom.Kind == spec.AtomKindString && !atom.CaseInsensitive {
		for _, term := range b.g.Terminals {
			text, ok := lexical.IsLiteralPattern(term)
			if !ok || text != atom.Text {
				continue
			}
			if sym, ok := b.symTab.Reader().ToSymbol(term.Name); ok {
				b.anonTerms[key] = sym
				return sym, nil
			}
		}
	}

	name := b.anonTerminalName(atom)
	sym, err := b.symTab.Writer().RegisterTerminalSymbol(name)
	if err != nil {
		return symbol.SymbolNil, err
	}

	var pattern string
	literal := false
	text := ""
	if atom.Kind == spec.AtomKindString {
		pattern = lexical.QuoteLiteral(atom.Text, atom.CaseInsensitive)
		literal = !atom.CaseInsensitive
		text = atom.Text
	} else {
		pattern = "(?" + atom.Flags + ":" + atom.Text + ")"
		if atom.Flags == "" {
			pattern = "(?:" + atom.Text + ")"
		}
	}

	b.entries = append(b.entries, &lexical.Entry{
		Num:       sym.Num().Int(),
		Name:      name,
		Pattern:   pattern,
		Literal:   literal,
		Text:      text,
		Priority:  b.maxUserPriority + 1,
		FilterOut: true,
		Anonymous: true,
		DefOrder:  b.defOrder,
	})
	b.defOrder++
	b.setTermAttr(sym, &TermAttrs{
		Name:      name,
		FilterOut: true,
	})
	b.anonTerms[key] = sym
	return sym, nil
}

var punctNames = map[rune]string{
	'.': "DOT", ',': "COMMA", ':': "COLON", ';': "SEMICOLON",
	'+': "PLUS", '-': "MINUS", '*': "STAR", '/': "SLASH",
	'\\': "BACKSLASH", '|': "VBAR", '?': "QMARK", '!': "BANG",
	'@': "AT", '#': "HASH", '$': "DOLLAR", '%': "PERCENT",
	'^': "CIRCUMFLEX", '&': "AMPERSAND", '_': "UNDERSCORE",
	'<': "LESSTHAN", '>': "MORETHAN", '=': "EQUAL", '~': "TILDE",
	'(': "LPAR", ')': "RPAR", '{': "LBRACE", '}': "RBRACE",
	'[': "LSQB", ']': "RSQB", '"': "DBLQUOTE", '\'': "QUOTE",
	'`': "BACKQUOTE", ' ': "SPACE", '\t': "TAB", '\n': "NEWLINE",
}

func (b *builder) anonTerminalName(atom *spec.AtomNode) string {
	if atom.Kind == spec.AtomKindString {
		alnum := true
		for _, c := range atom.Text {
			if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_') {
				alnum = false
				break
			}
		}
		var name string
		if alnum && atom.Text != "" && !(atom.Text[0] >= '0' && atom.Text[0] <= '9') {
			name = strings.ToUpper(atom.Text)
		} else {
			parts := make([]string, 0, len(atom.Text))
			ok := true
			for _, c := range atom.Text {
				p, found := punctNames[c]
				if !found {
					ok = false
					break
				}
				parts = append(parts, p)
			}
			if ok && len(parts) > 0 && len(parts) <= 3 {
				name = strings.Join(parts, "_")
			}
		}
		if name != "" {
			name = "__ANON_" + name
			if _, taken := b.symTab.Reader().ToSymbol(name); !taken {
				return name
			}
		}
	}
	name := fmt.Sprintf("__ANON_%v", b.anonRuleNum)
	b.anonRuleNum++
	return name
}

func (b *builder) registerRules() error {
	for _, rule := range b.g.Rules {
		if b.g.Terminal(rule.Name) != nil {
			return &verr.SourceError{
				Cause:      semErrDuplicateName,
				Detail:     rule.Name,
				SourceName: b.g.Name,
				Row:        rule.Pos.Row,
				Col:        rule.Pos.Col,
			}
		}
		if len(rule.Params) > 0 {
			continue
		}
		_, err := b.symTab.Writer().RegisterNonTerminalSymbol(rule.Name)
		if err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) rulePriority(declared int) int {
	switch b.config.priority {
	case PriorityInvert:
		return -declared
	case PriorityNone:
		return 0
	}
	return declared
}

// substitution maps template parameter names to argument atoms.
type substitution map[string]*spec.AtomNode

// lowerRule lowers each alternative of a rule definition to one flat
// production over symbols.
func (b *builder) lowerRule(lhs symbol.Symbol, rule *spec.RuleNode, subst substitution) error {
	keepAll := rule.KeepAllTokens || b.config.keepAllTokens
	for _, alt := range rule.RHS.Alts {
		rhs := make([]symbol.Symbol, 0, len(alt.Elems))
		for _, expr := range alt.Elems {
			sym, err := b.lowerExpr(rule, expr, subst)
			if err != nil {
				return err
			}
			rhs = append(rhs, sym)
		}

		prod, err := newProduction(lhs, rhs)
		if err != nil {
			return err
		}
		prod.priority = b.rulePriority(rule.Priority)
		if !b.prods.append(prod) {
			// Two alternatives with an identical expansion collapse into
			// one production, which the LALR builder would otherwise see
			// as a reduce/reduce conflict with itself.
			return &verr.SourceError{
				Cause:      semErrDuplicateAltern,
				Detail:     rule.Name,
				SourceName: b.g.Name,
				Row:        alt.Pos.Row,
				Col:        alt.Pos.Col,
			}
		}
		b.ruleAttrs[prod.id] = &RuleAttrs{
			Name:           rule.Name,
			Alias:          alt.Alias,
			InlineIfSingle: rule.Inline,
			FilterOut:      rule.FilterOut,
			KeepAllTokens:  keepAll,
			Priority:       b.rulePriority(rule.Priority),
		}
	}
	return nil
}

func (b *builder) lowerExpr(rule *spec.RuleNode, expr *spec.ExprNode, subst substitution) (symbol.Symbol, error) {
	switch expr.Op {
	case 0:
		return b.lowerAtom(rule, expr.Atom, subst)
	case '?':
		sym, err := b.lowerAtom(rule, expr.Atom, subst)
		if err != nil {
			return symbol.SymbolNil, err
		}
		return b.optionalRule(sym, false)
	case '*':
		sym, err := b.lowerAtom(rule, expr.Atom, subst)
		if err != nil {
			return symbol.SymbolNil, err
		}
		return b.repeatRule(sym, false)
	case '+':
		sym, err := b.lowerAtom(rule, expr.Atom, subst)
		if err != nil {
			return symbol.SymbolNil, err
		}
		return b.repeatRule(sym, true)
	case '~':
		sym, err := b.lowerAtom(rule, expr.Atom, subst)
		if err != nil {
			return symbol.SymbolNil, err
		}
		return b.rangeRule(sym, expr.RangeMin, expr.RangeMax)
	}
	return symbol.SymbolNil, fmt.Errorf("unknown operator: %q", expr.Op)
}

func (b *builder) lowerAtom(rule *spec.RuleNode, atom *spec.AtomNode, subst substitution) (symbol.Symbol, error) {
	switch atom.Kind {
	case spec.AtomKindString, spec.AtomKindPattern:
		return b.anonTerminal(atom)
	case spec.AtomKindTermRef:
		sym, ok := b.symTab.Reader().ToSymbol(atom.Text)
		if !ok {
			return symbol.SymbolNil, &verr.SourceError{
				Cause:      semErrUndefinedSym,
				Detail:     atom.Text,
				SourceName: b.g.Name,
				Row:        atom.Pos.Row,
				Col:        atom.Pos.Col,
			}
		}
		return sym, nil
	case spec.AtomKindRuleRef:
		if subst != nil {
			if arg, ok := subst[atom.Text]; ok {
				return b.lowerAtom(rule, arg, nil)
			}
		}
		sym, ok := b.symTab.Reader().ToSymbol(atom.Text)
		if !ok {
			if tmpl := b.g.Rule(atom.Text); tmpl != nil && len(tmpl.Params) > 0 {
				return symbol.SymbolNil, &verr.SourceError{
					Cause:      semErrTemplateArity,
					Detail:     atom.Text,
					SourceName: b.g.Name,
					Row:        atom.Pos.Row,
					Col:        atom.Pos.Col,
				}
			}
			return symbol.SymbolNil, &verr.SourceError{
				Cause:      semErrUndefinedSym,
				Detail:     atom.Text,
				SourceName: b.g.Name,
				Row:        atom.Pos.Row,
				Col:        atom.Pos.Col,
			}
		}
		return sym, nil
	case spec.AtomKindGroup:
		return b.groupRule(rule, atom.Group, subst)
	case spec.AtomKindMaybe:
		groupSym, err := b.groupRule(rule, atom.Group, subst)
		if err != nil {
			return symbol.SymbolNil, err
		}
		return b.optionalRule(groupSym, b.config.maybePlaceholders)
	case spec.AtomKindTemplate:
		return b.instantiateTemplate(rule, atom, subst)
	}
	return symbol.SymbolNil, fmt.Errorf("unknown atom kind: %v", atom.Kind)
}

func (b *builder) newAnonRule(prefix string) (symbol.Symbol, string, error) {
	name := fmt.Sprintf("__%v_%v", prefix, b.anonRuleNum)
	b.anonRuleNum++
	sym, err := b.symTab.Writer().RegisterNonTerminalSymbol(name)
	if err != nil {
		return symbol.SymbolNil, "", err
	}
	return sym, name, nil
}

func (b *builder) appendAnonProduction(lhs symbol.Symbol, name string, rhs []symbol.Symbol, emptyPlaceholder bool) error {
	prod, err := newProduction(lhs, rhs)
	if err != nil {
		return err
	}
	if !b.prods.append(prod) {
		return nil
	}
	b.ruleAttrs[prod.id] = &RuleAttrs{
		Name:             name,
		FilterOut:        true,
		KeepAllTokens:    b.config.keepAllTokens,
		EmptyPlaceholder: emptyPlaceholder,
	}
	return nil
}

// optionalRule lowers `a?` and `[a]`: an anonymous rule deriving either
// the symbol or nothing.
func (b *builder) optionalRule(sym symbol.Symbol, placeholder bool) (symbol.Symbol, error) {
	lhs, name, err := b.newAnonRule("opt")
	if err != nil {
		return symbol.SymbolNil, err
	}
	err = b.appendAnonProduction(lhs, name, []symbol.Symbol{sym}, false)
	if err != nil {
		return symbol.SymbolNil, err
	}
	err = b.appendAnonProduction(lhs, name, nil, placeholder)
	if err != nil {
		return symbol.SymbolNil, err
	}
	return lhs, nil
}

// repeatRule lowers `a*` and `a+` left-recursively, which keeps the LALR
// stack flat.
func (b *builder) repeatRule(sym symbol.Symbol, atLeastOne bool) (symbol.Symbol, error) {
	prefix := "star"
	if atLeastOne {
		prefix = "plus"
	}
	lhs, name, err := b.newAnonRule(prefix)
	if err != nil {
		return symbol.SymbolNil, err
	}
	if atLeastOne {
		err = b.appendAnonProduction(lhs, name, []symbol.Symbol{sym}, false)
	} else {
		err = b.appendAnonProduction(lhs, name, nil, false)
	}
	if err != nil {
		return symbol.SymbolNil, err
	}
	err = b.appendAnonProduction(lhs, name, []symbol.Symbol{lhs, sym}, false)
	if err != nil {
		return symbol.SymbolNil, err
	}
	return lhs, nil
}

// rangeRule lowers `a ~ n..m` into enumerated alternatives of each length.
func (b *builder) rangeRule(sym symbol.Symbol, min, max int) (symbol.Symbol, error) {
	lhs, name, err := b.newAnonRule("rep")
	if err != nil {
		return symbol.SymbolNil, err
	}
	for n := min; n <= max; n++ {
		rhs := make([]symbol.Symbol, n)
		for i := range rhs {
			rhs[i] = sym
		}
		err = b.appendAnonProduction(lhs, name, rhs, false)
		if err != nil {
			return symbol.SymbolNil, err
		}
	}
	return lhs, nil
}

// groupRule lowers `( ... )` into a fresh anonymous rule whose children
// splice into the parent.
func (b *builder) groupRule(rule *spec.RuleNode, group *spec.ExpansionsNode, subst substitution) (symbol.Symbol, error) {
	lhs, name, err := b.newAnonRule("group")
	if err != nil {
		return symbol.SymbolNil, err
	}
	for _, alt := range group.Alts {
		rhs := make([]symbol.Symbol, 0, len(alt.Elems))
		for _, expr := range alt.Elems {
			sym, err := b.lowerExpr(rule, expr, subst)
			if err != nil {
				return symbol.SymbolNil, err
			}
			rhs = append(rhs, sym)
		}
		err = b.appendAnonProduction(lhs, name, rhs, false)
		if err != nil {
			return symbol.SymbolNil, err
		}
	}
	return lhs, nil
}

// instantiateTemplate lowers a template call `name{a, b}`. Instances are
// cached by argument signature so repeated calls share one rule.
func (b *builder) instantiateTemplate(rule *spec.RuleNode, call *spec.AtomNode, subst substitution) (symbol.Symbol, error) {
	tmpl := b.g.Rule(call.Text)
	if tmpl == nil || len(tmpl.Params) == 0 {
		return symbol.SymbolNil, &verr.SourceError{
			Cause:      semErrTemplateUndef,
			Detail:     call.Text,
			SourceName: b.g.Name,
			Row:        call.Pos.Row,
			Col:        call.Pos.Col,
		}
	}
	if len(call.Args) != len(tmpl.Params) {
		return symbol.SymbolNil, &verr.SourceError{
			Cause:      semErrTemplateArity,
			Detail:     fmt.Sprintf("%v takes %v arguments, got %v", call.Text, len(tmpl.Params), len(call.Args)),
			SourceName: b.g.Name,
			Row:        call.Pos.Row,
			Col:        call.Pos.Col,
		}
	}

	// Resolve arguments in the caller's substitution before building the
	// instance key, so nested templates specialize correctly.
	args := make([]*spec.AtomNode, len(call.Args))
	for i, arg := range call.Args {
		if subst != nil && arg.Kind == spec.AtomKindRuleRef {
			if repl, ok := subst[arg.Text]; ok {
				args[i] = repl
				continue
			}
		}
		args[i] = arg
	}

	keyParts := make([]string, len(args)+1)
	keyParts[0] = call.Text
	for i, arg := range args {
		keyParts[i+1] = string(arg.Kind) + ":" + arg.Text
	}
	key := strings.Join(keyParts, "|")
	if sym, ok := b.templates[key]; ok {
		return sym, nil
	}

	lhs, _, err := b.newAnonRule("tmpl_" + call.Text)
	if err != nil {
		return symbol.SymbolNil, err
	}
	b.templates[key] = lhs

	instSubst := substitution{}
	for i, param := range tmpl.Params {
		instSubst[param] = args[i]
	}

	inst := *tmpl
	inst.Params = nil
	err = b.lowerRule(lhs, &inst, instSubst)
	if err != nil {
		return symbol.SymbolNil, err
	}
	return lhs, nil
}
