package parser

import (
	"fmt"

	"github.com/grackle-lang/grackle/driver"
	"github.com/grackle-lang/grackle/grammar"
	"github.com/grackle-lang/grackle/grammar/symbol"
)

// Grammar is the table access surface the driver needs. The library's
// compiled grammar implements it through a per-start adapter, so the
// driver never sees which start symbol it is running.
type Grammar interface {
	// InitialState returns the initial state of the parsing table.
	InitialState() int

	// StartProduction returns the augmented production; reducing it
	// accepts the input.
	StartProduction() int

	// Action returns the packed action entry: negative is a shift to
	// state -n, positive a reduce of production n, zero an error.
	Action(state int, terminal int) int

	// GoTo returns the state to transition to after reducing lhs, or a
	// negative value when no transition exists.
	GoTo(state int, lhs int) int

	// LHS returns the number of the production's LHS non-terminal.
	LHS(prod int) int

	// AlternativeSymbolCount returns the RHS length of the production.
	AlternativeSymbolCount(prod int) int

	// EOF returns the EOF terminal number.
	EOF() int

	// Terminal returns the display name of a terminal.
	Terminal(num int) string

	// TerminalFilterOut reports whether tokens of the terminal are
	// dropped from parse trees.
	TerminalFilterOut(num int) bool

	// AcceptableTerminals returns the terminals having any action in the
	// state. The contextual lexer narrows candidates to it, and syntax
	// errors report it as the expectation set.
	AcceptableTerminals(state int) []int

	// Attrs returns the tree-shaping attributes of a production.
	Attrs(prod int) driver.AssembleAttrs
}

// NewGrammar adapts a compiled grammar plus one of its start symbols to
// the driver's access surface.
func NewGrammar(cg *grammar.CompiledGrammar, start string) (Grammar, error) {
	tab := cg.Table(start)
	if tab == nil {
		return nil, fmt.Errorf("no parsing table for start rule %v", start)
	}
	return &grammarImpl{
		cg:  cg,
		tab: tab,
	}, nil
}

type grammarImpl struct {
	cg  *grammar.CompiledGrammar
	tab *grammar.ParsingTable
}

func (g *grammarImpl) InitialState() int {
	return g.tab.InitialState.Int()
}

func (g *grammarImpl) StartProduction() int {
	return g.tab.StartProduction.Int()
}

func (g *grammarImpl) Action(state int, terminal int) int {
	return g.tab.Action(state, terminal)
}

func (g *grammarImpl) GoTo(state int, lhs int) int {
	return g.tab.GoTo(state, lhs)
}

func (g *grammarImpl) LHS(prod int) int {
	return g.cg.ProdLHS(prod).Num().Int()
}

func (g *grammarImpl) AlternativeSymbolCount(prod int) int {
	return g.cg.Attrs(prod).RHSLen
}

func (g *grammarImpl) EOF() int {
	return symbol.SymbolEOF.Num().Int()
}

func (g *grammarImpl) Terminal(num int) string {
	// Anonymous literal terminals read better as their text.
	if num < len(g.cg.LexSpec.Entries) {
		if e := g.cg.LexSpec.Entries[num]; e != nil && e.Anonymous && e.Text != "" {
			return e.Text
		}
	}
	return g.cg.TermAttr(num).Name
}

func (g *grammarImpl) TerminalFilterOut(num int) bool {
	return g.cg.TermAttr(num).FilterOut
}

func (g *grammarImpl) AcceptableTerminals(state int) []int {
	return g.tab.ExpectedTerminals(state)
}

func (g *grammarImpl) Attrs(prod int) driver.AssembleAttrs {
	attrs := g.cg.Attrs(prod)
	return driver.AssembleAttrs{
		Name:             attrs.Name,
		Alias:            attrs.Alias,
		InlineIfSingle:   attrs.InlineIfSingle,
		FilterOut:        attrs.FilterOut,
		KeepAllTokens:    attrs.KeepAllTokens,
		EmptyPlaceholder: attrs.EmptyPlaceholder,
	}
}
