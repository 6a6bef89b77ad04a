package grammar

import (
	"fmt"
	"sort"
	"strings"

	"github.com/grackle-lang/grackle/grammar/symbol"
)

type ActionType string

const (
	ActionTypeShift  = ActionType("shift")
	ActionTypeReduce = ActionType("reduce")
	ActionTypeError  = ActionType("error")
)

type actionEntry int

const actionEntryEmpty = actionEntry(0)

func newShiftActionEntry(state stateNum) actionEntry {
	return actionEntry(state * -1)
}

func newReduceActionEntry(prod productionNum) actionEntry {
	return actionEntry(prod)
}

func (e actionEntry) isEmpty() bool {
	return e == actionEntryEmpty
}

func (e actionEntry) describe() (ActionType, stateNum, productionNum) {
	if e == actionEntryEmpty {
		return ActionTypeError, stateNumInitial, productionNumNil
	}
	if e < 0 {
		return ActionTypeShift, stateNum(e * -1), productionNumNil
	}
	return ActionTypeReduce, stateNumInitial, productionNum(e)
}

type goToEntry uint

const goToEntryEmpty = goToEntry(0)

func newGoToEntry(state stateNum) goToEntry {
	return goToEntry(state)
}

type GoToType string

const (
	GoToTypeRegistered = GoToType("registered")
	GoToTypeError      = GoToType("error")
)

func (e goToEntry) describe() (GoToType, stateNum) {
	if e == goToEntryEmpty {
		return GoToTypeError, stateNumInitial
	}
	return GoToTypeRegistered, stateNum(e)
}

// ParsingTable is the LALR(1) action/goto table for one start symbol.
// States are numbered from 0; the initial state is not necessarily 0.
//
// A shift for state s is stored as -s, a reduce for production p as +p,
// and 0 is the error entry, so one int carries the whole action space.
type ParsingTable struct {
	actionTable      []actionEntry
	goToTable        []goToEntry
	stateCount       int
	terminalCount    int
	nonTerminalCount int

	InitialState    stateNum
	StartProduction productionNum
}

func (t *ParsingTable) getAction(state stateNum, sym symbol.SymbolNum) (ActionType, stateNum, productionNum) {
	pos := state.Int()*t.terminalCount + sym.Int()
	return t.actionTable[pos].describe()
}

func (t *ParsingTable) getGoTo(state stateNum, sym symbol.SymbolNum) (GoToType, stateNum) {
	pos := state.Int()*t.nonTerminalCount + sym.Int()
	return t.goToTable[pos].describe()
}

// Action returns the packed action entry: negative is a shift to state
// -n, positive a reduce of production n, zero an error.
func (t *ParsingTable) Action(state int, terminal int) int {
	return int(t.actionTable[state*t.terminalCount+terminal])
}

// GoTo returns the destination state, or -1 when no transition exists.
func (t *ParsingTable) GoTo(state int, nonTerminal int) int {
	ty, next := t.getGoTo(stateNum(state), symbol.SymbolNum(nonTerminal))
	if ty == GoToTypeError {
		return -1
	}
	return next.Int()
}

func (t *ParsingTable) StateCount() int {
	return t.stateCount
}

func (t *ParsingTable) TerminalCount() int {
	return t.terminalCount
}

// ExpectedTerminals returns the terminal numbers having any action in the
// state. The contextual lexer narrows its candidate set to this, and the
// driver reports it on a syntax error.
func (t *ParsingTable) ExpectedTerminals(state int) []int {
	var terms []int
	base := state * t.terminalCount
	for term := 0; term < t.terminalCount; term++ {
		if t.actionTable[base+term] != actionEntryEmpty {
			terms = append(terms, term)
		}
	}
	return terms
}

func (t *ParsingTable) readAction(row int, col int) actionEntry {
	return t.actionTable[row*t.terminalCount+col]
}

func (t *ParsingTable) writeAction(row int, col int, act actionEntry) {
	t.actionTable[row*t.terminalCount+col] = act
}

func (t *ParsingTable) writeGoTo(state stateNum, sym symbol.Symbol, nextState stateNum) {
	pos := state.Int()*t.nonTerminalCount + sym.Num().Int()
	t.goToTable[pos] = newGoToEntry(nextState)
}

// conflict records are accumulated during table construction. Any
// conflict that priorities fail to settle is a build error.
type conflict interface {
	conflict()
	describe(b *lrTableBuilder) string
}

type shiftReduceConflict struct {
	state     stateNum
	sym       symbol.Symbol
	nextState stateNum
	prodNum   productionNum
}

func (c *shiftReduceConflict) conflict() {
}

func (c *shiftReduceConflict) describe(b *lrTableBuilder) string {
	symText, _ := b.symTab.ToText(c.sym)
	prod, _ := b.prods.findByNum(c.prodNum)
	lhsText, _ := b.symTab.ToText(prod.lhs)
	return fmt.Sprintf("shift/reduce conflict in state %v on %v (shift %v / reduce %v)", c.state, symText, c.nextState, lhsText)
}

type reduceReduceConflict struct {
	state    stateNum
	sym      symbol.Symbol
	prodNum1 productionNum
	prodNum2 productionNum
}

func (c *reduceReduceConflict) conflict() {
}

func (c *reduceReduceConflict) describe(b *lrTableBuilder) string {
	symText, _ := b.symTab.ToText(c.sym)
	prod1, _ := b.prods.findByNum(c.prodNum1)
	prod2, _ := b.prods.findByNum(c.prodNum2)
	lhs1, _ := b.symTab.ToText(prod1.lhs)
	lhs2, _ := b.symTab.ToText(prod2.lhs)
	return fmt.Sprintf("reduce/reduce conflict in state %v on %v (%v / %v)", c.state, symText, lhs1, lhs2)
}

var (
	_ conflict = &shiftReduceConflict{}
	_ conflict = &reduceReduceConflict{}
)

type lrTableBuilder struct {
	automaton    *lr0Automaton
	prods        *productionSet
	termCount    int
	nonTermCount int
	symTab       *symbol.SymbolTableReader

	unresolved []conflict
}

func (b *lrTableBuilder) build() (*ParsingTable, error) {
	var ptab *ParsingTable
	{
		initialState := b.automaton.states[b.automaton.initialState]
		var startProd productionNum
		{
			prod, ok := b.prods.findByID(initialState.items[0].prod)
			if !ok {
				return nil, fmt.Errorf("start production not found")
			}
			startProd = prod.num
		}
		ptab = &ParsingTable{
			actionTable:      make([]actionEntry, len(b.automaton.states)*b.termCount),
			goToTable:        make([]goToEntry, len(b.automaton.states)*b.nonTermCount),
			stateCount:       len(b.automaton.states),
			terminalCount:    b.termCount,
			nonTerminalCount: b.nonTermCount,
			InitialState:     initialState.num,
			StartProduction:  startProd,
		}
	}

	for _, state := range b.automaton.states {
		for sym, kID := range state.next {
			nextState := b.automaton.states[kID]
			if sym.IsTerminal() {
				b.writeShiftAction(ptab, state, sym, nextState.num)
			} else {
				ptab.writeGoTo(state.num, sym, nextState.num)
			}
		}

		for prodID := range state.reducible {
			reducibleProd, ok := b.prods.findByID(prodID)
			if !ok {
				return nil, fmt.Errorf("reducible production not found: %v", prodID)
			}

			var reducibleItem *lrItem
			for _, item := range state.items {
				if item.prod != reducibleProd.id {
					continue
				}

				reducibleItem = item
				break
			}
			if reducibleItem == nil {
				for _, item := range state.emptyProdItems {
					if item.prod != reducibleProd.id {
						continue
					}

					reducibleItem = item
					break
				}
				if reducibleItem == nil {
					return nil, fmt.Errorf("reducible item not found; state: %v, production: %v", state.num, reducibleProd.num)
				}
			}

			for a := range reducibleItem.lookAhead.symbols {
				b.writeReduceAction(ptab, state, a, reducibleProd.num)
			}
		}
	}

	if len(b.unresolved) > 0 {
		descs := make([]string, len(b.unresolved))
		for i, c := range b.unresolved {
			descs[i] = c.describe(b)
		}
		sort.Strings(descs)
		return nil, fmt.Errorf("%w:\n%v", semErrLRConflict, strings.Join(descs, "\n"))
	}

	return ptab, nil
}

// writeShiftAction writes a shift action. A shift/reduce conflict is
// settled by production priorities; when neither side carries one, the
// conflict is recorded as unresolved.
func (b *lrTableBuilder) writeShiftAction(tab *ParsingTable, state *lrState, sym symbol.Symbol, nextState stateNum) {
	act := tab.readAction(state.num.Int(), sym.Num().Int())
	if !act.isEmpty() {
		ty, _, p := act.describe()
		if ty == ActionTypeReduce {
			switch b.resolveSRConflict(state, sym, p) {
			case ActionTypeShift:
				tab.writeAction(state.num.Int(), sym.Num().Int(), newShiftActionEntry(nextState))
			case ActionTypeReduce:
				// Keep the reduce entry already in place.
			default:
				b.unresolved = append(b.unresolved, &shiftReduceConflict{
					state:     state.num,
					sym:       sym,
					nextState: nextState,
					prodNum:   p,
				})
			}
			return
		}
	}
	tab.writeAction(state.num.Int(), sym.Num().Int(), newShiftActionEntry(nextState))
}

// writeReduceAction writes a reduce action. Reduce/reduce conflicts are
// always unresolved; shift/reduce goes through the same priority check as
// writeShiftAction.
func (b *lrTableBuilder) writeReduceAction(tab *ParsingTable, state *lrState, sym symbol.Symbol, prod productionNum) {
	act := tab.readAction(state.num.Int(), sym.Num().Int())
	if !act.isEmpty() {
		ty, next, p := act.describe()
		switch ty {
		case ActionTypeReduce:
			if p == prod {
				return
			}
			b.unresolved = append(b.unresolved, &reduceReduceConflict{
				state:    state.num,
				sym:      sym,
				prodNum1: p,
				prodNum2: prod,
			})
		case ActionTypeShift:
			switch b.resolveSRConflict(state, sym, prod) {
			case ActionTypeReduce:
				tab.writeAction(state.num.Int(), sym.Num().Int(), newReduceActionEntry(prod))
			case ActionTypeShift:
				// Keep the shift entry already in place.
			default:
				b.unresolved = append(b.unresolved, &shiftReduceConflict{
					state:     state.num,
					sym:       sym,
					nextState: next,
					prodNum:   prod,
				})
			}
		}
		return
	}
	tab.writeAction(state.num.Int(), sym.Num().Int(), newReduceActionEntry(prod))
}

// resolveSRConflict compares the priority of the reducible production
// with the highest priority among the productions that want to shift sym.
// ActionTypeError means the priorities do not settle the conflict.
func (b *lrTableBuilder) resolveSRConflict(state *lrState, sym symbol.Symbol, prod productionNum) ActionType {
	reduceProd, ok := b.prods.findByNum(prod)
	if !ok {
		return ActionTypeError
	}

	shiftPrio := 0
	hasShiftPrio := false
	items, err := genLR0Closure(state.kernel, b.prods)
	if err != nil {
		return ActionTypeError
	}
	for _, item := range items {
		if item.dottedSymbol != sym {
			continue
		}
		p, ok := b.prods.findByID(item.prod)
		if !ok {
			continue
		}
		if p.priority != 0 {
			hasShiftPrio = true
			if p.priority > shiftPrio {
				shiftPrio = p.priority
			}
		}
	}

	if reduceProd.priority == 0 && !hasShiftPrio {
		return ActionTypeError
	}
	if shiftPrio > reduceProd.priority {
		return ActionTypeShift
	}
	if shiftPrio < reduceProd.priority {
		return ActionTypeReduce
	}
	return ActionTypeError
}
