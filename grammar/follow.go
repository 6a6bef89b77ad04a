package grammar

import (
	"fmt"

	"github.com/grackle-lang/grackle/grammar/symbol"
)

type followEntry struct {
	symbols map[symbol.Symbol]struct{}
	eof     bool
}

func newFollowEntry() *followEntry {
	return &followEntry{
		symbols: map[symbol.Symbol]struct{}{},
		eof:     false,
	}
}

func (e *followEntry) add(sym symbol.Symbol) bool {
	if _, ok := e.symbols[sym]; ok {
		return false
	}
	e.symbols[sym] = struct{}{}
	return true
}

func (e *followEntry) addEOF() bool {
	if !e.eof {
		e.eof = true
		return true
	}
	return false
}

func (e *followEntry) merge(fst *firstEntry, flw *followEntry) bool {
	changed := false

	if fst != nil {
		for sym := range fst.symbols {
			added := e.add(sym)
			if added {
				changed = true
			}
		}
	}

	if flw != nil {
		for sym := range flw.symbols {
			added := e.add(sym)
			if added {
				changed = true
			}
		}
		if flw.eof {
			added := e.addEOF()
			if added {
				changed = true
			}
		}
	}

	return changed
}

type followSet struct {
	set map[symbol.Symbol]*followEntry
}

func newFollow(prods *productionSet) *followSet {
	flw := &followSet{
		set: map[symbol.Symbol]*followEntry{},
	}
	for _, prod := range prods.getAllProductions() {
		if _, ok := flw.set[prod.lhs]; ok {
			continue
		}
		flw.set[prod.lhs] = newFollowEntry()
	}
	return flw
}

func (flw *followSet) find(sym symbol.Symbol) (*followEntry, error) {
	e, ok := flw.set[sym]
	if !ok {
		return nil, fmt.Errorf("an entry of FOLLOW was not found; symbol: %s", sym)
	}
	return e, nil
}

// genFollowSet computes FOLLOW for every non-terminal. The set is exposed
// through CompiledGrammar.FollowOf.
func genFollowSet(prods *productionSet, first *firstSet) (*followSet, error) {
	flw := newFollow(prods)
	for _, prod := range prods.getAllProductions() {
		if prod.lhs.IsStart() {
			e, err := flw.find(prod.lhs)
			if err != nil {
				return nil, err
			}
			e.addEOF()
		}
	}
	for {
		more := false
		for _, prod := range prods.getAllProductions() {
			for i, sym := range prod.rhs {
				if !sym.IsNonTerminal() {
					continue
				}

				e, err := flw.find(sym)
				if err != nil {
					return nil, err
				}

				fst, err := first.find(prod, i+1)
				if err != nil {
					return nil, err
				}

				var lhsFlw *followEntry
				if fst.empty {
					lhsFlw, err = flw.find(prod.lhs)
					if err != nil {
						return nil, err
					}
				}

				if e.merge(fst, lhsFlw) {
					more = true
				}
			}
		}
		if !more {
			break
		}
	}
	return flw, nil
}
