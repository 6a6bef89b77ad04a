package grammar

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/grackle-lang/grackle/grammar/symbol"
)

type productionID [32]byte

func (id productionID) String() string {
	return hex.EncodeToString(id[:])
}

func genProductionID(lhs symbol.Symbol, rhs []symbol.Symbol) productionID {
	seq := lhs.Byte()
	for _, sym := range rhs {
		seq = append(seq, sym.Byte()...)
	}
	return productionID(sha256.Sum256(seq))
}

type productionNum uint16

const (
	productionNumNil = productionNum(0)
	productionNumMin = productionNum(1)
)

func (n productionNum) Int() int {
	return int(n)
}

// production is one lowered alternative: LHS → RHS plus the tree-shaping
// attributes the drivers apply when they reduce it.
type production struct {
	id     productionID
	num    productionNum
	lhs    symbol.Symbol
	rhs    []symbol.Symbol
	rhsLen int

	// alias renames the tree node produced by this alternative.
	alias string

	// priority orders alternatives during conflict and ambiguity
	// resolution. Higher wins; the sign may be flipped by the
	// invert-priority option before it gets here.
	priority int

	// inlineIfSingle marks a `?rule`: a produced tree with exactly one
	// child is replaced by that child.
	inlineIfSingle bool

	// filterOut marks a `_rule` or an anonymous helper rule: the produced
	// tree is spliced into its parent.
	filterOut bool

	// keepAllTokens disables token filtering under this production.
	keepAllTokens bool

	// emptyPlaceholder marks the ε-alternative of a `[...]` lowered with
	// placeholders: reducing it yields a nil child.
	emptyPlaceholder bool
}

func newProduction(lhs symbol.Symbol, rhs []symbol.Symbol) (*production, error) {
	if lhs.IsNil() {
		return nil, fmt.Errorf("LHS must be a non-nil symbol; LHS: %v, RHS: %v", lhs, rhs)
	}
	for _, sym := range rhs {
		if sym.IsNil() {
			return nil, fmt.Errorf("a symbol of RHS must be a non-nil symbol; LHS: %v, RHS: %v", lhs, rhs)
		}
	}

	return &production{
		id:     genProductionID(lhs, rhs),
		lhs:    lhs,
		rhs:    rhs,
		rhsLen: len(rhs),
	}, nil
}

func (p *production) equals(q *production) bool {
	return q.id == p.id
}

func (p *production) isEmpty() bool {
	return p.rhsLen == 0
}

type productionSet struct {
	lhs2Prods map[symbol.Symbol][]*production
	id2Prod   map[productionID]*production
	num2Prod  []*production
	num       productionNum
}

func newProductionSet() *productionSet {
	return &productionSet{
		lhs2Prods: map[symbol.Symbol][]*production{},
		id2Prod:   map[productionID]*production{},
		num2Prod:  []*production{nil}, // productionNumNil
		num:       productionNumMin,
	}
}

// append registers prod and assigns its number. It returns false when an
// identical production (same LHS and RHS) is already present.
func (ps *productionSet) append(prod *production) bool {
	if _, ok := ps.id2Prod[prod.id]; ok {
		return false
	}

	prod.num = ps.num
	ps.num++

	if prods, ok := ps.lhs2Prods[prod.lhs]; ok {
		ps.lhs2Prods[prod.lhs] = append(prods, prod)
	} else {
		ps.lhs2Prods[prod.lhs] = []*production{prod}
	}
	ps.id2Prod[prod.id] = prod
	ps.num2Prod = append(ps.num2Prod, prod)

	return true
}

func (ps *productionSet) findByID(id productionID) (*production, bool) {
	prod, ok := ps.id2Prod[id]
	return prod, ok
}

func (ps *productionSet) findByNum(num productionNum) (*production, bool) {
	if num.Int() < 1 || num.Int() >= len(ps.num2Prod) {
		return nil, false
	}
	return ps.num2Prod[num], true
}

func (ps *productionSet) findByLHS(lhs symbol.Symbol) ([]*production, bool) {
	if lhs.IsNil() {
		return nil, false
	}

	prods, ok := ps.lhs2Prods[lhs]
	return prods, ok
}

func (ps *productionSet) getAllProductions() map[productionID]*production {
	return ps.id2Prod
}

func (ps *productionSet) count() int {
	return len(ps.num2Prod)
}
