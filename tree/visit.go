package tree

import (
	"fmt"
)

// VisitError wraps a failure raised by a visitor or transformer callback
// with the rule it was dispatched on.
type VisitError struct {
	Rule  string
	Cause error
}

func (e *VisitError) Error() string {
	return fmt.Sprintf("error visiting rule %v: %v", e.Rule, e.Cause)
}

func (e *VisitError) Unwrap() error {
	return e.Cause
}

// Visitor walks a tree invoking a handler per rule name. Handlers observe
// nodes and return an error to abort the walk; the tree is not modified.
type Visitor struct {
	handlers map[string]func(*Tree) error
	fallback func(*Tree) error
}

func NewVisitor() *Visitor {
	return &Visitor{
		handlers: map[string]func(*Tree) error{},
	}
}

// On registers a handler for trees whose Data equals rule.
func (v *Visitor) On(rule string, handler func(*Tree) error) *Visitor {
	v.handlers[rule] = handler
	return v
}

// Default registers a handler for trees no other handler matches.
func (v *Visitor) Default(handler func(*Tree) error) *Visitor {
	v.fallback = handler
	return v
}

// VisitTopDown walks the tree parents-first.
func (v *Visitor) VisitTopDown(t *Tree) error {
	if err := v.call(t); err != nil {
		return err
	}
	for _, c := range t.Children {
		if sub, ok := c.(*Tree); ok {
			if err := v.VisitTopDown(sub); err != nil {
				return err
			}
		}
	}
	return nil
}

// VisitBottomUp walks the tree children-first.
func (v *Visitor) VisitBottomUp(t *Tree) error {
	for _, c := range t.Children {
		if sub, ok := c.(*Tree); ok {
			if err := v.VisitBottomUp(sub); err != nil {
				return err
			}
		}
	}
	return v.call(t)
}

func (v *Visitor) call(t *Tree) error {
	handler, ok := v.handlers[t.Data]
	if !ok {
		handler = v.fallback
	}
	if handler == nil {
		return nil
	}
	err := handler(t)
	if err != nil {
		if _, ok := err.(*VisitError); ok {
			return err
		}
		return &VisitError{
			Rule:  t.Data,
			Cause: err,
		}
	}
	return nil
}

// Transformer rewrites a tree bottom-up. The handler for rule R receives
// the already-transformed children and returns a replacement value; the
// transformed value of the root is the final result.
type Transformer struct {
	handlers     map[string]func(children []any) (any, error)
	treeHandlers map[string]func(t *Tree, children []any) (any, error)
	tokens       map[string]func(tok *Token) (any, error)
	fallback     func(t *Tree, children []any) (any, error)
}

func NewTransformer() *Transformer {
	return &Transformer{
		handlers:     map[string]func([]any) (any, error){},
		treeHandlers: map[string]func(*Tree, []any) (any, error){},
		tokens:       map[string]func(*Token) (any, error){},
	}
}

// On registers a handler receiving the transformed children as positional
// arguments.
func (tr *Transformer) On(rule string, handler func(children []any) (any, error)) *Transformer {
	tr.handlers[rule] = handler
	return tr
}

// OnTree registers a handler that also receives the original tree.
func (tr *Transformer) OnTree(rule string, handler func(t *Tree, children []any) (any, error)) *Transformer {
	tr.treeHandlers[rule] = handler
	return tr
}

// OnToken registers a handler invoked for every token of the given type.
func (tr *Transformer) OnToken(typ string, handler func(tok *Token) (any, error)) *Transformer {
	tr.tokens[typ] = handler
	return tr
}

// Default registers a handler for rules no other handler matches. When no
// default is registered, an unmatched tree is rebuilt with its transformed
// children.
func (tr *Transformer) Default(handler func(t *Tree, children []any) (any, error)) *Transformer {
	tr.fallback = handler
	return tr
}

// Transform rewrites the tree and returns the root's transformed value.
func (tr *Transformer) Transform(node Node) (any, error) {
	switch n := node.(type) {
	case nil:
		return nil, nil
	case *Token:
		if handler, ok := tr.tokens[n.Type]; ok {
			v, err := handler(n)
			if err != nil {
				return nil, &VisitError{Rule: n.Type, Cause: err}
			}
			return v, nil
		}
		return n, nil
	case *Tree:
		children := make([]any, len(n.Children))
		for i, c := range n.Children {
			v, err := tr.Transform(c)
			if err != nil {
				return nil, err
			}
			children[i] = v
		}
		return tr.call(n, children)
	}
	return nil, fmt.Errorf("unknown node type: %T", node)
}

func (tr *Transformer) call(t *Tree, children []any) (any, error) {
	var v any
	var err error
	switch {
	case tr.handlers[t.Data] != nil:
		v, err = tr.handlers[t.Data](children)
	case tr.treeHandlers[t.Data] != nil:
		v, err = tr.treeHandlers[t.Data](t, children)
	case tr.fallback != nil:
		v, err = tr.fallback(t, children)
	default:
		rebuilt := make([]Node, len(children))
		for i, c := range children {
			node, ok := c.(Node)
			if !ok && c != nil {
				return nil, &VisitError{
					Rule:  t.Data,
					Cause: fmt.Errorf("child %v of an unhandled rule is not a tree node: %T", i, c),
				}
			}
			rebuilt[i] = node
		}
		return &Tree{Data: t.Data, Children: rebuilt, Meta: t.Meta}, nil
	}
	if err != nil {
		if _, ok := err.(*VisitError); ok {
			return nil, err
		}
		return nil, &VisitError{Rule: t.Data, Cause: err}
	}
	return v, nil
}
