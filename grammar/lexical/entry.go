package lexical

import (
	"fmt"
	"regexp"
	"strings"

	spec "github.com/grackle-lang/grackle/spec/grammar"
)

// ComposePattern flattens a terminal definition into one regex source
// string for the host engine. Terminal definitions may reference other
// terminals; references are inlined, and a reference cycle is an error.
func ComposePattern(term *spec.TerminalNode, resolve func(name string) (*spec.TerminalNode, bool)) (string, error) {
	c := &composer{
		resolve: resolve,
	}
	return c.composeExpansions(term.Name, term.RHS)
}

type composer struct {
	resolve func(name string) (*spec.TerminalNode, bool)
	stack   []string
}

func (c *composer) composeExpansions(name string, exps *spec.ExpansionsNode) (string, error) {
	for _, n := range c.stack {
		if n == name {
			return "", fmt.Errorf("terminal %v references itself", name)
		}
	}
	c.stack = append(c.stack, name)
	defer func() {
		c.stack = c.stack[:len(c.stack)-1]
	}()

	alts := make([]string, len(exps.Alts))
	for i, alt := range exps.Alts {
		var b strings.Builder
		for _, expr := range alt.Elems {
			part, err := c.composeExpr(expr)
			if err != nil {
				return "", err
			}
			b.WriteString(part)
		}
		alts[i] = b.String()
	}
	if len(alts) == 1 {
		return alts[0], nil
	}
	return "(?:" + strings.Join(alts, "|") + ")", nil
}

func (c *composer) composeExpr(expr *spec.ExprNode) (string, error) {
	atom, err := c.composeAtom(expr.Atom)
	if err != nil {
		return "", err
	}
	switch expr.Op {
	case 0:
		return atom, nil
	case '?':
		return "(?:" + atom + ")?", nil
	case '*':
		return "(?:" + atom + ")*", nil
	case '+':
		return "(?:" + atom + ")+", nil
	case '~':
		if expr.RangeMin == expr.RangeMax {
			return fmt.Sprintf("(?:%v){%v}", atom, expr.RangeMin), nil
		}
		return fmt.Sprintf("(?:%v){%v,%v}", atom, expr.RangeMin, expr.RangeMax), nil
	}
	return "", fmt.Errorf("unknown operator: %q", expr.Op)
}

func (c *composer) composeAtom(atom *spec.AtomNode) (string, error) {
	switch atom.Kind {
	case spec.AtomKindGroup:
		return c.composeExpansions("", atom.Group)
	case spec.AtomKindMaybe:
		body, err := c.composeExpansions("", atom.Group)
		if err != nil {
			return "", err
		}
		return "(?:" + body + ")?", nil
	case spec.AtomKindString:
		return QuoteLiteral(atom.Text, atom.CaseInsensitive), nil
	case spec.AtomKindPattern:
		return wrapPattern(atom), nil
	case spec.AtomKindTermRef:
		term, ok := c.resolve(atom.Text)
		if !ok {
			return "", fmt.Errorf("undefined terminal: %v", atom.Text)
		}
		return c.composeExpansions(term.Name, term.RHS)
	}
	return "", fmt.Errorf("a terminal definition must not reference a rule: %v", atom.Text)
}

// QuoteLiteral escapes text for the host regex engine.
func QuoteLiteral(text string, caseInsensitive bool) string {
	quoted := regexp.QuoteMeta(text)
	if caseInsensitive {
		return "(?i:" + quoted + ")"
	}
	return quoted
}

func wrapPattern(atom *spec.AtomNode) string {
	flags := atom.Flags
	if flags != "" {
		return "(?" + flags + ":" + atom.Text + ")"
	}
	return "(?:" + atom.Text + ")"
}

// IsLiteralPattern reports whether the atom tree of a terminal is a plain
// string literal, which ranks it above regex terminals of equal priority.
func IsLiteralPattern(term *spec.TerminalNode) (string, bool) {
	if len(term.RHS.Alts) != 1 {
		return "", false
	}
	alt := term.RHS.Alts[0]
	if len(alt.Elems) != 1 {
		return "", false
	}
	expr := alt.Elems[0]
	if expr.Op != 0 {
		return "", false
	}
	atom := expr.Atom
	if atom.Kind != spec.AtomKindString || atom.CaseInsensitive {
		return "", false
	}
	return atom.Text, true
}
