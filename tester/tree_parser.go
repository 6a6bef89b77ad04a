package tester

import (
	"fmt"
	"strings"

	"github.com/grackle-lang/grackle/tree"
)

// ExpectedTree is a tree pattern from a test case: (rule (RULE 'lexeme')).
// A terminal pattern is either 'lexeme' (any terminal) or (TYPE 'lexeme').
type ExpectedTree struct {
	Parent   *ExpectedTree
	Offset   int
	Kind     string
	Lexeme   string
	IsToken  bool
	Children []*ExpectedTree
}

func (t *ExpectedTree) fill() *ExpectedTree {
	for i, c := range t.Children {
		c.Parent = t
		c.Offset = i
		c.fill()
	}
	return t
}

func (t *ExpectedTree) path() string {
	if t.Parent == nil {
		return t.Kind
	}
	return fmt.Sprintf("%v.[%v]%v", t.Parent.path(), t.Offset, t.Kind)
}

// TreeDiff is one mismatch between an expected and an actual tree.
type TreeDiff struct {
	ExpectedPath string
	ActualPath   string
	Message      string
}

// ParseTree parses a tree pattern.
func ParseTree(src string) (*ExpectedTree, error) {
	p := &treePatternParser{
		src: []rune(strings.TrimSpace(src)),
	}
	t, err := p.parseNode()
	if err != nil {
		return nil, err
	}
	p.skipSpaces()
	if p.ptr < len(p.src) {
		return nil, fmt.Errorf("trailing text after the tree pattern")
	}
	return t.fill(), nil
}

type treePatternParser struct {
	src []rune
	ptr int
}

func (p *treePatternParser) parseNode() (*ExpectedTree, error) {
	p.skipSpaces()
	if p.ptr >= len(p.src) || p.src[p.ptr] != '(' {
		return nil, fmt.Errorf("a tree pattern must start with '('")
	}
	p.ptr++
	p.skipSpaces()

	kind := p.parseName()
	if kind == "" {
		return nil, fmt.Errorf("a tree pattern needs a node kind")
	}

	node := &ExpectedTree{
		Kind: kind,
	}
	for {
		p.skipSpaces()
		if p.ptr >= len(p.src) {
			return nil, fmt.Errorf("unclosed tree pattern")
		}
		switch p.src[p.ptr] {
		case ')':
			p.ptr++
			// (TYPE 'lexeme') with an uppercase TYPE and no subtrees denotes
			// a token; with a lowercase kind it is a rule node whose only
			// child is a token of any type.
			if len(node.Children) == 1 && node.Children[0].IsToken && node.Children[0].Kind == "" && kind == strings.ToUpper(kind) {
				node.IsToken = true
				node.Lexeme = node.Children[0].Lexeme
				node.Children = nil
			}
			return node, nil
		case '(':
			child, err := p.parseNode()
			if err != nil {
				return nil, err
			}
			node.Children = append(node.Children, child)
		case '\'':
			lexeme, err := p.parseLexeme()
			if err != nil {
				return nil, err
			}
			node.Children = append(node.Children, &ExpectedTree{
				Lexeme:  lexeme,
				IsToken: true,
			})
		default:
			return nil, fmt.Errorf("unexpected character in a tree pattern: %q", p.src[p.ptr])
		}
	}
}

func (p *treePatternParser) parseName() string {
	start := p.ptr
	for p.ptr < len(p.src) {
		c := p.src[p.ptr]
		if c == '(' || c == ')' || c == '\'' || c == ' ' || c == '\t' || c == '\n' {
			break
		}
		p.ptr++
	}
	return string(p.src[start:p.ptr])
}

func (p *treePatternParser) parseLexeme() (string, error) {
	p.ptr++ // the opening quote
	var b strings.Builder
	for {
		if p.ptr >= len(p.src) {
			return "", fmt.Errorf("unclosed lexeme")
		}
		c := p.src[p.ptr]
		p.ptr++
		switch c {
		case '\'':
			return b.String(), nil
		case '\\':
			if p.ptr >= len(p.src) {
				return "", fmt.Errorf("unclosed lexeme")
			}
			b.WriteRune(p.src[p.ptr])
			p.ptr++
		default:
			b.WriteRune(c)
		}
	}
}

func (p *treePatternParser) skipSpaces() {
	for p.ptr < len(p.src) {
		c := p.src[p.ptr]
		if c != ' ' && c != '\t' && c != '\n' && c != '\r' {
			break
		}
		p.ptr++
	}
}

// DiffTree compares an actual parse tree against an expectation.
func DiffTree(expected *ExpectedTree, actual tree.Node) []*TreeDiff {
	return diffNode(expected, actual, "")
}

func diffNode(expected *ExpectedTree, actual tree.Node, actualPath string) []*TreeDiff {
	switch n := actual.(type) {
	case *tree.Token:
		path := actualPath + "." + n.Type
		if actualPath == "" {
			path = n.Type
		}
		if !expected.IsToken {
			return []*TreeDiff{{
				ExpectedPath: expected.path(),
				ActualPath:   path,
				Message:      fmt.Sprintf("expected a tree %v, got token %q", expected.Kind, n.Value),
			}}
		}
		if expected.Kind != "" && expected.Kind != n.Type {
			return []*TreeDiff{{
				ExpectedPath: expected.path(),
				ActualPath:   path,
				Message:      fmt.Sprintf("expected a %v token, got %v", expected.Kind, n.Type),
			}}
		}
		if expected.Lexeme != n.Value {
			return []*TreeDiff{{
				ExpectedPath: expected.path(),
				ActualPath:   path,
				Message:      fmt.Sprintf("expected lexeme %q, got %q", expected.Lexeme, n.Value),
			}}
		}
		return nil
	case *tree.Tree:
		path := actualPath + "." + n.Data
		if actualPath == "" {
			path = n.Data
		}
		if expected.IsToken {
			return []*TreeDiff{{
				ExpectedPath: expected.path(),
				ActualPath:   path,
				Message:      fmt.Sprintf("expected token %q, got a tree %v", expected.Lexeme, n.Data),
			}}
		}
		if expected.Kind != n.Data {
			return []*TreeDiff{{
				ExpectedPath: expected.path(),
				ActualPath:   path,
				Message:      fmt.Sprintf("expected a %v node, got %v", expected.Kind, n.Data),
			}}
		}
		if len(expected.Children) != len(n.Children) {
			return []*TreeDiff{{
				ExpectedPath: expected.path(),
				ActualPath:   path,
				Message:      fmt.Sprintf("expected %v children, got %v", len(expected.Children), len(n.Children)),
			}}
		}
		var diffs []*TreeDiff
		for i, c := range n.Children {
			diffs = append(diffs, diffNode(expected.Children[i], c, path)...)
		}
		return diffs
	}
	return []*TreeDiff{{
		ExpectedPath: expected.path(),
		ActualPath:   actualPath,
		Message:      "actual node is nil",
	}}
}
