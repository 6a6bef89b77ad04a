package lexer

import (
	"errors"
	"testing"

	"golang.org/x/text/width"

	"github.com/grackle-lang/grackle/driver"
	"github.com/grackle-lang/grackle/grammar/lexical"
)

func newSpec(t *testing.T, entries []*lexical.Entry, ignored []int) *lexical.Spec {
	t.Helper()
	s, _, err := lexical.NewSpec(entries, ignored)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return s
}

func TestLexer_LongestMatch(t *testing.T) {
	s := newSpec(t, []*lexical.Entry{
		{Num: 2, Name: "EQ", Pattern: `=`, Literal: true, Text: "=", DefOrder: 0},
		{Num: 3, Name: "EQEQ", Pattern: `==`, Literal: true, Text: "==", DefOrder: 1},
	}, nil)

	l := NewLexer(s, "===")
	toks, err := l.Tokenize()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(toks) != 2 || toks[0].Tok.Type != "EQEQ" || toks[1].Tok.Type != "EQ" {
		t.Fatalf("the longest match must win; got %v tokens", len(toks))
	}
}

func TestLexer_KeywordBeatsIdentifier(t *testing.T) {
	s := newSpec(t, []*lexical.Entry{
		{Num: 2, Name: "NAME", Pattern: `[a-z]+`, DefOrder: 0},
		{Num: 3, Name: "IF", Pattern: `if`, Literal: true, Text: "if", DefOrder: 1},
	}, nil)

	l := NewLexer(s, "if ifx")
	tok, err := l.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok.Tok.Type != "IF" {
		t.Fatalf("equal-length ties must prefer the literal; got %v", tok.Tok.Type)
	}

	// No match at the space: it is not ignored here.
	_, err = l.Next()
	var unexpected *driver.UnexpectedCharacters
	if !errors.As(err, &unexpected) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLexer_IgnoredTerminals(t *testing.T) {
	s := newSpec(t, []*lexical.Entry{
		{Num: 2, Name: "WORD", Pattern: `[a-z]+`, DefOrder: 0},
		{Num: 3, Name: "WS", Pattern: `[ \t]+`, DefOrder: 1},
	}, []int{3})

	l := NewLexer(s, "foo  bar")
	toks, err := l.Tokenize()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(toks) != 2 {
		t.Fatalf("ignored terminals must not be emitted; got %v tokens", len(toks))
	}
	if toks[1].Tok.Value != "bar" || toks[1].Tok.Col != 6 {
		t.Fatalf("positions must skip over ignored text; got col %v", toks[1].Tok.Col)
	}
}

func TestLexer_Restrict(t *testing.T) {
	s := newSpec(t, []*lexical.Entry{
		{Num: 2, Name: "NAME", Pattern: `[a-z]+`, DefOrder: 0},
		{Num: 3, Name: "IF", Pattern: `if`, Literal: true, Text: "if", DefOrder: 1},
	}, nil)

	l := NewLexer(s, "if")
	l.Restrict([]int{2})
	tok, err := l.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok.Tok.Type != "NAME" {
		t.Fatalf("restriction must exclude IF; got %v", tok.Tok.Type)
	}

	l = NewLexer(s, "if")
	l.Restrict([]int{2})
	l.Unrestrict()
	tok, err = l.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok.Tok.Type != "IF" {
		t.Fatalf("unrestriction must restore the full set; got %v", tok.Tok.Type)
	}
}

func TestLexer_Positions(t *testing.T) {
	s := newSpec(t, []*lexical.Entry{
		{Num: 2, Name: "WORD", Pattern: `\w+`, DefOrder: 0},
		{Num: 3, Name: "NL", Pattern: `\n`, DefOrder: 1},
	}, []int{3})

	l := NewLexer(s, "ab\ncd")
	first, err := l.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Tok.Row != 1 || first.Tok.Col != 1 || first.Tok.EndCol != 3 {
		t.Fatalf("unexpected position: %+v", first.Tok)
	}
	second, err := l.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Tok.Row != 2 || second.Tok.Col != 1 {
		t.Fatalf("a newline must advance the row and reset the column: %+v", second.Tok)
	}
	if second.Tok.StartPos != 3 || second.Tok.EndPos != 5 {
		t.Fatalf("unexpected byte offsets: %+v", second.Tok)
	}
}

func TestLexer_ColumnsCountCodePoints(t *testing.T) {
	s := newSpec(t, []*lexical.Entry{
		{Num: 2, Name: "WORD", Pattern: `[\p{L}]+`, DefOrder: 0},
		{Num: 3, Name: "WS", Pattern: ` +`, DefOrder: 1},
	}, []int{3})

	// Wide runes occupy several bytes and two display cells, but exactly
	// one column each.
	input := "全角 x"
	if p, _ := width.LookupString(input); p.Kind() != width.EastAsianWide {
		t.Fatalf("the fixture rune must be east-asian wide")
	}
	l := NewLexer(s, input)
	first, err := l.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Tok.EndCol != 3 {
		t.Fatalf("columns must count code points, not bytes: %+v", first.Tok)
	}
	second, err := l.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Tok.Col != 4 {
		t.Fatalf("unexpected column: %+v", second.Tok)
	}
}

func TestLexer_ZeroLengthMatchIsAnError(t *testing.T) {
	s := newSpec(t, []*lexical.Entry{
		{Num: 2, Name: "OPT", Pattern: `a*`, DefOrder: 0},
	}, nil)

	l := NewLexer(s, "b")
	_, err := l.Next()
	var unexpected *driver.UnexpectedCharacters
	if !errors.As(err, &unexpected) {
		t.Fatalf("a zero-length match must be an error; got %v", err)
	}
	if unexpected.Row != 1 || unexpected.Col != 1 {
		t.Fatalf("unexpected position: %+v", unexpected)
	}
}

func TestLexer_MatchAt(t *testing.T) {
	s := newSpec(t, []*lexical.Entry{
		{Num: 2, Name: "X", Pattern: `x`, Literal: true, Text: "x", DefOrder: 0},
		{Num: 3, Name: "XX", Pattern: `xx`, Literal: true, Text: "xx", DefOrder: 1},
	}, nil)

	l := NewLexer(s, "xx")
	toks := l.MatchAt(0, nil)
	if len(toks) != 2 {
		t.Fatalf("both terminals must match at position 0; got %v", len(toks))
	}
}
