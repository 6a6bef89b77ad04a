package grackle

import (
	"errors"
	"strconv"
	"testing"

	"github.com/grackle-lang/grackle/tree"
)

const helloGrammar = `start: WORD "," WORD "!"
WORD: /\w+/
%ignore " "
`

func TestParse_Hello(t *testing.T) {
	for _, engine := range []string{ParserLALR, ParserEarley} {
		t.Run(engine, func(t *testing.T) {
			p, err := New(helloGrammar, WithParser(engine))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			root, err := p.Parse("Hello, World!")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			want := `(start "Hello" "World")`
			if got := root.String(); got != want {
				t.Fatalf("unexpected tree; want: %v, got: %v", want, got)
			}
			toks := root.Tokens()
			if toks[0].Type != "WORD" || toks[0].Value != "Hello" {
				t.Fatalf("unexpected token: %+v", toks[0])
			}
		})
	}
}

const calcGrammar = `?start: sum
?sum: product
    | sum "+" product -> add
    | sum "-" product -> sub
?product: atom
    | product "*" atom -> mul
    | product "/" atom -> div
?atom: NUMBER -> number
    | "-" atom -> neg
    | "(" sum ")"
%import common.NUMBER
%ignore " "
`

func evalCalc(t *testing.T, root *tree.Tree) float64 {
	t.Helper()
	binop := func(f func(a, b float64) float64) func([]any) (any, error) {
		return func(children []any) (any, error) {
			return f(children[0].(float64), children[1].(float64)), nil
		}
	}
	result, err := tree.NewTransformer().
		On("number", func(children []any) (any, error) {
			return strconv.ParseFloat(children[0].(*tree.Token).Value, 64)
		}).
		On("neg", func(children []any) (any, error) {
			return -children[0].(float64), nil
		}).
		On("add", binop(func(a, b float64) float64 { return a + b })).
		On("sub", binop(func(a, b float64) float64 { return a - b })).
		On("mul", binop(func(a, b float64) float64 { return a * b })).
		On("div", binop(func(a, b float64) float64 { return a / b })).
		Transform(root)
	if err != nil {
		t.Fatalf("unexpected transform error: %v", err)
	}
	f, ok := result.(float64)
	if !ok {
		t.Fatalf("unexpected result type: %T", result)
	}
	return f
}

func TestParse_Calculator(t *testing.T) {
	for _, engine := range []string{ParserLALR, ParserEarley} {
		t.Run(engine, func(t *testing.T) {
			p, err := New(calcGrammar, WithParser(engine))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			root, err := p.Parse("(200 + 3*-3) * 7")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := evalCalc(t, root); got != 1337.0 {
				t.Fatalf("unexpected result: %v", got)
			}
		})
	}
}

func TestNew_ReduceReduceConflict(t *testing.T) {
	_, err := New(`a: "x" | "x"`, WithParser(ParserLALR), Start("a"))
	if err == nil {
		t.Fatalf("an error must occur")
	}
	var gramErr *GrammarError
	if !errors.As(err, &gramErr) {
		t.Fatalf("unexpected error type: %T (%v)", err, err)
	}
}

func TestParse_AmbiguousExplicit(t *testing.T) {
	grammar := `start: a a | b
a: "x"
b: "xx"
`
	p, err := New(grammar,
		WithParser(ParserEarley),
		WithLexer(LexerDynamic),
		WithAmbiguity(AmbiguityExplicit))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	root, err := p.Parse("xx")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if root.Data != tree.AmbigData {
		t.Fatalf("the root must be an _ambig node; got %v", root.Data)
	}
	if len(root.Children) != 2 {
		t.Fatalf("the _ambig node must hold both derivations; got %v", len(root.Children))
	}
}

func TestParse_Disambiguator(t *testing.T) {
	grammar := `start: a a | b
a: "x"
b: "xx"
`
	p, err := New(grammar,
		WithParser(ParserEarley),
		WithLexer(LexerDynamic),
		WithDisambiguator(func(alts []tree.Node) int {
			for i, alt := range alts {
				if t, ok := alt.(*tree.Tree); ok && len(t.Children) == 2 {
					return i
				}
			}
			return 0
		}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	root, err := p.Parse("xx")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(root.Children) != 2 {
		t.Fatalf("the callback must pick the two-child derivation; got %v", root)
	}
}

func TestParse_UnexpectedToken(t *testing.T) {
	p, err := New(`start: "a" "b"`, WithParser(ParserLALR))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = p.Parse("ac")
	var synErr *UnexpectedToken
	if !errors.As(err, &synErr) {
		t.Fatalf("unexpected error: %v", err)
	}
	if synErr.Token.Col != 2 {
		t.Fatalf("the error must point at column 2; got %v", synErr.Token.Col)
	}
	found := false
	for _, e := range synErr.Expected {
		if e == "b" {
			found = true
		}
	}
	if !found {
		t.Fatalf("the expectation set must contain b; got %v", synErr.Expected)
	}
}

func TestParse_ImportedTerminal(t *testing.T) {
	grammar := `start: NUMBER
%import common.NUMBER
`
	p, err := New(grammar, WithParser(ParserLALR))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	root, err := p.Parse("3.14")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	toks := root.Tokens()
	if len(toks) != 1 || toks[0].Type != "NUMBER" || toks[0].Value != "3.14" {
		t.Fatalf("the input must lex as a single NUMBER token; got %+v", toks)
	}
}

func TestParse_EnginesAgree(t *testing.T) {
	grammar := `start: stmt*
stmt: NAME "=" expr ";"
?expr: NAME | NUMBER | call
call: NAME "(" (expr ("," expr)*)? ")"
NAME: /[a-z_]+/
%import common.NUMBER
%ignore /[ \n]+/
`
	input := "x = f(1, y);\nz = 3.5;\n"

	var rendered []string
	for _, engine := range []string{ParserLALR, ParserEarley} {
		p, err := New(grammar, WithParser(engine))
		if err != nil {
			t.Fatalf("%v: unexpected error: %v", engine, err)
		}
		root, err := p.Parse(input)
		if err != nil {
			t.Fatalf("%v: unexpected error: %v", engine, err)
		}
		rendered = append(rendered, root.String())
	}
	if rendered[0] != rendered[1] {
		t.Fatalf("the engines must agree;\nlalr:   %v\nearley: %v", rendered[0], rendered[1])
	}
}

func TestParse_MaybePlaceholders(t *testing.T) {
	grammar := `start: "a" [NAME] "b"
NAME: /[a-z]+/
`

	p, err := New(grammar, WithParser(ParserLALR), MaybePlaceholders())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	root, err := p.Parse("ab")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(root.Children) != 1 || root.Children[0] != nil {
		t.Fatalf("an absent optional must leave a nil placeholder; got %v", root)
	}

	// Without the option the child is simply absent.
	p, err = New(grammar, WithParser(ParserLALR))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	root, err = p.Parse("ab")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(root.Children) != 0 {
		t.Fatalf("an absent optional must vanish; got %v", root)
	}
}

func TestParse_PropagatePositions(t *testing.T) {
	grammar := `start: pair+
pair: NAME "=" NAME ";"
NAME: /[a-z]+/
%ignore /[ \n]+/
`
	p, err := New(grammar, WithParser(ParserLALR), PropagatePositions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	root, err := p.Parse("a = b;\nc = d;")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pairs := root.Find("pair")
	if len(pairs) != 2 {
		t.Fatalf("unexpected pair count: %v", len(pairs))
	}
	for _, pair := range pairs {
		if pair.Meta.Empty {
			t.Fatalf("positions must be filled in")
		}
		if pair.Meta.StartPos > pair.Meta.EndPos {
			t.Fatalf("span must not be inverted: %+v", pair.Meta)
		}
	}
	if pairs[1].Meta.Row != 2 {
		t.Fatalf("the second pair must start on row 2; got %v", pairs[1].Meta.Row)
	}
}

func TestParse_MultipleStarts(t *testing.T) {
	grammar := `greeting: "hello" NAME
farewell: "bye" NAME
NAME: /[a-z]+/
%ignore " "
`
	p, err := New(grammar, WithParser(ParserLALR), Start("greeting", "farewell"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	root, err := p.Parse("hello world")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if root.Data != "greeting" {
		t.Fatalf("unexpected root: %v", root.Data)
	}

	root, err = p.Parse("bye world", ParseStart("farewell"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if root.Data != "farewell" {
		t.Fatalf("unexpected root: %v", root.Data)
	}
}

func TestParse_OnErrorHook(t *testing.T) {
	grammar := `start: "a" "b"
unused: X
X: "x"
`
	p, err := New(grammar, WithParser(ParserLALR))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	hookCalls := 0
	root, err := p.Parse("axb", OnError(func(synErr *UnexpectedToken) bool {
		hookCalls++
		return true
	}))
	if err != nil {
		t.Fatalf("the hook must allow recovery: %v", err)
	}
	if hookCalls != 1 {
		t.Fatalf("the hook must run once; ran %v times", hookCalls)
	}
	if root.Data != "start" {
		t.Fatalf("unexpected root: %v", root.Data)
	}
}

func TestNew_OptionValidation(t *testing.T) {
	tests := []struct {
		caption string
		opts    []Option
	}{
		{
			caption: "contextual lexer requires lalr",
			opts:    []Option{WithParser(ParserEarley), WithLexer(LexerContextual)},
		},
		{
			caption: "dynamic lexer requires earley",
			opts:    []Option{WithParser(ParserLALR), WithLexer(LexerDynamic)},
		},
		{
			caption: "explicit ambiguity requires earley",
			opts:    []Option{WithParser(ParserLALR), WithAmbiguity(AmbiguityExplicit)},
		},
		{
			caption: "unknown parser",
			opts:    []Option{WithParser("glr")},
		},
	}
	for _, tt := range tests {
		t.Run(tt.caption, func(t *testing.T) {
			_, err := New(`start: "a"`, tt.opts...)
			if err == nil {
				t.Fatalf("an error must occur")
			}
		})
	}
}

func TestParser_ConcurrentParses(t *testing.T) {
	p, err := New(helloGrammar, WithParser(ParserLALR))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			_, err := p.Parse("Hello, World!")
			done <- err
		}()
	}
	for i := 0; i < 8; i++ {
		if err := <-done; err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
}

func TestParse_CaseInsensitiveLiteral(t *testing.T) {
	grammar := `start: "select"i NAME
NAME: /[a-z]+/
%ignore " "
`
	p, err := New(grammar, WithParser(ParserLALR))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := p.Parse("SELECT foo"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := p.Parse("select foo"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
