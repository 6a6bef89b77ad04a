package earley

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grackle-lang/grackle/driver"
	"github.com/grackle-lang/grackle/driver/lexer"
	"github.com/grackle-lang/grackle/grammar"
	spec "github.com/grackle-lang/grackle/spec/grammar"
	"github.com/grackle-lang/grackle/tree"
)

func compile(t *testing.T, src string, opts ...grammar.BuildOption) *grammar.CompiledGrammar {
	t.Helper()
	g, err := spec.Load(src, "test", nil)
	require.NoError(t, err)
	cg, err := grammar.Build(g, opts...)
	require.NoError(t, err)
	return cg
}

func parse(t *testing.T, cg *grammar.CompiledGrammar, input string, opts ...ParserOption) (tree.Node, error) {
	t.Helper()
	lex := lexer.NewLexer(cg.LexSpec, input)
	p, err := NewParser(cg, lex, "start", opts...)
	require.NoError(t, err)
	return p.Parse()
}

func TestParser_Parse(t *testing.T) {
	tests := []struct {
		caption string
		specSrc string
		src     string
		want    string
		opts    []ParserOption
	}{
		{
			caption: "a flat rule",
			specSrc: `start: WORD "," WORD "!"
WORD: /\w+/
WS: / +/
%ignore WS
`,
			src:  "Hello, World!",
			want: `(start "Hello" "World")`,
		},
		{
			caption: "right recursion",
			specSrc: `start: list
list: A list | A
A: "a"
`,
			src:  "aaa",
			want: `(start (list "a" (list "a" (list "a"))))`,
		},
		{
			caption: "left recursion",
			specSrc: `start: list
list: list A | A
A: "a"
`,
			src:  "aaa",
			want: `(start (list (list (list "a") "a") "a"))`,
		},
		{
			caption: "empty productions",
			specSrc: `start: a "x" a
a: "y" |
`,
			src:  "x",
			want: `(start (a) (a))`,
		},
		{
			caption: "empty input with a nullable start",
			specSrc: `start: A*
A: "a"
`,
			src:  "",
			want: `(start)`,
		},
		{
			caption: "inline and filter markers",
			specSrc: `start: _pair item
_pair: A B
?item: A | A B
A: "a"
B: "b"
`,
			src:  "aba",
			want: `(start "a" "b" "a")`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.caption, func(t *testing.T) {
			cg := compile(t, tt.specSrc)
			node, err := parse(t, cg, tt.src, tt.opts...)
			require.NoError(t, err)
			require.Equal(t, tt.want, node.(*tree.Tree).String())
		})
	}
}

func TestParser_AmbiguityResolveByPriority(t *testing.T) {
	// Both alternatives derive "xx"; the priority picks the b branch.
	specSrc := `start: a a | b
a.1: X
b.3: XX
X: "x"
XX: "xx"
`
	cg := compile(t, specSrc)
	node, err := parse(t, cg, "xx", DynamicLexer(false))
	require.NoError(t, err)
	root := node.(*tree.Tree)
	require.Equal(t, "start", root.Data)
	require.Len(t, root.Children, 1)
	require.Equal(t, "b", root.Children[0].(*tree.Tree).Data)
}

func TestParser_AmbiguityExplicit(t *testing.T) {
	specSrc := `start: a a | b
a: X
b: XX
X: "x"
XX: "xx"
`
	cg := compile(t, specSrc)
	node, err := parse(t, cg, "xx", DynamicLexer(false), ExplicitAmbiguity())
	require.NoError(t, err)

	root := node.(*tree.Tree)
	require.Equal(t, tree.AmbigData, root.Data)
	require.Len(t, root.Children, 2)
	for _, c := range root.Children {
		require.Equal(t, "start", c.(*tree.Tree).Data)
	}
}

func TestParser_ResolveYieldsExactlyOneTree(t *testing.T) {
	specSrc := `start: a a | b
a: X
b: XX
X: "x"
XX: "xx"
`
	cg := compile(t, specSrc)
	node, err := parse(t, cg, "xx", DynamicLexer(false))
	require.NoError(t, err)
	root := node.(*tree.Tree)
	require.Equal(t, "start", root.Data)
	require.Empty(t, root.Find(tree.AmbigData))
}

func TestParser_DynamicCompleteLexer(t *testing.T) {
	// AS is greedy: the longest match swallows "aa" and kills the only
	// derivation. Feeding every match length keeps it alive.
	specSrc := `start: AS "ab"
AS: /a+/
`
	cg := compile(t, specSrc)

	_, err := parse(t, cg, "aab", DynamicLexer(false))
	require.Error(t, err)

	node, err := parse(t, cg, "aab", DynamicLexer(true))
	require.NoError(t, err)
	require.Equal(t, `(start "a")`, node.(*tree.Tree).String())
}

func TestParser_UnexpectedCharacters(t *testing.T) {
	specSrc := `start: A B
A: "a"
B: "b"
`
	cg := compile(t, specSrc)
	_, err := parse(t, cg, "ac")
	require.Error(t, err)
	uc, ok := err.(*driver.UnexpectedCharacters)
	require.True(t, ok, "got %T: %v", err, err)
	require.Equal(t, 2, uc.Col)
}

func TestParser_UnexpectedTokenMidInput(t *testing.T) {
	specSrc := `start: A B
A: "a"
B: "b"
`
	cg := compile(t, specSrc)
	_, err := parse(t, cg, "aa")
	require.Error(t, err)
	ut, ok := err.(*driver.UnexpectedToken)
	require.True(t, ok, "got %T: %v", err, err)
	require.Equal(t, 2, ut.Token.Col)
	require.Contains(t, ut.Expected, "B")
}

func TestParser_UnexpectedEOF(t *testing.T) {
	specSrc := `start: A B
A: "a"
B: "b"
`
	cg := compile(t, specSrc)
	_, err := parse(t, cg, "a")
	require.Error(t, err)
	_, ok := err.(*driver.UnexpectedEOF)
	require.True(t, ok, "got %T: %v", err, err)
}

func TestParser_SharedForestIsADag(t *testing.T) {
	// A highly ambiguous grammar; the forest must stay shared rather
	// than exploding, and resolution must still produce a single tree.
	specSrc := `start: e
e: e "+" e | N
N: /[0-9]/
`
	cg := compile(t, specSrc)
	node, err := parse(t, cg, "1+2+3+4+5")
	require.NoError(t, err)
	root := node.(*tree.Tree)
	require.Equal(t, "start", root.Data)
	require.Empty(t, root.Find(tree.AmbigData))
}

func TestParser_ExplicitAmbiguityNested(t *testing.T) {
	specSrc := `start: e
e: e "+" e | N
N: /[0-9]/
`
	cg := compile(t, specSrc)
	node, err := parse(t, cg, "1+2+3", ExplicitAmbiguity())
	require.NoError(t, err)
	root := node.(*tree.Tree)
	// (1+2)+3 and 1+(2+3) must both survive somewhere in the tree.
	require.NotEmpty(t, root.Find(tree.AmbigData))
}
