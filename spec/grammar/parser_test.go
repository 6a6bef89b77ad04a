package grammar

import (
	"errors"
	"testing"

	verr "github.com/grackle-lang/grackle/error"
)

func TestParse(t *testing.T) {
	tests := []struct {
		caption string
		src     string
		checkFn func(t *testing.T, root *RootNode)
		synErr  bool
	}{
		{
			caption: "a rule with terminals and literals",
			src: `start: WORD "," WORD "!"
WORD: /\w+/
`,
			checkFn: func(t *testing.T, root *RootNode) {
				if len(root.Rules) != 1 || len(root.Terminals) != 1 {
					t.Fatalf("unexpected counts: %v rules, %v terminals", len(root.Rules), len(root.Terminals))
				}
				rule := root.Rules[0]
				if rule.Name != "start" {
					t.Fatalf("unexpected rule name: %v", rule.Name)
				}
				elems := rule.RHS.Alts[0].Elems
				if len(elems) != 4 {
					t.Fatalf("unexpected element count: %v", len(elems))
				}
				if elems[0].Atom.Kind != AtomKindTermRef || elems[1].Atom.Kind != AtomKindString {
					t.Fatalf("unexpected atom kinds: %v, %v", elems[0].Atom.Kind, elems[1].Atom.Kind)
				}
				term := root.Terminals[0]
				if term.Name != "WORD" || term.RHS.Alts[0].Elems[0].Atom.Text != `\w+` {
					t.Fatalf("unexpected terminal: %+v", term)
				}
			},
		},
		{
			caption: "markers on rule names",
			src: `?start: _item
_item: "x"
!keep: "y"
`,
			checkFn: func(t *testing.T, root *RootNode) {
				if !root.Rules[0].Inline {
					t.Fatalf("? must mark a rule inline")
				}
				if !root.Rules[1].FilterOut {
					t.Fatalf("_ must mark a rule filtered")
				}
				if !root.Rules[2].KeepAllTokens {
					t.Fatalf("! must mark a rule keep-all-tokens")
				}
			},
		},
		{
			caption: "alternatives may continue on the next line",
			src: `start: a
    | b
    | c
a: "a"
b: "b"
c: "c"
`,
			checkFn: func(t *testing.T, root *RootNode) {
				if len(root.Rules[0].RHS.Alts) != 3 {
					t.Fatalf("unexpected alternative count: %v", len(root.Rules[0].RHS.Alts))
				}
			},
		},
		{
			caption: "operators, groups, optionals, and ranges",
			src:     `start: a* b+ c? (d e)~2..3 [f] -> aliased` + "\n" + `a: "a"` + "\n" + `b: "b"` + "\n" + `c: "c"` + "\n" + `d: "d"` + "\n" + `e: "e"` + "\n" + `f: "f"`,
			checkFn: func(t *testing.T, root *RootNode) {
				alt := root.Rules[0].RHS.Alts[0]
				if alt.Alias != "aliased" {
					t.Fatalf("unexpected alias: %v", alt.Alias)
				}
				ops := []byte{alt.Elems[0].Op, alt.Elems[1].Op, alt.Elems[2].Op, alt.Elems[3].Op}
				if string(ops) != "*+?~" {
					t.Fatalf("unexpected operators: %q", ops)
				}
				rangeExpr := alt.Elems[3]
				if rangeExpr.RangeMin != 2 || rangeExpr.RangeMax != 3 {
					t.Fatalf("unexpected range: %v..%v", rangeExpr.RangeMin, rangeExpr.RangeMax)
				}
				if rangeExpr.Atom.Kind != AtomKindGroup {
					t.Fatalf("unexpected atom kind: %v", rangeExpr.Atom.Kind)
				}
				if alt.Elems[4].Atom.Kind != AtomKindMaybe {
					t.Fatalf("unexpected atom kind: %v", alt.Elems[4].Atom.Kind)
				}
			},
		},
		{
			caption: "rule and terminal priorities",
			src: `start.2: WORD
WORD.3: /\w+/
`,
			checkFn: func(t *testing.T, root *RootNode) {
				if root.Rules[0].Priority != 2 {
					t.Fatalf("unexpected rule priority: %v", root.Rules[0].Priority)
				}
				if root.Terminals[0].Priority != 3 {
					t.Fatalf("unexpected terminal priority: %v", root.Terminals[0].Priority)
				}
			},
		},
		{
			caption: "case-insensitive strings and pattern flags",
			src: `start: "select"i WORD
WORD: /\w+/im
`,
			checkFn: func(t *testing.T, root *RootNode) {
				if !root.Rules[0].RHS.Alts[0].Elems[0].Atom.CaseInsensitive {
					t.Fatalf("the i suffix must mark a string case-insensitive")
				}
				term := root.Terminals[0].RHS.Alts[0].Elems[0].Atom
				if !term.CaseInsensitive || term.Flags != "im" {
					t.Fatalf("unexpected pattern flags: %v", term.Flags)
				}
			},
		},
		{
			caption: "directives",
			src: `start: WORD
%import common.NUMBER
%import common (WS, INT -> INTEGER)
%declare INDENT DEDENT
%ignore WS
WORD: /\w+/
WS: / +/
`,
			checkFn: func(t *testing.T, root *RootNode) {
				if len(root.Statements) != 4 {
					t.Fatalf("unexpected statement count: %v", len(root.Statements))
				}
				imp := root.Statements[0]
				if imp.Kind != StatementKindImport || len(imp.ImportPath) != 2 {
					t.Fatalf("unexpected import: %+v", imp)
				}
				list := root.Statements[1]
				if len(list.ImportNames) != 2 || list.ImportNames[1].Rename != "INTEGER" {
					t.Fatalf("unexpected import list: %+v", list.ImportNames)
				}
				decl := root.Statements[2]
				if len(decl.DeclareTerminals) != 2 {
					t.Fatalf("unexpected declare: %+v", decl.DeclareTerminals)
				}
				ign := root.Statements[3]
				if ign.IgnoreAtom.Text != "WS" {
					t.Fatalf("unexpected ignore: %+v", ign.IgnoreAtom)
				}
			},
		},
		{
			caption: "override and extend wrap definitions",
			src: `start: WORD
WORD: /[a-z]+/
%override WORD: /[A-Z]+/
%extend start: WORD WORD
`,
			checkFn: func(t *testing.T, root *RootNode) {
				over := root.Statements[0]
				if over.Kind != StatementKindOverride || over.OverrideTerminal == nil {
					t.Fatalf("unexpected override: %+v", over)
				}
				ext := root.Statements[1]
				if ext.Kind != StatementKindExtend || ext.OverrideRule == nil {
					t.Fatalf("unexpected extend: %+v", ext)
				}
			},
		},
		{
			caption: "template definitions and calls",
			src: `separated{x, sep}: x (sep x)*
start: separated{WORD, ","}
WORD: /\w+/
`,
			checkFn: func(t *testing.T, root *RootNode) {
				tmpl := root.Rules[0]
				if len(tmpl.Params) != 2 || tmpl.Params[0] != "x" {
					t.Fatalf("unexpected template params: %+v", tmpl.Params)
				}
				call := root.Rules[1].RHS.Alts[0].Elems[0].Atom
				if call.Kind != AtomKindTemplate || len(call.Args) != 2 {
					t.Fatalf("unexpected template call: %+v", call)
				}
			},
		},
		{
			caption: "a missing colon is an error",
			src:     `start WORD`,
			synErr:  true,
		},
		{
			caption: "an unclosed group is an error",
			src:     `start: ("a" "b"`,
			synErr:  true,
		},
		{
			caption: "an unclosed string is an error",
			src:     `start: "a`,
			synErr:  true,
		},
		{
			caption: "a backwards range is an error",
			src:     `start: "a" ~ 3..2`,
			synErr:  true,
		},
		{
			caption: "an unknown directive is an error",
			src:     `%inline start`,
			synErr:  true,
		},
		{
			caption: "an empty grammar is an error",
			src:     "\n\n",
			synErr:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.caption, func(t *testing.T) {
			root, err := Parse(tt.src, "test")
			if tt.synErr {
				if err == nil {
					t.Fatalf("an error must occur")
				}
				var synErr *SyntaxError
				if !errors.As(err, &synErr) {
					t.Fatalf("unexpected error type: %T (%v)", err, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.checkFn(t, root)
		})
	}
}

func TestParse_ErrorPositions(t *testing.T) {
	src := `start: WORD
WORD /\w+/
`
	_, err := Parse(src, "test")
	if err == nil {
		t.Fatalf("an error must occur")
	}
	var srcErr *verr.SourceError
	if !errors.As(err, &srcErr) {
		t.Fatalf("unexpected error type: %T", err)
	}
	if srcErr.Row != 2 {
		t.Fatalf("the error must point at row 2; got %v", srcErr.Row)
	}
	if srcErr.SourceName != "test" {
		t.Fatalf("the error must carry the source name; got %v", srcErr.SourceName)
	}
}
