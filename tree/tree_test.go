package tree

import (
	"strings"
	"testing"
)

func word(value string) *Token {
	return &Token{
		Type:  "WORD",
		Value: value,
	}
}

func TestTree_String(t *testing.T) {
	tr := New("start", []Node{
		word("Hello"),
		New("name", []Node{
			word("World"),
		}),
	})
	want := `(start "Hello" (name "World"))`
	if got := tr.String(); got != want {
		t.Fatalf("unexpected rendering; want: %v, got: %v", want, got)
	}
}

func TestTree_Find(t *testing.T) {
	inner := New("pair", []Node{word("a"), word("b")})
	tr := New("start", []Node{
		inner,
		New("pair", []Node{word("c")}),
		New("other", nil),
	})

	pairs := tr.Find("pair")
	if len(pairs) != 2 {
		t.Fatalf("want 2 pairs, got %v", len(pairs))
	}
	if pairs[0] != inner {
		t.Fatalf("Find must walk depth-first; got %v first", pairs[0].Data)
	}
	if len(tr.Find("start")) != 1 {
		t.Fatalf("Find must include the receiver")
	}
	if len(tr.Find("missing")) != 0 {
		t.Fatalf("Find on an absent name must be empty")
	}
}

func TestTree_Tokens(t *testing.T) {
	tr := New("start", []Node{
		word("a"),
		New("sub", []Node{
			word("b"),
			New("deep", []Node{word("c")}),
		}),
	})
	toks := tr.Tokens()
	if len(toks) != 3 {
		t.Fatalf("want 3 tokens, got %v", len(toks))
	}
	var values []string
	for _, tok := range toks {
		values = append(values, tok.Value)
	}
	if strings.Join(values, "") != "abc" {
		t.Fatalf("tokens must keep source order; got %v", values)
	}
}

func TestPrintTree(t *testing.T) {
	tr := New("start", []Node{
		word("x"),
		New("sub", []Node{word("y")}),
	})
	var b strings.Builder
	PrintTree(&b, tr)
	want := `start
├─ WORD "x"
└─ sub
   └─ WORD "y"
`
	if b.String() != want {
		t.Fatalf("unexpected rendering:\n%v", b.String())
	}
}
