package driver

import (
	"fmt"
	"strings"

	"github.com/grackle-lang/grackle/tree"
)

// UnexpectedCharacters means the lexer found no terminal matching at a
// position. Row and Col are 1-based.
type UnexpectedCharacters struct {
	Char rune
	Pos  int
	Row  int
	Col  int
}

func (e *UnexpectedCharacters) Error() string {
	return fmt.Sprintf("%v:%v: no terminal matches %q", e.Row, e.Col, e.Char)
}

// UnexpectedToken means the parser received a token the current state
// does not accept.
type UnexpectedToken struct {
	Token    *tree.Token
	Expected []string

	// State is the LALR state that rejected the token; -1 for the Earley
	// driver.
	State int
}

func (e *UnexpectedToken) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%v:%v: unexpected token %q (%v)", e.Token.Row, e.Token.Col, e.Token.Value, e.Token.Type)
	if len(e.Expected) > 0 {
		fmt.Fprintf(&b, "; expected: %v", strings.Join(e.Expected, ", "))
	}
	return b.String()
}

// UnexpectedEOF means the input ended mid-derivation.
type UnexpectedEOF struct {
	Expected []string
	Row      int
	Col      int
}

func (e *UnexpectedEOF) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%v:%v: unexpected end of input", e.Row, e.Col)
	if len(e.Expected) > 0 {
		fmt.Fprintf(&b, "; expected: %v", strings.Join(e.Expected, ", "))
	}
	return b.String()
}
