package lexer

import (
	"strings"
	"unicode/utf8"

	"github.com/grackle-lang/grackle/driver"
	"github.com/grackle-lang/grackle/grammar/lexical"
	"github.com/grackle-lang/grackle/tree"
)

// Token is a lexed terminal occurrence. TerminalID is the terminal's
// symbol number; the embedded tree token carries text and positions.
type Token struct {
	TerminalID int
	EOF        bool
	Tok        *tree.Token
}

// Lexer is the longest-match tokenizer. One lexer serves one parse; it
// holds the scan position, while the compiled spec it reads from is
// shared and immutable.
//
// Row starts at 1 and Col at 1; Col counts code points, not bytes.
type Lexer struct {
	spec *lexical.Spec
	src  string
	ptr  int
	row  int
	col  int

	// allowed restricts the candidate terminals. The contextual lexer
	// sets it to the parser state's acceptable set before each token.
	allowed map[int]struct{}
}

func NewLexer(spec *lexical.Spec, src string) *Lexer {
	return &Lexer{
		spec: spec,
		src:  src,
		ptr:  0,
		row:  1,
		col:  1,
	}
}

// Restrict narrows the candidate terminals to terms until the next call.
// Ignored terminals always stay in the candidate set.
func (l *Lexer) Restrict(terms []int) {
	allowed := make(map[int]struct{}, len(terms))
	for _, t := range terms {
		allowed[t] = struct{}{}
	}
	l.allowed = allowed
}

// Unrestrict returns the lexer to the full terminal set.
func (l *Lexer) Unrestrict() {
	l.allowed = nil
}

// Next returns the next token, skipping ignored terminals. At each
// position the longest match wins; equal lengths fall back on the
// priority order the spec was compiled with. A position where nothing
// matches, or where the best match is empty, is an error.
func (l *Lexer) Next() (*Token, error) {
	for {
		if l.ptr >= len(l.src) {
			return &Token{
				EOF: true,
				Tok: &tree.Token{
					Type:     "<eof>",
					StartPos: l.ptr,
					EndPos:   l.ptr,
					Row:      l.row,
					Col:      l.col,
					EndRow:   l.row,
					EndCol:   l.col,
				},
			}, nil
		}

		rest := l.src[l.ptr:]
		var best *lexical.Entry
		bestLen := -1
		for _, e := range l.spec.Candidates(l.allowed) {
			n := e.Match(rest)
			if n > bestLen {
				best = e
				bestLen = n
			}
		}
		if best == nil || bestLen <= 0 {
			c, _ := utf8.DecodeRuneInString(rest)
			return nil, &driver.UnexpectedCharacters{
				Char: c,
				Pos:  l.ptr,
				Row:  l.row,
				Col:  l.col,
			}
		}

		text := rest[:bestLen]
		startPos, startRow, startCol := l.ptr, l.row, l.col
		l.advance(text)

		if l.spec.IsIgnored(best.Num) {
			continue
		}

		return &Token{
			TerminalID: best.Num,
			Tok: &tree.Token{
				Type:     best.Name,
				Value:    text,
				StartPos: startPos,
				EndPos:   l.ptr,
				Row:      startRow,
				Col:      startCol,
				EndRow:   l.row,
				EndCol:   l.col,
			},
		}, nil
	}
}

// Tokenize drains the lexer. The EOF token is not included.
func (l *Lexer) Tokenize() ([]*Token, error) {
	var toks []*Token
	for {
		tok, err := l.Next()
		if err != nil {
			return nil, err
		}
		if tok.EOF {
			return toks, nil
		}
		toks = append(toks, tok)
	}
}

func (l *Lexer) advance(text string) {
	l.ptr += len(text)
	if n := strings.Count(text, "\n"); n > 0 {
		l.row += n
		tail := text[strings.LastIndexByte(text, '\n')+1:]
		l.col = utf8.RuneCountInString(tail) + 1
	} else {
		l.col += utf8.RuneCountInString(text)
	}
}

// MatchAt reports every terminal matching at byte offset pos, in
// preference order.
func (l *Lexer) MatchAt(pos int, allowed map[int]struct{}) []*Token {
	if pos >= len(l.src) {
		return nil
	}
	rest := l.src[pos:]
	var toks []*Token
	for _, e := range l.spec.Candidates(allowed) {
		n := e.Match(rest)
		if n <= 0 {
			continue
		}
		toks = append(toks, &Token{
			TerminalID: e.Num,
			Tok: &tree.Token{
				Type:     e.Name,
				Value:    rest[:n],
				StartPos: pos,
				EndPos:   pos + n,
			},
		})
	}
	return toks
}

// Len returns the input length in bytes.
func (l *Lexer) Len() int {
	return len(l.src)
}

// TextFrom returns the input suffix starting at byte offset pos.
func (l *Lexer) TextFrom(pos int) string {
	if pos >= len(l.src) {
		return ""
	}
	return l.src[pos:]
}

// PositionAt converts a byte offset to a 1-based row and column. The
// dynamic Earley lexer fills token positions with it after the fact.
func (l *Lexer) PositionAt(pos int) (row, col int) {
	if pos > len(l.src) {
		pos = len(l.src)
	}
	head := l.src[:pos]
	row = strings.Count(head, "\n") + 1
	tail := head
	if i := strings.LastIndexByte(head, '\n'); i >= 0 {
		tail = head[i+1:]
	}
	return row, utf8.RuneCountInString(tail) + 1
}
