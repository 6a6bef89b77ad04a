package grammar

import (
	"fmt"
	"strings"

	verr "github.com/grackle-lang/grackle/error"
)

type tokenKind string

const (
	tokenKindRuleID   = tokenKind("rule id")
	tokenKindTermID   = tokenKind("terminal id")
	tokenKindString   = tokenKind("string")
	tokenKindPattern  = tokenKind("pattern")
	tokenKindNumber   = tokenKind("number")
	tokenKindColon    = tokenKind(":")
	tokenKindDot      = tokenKind(".")
	tokenKindDotDot   = tokenKind("..")
	tokenKindOr       = tokenKind("|")
	tokenKindLParen   = tokenKind("(")
	tokenKindRParen   = tokenKind(")")
	tokenKindLBracket = tokenKind("[")
	tokenKindRBracket = tokenKind("]")
	tokenKindLBrace   = tokenKind("{")
	tokenKindRBrace   = tokenKind("}")
	tokenKindComma    = tokenKind(",")
	tokenKindQuestion = tokenKind("?")
	tokenKindStar     = tokenKind("*")
	tokenKindPlus     = tokenKind("+")
	tokenKindTilde    = tokenKind("~")
	tokenKindArrow    = tokenKind("->")
	tokenKindPercent  = tokenKind("%")
	tokenKindNewline  = tokenKind("newline")
	tokenKindEOF      = tokenKind("eof")
	tokenKindInvalid  = tokenKind("invalid")
)

type token struct {
	kind tokenKind
	text string
	num  int
	pos  Position

	// markers of a rule identifier: leading ?, _, !
	inline    bool
	filterOut bool
	keepAll   bool

	// string and pattern attributes
	caseInsensitive bool
	flags           string
}

func newSymbolToken(kind tokenKind, pos Position) *token {
	return &token{
		kind: kind,
		pos:  pos,
	}
}

func newEOFToken() *token {
	return &token{
		kind: tokenKindEOF,
	}
}

func newInvalidToken(text string, pos Position) *token {
	return &token{
		kind: tokenKindInvalid,
		text: text,
		pos:  pos,
	}
}

// lexer tokenizes the grammar language. It is hand-written because it is
// the bootstrap: nothing exists yet that could generate it.
type lexer struct {
	src  []rune
	ptr  int
	row  int
	col  int
	buf  []*token
	name string
}

func newLexer(src string, sourceName string) *lexer {
	return &lexer{
		src:  []rune(src),
		ptr:  0,
		row:  1,
		col:  1,
		name: sourceName,
	}
}

func (l *lexer) raise(cause *SyntaxError, detail string, pos Position) {
	panic(&verr.SourceError{
		Cause:      cause,
		Detail:     detail,
		SourceName: l.name,
		Row:        pos.Row,
		Col:        pos.Col,
	})
}

// next returns the next significant token. Runs of newlines collapse into
// one, and a newline followed by `|` is dropped entirely so that an
// alternative may continue on the next line.
func (l *lexer) next() (*token, error) {
	if len(l.buf) > 0 {
		tok := l.buf[0]
		l.buf = l.buf[1:]
		return tok, nil
	}

	tok, err := l.lexAndSkipWSs()
	if err != nil {
		return nil, err
	}
	for tok.kind == tokenKindNewline {
		nextTok, err := l.lexAndSkipWSs()
		if err != nil {
			return nil, err
		}
		if nextTok.kind == tokenKindNewline {
			continue
		}
		if nextTok.kind == tokenKindOr {
			return nextTok, nil
		}
		l.buf = append(l.buf, nextTok)
		return tok, nil
	}
	return tok, nil
}

func (l *lexer) lexAndSkipWSs() (tok *token, retErr error) {
	defer func() {
		v := recover()
		if v == nil {
			return
		}
		err, ok := v.(error)
		if !ok {
			panic(v)
		}
		tok = nil
		retErr = err
	}()

	for {
		c, ok := l.peekChar()
		if !ok {
			return newEOFToken(), nil
		}
		if c == ' ' || c == '\t' || c == '\r' {
			l.readChar()
			continue
		}
		if c == '/' && l.peekCharAt(1) == '/' {
			for {
				c, ok := l.peekChar()
				if !ok || c == '\n' {
					break
				}
				l.readChar()
			}
			continue
		}
		break
	}

	pos := newPosition(l.row, l.col)
	c := l.readChar()
	switch {
	case c == '\n':
		return newSymbolToken(tokenKindNewline, pos), nil
	case c == ':':
		return newSymbolToken(tokenKindColon, pos), nil
	case c == '.':
		if l.peekChar0() == '.' {
			l.readChar()
			return newSymbolToken(tokenKindDotDot, pos), nil
		}
		return newSymbolToken(tokenKindDot, pos), nil
	case c == '|':
		return newSymbolToken(tokenKindOr, pos), nil
	case c == '(':
		return newSymbolToken(tokenKindLParen, pos), nil
	case c == ')':
		return newSymbolToken(tokenKindRParen, pos), nil
	case c == '[':
		return newSymbolToken(tokenKindLBracket, pos), nil
	case c == ']':
		return newSymbolToken(tokenKindRBracket, pos), nil
	case c == '{':
		return newSymbolToken(tokenKindLBrace, pos), nil
	case c == '}':
		return newSymbolToken(tokenKindRBrace, pos), nil
	case c == ',':
		return newSymbolToken(tokenKindComma, pos), nil
	case c == '*':
		return newSymbolToken(tokenKindStar, pos), nil
	case c == '+':
		return newSymbolToken(tokenKindPlus, pos), nil
	case c == '~':
		return newSymbolToken(tokenKindTilde, pos), nil
	case c == '%':
		return newSymbolToken(tokenKindPercent, pos), nil
	case c == '-':
		if l.peekChar0() == '>' {
			l.readChar()
			return newSymbolToken(tokenKindArrow, pos), nil
		}
		return newInvalidToken(string(c), pos), nil
	case c == '"':
		return l.lexString(pos), nil
	case c == '/':
		return l.lexPattern(pos), nil
	case c >= '0' && c <= '9':
		return l.lexNumber(c, pos), nil
	case c == '?' || c == '!':
		// A marker makes sense only when an identifier follows; otherwise
		// `?` is the optional operator and `!` is invalid.
		n := l.peekChar0()
		if isIDStart(n) {
			return l.lexID(l.readChar(), c, pos), nil
		}
		if c == '?' {
			return newSymbolToken(tokenKindQuestion, pos), nil
		}
		return newInvalidToken(string(c), pos), nil
	case isIDStart(c):
		return l.lexID(c, 0, pos), nil
	}
	return newInvalidToken(string(c), pos), nil
}

func isIDStart(c rune) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIDChar(c rune) bool {
	return isIDStart(c) || (c >= '0' && c <= '9')
}

func (l *lexer) lexID(first rune, marker rune, pos Position) *token {
	var b strings.Builder
	b.WriteRune(first)
	for {
		c, ok := l.peekChar()
		if !ok || !isIDChar(c) {
			break
		}
		b.WriteRune(l.readChar())
	}
	text := b.String()

	tok := &token{
		text: text,
		pos:  pos,
	}
	switch marker {
	case '?':
		tok.inline = true
	case '!':
		tok.keepAll = true
	}
	if strings.HasPrefix(text, "_") {
		tok.filterOut = true
	}

	// Terminal names are uppercase, rule names lowercase. The first letter
	// after any underscores decides.
	trimmed := strings.TrimLeft(text, "_")
	if trimmed != "" && trimmed[0] >= 'A' && trimmed[0] <= 'Z' {
		tok.kind = tokenKindTermID
	} else {
		tok.kind = tokenKindRuleID
	}
	return tok
}

func (l *lexer) lexNumber(first rune, pos Position) *token {
	num := int(first - '0')
	for {
		c, ok := l.peekChar()
		if !ok || c < '0' || c > '9' {
			break
		}
		l.readChar()
		num = num*10 + int(c-'0')
	}
	return &token{
		kind: tokenKindNumber,
		num:  num,
		pos:  pos,
	}
}

func (l *lexer) lexString(pos Position) *token {
	var b strings.Builder
	for {
		c, ok := l.peekChar()
		if !ok {
			l.raise(synErrUnclosedString, "", pos)
		}
		l.readChar()
		if c == '"' {
			break
		}
		if c == '\n' {
			l.raise(synErrUnclosedString, "", pos)
		}
		if c == '\\' {
			e, ok := l.peekChar()
			if !ok {
				l.raise(synErrIncompleteEsc, "", pos)
			}
			l.readChar()
			switch e {
			case 'n':
				b.WriteRune('\n')
			case 't':
				b.WriteRune('\t')
			case 'r':
				b.WriteRune('\r')
			case 'f':
				b.WriteRune('\f')
			case '\\', '"', '\'', '/':
				b.WriteRune(e)
			default:
				// Unknown escapes keep the backslash, the way the original
				// grammar dialect treats them.
				b.WriteRune('\\')
				b.WriteRune(e)
			}
			continue
		}
		b.WriteRune(c)
	}
	if b.Len() == 0 {
		l.raise(synErrEmptyString, "", pos)
	}
	tok := &token{
		kind: tokenKindString,
		text: b.String(),
		pos:  pos,
	}
	if l.peekChar0() == 'i' {
		l.readChar()
		tok.caseInsensitive = true
	}
	return tok
}

func (l *lexer) lexPattern(pos Position) *token {
	var b strings.Builder
	for {
		c, ok := l.peekChar()
		if !ok {
			l.raise(synErrUnclosedPattern, "", pos)
		}
		l.readChar()
		if c == '/' {
			break
		}
		if c == '\n' {
			l.raise(synErrUnclosedPattern, "", pos)
		}
		if c == '\\' {
			e, ok := l.peekChar()
			if !ok {
				l.raise(synErrIncompleteEsc, "", pos)
			}
			l.readChar()
			if e == '/' {
				b.WriteRune('/')
			} else {
				b.WriteRune('\\')
				b.WriteRune(e)
			}
			continue
		}
		b.WriteRune(c)
	}
	if b.Len() == 0 {
		l.raise(synErrEmptyPattern, "", pos)
	}
	tok := &token{
		kind: tokenKindPattern,
		text: b.String(),
		pos:  pos,
	}
	var flags strings.Builder
	for {
		c, ok := l.peekChar()
		if !ok {
			break
		}
		if c == 'i' || c == 'm' || c == 's' || c == 'u' {
			l.readChar()
			if c == 'i' {
				tok.caseInsensitive = true
			}
			if c != 'u' {
				flags.WriteRune(c)
			}
			continue
		}
		break
	}
	tok.flags = flags.String()
	return tok
}

func (l *lexer) peekChar() (rune, bool) {
	if l.ptr >= len(l.src) {
		return 0, false
	}
	return l.src[l.ptr], true
}

func (l *lexer) peekChar0() rune {
	c, _ := l.peekChar()
	return c
}

func (l *lexer) peekCharAt(n int) rune {
	if l.ptr+n >= len(l.src) {
		return 0
	}
	return l.src[l.ptr+n]
}

func (l *lexer) readChar() rune {
	if l.ptr >= len(l.src) {
		panic(fmt.Errorf("read beyond the end of the source"))
	}
	c := l.src[l.ptr]
	l.ptr++
	if c == '\n' {
		l.row++
		l.col = 1
	} else {
		l.col++
	}
	return c
}
