package parser

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/grackle-lang/grackle/driver"
	"github.com/grackle-lang/grackle/driver/lexer"
	"github.com/grackle-lang/grackle/tree"
)

type ParserOption func(p *Parser) error

// ContextualLexer restricts the lexer's candidate terminals to the ones
// acceptable in the current parser state before each token. Every token a
// contextual lexer emits is legal in the state that requested it.
func ContextualLexer() ParserOption {
	return func(p *Parser) error {
		p.contextual = true
		return nil
	}
}

// PropagatePositions fills tree metadata with source spans.
func PropagatePositions() ParserOption {
	return func(p *Parser) error {
		p.assembler.PropagatePositions = true
		return nil
	}
}

// OnError installs the syntax-error hook. When it returns true, the
// driver drops tokens until one is acceptable in the current state and
// resumes; otherwise parsing halts with the error.
func OnError(hook func(err *driver.UnexpectedToken) bool) ParserOption {
	return func(p *Parser) error {
		p.onError = hook
		return nil
	}
}

func Logger(l *zap.Logger) ParserOption {
	return func(p *Parser) error {
		p.logger = l
		return nil
	}
}

// Parser is the LALR(1) driver. One parser runs one parse; the grammar
// behind it is shared and immutable.
type Parser struct {
	gram       Grammar
	lex        *lexer.Lexer
	stateStack []int
	semStack   []*driver.Frame
	assembler  driver.Assembler
	contextual bool
	onError    func(err *driver.UnexpectedToken) bool
	logger     *zap.Logger
}

func NewParser(gram Grammar, lex *lexer.Lexer, opts ...ParserOption) (*Parser, error) {
	p := &Parser{
		gram:   gram,
		lex:    lex,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		err := opt(p)
		if err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Parse drives the table until accept or error. The returned node is the
// start rule's tree, or, when the start rule is inlined, its single
// child.
func (p *Parser) Parse() (tree.Node, error) {
	p.stateStack = p.stateStack[:0]
	p.semStack = p.semStack[:0]
	p.push(p.gram.InitialState())

	tok, err := p.nextToken()
	if err != nil {
		return nil, err
	}

	for {
		act := p.lookupAction(tok)
		switch {
		case act < 0: // Shift
			nextState := act * -1
			p.push(nextState)
			p.semStack = append(p.semStack, p.assembler.TokenFrame(tok.Tok, p.gram.TerminalFilterOut(tok.TerminalID)))
			p.logger.Debug("shift",
				zap.String("terminal", p.gram.Terminal(tok.TerminalID)),
				zap.Int("state", nextState))

			tok, err = p.nextToken()
			if err != nil {
				return nil, err
			}
		case act > 0: // Reduce
			prodNum := act
			if prodNum == p.gram.StartProduction() {
				p.logger.Debug("accept")
				return p.semStack[len(p.semStack)-1].Node, nil
			}

			n := p.gram.AlternativeSymbolCount(prodNum)
			handle := p.semStack[len(p.semStack)-n:]
			frame := p.assembler.Assemble(p.gram.Attrs(prodNum), handle)
			p.semStack = p.semStack[:len(p.semStack)-n]
			p.semStack = append(p.semStack, frame)

			p.pop(n)
			lhs := p.gram.LHS(prodNum)
			nextState := p.gram.GoTo(p.top(), lhs)
			if nextState < 0 {
				return nil, fmt.Errorf("no goto entry; state: %v, production: %v", p.top(), prodNum)
			}
			p.push(nextState)
			p.logger.Debug("reduce", zap.Int("production", prodNum))
		default: // Error
			if tok.EOF {
				return nil, &driver.UnexpectedEOF{
					Expected: p.expectedNames(),
					Row:      tok.Tok.Row,
					Col:      tok.Tok.Col,
				}
			}
			synErr := p.newSyntaxError(tok)
			if p.onError == nil || !p.onError(synErr) {
				return nil, synErr
			}

			// Recovery: drop tokens until one is acceptable in the
			// current state.
			for {
				tok, err = p.nextToken()
				if err != nil {
					return nil, err
				}
				if tok.EOF {
					return nil, synErr
				}
				if p.lookupAction(tok) != 0 {
					break
				}
			}
			p.logger.Debug("recovered", zap.String("terminal", p.gram.Terminal(tok.TerminalID)))
		}
	}
}

func (p *Parser) nextToken() (*lexer.Token, error) {
	if p.contextual {
		p.lex.Restrict(p.gram.AcceptableTerminals(p.top()))
	}
	tok, err := p.lex.Next()
	if err != nil {
		uc, ok := err.(*driver.UnexpectedCharacters)
		if ok && p.contextual {
			// Text that no acceptable terminal matches may still lex as
			// another terminal; that token then reaches the parser as itself.
			p.lex.Unrestrict()
			if retried, retryErr := p.lex.Next(); retryErr == nil {
				return retried, nil
			}
		}
		// A lexing failure is reported as a syntax error so the caller
		// gets the expectation set of the state that asked for a token.
		if ok {
			return nil, &driver.UnexpectedToken{
				Token: &tree.Token{
					Type:     "<invalid>",
					Value:    string(uc.Char),
					StartPos: uc.Pos,
					Row:      uc.Row,
					Col:      uc.Col,
					EndRow:   uc.Row,
					EndCol:   uc.Col + 1,
				},
				Expected: p.expectedNames(),
				State:    p.top(),
			}
		}
		return nil, err
	}
	return tok, nil
}

func (p *Parser) lookupAction(tok *lexer.Token) int {
	term := tok.TerminalID
	if tok.EOF {
		term = p.gram.EOF()
	}
	return p.gram.Action(p.top(), term)
}

func (p *Parser) newSyntaxError(tok *lexer.Token) *driver.UnexpectedToken {
	return &driver.UnexpectedToken{
		Token:    tok.Tok,
		Expected: p.expectedNames(),
		State:    p.top(),
	}
}

func (p *Parser) expectedNames() []string {
	var expected []string
	for _, term := range p.gram.AcceptableTerminals(p.top()) {
		if term == p.gram.EOF() {
			expected = append(expected, "<eof>")
			continue
		}
		expected = append(expected, p.gram.Terminal(term))
	}
	return expected
}

func (p *Parser) top() int {
	return p.stateStack[len(p.stateStack)-1]
}

func (p *Parser) push(state int) {
	p.stateStack = append(p.stateStack, state)
}

func (p *Parser) pop(n int) {
	p.stateStack = p.stateStack[:len(p.stateStack)-n]
}
