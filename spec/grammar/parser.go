package grammar

import (
	verr "github.com/grackle-lang/grackle/error"
)

// Parse parses one grammar source into its AST. sourceName appears in
// error messages; import resolution happens later, in the loader.
func Parse(src string, sourceName string) (*RootNode, error) {
	p := newParser(src, sourceName)
	return p.parse()
}

type parser struct {
	lex        *lexer
	peekedTok  *token
	lastTok    *token
	sourceName string
}

func newParser(src string, sourceName string) *parser {
	return &parser{
		lex:        newLexer(src, sourceName),
		sourceName: sourceName,
	}
}

func (p *parser) parse() (root *RootNode, retErr error) {
	defer func() {
		v := recover()
		if v == nil {
			return
		}
		err, ok := v.(error)
		if !ok {
			panic(v)
		}
		retErr = err
	}()
	return p.parseRoot(), nil
}

func (p *parser) raise(synErr *SyntaxError, detail string, pos Position) {
	panic(&verr.SourceError{
		Cause:      synErr,
		Detail:     detail,
		SourceName: p.sourceName,
		Row:        pos.Row,
		Col:        pos.Col,
	})
}

func (p *parser) parseRoot() *RootNode {
	root := &RootNode{}
	for {
		if p.consume(tokenKindNewline) {
			continue
		}
		if p.consume(tokenKindEOF) {
			break
		}
		switch {
		case p.consume(tokenKindPercent):
			root.Statements = append(root.Statements, p.parseStatement())
		case p.consume(tokenKindRuleID):
			root.Rules = append(root.Rules, p.parseRule(p.lastTok))
		case p.consume(tokenKindTermID):
			root.Terminals = append(root.Terminals, p.parseTerminal(p.lastTok))
		default:
			tok := p.peek()
			p.raise(synErrInvalidToken, tok.text, tok.pos)
		}
	}
	if len(root.Rules) == 0 && len(root.Terminals) == 0 && len(root.Statements) == 0 {
		p.raise(synErrNoDefinition, "", newPosition(1, 1))
	}
	return root
}

func (p *parser) parseRule(name *token) *RuleNode {
	rule := &RuleNode{
		Name:          name.text,
		Inline:        name.inline,
		FilterOut:     name.filterOut,
		KeepAllTokens: name.keepAll,
		Pos:           name.pos,
	}
	if p.consume(tokenKindLBrace) {
		rule.Params = p.parseTemplateParams()
	}
	if p.consume(tokenKindDot) {
		if !p.consume(tokenKindNumber) {
			p.raise(synErrInvalidNumber, "a rule priority must be an integer", p.peek().pos)
		}
		rule.Priority = p.lastTok.num
	}
	if !p.consume(tokenKindColon) {
		p.raise(synErrNoColon, name.text, p.peek().pos)
	}
	rule.RHS = p.parseExpansions()
	p.consumeItemEnd()
	return rule
}

func (p *parser) parseTerminal(name *token) *TerminalNode {
	term := &TerminalNode{
		Name:      name.text,
		FilterOut: name.filterOut,
		Pos:       name.pos,
	}
	if p.consume(tokenKindDot) {
		if !p.consume(tokenKindNumber) {
			p.raise(synErrInvalidNumber, "a terminal priority must be an integer", p.peek().pos)
		}
		term.Priority = p.lastTok.num
	}
	if !p.consume(tokenKindColon) {
		p.raise(synErrNoColon, name.text, p.peek().pos)
	}
	term.RHS = p.parseExpansions()
	p.consumeItemEnd()
	return term
}

func (p *parser) parseTemplateParams() []string {
	var params []string
	for {
		if !p.consume(tokenKindRuleID) {
			p.raise(synErrTemplateUnclosed, "", p.peek().pos)
		}
		params = append(params, p.lastTok.text)
		if p.consume(tokenKindComma) {
			continue
		}
		if p.consume(tokenKindRBrace) {
			return params
		}
		p.raise(synErrTemplateUnclosed, "", p.peek().pos)
	}
}

func (p *parser) parseExpansions() *ExpansionsNode {
	alt := p.parseAlternative()
	exps := &ExpansionsNode{
		Alts: []*AlternativeNode{alt},
	}
	for p.consume(tokenKindOr) {
		exps.Alts = append(exps.Alts, p.parseAlternative())
	}
	return exps
}

func (p *parser) parseAlternative() *AlternativeNode {
	alt := &AlternativeNode{
		Pos: p.peek().pos,
	}
	for {
		expr := p.parseExpr()
		if expr == nil {
			break
		}
		alt.Elems = append(alt.Elems, expr)
	}
	if p.consume(tokenKindArrow) {
		if !p.consume(tokenKindRuleID) {
			p.raise(synErrNoAliasName, "", p.peek().pos)
		}
		alt.Alias = p.lastTok.text
	}
	return alt
}

func (p *parser) parseExpr() *ExprNode {
	atom := p.parseAtom()
	if atom == nil {
		return nil
	}
	expr := &ExprNode{
		Atom: atom,
	}
	switch {
	case p.consume(tokenKindQuestion):
		expr.Op = '?'
	case p.consume(tokenKindStar):
		expr.Op = '*'
	case p.consume(tokenKindPlus):
		expr.Op = '+'
	case p.consume(tokenKindTilde):
		expr.Op = '~'
		if !p.consume(tokenKindNumber) {
			p.raise(synErrNoRangeBound, "", p.peek().pos)
		}
		expr.RangeMin = p.lastTok.num
		expr.RangeMax = p.lastTok.num
		if p.consume(tokenKindDotDot) {
			if !p.consume(tokenKindNumber) {
				p.raise(synErrNoRangeBound, "", p.peek().pos)
			}
			expr.RangeMax = p.lastTok.num
		}
		if expr.RangeMax < expr.RangeMin {
			p.raise(synErrRangeBackwards, "", atom.Pos)
		}
	}
	return expr
}

func (p *parser) parseAtom() *AtomNode {
	switch {
	case p.consume(tokenKindLParen):
		pos := p.lastTok.pos
		group := p.parseExpansions()
		if !p.consume(tokenKindRParen) {
			p.raise(synErrGroupUnclosed, "", p.peek().pos)
		}
		return &AtomNode{
			Kind:  AtomKindGroup,
			Group: group,
			Pos:   pos,
		}
	case p.consume(tokenKindLBracket):
		pos := p.lastTok.pos
		group := p.parseExpansions()
		if !p.consume(tokenKindRBracket) {
			p.raise(synErrMaybeUnclosed, "", p.peek().pos)
		}
		return &AtomNode{
			Kind:  AtomKindMaybe,
			Group: group,
			Pos:   pos,
		}
	case p.consume(tokenKindString):
		return &AtomNode{
			Kind:            AtomKindString,
			Text:            p.lastTok.text,
			CaseInsensitive: p.lastTok.caseInsensitive,
			Pos:             p.lastTok.pos,
		}
	case p.consume(tokenKindPattern):
		return &AtomNode{
			Kind:            AtomKindPattern,
			Text:            p.lastTok.text,
			CaseInsensitive: p.lastTok.caseInsensitive,
			Flags:           p.lastTok.flags,
			Pos:             p.lastTok.pos,
		}
	case p.consume(tokenKindTermID):
		return &AtomNode{
			Kind: AtomKindTermRef,
			Text: p.lastTok.text,
			Pos:  p.lastTok.pos,
		}
	case p.consume(tokenKindRuleID):
		name := p.lastTok
		if p.consume(tokenKindLBrace) {
			return p.parseTemplateCall(name)
		}
		return &AtomNode{
			Kind: AtomKindRuleRef,
			Text: name.text,
			Pos:  name.pos,
		}
	}
	return nil
}

func (p *parser) parseTemplateCall(name *token) *AtomNode {
	call := &AtomNode{
		Kind: AtomKindTemplate,
		Text: name.text,
		Pos:  name.pos,
	}
	for {
		arg := p.parseAtom()
		if arg == nil {
			p.raise(synErrTemplateUnclosed, "", p.peek().pos)
		}
		call.Args = append(call.Args, arg)
		if p.consume(tokenKindComma) {
			continue
		}
		if p.consume(tokenKindRBrace) {
			return call
		}
		p.raise(synErrTemplateUnclosed, "", p.peek().pos)
	}
}

func (p *parser) parseStatement() *StatementNode {
	if !p.consume(tokenKindRuleID) {
		p.raise(synErrNoDirectiveName, "", p.peek().pos)
	}
	name := p.lastTok
	stmt := &StatementNode{
		Pos: name.pos,
	}
	switch name.text {
	case "ignore":
		stmt.Kind = StatementKindIgnore
		atom := p.parseAtom()
		if atom == nil {
			p.raise(synErrNoIgnoreTerminal, "", p.peek().pos)
		}
		switch atom.Kind {
		case AtomKindTermRef, AtomKindString, AtomKindPattern:
		default:
			p.raise(synErrNoIgnoreTerminal, string(atom.Kind), atom.Pos)
		}
		stmt.IgnoreAtom = atom
		p.consumeItemEnd()
	case "import":
		stmt.Kind = StatementKindImport
		p.parseImportTail(stmt)
	case "declare":
		stmt.Kind = StatementKindDeclare
		for p.consume(tokenKindTermID) {
			stmt.DeclareTerminals = append(stmt.DeclareTerminals, p.lastTok.text)
		}
		if len(stmt.DeclareTerminals) == 0 {
			if p.peek().kind == tokenKindRuleID {
				p.raise(synErrDeclareNonTerm, p.peek().text, p.peek().pos)
			}
			p.raise(synErrNoDeclareTerminal, "", p.peek().pos)
		}
		p.consumeItemEnd()
	case "override":
		stmt.Kind = StatementKindOverride
		p.parseOverrideTail(stmt)
	case "extend":
		stmt.Kind = StatementKindExtend
		p.parseOverrideTail(stmt)
	default:
		p.raise(synErrUnknownDirective, name.text, name.pos)
	}
	return stmt
}

func (p *parser) parseImportTail(stmt *StatementNode) {
	for {
		switch {
		case p.consume(tokenKindRuleID), p.consume(tokenKindTermID):
			stmt.ImportPath = append(stmt.ImportPath, p.lastTok.text)
		default:
			p.raise(synErrNoImportPath, "", p.peek().pos)
		}
		if p.consume(tokenKindDot) {
			continue
		}
		break
	}
	if p.consume(tokenKindArrow) {
		// %import path.NAME -> RENAMED
		if !p.consume(tokenKindTermID) && !p.consume(tokenKindRuleID) {
			p.raise(synErrNoAliasName, "", p.peek().pos)
		}
		last := stmt.ImportPath[len(stmt.ImportPath)-1]
		stmt.ImportPath = stmt.ImportPath[:len(stmt.ImportPath)-1]
		stmt.ImportNames = []*ImportNameNode{
			{Name: last, Rename: p.lastTok.text},
		}
	} else if p.consume(tokenKindLParen) {
		for {
			if !p.consume(tokenKindTermID) && !p.consume(tokenKindRuleID) {
				p.raise(synErrNoImportPath, "an import name list must hold names", p.peek().pos)
			}
			imp := &ImportNameNode{
				Name: p.lastTok.text,
			}
			if p.consume(tokenKindArrow) {
				if !p.consume(tokenKindTermID) && !p.consume(tokenKindRuleID) {
					p.raise(synErrNoAliasName, "", p.peek().pos)
				}
				imp.Rename = p.lastTok.text
			}
			stmt.ImportNames = append(stmt.ImportNames, imp)
			if p.consume(tokenKindComma) {
				continue
			}
			if p.consume(tokenKindRParen) {
				break
			}
			p.raise(synErrNoImportPath, "unclosed import name list", p.peek().pos)
		}
	}
	p.consumeItemEnd()
}

func (p *parser) parseOverrideTail(stmt *StatementNode) {
	switch {
	case p.consume(tokenKindRuleID):
		stmt.OverrideRule = p.parseRule(p.lastTok)
	case p.consume(tokenKindTermID):
		stmt.OverrideTerminal = p.parseTerminal(p.lastTok)
	default:
		p.raise(synErrInvalidToken, p.peek().text, p.peek().pos)
	}
}

func (p *parser) consumeItemEnd() {
	if p.consume(tokenKindNewline) || p.consume(tokenKindEOF) {
		return
	}
	tok := p.peek()
	p.raise(synErrNoItemEnd, tok.text, tok.pos)
}

func (p *parser) peek() *token {
	if p.peekedTok == nil {
		tok, err := p.lex.next()
		if err != nil {
			panic(err)
		}
		p.peekedTok = tok
	}
	return p.peekedTok
}

func (p *parser) consume(expected tokenKind) bool {
	tok := p.peek()
	if tok.kind == tokenKindInvalid {
		p.raise(synErrInvalidToken, tok.text, tok.pos)
	}
	if tok.kind == expected {
		p.peekedTok = nil
		p.lastTok = tok
		return true
	}
	return false
}
