// Package grackle builds parsers from grammars written in an extended
// BNF dialect. A grammar compiles once into an immutable parser; each
// Parse call runs either the LALR(1) driver or the Earley driver over
// its own private state, so one parser is safe to share between
// goroutines.
package grackle

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/grackle-lang/grackle/driver"
	"github.com/grackle-lang/grackle/driver/earley"
	"github.com/grackle-lang/grackle/driver/lexer"
	"github.com/grackle-lang/grackle/driver/parser"
	"github.com/grackle-lang/grackle/grammar"
	spec "github.com/grackle-lang/grackle/spec/grammar"
	"github.com/grackle-lang/grackle/tree"
)

// Error kinds surfaced by construction and parsing. GrammarSyntaxError
// and SemanticError come from grammar construction; the Unexpected*
// errors from parsing.
type (
	GrammarSyntaxError   = spec.SyntaxError
	GrammarError         = grammar.SemanticError
	UnexpectedCharacters = driver.UnexpectedCharacters
	UnexpectedToken      = driver.UnexpectedToken
	UnexpectedEOF        = driver.UnexpectedEOF
	VisitError           = tree.VisitError
)

const (
	ParserLALR   = "lalr"
	ParserEarley = "earley"

	LexerBasic           = "basic"
	LexerContextual      = "contextual"
	LexerDynamic         = "dynamic"
	LexerDynamicComplete = "dynamic_complete"

	AmbiguityResolve  = "resolve"
	AmbiguityExplicit = "explicit"
)

type config struct {
	starts             []string
	parser             string
	lexer              string
	ambiguity          string
	debug              bool
	keepAllTokens      bool
	propagatePositions bool
	maybePlaceholders  bool
	regex              bool
	priority           grammar.PriorityMode
	disambiguator      func(alternatives []tree.Node) int
	importLoader       spec.ImportLoader
	sourceName         string
}

type Option func(c *config) error

// Start sets the start rule, or several; the first is the default for
// Parse.
func Start(names ...string) Option {
	return func(c *config) error {
		if len(names) == 0 {
			return fmt.Errorf("at least one start rule is required")
		}
		c.starts = names
		return nil
	}
}

// WithParser selects the engine: ParserEarley (the default) accepts all
// context-free grammars; ParserLALR is linear-time on the LR subset.
func WithParser(name string) Option {
	return func(c *config) error {
		switch name {
		case ParserLALR, ParserEarley:
			c.parser = name
			return nil
		}
		return fmt.Errorf("unknown parser: %v", name)
	}
}

// WithLexer selects the tokenizer. LexerContextual is LALR-only;
// LexerDynamic and LexerDynamicComplete are Earley-only.
func WithLexer(name string) Option {
	return func(c *config) error {
		switch name {
		case LexerBasic, LexerContextual, LexerDynamic, LexerDynamicComplete:
			c.lexer = name
			return nil
		}
		return fmt.Errorf("unknown lexer: %v", name)
	}
}

// WithAmbiguity selects how the Earley driver handles ambiguous parses:
// AmbiguityResolve (the default) picks one tree by rule priority;
// AmbiguityExplicit groups the alternatives under an `_ambig` node.
func WithAmbiguity(mode string) Option {
	return func(c *config) error {
		switch mode {
		case AmbiguityResolve, AmbiguityExplicit:
			c.ambiguity = mode
			return nil
		}
		return fmt.Errorf("unknown ambiguity mode: %v", mode)
	}
}

// Debug emits build and parse diagnostics to stderr.
func Debug() Option {
	return func(c *config) error {
		c.debug = true
		return nil
	}
}

// KeepAllTokens retains anonymous and filtered tokens in parse trees.
func KeepAllTokens() Option {
	return func(c *config) error {
		c.keepAllTokens = true
		return nil
	}
}

// PropagatePositions fills tree metadata with source spans.
func PropagatePositions() Option {
	return func(c *config) error {
		c.propagatePositions = true
		return nil
	}
}

// MaybePlaceholders makes absent `[x]` items produce nil children
// instead of disappearing.
func MaybePlaceholders() Option {
	return func(c *config) error {
		c.maybePlaceholders = true
		return nil
	}
}

// Regex requests the extended regex engine with Unicode property
// support. The host engine carries Unicode property classes either way,
// so both settings compile patterns identically; the option lets a
// grammar declare the requirement.
func Regex() Option {
	return func(c *config) error {
		c.regex = true
		return nil
	}
}

// WithDisambiguator installs a callback the Earley driver consults at
// each ambiguity the static priorities cannot settle. It receives the
// materialized alternatives and returns the index of the one to keep.
func WithDisambiguator(pick func(alternatives []tree.Node) int) Option {
	return func(c *config) error {
		c.disambiguator = pick
		return nil
	}
}

// WithPriority controls rule priorities: "normal", "invert" (flips the
// sign of explicitly declared priorities), or "none".
func WithPriority(mode string) Option {
	return func(c *config) error {
		switch mode {
		case "normal":
			c.priority = grammar.PriorityNormal
		case "invert":
			c.priority = grammar.PriorityInvert
		case "none":
			c.priority = grammar.PriorityNone
		default:
			return fmt.Errorf("unknown priority mode: %v", mode)
		}
		return nil
	}
}

// WithImportLoader installs the resolver for %import paths. The default
// serves only the builtin `common` module. There is no global registry;
// everything an import can see comes through the loader passed here.
func WithImportLoader(l spec.ImportLoader) Option {
	return func(c *config) error {
		c.importLoader = l
		return nil
	}
}

// SourceName names the grammar in diagnostics.
func SourceName(name string) Option {
	return func(c *config) error {
		c.sourceName = name
		return nil
	}
}

// Parser is an immutable compiled parser.
type Parser struct {
	cg     *grammar.CompiledGrammar
	cfg    *config
	logger *zap.Logger
}

// New compiles grammarSrc and constructs a parser. Grammar errors are
// fatal and reported here; Parse never sees a half-built grammar.
func New(grammarSrc string, opts ...Option) (*Parser, error) {
	cfg := &config{
		starts:     []string{"start"},
		parser:     ParserEarley,
		ambiguity:  AmbiguityResolve,
		priority:   grammar.PriorityNormal,
		sourceName: "<grammar>",
	}
	for _, opt := range opts {
		err := opt(cfg)
		if err != nil {
			return nil, err
		}
	}

	if cfg.lexer == "" {
		cfg.lexer = LexerBasic
		if cfg.parser == ParserLALR {
			cfg.lexer = LexerContextual
		}
	}
	switch cfg.lexer {
	case LexerContextual:
		if cfg.parser != ParserLALR {
			return nil, fmt.Errorf("the contextual lexer requires the lalr parser")
		}
	case LexerDynamic, LexerDynamicComplete:
		if cfg.parser != ParserEarley {
			return nil, fmt.Errorf("the %v lexer requires the earley parser", cfg.lexer)
		}
	}
	if cfg.ambiguity == AmbiguityExplicit && cfg.parser != ParserEarley {
		return nil, fmt.Errorf("explicit ambiguity requires the earley parser")
	}

	logger := zap.NewNop()
	if cfg.debug {
		l, err := zap.NewDevelopment()
		if err != nil {
			return nil, err
		}
		logger = l
	}

	loaded, err := spec.Load(grammarSrc, cfg.sourceName, cfg.importLoader)
	if err != nil {
		return nil, err
	}

	buildOpts := []grammar.BuildOption{
		grammar.StartSymbols(cfg.starts...),
		grammar.Priority(cfg.priority),
		grammar.Logger(logger),
	}
	if cfg.parser == ParserLALR {
		buildOpts = append(buildOpts, grammar.EnableTables())
	}
	if cfg.keepAllTokens {
		buildOpts = append(buildOpts, grammar.KeepAllTokens())
	}
	if cfg.maybePlaceholders {
		buildOpts = append(buildOpts, grammar.MaybePlaceholders())
	}

	cg, err := grammar.Build(loaded, buildOpts...)
	if err != nil {
		return nil, err
	}

	return &Parser{
		cg:     cg,
		cfg:    cfg,
		logger: logger,
	}, nil
}

// MustNew is New, panicking on error. Grammars are usually static; the
// panic surfaces typos at startup.
func MustNew(grammarSrc string, opts ...Option) *Parser {
	p, err := New(grammarSrc, opts...)
	if err != nil {
		panic(err)
	}
	return p
}

type parseConfig struct {
	start   string
	onError func(err *UnexpectedToken) bool
}

type ParseOption func(c *parseConfig)

// ParseStart overrides the start rule for one parse.
func ParseStart(name string) ParseOption {
	return func(c *parseConfig) {
		c.start = name
	}
}

// OnError installs the LALR error hook: return true to skip tokens to a
// synchronizing terminal and resume.
func OnError(hook func(err *UnexpectedToken) bool) ParseOption {
	return func(c *parseConfig) {
		c.onError = hook
	}
}

// Parse converts text into a parse tree.
func (p *Parser) Parse(text string, opts ...ParseOption) (*tree.Tree, error) {
	pc := &parseConfig{
		start: p.cfg.starts[0],
	}
	for _, opt := range opts {
		opt(pc)
	}

	node, err := p.parseNode(text, pc)
	if err != nil {
		return nil, err
	}
	if t, ok := node.(*tree.Tree); ok {
		return t, nil
	}
	// An inlined start rule can reduce to a bare token; keep the
	// documented return type by wrapping it.
	return &tree.Tree{
		Data:     pc.start,
		Children: []tree.Node{node},
	}, nil
}

func (p *Parser) parseNode(text string, pc *parseConfig) (tree.Node, error) {
	lex := lexer.NewLexer(p.cg.LexSpec, text)

	if p.cfg.parser == ParserLALR {
		gram, err := parser.NewGrammar(p.cg, pc.start)
		if err != nil {
			return nil, err
		}
		popts := []parser.ParserOption{
			parser.Logger(p.logger),
		}
		if p.cfg.lexer == LexerContextual {
			popts = append(popts, parser.ContextualLexer())
		}
		if p.cfg.propagatePositions {
			popts = append(popts, parser.PropagatePositions())
		}
		if pc.onError != nil {
			popts = append(popts, parser.OnError(pc.onError))
		}
		d, err := parser.NewParser(gram, lex, popts...)
		if err != nil {
			return nil, err
		}
		return d.Parse()
	}

	eopts := []earley.ParserOption{
		earley.Logger(p.logger),
	}
	if p.cfg.ambiguity == AmbiguityExplicit {
		eopts = append(eopts, earley.ExplicitAmbiguity())
	}
	switch p.cfg.lexer {
	case LexerDynamic:
		eopts = append(eopts, earley.DynamicLexer(false))
	case LexerDynamicComplete:
		eopts = append(eopts, earley.DynamicLexer(true))
	}
	if p.cfg.propagatePositions {
		eopts = append(eopts, earley.PropagatePositions())
	}
	if p.cfg.disambiguator != nil {
		eopts = append(eopts, earley.Disambiguator(p.cfg.disambiguator))
	}
	d, err := earley.NewParser(p.cg, lex, pc.start, eopts...)
	if err != nil {
		return nil, err
	}
	return d.Parse()
}

// Grammar exposes the compiled grammar for inspection.
func (p *Parser) Grammar() *grammar.CompiledGrammar {
	return p.cg
}
