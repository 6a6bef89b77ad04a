package grammar

import (
	"embed"
	"fmt"
	"strings"

	verr "github.com/grackle-lang/grackle/error"
)

type loadError struct {
	message string
}

func newLoadError(message string) *loadError {
	return &loadError{
		message: message,
	}
}

func (e *loadError) Error() string {
	return e.message
}

var (
	loadErrCyclicImport    = newLoadError("cyclic import")
	loadErrUnknownModule   = newLoadError("cannot resolve import")
	loadErrUnknownName     = newLoadError("imported name is not defined in the module")
	loadErrDuplicateDef    = newLoadError("duplicate definition")
	loadErrOverrideUnknown = newLoadError("%override target is not defined")
	loadErrExtendUnknown   = newLoadError("%extend target is not defined")
)

// ImportLoader resolves `%import` paths to grammar sources. Implementations
// must be pure lookups: the loader runs only during construction.
type ImportLoader interface {
	Load(path []string) (src string, sourceName string, err error)
}

//go:embed grammars/*.grk
var builtinFS embed.FS

type builtinLoader struct{}

// NewBuiltinLoader returns the loader serving the library's bundled
// grammars (the `common` terminal library).
func NewBuiltinLoader() ImportLoader {
	return &builtinLoader{}
}

func (l *builtinLoader) Load(path []string) (string, string, error) {
	name := strings.Join(path, "/")
	b, err := builtinFS.ReadFile("grammars/" + name + ".grk")
	if err != nil {
		return "", "", loadErrUnknownModule
	}
	return string(b), strings.Join(path, "."), nil
}

// Grammar is a fully loaded grammar: one source plus everything it
// imported, with %override and %extend already applied. Definition order
// is preserved because it breaks lexer-priority ties later.
type Grammar struct {
	Name      string
	Rules     []*RuleNode
	Terminals []*TerminalNode
	Declared  []string
	Ignore    []*AtomNode
}

func (g *Grammar) Rule(name string) *RuleNode {
	for _, r := range g.Rules {
		if r.Name == name {
			return r
		}
	}
	return nil
}

func (g *Grammar) Terminal(name string) *TerminalNode {
	for _, t := range g.Terminals {
		if t.Name == name {
			return t
		}
	}
	return nil
}

type loader struct {
	importLoader ImportLoader
	inProgress   []string
}

// Load parses src and resolves every statement, pulling imported
// definitions in through importLoader. A nil importLoader resolves
// builtin modules only.
func Load(src string, sourceName string, importLoader ImportLoader) (*Grammar, error) {
	if importLoader == nil {
		importLoader = NewBuiltinLoader()
	}
	l := &loader{
		importLoader: importLoader,
	}
	return l.load(src, sourceName)
}

func (l *loader) load(src string, sourceName string) (*Grammar, error) {
	root, err := Parse(src, sourceName)
	if err != nil {
		return nil, err
	}

	g := &Grammar{
		Name: sourceName,
	}
	for _, rule := range root.Rules {
		if g.Rule(rule.Name) != nil {
			return nil, &verr.SourceError{
				Cause:      loadErrDuplicateDef,
				Detail:     rule.Name,
				SourceName: sourceName,
				Row:        rule.Pos.Row,
				Col:        rule.Pos.Col,
			}
		}
		g.Rules = append(g.Rules, rule)
	}
	for _, term := range root.Terminals {
		if g.Terminal(term.Name) != nil {
			return nil, &verr.SourceError{
				Cause:      loadErrDuplicateDef,
				Detail:     term.Name,
				SourceName: sourceName,
				Row:        term.Pos.Row,
				Col:        term.Pos.Col,
			}
		}
		g.Terminals = append(g.Terminals, term)
	}

	for _, stmt := range root.Statements {
		switch stmt.Kind {
		case StatementKindIgnore:
			g.Ignore = append(g.Ignore, stmt.IgnoreAtom)
		case StatementKindDeclare:
			g.Declared = append(g.Declared, stmt.DeclareTerminals...)
		case StatementKindImport:
			err := l.applyImport(g, stmt, sourceName)
			if err != nil {
				return nil, err
			}
		case StatementKindOverride:
			err := applyOverride(g, stmt, sourceName)
			if err != nil {
				return nil, err
			}
		case StatementKindExtend:
			err := applyExtend(g, stmt, sourceName)
			if err != nil {
				return nil, err
			}
		}
	}

	return g, nil
}

func (l *loader) applyImport(g *Grammar, stmt *StatementNode, sourceName string) error {
	path := stmt.ImportPath
	names := stmt.ImportNames
	if len(names) == 0 {
		// %import path.NAME pulls a single definition; the module is
		// everything up to the last path element.
		if len(path) < 2 {
			return &verr.SourceError{
				Cause:      loadErrUnknownModule,
				Detail:     strings.Join(path, "."),
				SourceName: sourceName,
				Row:        stmt.Pos.Row,
				Col:        stmt.Pos.Col,
			}
		}
		names = []*ImportNameNode{
			{Name: path[len(path)-1]},
		}
		path = path[:len(path)-1]
	}

	modKey := strings.Join(path, ".")
	for _, in := range l.inProgress {
		if in == modKey {
			return &verr.SourceError{
				Cause:      loadErrCyclicImport,
				Detail:     modKey,
				SourceName: sourceName,
				Row:        stmt.Pos.Row,
				Col:        stmt.Pos.Col,
			}
		}
	}

	src, modName, err := l.importLoader.Load(path)
	if err != nil {
		return &verr.SourceError{
			Cause:      loadErrUnknownModule,
			Detail:     modKey,
			SourceName: sourceName,
			Row:        stmt.Pos.Row,
			Col:        stmt.Pos.Col,
		}
	}

	l.inProgress = append(l.inProgress, modKey)
	mod, err := l.load(src, modName)
	l.inProgress = l.inProgress[:len(l.inProgress)-1]
	if err != nil {
		return err
	}

	for _, imp := range names {
		err := importName(g, mod, imp.Name, imp.Rename, stmt, sourceName)
		if err != nil {
			return err
		}
	}
	return nil
}

// importName copies one definition out of mod, plus everything it
// references, transitively. Only the top name is renamed; referenced
// definitions keep their names and are shared between imports.
func importName(g *Grammar, mod *Grammar, name string, rename string, stmt *StatementNode, sourceName string) error {
	target := rename
	if target == "" {
		target = name
	}

	if term := mod.Terminal(name); term != nil {
		if g.Terminal(target) == nil {
			copied := *term
			copied.Name = target
			g.Terminals = append(g.Terminals, &copied)
		}
		return importReferenced(g, mod, term.RHS)
	}
	if rule := mod.Rule(name); rule != nil {
		if g.Rule(target) == nil {
			copied := *rule
			copied.Name = target
			g.Rules = append(g.Rules, &copied)
		}
		return importReferenced(g, mod, rule.RHS)
	}
	return &verr.SourceError{
		Cause:      loadErrUnknownName,
		Detail:     name,
		SourceName: sourceName,
		Row:        stmt.Pos.Row,
		Col:        stmt.Pos.Col,
	}
}

func importReferenced(g *Grammar, mod *Grammar, exps *ExpansionsNode) error {
	var walk func(*ExpansionsNode) error
	walk = func(exps *ExpansionsNode) error {
		if exps == nil {
			return nil
		}
		for _, alt := range exps.Alts {
			for _, expr := range alt.Elems {
				atom := expr.Atom
				switch atom.Kind {
				case AtomKindGroup, AtomKindMaybe:
					if err := walk(atom.Group); err != nil {
						return err
					}
				case AtomKindTermRef:
					if g.Terminal(atom.Text) != nil {
						continue
					}
					term := mod.Terminal(atom.Text)
					if term == nil {
						continue
					}
					g.Terminals = append(g.Terminals, term)
					if err := walk(term.RHS); err != nil {
						return err
					}
				case AtomKindRuleRef, AtomKindTemplate:
					if g.Rule(atom.Text) != nil {
						continue
					}
					rule := mod.Rule(atom.Text)
					if rule == nil {
						continue
					}
					g.Rules = append(g.Rules, rule)
					if err := walk(rule.RHS); err != nil {
						return err
					}
				}
			}
		}
		return nil
	}
	return walk(exps)
}

func applyOverride(g *Grammar, stmt *StatementNode, sourceName string) error {
	switch {
	case stmt.OverrideRule != nil:
		for i, rule := range g.Rules {
			if rule.Name == stmt.OverrideRule.Name {
				g.Rules[i] = stmt.OverrideRule
				return nil
			}
		}
		return &verr.SourceError{
			Cause:      loadErrOverrideUnknown,
			Detail:     stmt.OverrideRule.Name,
			SourceName: sourceName,
			Row:        stmt.Pos.Row,
			Col:        stmt.Pos.Col,
		}
	case stmt.OverrideTerminal != nil:
		for i, term := range g.Terminals {
			if term.Name == stmt.OverrideTerminal.Name {
				g.Terminals[i] = stmt.OverrideTerminal
				return nil
			}
		}
		return &verr.SourceError{
			Cause:      loadErrOverrideUnknown,
			Detail:     stmt.OverrideTerminal.Name,
			SourceName: sourceName,
			Row:        stmt.Pos.Row,
			Col:        stmt.Pos.Col,
		}
	}
	return fmt.Errorf("%%override without a definition")
}

func applyExtend(g *Grammar, stmt *StatementNode, sourceName string) error {
	switch {
	case stmt.OverrideRule != nil:
		if rule := g.Rule(stmt.OverrideRule.Name); rule != nil {
			rule.RHS.Alts = append(rule.RHS.Alts, stmt.OverrideRule.RHS.Alts...)
			return nil
		}
		return &verr.SourceError{
			Cause:      loadErrExtendUnknown,
			Detail:     stmt.OverrideRule.Name,
			SourceName: sourceName,
			Row:        stmt.Pos.Row,
			Col:        stmt.Pos.Col,
		}
	case stmt.OverrideTerminal != nil:
		if term := g.Terminal(stmt.OverrideTerminal.Name); term != nil {
			term.RHS.Alts = append(term.RHS.Alts, stmt.OverrideTerminal.RHS.Alts...)
			return nil
		}
		return &verr.SourceError{
			Cause:      loadErrExtendUnknown,
			Detail:     stmt.OverrideTerminal.Name,
			SourceName: sourceName,
			Row:        stmt.Pos.Row,
			Col:        stmt.Pos.Col,
		}
	}
	return fmt.Errorf("%%extend without a definition")
}
