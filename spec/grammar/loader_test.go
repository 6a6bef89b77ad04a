package grammar

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

type mapLoader map[string]string

func (m mapLoader) Load(path []string) (string, string, error) {
	key := strings.Join(path, ".")
	src, ok := m[key]
	if !ok {
		// Fall through to the builtin modules so user loaders can layer
		// on top of `common`.
		return NewBuiltinLoader().Load(path)
	}
	return src, key, nil
}

func TestLoad_ImportSingleName(t *testing.T) {
	src := `start: NUMBER
%import common.NUMBER
`
	g, err := Load(src, "test", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.Terminal("NUMBER") == nil {
		t.Fatalf("NUMBER must be imported")
	}
	// NUMBER references FLOAT and INT; they must come along.
	if g.Terminal("FLOAT") == nil || g.Terminal("INT") == nil {
		t.Fatalf("transitively referenced terminals must be imported")
	}
	if g.Terminal("WS") != nil {
		t.Fatalf("unreferenced terminals must not be imported")
	}
}

func TestLoad_ImportRename(t *testing.T) {
	src := `start: NUM
%import common.NUMBER -> NUM
`
	g, err := Load(src, "test", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.Terminal("NUM") == nil {
		t.Fatalf("the renamed terminal must exist")
	}
	if g.Terminal("NUMBER") != nil {
		t.Fatalf("the original name must not leak in")
	}
}

func TestLoad_ImportList(t *testing.T) {
	src := `start: WORD INT
%import common (WORD, INT)
`
	g, err := Load(src, "test", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.Terminal("WORD") == nil || g.Terminal("INT") == nil {
		t.Fatalf("both names must be imported")
	}
}

func TestLoad_ImportFromUserLoader(t *testing.T) {
	loader := mapLoader{
		"mylib": `value: NUMBER
%import common.NUMBER
`,
	}
	src := `start: value
%import mylib.value
`
	g, err := Load(src, "test", loader)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.Rule("value") == nil {
		t.Fatalf("the rule must be imported")
	}
	if g.Terminal("NUMBER") == nil {
		t.Fatalf("terminals referenced by an imported rule must come along")
	}
}

func TestLoad_CyclicImport(t *testing.T) {
	loader := mapLoader{
		"a": "x: \"x\"\n%import b.y\n",
		"b": "y: \"y\"\n%import a.x\n",
	}
	src := `start: x
%import a.x
`
	_, err := Load(src, "test", loader)
	if err == nil {
		t.Fatalf("a cyclic import must be an error")
	}
	if !strings.Contains(err.Error(), "cyclic import") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoad_UnknownModule(t *testing.T) {
	src := `start: NUMBER
%import nowhere.NUMBER
`
	_, err := Load(src, "test", nil)
	if err == nil {
		t.Fatalf("an unknown module must be an error")
	}
	if !errors.Is(err, loadErrUnknownModule) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoad_UnknownName(t *testing.T) {
	src := `start: NO_SUCH
%import common.NO_SUCH
`
	_, err := Load(src, "test", nil)
	if err == nil {
		t.Fatalf("an unknown name must be an error")
	}
	if !errors.Is(err, loadErrUnknownName) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoad_Override(t *testing.T) {
	src := `start: WORD
WORD: /[a-z]+/
%override WORD: /[A-Z]+/
`
	g, err := Load(src, "test", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pat := g.Terminal("WORD").RHS.Alts[0].Elems[0].Atom.Text
	if pat != "[A-Z]+" {
		t.Fatalf("the override must replace the definition; got %v", pat)
	}
}

func TestLoad_OverrideUnknownTarget(t *testing.T) {
	src := `start: "x"
%override WORD: /[A-Z]+/
`
	_, err := Load(src, "test", nil)
	if !errors.Is(err, loadErrOverrideUnknown) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoad_Extend(t *testing.T) {
	src := `start: "a"
%extend start: "b"
`
	g, err := Load(src, "test", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(g.Rule("start").RHS.Alts) != 2 {
		t.Fatalf("the extension must add an alternative")
	}
}

func TestLoad_DuplicateDefinition(t *testing.T) {
	src := `start: "a"
start: "b"
`
	_, err := Load(src, "test", nil)
	if !errors.Is(err, loadErrDuplicateDef) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoad_DeclareAndIgnore(t *testing.T) {
	src := fmt.Sprintf(`start: WORD
WORD: /\w+/
WS: / +/
%s
%s
`, "%declare INDENT DEDENT", "%ignore WS")
	g, err := Load(src, "test", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(g.Declared) != 2 || len(g.Ignore) != 1 {
		t.Fatalf("unexpected declare/ignore: %v, %v", g.Declared, g.Ignore)
	}
}

func TestBuiltinLoader_CommonParses(t *testing.T) {
	src, name, err := NewBuiltinLoader().Load([]string{"common"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "common" {
		t.Fatalf("unexpected module name: %v", name)
	}
	root, err := Parse(src, name)
	if err != nil {
		t.Fatalf("the builtin grammar must parse: %v", err)
	}
	if len(root.Terminals) == 0 {
		t.Fatalf("the builtin grammar must define terminals")
	}
}
