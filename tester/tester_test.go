package tester

import (
	"os"
	"path/filepath"
	"testing"

	grackle "github.com/grackle-lang/grackle"
)

func TestParseTestCase(t *testing.T) {
	src := `parses a greeting
---
hello world
---
(start (NAME 'world'))
`
	c, err := ParseTestCase(src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Description != "parses a greeting" {
		t.Fatalf("unexpected description: %v", c.Description)
	}
	if trimSourceSection(c.Source) != "hello world" {
		t.Fatalf("unexpected source: %q", c.Source)
	}
	if c.Tree.Kind != "start" {
		t.Fatalf("unexpected tree kind: %v", c.Tree.Kind)
	}
	child := c.Tree.Children[0]
	if !child.IsToken || child.Kind != "NAME" || child.Lexeme != "world" {
		t.Fatalf("unexpected child: %+v", child)
	}
}

func TestParseTestCase_SectionCount(t *testing.T) {
	_, err := ParseTestCase("only a description\n---\nsource\n")
	if err == nil {
		t.Fatalf("a malformed test case must be an error")
	}
}

func TestParseTree_Errors(t *testing.T) {
	tests := []string{
		"start",
		"(start",
		"(start 'unclosed)",
		"(start (a)) trailing",
	}
	for _, src := range tests {
		if _, err := ParseTree(src); err == nil {
			t.Fatalf("%q must be an error", src)
		}
	}
}

func TestTester_Run(t *testing.T) {
	p, err := grackle.New(`start: "hello" NAME
NAME: /[a-z]+/
%ignore " "
`, grackle.WithParser(grackle.ParserLALR))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	dir := t.TempDir()
	pass := filepath.Join(dir, "pass.txt")
	err = os.WriteFile(pass, []byte(`greets
---
hello world
---
(start (NAME 'world'))
`), 0600)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fail := filepath.Join(dir, "fail.txt")
	err = os.WriteFile(fail, []byte(`greets the wrong name
---
hello world
---
(start (NAME 'mars'))
`), 0600)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tester := &Tester{
		Parser: p,
		Cases:  ListTestCases(dir),
	}
	results := tester.Run()
	if len(results) != 2 {
		t.Fatalf("unexpected result count: %v", len(results))
	}

	byPath := map[string]*TestResult{}
	for _, r := range results {
		byPath[filepath.Base(r.TestCasePath)] = r
	}
	if r := byPath["pass.txt"]; r.Error != nil || len(r.Diffs) != 0 {
		t.Fatalf("the passing case must pass: %v", r)
	}
	if r := byPath["fail.txt"]; len(r.Diffs) == 0 {
		t.Fatalf("the failing case must produce diffs")
	}
}

func TestDiffTree_TokenMatchesAnyType(t *testing.T) {
	p, err := grackle.New(`start: "x" NAME
NAME: /[a-z]+/
%ignore " "
`, grackle.WithParser(grackle.ParserLALR))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	actual, err := p.Parse("x abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected, err := ParseTree("(start 'abc')")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diffs := DiffTree(expected, actual); len(diffs) != 0 {
		t.Fatalf("a bare lexeme must match any token type: %v", diffs[0].Message)
	}
}
