// Package tester runs grammar test cases: files pairing an input with
// the tree the grammar is expected to produce for it.
package tester

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	grackle "github.com/grackle-lang/grackle"
)

// TestCase is one parsed test-case file. The file format is three
// sections separated by lines containing only `---`: a description, the
// source text, and the expected tree pattern.
type TestCase struct {
	Description string
	Source      string
	Tree        *ExpectedTree
}

func ParseTestCase(content string) (*TestCase, error) {
	parts := splitSections(content)
	if len(parts) != 3 {
		return nil, fmt.Errorf("a test case needs 3 sections separated by '---' lines; got %v", len(parts))
	}
	expected, err := ParseTree(parts[2])
	if err != nil {
		return nil, err
	}
	return &TestCase{
		Description: strings.TrimSpace(parts[0]),
		Source:      parts[1],
		Tree:        expected,
	}, nil
}

func splitSections(content string) []string {
	lines := strings.Split(content, "\n")
	var parts []string
	var cur []string
	for _, line := range lines {
		if strings.TrimRight(line, "\r") == "---" {
			parts = append(parts, strings.Join(cur, "\n"))
			cur = nil
			continue
		}
		cur = append(cur, line)
	}
	parts = append(parts, strings.Join(cur, "\n"))
	return parts
}

// The source section keeps its text verbatim except for one leading and
// one trailing newline, which belong to the separators.
func trimSourceSection(src string) string {
	src = strings.TrimPrefix(src, "\n")
	return strings.TrimSuffix(src, "\n")
}

type TestCaseWithMetadata struct {
	TestCase *TestCase
	FilePath string
	Error    error
}

// ListTestCases gathers the test cases under testPath, which may be one
// file or a directory tree of them.
func ListTestCases(testPath string) []*TestCaseWithMetadata {
	fi, err := os.Stat(testPath)
	if err != nil {
		return []*TestCaseWithMetadata{
			{
				FilePath: testPath,
				Error:    err,
			},
		}
	}
	if !fi.IsDir() {
		b, err := os.ReadFile(testPath)
		if err != nil {
			return []*TestCaseWithMetadata{
				{
					FilePath: testPath,
					Error:    err,
				},
			}
		}
		c, err := ParseTestCase(string(b))
		return []*TestCaseWithMetadata{
			{
				TestCase: c,
				FilePath: testPath,
				Error:    err,
			},
		}
	}

	es, err := os.ReadDir(testPath)
	if err != nil {
		return []*TestCaseWithMetadata{
			{
				FilePath: testPath,
				Error:    err,
			},
		}
	}
	var cases []*TestCaseWithMetadata
	for _, e := range es {
		cases = append(cases, ListTestCases(filepath.Join(testPath, e.Name()))...)
	}
	return cases
}

type TestResult struct {
	TestCasePath string
	Error        error
	Diffs        []*TreeDiff
}

func (r *TestResult) String() string {
	if r.Error == nil && len(r.Diffs) == 0 {
		return fmt.Sprintf("Passed %v", r.TestCasePath)
	}
	const indent = "    "
	var b strings.Builder
	fmt.Fprintf(&b, "Failed %v:", r.TestCasePath)
	if r.Error != nil {
		fmt.Fprintf(&b, "\n%v%v", indent, r.Error)
	}
	for _, diff := range r.Diffs {
		fmt.Fprintf(&b, "\n%v%v", indent, diff.Message)
		fmt.Fprintf(&b, "\n%v%vexpected path: %v", indent, indent, diff.ExpectedPath)
		fmt.Fprintf(&b, "\n%v%vactual path:   %v", indent, indent, diff.ActualPath)
	}
	return b.String()
}

// Tester runs test cases against one compiled parser.
type Tester struct {
	Parser *grackle.Parser
	Cases  []*TestCaseWithMetadata
}

func (t *Tester) Run() []*TestResult {
	var rs []*TestResult
	for _, c := range t.Cases {
		rs = append(rs, t.runTest(c))
	}
	return rs
}

func (t *Tester) runTest(c *TestCaseWithMetadata) *TestResult {
	if c.Error != nil {
		return &TestResult{
			TestCasePath: c.FilePath,
			Error:        c.Error,
		}
	}

	actual, err := t.Parser.Parse(trimSourceSection(c.TestCase.Source))
	if err != nil {
		return &TestResult{
			TestCasePath: c.FilePath,
			Error:        err,
		}
	}

	return &TestResult{
		TestCasePath: c.FilePath,
		Diffs:        DiffTree(c.TestCase.Tree, actual),
	}
}
