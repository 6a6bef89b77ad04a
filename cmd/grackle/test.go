package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/grackle-lang/grackle/tester"
)

var testFlags = struct {
	parser *string
	start  *string
}{}

func init() {
	cmd := &cobra.Command{
		Use:     "test <grammar file path> <test file or directory>",
		Short:   "Run grammar test cases",
		Example: `  grackle test grammar.grk grammar_tests/`,
		Args:    cobra.ExactArgs(2),
		RunE:    runTest,
	}
	testFlags.parser = cmd.Flags().String("parser", "earley", "parser engine: earley or lalr")
	testFlags.start = cmd.Flags().String("start", "start", "start rule")
	rootCmd.AddCommand(cmd)
}

func runTest(cmd *cobra.Command, args []string) error {
	p, err := buildParser(args[0], *testFlags.parser, "", *testFlags.start, "resolve", false)
	if err != nil {
		return err
	}

	t := &tester.Tester{
		Parser: p,
		Cases:  tester.ListTestCases(args[1]),
	}
	failed := false
	for _, r := range t.Run() {
		fmt.Fprintln(os.Stdout, r)
		if r.Error != nil || len(r.Diffs) > 0 {
			failed = true
		}
	}
	if failed {
		return fmt.Errorf("test failed")
	}
	return nil
}
