package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "grackle",
	Short: "Build parsers from EBNF grammars and run them over text",
	Long: `grackle compiles a grammar written in an extended BNF dialect and
drives it over input text:
- Parses a text stream and prints the resulting tree.
- Checks a grammar for conflicts without parsing anything.
- Runs grammar test cases.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

func Execute() error {
	return rootCmd.Execute()
}
