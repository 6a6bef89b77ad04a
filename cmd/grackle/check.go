package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var checkFlags = struct {
	start *string
}{}

func init() {
	cmd := &cobra.Command{
		Use:     "check <grammar file path>",
		Short:   "Compile a grammar and report conflicts without parsing",
		Example: `  grackle check grammar.grk`,
		Args:    cobra.ExactArgs(1),
		RunE:    runCheck,
	}
	checkFlags.start = cmd.Flags().String("start", "start", "start rule")
	rootCmd.AddCommand(cmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	p, err := buildParser(args[0], "lalr", "", *checkFlags.start, "resolve", false)
	if err != nil {
		return err
	}

	tab := p.Grammar().Table(*checkFlags.start)
	fmt.Fprintf(os.Stdout, "%v: ok: %v states, %v productions, %v terminals\n",
		args[0], tab.StateCount(), p.Grammar().ProductionCount()-1, len(p.Grammar().SymbolTable().TerminalSymbols()))
	return nil
}
