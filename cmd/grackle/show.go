package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var showFlags = struct {
	start *string
}{}

func init() {
	cmd := &cobra.Command{
		Use:     "show <grammar file path>",
		Short:   "Print the LALR automaton: productions, states, actions",
		Example: `  grackle show grammar.grk`,
		Args:    cobra.ExactArgs(1),
		RunE:    runShow,
	}
	showFlags.start = cmd.Flags().String("start", "start", "start rule")
	rootCmd.AddCommand(cmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	p, err := buildParser(args[0], "lalr", "", *showFlags.start, "resolve", false)
	if err != nil {
		return err
	}
	cg := p.Grammar()
	symTab := cg.SymbolTable()
	tab := cg.Table(*showFlags.start)

	fmt.Fprintf(os.Stdout, "# productions\n\n")
	for num := 1; num < cg.ProductionCount(); num++ {
		lhs := cg.ProdLHS(num)
		lhsText, _ := symTab.ToText(lhs)
		fmt.Fprintf(os.Stdout, "%4v  %v:", num, lhsText)
		for _, sym := range cg.ProdRHS(num) {
			text, _ := symTab.ToText(sym)
			fmt.Fprintf(os.Stdout, " %v", text)
		}
		fmt.Fprintf(os.Stdout, "\n")
	}

	fmt.Fprintf(os.Stdout, "\n# states (initial: %v)\n", tab.InitialState.Int())
	for state := 0; state < tab.StateCount(); state++ {
		fmt.Fprintf(os.Stdout, "\nstate %v\n", state)
		for _, term := range tab.ExpectedTerminals(state) {
			act := tab.Action(state, term)
			name := cg.TermAttr(term).Name
			if name == "" {
				name = "<eof>"
			}
			switch {
			case act < 0:
				fmt.Fprintf(os.Stdout, "    shift   %v -> %v\n", name, -act)
			case act > 0:
				fmt.Fprintf(os.Stdout, "    reduce  %v -> production %v\n", name, act)
			}
		}
		for _, sym := range symTab.NonTerminalSymbols() {
			next := tab.GoTo(state, sym.Num().Int())
			if next < 0 {
				continue
			}
			text, _ := symTab.ToText(sym)
			fmt.Fprintf(os.Stdout, "    goto    %v -> %v\n", text, next)
		}
	}
	return nil
}
