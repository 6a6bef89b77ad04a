package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	grackle "github.com/grackle-lang/grackle"
	"github.com/grackle-lang/grackle/tree"
)

var parseFlags = struct {
	source    *string
	parser    *string
	lexer     *string
	start     *string
	ambiguity *string
	debug     *bool
}{}

func init() {
	cmd := &cobra.Command{
		Use:     "parse <grammar file path>",
		Short:   "Parse a text stream and print the tree",
		Example: `  cat src | grackle parse grammar.grk`,
		Args:    cobra.ExactArgs(1),
		RunE:    runParse,
	}
	parseFlags.source = cmd.Flags().StringP("source", "s", "", "source file path (default stdin)")
	parseFlags.parser = cmd.Flags().String("parser", "earley", "parser engine: earley or lalr")
	parseFlags.lexer = cmd.Flags().String("lexer", "", "lexer: basic, contextual, dynamic, or dynamic_complete")
	parseFlags.start = cmd.Flags().String("start", "start", "start rule")
	parseFlags.ambiguity = cmd.Flags().String("ambiguity", "resolve", "ambiguity handling: resolve or explicit")
	parseFlags.debug = cmd.Flags().Bool("debug", false, "emit diagnostics to stderr")
	rootCmd.AddCommand(cmd)
}

func runParse(cmd *cobra.Command, args []string) error {
	p, err := buildParser(args[0], *parseFlags.parser, *parseFlags.lexer, *parseFlags.start, *parseFlags.ambiguity, *parseFlags.debug)
	if err != nil {
		return err
	}

	src := os.Stdin
	if *parseFlags.source != "" {
		f, err := os.Open(*parseFlags.source)
		if err != nil {
			return fmt.Errorf("cannot open the source file %s: %w", *parseFlags.source, err)
		}
		defer f.Close()
		src = f
	}
	text, err := io.ReadAll(src)
	if err != nil {
		return err
	}

	t, err := p.Parse(string(text))
	if err != nil {
		return err
	}
	tree.PrintTree(os.Stdout, t)
	return nil
}

func buildParser(grammarPath, parserName, lexerName, start, ambiguity string, debug bool) (*grackle.Parser, error) {
	b, err := os.ReadFile(grammarPath)
	if err != nil {
		return nil, fmt.Errorf("cannot read the grammar file %s: %w", grammarPath, err)
	}

	opts := []grackle.Option{
		grackle.WithParser(parserName),
		grackle.WithAmbiguity(ambiguity),
		grackle.Start(start),
		grackle.SourceName(grammarPath),
	}
	if lexerName != "" {
		opts = append(opts, grackle.WithLexer(lexerName))
	}
	if debug {
		opts = append(opts, grackle.Debug())
	}
	return grackle.New(string(b), opts...)
}
