package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/davecgh/go-spew/spew"

	"github.com/ajrichins/souper"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type options struct {
	fixit             bool
	reduce            bool
	reduceAll         bool
	symbolize         bool
	symbolizeNumInsts int
	symbolizeNoDF     bool
	generalizeWidth   bool
	debugLevel        int
	dump              bool
}

func run(args []string) error {
	fs := flag.NewFlagSet("souper-generalize", flag.ExitOnError)
	var opts options
	fs.BoolVar(&opts.fixit, "fixit", false, "given an invalid rule, infer preconditions that make it valid")
	fs.BoolVar(&opts.reduce, "reduce", false, "replace instructions with variables while the rule stays valid")
	fs.BoolVar(&opts.reduceAll, "reduce-all-results", false, "print every reduced rule, not just the smallest")
	fs.BoolVar(&opts.symbolize, "symbolize", false, "replace concrete constants with symbolic ones")
	fs.IntVar(&opts.symbolizeNumInsts, "symbolize-num-insts", 1, "size bound for synthesized expressions")
	fs.BoolVar(&opts.symbolizeNoDF, "symbolize-no-dataflow", false, "do not infer dataflow preconditions while symbolizing")
	fs.BoolVar(&opts.generalizeWidth, "generalize-width", false, "re-express the rule at every bitwidth")
	fs.IntVar(&opts.debugLevel, "debug", 1, "debug output verbosity")
	fs.BoolVar(&opts.dump, "dump", false, "dump the parsed rules and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	souper.DebugLevel = opts.debugLevel

	data, err := readInput(fs.Arg(0))
	if err != nil {
		return err
	}

	ic := souper.NewInstContext()
	inputs, err := souper.ParseReplacements(ic, string(data))
	if err != nil {
		return err
	}

	if opts.dump {
		spew.Fdump(os.Stdout, inputs)
		return nil
	}

	solver := souper.NewZ3Solver()
	for _, input := range inputs {
		if opts.fixit {
			runFixit(solver, input)
		}
		if opts.reduce {
			runReduce(ic, solver, input, opts.reduceAll)
		}
		if opts.symbolize {
			runSymbolize(ic, solver, input, opts)
		}
		if opts.generalizeWidth {
			runGeneralizeWidth(ic, input)
		}
	}
	return nil
}

func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func runFixit(solver souper.Solver, input *souper.ParsedReplacement) {
	results, err := souper.Generalize(solver, input)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return
	}
	for _, r := range results {
		fmt.Println(r.Render())
	}
}

func runReduce(ic *souper.InstContext, solver souper.Solver, input *souper.ParsedReplacement, all bool) {
	results, err := souper.ReduceAndGeneralize(ic, solver, input)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return
	}
	if len(results) == 0 {
		return
	}
	if !all {
		results = results[:1]
	}
	for _, r := range results {
		fmt.Println(r.Render())
	}
}

func runSymbolize(ic *souper.InstContext, solver souper.Solver, input *souper.ParsedReplacement, opts options) {
	results, err := souper.SymbolizeAndGeneralize(ic, solver,
		souper.EnumerativeSynthesis{}, souper.CEGISSynthesis{}, input,
		souper.SymbolizeOptions{
			NumInsts:   opts.symbolizeNumInsts,
			NoDataflow: opts.symbolizeNoDF,
		})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return
	}
	for _, r := range results {
		fmt.Println(r.Render())
	}
}

func runGeneralizeWidth(ic *souper.InstContext, input *souper.ParsedReplacement) {
	results, err := souper.GeneralizeBitWidth(ic, input)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return
	}
	for _, r := range results {
		fmt.Println(r.Render())
	}
}
