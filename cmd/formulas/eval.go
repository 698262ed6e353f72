package main

import (
	"bufio"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zephyrtronium/formulas"
)

type evalFlags struct {
	given   []string
	defs    []string
	prec    uint
	precise bool
	in      string
	verb    string
	echo    bool
}

func newEvalCmd(a *app) *cobra.Command {
	var flags evalFlags
	cmd := &cobra.Command{
		Use:   "eval [EXPR...]",
		Short: "Evaluate expressions",
		Long: `Evaluate each expression and print its value.

Expressions come from the arguments, then from --in. With neither, they are
read from standard input, one per line. Blank lines and lines starting with #
are skipped. Lines which look like function definitions, e.g. "f(x) = x^2",
define functions for the lines after them.

Examples:
  formulas eval '2x^2 + 1' --given x=3
  formulas eval --def 'f(x) = x^2 + 1' 'f(3)'
  formulas eval -p 256 --fmt %.60f pi`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(cmd, a, &flags, args)
		},
	}
	f := cmd.Flags()
	f.StringArrayVar(&flags.given, "given", nil, "name=value variable definition (any number of times)")
	f.StringArrayVar(&flags.defs, "def", nil, `function definition like "f(x) = x^2" (any number of times)`)
	f.UintVarP(&flags.prec, "prec", "p", 0, "evaluate to this many bits of precision instead of float64")
	f.BoolVar(&flags.precise, "precise", false, "evaluate at the configured precision instead of float64")
	f.StringVar(&flags.in, "in", "", `file of expressions, one per line ("-" for stdin)`)
	f.StringVar(&flags.verb, "fmt", "%g", "result formatting verb")
	f.BoolVar(&flags.echo, "echo", false, "print parse trees")
	return cmd
}

func runEval(cmd *cobra.Command, a *app, flags *evalFlags, args []string) error {
	out, errs := cmd.OutOrStdout(), cmd.ErrOrStderr()
	prec := flags.prec
	if prec == 0 && flags.precise {
		prec = a.cfg.Eval.Precision
	}
	for _, d := range flags.defs {
		if _, err := a.define(d); err != nil {
			return err
		}
	}
	vars, bigvars, err := givens(a, flags.given, prec)
	if err != nil {
		return err
	}

	srcs := args
	if flags.in != "" || len(args) == 0 {
		lines, err := readLines(cmd.InOrStdin(), flags.in)
		if err != nil {
			return err
		}
		srcs = append(srcs, lines...)
	}

	var total, failed int
	for _, src := range srcs {
		src = strings.TrimSpace(src)
		if src == "" || strings.HasPrefix(src, "#") {
			continue
		}
		total++
		if formulas.IsUserFunctionDefinition(src) {
			f, err := a.define(src)
			if err != nil {
				fmt.Fprintln(errs, err)
				failed++
			} else if flags.echo {
				fmt.Fprintln(out, f)
			}
			continue
		}
		e, err := a.parse(src)
		if err != nil {
			fmt.Fprintf(errs, "%s: %v\n", src, err)
			failed++
			continue
		}
		if flags.echo {
			fmt.Fprintln(out, e)
		}
		if prec > 0 {
			r, err := a.evalPrecise(e, bigvars, prec)
			if err != nil {
				fmt.Fprintf(errs, "%s: %v\n", src, err)
				failed++
				continue
			}
			fmt.Fprintf(out, flags.verb+"\n", r)
			continue
		}
		r, err := a.eval(e, vars)
		if err != nil {
			fmt.Fprintf(errs, "%s: %v\n", src, err)
			failed++
			continue
		}
		fmt.Fprintf(out, flags.verb+"\n", r)
	}
	if err := a.flushMetrics(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d inputs failed", failed, total)
	}
	return nil
}

// givens evaluates name=value definitions. Values are expressions, which may
// use the configured variables and the givens before them.
func givens(a *app, defs []string, prec uint) (formulas.Vars, map[string]*big.Float, error) {
	vars := a.vars(nil)
	bigvars := make(map[string]*big.Float, len(vars)+len(defs))
	if prec > 0 {
		for k, v := range vars {
			bigvars[k] = new(big.Float).SetPrec(prec).SetFloat64(v)
		}
	}
	for _, d := range defs {
		name, val, ok := strings.Cut(d, "=")
		if !ok {
			return nil, nil, fmt.Errorf(`variable definitions must be "name=value", not %q`, d)
		}
		name = strings.ToLower(strings.TrimSpace(name))
		e, err := a.parse(val)
		if err != nil {
			return nil, nil, fmt.Errorf("setting %s: %w", name, err)
		}
		if prec > 0 {
			r, err := a.evalPrecise(e, bigvars, prec)
			if err != nil {
				return nil, nil, fmt.Errorf("setting %s: %w", name, err)
			}
			bigvars[name] = r
			vars[name], _ = r.Float64()
			continue
		}
		r, err := a.eval(e, vars)
		if err != nil {
			return nil, nil, fmt.Errorf("setting %s: %w", name, err)
		}
		vars[name] = r
	}
	return vars, bigvars, nil
}

// readLines reads lines from the named file, or from stdin if name is empty
// or "-".
func readLines(stdin io.Reader, name string) ([]string, error) {
	r := stdin
	if name != "" && name != "-" {
		f, err := os.Open(name)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines, sc.Err()
}
