package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zephyrtronium/formulas"
)

func newCheckCmd(a *app) *cobra.Command {
	var params bool
	cmd := &cobra.Command{
		Use:   "check EXPR...",
		Short: "Check expressions for syntax errors",
		Long: `Parse each expression without evaluating it. Valid expressions are printed
fully parenthesized. The first invalid expression is printed with a marker
under the error position, and check exits with an error.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, src := range args {
				e, err := a.parse(src)
				if err != nil {
					showError(cmd.ErrOrStderr(), src, err)
					return fmt.Errorf("invalid expression %q", src)
				}
				fmt.Fprintln(out, e)
				if params {
					fmt.Fprintf(out, "\tparams: %s\n", strings.Join(e.Params(), " "))
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&params, "params", false, "list the variables other than x, y, and z")
	return cmd
}

// showError prints src with a marker under the error position, if err has
// one, followed by the error.
func showError(w io.Writer, src string, err error) {
	var ie formulas.InputError
	if errors.As(err, &ie) {
		fmt.Fprintln(w, src)
		fmt.Fprintln(w, caret(src, ie.Pos()))
	}
	fmt.Fprintln(w, err)
}

// caret returns a line with ^ under the 1-based rune column col of src.
func caret(src string, col int) string {
	var b strings.Builder
	i := 1
	for _, r := range src {
		if i >= col {
			break
		}
		if r == '\t' {
			b.WriteByte('\t')
		} else {
			b.WriteByte(' ')
		}
		i++
	}
	for ; i < col; i++ {
		b.WriteByte(' ')
	}
	b.WriteByte('^')
	return b.String()
}
