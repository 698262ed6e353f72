package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zephyrtronium/formulas"
)

func newFuncsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "funcs",
		Short: "List available functions",
		Long:  "List the builtin functions, then user functions from the configuration and library.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, name := range formulas.Builtins() {
				fmt.Fprintln(out, name)
			}
			for _, name := range a.users.Names() {
				f, ok := a.users.Lookup(name)
				if ok {
					fmt.Fprintln(out, f)
				}
			}
			return nil
		},
	}
}
