// Command formulas parses and evaluates mathematical formulas.
//
// Usage:
//
//	# Evaluate expressions
//	formulas eval '2x^2 + 1' --given x=3
//
//	# Evaluate to 200 bits of precision
//	formulas eval -p 200 'sqrt(2)'
//
//	# Check syntax without evaluating
//	formulas check 'y = sin(x' 'f(x) + 1'
//
//	# Sample an implicit curve on a grid
//	formulas sweep grid 'x^2 + y^2 = 1' --x -1:1:21 --y -1:1:21 --format json
//
//	# Interactive session
//	formulas repl
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
