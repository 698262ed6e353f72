package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/zephyrtronium/formulas"
)

// maxSamples bounds the size of a sweep.
const maxSamples = 1 << 24

type sweepFlags struct {
	given  []string
	defs   []string
	format string
	out    string
	axis   string
	ranges [3]string
}

func newSweepCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Evaluate an expression over ranges of values",
		Long: `Evaluate an expression at every point of a range, grid, or volume.

Ranges are written lo:hi:n for n evenly spaced values from lo to hi inclusive.
lo and hi may be expressions, e.g. -pi:pi:101. Points where evaluation fails
are NaN in CSV output and null in JSON output.`,
	}
	cmd.AddCommand(
		newSweepKindCmd(a, "batch", 1),
		newSweepKindCmd(a, "grid", 2),
		newSweepKindCmd(a, "volume", 3),
	)
	return cmd
}

func newSweepKindCmd(a *app, kind string, dims int) *cobra.Command {
	var flags sweepFlags
	var short, example string
	switch kind {
	case "batch":
		short = "Evaluate over a range of one variable"
		example = "  formulas sweep batch 'a*sin(t)' --axis t --range 0:tau:9 --given a=2"
	case "grid":
		short = "Evaluate over a grid of x and y"
		example = "  formulas sweep grid 'x^2 + y^2 = 1' --x -1:1:5 --y -1:1:5 --format json"
	case "volume":
		short = "Evaluate over a volume of x, y, and z"
		example = "  formulas sweep volume 'x + y + z' --x 0:1:3 --y 0:1:3 --z 0:1:3"
	}
	cmd := &cobra.Command{
		Use:     kind + " EXPR",
		Short:   short,
		Example: example,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd, a, kind, dims, &flags, args[0])
		},
	}
	f := cmd.Flags()
	f.StringArrayVar(&flags.given, "given", nil, "name=value variable definition (any number of times)")
	f.StringArrayVar(&flags.defs, "def", nil, `function definition like "f(x) = x^2" (any number of times)`)
	f.StringVar(&flags.format, "format", "csv", "output format: csv, json")
	f.StringVarP(&flags.out, "out", "o", "", "output file (default stdout)")
	if dims == 1 {
		f.StringVar(&flags.axis, "axis", "x", "variable to sweep")
		f.StringVar(&flags.ranges[0], "range", "", "values of the axis as lo:hi:n")
		cmd.MarkFlagRequired("range")
	} else {
		for i, name := range []string{"x", "y", "z"}[:dims] {
			f.StringVar(&flags.ranges[i], name, "", "values of "+name+" as lo:hi:n")
			cmd.MarkFlagRequired(name)
		}
	}
	return cmd
}

// sweepResult is the output of a sweep.
type sweepResult struct {
	id     uuid.UUID
	src    string
	kind   string
	names  []string
	axes   [][]float64
	values []float64
}

func runSweep(cmd *cobra.Command, a *app, kind string, dims int, flags *sweepFlags, src string) error {
	switch flags.format {
	case "csv", "json":
	default:
		return fmt.Errorf("unknown format %q", flags.format)
	}
	for _, d := range flags.defs {
		if _, err := a.define(d); err != nil {
			return err
		}
	}
	vars, _, err := givens(a, flags.given, 0)
	if err != nil {
		return err
	}
	names := []string{"x", "y", "z"}[:dims]
	flagNames := names
	if dims == 1 {
		names = []string{strings.ToLower(flags.axis)}
		flagNames = []string{"range"}
	}
	axes := make([][]float64, dims)
	total := 1
	for i := range axes {
		axes[i], err = parseRange(flags.ranges[i])
		if err != nil {
			return fmt.Errorf("--%s: %w", flagNames[i], err)
		}
		total *= len(axes[i])
		if total > maxSamples {
			return fmt.Errorf("sweep of more than %d samples", maxSamples)
		}
	}

	e, err := a.parse(src)
	if err != nil {
		showError(cmd.ErrOrStderr(), src, err)
		return fmt.Errorf("invalid expression %q", src)
	}
	var unbound []string
	for _, p := range e.Params(names...) {
		if _, ok := vars[p]; !ok {
			unbound = append(unbound, p)
		}
	}
	id := uuid.New()
	if len(unbound) > 0 {
		a.log.Warn("unbound variables make every sample NaN", "run_id", id, "vars", unbound)
	}

	start := time.Now()
	r := sweepResult{id: id, src: src, kind: kind, names: names, axes: axes}
	ctx := cmd.Context()
	switch kind {
	case "batch":
		r.values, err = a.ev.Batch(ctx, e, names[0], axes[0], vars)
	case "grid":
		var rows [][]float64
		rows, err = a.ev.Grid(ctx, e, axes[0], axes[1], vars)
		r.values = make([]float64, 0, total)
		for _, row := range rows {
			r.values = append(r.values, row...)
		}
	case "volume":
		r.values, err = a.ev.Volume(ctx, e, axes[0], axes[1], axes[2], vars)
	}
	if err != nil {
		return err
	}
	a.log.Info("sweep finished",
		"run_id", id,
		"kind", kind,
		"samples", len(r.values),
		"nan", countNaN(r.values),
		"elapsed", time.Since(start),
	)

	w := cmd.OutOrStdout()
	if flags.out != "" {
		f, err := os.Create(flags.out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	if flags.format == "json" {
		err = writeJSON(w, &r)
	} else {
		err = writeCSV(w, &r)
	}
	if err != nil {
		return err
	}
	return a.flushMetrics()
}

// parseRange parses lo:hi:n.
func parseRange(s string) ([]float64, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return nil, fmt.Errorf("range %q is not lo:hi:n", s)
	}
	lo, err := formulas.EvalString(parts[0], nil)
	if err != nil {
		return nil, fmt.Errorf("range start %q: %w", parts[0], err)
	}
	hi, err := formulas.EvalString(parts[1], nil)
	if err != nil {
		return nil, fmt.Errorf("range end %q: %w", parts[1], err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err != nil || n < 1 {
		return nil, fmt.Errorf("range count %q must be a positive integer", parts[2])
	}
	if n > maxSamples {
		return nil, fmt.Errorf("range count %d is more than %d", n, maxSamples)
	}
	r := make([]float64, n)
	if n == 1 {
		r[0] = lo
		return r, nil
	}
	for i := range r {
		r[i] = lo + (hi-lo)*float64(i)/float64(n-1)
	}
	r[n-1] = hi
	return r, nil
}

func countNaN(v []float64) int {
	k := 0
	for _, x := range v {
		if math.IsNaN(x) {
			k++
		}
	}
	return k
}

// point returns the coordinates of sample i. Samples are ordered with the
// first axis varying fastest.
func (r *sweepResult) point(i int) []float64 {
	p := make([]float64, len(r.axes))
	for d, ax := range r.axes {
		p[d] = ax[i%len(ax)]
		i /= len(ax)
	}
	return p
}

func writeCSV(w io.Writer, r *sweepResult) error {
	cw := csv.NewWriter(w)
	header := append(append([]string(nil), r.names...), "value")
	if err := cw.Write(header); err != nil {
		return err
	}
	rec := make([]string, len(r.names)+1)
	for i, v := range r.values {
		for d, x := range r.point(i) {
			rec[d] = strconv.FormatFloat(x, 'g', -1, 64)
		}
		rec[len(rec)-1] = strconv.FormatFloat(v, 'g', -1, 64)
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// jsonFloat is a float64 which encodes NaN and infinities as null.
type jsonFloat float64

func (f jsonFloat) MarshalJSON() ([]byte, error) {
	x := float64(f)
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, x, 'g', -1, 64), nil
}

func jsonFloats(v []float64) []jsonFloat {
	r := make([]jsonFloat, len(v))
	for i, x := range v {
		r[i] = jsonFloat(x)
	}
	return r
}

type sweepReport struct {
	RunID  string                 `json:"run_id"`
	Expr   string                 `json:"expr"`
	Kind   string                 `json:"kind"`
	Axes   map[string][]jsonFloat `json:"axes"`
	Values []jsonFloat            `json:"values"`
	NaN    int                    `json:"nan"`
}

func writeJSON(w io.Writer, r *sweepResult) error {
	rep := sweepReport{
		RunID:  r.id.String(),
		Expr:   r.src,
		Kind:   r.kind,
		Axes:   make(map[string][]jsonFloat, len(r.axes)),
		Values: jsonFloats(r.values),
		NaN:    countNaN(r.values),
	}
	for i, name := range r.names {
		rep.Axes[name] = jsonFloats(r.axes[i])
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(&rep)
}
