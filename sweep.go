package formulas

import (
	"context"
	"math"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Observer receives a report of each completed sweep. Implementations must be
// safe for concurrent use.
type Observer interface {
	// ObserveSweep reports a sweep of the given kind ("batch", "grid", or
	// "volume") which evaluated samples elements, of which failed produced
	// errors and were recorded as NaN.
	ObserveSweep(kind string, samples, failed int, elapsed time.Duration)
}

// Batch evaluates e once for each of values bound to the variable axis, with
// other variables taken from base. Names are case-insensitive. The result has
// one element per value, in order. An element whose evaluation fails or whose
// function panics is NaN; errors are never returned for individual elements.
// The only error is ctx.Err() if ctx ends before the sweep completes, in which
// case the result is nil.
func (ev *Evaluator) Batch(ctx context.Context, e *Expr, axis string, values []float64, base Vars) ([]float64, error) {
	axis = strings.ToLower(axis)
	return ev.sweep(ctx, "batch", e, len(values), base, func(v Vars, i int) {
		v[axis] = values[i]
	})
}

// Grid evaluates e over every pair of xs and ys bound to x and y. The result
// is indexed [y][x]. Element failures and cancellation are as for Batch.
func (ev *Evaluator) Grid(ctx context.Context, e *Expr, xs, ys []float64, base Vars) ([][]float64, error) {
	nx := len(xs)
	r, err := ev.sweep(ctx, "grid", e, nx*len(ys), base, func(v Vars, i int) {
		v["x"] = xs[i%nx]
		v["y"] = ys[i/nx]
	})
	if err != nil {
		return nil, err
	}
	rows := make([][]float64, len(ys))
	for j := range rows {
		rows[j] = r[j*nx : (j+1)*nx : (j+1)*nx]
	}
	return rows, nil
}

// Volume evaluates e over every triple of xs, ys, and zs bound to x, y, and z.
// The element for xs[i], ys[j], zs[k] is at index i + j*nx + k*nx*ny. Element
// failures and cancellation are as for Batch.
func (ev *Evaluator) Volume(ctx context.Context, e *Expr, xs, ys, zs []float64, base Vars) ([]float64, error) {
	nx, ny := len(xs), len(ys)
	n := nx * ny * len(zs)
	return ev.sweep(ctx, "volume", e, n, base, func(v Vars, i int) {
		v["x"] = xs[i%nx]
		v["y"] = ys[i/nx%ny]
		v["z"] = zs[i/(nx*ny)]
	})
}

// sweep evaluates e for n elements. set binds the variables for element i in
// a map owned by the calling goroutine.
func (ev *Evaluator) sweep(ctx context.Context, kind string, e *Expr, n int, base Vars, set func(v Vars, i int)) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	fns := ev.table()
	out := make([]float64, n)
	var failed atomic.Int64
	chunk := func(lo, hi int) {
		v := make(Vars, len(base)+3)
		for k, x := range base {
			v[strings.ToLower(k)] = x
		}
		bad := 0
		for i := lo; i < hi; i++ {
			set(v, i)
			r, ok := sample(e.n, v, fns)
			if !ok {
				bad++
			}
			out[i] = r
		}
		failed.Add(int64(bad))
	}

	size := ev.chunkSize()
	if n < ev.parallelThreshold() || ev.workerCount() <= 1 {
		for lo := 0; lo < n; lo += size {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			chunk(lo, min(lo+size, n))
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(ev.workerCount())
		for lo := 0; lo < n; lo += size {
			if gctx.Err() != nil {
				break
			}
			lo, hi := lo, min(lo+size, n)
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				chunk(lo, hi)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ev != nil && ev.obs != nil {
		ev.obs.ObserveSweep(kind, n, int(failed.Load()), time.Since(start))
	}
	return out, nil
}

// sample evaluates one sweep element. A failed evaluation, including a panic
// in a registered function, gives NaN and false.
func sample(n *node, v Vars, fns funcTable) (r float64, ok bool) {
	defer func() {
		if recover() != nil {
			r, ok = math.NaN(), false
		}
	}()
	r, err := n.eval(v, fns)
	if err != nil {
		return math.NaN(), false
	}
	return r, true
}

func (ev *Evaluator) workerCount() int {
	if ev == nil || ev.workers <= 0 {
		return 1
	}
	return ev.workers
}

func (ev *Evaluator) parallelThreshold() int {
	if ev == nil || ev.threshold <= 0 {
		return defaultThreshold
	}
	return ev.threshold
}

func (ev *Evaluator) chunkSize() int {
	if ev == nil || ev.chunk <= 0 {
		return defaultChunk
	}
	return ev.chunk
}

// Batch is a shortcut for Batch on an evaluator using only the builtin
// functions and the default options.
func Batch(ctx context.Context, e *Expr, axis string, values []float64, base Vars) ([]float64, error) {
	return std.Batch(ctx, e, axis, values, base)
}

// Grid is a shortcut for Grid on an evaluator using only the builtin functions
// and the default options.
func Grid(ctx context.Context, e *Expr, xs, ys []float64, base Vars) ([][]float64, error) {
	return std.Grid(ctx, e, xs, ys, base)
}

// Volume is a shortcut for Volume on an evaluator using only the builtin
// functions and the default options.
func Volume(ctx context.Context, e *Expr, xs, ys, zs []float64, base Vars) ([]float64, error) {
	return std.Volume(ctx, e, xs, ys, zs, base)
}

// std is the evaluator behind the package-level sweeps. Its nil registry
// evaluates against the builtin table.
var std = &Evaluator{
	workers:   runtime.GOMAXPROCS(0),
	threshold: defaultThreshold,
	chunk:     defaultChunk,
}
