package formulas_test

import (
	"context"
	"errors"
	"math"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/zephyrtronium/formulas"
)

// recorder is an Observer that remembers its reports.
type recorder struct {
	mu      sync.Mutex
	kinds   []string
	samples []int
	failed  []int
}

func (r *recorder) ObserveSweep(kind string, samples, failed int, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, kind)
	r.samples = append(r.samples, samples)
	r.failed = append(r.failed, failed)
}

func mustParse(t testing.TB, src string, opts ...formulas.ParseOption) *formulas.Expr {
	t.Helper()
	a, err := formulas.Parse(src, opts...)
	if err != nil {
		t.Fatalf("%q failed to parse: %v", src, err)
	}
	return a
}

func sameAll(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !same(a[i], b[i]) {
			return false
		}
	}
	return true
}

func seq(lo, hi float64, n int) []float64 {
	r := make([]float64, n)
	for i := range r {
		r[i] = lo + (hi-lo)*float64(i)/float64(n-1)
	}
	return r
}

func TestBatch(t *testing.T) {
	cases := []struct {
		name string
		src  string
		axis string
		in   []float64
		base formulas.Vars
		out  []float64
	}{
		{"square", "x^2", "x", []float64{0, 1, 2, 3}, nil, []float64{0, 1, 4, 9}},
		{"base", "a x", "x", []float64{1, 2}, formulas.Vars{"a": 3}, []float64{3, 6}},
		{"axis", "2t", "t", []float64{1, 2}, formulas.Vars{"x": 100}, []float64{2, 4}},
		{"override", "x", "x", []float64{1, 2}, formulas.Vars{"x": 100}, []float64{1, 2}},
		{"empty", "x", "x", nil, nil, []float64{}},
		{"undefined", "1/q", "x", []float64{1, 2, 3, 4, 5}, nil, []float64{math.NaN(), math.NaN(), math.NaN(), math.NaN(), math.NaN()}},
		{"partial", "sqrt(x)", "x", []float64{-1, 4, -4, 9}, nil, []float64{math.NaN(), 2, math.NaN(), 3}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			a := mustParse(t, c.src)
			r, err := formulas.Batch(context.Background(), a, c.axis, c.in, c.base)
			if err != nil {
				t.Fatalf("batch failed: %v", err)
			}
			if !sameAll(r, c.out) {
				t.Errorf("wrong results: want %v, got %v", c.out, r)
			}
		})
	}
}

func TestBatchBaseUnchanged(t *testing.T) {
	base := formulas.Vars{"a": 1, "x": 7}
	a := mustParse(t, "a + x")
	if _, err := formulas.Batch(context.Background(), a, "x", seq(0, 1, 3000), base); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(base, formulas.Vars{"a": 1, "x": 7}) {
		t.Errorf("base changed to %v", base)
	}
}

// failing is a Func that fails for negative arguments.
type failing struct{}

func (failing) Call(args []float64) (float64, error) {
	if args[0] < 0 {
		return 0, errors.New("negative")
	}
	return args[0], nil
}

func (failing) CanCall(n int) bool { return n == 1 }

func TestBatchFailuresObserved(t *testing.T) {
	var rec recorder
	ev := formulas.NewEvaluator(formulas.WithObserver(&rec))
	ev.Register("checked", failing{})
	a := mustParse(t, "checked(x)", formulas.ParseFuncs(ev.Funcs()))
	r, err := ev.Batch(context.Background(), a, "x", []float64{-1, 1, -2, 2}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if want := []float64{math.NaN(), 1, math.NaN(), 2}; !sameAll(r, want) {
		t.Errorf("wrong results: want %v, got %v", want, r)
	}
	if !reflect.DeepEqual(rec.kinds, []string{"batch"}) {
		t.Errorf("wrong reports %q", rec.kinds)
	}
	if rec.samples[0] != 4 || rec.failed[0] != 2 {
		t.Errorf("wrong counts: want 4 samples, 2 failed; got %d, %d", rec.samples[0], rec.failed[0])
	}
}

func TestBatchPanicking(t *testing.T) {
	cases := []struct {
		name string
		opts []formulas.EvalOption
	}{
		{"serial", []formulas.EvalOption{formulas.Workers(1)}},
		{"parallel", []formulas.EvalOption{formulas.Workers(4), formulas.Threshold(10), formulas.ChunkSize(3)}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var rec recorder
			ev := formulas.NewEvaluator(append(c.opts, formulas.WithObserver(&rec))...)
			// second panics when called with fewer than two arguments.
			ev.Register("second", formulas.Variadic(0, -1, func(a []float64) float64 { return a[1] }))
			a := mustParse(t, "second(x) + second(x, 2x)", formulas.ParseFuncs(ev.Funcs()))
			xs := seq(1, 20, 20)
			r, err := ev.Batch(context.Background(), a, "x", xs, nil)
			if err != nil {
				t.Fatal(err)
			}
			if len(r) != len(xs) || countNaN(r) != len(xs) {
				t.Errorf("wrong results %v", r)
			}
			if len(rec.failed) != 1 || rec.failed[0] != len(xs) {
				t.Errorf("wrong failure counts %v", rec.failed)
			}

			b := mustParse(t, "second(x, 2x)", formulas.ParseFuncs(ev.Funcs()))
			r, err = ev.Batch(context.Background(), b, "x", xs, nil)
			if err != nil {
				t.Fatal(err)
			}
			for i, x := range xs {
				if r[i] != 2*x {
					t.Errorf("element %d: want %g, got %g", i, 2*x, r[i])
				}
			}
		})
	}
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

func TestSweepFoldsNames(t *testing.T) {
	a := mustParse(t, "A x")
	r, err := formulas.Batch(context.Background(), a, "X", []float64{1, 2}, formulas.Vars{"A": 3})
	if err != nil {
		t.Fatal(err)
	}
	if want := []float64{3, 6}; !sameAll(r, want) {
		t.Errorf("wrong results: want %v, got %v", want, r)
	}
	g, err := formulas.Grid(context.Background(), mustParse(t, "x + y + k"), []float64{0, 1}, []float64{0}, formulas.Vars{"K": 10})
	if err != nil {
		t.Fatal(err)
	}
	if !sameAll(g[0], []float64{10, 11}) {
		t.Errorf("wrong grid %v", g)
	}
}

func TestGrid(t *testing.T) {
	cases := []struct {
		name   string
		src    string
		xs, ys []float64
		out    [][]float64
	}{
		{"square", "x+y", []float64{0, 1}, []float64{0, 1}, [][]float64{{0, 1}, {1, 2}}},
		{"wide", "x+y", []float64{0, 1, 2}, []float64{10, 20}, [][]float64{{10, 11, 12}, {20, 21, 22}}},
		{"tall", "10y + x", []float64{1}, []float64{1, 2, 3}, [][]float64{{11}, {21}, {31}}},
		{"implicit", "y = x^2", []float64{-1, 0, 1}, []float64{0, 1}, [][]float64{{-1, 0, -1}, {0, 1, 0}}},
		{"no-xs", "x+y", nil, []float64{1, 2}, [][]float64{{}, {}}},
		{"no-ys", "x+y", []float64{1, 2}, nil, [][]float64{}},
		{"undefined", "x+q", []float64{0, 1}, []float64{0}, [][]float64{{math.NaN(), math.NaN()}}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			a := mustParse(t, c.src)
			r, err := formulas.Grid(context.Background(), a, c.xs, c.ys, nil)
			if err != nil {
				t.Fatalf("grid failed: %v", err)
			}
			if len(r) != len(c.out) {
				t.Fatalf("wrong number of rows: want %v, got %v", c.out, r)
			}
			for j := range r {
				if !sameAll(r[j], c.out[j]) {
					t.Errorf("row %d: want %v, got %v", j, c.out[j], r[j])
				}
			}
		})
	}
}

func TestGridRowsIndependent(t *testing.T) {
	a := mustParse(t, "x+y")
	r, err := formulas.Grid(context.Background(), a, []float64{0, 1}, []float64{0, 1}, nil)
	if err != nil {
		t.Fatal(err)
	}
	r[0] = append(r[0], 99)
	if r[1][0] != 1 {
		t.Errorf("appending to a row changed the next: %v", r)
	}
}

func TestVolume(t *testing.T) {
	xs := []float64{0, 1}
	ys := []float64{0, 1, 2}
	zs := []float64{0, 1, 2, 3}
	a := mustParse(t, "x + 10y + 100z")
	r, err := formulas.Volume(context.Background(), a, xs, ys, zs, nil)
	if err != nil {
		t.Fatal(err)
	}
	nx, ny := len(xs), len(ys)
	if len(r) != nx*ny*len(zs) {
		t.Fatalf("wrong length %d", len(r))
	}
	for k, z := range zs {
		for j, y := range ys {
			for i, x := range xs {
				want := x + 10*y + 100*z
				if got := r[i+j*nx+k*nx*ny]; got != want {
					t.Errorf("(%d, %d, %d): want %g, got %g", i, j, k, want, got)
				}
			}
		}
	}
	r, err = formulas.Volume(context.Background(), a, xs, nil, zs, nil)
	if err != nil || len(r) != 0 {
		t.Errorf("empty axis gave %v, %v", r, err)
	}
}

func TestSweepParallel(t *testing.T) {
	a := mustParse(t, "x*sin(x) + y^2 - 1/x")
	xs := seq(-5, 5, 97)
	ys := seq(-3, 3, 41)
	zs := seq(0, 1, 7)
	serial := formulas.NewEvaluator(formulas.Workers(1))
	par := formulas.NewEvaluator(formulas.Workers(4), formulas.Threshold(10), formulas.ChunkSize(7))
	ctx := context.Background()

	want, err := serial.Batch(ctx, a, "x", xs, formulas.Vars{"y": 2})
	if err != nil {
		t.Fatal(err)
	}
	got, err := par.Batch(ctx, a, "x", xs, formulas.Vars{"y": 2})
	if err != nil {
		t.Fatal(err)
	}
	if !sameAll(want, got) {
		t.Errorf("parallel batch differs:\n\twant %v\n\tgot  %v", want, got)
	}

	wg, err := serial.Grid(ctx, a, xs, ys, nil)
	if err != nil {
		t.Fatal(err)
	}
	gg, err := par.Grid(ctx, a, xs, ys, nil)
	if err != nil {
		t.Fatal(err)
	}
	for j := range wg {
		if !sameAll(wg[j], gg[j]) {
			t.Errorf("parallel grid row %d differs:\n\twant %v\n\tgot  %v", j, wg[j], gg[j])
		}
	}

	wv, err := serial.Volume(ctx, a, xs, ys, zs, nil)
	if err != nil {
		t.Fatal(err)
	}
	gv, err := par.Volume(ctx, a, xs, ys, zs, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !sameAll(wv, gv) {
		t.Error("parallel volume differs")
	}
}

func TestSweepCanceled(t *testing.T) {
	a := mustParse(t, "x")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r, err := formulas.Batch(ctx, a, "x", seq(0, 1, 10), nil)
	if r != nil || !errors.Is(err, context.Canceled) {
		t.Errorf("canceled batch gave %v, %v", r, err)
	}
	g, err := formulas.Grid(ctx, a, seq(0, 1, 10), seq(0, 1, 10), nil)
	if g != nil || !errors.Is(err, context.Canceled) {
		t.Errorf("canceled grid gave %v, %v", g, err)
	}
}

// canceler cancels a context on its first call with an argument of at least
// at.
type canceler struct {
	at     float64
	cancel context.CancelFunc
}

func (c canceler) Call(args []float64) (float64, error) {
	if args[0] >= c.at {
		c.cancel()
	}
	return args[0], nil
}

func (canceler) CanCall(n int) bool { return n == 1 }

func TestSweepCanceledMidway(t *testing.T) {
	cases := []struct {
		name string
		opts []formulas.EvalOption
	}{
		{"serial", []formulas.EvalOption{formulas.Workers(1), formulas.ChunkSize(10)}},
		{"parallel", []formulas.EvalOption{formulas.Workers(4), formulas.Threshold(10), formulas.ChunkSize(10)}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var rec recorder
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			ev := formulas.NewEvaluator(append(c.opts, formulas.WithObserver(&rec))...)
			ev.Register("stop", canceler{at: 500, cancel: cancel})
			a := mustParse(t, "stop(x)", formulas.ParseFuncs(ev.Funcs()))
			xs := make([]float64, 2000)
			for i := range xs {
				xs[i] = float64(i)
			}
			r, err := ev.Batch(ctx, a, "x", xs, nil)
			if r != nil {
				t.Errorf("canceled batch gave %d results", len(r))
			}
			if !errors.Is(err, context.Canceled) {
				t.Errorf("canceled batch gave error %v", err)
			}
			if len(rec.kinds) != 0 {
				t.Errorf("canceled sweep was observed: %q", rec.kinds)
			}
		})
	}
}

func BenchmarkGrid(b *testing.B) {
	a := mustParse(b, "sin(x)cos(y) - x^2/10")
	xs := seq(-10, 10, 256)
	ys := seq(-10, 10, 256)
	cases := []struct {
		name string
		ev   *formulas.Evaluator
	}{
		{"serial", formulas.NewEvaluator(formulas.Workers(1))},
		{"parallel", formulas.NewEvaluator()},
	}
	for _, c := range cases {
		b.Run(c.name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				c.ev.Grid(context.Background(), a, xs, ys, nil)
			}
		})
	}
}
