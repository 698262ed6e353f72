package formulas

import (
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Func is a function from reals to reals.
type Func interface {
	// Call evaluates the function. Call must check the number of arguments
	// itself and return an *ArityError rather than index past the end of args.
	// A result outside the function's domain should be NaN, not an error.
	Call(args []float64) (float64, error)

	// CanCall returns whether the function can be called with n arguments.
	// The evaluator checks it before each call, so that a bad call reports
	// the function's name.
	CanCall(n int) bool
}

type monadic func(float64) float64

func (f monadic) Call(args []float64) (float64, error) {
	if len(args) != 1 {
		return 0, &ArityError{Len: len(args)}
	}
	return f(args[0]), nil
}

func (monadic) CanCall(n int) bool {
	return n == 1
}

// Monadic wraps a function of one variable into a Func.
func Monadic(f func(float64) float64) Func {
	return monadic(f)
}

type dyadic func(float64, float64) float64

func (f dyadic) Call(args []float64) (float64, error) {
	if len(args) != 2 {
		return 0, &ArityError{Len: len(args)}
	}
	return f(args[0], args[1]), nil
}

func (dyadic) CanCall(n int) bool {
	return n == 2
}

// Dyadic wraps a function of two variables into a Func.
func Dyadic(f func(x, y float64) float64) Func {
	return dyadic(f)
}

type niladic func() float64

func (f niladic) Call(args []float64) (float64, error) {
	if len(args) != 0 {
		return 0, &ArityError{Len: len(args)}
	}
	return f(), nil
}

func (niladic) CanCall(n int) bool {
	return n == 0
}

// Niladic wraps a function of zero variables, generally one which computes a
// constant or reads external state, into a Func.
func Niladic(f func() float64) Func {
	return niladic(f)
}

type variadic struct {
	min, max int
	f        func([]float64) float64
}

func (v variadic) Call(args []float64) (float64, error) {
	if !v.CanCall(len(args)) {
		return 0, &ArityError{Len: len(args)}
	}
	return v.f(args), nil
}

func (v variadic) CanCall(n int) bool {
	return n >= v.min && (v.max < 0 || n <= v.max)
}

// Variadic wraps a function of between min and max arguments into a Func. If
// max is negative, there is no upper limit. f must not retain args.
func Variadic(min, max int, f func(args []float64) float64) Func {
	return variadic{min: min, max: max, f: f}
}

// funcTable is an immutable map of function names to implementations.
type funcTable map[string]Func

// builtin marks an entry of the builtin catalogue. Entries are pointers so
// that a registry can tell whether a name still refers to one.
type builtin struct{ Func }

func markBuiltins(t funcTable) funcTable {
	for k, f := range t {
		t[k] = &builtin{f}
	}
	return t
}

// builtins is the builtin catalogue. It is never modified after
// initialization.
var builtins = markBuiltins(funcTable{
	"sin":   Monadic(math.Sin),
	"cos":   Monadic(math.Cos),
	"tan":   Monadic(math.Tan),
	"asin":  Monadic(math.Asin),
	"acos":  Monadic(math.Acos),
	"atan":  Monadic(math.Atan),
	"atan2": Dyadic(math.Atan2),

	"sinh":  Monadic(math.Sinh),
	"cosh":  Monadic(math.Cosh),
	"tanh":  Monadic(math.Tanh),
	"asinh": Monadic(math.Asinh),
	"acosh": Monadic(math.Acosh),
	"atanh": Monadic(math.Atanh),

	"exp":   Monadic(math.Exp),
	"log":   Monadic(math.Log),
	"ln":    Monadic(math.Log),
	"log10": Monadic(math.Log10),
	"log2":  Monadic(math.Log2),

	"sqrt": Monadic(math.Sqrt),
	"cbrt": Monadic(math.Cbrt),
	"pow":  Dyadic(math.Pow),

	"floor": Monadic(math.Floor),
	"ceil":  Monadic(math.Ceil),
	"round": Monadic(math.Round),
	"frac":  Monadic(func(x float64) float64 { return x - math.Floor(x) }),

	"abs":  Monadic(math.Abs),
	"sign": Monadic(sign),
	"min":  Dyadic(math.Min),
	"max":  Dyadic(math.Max),
	"mod":  Dyadic(math.Mod),
})

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		// 0, -0, or NaN.
		return x
	}
}

// Builtins returns the sorted names of the builtin functions.
func Builtins() []string {
	return builtins.names()
}

func (t funcTable) names() []string {
	r := make([]string, 0, len(t))
	for k := range t {
		r = append(r, k)
	}
	sort.Strings(r)
	return r
}

// Funcs is a function registry. It is safe for concurrent use. Readers work
// on immutable snapshots, so registering a function never affects an
// evaluation that is already in progress.
type Funcs struct {
	// mu serializes writers.
	mu sync.Mutex
	t  atomic.Pointer[funcTable]
}

// NewFuncs creates a registry holding the builtin functions.
func NewFuncs() *Funcs {
	var f Funcs
	t := make(funcTable, len(builtins))
	for k, v := range builtins {
		t[k] = v
	}
	f.t.Store(&t)
	return &f
}

// Register installs fn under name, replacing any existing function, including
// a builtin. The name is folded to lower case. If fn is nil, the function is
// removed instead.
func (f *Funcs) Register(name string, fn Func) {
	name = strings.ToLower(name)
	f.mu.Lock()
	defer f.mu.Unlock()
	old := f.table()
	t := make(funcTable, len(old)+1)
	for k, v := range old {
		t[k] = v
	}
	if fn == nil {
		delete(t, name)
	} else {
		t[name] = fn
	}
	f.t.Store(&t)
}

// Lookup returns the function registered under name.
func (f *Funcs) Lookup(name string) (Func, bool) {
	fn, ok := f.table()[name]
	return fn, ok
}

// Names returns the sorted names of the registered functions.
func (f *Funcs) Names() []string {
	return f.table().names()
}

func (f *Funcs) has(name string) bool {
	if f == nil {
		return false
	}
	_, ok := f.table()[name]
	return ok
}

// table returns the current snapshot. The zero Funcs holds no functions.
func (f *Funcs) table() funcTable {
	if p := f.t.Load(); p != nil {
		return *p
	}
	return nil
}
