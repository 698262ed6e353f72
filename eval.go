package formulas

import (
	"errors"
	"math"
	"runtime"
	"strconv"
)

// Vars maps variable names to values. Parsed expressions fold names to lower
// case, so keys must be lower case to be found by Eval. Sweeps fold the keys
// of their base variables themselves.
type Vars map[string]float64

// Evaluator evaluates expressions against a function registry. An Evaluator is
// safe for concurrent use, and so are the Exprs it evaluates.
type Evaluator struct {
	funcs     *Funcs
	workers   int
	threshold int
	chunk     int
	obs       Observer
}

// EvalOption is an option used when creating an Evaluator.
type EvalOption interface {
	evalOption()
}

type (
	workersopt   int
	thresholdopt int
	chunkopt     int
	funcsopt     struct{ f *Funcs }
	observeropt  struct{ o Observer }
)

func (workersopt) evalOption()   {}
func (thresholdopt) evalOption() {}
func (chunkopt) evalOption()     {}
func (funcsopt) evalOption()     {}
func (observeropt) evalOption()  {}

// Workers sets the maximum number of goroutines a sweep uses. The default is
// GOMAXPROCS.
func Workers(n int) EvalOption {
	return workersopt(n)
}

// Threshold sets the number of elements at which sweeps begin to run in
// parallel. The default is 1000.
func Threshold(n int) EvalOption {
	return thresholdopt(n)
}

// ChunkSize sets the number of elements each sweep task evaluates between
// checks for cancellation. The default is 256.
func ChunkSize(n int) EvalOption {
	return chunkopt(n)
}

// WithFuncs sets the function registry. The default is a new registry holding
// the builtins.
func WithFuncs(f *Funcs) EvalOption {
	return funcsopt{f}
}

// WithObserver sets an observer to be notified of completed sweeps.
func WithObserver(o Observer) EvalOption {
	return observeropt{o}
}

const (
	defaultThreshold = 1000
	defaultChunk     = 256
)

// NewEvaluator creates an evaluator. Options that set sizes to non-positive
// values leave the defaults.
func NewEvaluator(opts ...EvalOption) *Evaluator {
	ev := Evaluator{
		workers:   runtime.GOMAXPROCS(0),
		threshold: defaultThreshold,
		chunk:     defaultChunk,
	}
	for _, opt := range opts {
		switch opt := opt.(type) {
		case nil: // do nothing
		case workersopt:
			if opt > 0 {
				ev.workers = int(opt)
			}
		case thresholdopt:
			if opt > 0 {
				ev.threshold = int(opt)
			}
		case chunkopt:
			if opt > 0 {
				ev.chunk = int(opt)
			}
		case funcsopt:
			ev.funcs = opt.f
		case observeropt:
			ev.obs = opt.o
		default:
			panic("formulas: unknown option type")
		}
	}
	if ev.funcs == nil {
		ev.funcs = NewFuncs()
	}
	return &ev
}

// Funcs returns the evaluator's function registry.
func (ev *Evaluator) Funcs() *Funcs {
	return ev.funcs
}

// Register is a shortcut for ev.Funcs().Register(name, fn).
func (ev *Evaluator) Register(name string, fn Func) {
	ev.funcs.Register(name, fn)
}

// Eval evaluates an expression. The first error encountered stops evaluation.
// Arithmetic follows IEEE 754: division by zero and functions outside their
// domains produce infinities or NaN rather than errors.
func (ev *Evaluator) Eval(e *Expr, vars Vars) (float64, error) {
	return e.n.eval(vars, ev.table())
}

// table returns a snapshot of the function table.
func (ev *Evaluator) table() funcTable {
	if ev == nil || ev.funcs == nil {
		return builtins
	}
	return ev.funcs.table()
}

// Eval evaluates the expression using only the builtin functions.
func (e *Expr) Eval(vars Vars) (float64, error) {
	return e.n.eval(vars, builtins)
}

// EvalString is a shortcut to parse and evaluate an expression using only the
// builtin functions.
func EvalString(text string, vars Vars) (float64, error) {
	e, err := Parse(text)
	if err != nil {
		return math.NaN(), err
	}
	return e.Eval(vars)
}

// eval computes the node's value. On error, the result is NaN.
func (n *node) eval(vars Vars, fns funcTable) (float64, error) {
	switch n.kind {
	case nodeNum:
		return n.num, nil
	case nodeName:
		v, ok := vars[n.name]
		if !ok {
			return math.NaN(), &NameError{Name: n.name}
		}
		return v, nil
	case nodeCall:
		var buf [4]float64
		args := buf[:0]
		for _, a := range n.args {
			v, err := a.eval(vars, fns)
			if err != nil {
				return math.NaN(), err
			}
			args = append(args, v)
		}
		f := fns[n.name]
		if f == nil {
			return math.NaN(), &FuncError{Name: n.name}
		}
		if !f.CanCall(len(args)) {
			return math.NaN(), &ArityError{Func: n.name, Len: len(args)}
		}
		r, err := f.Call(args)
		if err != nil {
			var ae *ArityError
			if errors.As(err, &ae) && ae.Func == "" {
				ae.Func = n.name
			}
			return math.NaN(), err
		}
		return r, nil
	case nodeNeg, nodeNop:
		v, err := n.left.eval(vars, fns)
		if err != nil {
			return math.NaN(), err
		}
		if n.kind == nodeNeg {
			v = -v
		}
		return v, nil
	case nodeAdd, nodeSub, nodeMul, nodeDiv, nodePow:
		l, err := n.left.eval(vars, fns)
		if err != nil {
			return math.NaN(), err
		}
		r, err := n.right.eval(vars, fns)
		if err != nil {
			return math.NaN(), err
		}
		switch n.kind {
		case nodeAdd:
			return l + r, nil
		case nodeSub:
			return l - r, nil
		case nodeMul:
			return l * r, nil
		case nodeDiv:
			return l / r, nil
		default:
			return math.Pow(l, r), nil
		}
	default:
		panic("formulas: invalid AST node " + n.kind.String())
	}
}

// NameError is an error from a lookup for a variable that is missing from the
// evaluation variables.
type NameError struct {
	// Name is the name that was missing.
	Name string
}

func (err *NameError) Error() string {
	return "undefined variable: " + strconv.Quote(err.Name)
}

// FuncError is an error from a call to a function that is not registered.
type FuncError struct {
	// Name is the function name.
	Name string
}

func (err *FuncError) Error() string {
	return "undefined function: " + strconv.Quote(err.Name)
}

// ArityError is an error from a call to a function with a number of arguments
// it does not accept.
type ArityError struct {
	// Func is the function name. It is empty when a Func is called directly.
	Func string
	// Len is the number of arguments in the call.
	Len int
}

func (err *ArityError) Error() string {
	if err.Func == "" {
		return "function cannot take " + strconv.Itoa(err.Len) + " arguments"
	}
	return "function " + err.Func + " cannot take " + strconv.Itoa(err.Len) + " arguments"
}
