package formulas

import (
	"errors"
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/zephyrtronium/bigfloat"
)

// defaultPrec is the precision of a Context created without Prec.
const defaultPrec = 64

// Context evaluates expressions in big.Float arithmetic at a fixed precision.
// It holds variable values and caches the values of literals and constants,
// so one Context must not be used by several goroutines at once. Clone gives
// each its own. Create Contexts with NewContext.
type Context struct {
	prec   uint
	vars   map[string]*big.Float
	consts map[string]*big.Float
	funcs  *Funcs

	last *big.Float
	err  error
}

// ContextOption configures a Context in NewContext or Clone.
type ContextOption func(*ctxSettings)

type ctxSettings struct {
	prec  uint
	binds []binding
	funcs *Funcs
}

type binding struct {
	name string
	val  *big.Float
}

// SetVar binds a variable. Names are case-insensitive.
func SetVar(name string, val *big.Float) ContextOption {
	return func(s *ctxSettings) {
		s.binds = append(s.binds, binding{strings.ToLower(name), val})
	}
}

// SetVars binds each variable in vars.
func SetVars(vars map[string]*big.Float) ContextOption {
	return func(s *ctxSettings) {
		for k, v := range vars {
			s.binds = append(s.binds, binding{strings.ToLower(k), v})
		}
	}
}

// Prec sets the number of mantissa bits. Zero selects the default of 64.
func Prec(prec uint) ContextOption {
	return func(s *ctxSettings) {
		if prec == 0 {
			prec = defaultPrec
		}
		s.prec = prec
	}
}

// UseFuncs sets the registry for calls. Functions which are still the builtin
// implementation and have an arbitrary precision version use that version;
// everything else is called in float64. Without UseFuncs, calls see only the
// builtins.
func UseFuncs(f *Funcs) ContextOption {
	return func(s *ctxSettings) { s.funcs = f }
}

// NewContext creates a Context.
func NewContext(opts ...ContextOption) *Context {
	return (&Context{prec: defaultPrec}).Clone(opts...)
}

// Clone returns a copy of ctx with opts applied. Variables are rounded to the
// new precision. The copy has no result.
func (ctx *Context) Clone(opts ...ContextOption) *Context {
	s := ctxSettings{prec: ctx.prec, funcs: ctx.funcs}
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	n := &Context{
		prec:   s.prec,
		vars:   make(map[string]*big.Float, len(ctx.vars)+len(s.binds)),
		consts: make(map[string]*big.Float),
		funcs:  s.funcs,
	}
	// Cached values can be rounded down but not refined.
	if n.prec <= ctx.prec {
		for k, v := range ctx.consts {
			n.consts[k] = n.float().Set(v)
		}
	}
	for k, v := range ctx.vars {
		n.vars[k] = n.float().Set(v)
	}
	for _, b := range s.binds {
		n.vars[b.name] = n.float().Set(b.val)
	}
	return n
}

// Eval evaluates e. The result is nil if evaluation fails, e.g. for an
// undefined variable or an argument outside a function's domain; Err then
// reports why. Each call returns a new Float.
func (ctx *Context) Eval(e *Expr) *big.Float {
	r, err := ctx.eval(e.n)
	if err != nil {
		r = nil
	}
	ctx.last, ctx.err = r, err
	return r
}

// Result returns the value from the last Eval, or nil if it failed or there
// has been none.
func (ctx *Context) Result() *big.Float {
	return ctx.last
}

// Err returns the error from the last Eval.
func (ctx *Context) Err() error {
	return ctx.err
}

// Set binds a variable and returns ctx.
func (ctx *Context) Set(name string, value *big.Float) *Context {
	if ctx.vars == nil {
		ctx.vars = make(map[string]*big.Float)
	}
	ctx.vars[strings.ToLower(name)] = ctx.float().Set(value)
	return ctx
}

// Lookup returns a copy of a variable's value, or nil if it is unbound.
func (ctx *Context) Lookup(name string) *big.Float {
	v := ctx.vars[strings.ToLower(name)]
	if v == nil {
		return nil
	}
	return new(big.Float).Copy(v)
}

func (ctx *Context) Prec() uint {
	return ctx.prec
}

// float allocates a Float at the context precision.
func (ctx *Context) float() *big.Float {
	return new(big.Float).SetPrec(ctx.prec)
}

// constant returns the cached value of a literal or named constant.
func (ctx *Context) constant(s string) *big.Float {
	if r := ctx.consts[s]; r != nil {
		return r
	}
	r := ctx.float()
	switch s {
	case "pi":
		bigfloat.Pi(r)
	case "tau":
		bigfloat.Pi(r)
		r.SetMantExp(r, 1)
	case "e":
		bigfloat.Exp(r, big.NewFloat(1).SetPrec(ctx.prec))
	case "phi":
		r.SetInt64(5)
		r.Sqrt(r)
		r.Add(r, big.NewFloat(1))
		r.SetMantExp(r, -1)
	default:
		if _, _, err := r.Parse(s, 10); err != nil {
			// big.Float reports overflow only through these messages.
			msg := err.Error()
			if msg != "exponent overflow" && !strings.HasSuffix(msg, ": value out of range") {
				panic("formulas: invalid number: " + s + " (" + msg + ")")
			}
			r.SetInf(false)
		}
	}
	ctx.consts[s] = r
	return r
}

// eval computes a node's value in a new Float.
func (ctx *Context) eval(n *node) (*big.Float, error) {
	switch n.kind {
	case nodeNum:
		if n.name == "" {
			return ctx.float().SetFloat64(n.num), nil
		}
		return ctx.float().Set(ctx.constant(n.name)), nil
	case nodeName:
		v := ctx.vars[n.name]
		if v == nil {
			return nil, &NameError{Name: n.name}
		}
		return ctx.float().Set(v), nil
	case nodeCall:
		args := make([]*big.Float, len(n.args))
		for i, a := range n.args {
			v, err := ctx.eval(a)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
		r := ctx.float()
		if err := ctx.call(n.name, args, r); err != nil {
			return nil, err
		}
		return r, nil
	case nodeNeg, nodeNop:
		v, err := ctx.eval(n.left)
		if err != nil {
			return nil, err
		}
		if n.kind == nodeNeg {
			v.Neg(v)
		}
		return v, nil
	case nodeAdd, nodeSub, nodeMul, nodeDiv, nodePow:
		l, err := ctx.eval(n.left)
		if err != nil {
			return nil, err
		}
		r, err := ctx.eval(n.right)
		if err != nil {
			return nil, err
		}
		if err := arith(n.kind, l, r); err != nil {
			return nil, err
		}
		return l, nil
	default:
		panic("formulas: invalid AST node " + n.kind.String())
	}
}

// arith sets l to l op r. Operations which would be NaN in IEEE arithmetic are
// domain errors.
func arith(op nodeKind, l, r *big.Float) error {
	switch op {
	case nodeAdd:
		if l.IsInf() && r.IsInf() && l.Signbit() != r.Signbit() {
			return &DomainError{X: r, Arg: 2, Func: "+"}
		}
		l.Add(l, r)
	case nodeSub:
		if l.IsInf() && r.IsInf() && l.Signbit() == r.Signbit() {
			return &DomainError{X: r, Arg: 2, Func: "-"}
		}
		l.Sub(l, r)
	case nodeMul:
		if l.IsInf() && r.Sign() == 0 || l.Sign() == 0 && r.IsInf() {
			return &DomainError{X: r, Arg: 2, Func: "*"}
		}
		l.Mul(l, r)
	case nodeDiv:
		if l.Sign() == 0 && r.Sign() == 0 || l.IsInf() && r.IsInf() {
			return &DomainError{X: r, Arg: 2, Func: "/"}
		}
		l.Quo(l, r)
	case nodePow:
		return pow(l, l, r)
	}
	return nil
}

// pow sets z = x^y.
func pow(z, x, y *big.Float) error {
	switch {
	case y.Sign() == 0:
		z.SetInt64(1)
		return nil
	case x.IsInf() || y.IsInf():
		a, _ := x.Float64()
		b, _ := y.Float64()
		return setFloat(z, math.Pow(a, b), x, "^")
	case y.IsInt():
		if k, acc := y.Int64(); acc == big.Exact {
			powInt(z, x, k)
			return nil
		}
		// Integers too big for int64 are beyond the range of useful results
		// for any base but ±1 and 0; sign comes from parity.
		odd := false
		if x.Signbit() {
			i, _ := y.Int(nil)
			odd = i.Bit(0) == 1
		}
		neg := x.Signbit()
		z.Abs(x)
		if z.Sign() == 0 {
			if y.Signbit() {
				z.SetInf(false)
			}
		} else {
			bigPow(z, z, y)
		}
		if neg && odd {
			z.Neg(z)
		}
		return nil
	case x.Sign() < 0:
		return &DomainError{X: new(big.Float).Copy(x), Arg: 1, Func: "^"}
	case x.Sign() == 0:
		if y.Signbit() {
			z.SetInf(false)
		} else {
			z.SetInt64(0)
		}
		return nil
	default:
		bigPow(z, x, y)
		return nil
	}
}

// bigPow sets z = x^y for positive x. bigfloat.Pow may return its result in a
// new Float, leaving its first argument with an intermediate value.
func bigPow(z, x, y *big.Float) {
	r := bigfloat.Pow(new(big.Float).SetPrec(z.Prec()), x, y)
	z.Set(r)
}

// powInt sets z = x^k by repeated squaring.
func powInt(z, x *big.Float, k int64) {
	if k == math.MinInt64 {
		powInt(z, x, k/2)
		z.Mul(z, z)
		return
	}
	neg := k < 0
	if neg {
		k = -k
	}
	b := new(big.Float).SetPrec(z.Prec()).Set(x)
	z.SetInt64(1)
	for k > 0 {
		if k&1 != 0 {
			z.Mul(z, b)
		}
		b.Mul(b, b)
		k >>= 1
	}
	if neg {
		z.Quo(big.NewFloat(1).SetPrec(z.Prec()), z)
	}
}

// setFloat sets z to a float64 result, reporting NaN as a domain error.
func setFloat(z *big.Float, r float64, x *big.Float, fn string) error {
	if math.IsNaN(r) {
		return &DomainError{X: new(big.Float).Copy(x), Arg: 1, Func: fn}
	}
	z.SetFloat64(r)
	return nil
}

// call evaluates a function with arguments computed at the context precision.
func (ctx *Context) call(name string, invoc []*big.Float, r *big.Float) error {
	r.SetPrec(ctx.prec)
	if f, ok := bigfuncs[name]; ok && (ctx.funcs == nil || ctx.funcs.sameAsBuiltin(name)) {
		if len(invoc) != f.arity {
			return &ArityError{Func: name, Len: len(invoc)}
		}
		return f.call(name, invoc, r)
	}
	fns := builtins
	if ctx.funcs != nil {
		fns = ctx.funcs.table()
	}
	fn := fns[name]
	if fn == nil {
		return &FuncError{Name: name}
	}
	if !fn.CanCall(len(invoc)) {
		return &ArityError{Func: name, Len: len(invoc)}
	}
	args := make([]float64, len(invoc))
	for i, v := range invoc {
		args[i], _ = v.Float64()
	}
	x, err := fn.Call(args)
	if err != nil {
		return err
	}
	if math.IsNaN(x) {
		d := &DomainError{Func: name, Arg: 1}
		if len(invoc) > 0 {
			d.X = new(big.Float).Copy(invoc[0])
		}
		return d
	}
	r.SetFloat64(x)
	return nil
}

// sameAsBuiltin reports whether name still refers to the builtin
// implementation, so that its arbitrary precision version may stand in.
func (f *Funcs) sameAsBuiltin(name string) bool {
	fn, ok := f.table()[name]
	return ok && fn == builtins[name]
}

// bigfunc is a function with an arbitrary precision implementation.
type bigfunc struct {
	arity int
	// f sets out to its result at out's precision. The arguments are at the
	// same precision and may be modified.
	f func(out *big.Float, args []*big.Float) error
}

func (b bigfunc) call(name string, invoc []*big.Float, r *big.Float) (err error) {
	defer func() {
		p := recover()
		if p == nil {
			return
		}
		var nan big.ErrNaN
		if e, ok := p.(error); ok && errors.As(e, &nan) {
			err = &DomainError{X: new(big.Float).Copy(invoc[0]), Arg: 1, Func: name}
			return
		}
		panic(p)
	}()
	if err := b.f(r, invoc); err != nil {
		var d *DomainError
		if errors.As(err, &d) && d.Func == "" {
			d.Func = name
		}
		return err
	}
	return nil
}

// bigMonadic wraps a function of one variable whose domain is the values for
// which ok returns true.
func bigMonadic(f func(out, in *big.Float) *big.Float, ok func(x *big.Float) bool) bigfunc {
	return bigfunc{arity: 1, f: func(out *big.Float, args []*big.Float) error {
		if ok != nil && !ok(args[0]) {
			return &DomainError{X: new(big.Float).Copy(args[0]), Arg: 1}
		}
		if r := f(out, args[0]); r != out {
			out.Set(r)
		}
		return nil
	}}
}

func nonneg(x *big.Float) bool { return x.Sign() >= 0 }

// logb returns a function computing logarithms in the given base.
func logb(base int64) func(out, in *big.Float) *big.Float {
	return func(out, in *big.Float) *big.Float {
		ln(out, in)
		d := new(big.Float).SetPrec(out.Prec()).SetInt64(base)
		bigfloat.Log(d, d)
		return out.Quo(out, d)
	}
}

func ln(out, in *big.Float) *big.Float {
	switch {
	case in.Sign() == 0:
		return out.SetInf(true)
	case in.IsInf():
		return out.SetInf(false)
	}
	return bigfloat.Log(out, in)
}

func exp(out, in *big.Float) *big.Float {
	if in.IsInf() {
		if in.Signbit() {
			return out.SetInt64(0)
		}
		return out.SetInf(false)
	}
	return bigfloat.Exp(out, in)
}

var bigfuncs = map[string]bigfunc{
	"exp":   bigMonadic(exp, nil),
	"ln":    bigMonadic(ln, nonneg),
	"log":   bigMonadic(ln, nonneg),
	"log10": bigMonadic(logb(10), nonneg),
	"log2":  bigMonadic(logb(2), nonneg),
	"sqrt":  bigMonadic((*big.Float).Sqrt, nonneg),
	"abs":   bigMonadic((*big.Float).Abs, nil),
	"pow": {arity: 2, f: func(out *big.Float, args []*big.Float) error {
		return pow(out, args[0], args[1])
	}},
	"min": {arity: 2, f: func(out *big.Float, args []*big.Float) error {
		if args[0].Cmp(args[1]) <= 0 {
			out.Set(args[0])
		} else {
			out.Set(args[1])
		}
		return nil
	}},
	"max": {arity: 2, f: func(out *big.Float, args []*big.Float) error {
		if args[0].Cmp(args[1]) >= 0 {
			out.Set(args[0])
		} else {
			out.Set(args[1])
		}
		return nil
	}},
}

// EvalPrecise is a shortcut to parse an expression and evaluate it to
// arbitrary precision.
func EvalPrecise(text string, opts ...ContextOption) (*big.Float, error) {
	e, err := Parse(text)
	if err != nil {
		return nil, err
	}
	ctx := NewContext(opts...)
	ctx.Eval(e)
	return ctx.Result(), ctx.Err()
}

// DomainError is an error returned when a function or operator is applied to
// arguments outside its domain during arbitrary precision evaluation.
type DomainError struct {
	// X is the out-of-domain argument.
	X *big.Float
	// Arg is the 1-based index of the argument.
	Arg int
	// Func is a name identifying the function or operator.
	Func string
}

func (err *DomainError) Error() string {
	x := "NaN"
	if err.X != nil {
		x = err.X.String()
	}
	r := x + " outside domain"
	if err.Func != "" {
		r += " of " + err.Func
	}
	if err.Arg > 0 {
		r += " (argument " + strconv.Itoa(err.Arg) + ")"
	}
	return r
}
