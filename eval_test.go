package formulas_test

import (
	"errors"
	"math"
	"regexp"
	"testing"

	"github.com/zephyrtronium/formulas"
)

// same reports whether two results are equal, treating NaNs as equal and
// allowing for rounding in the last few bits.
func same(a, b float64) bool {
	switch {
	case math.IsNaN(a) || math.IsNaN(b):
		return math.IsNaN(a) && math.IsNaN(b)
	case math.IsInf(a, 0) || math.IsInf(b, 0):
		return a == b
	}
	return math.Abs(a-b) <= 1e-12*math.Max(1, math.Abs(b))
}

func TestEval(t *testing.T) {
	type vc struct {
		vars formulas.Vars
		r    float64
	}
	cases := []struct {
		name string
		src  string
		r    []vc
	}{
		{"num", "1", []vc{{nil, 1}}},
		{"ident", "x", []vc{
			{formulas.Vars{"x": 4}, 4},
			{formulas.Vars{"x": 5}, 5},
			{formulas.Vars{"x": 6}, 6},
		}},
		{"plus", "+x", []vc{{formulas.Vars{"x": 4}, 4}}},
		{"neg", "-x", []vc{{formulas.Vars{"x": 4}, -4}}},
		{"add", "4+5+6", []vc{{nil, 4 + 5 + 6}}},
		{"sub", "4-5-6", []vc{{nil, 4 - 5 - 6}}},
		{"mul", "4*5*6", []vc{{nil, 4 * 5 * 6}}},
		{"div", "4/5/6", []vc{{nil, 4.0 / 5.0 / 6.0}}},
		{"pow", "2^3^2", []vc{{nil, 512}}},
		{"negpow", "-2^2", []vc{{nil, -4}}},
		{"powneg", "2^-1", []vc{{nil, 0.5}}},
		{"implicit-num", "2x", []vc{{formulas.Vars{"x": 3}, 6}}},
		{"implicit-vars", "xy", []vc{{formulas.Vars{"x": 2, "y": 5}, 10}}},
		{"implicit-paren", "(x+1)(x-1)", []vc{{formulas.Vars{"x": 3}, 8}}},
		{"equation", "y=x^2", []vc{
			{formulas.Vars{"x": 2, "y": 4}, 0},
			{formulas.Vars{"x": 2, "y": 5}, 1},
		}},
		{"chain", "a<b<c", []vc{{formulas.Vars{"a": 1, "b": 2, "c": 3}, -4}}},
		{"pi", "pi", []vc{{nil, math.Pi}}},
		{"e", "e", []vc{{nil, math.E}}},
		{"tau", "tau", []vc{{nil, 2 * math.Pi}}},
		{"phi", "phi", []vc{{nil, math.Phi}}},

		{"sin", "sin(0)", []vc{{nil, 0}}},
		{"cos", "cos(pi)", []vc{{nil, -1}}},
		{"tan", "tan(0)", []vc{{nil, 0}}},
		{"asin", "asin(1)", []vc{{nil, math.Pi / 2}}},
		{"acos", "acos(1)", []vc{{nil, 0}}},
		{"atan", "atan(1)", []vc{{nil, math.Pi / 4}}},
		{"atan2", "atan2(1, -1)", []vc{{nil, 3 * math.Pi / 4}}},
		{"sinh", "sinh(0)", []vc{{nil, 0}}},
		{"cosh", "cosh(0)", []vc{{nil, 1}}},
		{"tanh", "tanh(0)", []vc{{nil, 0}}},
		{"asinh", "asinh(0)", []vc{{nil, 0}}},
		{"acosh", "acosh(1)", []vc{{nil, 0}}},
		{"atanh", "atanh(0)", []vc{{nil, 0}}},
		{"exp", "exp(1)", []vc{{nil, math.E}}},
		{"log", "log(e)", []vc{{nil, 1}}},
		{"ln", "ln(1)", []vc{{nil, 0}}},
		{"log10", "log10(1000)", []vc{{nil, 3}}},
		{"log2", "log2(8)", []vc{{nil, 3}}},
		{"sqrt", "sqrt(16)", []vc{{nil, 4}}},
		{"cbrt", "cbrt(-27)", []vc{{nil, -3}}},
		{"pow-func", "pow(2, 10)", []vc{{nil, 1024}}},
		{"floor", "floor(-1.5)", []vc{{nil, -2}}},
		{"ceil", "ceil(1.2)", []vc{{nil, 2}}},
		{"round", "round(2.5)", []vc{{nil, 3}}},
		{"round-neg", "round(-2.5)", []vc{{nil, -3}}},
		{"frac", "frac(-1.25)", []vc{{nil, 0.75}}},
		{"abs", "abs(-3)", []vc{{nil, 3}}},
		{"sign", "sign(x)", []vc{
			{formulas.Vars{"x": -3}, -1},
			{formulas.Vars{"x": 0}, 0},
			{formulas.Vars{"x": 7}, 1},
		}},
		{"min", "min(2, 3)", []vc{{nil, 2}}},
		{"max", "max(2, 3)", []vc{{nil, 3}}},
		{"mod", "mod(7, 3)", []vc{{nil, 1}}},
		{"mod-neg", "mod(-7, 3)", []vc{{nil, -1}}},

		{"div-zero", "1/0", []vc{{nil, math.Inf(1)}}},
		{"div-zero-zero", "0/0", []vc{{nil, math.NaN()}}},
		{"sqrt-neg", "sqrt(-1)", []vc{{nil, math.NaN()}}},
		{"log-neg", "log(-1)", []vc{{nil, math.NaN()}}},
		{"pow-neg", "(-8)^(1/3)", []vc{{nil, math.NaN()}}},
		{"pow-neg-int", "(-2)^3", []vc{{nil, -8}}},
		{"nan-propagates", "sqrt(-1) + 1", []vc{{nil, math.NaN()}}},
		{"sign-nan", "sign(sqrt(-1))", []vc{{nil, math.NaN()}}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			a, err := formulas.Parse(c.src)
			if err != nil {
				t.Fatal(c.src, "failed to parse:", err)
			}
			for _, v := range c.r {
				r, err := a.Eval(v.vars)
				if err != nil {
					t.Errorf("evaluation error: %v", err)
				}
				if !same(r, v.r) {
					t.Errorf("wrong result from %q with %v: want %g, got %g", c.src, v.vars, v.r, r)
				}
			}
		})
	}
}

func TestEvalUndefNames(t *testing.T) {
	cases := []struct {
		name string
		src  string
		r    string
	}{
		{"x", "x", "x"},
		{"plus", "+x", "x"},
		{"neg", "-x", "x"},
		{"add-lhs", "x+1", "x"},
		{"add-rhs", "1+x", "x"},
		{"sub-lhs", "x-1", "x"},
		{"sub-rhs", "1-x", "x"},
		{"mul-lhs", "x*1", "x"},
		{"mul-rhs", "1*x", "x"},
		{"div-lhs", "x/1", "x"},
		{"div-rhs", "1/q", "q"},
		{"pow-lhs", "x^1", "x"},
		{"pow-rhs", "1^x", "x"},
		{"call", "exp(x)", "x"},
		{"relation", "y=1", "y"},
	}
	ure := regexp.MustCompile(`(?i)\bundef`)
	vre := regexp.MustCompile(`(?i)\bvar`)
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			a, err := formulas.Parse(c.src)
			if err != nil {
				t.Fatalf("%q failed to parse: %v", c.src, err)
			}
			r, err := a.Eval(formulas.Vars{"a": 1})
			if !math.IsNaN(r) {
				t.Errorf("evaluating %q gave non-NaN result %g", c.src, r)
			}
			if err == nil {
				t.Fatalf("evaluating %q gave no error", c.src)
			}
			var u *formulas.NameError
			if !errors.As(err, &u) {
				t.Fatalf("error was %#v, not NameError", err)
			}
			if u.Name != c.r {
				t.Errorf("NameError on %q, want %q", u.Name, c.r)
			}
			msg := err.Error()
			if !ure.MatchString(msg) {
				t.Errorf(`%q doesn't mention "undef"`, msg)
			}
			if !vre.MatchString(msg) {
				t.Errorf(`%q doesn't mention "var"`, msg)
			}
			if !regexp.MustCompile(`\b` + c.r + `\b`).MatchString(msg) {
				t.Errorf(`%q doesn't mention %q`, msg, c.r)
			}
		})
	}
}

func TestEvalFuncErrors(t *testing.T) {
	ev := formulas.NewEvaluator()
	ev.Register("gauss", formulas.Monadic(func(x float64) float64 { return math.Exp(-x * x) }))
	users := formulas.NewUserFuncs(formulas.UserFunc{Name: "blank", Params: []string{"x"}})
	cases := []struct {
		name string
		src  string
		err  error
		res  []string
	}{
		{"undefined", "blank(1)", new(formulas.FuncError), []string{`(?i)\bundefined\b`, `\bblank\b`}},
		{"builtin-arity", "sin(1, 2)", new(formulas.ArityError), []string{`\bsin\b`, `\b2\b`}},
		{"builtin-arity0", "atan2(1)", new(formulas.ArityError), []string{`\batan2\b`, `\b1\b`}},
		{"registered-arity", "gauss()", new(formulas.ArityError), []string{`\bgauss\b`, `\b0\b`}},
		{"in-arg", "1 + sin(blank(2))", new(formulas.FuncError), []string{`\bblank\b`}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			a, err := formulas.Parse(c.src, formulas.WithUserFuncs(users), formulas.ParseFuncs(ev.Funcs()))
			if err != nil {
				t.Fatalf("%q failed to parse: %v", c.src, err)
			}
			r, err := ev.Eval(a, nil)
			if !math.IsNaN(r) {
				t.Errorf("evaluating %q gave non-NaN result %g", c.src, r)
			}
			switch c.err.(type) {
			case *formulas.FuncError:
				var fe *formulas.FuncError
				if !errors.As(err, &fe) {
					t.Fatalf("error was %#v, not FuncError", err)
				}
			case *formulas.ArityError:
				var ae *formulas.ArityError
				if !errors.As(err, &ae) {
					t.Fatalf("error was %#v, not ArityError", err)
				}
			}
			for _, re := range c.res {
				if !regexp.MustCompile(re).MatchString(err.Error()) {
					t.Errorf("error message %q does not match %s", err.Error(), re)
				}
			}
		})
	}
}

func TestEvalUserFunction(t *testing.T) {
	users := formulas.NewUserFuncs()
	users.Define(formulas.UserFunc{Name: "f", Params: []string{"x"}, Body: "x^2+1"})
	a, err := formulas.Parse("f(3)", formulas.WithUserFuncs(users))
	if err != nil {
		t.Fatal(err)
	}
	if r, err := a.Eval(nil); err != nil || r != 10 {
		t.Errorf("f(3) gave %g, %v; want 10", r, err)
	}
	a, err = formulas.Parse("f(1,2)", formulas.WithUserFuncs(users))
	if a != nil {
		t.Errorf("wrong arity parsed to %v", a)
	}
	var ce *formulas.CallError
	if !errors.As(err, &ce) {
		t.Fatalf("wrong arity gave %#v, not CallError", err)
	}
	if ce.Want != 1 || ce.Len != 2 {
		t.Errorf("wrong counts in %#v", ce)
	}
}

func TestEvalReentrant(t *testing.T) {
	a, err := formulas.Parse("a*sin(x) + b")
	if err != nil {
		t.Fatal(err)
	}
	s := a.String()
	for i := 0; i < 10; i++ {
		x := float64(i) / 3
		r, err := a.Eval(formulas.Vars{"a": 2, "b": float64(i), "x": x})
		if err != nil {
			t.Fatal(err)
		}
		if want := 2*math.Sin(x) + float64(i); !same(r, want) {
			t.Errorf("iteration %d: want %g, got %g", i, want, r)
		}
	}
	if a.String() != s {
		t.Errorf("expression changed from %s to %s", s, a.String())
	}
}

func TestEvaluatorRegister(t *testing.T) {
	ev := formulas.NewEvaluator()
	ev.Register("Double", formulas.Monadic(func(x float64) float64 { return 2 * x }))
	a, err := formulas.Parse("double(x) + sin(x)", formulas.ParseFuncs(ev.Funcs()))
	if err != nil {
		t.Fatal(err)
	}
	if r, err := ev.Eval(a, formulas.Vars{"x": 0}); err != nil || r != 0 {
		t.Errorf("want 0, got %g, %v", r, err)
	}
	// Replace a builtin in this evaluator only.
	ev.Register("sin", formulas.Monadic(func(float64) float64 { return 10 }))
	if r, err := ev.Eval(a, formulas.Vars{"x": 1}); err != nil || r != 12 {
		t.Errorf("want 12, got %g, %v", r, err)
	}
	b, _ := formulas.Parse("sin(0)")
	if r, err := b.Eval(nil); err != nil || r != 0 {
		t.Errorf("builtin changed: want 0, got %g, %v", r, err)
	}
	if r, err := formulas.NewEvaluator().Eval(b, nil); err != nil || r != 0 {
		t.Errorf("new evaluator sees replaced builtin: got %g, %v", r, err)
	}
	// Remove it.
	ev.Register("double", nil)
	if _, err := ev.Eval(a, formulas.Vars{"x": 1}); !errors.As(err, new(*formulas.FuncError)) {
		t.Errorf("removed function gave %v", err)
	}
}

func TestEvalString(t *testing.T) {
	r, err := formulas.EvalString("2x + 1", formulas.Vars{"x": 3})
	if err != nil || r != 7 {
		t.Errorf("want 7, got %g, %v", r, err)
	}
	r, err = formulas.EvalString("(", nil)
	if err == nil {
		t.Error("no error from bad expression")
	}
	if !math.IsNaN(r) {
		t.Errorf("non-NaN result %g from bad expression", r)
	}
}

func BenchmarkEval(b *testing.B) {
	cases := []struct {
		name string
		src  string
	}{
		{"poly", "3x^3 - 2x^2 + x - 7"},
		{"trig", "sin(x)cos(y) + atan2(y, x)"},
		{"implicit", "x^2 + y^2 = 1"},
	}
	vars := formulas.Vars{"x": 0.5, "y": 0.25}
	for _, c := range cases {
		a, err := formulas.Parse(c.src)
		if err != nil {
			b.Fatal(err)
		}
		b.Run(c.name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				a.Eval(vars)
			}
		})
	}
}
