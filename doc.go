// Package formulas parses and evaluates mathematical formulas for plotting.
//
// The syntax is meant to look like math written in notes. "2x" and "xy" are
// products, and so is "(a)(b)". Function names like sin and sqrt require an
// argument list: "sin(x)". Known constants are pi, e, phi, and tau. "-2^2^n"
// is the same as "-(2^(2^n))", where "a^b" is exponentiation.
//
// Relations become residuals. "y = x^2" parses as "y - x^2", which is zero
// exactly where the relation holds, so an implicit curve is the zero set of
// the result. Likewise for <, >, <=, and >=.
//
// A UserFuncs registry lets a host define functions in the same syntax, like
// "f(x) = x^2 + 1". Parsing a call to one substitutes the arguments into a
// copy of its body, so the resulting Expr contains no user function calls.
//
// Exprs are immutable. An Evaluator evaluates them in float64 one point at a
// time or over batches, grids, and volumes of points. Sweeps never fail on
// individual points: an undefined variable or function at a point produces
// NaN there. A Context evaluates to arbitrary precision instead.
package formulas
