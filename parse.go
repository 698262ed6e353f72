package formulas

import (
	"sort"
	"strings"
)

// Expression = Comparison
// Comparison = AddSub { ( '=' | '<' | '>' | '<=' | '>=' ) AddSub }
// AddSub = MulDiv { ( '+' | '-' ) MulDiv }
// MulDiv = Unary { ( '*' | '/' ) Unary | Power }
// Unary = '-' Unary | '+' Unary | Power
// Power = Primary [ '^' Unary ]
// Primary = num | name | Call | '(' Expression ')'
// Call = ( funcname | userfunc ) '(' [ Expression { ',' Expression } ] ')'

// Expr is a parsed expression that can be evaluated many times. An Expr is
// immutable and safe to evaluate concurrently.
type Expr struct {
	// n is the root node of the expression.
	n *node
	// names is the sorted list of variable names used in the expression.
	names []string
	// src is the text the expression was parsed from.
	src string
}

// Parse parses an expression. The given options are applied in order.
//
// Relations are folded into differences: "y = x^2" parses as "y - x^2", so the
// result is zero where the relation holds. A chain like "a < b < c" folds
// left to right into "(a - b) - c".
func Parse(text string, opts ...ParseOption) (*Expr, error) {
	var p parsectx
	for _, opt := range opts {
		p = opt.parseOption(p)
	}
	return parse(text, &p)
}

func parse(text string, p *parsectx) (*Expr, error) {
	toks, err := lex(text, p).all()
	if err != nil {
		return nil, err
	}
	scan := &tokens{v: toks}
	n, err := parseexpr(scan, p)
	if err != nil {
		return nil, err
	}
	if tok := scan.peek(); tok.Kind != TokenEnd {
		if tok.Kind == TokenRightParen {
			return nil, &BracketError{Col: tok.Pos, Right: tok.Text}
		}
		return nil, &TokenError{Col: tok.Pos, Token: tok.Text}
	}
	m := make(map[string]bool)
	n.vars(m)
	ex := Expr{
		n:     n,
		names: make([]string, 0, len(m)),
		src:   text,
	}
	for k := range m {
		ex.names = append(ex.names, k)
	}
	sort.Strings(ex.names)
	return &ex, nil
}

// tokens is a cursor over lexed tokens. The final TokenEnd is never consumed.
type tokens struct {
	v []Token
	i int
}

func (t *tokens) peek() Token {
	return t.v[t.i]
}

func (t *tokens) next() Token {
	tok := t.v[t.i]
	if tok.Kind != TokenEnd {
		t.i++
	}
	return tok
}

func parseexpr(scan *tokens, p *parsectx) (*node, error) {
	n, err := parseaddsub(scan, p)
	if err != nil {
		return nil, err
	}
	for scan.peek().Kind.comparison() {
		scan.next()
		rhs, err := parseaddsub(scan, p)
		if err != nil {
			return nil, err
		}
		n = &node{kind: nodeSub, left: n, right: rhs}
	}
	return n, nil
}

func parseaddsub(scan *tokens, p *parsectx) (*node, error) {
	n, err := parsemuldiv(scan, p)
	if err != nil {
		return nil, err
	}
	for {
		tok := scan.peek()
		if tok.Kind != TokenOperator || (tok.Text != "+" && tok.Text != "-") {
			return n, nil
		}
		scan.next()
		rhs, err := parsemuldiv(scan, p)
		if err != nil {
			return nil, err
		}
		k := nodeAdd
		if tok.Text == "-" {
			k = nodeSub
		}
		n = &node{kind: k, left: n, right: rhs}
	}
}

func parsemuldiv(scan *tokens, p *parsectx) (*node, error) {
	n, err := parseunary(scan, p)
	if err != nil {
		return nil, err
	}
	for {
		var (
			rhs *node
			k   = nodeMul
		)
		switch tok := scan.peek(); tok.Kind {
		case TokenOperator:
			if tok.Text != "*" && tok.Text != "/" {
				return n, nil
			}
			if tok.Text == "/" {
				k = nodeDiv
			}
			scan.next()
			rhs, err = parseunary(scan, p)
		case TokenNumber, TokenVariable, TokenFunction, TokenLeftParen:
			// 2x -> (2) * (x)
			// x(y+1) -> (x) * (y+1)
			rhs, err = parsepower(scan, p)
		default:
			return n, nil
		}
		if err != nil {
			return nil, err
		}
		n = &node{kind: k, left: n, right: rhs}
	}
}

func parseunary(scan *tokens, p *parsectx) (*node, error) {
	tok := scan.peek()
	if tok.Kind != TokenOperator || (tok.Text != "-" && tok.Text != "+") {
		return parsepower(scan, p)
	}
	scan.next()
	n, err := parseunary(scan, p)
	if err != nil {
		return nil, err
	}
	if tok.Text == "-" {
		return &node{kind: nodeNeg, left: n}, nil
	}
	return &node{kind: nodeNop, left: n}, nil
}

// parsepower parses a primary with an optional exponent. The exponent is
// parsed at unary precedence, so 2^3^2 is 2^(3^2), 2^-1 is 2^(-1), and -2^2
// is -(2^2).
func parsepower(scan *tokens, p *parsectx) (*node, error) {
	n, err := parseprimary(scan, p)
	if err != nil {
		return nil, err
	}
	if tok := scan.peek(); tok.Kind != TokenOperator || tok.Text != "^" {
		return n, nil
	}
	scan.next()
	rhs, err := parseunary(scan, p)
	if err != nil {
		return nil, err
	}
	return &node{kind: nodePow, left: n, right: rhs}, nil
}

func parseprimary(scan *tokens, p *parsectx) (*node, error) {
	tok := scan.next()
	switch tok.Kind {
	case TokenNumber:
		return &node{kind: nodeNum, num: tok.Num, name: tok.Text}, nil
	case TokenFunction:
		return parsecall(scan, p, tok, false)
	case TokenVariable:
		if scan.peek().Kind == TokenLeftParen && p.isUser(tok.Text) {
			return parsecall(scan, p, tok, true)
		}
		return &node{kind: nodeName, name: tok.Text}, nil
	case TokenLeftParen:
		n, err := parseexpr(scan, p)
		if err != nil {
			return nil, err
		}
		if end := scan.next(); end.Kind != TokenRightParen {
			return nil, unclosed(end, "")
		}
		return n, nil
	case TokenEnd:
		return nil, &EmptyExpressionError{Col: tok.Pos}
	case TokenRightParen:
		return nil, &EmptyExpressionError{Col: tok.Pos, End: tok.Text}
	default:
		return nil, &TokenError{Col: tok.Pos, Token: tok.Text}
	}
}

// parsecall parses the argument list of a call to the function named by tok.
// If user is true, the result is the user function's body with the arguments
// substituted for its parameters.
func parsecall(scan *tokens, p *parsectx, tok Token, user bool) (*node, error) {
	if open := scan.peek(); open.Kind != TokenLeftParen {
		return nil, &CallError{Col: open.Pos, Func: tok.Text, Len: -1}
	}
	scan.next()
	var args []*node
	if scan.peek().Kind != TokenRightParen {
		for {
			a, err := parseexpr(scan, p)
			if err != nil {
				return nil, err
			}
			args = append(args, a)
			if scan.peek().Kind != TokenComma {
				break
			}
			scan.next()
		}
	}
	if end := scan.next(); end.Kind != TokenRightParen {
		return nil, unclosed(end, tok.Text)
	}
	if user {
		return substitute(p, tok, args)
	}
	return &node{kind: nodeCall, name: tok.Text, args: args}, nil
}

// unclosed returns the error for finding tok where a close bracket belongs.
func unclosed(tok Token, fn string) error {
	if tok.Kind == TokenEnd {
		return &BracketError{Col: tok.Pos, Left: "(", Func: fn}
	}
	return &TokenError{Col: tok.Pos, Token: tok.Text}
}

// substitute expands a call to a user function. The body is parsed on every
// call with a fresh parser, and each parameter is replaced by a copy of the
// corresponding argument.
func substitute(p *parsectx, call Token, args []*node) (*node, error) {
	fn, ok := p.users.Lookup(call.Text)
	if !ok || strings.TrimSpace(fn.Body) == "" {
		// Nothing to substitute. The call fails at evaluation unless a
		// function of the same name is registered by then.
		return &node{kind: nodeCall, name: call.Text, args: args}, nil
	}
	if len(args) != len(fn.Params) {
		return nil, &CallError{Col: call.Pos, Func: fn.Name, Want: len(fn.Params), Len: len(args)}
	}
	for i, name := range p.active {
		if name == fn.Name {
			chain := append(append([]string(nil), p.active[i:]...), fn.Name)
			return nil, &RecursionError{Col: call.Pos, Chain: chain}
		}
	}
	inner := parsectx{
		users:  p.users,
		funcs:  p.funcs,
		strict: p.strict,
		active: append(p.active[:len(p.active):len(p.active)], fn.Name),
	}
	body, err := parse(fn.Body, &inner)
	if err != nil {
		return nil, &BodyError{Col: call.Pos, Func: fn.Name, Err: err}
	}
	subs := make(map[string]*node, len(fn.Params))
	for i, name := range fn.Params {
		subs[strings.ToLower(name)] = args[i]
	}
	return body.n.clone(subs), nil
}

// Vars returns the sorted names of the variables used in the expression.
func (e *Expr) Vars() []string {
	return append([]string(nil), e.names...)
}

// Params returns the variables of the expression other than the given axis
// names, which default to x, y, and z. A plotting host offers these as
// adjustable parameters.
func (e *Expr) Params(axes ...string) []string {
	if len(axes) == 0 {
		axes = []string{"x", "y", "z"}
	}
	var r []string
outer:
	for _, name := range e.names {
		for _, a := range axes {
			if name == a {
				continue outer
			}
		}
		r = append(r, name)
	}
	return r
}

// HasVar returns whether the expression uses the named variable.
func (e *Expr) HasVar(name string) bool {
	k := sort.SearchStrings(e.names, name)
	return k < len(e.names) && e.names[k] == name
}

// Source returns the text the expression was parsed from.
func (e *Expr) Source() string {
	return e.src
}

// String creates a fully parenthesized representation of the parsed
// expression, with user functions expanded. The result parses to an
// equivalent expression.
func (e *Expr) String() string {
	var b strings.Builder
	e.n.fmt(&b)
	return b.String()
}
