package formulas

import (
	"strconv"
	"strings"
)

// node is a node in the abstract syntax tree of an expression. Nodes are never
// modified after the parser creates them.
type node struct {
	kind nodeKind

	// num is the value of a nodeNum.
	num float64
	// name is the source text of a nodeNum, or the name of a variable or
	// function.
	name string

	left  *node
	right *node
	// args are the arguments of a nodeCall, in order.
	args []*node
}

type nodeKind int8

const (
	nodeNone nodeKind = iota

	nodeNum  // num
	nodeName // lookup(name)
	nodeCall // call name with args

	nodeNeg // evaluate left, then negate
	nodeNop // evaluate left
	nodeAdd // evaluate left, add right
	nodeSub // evaluate left, sub right
	nodeMul // evaluate left, mul right
	nodeDiv // evaluate left, div by right
	nodePow // evaluate left, exp by right
)

var nodeKindNames = [...]string{
	nodeNone: "None",
	nodeNum:  "Num",
	nodeName: "Name",
	nodeCall: "Call",
	nodeNeg:  "Neg",
	nodeNop:  "Nop",
	nodeAdd:  "Add",
	nodeSub:  "Sub",
	nodeMul:  "Mul",
	nodeDiv:  "Div",
	nodePow:  "Pow",
}

func (k nodeKind) String() string {
	if k < 0 || int(k) >= len(nodeKindNames) {
		return "nodeKind(" + strconv.Itoa(int(k)) + ")"
	}
	return nodeKindNames[k]
}

// binops maps binary node kinds to their operator text.
var binops = [...]string{
	nodeAdd: " + ",
	nodeSub: " - ",
	nodeMul: " * ",
	nodeDiv: " / ",
	nodePow: " ^ ",
}

func (n *node) String() string {
	var b strings.Builder
	n.fmt(&b)
	return b.String()
}

// fmt writes n fully parenthesized. The output parses back to the same tree.
func (n *node) fmt(b *strings.Builder) {
	b.WriteByte('(')
	defer b.WriteByte(')')
	switch n.kind {
	case nodeNone:
		// Invalid nodes use invalid characters.
		b.WriteString("$#$")
	case nodeNum:
		if n.name != "" {
			b.WriteString(n.name)
		} else {
			b.WriteString(strconv.FormatFloat(n.num, 'g', -1, 64))
		}
	case nodeName:
		b.WriteString(n.name)
	case nodeCall:
		b.WriteString(n.name)
		b.WriteByte('(')
		for i, a := range n.args {
			if i > 0 {
				b.WriteString(", ")
			}
			a.fmt(b)
		}
		b.WriteByte(')')
	case nodeNeg:
		b.WriteByte('-')
		n.left.fmt(b)
	case nodeNop:
		b.WriteByte('+')
		n.left.fmt(b)
	case nodeAdd, nodeSub, nodeMul, nodeDiv, nodePow:
		n.left.fmt(b)
		b.WriteString(binops[n.kind])
		n.right.fmt(b)
	default:
		panic("formulas: invalid node kind " + n.kind.String() + " after writing " + b.String())
	}
}

// clone deep-copies n, replacing each variable named in subs with a fresh copy
// of its bound tree. Bound trees are copied with no substitutions, so names
// inside arguments are never substituted again.
func (n *node) clone(subs map[string]*node) *node {
	if n == nil {
		return nil
	}
	if n.kind == nodeName {
		if r := subs[n.name]; r != nil {
			return r.clone(nil)
		}
	}
	c := &node{
		kind:  n.kind,
		num:   n.num,
		name:  n.name,
		left:  n.left.clone(subs),
		right: n.right.clone(subs),
	}
	if n.args != nil {
		c.args = make([]*node, len(n.args))
		for i, a := range n.args {
			c.args[i] = a.clone(subs)
		}
	}
	return c
}

// vars adds the names of variables in n to m.
func (n *node) vars(m map[string]bool) {
	if n == nil {
		return
	}
	if n.kind == nodeName {
		m[n.name] = true
	}
	n.left.vars(m)
	n.right.vars(m)
	for _, a := range n.args {
		a.vars(m)
	}
}
