// Package symbolic is a small scalar expression algebra used to describe DAE
// right-hand sides. Expressions are immutable trees. Construction folds
// constants and drops neutral elements so derivatives stay readable.
//
// # Matrices
//
// [Matrix] pairs a sparsity pattern with one expression per structural
// nonzero. It is the unit the integrator works with: symbols are created per
// matrix, matrices are concatenated and projected, and forward/reverse
// directional derivatives are taken between lists of matrices.
//
// # Evaluation
//
// Trees can be evaluated directly with [Eval], or compiled into a [Program]
// that binds symbols to positional input buffers.
package symbolic

import (
	"errors"
	"math"
	"slices"
	"strconv"
)

var (
	// ErrParse indicates malformed expression text.
	ErrParse = errors.New("symbolic: parse error")

	// ErrShape indicates matrices with incompatible dimensions.
	ErrShape = errors.New("symbolic: dimension mismatch")

	// ErrNotSymbolic indicates a matrix whose entries are not distinct symbols.
	ErrNotSymbolic = errors.New("symbolic: expected purely symbolic matrix")

	// ErrFreeSymbol indicates an expression referencing an unbound symbol.
	ErrFreeSymbol = errors.New("symbolic: free symbol")
)

type Op uint8

const (
	OpConst Op = iota
	OpSym
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpNeg
	OpPow
	OpSin
	OpCos
	OpTan
	OpExp
	OpLog
	OpSqrt
	OpTanh
)

var opNames = map[Op]string{
	OpSin:  "sin",
	OpCos:  "cos",
	OpTan:  "tan",
	OpExp:  "exp",
	OpLog:  "log",
	OpSqrt: "sqrt",
	OpTanh: "tanh",
	OpPow:  "pow",
}

var binarySigns = map[Op]string{
	OpAdd: " + ",
	OpSub: " - ",
	OpMul: "*",
	OpDiv: "/",
}

// Expr is a node of an expression tree.
type Expr struct {
	op   Op
	val  float64
	name string
	a, b *Expr
}

func (e *Expr) Op() Op { return e.op }

// Value returns the constant value of an OpConst node.
func (e *Expr) Value() float64 { return e.val }

// Name returns the symbol name of an OpSym node.
func (e *Expr) Name() string { return e.name }

func (e *Expr) IsConst() bool { return e.op == OpConst }
func (e *Expr) IsSymbol() bool { return e.op == OpSym }
func (e *Expr) IsZero() bool  { return e.op == OpConst && e.val == 0 }
func (e *Expr) IsOne() bool   { return e.op == OpConst && e.val == 1 }

// Args returns the operands of the node; nil entries are unused.
func (e *Expr) Args() (*Expr, *Expr) { return e.a, e.b }

var (
	zero = &Expr{op: OpConst, val: 0}
	one  = &Expr{op: OpConst, val: 1}
)

func Const(v float64) *Expr {
	switch v {
	case 0:
		return zero
	case 1:
		return one
	}
	return &Expr{op: OpConst, val: v}
}

func Sym(name string) *Expr { return &Expr{op: OpSym, name: name} }

func Add(a, b *Expr) *Expr {
	switch {
	case a.IsConst() && b.IsConst():
		return Const(a.val + b.val)
	case a.IsZero():
		return b
	case b.IsZero():
		return a
	}
	return &Expr{op: OpAdd, a: a, b: b}
}

func Sub(a, b *Expr) *Expr {
	switch {
	case a.IsConst() && b.IsConst():
		return Const(a.val - b.val)
	case b.IsZero():
		return a
	case a.IsZero():
		return Neg(b)
	}
	return &Expr{op: OpSub, a: a, b: b}
}

func Mul(a, b *Expr) *Expr {
	switch {
	case a.IsConst() && b.IsConst():
		return Const(a.val * b.val)
	case a.IsZero() || b.IsZero():
		return zero
	case a.IsOne():
		return b
	case b.IsOne():
		return a
	}
	return &Expr{op: OpMul, a: a, b: b}
}

func Div(a, b *Expr) *Expr {
	switch {
	case a.IsConst() && b.IsConst() && b.val != 0:
		return Const(a.val / b.val)
	case a.IsZero() && !b.IsZero():
		return zero
	case b.IsOne():
		return a
	}
	return &Expr{op: OpDiv, a: a, b: b}
}

func Neg(a *Expr) *Expr {
	switch {
	case a.IsConst():
		return Const(-a.val)
	case a.op == OpNeg:
		return a.a
	}
	return &Expr{op: OpNeg, a: a}
}

func Pow(a, b *Expr) *Expr {
	switch {
	case a.IsConst() && b.IsConst():
		return Const(math.Pow(a.val, b.val))
	case b.IsZero():
		return one
	case b.IsOne():
		return a
	}
	return &Expr{op: OpPow, a: a, b: b}
}

func unary(op Op, a *Expr) *Expr {
	if a.IsConst() {
		return Const(apply(op, a.val, 0))
	}
	return &Expr{op: op, a: a}
}

func Sin(a *Expr) *Expr  { return unary(OpSin, a) }
func Cos(a *Expr) *Expr  { return unary(OpCos, a) }
func Tan(a *Expr) *Expr  { return unary(OpTan, a) }
func Exp(a *Expr) *Expr  { return unary(OpExp, a) }
func Log(a *Expr) *Expr  { return unary(OpLog, a) }
func Sqrt(a *Expr) *Expr { return unary(OpSqrt, a) }
func Tanh(a *Expr) *Expr { return unary(OpTanh, a) }

// Sum adds a list of expressions; the empty sum is zero.
func Sum(es ...*Expr) *Expr {
	acc := zero
	for _, e := range es {
		acc = Add(acc, e)
	}
	return acc
}

func apply(op Op, a, b float64) float64 {
	switch op {
	case OpAdd:
		return a + b
	case OpSub:
		return a - b
	case OpMul:
		return a * b
	case OpDiv:
		return a / b
	case OpNeg:
		return -a
	case OpPow:
		return math.Pow(a, b)
	case OpSin:
		return math.Sin(a)
	case OpCos:
		return math.Cos(a)
	case OpTan:
		return math.Tan(a)
	case OpExp:
		return math.Exp(a)
	case OpLog:
		return math.Log(a)
	case OpSqrt:
		return math.Sqrt(a)
	case OpTanh:
		return math.Tanh(a)
	}
	panic("symbolic: apply on leaf op " + strconv.Itoa(int(op)))
}

// Eval evaluates e with symbol values taken from env. Missing symbols are
// reported as ErrFreeSymbol.
func Eval(e *Expr, env map[string]float64) (float64, error) {
	switch e.op {
	case OpConst:
		return e.val, nil
	case OpSym:
		v, ok := env[e.name]
		if !ok {
			return 0, &freeSymbolError{name: e.name}
		}
		return v, nil
	}
	a, err := Eval(e.a, env)
	if err != nil {
		return 0, err
	}
	var b float64
	if e.b != nil {
		if b, err = Eval(e.b, env); err != nil {
			return 0, err
		}
	}
	return apply(e.op, a, b), nil
}

type freeSymbolError struct{ name string }

func (e *freeSymbolError) Error() string { return ErrFreeSymbol.Error() + " " + strconv.Quote(e.name) }
func (e *freeSymbolError) Unwrap() error { return ErrFreeSymbol }

// Symbols returns the sorted, distinct symbol names occurring in e.
func Symbols(e *Expr) []string {
	seen := make(map[string]struct{})
	collect(e, seen)
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

func collect(e *Expr, seen map[string]struct{}) {
	switch e.op {
	case OpConst:
		return
	case OpSym:
		seen[e.name] = struct{}{}
		return
	}
	collect(e.a, seen)
	if e.b != nil {
		collect(e.b, seen)
	}
}

// DependsOn reports whether e references any of the given symbols.
func DependsOn(e *Expr, names map[string]bool) bool {
	switch e.op {
	case OpConst:
		return false
	case OpSym:
		return names[e.name]
	}
	if DependsOn(e.a, names) {
		return true
	}
	return e.b != nil && DependsOn(e.b, names)
}

// Equal reports structural equality.
func Equal(a, b *Expr) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil || a.op != b.op {
		return false
	}
	switch a.op {
	case OpConst:
		return a.val == b.val
	case OpSym:
		return a.name == b.name
	}
	return Equal(a.a, b.a) && Equal(a.b, b.b)
}

// String renders e in the syntax accepted by Parse.
func (e *Expr) String() string {
	switch e.op {
	case OpConst:
		s := strconv.FormatFloat(e.val, 'g', -1, 64)
		if e.val < 0 {
			return "(" + s + ")"
		}
		return s
	case OpSym:
		return e.name
	case OpNeg:
		return "(-" + e.a.String() + ")"
	case OpPow:
		return "pow(" + e.a.String() + ", " + e.b.String() + ")"
	}
	if sign, ok := binarySigns[e.op]; ok {
		return "(" + e.a.String() + sign + e.b.String() + ")"
	}
	return opNames[e.op] + "(" + e.a.String() + ")"
}
