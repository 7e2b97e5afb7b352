package symbolic

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strconv"
)

var unaryFuncs = map[string]func(*Expr) *Expr{
	"sin":  Sin,
	"cos":  Cos,
	"tan":  Tan,
	"exp":  Exp,
	"log":  Log,
	"sqrt": Sqrt,
	"tanh": Tanh,
}

// Parse reads an expression written in Go syntax: numbers, identifiers,
// + - * /, parentheses, the unary functions sin cos tan exp log sqrt tanh and
// pow(a, b). Identifiers become symbols.
func Parse(src string) (*Expr, error) {
	node, err := parser.ParseExpr(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrParse, src, err)
	}
	e, err := convert(node)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrParse, src, err)
	}
	return e, nil
}

// MustParse is Parse for expressions known to be valid.
func MustParse(src string) *Expr {
	e, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return e
}

func convert(node ast.Expr) (*Expr, error) {
	switch n := node.(type) {
	case *ast.BasicLit:
		if n.Kind != token.INT && n.Kind != token.FLOAT {
			return nil, fmt.Errorf("unsupported literal %s", n.Value)
		}
		v, err := strconv.ParseFloat(n.Value, 64)
		if err != nil {
			return nil, err
		}
		return Const(v), nil
	case *ast.Ident:
		return Sym(n.Name), nil
	case *ast.ParenExpr:
		return convert(n.X)
	case *ast.UnaryExpr:
		x, err := convert(n.X)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case token.SUB:
			return Neg(x), nil
		case token.ADD:
			return x, nil
		}
		return nil, fmt.Errorf("unsupported unary operator %s", n.Op)
	case *ast.BinaryExpr:
		x, err := convert(n.X)
		if err != nil {
			return nil, err
		}
		y, err := convert(n.Y)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case token.ADD:
			return Add(x, y), nil
		case token.SUB:
			return Sub(x, y), nil
		case token.MUL:
			return Mul(x, y), nil
		case token.QUO:
			return Div(x, y), nil
		}
		return nil, fmt.Errorf("unsupported operator %s", n.Op)
	case *ast.CallExpr:
		fn, ok := n.Fun.(*ast.Ident)
		if !ok {
			return nil, fmt.Errorf("unsupported call")
		}
		args := make([]*Expr, len(n.Args))
		for i, a := range n.Args {
			e, err := convert(a)
			if err != nil {
				return nil, err
			}
			args[i] = e
		}
		if fn.Name == "pow" {
			if len(args) != 2 {
				return nil, fmt.Errorf("pow takes 2 arguments, got %d", len(args))
			}
			return Pow(args[0], args[1]), nil
		}
		f, ok := unaryFuncs[fn.Name]
		if !ok {
			return nil, fmt.Errorf("unknown function %s", fn.Name)
		}
		if len(args) != 1 {
			return nil, fmt.Errorf("%s takes 1 argument, got %d", fn.Name, len(args))
		}
		return f(args[0]), nil
	}
	return nil, fmt.Errorf("unsupported syntax %T", node)
}
