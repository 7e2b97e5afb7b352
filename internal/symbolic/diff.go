package symbolic

// Diff returns the partial derivative of e with respect to the symbol name.
func Diff(e *Expr, name string) *Expr {
	switch e.op {
	case OpConst:
		return zero
	case OpSym:
		if e.name == name {
			return one
		}
		return zero
	}

	da := Diff(e.a, name)
	var db *Expr
	if e.b != nil {
		db = Diff(e.b, name)
	}

	switch e.op {
	case OpAdd:
		return Add(da, db)
	case OpSub:
		return Sub(da, db)
	case OpMul:
		return Add(Mul(da, e.b), Mul(e.a, db))
	case OpDiv:
		if db.IsZero() {
			return Div(da, e.b)
		}
		return Div(Sub(Mul(da, e.b), Mul(e.a, db)), Mul(e.b, e.b))
	case OpNeg:
		return Neg(da)
	case OpPow:
		if db.IsZero() {
			return Mul(Mul(e.b, Pow(e.a, Sub(e.b, one))), da)
		}
		return Mul(e, Add(Mul(db, Log(e.a)), Div(Mul(e.b, da), e.a)))
	}

	if da.IsZero() {
		return zero
	}
	var outer *Expr
	switch e.op {
	case OpSin:
		outer = Cos(e.a)
	case OpCos:
		outer = Neg(Sin(e.a))
	case OpTan:
		outer = Add(one, Mul(e, e))
	case OpExp:
		outer = e
	case OpLog:
		return Div(da, e.a)
	case OpSqrt:
		return Div(da, Mul(Const(2), e))
	case OpTanh:
		outer = Sub(one, Mul(e, e))
	}
	return Mul(outer, da)
}

// Gradient returns the derivatives of e with respect to each symbol in names.
func Gradient(e *Expr, names []string) []*Expr {
	g := make([]*Expr, len(names))
	for i, n := range names {
		g[i] = Diff(e, n)
	}
	return g
}
