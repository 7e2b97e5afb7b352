// Package function defines the numeric callable contract shared by oracles,
// discrete step functions and rootfinders: a fixed number of positional
// input and output vectors with fixed lengths.
package function

import (
	"errors"
	"fmt"
)

// ErrDimension indicates a buffer whose length does not match the slot.
var ErrDimension = errors.New("function: buffer length mismatch")

// Function is a numeric map from NIn input vectors to NOut output vectors.
//
// Eval treats a nil arg[i] as a vector of zeros and skips a nil res[i].
// Implementations must be safe for concurrent Eval calls.
type Function interface {
	Name() string
	NIn() int
	NOut() int
	NnzIn(i int) int
	NnzOut(i int) int
	Eval(arg, res [][]float64) error
}

type EvalFunc func(arg, res [][]float64) error

// Func is a Function backed by a closure.
type Func struct {
	name   string
	nnzIn  []int
	nnzOut []int
	eval   EvalFunc
}

func New(name string, nnzIn, nnzOut []int, eval EvalFunc) *Func {
	return &Func{name: name, nnzIn: nnzIn, nnzOut: nnzOut, eval: eval}
}

func (f *Func) Name() string                   { return f.name }
func (f *Func) NIn() int                       { return len(f.nnzIn) }
func (f *Func) NOut() int                      { return len(f.nnzOut) }
func (f *Func) NnzIn(i int) int                { return f.nnzIn[i] }
func (f *Func) NnzOut(i int) int               { return f.nnzOut[i] }
func (f *Func) Eval(arg, res [][]float64) error { return f.eval(arg, res) }

// Check validates buffer counts and lengths against f.
func Check(f Function, arg, res [][]float64) error {
	if len(arg) != f.NIn() || len(res) != f.NOut() {
		return fmt.Errorf("%w: %s takes %d inputs and %d outputs, got %d and %d",
			ErrDimension, f.Name(), f.NIn(), f.NOut(), len(arg), len(res))
	}
	for i, a := range arg {
		if a != nil && len(a) != f.NnzIn(i) {
			return fmt.Errorf("%w: %s input %d has length %d, want %d", ErrDimension, f.Name(), i, len(a), f.NnzIn(i))
		}
	}
	for i, r := range res {
		if r != nil && len(r) != f.NnzOut(i) {
			return fmt.Errorf("%w: %s output %d has length %d, want %d", ErrDimension, f.Name(), i, len(r), f.NnzOut(i))
		}
	}
	return nil
}

// Zeros returns a or, when a is nil, a fresh zero vector of length n.
func Zeros(a []float64, n int) []float64 {
	if a != nil {
		return a
	}
	return make([]float64, n)
}
