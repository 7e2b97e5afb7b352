package integrator

import (
	"fmt"

	"github.com/san-kum/dynsens/internal/dae"
	"github.com/san-kum/dynsens/internal/symbolic"
)

// AugOffset splits the slots of an augmented problem into direction blocks.
// Every field starts at 0 with the nondifferentiated block, followed by one
// block per direction. Offsets count entries of the augmented column.
type AugOffset struct {
	X, Z, Q, P     []int
	RX, RZ, RQ, RP []int
}

// AugOffset returns the block offsets of a problem augmented with nfwd
// forward and nadj adjoint directions.
func (in *Integrator) AugOffset(nfwd, nadj int) AugOffset {
	d := in.dims
	o := AugOffset{
		X: []int{0}, Z: []int{0}, Q: []int{0}, P: []int{0},
		RX: []int{0}, RZ: []int{0}, RQ: []int{0}, RP: []int{0},
	}
	push := func(off *[]int, n int) {
		*off = append(*off, (*off)[len(*off)-1]+n)
	}
	for dir := -1; dir < nfwd; dir++ {
		push(&o.X, d.NX)
		push(&o.Z, d.NZ)
		push(&o.Q, d.NQ)
		push(&o.P, d.NP)
		push(&o.RX, d.NRX)
		push(&o.RZ, d.NRZ)
		push(&o.RQ, d.NRQ)
		push(&o.RP, d.NRP)
	}
	for dir := 0; dir < nadj; dir++ {
		push(&o.RX, d.NX)
		push(&o.RZ, d.NZ)
		push(&o.RQ, d.NP)
		push(&o.RP, d.NQ)
		push(&o.X, d.NRX)
		push(&o.Z, d.NRZ)
		push(&o.Q, d.NRP)
		push(&o.P, d.NRQ)
	}
	return o
}

func (o AugOffset) in(s InputSlot) []int {
	return [NumIn][]int{o.X, o.P, o.Z, o.RX, o.RP, o.RZ}[s]
}

func (o AugOffset) out(s OutputSlot) []int {
	return [NumOut][]int{o.X, o.Q, o.Z, o.RX, o.RQ, o.RZ}[s]
}

func (in *Integrator) problem() (*dae.Problem, error) {
	sym, ok := in.oracle.(dae.Symbolic)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotSymbolic, in.oracle.Name())
	}
	return sym.Problem(), nil
}

// AugFwd returns the problem extended with nfwd forward sensitivity
// directions. Each direction adds a seed symbol per state, algebraic,
// parameter and backward input, and the matching directional derivative
// per right-hand side.
func (in *Integrator) AugFwd(nfwd int) (*dae.Problem, AugOffset, error) {
	prob, err := in.problem()
	if err != nil {
		return nil, AugOffset{}, err
	}
	if nfwd < 0 {
		return nil, AugOffset{}, fmt.Errorf("%w: negative direction count %d", ErrConfig, nfwd)
	}
	arg, res := prob.In, prob.Out

	var augIn [dae.NumIn][]symbolic.Matrix
	var augOut [dae.NumOut][]symbolic.Matrix
	for i := dae.X; i < dae.NumIn; i++ {
		augIn[i] = append(augIn[i], arg[i])
	}
	for o := range res {
		augOut[o] = append(augOut[o], res[o])
	}

	seeds := make([][]symbolic.Matrix, nfwd)
	for d := range seeds {
		pref := fmt.Sprintf("aug%d_", d)
		seed := make([]symbolic.Matrix, dae.NumIn)
		seed[dae.T] = symbolic.Zeros(arg[dae.T].Sp)
		for i := dae.X; i < dae.NumIn; i++ {
			seed[i] = symbolic.SymMatrix(pref+i.String(), arg[i].Sp)
			augIn[i] = append(augIn[i], seed[i])
		}
		seeds[d] = seed
	}
	sens, err := symbolic.Forward(res[:], arg[:], seeds)
	if err != nil {
		return nil, AugOffset{}, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	shape := [dae.NumOut]dae.Input{dae.X, dae.Z, -1, dae.RX, dae.RZ, -1}
	for d := range sens {
		for o := range res {
			sp := res[o].Sp
			if shape[o] >= 0 {
				sp = arg[shape[o]].Sp
			}
			augOut[o] = append(augOut[o], symbolic.Project(sens[d][o], sp))
		}
	}

	aug, err := assemble(arg[dae.T], augIn, augOut)
	if err != nil {
		return nil, AugOffset{}, err
	}
	return aug, in.AugOffset(nfwd, 0), nil
}

// AugAdj returns the problem extended with nadj adjoint directions. Seeds
// of the forward right-hand sides become backward states and seeds of the
// backward right-hand sides become forward states; the reverse derivatives
// with respect to each input become the right-hand side of its counterpart.
func (in *Integrator) AugAdj(nadj int) (*dae.Problem, AugOffset, error) {
	prob, err := in.problem()
	if err != nil {
		return nil, AugOffset{}, err
	}
	if nadj < 0 {
		return nil, AugOffset{}, fmt.Errorf("%w: negative direction count %d", ErrConfig, nadj)
	}
	arg, res := prob.In, prob.Out

	var augIn [dae.NumIn][]symbolic.Matrix
	var augOut [dae.NumOut][]symbolic.Matrix
	for i := dae.X; i < dae.NumIn; i++ {
		augIn[i] = append(augIn[i], arg[i])
	}
	for o := range res {
		augOut[o] = append(augOut[o], res[o])
	}

	// Output seed o is carried by input seedRole[o] and shaped like seedShape[o].
	seedRole := [dae.NumOut]dae.Input{dae.RX, dae.RZ, dae.RP, dae.X, dae.Z, dae.P}
	seedShape := [dae.NumOut]symbolic.Matrix{arg[dae.X], arg[dae.Z], res[dae.QUAD], arg[dae.RX], arg[dae.RZ], res[dae.RQUAD]}
	seeds := make([][]symbolic.Matrix, nadj)
	for d := range seeds {
		pref := fmt.Sprintf("aug%d_", d)
		seed := make([]symbolic.Matrix, dae.NumOut)
		for o := range seed {
			seed[o] = symbolic.SymMatrix(pref+dae.Output(o).String(), seedShape[o].Sp)
			augIn[seedRole[o]] = append(augIn[seedRole[o]], seed[o])
		}
		seeds[d] = seed
	}
	sens, err := symbolic.Reverse(res[:], arg[:], seeds)
	if err != nil {
		return nil, AugOffset{}, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	// The sensitivity with respect to input i feeds equation sensEq[i].
	sensEq := [dae.NumIn]dae.Output{-1, dae.RODE, dae.RALG, dae.RQUAD, dae.ODE, dae.ALG, dae.QUAD}
	for d := range sens {
		for i := dae.X; i < dae.NumIn; i++ {
			augOut[sensEq[i]] = append(augOut[sensEq[i]], symbolic.Project(sens[d][i], arg[i].Sp))
		}
	}

	aug, err := assemble(arg[dae.T], augIn, augOut)
	if err != nil {
		return nil, AugOffset{}, err
	}
	return aug, in.AugOffset(0, nadj), nil
}

func assemble(t symbolic.Matrix, augIn [dae.NumIn][]symbolic.Matrix, augOut [dae.NumOut][]symbolic.Matrix) (*dae.Problem, error) {
	aug := &dae.Problem{}
	aug.In[dae.T] = t
	for i := dae.X; i < dae.NumIn; i++ {
		aug.In[i] = symbolic.Vertcat(augIn[i]...)
	}
	for o := range augOut {
		aug.Out[o] = symbolic.Vertcat(augOut[o]...)
	}
	if err := aug.Validate(); err != nil {
		return nil, fmt.Errorf("%w: augmented problem: %w", ErrConfig, err)
	}
	return aug, nil
}
