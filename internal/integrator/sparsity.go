package integrator

import (
	"github.com/san-kum/dynsens/internal/dae"
	"github.com/san-kum/dynsens/internal/sparsity"
)

// spJacDAE is the dependency pattern of the forward implicit block,
// [d ode/dx, d ode/dz; d alg/dx, d alg/dz] with a structural diagonal.
func (in *Integrator) spJacDAE() sparsity.Pattern {
	return in.implicitBlock(dae.X, dae.Z, dae.ODE, dae.ALG, in.dims.NX, in.dims.NZ)
}

// spJacRDAE is the backward counterpart of spJacDAE.
func (in *Integrator) spJacRDAE() sparsity.Pattern {
	return in.implicitBlock(dae.RX, dae.RZ, dae.RODE, dae.RALG, in.dims.NRX, in.dims.NRZ)
}

func (in *Integrator) implicitBlock(x, z dae.Input, ode, alg dae.Output, nx, nz int) sparsity.Pattern {
	o := in.oracle
	jac := o.SparsityJac(x, ode)
	if nz > 0 {
		jac = sparsity.BlockCat(jac, o.SparsityJac(z, ode), o.SparsityJac(x, alg), o.SparsityJac(z, alg))
	}
	return jac.Add(sparsity.Diag(nx + nz))
}

// SparsityDAE returns the forward implicit block pattern and its block
// triangular form.
func (in *Integrator) SparsityDAE() (sparsity.Pattern, sparsity.BTF) {
	return in.jacDAE, in.btfDAE
}

// SparsityRDAE is SparsityDAE for the backward problem. Both are empty
// without one.
func (in *Integrator) SparsityRDAE() (sparsity.Pattern, sparsity.BTF) {
	return in.jacRDAE, in.btfRDAE
}

// SpFwd sets every output entry to the union of the input bits it may depend
// on. The trajectory outputs get the same bits in every block. Nil slots are
// skipped on both sides.
func (in *Integrator) SpFwd(arg, res [][]sparsity.Bvec) {
	d := in.dims
	o := in.oracle

	xz := make([]sparsity.Bvec, d.NX+d.NZ)
	tx, tz := xz[:d.NX], xz[d.NX:]
	a := make([][]sparsity.Bvec, dae.NumIn)
	r := make([][]sparsity.Bvec, dae.NumOut)
	a[dae.X], a[dae.P] = arg[X0], arg[P]
	r[dae.ODE], r[dae.ALG] = tx, tz
	o.SpFwd(a, r)
	orInto(tx, arg[X0])
	sparsity.SpSolve(in.jacDAE, in.btfDAE, xz, xz, false)

	repeat(res[XF], tx)
	repeat(res[ZF], tz)
	if d.NQ > 0 && res[QF] != nil {
		qf := make([]sparsity.Bvec, d.NQ)
		clear(r)
		a[dae.X], a[dae.Z] = tx, tz
		r[dae.QUAD] = qf
		o.SpFwd(a, r)
		repeat(res[QF], qf)
	}

	if !d.HasBackward() {
		return
	}
	rxz := make([]sparsity.Bvec, d.NRX+d.NRZ)
	trx, trz := rxz[:d.NRX], rxz[d.NRX:]
	clear(a)
	clear(r)
	a[dae.X], a[dae.Z], a[dae.P] = tx, tz, arg[P]
	a[dae.RX], a[dae.RP] = arg[RX0], arg[RP]
	r[dae.RODE], r[dae.RALG] = trx, trz
	o.SpFwd(a, r)
	orInto(trx, arg[RX0])
	sparsity.SpSolve(in.jacRDAE, in.btfRDAE, rxz, rxz, false)

	if res[RXF] != nil {
		copy(res[RXF], trx)
	}
	if res[RZF] != nil {
		copy(res[RZF], trz)
	}
	if d.NRQ > 0 && res[RQF] != nil {
		a[dae.RX], a[dae.RZ] = trx, trz
		r[dae.RODE], r[dae.RALG] = nil, nil
		r[dae.RQUAD] = res[RQF]
		o.SpFwd(a, r)
	}
}

// SpRev ORs the output bits into every input entry they may depend on and
// clears the outputs. Seeds on every block of a trajectory output count.
// The algebraic inputs are guesses and never receive bits.
func (in *Integrator) SpRev(arg, res [][]sparsity.Bvec) {
	d := in.dims
	o := in.oracle

	xz := make([]sparsity.Bvec, d.NX+d.NZ)
	tx, tz := xz[:d.NX], xz[d.NX:]
	gather(tx, res[XF])
	gather(tz, res[ZF])
	a := make([][]sparsity.Bvec, dae.NumIn)
	r := make([][]sparsity.Bvec, dae.NumOut)

	if d.HasBackward() {
		rxz := make([]sparsity.Bvec, d.NRX+d.NRZ)
		trx, trz := rxz[:d.NRX], rxz[d.NRX:]
		gather(trx, res[RXF])
		gather(trz, res[RZF])

		a[dae.X], a[dae.Z], a[dae.P] = tx, tz, arg[P]
		a[dae.RX], a[dae.RZ], a[dae.RP] = trx, trz, arg[RP]
		r[dae.RQUAD] = res[RQF]
		o.SpRev(a, r)

		sparsity.SpSolve(in.jacRDAE, in.btfRDAE, rxz, rxz, true)
		orInto(arg[RX0], trx)

		r[dae.RQUAD] = nil
		r[dae.RODE], r[dae.RALG] = trx, trz
		a[dae.RX], a[dae.RZ] = arg[RX0], nil
		o.SpRev(a, r)
	}

	if d.NQ > 0 && res[QF] != nil {
		qf := make([]sparsity.Bvec, d.NQ)
		gather(qf, res[QF])
		clear(a)
		clear(r)
		a[dae.X], a[dae.Z], a[dae.P] = tx, tz, arg[P]
		r[dae.QUAD] = qf
		o.SpRev(a, r)
	}

	sparsity.SpSolve(in.jacDAE, in.btfDAE, xz, xz, true)
	orInto(arg[X0], tx)

	clear(a)
	clear(r)
	a[dae.X], a[dae.P] = arg[X0], arg[P]
	r[dae.ODE], r[dae.ALG] = tx, tz
	o.SpRev(a, r)
}

func orInto(dst, src []sparsity.Bvec) {
	if dst == nil || src == nil {
		return
	}
	for i := range dst {
		dst[i] |= src[i]
	}
}

// repeat writes v into every block of a trajectory slot.
func repeat(dst, v []sparsity.Bvec) {
	if dst == nil || len(v) == 0 {
		return
	}
	for off := 0; off < len(dst); off += len(v) {
		copy(dst[off:], v)
	}
}

// gather ORs every block of a trajectory slot into dst and clears the slot.
func gather(dst, src []sparsity.Bvec) {
	if src == nil || len(dst) == 0 {
		return
	}
	for off := 0; off < len(src); off += len(dst) {
		for i := range dst {
			dst[i] |= src[off+i]
		}
	}
	clear(src)
}
