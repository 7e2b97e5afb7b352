package integrator

import "fmt"

// InputSlot indexes the integrator inputs.
type InputSlot int

const (
	X0 InputSlot = iota
	P
	Z0
	RX0
	RP
	RZ0
	NumIn
)

// OutputSlot indexes the integrator outputs. XF, QF and ZF are trajectories
// with one block per reported grid point; the backward outputs hold a single
// block at the start of the grid.
type OutputSlot int

const (
	XF OutputSlot = iota
	QF
	ZF
	RXF
	RQF
	RZF
	NumOut
)

var inputNames = [NumIn]string{"x0", "p", "z0", "rx0", "rp", "rz0"}
var outputNames = [NumOut]string{"xf", "qf", "zf", "rxf", "rqf", "rzf"}

func (s InputSlot) String() string  { return inputNames[s] }
func (s OutputSlot) String() string { return outputNames[s] }

// InputIndex resolves an input slot by name.
func InputIndex(name string) (InputSlot, error) {
	for i, n := range inputNames {
		if n == name {
			return InputSlot(i), nil
		}
	}
	return 0, fmt.Errorf("%w: no input named %q", ErrConfig, name)
}

// OutputIndex resolves an output slot by name.
func OutputIndex(name string) (OutputSlot, error) {
	for i, n := range outputNames {
		if n == name {
			return OutputSlot(i), nil
		}
	}
	return 0, fmt.Errorf("%w: no output named %q", ErrConfig, name)
}

// Slots of the discrete forward step function F.
const (
	StepT = iota
	StepX
	StepZ
	StepP
	NumStepIn
)

const (
	StepXF = iota
	StepZF
	StepQF
	NumStepOut
)

// Slots of the discrete backward step function G.
const (
	BStepRX = iota
	BStepRZ
	BStepRP
	BStepX
	BStepZ
	BStepP
	BStepT
	NumBStepIn
)

const (
	BStepRXF = iota
	BStepRZF
	BStepRQF
	NumBStepOut
)

// Dims are the nonzero counts of the problem quantities.
type Dims struct {
	NX, NZ, NQ, NP     int
	NRX, NRZ, NRQ, NRP int
}

func (d Dims) String() string {
	return fmt.Sprintf("nx=%d nz=%d nq=%d np=%d nrx=%d nrz=%d nrq=%d nrp=%d",
		d.NX, d.NZ, d.NQ, d.NP, d.NRX, d.NRZ, d.NRQ, d.NRP)
}

// HasBackward reports whether a backward problem is present.
func (d Dims) HasBackward() bool { return d.NRX > 0 }

func (d Dims) in(s InputSlot) int {
	return [NumIn]int{d.NX, d.NP, d.NZ, d.NRX, d.NRP, d.NRZ}[s]
}

func (d Dims) out(s OutputSlot) int {
	return [NumOut]int{d.NX, d.NQ, d.NZ, d.NRX, d.NRQ, d.NRZ}[s]
}
