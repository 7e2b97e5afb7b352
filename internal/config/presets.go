package config

import (
	"fmt"
	"slices"
)

var Presets = map[string]*ProblemFile{
	"constant_rate": {
		Name: "constant_rate", Solver: "rk",
		Description: "dx/dt = p, reported on [0, 1, 2]",
		Variables:   map[string][]string{"x": {"x"}, "p": {"rate"}},
		Equations:   map[string][]string{"ode": {"rate"}},
		Inputs:      map[string][]float64{"x0": {1}, "p": {2}},
		Options:     map[string]any{"grid": []float64{0, 1, 2}, "output_t0": true},
	},
	"decay": {
		Name: "decay", Solver: "rk",
		Description: "first order decay with the integral of the state as quadrature",
		Variables:   map[string][]string{"x": {"x"}, "p": {"k"}},
		Equations:   map[string][]string{"ode": {"-k*x"}, "quad": {"x"}},
		Inputs:      map[string][]float64{"x0": {1}, "p": {0.5}},
		Options:     map[string]any{"tf": 4.0, "number_of_finite_elements": 40},
	},
	"oscillator": {
		Name: "oscillator", Solver: "rk",
		Description: "undamped harmonic oscillator with its energy as quadrature",
		Variables:   map[string][]string{"x": {"pos", "vel"}, "p": {"w"}},
		Equations: map[string][]string{
			"ode":  {"vel", "-w*w*pos"},
			"quad": {"0.5*(vel*vel + w*w*pos*pos)"},
		},
		Inputs: map[string][]float64{"x0": {1, 0}, "p": {2}},
		Options: map[string]any{
			"grid":                      []float64{0, 0.5, 1, 1.5, 2, 2.5, 3},
			"output_t0":                 true,
			"number_of_finite_elements": 120,
		},
	},
	"relaxation": {
		Name: "relaxation", Solver: "implicit_euler",
		Description: "index-1 DAE x' = -z, 0 = z - c*x",
		Variables:   map[string][]string{"x": {"x"}, "z": {"z"}, "p": {"c"}},
		Equations:   map[string][]string{"ode": {"-z"}, "alg": {"z - c*x"}},
		Inputs:      map[string][]float64{"x0": {1}, "p": {1}},
		Options:     map[string]any{"tf": 2.0, "number_of_finite_elements": 200},
	},
	"vanderpol": {
		Name: "vanderpol", Solver: "implicit_euler",
		Description: "stiff Van der Pol oscillator",
		Variables:   map[string][]string{"x": {"u", "v"}, "p": {"mu"}},
		Equations:   map[string][]string{"ode": {"v", "mu*(1 - u*u)*v - u"}},
		Inputs:      map[string][]float64{"x0": {2, 0}, "p": {5}},
		Options: map[string]any{
			"tf":                        10.0,
			"number_of_finite_elements": 500,
			"rootfinder":                "fast_newton",
		},
	},
	"adjoint_decay": {
		Name: "adjoint_decay", Solver: "rk",
		Description: "decay with its adjoint: rxf = dxf/dx0 and rqf = dxf/dk",
		Variables:   map[string][]string{"x": {"x"}, "p": {"k"}, "rx": {"lam"}},
		Equations: map[string][]string{
			"ode":   {"-k*x"},
			"rode":  {"-k*lam"},
			"rquad": {"-x*lam"},
		},
		Inputs:  map[string][]float64{"x0": {1}, "p": {0.5}, "rx0": {1}},
		Options: map[string]any{"tf": 2.0, "number_of_finite_elements": 100},
	},
}

// GetPreset returns a copy of the named preset.
func GetPreset(name string) (*ProblemFile, error) {
	pf, ok := Presets[name]
	if !ok {
		return nil, fmt.Errorf("unknown preset %q (available: %v)", name, ListPresets())
	}
	return pf.Clone(), nil
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
