package config

import (
	"bytes"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/dynsens/internal/dae"
	"github.com/san-kum/dynsens/internal/integrator"
	"github.com/san-kum/dynsens/internal/symbolic"
)

const DefaultSolver = "rk"

// ProblemFile is the YAML form of an integration problem. Variables map the
// input roles (t x z p rx rz rp) to symbol names, Equations map the output
// roles (ode alg quad rode ralg rquad) to expressions, and Inputs map the
// integrator inputs (x0 p z0 rx0 rp rz0) to values.
type ProblemFile struct {
	Name        string               `yaml:"name"`
	Description string               `yaml:"description,omitempty"`
	Solver      string               `yaml:"solver"`
	Variables   map[string][]string  `yaml:"variables"`
	Equations   map[string][]string  `yaml:"equations"`
	Inputs      map[string][]float64 `yaml:"inputs,omitempty"`
	Options     map[string]any       `yaml:"options,omitempty"`
}

func DefaultProblemFile() *ProblemFile {
	return &ProblemFile{Solver: DefaultSolver}
}

// Load reads a problem file. Unknown keys are rejected.
func Load(path string) (*ProblemFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*ProblemFile, error) {
	pf := DefaultProblemFile()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(pf); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if pf.Name == "" {
		return nil, fmt.Errorf("config: problem has no name")
	}
	return pf, nil
}

func Save(path string, pf *ProblemFile) error {
	data, err := yaml.Marshal(pf)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Problem parses the equations and binds them to the declared variables.
func (pf *ProblemFile) Problem() (*dae.Problem, error) {
	m := make(map[string]symbolic.Matrix, len(pf.Variables)+len(pf.Equations))
	for role, names := range pf.Variables {
		m[role] = symbolic.Named(names...)
	}
	for role, srcs := range pf.Equations {
		es := make([]*symbolic.Expr, len(srcs))
		for i, src := range srcs {
			e, err := symbolic.Parse(src)
			if err != nil {
				return nil, fmt.Errorf("config: %s[%d]: %w", role, i, err)
			}
			es[i] = e
		}
		m[role] = symbolic.ColumnOf(es...)
	}
	prob, err := dae.FromMap(m)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", pf.Name, err)
	}
	return prob, nil
}

// IntegratorOptions decodes the options over the integrator defaults.
func (pf *ProblemFile) IntegratorOptions() (integrator.Options, error) {
	return integrator.ParseOptions(pf.Options)
}

// Args returns the integrator inputs in slot order. Missing inputs are nil
// and read as zeros.
func (pf *ProblemFile) Args() ([][]float64, error) {
	arg := make([][]float64, integrator.NumIn)
	for name, v := range pf.Inputs {
		s, err := integrator.InputIndex(name)
		if err != nil {
			return nil, err
		}
		arg[s] = slices.Clone(v)
	}
	return arg, nil
}

// Build constructs the integrator described by the file.
func (pf *ProblemFile) Build(logger *slog.Logger) (*integrator.Integrator, error) {
	prob, err := pf.Problem()
	if err != nil {
		return nil, err
	}
	opts, err := pf.IntegratorOptions()
	if err != nil {
		return nil, err
	}
	solver := pf.Solver
	if solver == "" {
		solver = DefaultSolver
	}
	return integrator.New(pf.Name, solver, prob, opts, logger)
}

// Clone returns a deep copy, so presets can be edited by callers.
func (pf *ProblemFile) Clone() *ProblemFile {
	out := *pf
	out.Variables = make(map[string][]string, len(pf.Variables))
	for k, v := range pf.Variables {
		out.Variables[k] = slices.Clone(v)
	}
	out.Equations = make(map[string][]string, len(pf.Equations))
	for k, v := range pf.Equations {
		out.Equations[k] = slices.Clone(v)
	}
	if pf.Inputs != nil {
		out.Inputs = make(map[string][]float64, len(pf.Inputs))
		for k, v := range pf.Inputs {
			out.Inputs[k] = slices.Clone(v)
		}
	}
	out.Options = maps.Clone(pf.Options)
	return &out
}
