package integrator

import (
	"bytes"
	"fmt"
	"maps"
	"slices"

	"gopkg.in/yaml.v3"
)

const (
	DefaultT0         = 0.0
	DefaultTf         = 1.0
	DefaultNK         = 20
	DefaultRootfinder = "newton"
)

// Options configures an Integrator. The yaml names are the option keys
// accepted by ParseOptions and by problem files.
type Options struct {
	Expand     bool      `yaml:"expand"`
	PrintStats bool      `yaml:"print_stats"`
	T0         float64   `yaml:"t0"`
	Tf         float64   `yaml:"tf"`
	Grid       []float64 `yaml:"grid,flow"`
	OutputT0   bool      `yaml:"output_t0"`
	// AugmentedOptions are overlaid on these options when a sensitivity
	// integrator is generated.
	AugmentedOptions map[string]any `yaml:"augmented_options"`

	NumberOfFiniteElements int            `yaml:"number_of_finite_elements"`
	Rootfinder             string         `yaml:"rootfinder"`
	RootfinderOptions      map[string]any `yaml:"rootfinder_options"`
}

func DefaultOptions() Options {
	return Options{
		T0:                     DefaultT0,
		Tf:                     DefaultTf,
		NumberOfFiniteElements: DefaultNK,
		Rootfinder:             DefaultRootfinder,
	}
}

// ParseOptions decodes an option dictionary over the defaults. Unknown keys
// and mistyped values are configuration errors.
func ParseOptions(dict map[string]any) (Options, error) {
	return DefaultOptions().Merge(dict)
}

// Merge returns a copy of o with dict applied on top.
func (o Options) Merge(dict map[string]any) (Options, error) {
	out := o.clone()
	if len(dict) == 0 {
		return out, nil
	}
	raw, err := yaml.Marshal(dict)
	if err != nil {
		return o, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&out); err != nil {
		return o, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return out, nil
}

func (o Options) clone() Options {
	o.Grid = slices.Clone(o.Grid)
	o.AugmentedOptions = maps.Clone(o.AugmentedOptions)
	o.RootfinderOptions = maps.Clone(o.RootfinderOptions)
	return o
}

// augmented returns the options handed to a generated sensitivity
// integrator.
func (o Options) augmented() (Options, error) {
	return o.Merge(o.AugmentedOptions)
}

// grid returns the time grid, falling back to [t0, tf].
func (o Options) grid() []float64 {
	if len(o.Grid) > 0 {
		return slices.Clone(o.Grid)
	}
	return []float64{o.T0, o.Tf}
}
