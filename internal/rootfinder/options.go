package rootfinder

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

const DefaultAbsTol = 1e-12

// Options configures a Rootfinder. Zero values fall back to the strategy
// defaults.
type Options struct {
	AbsTol         float64 `yaml:"abstol"`
	MaxIter        int     `yaml:"max_iter"`
	JacobianStep   float64 `yaml:"jacobian_step"`
	ImplicitInput  int     `yaml:"implicit_input"`
	ImplicitOutput int     `yaml:"implicit_output"`
}

// DecodeOptions overlays a generic option dictionary onto base. Unknown keys
// are rejected.
func DecodeOptions(base Options, dict map[string]any) (Options, error) {
	if len(dict) == 0 {
		return base, nil
	}
	raw, err := yaml.Marshal(dict)
	if err != nil {
		return base, fmt.Errorf("%w: %v", ErrBadOptions, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	out := base
	if err := dec.Decode(&out); err != nil {
		return base, fmt.Errorf("%w: %v", ErrBadOptions, err)
	}
	return out, nil
}
