package rootfinder

import (
	"fmt"
	"slices"
	"sync"
)

// Strategy describes a registered solving strategy.
type Strategy struct {
	Name    string
	Doc     string
	MaxIter int
	// Chord reuses the first Jacobian factorisation for the whole solve.
	Chord bool
}

var (
	mu         sync.RWMutex
	strategies = map[string]*Strategy{
		"newton": {
			Name:    "newton",
			Doc:     "Full Newton iteration; the Jacobian is re-estimated by central differences and refactorised every iteration.",
			MaxIter: 1000,
		},
		"fast_newton": {
			Name:    "fast_newton",
			Doc:     "Chord iteration; the Jacobian is estimated and factorised once per solve and reused.",
			MaxIter: 100,
			Chord:   true,
		},
	}
)

// Register adds or replaces a strategy.
func Register(s Strategy) {
	mu.Lock()
	defer mu.Unlock()
	strategies[s.Name] = &s
}

func lookup(name string) (*Strategy, bool) {
	mu.RLock()
	defer mu.RUnlock()
	s, ok := strategies[name]
	return s, ok
}

func Has(name string) bool {
	_, ok := lookup(name)
	return ok
}

func Doc(name string) (string, error) {
	s, ok := lookup(name)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	return s.Doc, nil
}

func Strategies() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(strategies))
	for n := range strategies {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
