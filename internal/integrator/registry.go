package integrator

import (
	"fmt"
	"slices"
	"sync"
)

// Creator builds the stepping scheme of a freshly configured integrator.
type Creator func(in *Integrator) (Scheme, error)

// Plugin is a registered solver.
type Plugin struct {
	Name    string
	Doc     string
	Creator Creator
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Plugin)
)

// Register adds a solver plugin, replacing any plugin of the same name.
func Register(p Plugin) {
	if p.Name == "" || p.Creator == nil {
		panic("integrator: Register needs a name and a creator")
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[p.Name] = p
}

// HasPlugin reports whether a solver of that name is registered.
func HasPlugin(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[name]
	return ok
}

// LoadPlugin returns the named plugin.
func LoadPlugin(name string) (Plugin, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	p, ok := registry[name]
	if !ok {
		return Plugin{}, fmt.Errorf("%w %q (available: %v)", ErrUnknownSolver, name, pluginNames())
	}
	return p, nil
}

// Doc returns the documentation string of the named plugin.
func Doc(name string) (string, error) {
	p, err := LoadPlugin(name)
	if err != nil {
		return "", err
	}
	return p.Doc, nil
}

// Plugins lists the registered solver names in sorted order.
func Plugins() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return pluginNames()
}

func pluginNames() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
