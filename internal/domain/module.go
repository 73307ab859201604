package domain

import (
	"fmt"
	"slices"
	"sort"
)

// Module is an optional feature area a tenant can enable.
type Module string

const (
	ModuleDeviations  Module = "deviations"
	ModuleChecklists  Module = "checklists"
	ModuleKanban      Module = "kanban"
	ModuleMaintenance Module = "maintenance"
)

var knownModules = []Module{ModuleDeviations, ModuleChecklists, ModuleKanban, ModuleMaintenance}

// ParseModule validates a module name.
func ParseModule(s string) (Module, error) {
	m := Module(s)
	if !slices.Contains(knownModules, m) {
		return "", fmt.Errorf("unknown module %q", s)
	}
	return m, nil
}

// ModuleSet is the set of modules enabled for a tenant.
type ModuleSet map[Module]struct{}

// NewModuleSet builds a set from the given modules.
func NewModuleSet(mods ...Module) ModuleSet {
	s := make(ModuleSet, len(mods))
	for _, m := range mods {
		s[m] = struct{}{}
	}
	return s
}

// ParseModuleSet builds a set from raw names, rejecting unknown ones.
func ParseModuleSet(names []string) (ModuleSet, error) {
	s := make(ModuleSet, len(names))
	for _, n := range names {
		m, err := ParseModule(n)
		if err != nil {
			return nil, err
		}
		s[m] = struct{}{}
	}
	return s, nil
}

// Has reports whether m is enabled. A nil set has no modules.
func (s ModuleSet) Has(m Module) bool {
	_, ok := s[m]
	return ok
}

// Names returns the sorted module names, suitable for storage and JSON.
func (s ModuleSet) Names() []string {
	out := make([]string, 0, len(s))
	for m := range s {
		out = append(out, string(m))
	}
	sort.Strings(out)
	return out
}
