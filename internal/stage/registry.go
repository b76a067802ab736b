package stage

import (
	"context"
	"fmt"
	"sort"
)

// Registry holds the closed set of stage implementations a deployment
// offers. Job creation validates pipeline definitions against Names(), so
// an unknown stage name is unrepresentable past that boundary.
type Registry struct {
	order  []string
	stages map[string]Stage
}

// NewRegistry builds a registry from the given stages. Registration order
// is preserved for reporting; duplicate names are rejected.
func NewRegistry(stages ...Stage) (*Registry, error) {
	r := &Registry{stages: make(map[string]Stage, len(stages))}
	for _, s := range stages {
		name := s.Name()
		if name == "" {
			return nil, fmt.Errorf("stage with empty name")
		}
		if _, dup := r.stages[name]; dup {
			return nil, fmt.Errorf("duplicate stage %q", name)
		}
		r.stages[name] = s
		r.order = append(r.order, name)
	}
	return r, nil
}

// Get returns the implementation for a name.
func (r *Registry) Get(name string) (Stage, bool) {
	s, ok := r.stages[name]
	return s, ok
}

// Names returns the registered stage names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Health reports availability and load state for every stage, sorted by
// name for stable output.
func (r *Registry) Health(ctx context.Context) []Health {
	out := make([]Health, 0, len(r.stages))
	for name, s := range r.stages {
		out = append(out, Health{
			Stage:     name,
			Available: s.IsAvailable(ctx),
			Loaded:    s.IsLoaded(ctx),
		})
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Stage < out[k].Stage })
	return out
}

// Reclaimers returns the subset of stages that expose cache reclamation.
func (r *Registry) Reclaimers() []Reclaimer {
	var out []Reclaimer
	for _, name := range r.order {
		if rec, ok := r.stages[name].(Reclaimer); ok {
			out = append(out, rec)
		}
	}
	return out
}
