// Package source keeps the named strategies that can supply PubMed records.
package source

import (
	"fmt"
	"sort"

	"EBMS/internal/ports"
)

// Registry keeps a mapping from source names to their implementations.
type Registry struct {
	sources map[string]ports.PubmedSource
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{sources: map[string]ports.PubmedSource{}}
}

// Register adds or replaces a source implementation.
func (r *Registry) Register(src ports.PubmedSource) {
	if r.sources == nil {
		r.sources = map[string]ports.PubmedSource{}
	}
	r.sources[src.Name()] = src
}

// Resolve returns a source by name or an error if it is absent.
func (r *Registry) Resolve(name string) (ports.PubmedSource, error) {
	if src, ok := r.sources[name]; ok {
		return src, nil
	}
	return nil, fmt.Errorf("pubmed source %s is not registered", name)
}

// Names lists the registered sources alphabetically.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
