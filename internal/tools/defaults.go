package tools

import "fmt"

// Provider is anything that contributes tools.
type Provider interface {
	Tools() []Tool
}

// NewRegistryWith registers every tool from the given providers.
func NewRegistryWith(providers ...Provider) (*Registry, error) {
	r := NewRegistry()
	for _, p := range providers {
		for _, t := range p.Tools() {
			if err := r.Register(t); err != nil {
				return nil, fmt.Errorf("registering tools: %w", err)
			}
		}
	}
	return r, nil
}
