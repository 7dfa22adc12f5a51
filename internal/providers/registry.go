package providers

import (
	"fmt"

	"github.com/fitfield/tryon-backend/pkg/enums"
)

// Registry resolves adapters by name and carries the configured default.
type Registry struct {
	byName      map[enums.ProviderName]Provider
	defaultName enums.ProviderName
}

// NewRegistry indexes the given adapters. The default must be among them.
func NewRegistry(defaultName enums.ProviderName, adapters ...Provider) (*Registry, error) {
	byName := make(map[enums.ProviderName]Provider, len(adapters))
	for _, adapter := range adapters {
		if adapter == nil {
			continue
		}
		byName[adapter.Name()] = adapter
	}
	if len(byName) == 0 {
		return nil, fmt.Errorf("at least one render provider is required")
	}
	if _, ok := byName[defaultName]; !ok {
		return nil, fmt.Errorf("default provider %q is not registered", defaultName)
	}
	return &Registry{byName: byName, defaultName: defaultName}, nil
}

// Get returns the adapter registered under name.
func (r *Registry) Get(name enums.ProviderName) (Provider, error) {
	adapter, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("unknown render provider %q", name)
	}
	return adapter, nil
}

// Default returns the adapter new renders are routed to.
func (r *Registry) Default() Provider {
	return r.byName[r.defaultName]
}
