package llm

import (
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/malinsight/pkg/domain/interfaces"
	"github.com/secmon-lab/malinsight/pkg/domain/model"
	"github.com/secmon-lab/malinsight/pkg/domain/types"
)

// Registry maps provider kinds to adapters. Adding a provider means
// registering one more adapter; the others are untouched.
type Registry struct {
	providers map[types.ProviderKind]interfaces.Provider
}

// NewRegistry creates a registry holding providers. A later provider of the
// same kind replaces an earlier one.
func NewRegistry(providers ...interfaces.Provider) *Registry {
	r := &Registry{
		providers: make(map[types.ProviderKind]interfaces.Provider),
	}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register adds or replaces the adapter for p.Kind()
func (r *Registry) Register(p interfaces.Provider) {
	if p == nil {
		return
	}
	r.providers[p.Kind()] = p
}

// Get returns the adapter for kind
func (r *Registry) Get(kind types.ProviderKind) (interfaces.Provider, error) {
	p, ok := r.providers[kind]
	if !ok {
		return nil, goerr.Wrap(model.ErrUnknownProvider, "provider is not available",
			goerr.V(model.ProviderKey, kind))
	}
	return p, nil
}

// Kinds returns registered kinds in display order
func (r *Registry) Kinds() []types.ProviderKind {
	var kinds []types.ProviderKind
	for _, k := range types.AllProviderKinds() {
		if _, ok := r.providers[k]; ok {
			kinds = append(kinds, k)
		}
	}
	return kinds
}
