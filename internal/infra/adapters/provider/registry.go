// File: internal/infra/adapters/provider/registry.go
package provider

import (
	"sort"

	"github.com/Le-Sourcier/servcraft-sub004/internal/domain"
	"github.com/Le-Sourcier/servcraft-sub004/internal/domain/ports/adapter"
)

var _ adapter.Registry = (*Registry)(nil)

// Registry holds the provider-id -> adapter mapping built at startup. The
// orchestrator resolves through it instead of branching on provider names.
type Registry struct {
	byName      map[string]adapter.PaymentProvider
	defaultName string
}

func NewRegistry(defaultName string, adapters ...adapter.PaymentProvider) (*Registry, error) {
	r := &Registry{byName: make(map[string]adapter.PaymentProvider, len(adapters))}
	for _, a := range adapters {
		if _, dup := r.byName[a.Name()]; dup {
			return nil, domain.ErrAlreadyExists
		}
		r.byName[a.Name()] = a
	}
	if defaultName == "" && len(adapters) > 0 {
		defaultName = adapters[0].Name()
	}
	if _, ok := r.byName[defaultName]; !ok {
		return nil, domain.ErrUnknownProvider
	}
	r.defaultName = defaultName
	return r, nil
}

func (r *Registry) Resolve(name string) (adapter.PaymentProvider, error) {
	if name == "" {
		name = r.defaultName
	}
	gw, ok := r.byName[name]
	if !ok {
		return nil, domain.ErrUnknownProvider
	}
	return gw, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
