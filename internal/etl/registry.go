package etl

import (
	"sort"
)

// Registry maps entity kinds to their specs and holds the link specs. It is
// filled once at startup and read-only afterwards.
type Registry struct {
	specs map[Kind]*EntitySpec
	order []Kind
	links []LinkSpec
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{specs: make(map[Kind]*EntitySpec)}
}

// Register adds a spec. Duplicate kinds and incomplete specs are
// configuration errors.
func (r *Registry) Register(spec *EntitySpec) error {
	if spec == nil {
		return configErrorf("nil entity spec")
	}
	if err := spec.validate(); err != nil {
		return err
	}
	if _, exists := r.specs[spec.Kind]; exists {
		return configErrorf("entity kind %s registered twice", spec.Kind)
	}
	r.specs[spec.Kind] = spec
	r.order = append(r.order, spec.Kind)
	return nil
}

// Get returns the spec registered for kind.
func (r *Registry) Get(kind Kind) (*EntitySpec, bool) {
	spec, ok := r.specs[kind]
	return spec, ok
}

// Kinds returns the registered kinds in registration order.
func (r *Registry) Kinds() []Kind {
	return append([]Kind(nil), r.order...)
}

// SortedKinds returns the registered kinds alphabetically, for messages.
func (r *Registry) SortedKinds() []string {
	out := make([]string, len(r.order))
	for i, k := range r.order {
		out[i] = string(k)
	}
	sort.Strings(out)
	return out
}

// RegisterLink adds a link spec. Both ends must already be registered.
func (r *Registry) RegisterLink(link LinkSpec) error {
	if err := link.validate(); err != nil {
		return err
	}
	for _, kind := range []Kind{link.Source, link.Target} {
		if _, ok := r.specs[kind]; !ok {
			return configErrorf("link %s: unknown entity kind %s", link.Name, kind)
		}
	}
	for _, existing := range r.links {
		if existing.Name == link.Name {
			return configErrorf("link %s registered twice", link.Name)
		}
	}
	r.links = append(r.links, link)
	return nil
}

// Links returns the link specs in registration order.
func (r *Registry) Links() []LinkSpec {
	return append([]LinkSpec(nil), r.links...)
}
