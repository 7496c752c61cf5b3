package provider

import "github.com/rotisserie/eris"

// Registry maps provider names to their implementations.
type Registry struct {
	providers map[string]Provider
	order     []string // insertion order for deterministic iteration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider. Registering a name twice replaces the earlier
// provider and keeps its position.
func (r *Registry) Register(p Provider) {
	name := p.Name()
	if _, ok := r.providers[name]; !ok {
		r.order = append(r.order, name)
	}
	r.providers[name] = p
}

// Get returns a provider by name.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, eris.Errorf("provider: unknown provider %q", name)
	}
	return p, nil
}

// Select returns the named providers in the given order, or all of them in
// registration order when names is empty.
func (r *Registry) Select(names []string) ([]Provider, error) {
	if len(names) == 0 {
		return r.All(), nil
	}
	result := make([]Provider, 0, len(names))
	for _, name := range names {
		p, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, nil
}

// All returns all providers in registration order.
func (r *Registry) All() []Provider {
	result := make([]Provider, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.providers[name])
	}
	return result
}

// AllNames returns all registered names in registration order.
func (r *Registry) AllNames() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Split sorts providers into capped and box searchers, keeping order.
// Providers implementing neither are returned as an error.
func Split(ps []Provider) ([]CappedSearcher, []BBoxSearcher, error) {
	var capped []CappedSearcher
	var boxed []BBoxSearcher
	for _, p := range ps {
		switch s := p.(type) {
		case CappedSearcher:
			capped = append(capped, s)
		case BBoxSearcher:
			boxed = append(boxed, s)
		default:
			return nil, nil, eris.Errorf("provider: %q supports no search", p.Name())
		}
	}
	return capped, boxed, nil
}
