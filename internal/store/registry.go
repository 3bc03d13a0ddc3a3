package store

import (
	"fmt"
	"sort"
	"sync"

	"github.com/kailas-cloud/annex/internal/domain"
)

// Defaults are server-level index defaults applied to collection configs
// that leave the corresponding field at zero.
type Defaults struct {
	MaxNeighbors   int
	EFConstruction int
	SearchBreadth  int
	MaxElements    int

	// RandomSeed pins every collection's level sampler; nil in production.
	RandomSeed *int64
}

// Registry is the process-wide mapping from collection name to collection.
// Its mutex guards structural changes only; per-collection operations use
// the collection's own lock.
type Registry struct {
	mu          sync.RWMutex
	collections map[string]*Collection
	defaults    Defaults
}

// NewRegistry creates an empty registry.
func NewRegistry(defaults Defaults) *Registry {
	return &Registry{
		collections: make(map[string]*Collection),
		defaults:    defaults,
	}
}

// Create adds a new collection. Creation is strict: a taken name fails with
// ErrAlreadyExists rather than silently overwriting.
func (r *Registry) Create(name string, cfg domain.CollectionConfig, dim int) (*Collection, error) {
	cfg = r.applyDefaults(cfg)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.collections[name]; ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrAlreadyExists, name)
	}

	col, err := newCollection(name, cfg, dim, r.defaults.EFConstruction, r.defaults.RandomSeed)
	if err != nil {
		return nil, err
	}

	r.collections[name] = col
	return col, nil
}

// Get returns the collection with the given name.
func (r *Registry) Get(name string) (*Collection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	col, ok := r.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrNotFound, name)
	}
	return col, nil
}

// List returns all collection names, sorted lexicographically.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.collections))
	for name := range r.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Delete removes a whole collection. Collections are never partially
// destroyed.
func (r *Registry) Delete(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.collections[name]; !ok {
		return fmt.Errorf("%w: %q", domain.ErrNotFound, name)
	}
	delete(r.collections, name)
	return nil
}

// Len returns the number of collections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.collections)
}

func (r *Registry) applyDefaults(cfg domain.CollectionConfig) domain.CollectionConfig {
	if cfg.Distance == "" {
		cfg.Distance = domain.DistanceL2
	}
	if cfg.MaxNeighbors == 0 {
		cfg.MaxNeighbors = r.defaults.MaxNeighbors
	}
	if cfg.SearchBreadth == 0 {
		cfg.SearchBreadth = r.defaults.SearchBreadth
	}
	if cfg.MaxElements == 0 {
		cfg.MaxElements = r.defaults.MaxElements
	}
	return cfg
}
