package engine

import (
	"sort"
	"sync"
)

// Registry resolves a node-type string to its strategy. It is populated at
// process startup and safe for concurrent resolution.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

func NewRegistry() *Registry {
	return &Registry{strategies: make(map[string]Strategy)}
}

func (r *Registry) Register(strategy Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[strategy.Type()] = strategy
}

func (r *Registry) Get(nodeType string) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	strategy, ok := r.strategies[nodeType]
	return strategy, ok
}

func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.strategies))
	for nodeType := range r.strategies {
		types = append(types, nodeType)
	}
	sort.Strings(types)
	return types
}
